package advisor

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/kozaktomas/hair-advisor/internal/profile"
)

var (
	//go:embed knowledge.txt
	defaultKnowledge string
	//go:embed chat_knowledge.txt
	defaultChatKnowledge string
)

// KnowledgeBase is a set of product passages ranked by lexical overlap with a query.
type KnowledgeBase struct {
	docs  []string
	terms []map[string]int
	idf   map[string]float64
}

// ParseKnowledge splits text into passages separated by blank lines.
func ParseKnowledge(text string) *KnowledgeBase {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var docs []string
	for _, d := range strings.Split(text, "\n\n") {
		if d = strings.TrimSpace(d); d != "" {
			docs = append(docs, d)
		}
	}
	return newKnowledgeBase(docs)
}

// DefaultKnowledge returns the built-in product knowledge base.
func DefaultKnowledge() *KnowledgeBase {
	return ParseKnowledge(defaultKnowledge)
}

// DefaultChatKnowledge returns the built-in haircare advice used for follow-up questions.
func DefaultChatKnowledge() *KnowledgeBase {
	return ParseKnowledge(defaultChatKnowledge)
}

// LoadKnowledge reads every *.txt file in dir, in name order, into one knowledge base.
func LoadKnowledge(dir string) (*KnowledgeBase, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("list knowledge files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no knowledge files in %s", dir)
	}
	sort.Strings(files)

	var b strings.Builder
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read knowledge file %s: %w", f, err)
		}
		b.Write(data)
		b.WriteString("\n\n")
	}
	return ParseKnowledge(b.String()), nil
}

func newKnowledgeBase(docs []string) *KnowledgeBase {
	kb := &KnowledgeBase{
		docs:  docs,
		terms: make([]map[string]int, len(docs)),
		idf:   make(map[string]float64),
	}
	df := make(map[string]int)
	for i, d := range docs {
		kb.terms[i] = termCounts(d)
		for t := range kb.terms[i] {
			df[t]++
		}
	}
	n := float64(len(docs))
	for t, c := range df {
		kb.idf[t] = math.Log(1 + n/float64(c))
	}
	return kb
}

// Len returns the number of passages.
func (kb *KnowledgeBase) Len() int {
	return len(kb.docs)
}

// Retrieve returns up to k passages most relevant to query, best first.
// Ties keep the passage order of the knowledge base.
func (kb *KnowledgeBase) Retrieve(query string, k int) []string {
	if k <= 0 || len(kb.docs) == 0 {
		return nil
	}
	q := termCounts(query)

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(kb.docs))
	for i, terms := range kb.terms {
		var s float64
		for t := range q {
			if c, ok := terms[t]; ok {
				s += kb.idf[t] * (1 + math.Log(float64(c)))
			}
		}
		ranked[i] = scored{idx: i, score: s}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	k = min(k, len(ranked))
	out := make([]string, k)
	for i := range k {
		out[i] = kb.docs[ranked[i].idx]
	}
	return out
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "has": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true, "the": true, "this": true,
	"to": true, "with": true, "which": true, "hair": true, "gliss": true, "true": true,
	"false": true, "null": true,
}

// termCounts tokenizes text on non-alphanumerics after folding it the way quiz answers are folded.
func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	words := strings.FieldsFunc(profile.MatchKey(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len(w) < 2 || stopWords[w] {
			continue
		}
		counts[stem(w)]++
	}
	return counts
}

// stem strips a few English suffixes so "ends" matches "end" and "colored" matches "color".
func stem(w string) string {
	for _, suffix := range []string{"ing", "ed", "es", "s"} {
		if len(w) > len(suffix)+3 && strings.HasSuffix(w, suffix) {
			return strings.TrimSuffix(w, suffix)
		}
	}
	return w
}
