package profile

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// typography maps the punctuation option labels are typeset with to plain ASCII.
var typography = strings.NewReplacer(
	"‘", "'", "’", "'", "ʼ", "'",
	"“", `"`, "”", `"`,
	"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-",
)

// MatchKey reduces an option label to the form used for table lookups:
// case folded, without diacritics, ASCII punctuation, trimmed and with single spaces.
// "  I’m NOT sure " and "i'm not sure" share a key.
func MatchKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, _ = transform.String(t, s)
	s = typography.Replace(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

var greasyRootsAnswers = map[string]bool{
	"every day":      true,
	"every 2-3 days": true,
}

var drynessTable = map[string]string{
	"very dry":     DrynessSevere,
	"somewhat dry": DrynessHigh,
	"balanced":     DrynessMedium,
	"moisturized":  DrynessLow,

	DrynessLow:    DrynessLow,
	DrynessMedium: DrynessMedium,
	DrynessHigh:   DrynessHigh,
	DrynessSevere: DrynessSevere,
}

var shineTable = map[string]string{
	"super shiny, almost reflective": ShineVeryShiny,
	"super shiny almost reflective":  ShineVeryShiny,
	"super shiny":                    ShineVeryShiny,
	"a little dull":                  ShineModeratelyShiny,
	"dull":                           ShineDull,
	"i'm not sure":                   ShineModeratelyShiny,
	"im not sure":                    ShineModeratelyShiny,
	"not sure":                       ShineModeratelyShiny,

	ShineVeryShiny:       ShineVeryShiny,
	ShineModeratelyShiny: ShineModeratelyShiny,
	ShineVeryDull:        ShineVeryDull,
}

// answered returns the raw answer for key and whether it holds anything besides whitespace.
func (a Answers) answered(key string) (string, bool) {
	v, ok := a[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// Normalize maps raw selections onto the canonical profile.
// Unanswered questions and dryness/shine labels outside the tables leave their field nil.
func Normalize(answers Answers) HairProfile {
	var p HairProfile

	if v, ok := answers.answered(QuestionLength); ok {
		p.Length = ptr(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := answers.answered(QuestionOiliness); ok {
		p.GreasyRoots = ptr(greasyRootsAnswers[MatchKey(v)])
	}
	if v, ok := answers.answered(QuestionSplitEnds); ok {
		p.SplitEnds = ptr(MatchKey(v) == "yes")
	}
	if v, ok := answers.answered(QuestionDryness); ok {
		if d, found := drynessTable[MatchKey(v)]; found {
			p.Dryness = ptr(d)
		}
	}
	if v, ok := answers.answered(QuestionShine); ok {
		if s, found := shineTable[MatchKey(v)]; found {
			p.Shine = ptr(s)
		}
	}
	if v, ok := answers.answered(QuestionColored); ok {
		p.Colored = ptr(v)
	}
	if v, ok := answers.answered(QuestionHeat); ok {
		p.Heat = ptr(v)
	}

	return p
}

func ptr[T any](v T) *T {
	return &v
}
