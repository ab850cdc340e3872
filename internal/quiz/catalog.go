// Package quiz holds the question catalog and the session state machine that walks a user
// from the selfie step through the questions to a submitted recommendation.
package quiz

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/hair-advisor/internal/profile"
)

//go:embed questions.yaml
var questionsYAML []byte

// ErrInvalidCatalog is returned when a catalog definition cannot drive a quiz.
var ErrInvalidCatalog = errors.New("invalid quiz catalog")

// Question is one single-choice quiz step.
type Question struct {
	Key      string   `yaml:"key" json:"key"`
	Prompt   string   `yaml:"prompt" json:"prompt"`
	Subtitle string   `yaml:"subtitle" json:"subtitle"`
	Options  []string `yaml:"options" json:"options"`
}

// Match returns the catalog label of option, comparing folded forms so that casing,
// spacing and typographic quotes do not matter.
func (q Question) Match(option string) (string, bool) {
	key := profile.MatchKey(option)
	if key == "" {
		return "", false
	}
	for _, o := range q.Options {
		if profile.MatchKey(o) == key {
			return o, true
		}
	}
	return "", false
}

// CaptureStep describes step 0.
type CaptureStep struct {
	Prompt   string `yaml:"prompt" json:"prompt"`
	Subtitle string `yaml:"subtitle" json:"subtitle"`
}

// Catalog is the ordered list of quiz steps. Step 0 is the capture step, steps
// 1..len(Questions) are the questions.
type Catalog struct {
	Capture   CaptureStep `yaml:"capture" json:"capture"`
	Questions []Question  `yaml:"questions" json:"questions"`
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("could not parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that the catalog has questions with unique keys and at least one option each.
func (c *Catalog) Validate() error {
	if len(c.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidCatalog)
	}
	seen := make(map[string]bool, len(c.Questions))
	for i, q := range c.Questions {
		if q.Key == "" {
			return fmt.Errorf("%w: question %d has no key", ErrInvalidCatalog, i+1)
		}
		if seen[q.Key] {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidCatalog, q.Key)
		}
		seen[q.Key] = true
		if len(q.Options) == 0 {
			return fmt.Errorf("%w: question %q has no options", ErrInvalidCatalog, q.Key)
		}
	}
	return nil
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	c, err := ParseCatalog(questionsYAML)
	if err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to load embedded questions.yaml: " + err.Error())
	}
	return c
})

// DefaultCatalog returns the built-in hair quiz.
func DefaultCatalog() *Catalog {
	return defaultCatalog()
}

// TotalSteps is the number of questions plus the capture step.
func (c *Catalog) TotalSteps() int {
	return len(c.Questions) + 1
}

// Question returns the question shown at step. Step 0 and out-of-range steps return false.
func (c *Catalog) Question(step int) (Question, bool) {
	if step < 1 || step > len(c.Questions) {
		return Question{}, false
	}
	return c.Questions[step-1], true
}

// StepOf returns the step index of the question with the given key, or -1.
func (c *Catalog) StepOf(key string) int {
	for i, q := range c.Questions {
		if q.Key == key {
			return i + 1
		}
	}
	return -1
}
