// Package profile turns raw quiz selections into the canonical hair profile sent to the
// recommendation service.
package profile

// Question keys identify the quiz questions in an Answers record.
const (
	QuestionLength    = "length"
	QuestionOiliness  = "oiliness"
	QuestionSplitEnds = "split_ends"
	QuestionDryness   = "dryness"
	QuestionShine     = "shine"
	QuestionColored   = "colored"
	QuestionHeat      = "heat"
)

// Dryness levels.
const (
	DrynessLow    = "low"
	DrynessMedium = "medium"
	DrynessHigh   = "high"
	DrynessSevere = "severe"
)

// Shine levels.
const (
	ShineVeryShiny       = "very shiny"
	ShineModeratelyShiny = "moderately shiny"
	ShineDull            = "dull"
	ShineVeryDull        = "very dull"
)

// Answers maps a question key to the option the user selected.
// A missing key means the question was not answered.
type Answers map[string]string

// Clone returns an independent copy of the record.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// HairProfile is the backend-facing representation of all quiz answers.
// Unanswered fields stay nil and are omitted from JSON.
type HairProfile struct {
	Length      *string `json:"length,omitempty"`
	GreasyRoots *bool   `json:"greasy_roots,omitempty"`
	SplitEnds   *bool   `json:"split_ends,omitempty"`
	Dryness     *string `json:"dryness,omitempty"`
	Shine       *string `json:"shine,omitempty"`
	Colored     *string `json:"colored,omitempty"`
	Heat        *string `json:"heat,omitempty"`
}

// IsEmpty reports whether no field is set.
func (p HairProfile) IsEmpty() bool {
	return p.Length == nil && p.GreasyRoots == nil && p.SplitEnds == nil &&
		p.Dryness == nil && p.Shine == nil && p.Colored == nil && p.Heat == nil
}
