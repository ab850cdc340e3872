package quiz

import (
	"github.com/kozaktomas/hair-advisor/internal/profile"
	"github.com/kozaktomas/hair-advisor/internal/recommend"
)

// Step kinds.
const (
	StepCapture  = "capture"
	StepQuestion = "question"
)

// CaptureOutcome names for View.Capture.
const (
	CaptureNone     = "none"
	CaptureCaptured = "captured"
	CaptureSkipped  = "skipped"
)

// StepView describes the active step.
type StepView struct {
	Index    int      `json:"index"`
	Kind     string   `json:"kind"`
	Key      string   `json:"key,omitempty"`
	Prompt   string   `json:"prompt"`
	Subtitle string   `json:"subtitle"`
	Options  []string `json:"options,omitempty"`
	Selected string   `json:"selected,omitempty"`
}

// View is a consistent, serializable snapshot of a session.
type View struct {
	Active         int                       `json:"active"`
	TotalSteps     int                       `json:"total_steps"`
	Step           StepView                  `json:"step"`
	Answers        profile.Answers           `json:"answers"`
	AnsweredFlags  []bool                    `json:"answered_flags"`
	Jumpable       []bool                    `json:"jumpable"`
	Capture        string                    `json:"capture"`
	Submitting     bool                      `json:"submitting"`
	Completed      bool                      `json:"completed"`
	Recommendation *recommend.Recommendation `json:"recommendation,omitempty"`
	LastError      string                    `json:"last_error,omitempty"`
}

// View returns the current session state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Active:         s.active,
		TotalSteps:     s.catalog.TotalSteps(),
		Answers:        s.answers.Clone(),
		AnsweredFlags:  append([]bool(nil), s.flags...),
		Jumpable:       make([]bool, s.catalog.TotalSteps()),
		Capture:        CaptureNone,
		Submitting:     s.submitting,
		Completed:      s.completed,
		Recommendation: s.result,
	}
	for i := range v.Jumpable {
		v.Jumpable[i] = s.canJump(i)
	}
	switch {
	case s.capture.IsSkipped():
		v.Capture = CaptureSkipped
	case !s.capture.IsZero():
		v.Capture = CaptureCaptured
	}
	if s.lastErr != nil {
		v.LastError = s.lastErr.Error()
	}

	if q, ok := s.catalog.Question(s.active); ok {
		v.Step = StepView{
			Index:    s.active,
			Kind:     StepQuestion,
			Key:      q.Key,
			Prompt:   q.Prompt,
			Subtitle: q.Subtitle,
			Options:  q.Options,
			Selected: s.answers[q.Key],
		}
	} else {
		v.Step = StepView{
			Index:    0,
			Kind:     StepCapture,
			Prompt:   s.catalog.Capture.Prompt,
			Subtitle: s.catalog.Capture.Subtitle,
		}
	}
	return v
}
