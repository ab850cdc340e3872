package quiz

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/hair-advisor/internal/capture"
	"github.com/kozaktomas/hair-advisor/internal/profile"
	"github.com/kozaktomas/hair-advisor/internal/recommend"
)

// ErrInvalidState is returned when a persisted state does not fit the catalog.
var ErrInvalidState = errors.New("invalid session state")

// State is the persistable form of a session. A submission in flight is not part of it.
type State struct {
	Active    int                       `json:"active"`
	Answers   profile.Answers           `json:"answers"`
	Flags     []bool                    `json:"flags"`
	Capture   string                    `json:"capture"`
	Image     *capture.Image            `json:"image,omitempty"`
	ImageJPEG []byte                    `json:"image_jpeg,omitempty"`
	Completed bool                      `json:"completed"`
	Result    *recommend.Recommendation `json:"result,omitempty"`
}

// State exports the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Active:    s.active,
		Answers:   s.answers.Clone(),
		Flags:     append([]bool(nil), s.flags...),
		Capture:   CaptureNone,
		Completed: s.completed,
		Result:    s.result,
	}
	if s.capture.IsSkipped() {
		st.Capture = CaptureSkipped
	} else if img, ok := s.capture.Image(); ok {
		st.Capture = CaptureCaptured
		st.Image = img
		st.ImageJPEG = img.JPEG
	}
	return st
}

// RestoreSession rebuilds a session from an exported state.
func RestoreSession(catalog *Catalog, submitter Submitter, opts Options, st State) (*Session, error) {
	s := NewSession(catalog, submitter, opts)

	if st.Active < 0 || st.Active >= s.catalog.TotalSteps() {
		return nil, fmt.Errorf("%w: active step %d", ErrInvalidState, st.Active)
	}
	if len(st.Flags) != len(s.catalog.Questions) {
		return nil, fmt.Errorf("%w: %d flags for %d questions", ErrInvalidState, len(st.Flags), len(s.catalog.Questions))
	}
	for key, v := range st.Answers {
		step := s.catalog.StepOf(key)
		if step < 0 {
			return nil, fmt.Errorf("%w: unknown question %q", ErrInvalidState, key)
		}
		q, _ := s.catalog.Question(step)
		label, ok := q.Match(v)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not an option of %s", ErrInvalidState, v, key)
		}
		s.answers[key] = label
	}
	copy(s.flags, st.Flags)

	switch st.Capture {
	case CaptureSkipped:
		s.capture = capture.Skipped()
	case CaptureCaptured:
		img := st.Image
		if img == nil {
			img = &capture.Image{FileName: recommend.DefaultImageName}
		}
		if len(st.ImageJPEG) > 0 {
			img.JPEG = st.ImageJPEG
		}
		if len(img.JPEG) == 0 {
			return nil, fmt.Errorf("%w: captured image without data", ErrInvalidState)
		}
		s.capture = capture.Captured(img)
	case "", CaptureNone:
	default:
		return nil, fmt.Errorf("%w: capture outcome %q", ErrInvalidState, st.Capture)
	}

	s.active = st.Active
	s.completed = st.Completed
	s.result = st.Result
	return s, nil
}
