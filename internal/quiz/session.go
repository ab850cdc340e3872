package quiz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/hair-advisor/internal/capture"
	"github.com/kozaktomas/hair-advisor/internal/profile"
	"github.com/kozaktomas/hair-advisor/internal/recommend"
)

// Session errors. An invalid jump is not an error; Jump reports it by returning false.
var (
	ErrUnanswered         = errors.New("active question has no answer")
	ErrUnknownOption      = errors.New("option does not belong to the active question")
	ErrNotQuestionStep    = errors.New("active step is not a question")
	ErrNotCaptureStep     = errors.New("active step is not the capture step")
	ErrSubmissionInFlight = errors.New("submission already in progress")
	ErrSubmissionFailed   = errors.New("submission failed")
	ErrCompleted          = errors.New("quiz already submitted")
	ErrStepChanged        = errors.New("active step changed")
)

// CaptureRevisit controls whether the capture step can be reopened by a jump.
type CaptureRevisit string

const (
	RevisitAlways        CaptureRevisit = "always"
	RevisitUnlessSkipped CaptureRevisit = "unless_skipped"
	RevisitNever         CaptureRevisit = "never"
)

// ParseCaptureRevisit parses a policy name; the empty string means RevisitAlways.
func ParseCaptureRevisit(s string) (CaptureRevisit, error) {
	switch CaptureRevisit(s) {
	case "", RevisitAlways:
		return RevisitAlways, nil
	case RevisitUnlessSkipped, RevisitNever:
		return CaptureRevisit(s), nil
	default:
		return "", fmt.Errorf("unknown capture revisit policy %q", s)
	}
}

// Submitter delivers a normalized profile and the optional still to the recommendation service.
type Submitter interface {
	Submit(ctx context.Context, p profile.HairProfile, img *capture.Image) (*recommend.Recommendation, error)
}

// Options configure a Session.
type Options struct {
	Revisit CaptureRevisit
	Logger  logrus.FieldLogger
}

// Session is one user's pass through the quiz. All methods are safe for concurrent use.
type Session struct {
	catalog   *Catalog
	submitter Submitter
	revisit   CaptureRevisit
	log       logrus.FieldLogger

	mu         sync.Mutex
	active     int
	answers    profile.Answers
	flags      []bool
	capture    capture.Result
	submitting bool
	completed  bool
	result     *recommend.Recommendation
	lastErr    error
	epoch      uint64
}

// NewSession starts a session at the capture step.
func NewSession(catalog *Catalog, submitter Submitter, opts Options) *Session {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if opts.Revisit == "" {
		opts.Revisit = RevisitAlways
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Session{
		catalog:   catalog,
		submitter: submitter,
		revisit:   opts.Revisit,
		log:       log,
		answers:   profile.Answers{},
		flags:     make([]bool, len(catalog.Questions)),
	}
}

// Catalog returns the questions the session walks through.
func (s *Session) Catalog() *Catalog {
	return s.catalog
}

// TotalSteps returns the number of steps including the capture step.
func (s *Session) TotalSteps() int {
	return s.catalog.TotalSteps()
}

// Active returns the active step index.
func (s *Session) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Answers returns a copy of the answers given so far.
func (s *Session) Answers() profile.Answers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Clone()
}

// AnsweredFlags returns a copy of the per-question answered flags.
func (s *Session) AnsweredFlags() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.flags...)
}

// Capture returns the outcome of the capture step.
func (s *Session) Capture() capture.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture
}

// Result returns the recommendation once the quiz is completed.
func (s *Session) Result() (*recommend.Recommendation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.completed
}

// Select records option as the answer to the active question. It does not advance.
func (s *Session) Select(option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return err
	}
	q, ok := s.catalog.Question(s.active)
	if !ok {
		return ErrNotQuestionStep
	}
	label, ok := q.Match(option)
	if !ok {
		return fmt.Errorf("%w: %q for %s", ErrUnknownOption, option, q.Key)
	}
	s.answers[q.Key] = label
	return nil
}

// SetCapture records the capture step outcome. It is only accepted while step 0 is active.
func (s *Session) SetCapture(r capture.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutable(); err != nil {
		return err
	}
	if s.active != 0 {
		return ErrNotCaptureStep
	}
	s.capture = r
	return nil
}

// Next advances the session. From the capture step it always moves on; leaving it without
// a still counts as a skip. From a question it requires an answer. Advancing from the last
// question normalizes the answers and submits them; the returned recommendation is non-nil
// only then. A failed submission leaves the session exactly as it was before the call.
func (s *Session) Next(ctx context.Context) (*recommend.Recommendation, error) {
	return s.next(ctx, -1)
}

// NextFrom is Next guarded by the step the caller observed. If the session has moved
// away from step meanwhile, nothing changes and ErrStepChanged is returned.
func (s *Session) NextFrom(ctx context.Context, step int) (*recommend.Recommendation, error) {
	return s.next(ctx, step)
}

func (s *Session) next(ctx context.Context, from int) (*recommend.Recommendation, error) {
	s.mu.Lock()
	if err := s.mutable(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if from >= 0 && s.active != from {
		active := s.active
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: expected step %d, now %d", ErrStepChanged, from, active)
	}

	if s.active == 0 {
		if s.capture.IsZero() {
			s.capture = capture.Skipped()
		}
		s.active = 1
		s.mu.Unlock()
		return nil, nil
	}

	q, _ := s.catalog.Question(s.active)
	if _, ok := s.answers[q.Key]; !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnanswered, q.Key)
	}

	idx := s.active - 1
	if s.active < len(s.catalog.Questions) {
		s.flags[idx] = true
		s.active++
		s.mu.Unlock()
		return nil, nil
	}

	// Last question: submit outside the lock so concurrent calls see the in-flight flag.
	prevFlag := s.flags[idx]
	s.flags[idx] = true
	s.submitting = true
	s.lastErr = nil
	epoch := s.epoch
	p := profile.Normalize(s.answers)
	img, _ := s.capture.Image()
	s.mu.Unlock()

	s.log.WithField("has_image", img != nil).Info("submitting quiz")
	rec, err := s.submitter.Submit(ctx, p, img)

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		// Restarted while the request was in flight.
		return nil, context.Canceled
	}
	s.submitting = false
	if err != nil {
		s.flags[idx] = prevFlag
		s.lastErr = err
		s.log.WithError(err).Warn("quiz submission failed")
		return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	s.completed = true
	s.result = rec
	return rec, nil
}

// CanJump reports whether Jump(step) would succeed.
func (s *Session) CanJump(step int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canJump(step)
}

func (s *Session) canJump(step int) bool {
	if s.mutable() != nil || step < 0 || step >= s.catalog.TotalSteps() {
		return false
	}
	if step == 0 {
		switch s.revisit {
		case RevisitNever:
			return s.active == 0
		case RevisitUnlessSkipped:
			return s.active == 0 || !s.capture.IsSkipped()
		}
		return true
	}
	// Every question step before the target must be answered.
	for i := 0; i < step-1; i++ {
		if !s.flags[i] {
			return false
		}
	}
	return true
}

// Jump moves to step if every question before it is answered. An invalid jump changes
// nothing and returns false.
func (s *Session) Jump(step int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.canJump(step) {
		return false
	}
	s.active = step
	return true
}

// Restart clears every answer, flag, capture outcome and result and returns to step 0.
// A submission still in flight is abandoned.
func (s *Session) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.active = 0
	s.answers = profile.Answers{}
	s.flags = make([]bool, len(s.catalog.Questions))
	s.capture = capture.Result{}
	s.submitting = false
	s.completed = false
	s.result = nil
	s.lastErr = nil
}

func (s *Session) mutable() error {
	if s.submitting {
		return ErrSubmissionInFlight
	}
	if s.completed {
		return ErrCompleted
	}
	return nil
}
