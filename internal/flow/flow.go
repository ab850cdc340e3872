// Package flow binds a quiz session to its capture controller: the camera runs exactly
// while the capture step is active and is torn down before the session leaves it.
package flow

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/hair-advisor/internal/capture"
	"github.com/kozaktomas/hair-advisor/internal/quiz"
	"github.com/kozaktomas/hair-advisor/internal/recommend"
)

// Options configure a Flow.
type Options struct {
	Capture capture.Options
	Logger  logrus.FieldLogger
}

// View combines the session and camera state.
type View struct {
	Session quiz.View        `json:"session"`
	Camera  capture.Snapshot `json:"camera"`
}

// Flow drives one quiz session and its camera.
type Flow struct {
	EventBroadcaster

	ctx     context.Context
	cancel  context.CancelFunc
	session *quiz.Session
	ctrl    *capture.Controller
	log     logrus.FieldLogger

	mu sync.Mutex // serializes camera start/stop with session moves
}

// New creates a flow. ctx bounds the lifetime of the camera loop, independent of any request.
func New(ctx context.Context, session *quiz.Session, source capture.FrameSource, loader capture.DetectorLoader, opts Options) *Flow {
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	ctx, cancel := context.WithCancel(ctx)
	f := &Flow{
		ctx:     ctx,
		cancel:  cancel,
		session: session,
		log:     log,
	}

	copts := opts.Capture
	copts.Logger = log
	onChange := copts.OnChange
	copts.OnChange = func(s capture.Snapshot) {
		if onChange != nil {
			onChange(s)
		}
		f.SendEvent(Event{Type: EventCapture, Data: s})
	}
	f.ctrl = capture.NewController(source, loader, copts)
	return f
}

// Session returns the underlying session.
func (f *Flow) Session() *quiz.Session {
	return f.session
}

// Open starts the camera if the session is on the capture step.
func (f *Flow) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session.Active() != 0 {
		return nil
	}
	return f.enterCapture()
}

func (f *Flow) enterCapture() error {
	return f.ctrl.Retry(f.ctx)
}

func (f *Flow) leaveCapture() {
	if err := f.ctrl.Close(); err != nil {
		f.log.WithError(err).Warn("could not release camera")
	}
}

// View returns the current state.
func (f *Flow) View() View {
	return View{Session: f.session.View(), Camera: f.ctrl.Snapshot()}
}

// Select answers the active question.
func (f *Flow) Select(option string) error {
	if err := f.session.Select(option); err != nil {
		return err
	}
	f.sendStep()
	return nil
}

// Next advances the session, tearing the camera down first when leaving the capture step.
// On the last question it submits; the recommendation is returned on success.
func (f *Flow) Next(ctx context.Context) (*recommend.Recommendation, error) {
	f.mu.Lock()
	active := f.session.Active()
	if active < f.session.TotalSteps()-1 {
		if active == 0 {
			f.leaveCapture()
		}
		_, err := f.session.NextFrom(ctx, active)
		f.mu.Unlock()
		if err != nil {
			return nil, err
		}
		f.sendStep()
		return nil, nil
	}
	f.mu.Unlock()

	// The submission runs unlocked; NextFrom refuses it if a jump moved the session meanwhile.
	f.SendEvent(Event{Type: EventSubmitting})
	rec, err := f.session.NextFrom(ctx, active)
	switch {
	case err == nil:
		f.SendEvent(Event{Type: EventSubmitted, Data: rec})
	case errors.Is(err, quiz.ErrSubmissionFailed):
		f.SendEvent(Event{Type: EventSubmitFailed, Message: err.Error()})
	}
	return rec, err
}

// Jump moves to step if allowed. The camera is stopped before leaving the capture step
// and started again when jumping back to it.
func (f *Flow) Jump(step int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	from := f.session.Active()
	if !f.session.CanJump(step) {
		return false
	}
	if from == 0 && step != 0 {
		f.leaveCapture()
	}
	if !f.session.Jump(step) {
		return false
	}
	if step == 0 && from != 0 {
		if err := f.enterCapture(); err != nil {
			f.log.WithError(err).Warn("could not start camera")
		}
	}
	f.sendStep()
	return true
}

// Capture takes the still and hands it to the session. The session stays on the capture
// step so the user can review it.
func (f *Flow) Capture() (*capture.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.session.Active() != 0 {
		return nil, quiz.ErrNotCaptureStep
	}
	img, err := f.ctrl.Capture()
	if err != nil {
		return nil, err
	}
	if err := f.session.SetCapture(capture.Captured(img)); err != nil {
		return nil, err
	}
	return img, nil
}

// RetryCapture discards the still and restarts the camera.
func (f *Flow) RetryCapture() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.session.Active() != 0 {
		return quiz.ErrNotCaptureStep
	}
	if err := f.session.SetCapture(capture.Result{}); err != nil {
		return err
	}
	return f.enterCapture()
}

// SkipCapture bypasses the capture and advances to the first question.
func (f *Flow) SkipCapture(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.session.Active() != 0 {
		return quiz.ErrNotCaptureStep
	}
	if err := f.session.SetCapture(f.ctrl.Skip()); err != nil {
		return err
	}
	if _, err := f.session.Next(ctx); err != nil {
		return err
	}
	f.sendStep()
	return nil
}

// Restart resets the session and starts over at the capture step.
func (f *Flow) Restart() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.leaveCapture()
	f.session.Restart()
	f.sendStep()
	return f.enterCapture()
}

// Close stops the camera and disconnects listeners.
func (f *Flow) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.ctrl.Close()
	f.cancel()
	f.CloseListeners()
	return err
}

func (f *Flow) sendStep() {
	f.SendEvent(Event{Type: EventStep, Data: f.session.View()})
}
