package flow

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/hair-advisor/internal/capture"
	"github.com/kozaktomas/hair-advisor/internal/framing"
	"github.com/kozaktomas/hair-advisor/internal/profile"
	"github.com/kozaktomas/hair-advisor/internal/quiz"
	"github.com/kozaktomas/hair-advisor/internal/recommend"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var answers = []string{"Long", "Every day", "No", "Moisturized", "A little dull", "Rarely", "Never"}

type stubDetector struct{}

func (stubDetector) EstimateFaces(context.Context, capture.Frame) ([]framing.Face, error) {
	return []framing.Face{{Box: framing.FaceBox{XMin: 150, YMin: 80, Width: 100, Height: 140}}}, nil
}

func (stubDetector) Close() error { return nil }

type stubSubmitter struct {
	mu     sync.Mutex
	err    error
	images []*capture.Image
}

func (s *stubSubmitter) Submit(_ context.Context, p profile.HairProfile, img *capture.Image) (*recommend.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, img)
	if s.err != nil {
		return nil, s.err
	}
	return &recommend.Recommendation{QuizData: p, Advice: recommend.Advice{RecommendedLine: "Hydra Repair"}}, nil
}

func newTestFlow(t *testing.T, sub quiz.Submitter) (*Flow, *capture.PushSource) {
	t.Helper()
	src := capture.NewPushSource(1)
	loader := capture.DetectorLoaderFunc(func(context.Context) (capture.Detector, error) {
		return stubDetector{}, nil
	})
	s := quiz.NewSession(nil, sub, quiz.Options{})
	f := New(context.Background(), s, src, loader, Options{Capture: capture.Options{ReadyTimeout: time.Minute}})
	t.Cleanup(func() { _ = f.Close() })
	return f, src
}

func waitPositioned(t *testing.T, f *Flow, src *capture.PushSource) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	require.Eventually(t, func() bool {
		src.Push(img)
		return f.View().Camera.Status == framing.StatusPositioned
	}, waitFor, tick)
}

func answerAll(t *testing.T, f *Flow, upTo int) {
	t.Helper()
	for i := 0; i < upTo; i++ {
		require.NoError(t, f.Select(answers[i]))
		if i < len(answers)-1 {
			_, err := f.Next(context.Background())
			require.NoError(t, err)
		}
	}
}

// nextEvent waits for the first event of the given type.
func nextEvent(t *testing.T, ch chan Event, typ string) Event {
	t.Helper()
	timeout := time.After(waitFor)
	for {
		select {
		case e, ok := <-ch:
			require.True(t, ok, "listener closed while waiting for %s", typ)
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
		}
	}
}

func TestFlowCaptureAndSubmit(t *testing.T) {
	sub := &stubSubmitter{}
	f, src := newTestFlow(t, sub)
	events := f.AddListener()

	require.NoError(t, f.Open())
	require.Eventually(t, src.Active, waitFor, tick)
	waitPositioned(t, f, src)

	img, err := f.Capture()
	require.NoError(t, err)
	assert.Equal(t, quiz.CaptureCaptured, f.View().Session.Capture)
	assert.Equal(t, capture.StatePreviewing, f.View().Camera.State)

	_, err = f.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.View().Session.Active)
	assert.False(t, src.Active(), "camera must be released after leaving the capture step")

	answerAll(t, f, len(answers))
	rec, err := f.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hydra Repair", rec.Advice.RecommendedLine)

	require.Len(t, sub.images, 1)
	assert.Same(t, img, sub.images[0])

	e := nextEvent(t, events, EventSubmitted)
	assert.Same(t, rec, e.Data)
}

func TestFlowCaptureRequiresCaptureStep(t *testing.T) {
	f, _ := newTestFlow(t, &stubSubmitter{})
	require.NoError(t, f.SkipCapture(context.Background()))

	_, err := f.Capture()
	assert.ErrorIs(t, err, quiz.ErrNotCaptureStep)
	assert.ErrorIs(t, f.RetryCapture(), quiz.ErrNotCaptureStep)
	assert.ErrorIs(t, f.SkipCapture(context.Background()), quiz.ErrNotCaptureStep)
}

func TestFlowSkip(t *testing.T) {
	f, src := newTestFlow(t, &stubSubmitter{})
	require.NoError(t, f.Open())
	require.Eventually(t, src.Active, waitFor, tick)

	require.NoError(t, f.SkipCapture(context.Background()))

	v := f.View()
	assert.Equal(t, 1, v.Session.Active)
	assert.Equal(t, quiz.CaptureSkipped, v.Session.Capture)
	assert.Equal(t, capture.StateStopped, v.Camera.State)
	assert.False(t, src.Active())
}

func TestFlowJumpRestartsCamera(t *testing.T) {
	f, src := newTestFlow(t, &stubSubmitter{})
	require.NoError(t, f.Open())
	require.NoError(t, f.SkipCapture(context.Background()))
	answerAll(t, f, 2)

	require.True(t, f.Jump(0))
	require.Eventually(t, src.Active, waitFor, tick)
	assert.Equal(t, 0, f.View().Session.Active)

	require.True(t, f.Jump(2))
	assert.False(t, src.Active())
	assert.Equal(t, 2, f.View().Session.Active)

	assert.False(t, f.Jump(6), "cannot jump past unanswered questions")
	assert.Equal(t, 2, f.View().Session.Active)
}

// The camera runs exactly when the session is on the capture step, however Next and
// Jump(0) interleave.
func TestFlowConcurrentNextAndJump(t *testing.T) {
	for _, from := range []int{2, len(answers)} {
		for range 200 {
			f, _ := newTestFlow(t, &stubSubmitter{})
			require.NoError(t, f.Open())
			require.NoError(t, f.SkipCapture(context.Background()))
			answerAll(t, f, from-1)
			require.NoError(t, f.Select(answers[from-1]))

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _ = f.Next(context.Background())
			}()
			go func() {
				defer wg.Done()
				f.Jump(0)
			}()
			wg.Wait()

			v := f.View()
			if v.Session.Completed {
				continue
			}
			onCapture := v.Session.Active == 0
			running := v.Camera.State != capture.StateStopped
			require.Equal(t, onCapture, running, "step %d, camera %s", v.Session.Active, v.Camera.State)
			_ = f.Close()
		}
	}
}

func TestFlowRetryCapture(t *testing.T) {
	f, src := newTestFlow(t, &stubSubmitter{})
	require.NoError(t, f.Open())
	waitPositioned(t, f, src)
	_, err := f.Capture()
	require.NoError(t, err)

	require.NoError(t, f.RetryCapture())
	v := f.View()
	assert.Equal(t, quiz.CaptureNone, v.Session.Capture)
	assert.False(t, v.Camera.HasImage)
	waitPositioned(t, f, src)
}

func TestFlowRestart(t *testing.T) {
	f, src := newTestFlow(t, &stubSubmitter{})
	require.NoError(t, f.Open())
	require.NoError(t, f.SkipCapture(context.Background()))
	answerAll(t, f, 3)

	require.NoError(t, f.Restart())
	v := f.View()
	assert.Equal(t, 0, v.Session.Active)
	assert.Empty(t, v.Session.Answers)
	require.Eventually(t, src.Active, waitFor, tick)
}

func TestFlowSubmitFailedEvent(t *testing.T) {
	sub := &stubSubmitter{err: errors.New("gateway down")}
	f, _ := newTestFlow(t, sub)
	events := f.AddListener()

	require.NoError(t, f.SkipCapture(context.Background()))
	answerAll(t, f, len(answers))

	_, err := f.Next(context.Background())
	require.ErrorIs(t, err, quiz.ErrSubmissionFailed)

	nextEvent(t, events, EventSubmitting)
	e := nextEvent(t, events, EventSubmitFailed)
	assert.Contains(t, e.Message, "gateway down")
	assert.Equal(t, 7, f.View().Session.Active)
}

func TestFlowCloseDisconnectsListeners(t *testing.T) {
	f, _ := newTestFlow(t, &stubSubmitter{})
	events := f.AddListener()
	require.NoError(t, f.Close())

	e, ok := <-events
	require.True(t, ok)
	assert.Equal(t, EventClosed, e.Type)
	_, ok = <-events
	assert.False(t, ok)

	late := f.AddListener()
	_, ok = <-late
	assert.False(t, ok)
}
