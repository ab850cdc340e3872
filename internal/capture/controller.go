package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/hair-advisor/internal/framing"
)

// DefaultReadyTimeout is how long Start waits for the first frame before degrading.
const DefaultReadyTimeout = 5 * time.Second

// Options configure a Controller. Zero values fall back to the defaults.
type Options struct {
	Evaluator    *framing.Evaluator
	Constraints  Constraints
	ReadyTimeout time.Duration
	JPEGQuality  int

	// OnChange is called after every state or status change. It may be called
	// from the loop goroutine and must not call back into the controller.
	OnChange func(Snapshot)
	Logger   logrus.FieldLogger
}

// Controller owns one camera stream and one detector for the capture step.
type Controller struct {
	source FrameSource
	loader DetectorLoader
	opts   Options
	log    logrus.FieldLogger

	mu         sync.Mutex
	state      State
	status     framing.PositionStatus
	degraded   bool
	err        error
	image      *Image
	last       Frame
	frames     uint64
	gen        uint64
	cancel     context.CancelFunc
	done       chan struct{}
	timer      *time.Timer
	releaseErr error
}

// NewController creates a stopped controller.
func NewController(source FrameSource, loader DetectorLoader, opts Options) *Controller {
	if opts.Evaluator == nil {
		opts.Evaluator = framing.DefaultEvaluator()
	}
	if opts.Constraints.Width == 0 || opts.Constraints.Height == 0 {
		opts.Constraints.Width = int(opts.Evaluator.Frame.Width)
		opts.Constraints.Height = int(opts.Evaluator.Frame.Height)
	}
	if opts.Constraints.FacingMode == "" {
		opts.Constraints.FacingMode = "user"
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}

	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	return &Controller{
		source: source,
		loader: loader,
		opts:   opts,
		log:    log.WithField("component", "capture"),
		state:  StateStopped,
		status: framing.StatusNone,
	}
}

// Start acquires the camera and the detector concurrently and begins classifying frames.
// The loop runs until Capture, Skip, Retry or Close, or until ctx is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}

	c.gen++
	gen := c.gen
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.state = StateInitializing
	c.status = framing.StatusNone
	c.degraded = false
	c.err = nil
	c.image = nil
	c.last = Frame{}
	c.frames = 0
	c.timer = time.AfterFunc(c.opts.ReadyTimeout, func() { c.readyTimeout(gen) })
	snap := c.snapshot()
	c.mu.Unlock()

	c.log.Debug("starting capture")
	c.notify(snap)

	go c.run(runCtx, gen, done)
	return nil
}

func (c *Controller) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	stream, detector, err := c.acquire(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.fail(gen, err)
		}
		return
	}
	defer func() {
		err := multierr.Combine(stream.Close(), detector.Close())
		c.mu.Lock()
		c.releaseErr = err
		c.mu.Unlock()
	}()

	c.loop(ctx, gen, stream, detector)
}

// acquire opens the stream and loads the detector in parallel. Whatever was acquired
// is released again if either fails.
func (c *Controller) acquire(ctx context.Context) (Stream, Detector, error) {
	var (
		stream   Stream
		detector Detector
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := c.source.Open(gctx, c.opts.Constraints)
		if err != nil {
			return sourceError(err)
		}
		stream = s
		return nil
	})
	g.Go(func() error {
		d, err := c.loader.Load(gctx)
		if err != nil {
			if errors.Is(err, ErrDetectorLoadFailed) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrDetectorLoadFailed, err)
		}
		detector = d
		return nil
	})

	if err := g.Wait(); err != nil {
		var release error
		if stream != nil {
			release = multierr.Append(release, stream.Close())
		}
		if detector != nil {
			release = multierr.Append(release, detector.Close())
		}
		if release != nil {
			c.log.WithError(release).Warn("could not release capture resources")
		}
		return nil, nil, err
	}
	return stream, detector, nil
}

func (c *Controller) loop(ctx context.Context, gen uint64, stream Stream, detector Detector) {
	for ctx.Err() == nil {
		frame, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: stream ended", ErrDeviceUnavailable)
			}
			c.fail(gen, sourceError(err))
			return
		}

		size := frame.Size()
		if size.Empty() {
			continue
		}

		faces, err := detector.EstimateFaces(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.WithError(err).WithField("frame", frame.Seq).Warn("face estimation failed")
			faces = nil
		}

		eval := c.opts.Evaluator
		boxes := make([]framing.FaceBox, len(faces))
		for i, f := range faces {
			boxes[i] = framing.ScaleBox(f.Box, size, eval.Frame)
		}

		if !c.update(gen, frame, eval.Classify(boxes)) {
			return
		}
	}
}

// update records a classified frame. It returns false if the controller moved on to
// another generation.
func (c *Controller) update(gen uint64, frame Frame, status framing.PositionStatus) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}

	changed := status != c.status
	c.last = frame
	c.frames++
	c.status = status
	if c.state == StateInitializing || c.degraded {
		if c.state == StateInitializing {
			c.state = StateReady
		}
		c.degraded = false
		c.err = nil
		changed = true
		if c.timer != nil {
			c.timer.Stop()
		}
	}
	snap := c.snapshot()
	c.mu.Unlock()

	if changed {
		c.notify(snap)
	}
	return true
}

func (c *Controller) readyTimeout(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateInitializing {
		c.mu.Unlock()
		return
	}
	c.state = StateReady
	c.degraded = true
	c.err = ErrFrameTimeout
	snap := c.snapshot()
	c.mu.Unlock()

	c.log.Warn("camera did not deliver a frame in time, continuing degraded")
	c.notify(snap)
}

func (c *Controller) fail(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = StateError
	c.status = framing.StatusNone
	c.degraded = false
	c.err = err
	if c.timer != nil {
		c.timer.Stop()
	}
	snap := c.snapshot()
	c.mu.Unlock()

	c.log.WithError(err).Error("capture failed")
	c.notify(snap)
}

// Capture encodes the last frame as a JPEG still and stops the camera.
// It requires state ready, a live frame and a positioned face.
func (c *Controller) Capture() (*Image, error) {
	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: state is %s", ErrNotReady, state)
	}
	if c.last.Size().Empty() {
		c.mu.Unlock()
		return nil, ErrFrameNotReady
	}
	if c.status != framing.StatusPositioned {
		c.mu.Unlock()
		return nil, ErrNotPositioned
	}
	frame := c.last
	gen := c.gen
	c.state = StateCapturing
	snap := c.snapshot()
	c.mu.Unlock()
	c.notify(snap)

	img, err := encodeStill(frame, c.opts.Constraints.Width, c.opts.Constraints.Height, c.opts.JPEGQuality, time.Now())
	if err != nil {
		c.mu.Lock()
		if gen == c.gen {
			c.state = StateReady
		}
		snap := c.snapshot()
		c.mu.Unlock()
		c.notify(snap)
		return nil, err
	}

	c.mu.Lock()
	if gen != c.gen {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: camera restarted during capture, state is %s", ErrNotReady, state)
	}
	halt := c.detach()
	c.image = img
	c.state = StatePreviewing
	snap = c.snapshot()
	c.mu.Unlock()

	if err := halt(); err != nil {
		c.log.WithError(err).Warn("could not release camera after capture")
	}

	c.log.WithField("bytes", len(img.JPEG)).Info("captured still")
	c.notify(snap)
	return img, nil
}

// Retry drops the still image and restarts the camera from initializing.
func (c *Controller) Retry(ctx context.Context) error {
	if err := c.stop(); err != nil {
		c.log.WithError(err).Warn("could not release camera before retry")
	}
	return c.Start(ctx)
}

// Skip tears the controller down and returns the skipped outcome.
func (c *Controller) Skip() Result {
	if err := c.stop(); err != nil {
		c.log.WithError(err).Warn("could not release camera on skip")
	}
	c.mu.Lock()
	c.image = nil
	c.state = StateStopped
	c.status = framing.StatusNone
	snap := c.snapshot()
	c.mu.Unlock()
	c.notify(snap)
	return Skipped()
}

// Close stops the loop and releases the camera and detector. A captured still survives Close.
func (c *Controller) Close() error {
	err := c.stop()
	c.mu.Lock()
	changed := c.state != StateStopped && c.state != StatePreviewing
	if changed {
		c.state = StateStopped
		c.status = framing.StatusNone
	}
	snap := c.snapshot()
	c.mu.Unlock()
	if changed {
		c.notify(snap)
	}
	return err
}

// stop cancels the loop, waits for it to exit and returns the release error.
// Results still in flight from the stopped run are discarded.
func (c *Controller) stop() error {
	c.mu.Lock()
	halt := c.detach()
	c.mu.Unlock()
	return halt()
}

// detach ends the current generation. It must be called with c.mu held; the returned
// func cancels the loop, waits for it and must be called without c.mu.
func (c *Controller) detach() func() error {
	cancel, done, timer := c.cancel, c.done, c.timer
	c.cancel, c.done, c.timer = nil, nil, nil
	c.gen++

	return func() error {
		if timer != nil {
			timer.Stop()
		}
		if cancel == nil {
			return nil
		}
		cancel()
		<-done

		c.mu.Lock()
		err := c.releaseErr
		c.releaseErr = nil
		c.mu.Unlock()
		return err
	}
}

// Result returns the captured still as a Result, or the zero Result if there is none.
func (c *Controller) Result() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.image == nil {
		return Result{}
	}
	return Captured(c.image)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		State:    c.state,
		Status:   c.status,
		Degraded: c.degraded,
		Err:      c.err,
		HasImage: c.image != nil,
		Frames:   c.frames,
	}
	if c.err != nil {
		s.Message = c.err.Error()
	}
	return s
}

func (c *Controller) notify(s Snapshot) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(s)
	}
}
