package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // decoders for FileSource
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/hair-advisor/internal/framing"
)

// FrameSource acquires a live camera stream.
type FrameSource interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream delivers frames until closed. Next blocks until a frame is available or ctx is done.
type Stream interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Detector estimates face boxes on a frame, in the frame's own pixel coordinates.
type Detector interface {
	EstimateFaces(ctx context.Context, frame Frame) ([]framing.Face, error)
	Close() error
}

// DetectorLoader prepares a Detector.
type DetectorLoader interface {
	Load(ctx context.Context) (Detector, error)
}

// DetectorLoaderFunc adapts a function to DetectorLoader.
type DetectorLoaderFunc func(ctx context.Context) (Detector, error)

// Load calls f.
func (f DetectorLoaderFunc) Load(ctx context.Context) (Detector, error) {
	return f(ctx)
}

// sourceError maps an acquisition error onto ErrPermissionDenied or ErrDeviceUnavailable.
func sourceError(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrDeviceUnavailable):
		return err
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
}

// PushSource is a FrameSource fed from outside, typically by a websocket connection
// relaying the browser camera. Frames pushed while the consumer is busy are dropped.
type PushSource struct {
	mu      sync.Mutex
	frames  chan Frame
	stream  *pushStream
	pending error
	seq     uint64
}

// NewPushSource creates a source buffering up to buffer frames.
func NewPushSource(buffer int) *PushSource {
	if buffer < 1 {
		buffer = 1
	}
	return &PushSource{frames: make(chan Frame, buffer)}
}

// Open returns a stream over pushed frames. A failure reported before Open is returned here once.
func (s *PushSource) Open(ctx context.Context, _ Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		err := s.pending
		s.pending = nil
		return nil, err
	}

	// Drop frames left over from a previous stream.
	for len(s.frames) > 0 {
		<-s.frames
	}

	st := &pushStream{src: s, failed: make(chan struct{}), closed: make(chan struct{})}
	s.stream = st
	return st, nil
}

// Push offers an image to the open stream. It returns false when no stream is open
// or the buffer is full.
func (s *PushSource) Push(img image.Image) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return false
	}
	s.seq++
	select {
	case s.frames <- Frame{Image: img, Seq: s.seq, At: time.Now()}:
		return true
	default:
		return false
	}
}

// Fail reports that the camera could not be used, e.g. the user denied permission.
// The error reaches the open stream. With no stream open only a permission denial is
// kept for the next Open; other failures describe a camera nobody is using and are dropped.
func (s *PushSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		if errors.Is(err, ErrPermissionDenied) {
			s.pending = err
		}
		return
	}
	s.stream.fail(err)
}

// Active reports whether a stream is currently open.
func (s *PushSource) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

type pushStream struct {
	src *PushSource

	once   sync.Once
	err    error
	failed chan struct{}
	closed chan struct{}
	close  sync.Once
}

func (p *pushStream) fail(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.failed)
	})
}

func (p *pushStream) Next(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-p.closed:
		return Frame{}, io.EOF
	case <-p.failed:
		return Frame{}, p.err
	case f := <-p.src.frames:
		return f, nil
	}
}

func (p *pushStream) Close() error {
	p.close.Do(func() {
		close(p.closed)
		p.src.mu.Lock()
		if p.src.stream == p {
			p.src.stream = nil
		}
		p.src.mu.Unlock()
	})
	return nil
}

// FileSource replays a still image file as a live feed at a fixed frame rate.
type FileSource struct {
	Path      string
	FrameRate int
}

// Open decodes the file. A permission error maps to ErrPermissionDenied, anything else
// to ErrDeviceUnavailable.
func (s *FileSource) Open(_ context.Context, _ Constraints) (Stream, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, sourceError(fmt.Errorf("could not open %s: %w", s.Path, err))
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: could not decode %s: %w", ErrDeviceUnavailable, s.Path, err)
	}

	rate := s.FrameRate
	if rate <= 0 {
		rate = 10
	}
	return &fileStream{img: img, ticker: time.NewTicker(time.Second / time.Duration(rate))}, nil
}

type fileStream struct {
	img    image.Image
	ticker *time.Ticker
	seq    uint64
}

func (f *fileStream) Next(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case t := <-f.ticker.C:
		f.seq++
		return Frame{Image: f.img, Seq: f.seq, At: t}, nil
	}
}

func (f *fileStream) Close() error {
	f.ticker.Stop()
	return nil
}
