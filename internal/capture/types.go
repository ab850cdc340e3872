// Package capture runs the camera side of the quiz: it classifies live frames against the
// framing guide and produces a still selfie once the face is positioned.
package capture

import (
	"encoding/base64"
	"errors"
	"image"
	"time"

	"github.com/kozaktomas/hair-advisor/internal/framing"
)

// State is the lifecycle state of a Controller.
type State string

// State constants. StateStopped means the controller was torn down and holds no camera.
const (
	StateStopped      State = "stopped"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateCapturing    State = "capturing"
	StatePreviewing   State = "previewing"
	StateError        State = "error"
)

// Errors reported by the controller and its collaborators.
var (
	ErrPermissionDenied   = errors.New("camera permission denied")
	ErrDeviceUnavailable  = errors.New("camera device unavailable")
	ErrDetectorLoadFailed = errors.New("face detector failed to load")
	ErrFrameTimeout       = errors.New("camera did not deliver a frame in time")

	ErrNotReady       = errors.New("capture controller not ready")
	ErrFrameNotReady  = errors.New("no live frame to capture")
	ErrNotPositioned  = errors.New("face is not positioned inside the guide")
	ErrAlreadyRunning = errors.New("capture controller already running")
)

// Constraints describe the requested camera stream.
type Constraints struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FacingMode string `json:"facing_mode"` // "user" for the front camera
}

// Frame is one image delivered by a live stream.
type Frame struct {
	Image image.Image
	Seq   uint64
	At    time.Time
}

// Size returns the frame dimensions; a frame without an image has zero size.
func (f Frame) Size() framing.Size {
	if f.Image == nil {
		return framing.Size{}
	}
	b := f.Image.Bounds()
	return framing.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
}

// Image is a captured still in its transmittable JPEG form.
type Image struct {
	JPEG       []byte    `json:"-"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	FileName   string    `json:"file_name"`
	CapturedAt time.Time `json:"captured_at"`
}

// ContentType is always image/jpeg.
func (i *Image) ContentType() string {
	return "image/jpeg"
}

// DataURL returns the still as a data: URL for previews.
func (i *Image) DataURL() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(i.JPEG)
}

// Result is the outcome of the capture step: either a captured still or an explicit skip.
// The zero Result means the step has no outcome yet.
type Result struct {
	image   *Image
	skipped bool
}

// Captured wraps a still image.
func Captured(img *Image) Result {
	return Result{image: img}
}

// Skipped is the outcome of bypassing the capture.
func Skipped() Result {
	return Result{skipped: true}
}

// Image returns the captured still, if any.
func (r Result) Image() (*Image, bool) {
	return r.image, r.image != nil
}

// IsSkipped reports whether the capture was skipped.
func (r Result) IsSkipped() bool {
	return r.skipped
}

// IsZero reports whether there is no outcome yet.
func (r Result) IsZero() bool {
	return r.image == nil && !r.skipped
}

// Snapshot is a consistent view of the controller state.
type Snapshot struct {
	State    State                  `json:"state"`
	Status   framing.PositionStatus `json:"status"`
	Degraded bool                   `json:"degraded"`
	Err      error                  `json:"-"`
	Message  string                 `json:"error,omitempty"`
	HasImage bool                   `json:"has_image"`
	Frames   uint64                 `json:"frames"`
}
