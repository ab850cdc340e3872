// Package framing decides whether a detected face is framed well enough inside the
// on-screen guide for a selfie to be captured.
package framing

// PositionStatus is the three-way classification of face framing quality.
type PositionStatus string

const (
	StatusNone       PositionStatus = "none"       // No face in the frame
	StatusDetected   PositionStatus = "detected"   // Face present, not correctly framed
	StatusPositioned PositionStatus = "positioned" // Face present and inside the guide
)

// Default capture geometry, in frame pixels.
const (
	DefaultFrameWidth   = 400
	DefaultFrameHeight  = 300
	DefaultGuideWidth   = 140
	DefaultGuideHeight  = 170
	DefaultMinSizeRatio = 0.05
)

// Size is a width/height pair in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns width*height.
func (s Size) Area() float64 {
	return s.Width * s.Height
}

// Empty reports whether either dimension is zero or negative.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Rect is an axis-aligned rectangle given by its corners.
type Rect struct {
	Left, Top, Right, Bottom float64
}

// Contains reports whether (x, y) lies inside the rectangle, edges included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.Left && x <= r.Right && y >= r.Top && y <= r.Bottom
}

// FaceBox is a detected face bounding box in frame-pixel coordinates.
type FaceBox struct {
	XMin   float64 `json:"x_min"`
	YMin   float64 `json:"y_min"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Keypoint is a 2D facial landmark in frame-pixel coordinates.
type Keypoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Face is one detector result: a bounding box plus its landmarks.
type Face struct {
	Box       FaceBox    `json:"box"`
	Keypoints []Keypoint `json:"keypoints,omitempty"`
	Score     float64    `json:"score,omitempty"`
}
