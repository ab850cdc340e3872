package framing

import (
	"errors"
	"fmt"
)

// ErrInvalidGeometry is returned when the frame or guide sizes cannot describe a valid capture layout.
var ErrInvalidGeometry = errors.New("invalid capture geometry")

// Center returns the center point of the box.
func (b FaceBox) Center() (float64, float64) {
	return b.XMin + b.Width/2, b.YMin + b.Height/2
}

// Area returns the box area in square pixels.
func (b FaceBox) Area() float64 {
	return b.Width * b.Height
}

// Corners converts the box to [x1, y1, x2, y2] corner format.
func (b FaceBox) Corners() []float64 {
	return []float64{b.XMin, b.YMin, b.XMin + b.Width, b.YMin + b.Height}
}

// FaceBoxFromCorners converts a detector bbox [x1, y1, x2, y2] to a FaceBox.
// Returns false if the slice does not hold exactly four coordinates.
func FaceBoxFromCorners(bbox []float64) (FaceBox, bool) {
	if len(bbox) != 4 {
		return FaceBox{}, false
	}
	return FaceBox{
		XMin:   bbox[0],
		YMin:   bbox[1],
		Width:  bbox[2] - bbox[0],
		Height: bbox[3] - bbox[1],
	}, true
}

// ScaleBox maps a box detected on an image of size from into the coordinate space of size to.
// The box is returned unchanged if either size is empty.
func ScaleBox(b FaceBox, from, to Size) FaceBox {
	if from.Empty() || to.Empty() {
		return b
	}
	sx := to.Width / from.Width
	sy := to.Height / from.Height
	return FaceBox{
		XMin:   b.XMin * sx,
		YMin:   b.YMin * sy,
		Width:  b.Width * sx,
		Height: b.Height * sy,
	}
}

// GuideRect returns the guide rectangle centered in the frame.
func GuideRect(frame, guide Size) Rect {
	cx := frame.Width / 2
	cy := frame.Height / 2
	return Rect{
		Left:   cx - guide.Width/2,
		Top:    cy - guide.Height/2,
		Right:  cx + guide.Width/2,
		Bottom: cy + guide.Height/2,
	}
}

// Evaluator classifies detected faces against a fixed frame and guide layout.
type Evaluator struct {
	Frame        Size
	Guide        Size
	MinSizeRatio float64

	guide Rect
}

// NewEvaluator validates the layout and returns an evaluator for it.
// The guide must fit inside the frame and the minimum size ratio may not exceed the guide's own area ratio.
func NewEvaluator(frame, guide Size, minSizeRatio float64) (*Evaluator, error) {
	if frame.Empty() || guide.Empty() {
		return nil, fmt.Errorf("%w: frame %vx%v, guide %vx%v", ErrInvalidGeometry, frame.Width, frame.Height, guide.Width, guide.Height)
	}
	if guide.Width > frame.Width || guide.Height > frame.Height {
		return nil, fmt.Errorf("%w: guide %vx%v exceeds frame %vx%v", ErrInvalidGeometry, guide.Width, guide.Height, frame.Width, frame.Height)
	}
	if minSizeRatio < 0 || minSizeRatio > guide.Area()/frame.Area() {
		return nil, fmt.Errorf("%w: min size ratio %v outside [0, %v]", ErrInvalidGeometry, minSizeRatio, guide.Area()/frame.Area())
	}
	return &Evaluator{
		Frame:        frame,
		Guide:        guide,
		MinSizeRatio: minSizeRatio,
		guide:        GuideRect(frame, guide),
	}, nil
}

// DefaultEvaluator returns the evaluator for the default 400x300 frame with a 140x170 guide.
func DefaultEvaluator() *Evaluator {
	e, err := NewEvaluator(
		Size{Width: DefaultFrameWidth, Height: DefaultFrameHeight},
		Size{Width: DefaultGuideWidth, Height: DefaultGuideHeight},
		DefaultMinSizeRatio,
	)
	if err != nil {
		panic("default capture geometry is invalid: " + err.Error())
	}
	return e
}

// GuideAreaRatio is the guide area as a fraction of the frame area.
func (e *Evaluator) GuideAreaRatio() float64 {
	return e.Guide.Area() / e.Frame.Area()
}

// GuideRect returns the guide rectangle in frame coordinates.
func (e *Evaluator) GuideRect() Rect {
	return e.guide
}

// WellPositioned reports whether the face center lies within the guide and the face
// is neither smaller than the minimum ratio nor larger than the guide silhouette.
func (e *Evaluator) WellPositioned(b FaceBox) bool {
	cx, cy := b.Center()
	if !e.guide.Contains(cx, cy) {
		return false
	}
	ratio := b.Area() / e.Frame.Area()
	return ratio >= e.MinSizeRatio && ratio <= e.GuideAreaRatio()
}

// Classify returns StatusNone for no faces, StatusPositioned if any face is well positioned,
// and StatusDetected otherwise.
func (e *Evaluator) Classify(faces []FaceBox) PositionStatus {
	if len(faces) == 0 {
		return StatusNone
	}
	for _, f := range faces {
		if e.WellPositioned(f) {
			return StatusPositioned
		}
	}
	return StatusDetected
}

// ClassifyFaces is Classify over full detector results.
func (e *Evaluator) ClassifyFaces(faces []Face) PositionStatus {
	boxes := make([]FaceBox, len(faces))
	for i, f := range faces {
		boxes[i] = f.Box
	}
	return e.Classify(boxes)
}

// Classify evaluates faces against an ad-hoc layout without validating it.
// An empty face list always yields StatusNone.
func Classify(faces []FaceBox, frame, guide Size, minSizeRatio float64) PositionStatus {
	e := &Evaluator{
		Frame:        frame,
		Guide:        guide,
		MinSizeRatio: minSizeRatio,
		guide:        GuideRect(frame, guide),
	}
	if len(faces) > 0 && frame.Empty() {
		return StatusDetected
	}
	return e.Classify(faces)
}
