package framing

import (
	"errors"
	"math"
	"testing"
)

var (
	testFrame = Size{Width: 400, Height: 300}
	testGuide = Size{Width: 140, Height: 170}
)

func TestGuideRect(t *testing.T) {
	r := GuideRect(testFrame, testGuide)
	want := Rect{Left: 130, Top: 65, Right: 270, Bottom: 235}
	if r != want {
		t.Errorf("GuideRect() = %+v, want %+v", r, want)
	}
}

func TestFaceBoxFromCorners(t *testing.T) {
	tests := []struct {
		name   string
		bbox   []float64
		want   FaceBox
		wantOK bool
	}{
		{
			name:   "valid corners",
			bbox:   []float64{10, 20, 110, 140},
			want:   FaceBox{XMin: 10, YMin: 20, Width: 100, Height: 120},
			wantOK: true,
		},
		{
			name:   "too short",
			bbox:   []float64{10, 20, 110},
			wantOK: false,
		},
		{
			name:   "empty",
			bbox:   nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FaceBoxFromCorners(tt.bbox)
			if ok != tt.wantOK {
				t.Fatalf("FaceBoxFromCorners(%v) ok = %v, want %v", tt.bbox, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("FaceBoxFromCorners(%v) = %+v, want %+v", tt.bbox, got, tt.want)
			}
		})
	}
}

func TestFaceBoxCornersRoundTrip(t *testing.T) {
	b := FaceBox{XMin: 1.5, YMin: 2, Width: 30, Height: 40}
	got, ok := FaceBoxFromCorners(b.Corners())
	if !ok {
		t.Fatal("FaceBoxFromCorners() rejected Corners() output")
	}
	if got != b {
		t.Errorf("round trip = %+v, want %+v", got, b)
	}
}

func TestScaleBox(t *testing.T) {
	b := FaceBox{XMin: 100, YMin: 100, Width: 200, Height: 300}
	got := ScaleBox(b, Size{Width: 800, Height: 600}, Size{Width: 400, Height: 300})
	want := FaceBox{XMin: 50, YMin: 50, Width: 100, Height: 150}
	if got != want {
		t.Errorf("ScaleBox() = %+v, want %+v", got, want)
	}

	if got := ScaleBox(b, Size{}, testFrame); got != b {
		t.Errorf("ScaleBox() with empty source = %+v, want unchanged", got)
	}
}

func TestNewEvaluator(t *testing.T) {
	tests := []struct {
		name     string
		frame    Size
		guide    Size
		minRatio float64
		wantErr  bool
	}{
		{name: "default layout", frame: testFrame, guide: testGuide, minRatio: 0.05},
		{name: "guide equals frame", frame: testFrame, guide: testFrame, minRatio: 0.05},
		{name: "guide wider than frame", frame: testFrame, guide: Size{Width: 401, Height: 100}, minRatio: 0.05, wantErr: true},
		{name: "guide taller than frame", frame: testFrame, guide: Size{Width: 100, Height: 301}, minRatio: 0.05, wantErr: true},
		{name: "empty frame", frame: Size{}, guide: testGuide, minRatio: 0.05, wantErr: true},
		{name: "min ratio above guide ratio", frame: testFrame, guide: testGuide, minRatio: 0.5, wantErr: true},
		{name: "negative min ratio", frame: testFrame, guide: testGuide, minRatio: -0.1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEvaluator(tt.frame, tt.guide, tt.minRatio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEvaluator() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidGeometry) {
				t.Errorf("NewEvaluator() error = %v, want ErrInvalidGeometry", err)
			}
		})
	}
}

func TestEvaluatorGuideAreaRatio(t *testing.T) {
	e := DefaultEvaluator()
	want := (140.0 * 170.0) / (400.0 * 300.0)
	if math.Abs(e.GuideAreaRatio()-want) > 1e-9 {
		t.Errorf("GuideAreaRatio() = %v, want %v", e.GuideAreaRatio(), want)
	}
}

func TestEvaluatorClassify(t *testing.T) {
	e := DefaultEvaluator()

	// Frame area is 120000; min face area 6000, guide area 23800.
	centered := FaceBox{XMin: 150, YMin: 80, Width: 100, Height: 140} // area 14000, center (200,150)

	tests := []struct {
		name  string
		faces []FaceBox
		want  PositionStatus
	}{
		{
			name:  "no faces",
			faces: nil,
			want:  StatusNone,
		},
		{
			name:  "centered face",
			faces: []FaceBox{centered},
			want:  StatusPositioned,
		},
		{
			name:  "face off center",
			faces: []FaceBox{{XMin: 0, YMin: 0, Width: 100, Height: 140}},
			want:  StatusDetected,
		},
		{
			name:  "face too small",
			faces: []FaceBox{{XMin: 180, YMin: 130, Width: 40, Height: 40}},
			want:  StatusDetected,
		},
		{
			name:  "face larger than guide",
			faces: []FaceBox{{XMin: 100, YMin: 50, Width: 200, Height: 200}},
			want:  StatusDetected,
		},
		{
			name:  "exactly min size",
			faces: []FaceBox{{XMin: 160, YMin: 120, Width: 100, Height: 60}},
			want:  StatusPositioned,
		},
		{
			name:  "exactly guide size",
			faces: []FaceBox{{XMin: 130, YMin: 65, Width: 140, Height: 170}},
			want:  StatusPositioned,
		},
		{
			name:  "center on guide edge",
			faces: []FaceBox{{XMin: 220, YMin: 80, Width: 100, Height: 140}}, // center x = 270
			want:  StatusPositioned,
		},
		{
			name:  "center just outside guide edge",
			faces: []FaceBox{{XMin: 220.5, YMin: 80, Width: 100, Height: 140}},
			want:  StatusDetected,
		},
		{
			name: "one good face among bad ones",
			faces: []FaceBox{
				{XMin: 0, YMin: 0, Width: 30, Height: 30},
				centered,
			},
			want: StatusPositioned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Classify(tt.faces); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.faces, got, tt.want)
			}
		})
	}
}

func TestClassifyFaces(t *testing.T) {
	e := DefaultEvaluator()
	faces := []Face{{
		Box:       FaceBox{XMin: 150, YMin: 80, Width: 100, Height: 140},
		Keypoints: []Keypoint{{X: 180, Y: 120}, {X: 220, Y: 120}},
	}}
	if got := e.ClassifyFaces(faces); got != StatusPositioned {
		t.Errorf("ClassifyFaces() = %q, want %q", got, StatusPositioned)
	}
}

func TestClassifyEmptyIgnoresLayout(t *testing.T) {
	layouts := []struct{ frame, guide Size }{
		{testFrame, testGuide},
		{Size{}, Size{}},
		{Size{Width: 1920, Height: 1080}, Size{Width: 10, Height: 10}},
	}
	for _, l := range layouts {
		if got := Classify(nil, l.frame, l.guide, DefaultMinSizeRatio); got != StatusNone {
			t.Errorf("Classify(nil, %v, %v) = %q, want %q", l.frame, l.guide, got, StatusNone)
		}
	}
}

// Every box whose center is inside the guide and whose area ratio lies within
// [min, guide] must classify as positioned.
func TestClassifyPositionedGrid(t *testing.T) {
	e := DefaultEvaluator()
	g := e.GuideRect()
	minArea := e.MinSizeRatio * e.Frame.Area()
	maxArea := e.GuideAreaRatio() * e.Frame.Area()

	for cx := g.Left; cx <= g.Right; cx += 14 {
		for cy := g.Top; cy <= g.Bottom; cy += 17 {
			for _, area := range []float64{minArea, (minArea + maxArea) / 2, maxArea} {
				w := math.Sqrt(area)
				b := FaceBox{XMin: cx - w/2, YMin: cy - w/2, Width: w, Height: w}
				// Guard against floating point drift on the boundaries.
				ratio := b.Area() / e.Frame.Area()
				if ratio < e.MinSizeRatio || ratio > e.GuideAreaRatio() {
					continue
				}
				if got := e.Classify([]FaceBox{b}); got != StatusPositioned {
					t.Fatalf("Classify(%+v) = %q, want %q", b, got, StatusPositioned)
				}
			}
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	faces := []FaceBox{{XMin: 150, YMin: 80, Width: 100, Height: 140}}
	first := Classify(faces, testFrame, testGuide, DefaultMinSizeRatio)
	for range 100 {
		if got := Classify(faces, testFrame, testGuide, DefaultMinSizeRatio); got != first {
			t.Fatalf("Classify() = %q, previously %q", got, first)
		}
	}
}
