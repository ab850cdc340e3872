package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"
)

// DefaultJPEGQuality is the encoding quality of captured stills.
const DefaultJPEGQuality = 80

// encodeStill converts a live frame to a JPEG still no larger than maxW x maxH.
// Aspect ratio is preserved; frames already within bounds are not scaled.
func encodeStill(frame Frame, maxW, maxH, quality int, now time.Time) (*Image, error) {
	if frame.Image == nil {
		return nil, ErrFrameNotReady
	}

	img := fitWithin(frame.Image, maxW, maxH)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("could not encode still: %w", err)
	}

	b := img.Bounds()
	return &Image{
		JPEG:       buf.Bytes(),
		Width:      b.Dx(),
		Height:     b.Dy(),
		FileName:   fmt.Sprintf("capture-%d.jpg", now.Unix()),
		CapturedAt: now,
	}, nil
}

func fitWithin(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxW <= 0 || maxH <= 0 || (w <= maxW && h <= maxH) {
		return src
	}

	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
