package advisor

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func TestPrepareImage(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		maxSize    int
		wantWidth  int
		wantHeight int
	}{
		{"small jpeg unchanged", encodeJPEG(createTestImage(100, 80, color.White)), 200, 100, 80},
		{"landscape scaled", encodeJPEG(createTestImage(1600, 800, color.Black)), 800, 800, 400},
		{"portrait scaled", encodePNG(createTestImage(300, 1200, color.White)), 600, 150, 600},
		{"png converted", encodePNG(createTestImage(50, 50, color.Black)), 800, 50, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := PrepareImage(tt.data, tt.maxSize)
			if err != nil {
				t.Fatalf("PrepareImage() error = %v", err)
			}
			cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("failed to decode result: %v", err)
			}
			if format != "jpeg" {
				t.Errorf("format = %s, want jpeg", format)
			}
			if cfg.Width != tt.wantWidth || cfg.Height != tt.wantHeight {
				t.Errorf("size = %dx%d, want %dx%d", cfg.Width, cfg.Height, tt.wantWidth, tt.wantHeight)
			}
		})
	}
}

func TestPrepareImageInvalid(t *testing.T) {
	_, err := PrepareImage([]byte("not an image"), 800)
	if !errors.Is(err, ErrInvalidImage) {
		t.Errorf("PrepareImage() error = %v, want ErrInvalidImage", err)
	}
}
