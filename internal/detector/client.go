// Package detector talks to the face detection service used by the capture step.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/kozaktomas/hair-advisor/internal/capture"
	"github.com/kozaktomas/hair-advisor/internal/framing"
)

const (
	defaultURL      = "http://localhost:8000"
	defaultMinScore = 0.5
	defaultMaxSide  = 640
	defaultTimeout  = 10 * time.Second
	jpegQuality     = 85
)

// Options tune the client. Zero values use the defaults.
type Options struct {
	MinScore     float64
	MaxSide      int // frames are downscaled so that the longer side fits before upload
	Timeout      time.Duration
	LoadRetries  uint64
	LoadInterval time.Duration
	Logger       logrus.FieldLogger
}

// Client is a capture.DetectorLoader and capture.Detector backed by the detection service.
type Client struct {
	baseURL string
	client  *http.Client
	opts    Options
	log     logrus.FieldLogger
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts Options) *Client {
	if baseURL == "" {
		baseURL = defaultURL
	}
	if opts.MinScore <= 0 {
		opts.MinScore = defaultMinScore
	}
	if opts.MaxSide <= 0 {
		opts.MaxSide = defaultMaxSide
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.LoadInterval <= 0 {
		opts.LoadInterval = 500 * time.Millisecond
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		log:     log.WithField("component", "detector"),
	}
}

// faceDetection is a single face in the service response.
type faceDetection struct {
	BBox     []float64   `json:"bbox"` // [x1, y1, x2, y2]
	DetScore float64     `json:"det_score"`
	Kps      [][]float64 `json:"kps"`
}

// detectResponse is the response of POST /detect/face.
type detectResponse struct {
	Faces  []faceDetection `json:"faces"`
	Width  int             `json:"width"`
	Height int             `json:"height"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// Load waits until the service reports healthy. Failures wrap capture.ErrDetectorLoadFailed.
func (c *Client) Load(ctx context.Context) (capture.Detector, error) {
	b := retry.WithMaxRetries(c.opts.LoadRetries, retry.NewConstant(c.opts.LoadInterval))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := c.health(ctx); err != nil {
			c.log.WithError(err).Debug("detector not ready")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", capture.ErrDetectorLoadFailed, err)
	}
	return c, nil
}

func (c *Client) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var h healthResponse
	if err := json.Unmarshal(body, &h); err == nil && h.Status != "" && h.Status != "ok" {
		return fmt.Errorf("service status %q", h.Status)
	}
	return nil
}

// EstimateFaces uploads the frame and returns the faces in frame coordinates.
func (c *Client) EstimateFaces(ctx context.Context, frame capture.Frame) ([]framing.Face, error) {
	if frame.Image == nil {
		return nil, nil
	}

	img := downscale(frame.Image, c.opts.MaxSide)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("could not encode frame: %w", err)
	}

	body, err := c.postMultipartImage(ctx, "/detect/face", buf.Bytes())
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("could not parse response: %w", err)
	}

	sent := framing.Size{Width: float64(img.Bounds().Dx()), Height: float64(img.Bounds().Dy())}
	if resp.Width > 0 && resp.Height > 0 {
		sent = framing.Size{Width: float64(resp.Width), Height: float64(resp.Height)}
	}
	return toFaces(resp.Faces, sent, frame.Size(), c.opts.MinScore), nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func toFaces(dets []faceDetection, from, to framing.Size, minScore float64) []framing.Face {
	faces := make([]framing.Face, 0, len(dets))
	for _, d := range dets {
		if d.DetScore < minScore {
			continue
		}
		box, ok := framing.FaceBoxFromCorners(d.BBox)
		if !ok {
			continue
		}
		f := framing.Face{Box: framing.ScaleBox(box, from, to), Score: d.DetScore}
		for _, kp := range d.Kps {
			if len(kp) < 2 {
				continue
			}
			p := framing.ScaleBox(framing.FaceBox{XMin: kp[0], YMin: kp[1]}, from, to)
			f.Keypoints = append(f.Keypoints, framing.Keypoint{X: p.XMin, Y: p.YMin})
		}
		faces = append(faces, f)
	}
	return faces
}

func downscale(src image.Image, maxSide int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return src
	}
	var nw, nh int
	if w > h {
		nw = maxSide
		nh = h * maxSide / w
	} else {
		nh = maxSide
		nw = w * maxSide / h
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(nw, 1), max(nh, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// postMultipartImage posts the JPEG under the "file" field and returns the response body.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("could not create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("could not write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("could not close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
