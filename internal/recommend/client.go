// Package recommend is the client of the recommendation service's analyze and chat endpoints.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/hair-advisor/internal/capture"
	"github.com/kozaktomas/hair-advisor/internal/profile"
)

// Wire names shared with the recommendation service.
const (
	EndpointPath     = "/analyze_and_recommend"
	ChatPath         = "/chat"
	FieldProfile     = "quiz_data_json"
	FieldImage       = "file"
	DefaultImageName = "capture.jpg"
)

const (
	defaultBaseURL = "http://localhost:5000"
	defaultRetries = 2
	defaultBackoff = 200 * time.Millisecond
	defaultTimeout = 60 * time.Second
)

var (
	// ErrSubmissionFailed is returned for any submission that did not produce a recommendation.
	ErrSubmissionFailed = errors.New("submission failed")
	// ErrChatFailed is returned for any chat message that did not produce a reply.
	ErrChatFailed = errors.New("chat failed")
)

// Advice is the structured recommendation.
type Advice struct {
	RecommendedLine string `json:"recommended_line"`
	Reason          string `json:"reason"`
	ProductRoutine  string `json:"product_routine"`
	Alternative     string `json:"alternative"`
}

// Recommendation is the service response.
type Recommendation struct {
	UserID        string              `json:"user_id"`
	ImageAnalysis string              `json:"image_analysis"`
	QuizData      profile.HairProfile `json:"quiz_data"`
	Advice        Advice              `json:"recommendation"`
}

// ChatRequest is a follow-up question about an earlier recommendation.
type ChatRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Message string `json:"message" validate:"required,max=2000"`
}

// ChatReply is the service answer to a ChatRequest.
type ChatReply struct {
	UserID   string `json:"user_id"`
	Response string `json:"response"`
}

// Options tune the client. Zero values use the defaults.
type Options struct {
	Retries int // transport retries after the first attempt; negative disables retrying
	Backoff time.Duration
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

// Client submits hair profiles for analysis.
type Client struct {
	baseURL string
	client  *http.Client
	retries uint64
	backoff time.Duration
	log     logrus.FieldLogger
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts Options) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	} else if opts.Retries == 0 {
		opts.Retries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: opts.Timeout},
		retries: uint64(opts.Retries),
		backoff: opts.Backoff,
		log:     log.WithField("component", "recommend"),
	}
}

// Submit sends the profile and the optional still. Transport errors are retried; an HTTP
// error status fails immediately. All failures wrap ErrSubmissionFailed.
func (c *Client) Submit(ctx context.Context, p profile.HairProfile, img *capture.Image) (*Recommendation, error) {
	body, contentType, err := encodeForm(p, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	var respBody []byte
	attempt := 0
	b := retry.WithMaxRetries(c.retries, retry.NewExponential(c.backoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		data, err := c.post(ctx, EndpointPath, body, contentType)
		var netErr *transportError
		if errors.As(err, &netErr) && ctx.Err() == nil {
			c.log.WithError(err).WithField("attempt", attempt).Warn("submission request failed, retrying")
			return retry.RetryableError(err)
		}
		respBody = data
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	var rec Recommendation
	if err := json.Unmarshal(respBody, &rec); err != nil {
		return nil, fmt.Errorf("%w: could not parse response: %w", ErrSubmissionFailed, err)
	}
	return &rec, nil
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return "request failed: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// Chat asks a follow-up question for the user a recommendation was made for.
// It is not retried. All failures wrap ErrChatFailed.
func (c *Client) Chat(ctx context.Context, userID, message string) (string, error) {
	body, err := json.Marshal(ChatRequest{UserID: userID, Message: message})
	if err != nil {
		return "", fmt.Errorf("%w: could not encode request: %w", ErrChatFailed, err)
	}

	data, err := c.post(ctx, ChatPath, body, "application/json")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrChatFailed, err)
	}

	var reply ChatReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", fmt.Errorf("%w: could not parse response: %w", ErrChatFailed, err)
	}
	return reply.Response, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// encodeForm builds the multipart body: the profile JSON and, if present, the JPEG still.
func encodeForm(p profile.HairProfile, img *capture.Image) ([]byte, string, error) {
	profileJSON, err := json.Marshal(p)
	if err != nil {
		return nil, "", fmt.Errorf("could not encode profile: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField(FieldProfile, string(profileJSON)); err != nil {
		return nil, "", fmt.Errorf("could not write profile field: %w", err)
	}

	if img != nil && len(img.JPEG) > 0 {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldImage, DefaultImageName))
		h.Set("Content-Type", img.ContentType())
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("could not create image part: %w", err)
		}
		if _, err := part.Write(img.JPEG); err != nil {
			return nil, "", fmt.Errorf("could not write image data: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("could not close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
