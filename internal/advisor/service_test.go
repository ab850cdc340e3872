package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/hair-advisor/internal/config"
	"github.com/kozaktomas/hair-advisor/internal/database/memory"
	"github.com/kozaktomas/hair-advisor/internal/logging"
	"github.com/kozaktomas/hair-advisor/internal/profile"
	"github.com/kozaktomas/hair-advisor/internal/recommend"
)

const adviceText = `Recommended line: Gliss Oil Nutritive
Reason: Long hair with dry ends
Product routine: Shampoo + Conditioner + Oil
Alternative: Supreme Length`

type fakeProvider struct {
	mu       sync.Mutex
	prompts  []string
	images   [][]byte
	embedded []string
	imageErr error
	genErr   error
	embedErr error
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-1" }

func (p *fakeProvider) DescribeImage(_ context.Context, data []byte, instruction string) (Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.images = append(p.images, data)
	p.prompts = append(p.prompts, instruction)
	if p.imageErr != nil {
		return Completion{}, p.imageErr
	}
	return Completion{Text: "Dry, frizzy lengths", InputTokens: 300, OutputTokens: 50}, nil
}

func (p *fakeProvider) Generate(_ context.Context, prompt string) (Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	if p.genErr != nil {
		return Completion{}, p.genErr
	}
	return Completion{Text: adviceText, InputTokens: 700, OutputTokens: 150}, nil
}

// embedTerms are the dimensions of the fake embedding space, after a constant bias.
var embedTerms = []string{"color", "heat", "oil", "volume", "mask", "trim"}

func (p *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.embedded = append(p.embedded, texts...)
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = termVector(t)
	}
	return out, nil
}

func termVector(text string) []float32 {
	text = strings.ToLower(text)
	v := make([]float32, len(embedTerms)+1)
	v[0] = 0.1
	for i, term := range embedTerms {
		v[i+1] = float32(strings.Count(text, term))
	}
	return v
}

func newTestAdvisor(p Provider) (*Advisor, *memory.SubmissionStore) {
	store := memory.NewSubmissionStore()
	a := New(p, Options{
		Store:   store,
		Pricing: config.RequestPricing{Input: 0.30, Output: 2.50},
		Logger:  logging.Discard(),
		Now:     func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	return a, store
}

func TestRecommendWithoutImage(t *testing.T) {
	p := &fakeProvider{}
	a, store := newTestAdvisor(p)

	res, err := a.Recommend(context.Background(), []byte(`{ "length": "long",  "split_ends": true }`), nil)
	require.NoError(t, err)

	assert.Equal(t, NoImageAnalysis, res.ImageAnalysis)
	assert.JSONEq(t, `{"length":"long","split_ends":true}`, string(res.QuizData))
	require.NotNil(t, res.Recommendation.RecommendedLine)
	assert.Equal(t, "Gliss Oil Nutritive", *res.Recommendation.RecommendedLine)
	assert.NotEmpty(t, res.UserID)

	require.Len(t, p.prompts, 1)
	assert.Contains(t, p.prompts[0], `Hair quiz answers:
{"length":"long","split_ends":true}`)
	assert.Empty(t, p.images)

	saved, err := store.Get(context.Background(), res.UserID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.False(t, saved.HasImage)
	assert.Equal(t, "Supreme Length", saved.Alternative)
	assert.Equal(t, adviceText, saved.RawAdvice)
	assert.Equal(t, 700, saved.InputTokens)
	assert.InDelta(t, (700*0.30+150*2.50)/1_000_000, saved.Cost, 1e-12)
}

func TestRecommendWithImage(t *testing.T) {
	p := &fakeProvider{}
	a, store := newTestAdvisor(p)

	img := encodePNG(createTestImage(1600, 1200, color.White))
	res, err := a.Recommend(context.Background(), []byte(`{}`), img)
	require.NoError(t, err)

	assert.Equal(t, "Dry, frizzy lengths", res.ImageAnalysis)
	require.Len(t, p.images, 1)
	assert.Equal(t, []byte{0xff, 0xd8}, p.images[0][:2], "image is sent as JPEG")
	assert.Equal(t, ImageInstruction, p.prompts[0])
	assert.Contains(t, p.prompts[1], "Image analysis:\nDry, frizzy lengths")

	saved, _ := store.Get(context.Background(), res.UserID)
	require.NotNil(t, saved)
	assert.True(t, saved.HasImage)
	assert.Equal(t, 1000, saved.InputTokens)
	assert.Equal(t, 200, saved.OutputTokens)
}

func TestRecommendErrors(t *testing.T) {
	a, store := newTestAdvisor(&fakeProvider{})

	_, err := a.Recommend(context.Background(), []byte(`{"length":`), nil)
	assert.ErrorIs(t, err, ErrInvalidQuizData)

	_, err = a.Recommend(context.Background(), []byte(`{}`), []byte("garbage"))
	assert.ErrorIs(t, err, ErrInvalidImage)

	boom := errors.New("quota exceeded")
	a, _ = newTestAdvisor(&fakeProvider{genErr: boom})
	_, err = a.Recommend(context.Background(), []byte(`{}`), nil)
	assert.ErrorIs(t, err, boom)

	n, _ := store.Count(context.Background())
	assert.Zero(t, n)
}

func TestRecommendWithoutStore(t *testing.T) {
	a := New(&fakeProvider{}, Options{Logger: logging.Discard()})
	res, err := a.Recommend(context.Background(), []byte(`{"heat":"Often"}`), nil)
	require.NoError(t, err)
	assert.NotNil(t, res.Recommendation.ProductRoutine)
}

func newTestRouter(t *testing.T, p Provider) (http.Handler, *memory.SubmissionStore) {
	t.Helper()
	a, store := newTestAdvisor(p)
	r := chi.NewRouter()
	NewHandler(a, store, logging.Discard()).Routes(r)
	return r, store
}

func multipartRequest(t *testing.T, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		fw, err := mw.CreateFormFile(recommend.FieldImage, "selfie.png")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, recommend.EndpointPath, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAnalyzeAndRecommendHandler(t *testing.T) {
	router, _ := newTestRouter(t, &fakeProvider{})

	tests := []struct {
		name       string
		fields     map[string]string
		image      []byte
		wantStatus int
		wantError  string
	}{
		{
			name:       "quiz only",
			fields:     map[string]string{recommend.FieldProfile: `{"length":"short"}`},
			wantStatus: http.StatusOK,
		},
		{
			name:       "quiz and image",
			fields:     map[string]string{recommend.FieldProfile: `{"length":"short"}`},
			image:      encodeJPEG(createTestImage(64, 64, color.Black)),
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid quiz json",
			fields:     map[string]string{recommend.FieldProfile: `not json`},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid JSON for quiz data",
		},
		{
			name:       "missing quiz field",
			fields:     map[string]string{"other": "x"},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "undecodable image",
			fields:     map[string]string{recommend.FieldProfile: `{}`},
			image:      []byte("nope"),
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, multipartRequest(t, tt.fields, tt.image))

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantError != "" {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantError, body["error"])
			}
		})
	}
}

func TestHandlerRoundTripWithClient(t *testing.T) {
	router, store := newTestRouter(t, &fakeProvider{})
	srv := httptest.NewServer(router)
	defer srv.Close()

	client := recommend.NewClient(srv.URL, recommend.Options{Retries: -1, Logger: logging.Discard()})
	rec, err := client.Submit(context.Background(), testProfile(), nil)
	require.NoError(t, err)

	assert.Equal(t, NoImageAnalysis, rec.ImageAnalysis)
	assert.Equal(t, "Gliss Oil Nutritive", rec.Advice.RecommendedLine)
	assert.Equal(t, "long", *rec.QuizData.Length)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubmissionsEndpoints(t *testing.T) {
	p := &fakeProvider{}
	router, _ := newTestRouter(t, p)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, map[string]string{recommend.FieldProfile: `{"a":1}`}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var res Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/submissions/"+res.UserID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got submissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Gliss Oil Nutritive", got.RecommendedLine)
	assert.Equal(t, "2026-01-02T03:04:05Z", got.CreatedAt)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/submissions/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/submissions?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Submissions []submissionResponse `json:"submissions"`
		Total       int                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
	assert.Len(t, list.Submissions, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/submissions?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.JSONEq(t, `{"status":"ok","provider":"fake","model":"fake-1"}`, string(body))
}

func TestSubmissionsWithoutPersistence(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(New(&fakeProvider{}, Options{Logger: logging.Discard()}), nil, logging.Discard()).Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/submissions", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func testProfile() profile.HairProfile {
	return profile.Normalize(profile.Answers{
		profile.QuestionLength:  "Long",
		profile.QuestionDryness: "Very dry",
	})
}
