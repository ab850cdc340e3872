package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/hair-advisor/internal/capture"
	"github.com/kozaktomas/hair-advisor/internal/database/memory"
	"github.com/kozaktomas/hair-advisor/internal/framing"
	"github.com/kozaktomas/hair-advisor/internal/logging"
	"github.com/kozaktomas/hair-advisor/internal/quiz"
)

type noDetector struct{}

func (noDetector) EstimateFaces(context.Context, capture.Frame) ([]framing.Face, error) {
	return nil, nil
}

func (noDetector) Close() error { return nil }

func testSessionConfig(ttl time.Duration) SessionConfig {
	return SessionConfig{
		Catalog: quiz.DefaultCatalog(),
		Loader: capture.DetectorLoaderFunc(func(context.Context) (capture.Detector, error) {
			return noDetector{}, nil
		}),
		Capture: capture.Options{ReadyTimeout: time.Minute},
		TTL:     ttl,
		Logger:  logging.Discard(),
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://advisor.example.com", " "})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{"whitelisted", http.MethodGet, "https://advisor.example.com", "https://advisor.example.com", http.StatusTeapot},
		{"localhost", http.MethodGet, "http://localhost:5173", "http://localhost:5173", http.StatusTeapot},
		{"localhost lookalike", http.MethodGet, "http://localhost.evil.com", "", http.StatusTeapot},
		{"unknown", http.MethodGet, "https://evil.com", "", http.StatusTeapot},
		{"no origin", http.MethodGet, "", "", http.StatusTeapot},
		{"preflight", http.MethodOptions, "https://advisor.example.com", "https://advisor.example.com", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestOriginChecker(t *testing.T) {
	check := OriginChecker([]string{"https://advisor.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(req), "non-browser clients send no origin")

	req.Header.Set("Origin", "https://advisor.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.com")
	assert.False(t, check(req))
}

func TestSessionManagerCreateGet(t *testing.T) {
	sm := NewSessionManager(context.Background(), testSessionConfig(time.Hour), nil)
	defer sm.Stop()

	s, err := sm.CreateSession(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.True(t, s.ExpiresAt().After(time.Now()))
	assert.Equal(t, 0, s.Flow.Session().Active())

	assert.Same(t, s, sm.GetSession(context.Background(), s.ID))
	assert.Nil(t, sm.GetSession(context.Background(), "unknown"))

	sm.DeleteSession(context.Background(), s.ID)
	assert.Nil(t, sm.GetSession(context.Background(), s.ID))
	assert.Zero(t, sm.Len())
}

func TestSessionManagerExpiry(t *testing.T) {
	store := memory.NewQuizSessionStore()
	sm := NewSessionManager(context.Background(), testSessionConfig(time.Minute), store)
	defer sm.Stop()

	now := time.Now()
	sm.now = func() time.Time { return now }

	s, err := sm.CreateSession(context.Background())
	require.NoError(t, err)
	events := s.Flow.AddListener()
	require.Equal(t, 1, store.Len())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, sm.CleanupExpired(context.Background()))
	assert.Zero(t, sm.Len())
	assert.Zero(t, store.Len())

	// The flow was closed: the listener drains and ends.
	for range events {
	}
}

func TestSessionManagerGetExpired(t *testing.T) {
	sm := NewSessionManager(context.Background(), testSessionConfig(time.Minute), nil)
	defer sm.Stop()

	now := time.Now()
	sm.now = func() time.Time { return now }

	s, err := sm.CreateSession(context.Background())
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	require.NotNil(t, sm.GetSession(context.Background(), s.ID), "access extends the session")

	now = now.Add(45 * time.Second)
	require.NotNil(t, sm.GetSession(context.Background(), s.ID))

	now = now.Add(2 * time.Minute)
	assert.Nil(t, sm.GetSession(context.Background(), s.ID))
	assert.Zero(t, sm.Len())
}

func TestSessionManagerRestore(t *testing.T) {
	store := memory.NewQuizSessionStore()
	first := NewSessionManager(context.Background(), testSessionConfig(time.Hour), store)

	s, err := first.CreateSession(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Flow.SkipCapture(context.Background()))
	require.NoError(t, s.Flow.Select("Short"))
	first.Persist(context.Background(), s)
	first.Stop()

	second := NewSessionManager(context.Background(), testSessionConfig(time.Hour), store)
	defer second.Stop()

	restored := second.GetSession(context.Background(), s.ID)
	require.NotNil(t, restored)
	assert.Equal(t, 1, restored.Flow.Session().Active())
	assert.Equal(t, "Short", restored.Flow.Session().Answers()["length"])
	assert.Equal(t, s.CreatedAt.Unix(), restored.CreatedAt.Unix())

	store.GetError = assert.AnError
	assert.Nil(t, second.GetSession(context.Background(), "other"))
}

func TestRequireSession(t *testing.T) {
	sm := NewSessionManager(context.Background(), testSessionConfig(time.Hour), nil)
	defer sm.Stop()
	s, err := sm.CreateSession(context.Background())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.With(RequireSession(sm)).Get("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		got := GetSessionFromContext(r.Context())
		assert.Same(t, s, got)
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+s.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Nil(t, GetSessionFromContext(context.Background()))
	assert.Same(t, s, GetSessionFromContext(SetSessionInContext(context.Background(), s)))
}
