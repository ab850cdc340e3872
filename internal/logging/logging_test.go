package logging

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/hair-advisor/internal/config"
)

func TestNew(t *testing.T) {
	log, err := New(config.LogConfig{Level: "debug"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	_, err = New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWithFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "app.log")
	log, err := New(config.LogConfig{Level: "info", File: file, MaxSizeMB: 1})
	require.NoError(t, err)
	log.Info("hello")
	assert.FileExists(t, file)
}

func TestRequestLogger(t *testing.T) {
	log, hook := test.NewNullLogger()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })

	tests := []struct {
		path  string
		level logrus.Level
		code  int
	}{
		{"/ok", logrus.InfoLevel, http.StatusOK},
		{"/missing", logrus.WarnLevel, http.StatusNotFound},
	}

	for _, tt := range tests {
		hook.Reset()
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

		entry := hook.LastEntry()
		require.NotNil(t, entry, tt.path)
		assert.Equal(t, tt.level, entry.Level, tt.path)
		assert.Equal(t, tt.code, entry.Data["status"], tt.path)
		assert.NotEmpty(t, entry.Data["request_id"], tt.path)
	}
}

func TestDiscard(t *testing.T) {
	assert.Equal(t, io.Discard, Discard().Out)
}
