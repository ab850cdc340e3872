package handlers

import (
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/hair-advisor/internal/capture"
	"github.com/kozaktomas/hair-advisor/internal/web/middleware"
)

// CaptureHandler handles the selfie step.
type CaptureHandler struct {
	sessions *middleware.SessionManager
	log      logrus.FieldLogger
}

func NewCaptureHandler(sm *middleware.SessionManager, log logrus.FieldLogger) *CaptureHandler {
	return &CaptureHandler{sessions: sm, log: log}
}

type imageResponse struct {
	*capture.Image
	DataURL string `json:"data_url"`
}

type captureResponse struct {
	Image imageResponse `json:"image"`
	sessionResponse
}

// Take captures the still when the face is well positioned.
func (h *CaptureHandler) Take(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())

	img, err := s.Flow.Capture()
	if err != nil {
		respondDomainError(w, err)
		return
	}
	h.log.WithFields(logrus.Fields{"session": s.ID, "width": img.Width, "height": img.Height}).Info("still captured")
	h.sessions.Persist(r.Context(), s)
	respondJSON(w, http.StatusOK, captureResponse{
		Image:           imageResponse{Image: img, DataURL: img.DataURL()},
		sessionResponse: newSessionResponse(s),
	})
}

// Retry discards the still and restarts the camera.
func (h *CaptureHandler) Retry(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())

	if err := s.Flow.RetryCapture(); err != nil {
		respondDomainError(w, err)
		return
	}
	h.sessions.Persist(r.Context(), s)
	respondJSON(w, http.StatusOK, newSessionResponse(s))
}

// Skip continues without a photo.
func (h *CaptureHandler) Skip(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())

	if err := s.Flow.SkipCapture(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}
	h.sessions.Persist(r.Context(), s)
	respondJSON(w, http.StatusOK, newSessionResponse(s))
}

// Image returns the captured still as JPEG.
func (h *CaptureHandler) Image(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())

	img, ok := s.Flow.Session().Capture().Image()
	if !ok || len(img.JPEG) == 0 {
		respondError(w, http.StatusNotFound, "no image captured")
		return
	}
	w.Header().Set("Content-Type", img.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(img.JPEG)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img.JPEG)
}
