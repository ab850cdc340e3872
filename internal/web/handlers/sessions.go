package handlers

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/hair-advisor/internal/flow"
	"github.com/kozaktomas/hair-advisor/internal/recommend"
	"github.com/kozaktomas/hair-advisor/internal/web/middleware"
)

// SessionsHandler drives quiz sessions.
type SessionsHandler struct {
	sessions *middleware.SessionManager
	log      logrus.FieldLogger
}

func NewSessionsHandler(sm *middleware.SessionManager, log logrus.FieldLogger) *SessionsHandler {
	return &SessionsHandler{sessions: sm, log: log}
}

type sessionResponse struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
	flow.View
}

func newSessionResponse(s *middleware.Session) sessionResponse {
	return sessionResponse{ID: s.ID, ExpiresAt: s.ExpiresAt(), View: s.Flow.View()}
}

type answerRequest struct {
	Option string `json:"option" validate:"required"`
}

type jumpRequest struct {
	Step *int `json:"step" validate:"required,min=0"`
}

type nextResponse struct {
	sessionResponse
	Recommendation *recommend.Recommendation `json:"recommendation,omitempty"`
}

type jumpResponse struct {
	Moved bool `json:"moved"`
	sessionResponse
}

// Create starts a new quiz session.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.CreateSession(r.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to create session")
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.log.WithField("session", s.ID).Info("quiz session created")
	respondJSON(w, http.StatusCreated, newSessionResponse(s))
}

// Get returns the session state.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())
	respondJSON(w, http.StatusOK, newSessionResponse(s))
}

// Delete ends the session and releases its camera.
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())
	h.sessions.DeleteSession(r.Context(), s.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Answer selects an option on the active question.
func (h *SessionsHandler) Answer(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())

	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if err := s.Flow.Select(req.Option); err != nil {
		h.log.WithError(err).WithField("session", s.ID).Debug("answer rejected: " + sanitizeForLog(req.Option))
		respondDomainError(w, err)
		return
	}
	h.sessions.Persist(r.Context(), s)
	respondJSON(w, http.StatusOK, newSessionResponse(s))
}

// Next advances the session. On the last question it submits and returns the recommendation.
func (h *SessionsHandler) Next(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())

	rec, err := s.Flow.Next(r.Context())
	h.sessions.Persist(r.Context(), s)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nextResponse{sessionResponse: newSessionResponse(s), Recommendation: rec})
}

// Jump moves to a step. A disallowed jump is not an error; it reports moved=false.
func (h *SessionsHandler) Jump(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())

	var req jumpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	moved := s.Flow.Jump(*req.Step)
	if moved {
		h.sessions.Persist(r.Context(), s)
	}
	respondJSON(w, http.StatusOK, jumpResponse{Moved: moved, sessionResponse: newSessionResponse(s)})
}

// Restart clears the session and returns to the capture step.
func (h *SessionsHandler) Restart(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSessionFromContext(r.Context())

	if err := s.Flow.Restart(); err != nil {
		h.log.WithError(err).WithField("session", s.ID).Warn("camera did not restart")
	}
	h.sessions.Persist(r.Context(), s)
	respondJSON(w, http.StatusOK, newSessionResponse(s))
}
