// Package web exposes quiz sessions over HTTP: JSON endpoints to drive a session,
// a websocket relaying the browser camera and server-sent events.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/hair-advisor/internal/config"
	"github.com/kozaktomas/hair-advisor/internal/logging"
	"github.com/kozaktomas/hair-advisor/internal/quiz"
	"github.com/kozaktomas/hair-advisor/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config         *config.Config
	catalog        *quiz.Catalog
	router         *chi.Mux
	httpServer     *http.Server
	sessionManager *middleware.SessionManager
	log            logrus.FieldLogger
}

// NewServer creates a new web server around an existing session manager.
func NewServer(cfg *config.Config, catalog *quiz.Catalog, sessionManager *middleware.SessionManager, log logrus.FieldLogger) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:         cfg,
		catalog:        catalog,
		router:         r,
		sessionManager: sessionManager,
		log:            log,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(logging.RequestLogger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No write timeout: event streams stay open for the life of a session.
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")

	// Closing sessions ends their event streams so Shutdown does not wait on them.
	s.sessionManager.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
