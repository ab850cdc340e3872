package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/hair-advisor/internal/web/handlers"
	"github.com/kozaktomas/hair-advisor/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	catalogHandler := handlers.NewCatalogHandler(s.catalog)
	sessionsHandler := handlers.NewSessionsHandler(s.sessionManager, s.log)
	captureHandler := handlers.NewCaptureHandler(s.sessionManager, s.log)
	cameraHandler := handlers.NewCameraHandler(s.config.Web.AllowedOrigins, s.log)
	eventsHandler := handlers.NewEventsHandler(s.log)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Get("/catalog", catalogHandler.Get)

		r.With(chiMiddleware.Timeout(30*time.Second)).Post("/sessions", sessionsHandler.Create)

		r.Route("/sessions/{"+middleware.SessionIDParam+"}", func(r chi.Router) {
			r.Use(middleware.RequireSession(s.sessionManager))

			// Long-lived connections
			r.Get("/camera", cameraHandler.Stream)
			r.Get("/events", eventsHandler.Stream)

			r.Group(func(r chi.Router) {
				// Submission to the recommendation service happens on the last next call.
				r.Use(chiMiddleware.Timeout(2 * time.Minute))

				r.Get("/", sessionsHandler.Get)
				r.Delete("/", sessionsHandler.Delete)
				r.Post("/answer", sessionsHandler.Answer)
				r.Post("/next", sessionsHandler.Next)
				r.Post("/jump", sessionsHandler.Jump)
				r.Post("/restart", sessionsHandler.Restart)

				r.Post("/capture", captureHandler.Take)
				r.Post("/capture/retry", captureHandler.Retry)
				r.Post("/capture/skip", captureHandler.Skip)
				r.Get("/capture/image", captureHandler.Image)
			})
		})
	})
}
