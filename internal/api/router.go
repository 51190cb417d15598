package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/status", s.handleSystemStatus)

		r.Route("/controllers", func(r chi.Router) {
			r.Get("/", s.handleListControllers)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/status", s.handleControllerStatus)
				r.Get("/commands", s.handleControllerCommands)
				r.Post("/stop-all", s.handleStopAll)
				r.Post("/power", s.handlePower)

				r.Route("/stations/{sid}", func(r chi.Router) {
					r.Post("/start", s.handleStationStart)
					r.Post("/stop", s.handleStationStop)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
