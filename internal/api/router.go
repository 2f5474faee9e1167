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

		// Automation status and control
		r.Route("/automation", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Get("/log", s.handleLog)
			r.Get("/timeline", s.handleTimeline)
			r.Post("/tick", s.handleTick)
		})

		// Scheduled period management
		r.Route("/periods", func(r chi.Router) {
			r.Get("/", s.handleListPeriods)
			r.Post("/", s.handleCreatePeriod)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPeriod)
				r.Put("/", s.handleUpdatePeriod)
				r.Delete("/", s.handleDeletePeriod)
			})
		})

		// Manual overrides
		r.Route("/manual", func(r chi.Router) {
			r.Post("/start", s.handleManualStart)
			r.Post("/stop", s.handleManualStop)
		})
		r.Post("/nas/on", s.handleNASOn)
		r.Post("/nas/off", s.handleNASOff)
		r.Post("/vuplus/on", s.handleVuPlusOn)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"dry_run": s.dryRun,
	})
}
