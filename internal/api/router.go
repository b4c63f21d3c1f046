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

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/stats", s.handleStats)

			r.Route("/points", func(r chi.Router) {
				r.Get("/", s.handleListPoints)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetPoint)
					r.Delete("/", s.handlePurgePoint)
					r.Get("/latest", s.handlePointLatest)
					r.Get("/values", s.handlePointRange)
					r.Delete("/values", s.handleDeletePointValues)
					r.Get("/count", s.handlePointCount)
					r.Get("/images/{valueID}", s.handlePointImage)
				})
			})

			r.Route("/values", func(r chi.Router) {
				r.Get("/", s.handleValuesBetween)
				r.Get("/latest", s.handleLatestValues)
				r.Get("/bookend", s.handleBookend)
				r.Get("/extent", s.handleExtent)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":  "unhealthy",
				"error":   err.Error(),
				"version": s.version,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
