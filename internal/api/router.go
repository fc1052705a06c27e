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

	// Health check (no auth required)
	r.Get("/health", s.handleHealth)

	// WebSocket event feed. Sits outside the auth guard: the upgrade
	// handshake is origin-checked and the feed carries events only.
	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Login issues tokens, so it cannot require one
		r.Post("/auth/login", s.handleLogin)

		// Everything else is guarded when auth is enabled
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)
				r.Get("/stats", s.handleDeviceStats)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Patch("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Post("/control", s.handleControlDevice)
					r.Post("/poll", s.handlePollDevice)
					r.Get("/info", s.handleDeviceInfo)
				})
			})

			// Automation rule endpoints
			r.Route("/automations", func(r chi.Router) {
				r.Get("/", s.handleListRules)
				r.Post("/", s.handleCreateRule)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetRule)
					r.Patch("/", s.handleUpdateRule)
					r.Delete("/", s.handleDeleteRule)
				})
			})

			// Alert endpoints
			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", s.handleListAlerts)
				r.Get("/count", s.handleAlertCounts)
				r.Post("/acknowledge-all", s.handleAcknowledgeAllAlerts)
				r.Post("/{id}/acknowledge", s.handleAcknowledgeAlert)
			})

			// GPIO endpoints
			r.Route("/gpio", func(r chi.Router) {
				r.Get("/", s.handleListPins)
				r.Post("/", s.handleConfigurePin)

				r.Route("/{pin}", func(r chi.Router) {
					r.Get("/", s.handleGetPin)
					r.Patch("/", s.handleReconfigurePin)
					r.Delete("/", s.handleReleasePin)
					r.Post("/value", s.handleWritePinValue)
				})
			})

			// Sensor reading queries
			r.Route("/sensors", func(r chi.Router) {
				r.Get("/latest", s.handleLatestReadings)
				r.Get("/history", s.handleReadingHistory)
				r.Get("/stats", s.handleReadingStats)
			})
		})
	})

	return r
}

// handleHealth returns the server health status. A reachable database is
// part of being healthy; without it every store operation fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":   "degraded",
				"version":  s.version,
				"database": "unreachable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
