package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/outpost-core/internal/alert"
)

// handleListAlerts returns alerts newest first.
//
// Query parameters:
//   - unacknowledged_only: when true, only unacknowledged alerts
//   - limit: maximum rows (default 50, capped at 200)
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	unackedOnly := r.URL.Query().Get("unacknowledged_only") == "true"

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		limit = parsed
	}

	alerts, err := s.alerts.List(r.Context(), unackedOnly, limit)
	if err != nil {
		writeInternalError(w, "failed to list alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

// handleAlertCounts returns the unacknowledged backlog, total and per level.
func (s *Server) handleAlertCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.alerts.CountUnacknowledged(r.Context())
	if err != nil {
		writeInternalError(w, "failed to count alerts")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// handleAcknowledgeAlert marks one alert acknowledged and returns it.
// Acknowledging an already acknowledged alert succeeds unchanged.
func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.alerts.Acknowledge(r.Context(), id); err != nil {
		if errors.Is(err, alert.ErrAlertNotFound) {
			writeNotFound(w, "alert not found")
			return
		}
		writeInternalError(w, "failed to acknowledge alert")
		return
	}

	updated, err := s.alerts.Get(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to load alert")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleAcknowledgeAllAlerts marks every unacknowledged alert acknowledged.
func (s *Server) handleAcknowledgeAllAlerts(w http.ResponseWriter, r *http.Request) {
	count, err := s.alerts.AcknowledgeAll(r.Context())
	if err != nil {
		writeInternalError(w, "failed to acknowledge alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": count})
}
