package api

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// History window bounds in hours.
const (
	defaultHistoryHours = 24
	maxHistoryHours     = 720
)

// historyPoint is one sample in a history response.
type historyPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// handleLatestReadings returns the most recent reading per device and
// sensor type, optionally filtered to one device.
func (s *Server) handleLatestReadings(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")

	readings, err := s.readings.Latest(r.Context(), deviceID)
	if err != nil {
		writeInternalError(w, "failed to load readings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"readings": readings, "count": len(readings)})
}

// handleReadingHistory returns one sensor's samples over the last N hours,
// oldest first.
//
// Query parameters:
//   - device_id: required
//   - sensor_type: required
//   - hours: window size, 1 to 720 (default 24)
func (s *Server) handleReadingHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	sensorType := r.URL.Query().Get("sensor_type")
	if deviceID == "" || sensorType == "" {
		writeBadRequest(w, "device_id and sensor_type are required")
		return
	}

	hours, ok := parseHoursParam(w, r)
	if !ok {
		return
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	readings, err := s.readings.History(r.Context(), deviceID, sensorType, since)
	if err != nil {
		writeInternalError(w, "failed to load history")
		return
	}

	// Unit comes from the newest sample; nodes rarely change it.
	var unit *string
	if len(readings) > 0 {
		unit = readings[len(readings)-1].Unit
	}

	data := make([]historyPoint, 0, len(readings))
	for _, reading := range readings {
		data = append(data, historyPoint{Timestamp: reading.RecordedAt, Value: reading.Value})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":   deviceID,
		"sensor_type": sensorType,
		"unit":        unit,
		"data":        data,
	})
}

// handleReadingStats returns min/max/avg/count for one sensor over the
// last N hours.
func (s *Server) handleReadingStats(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	sensorType := r.URL.Query().Get("sensor_type")
	if deviceID == "" || sensorType == "" {
		writeBadRequest(w, "device_id and sensor_type are required")
		return
	}

	hours, ok := parseHoursParam(w, r)
	if !ok {
		return
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	stats, err := s.readings.Stats(r.Context(), deviceID, sensorType, since)
	if err != nil {
		writeInternalError(w, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":   deviceID,
		"sensor_type": sensorType,
		"hours":       hours,
		"min":         round2(stats.Min),
		"max":         round2(stats.Max),
		"avg":         round2(stats.Avg),
		"count":       stats.Count,
	})
}

// parseHoursParam reads the hours query parameter, enforcing the window
// bounds. On failure it writes a 400 response and returns false.
func parseHoursParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("hours")
	if raw == "" {
		return defaultHistoryHours, true
	}

	hours, err := strconv.Atoi(raw)
	if err != nil || hours < 1 || hours > maxHistoryHours {
		writeBadRequest(w, "hours must be between 1 and 720")
		return 0, false
	}
	return hours, true
}

// round2 rounds to two decimal places, passing nil through.
func round2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	rounded := math.Round(*v*100) / 100
	return &rounded
}
