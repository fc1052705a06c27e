package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/outpost-core/internal/bridges/nodehttp"
	"github.com/nerrad567/outpost-core/internal/device"
)

// handleListDevices returns all registered devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.ListDevices(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device with the latest reading per sensor.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	latest, err := s.readings.Latest(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to load readings")
		return
	}

	readings := make(map[string]any, len(latest))
	for _, reading := range latest {
		readings[reading.SensorType] = map[string]any{
			"value":     reading.Value,
			"unit":      reading.Unit,
			"timestamp": reading.RecordedAt.UTC().Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device":          dev,
		"latest_readings": readings,
	})
}

// handleCreateDevice registers a new device and starts polling it when enabled.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var dev device.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.registry.CreateDevice(r.Context(), &dev); err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceExists):
			writeConflict(w, "a device with this address already exists")
		case isValidationError(err):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to create device")
		}
		return
	}

	if dev.Enabled {
		if err := s.poller.StartDevice(r.Context(), dev.ID); err != nil {
			s.logger.Warn("failed to start polling new device", "device_id", dev.ID, "error", err)
		}
	}

	s.hub.Broadcast(ChannelDevices, "device_added", map[string]any{
		"device_id": dev.ID,
		"name":      dev.Name,
	})

	writeJSON(w, http.StatusCreated, dev)
}

// handleUpdateDevice partially updates a device. Polling is resynced after
// the update, so enable/disable toggles and interval changes take effect
// without a restart.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Get existing device
	existing, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	// Decode partial update onto existing device
	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id // Ensure ID cannot be changed

	if err := s.registry.UpdateDevice(r.Context(), existing); err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceExists):
			writeConflict(w, "a device with this address already exists")
		case isValidationError(err):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to update device")
		}
		return
	}

	// StartDevice stops any running worker first, then restarts only if the
	// device is still enabled.
	if err := s.poller.StartDevice(r.Context(), id); err != nil {
		s.logger.Warn("failed to resync polling after update", "device_id", id, "error", err)
	}

	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteDevice stops polling and removes a device.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Stop the worker before the row disappears so a mid-flight poll
	// cannot write readings for a deleted device.
	s.poller.StopDevice(id)

	if err := s.registry.DeleteDevice(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to delete device")
		return
	}

	s.hub.Broadcast(ChannelDevices, "device_removed", map[string]any{
		"device_id": id,
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceStats returns device registry statistics.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     stats.TotalDevices,
		"enabled":   stats.EnabledDevices,
		"by_status": stats.ByStatus,
	})
}

// handleControlDevice sends a command map to a device's /control endpoint
// and returns the node's response.
func (s *Server) handleControlDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	var command map[string]any
	if err := json.NewDecoder(r.Body).Decode(&command); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(command) == 0 {
		writeBadRequest(w, "command body is required")
		return
	}

	result, err := s.nodes.SendCommand(r.Context(), dev.Address, dev.Port, command)
	if err != nil {
		writeNodeError(w, err)
		return
	}

	s.hub.Broadcast(ChannelDevices, "control_result", map[string]any{
		"device_id": id,
		"command":   command,
		"result":    result,
	})

	writeJSON(w, http.StatusOK, result)
}

// handlePollDevice nudges the device's poll worker to run immediately
// instead of waiting for the next tick.
func (s *Server) handlePollDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.registry.GetDevice(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	if err := s.poller.PollNow(id); err != nil {
		writeConflict(w, "device is not being polled")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "poll queued",
		"device_id": id,
	})
}

// handleDeviceInfo proxies the node's /info endpoint.
func (s *Server) handleDeviceInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	info, err := s.nodes.Info(r.Context(), dev.Address, dev.Port)
	if err != nil {
		writeNodeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// writeNodeError maps node client failures to gateway-style status codes:
// timeouts are 504, a node that answered badly is 502, anything else
// (unreachable, refused) is 503.
func writeNodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, nodehttp.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeUnavailable, "device timeout")
	case errors.Is(err, nodehttp.ErrBadResponse):
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, "device error: "+err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "device unreachable")
	}
}

// isValidationError checks whether an error is a device validation error.
// ValidateDevice wraps several sentinel errors (ErrInvalidName,
// ErrInvalidAddress, etc.) so we check all of them rather than just
// ErrInvalidDevice.
func isValidationError(err error) bool {
	return errors.Is(err, device.ErrInvalidDevice) ||
		errors.Is(err, device.ErrInvalidName) ||
		errors.Is(err, device.ErrInvalidAddress) ||
		errors.Is(err, device.ErrInvalidStatus) ||
		errors.Is(err, device.ErrInvalidPollInterval)
}
