package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/outpost-core/internal/gpio"
)

// pinRequest is the body for configuring or reconfiguring a pin.
type pinRequest struct {
	Pin      int      `json:"pin"`
	Name     *string  `json:"name,omitempty"`
	Function string   `json:"function"`
	PWMDuty  *float64 `json:"pwm_duty,omitempty"`
}

// pinValueRequest is the body for writing a pin value: 0/1 for digital
// outputs, duty in [0,1] for pwm.
type pinValueRequest struct {
	Value *float64 `json:"value"`
}

// handleListPins returns all configured pins with their live values.
func (s *Server) handleListPins(w http.ResponseWriter, r *http.Request) {
	if s.gpio == nil {
		writeUnavailable(w, "GPIO is not enabled")
		return
	}

	pins := s.gpio.List(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"pins": pins, "count": len(pins)})
}

// handleGetPin returns one configured pin with its live value.
func (s *Server) handleGetPin(w http.ResponseWriter, r *http.Request) {
	if s.gpio == nil {
		writeUnavailable(w, "GPIO is not enabled")
		return
	}

	pin, ok := parsePinParam(w, r)
	if !ok {
		return
	}

	state, err := s.gpio.Get(r.Context(), pin)
	if err != nil {
		writeGPIOError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// handleConfigurePin configures a new pin as input, output, or pwm.
func (s *Server) handleConfigurePin(w http.ResponseWriter, r *http.Request) {
	if s.gpio == nil {
		writeUnavailable(w, "GPIO is not enabled")
		return
	}

	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	configured, err := s.gpio.Configure(r.Context(), req.Pin, req.Name, gpio.Function(req.Function), req.PWMDuty)
	if err != nil {
		writeGPIOError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, configured)
}

// handleReconfigurePin changes an existing pin's name, function, or duty.
func (s *Server) handleReconfigurePin(w http.ResponseWriter, r *http.Request) {
	if s.gpio == nil {
		writeUnavailable(w, "GPIO is not enabled")
		return
	}

	pin, ok := parsePinParam(w, r)
	if !ok {
		return
	}

	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	updated, err := s.gpio.Reconfigure(r.Context(), pin, req.Name, gpio.Function(req.Function), req.PWMDuty)
	if err != nil {
		writeGPIOError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleReleasePin unbinds a pin and removes its configuration.
func (s *Server) handleReleasePin(w http.ResponseWriter, r *http.Request) {
	if s.gpio == nil {
		writeUnavailable(w, "GPIO is not enabled")
		return
	}

	pin, ok := parsePinParam(w, r)
	if !ok {
		return
	}

	if err := s.gpio.Release(r.Context(), pin); err != nil {
		writeGPIOError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleWritePinValue drives an output or pwm pin.
func (s *Server) handleWritePinValue(w http.ResponseWriter, r *http.Request) {
	if s.gpio == nil {
		writeUnavailable(w, "GPIO is not enabled")
		return
	}

	pin, ok := parsePinParam(w, r)
	if !ok {
		return
	}

	var req pinValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value field is required")
		return
	}

	if err := s.gpio.WriteValue(r.Context(), pin, *req.Value); err != nil {
		writeGPIOError(w, err)
		return
	}

	state, err := s.gpio.Get(r.Context(), pin)
	if err != nil {
		writeGPIOError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// parsePinParam extracts the pin number from the URL. On failure it writes
// a 400 response and returns false.
func parsePinParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	pin, err := strconv.Atoi(chi.URLParam(r, "pin"))
	if err != nil {
		writeBadRequest(w, "pin must be an integer")
		return 0, false
	}
	return pin, true
}

// writeGPIOError maps gpio package errors to HTTP status codes.
func writeGPIOError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gpio.ErrPinNotFound):
		writeNotFound(w, "pin not configured")
	case errors.Is(err, gpio.ErrPinInUse):
		writeConflict(w, "pin already configured")
	case errors.Is(err, gpio.ErrInvalidPin),
		errors.Is(err, gpio.ErrInvalidFunction),
		errors.Is(err, gpio.ErrInvalidName),
		errors.Is(err, gpio.ErrInvalidDuty),
		errors.Is(err, gpio.ErrPWMUnsupported),
		errors.Is(err, gpio.ErrNotWritable):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, "gpio operation failed")
	}
}
