package gpio

import (
	"fmt"
	"sync"
)

// SimulatedHardware is an in-memory Hardware implementation used off-Pi
// and in tests. Writes are recorded, reads return the recorded state, and
// input levels can be driven through SetInputLevel.
//
// Thread Safety: all methods are safe for concurrent use.
type SimulatedHardware struct {
	mu   sync.Mutex
	pins map[int]*simPin
}

type simPin struct {
	function Function
	high     bool
	duty     float64
}

// NewSimulatedHardware creates an empty simulated hardware handle.
func NewSimulatedHardware() *SimulatedHardware {
	return &SimulatedHardware{pins: make(map[int]*simPin)}
}

// OpenInput claims a pin as a simulated input, initially low.
func (h *SimulatedHardware) OpenInput(pin int) error {
	h.open(pin, FunctionInput)
	return nil
}

// OpenOutput claims a pin as a simulated output, driven low.
func (h *SimulatedHardware) OpenOutput(pin int) error {
	h.open(pin, FunctionOutput)
	return nil
}

// OpenPWM claims a pin as a simulated PWM output at zero duty.
func (h *SimulatedHardware) OpenPWM(pin int) error {
	h.open(pin, FunctionPWM)
	return nil
}

// WriteDigital records the level of a simulated output pin.
func (h *SimulatedHardware) WriteDigital(pin int, high bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pins[pin]
	if !ok {
		return fmt.Errorf("%w: GPIO%d not claimed", ErrHardware, pin)
	}
	p.high = high
	return nil
}

// WritePWM records the duty cycle of a simulated PWM pin.
func (h *SimulatedHardware) WritePWM(pin int, duty float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pins[pin]
	if !ok {
		return fmt.Errorf("%w: GPIO%d not claimed", ErrHardware, pin)
	}
	p.duty = duty
	return nil
}

// Read returns the recorded level of a simulated pin.
func (h *SimulatedHardware) Read(pin int) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pins[pin]
	if !ok {
		return false, fmt.Errorf("%w: GPIO%d not claimed", ErrHardware, pin)
	}
	return p.high, nil
}

// Close releases a simulated pin.
func (h *SimulatedHardware) Close(pin int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pins, pin)
	return nil
}

// SetInputLevel drives a simulated input pin's level. Used by tests and
// the development server to exercise the input watcher.
func (h *SimulatedHardware) SetInputLevel(pin int, high bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.pins[pin]; ok {
		p.high = high
	}
}

// Duty returns the recorded duty cycle of a simulated PWM pin.
func (h *SimulatedHardware) Duty(pin int) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.pins[pin]; ok {
		return p.duty
	}
	return 0
}

func (h *SimulatedHardware) open(pin int, function Function) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pins[pin] = &simPin{function: function}
}
