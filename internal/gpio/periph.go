package gpio

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// defaultPWMFrequency is the carrier frequency for PWM outputs. High
// enough to be silent on fans and flicker-free on LEDs.
const defaultPWMFrequency = 25 * physic.KiloHertz

// PeriphHardware drives real GPIO pins through the periph.io host
// drivers.
//
// Thread Safety: all methods are safe for concurrent use.
type PeriphHardware struct {
	mu   sync.Mutex
	pins map[int]gpio.PinIO
}

// NewPeriphHardware initialises the periph host drivers and returns a
// hardware handle. Fails off-Pi or when the GPIO subsystem is absent.
func NewPeriphHardware() (*PeriphHardware, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: initialising host drivers: %v", ErrHardware, err)
	}
	return &PeriphHardware{pins: make(map[int]gpio.PinIO)}, nil
}

// OpenInput claims a pin as a digital input with pull-up.
func (h *PeriphHardware) OpenInput(pin int) error {
	p, err := h.lookup(pin)
	if err != nil {
		return err
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("%w: configuring GPIO%d as input: %v", ErrHardware, pin, err)
	}
	h.claim(pin, p)
	return nil
}

// OpenOutput claims a pin as a digital output, driven low.
func (h *PeriphHardware) OpenOutput(pin int) error {
	p, err := h.lookup(pin)
	if err != nil {
		return err
	}
	if err := p.Out(gpio.Low); err != nil {
		return fmt.Errorf("%w: configuring GPIO%d as output: %v", ErrHardware, pin, err)
	}
	h.claim(pin, p)
	return nil
}

// OpenPWM claims a pin as a hardware PWM output at zero duty.
func (h *PeriphHardware) OpenPWM(pin int) error {
	p, err := h.lookup(pin)
	if err != nil {
		return err
	}
	if err := p.PWM(0, defaultPWMFrequency); err != nil {
		return fmt.Errorf("%w: configuring GPIO%d as pwm: %v", ErrHardware, pin, err)
	}
	h.claim(pin, p)
	return nil
}

// WriteDigital drives an open output pin high or low.
func (h *PeriphHardware) WriteDigital(pin int, high bool) error {
	p, err := h.claimed(pin)
	if err != nil {
		return err
	}
	level := gpio.Low
	if high {
		level = gpio.High
	}
	if err := p.Out(level); err != nil {
		return fmt.Errorf("%w: writing GPIO%d: %v", ErrHardware, pin, err)
	}
	return nil
}

// WritePWM sets the duty cycle on an open PWM pin.
func (h *PeriphHardware) WritePWM(pin int, duty float64) error {
	p, err := h.claimed(pin)
	if err != nil {
		return err
	}
	scaled := gpio.Duty(duty * float64(gpio.DutyMax))
	if err := p.PWM(scaled, defaultPWMFrequency); err != nil {
		return fmt.Errorf("%w: writing pwm GPIO%d: %v", ErrHardware, pin, err)
	}
	return nil
}

// Read returns the current level of an open digital pin.
func (h *PeriphHardware) Read(pin int) (bool, error) {
	p, err := h.claimed(pin)
	if err != nil {
		return false, err
	}
	return p.Read() == gpio.High, nil
}

// Close releases a claimed pin.
func (h *PeriphHardware) Close(pin int) error {
	h.mu.Lock()
	p, ok := h.pins[pin]
	delete(h.pins, pin)
	h.mu.Unlock()

	if !ok {
		return nil
	}
	if err := p.Halt(); err != nil {
		return fmt.Errorf("%w: releasing GPIO%d: %v", ErrHardware, pin, err)
	}
	return nil
}

// lookup resolves a BCM pin number to a periph pin handle.
func (h *PeriphHardware) lookup(pin int) (gpio.PinIO, error) {
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if p == nil {
		return nil, fmt.Errorf("%w: GPIO%d not present on this board", ErrHardware, pin)
	}
	return p, nil
}

// claim records a pin handle under the hardware mutex.
func (h *PeriphHardware) claim(pin int, p gpio.PinIO) {
	h.mu.Lock()
	h.pins[pin] = p
	h.mu.Unlock()
}

// claimed returns a previously claimed pin handle.
func (h *PeriphHardware) claimed(pin int) (gpio.PinIO, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pins[pin]
	if !ok {
		return nil, fmt.Errorf("%w: GPIO%d not claimed", ErrHardware, pin)
	}
	return p, nil
}
