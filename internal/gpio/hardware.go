package gpio

// Hardware abstracts the pin electronics so the Manager can run against
// real Raspberry Pi GPIO (PeriphHardware) or an in-memory simulation
// (SimulatedHardware) off-Pi and in tests.
//
// Pin numbers are BCM. Implementations must be safe for concurrent use.
type Hardware interface {
	// OpenInput claims a pin as a digital input with pull-up.
	OpenInput(pin int) error

	// OpenOutput claims a pin as a digital output, driven low.
	OpenOutput(pin int) error

	// OpenPWM claims a pin as a hardware PWM output at zero duty.
	OpenPWM(pin int) error

	// WriteDigital drives an open output pin high or low.
	WriteDigital(pin int, high bool) error

	// WritePWM sets the duty cycle in [0,1] on an open PWM pin.
	WritePWM(pin int, duty float64) error

	// Read returns the current level of an open digital pin.
	Read(pin int) (bool, error)

	// Close releases a claimed pin. Closing an unclaimed pin is a no-op.
	Close(pin int) error
}
