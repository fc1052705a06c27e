package gpio

import "errors"

// Domain errors for the GPIO package.
var (
	// ErrPinNotFound is returned when a pin is not configured.
	ErrPinNotFound = errors.New("gpio: pin not configured")

	// ErrPinInUse is returned when configuring a pin that already has a
	// function assigned.
	ErrPinInUse = errors.New("gpio: pin already configured")

	// ErrInvalidPin is returned when a pin number is outside the usable
	// BCM range.
	ErrInvalidPin = errors.New("gpio: invalid pin number")

	// ErrInvalidFunction is returned when a pin function is not one of
	// input, output, pwm.
	ErrInvalidFunction = errors.New("gpio: invalid pin function")

	// ErrInvalidName is returned when a pin name fails validation.
	ErrInvalidName = errors.New("gpio: invalid pin name")

	// ErrInvalidDuty is returned when a PWM duty cycle is outside [0,1].
	ErrInvalidDuty = errors.New("gpio: duty cycle out of range")

	// ErrPWMUnsupported is returned when the pwm function is requested on
	// a pin without a hardware PWM channel.
	ErrPWMUnsupported = errors.New("gpio: pin does not support hardware pwm")

	// ErrNotWritable is returned when writing to an input pin.
	ErrNotWritable = errors.New("gpio: pin is not writable")

	// ErrHardware is returned when the pin electronics fail.
	ErrHardware = errors.New("gpio: hardware failure")
)
