package gpio

import (
	"fmt"
	"math"
)

// Validation constants.
const (
	// minBCMPin is the lowest usable BCM pin number. Pins 0 and 1 carry
	// the HAT ID EEPROM bus and are not offered.
	minBCMPin = 2

	// maxBCMPin is the highest usable BCM pin number on the 40-pin header.
	maxBCMPin = 27

	// maxNameLength is the maximum pin name length in characters.
	maxNameLength = 100
)

// ValidatePinNumber checks that a BCM pin number is in the usable range.
func ValidatePinNumber(pin int) error {
	if pin < minBCMPin || pin > maxBCMPin {
		return fmt.Errorf("%w: %d (BCM %d-%d)", ErrInvalidPin, pin, minBCMPin, maxBCMPin)
	}
	return nil
}

// ValidateDuty checks that a PWM duty cycle is a finite value in [0,1].
func ValidateDuty(duty float64) error {
	if math.IsNaN(duty) || math.IsInf(duty, 0) {
		return fmt.Errorf("%w: must be finite", ErrInvalidDuty)
	}
	if duty < 0 || duty > 1 {
		return fmt.Errorf("%w: %v (0.0-1.0)", ErrInvalidDuty, duty)
	}
	return nil
}

// ValidatePinConfig checks a full pin configuration before it is applied.
func ValidatePinConfig(pin int, name *string, function Function, duty *float64) error {
	if err := ValidatePinNumber(pin); err != nil {
		return err
	}
	if name != nil && len(*name) > maxNameLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	if !function.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidFunction, function)
	}
	if function == FunctionPWM {
		if !SupportsHardwarePWM(pin) {
			return fmt.Errorf("%w: pin %d (use %v)", ErrPWMUnsupported, pin, HardwarePWMPins())
		}
		if duty != nil {
			if err := ValidateDuty(*duty); err != nil {
				return err
			}
		}
	} else if duty != nil {
		return fmt.Errorf("%w: duty cycle only applies to pwm pins", ErrInvalidFunction)
	}
	return nil
}
