package gpio

import "time"

// Function identifies how a pin is driven.
type Function string

// Pin functions.
const (
	// FunctionInput is a digital input with pull-up.
	FunctionInput Function = "input"

	// FunctionOutput is a digital output.
	FunctionOutput Function = "output"

	// FunctionPWM is a hardware PWM output.
	FunctionPWM Function = "pwm"
)

// AllFunctions lists every valid pin function.
var AllFunctions = []Function{
	FunctionInput,
	FunctionOutput,
	FunctionPWM,
}

// IsValid checks if the function is a known value.
func (f Function) IsValid() bool {
	for _, valid := range AllFunctions {
		if f == valid {
			return true
		}
	}
	return false
}

// hardwarePWMPins are the BCM pins wired to the Pi's PWM peripherals
// (PWM0 on 12/18, PWM1 on 13/19). The pwm function is rejected elsewhere.
var hardwarePWMPins = map[int]bool{
	12: true,
	13: true,
	18: true,
	19: true,
}

// SupportsHardwarePWM reports whether a BCM pin can carry the pwm function.
func SupportsHardwarePWM(pin int) bool {
	return hardwarePWMPins[pin]
}

// HardwarePWMPins returns the sorted list of pwm-capable BCM pins.
func HardwarePWMPins() []int {
	return []int{12, 13, 18, 19}
}

// Pin is a configured GPIO pin. Pin numbers use BCM numbering.
type Pin struct {
	// Pin is the BCM pin number (primary key).
	Pin int `json:"pin"`

	// Name is an optional human-readable label.
	Name *string `json:"name,omitempty"`

	// Function is how the pin is driven.
	Function Function `json:"function"`

	// PWMDuty is the last commanded duty cycle in [0,1].
	// Only meaningful when Function is pwm.
	PWMDuty *float64 `json:"pwm_duty,omitempty"`

	// CreatedAt is when the pin was configured.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the configuration last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a fully independent copy of the pin.
func (p *Pin) DeepCopy() *Pin {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Name != nil {
		name := *p.Name
		clone.Name = &name
	}
	if p.PWMDuty != nil {
		duty := *p.PWMDuty
		clone.PWMDuty = &duty
	}
	return &clone
}

// PinState is a configured pin together with its live value: 0/1 for
// digital functions, duty in [0,1] for pwm. Value is nil when the pin is
// configured but not bound to hardware.
type PinState struct {
	Pin
	Value *float64 `json:"value"`
}
