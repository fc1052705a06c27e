package automation

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxDescriptionLen = 500
	maxCooldownSecs   = 86400 // 1 day
	maxCommandKeys    = 20

	// Usable BCM pin range on a 40-pin header. Pins 0 and 1 are reserved
	// for the HAT ID EEPROM.
	minBCMPin = 2
	maxBCMPin = 27
)

// Pre-computed validation sets for O(1) lookups.
var (
	validOperators   map[Operator]struct{}
	validActionKinds map[ActionKind]struct{}
)

func init() {
	validOperators = make(map[Operator]struct{}, len(AllOperators()))
	for _, op := range AllOperators() {
		validOperators[op] = struct{}{}
	}

	validActionKinds = make(map[ActionKind]struct{}, len(AllActionKinds()))
	for _, k := range AllActionKinds() {
		validActionKinds[k] = struct{}{}
	}
}

// ValidateRule performs comprehensive validation on a rule.
// Returns an error describing the first validation failure found.
func ValidateRule(r *Rule) error {
	if r == nil {
		return ErrInvalidRule
	}

	if err := ValidateName(r.Name); err != nil {
		return err
	}

	if r.Description != nil && len(*r.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidRule, maxDescriptionLen)
	}

	if r.CooldownSeconds < 0 {
		return fmt.Errorf("%w: cooldown_seconds cannot be negative", ErrInvalidCooldown)
	}
	if r.CooldownSeconds > maxCooldownSecs {
		return fmt.Errorf("%w: cooldown_seconds exceeds %d", ErrInvalidCooldown, maxCooldownSecs)
	}

	if err := ValidateTrigger(r.Trigger); err != nil {
		return err
	}

	return ValidateAction(r.Action)
}

// ValidateName checks if a rule name is valid.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateTrigger checks if a trigger is complete and comparable.
func ValidateTrigger(t Trigger) error {
	if t.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidTrigger)
	}
	if strings.TrimSpace(t.SensorType) == "" {
		return fmt.Errorf("%w: sensor_type is required", ErrInvalidTrigger)
	}
	if _, ok := validOperators[t.Operator]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidOperator, t.Operator)
	}
	if !isFinite(t.Threshold) {
		return fmt.Errorf("%w: threshold must be finite", ErrInvalidTrigger)
	}
	return nil
}

// ValidateAction checks that an action is well formed for its kind.
//
// Pin values are validated against [0, 1]: digital outputs treat 1 as high
// and 0 as low, PWM outputs read the value as a duty cycle, so the range
// covers both without knowing the pin's configured function.
func ValidateAction(a Action) error {
	if _, ok := validActionKinds[a.Kind]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidActionKind, a.Kind)
	}

	switch a.Kind {
	case ActionPin:
		if a.Pin == nil {
			return fmt.Errorf("%w: pin is required", ErrInvalidAction)
		}
		if *a.Pin < minBCMPin || *a.Pin > maxBCMPin {
			return fmt.Errorf("%w: pin must be BCM %d-%d", ErrInvalidAction, minBCMPin, maxBCMPin)
		}
		if a.Value == nil {
			return fmt.Errorf("%w: value is required", ErrInvalidAction)
		}
		if !isFinite(*a.Value) || *a.Value < 0 || *a.Value > 1 {
			return fmt.Errorf("%w: value must be in [0, 1]", ErrInvalidAction)
		}

	case ActionDeviceCommand:
		if a.DeviceID == "" {
			return fmt.Errorf("%w: device_id is required", ErrInvalidAction)
		}
		if len(a.Command) == 0 {
			return fmt.Errorf("%w: command is required", ErrInvalidAction)
		}
		if len(a.Command) > maxCommandKeys {
			return fmt.Errorf("%w: command exceeds %d keys", ErrInvalidAction, maxCommandKeys)
		}
	}

	return nil
}

// isFinite reports whether f is neither NaN nor an infinity.
func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// GenerateID creates a new UUID for a rule.
func GenerateID() string {
	return uuid.New().String()
}
