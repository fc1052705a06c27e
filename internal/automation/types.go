package automation

import (
	"math"
	"time"
)

// Operator is a comparison operator applied between a sampled sensor value
// and a rule's threshold.
type Operator string

// Supported comparison operators.
const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// AllOperators returns the comparison operators a trigger may use.
func AllOperators() []Operator {
	return []Operator{OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual}
}

// ActionKind selects which variant of an Action is populated.
type ActionKind string

// Supported action kinds.
const (
	// ActionPin writes a value to a locally managed GPIO pin.
	ActionPin ActionKind = "pin"

	// ActionDeviceCommand sends an HTTP command to a network device.
	ActionDeviceCommand ActionKind = "device_command"
)

// AllActionKinds returns the action kinds a rule may use.
func AllActionKinds() []ActionKind {
	return []ActionKind{ActionPin, ActionDeviceCommand}
}

// Trigger is the condition half of a rule: it names a device's sensor and the
// comparison that must hold for the rule to fire.
type Trigger struct {
	DeviceID   string   `json:"device_id"`
	SensorType string   `json:"sensor_type"`
	Operator   Operator `json:"operator"`
	Threshold  float64  `json:"threshold"`
}

// Action is the effect half of a rule. Exactly one variant is populated,
// selected by Kind: pin actions carry Pin and Value, device command actions
// carry DeviceID and Command.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Pin variant: BCM pin number and the value to write. Digital outputs
	// treat any non-zero value as high; PWM outputs interpret the value as
	// a duty cycle in [0.0, 1.0].
	Pin   *int     `json:"pin,omitempty"`
	Value *float64 `json:"value,omitempty"`

	// Device command variant: target device and the command body forwarded
	// to the device's control endpoint.
	DeviceID string         `json:"device_id,omitempty"`
	Command  map[string]any `json:"command,omitempty"`
}

// Rule pairs a sensor trigger with an action, gated by a per-rule cooldown.
//
// LastTriggered is owned by the engine: it is stamped when a rule fires and
// survives rule edits unchanged. CooldownSeconds of zero means the rule may
// fire on every matching reading.
type Rule struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     *string    `json:"description,omitempty"`
	Enabled         bool       `json:"enabled"`
	CooldownSeconds int        `json:"cooldown_seconds"`
	Trigger         Trigger    `json:"trigger"`
	Action          Action     `json:"action"`
	LastTriggered   *time.Time `json:"last_triggered,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SensorValue is a single sensor's sampled value within a reading event.
type SensorValue struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// ReadingEvent is one successful device poll, handed to the engine by the
// poller. Sensors maps sensor type to its sampled value; Actuators carries
// the device's reported actuator states untouched.
type ReadingEvent struct {
	DeviceID   string
	DeviceName string
	Sensors    map[string]SensorValue
	Actuators  map[string]any
	ObservedAt time.Time
}

// DeepCopy creates a fully independent copy of the rule.
//
// The registry returns copies from its cache so callers can never mutate
// cached state. Pointer fields and the action's command map are cloned.
func (r *Rule) DeepCopy() *Rule {
	if r == nil {
		return nil
	}

	c := *r
	c.Description = cloneStringPtr(r.Description)
	c.Action.Pin = cloneIntPtr(r.Action.Pin)
	c.Action.Value = cloneFloatPtr(r.Action.Value)
	c.Action.Command = deepCopyMap(r.Action.Command)

	if r.LastTriggered != nil {
		t := *r.LastTriggered
		c.LastTriggered = &t
	}

	return &c
}

// Matches reports whether the event's value for the trigger's sensor type
// satisfies the comparison. Comparison follows IEEE 754 semantics with one
// deliberate exception: NaN on either side never matches, including for !=.
func (t Trigger) Matches(value float64) bool {
	if math.IsNaN(value) || math.IsNaN(t.Threshold) {
		return false
	}

	switch t.Operator {
	case OpGreater:
		return value > t.Threshold
	case OpLess:
		return value < t.Threshold
	case OpGreaterEqual:
		return value >= t.Threshold
	case OpLessEqual:
		return value <= t.Threshold
	case OpEqual:
		return value == t.Threshold
	case OpNotEqual:
		return value != t.Threshold
	default:
		return false
	}
}

// cloneStringPtr creates an independent copy of a string pointer.
func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// cloneIntPtr creates an independent copy of an int pointer.
func cloneIntPtr(i *int) *int {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// cloneFloatPtr creates an independent copy of a float64 pointer.
func cloneFloatPtr(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

// deepCopyMap recursively copies a map, handling nested maps and slices.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = deepCopyValue(v)
	}
	return c
}

// deepCopyValue copies a value, recursing into maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		c := make([]any, len(val))
		for i, item := range val {
			c[i] = deepCopyValue(item)
		}
		return c
	default:
		// Primitives (string, float64, bool, nil) are copied by value.
		return v
	}
}
