package alert

import "time"

// Level classifies an alert's severity.
type Level string

// Alert severity levels, ordered from least to most severe.
const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// AllLevels returns the valid alert levels.
func AllLevels() []Level {
	return []Level{LevelInfo, LevelWarning, LevelError, LevelCritical}
}

// IsValid reports whether the level is one of the defined severities.
func (l Level) IsValid() bool {
	switch l {
	case LevelInfo, LevelWarning, LevelError, LevelCritical:
		return true
	}
	return false
}

// Alert is an append-only operational event: a device going offline, an
// automation rule failing, a threshold breach. Alerts are never edited after
// creation; acknowledgement is the only mutation.
type Alert struct {
	ID string `json:"id"`

	// DeviceID links the alert to a device when one is involved.
	// System-level alerts carry nil.
	DeviceID *string `json:"device_id,omitempty"`

	Level        Level     `json:"level"`
	Message      string    `json:"message"`
	Acknowledged bool      `json:"acknowledged"`
	CreatedAt    time.Time `json:"created_at"`
}

// DeepCopy creates a fully independent copy of the alert.
func (a *Alert) DeepCopy() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	if a.DeviceID != nil {
		id := *a.DeviceID
		c.DeviceID = &id
	}
	return &c
}
