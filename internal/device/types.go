package device

import "time"

// Default values applied when a device is created without them.
const (
	// DefaultPort is the HTTP port assumed for nodes that do not specify one.
	DefaultPort = 80

	// DefaultPollInterval is the poll interval (seconds) for devices that do
	// not specify their own.
	DefaultPollInterval = 5

	// DefaultDeviceType is the classification tag for untyped devices.
	DefaultDeviceType = "generic"
)

// Device represents a networked sensor/actuator node managed by Outpost.
// Each device exposes an HTTP status/control interface and is polled on
// its own interval.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Classification tag, free-form (e.g. "esp32", "pi-node", "relay-board").
	DeviceType string `json:"device_type"`

	// Network endpoint. Address is a bare host or IP; the node client
	// composes the URL.
	Address string `json:"address"`
	Port    int    `json:"port"`

	// Polling configuration. PollInterval is in seconds; the scheduler
	// enforces the configured floor.
	PollInterval int  `json:"poll_interval"`
	Enabled      bool `json:"enabled"`

	// Liveness, owned by the poller. Status transitions are broadcast on
	// the devices channel.
	Status   Status     `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// Learned from the node's info responses; never set by hand.
	Firmware *string `json:"firmware,omitempty"`
	MAC      *string `json:"mac,omitempty"`

	Description *string `json:"description,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Device.
// This is essential for cache isolation: callers receive a copy they can
// mutate without affecting the registry's cached entry.
//
// A value copy is sufficient here. Pointer fields (*string, *time.Time)
// reference immutable values in Go, so sharing the pointees is safe;
// reassigning a pointer on the copy never touches the original.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	return &cpy
}

// Status represents device liveness as observed by the poller.
type Status string

// Status constants.
const (
	// StatusOnline means the most recent poll succeeded.
	StatusOnline Status = "online"

	// StatusOffline means the consecutive-failure threshold was reached.
	StatusOffline Status = "offline"

	// StatusUnknown is the initial state before any poll has completed.
	StatusUnknown Status = "unknown"
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{StatusOnline, StatusOffline, StatusUnknown}
}
