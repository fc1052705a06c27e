package device

import (
	"context"
	"time"
)

// Reading represents a single sensor sample captured during a poll.
//
// Readings are append-only: the poller inserts them, the query surface
// reads them, and the retention pass deletes old rows. Nothing updates
// a reading in place.
type Reading struct {
	// ID is the auto-incremented primary key for the reading row.
	ID int64 `json:"id"`

	// DeviceID is the unique identifier of the source device.
	DeviceID string `json:"device_id"`

	// SensorType identifies the sensor (temperature, humidity, co2, ...).
	SensorType string `json:"sensor_type"`

	// Value is the sampled measurement.
	Value float64 `json:"value"`

	// Unit is the measurement unit reported by the node, if any.
	Unit *string `json:"unit,omitempty"`

	// RecordedAt is the sample timestamp (UTC).
	RecordedAt time.Time `json:"recorded_at"`
}

// ReadingStats summarises readings for one device/sensor pair over a
// time window. Aggregate fields are nil when the window holds no rows.
type ReadingStats struct {
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Avg   *float64 `json:"avg"`
	Count int64    `json:"count"`
}

// ReadingRepository stores and retrieves sensor readings.
//
// Implementations must be thread-safe and use UTC timestamps.
type ReadingRepository interface {
	// Insert appends a new reading. The reading's ID is set on success.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - reading: Reading to persist (RecordedAt defaults to now if zero)
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	Insert(ctx context.Context, reading *Reading) error

	// Latest returns the most recent reading per (device, sensor_type).
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Restrict to one device; empty string means all devices
	//
	// Returns:
	//   - []Reading: One entry per device/sensor pair (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	Latest(ctx context.Context, deviceID string) ([]Reading, error)

	// History returns readings for a device within a time window, oldest
	// first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Unique device identifier (required)
	//   - sensorType: Restrict to one sensor; empty string means all sensors
	//   - since: Window start (inclusive)
	//
	// Returns:
	//   - []Reading: Readings ordered by recorded_at ascending (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	History(ctx context.Context, deviceID, sensorType string, since time.Time) ([]Reading, error)

	// Stats aggregates readings for one device sensor within a window.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Unique device identifier (required)
	//   - sensorType: Sensor to aggregate (required)
	//   - since: Window start (inclusive)
	//
	// Returns:
	//   - *ReadingStats: Aggregates are nil when no rows match; Count is 0
	//   - error: nil on success, otherwise the underlying query error
	Stats(ctx context.Context, deviceID, sensorType string, since time.Time) (*ReadingStats, error)

	// Prune deletes readings recorded before the cutoff.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - before: Cutoff timestamp; rows older than this are deleted
	//
	// Returns:
	//   - int64: Number of rows deleted
	//   - error: nil on success, otherwise the underlying database error
	Prune(ctx context.Context, before time.Time) (int64, error)
}
