package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteReading mirrors one sensor reading into the configured bucket.
//
// The poller calls this for every reading it persists to SQLite, so the
// write path is non-blocking: the point is queued in the client's batch
// buffer and flushed asynchronously. Failures surface via the SetOnError
// callback, never to the caller.
//
// Points use the "sensor_readings" measurement with device_id and
// sensor_type tags. The unit is added as a tag only when the node
// reported one.
//
// Parameters:
//   - deviceID: Device that produced the reading
//   - sensorType: Sensor type (e.g., "temperature", "humidity")
//   - value: Sampled value
//   - unit: Unit of measurement as reported by the node, may be empty
//   - ts: Time the sample was recorded
//
// Example:
//
//	client.WriteReading("greenhouse-01", "temperature", 21.5, "C", time.Now())
func (c *Client) WriteReading(deviceID, sensorType string, value float64, unit string, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"device_id":   deviceID,
		"sensor_type": sensorType,
	}
	if unit != "" {
		tags["unit"] = unit
	}

	point := write.NewPoint(
		"sensor_readings",
		tags,
		map[string]interface{}{
			"value": value,
		},
		ts,
	)

	c.writeAPI.WritePoint(point)
}
