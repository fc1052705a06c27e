// Package influxdb provides the optional time-series mirror for Outpost Core.
//
// It wraps the official influxdb-client-go v2 library with Outpost-specific
// patterns for connection management, reading mirroring, and health monitoring.
//
// # Purpose
//
// SQLite remains the source of truth for sensor readings. When InfluxDB is
// enabled in config.yaml, the poller additionally mirrors every persisted
// reading here so that long-range dashboards (Grafana etc.) can query
// history without touching the daemon.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "outpost",
//	    Bucket:  "sensor_readings",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteReading("greenhouse-01", "temperature", 21.5, "C", time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). This keeps per-reading overhead negligible even with
// aggressive poll intervals.
package influxdb
