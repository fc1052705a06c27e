// Package device provides the Device Registry for Outpost Core.
//
// The Device Registry is the central catalogue of the networked
// sensor/actuator nodes an Outpost installation manages. It owns device
// lifecycle and liveness, and stores the sensor readings the poller
// captures from each node.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────────────┐
//	│                          Device Registry                                 │
//	│                                                                          │
//	│  ┌──────────────────┐    ┌──────────────────┐    ┌──────────────────┐   │
//	│  │     Registry     │    │    Repository    │    │     Readings     │   │
//	│  │   (registry.go)  │───▶│  (repository.go) │    │  (readings*.go)  │   │
//	│  │                  │    │                  │    │                  │   │
//	│  │ • CRUD ops       │    │ • SQLite queries │    │ • Append samples │   │
//	│  │ • In-memory cache│    │ • Status writes  │    │ • Latest/history │   │
//	│  │ • Thread safety  │    │ • Info writes    │    │ • Retention prune│   │
//	│  └──────────────────┘    └──────────────────┘    └──────────────────┘   │
//	│           │                       │                       │              │
//	└───────────│───────────────────────│───────────────────────│──────────────┘
//	            │                       │                       │
//	            ▼                       ▼                       ▼
//	┌──────────────────────┐   ┌──────────────────────┐   ┌──────────────────────┐
//	│  REST API / Poller   │   │   SQLite Database    │   │  sensor_readings     │
//	│  • CRUD + control    │   │   (devices table)    │   │  table               │
//	│  • status events     │   └──────────────────────┘   └──────────────────────┘
//	└──────────────────────┘
//
// # Key Types
//
//   - Device: A networked node with an HTTP status/control interface
//   - Status: Liveness as observed by the poller (online, offline, unknown)
//   - Reading: One sensor sample captured during a poll
//
// # Usage
//
//	// Create repository and registry
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	// Load devices into cache on startup
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	// Create a new device
//	dev := &device.Device{
//	    Name:    "Greenhouse Node",
//	    Address: "192.168.1.40",
//	    Enabled: true,
//	}
//	if err := registry.CreateDevice(ctx, dev); err != nil {
//	    return err
//	}
//
//	// Liveness updates (from the poller)
//	now := time.Now().UTC()
//	changed, _ := registry.SetDeviceStatus(ctx, dev.ID, device.StatusOnline, &now)
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All operations are protected by
// a read-write mutex and callers always receive deep copies, never cache
// entries. The Repository implementation must also be thread-safe.
package device
