// Package automation provides the rule engine for Outpost Core.
//
// Rules pair a sensor trigger (device, sensor type, comparison, threshold)
// with an action (a GPIO pin write or a device command), gated by a per-rule
// cooldown. The poller feeds every successful device poll into the engine,
// which fires the rules whose conditions hold.
//
// Architecture:
//
//	┌───────────────────────────────────────────────────────┐
//	│                  Engine (engine.go)                    │
//	│  Evaluates readings against enabled rules              │
//	│  ┌──────────────┐    ┌──────────────┐                │
//	│  │   Registry   │───▶│  Repository  │                │
//	│  │(registry.go) │    │(repository.go)│               │
//	│  └──────────────┘    └──────────────┘                │
//	│        │                                              │
//	│        ▼                                              │
//	│  ┌──────────────────────────────────────────────┐    │
//	│  │  Evaluation Pipeline                          │    │
//	│  │  1. Match enabled rules for the device        │    │
//	│  │  2. Compare sensor value against threshold    │    │
//	│  │  3. TryFire: atomic cooldown check-and-stamp  │    │
//	│  │  4. Dispatch actions: goroutines + WaitGroup  │    │
//	│  │  5. Broadcast automation_triggered event      │    │
//	│  └──────────────────────────────────────────────┘    │
//	└───────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Rule: Trigger + action + cooldown definition
//   - Trigger: Sensor condition (device_id, sensor_type, operator, threshold)
//   - Action: Tagged variant, either a GPIO pin write or an HTTP device command
//   - Engine: Evaluator that fires rules from incoming readings
//   - Registry: Thread-safe in-memory cache wrapping Repository; owns the
//     atomic cooldown gate (TryFire)
//   - ActionDispatcher: Executes fired actions and raises failure alerts
//
// # Cooldown Semantics
//
// A rule fires at most once per cooldown window. TryFire checks and stamps
// last_triggered in a single critical section, so concurrent evaluations can
// never double-fire a rule. The stamp stands even when the action later
// fails, and rule edits never reset it.
//
// # Thread Safety
//
// Registry and Engine are safe for concurrent use from multiple goroutines.
// All public methods use appropriate synchronisation.
//
// # Usage
//
//	repo := automation.NewSQLiteRepository(db)
//	registry := automation.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	dispatcher := automation.NewActionDispatcher(pins, devices, nodes, alerts, hub, log)
//	engine := automation.NewEngine(registry, dispatcher, hub, log)
//	engine.HandleReading(ctx, event)
package automation
