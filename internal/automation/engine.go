package automation

import (
	"context"
	"sync"
	"time"
)

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel, event string, data any)
}

// maxDispatchTime is the hard limit for executing one fired rule's action.
// Device command round-trips and GPIO writes both finish well inside this
// window; the bound stops a hung dispatch from pinning a goroutine.
const maxDispatchTime = 30 * time.Second

// Engine evaluates automation rules against incoming sensor readings.
//
// The poller hands each successful poll to HandleReading. The engine matches
// the event against enabled rules for that device, applies each matching
// rule's cooldown gate through the registry, and dispatches the actions of
// the rules that fire. Actions dispatch concurrently so that one slow or
// failing action cannot delay the others.
//
// Thread Safety: HandleReading is safe for concurrent use.
type Engine struct {
	registry   *Registry
	dispatcher Dispatcher
	hub        WSHub
	logger     Logger
}

// NewEngine creates a new rule engine.
//
// Parameters:
//   - registry: Rule registry providing cached lookups and the cooldown gate
//   - dispatcher: Executor for fired rules' actions
//   - hub: WebSocket hub for broadcasting trigger events (may be nil)
//   - logger: Logger instance
func NewEngine(registry *Registry, dispatcher Dispatcher, hub WSHub, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		registry:   registry,
		dispatcher: dispatcher,
		hub:        hub,
		logger:     logger,
	}
}

// HandleReading evaluates one reading event against the rule set.
//
// For every enabled rule watching the event's device, the rule fires when
// the event carries the trigger's sensor type, the comparison holds, and the
// cooldown gate admits it. Fired actions execute concurrently; HandleReading
// returns once every dispatch for this event has completed, so the caller's
// poll cycle observes the full effect of its own reading.
//
// A rule suppressed by its cooldown produces no side effects at all. A rule
// whose dispatch fails still counts as fired: the cooldown stamp stands and
// no retry is attempted.
func (e *Engine) HandleReading(ctx context.Context, evt ReadingEvent) {
	rules := e.registry.EnabledRulesForDevice(evt.DeviceID)
	if len(rules) == 0 {
		return
	}

	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := range rules {
		rule := rules[i]

		sensor, ok := evt.Sensors[rule.Trigger.SensorType]
		if !ok {
			continue
		}
		if !rule.Trigger.Matches(sensor.Value) {
			continue
		}

		fired, err := e.registry.TryFire(ctx, rule.ID, now)
		if err != nil {
			e.logger.Error("cooldown gate failed", "rule_id", rule.ID, "error", err)
			continue
		}
		if !fired {
			e.logger.Debug("rule suppressed by cooldown",
				"rule_id", rule.ID, "rule_name", rule.Name)
			continue
		}

		e.logger.Info("rule fired",
			"rule_id", rule.ID,
			"rule_name", rule.Name,
			"device_id", evt.DeviceID,
			"sensor_type", rule.Trigger.SensorType,
			"value", sensor.Value,
			"threshold", rule.Trigger.Threshold,
		)

		wg.Add(1)
		go func(rule Rule, value float64) {
			defer wg.Done()
			e.dispatchRule(ctx, &rule, value)
		}(rule, sensor.Value)
	}
	wg.Wait()
}

// dispatchRule executes one fired rule's action and broadcasts the outcome.
func (e *Engine) dispatchRule(ctx context.Context, rule *Rule, value float64) {
	ctx, cancel := context.WithTimeout(ctx, maxDispatchTime)
	defer cancel()

	err := e.dispatcher.Dispatch(ctx, rule)
	if err != nil {
		e.logger.Error("rule dispatch failed",
			"rule_id", rule.ID, "rule_name", rule.Name, "error", err)
	}

	if e.hub != nil {
		e.hub.Broadcast("alerts", "automation_triggered", map[string]any{
			"rule_id":   rule.ID,
			"rule_name": rule.Name,
			"device_id": rule.Trigger.DeviceID,
			"trigger": map[string]any{
				"sensor_type": rule.Trigger.SensorType,
				"operator":    string(rule.Trigger.Operator),
				"threshold":   rule.Trigger.Threshold,
				"value":       value,
			},
			"action":  rule.Action,
			"success": err == nil,
		})
	}
}
