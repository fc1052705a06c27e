package automation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

// mockDispatcher records dispatched rules and can fail selectively.
type mockDispatcher struct {
	dispatched []Rule
	mu         sync.Mutex
	failOn     string        // Rule ID to fail on (for error testing)
	delay      time.Duration // Simulated execution time
}

func newMockDispatcher() *mockDispatcher {
	return &mockDispatcher{}
}

func (m *mockDispatcher) Dispatch(_ context.Context, rule *Rule) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.dispatched = append(m.dispatched, *rule.DeepCopy())
	if m.failOn != "" && rule.ID == m.failOn {
		return errors.New("dispatch exploded")
	}
	return nil
}

func (m *mockDispatcher) getDispatched() []Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := make([]Rule, len(m.dispatched))
	copy(cpy, m.dispatched)
	return cpy
}

// mockWSHub captures all broadcasts.
type mockWSHub struct {
	broadcasts []wsBroadcast
	mu         sync.Mutex
}

type wsBroadcast struct {
	Channel string
	Event   string
	Data    any
}

func newMockWSHub() *mockWSHub {
	return &mockWSHub{}
}

func (m *mockWSHub) Broadcast(channel, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, wsBroadcast{Channel: channel, Event: event, Data: data})
}

func (m *mockWSHub) getBroadcasts() []wsBroadcast {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := make([]wsBroadcast, len(m.broadcasts))
	copy(cpy, m.broadcasts)
	return cpy
}

// ─── Helper ─────────────────────────────────────────────────────────────────

func setupEngine(t *testing.T) (*Engine, *Registry, *mockRepository, *mockDispatcher, *mockWSHub) {
	t.Helper()

	repo := newMockRepository()
	registry := NewRegistry(repo)
	dispatcher := newMockDispatcher()
	hub := newMockWSHub()

	engine := NewEngine(registry, dispatcher, hub, noopLogger{})
	return engine, registry, repo, dispatcher, hub
}

func tempEvent(deviceID string, value float64) ReadingEvent {
	return ReadingEvent{
		DeviceID:   deviceID,
		DeviceName: "Test Device",
		Sensors: map[string]SensorValue{
			"temperature": {Value: value, Unit: "C"},
		},
		ObservedAt: time.Now().UTC(),
	}
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestEngine_HandleReading_Fires(t *testing.T) {
	engine, registry, repo, dispatcher, hub := setupEngine(t)
	seedRule(t, registry, repo, testRule("r1", "High Temp", "dev-1"))

	// 30 > 25: the rule fires.
	engine.HandleReading(context.Background(), tempEvent("dev-1", 30.0))

	dispatched := dispatcher.getDispatched()
	if len(dispatched) != 1 {
		t.Fatalf("dispatched %d rules, want 1", len(dispatched))
	}
	if dispatched[0].ID != "r1" {
		t.Errorf("dispatched rule = %q, want %q", dispatched[0].ID, "r1")
	}

	broadcasts := hub.getBroadcasts()
	if len(broadcasts) != 1 {
		t.Fatalf("broadcast %d events, want 1", len(broadcasts))
	}
	b := broadcasts[0]
	if b.Channel != "alerts" || b.Event != "automation_triggered" {
		t.Errorf("broadcast = %s:%s, want alerts:automation_triggered", b.Channel, b.Event)
	}
	data, ok := b.Data.(map[string]any)
	if !ok {
		t.Fatalf("broadcast data is %T, want map[string]any", b.Data)
	}
	if data["rule_id"] != "r1" {
		t.Errorf("broadcast rule_id = %v, want r1", data["rule_id"])
	}
	if data["success"] != true {
		t.Errorf("broadcast success = %v, want true", data["success"])
	}
}

func TestEngine_HandleReading_BelowThreshold(t *testing.T) {
	engine, registry, repo, dispatcher, hub := setupEngine(t)
	seedRule(t, registry, repo, testRule("r1", "High Temp", "dev-1"))

	// 20 is not > 25: nothing happens.
	engine.HandleReading(context.Background(), tempEvent("dev-1", 20.0))

	if got := dispatcher.getDispatched(); len(got) != 0 {
		t.Errorf("dispatched %d rules, want 0", len(got))
	}
	if got := hub.getBroadcasts(); len(got) != 0 {
		t.Errorf("broadcast %d events, want 0", len(got))
	}
}

func TestEngine_HandleReading_SensorTypeAbsent(t *testing.T) {
	engine, registry, repo, dispatcher, _ := setupEngine(t)
	seedRule(t, registry, repo, testRule("r1", "High Temp", "dev-1"))

	evt := ReadingEvent{
		DeviceID: "dev-1",
		Sensors: map[string]SensorValue{
			"humidity": {Value: 99.0, Unit: "%"},
		},
	}
	engine.HandleReading(context.Background(), evt)

	if got := dispatcher.getDispatched(); len(got) != 0 {
		t.Errorf("dispatched %d rules for absent sensor type, want 0", len(got))
	}
}

func TestEngine_HandleReading_OtherDevice(t *testing.T) {
	engine, registry, repo, dispatcher, _ := setupEngine(t)
	seedRule(t, registry, repo, testRule("r1", "High Temp", "dev-1"))

	engine.HandleReading(context.Background(), tempEvent("dev-2", 99.0))

	if got := dispatcher.getDispatched(); len(got) != 0 {
		t.Errorf("dispatched %d rules for unrelated device, want 0", len(got))
	}
}

func TestEngine_HandleReading_NaNNeverFires(t *testing.T) {
	for _, op := range AllOperators() {
		t.Run(string(op), func(t *testing.T) {
			engine, registry, repo, dispatcher, _ := setupEngine(t)
			rule := testRule("r1", "NaN Guard", "dev-1")
			rule.Trigger.Operator = op
			rule.CooldownSeconds = 0
			seedRule(t, registry, repo, rule)

			engine.HandleReading(context.Background(), tempEvent("dev-1", math.NaN()))

			if got := dispatcher.getDispatched(); len(got) != 0 {
				t.Errorf("operator %s fired on NaN", op)
			}
		})
	}
}

func TestEngine_HandleReading_CooldownSuppresses(t *testing.T) {
	engine, registry, repo, dispatcher, hub := setupEngine(t)
	seedRule(t, registry, repo, testRule("r1", "High Temp", "dev-1"))

	engine.HandleReading(context.Background(), tempEvent("dev-1", 30.0))
	engine.HandleReading(context.Background(), tempEvent("dev-1", 31.0))

	// Second reading matched but the 60s cooldown suppresses it; a
	// suppressed rule produces no side effects at all.
	if got := dispatcher.getDispatched(); len(got) != 1 {
		t.Errorf("dispatched %d rules, want 1", len(got))
	}
	if got := hub.getBroadcasts(); len(got) != 1 {
		t.Errorf("broadcast %d events, want 1", len(got))
	}
}

func TestEngine_HandleReading_IndependentDispatch(t *testing.T) {
	engine, registry, repo, dispatcher, hub := setupEngine(t)

	repo.rules["r1"] = testRule("r1", "Rule One", "dev-1")
	repo.rules["r2"] = testRule("r2", "Rule Two", "dev-1")
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	dispatcher.failOn = "r1"

	engine.HandleReading(context.Background(), tempEvent("dev-1", 30.0))

	// Both rules dispatched despite r1 failing.
	if got := dispatcher.getDispatched(); len(got) != 2 {
		t.Fatalf("dispatched %d rules, want 2", len(got))
	}

	// Both outcomes broadcast, with per-rule success flags.
	success := make(map[string]bool)
	for _, b := range hub.getBroadcasts() {
		data, ok := b.Data.(map[string]any)
		if !ok {
			t.Fatalf("broadcast data is %T, want map[string]any", b.Data)
		}
		id, _ := data["rule_id"].(string)
		ok2, _ := data["success"].(bool)
		success[id] = ok2
	}
	if success["r1"] {
		t.Error("r1 reported success, want failure")
	}
	if !success["r2"] {
		t.Error("r2 reported failure, want success")
	}
}

func TestEngine_HandleReading_ParallelDispatch(t *testing.T) {
	engine, registry, repo, dispatcher, _ := setupEngine(t)

	repo.rules["r1"] = testRule("r1", "Rule One", "dev-1")
	repo.rules["r2"] = testRule("r2", "Rule Two", "dev-1")
	repo.rules["r3"] = testRule("r3", "Rule Three", "dev-1")
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	dispatcher.delay = 50 * time.Millisecond

	start := time.Now()
	engine.HandleReading(context.Background(), tempEvent("dev-1", 30.0))
	elapsed := time.Since(start)

	if got := dispatcher.getDispatched(); len(got) != 3 {
		t.Fatalf("dispatched %d rules, want 3", len(got))
	}
	// Three 50ms dispatches run concurrently: total should be well under
	// the 150ms a serial run would take.
	if elapsed > 120*time.Millisecond {
		t.Errorf("HandleReading took %v, want < 120ms for parallel dispatch", elapsed)
	}
}

func TestEngine_HandleReading_DispatchFailureKeepsStamp(t *testing.T) {
	engine, registry, repo, dispatcher, _ := setupEngine(t)
	seedRule(t, registry, repo, testRule("r1", "High Temp", "dev-1"))
	dispatcher.failOn = "r1"

	engine.HandleReading(context.Background(), tempEvent("dev-1", 30.0))
	engine.HandleReading(context.Background(), tempEvent("dev-1", 30.0))

	// The failed dispatch consumed the cooldown window: no retry.
	if got := dispatcher.getDispatched(); len(got) != 1 {
		t.Errorf("dispatched %d times, want 1 (no retry after failure)", len(got))
	}
}

func TestEngine_HandleReading_NoRules(t *testing.T) {
	engine, _, _, dispatcher, _ := setupEngine(t)

	// No rules at all: a cheap no-op.
	engine.HandleReading(context.Background(), tempEvent("dev-1", 30.0))

	if got := dispatcher.getDispatched(); len(got) != 0 {
		t.Errorf("dispatched %d rules, want 0", len(got))
	}
}

func TestEngine_HandleReading_ConcurrentEvents(t *testing.T) {
	engine, registry, repo, dispatcher, _ := setupEngine(t)
	seedRule(t, registry, repo, testRule("r1", "High Temp", "dev-1"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.HandleReading(context.Background(), tempEvent("dev-1", 30.0))
		}()
	}
	wg.Wait()

	// Ten concurrent matching events, one 60s window: exactly one fire.
	if got := dispatcher.getDispatched(); len(got) != 1 {
		t.Errorf("dispatched %d rules from concurrent events, want 1", len(got))
	}
}

func TestEngine_HandleReading_OperatorGrid(t *testing.T) {
	tests := []struct {
		operator  Operator
		threshold float64
		value     float64
		wantFire  bool
	}{
		{OpGreater, 25, 30, true},
		{OpGreater, 25, 25, false},
		{OpLess, 25, 20, true},
		{OpLess, 25, 25, false},
		{OpGreaterEqual, 25, 25, true},
		{OpGreaterEqual, 25, 24.9, false},
		{OpLessEqual, 25, 25, true},
		{OpLessEqual, 25, 25.1, false},
		{OpEqual, 25, 25, true},
		{OpEqual, 25, 25.0001, false},
		{OpNotEqual, 25, 26, true},
		{OpNotEqual, 25, 25, false},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("%v_%s_%v", tt.value, tt.operator, tt.threshold)
		t.Run(name, func(t *testing.T) {
			engine, registry, repo, dispatcher, _ := setupEngine(t)
			rule := testRule("r1", "Grid", "dev-1")
			rule.Trigger.Operator = tt.operator
			rule.Trigger.Threshold = tt.threshold
			seedRule(t, registry, repo, rule)

			engine.HandleReading(context.Background(), tempEvent("dev-1", tt.value))

			fired := len(dispatcher.getDispatched()) == 1
			if fired != tt.wantFire {
				t.Errorf("fired = %v, want %v", fired, tt.wantFire)
			}
		})
	}
}
