package automation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type pinWrite struct {
	Pin   int
	Value float64
}

type mockPinWriter struct {
	writes []pinWrite
	mu     sync.Mutex
	err    error
}

func (m *mockPinWriter) WriteValue(_ context.Context, pin int, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.writes = append(m.writes, pinWrite{Pin: pin, Value: value})
	return nil
}

func (m *mockPinWriter) getWrites() []pinWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := make([]pinWrite, len(m.writes))
	copy(cpy, m.writes)
	return cpy
}

type mockDeviceDirectory struct {
	devices map[string]DeviceInfo
}

func (m *mockDeviceDirectory) GetDeviceInfo(_ context.Context, id string) (DeviceInfo, error) {
	info, ok := m.devices[id]
	if !ok {
		return DeviceInfo{}, errors.New("device: not found")
	}
	return info, nil
}

type sentCommand struct {
	Address string
	Port    int
	Command map[string]any
}

type mockCommandSender struct {
	sent []sentCommand
	mu   sync.Mutex
	err  error
}

func (m *mockCommandSender) SendCommand(_ context.Context, address string, port int, command map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.sent = append(m.sent, sentCommand{Address: address, Port: port, Command: command})
	return map[string]any{"status": "ok"}, nil
}

func (m *mockCommandSender) getSent() []sentCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := make([]sentCommand, len(m.sent))
	copy(cpy, m.sent)
	return cpy
}

type recordedAlert struct {
	DeviceID *string
	Level    string
	Message  string
}

type mockAlertSink struct {
	alerts []recordedAlert
	mu     sync.Mutex
}

func (m *mockAlertSink) CreateAlert(_ context.Context, deviceID *string, level, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, recordedAlert{DeviceID: deviceID, Level: level, Message: message})
	return nil
}

func (m *mockAlertSink) getAlerts() []recordedAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := make([]recordedAlert, len(m.alerts))
	copy(cpy, m.alerts)
	return cpy
}

// ─── Helper ─────────────────────────────────────────────────────────────────

func setupDispatcher(t *testing.T) (*ActionDispatcher, *mockPinWriter, *mockCommandSender, *mockAlertSink, *mockWSHub) {
	t.Helper()

	pins := &mockPinWriter{}
	directory := &mockDeviceDirectory{
		devices: map[string]DeviceInfo{
			"relay-01": {ID: "relay-01", Name: "Garden Pump", Address: "192.168.1.40", Port: 80},
		},
	}
	sender := &mockCommandSender{}
	alerts := &mockAlertSink{}
	hub := newMockWSHub()

	d := NewActionDispatcher(pins, directory, sender, alerts, hub, noopLogger{})
	return d, pins, sender, alerts, hub
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestActionDispatcher_PinAction(t *testing.T) {
	d, pins, _, alerts, _ := setupDispatcher(t)

	rule := testRule("r1", "Fan On", "dev-1")
	if err := d.Dispatch(context.Background(), rule); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	writes := pins.getWrites()
	if len(writes) != 1 {
		t.Fatalf("wrote %d pins, want 1", len(writes))
	}
	if writes[0].Pin != 18 || writes[0].Value != 1.0 {
		t.Errorf("wrote pin %d value %v, want pin 18 value 1", writes[0].Pin, writes[0].Value)
	}
	if got := alerts.getAlerts(); len(got) != 0 {
		t.Errorf("raised %d alerts on success, want 0", len(got))
	}
}

func TestActionDispatcher_PinWriteFailure(t *testing.T) {
	d, pins, _, alerts, _ := setupDispatcher(t)
	pins.err = errors.New("pin 18 is configured as input")

	rule := testRule("r1", "Fan On", "dev-1")
	err := d.Dispatch(context.Background(), rule)
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("Dispatch() error = %v, want ErrDispatchFailed", err)
	}

	got := alerts.getAlerts()
	if len(got) != 1 {
		t.Fatalf("raised %d alerts, want 1", len(got))
	}
	if got[0].Level != "error" {
		t.Errorf("alert level = %q, want %q", got[0].Level, "error")
	}
	if !strings.Contains(got[0].Message, "Fan On") {
		t.Errorf("alert message %q does not name the rule", got[0].Message)
	}
	if !strings.Contains(got[0].Message, "input") {
		t.Errorf("alert message %q does not name the cause", got[0].Message)
	}
}

func TestActionDispatcher_GPIOUnavailable(t *testing.T) {
	directory := &mockDeviceDirectory{}
	alerts := &mockAlertSink{}
	d := NewActionDispatcher(nil, directory, &mockCommandSender{}, alerts, nil, noopLogger{})

	rule := testRule("r1", "Fan On", "dev-1")
	if err := d.Dispatch(context.Background(), rule); !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("Dispatch() error = %v, want ErrDispatchFailed", err)
	}
	if got := alerts.getAlerts(); len(got) != 1 {
		t.Errorf("raised %d alerts, want 1", len(got))
	}
}

func TestActionDispatcher_DeviceCommand(t *testing.T) {
	d, _, sender, alerts, hub := setupDispatcher(t)

	rule := &Rule{
		ID:      "r2",
		Name:    "Start Pump",
		Enabled: true,
		Trigger: validTrigger(),
		Action:  validCommandAction(),
	}
	if err := d.Dispatch(context.Background(), rule); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	sent := sender.getSent()
	if len(sent) != 1 {
		t.Fatalf("sent %d commands, want 1", len(sent))
	}
	if sent[0].Address != "192.168.1.40" || sent[0].Port != 80 {
		t.Errorf("sent to %s:%d, want 192.168.1.40:80", sent[0].Address, sent[0].Port)
	}

	broadcasts := hub.getBroadcasts()
	if len(broadcasts) != 1 {
		t.Fatalf("broadcast %d events, want 1", len(broadcasts))
	}
	if broadcasts[0].Channel != "devices" || broadcasts[0].Event != "control_result" {
		t.Errorf("broadcast = %s:%s, want devices:control_result",
			broadcasts[0].Channel, broadcasts[0].Event)
	}

	if got := alerts.getAlerts(); len(got) != 0 {
		t.Errorf("raised %d alerts on success, want 0", len(got))
	}
}

func TestActionDispatcher_DeviceCommand_UnknownDevice(t *testing.T) {
	d, _, _, alerts, _ := setupDispatcher(t)

	rule := &Rule{
		ID:      "r2",
		Name:    "Start Pump",
		Trigger: validTrigger(),
		Action: Action{
			Kind:     ActionDeviceCommand,
			DeviceID: "missing",
			Command:  map[string]any{"state": true},
		},
	}
	err := d.Dispatch(context.Background(), rule)
	if !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("Dispatch() error = %v, want ErrDispatchFailed", err)
	}

	got := alerts.getAlerts()
	if len(got) != 1 {
		t.Fatalf("raised %d alerts, want 1", len(got))
	}
	if got[0].DeviceID == nil || *got[0].DeviceID != "missing" {
		t.Errorf("alert device = %v, want target device ID", got[0].DeviceID)
	}
}

func TestActionDispatcher_DeviceCommand_SendFailure(t *testing.T) {
	d, _, sender, alerts, hub := setupDispatcher(t)
	sender.err = errors.New("connection refused")

	rule := &Rule{
		ID:      "r2",
		Name:    "Start Pump",
		Trigger: validTrigger(),
		Action:  validCommandAction(),
	}
	if err := d.Dispatch(context.Background(), rule); !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("Dispatch() error = %v, want ErrDispatchFailed", err)
	}

	if got := hub.getBroadcasts(); len(got) != 0 {
		t.Errorf("broadcast %d events on failure, want 0", len(got))
	}
	got := alerts.getAlerts()
	if len(got) != 1 {
		t.Fatalf("raised %d alerts, want 1", len(got))
	}
	if !strings.Contains(got[0].Message, "connection refused") {
		t.Errorf("alert message %q does not carry the cause", got[0].Message)
	}
}

func TestActionDispatcher_UnknownKind(t *testing.T) {
	d, _, _, alerts, _ := setupDispatcher(t)

	rule := &Rule{
		ID:      "r3",
		Name:    "Teleporter",
		Trigger: validTrigger(),
		Action:  Action{Kind: "teleport"},
	}
	if err := d.Dispatch(context.Background(), rule); !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("Dispatch() error = %v, want ErrDispatchFailed", err)
	}
	if got := alerts.getAlerts(); len(got) != 1 {
		t.Errorf("raised %d alerts, want 1", len(got))
	}
}
