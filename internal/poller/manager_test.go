package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/outpost-core/internal/automation"
	"github.com/nerrad567/outpost-core/internal/bridges/nodehttp"
	"github.com/nerrad567/outpost-core/internal/device"
)

// ─── Mock Dependencies ───────────────────────────────────────────────────────

type statusCall struct {
	deviceID string
	status   device.Status
	seenAt   *time.Time
}

type infoCall struct {
	deviceID string
	firmware *string
	mac      *string
}

type mockDeviceSource struct {
	mu          sync.Mutex
	devices     map[string]*device.Device
	statusCalls []statusCall
	infoCalls   []infoCall
	statusErr   error
}

func newMockDeviceSource(devs ...device.Device) *mockDeviceSource {
	m := &mockDeviceSource{devices: make(map[string]*device.Device)}
	for i := range devs {
		m.devices[devs[i].ID] = devs[i].DeepCopy()
	}
	return m
}

func (m *mockDeviceSource) GetDevice(_ context.Context, id string) (*device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (m *mockDeviceSource) ListEnabledDevices(_ context.Context) ([]device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []device.Device
	for _, d := range m.devices {
		if d.Enabled {
			out = append(out, *d.DeepCopy())
		}
	}
	return out, nil
}

func (m *mockDeviceSource) SetDeviceStatus(_ context.Context, id string, status device.Status, seenAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		return false, m.statusErr
	}
	d, ok := m.devices[id]
	if !ok {
		return false, device.ErrDeviceNotFound
	}
	changed := d.Status != status
	d.Status = status
	if seenAt != nil {
		t := *seenAt
		d.LastSeen = &t
	}
	m.statusCalls = append(m.statusCalls, statusCall{deviceID: id, status: status, seenAt: seenAt})
	return changed, nil
}

func (m *mockDeviceSource) SetDeviceInfo(_ context.Context, id string, firmware, mac *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	if firmware != nil {
		d.Firmware = firmware
	}
	if mac != nil {
		d.MAC = mac
	}
	m.infoCalls = append(m.infoCalls, infoCall{deviceID: id, firmware: firmware, mac: mac})
	return nil
}

func (m *mockDeviceSource) setEnabled(id string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		d.Enabled = enabled
	}
}

func (m *mockDeviceSource) currentStatus(id string) device.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		return d.Status
	}
	return ""
}

func (m *mockDeviceSource) getStatusCalls() []statusCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]statusCall, len(m.statusCalls))
	copy(out, m.statusCalls)
	return out
}

func (m *mockDeviceSource) getInfoCalls() []infoCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]infoCall, len(m.infoCalls))
	copy(out, m.infoCalls)
	return out
}

type mockStateReader struct {
	mu    sync.Mutex
	state *nodehttp.State
	err   error
	calls int

	// hold makes ReadState block until its context is cancelled.
	hold bool
}

func (m *mockStateReader) ReadState(ctx context.Context, _ string, _ int) (*nodehttp.State, error) {
	m.mu.Lock()
	m.calls++
	state, err, hold := m.state, m.err, m.hold
	m.mu.Unlock()

	if hold {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (m *mockStateReader) setResponse(state *nodehttp.State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.err = err
}

func (m *mockStateReader) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockReadingStore struct {
	mu        sync.Mutex
	readings  []device.Reading
	insertErr error
	pruneRows int64
	pruneFrom []time.Time
}

func (m *mockReadingStore) Insert(_ context.Context, r *device.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.readings = append(m.readings, *r)
	return nil
}

func (m *mockReadingStore) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneFrom = append(m.pruneFrom, before)
	return m.pruneRows, nil
}

func (m *mockReadingStore) getReadings() []device.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]device.Reading, len(m.readings))
	copy(out, m.readings)
	return out
}

func (m *mockReadingStore) getPruneCalls() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Time, len(m.pruneFrom))
	copy(out, m.pruneFrom)
	return out
}

type mockRuleEngine struct {
	mu     sync.Mutex
	events []automation.ReadingEvent
}

func (m *mockRuleEngine) HandleReading(_ context.Context, evt automation.ReadingEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockRuleEngine) getEvents() []automation.ReadingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]automation.ReadingEvent, len(m.events))
	copy(out, m.events)
	return out
}

type alertCall struct {
	deviceID *string
	level    string
	message  string
}

type mockAlertSink struct {
	mu     sync.Mutex
	alerts []alertCall
}

func (m *mockAlertSink) CreateAlert(_ context.Context, deviceID *string, level, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alertCall{deviceID: deviceID, level: level, message: message})
	return nil
}

func (m *mockAlertSink) getAlerts() []alertCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]alertCall, len(m.alerts))
	copy(out, m.alerts)
	return out
}

type metricWrite struct {
	deviceID   string
	sensorType string
	value      float64
	unit       string
}

type mockMetricWriter struct {
	mu     sync.Mutex
	writes []metricWrite
}

func (m *mockMetricWriter) WriteReading(deviceID, sensorType string, value float64, unit string, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, metricWrite{deviceID: deviceID, sensorType: sensorType, value: value, unit: unit})
}

func (m *mockMetricWriter) getWrites() []metricWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]metricWrite, len(m.writes))
	copy(out, m.writes)
	return out
}

type wsBroadcast struct {
	Channel string
	Event   string
	Data    map[string]any
}

type mockWSHub struct {
	mu         sync.Mutex
	broadcasts []wsBroadcast
}

func (m *mockWSHub) Broadcast(channel, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, _ := data.(map[string]any)
	m.broadcasts = append(m.broadcasts, wsBroadcast{Channel: channel, Event: event, Data: payload})
}

func (m *mockWSHub) getBroadcasts() []wsBroadcast {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]wsBroadcast, len(m.broadcasts))
	copy(out, m.broadcasts)
	return out
}

func (m *mockWSHub) countEvent(event string) int {
	count := 0
	for _, b := range m.getBroadcasts() {
		if b.Event == event {
			count++
		}
	}
	return count
}

// ─── Test Setup ──────────────────────────────────────────────────────────────

type fixture struct {
	manager  *Manager
	devices  *mockDeviceSource
	reader   *mockStateReader
	readings *mockReadingStore
	engine   *mockRuleEngine
	alerts   *mockAlertSink
	metrics  *mockMetricWriter
	hub      *mockWSHub
}

func testDevice(id, name string, intervalSeconds int) device.Device {
	return device.Device{
		ID:           id,
		Name:         name,
		DeviceType:   "esp32",
		Address:      "192.168.1.50",
		Port:         80,
		PollInterval: intervalSeconds,
		Enabled:      true,
		Status:       device.StatusUnknown,
	}
}

func testState() *nodehttp.State {
	return &nodehttp.State{
		Sensors: map[string]nodehttp.SensorValue{
			"temperature": {Value: 21.5, Unit: "C"},
			"humidity":    {Value: 48, Unit: "%"},
		},
		Actuators: map[string]any{"relay": "on"},
		Info:      nodehttp.NodeInfo{Firmware: "2.1.0", MAC: "AA:BB:CC:DD:EE:FF", Uptime: 3600},
	}
}

func setupManager(t *testing.T, cfg Config, devs ...device.Device) *fixture {
	t.Helper()

	f := &fixture{
		devices:  newMockDeviceSource(devs...),
		reader:   &mockStateReader{state: testState()},
		readings: &mockReadingStore{},
		engine:   &mockRuleEngine{},
		alerts:   &mockAlertSink{},
		metrics:  &mockMetricWriter{},
		hub:      &mockWSHub{},
	}

	manager, err := NewManager(Options{
		Devices:  f.devices,
		Reader:   f.reader,
		Readings: f.readings,
		Engine:   f.engine,
		Alerts:   f.alerts,
		Hub:      f.hub,
		Metrics:  f.metrics,
		Config:   cfg,
		Logger:   nil,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	f.manager = manager
	t.Cleanup(manager.Stop)
	return f
}

// fastConfig keeps tick-driven tests quick without touching the defaults
// under test elsewhere.
func fastConfig() Config {
	return Config{
		DefaultInterval:  20 * time.Millisecond,
		MinInterval:      10 * time.Millisecond,
		PollTimeout:      250 * time.Millisecond,
		FailureThreshold: 3,
	}
}

// waitFor polls cond until it returns true or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

// ─── Constructor Tests ───────────────────────────────────────────────────────

func TestNewManager_RequiresDependencies(t *testing.T) {
	devices := newMockDeviceSource()
	reader := &mockStateReader{}
	readings := &mockReadingStore{}

	tests := []struct {
		name string
		opts Options
	}{
		{"missing device source", Options{Reader: reader, Readings: readings}},
		{"missing state reader", Options{Devices: devices, Readings: readings}},
		{"missing reading store", Options{Devices: devices, Reader: reader}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewManager(tt.opts); err == nil {
				t.Error("NewManager() expected error, got nil")
			}
		})
	}
}

func TestManager_Start_Twice(t *testing.T) {
	f := setupManager(t, fastConfig())

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.manager.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want %v", err, ErrAlreadyStarted)
	}
}

// ─── Poll Cycle Tests ────────────────────────────────────────────────────────

func TestManager_PollSuccess(t *testing.T) {
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 0))

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !waitFor(t, time.Second, func() bool { return len(f.readings.getReadings()) >= 2 }) {
		t.Fatal("readings were not stored")
	}

	byType := make(map[string]device.Reading)
	for _, r := range f.readings.getReadings() {
		byType[r.SensorType] = r
	}
	temp, ok := byType["temperature"]
	if !ok {
		t.Fatal("temperature reading missing")
	}
	if temp.DeviceID != "dev-1" || temp.Value != 21.5 {
		t.Errorf("reading = %s/%v, want dev-1/21.5", temp.DeviceID, temp.Value)
	}
	if temp.Unit == nil || *temp.Unit != "C" {
		t.Errorf("reading unit = %v, want C", temp.Unit)
	}
	if temp.RecordedAt.IsZero() {
		t.Error("reading timestamp not set")
	}

	if !waitFor(t, time.Second, func() bool { return f.devices.currentStatus("dev-1") == device.StatusOnline }) {
		t.Fatal("device was not marked online")
	}
	calls := f.devices.getStatusCalls()
	if calls[0].seenAt == nil {
		t.Error("online status call carried no last_seen timestamp")
	}
}

func TestManager_PollSuccess_BroadcastsSensorUpdate(t *testing.T) {
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 0))

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !waitFor(t, time.Second, func() bool { return f.hub.countEvent("update") >= 1 }) {
		t.Fatal("no sensors update broadcast")
	}

	var update *wsBroadcast
	for _, b := range f.hub.getBroadcasts() {
		if b.Event == "update" {
			update = &b
			break
		}
	}
	if update.Channel != "sensors" {
		t.Errorf("broadcast channel = %s, want sensors", update.Channel)
	}
	if update.Data["device_id"] != "dev-1" || update.Data["device_name"] != "Sensor Rig" {
		t.Errorf("broadcast identity = %v/%v, want dev-1/Sensor Rig",
			update.Data["device_id"], update.Data["device_name"])
	}
	if update.Data["sensors"] == nil || update.Data["actuators"] == nil {
		t.Error("broadcast missing sensors or actuators payload")
	}

	// unknown → online is a status change and must be announced
	if !waitFor(t, time.Second, func() bool { return f.hub.countEvent("status_change") >= 1 }) {
		t.Fatal("no status_change broadcast for first successful poll")
	}
}

func TestManager_PollSuccess_HandsEventToEngine(t *testing.T) {
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 0))

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !waitFor(t, time.Second, func() bool { return len(f.engine.getEvents()) >= 1 }) {
		t.Fatal("engine received no reading event")
	}

	evt := f.engine.getEvents()[0]
	if evt.DeviceID != "dev-1" || evt.DeviceName != "Sensor Rig" {
		t.Errorf("event identity = %s/%s, want dev-1/Sensor Rig", evt.DeviceID, evt.DeviceName)
	}
	if evt.Sensors["temperature"].Value != 21.5 || evt.Sensors["temperature"].Unit != "C" {
		t.Errorf("event sensor = %+v, want 21.5/C", evt.Sensors["temperature"])
	}
	if evt.ObservedAt.IsZero() {
		t.Error("event timestamp not set")
	}
}

func TestManager_PollSuccess_RefreshesInfo(t *testing.T) {
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 0))

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !waitFor(t, time.Second, func() bool { return len(f.devices.getInfoCalls()) >= 1 }) {
		t.Fatal("device info was not refreshed")
	}

	call := f.devices.getInfoCalls()[0]
	if call.firmware == nil || *call.firmware != "2.1.0" {
		t.Errorf("firmware = %v, want 2.1.0", call.firmware)
	}
	if call.mac == nil || *call.mac != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("mac = %v, want AA:BB:CC:DD:EE:FF", call.mac)
	}
}

func TestManager_PollSuccess_SkipsEmptyInfo(t *testing.T) {
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 0))
	state := testState()
	state.Info = nodehttp.NodeInfo{}
	f.reader.setResponse(state, nil)

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !waitFor(t, time.Second, func() bool { return f.reader.callCount() >= 2 }) {
		t.Fatal("device was not polled")
	}
	if got := len(f.devices.getInfoCalls()); got != 0 {
		t.Errorf("info calls = %d, want 0 for empty info block", got)
	}
}

func TestManager_PollSuccess_MirrorsMetrics(t *testing.T) {
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 0))

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !waitFor(t, time.Second, func() bool { return len(f.metrics.getWrites()) >= 2 }) {
		t.Fatal("metrics mirror received no writes")
	}

	var temp *metricWrite
	for _, w := range f.metrics.getWrites() {
		if w.sensorType == "temperature" {
			temp = &w
			break
		}
	}
	if temp == nil {
		t.Fatal("temperature metric missing")
	}
	if temp.deviceID != "dev-1" || temp.value != 21.5 || temp.unit != "C" {
		t.Errorf("metric = %+v, want dev-1/21.5/C", temp)
	}
}

func TestManager_SensorWithoutUnit(t *testing.T) {
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 0))
	f.reader.setResponse(&nodehttp.State{
		Sensors: map[string]nodehttp.SensorValue{"light": {Value: 512}},
	}, nil)

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !waitFor(t, time.Second, func() bool { return len(f.readings.getReadings()) >= 1 }) {
		t.Fatal("reading was not stored")
	}
	if unit := f.readings.getReadings()[0].Unit; unit != nil {
		t.Errorf("unit = %q, want nil for unitless sensor", *unit)
	}
}

func TestManager_InsertFailureDoesNotStopPolling(t *testing.T) {
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 0))
	f.readings.insertErr = errors.New("disk full")

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !waitFor(t, time.Second, func() bool { return f.reader.callCount() >= 3 }) {
		t.Fatal("polling stopped after reading store failure")
	}
	if f.devices.currentStatus("dev-1") != device.StatusOnline {
		t.Error("device not marked online despite reachable node")
	}
}

// ─── Failure Threshold Tests ─────────────────────────────────────────────────

func TestManager_FailureThreshold_MarksOffline(t *testing.T) {
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 0))
	f.reader.setResponse(nil, nodehttp.ErrUnreachable)

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !waitFor(t, 2*time.Second, func() bool { return f.devices.currentStatus("dev-1") == device.StatusOffline }) {
		t.Fatal("device was not marked offline")
	}
	if got := len(f.readings.getReadings()); got != 0 {
		t.Errorf("readings stored for failing device = %d, want 0", got)
	}

	if !waitFor(t, time.Second, func() bool { return len(f.alerts.getAlerts()) >= 1 }) {
		t.Fatal("no alert for the offline transition")
	}
	alerts := f.alerts.getAlerts()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want exactly 1", len(alerts))
	}
	if alerts[0].level != "warning" {
		t.Errorf("alert level = %s, want warning", alerts[0].level)
	}
	if alerts[0].message != "Device 'Sensor Rig' is unreachable" {
		t.Errorf("alert message = %q", alerts[0].message)
	}
	if alerts[0].deviceID == nil || *alerts[0].deviceID != "dev-1" {
		t.Errorf("alert device = %v, want dev-1", alerts[0].deviceID)
	}
}

func TestManager_FailureThreshold_AlertsOnTransitionOnly(t *testing.T) {
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 0))
	f.reader.setResponse(nil, nodehttp.ErrTimeout)

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Well past the threshold: failures keep accumulating, the alert must not.
	if !waitFor(t, 2*time.Second, func() bool { return f.reader.callCount() >= 6 }) {
		t.Fatal("device was not polled repeatedly")
	}
	if got := len(f.alerts.getAlerts()); got != 1 {
		t.Errorf("alerts = %d, want 1 for the transition only", got)
	}
	if got := f.hub.countEvent("status_change"); got != 1 {
		t.Errorf("status_change broadcasts = %d, want 1", got)
	}
}

func TestManager_BelowThreshold_NoTransition(t *testing.T) {
	// A very long interval makes PollNow the only poll driver, so the
	// failure count is exact.
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 3600))
	f.reader.setResponse(nil, nodehttp.ErrUnreachable)

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !waitFor(t, time.Second, func() bool { return f.reader.callCount() == 1 }) {
		t.Fatal("initial poll did not run")
	}

	if err := f.manager.PollNow("dev-1"); err != nil {
		t.Fatalf("PollNow() error = %v", err)
	}
	if !waitFor(t, time.Second, func() bool { return f.reader.callCount() == 2 }) {
		t.Fatal("nudged poll did not run")
	}

	if status := f.devices.currentStatus("dev-1"); status == device.StatusOffline {
		t.Error("device marked offline below the failure threshold")
	}
	if got := len(f.alerts.getAlerts()); got != 0 {
		t.Errorf("alerts = %d, want 0 below threshold", got)
	}

	if err := f.manager.PollNow("dev-1"); err != nil {
		t.Fatalf("PollNow() error = %v", err)
	}
	if !waitFor(t, time.Second, func() bool { return f.devices.currentStatus("dev-1") == device.StatusOffline }) {
		t.Fatal("device not offline after third consecutive failure")
	}
}

func TestManager_Recovery_ResetsCounter(t *testing.T) {
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 0))
	f.reader.setResponse(nil, nodehttp.ErrUnreachable)

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return f.devices.currentStatus("dev-1") == device.StatusOffline }) {
		t.Fatal("device was not marked offline")
	}

	f.reader.setResponse(testState(), nil)

	if !waitFor(t, 2*time.Second, func() bool { return f.devices.currentStatus("dev-1") == device.StatusOnline }) {
		t.Fatal("device did not come back online")
	}
	if !waitFor(t, time.Second, func() bool { return f.hub.countEvent("status_change") == 2 }) {
		t.Errorf("status_change broadcasts = %d, want 2 (offline then online)",
			f.hub.countEvent("status_change"))
	}
	if got := len(f.alerts.getAlerts()); got != 1 {
		t.Errorf("alerts = %d, want 1 (recovery raises none)", got)
	}
}

// ─── Lifecycle Tests ─────────────────────────────────────────────────────────

func TestManager_Start_SkipsDisabledDevices(t *testing.T) {
	disabled := testDevice("dev-2", "Dormant", 0)
	disabled.Enabled = false
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 0), disabled)

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !f.manager.IsPolling("dev-1") {
		t.Error("enabled device has no worker")
	}
	if f.manager.IsPolling("dev-2") {
		t.Error("disabled device has a worker")
	}
	if got := f.manager.WorkerCount(); got != 1 {
		t.Errorf("WorkerCount() = %d, want 1", got)
	}
}

func TestManager_PollNow(t *testing.T) {
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 3600))

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !waitFor(t, time.Second, func() bool { return f.reader.callCount() == 1 }) {
		t.Fatal("initial poll did not run")
	}

	if err := f.manager.PollNow("dev-1"); err != nil {
		t.Fatalf("PollNow() error = %v", err)
	}
	if !waitFor(t, time.Second, func() bool { return f.reader.callCount() == 2 }) {
		t.Error("PollNow did not trigger a poll")
	}
}

func TestManager_PollNow_UnknownDevice(t *testing.T) {
	f := setupManager(t, fastConfig())

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.manager.PollNow("ghost"); !errors.Is(err, ErrNotPolled) {
		t.Errorf("PollNow() error = %v, want %v", err, ErrNotPolled)
	}
}

func TestManager_StopDevice(t *testing.T) {
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 0))

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !waitFor(t, time.Second, func() bool { return f.reader.callCount() >= 2 }) {
		t.Fatal("device was not polled")
	}

	f.manager.StopDevice("dev-1")

	if f.manager.IsPolling("dev-1") {
		t.Error("worker still registered after StopDevice")
	}
	frozen := f.reader.callCount()
	time.Sleep(60 * time.Millisecond)
	if got := f.reader.callCount(); got != frozen {
		t.Errorf("polls after StopDevice = %d, want %d", got, frozen)
	}

	// Stopping an unpolled device is a no-op.
	f.manager.StopDevice("dev-1")
}

func TestManager_StartDevice_FollowsEnabledFlag(t *testing.T) {
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 0))

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !f.manager.IsPolling("dev-1") {
		t.Fatal("enabled device has no worker")
	}

	f.devices.setEnabled("dev-1", false)
	if err := f.manager.StartDevice(context.Background(), "dev-1"); err != nil {
		t.Fatalf("StartDevice() error = %v", err)
	}
	if f.manager.IsPolling("dev-1") {
		t.Error("disabled device still has a worker")
	}

	f.devices.setEnabled("dev-1", true)
	if err := f.manager.StartDevice(context.Background(), "dev-1"); err != nil {
		t.Fatalf("StartDevice() error = %v", err)
	}
	if !f.manager.IsPolling("dev-1") {
		t.Error("re-enabled device has no worker")
	}
}

func TestManager_StartDevice_UnknownDevice(t *testing.T) {
	f := setupManager(t, fastConfig())

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	err := f.manager.StartDevice(context.Background(), "ghost")
	if !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("StartDevice() error = %v, want %v", err, device.ErrDeviceNotFound)
	}
}

func TestManager_PolledDeviceIDs(t *testing.T) {
	f := setupManager(t, fastConfig(),
		testDevice("dev-b", "Second", 0),
		testDevice("dev-a", "First", 0),
	)

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ids := f.manager.PolledDeviceIDs()
	if len(ids) != 2 || ids[0] != "dev-a" || ids[1] != "dev-b" {
		t.Errorf("PolledDeviceIDs() = %v, want [dev-a dev-b]", ids)
	}
}

func TestManager_Stop_DiscardsMidFlightPoll(t *testing.T) {
	f := setupManager(t, fastConfig(), testDevice("dev-1", "Sensor Rig", 0))
	f.reader.hold = true

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !waitFor(t, time.Second, func() bool { return f.reader.callCount() >= 1 }) {
		t.Fatal("initial poll did not start")
	}

	done := make(chan struct{})
	go func() {
		f.manager.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return while a poll was in flight")
	}

	if got := len(f.readings.getReadings()); got != 0 {
		t.Errorf("readings after cancelled poll = %d, want 0", got)
	}
	if got := len(f.devices.getStatusCalls()); got != 0 {
		t.Errorf("status calls after cancelled poll = %d, want 0", got)
	}
	if got := len(f.alerts.getAlerts()); got != 0 {
		t.Errorf("alerts after cancelled poll = %d, want 0", got)
	}
}

// ─── Retention Tests ─────────────────────────────────────────────────────────

func TestManager_PruneLoop(t *testing.T) {
	cfg := fastConfig()
	cfg.ReadingRetentionDays = 30
	cfg.PruneInterval = 15 * time.Millisecond
	f := setupManager(t, cfg)
	f.readings.pruneRows = 4

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !waitFor(t, time.Second, func() bool { return len(f.readings.getPruneCalls()) >= 1 }) {
		t.Fatal("retention pass never ran")
	}

	cutoff := f.readings.getPruneCalls()[0]
	want := time.Now().UTC().AddDate(0, 0, -30)
	if diff := want.Sub(cutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("prune cutoff = %v, want about %v", cutoff, want)
	}
}

func TestManager_PruneDisabled(t *testing.T) {
	cfg := fastConfig()
	cfg.ReadingRetentionDays = 0
	cfg.PruneInterval = 10 * time.Millisecond
	f := setupManager(t, cfg)

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if got := len(f.readings.getPruneCalls()); got != 0 {
		t.Errorf("prune calls with retention disabled = %d, want 0", got)
	}
}
