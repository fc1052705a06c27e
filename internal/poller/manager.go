package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/outpost-core/internal/automation"
	"github.com/nerrad567/outpost-core/internal/bridges/nodehttp"
	"github.com/nerrad567/outpost-core/internal/device"
)

// Logger defines the logging interface for the poller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel, event string, data any)
}

// DeviceSource provides device lookups and liveness updates.
// The device registry satisfies this.
type DeviceSource interface {
	// GetDevice retrieves a device by ID.
	GetDevice(ctx context.Context, id string) (*device.Device, error)

	// ListEnabledDevices returns all devices with polling enabled.
	ListEnabledDevices(ctx context.Context) ([]device.Device, error)

	// SetDeviceStatus updates a device's liveness. The returned bool reports
	// whether the status actually changed.
	SetDeviceStatus(ctx context.Context, id string, status device.Status, seenAt *time.Time) (bool, error)

	// SetDeviceInfo refreshes the firmware/mac fields learned from polls.
	// Nil values leave the existing fields untouched.
	SetDeviceInfo(ctx context.Context, id string, firmware, mac *string) error
}

// StateReader reads the current state of a node over its HTTP interface.
// The nodehttp client satisfies this.
type StateReader interface {
	ReadState(ctx context.Context, address string, port int) (*nodehttp.State, error)
}

// ReadingStore persists sensor readings.
// The SQLite reading repository satisfies this.
type ReadingStore interface {
	Insert(ctx context.Context, r *device.Reading) error
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// RuleEngine evaluates automation rules against reading events.
// The automation engine satisfies this.
type RuleEngine interface {
	HandleReading(ctx context.Context, evt automation.ReadingEvent)
}

// AlertSink records alerts raised by poll failures.
type AlertSink interface {
	// CreateAlert persists an alert. A nil deviceID records a system alert.
	CreateAlert(ctx context.Context, deviceID *string, level, message string) error
}

// MetricWriter mirrors readings to a time-series store. Writes are
// fire-and-forget; the poll cycle never waits on them.
type MetricWriter interface {
	WriteReading(deviceID, sensorType string, value float64, unit string, ts time.Time)
}

// Config holds poll scheduling settings.
type Config struct {
	// DefaultInterval is the poll interval for devices that do not specify
	// their own. Default: 5s
	DefaultInterval time.Duration

	// MinInterval is the floor applied to any device interval. Default: 1s
	MinInterval time.Duration

	// PollTimeout bounds a single status read. Default: 5s
	PollTimeout time.Duration

	// FailureThreshold is the number of consecutive poll failures before a
	// device is marked offline. Default: 3
	FailureThreshold int

	// ReadingRetentionDays controls pruning of old readings.
	// 0 disables the retention pass.
	ReadingRetentionDays int

	// PruneInterval is how often the retention pass runs. Default: 1h
	PruneInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultInterval:      5 * time.Second,
		MinInterval:          time.Second,
		PollTimeout:          5 * time.Second,
		FailureThreshold:     3,
		ReadingRetentionDays: 30,
		PruneInterval:        time.Hour,
	}
}

// Options bundles the dependencies for NewManager.
type Options struct {
	Devices  DeviceSource
	Reader   StateReader
	Readings ReadingStore
	Engine   RuleEngine   // May be nil (no rule evaluation)
	Alerts   AlertSink    // May be nil (no offline alerts)
	Hub      WSHub        // May be nil (no broadcasts)
	Metrics  MetricWriter // May be nil (no time-series mirror)
	Config   Config
	Logger   Logger
}

// worker is one device's polling goroutine and its control channels.
type worker struct {
	device   device.Device
	interval time.Duration
	cancel   context.CancelFunc
	nudge    chan struct{}
	done     chan struct{}

	// failures is touched only by the worker's own goroutine.
	failures int
}

// Manager schedules one polling worker per enabled device.
//
// Each worker polls its device serially on the device's own interval, so at
// most one poll per device is ever in flight. Poll results flow through the
// reading store, the device registry, the WebSocket hub and the rule engine;
// poll failures feed the consecutive-failure counter that drives the
// online/offline transition.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Manager struct {
	devices  DeviceSource
	reader   StateReader
	readings ReadingStore
	engine   RuleEngine
	alerts   AlertSink
	hub      WSHub
	metrics  MetricWriter
	cfg      Config
	logger   Logger

	mu      sync.Mutex
	workers map[string]*worker
	started bool

	// Shutdown coordination
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Manager-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx
}

// NewManager creates a poll scheduler. Call Start to launch workers for the
// currently enabled devices.
func NewManager(opts Options) (*Manager, error) {
	if opts.Devices == nil {
		return nil, fmt.Errorf("device source is required")
	}
	if opts.Reader == nil {
		return nil, fmt.Errorf("state reader is required")
	}
	if opts.Readings == nil {
		return nil, fmt.Errorf("reading store is required")
	}

	cfg := opts.Config
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 5 * time.Second
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = time.Hour
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	// Manager-level context so workers outlive the caller's request contexts
	ctx, ctxCancel := context.WithCancel(context.Background())

	return &Manager{
		devices:   opts.Devices,
		reader:    opts.Reader,
		readings:  opts.Readings,
		engine:    opts.Engine,
		alerts:    opts.Alerts,
		hub:       opts.Hub,
		metrics:   opts.Metrics,
		cfg:       cfg,
		logger:    logger,
		workers:   make(map[string]*worker),
		ctx:       ctx,
		ctxCancel: ctxCancel,
	}, nil
}

// Start launches one worker per enabled device and begins the retention
// pass. The passed context bounds the initial device listing only; workers
// run until Stop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	devices, err := m.devices.ListEnabledDevices(ctx)
	if err != nil {
		return fmt.Errorf("listing enabled devices: %w", err)
	}

	for _, dev := range devices {
		m.startWorker(dev)
	}

	if m.cfg.ReadingRetentionDays > 0 {
		m.wg.Add(1)
		go m.pruneLoop()
	}

	m.logger.Info("poller started",
		"devices", len(devices),
		"failure_threshold", m.cfg.FailureThreshold,
		"poll_timeout", m.cfg.PollTimeout,
	)
	return nil
}

// Stop cancels every worker and waits for all of them to finish. A poll that
// is mid-flight when Stop is called aborts without recording results. Safe
// to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.ctxCancel()
	})

	m.mu.Lock()
	workers := make([]*worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.workers = make(map[string]*worker)
	m.mu.Unlock()

	for _, w := range workers {
		<-w.done
	}
	m.wg.Wait()

	m.logger.Info("poller stopped")
}

// StartDevice starts (or restarts) the worker for a device, reloading its
// definition first. A disabled device gets no worker, so calling this after
// any device mutation converges the scheduler: enable starts polling,
// disable stops it, and an interval or address change takes effect on the
// fresh worker.
func (m *Manager) StartDevice(ctx context.Context, deviceID string) error {
	dev, err := m.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("loading device %s: %w", deviceID, err)
	}

	m.StopDevice(deviceID)

	if !dev.Enabled {
		m.logger.Debug("device disabled, not polling", "device_id", deviceID)
		return nil
	}

	m.startWorker(*dev)
	return nil
}

// StopDevice cancels a device's worker and waits for it to finish. Stopping
// a device that has no worker is a no-op.
func (m *Manager) StopDevice(deviceID string) {
	m.mu.Lock()
	w, ok := m.workers[deviceID]
	if ok {
		delete(m.workers, deviceID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	w.cancel()
	<-w.done
	m.logger.Debug("poll worker stopped", "device_id", deviceID)
}

// PollNow nudges a device's worker to poll immediately instead of waiting
// for its next tick. The nudge is non-blocking: if a poll is already
// pending, the request coalesces into it.
func (m *Manager) PollNow(deviceID string) error {
	m.mu.Lock()
	w, ok := m.workers[deviceID]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotPolled, deviceID)
	}

	select {
	case w.nudge <- struct{}{}:
	default:
	}
	return nil
}

// IsPolling returns true if the device currently has a worker.
func (m *Manager) IsPolling(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.workers[deviceID]
	return ok
}

// WorkerCount returns the number of active polling workers.
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// PolledDeviceIDs returns the IDs of all devices with active workers,
// sorted for stable output.
func (m *Manager) PolledDeviceIDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// startWorker registers and launches the polling goroutine for one device.
func (m *Manager) startWorker(dev device.Device) {
	interval := time.Duration(dev.PollInterval) * time.Second
	if interval <= 0 {
		interval = m.cfg.DefaultInterval
	}
	if interval < m.cfg.MinInterval {
		interval = m.cfg.MinInterval
	}

	ctx, cancel := context.WithCancel(m.ctx)
	w := &worker{
		device:   dev,
		interval: interval,
		cancel:   cancel,
		nudge:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	m.workers[dev.ID] = w
	m.mu.Unlock()

	go m.run(ctx, w)

	m.logger.Info("poll worker started",
		"device_id", dev.ID,
		"device_name", dev.Name,
		"interval", interval,
	)
}

// run is the worker loop: one immediate poll, then one per tick or nudge.
func (m *Manager) run(ctx context.Context, w *worker) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	m.poll(ctx, w)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx, w)
		case <-w.nudge:
			m.poll(ctx, w)
		}
	}
}

// poll executes a single status read and routes the outcome.
func (m *Manager) poll(ctx context.Context, w *worker) {
	pollCtx, cancel := context.WithTimeout(ctx, m.cfg.PollTimeout)
	state, err := m.reader.ReadState(pollCtx, w.device.Address, w.device.Port)
	cancel()

	// A cancelled worker discards whatever the poll produced: no readings,
	// no status transition, no events after removal or shutdown.
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		m.handleFailure(ctx, w, err)
		return
	}

	m.handleSuccess(ctx, w, state)
}

// handleSuccess records readings, marks the device online and hands the
// event to the rule engine. Runs in the worker goroutine, so rule
// evaluation preserves per-device reading order.
func (m *Manager) handleSuccess(ctx context.Context, w *worker, state *nodehttp.State) {
	now := time.Now().UTC()
	recovered := w.failures >= m.cfg.FailureThreshold
	w.failures = 0

	for sensorType, sv := range state.Sensors {
		r := &device.Reading{
			DeviceID:   w.device.ID,
			SensorType: sensorType,
			Value:      sv.Value,
			RecordedAt: now,
		}
		if sv.Unit != "" {
			unit := sv.Unit
			r.Unit = &unit
		}
		if err := m.readings.Insert(ctx, r); err != nil {
			m.logger.Warn("storing reading failed",
				"device_id", w.device.ID,
				"sensor_type", sensorType,
				"error", err,
			)
		}
		if m.metrics != nil {
			m.metrics.WriteReading(w.device.ID, sensorType, sv.Value, sv.Unit, now)
		}
	}

	changed, err := m.devices.SetDeviceStatus(ctx, w.device.ID, device.StatusOnline, &now)
	if err != nil {
		m.logger.Warn("updating device status failed",
			"device_id", w.device.ID, "error", err)
	} else if changed {
		if recovered {
			m.logger.Info("device back online",
				"device_id", w.device.ID, "device_name", w.device.Name)
		}
		m.broadcastStatus(w.device.ID, device.StatusOnline)
	}

	m.refreshInfo(ctx, w, state.Info)

	if m.hub != nil {
		m.hub.Broadcast("sensors", "update", map[string]any{
			"device_id":   w.device.ID,
			"device_name": w.device.Name,
			"sensors":     state.Sensors,
			"actuators":   state.Actuators,
		})
	}

	if m.engine != nil && len(state.Sensors) > 0 {
		m.engine.HandleReading(ctx, automation.ReadingEvent{
			DeviceID:   w.device.ID,
			DeviceName: w.device.Name,
			Sensors:    engineSensors(state.Sensors),
			Actuators:  state.Actuators,
			ObservedAt: now,
		})
	}
}

// handleFailure counts the miss and drives the offline transition once the
// threshold is reached.
func (m *Manager) handleFailure(ctx context.Context, w *worker, pollErr error) {
	w.failures++

	m.logger.Warn("device poll failed",
		"device_id", w.device.ID,
		"device_name", w.device.Name,
		"consecutive_failures", w.failures,
		"error", pollErr,
	)

	if w.failures < m.cfg.FailureThreshold {
		return
	}

	changed, err := m.devices.SetDeviceStatus(ctx, w.device.ID, device.StatusOffline, nil)
	if err != nil {
		m.logger.Warn("updating device status failed",
			"device_id", w.device.ID, "error", err)
		return
	}
	if !changed {
		return
	}

	m.logger.Error("device marked offline",
		"device_id", w.device.ID,
		"device_name", w.device.Name,
		"failures", w.failures,
	)
	m.broadcastStatus(w.device.ID, device.StatusOffline)

	if m.alerts != nil {
		deviceID := w.device.ID
		msg := fmt.Sprintf("Device '%s' is unreachable", w.device.Name)
		if err := m.alerts.CreateAlert(ctx, &deviceID, "warning", msg); err != nil {
			m.logger.Error("recording offline alert failed",
				"device_id", w.device.ID, "error", err)
		}
	}
}

// refreshInfo pushes firmware/mac from the node's info block into the
// registry. Empty fields are left untouched.
func (m *Manager) refreshInfo(ctx context.Context, w *worker, info nodehttp.NodeInfo) {
	var firmware, mac *string
	if info.Firmware != "" {
		firmware = &info.Firmware
	}
	if info.MAC != "" {
		mac = &info.MAC
	}
	if firmware == nil && mac == nil {
		return
	}

	if err := m.devices.SetDeviceInfo(ctx, w.device.ID, firmware, mac); err != nil {
		m.logger.Warn("updating device info failed",
			"device_id", w.device.ID, "error", err)
	}
}

// broadcastStatus emits a devices:status_change event.
func (m *Manager) broadcastStatus(deviceID string, status device.Status) {
	if m.hub == nil {
		return
	}
	m.hub.Broadcast("devices", "status_change", map[string]any{
		"device_id": deviceID,
		"status":    string(status),
	})
}

// pruneLoop periodically deletes readings older than the retention window.
func (m *Manager) pruneLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.pruneReadings()
		}
	}
}

// pruneReadings runs one retention pass.
func (m *Manager) pruneReadings() {
	cutoff := time.Now().UTC().AddDate(0, 0, -m.cfg.ReadingRetentionDays)

	removed, err := m.readings.Prune(m.ctx, cutoff)
	if err != nil {
		m.logger.Error("pruning readings failed", "error", err)
		return
	}
	if removed > 0 {
		m.logger.Info("pruned old readings",
			"removed", removed,
			"retention_days", m.cfg.ReadingRetentionDays,
		)
	}
}

// engineSensors converts the node client's sensor map into the rule
// engine's event form.
func engineSensors(in map[string]nodehttp.SensorValue) map[string]automation.SensorValue {
	out := make(map[string]automation.SensorValue, len(in))
	for sensorType, sv := range in {
		out[sensorType] = automation.SensorValue{Value: sv.Value, Unit: sv.Unit}
	}
	return out
}
