package gpio

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultWatchInterval is how often input pins are polled for edges when
// no interval is configured.
const DefaultWatchInterval = 100 * time.Millisecond

// Logger defines the logging interface used by the Manager.
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
	Broadcast(channel, event string, data any)
}

// Manager owns the configured GPIO pins. It binds configurations to the
// hardware layer, serves reads and writes, and watches input pins for
// edges, broadcasting gpio:state_change as levels flip.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	repo   Repository
	hw     Hardware
	hub    WSHub
	logger Logger

	mu    sync.RWMutex
	pins  map[int]*Pin  // configured pins by BCM number
	bound map[int]bool  // pins successfully claimed on hardware
	last  map[int]bool  // last observed input levels

	watchInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	stopOnce      sync.Once
}

// NewManager creates a GPIO manager.
//
// Parameters:
//   - repo: Pin configuration repository
//   - hw: Hardware implementation (PeriphHardware or SimulatedHardware)
//   - hub: WebSocket hub for gpio events (may be nil)
//   - watchInterval: Input polling interval; DefaultWatchInterval if zero
//   - logger: Logger instance (nil for no logging)
func NewManager(repo Repository, hw Hardware, hub WSHub, watchInterval time.Duration, logger Logger) *Manager {
	if watchInterval <= 0 {
		watchInterval = DefaultWatchInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{
		repo:          repo,
		hw:            hw,
		hub:           hub,
		logger:        logger,
		pins:          make(map[int]*Pin),
		bound:         make(map[int]bool),
		last:          make(map[int]bool),
		watchInterval: watchInterval,
		done:          make(chan struct{}),
	}
}

// Start loads pin configurations from the repository, binds them to the
// hardware, and launches the input watcher. A pin that fails to bind is
// kept in the configuration with no live value; the failure is logged.
func (m *Manager) Start(ctx context.Context) error {
	pins, err := m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading pin configurations: %w", err)
	}

	m.mu.Lock()
	for i := range pins {
		p := pins[i].DeepCopy()
		m.pins[p.Pin] = p
		if err := m.bind(p.Pin, p.Function, p.PWMDuty); err != nil {
			m.logger.Warn("failed to bind pin", "pin", p.Pin, "function", string(p.Function), "error", err)
			continue
		}
		m.bound[p.Pin] = true
		if p.Function == FunctionInput {
			if high, err := m.hw.Read(p.Pin); err == nil {
				m.last[p.Pin] = high
			}
		}
	}
	count := len(m.pins)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.watchInputs()

	m.logger.Info("gpio manager started", "pins", count, "watch_interval", m.watchInterval.String())
	return nil
}

// Stop halts the input watcher and releases all hardware bindings.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for pin, isBound := range m.bound {
		if !isBound {
			continue
		}
		if err := m.hw.Close(pin); err != nil {
			m.logger.Warn("failed to release pin", "pin", pin, "error", err)
		}
	}
	m.bound = make(map[int]bool)
	m.logger.Info("gpio manager stopped")
}

// Configure assigns a function to an unconfigured pin and binds it to the
// hardware. Returns ErrPinInUse if the pin already has a function.
func (m *Manager) Configure(ctx context.Context, pin int, name *string, function Function, duty *float64) (*Pin, error) {
	if err := ValidatePinConfig(pin, name, function, duty); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pins[pin]; exists {
		return nil, fmt.Errorf("%w: pin %d", ErrPinInUse, pin)
	}

	if err := m.bind(pin, function, duty); err != nil {
		return nil, err
	}

	p := &Pin{Pin: pin, Name: name, Function: function, PWMDuty: duty}
	if function == FunctionPWM && p.PWMDuty == nil {
		zero := 0.0
		p.PWMDuty = &zero
	}

	if err := m.repo.Create(ctx, p); err != nil {
		m.unbind(pin)
		return nil, err
	}

	m.pins[pin] = p
	m.bound[pin] = true
	if function == FunctionInput {
		if high, err := m.hw.Read(pin); err == nil {
			m.last[pin] = high
		}
	}

	m.logger.Info("pin configured", "pin", pin, "function", string(function))
	m.broadcastFunctionChanged(p)
	return p.DeepCopy(), nil
}

// Reconfigure changes the function or name of a configured pin. The old
// hardware binding is released before the new one is claimed; if the new
// claim fails, the old configuration is restored best-effort.
func (m *Manager) Reconfigure(ctx context.Context, pin int, name *string, function Function, duty *float64) (*Pin, error) {
	if err := ValidatePinConfig(pin, name, function, duty); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.pins[pin]
	if !ok {
		return nil, fmt.Errorf("%w: pin %d", ErrPinNotFound, pin)
	}

	m.unbind(pin)
	if err := m.bind(pin, function, duty); err != nil {
		if rebindErr := m.bind(pin, existing.Function, existing.PWMDuty); rebindErr == nil {
			m.bound[pin] = true
		}
		return nil, err
	}

	p := &Pin{Pin: pin, Name: name, Function: function, PWMDuty: duty, CreatedAt: existing.CreatedAt}
	if function == FunctionPWM && p.PWMDuty == nil {
		zero := 0.0
		p.PWMDuty = &zero
	}

	if err := m.repo.Update(ctx, p); err != nil {
		m.unbind(pin)
		if rebindErr := m.bind(pin, existing.Function, existing.PWMDuty); rebindErr == nil {
			m.bound[pin] = true
		}
		return nil, err
	}

	m.pins[pin] = p
	m.bound[pin] = true
	if function == FunctionInput {
		if high, err := m.hw.Read(pin); err == nil {
			m.last[pin] = high
		}
	}

	m.logger.Info("pin reconfigured", "pin", pin, "function", string(function))
	m.broadcastFunctionChanged(p)
	return p.DeepCopy(), nil
}

// Release removes a pin's configuration and hardware binding.
func (m *Manager) Release(ctx context.Context, pin int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pins[pin]; !ok {
		return fmt.Errorf("%w: pin %d", ErrPinNotFound, pin)
	}

	if err := m.repo.Delete(ctx, pin); err != nil {
		return err
	}

	m.unbind(pin)
	delete(m.pins, pin)

	m.logger.Info("pin released", "pin", pin)
	if m.hub != nil {
		m.hub.Broadcast("gpio", "unassigned", map[string]any{"pin": pin})
	}
	return nil
}

// WriteValue drives a configured pin. Output pins treat any non-zero
// value as high; pwm pins clamp the value to a [0,1] duty cycle and
// persist it. Input pins and unconfigured pins are write errors.
// A successful write broadcasts gpio:state_change.
func (m *Manager) WriteValue(ctx context.Context, pin int, value float64) error {
	m.mu.RLock()
	p, ok := m.pins[pin]
	isBound := m.bound[pin]
	function := Function("")
	if ok {
		function = p.Function
	}
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: pin %d", ErrPinNotFound, pin)
	}
	if !isBound {
		return fmt.Errorf("%w: pin %d not bound", ErrHardware, pin)
	}

	switch function {
	case FunctionInput:
		return fmt.Errorf("%w: pin %d is an input", ErrNotWritable, pin)

	case FunctionOutput:
		high := value != 0
		if err := m.hw.WriteDigital(pin, high); err != nil {
			return err
		}
		level := 0.0
		if high {
			level = 1.0
		}
		m.broadcastStateChange(pin, FunctionOutput, level)
		return nil

	case FunctionPWM:
		if math.IsNaN(value) {
			return fmt.Errorf("%w: NaN", ErrInvalidDuty)
		}
		duty := clampDuty(value)
		if err := m.hw.WritePWM(pin, duty); err != nil {
			return err
		}

		m.mu.Lock()
		if cached, ok := m.pins[pin]; ok {
			cached.PWMDuty = &duty
		}
		m.mu.Unlock()

		if err := m.repo.UpdateDuty(ctx, pin, duty); err != nil {
			m.logger.Warn("failed to persist duty cycle", "pin", pin, "error", err)
		}

		m.broadcastStateChange(pin, FunctionPWM, duty)
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrInvalidFunction, function)
	}
}

// Get returns a configured pin with its live value.
func (m *Manager) Get(_ context.Context, pin int) (*PinState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pins[pin]
	if !ok {
		return nil, fmt.Errorf("%w: pin %d", ErrPinNotFound, pin)
	}
	return m.stateLocked(p), nil
}

// List returns all configured pins with live values, ordered by number.
func (m *Manager) List(_ context.Context) []PinState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]PinState, 0, len(m.pins))
	for _, p := range m.pins {
		states = append(states, *m.stateLocked(p))
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Pin.Pin < states[j].Pin.Pin
	})
	return states
}

// GetPinCount returns the number of configured pins.
func (m *Manager) GetPinCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pins)
}

// stateLocked assembles a PinState. Caller must hold at least a read lock.
func (m *Manager) stateLocked(p *Pin) *PinState {
	state := &PinState{Pin: *p.DeepCopy()}
	if !m.bound[p.Pin] {
		return state
	}

	switch p.Function {
	case FunctionPWM:
		if p.PWMDuty != nil {
			duty := *p.PWMDuty
			state.Value = &duty
		}
	default:
		if high, err := m.hw.Read(p.Pin); err == nil {
			level := 0.0
			if high {
				level = 1.0
			}
			state.Value = &level
		}
	}
	return state
}

// watchInputs polls input pins and broadcasts level changes.
func (m *Manager) watchInputs() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.scanInputs()
		}
	}
}

// scanInputs reads every bound input pin once, recording levels and
// broadcasting edges.
func (m *Manager) scanInputs() {
	m.mu.RLock()
	inputs := make([]int, 0, len(m.pins))
	for pin, p := range m.pins {
		if p.Function == FunctionInput && m.bound[pin] {
			inputs = append(inputs, pin)
		}
	}
	m.mu.RUnlock()

	for _, pin := range inputs {
		high, err := m.hw.Read(pin)
		if err != nil {
			continue
		}

		m.mu.Lock()
		prev, seen := m.last[pin]
		m.last[pin] = high
		m.mu.Unlock()

		if seen && prev != high {
			level := 0.0
			if high {
				level = 1.0
			}
			m.broadcastStateChange(pin, FunctionInput, level)
		}
	}
}

// bind claims a pin on the hardware for its function. For pwm pins a
// stored duty cycle is reapplied.
func (m *Manager) bind(pin int, function Function, duty *float64) error {
	switch function {
	case FunctionInput:
		return m.hw.OpenInput(pin)
	case FunctionOutput:
		return m.hw.OpenOutput(pin)
	case FunctionPWM:
		if err := m.hw.OpenPWM(pin); err != nil {
			return err
		}
		if duty != nil && *duty > 0 {
			return m.hw.WritePWM(pin, *duty)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFunction, function)
	}
}

// unbind releases a pin's hardware claim and observation state.
func (m *Manager) unbind(pin int) {
	if m.bound[pin] {
		if err := m.hw.Close(pin); err != nil {
			m.logger.Warn("failed to release pin binding", "pin", pin, "error", err)
		}
	}
	delete(m.bound, pin)
	delete(m.last, pin)
}

func (m *Manager) broadcastStateChange(pin int, function Function, value float64) {
	if m.hub == nil {
		return
	}
	m.hub.Broadcast("gpio", "state_change", map[string]any{
		"pin":      pin,
		"function": string(function),
		"value":    value,
	})
}

func (m *Manager) broadcastFunctionChanged(p *Pin) {
	if m.hub == nil {
		return
	}
	m.hub.Broadcast("gpio", "function_changed", map[string]any{
		"pin":             p.Pin,
		"function":        string(p.Function),
		"name":            p.Name,
		"supports_hw_pwm": SupportsHardwarePWM(p.Pin),
	})
}

// clampDuty bounds a duty cycle to [0,1].
func clampDuty(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
