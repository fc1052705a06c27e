package automation

import (
	"context"
	"errors"
	"fmt"
)

// Dispatcher executes a fired rule's action.
type Dispatcher interface {
	// Dispatch performs the rule's action. It returns an error when the
	// action could not be carried out; the cooldown stamp is never revoked.
	Dispatch(ctx context.Context, rule *Rule) error
}

// PinWriter is the interface the dispatcher needs from the GPIO manager.
type PinWriter interface {
	// WriteValue writes a value to a configured output pin. Digital outputs
	// treat non-zero as high; PWM outputs interpret the value as a duty
	// cycle clamped to [0, 1]. Writing to an unconfigured pin or an input
	// pin returns an error.
	WriteValue(ctx context.Context, pin int, value float64) error
}

// DeviceInfo holds the minimal device information the dispatcher needs for
// command routing.
type DeviceInfo struct {
	ID      string
	Name    string
	Address string
	Port    int
}

// DeviceDirectory resolves device IDs to network addresses.
type DeviceDirectory interface {
	// GetDeviceInfo retrieves routing info for a device.
	GetDeviceInfo(ctx context.Context, id string) (DeviceInfo, error)
}

// CommandSender delivers control commands to network devices.
type CommandSender interface {
	// SendCommand posts a command map to the device's control endpoint and
	// returns the device's response body.
	SendCommand(ctx context.Context, address string, port int, command map[string]any) (map[string]any, error)
}

// AlertSink records alerts raised by automation activity.
type AlertSink interface {
	// CreateAlert persists an alert. A nil deviceID records a system alert.
	CreateAlert(ctx context.Context, deviceID *string, level, message string) error
}

// ActionDispatcher is the production Dispatcher.
//
// Pin actions are written through the GPIO manager, which owns the
// function-specific value handling and broadcasts the resulting
// gpio:state_change itself. Device commands are resolved through the device
// directory and delivered over HTTP; a successful command broadcasts
// devices:control_result.
//
// Any failure raises a single error-level alert naming the rule and the
// cause. There is no retry: the rule already consumed its cooldown window.
type ActionDispatcher struct {
	pins    PinWriter
	devices DeviceDirectory
	sender  CommandSender
	alerts  AlertSink
	hub     WSHub
	logger  Logger
}

// NewActionDispatcher creates a dispatcher.
//
// Parameters:
//   - pins: GPIO manager for pin actions (may be nil when GPIO is disabled)
//   - devices: Device directory for command routing
//   - sender: HTTP client for device commands
//   - alerts: Alert sink for failure alerts (may be nil)
//   - hub: WebSocket hub for control result events (may be nil)
//   - logger: Logger instance
func NewActionDispatcher(pins PinWriter, devices DeviceDirectory, sender CommandSender, alerts AlertSink, hub WSHub, logger Logger) *ActionDispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ActionDispatcher{
		pins:    pins,
		devices: devices,
		sender:  sender,
		alerts:  alerts,
		hub:     hub,
		logger:  logger,
	}
}

// Dispatch performs the rule's action.
//
// Returns ErrDispatchFailed (wrapping the cause) when the action cannot be
// executed. The failure alert has already been recorded by the time Dispatch
// returns.
func (d *ActionDispatcher) Dispatch(ctx context.Context, rule *Rule) error {
	var err error

	switch rule.Action.Kind {
	case ActionPin:
		err = d.dispatchPin(ctx, rule)
	case ActionDeviceCommand:
		err = d.dispatchDeviceCommand(ctx, rule)
	default:
		err = fmt.Errorf("%w: %q", ErrInvalidActionKind, rule.Action.Kind)
	}

	if err != nil {
		d.raiseFailureAlert(ctx, rule, err)
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	return nil
}

// dispatchPin writes the action's value to its target pin.
func (d *ActionDispatcher) dispatchPin(ctx context.Context, rule *Rule) error {
	if d.pins == nil {
		return errors.New("GPIO unavailable")
	}
	if rule.Action.Pin == nil || rule.Action.Value == nil {
		return fmt.Errorf("%w: pin action missing pin or value", ErrInvalidAction)
	}

	pin := *rule.Action.Pin
	value := *rule.Action.Value

	if err := d.pins.WriteValue(ctx, pin, value); err != nil {
		return fmt.Errorf("writing pin %d: %w", pin, err)
	}

	d.logger.Info("pin action executed", "rule_id", rule.ID, "pin", pin, "value", value)
	return nil
}

// dispatchDeviceCommand posts the action's command to its target device.
func (d *ActionDispatcher) dispatchDeviceCommand(ctx context.Context, rule *Rule) error {
	if d.devices == nil || d.sender == nil {
		return errors.New("device command transport unavailable")
	}

	info, err := d.devices.GetDeviceInfo(ctx, rule.Action.DeviceID)
	if err != nil {
		return fmt.Errorf("resolving device %s: %w", rule.Action.DeviceID, err)
	}

	result, err := d.sender.SendCommand(ctx, info.Address, info.Port, rule.Action.Command)
	if err != nil {
		return fmt.Errorf("commanding device %s: %w", info.ID, err)
	}

	d.logger.Info("device command executed",
		"rule_id", rule.ID, "device_id", info.ID, "device_name", info.Name)

	if d.hub != nil {
		d.hub.Broadcast("devices", "control_result", map[string]any{
			"device_id": info.ID,
			"command":   rule.Action.Command,
			"result":    result,
		})
	}
	return nil
}

// raiseFailureAlert records one error-level alert for a failed dispatch.
func (d *ActionDispatcher) raiseFailureAlert(ctx context.Context, rule *Rule, cause error) {
	if d.alerts == nil {
		return
	}

	var deviceID *string
	switch rule.Action.Kind {
	case ActionDeviceCommand:
		id := rule.Action.DeviceID
		deviceID = &id
	default:
		id := rule.Trigger.DeviceID
		deviceID = &id
	}

	msg := fmt.Sprintf("Automation rule %q failed: %v", rule.Name, cause)
	if err := d.alerts.CreateAlert(ctx, deviceID, "error", msg); err != nil {
		d.logger.Error("recording dispatch failure alert failed",
			"rule_id", rule.ID, "error", err)
	}
}
