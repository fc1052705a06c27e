// Package gpio manages the Raspberry Pi GPIO pins: configuration,
// digital and PWM output, input watching, and persistence of pin
// assignments.
//
// # Architecture
//
//	┌──────────────────────────────────────────────┐
//	│                   Manager                    │
//	│  configure / write / read / input watcher    │
//	└───────┬──────────────────────────┬───────────┘
//	        │                          │
//	        ▼                          ▼
//	┌───────────────┐          ┌───────────────────┐
//	│   Hardware    │          │ SQLiteRepository  │
//	│  (interface)  │          │  gpio_pins table  │
//	└───┬───────┬───┘          └───────────────────┘
//	    │       │
//	    ▼       ▼
//	 periph.io  simulated
//
// Pin numbers are BCM. Each configured pin carries one of three
// functions:
//
//   - input: digital input with pull-up, polled by the watcher
//   - output: digital output, written high or low
//   - pwm: hardware PWM output with a duty cycle in [0,1]
//
// Hardware PWM is only available on the Pi's PWM-capable pins
// (BCM 12, 13, 18, 19); the pwm function is rejected elsewhere.
//
// # Input Watching
//
// The Manager polls bound input pins on a short ticker (100ms default)
// and broadcasts gpio:state_change whenever a level flips. The first
// read after binding establishes the baseline without an event.
//
// # Hardware Layer
//
// The Hardware interface has two implementations: PeriphHardware drives
// real pins through the periph.io host drivers; SimulatedHardware is an
// in-memory stand-in for development machines and tests. Selection
// happens at wiring time from configuration.
//
// # Thread Safety
//
// Manager and both Hardware implementations are safe for concurrent use.
//
// # Usage
//
//	hw := gpio.NewSimulatedHardware()
//	manager := gpio.NewManager(repo, hw, hub, 0, logger)
//	if err := manager.Start(ctx); err != nil {
//	    return err
//	}
//	defer manager.Stop()
//
//	pin, err := manager.Configure(ctx, 18, nil, gpio.FunctionPWM, nil)
//	if err != nil {
//	    return err
//	}
//	err = manager.WriteValue(ctx, 18, 0.75)
package gpio
