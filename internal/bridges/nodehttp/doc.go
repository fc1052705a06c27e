// Package nodehttp implements the HTTP client for node devices.
//
// Nodes are ESP8266/ESP32-class microcontrollers exposing a small plain
// HTTP/JSON interface on the local network. This package wraps that
// interface for the poller, the automation dispatcher, and the API's
// control/info proxies.
//
// # Node Interface
//
//	GET  /status   full state: sensors, actuators, identity info
//	POST /control  command map in, result map out
//	GET  /info     identity block, proxied untouched
//
// A /status reply looks like:
//
//	{
//	  "sensors":   {"temperature": {"value": 24.5, "unit": "C"}},
//	  "actuators": {"relay1": 0, "pwm": 128},
//	  "info":      {"firmware": "1.0.0", "mac": "AA:BB:CC:DD:EE:FF", "uptime": 3600}
//	}
//
// Sensor entries may also be bare numbers; both forms decode to SensorValue.
//
// # Error Classification
//
// Failures map onto three sentinels callers branch on with errors.Is:
//
//   - ErrUnreachable: transport failure (refused, no route, DNS)
//   - ErrTimeout: the node did not answer within the client timeout
//   - ErrBadResponse: non-2xx status or undecodable body
//
// Context cancellation is passed through unwrapped so shutdown is
// distinguishable from device failure.
//
// # Thread Safety
//
// Client is safe for concurrent use from multiple goroutines.
package nodehttp
