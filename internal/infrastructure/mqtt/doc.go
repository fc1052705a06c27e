// Package mqtt provides the optional MQTT event bridge for Outpost Core.
//
// This package manages:
//   - Connection to an MQTT broker with auto-reconnect
//   - Republishing hub events on outpost/event/{channel} topics
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The bridge is egress-only: every frame the WebSocket hub broadcasts is
// mirrored onto MQTT for external consumers (Home Assistant, Node-RED,
// dashboards) that prefer a broker over holding a WebSocket open. The
// daemon never acts on inbound MQTT traffic.
//
//	Hub broadcast ─→ WebSocket clients
//	            └──→ MQTT broker ─→ external consumers
//
// The bridge is config-gated (mqtt.enabled) and off by default; the daemon
// runs identically without it.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Mirror every hub broadcast onto the broker
//	hub.SetRelay(func(channel, event string, data any) {
//	    client.PublishEvent(channel, event, data)
//	})
package mqtt
