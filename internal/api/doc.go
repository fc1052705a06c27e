// Package api implements the HTTP REST API and WebSocket server for Outpost Core.
//
// This package provides:
//   - REST endpoints for device, automation, alert, GPIO and sensor queries
//   - WebSocket hub for the live event feed (subscribe by channel)
//   - Optional JWT bearer authentication against a single admin credential
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API server sits between user interfaces and the domain registries.
// Device commands flow through the node HTTP client; everything the system
// does (readings, status transitions, rule firings, alerts, GPIO edges) is
// pushed to WebSocket clients through the Hub.
//
// The Hub is usually created before the server and injected via
// Deps.ExternalHub, since the poller, engine, alert store and GPIO manager
// all broadcast through it.
//
// # Graceful Degradation
//
// The server operates without GPIO (handlers return 503) and without a
// database handle for the health ping. Node endpoints surface device
// failures as gateway-style errors rather than internal ones.
package api
