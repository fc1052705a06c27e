// Package alert provides the operator-facing alert log: creation,
// querying, acknowledgement, and pruning of alert records.
//
// Alerts are raised by the poller (device offline), the automation engine
// (dispatch failure), and API handlers. Every new alert is broadcast on the
// alerts WebSocket channel so connected clients see it immediately.
//
//	┌─────────────────────────────────────────────┐
//	│                   Store                     │
//	│  validate → persist → broadcast new_alert   │
//	└──────────────────────┬──────────────────────┘
//	                       │
//	                       ▼
//	┌─────────────────────────────────────────────┐
//	│             SQLiteRepository                │
//	│     alerts table (append + acknowledge)     │
//	└─────────────────────────────────────────────┘
//
// # Key Types
//
//   - Alert: A single alert record with severity level
//   - Level: Severity (info, warning, error, critical)
//   - Store: Service layer wrapping the repository
//   - Repository: Persistence interface
//
// # Semantics
//
// Alerts are append-only: acknowledgement is the only mutation, and it is
// idempotent. Listing returns newest first, capped at MaxListLimit rows.
// Acknowledged alerts older than the retention window are pruned.
//
// # Thread Safety
//
// Store and SQLiteRepository are safe for concurrent use.
package alert
