// Package poller schedules device polling: one worker goroutine per
// enabled device, each reading the node's status over HTTP on the device's
// own interval.
//
//	┌──────────────────────────────────────────────────┐
//	│                     Manager                      │
//	│   worker per device (serial polls, own ticker)   │
//	└───────┬──────────┬──────────┬──────────┬─────────┘
//	        │          │          │          │
//	        ▼          ▼          ▼          ▼
//	   ReadingStore  DeviceSource  WSHub  RuleEngine
//	   (persist)     (liveness)   (events) (automation)
//
// # Poll Cycle
//
// A successful poll stores one reading per sensor, marks the device online,
// refreshes its firmware/mac, broadcasts a sensors update and hands the
// reading event to the rule engine synchronously. Because the hand-off
// happens inside the worker, rule evaluation sees each device's readings in
// order and at most one poll per device is ever in flight.
//
// A failed poll increments the device's consecutive-failure counter. At the
// configured threshold the device is marked offline, a status change is
// broadcast, and a single warning alert is recorded for the transition. The
// counter resets on the next success.
//
// # Lifecycle
//
// Start launches workers for every enabled device. StartDevice and
// StopDevice converge the scheduler after device mutations: enable starts a
// worker, disable or delete stops it, and edits restart the worker with the
// fresh definition. PollNow nudges a worker outside its tick. Stop cancels
// everything and waits; a poll mid-flight at cancellation discards its
// results.
//
// # Thread Safety
//
// Manager is safe for concurrent use.
package poller
