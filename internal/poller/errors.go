package poller

import "errors"

// Scheduler errors.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("poller: already started")

	// ErrNotPolled is returned when a poll is requested for a device that
	// has no active worker.
	ErrNotPolled = errors.New("poller: device has no active worker")
)
