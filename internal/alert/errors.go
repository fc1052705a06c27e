package alert

import "errors"

// Domain errors for the alert package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, alert.ErrAlertNotFound) {
//	    // handle not found case
//	}
var (
	// ErrAlertNotFound is returned when an alert ID does not exist.
	ErrAlertNotFound = errors.New("alert: not found")

	// ErrInvalidLevel is returned when an alert uses an unknown severity.
	ErrInvalidLevel = errors.New("alert: invalid level")

	// ErrInvalidMessage is returned when an alert message is empty.
	ErrInvalidMessage = errors.New("alert: invalid message")
)
