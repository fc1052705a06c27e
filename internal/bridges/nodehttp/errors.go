package nodehttp

import "errors"

// Domain errors for the node HTTP client.
var (
	// ErrUnreachable is returned when the node cannot be reached at all
	// (connection refused, no route, DNS failure).
	ErrUnreachable = errors.New("nodehttp: device unreachable")

	// ErrTimeout is returned when a request exceeds the client timeout.
	ErrTimeout = errors.New("nodehttp: request timed out")

	// ErrBadResponse is returned when the node answers with a non-2xx
	// status or a body that cannot be decoded.
	ErrBadResponse = errors.New("nodehttp: bad response from device")
)
