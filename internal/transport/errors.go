package transport

import "errors"

// Transport errors.
var (
	// ErrNotConnected is returned by Send while no connection is established.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrSendTimeout is returned when a write does not complete before its deadline.
	ErrSendTimeout = errors.New("transport: send timed out")

	// ErrSendFailed is returned when a write fails for any other reason.
	ErrSendFailed = errors.New("transport: send failed")

	// ErrDialFailed is returned when a connection cannot be opened.
	ErrDialFailed = errors.New("transport: dial failed")

	// ErrClosed is reported to the handler when the link is shut down.
	ErrClosed = errors.New("transport: link closed")
)
