package protocol

import "errors"

// Protocol errors.
var (
	// ErrInvalidCommand is returned for command strings that do not name a
	// known verb followed by a motor number in range.
	ErrInvalidCommand = errors.New("protocol: invalid command")

	// ErrUnsupportedCommand is returned for reserved verbs with no behaviour.
	ErrUnsupportedCommand = errors.New("protocol: unsupported command")

	// ErrFeedbackParse is returned for status lines that cannot be
	// attributed to a motor in the bank.
	ErrFeedbackParse = errors.New("protocol: feedback parse error")

	// ErrNotConnected is returned when sending while the link is down.
	ErrNotConnected = errors.New("protocol: not connected")

	// ErrNoTransport is returned when a controller is built without a transport.
	ErrNoTransport = errors.New("protocol: transport is required")
)
