package motor

import "errors"

// Domain errors for the motor bank.
var (
	// ErrIndexOutOfRange is returned when a motor index or number is outside the bank.
	ErrIndexOutOfRange = errors.New("motor: index out of range")

	// ErrUnknownState is returned when a state name cannot be parsed.
	ErrUnknownState = errors.New("motor: unknown state")
)
