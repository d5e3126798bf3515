package motor

import (
	"fmt"
	"strings"
)

// Count is the fixed number of motors in a bank.
const Count = 8

// Index identifies a motor within the bank, in [0, Count).
type Index int

// Valid reports whether the index addresses a motor in the bank.
func (i Index) Valid() bool {
	return i >= 0 && i < Count
}

// Number returns the 1-based motor number used on the wire.
func (i Index) Number() int {
	return int(i) + 1
}

// IndexFromNumber converts a 1-based wire number into an Index.
func IndexFromNumber(number int) (Index, error) {
	idx := Index(number - 1)
	if !idx.Valid() {
		return 0, fmt.Errorf("%w: motor number %d not in 1..%d", ErrIndexOutOfRange, number, Count)
	}
	return idx, nil
}

// State is the lifecycle state of a single motor.
type State int

// Motor states.
const (
	Unknown State = iota
	Open
	Opening
	Close
	Closing
	Stop
	Error
)

var stateNames = [...]string{
	Unknown: "unknown",
	Open:    "open",
	Opening: "opening",
	Close:   "closed",
	Closing: "closing",
	Stop:    "stopped",
	Error:   "error",
}

// String returns the lower-case state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Label returns the capitalised state name used in event summaries.
func (s State) Label() string {
	name := s.String()
	return strings.ToUpper(name[:1]) + name[1:]
}

// Transitional reports whether the state is an in-flight movement.
func (s State) Transitional() bool {
	return s == Opening || s == Closing
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState converts a state name back into a State. Matching is
// case-insensitive; "close" and "stop" are accepted as aliases.
func ParseState(name string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "unknown":
		return Unknown, nil
	case "open":
		return Open, nil
	case "opening":
		return Opening, nil
	case "closed", "close":
		return Close, nil
	case "closing":
		return Closing, nil
	case "stopped", "stop":
		return Stop, nil
	case "error":
		return Error, nil
	default:
		return Unknown, fmt.Errorf("%w: %q", ErrUnknownState, name)
	}
}
