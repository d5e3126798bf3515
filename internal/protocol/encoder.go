package protocol

import (
	"fmt"
	"strings"

	"github.com/nerrad567/motorbank-core/internal/motor"
)

// DefaultTerminator ends every frame in both directions (CR).
const DefaultTerminator = "\r"

// CommandStatePoll asks the controller to report every motor's state.
const CommandStatePoll = "StatePoll"

// Verb is the action part of a per-motor command.
type Verb string

// Command verbs. VerbToggle is reserved and has no behaviour.
const (
	VerbOpen   Verb = "Open"
	VerbClose  Verb = "Close"
	VerbStop   Verb = "Stop"
	VerbToggle Verb = "Toggle"
)

// VerbFor maps a motor state produced by user intent to the verb that
// requests it on the wire.
func VerbFor(s motor.State) (Verb, bool) {
	switch s {
	case motor.Opening:
		return VerbOpen, true
	case motor.Closing:
		return VerbClose, true
	case motor.Stop:
		return VerbStop, true
	default:
		return "", false
	}
}

// VerbFromAction maps a lower-case action name ("open", "close", "stop")
// used by the API and MQTT payloads to a Verb.
func VerbFromAction(action string) (Verb, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "open":
		return VerbOpen, nil
	case "close":
		return VerbClose, nil
	case "stop":
		return VerbStop, nil
	case "toggle":
		return VerbToggle, fmt.Errorf("%w: %s", ErrUnsupportedCommand, VerbToggle)
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, action)
	}
}

// Encode builds the per-motor wire command, e.g. Encode(VerbOpen, 2) is "Open3".
func Encode(verb Verb, index motor.Index) (string, error) {
	switch verb {
	case VerbOpen, VerbClose, VerbStop:
	case VerbToggle:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedCommand, verb)
	default:
		return "", fmt.Errorf("%w: unknown verb %q", ErrInvalidCommand, verb)
	}
	if !index.Valid() {
		return "", fmt.Errorf("%w: index %d", motor.ErrIndexOutOfRange, int(index))
	}
	return fmt.Sprintf("%s%d", verb, index.Number()), nil
}

// Frame appends terminator to cmd unless it already ends with it, so a
// frame can be re-sent without growing.
func Frame(cmd, terminator string) []byte {
	if terminator == "" || strings.HasSuffix(cmd, terminator) {
		return []byte(cmd)
	}
	return []byte(cmd + terminator)
}
