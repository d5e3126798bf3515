package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nerrad567/motorbank-core/internal/motor"
)

var (
	intentVerbPattern   = regexp.MustCompile(`^\D+`)
	intentNumberPattern = regexp.MustCompile(`\d+$`)
)

// Intent is a parsed user command addressed to one motor.
type Intent struct {
	Verb  Verb
	Index motor.Index
}

// String returns the wire form of the intent.
func (i Intent) String() string {
	return fmt.Sprintf("%s%d", i.Verb, i.Index.Number())
}

// ParseIntent splits a command such as "Close5" into its verb (leading
// non-digits) and 1-based motor number (trailing digits).
//
// Returns:
//   - Intent: The parsed command
//   - error: ErrInvalidCommand when the verb is unknown or the number is
//     missing or out of range; ErrUnsupportedCommand for Toggle
func ParseIntent(command string) (Intent, error) {
	command = strings.TrimSpace(command)

	verb := Verb(strings.TrimSpace(intentVerbPattern.FindString(command)))
	digits := intentNumberPattern.FindString(command)
	if digits == "" {
		return Intent{}, fmt.Errorf("%w: %q has no motor number", ErrInvalidCommand, command)
	}

	switch verb {
	case VerbOpen, VerbClose, VerbStop:
	case VerbToggle:
		return Intent{}, fmt.Errorf("%w: %s", ErrUnsupportedCommand, verb)
	default:
		return Intent{}, fmt.Errorf("%w: unknown verb in %q", ErrInvalidCommand, command)
	}

	number, err := strconv.Atoi(digits)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: %q: %w", ErrInvalidCommand, command, err)
	}
	index, err := motor.IndexFromNumber(number)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: %q: %w", ErrInvalidCommand, command, err)
	}

	return Intent{Verb: verb, Index: index}, nil
}
