package protocol

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nerrad567/motorbank-core/internal/motor"
)

var feedbackNumberPattern = regexp.MustCompile(`\d+`)

// Feedback keywords, matched case-insensitively in this order.
const (
	keywordOpen   = "is open"
	keywordClosed = "is closed"
	keywordStop   = "is stop"
)

// Batch maps motor indices to the states reported in one received buffer.
// A Batch is never modified after the parser returns it.
type Batch struct {
	states map[motor.Index]motor.State
}

// NewBatch builds a Batch from a map, dropping indices outside the bank.
func NewBatch(states map[motor.Index]motor.State) Batch {
	b := Batch{states: make(map[motor.Index]motor.State, len(states))}
	for idx, s := range states {
		if idx.Valid() {
			b.states[idx] = s
		}
	}
	return b
}

// Len returns the number of motors reported.
func (b Batch) Len() int {
	return len(b.states)
}

// Get returns the reported state for index.
func (b Batch) Get(index motor.Index) (motor.State, bool) {
	s, ok := b.states[index]
	return s, ok
}

// Indices returns the reported indices in ascending order.
func (b Batch) Indices() []motor.Index {
	out := make([]motor.Index, 0, len(b.states))
	for idx := range b.states {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ByNumber returns a copy keyed by 1-based motor number.
func (b Batch) ByNumber() map[int]motor.State {
	out := make(map[int]motor.State, len(b.states))
	for idx, s := range b.states {
		out[idx.Number()] = s
	}
	return out
}

// Parser turns raw received text into Batches.
type Parser struct {
	terminator string
}

// NewParser creates a parser splitting on terminator (CR if empty).
func NewParser(terminator string) *Parser {
	if terminator == "" {
		terminator = DefaultTerminator
	}
	return &Parser{terminator: terminator}
}

// Parse splits buf into status lines and classifies each one.
//
// Lines that mention no motor number, or a number outside the bank,
// contribute an ErrFeedbackParse error and are skipped; parsing continues
// with the next line. Lines with a valid number but unrecognised text
// report motor.Error.
//
// Returns:
//   - Batch: Every valid line, last line per motor wins
//   - error: All line errors joined, or nil
func (p *Parser) Parse(buf []byte) (Batch, error) {
	states := make(map[motor.Index]motor.State)
	var errs []error

	for _, line := range strings.Split(string(buf), p.terminator) {
		// A CRLF device leaves a bare "\n" between lines.
		if strings.TrimSpace(line) == "" {
			continue
		}

		index, err := lineIndex(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		states[index] = classify(line)
	}

	return Batch{states: states}, errors.Join(errs...)
}

func lineIndex(line string) (motor.Index, error) {
	digits := feedbackNumberPattern.FindString(line)
	if digits == "" {
		return 0, fmt.Errorf("%w: %q has no motor number", ErrFeedbackParse, line)
	}
	number, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrFeedbackParse, line, motor.ErrIndexOutOfRange)
	}
	index, err := motor.IndexFromNumber(number)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrFeedbackParse, line, err)
	}
	return index, nil
}

func classify(line string) motor.State {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, keywordOpen):
		return motor.Open
	case strings.Contains(lower, keywordClosed):
		return motor.Close
	case strings.Contains(lower, keywordStop):
		return motor.Stop
	default:
		return motor.Error
	}
}
