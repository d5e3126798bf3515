package motor

import (
	"fmt"
	"time"
)

// summaryTimeFormat is the short clock format used in event summaries.
const summaryTimeFormat = "15:04"

// Event records one command-driven transition. Events are values and are
// never modified after creation.
type Event struct {
	Kind    State     `json:"kind"`
	Success bool      `json:"success"`
	Time    time.Time `json:"time"`
	Summary string    `json:"summary"`
}

func newEvent(kind State, success bool, at time.Time) Event {
	return Event{
		Kind:    kind,
		Success: success,
		Time:    at,
		Summary: fmt.Sprintf("%s at %s", kind.Label(), at.Format(summaryTimeFormat)),
	}
}
