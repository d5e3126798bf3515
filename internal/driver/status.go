package driver

import (
	"github.com/nerrad567/motorbank-core/internal/infrastructure/config"
	"github.com/nerrad567/motorbank-core/internal/motor"
)

// Status is the presentation view of one motor.
type Status struct {
	Number    int          `json:"number"`
	Name      string       `json:"name"`
	Visible   bool         `json:"visible"`
	State     motor.State  `json:"state"`
	Label     string       `json:"label"`
	IsOpen    bool         `json:"is_open"`
	LastEvent *motor.Event `json:"last_event,omitempty"`
}

// Summary aggregates the bank for a single tile: open when any motor is
// confirmed open.
type Summary struct {
	AnyOpen bool        `json:"any_open"`
	State   motor.State `json:"state"`
	Label   string      `json:"label"`
	Icon    string      `json:"icon"`
}

// Visible reports whether a motor named name at number has been given a
// real name. Unnamed motors keep "Zone {n}" and are hidden.
func Visible(number int, name string) bool {
	return name != config.DefaultMotorName(number)
}

func newStatus(snap motor.Snapshot, name string, isOpen bool) Status {
	number := snap.Index.Number()
	return Status{
		Number:    number,
		Name:      name,
		Visible:   Visible(number, name),
		State:     snap.State,
		Label:     snap.State.Label(),
		IsOpen:    isOpen,
		LastEvent: snap.LastEvent,
	}
}

func summarize(statuses []Status, motors config.MotorsConfig) Summary {
	for _, s := range statuses {
		if s.IsOpen {
			return Summary{AnyOpen: true, State: motor.Open, Label: motor.Open.Label(), Icon: motors.OpenIcon}
		}
	}
	return Summary{State: motor.Close, Label: motor.Close.Label(), Icon: motors.CloseIcon}
}
