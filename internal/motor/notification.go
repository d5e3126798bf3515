package motor

// Origin tells subscribers why a raw state change happened.
type Origin int

const (
	// OriginIntent marks transitions requested by a user or UI.
	OriginIntent Origin = iota
	// OriginFeedback marks transitions applied from field-device feedback.
	OriginFeedback
)

func (o Origin) String() string {
	if o == OriginFeedback {
		return "feedback"
	}
	return "intent"
}

// Notification is published for every motor mutation. It is one of
// RawStateChanged or CommandEvent; use a type switch to tell them apart.
type Notification interface {
	// MotorIndex identifies the motor that produced the notification.
	MotorIndex() Index
	sealed()
}

// RawStateChanged reports that the motor's state value changed.
type RawStateChanged struct {
	Index    Index
	Previous State
	State    State
	Origin   Origin

	// Tag is the value passed to Motor.Request; nil for every other change.
	Tag any
}

// CommandEvent reports that a command-driven transition produced an Event.
type CommandEvent struct {
	Index Index
	Event Event
}

// MotorIndex implements Notification.
func (n RawStateChanged) MotorIndex() Index { return n.Index }

// MotorIndex implements Notification.
func (n CommandEvent) MotorIndex() Index { return n.Index }

func (RawStateChanged) sealed() {}
func (CommandEvent) sealed()    {}

// Subscriber receives notifications. It runs on whichever goroutine is
// draining the motor's outbox and must not block for long.
type Subscriber func(Notification)
