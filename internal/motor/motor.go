package motor

import (
	"sync"
	"time"
)

// Motor is the lifecycle state machine for one motor slot.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Subscribers are called without the motor's lock held.
type Motor struct {
	index   Index
	now     func() time.Time
	onPanic func(Index, any)

	mu        sync.Mutex
	state     State
	lastEvent Event
	hasEvent  bool
	subs      []Subscriber

	// outbox holds notifications produced under mu that have not been
	// delivered yet. draining is true while one goroutine is delivering.
	outbox   []Notification
	draining bool
}

func newMotor(index Index, now func() time.Time, onPanic func(Index, any)) *Motor {
	return &Motor{
		index:   index,
		now:     now,
		onPanic: onPanic,
	}
}

// Index returns the motor's position in the bank.
func (m *Motor) Index() Index {
	return m.index
}

// State returns the current state.
func (m *Motor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastEvent returns the most recent MotorEvent, if any has been recorded.
func (m *Motor) LastEvent() (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEvent, m.hasEvent
}

// Subscribe registers fn for every later notification from this motor.
func (m *Motor) Subscribe(fn Subscriber) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// Open requests the motor to open. It is a no-op while the motor is
// already Open or Opening.
//
// Returns:
//   - bool: true if a transition to Opening happened
func (m *Motor) Open() bool {
	return m.Request(Opening, nil)
}

// Close requests the motor to close. It is a no-op while the motor is
// already Close or Closing.
func (m *Motor) Close() bool {
	return m.Request(Closing, nil)
}

// Stop requests the motor to stop. It is a no-op while the motor is
// already stopped.
func (m *Motor) Stop() bool {
	return m.Request(Stop, nil)
}

// Request performs the intent transition to target (Opening, Closing or
// Stop) under the same guards as Open, Close and Stop. tag is carried on
// the resulting RawStateChanged so the subscriber handling the transition
// can answer this particular caller.
//
// Returns:
//   - bool: true if the transition happened; false for a guarded no-op or
//     a target that is not an intent state
func (m *Motor) Request(target State, tag any) bool {
	return m.apply(func() bool {
		if !m.allowsLocked(target) {
			return false
		}
		m.setLocked(target, OriginIntent, tag)
		m.recordLocked(target)
		return true
	})
}

// allowsLocked reports whether an intent towards target passes the guard.
// Caller must hold mu.
func (m *Motor) allowsLocked(target State) bool {
	switch target {
	case Opening:
		return m.state != Open && m.state != Opening
	case Closing:
		return m.state != Close && m.state != Closing
	case Stop:
		return m.state != Stop
	default:
		return false
	}
}

// SetOpen applies confirmed "open" feedback. It always records an Event,
// even when the motor was already Open; the raw change is only published
// when the state actually changes.
func (m *Motor) SetOpen() {
	m.confirm(Open)
}

// SetClose applies confirmed "closed" feedback. See SetOpen.
func (m *Motor) SetClose() {
	m.confirm(Close)
}

// SetStop applies confirmed "stopped" feedback. See SetOpen.
func (m *Motor) SetStop() {
	m.confirm(Stop)
}

// SetState assigns a state directly. Only a RawStateChanged is published,
// never a CommandEvent.
func (m *Motor) SetState(s State) {
	m.apply(func() bool {
		return m.setLocked(s, OriginFeedback, nil)
	})
}

func (m *Motor) confirm(s State) {
	m.apply(func() bool {
		m.setLocked(s, OriginFeedback, nil)
		m.recordLocked(s)
		return true
	})
}

// apply runs fn under the lock, then delivers whatever fn queued.
func (m *Motor) apply(fn func() bool) bool {
	m.mu.Lock()
	changed := fn()
	m.mu.Unlock()

	m.flush()
	return changed
}

// setLocked assigns the state and queues a RawStateChanged. Assigning the
// current state queues nothing. Caller must hold mu.
func (m *Motor) setLocked(s State, origin Origin, tag any) bool {
	if m.state == s {
		return false
	}
	prev := m.state
	m.state = s
	m.outbox = append(m.outbox, RawStateChanged{
		Index:    m.index,
		Previous: prev,
		State:    s,
		Origin:   origin,
		Tag:      tag,
	})
	return true
}

// recordLocked creates an Event and queues a CommandEvent. Caller must hold mu.
func (m *Motor) recordLocked(kind State) {
	ev := newEvent(kind, true, m.now())
	m.lastEvent = ev
	m.hasEvent = true
	m.outbox = append(m.outbox, CommandEvent{Index: m.index, Event: ev})
}

// flush delivers queued notifications. Only one goroutine drains at a time;
// a concurrent or re-entrant caller leaves its notifications for the active
// drainer, which loops until the outbox is empty.
func (m *Motor) flush() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true

	for len(m.outbox) > 0 {
		pending := m.outbox
		m.outbox = nil
		subs := m.subs
		m.mu.Unlock()

		for _, n := range pending {
			for _, fn := range subs {
				m.deliver(fn, n)
			}
		}

		m.mu.Lock()
	}

	m.draining = false
	m.mu.Unlock()
}

func (m *Motor) deliver(fn Subscriber, n Notification) {
	defer func() {
		if r := recover(); r != nil && m.onPanic != nil {
			m.onPanic(m.index, r)
		}
	}()
	fn(n)
}
