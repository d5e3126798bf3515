package motor

import (
	"fmt"
	"time"
)

// BankOptions configures a Bank.
type BankOptions struct {
	// Now supplies event timestamps. Defaults to time.Now.
	Now func() time.Time

	// OnSubscriberPanic is called when a subscriber panics. The panic is
	// always recovered so the remaining subscribers still run.
	OnSubscriberPanic func(index Index, recovered any)
}

// Bank is the fixed set of Count motors. Motors are created once and live
// as long as the bank.
type Bank struct {
	motors [Count]*Motor
}

// Snapshot is a point-in-time view of one motor.
type Snapshot struct {
	Index     Index
	State     State
	LastEvent *Event
}

// NewBank creates a bank with every motor in the Unknown state.
func NewBank(opts BankOptions) *Bank {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	b := &Bank{}
	for i := range b.motors {
		b.motors[i] = newMotor(Index(i), now, opts.OnSubscriberPanic)
	}
	return b
}

// Motor returns the motor at index.
//
// Returns:
//   - *Motor: The motor
//   - error: ErrIndexOutOfRange if index is not in [0, Count)
func (b *Bank) Motor(index Index) (*Motor, error) {
	if !index.Valid() {
		return nil, fmt.Errorf("%w: index %d", ErrIndexOutOfRange, int(index))
	}
	return b.motors[index], nil
}

// Motors returns all motors in index order.
func (b *Bank) Motors() [Count]*Motor {
	return b.motors
}

// Subscribe registers fn on every motor.
func (b *Bank) Subscribe(fn Subscriber) {
	for _, m := range b.motors {
		m.Subscribe(fn)
	}
}

// Snapshot returns the state of every motor. Each entry is consistent on
// its own; the bank is not frozen across motors.
func (b *Bank) Snapshot() []Snapshot {
	out := make([]Snapshot, 0, Count)
	for _, m := range b.motors {
		out = append(out, m.snapshot())
	}
	return out
}

func (m *Motor) snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{Index: m.index, State: m.state}
	if m.hasEvent {
		ev := m.lastEvent
		s.LastEvent = &ev
	}
	return s
}
