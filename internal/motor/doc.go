// Package motor implements the per-motor lifecycle state machine and the
// fixed bank of eight machines driven over one shared link.
//
// A Motor moves between Unknown, Open, Opening, Close, Closing, Stop and
// Error. User intent (Open, Close, Stop) is guarded against repeating a
// transition already in progress; confirmed field feedback (SetOpen,
// SetClose, SetStop) is applied unconditionally; SetState assigns a state
// directly without recording a MotorEvent.
//
// # Notifications
//
// Every mutation publishes Notification values, a sealed union of
// RawStateChanged and CommandEvent. Delivery is deferred to a per-motor
// outbox drained after the motor's lock is released, so a subscriber may
// call back into the same motor without deadlocking. Notifications for one
// motor are always delivered in mutation order; different motors are
// independent.
//
// # Thread Safety
//
// All Motor and Bank methods are safe for concurrent use.
package motor
