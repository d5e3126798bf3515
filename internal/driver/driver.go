package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/motorbank-core/internal/audit"
	"github.com/nerrad567/motorbank-core/internal/infrastructure/config"
	"github.com/nerrad567/motorbank-core/internal/motor"
	"github.com/nerrad567/motorbank-core/internal/protocol"
)

// defaultSendTimeout bounds one wire send triggered by a motor transition.
const defaultSendTimeout = 5 * time.Second

// Audit actions.
const (
	actionCommand = "command"
	actionPoll    = "poll"
)

// Controller is the protocol session the driver sends through.
// *protocol.Controller implements it.
type Controller interface {
	SendIntent(ctx context.Context, verb protocol.Verb, index motor.Index) error
	Poll(ctx context.Context) error
	Connected() bool
}

// Auditor stores submitted commands. *audit.SQLiteRepository implements it.
type Auditor interface {
	Record(ctx context.Context, entry *audit.Entry) error
}

// Listener receives everything the driver publishes upward. Methods run on
// the goroutine that caused the change and must not block for long. They
// must not call Execute synchronously: Execute waits for a send that is
// only made after the listener returns.
type Listener interface {
	// MotorChanged is called for every motor notification, with the
	// motor's status after the change.
	MotorChanged(status Status, n motor.Notification)

	// ConnectionChanged is called when the controller link goes up or down.
	ConnectionChanged(connected bool)

	// FeedbackReceived is called once per feedback batch, after the batch
	// has been applied to the motors.
	FeedbackReceived(batch protocol.Batch, err error)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures a Driver.
type Options struct {
	// Bank is the motor bank. Required.
	Bank *motor.Bank

	// Controller sends wire commands. Required.
	Controller Controller

	// Motors carries display names and summary icons.
	Motors config.MotorsConfig

	// SendTimeout bounds each wire send. Default 5s.
	SendTimeout time.Duration

	// Audit is optional.
	Audit Auditor

	// Logger is optional.
	Logger Logger
}

// Result reports what Execute did with a command.
type Result struct {
	Command  string      `json:"command"`
	Number   int         `json:"number"`
	Accepted bool        `json:"accepted"`
	State    motor.State `json:"state"`
}

// Driver wires the bank, the controller and the upward listeners.
//
// Thread Safety: All methods are safe for concurrent use.
type Driver struct {
	bank        *motor.Bank
	ctrl        Controller
	motors      config.MotorsConfig
	sendTimeout time.Duration
	audit       Auditor
	logger      Logger

	mu        sync.RWMutex
	isOpen    [motor.Count]bool
	connected bool

	listenersMu sync.RWMutex
	listeners   []Listener

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a driver and subscribes it to every motor in the bank.
func New(opts Options) (*Driver, error) {
	if opts.Bank == nil {
		return nil, ErrNoBank
	}
	if opts.Controller == nil {
		return nil, ErrNoController
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		bank:        opts.Bank,
		ctrl:        opts.Controller,
		motors:      opts.Motors,
		sendTimeout: opts.SendTimeout,
		audit:       opts.Audit,
		logger:      opts.Logger,
		ctx:         ctx,
		cancel:      cancel,
	}
	d.bank.Subscribe(d.handleNotification)
	return d, nil
}

// AddListener registers l for upward notifications.
func (d *Driver) AddListener(l Listener) {
	d.listenersMu.Lock()
	d.listeners = append(d.listeners, l)
	d.listenersMu.Unlock()
}

// Close cancels in-flight sends started by motor transitions.
func (d *Driver) Close() {
	d.cancel()
}

// Execute parses command and applies it to the addressed motor. The wire
// command is sent from the motor's notification, not from here; Execute
// waits for that send (up to ctx) and reports its own command's result,
// even when another caller's goroutine delivered the notification.
//
// Returns:
//   - Result: Accepted is false when the motor's guard ignored the command
//   - error: protocol.ErrInvalidCommand or ErrUnsupportedCommand for bad
//     input (no motor is touched); ErrSendFailed when the transition
//     happened but the wire command could not be sent
func (d *Driver) Execute(ctx context.Context, source, command string) (Result, error) {
	intent, err := protocol.ParseIntent(command)
	if err != nil {
		d.logWarn("rejected command", "command", command, "source", source, "error", err)
		d.record(ctx, &audit.Entry{
			Action: actionCommand, Command: command, Source: source,
			Outcome: audit.OutcomeRejected, Error: err.Error(),
		})
		return Result{Command: command}, err
	}

	m, err := d.bank.Motor(intent.Index)
	if err != nil {
		return Result{Command: command}, err
	}

	target, ok := intentTarget(intent.Verb)
	if !ok {
		return Result{Command: command}, fmt.Errorf("%w: %s", protocol.ErrUnsupportedCommand, command)
	}

	pending := newPendingSend()
	accepted := m.Request(target, pending)

	res := Result{
		Command:  intent.String(),
		Number:   intent.Index.Number(),
		Accepted: accepted,
		State:    m.State(),
	}
	entry := &audit.Entry{
		Action: actionCommand, Command: res.Command, Motor: res.Number,
		Source: source, Outcome: audit.OutcomeAccepted,
	}

	if !accepted {
		d.logDebug("command ignored by motor guard", "command", res.Command, "state", res.State)
		entry.Outcome = audit.OutcomeIgnored
		d.record(ctx, entry)
		return res, nil
	}

	if sendErr := pending.wait(ctx, d.ctx); sendErr != nil {
		entry.Outcome = audit.OutcomeFailed
		entry.Error = sendErr.Error()
		d.record(ctx, entry)
		return res, fmt.Errorf("%w: %s: %w", ErrSendFailed, res.Command, sendErr)
	}

	d.logInfo("command executed", "command", res.Command, "source", source)
	d.record(ctx, entry)
	return res, nil
}

// ExecuteAction is Execute for an (action, number) pair such as
// ("open", 3), as used by REST routes and MQTT per-motor topics.
func (d *Driver) ExecuteAction(ctx context.Context, source string, number int, action string) (Result, error) {
	verb, err := protocol.VerbFromAction(action)
	if err != nil {
		return Result{Number: number}, err
	}
	index, err := motor.IndexFromNumber(number)
	if err != nil {
		return Result{Number: number}, fmt.Errorf("%w: %w", protocol.ErrInvalidCommand, err)
	}
	cmd, err := protocol.Encode(verb, index)
	if err != nil {
		return Result{Number: number}, err
	}
	return d.Execute(ctx, source, cmd)
}

// Poll asks the controller to report every motor's state.
func (d *Driver) Poll(ctx context.Context, source string) error {
	err := d.ctrl.Poll(ctx)

	entry := &audit.Entry{
		Action: actionPoll, Command: protocol.CommandStatePoll,
		Source: source, Outcome: audit.OutcomeAccepted,
	}
	if err != nil {
		entry.Outcome = audit.OutcomeFailed
		entry.Error = err.Error()
	}
	d.record(ctx, entry)
	return err
}

// HandleConnected is wired to the controller's ConnectedChanged callback.
func (d *Driver) HandleConnected(connected bool) {
	d.mu.Lock()
	d.connected = connected
	d.mu.Unlock()

	d.logInfo("controller link changed", "connected", connected)
	d.eachListener(func(l Listener) { l.ConnectionChanged(connected) })
}

// HandleFeedback is wired to the controller's Feedback callback. Each
// reported motor gets the confirmation matching its state; motors absent
// from the batch are not touched.
func (d *Driver) HandleFeedback(batch protocol.Batch, err error) {
	if err != nil {
		d.logWarn("feedback partially unparseable", "error", err, "applied", batch.Len())
	}

	for _, idx := range batch.Indices() {
		state, _ := batch.Get(idx)
		m, mErr := d.bank.Motor(idx)
		if mErr != nil {
			continue
		}
		switch state {
		case motor.Open:
			m.SetOpen()
		case motor.Close:
			m.SetClose()
		case motor.Stop:
			m.SetStop()
		default:
			m.SetState(state)
		}
	}

	d.eachListener(func(l Listener) { l.FeedbackReceived(batch, err) })
}

// Connected reports the last link state seen from the controller.
func (d *Driver) Connected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Status returns the status of the motor with the 1-based number.
func (d *Driver) Status(number int) (Status, error) {
	index, err := motor.IndexFromNumber(number)
	if err != nil {
		return Status{}, err
	}
	return d.status(index), nil
}

// Statuses returns every motor's status in number order.
func (d *Driver) Statuses() []Status {
	snaps := d.bank.Snapshot()
	out := make([]Status, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, d.statusFrom(snap))
	}
	return out
}

// Summary aggregates the bank into one open/closed view.
func (d *Driver) Summary() Summary {
	return summarize(d.Statuses(), d.motors)
}

// MotorName returns the display name for a 1-based number.
func (d *Driver) MotorName(number int) string {
	return d.motors.MotorName(number)
}

func (d *Driver) status(index motor.Index) Status {
	m, _ := d.bank.Motor(index) //nolint:errcheck // index validated by callers
	snap := motor.Snapshot{Index: index, State: m.State()}
	if ev, ok := m.LastEvent(); ok {
		snap.LastEvent = &ev
	}
	return d.statusFrom(snap)
}

func (d *Driver) statusFrom(snap motor.Snapshot) Status {
	d.mu.RLock()
	isOpen := d.isOpen[snap.Index]
	d.mu.RUnlock()
	return newStatus(snap, d.motors.MotorName(snap.Index.Number()), isOpen)
}

// handleNotification runs for every motor notification.
func (d *Driver) handleNotification(n motor.Notification) {
	if raw, ok := n.(motor.RawStateChanged); ok {
		d.trackOpen(raw)
		if raw.Origin == motor.OriginIntent {
			d.sendFor(raw)
		}
	}

	status := d.status(n.MotorIndex())
	d.eachListener(func(l Listener) { l.MotorChanged(status, n) })
}

// trackOpen latches IsOpen on confirmed Open and clears it on confirmed
// Close; in-flight states leave it alone.
func (d *Driver) trackOpen(raw motor.RawStateChanged) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch raw.State {
	case motor.Open:
		d.isOpen[raw.Index] = true
	case motor.Close:
		d.isOpen[raw.Index] = false
	}
}

// sendFor sends the wire command for an intent transition and answers the
// Execute call that requested it, if any.
func (d *Driver) sendFor(raw motor.RawStateChanged) {
	var err error
	if p, ok := raw.Tag.(*pendingSend); ok {
		defer func() { p.finish(err) }()
	}

	verb, ok := protocol.VerbFor(raw.State)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(d.ctx, d.sendTimeout)
	defer cancel()

	err = d.ctrl.SendIntent(ctx, verb, raw.Index)
	if err != nil {
		d.logWarn("wire command not sent",
			"motor", raw.Index.Number(), "verb", string(verb), "error", err)
	}
}

// eachListener calls fn for every listener, recovering panics so one
// broken listener cannot starve the rest.
func (d *Driver) eachListener(fn func(Listener)) {
	d.listenersMu.RLock()
	listeners := append([]Listener(nil), d.listeners...)
	d.listenersMu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logError("listener panicked", "panic", fmt.Sprint(r))
				}
			}()
			fn(l)
		}()
	}
}

func (d *Driver) record(ctx context.Context, entry *audit.Entry) {
	if d.audit == nil {
		return
	}
	// A cancelled request still gets its audit row.
	if err := d.audit.Record(context.WithoutCancel(ctx), entry); err != nil {
		d.logError("audit write failed", "command", entry.Command, "error", err)
	}
}

// IsInputError reports whether err came from an unparseable or unsupported
// command rather than the link.
func IsInputError(err error) bool {
	return errors.Is(err, protocol.ErrInvalidCommand) ||
		errors.Is(err, protocol.ErrUnsupportedCommand) ||
		errors.Is(err, motor.ErrIndexOutOfRange)
}

func (d *Driver) logDebug(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, keysAndValues...)
	}
}

func (d *Driver) logInfo(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Info(msg, keysAndValues...)
	}
}

func (d *Driver) logWarn(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, keysAndValues...)
	}
}

func (d *Driver) logError(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Error(msg, keysAndValues...)
	}
}
