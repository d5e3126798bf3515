package history

import (
	"context"
	"time"

	"github.com/nerrad567/motorbank-core/internal/driver"
	"github.com/nerrad567/motorbank-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/motorbank-core/internal/motor"
	"github.com/nerrad567/motorbank-core/internal/protocol"
)

const (
	// recordQueueSize bounds events waiting for the SQLite writer. Beyond
	// this, events are dropped with a warning rather than stalling motors.
	recordQueueSize = 256

	pruneInterval = time.Hour
)

// Series receives time-series points. *influxdb.Client implements it.
type Series interface {
	WriteMotorState(s influxdb.MotorState)
	WriteMotorEvent(e influxdb.MotorEvent)
	WriteLinkStatus(address string, connected bool)
}

// Logger interface for optional logging.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// Repository stores events. Optional; nil skips SQLite.
	Repository Repository

	// Series receives points. Optional; nil skips InfluxDB.
	Series Series

	// Address tags link_status points.
	Address string

	// Retention prunes events older than this. 0 keeps everything.
	Retention time.Duration

	Logger Logger
}

type queuedEvent struct {
	number int
	event  motor.Event
}

// Recorder is a driver.Listener that persists motor activity. Events are
// queued and written by Run so a slow disk never blocks a motor.
type Recorder struct {
	opts  RecorderOptions
	queue chan queuedEvent
	now   func() time.Time
}

var _ driver.Listener = (*Recorder)(nil)

// NewRecorder creates a recorder. Call Run to start the writer.
func NewRecorder(opts RecorderOptions) *Recorder {
	return &Recorder{
		opts:  opts,
		queue: make(chan queuedEvent, recordQueueSize),
		now:   time.Now,
	}
}

// MotorChanged implements driver.Listener.
func (r *Recorder) MotorChanged(status driver.Status, n motor.Notification) {
	switch n := n.(type) {
	case motor.RawStateChanged:
		if r.opts.Series != nil {
			r.opts.Series.WriteMotorState(influxdb.MotorState{
				Number: status.Number,
				Name:   status.Name,
				State:  n.State.String(),
				Origin: n.Origin.String(),
				IsOpen: status.IsOpen,
			})
		}
	case motor.CommandEvent:
		if r.opts.Series != nil {
			r.opts.Series.WriteMotorEvent(influxdb.MotorEvent{
				Number:  status.Number,
				Name:    status.Name,
				Kind:    n.Event.Kind.String(),
				Success: n.Event.Success,
				Time:    n.Event.Time,
			})
		}
		r.enqueue(queuedEvent{number: n.Index.Number(), event: n.Event})
	}
}

// ConnectionChanged implements driver.Listener.
func (r *Recorder) ConnectionChanged(connected bool) {
	if r.opts.Series != nil {
		r.opts.Series.WriteLinkStatus(r.opts.Address, connected)
	}
}

// FeedbackReceived implements driver.Listener. Individual motor changes
// already arrived through MotorChanged.
func (r *Recorder) FeedbackReceived(protocol.Batch, error) {}

func (r *Recorder) enqueue(e queuedEvent) {
	if r.opts.Repository == nil {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.logWarn("history queue full, dropping event", "motor", e.number, "kind", e.event.Kind.String())
	}
}

// Run writes queued events until ctx is cancelled, then drains what is
// left. It also prunes old events when a retention is configured.
func (r *Recorder) Run(ctx context.Context) {
	var prune <-chan time.Time
	if r.opts.Retention > 0 && r.opts.Repository != nil {
		r.prune(ctx)
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		prune = ticker.C
	}

	for {
		select {
		case e := <-r.queue:
			r.write(context.WithoutCancel(ctx), e)
		case <-prune:
			r.prune(ctx)
		case <-ctx.Done():
			for {
				select {
				case e := <-r.queue:
					r.write(context.WithoutCancel(ctx), e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(ctx context.Context, e queuedEvent) {
	if err := r.opts.Repository.RecordEvent(ctx, e.number, e.event); err != nil {
		r.logError("history write failed", "motor", e.number, "error", err)
	}
}

func (r *Recorder) prune(ctx context.Context) {
	if _, err := r.opts.Repository.Prune(ctx, r.now().Add(-r.opts.Retention)); err != nil {
		r.logError("history prune failed", "error", err)
	}
}

func (r *Recorder) logWarn(msg string, keysAndValues ...any) {
	if r.opts.Logger != nil {
		r.opts.Logger.Warn(msg, keysAndValues...)
	}
}

func (r *Recorder) logError(msg string, keysAndValues ...any) {
	if r.opts.Logger != nil {
		r.opts.Logger.Error(msg, keysAndValues...)
	}
}
