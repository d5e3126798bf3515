package driver

import (
	"context"

	"github.com/nerrad567/motorbank-core/internal/motor"
	"github.com/nerrad567/motorbank-core/internal/protocol"
)

// pendingSend carries one Execute call's wire result. It rides on the
// motor's RawStateChanged, so the result reaches the caller whose
// transition produced the send even when another goroutine delivers it.
type pendingSend struct {
	done chan struct{}
	err  error
}

func newPendingSend() *pendingSend {
	return &pendingSend{done: make(chan struct{})}
}

// finish records the send result. Called exactly once, by sendFor.
func (p *pendingSend) finish(err error) {
	p.err = err
	close(p.done)
}

// wait blocks until the send finished or either context ends.
func (p *pendingSend) wait(ctx, driverCtx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	case <-driverCtx.Done():
		return driverCtx.Err()
	}
}

// intentTarget maps a command verb to the state its transition enters.
func intentTarget(verb protocol.Verb) (motor.State, bool) {
	switch verb {
	case protocol.VerbOpen:
		return motor.Opening, true
	case protocol.VerbClose:
		return motor.Closing, true
	case protocol.VerbStop:
		return motor.Stop, true
	default:
		return motor.Unknown, false
	}
}
