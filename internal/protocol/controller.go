package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/motorbank-core/internal/motor"
	"github.com/nerrad567/motorbank-core/internal/transport"
)

// defaultSendTimeout bounds sends issued by the controller itself (polls).
const defaultSendTimeout = 5 * time.Second

// Transport is the send side of the link. transport.Link implements it.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	// Transport carries frames to the device. Required.
	Transport Transport

	// Terminator ends every frame and splits feedback. Default: CR.
	Terminator string

	// PollInterval repeats StatePoll while connected. 0 polls once per connection.
	PollInterval time.Duration

	// SendTimeout bounds polls issued by the controller. Default: 5s.
	SendTimeout time.Duration

	// OnConnectedChanged is called when the connected flag flips.
	OnConnectedChanged func(connected bool)

	// OnFeedback is called once per received buffer with the parsed batch
	// and any line errors.
	OnFeedback func(batch Batch, err error)

	// Logger is optional.
	Logger Logger
}

// Controller owns the protocol session: connected flag, last command and
// the transport. It implements transport.Handler.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Callbacks are invoked without internal locks held.
type Controller struct {
	transport Transport
	parser    *Parser
	opts      ControllerOptions
	logger    Logger

	mu          sync.Mutex
	connected   bool
	lastCommand string
	stopPolling context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Ensure Controller implements transport.Handler.
var _ transport.Handler = (*Controller)(nil)

// NewController creates a disconnected controller.
//
// Returns:
//   - *Controller: Ready to receive link events
//   - error: ErrNoTransport if opts.Transport is nil
func NewController(opts ControllerOptions) (*Controller, error) {
	if opts.Transport == nil {
		return nil, ErrNoTransport
	}
	if opts.Terminator == "" {
		opts.Terminator = DefaultTerminator
	}
	if opts.SendTimeout == 0 {
		opts.SendTimeout = defaultSendTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		transport: opts.Transport,
		parser:    NewParser(opts.Terminator),
		opts:      opts,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// OnConnect handles the link's connect signal. A repeated signal while
// already connected is ignored; otherwise the controller raises
// ConnectedChanged(true) and sends one StatePoll.
func (c *Controller) OnConnect() {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = true
	c.mu.Unlock()

	c.logInfo("controller connected")
	c.notifyConnected(true)

	ctx, cancel := context.WithTimeout(c.ctx, c.opts.SendTimeout)
	defer cancel()
	if err := c.Poll(ctx); err != nil {
		c.logWarn("initial poll failed", "error", err)
	}

	c.startPolling()
}

// OnDisconnect handles the link's disconnect signal.
func (c *Controller) OnDisconnect(err error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	stop := c.stopPolling
	c.stopPolling = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}

	c.logWarn("controller disconnected", "error", err)
	c.notifyConnected(false)
}

// OnReceive parses a received buffer and publishes the batch once.
func (c *Controller) OnReceive(data []byte) {
	batch, err := c.parser.Parse(data)
	if err != nil {
		c.logWarn("feedback contained invalid lines", "error", err, "reported", batch.Len())
	}
	if batch.Len() == 0 && err == nil {
		return
	}

	if c.opts.OnFeedback != nil {
		c.opts.OnFeedback(batch, err)
	}
}

// Send frames cmd and writes it to the transport.
//
// A transport send timeout is logged and returned; it does not change the
// connection state.
func (c *Controller) Send(ctx context.Context, cmd string) error {
	if !c.Connected() {
		return fmt.Errorf("%w: %s", ErrNotConnected, cmd)
	}

	c.mu.Lock()
	c.lastCommand = cmd
	c.mu.Unlock()

	err := c.transport.Send(ctx, Frame(cmd, c.opts.Terminator))
	switch {
	case err == nil:
		c.logDebug("command sent", "command", cmd)
		return nil
	case errors.Is(err, transport.ErrSendTimeout):
		c.logWarn("send timed out", "command", cmd, "last_command", c.LastCommand())
		return err
	default:
		c.logError("send failed", "command", cmd, "error", err)
		return err
	}
}

// SendIntent encodes verb for index and sends it.
func (c *Controller) SendIntent(ctx context.Context, verb Verb, index motor.Index) error {
	cmd, err := Encode(verb, index)
	if err != nil {
		return err
	}
	return c.Send(ctx, cmd)
}

// Poll requests every motor's state.
func (c *Controller) Poll(ctx context.Context) error {
	return c.Send(ctx, CommandStatePoll)
}

// Connected reports the session's connected flag.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LastCommand returns the most recent command handed to the transport.
func (c *Controller) LastCommand() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCommand
}

// Close stops periodic polling. The transport is not closed; it is shared.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) startPolling() {
	if c.opts.PollInterval <= 0 {
		return
	}

	c.mu.Lock()
	if !c.connected || c.stopPolling != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.stopPolling = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.opts.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sendCtx, sendCancel := context.WithTimeout(ctx, c.opts.SendTimeout)
				if err := c.Poll(sendCtx); err != nil {
					c.logDebug("periodic poll failed", "error", err)
				}
				sendCancel()
			}
		}
	}()
}

func (c *Controller) notifyConnected(connected bool) {
	if c.opts.OnConnectedChanged != nil {
		c.opts.OnConnectedChanged(connected)
	}
}

func (c *Controller) logDebug(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, keysAndValues...)
	}
}

func (c *Controller) logInfo(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Info(msg, keysAndValues...)
	}
}

func (c *Controller) logWarn(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, keysAndValues...)
	}
}

func (c *Controller) logError(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Error(msg, keysAndValues...)
	}
}
