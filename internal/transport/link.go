package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for the controller link.
const (
	// defaultConnectTimeout is the maximum time to wait for a TCP connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout is the deadline applied to each write.
	defaultWriteTimeout = 5 * time.Second

	// defaultReadPoll is how long a TCP read blocks before checking for shutdown.
	defaultReadPoll = time.Second

	// defaultSerialReadTimeout is the serial port read timeout.
	defaultSerialReadTimeout = 100 * time.Millisecond

	// defaultReconnectInterval is the initial delay between connection attempts.
	defaultReconnectInterval = time.Second

	// maxReconnectInterval caps the reconnection backoff.
	maxReconnectInterval = time.Minute

	// defaultMaxLineBuffer caps buffered unterminated input.
	defaultMaxLineBuffer = 4096

	// readBufferSize is the size of each read.
	readBufferSize = 512
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Handler receives link events. Calls are made from the receive goroutine.
type Handler interface {
	OnConnect()
	OnDisconnect(err error)
	OnReceive(data []byte)
}

// LinkConfig holds link behaviour settings. Zero values select defaults.
type LinkConfig struct {
	// Terminator frames received data. Default: CR.
	Terminator string

	// WriteTimeout is the deadline for a single write.
	WriteTimeout time.Duration

	// ReadPoll bounds a blocking TCP read so shutdown is noticed.
	ReadPoll time.Duration

	// ReconnectInterval is the initial backoff after a failed or lost connection.
	ReconnectInterval time.Duration

	// MaxReconnectInterval caps the backoff.
	MaxReconnectInterval time.Duration

	// MaxLineBuffer caps buffered unterminated input in bytes.
	MaxLineBuffer int
}

// Stats holds operational statistics.
type Stats struct {
	Address         string    `json:"address"`
	FramesTx        uint64    `json:"frames_tx"`
	BuffersRx       uint64    `json:"buffers_rx"`
	BytesRx         uint64    `json:"bytes_rx"`
	SendTimeouts    uint64    `json:"send_timeouts"`
	ErrorsTotal     uint64    `json:"errors_total"`
	ReconnectsTotal uint64    `json:"reconnects_total"`
	LastActivity    time.Time `json:"last_activity"`
	Connected       bool      `json:"connected"`
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Link maintains the connection to the motor controller.
//
// Auto-Reconnection:
//   - When the connection is lost, the link reconnects with exponential
//     backoff (x1.5) from ReconnectInterval up to MaxReconnectInterval.
//   - Reconnection stops only when Close() is called or the Start context ends.
type Link struct {
	cfg    LinkConfig
	dialer Dialer

	handler   Handler
	handlerMu sync.RWMutex

	conn      io.ReadWriteCloser
	connected bool
	connMu    sync.RWMutex

	// writeMu serialises frames so two commands never interleave on the wire.
	writeMu sync.Mutex

	started atomic.Bool
	done    *closeOnce
	wg      sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	framesTx        atomic.Uint64
	buffersRx       atomic.Uint64
	bytesRx         atomic.Uint64
	sendTimeouts    atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64
}

// NewLink creates a link that is not yet connected. Call Start to begin.
func NewLink(dialer Dialer, cfg LinkConfig) *Link {
	if cfg.Terminator == "" {
		cfg.Terminator = "\r"
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReadPoll == 0 {
		cfg.ReadPoll = defaultReadPoll
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.MaxReconnectInterval == 0 {
		cfg.MaxReconnectInterval = maxReconnectInterval
	}
	if cfg.MaxLineBuffer == 0 {
		cfg.MaxLineBuffer = defaultMaxLineBuffer
	}

	return &Link{
		cfg:    cfg,
		dialer: dialer,
		done:   newCloseOnce(),
	}
}

// SetHandler sets the receiver of link events. Set it before Start.
func (l *Link) SetHandler(h Handler) {
	l.handlerMu.Lock()
	l.handler = h
	l.handlerMu.Unlock()
}

// SetLogger sets the logger for this link.
func (l *Link) SetLogger(logger Logger) {
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

// Start begins connecting in the background and returns immediately.
// Calling Start more than once has no effect.
func (l *Link) Start(ctx context.Context) {
	if !l.started.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		select {
		case <-ctx.Done():
			l.done.Close()
		case <-l.done.Done():
		}
		cancel()
	}()
	go l.run(ctx)
}

// run dials, reads until the connection fails, then backs off and redials.
func (l *Link) run(ctx context.Context) {
	defer l.wg.Done()

	backoff := l.cfg.ReconnectInterval
	everConnected := false

	for {
		if l.isClosed() {
			return
		}

		conn, err := l.dialer.Dial(ctx)
		if err != nil {
			l.errorsTotal.Add(1)
			l.logWarn("connection attempt failed", "address", l.dialer.Address(), "backoff", backoff.String(), "error", err)
			if !l.sleep(backoff) {
				return
			}
			backoff = l.nextBackoff(backoff)
			continue
		}

		backoff = l.cfg.ReconnectInterval
		if everConnected {
			l.reconnectsTotal.Add(1)
		}
		everConnected = true

		l.attach(conn)
		l.logInfo("link connected", "address", l.dialer.Address())
		l.notifyConnect()

		err = l.readLoop(conn)

		l.detach(conn)
		if l.isClosed() {
			l.notifyDisconnect(ErrClosed)
			return
		}
		l.errorsTotal.Add(1)
		l.logWarn("link lost", "address", l.dialer.Address(), "error", err)
		l.notifyDisconnect(err)

		if !l.sleep(backoff) {
			return
		}
	}
}

// readLoop reads until the connection fails or the link is closed.
func (l *Link) readLoop(conn io.ReadWriteCloser) error {
	framer := newLineFramer(l.cfg.Terminator, l.cfg.MaxLineBuffer)
	buf := make([]byte, readBufferSize)
	rd, canDeadline := conn.(readDeadliner)

	for {
		if l.isClosed() {
			return ErrClosed
		}

		if canDeadline {
			if err := rd.SetReadDeadline(time.Now().Add(l.cfg.ReadPoll)); err != nil {
				return fmt.Errorf("set read deadline: %w", err)
			}
		}

		n, err := conn.Read(buf)
		if n > 0 {
			l.bytesRx.Add(uint64(n))
			l.lastActivity.Store(time.Now().Unix())
			if data := framer.push(buf[:n]); data != nil {
				l.buffersRx.Add(1)
				l.notifyReceive(data)
			}
		}

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("remote closed connection: %w", err)
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}

// Send writes one frame. The caller is responsible for framing.
//
// Parameters:
//   - ctx: Context for cancellation; its deadline shortens the write timeout
//   - frame: Bytes to write, including the terminator
//
// Returns:
//   - error: ErrNotConnected, ErrSendTimeout (connection kept) or
//     ErrSendFailed (connection dropped and redialled)
func (l *Link) Send(ctx context.Context, frame []byte) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
	default:
	}

	l.connMu.RLock()
	conn := l.conn
	l.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	deadline := time.Now().Add(l.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if wd, ok := conn.(writeDeadliner); ok {
		if err := wd.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
		}
	}

	if _, err := conn.Write(frame); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			l.sendTimeouts.Add(1)
			return fmt.Errorf("%w: %w", ErrSendTimeout, err)
		}
		l.errorsTotal.Add(1)
		// Closing unblocks the receive loop, which reconnects.
		conn.Close()
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	l.framesTx.Add(1)
	l.lastActivity.Store(time.Now().Unix())
	return nil
}

func (l *Link) attach(conn io.ReadWriteCloser) {
	l.connMu.Lock()
	l.conn = conn
	l.connected = true
	l.connMu.Unlock()
	l.lastActivity.Store(time.Now().Unix())
}

func (l *Link) detach(conn io.ReadWriteCloser) {
	l.connMu.Lock()
	if l.conn == conn {
		l.conn = nil
	}
	l.connected = false
	l.connMu.Unlock()
	conn.Close()
}

func (l *Link) nextBackoff(backoff time.Duration) time.Duration {
	next := time.Duration(float64(backoff) * 1.5)
	if next > l.cfg.MaxReconnectInterval {
		next = l.cfg.MaxReconnectInterval
	}
	return next
}

// sleep waits for d, returning false if the link was closed meanwhile.
func (l *Link) sleep(d time.Duration) bool {
	select {
	case <-l.done.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (l *Link) currentHandler() Handler {
	l.handlerMu.RLock()
	defer l.handlerMu.RUnlock()
	return l.handler
}

func (l *Link) notifyConnect() {
	if h := l.currentHandler(); h != nil {
		l.safeCall("OnConnect", h.OnConnect)
	}
}

func (l *Link) notifyDisconnect(err error) {
	if h := l.currentHandler(); h != nil {
		l.safeCall("OnDisconnect", func() { h.OnDisconnect(err) })
	}
}

func (l *Link) notifyReceive(data []byte) {
	if h := l.currentHandler(); h != nil {
		l.safeCall("OnReceive", func() { h.OnReceive(data) })
	}
}

func (l *Link) safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.errorsTotal.Add(1)
			l.logError("handler panic", "callback", name, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

func (l *Link) isClosed() bool {
	select {
	case <-l.done.Done():
		return true
	default:
		return false
	}
}

// IsConnected returns true while a connection is established.
func (l *Link) IsConnected() bool {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	return l.connected
}

// Stats returns current operational statistics.
func (l *Link) Stats() Stats {
	return Stats{
		Address:         l.dialer.Address(),
		FramesTx:        l.framesTx.Load(),
		BuffersRx:       l.buffersRx.Load(),
		BytesRx:         l.bytesRx.Load(),
		SendTimeouts:    l.sendTimeouts.Load(),
		ErrorsTotal:     l.errorsTotal.Load(),
		ReconnectsTotal: l.reconnectsTotal.Load(),
		LastActivity:    time.Unix(l.lastActivity.Load(), 0),
		Connected:       l.IsConnected(),
	}
}

// HealthCheck reports ErrNotConnected while the link is down.
func (l *Link) HealthCheck(_ context.Context) error {
	if !l.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close stops reconnection, closes the connection and waits for the
// receive goroutine. Safe to call multiple times.
func (l *Link) Close() error {
	l.done.Close()

	l.connMu.RLock()
	conn := l.conn
	l.connMu.RUnlock()
	if conn != nil {
		conn.Close()
	}

	l.wg.Wait()
	return nil
}

func (l *Link) loggerSnapshot() Logger {
	l.loggerMu.RLock()
	defer l.loggerMu.RUnlock()
	return l.logger
}

func (l *Link) logInfo(msg string, keysAndValues ...any) {
	if logger := l.loggerSnapshot(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (l *Link) logWarn(msg string, keysAndValues ...any) {
	if logger := l.loggerSnapshot(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (l *Link) logError(msg string, keysAndValues ...any) {
	if logger := l.loggerSnapshot(); logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
