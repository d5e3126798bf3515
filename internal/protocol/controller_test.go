package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/motorbank-core/internal/motor"
	"github.com/nerrad567/motorbank-core/internal/transport"
)

// fakeTransport records frames and can be told to fail.
type fakeTransport struct {
	mu     sync.Mutex
	frames []string
	err    error
}

func (f *fakeTransport) Send(_ context.Context, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, string(frame))
	return nil
}

func (f *fakeTransport) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

func (f *fakeTransport) count(frame string) int {
	n := 0
	for _, s := range f.sent() {
		if s == frame {
			n++
		}
	}
	return n
}

// events captures controller callbacks.
type events struct {
	mu        sync.Mutex
	connected []bool
	batches   []Batch
	errs      []error
}

func (e *events) onConnected(c bool) {
	e.mu.Lock()
	e.connected = append(e.connected, c)
	e.mu.Unlock()
}

func (e *events) onFeedback(b Batch, err error) {
	e.mu.Lock()
	e.batches = append(e.batches, b)
	e.errs = append(e.errs, err)
	e.mu.Unlock()
}

// captureLogger records warn messages.
type captureLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(string, ...any)  {}
func (l *captureLogger) Error(string, ...any) {}
func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func newTestController(t *testing.T, opts ControllerOptions) (*Controller, *fakeTransport, *events) {
	t.Helper()
	tr := &fakeTransport{}
	ev := &events{}
	if opts.Transport == nil {
		opts.Transport = tr
	}
	opts.OnConnectedChanged = ev.onConnected
	opts.OnFeedback = ev.onFeedback

	c, err := NewController(opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, tr, ev
}

// ============================================================================
// Connection handling
// ============================================================================

func TestController_ConnectPollsOnce(t *testing.T) {
	c, tr, ev := newTestController(t, ControllerOptions{})

	c.OnConnect()

	assert.True(t, c.Connected())
	assert.Equal(t, []string{"StatePoll\r"}, tr.sent())
	assert.Equal(t, []bool{true}, ev.connected)
	assert.Equal(t, CommandStatePoll, c.LastCommand())

	// Repeated connect signal while connected does nothing.
	c.OnConnect()
	assert.Equal(t, 1, tr.count("StatePoll\r"))
	assert.Equal(t, []bool{true}, ev.connected)
}

func TestController_DisconnectAndReconnect(t *testing.T) {
	c, tr, ev := newTestController(t, ControllerOptions{})

	c.OnConnect()
	c.OnDisconnect(errors.New("link lost"))
	assert.False(t, c.Connected())

	// A second disconnect is not re-raised.
	c.OnDisconnect(errors.New("still lost"))

	c.OnConnect()
	assert.Equal(t, []bool{true, false, true}, ev.connected)
	assert.Equal(t, 2, tr.count("StatePoll\r"))
}

func TestController_SendRequiresConnection(t *testing.T) {
	c, tr, _ := newTestController(t, ControllerOptions{})

	err := c.SendIntent(context.Background(), VerbOpen, 0)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, tr.sent())
}

func TestController_SendIntentFramesCommand(t *testing.T) {
	c, tr, _ := newTestController(t, ControllerOptions{})
	c.OnConnect()

	require.NoError(t, c.SendIntent(context.Background(), VerbClose, 4))

	assert.Equal(t, []string{"StatePoll\r", "Close5\r"}, tr.sent())
	assert.Equal(t, "Close5", c.LastCommand())
}

func TestController_CustomTerminator(t *testing.T) {
	c, tr, ev := newTestController(t, ControllerOptions{Terminator: "\n"})
	c.OnConnect()

	assert.Equal(t, []string{"StatePoll\n"}, tr.sent())

	c.OnReceive([]byte("Motor1 is open\nMotor2 is closed\n"))
	require.Len(t, ev.batches, 1)
	assert.Equal(t, 2, ev.batches[0].Len())
}

func TestController_SendTimeoutLoggedOnly(t *testing.T) {
	logger := &captureLogger{}
	tr := &fakeTransport{}
	c, _, ev := newTestController(t, ControllerOptions{Transport: tr, Logger: logger})
	c.OnConnect()

	tr.mu.Lock()
	tr.err = fmt.Errorf("%w: i/o timeout", transport.ErrSendTimeout)
	tr.mu.Unlock()

	err := c.SendIntent(context.Background(), VerbOpen, 2)
	assert.ErrorIs(t, err, transport.ErrSendTimeout)
	assert.True(t, c.Connected(), "timeout must not drop the session")
	assert.Equal(t, []bool{true}, ev.connected)
	assert.Equal(t, "Open3", c.LastCommand())

	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.Contains(t, logger.warns, "send timed out")
}

func TestNewController_RequiresTransport(t *testing.T) {
	_, err := NewController(ControllerOptions{})
	assert.ErrorIs(t, err, ErrNoTransport)
}

// ============================================================================
// Feedback
// ============================================================================

func TestController_ReceivePublishesOneBatch(t *testing.T) {
	c, _, ev := newTestController(t, ControllerOptions{})

	c.OnReceive([]byte("Motor1 is open\rMotor2 is closed\rMotor9 is open\r"))

	require.Len(t, ev.batches, 1)
	assert.Equal(t, map[int]motor.State{1: motor.Open, 2: motor.Close}, ev.batches[0].ByNumber())
	assert.ErrorIs(t, ev.errs[0], ErrFeedbackParse)
}

func TestController_ReceiveIgnoresBlankBuffers(t *testing.T) {
	c, _, ev := newTestController(t, ControllerOptions{})

	c.OnReceive([]byte("\r\r"))

	assert.Empty(t, ev.batches)
}

func TestController_ReceiveReportsAllInvalid(t *testing.T) {
	c, _, ev := newTestController(t, ControllerOptions{})

	c.OnReceive([]byte("hello\r"))

	require.Len(t, ev.batches, 1)
	assert.Equal(t, 0, ev.batches[0].Len())
	assert.ErrorIs(t, ev.errs[0], ErrFeedbackParse)
}

// ============================================================================
// Periodic polling
// ============================================================================

func TestController_PeriodicPoll(t *testing.T) {
	c, tr, _ := newTestController(t, ControllerOptions{PollInterval: 20 * time.Millisecond})

	c.OnConnect()
	assert.Eventually(t, func() bool { return tr.count("StatePoll\r") >= 3 }, 2*time.Second, 10*time.Millisecond)

	c.OnDisconnect(nil)
	time.Sleep(30 * time.Millisecond)
	after := tr.count("StatePoll\r")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, tr.count("StatePoll\r"), "polling must stop on disconnect")
}
