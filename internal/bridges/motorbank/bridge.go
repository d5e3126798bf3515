package motorbank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/motorbank-core/internal/audit"
	"github.com/nerrad567/motorbank-core/internal/driver"
	"github.com/nerrad567/motorbank-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/motorbank-core/internal/motor"
	"github.com/nerrad567/motorbank-core/internal/protocol"
)

// commandTimeout bounds one MQTT-triggered command, including its wire send.
const commandTimeout = 10 * time.Second

// Driver is the part of *driver.Driver the bridge uses.
type Driver interface {
	Execute(ctx context.Context, source, command string) (driver.Result, error)
	ExecuteAction(ctx context.Context, source string, number int, action string) (driver.Result, error)
	Poll(ctx context.Context, source string) error
	Statuses() []driver.Status
	Summary() driver.Summary
	Connected() bool
}

// MQTTClient is the part of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	// Driver executes commands and provides status. Required.
	Driver Driver

	// MQTT is the broker client. Required.
	MQTT MQTTClient

	// Topics builds the site's topic names.
	Topics mqtt.Topics

	// Site is reported in health messages.
	Site string

	// Version is reported in health messages.
	Version string

	// Address is the controller link address reported in health and
	// connection messages.
	Address string

	// QoS for publishes and subscriptions. Default 1.
	QoS byte

	// HealthInterval is how often health is published. Default 30s.
	HealthInterval time.Duration

	// Logger is optional.
	Logger Logger
}

// Bridge connects the driver to MQTT.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	driver  Driver
	mqtt    MQTTClient
	topics  mqtt.Topics
	address string
	qos     byte
	health  *HealthReporter
	logger  Logger
	now     func() time.Time

	summaryMu   sync.Mutex
	lastSummary *driver.Summary

	commandsReceived atomic.Uint64
	commandsFailed   atomic.Uint64
	published        atomic.Uint64
	publishErrors    atomic.Uint64

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
}

// NewBridge creates a bridge. Call Start to subscribe and begin health
// reporting.
//
// Returns:
//   - *Bridge: Ready to start
//   - error: ErrNoDriver or ErrNoMQTTClient if a required option is missing
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Driver == nil {
		return nil, ErrNoDriver
	}
	if opts.MQTT == nil {
		return nil, ErrNoMQTTClient
	}
	if opts.Topics.Base() == "" {
		opts.Topics = mqtt.NewTopics(opts.Site)
	}
	if opts.QoS == 0 {
		opts.QoS = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		driver:    opts.Driver,
		mqtt:      opts.MQTT,
		topics:    opts.Topics,
		address:   opts.Address,
		qos:       opts.QoS,
		logger:    opts.Logger,
		now:       time.Now,
		ctx:       ctx,
		ctxCancel: cancel,
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		Site:      opts.Site,
		Version:   opts.Version,
		Address:   opts.Address,
		Topic:     opts.Topics.Health(),
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Link:      opts.Driver,
		Stats:     b.Stats,
		Logger:    opts.Logger,
	})
	return b, nil
}

// Start subscribes to the command topics, publishes the current state of
// every motor and begins health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logWarn("failed to publish starting health", "error", err)
	}

	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{b.topics.Commands(), b.handleCommand},
		{b.topics.AllMotorCommands(), b.handleMotorCommand},
		{b.topics.Poll(), b.handlePoll},
	}
	for _, s := range subs {
		if err := b.mqtt.Subscribe(s.topic, b.qos, s.handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", s.topic, err)
		}
	}

	b.PublishAll()
	b.health.Start(ctx)

	b.logInfo("motorbank bridge started", "base", b.topics.Base())
	return nil
}

// Stop halts health reporting and cancels in-flight commands. Safe to call
// multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.health.Stop()
		b.logInfo("motorbank bridge stopped")
	})
}

// Stats returns the bridge counters.
func (b *Bridge) Stats() BridgeStatistics {
	return BridgeStatistics{
		CommandsReceived: b.commandsReceived.Load(),
		CommandsFailed:   b.commandsFailed.Load(),
		Published:        b.published.Load(),
		PublishErrors:    b.publishErrors.Load(),
	}
}

// PublishAll publishes retained state for every motor plus the summary and
// connection status. Used on start and after a broker reconnect.
func (b *Bridge) PublishAll() {
	for _, s := range b.driver.Statuses() {
		b.publishState(s, "")
	}
	b.publishSummary(true)
	b.ConnectionChanged(b.driver.Connected())
}

// MotorChanged implements driver.Listener.
func (b *Bridge) MotorChanged(status driver.Status, n motor.Notification) {
	switch n := n.(type) {
	case motor.RawStateChanged:
		b.publishState(status, n.Origin.String())
		b.publishSummary(false)
	case motor.CommandEvent:
		b.publishJSON(b.topics.Event(status.Number), false, EventMessage{
			Number:    status.Number,
			Name:      status.Name,
			Kind:      n.Event.Kind,
			Success:   n.Event.Success,
			Summary:   n.Event.Summary,
			Timestamp: n.Event.Time,
		})
	}
}

// ConnectionChanged implements driver.Listener.
func (b *Bridge) ConnectionChanged(connected bool) {
	b.publishJSON(b.topics.Connection(), true, ConnectionMessage{
		Connected: connected,
		Address:   b.address,
		Timestamp: b.now().UTC(),
	})
	//nolint:errcheck // logged by the reporter
	b.health.PublishNow()
}

// FeedbackReceived implements driver.Listener. Per-motor changes are
// already published through MotorChanged.
func (b *Bridge) FeedbackReceived(_ protocol.Batch, err error) {
	if err != nil {
		b.logDebug("feedback batch had unparseable lines", "error", err)
	}
}

func (b *Bridge) handleCommand(_ string, payload []byte) error {
	b.commandsReceived.Add(1)

	msg, err := decodeCommand(payload)
	if err != nil {
		b.commandsFailed.Add(1)
		return err
	}
	command := msg.Command
	if command == "" {
		// Bare text payloads are accepted too: "Open3".
		command = strings.TrimSpace(string(payload))
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if _, err := b.driver.Execute(ctx, audit.SourceMQTT, command); err != nil {
		b.commandsFailed.Add(1)
		return err
	}
	return nil
}

func (b *Bridge) handleMotorCommand(topic string, payload []byte) error {
	b.commandsReceived.Add(1)

	number, ok := b.topics.MotorNumber(topic)
	if !ok {
		b.commandsFailed.Add(1)
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	msg, err := decodeCommand(payload)
	if err != nil {
		b.commandsFailed.Add(1)
		return err
	}
	action := msg.Action
	if action == "" {
		action = strings.TrimSpace(string(payload))
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if _, err := b.driver.ExecuteAction(ctx, audit.SourceMQTT, number, action); err != nil {
		b.commandsFailed.Add(1)
		return err
	}
	return nil
}

func (b *Bridge) handlePoll(_ string, _ []byte) error {
	b.commandsReceived.Add(1)

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := b.driver.Poll(ctx, audit.SourceMQTT); err != nil {
		b.commandsFailed.Add(1)
		return err
	}
	return nil
}

// decodeCommand accepts a JSON object or a bare text payload. A bare
// payload comes back as an empty message.
func decodeCommand(payload []byte) (CommandMessage, error) {
	var msg CommandMessage
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return msg, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	if !strings.HasPrefix(trimmed, "{") {
		return msg, nil
	}
	if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if msg.Command == "" && msg.Action == "" {
		return msg, fmt.Errorf("%w: neither command nor action set", ErrInvalidPayload)
	}
	return msg, nil
}

func (b *Bridge) publishState(status driver.Status, origin string) {
	b.publishJSON(b.topics.State(status.Number), true, StateMessage{
		Status:    status,
		Origin:    origin,
		Timestamp: b.now().UTC(),
	})
}

// publishSummary publishes the aggregate tile when it differs from the last
// one sent, or always when force is set. The summary is read and published
// under summaryMu so the retained topic always ends on the newest view.
func (b *Bridge) publishSummary(force bool) {
	b.summaryMu.Lock()
	defer b.summaryMu.Unlock()

	summary := b.driver.Summary()
	if !force && b.lastSummary != nil && *b.lastSummary == summary {
		return
	}
	b.lastSummary = &summary

	b.publishJSON(b.topics.Summary(), true, SummaryMessage{
		Summary:   summary,
		Timestamp: b.now().UTC(),
	})
}

func (b *Bridge) publishJSON(topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.publishErrors.Add(1)
		b.logError("failed to marshal MQTT payload", "topic", topic, "error", err)
		return
	}
	if err := b.mqtt.Publish(topic, payload, b.qos, retained); err != nil {
		b.publishErrors.Add(1)
		b.logWarn("MQTT publish failed", "topic", topic, "error", err)
		return
	}
	b.published.Add(1)
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Error(msg, keysAndValues...)
	}
}
