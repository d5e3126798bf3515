package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/motorbank-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "motorbank-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// offlineClient is a Client whose paho client was never connected.
func offlineClient(t *testing.T) *Client {
	t.Helper()
	c := newClient(testConfig(), NewTopics("test"))
	c.client = pahomqtt.NewClient(buildClientOptions(testConfig()))
	return c
}

// =============================================================================
// Topics
// =============================================================================

func TestTopics(t *testing.T) {
	topics := NewTopics("home")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"base", topics.Base(), "motorbank/home"},
		{"command", topics.Command(3), "motorbank/home/command/3"},
		{"commands", topics.Commands(), "motorbank/home/command"},
		{"all motor commands", topics.AllMotorCommands(), "motorbank/home/command/+"},
		{"poll", topics.Poll(), "motorbank/home/poll"},
		{"state", topics.State(8), "motorbank/home/state/8"},
		{"event", topics.Event(1), "motorbank/home/event/1"},
		{"summary", topics.Summary(), "motorbank/home/summary"},
		{"connection", topics.Connection(), "motorbank/home/connection"},
		{"health", topics.Health(), "motorbank/home/health"},
		{"default site", NewTopics("  ").Base(), "motorbank/default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopics_MotorNumber(t *testing.T) {
	topics := NewTopics("home")

	tests := []struct {
		topic string
		want  int
		ok    bool
	}{
		{"motorbank/home/command/3", 3, true},
		{"motorbank/home/command/12", 12, true},
		{"motorbank/home/command", 0, false},
		{"motorbank/home/command/x", 0, false},
		{"motorbank/other/command/3", 0, false},
		{"motorbank/home/command/3/extra", 0, false},
	}
	for _, tt := range tests {
		got, ok := topics.MotorNumber(tt.topic)
		if got != tt.want || ok != tt.ok {
			t.Errorf("MotorNumber(%q) = (%d, %v), want (%d, %v)", tt.topic, got, ok, tt.want, tt.ok)
		}
	}
}

// =============================================================================
// Options
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "bank", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "motorbank-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "bank" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}
	if opts.Order {
		t.Error("ordered delivery must be off")
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS must not be configured for plain tcp")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers[0] = %v", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion == 0 {
		t.Error("TLS config missing minimum version")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, NewTopics("home").Health(), "motorbank-test")

	if !opts.WillEnabled || opts.WillTopic != "motorbank/home/health" {
		t.Errorf("will = %v %q", opts.WillEnabled, opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will retained=%v qos=%d", opts.WillRetained, opts.WillQos)
	}
	payload := string(opts.WillPayload)
	if !strings.Contains(payload, `"status":"offline"`) || !strings.Contains(payload, "unexpected_disconnect") {
		t.Errorf("will payload = %s", payload)
	}
}

// =============================================================================
// Disconnected behaviour
// =============================================================================

func TestOfflineClient(t *testing.T) {
	c := offlineClient(t)
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish", c.Publish("motorbank/test/summary", []byte("{}"), 1, false), ErrNotConnected},
		{"publish empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("x", nil, 3, false), ErrInvalidQoS},
		{"publish oversize", c.Publish("x", make([]byte, maxPayloadSize+1), 0, false), ErrPublishFailed},
		{"subscribe", c.Subscribe("x", 1, handler), ErrNotConnected},
		{"subscribe nil handler", c.Subscribe("x", 1, nil), ErrSubscribeFailed},
		{"subscribe bad qos", c.Subscribe("x", 5, handler), ErrInvalidQoS},
		{"unsubscribe", c.Unsubscribe("x"), ErrNotConnected},
		{"unsubscribe empty", c.Unsubscribe(""), ErrInvalidTopic},
		{"health", c.HealthCheck(context.Background()), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if c.IsConnected() {
		t.Error("IsConnected() = true for a client that never connected")
	}
	if c.SubscriptionCount() != 0 || c.HasSubscription("x") {
		t.Error("failed subscriptions must not be tracked")
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	c := offlineClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() = %v, want context.Canceled", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
}

// =============================================================================
// Handler wrapping
// =============================================================================

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestWrapHandler(t *testing.T) {
	c := offlineClient(t)
	logger := &recordingLogger{}
	c.SetLogger(logger)
	msg := fakeMessage{topic: "motorbank/test/command/1", payload: []byte(`{"action":"open"}`)}

	var got string
	c.wrapHandler(func(topic string, payload []byte) error {
		got = topic + " " + string(payload)
		return nil
	})(nil, msg)
	if got != `motorbank/test/command/1 {"action":"open"}` {
		t.Errorf("handler saw %q", got)
	}

	c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })(nil, msg)
	c.wrapHandler(func(string, []byte) error { panic("boom") })(nil, msg)

	if len(logger.warns) != 1 || len(logger.errors) != 1 {
		t.Errorf("warns=%v errors=%v, want one of each", logger.warns, logger.errors)
	}
}
