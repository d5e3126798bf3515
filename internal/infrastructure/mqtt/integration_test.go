//go:build integration

package mqtt

import (
	"sync"
	"testing"
	"time"
)

// These tests need a broker at 127.0.0.1:1883.
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...

func TestIntegration_RoundtripAndTracking(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "motorbank-int-roundtrip"
	topics := NewTopics("integration")

	client, err := Connect(cfg, topics)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 1)
	err = client.Subscribe(topics.AllMotorCommands(), 1, func(topic string, payload []byte) error {
		mu.Lock()
		got = append(got, topic+"="+string(payload))
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topics.AllMotorCommands()) {
		t.Error("subscription not tracked")
	}

	if err := client.Publish(topics.Command(4), []byte(`{"action":"close"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0] != `motorbank/integration/command/4={"action":"close"}` {
		t.Errorf("received %q", got[0])
	}

	if err := client.Unsubscribe(topics.AllMotorCommands()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Error("subscription still tracked after Unsubscribe")
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999
	cfg.Reconnect.InitialDelay = 0

	if _, err := Connect(cfg, NewTopics("integration")); err == nil {
		t.Fatal("Connect() to a closed port should fail")
	}
}
