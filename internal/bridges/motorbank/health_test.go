package motorbank

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct{ up bool }

func (l fakeLink) Connected() bool { return l.up }

func TestHealthReporter_Defaults(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{})
	assert.Equal(t, defaultHealthInterval, h.cfg.Interval)

	// Nothing to publish to is not an error.
	assert.NoError(t, h.PublishNow())
}

func TestHealthReporter_DetermineStatus(t *testing.T) {
	tests := []struct {
		name   string
		link   LinkChecker
		status HealthStatus
	}{
		{"link up", fakeLink{up: true}, HealthHealthy},
		{"link down", fakeLink{up: false}, HealthDegraded},
		{"no link", nil, HealthDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthReporter(HealthReporterConfig{Link: tt.link})
			status, _ := h.determineStatus()
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestHealthReporter_Message(t *testing.T) {
	client := NewMockMQTTClient()
	h := NewHealthReporter(HealthReporterConfig{
		Site:      "site1",
		Version:   "1.2.3",
		Address:   "/dev/ttyUSB0",
		Topic:     "motorbank/site1/health",
		Publisher: client,
		Link:      fakeLink{up: true},
		Stats:     func() BridgeStatistics { return BridgeStatistics{CommandsReceived: 7} },
	})
	h.startTime = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return h.startTime.Add(90 * time.Second) }

	require.NoError(t, h.PublishNow())

	pubs := client.PublishedTo("motorbank/site1/health")
	require.Len(t, pubs, 1)
	assert.True(t, pubs[0].Retained)
	assert.Equal(t, byte(1), pubs[0].QoS)

	var msg HealthMessage
	require.NoError(t, json.Unmarshal(pubs[0].Payload, &msg))
	assert.Equal(t, HealthHealthy, msg.Status)
	assert.Equal(t, "site1", msg.Site)
	assert.Equal(t, "1.2.3", msg.Version)
	assert.Equal(t, int64(90), msg.UptimeSeconds)
	assert.True(t, msg.Link.Connected)
	assert.Equal(t, "/dev/ttyUSB0", msg.Link.Address)
	require.NotNil(t, msg.Statistics)
	assert.Equal(t, uint64(7), msg.Statistics.CommandsReceived)
}

func TestHealthReporter_SkipsWhenBrokerDown(t *testing.T) {
	client := NewMockMQTTClient()
	client.connected = false
	h := NewHealthReporter(HealthReporterConfig{Topic: "h", Publisher: client, Link: fakeLink{up: true}})

	require.NoError(t, h.PublishNow())
	assert.Empty(t, client.PublishedTo("h"))
}

func TestHealthReporter_StartStop(t *testing.T) {
	client := NewMockMQTTClient()
	h := NewHealthReporter(HealthReporterConfig{
		Topic:     "h",
		Interval:  10 * time.Millisecond,
		Publisher: client,
		Link:      fakeLink{up: true},
	})

	h.Start(context.Background())
	h.Start(context.Background())

	assert.Eventually(t, func() bool {
		return len(client.PublishedTo("h")) >= 3
	}, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()

	pubs := client.PublishedTo("h")
	var last HealthMessage
	require.NoError(t, json.Unmarshal(pubs[len(pubs)-1].Payload, &last))
	assert.Equal(t, HealthStopping, last.Status)
}
