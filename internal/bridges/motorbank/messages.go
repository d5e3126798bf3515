package motorbank

import (
	"time"

	"github.com/nerrad567/motorbank-core/internal/driver"
	"github.com/nerrad567/motorbank-core/internal/motor"
)

// CommandMessage is received on the command topics. Command is used on
// motorbank/{site}/command; Action is used on motorbank/{site}/command/{n}.
type CommandMessage struct {
	Command string `json:"command,omitempty"`
	Action  string `json:"action,omitempty"`
}

// StateMessage is published retained on motorbank/{site}/state/{n}.
type StateMessage struct {
	driver.Status

	// Origin is "intent" or "feedback".
	Origin string `json:"origin"`

	Timestamp time.Time `json:"timestamp"`
}

// EventMessage is published on motorbank/{site}/event/{n}.
type EventMessage struct {
	Number    int         `json:"number"`
	Name      string      `json:"name"`
	Kind      motor.State `json:"kind"`
	Success   bool        `json:"success"`
	Summary   string      `json:"summary"`
	Timestamp time.Time   `json:"timestamp"`
}

// SummaryMessage is published retained on motorbank/{site}/summary.
type SummaryMessage struct {
	driver.Summary
	Timestamp time.Time `json:"timestamp"`
}

// ConnectionMessage is published retained on motorbank/{site}/connection.
type ConnectionMessage struct {
	Connected bool      `json:"connected"`
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

// Health status values.
const (
	// HealthHealthy indicates the bridge and the controller link are up.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is running but the controller
	// link is down.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting is published once before the first report.
	HealthStarting HealthStatus = "starting"

	// HealthStopping is published on clean shutdown.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained on motorbank/{site}/health.
type HealthMessage struct {
	Site          string            `json:"site"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        HealthStatus      `json:"status"`
	Version       string            `json:"version,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Link          LinkStatus        `json:"link"`
	Statistics    *BridgeStatistics `json:"statistics,omitempty"`
	Reason        string            `json:"reason,omitempty"`
}

// LinkStatus describes the controller link in a health message.
type LinkStatus struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
}

// BridgeStatistics counts MQTT traffic handled by the bridge.
type BridgeStatistics struct {
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
	Published        uint64 `json:"published"`
	PublishErrors    uint64 `json:"publish_errors"`
}
