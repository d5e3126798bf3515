package motorbank

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const defaultHealthInterval = 30 * time.Second

// HealthPublisher publishes health messages. *mqtt.Client implements it.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// LinkChecker reports the controller link state.
type LinkChecker interface {
	Connected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Site    string
	Version string
	Address string

	// Topic is where health is published.
	Topic string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher
	Link      LinkChecker

	// Stats is optional; when set its result is included in each message.
	Stats func() BridgeStatistics

	Logger Logger
}

// HealthReporter publishes retained health messages at a fixed interval.
type HealthReporter struct {
	cfg       HealthReporterConfig
	startTime time.Time
	now       func() time.Time

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool
	startMu  sync.Mutex
}

// NewHealthReporter creates a new health reporter. Call Start to begin
// reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	return &HealthReporter{
		cfg:       cfg,
		startTime: time.Now(),
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting until ctx is cancelled or Stop is
// called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.startMu.Lock()
	defer h.startMu.Unlock()
	if h.started {
		return
	}
	h.started = true

	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status. Safe to call
// multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.cfg.Link == nil || !h.cfg.Link.Connected() {
		return HealthDegraded, "controller link down"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return nil
	}

	now := h.now()
	msg := HealthMessage{
		Site:          h.cfg.Site,
		Timestamp:     now.UTC(),
		Status:        status,
		Version:       h.cfg.Version,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Link: LinkStatus{
			Connected: h.cfg.Link != nil && h.cfg.Link.Connected(),
			Address:   h.cfg.Address,
		},
		Reason: reason,
	}
	if h.cfg.Stats != nil {
		stats := h.cfg.Stats()
		msg.Statistics = &stats
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling health message: %w", err)
	}
	if err := h.cfg.Publisher.Publish(h.cfg.Topic, payload, 1, true); err != nil {
		return fmt.Errorf("publishing health: %w", err)
	}
	return nil
}

func (h *HealthReporter) logError(msg string, err error) {
	if h.cfg.Logger != nil {
		h.cfg.Logger.Error(msg, "error", err)
	}
}
