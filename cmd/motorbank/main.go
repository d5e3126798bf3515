// Motorbank Core drives a bank of eight motors over one line-oriented
// TCP or serial link, and exposes them over MQTT, HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/motorbank-core/migrations"

	"github.com/nerrad567/motorbank-core/internal/api"
	"github.com/nerrad567/motorbank-core/internal/audit"
	"github.com/nerrad567/motorbank-core/internal/bridges/motorbank"
	"github.com/nerrad567/motorbank-core/internal/driver"
	"github.com/nerrad567/motorbank-core/internal/history"
	"github.com/nerrad567/motorbank-core/internal/infrastructure/config"
	"github.com/nerrad567/motorbank-core/internal/infrastructure/database"
	"github.com/nerrad567/motorbank-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/motorbank-core/internal/infrastructure/logging"
	"github.com/nerrad567/motorbank-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/motorbank-core/internal/motor"
	"github.com/nerrad567/motorbank-core/internal/protocol"
	"github.com/nerrad567/motorbank-core/internal/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Motorbank Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	// Database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	auditRepo := audit.NewSQLiteRepository(db.DB)
	historyRepo := history.NewSQLiteRepository(db.DB)

	// InfluxDB (optional)
	var series history.Series
	if influxClient := connectInfluxDB(cfg, log); influxClient != nil {
		series = influxClient
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	// Motors, link, protocol session and driver
	bank := motor.NewBank(motor.BankOptions{
		OnSubscriberPanic: func(index motor.Index, recovered any) {
			log.Error("motor subscriber panicked", "motor", index.Number(), "panic", recovered)
		},
	})

	dialer := newDialer(cfg.Transport)
	link := transport.NewLink(dialer, transport.LinkConfig{
		Terminator:           cfg.Transport.Terminator,
		WriteTimeout:         cfg.GetSendTimeout(),
		ReconnectInterval:    time.Duration(cfg.Transport.Reconnect.InitialDelay) * time.Second,
		MaxReconnectInterval: time.Duration(cfg.Transport.Reconnect.MaxDelay) * time.Second,
		MaxLineBuffer:        cfg.Transport.MaxLineBuffer,
	})
	link.SetLogger(log.With("component", "transport"))
	defer func() {
		log.Info("closing controller link")
		if closeErr := link.Close(); closeErr != nil {
			log.Error("error closing link", "error", closeErr)
		}
	}()

	// The controller reports into the driver, which does not exist yet;
	// the link is not started until both are wired.
	var drv *driver.Driver
	ctrl, err := protocol.NewController(protocol.ControllerOptions{
		Transport:          link,
		Terminator:         cfg.Transport.Terminator,
		PollInterval:       cfg.GetPollInterval(),
		SendTimeout:        cfg.GetSendTimeout(),
		OnConnectedChanged: func(connected bool) { drv.HandleConnected(connected) },
		OnFeedback:         func(batch protocol.Batch, err error) { drv.HandleFeedback(batch, err) },
		Logger:             log.With("component", "protocol"),
	})
	if err != nil {
		return fmt.Errorf("creating protocol controller: %w", err)
	}
	defer ctrl.Close()

	drv, err = driver.New(driver.Options{
		Bank:        bank,
		Controller:  ctrl,
		Motors:      cfg.Motors,
		SendTimeout: cfg.GetSendTimeout(),
		Audit:       auditRepo,
		Logger:      log.With("component", "driver"),
	})
	if err != nil {
		return fmt.Errorf("creating driver: %w", err)
	}
	defer drv.Close()

	// History
	recorder := history.NewRecorder(history.RecorderOptions{
		Repository: historyRepo,
		Series:     series,
		Address:    dialer.Address(),
		Retention:  time.Duration(cfg.Database.HistoryRetentionDays) * 24 * time.Hour,
		Logger:     log.With("component", "history"),
	})
	drv.AddListener(recorder)
	recorderCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		recorder.Run(recorderCtx)
	}()
	defer func() {
		stopRecorder()
		<-recorderDone
	}()

	// MQTT bridge (optional)
	if mqttClient, bridge := startMQTT(ctx, cfg, drv, dialer.Address(), log); mqttClient != nil {
		defer func() {
			log.Info("stopping MQTT bridge")
			bridge.Stop()
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	// HTTP API (optional)
	if cfg.API.Enabled {
		server, srvErr := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.With("component", "api"),
			Driver:  drv,
			History: historyRepo,
			Audit:   auditRepo,
			Version: version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		drv.AddListener(server.Hub())
		if startErr := server.Start(ctx); startErr != nil {
			log.Warn("API server unavailable", "error", startErr)
		} else {
			defer func() {
				if closeErr := server.Close(); closeErr != nil {
					log.Error("error closing API server", "error", closeErr)
				}
			}()
		}
	} else {
		log.Info("API disabled")
	}

	// Start the link last so the first feedback finds every listener.
	link.SetHandler(ctrl)
	link.Start(ctx)
	log.Info("controller link started", "address", dialer.Address(), "type", cfg.Transport.Type)

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: database: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: API, MQTT, recorder,
	// driver, controller, link, InfluxDB, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MOTORBANK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MOTORBANK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newDialer builds the dialer for the configured link type.
func newDialer(cfg config.TransportConfig) transport.Dialer {
	if cfg.Type == config.TransportSerial {
		return transport.SerialDialer{
			Device:      cfg.Serial.Device,
			BaudRate:    cfg.Serial.BaudRate,
			DataBits:    cfg.Serial.DataBits,
			Parity:      cfg.Serial.Parity,
			StopBits:    cfg.Serial.StopBits,
			ReadTimeout: time.Duration(cfg.Serial.ReadTimeoutMS) * time.Millisecond,
		}
	}
	return transport.TCPDialer{
		Host:    cfg.TCP.Host,
		Port:    cfg.TCP.Port,
		Timeout: time.Duration(cfg.TCP.ConnectTimeout) * time.Second,
	}
}

// connectInfluxDB returns nil when InfluxDB is disabled or unreachable.
func connectInfluxDB(cfg *config.Config, log *logging.Logger) *influxdb.Client {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil
	}

	client, err := influxdb.Connect(cfg.InfluxDB)
	if err != nil {
		log.Warn("InfluxDB unavailable, time-series disabled", "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client
}

// startMQTT connects to the broker and starts the bridge. Both results are
// nil when MQTT is disabled or the broker is unreachable.
func startMQTT(ctx context.Context, cfg *config.Config, drv *driver.Driver, address string, log *logging.Logger) (*mqtt.Client, *motorbank.Bridge) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}

	topics := mqtt.NewTopics(cfg.Site.ID)
	client, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		log.Warn("MQTT unavailable, bridge disabled", "error", err)
		return nil, nil
	}
	client.SetLogger(log.With("component", "mqtt"))

	bridge, err := motorbank.NewBridge(motorbank.BridgeOptions{
		Driver:         drv,
		MQTT:           client,
		Topics:         topics,
		Site:           cfg.Site.ID,
		Version:        version,
		Address:        address,
		QoS:            byte(cfg.MQTT.QoS),
		HealthInterval: time.Duration(cfg.MQTT.HealthInterval) * time.Second,
		Logger:         log.With("component", "bridge"),
	})
	if err == nil {
		drv.AddListener(bridge)
		err = bridge.Start(ctx)
	}
	if err != nil {
		log.Warn("MQTT bridge failed to start", "error", err)
		if closeErr := client.Close(); closeErr != nil && !errors.Is(closeErr, mqtt.ErrNotConnected) {
			log.Error("error closing MQTT", "error", closeErr)
		}
		return nil, nil
	}

	// Retained topics are republished after the broker comes back.
	client.SetOnConnect(bridge.PublishAll)
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	log.Info("MQTT bridge started",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"base", topics.Base(),
	)
	return client, bridge
}
