package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MotorCount is the fixed size of the motor bank.
const MotorCount = 8

// Transport types.
const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"
)

// Config is the root configuration structure for Motorbank Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Transport TransportConfig `yaml:"transport"`
	Motors    MotorsConfig    `yaml:"motors"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// TransportConfig describes the single physical link shared by all motors.
type TransportConfig struct {
	// Type is "tcp" or "serial".
	Type string `yaml:"type"`

	// Terminator ends every outgoing command and separates incoming status
	// lines. YAML escapes are honoured, so "\r" in a double-quoted string is CR.
	// Default: "\r"
	Terminator string `yaml:"terminator"`

	// SendTimeout bounds a single write (seconds). Default: 5
	SendTimeout int `yaml:"send_timeout"`

	// PollInterval repeats StatePoll while connected (seconds).
	// 0 polls only once per connection.
	PollInterval int `yaml:"poll_interval"`

	// MaxLineBuffer caps buffered unterminated input (bytes). Default: 4096
	MaxLineBuffer int `yaml:"max_line_buffer"`

	TCP    TCPTransportConfig    `yaml:"tcp"`
	Serial SerialTransportConfig `yaml:"serial"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// TCPTransportConfig contains TCP link settings.
type TCPTransportConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ConnectTimeout int    `yaml:"connect_timeout"`
}

// SerialTransportConfig contains serial link settings.
type SerialTransportConfig struct {
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	// Parity is "none", "odd" or "even".
	Parity string `yaml:"parity"`
	// StopBits is 1 or 2.
	StopBits      int `yaml:"stop_bits"`
	ReadTimeoutMS int `yaml:"read_timeout_ms"`
}

// ReconnectConfig contains link reconnection settings (seconds).
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// MotorsConfig contains per-motor presentation settings.
type MotorsConfig struct {
	// Names holds up to eight display names, index 0 is motor 1.
	// Missing or empty entries fall back to "Zone {n}".
	Names     []string `yaml:"names"`
	OpenIcon  string   `yaml:"open_icon"`
	CloseIcon string   `yaml:"close_icon"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	// HistoryRetentionDays prunes motor events older than this. 0 keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	// HealthInterval is the bridge health publish period (seconds).
	HealthInterval int `yaml:"health_interval"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// Format is "json", "text" or "console".
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MOTORBANK_SECTION_KEY
// For example: MOTORBANK_TRANSPORT_HOST, MOTORBANK_SERIAL_DEVICE
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Motorbank",
		},
		Transport: TransportConfig{
			Type:          TransportTCP,
			Terminator:    "\r",
			SendTimeout:   5,
			MaxLineBuffer: 4096,
			TCP: TCPTransportConfig{
				Port:           23,
				ConnectTimeout: 10,
			},
			Serial: SerialTransportConfig{
				BaudRate:      9600,
				DataBits:      8,
				Parity:        "none",
				StopBits:      1,
				ReadTimeoutMS: 100,
			},
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Motors: MotorsConfig{
			OpenIcon:  "icShadesOpen",
			CloseIcon: "icShadesClosedDisabled",
		},
		Database: DatabaseConfig{
			Path:        "./data/motorbank.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "motorbank-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			HealthInterval: 30,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MOTORBANK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Transport
	if v := os.Getenv("MOTORBANK_TRANSPORT_TYPE"); v != "" {
		cfg.Transport.Type = v
	}
	if v := os.Getenv("MOTORBANK_TRANSPORT_HOST"); v != "" {
		cfg.Transport.TCP.Host = v
	}
	if v := os.Getenv("MOTORBANK_TRANSPORT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Transport.TCP.Port = port
		}
	}
	if v := os.Getenv("MOTORBANK_SERIAL_DEVICE"); v != "" {
		cfg.Transport.Serial.Device = v
	}

	// Database
	if v := os.Getenv("MOTORBANK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("MOTORBANK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MOTORBANK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MOTORBANK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("MOTORBANK_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("MOTORBANK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("MOTORBANK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Every problem is collected so the operator sees all of them at once.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	errs = append(errs, c.Transport.validate()...)

	if len(c.Motors.Names) > MotorCount {
		errs = append(errs, fmt.Sprintf("motors.names has %d entries, at most %d allowed", len(c.Motors.Names), MotorCount))
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.HistoryRetentionDays < 0 {
		errs = append(errs, "database.history_retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text", "console":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q must be json, text, or console", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (t TransportConfig) validate() []string {
	var errs []string

	switch t.Type {
	case TransportTCP:
		if t.TCP.Host == "" {
			errs = append(errs, "transport.tcp.host is required for tcp transport")
		}
		if t.TCP.Port < 1 || t.TCP.Port > 65535 {
			errs = append(errs, "transport.tcp.port must be between 1 and 65535")
		}
	case TransportSerial:
		if t.Serial.Device == "" {
			errs = append(errs, "transport.serial.device is required for serial transport")
		}
		if t.Serial.BaudRate <= 0 {
			errs = append(errs, "transport.serial.baud_rate must be positive")
		}
		if t.Serial.DataBits < 5 || t.Serial.DataBits > 8 {
			errs = append(errs, "transport.serial.data_bits must be between 5 and 8")
		}
		switch strings.ToLower(t.Serial.Parity) {
		case "none", "odd", "even":
		default:
			errs = append(errs, "transport.serial.parity must be none, odd, or even")
		}
		if t.Serial.StopBits != 1 && t.Serial.StopBits != 2 {
			errs = append(errs, "transport.serial.stop_bits must be 1 or 2")
		}
	default:
		errs = append(errs, fmt.Sprintf("transport.type %q must be tcp or serial", t.Type))
	}

	if t.Terminator == "" {
		errs = append(errs, "transport.terminator must not be empty")
	}
	if t.SendTimeout <= 0 {
		errs = append(errs, "transport.send_timeout must be positive")
	}
	if t.PollInterval < 0 {
		errs = append(errs, "transport.poll_interval must not be negative")
	}
	if t.MaxLineBuffer < 64 {
		errs = append(errs, "transport.max_line_buffer must be at least 64")
	}

	return errs
}

// MotorName returns the configured display name for a 1-based motor number,
// or the "Zone {n}" default when none is set.
func (m MotorsConfig) MotorName(number int) string {
	if number >= 1 && number <= len(m.Names) && m.Names[number-1] != "" {
		return m.Names[number-1]
	}
	return DefaultMotorName(number)
}

// DefaultMotorName is the name a motor carries until one is configured.
func DefaultMotorName(number int) string {
	return fmt.Sprintf("Zone %d", number)
}

// GetSendTimeout returns the transport write timeout as a Duration.
func (c *Config) GetSendTimeout() time.Duration {
	return time.Duration(c.Transport.SendTimeout) * time.Second
}

// GetPollInterval returns the periodic poll interval as a Duration (0 = disabled).
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Transport.PollInterval) * time.Second
}
