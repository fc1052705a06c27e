package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Outpost Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Polling   PollingConfig   `yaml:"polling"`
	GPIO      GPIOConfig      `yaml:"gpio"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// PollingConfig contains device polling scheduler settings.
type PollingConfig struct {
	// DefaultInterval is the poll interval (seconds) for devices that do not
	// specify their own. Default: 5
	DefaultInterval int `yaml:"default_interval"`

	// MinInterval is the floor (seconds) applied to any device interval.
	// Default: 1
	MinInterval int `yaml:"min_interval"`

	// Timeout bounds a single device poll or command (seconds). Default: 5
	Timeout int `yaml:"timeout"`

	// FailureThreshold is the number of consecutive poll failures before a
	// device is marked offline. Default: 3
	FailureThreshold int `yaml:"failure_threshold"`

	// ReadingRetentionDays controls pruning of old sensor readings.
	// 0 disables pruning. Default: 30
	ReadingRetentionDays int `yaml:"reading_retention_days"`

	// PruneInterval is how often (seconds) the retention pass runs.
	// Default: 3600
	PruneInterval int `yaml:"prune_interval"`
}

// GPIOConfig contains local GPIO settings.
type GPIOConfig struct {
	Enabled bool `yaml:"enabled"`

	// Simulate forces the in-memory hardware backend. Also used automatically
	// when host initialisation fails (development off-device).
	Simulate bool `yaml:"simulate"`

	// WatchIntervalMS is the input pin sampling period in milliseconds.
	// Default: 100
	WatchIntervalMS int `yaml:"watch_interval_ms"`
}

// MQTTConfig contains settings for the optional MQTT event bridge.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// InfluxDBConfig contains settings for the optional InfluxDB reading mirror.
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
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AuthConfig contains API authentication settings.
//
// When disabled (the default) the API is open, matching a LAN-only deployment.
// When enabled, /api routes require a Bearer token issued by /api/auth/login
// against the single configured admin credential.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`

	// JWTSecret signs access tokens. Required when enabled; minimum 32 chars.
	JWTSecret string `yaml:"jwt_secret"`

	// AccessTokenTTL is the token lifetime in minutes. Default: 15
	AccessTokenTTL int `yaml:"access_token_ttl"`

	// AdminUser is the login username. Default: "admin"
	AdminUser string `yaml:"admin_user"`

	// AdminPasswordHash is the Argon2id PHC hash of the admin password.
	AdminPasswordHash string `yaml:"admin_password_hash"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: OUTPOST_SECTION_KEY
// For example: OUTPOST_DATABASE_PATH, OUTPOST_API_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/outpost.db",
			WALMode:     true,
			BusyTimeout: 5,
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
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Polling: PollingConfig{
			DefaultInterval:      5,
			MinInterval:          1,
			Timeout:              5,
			FailureThreshold:     3,
			ReadingRetentionDays: 30,
			PruneInterval:        3600,
		},
		GPIO: GPIOConfig{
			Enabled:         true,
			WatchIntervalMS: 100,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "outpost-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Auth: AuthConfig{
			AccessTokenTTL: 15,
			AdminUser:      "admin",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: OUTPOST_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("OUTPOST_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("OUTPOST_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// GPIO
	if v := os.Getenv("OUTPOST_GPIO_SIMULATE"); v != "" {
		cfg.GPIO.Simulate = strings.EqualFold(v, "true") || v == "1"
	}

	// MQTT
	if v := os.Getenv("OUTPOST_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("OUTPOST_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("OUTPOST_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("OUTPOST_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Auth - JWT secret (IMPORTANT: always set via environment in production)
	if v := os.Getenv("OUTPOST_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Polling validation
	if c.Polling.MinInterval < 1 {
		errs = append(errs, "polling.min_interval must be at least 1 second")
	}
	if c.Polling.DefaultInterval < c.Polling.MinInterval {
		errs = append(errs, "polling.default_interval must not be below polling.min_interval")
	}
	if c.Polling.Timeout < 1 {
		errs = append(errs, "polling.timeout must be at least 1 second")
	}
	if c.Polling.FailureThreshold < 1 {
		errs = append(errs, "polling.failure_threshold must be at least 1")
	}

	// GPIO validation
	if c.GPIO.Enabled && c.GPIO.WatchIntervalMS < 10 {
		errs = append(errs, "gpio.watch_interval_ms must be at least 10")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb.enabled is true")
	}

	// Auth validation - a weak JWT secret would let an attacker forge tokens
	// and drive physical actuators, so the length floor is enforced.
	const minJWTSecretLength = 32
	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			errs = append(errs, "auth.jwt_secret is required when auth.enabled is true (set OUTPOST_JWT_SECRET environment variable)")
		} else if len(c.Auth.JWTSecret) < minJWTSecretLength {
			errs = append(errs, "auth.jwt_secret must be at least 32 characters")
		}
		if c.Auth.AdminUser == "" {
			errs = append(errs, "auth.admin_user is required when auth.enabled is true")
		}
		if c.Auth.AdminPasswordHash == "" {
			errs = append(errs, "auth.admin_password_hash is required when auth.enabled is true")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetPollTimeout returns the per-poll hardware timeout as a Duration.
func (c *Config) GetPollTimeout() time.Duration {
	return time.Duration(c.Polling.Timeout) * time.Second
}

// GetPruneInterval returns the reading retention pass interval as a Duration.
func (c *Config) GetPruneInterval() time.Duration {
	return time.Duration(c.Polling.PruneInterval) * time.Second
}

// GetGPIOWatchInterval returns the input pin sampling period as a Duration.
func (c *Config) GetGPIOWatchInterval() time.Duration {
	return time.Duration(c.GPIO.WatchIntervalMS) * time.Millisecond
}
