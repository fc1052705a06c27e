package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 8080
polling:
  default_interval: 10
  min_interval: 2
  timeout: 4
  failure_threshold: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.Polling.DefaultInterval != 10 {
		t.Errorf("Polling.DefaultInterval = %d, want 10", cfg.Polling.DefaultInterval)
	}

	if cfg.Polling.FailureThreshold != 5 {
		t.Errorf("Polling.FailureThreshold = %d, want 5", cfg.Polling.FailureThreshold)
	}

	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = false, want true")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
database:
  path: ""
api:
  port: 8080
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty database.path, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	// validJWTSecret is a secret that meets the 32-character minimum requirement
	validJWTSecret := "test-secret-key-at-least-32-chars!"

	// defaultConfig passes validation, so each case mutates one section.
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "min interval below one second",
			mutate:  func(c *Config) { c.Polling.MinInterval = 0 },
			wantErr: true,
		},
		{
			name: "default interval below min interval",
			mutate: func(c *Config) {
				c.Polling.MinInterval = 10
				c.Polling.DefaultInterval = 5
			},
			wantErr: true,
		},
		{
			name:    "zero poll timeout",
			mutate:  func(c *Config) { c.Polling.Timeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero failure threshold",
			mutate:  func(c *Config) { c.Polling.FailureThreshold = 0 },
			wantErr: true,
		},
		{
			name:    "gpio watch interval too small",
			mutate:  func(c *Config) { c.GPIO.WatchIntervalMS = 5 },
			wantErr: true,
		},
		{
			name: "influxdb enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = ""
			},
			wantErr: true,
		},
		{
			name: "auth enabled without secret",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.AdminPasswordHash = "$argon2id$..."
			},
			wantErr: true,
		},
		{
			name: "auth enabled with short secret",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.JWTSecret = "short"
				c.Auth.AdminPasswordHash = "$argon2id$..."
			},
			wantErr: true,
		},
		{
			name: "auth enabled without password hash",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.JWTSecret = validJWTSecret
			},
			wantErr: true,
		},
		{
			name: "auth fully configured",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.JWTSecret = validJWTSecret
				c.Auth.AdminPasswordHash = "$argon2id$..."
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Polling: PollingConfig{
			Timeout:       5,
			PruneInterval: 3600,
		},
		GPIO: GPIOConfig{
			WatchIntervalMS: 100,
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}

	if got := cfg.GetPollTimeout(); got != 5*time.Second {
		t.Errorf("GetPollTimeout() = %v, want 5s", got)
	}

	if got := cfg.GetPruneInterval(); got != time.Hour {
		t.Errorf("GetPruneInterval() = %v, want 1h", got)
	}

	if got := cfg.GetGPIOWatchInterval(); got != 100*time.Millisecond {
		t.Errorf("GetGPIOWatchInterval() = %v, want 100ms", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("OUTPOST_DATABASE_PATH", "/custom/path.db")
	t.Setenv("OUTPOST_API_HOST", "192.168.1.1")
	t.Setenv("OUTPOST_GPIO_SIMULATE", "true")
	t.Setenv("OUTPOST_MQTT_HOST", "mqtt.example.com")
	t.Setenv("OUTPOST_MQTT_USERNAME", "testuser")
	t.Setenv("OUTPOST_MQTT_PASSWORD", "testpass")
	t.Setenv("OUTPOST_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("OUTPOST_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}

	if !cfg.GPIO.Simulate {
		t.Error("GPIO.Simulate = false, want true")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.Auth.JWTSecret != "jwt-secret" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "jwt-secret")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.Polling.DefaultInterval < cfg.Polling.MinInterval {
		t.Error("defaultConfig polling default_interval below min_interval")
	}

	// Defaults must stand on their own without a config file.
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig failed validation: %v", err)
	}
}
