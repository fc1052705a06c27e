// Outpost Core - Remote IoT monitoring and automation daemon
//
// This is the main entry point for the Outpost Core application.
// Outpost Core supervises a fleet of ESP-class HTTP nodes from a single
// site controller:
//   - Per-device polling with offline detection and alerting
//   - Threshold automation rules driving GPIO pins and device commands
//   - REST API and WebSocket event feed for user interfaces
//   - Optional MQTT republishing and InfluxDB reading mirror
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/outpost-core/migrations"

	"github.com/nerrad567/outpost-core/internal/alert"
	"github.com/nerrad567/outpost-core/internal/api"
	"github.com/nerrad567/outpost-core/internal/automation"
	"github.com/nerrad567/outpost-core/internal/bridges/nodehttp"
	"github.com/nerrad567/outpost-core/internal/device"
	"github.com/nerrad567/outpost-core/internal/gpio"
	"github.com/nerrad567/outpost-core/internal/infrastructure/config"
	"github.com/nerrad567/outpost-core/internal/infrastructure/database"
	"github.com/nerrad567/outpost-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/outpost-core/internal/infrastructure/logging"
	"github.com/nerrad567/outpost-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/outpost-core/internal/poller"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// healthProbeTimeout bounds the --health endpoint probe.
const healthProbeTimeout = 5 * time.Second

func main() {
	healthFlag := flag.Bool("health", false, "probe the running daemon's health endpoint and exit (for container healthchecks)")
	flag.Parse()

	if *healthFlag {
		os.Exit(probeHealth())
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	// This is the Go pattern for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Run the application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Outpost Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise device registry
	deviceRegistry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	deviceRegistry.SetLogger(log)
	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.GetDeviceCount())

	// Initialise automation rule registry
	ruleRegistry := automation.NewRegistry(automation.NewSQLiteRepository(db.DB))
	ruleRegistry.SetLogger(log)
	if refreshErr := ruleRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading rule registry: %w", refreshErr)
	}
	log.Info("rule registry initialised", "rules", ruleRegistry.GetRuleCount())

	readingRepo := device.NewSQLiteReadingRepository(db.DB)

	// WebSocket hub carries all live events; every other component broadcasts
	// through it, so it comes up before any of them.
	hub := api.NewHub(cfg.WebSocket, cfg.API.CORS.AllowedOrigins, log)
	go hub.Run(ctx)

	// Connect to MQTT broker (optional event republishing)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = startMQTT(cfg.MQTT, hub, log)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			hub.SetRelay(nil)
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional reading mirror)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start GPIO manager (optional local pin control)
	var gpioManager *gpio.Manager
	if cfg.GPIO.Enabled {
		gpioManager = startGPIO(cfg.GPIO, db, hub, log)
		if startErr := gpioManager.Start(ctx); startErr != nil {
			return fmt.Errorf("starting GPIO manager: %w", startErr)
		}
		defer func() {
			log.Info("stopping GPIO manager")
			gpioManager.Stop()
		}()
		log.Info("GPIO manager started", "pins", gpioManager.GetPinCount())
	} else {
		log.Info("GPIO disabled")
	}

	// HTTP client for node communication, shared by the poller, the
	// automation dispatcher and the API's manual control endpoints.
	nodeClient := nodehttp.NewClient(time.Duration(cfg.Polling.Timeout)*time.Second, log)

	// Alert store
	alertStore := alert.NewStore(alert.NewSQLiteRepository(db.DB), hub, log)

	// Automation engine: evaluates rules on each reading and dispatches
	// pin writes and device commands.
	var pinWriter automation.PinWriter
	if gpioManager != nil {
		pinWriter = gpioManager
	}
	dispatcher := automation.NewActionDispatcher(
		pinWriter,
		registryDirectory{registry: deviceRegistry},
		nodeClient,
		alertStore,
		hub,
		log,
	)
	engine := automation.NewEngine(ruleRegistry, dispatcher, hub, log)

	// Poll scheduler: one worker per enabled device.
	var metrics poller.MetricWriter
	if influxClient != nil {
		metrics = influxClient
	}
	pollManager, err := poller.NewManager(poller.Options{
		Devices:  deviceRegistry,
		Reader:   nodeClient,
		Readings: readingRepo,
		Engine:   engine,
		Alerts:   alertStore,
		Hub:      hub,
		Metrics:  metrics,
		Config:   pollerConfig(cfg.Polling),
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating poll manager: %w", err)
	}
	if startErr := pollManager.Start(ctx); startErr != nil {
		return fmt.Errorf("starting poll manager: %w", startErr)
	}
	defer func() {
		log.Info("stopping poll manager")
		pollManager.Stop()
	}()

	// API server (REST + WebSocket)
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Auth:        cfg.Auth,
		Logger:      log,
		DB:          db.DB,
		Registry:    deviceRegistry,
		Readings:    readingRepo,
		Rules:       ruleRegistry,
		Alerts:      alertStore,
		GPIO:        gpioManager,
		Poller:      pollManager,
		Nodes:       nodeClient,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred cleanup runs in reverse order:
	// 1. API server (stop accepting requests)
	// 2. Poll manager (stop producing readings)
	// 3. GPIO manager (if enabled)
	// 4. InfluxDB (if enabled, flushes pending points)
	// 5. MQTT (if enabled, publishes offline status)
	// 6. Database

	log.Info("Outpost Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses OUTPOST_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("OUTPOST_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// probeHealth performs a one-shot request against the running daemon's
// /health endpoint and reports the result via exit code. This lets container
// HEALTHCHECK directives reuse the binary instead of shipping curl.
//
// Returns:
//   - int: 0 if the daemon reports healthy, 1 otherwise
func probeHealth() int {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "health: %v\n", err)
		return 1
	}

	host := cfg.API.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	client := &http.Client{Timeout: healthProbeTimeout}
	resp, err := client.Get(fmt.Sprintf("http://%s:%d/health", host, cfg.API.Port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "health: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Println("ok")
	return 0
}

// startMQTT connects to the broker and wires the hub relay so every
// broadcast frame is republished on outpost/event/{channel}.
//
// Parameters:
//   - cfg: MQTT configuration
//   - hub: WebSocket hub whose events are mirrored
//   - log: Logger instance
//
// Returns:
//   - *mqtt.Client: Connected client
//   - error: If the broker connection fails
func startMQTT(cfg config.MQTTConfig, hub *api.Hub, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, err
	}
	client.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)

	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	hub.SetRelay(func(channel, event string, data any) {
		if pubErr := client.PublishEvent(channel, event, data); pubErr != nil {
			log.Warn("MQTT event republish failed",
				"channel", channel, "event", event, "error", pubErr)
		}
	})

	return client, nil
}

// startGPIO builds the GPIO manager with the appropriate hardware backend.
// Real hardware is used unless simulation is configured or host
// initialisation fails (development off-device).
//
// Parameters:
//   - cfg: GPIO configuration
//   - db: Database for pin persistence
//   - hub: WebSocket hub for state change events
//   - log: Logger instance
//
// Returns:
//   - *gpio.Manager: Manager ready to Start()
func startGPIO(cfg config.GPIOConfig, db *database.DB, hub *api.Hub, log *logging.Logger) *gpio.Manager {
	var hw gpio.Hardware
	if cfg.Simulate {
		log.Info("GPIO using simulated hardware")
		hw = gpio.NewSimulatedHardware()
	} else {
		periphHW, err := gpio.NewPeriphHardware()
		if err != nil {
			log.Warn("GPIO host initialisation failed, using simulated hardware", "error", err)
			hw = gpio.NewSimulatedHardware()
		} else {
			hw = periphHW
		}
	}

	watchInterval := time.Duration(cfg.WatchIntervalMS) * time.Millisecond
	return gpio.NewManager(gpio.NewSQLiteRepository(db.DB), hw, hub, watchInterval, log)
}

// pollerConfig converts the YAML polling section to the poller's Config.
func pollerConfig(cfg config.PollingConfig) poller.Config {
	return poller.Config{
		DefaultInterval:      time.Duration(cfg.DefaultInterval) * time.Second,
		MinInterval:          time.Duration(cfg.MinInterval) * time.Second,
		PollTimeout:          time.Duration(cfg.Timeout) * time.Second,
		FailureThreshold:     cfg.FailureThreshold,
		ReadingRetentionDays: cfg.ReadingRetentionDays,
		PruneInterval:        time.Duration(cfg.PruneInterval) * time.Second,
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT (if enabled)
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// registryDirectory adapts the device registry to the automation dispatcher's
// DeviceDirectory interface. The dispatcher only needs routing fields, not
// the full device record.
type registryDirectory struct {
	registry *device.Registry
}

// GetDeviceInfo implements automation.DeviceDirectory.
func (r registryDirectory) GetDeviceInfo(ctx context.Context, id string) (automation.DeviceInfo, error) {
	dev, err := r.registry.GetDevice(ctx, id)
	if err != nil {
		return automation.DeviceInfo{}, err
	}
	return automation.DeviceInfo{
		ID:      dev.ID,
		Name:    dev.Name,
		Address: dev.Address,
		Port:    dev.Port,
	}, nil
}
