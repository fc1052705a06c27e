// Package api provides the HTTP REST API and WebSocket server for Outpost Core.
//
// It exposes device, automation, alert, GPIO and sensor-history endpoints to
// user interfaces, plus a WebSocket event feed for live updates.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/outpost-core/internal/alert"
	"github.com/nerrad567/outpost-core/internal/automation"
	"github.com/nerrad567/outpost-core/internal/device"
	"github.com/nerrad567/outpost-core/internal/gpio"
	"github.com/nerrad567/outpost-core/internal/infrastructure/config"
	"github.com/nerrad567/outpost-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// PollScheduler is the part of the poll manager the API drives: worker
// lifecycle on device CRUD, and on-demand polls.
type PollScheduler interface {
	StartDevice(ctx context.Context, deviceID string) error
	StopDevice(deviceID string)
	PollNow(deviceID string) error
}

// NodeClient talks to a device's HTTP interface for manual control commands
// and live info proxying.
type NodeClient interface {
	SendCommand(ctx context.Context, address string, port int, command map[string]any) (map[string]any, error)
	Info(ctx context.Context, address string, port int) (map[string]any, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Auth        config.AuthConfig
	Logger      *logging.Logger
	DB          *sql.DB // Used by the health endpoint; may be nil
	Registry    *device.Registry
	Readings    device.ReadingRepository
	Rules       *automation.Registry
	Alerts      *alert.Store
	GPIO        *gpio.Manager // May be nil (GPIO disabled)
	Poller      PollScheduler
	Nodes       NodeClient
	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for Outpost Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	authCfg     config.AuthConfig
	logger      *logging.Logger
	db          *sql.DB
	registry    *device.Registry
	readings    device.ReadingRepository
	rules       *automation.Registry
	alerts      *alert.Store
	gpio        *gpio.Manager
	poller      PollScheduler
	nodes       NodeClient
	version     string
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, registries, stores)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Readings == nil {
		return nil, fmt.Errorf("reading repository is required")
	}
	if deps.Rules == nil {
		return nil, fmt.Errorf("rule registry is required")
	}
	if deps.Alerts == nil {
		return nil, fmt.Errorf("alert store is required")
	}
	if deps.Poller == nil {
		return nil, fmt.Errorf("poll scheduler is required")
	}
	if deps.Nodes == nil {
		return nil, fmt.Errorf("node client is required")
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		authCfg:  deps.Auth,
		logger:   deps.Logger,
		db:       deps.DB,
		registry: deps.Registry,
		readings: deps.Readings,
		rules:    deps.Rules,
		alerts:   deps.Alerts,
		gpio:     deps.GPIO,
		poller:   deps.Poller,
		nodes:    deps.Nodes,
		version:  deps.Version,
	}

	// Use externally-provided hub if available (needed when the poller and
	// engine also broadcast through it).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create WebSocket hub (unless one was injected externally)
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.cfg.CORS.AllowedOrigins, s.logger)
		go s.hub.Run(srvCtx)
	}

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// Hub returns the server's WebSocket hub. It is non-nil once Start() has
// been called, or immediately when an external hub was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
