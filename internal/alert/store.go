package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	Broadcast(channel, event string, data any)
}

// Store is the alert service: it validates and persists alerts and announces
// every new one on the alerts channel. Reads pass through to the repository.
//
// Thread Safety: all methods are safe for concurrent use; the store holds no
// mutable state of its own.
type Store struct {
	repo   Repository
	hub    WSHub
	logger Logger
}

// NewStore creates an alert store.
//
// Parameters:
//   - repo: Alert repository for persistence
//   - hub: WebSocket hub for new_alert broadcasts (may be nil)
//   - logger: Logger instance
func NewStore(repo Repository, hub WSHub, logger Logger) *Store {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Store{
		repo:   repo,
		hub:    hub,
		logger: logger,
	}
}

// Create validates and persists a new alert, then broadcasts
// alerts:new_alert. The returned alert carries its generated ID and
// creation time.
func (s *Store) Create(ctx context.Context, deviceID *string, level Level, message string) (*Alert, error) {
	if !level.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}
	if strings.TrimSpace(message) == "" {
		return nil, ErrInvalidMessage
	}

	alert := &Alert{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		Level:     level,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, alert); err != nil {
		return nil, err
	}

	s.logger.Info("alert raised",
		"alert_id", alert.ID, "level", string(level), "message", message)

	if s.hub != nil {
		s.hub.Broadcast("alerts", "new_alert", map[string]any{
			"id":         alert.ID,
			"device_id":  alert.DeviceID,
			"level":      string(alert.Level),
			"message":    alert.Message,
			"created_at": alert.CreatedAt.Format(time.RFC3339),
		})
	}

	return alert.DeepCopy(), nil
}

// CreateAlert implements the alert-sink interfaces declared by the poller
// and automation packages, which deal in plain severity strings.
func (s *Store) CreateAlert(ctx context.Context, deviceID *string, level, message string) error {
	_, err := s.Create(ctx, deviceID, Level(level), message)
	return err
}

// Get retrieves an alert by ID.
func (s *Store) Get(ctx context.Context, id string) (*Alert, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves alerts newest first. See Repository.List for limit
// semantics.
func (s *Store) List(ctx context.Context, unackedOnly bool, limit int) ([]Alert, error) {
	return s.repo.List(ctx, unackedOnly, limit)
}

// Counts summarises the unacknowledged alert backlog.
type Counts struct {
	Total   int           `json:"total"`
	ByLevel map[Level]int `json:"by_level"`
}

// CountUnacknowledged returns the unacknowledged total and per-level counts.
func (s *Store) CountUnacknowledged(ctx context.Context) (*Counts, error) {
	total, err := s.repo.CountUnacknowledged(ctx)
	if err != nil {
		return nil, err
	}
	byLevel, err := s.repo.CountUnacknowledgedByLevel(ctx)
	if err != nil {
		return nil, err
	}
	return &Counts{Total: total, ByLevel: byLevel}, nil
}

// Acknowledge marks one alert acknowledged. Idempotent: acknowledging an
// already acknowledged alert succeeds silently.
func (s *Store) Acknowledge(ctx context.Context, id string) error {
	if err := s.repo.Acknowledge(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("alert acknowledged", "alert_id", id)
	return nil
}

// AcknowledgeAll marks every unacknowledged alert acknowledged and returns
// the number changed.
func (s *Store) AcknowledgeAll(ctx context.Context) (int64, error) {
	count, err := s.repo.AcknowledgeAll(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("alerts acknowledged", "count", count)
	}
	return count, nil
}

// Prune removes acknowledged alerts created before the cutoff.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.Prune(ctx, before)
}
