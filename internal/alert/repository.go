package alert

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// List limits. A zero or negative limit falls back to the default; anything
// above the maximum is capped.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Repository defines persistence operations for alerts.
type Repository interface {
	// Insert appends a new alert.
	Insert(ctx context.Context, alert *Alert) error

	// GetByID retrieves an alert by its unique identifier.
	GetByID(ctx context.Context, id string) (*Alert, error)

	// List retrieves alerts newest first. When unackedOnly is true only
	// unacknowledged alerts are returned.
	List(ctx context.Context, unackedOnly bool, limit int) ([]Alert, error)

	// CountUnacknowledged returns the number of unacknowledged alerts.
	CountUnacknowledged(ctx context.Context) (int, error)

	// CountUnacknowledgedByLevel returns unacknowledged counts per severity.
	CountUnacknowledgedByLevel(ctx context.Context) (map[Level]int, error)

	// Acknowledge marks one alert acknowledged. Acknowledging an already
	// acknowledged alert is a no-op; only a missing ID is an error.
	Acknowledge(ctx context.Context, id string) error

	// AcknowledgeAll marks every unacknowledged alert acknowledged and
	// returns the number changed.
	AcknowledgeAll(ctx context.Context) (int64, error)

	// Prune removes acknowledged alerts created before the cutoff and
	// returns the number removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// alertColumns is the SELECT column list for alert queries.
const alertColumns = `id, device_id, level, message, acknowledged, created_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert appends a new alert.
func (r *SQLiteRepository) Insert(ctx context.Context, alert *Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO alerts (id, device_id, level, message, acknowledged, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		alert.ID,
		nullableString(alert.DeviceID),
		string(alert.Level),
		alert.Message,
		boolToInt(alert.Acknowledged),
		alert.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}
	return nil
}

// GetByID retrieves an alert by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Alert, error) {
	query := fmt.Sprintf("SELECT %s FROM alerts WHERE id = ?", alertColumns)

	alert, err := scanAlertRow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("querying alert: %w", err)
	}
	return alert, nil
}

// List retrieves alerts newest first, capped at MaxListLimit.
func (r *SQLiteRepository) List(ctx context.Context, unackedOnly bool, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := fmt.Sprintf("SELECT %s FROM alerts", alertColumns)
	if unackedOnly {
		query += " WHERE acknowledged = 0"
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}
	return alerts, nil
}

// CountUnacknowledged returns the number of unacknowledged alerts.
func (r *SQLiteRepository) CountUnacknowledged(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alerts WHERE acknowledged = 0").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting alerts: %w", err)
	}
	return count, nil
}

// CountUnacknowledgedByLevel returns unacknowledged counts per severity.
// Levels with no unacknowledged alerts are absent from the map.
func (r *SQLiteRepository) CountUnacknowledgedByLevel(ctx context.Context) (map[Level]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT level, COUNT(*) FROM alerts WHERE acknowledged = 0 GROUP BY level")
	if err != nil {
		return nil, fmt.Errorf("counting alerts by level: %w", err)
	}
	defer rows.Close()

	counts := make(map[Level]int)
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("scanning level count: %w", err)
		}
		counts[Level(level)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating level counts: %w", err)
	}
	return counts, nil
}

// Acknowledge marks one alert acknowledged.
//
// SQLite counts every row matched by the WHERE clause as changed, so a
// second acknowledge of the same alert still affects one row: the operation
// is idempotent and RowsAffected == 0 means the ID does not exist.
func (r *SQLiteRepository) Acknowledge(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alerts SET acknowledged = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("acknowledging alert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// AcknowledgeAll marks every unacknowledged alert acknowledged.
func (r *SQLiteRepository) AcknowledgeAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alerts SET acknowledged = 1 WHERE acknowledged = 0")
	if err != nil {
		return 0, fmt.Errorf("acknowledging alerts: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected, nil
}

// Prune removes acknowledged alerts created before the cutoff.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM alerts WHERE acknowledged = 1 AND created_at < ?",
		before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("pruning alerts: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning logic.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlertRow(scanner rowScanner) (*Alert, error) {
	var alert Alert
	var deviceID sql.NullString
	var level string
	var acknowledged int
	var createdAt string

	err := scanner.Scan(
		&alert.ID,
		&deviceID,
		&level,
		&alert.Message,
		&acknowledged,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if deviceID.Valid {
		alert.DeviceID = &deviceID.String
	}
	alert.Level = Level(level)
	alert.Acknowledged = acknowledged != 0

	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		alert.CreatedAt = t
	}

	return &alert, nil
}

// nullableString converts a *string to sql.NullString.
func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// boolToInt converts a bool to SQLite's integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
