package gpio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for pin configuration persistence.
type Repository interface {
	// GetByPin retrieves a pin configuration by BCM number.
	// Returns ErrPinNotFound if the pin is not configured.
	GetByPin(ctx context.Context, pin int) (*Pin, error)

	// List retrieves all configured pins ordered by number.
	List(ctx context.Context) ([]Pin, error)

	// Create stores a new pin configuration.
	// Returns ErrPinInUse if the pin already has a row.
	Create(ctx context.Context, pin *Pin) error

	// Update modifies an existing pin configuration.
	// Returns ErrPinNotFound if the pin is not configured.
	Update(ctx context.Context, pin *Pin) error

	// UpdateDuty stores the last commanded duty cycle for a pwm pin.
	// Returns ErrPinNotFound if the pin is not configured.
	UpdateDuty(ctx context.Context, pin int, duty float64) error

	// Delete removes a pin configuration.
	// Returns ErrPinNotFound if the pin is not configured.
	Delete(ctx context.Context, pin int) error
}

// pinColumns is the standard column list for pin queries.
const pinColumns = `pin, name, function, pwm_duty, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite pin repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByPin retrieves a pin configuration by BCM number.
func (r *SQLiteRepository) GetByPin(ctx context.Context, pin int) (*Pin, error) {
	query := `SELECT ` + pinColumns + ` FROM gpio_pins WHERE pin = ?`
	row := r.db.QueryRowContext(ctx, query, pin)

	p, err := scanPinRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: pin %d", ErrPinNotFound, pin)
		}
		return nil, fmt.Errorf("querying pin: %w", err)
	}
	return p, nil
}

// List retrieves all configured pins ordered by number.
func (r *SQLiteRepository) List(ctx context.Context) ([]Pin, error) {
	query := `SELECT ` + pinColumns + ` FROM gpio_pins ORDER BY pin`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying pins: %w", err)
	}
	defer rows.Close()

	var pins []Pin
	for rows.Next() {
		p, err := scanPinRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning pin: %w", err)
		}
		pins = append(pins, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pins: %w", err)
	}
	return pins, nil
}

// Create stores a new pin configuration.
func (r *SQLiteRepository) Create(ctx context.Context, pin *Pin) error {
	query := `INSERT INTO gpio_pins (` + pinColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	pin.CreatedAt = now
	pin.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		pin.Pin,
		nullableString(pin.Name),
		string(pin.Function),
		nullableFloat(pin.PWMDuty),
		pin.CreatedAt.Format(time.RFC3339),
		pin.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: pin %d", ErrPinInUse, pin.Pin)
		}
		return fmt.Errorf("inserting pin: %w", err)
	}
	return nil
}

// Update modifies an existing pin configuration.
func (r *SQLiteRepository) Update(ctx context.Context, pin *Pin) error {
	query := `
		UPDATE gpio_pins
		SET name = ?, function = ?, pwm_duty = ?, updated_at = ?
		WHERE pin = ?`

	pin.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, query,
		nullableString(pin.Name),
		string(pin.Function),
		nullableFloat(pin.PWMDuty),
		pin.UpdatedAt.Format(time.RFC3339),
		pin.Pin,
	)
	if err != nil {
		return fmt.Errorf("updating pin: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: pin %d", ErrPinNotFound, pin.Pin)
	}
	return nil
}

// UpdateDuty stores the last commanded duty cycle for a pwm pin.
func (r *SQLiteRepository) UpdateDuty(ctx context.Context, pin int, duty float64) error {
	query := `UPDATE gpio_pins SET pwm_duty = ?, updated_at = ? WHERE pin = ?`

	result, err := r.db.ExecContext(ctx, query,
		duty,
		time.Now().UTC().Format(time.RFC3339),
		pin,
	)
	if err != nil {
		return fmt.Errorf("updating duty: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: pin %d", ErrPinNotFound, pin)
	}
	return nil
}

// Delete removes a pin configuration.
func (r *SQLiteRepository) Delete(ctx context.Context, pin int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM gpio_pins WHERE pin = ?`, pin)
	if err != nil {
		return fmt.Errorf("deleting pin: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: pin %d", ErrPinNotFound, pin)
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning logic.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPinRow scans a single pin row.
func scanPinRow(row rowScanner) (*Pin, error) {
	var p Pin
	var name sql.NullString
	var function string
	var duty sql.NullFloat64
	var createdAt, updatedAt string

	err := row.Scan(
		&p.Pin,
		&name,
		&function,
		&duty,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if name.Valid {
		p.Name = &name.String
	}
	p.Function = Function(function)
	if duty.Valid {
		p.PWMDuty = &duty.Float64
	}

	var parseErr error
	p.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	p.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &p, nil
}

// nullableString converts *string to a sql-compatible value.
func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// nullableFloat converts *float64 to a sql-compatible value.
func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint
// violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
