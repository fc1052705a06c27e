package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteReadingRepository implements ReadingRepository using SQLite.
//
// Readings live in the sensor_readings table. Latest-per-sensor queries
// lean on the monotonic rowid: the table is append-only, so MAX(id)
// within a (device_id, sensor_type) group is always the newest sample.
type SQLiteReadingRepository struct {
	db *sql.DB
}

// NewSQLiteReadingRepository creates a new SQLite reading repository.
func NewSQLiteReadingRepository(db *sql.DB) *SQLiteReadingRepository {
	return &SQLiteReadingRepository{db: db}
}

// Insert appends a new reading and sets its ID.
func (r *SQLiteReadingRepository) Insert(ctx context.Context, reading *Reading) error {
	if reading.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if reading.SensorType == "" {
		return fmt.Errorf("sensor type is required")
	}
	if reading.RecordedAt.IsZero() {
		reading.RecordedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO sensor_readings (device_id, sensor_type, value, unit, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		reading.DeviceID,
		reading.SensorType,
		reading.Value,
		nullableString(reading.Unit),
		reading.RecordedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading insert id: %w", err)
	}
	reading.ID = id

	return nil
}

// Latest returns the most recent reading per (device, sensor_type).
func (r *SQLiteReadingRepository) Latest(ctx context.Context, deviceID string) ([]Reading, error) {
	query := `
		SELECT sr.id, sr.device_id, sr.sensor_type, sr.value, sr.unit, sr.recorded_at
		FROM sensor_readings sr
		JOIN (
			SELECT device_id, sensor_type, MAX(id) AS max_id
			FROM sensor_readings
			GROUP BY device_id, sensor_type
		) latest ON sr.id = latest.max_id`

	args := []any{}
	if deviceID != "" {
		query += `
		WHERE sr.device_id = ?`
		args = append(args, deviceID)
	}
	query += `
		ORDER BY sr.device_id, sr.sensor_type`

	return r.queryReadings(ctx, query, args...)
}

// History returns readings for a device within a time window, oldest first.
func (r *SQLiteReadingRepository) History(ctx context.Context, deviceID, sensorType string, since time.Time) ([]Reading, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}

	query := `
		SELECT id, device_id, sensor_type, value, unit, recorded_at
		FROM sensor_readings
		WHERE device_id = ? AND recorded_at >= ?`

	args := []any{deviceID, since.UTC().Format(time.RFC3339)}
	if sensorType != "" {
		query += ` AND sensor_type = ?`
		args = append(args, sensorType)
	}
	query += `
		ORDER BY recorded_at ASC`

	return r.queryReadings(ctx, query, args...)
}

// Stats aggregates readings for one device sensor within a window.
func (r *SQLiteReadingRepository) Stats(ctx context.Context, deviceID, sensorType string, since time.Time) (*ReadingStats, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if sensorType == "" {
		return nil, fmt.Errorf("sensor type is required")
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT MIN(value), MAX(value), AVG(value), COUNT(id)
		 FROM sensor_readings
		 WHERE device_id = ? AND sensor_type = ? AND recorded_at >= ?`,
		deviceID, sensorType, since.UTC().Format(time.RFC3339),
	)

	var stats ReadingStats
	var minVal, maxVal, avgVal sql.NullFloat64
	if err := row.Scan(&minVal, &maxVal, &avgVal, &stats.Count); err != nil {
		return nil, fmt.Errorf("querying reading stats: %w", err)
	}

	if minVal.Valid {
		stats.Min = &minVal.Float64
	}
	if maxVal.Valid {
		stats.Max = &maxVal.Float64
	}
	if avgVal.Valid {
		stats.Avg = &avgVal.Float64
	}

	return &stats, nil
}

// Prune deletes readings recorded before the cutoff.
func (r *SQLiteReadingRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sensor_readings WHERE recorded_at < ?",
		before.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting readings: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// queryReadings executes a query and returns a slice of readings.
func (r *SQLiteReadingRepository) queryReadings(ctx context.Context, query string, args ...any) ([]Reading, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var reading Reading
		var unit sql.NullString
		var recordedAt string

		if err := rows.Scan(
			&reading.ID,
			&reading.DeviceID,
			&reading.SensorType,
			&reading.Value,
			&unit,
			&recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}

		if unit.Valid {
			reading.Unit = &unit.String
		}

		reading.RecordedAt, err = time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}

		readings = append(readings, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}

	return readings, nil
}
