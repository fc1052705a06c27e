package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines persistence operations for automation rules.
//
// Update never touches the last_triggered column: that stamp belongs to the
// engine and is written only through UpdateLastTriggered, so rule edits
// cannot reset an active cooldown window.
type Repository interface {
	// GetByID retrieves a rule by its unique identifier.
	GetByID(ctx context.Context, id string) (*Rule, error)

	// List retrieves all rules ordered by name.
	List(ctx context.Context) ([]Rule, error)

	// ListEnabled retrieves all enabled rules ordered by name.
	ListEnabled(ctx context.Context) ([]Rule, error)

	// Create inserts a new rule.
	Create(ctx context.Context, rule *Rule) error

	// Update modifies an existing rule, leaving last_triggered untouched.
	Update(ctx context.Context, rule *Rule) error

	// Delete removes a rule by ID.
	Delete(ctx context.Context, id string) error

	// UpdateLastTriggered stamps the moment a rule last fired.
	UpdateLastTriggered(ctx context.Context, id string, firedAt time.Time) error
}

// ruleColumns is the SELECT column list for rule queries.
const ruleColumns = `id, name, description, enabled, cooldown_seconds,
			trigger_json, action_json, last_triggered, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a rule by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Rule, error) {
	query := fmt.Sprintf("SELECT %s FROM automation_rules WHERE id = ?", ruleColumns)

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("querying rule: %w", err)
	}
	return rule, nil
}

// List retrieves all rules ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Rule, error) {
	query := fmt.Sprintf("SELECT %s FROM automation_rules ORDER BY name", ruleColumns)
	return r.queryRules(ctx, query)
}

// ListEnabled retrieves all enabled rules ordered by name.
func (r *SQLiteRepository) ListEnabled(ctx context.Context) ([]Rule, error) {
	query := fmt.Sprintf("SELECT %s FROM automation_rules WHERE enabled = 1 ORDER BY name", ruleColumns)
	return r.queryRules(ctx, query)
}

// Create inserts a new rule.
func (r *SQLiteRepository) Create(ctx context.Context, rule *Rule) error {
	triggerJSON, err := json.Marshal(rule.Trigger)
	if err != nil {
		return fmt.Errorf("marshalling trigger: %w", err)
	}
	actionJSON, err := json.Marshal(rule.Action)
	if err != nil {
		return fmt.Errorf("marshalling action: %w", err)
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO automation_rules (
			id, name, description, enabled, cooldown_seconds,
			trigger_json, action_json, last_triggered, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		nullableString(rule.Description),
		boolToInt(rule.Enabled),
		rule.CooldownSeconds,
		string(triggerJSON),
		string(actionJSON),
		nullableTime(rule.LastTriggered),
		rule.CreatedAt.Format(time.RFC3339),
		rule.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRuleExists
		}
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

// Update modifies an existing rule. The last_triggered column is deliberately
// absent from the SET list.
func (r *SQLiteRepository) Update(ctx context.Context, rule *Rule) error {
	triggerJSON, err := json.Marshal(rule.Trigger)
	if err != nil {
		return fmt.Errorf("marshalling trigger: %w", err)
	}
	actionJSON, err := json.Marshal(rule.Action)
	if err != nil {
		return fmt.Errorf("marshalling action: %w", err)
	}

	rule.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE automation_rules SET
			name = ?, description = ?, enabled = ?, cooldown_seconds = ?,
			trigger_json = ?, action_json = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		rule.Name,
		nullableString(rule.Description),
		boolToInt(rule.Enabled),
		rule.CooldownSeconds,
		string(triggerJSON),
		string(actionJSON),
		rule.UpdatedAt.Format(time.RFC3339),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Delete removes a rule by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM automation_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// UpdateLastTriggered stamps the moment a rule last fired.
func (r *SQLiteRepository) UpdateLastTriggered(ctx context.Context, id string, firedAt time.Time) error {
	query := "UPDATE automation_rules SET last_triggered = ? WHERE id = ?"

	result, err := r.db.ExecContext(ctx, query, firedAt.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating last_triggered: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// queryRules executes a query expected to return multiple rules.
func (r *SQLiteRepository) queryRules(ctx context.Context, query string, args ...any) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRuleFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	return rules, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning logic.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRule scans a single sql.Row into a Rule.
func scanRule(row *sql.Row) (*Rule, error) {
	return scanRuleRow(row)
}

// scanRuleFromRows scans a sql.Rows result into a Rule.
func scanRuleFromRows(rows *sql.Rows) (*Rule, error) {
	return scanRuleRow(rows)
}

func scanRuleRow(scanner rowScanner) (*Rule, error) {
	var rule Rule
	var description, lastTriggered sql.NullString
	var triggerJSON, actionJSON string
	var enabled int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&rule.ID,
		&rule.Name,
		&description,
		&enabled,
		&rule.CooldownSeconds,
		&triggerJSON,
		&actionJSON,
		&lastTriggered,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		rule.Description = &description.String
	}
	rule.Enabled = enabled != 0

	if err := json.Unmarshal([]byte(triggerJSON), &rule.Trigger); err != nil {
		return nil, fmt.Errorf("unmarshalling trigger: %w", err)
	}
	if err := json.Unmarshal([]byte(actionJSON), &rule.Action); err != nil {
		return nil, fmt.Errorf("unmarshalling action: %w", err)
	}

	if lastTriggered.Valid {
		if t, parseErr := time.Parse(time.RFC3339, lastTriggered.String); parseErr == nil {
			rule.LastTriggered = &t
		}
	}

	// Timestamps are stored as RFC3339 UTC text.
	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		rule.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		rule.UpdatedAt = t
	}

	return &rule, nil
}

// nullableString converts a *string to sql.NullString.
func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime converts a *time.Time to a nullable RFC3339 string.
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// boolToInt converts a bool to SQLite's integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
