package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Repository defines the interface for scheduled period persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	List(ctx context.Context) ([]ScheduledPeriod, error)
	Get(ctx context.Context, id string) (*ScheduledPeriod, error)
	Create(ctx context.Context, period *ScheduledPeriod) error
	Update(ctx context.Context, period *ScheduledPeriod) error
	Delete(ctx context.Context, id string) error

	// UpsertAuto inserts or replaces a reserved-ID window (manual override,
	// auto-* sync windows) in one statement.
	UpsertAuto(ctx context.Context, period *ScheduledPeriod) error

	// PurgeElapsed removes once-windows with reserved IDs whose occurrence
	// has fully elapsed at now. Returns the number of rows removed.
	PurgeElapsed(ctx context.Context, now time.Time) (int, error)

	// Count returns the total number of stored periods.
	Count(ctx context.Context) (int, error)
}

// periodColumns is the SELECT column list for period queries.
const periodColumns = `id, type, weekdays, date, start_clock, end_clock, enabled, label, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List retrieves all periods in creation order. List order is the
// evaluation order, so stable ordering keeps first-match-wins predictable.
func (r *SQLiteRepository) List(ctx context.Context) ([]ScheduledPeriod, error) {
	query := `SELECT ` + periodColumns + ` FROM scheduled_periods ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying periods: %w", err)
	}
	defer rows.Close()

	var periods []ScheduledPeriod
	for rows.Next() {
		period, scanErr := scanPeriodRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning period: %w", scanErr)
		}
		periods = append(periods, *period)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating periods: %w", err)
	}
	return periods, nil
}

// Get retrieves a period by its unique identifier.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*ScheduledPeriod, error) {
	query := `SELECT ` + periodColumns + ` FROM scheduled_periods WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	period, err := scanPeriodRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPeriodNotFound
		}
		return nil, fmt.Errorf("querying period by id: %w", err)
	}
	return period, nil
}

// Create inserts a new period.
func (r *SQLiteRepository) Create(ctx context.Context, period *ScheduledPeriod) error {
	if err := period.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if period.CreatedAt.IsZero() {
		period.CreatedAt = now
	}
	period.UpdatedAt = now

	query := `
		INSERT INTO scheduled_periods (
			id, type, weekdays, date, start_clock, end_clock, enabled, label, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		period.ID,
		string(period.Type),
		nullableWeekdays(period.Weekdays),
		nullableString(period.Date),
		period.Start,
		period.End,
		boolToInt(period.Enabled),
		nullableString(period.Label),
		period.CreatedAt.Format(time.RFC3339),
		period.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrPeriodExists
		}
		return fmt.Errorf("inserting period: %w", err)
	}
	return nil
}

// Update modifies an existing period.
func (r *SQLiteRepository) Update(ctx context.Context, period *ScheduledPeriod) error {
	if err := period.Validate(); err != nil {
		return err
	}

	period.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE scheduled_periods SET
			type = ?, weekdays = ?, date = ?, start_clock = ?, end_clock = ?,
			enabled = ?, label = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(period.Type),
		nullableWeekdays(period.Weekdays),
		nullableString(period.Date),
		period.Start,
		period.End,
		boolToInt(period.Enabled),
		nullableString(period.Label),
		period.UpdatedAt.Format(time.RFC3339),
		period.ID,
	)
	if err != nil {
		return fmt.Errorf("updating period: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

// Delete removes a period by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM scheduled_periods WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting period: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

// UpsertAuto inserts or replaces a reserved-ID window.
func (r *SQLiteRepository) UpsertAuto(ctx context.Context, period *ScheduledPeriod) error {
	if err := period.Validate(); err != nil {
		return err
	}
	if !period.IsAuto() {
		return fmt.Errorf("%w: %q is not a reserved ID", ErrInvalidPeriod, period.ID)
	}

	now := time.Now().UTC()
	if period.CreatedAt.IsZero() {
		period.CreatedAt = now
	}
	period.UpdatedAt = now

	query := `
		INSERT INTO scheduled_periods (
			id, type, weekdays, date, start_clock, end_clock, enabled, label, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type, weekdays = excluded.weekdays, date = excluded.date,
			start_clock = excluded.start_clock, end_clock = excluded.end_clock, enabled = excluded.enabled,
			label = excluded.label, updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		period.ID,
		string(period.Type),
		nullableWeekdays(period.Weekdays),
		nullableString(period.Date),
		period.Start,
		period.End,
		boolToInt(period.Enabled),
		nullableString(period.Label),
		period.CreatedAt.Format(time.RFC3339),
		period.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting period: %w", err)
	}
	return nil
}

// PurgeElapsed removes elapsed reserved-ID once-windows.
//
// The elapsed check happens in Go because occurrence resolution (midnight
// rollover included) lives in one place, not duplicated in SQL.
func (r *SQLiteRepository) PurgeElapsed(ctx context.Context, now time.Time) (int, error) {
	query := `SELECT ` + periodColumns + ` FROM scheduled_periods
		WHERE type = ? AND (id = ? OR id LIKE ?)`

	rows, err := r.db.QueryContext(ctx, query, string(PeriodOnce), ManualPeriodID, AutoPeriodPrefix+"%")
	if err != nil {
		return 0, fmt.Errorf("querying purgeable periods: %w", err)
	}
	defer rows.Close()

	var elapsed []string
	for rows.Next() {
		period, scanErr := scanPeriodRow(rows)
		if scanErr != nil {
			return 0, fmt.Errorf("scanning period: %w", scanErr)
		}
		_, end, ok := Occurrence(*period, now)
		if !ok || end.Before(now) {
			elapsed = append(elapsed, period.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating periods: %w", err)
	}

	for _, id := range elapsed {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM scheduled_periods WHERE id = ?", id); err != nil {
			return 0, fmt.Errorf("purging period %s: %w", id, err)
		}
	}
	return len(elapsed), nil
}

// Count returns the total number of stored periods.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scheduled_periods").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting periods: %w", err)
	}
	return count, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPeriodRow(scanner rowScanner) (*ScheduledPeriod, error) {
	var p ScheduledPeriod
	var periodType string
	var weekdays, date, label sql.NullString
	var enabled int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&p.ID,
		&periodType,
		&weekdays,
		&date,
		&p.Start,
		&p.End,
		&enabled,
		&label,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Type = PeriodType(periodType)
	p.Enabled = enabled != 0

	if weekdays.Valid {
		p.Weekdays, err = parseWeekdays(weekdays.String)
		if err != nil {
			return nil, fmt.Errorf("parsing weekdays: %w", err)
		}
	}
	if date.Valid {
		p.Date = date.String
	}
	if label.Valid {
		p.Label = label.String
	}

	// Timestamps are stored as RFC3339 by this repository.
	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		p.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		p.UpdatedAt = t
	}

	return &p, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableWeekdays(days []int) sql.NullString {
	if len(days) == 0 {
		return sql.NullString{}
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return sql.NullString{String: strings.Join(parts, ","), Valid: true}
}

func parseWeekdays(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	days := make([]int, 0, len(parts))
	for _, part := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
