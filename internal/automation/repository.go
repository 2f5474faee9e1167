package automation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines persistence for controller state and the decision log.
type Repository interface {
	// State reads the singleton controller state.
	// Returns ErrStateNotFound when no state has been written yet.
	State(ctx context.Context) (*StateRecord, error)

	// SaveState writes the singleton controller state.
	SaveState(ctx context.Context, record *StateRecord) error

	// TouchTick stamps the last-tick instant without touching the rest of
	// the record. Creates an INIT record when none exists.
	TouchTick(ctx context.Context, at time.Time) error

	// LogDecision appends to the deduplicated decision log. A decision
	// identical to the latest entry bumps its count and last-seen instant
	// instead of inserting a new row.
	LogDecision(ctx context.Context, decision Decision, reason string, dryRun bool) error

	// Log returns the newest limit entries, most recent first.
	Log(ctx context.Context, limit int) ([]DecisionEntry, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository backed by the given database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// State reads the singleton controller state row.
func (r *SQLiteRepository) State(ctx context.Context) (*StateRecord, error) {
	query := `
		SELECT state, since, last_tick_at, last_decision, reason,
		       last_window, last_recording, updated_at
		FROM automation_state WHERE id = 1`

	var (
		record                    StateRecord
		state, decision           string
		since, updatedAt          string
		lastTickAt                sql.NullString
		reason, window, recording sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query).Scan(
		&state, &since, &lastTickAt, &decision, &reason,
		&window, &recording, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying state: %w", err)
	}

	record.State = State(state)
	record.LastDecision = Decision(decision)
	record.Reason = reason.String
	if record.Since, err = time.Parse(time.RFC3339, since); err != nil {
		return nil, fmt.Errorf("parsing since: %w", err)
	}
	if record.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if lastTickAt.Valid {
		t, parseErr := time.Parse(time.RFC3339, lastTickAt.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing last_tick_at: %w", parseErr)
		}
		record.LastTickAt = &t
	}
	if window.Valid {
		record.LastWindow = &window.String
	}
	if recording.Valid {
		record.LastRecording = &recording.String
	}
	return &record, nil
}

// SaveState upserts the singleton controller state row. LastTickAt is
// deliberately left alone: TouchTick owns that column.
func (r *SQLiteRepository) SaveState(ctx context.Context, record *StateRecord) error {
	query := `
		INSERT INTO automation_state (id, state, since, last_decision, reason,
		                              last_window, last_recording, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			since = excluded.since,
			last_decision = excluded.last_decision,
			reason = excluded.reason,
			last_window = excluded.last_window,
			last_recording = excluded.last_recording,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		string(record.State),
		record.Since.UTC().Format(time.RFC3339),
		string(record.LastDecision),
		nullableStringValue(record.Reason),
		nullableStringPtr(record.LastWindow),
		nullableStringPtr(record.LastRecording),
		record.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}

// TouchTick stamps last_tick_at on the state row.
func (r *SQLiteRepository) TouchTick(ctx context.Context, at time.Time) error {
	stamp := at.UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE automation_state SET last_tick_at = ?, updated_at = ? WHERE id = 1`,
		stamp, stamp,
	)
	if err != nil {
		return fmt.Errorf("stamping tick: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("stamping tick: %w", err)
	}
	if rows == 0 {
		// First tick ever: seed the singleton row.
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO automation_state (id, state, since, last_tick_at, last_decision, updated_at)
			 VALUES (1, ?, ?, ?, '', ?)`,
			string(StateInit), stamp, stamp, stamp,
		)
		if err != nil {
			return fmt.Errorf("seeding state row: %w", err)
		}
	}
	return nil
}

// LogDecision appends to the deduplicated decision log.
func (r *SQLiteRepository) LogDecision(ctx context.Context, decision Decision, reason string, dryRun bool) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var (
		latestID                     string
		latestDecision, latestReason string
		latestDryRun                 int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, decision, reason, dry_run FROM decision_log
		 ORDER BY rowid DESC LIMIT 1`,
	).Scan(&latestID, &latestDecision, &latestReason, &latestDryRun)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Log is empty, fall through to insert.
	case err != nil:
		return fmt.Errorf("reading latest log entry: %w", err)
	case latestDecision == string(decision) && latestReason == reason && latestDryRun == boolToInt(dryRun):
		_, err = r.db.ExecContext(ctx,
			`UPDATE decision_log SET count = count + 1, last_at = ? WHERE id = ?`,
			now, latestID,
		)
		if err != nil {
			return fmt.Errorf("bumping log entry: %w", err)
		}
		return nil
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO decision_log (id, decision, reason, dry_run, count, first_at, last_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)`,
		GenerateID(), string(decision), reason, boolToInt(dryRun), now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}
	return nil
}

// Log returns the newest limit entries, most recent first.
func (r *SQLiteRepository) Log(ctx context.Context, limit int) ([]DecisionEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, decision, reason, dry_run, count, first_at, last_at
		 FROM decision_log ORDER BY rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying decision log: %w", err)
	}
	defer rows.Close()

	var entries []DecisionEntry
	for rows.Next() {
		var (
			entry           DecisionEntry
			decision        string
			dryRun          int
			firstAt, lastAt string
		)
		if err := rows.Scan(&entry.ID, &decision, &entry.Reason, &dryRun, &entry.Count, &firstAt, &lastAt); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		entry.Decision = Decision(decision)
		entry.DryRun = dryRun != 0
		if entry.FirstAt, err = time.Parse(time.RFC3339, firstAt); err != nil {
			return nil, fmt.Errorf("parsing first_at: %w", err)
		}
		if entry.LastAt, err = time.Parse(time.RFC3339, lastAt); err != nil {
			return nil, fmt.Errorf("parsing last_at: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating decision log: %w", err)
	}
	return entries, nil
}

// nullableStringValue converts an empty string to NULL.
func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableStringPtr converts a nil pointer to NULL.
func nullableStringPtr(s *string) sql.NullString {
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
