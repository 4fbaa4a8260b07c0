package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Entry is one applied statement.
type Entry struct {
	Seq       int64     `json:"seq"`
	ID        string    `json:"id"`
	Migration string    `json:"migration"`
	Ordinal   int       `json:"ordinal"`
	Statement string    `json:"statement"`
	RunID     string    `json:"run_id"`
	AppliedAt time.Time `json:"applied_at"`
}

// Run status values.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Run summarizes one migrate invocation.
type Run struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Applied    int        `json:"applied"`
	Skipped    int        `json:"skipped"`
	Error      string     `json:"error,omitempty"`
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// IsApplied reports whether the statement with the given ID was recorded.
func (l *Ledger) IsApplied(ctx context.Context, id string) (bool, error) {
	var exists int
	err := l.db.QueryRowContext(ctx,
		`SELECT 1 FROM applied_statements WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check applied: %w", err)
	}
	return true, nil
}

// Record stores e. ID defaults to StatementID of e's fields.
// Recording the same ID twice is a no-op; inserted reports whether a row
// was written.
func (l *Ledger) Record(ctx context.Context, e Entry) (inserted bool, err error) {
	if e.ID == "" {
		e.ID = StatementID(e.Migration, e.Ordinal, e.Statement)
	}

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO applied_statements (id, migration, ordinal, statement, run_id, applied_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		e.ID,
		e.Migration,
		e.Ordinal,
		e.Statement,
		e.RunID,
		e.AppliedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("record statement: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record statement: %w", err)
	}
	return n > 0, nil
}

// List returns every applied statement ordered by seq.
// Returns an empty slice (not nil) when nothing was applied.
func (l *Ledger) List(ctx context.Context) ([]Entry, error) {
	return l.query(ctx, `
		SELECT seq, id, migration, ordinal, statement, run_id, applied_at
		FROM applied_statements
		ORDER BY seq ASC
	`)
}

// ListMigration returns the applied statements of one migration.
func (l *Ledger) ListMigration(ctx context.Context, migration string) ([]Entry, error) {
	return l.query(ctx, `
		SELECT seq, id, migration, ordinal, statement, run_id, applied_at
		FROM applied_statements
		WHERE migration = ?
		ORDER BY seq ASC
	`, migration)
}

func (l *Ledger) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query applied statements: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var appliedAt string
		if err := rows.Scan(&e.Seq, &e.ID, &e.Migration, &e.Ordinal, &e.Statement, &e.RunID, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan applied statement: %w", err)
		}
		if e.AppliedAt, err = time.Parse(timeLayout, appliedAt); err != nil {
			return nil, fmt.Errorf("parse applied_at %q: %w", appliedAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied statements: %w", err)
	}
	return entries, nil
}

// StartRun records the beginning of a run.
func (l *Ledger) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, status) VALUES (?, ?, ?)
	`, runID, startedAt.UTC().Format(timeLayout), RunStatusRunning)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run. runErr may be nil.
func (l *Ledger) FinishRun(ctx context.Context, runID string, finishedAt time.Time, applied, skipped int, runErr error) error {
	status := RunStatusSucceeded
	var errText sql.NullString
	if runErr != nil {
		status = RunStatusFailed
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	res, err := l.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, status = ?, applied = ?, skipped = ?, error = ?
		WHERE run_id = ?
	`, finishedAt.UTC().Format(timeLayout), status, applied, skipped, errText, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %s", runID)
	}
	return nil
}

// Runs returns all runs, oldest first.
func (l *Ledger) Runs(ctx context.Context) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, status, applied, skipped, error
		FROM runs
		ORDER BY started_at ASC, run_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var startedAt string
		var finishedAt, errText sql.NullString
		if err := rows.Scan(&r.RunID, &startedAt, &finishedAt, &r.Status, &r.Applied, &r.Skipped, &errText); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", startedAt, err)
		}
		if finishedAt.Valid {
			t, err := time.Parse(timeLayout, finishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse finished_at %q: %w", finishedAt.String, err)
			}
			r.FinishedAt = &t
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
