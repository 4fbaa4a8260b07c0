package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/propgroups/internal/ledger"
	"github.com/roach88/propgroups/internal/manifest"
)

// StatementError reports the statement a run stopped on.
type StatementError struct {
	Migration string
	Ordinal   int
	Statement string
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("migration %q statement %d: %v", e.Migration, e.Ordinal, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// Summary counts what a run did.
type Summary struct {
	RunID   string `json:"run_id,omitempty"`
	Applied int    `json:"applied"`
	Skipped int    `json:"skipped"`
}

// Runner applies planned migrations through an Executor.
//
// A nil ledger disables skip and record; every statement is executed.
type Runner struct {
	exec     Executor
	ledger   *ledger.Ledger
	ids      RunIDGenerator
	now      func() time.Time
	readOnly bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunIDGenerator sets the run ID source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) RunnerOption {
	return func(r *Runner) {
		r.ids = g
	}
}

// WithNow sets the time source. Default: time.Now.
func WithNow(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// WithReadOnlyLedger consults the ledger to skip applied statements but
// records nothing. Used for dry runs.
func WithReadOnlyLedger() RunnerOption {
	return func(r *Runner) {
		r.readOnly = true
	}
}

// NewRunner creates a Runner. l may be nil.
func NewRunner(exec Executor, l *ledger.Ledger, opts ...RunnerOption) *Runner {
	r := &Runner{
		exec:   exec,
		ledger: l,
		ids:    UUIDv7Generator{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply executes the statements of planned in order.
//
// Statements already in the ledger are skipped. On the first failure Apply
// stops, records the run as failed, and returns the partial summary with a
// *StatementError.
func (r *Runner) Apply(ctx context.Context, planned []manifest.Planned) (Summary, error) {
	summary := Summary{RunID: r.ids.Generate()}

	recording := r.ledger != nil && !r.readOnly
	if recording {
		if err := r.ledger.StartRun(ctx, summary.RunID, r.now()); err != nil {
			return summary, err
		}
	}
	slog.Info("migration run starting", "run_id", summary.RunID, "migrations", len(planned))

	runErr := r.apply(ctx, planned, &summary)

	if recording {
		// The run's own context may be cancelled; the outcome is still recorded.
		finishCtx := context.WithoutCancel(ctx)
		if err := r.ledger.FinishRun(finishCtx, summary.RunID, r.now(), summary.Applied, summary.Skipped, runErr); err != nil {
			return summary, errors.Join(runErr, err)
		}
	}

	if runErr != nil {
		slog.Error("migration run failed",
			"run_id", summary.RunID,
			"applied", summary.Applied,
			"skipped", summary.Skipped,
			"error", runErr,
		)
		return summary, runErr
	}

	slog.Info("migration run finished",
		"run_id", summary.RunID,
		"applied", summary.Applied,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

func (r *Runner) apply(ctx context.Context, planned []manifest.Planned, summary *Summary) error {
	for _, m := range planned {
		for i, stmt := range m.Statements {
			if err := ctx.Err(); err != nil {
				return &StatementError{Migration: m.Name, Ordinal: i, Statement: stmt, Err: err}
			}

			id := ledger.StatementID(m.Name, i, stmt)
			if r.ledger != nil {
				applied, err := r.ledger.IsApplied(ctx, id)
				if err != nil {
					return err
				}
				if applied {
					slog.Debug("statement already applied, skipping",
						"migration", m.Name,
						"ordinal", i,
					)
					summary.Skipped++
					continue
				}
			}

			slog.Debug("executing statement",
				"migration", m.Name,
				"ordinal", i,
				"statement", stmt,
			)
			if err := r.exec.Exec(ctx, stmt); err != nil {
				return &StatementError{Migration: m.Name, Ordinal: i, Statement: stmt, Err: err}
			}

			if r.ledger != nil && !r.readOnly {
				// Executed statements are recorded even if ctx was cancelled meanwhile.
				if _, err := r.ledger.Record(context.WithoutCancel(ctx), ledger.Entry{
					ID:        id,
					Migration: m.Name,
					Ordinal:   i,
					Statement: stmt,
					RunID:     summary.RunID,
					AppliedAt: r.now(),
				}); err != nil {
					return err
				}
			}
			summary.Applied++
		}
	}
	return nil
}
