package cli

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/propgroups/internal/chexec"
	"github.com/roach88/propgroups/internal/ledger"
	"github.com/roach88/propgroups/internal/manifest"
	"github.com/roach88/propgroups/internal/migrate"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	DryRun bool
	Ledger string

	// Executor overrides the ClickHouse connection (for testing).
	Executor migrate.Executor

	// RunIDs overrides the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs migrate.RunIDGenerator
}

// MigrateResult reports a migrate invocation.
type MigrateResult struct {
	migrate.Summary
	DryRun     bool     `json:"dry_run,omitempty"`
	Statements []string `json:"statements,omitempty"` // dry run only
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate <manifests-dir>",
		Short: "Apply manifests to ClickHouse",
		Long: `Plan the manifests in a directory and execute the statements that the
ledger has not recorded yet, in order. Execution stops at the first
statement ClickHouse rejects; rerunning resumes from there.

With --dry-run, the pending statements are printed instead of executed
and the ledger is left untouched.

Example:
  propgroups migrate ./migrations -c propgroups.yaml
  propgroups migrate ./migrations --dry-run`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print pending statements without executing them")
	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "path to ledger database (overrides config)")

	return cmd
}

func runMigrate(opts *MigrateOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	cfg, registries, err := loadConfig(opts.RootOptions, f)
	if err != nil {
		return err
	}
	planned, err := loadPlan(dir, registries, f)
	if err != nil {
		return err
	}

	ledgerPath := cmp.Or(opts.Ledger, cfg.Ledger)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.DryRun {
		return runDryRun(ctx, opts, f, planned, ledgerPath)
	}

	l, err := ledger.Open(ledgerPath)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil, nil)
	}
	defer func() {
		if closeErr := l.Close(); closeErr != nil {
			slog.Error("error closing ledger", "error", closeErr)
		}
	}()

	exec := opts.Executor
	if exec == nil {
		client, err := chexec.Dial(ctx, cfg.ClickHouse.Executor())
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeConnect, err.Error(), nil, nil)
		}
		defer client.Close()
		exec = client
	}

	summary, err := migrate.NewRunner(exec, l, runnerOptions(opts)...).Apply(ctx, planned)
	result := MigrateResult{Summary: summary}
	if err != nil {
		return failMigrate(f, result, err)
	}

	return f.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Applied %d statement(s), skipped %d (run %s)\n",
			summary.Applied, summary.Skipped, summary.RunID)
	})
}

func runDryRun(ctx context.Context, opts *MigrateOptions, f *OutputFormatter, planned []manifest.Planned, ledgerPath string) error {
	var l *ledger.Ledger
	if _, err := os.Stat(ledgerPath); err == nil {
		if l, err = ledger.Open(ledgerPath); err != nil {
			return f.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil, nil)
		}
		defer l.Close()
	} else {
		f.VerboseLog("Ledger %s not found; all statements are pending", ledgerPath)
	}

	result := MigrateResult{DryRun: true}
	var exec migrate.Executor = migrate.ExecutorFunc(func(_ context.Context, stmt string) error {
		result.Statements = append(result.Statements, stmt)
		return nil
	})
	if !f.isJSON() {
		exec = migrate.WriterExecutor{W: f.Writer}
	}

	runOpts := append(runnerOptions(opts), migrate.WithReadOnlyLedger())
	summary, err := migrate.NewRunner(exec, l, runOpts...).Apply(ctx, planned)
	result.Summary = summary
	if err != nil {
		return failMigrate(f, result, err)
	}

	return f.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "-- %d pending, %d already applied\n", summary.Applied, summary.Skipped)
	})
}

func runnerOptions(opts *MigrateOptions) []migrate.RunnerOption {
	var runOpts []migrate.RunnerOption
	if opts.RunIDs != nil {
		runOpts = append(runOpts, migrate.WithRunIDGenerator(opts.RunIDs))
	}
	return runOpts
}

func failMigrate(f *OutputFormatter, result MigrateResult, err error) error {
	var stmtErr *migrate.StatementError
	if errors.As(err, &stmtErr) {
		return f.Fail(ExitFailure, ErrCodeMigrate, err.Error(), result, map[string]any{
			"migration": stmtErr.Migration,
			"ordinal":   stmtErr.Ordinal,
			"statement": stmtErr.Statement,
		})
	}
	return f.Fail(ExitCommandError, ErrCodeLedger, err.Error(), result, nil)
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
