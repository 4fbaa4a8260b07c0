package cli

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/propgroups/internal/chexec"
	"github.com/roach88/propgroups/internal/ledger"
	"github.com/roach88/propgroups/internal/propgroup"
)

// ColumnLister lists the columns of a table.
type ColumnLister interface {
	Columns(ctx context.Context, table string) ([]string, error)
}

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Ledger    string
	Manifests string
	Columns   bool

	// Lister overrides the ClickHouse connection for --columns (for testing).
	Lister ColumnLister
}

// MigrationStatus is the applied state of one planned migration.
type MigrationStatus struct {
	Name    string `json:"name"`
	Order   int    `json:"order"`
	Total   int    `json:"total"`
	Applied int    `json:"applied"`
}

// Pending reports whether any statement of the migration is unapplied.
func (m MigrationStatus) Pending() bool {
	return m.Applied < m.Total
}

// ColumnStatus reports whether a group's column exists on the server.
type ColumnStatus struct {
	Table   string `json:"table"`
	Group   string `json:"group"`
	Column  string `json:"column"`
	Present bool   `json:"present"`
}

// StatusResult is the output of the status command.
type StatusResult struct {
	Ledger     string            `json:"ledger"`
	Statements int               `json:"statements"`
	Runs       []ledger.Run      `json:"runs"`
	Migrations []MigrationStatus `json:"migrations,omitempty"`
	Columns    []ColumnStatus    `json:"columns,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied migrations and runs",
		Long: `Show the runs and applied statements recorded in the ledger.

With --manifests, also show how many statements of each planned migration
have been applied. With --columns, connect to ClickHouse and check that
each configured group's column exists.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "path to ledger database (overrides config)")
	cmd.Flags().StringVarP(&opts.Manifests, "manifests", "m", "", "manifests directory to compare against")
	cmd.Flags().BoolVar(&opts.Columns, "columns", false, "check group columns on the server")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	cfg, registries, err := loadConfig(opts.RootOptions, f)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	result := StatusResult{Ledger: cmp.Or(opts.Ledger, cfg.Ledger), Runs: []ledger.Run{}}
	applied := map[string]bool{}

	if _, statErr := os.Stat(result.Ledger); statErr == nil {
		l, err := ledger.Open(result.Ledger)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil, nil)
		}
		defer l.Close()

		entries, err := l.List(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil, nil)
		}
		for _, e := range entries {
			applied[e.ID] = true
		}
		result.Statements = len(entries)

		if result.Runs, err = l.Runs(ctx); err != nil {
			return f.Fail(ExitCommandError, ErrCodeLedger, err.Error(), nil, nil)
		}
	} else {
		f.VerboseLog("Ledger %s not found", result.Ledger)
	}

	if opts.Manifests != "" {
		planned, err := loadPlan(opts.Manifests, registries, f)
		if err != nil {
			return err
		}
		for _, p := range planned {
			ms := MigrationStatus{Name: p.Name, Order: p.Order, Total: len(p.Statements)}
			for i, stmt := range p.Statements {
				if applied[ledger.StatementID(p.Name, i, stmt)] {
					ms.Applied++
				}
			}
			result.Migrations = append(result.Migrations, ms)
		}
	}

	if opts.Columns {
		lister := opts.Lister
		if lister == nil {
			client, err := chexec.Dial(ctx, cfg.ClickHouse.Executor())
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeConnect, err.Error(), nil, nil)
			}
			defer client.Close()
			lister = client
		}
		if result.Columns, err = columnStatus(ctx, lister, registries); err != nil {
			return f.Fail(ExitCommandError, ErrCodeConnect, err.Error(), nil, nil)
		}
	}

	return f.Emit(result, func(w io.Writer) {
		writeStatusText(w, result)
	})
}

func columnStatus(ctx context.Context, lister ColumnLister, registries map[string]*propgroup.Registry) ([]ColumnStatus, error) {
	var out []ColumnStatus
	for _, table := range sortedTables(registries) {
		columns, err := lister.Columns(ctx, table)
		if err != nil {
			return nil, err
		}
		r := registries[table]
		for _, group := range r.Groups() {
			column := r.ColumnName(group)
			out = append(out, ColumnStatus{
				Table:   table,
				Group:   group,
				Column:  column,
				Present: slices.Contains(columns, column),
			})
		}
	}
	return out, nil
}

func writeStatusText(w io.Writer, result StatusResult) {
	fmt.Fprintf(w, "Ledger: %s (%d statement(s) applied)\n", result.Ledger, result.Statements)

	if len(result.Runs) > 0 {
		fmt.Fprintln(w, "\nRuns:")
		for _, r := range result.Runs {
			line := fmt.Sprintf("  %s  %s  %-9s applied=%d skipped=%d",
				r.StartedAt.Format("2006-01-02 15:04:05"), r.RunID, r.Status, r.Applied, r.Skipped)
			if r.Error != "" {
				line += "  error: " + r.Error
			}
			fmt.Fprintln(w, line)
		}
	}

	if len(result.Migrations) > 0 {
		fmt.Fprintln(w, "\nMigrations:")
		for _, m := range result.Migrations {
			mark := "✓"
			if m.Pending() {
				mark = "•"
			}
			fmt.Fprintf(w, "  %s %s (%d/%d)\n", mark, m.Name, m.Applied, m.Total)
		}
	}

	if len(result.Columns) > 0 {
		fmt.Fprintln(w, "\nColumns:")
		for _, c := range result.Columns {
			mark := "✓"
			if !c.Present {
				mark = "✗"
			}
			fmt.Fprintf(w, "  %s %s.%s\n", mark, c.Table, c.Column)
		}
	}
}
