package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/propgroups/internal/propgroup"
)

// StatementsOptions holds flags for the statements command.
type StatementsOptions struct {
	*RootOptions
	Drop bool
}

// StatementsResult is the generated DDL for one group.
type StatementsResult struct {
	Table      string   `json:"table"`
	Group      string   `json:"group"`
	Action     string   `json:"action"`
	Statements []string `json:"statements"`
}

// NewStatementsCommand creates the statements command.
func NewStatementsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatementsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "statements <table> <group>",
		Short: "Print the ALTER TABLE statements that materialize a group",
		Long: `Print the three statements that add a group's materialized column and
its key and value bloom filter indexes. With --drop, print the statements
that remove them instead.

Example:
  propgroups statements sharded_events custom
  propgroups statements sharded_events feature_flags --drop`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatements(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Drop, "drop", false, "print removal statements")

	return cmd
}

func runStatements(opts *StatementsOptions, table, group string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	_, registries, err := loadConfig(opts.RootOptions, f)
	if err != nil {
		return err
	}
	r, err := lookupRegistry(registries, table, f)
	if err != nil {
		return err
	}

	result := StatementsResult{Table: table, Group: group, Action: "create"}
	if opts.Drop {
		result.Action = "drop"
		result.Statements, err = r.DropTableStatements(group)
	} else {
		result.Statements, err = r.AlterTableStatements(group)
	}
	if err != nil {
		if propgroup.IsLookupError(err) {
			return f.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil,
				map[string]any{"groups": r.Groups()})
		}
		return f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil, nil)
	}

	return f.Emit(result, func(w io.Writer) {
		writeStatements(w, result.Statements)
	})
}

// writeStatements prints statements as a runnable script.
func writeStatements(w io.Writer, statements []string) {
	for _, stmt := range statements {
		fmt.Fprintf(w, "%s;\n", stmt)
	}
}
