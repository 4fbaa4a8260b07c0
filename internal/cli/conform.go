package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/propgroups/internal/conformance"
)

// ConformOptions holds flags for the conform command.
type ConformOptions struct {
	*RootOptions
	Keys []string
}

// ConformResult is the conformance outcome of one table.
type ConformResult struct {
	Table   string               `json:"table"`
	Reports []conformance.Report `json:"reports"`
}

// NewConformCommand creates the conform command.
func NewConformCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConformOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "conform",
		Short: "Check that group predicates agree with their filter expressions",
		Long: `Evaluate every group's in-process predicate and its ClickHouse filter
expression over a key corpus and report keys on which they disagree.

A disagreement means the materialized column would hold different keys
than the ones queries are rewritten for. Exits 1 on any mismatch.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConform(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Keys, "key", nil, "extra keys to check (repeatable)")

	return cmd
}

func runConform(opts *ConformOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	_, registries, err := loadConfig(opts.RootOptions, f)
	if err != nil {
		return err
	}

	keys := append(conformance.DefaultCorpus(), opts.Keys...)
	f.VerboseLog("Checking %d key(s)", len(keys))

	var (
		results []ConformResult
		all     []conformance.Report
	)
	for _, table := range sortedTables(registries) {
		reports := conformance.CheckRegistry(registries[table], keys)
		results = append(results, ConformResult{Table: table, Reports: reports})
		all = append(all, reports...)
	}

	if err := conformance.Error(all); err != nil {
		if f.isJSON() {
			return f.Fail(ExitFailure, ErrCodeConformance, err.Error(), results, nil)
		}
		writeConformText(f.Writer, results)
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %v", ErrCodeConformance, err))
	}

	return f.Emit(results, func(w io.Writer) {
		writeConformText(w, results)
	})
}

func writeConformText(w io.Writer, results []ConformResult) {
	for _, res := range results {
		for _, r := range res.Reports {
			if r.OK() {
				fmt.Fprintf(w, "✓ %s.%s (%d keys)\n", res.Table, r.Group, r.Checked)
				continue
			}
			fmt.Fprintf(w, "✗ %s.%s\n", res.Table, r.Group)
			if r.ParseError != "" {
				fmt.Fprintf(w, "  expression: %s\n", r.ParseError)
			}
			for _, m := range r.Mismatches {
				fmt.Fprintf(w, "  %q: predicate=%t expression=%t\n", m.Key, m.Predicate, m.Expression)
			}
		}
	}
}
