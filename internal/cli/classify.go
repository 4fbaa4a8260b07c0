package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// ClassifyOptions holds flags for the classify command.
type ClassifyOptions struct {
	*RootOptions
	Table string
}

// Classification is the groups a key belongs to on one table.
type Classification struct {
	Key    string   `json:"key"`
	Table  string   `json:"table"`
	Groups []string `json:"groups"`
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClassifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "classify <key>...",
		Short: "Show which groups a property key belongs to",
		Long: `Evaluate each group's predicate against the given property keys.

Example:
  propgroups classify '$feature/new-onboarding' plan_tier '$browser'`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Table, "table", "t", "sharded_events", "table whose groups are evaluated")

	return cmd
}

func runClassify(opts *ClassifyOptions, keys []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	_, registries, err := loadConfig(opts.RootOptions, f)
	if err != nil {
		return err
	}
	r, err := lookupRegistry(registries, opts.Table, f)
	if err != nil {
		return err
	}

	results := make([]Classification, 0, len(keys))
	for _, key := range keys {
		groups := slices.Collect(r.FindGroups(key))
		if groups == nil {
			groups = []string{}
		}
		results = append(results, Classification{Key: key, Table: opts.Table, Groups: groups})
	}

	return f.Emit(results, func(w io.Writer) {
		for _, c := range results {
			groups := "(none)"
			if len(c.Groups) > 0 {
				groups = strings.Join(c.Groups, ", ")
			}
			fmt.Fprintf(w, "%s: %s\n", c.Key, groups)
		}
	})
}
