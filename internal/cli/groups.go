package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/propgroups/internal/propgroup"
)

// GroupInfo describes one registered group.
type GroupInfo struct {
	Table      string `json:"table"`
	Name       string `json:"name"`
	Column     string `json:"column"`
	Expression string `json:"expression"`
	Codec      string `json:"codec"`
}

// NewGroupsCommand creates the groups command.
func NewGroupsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "groups [table]",
		Short: "List configured property groups",
		Long: `List the property groups of every configured table, or of one table,
in registration order.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroups(rootOpts, args, cmd)
		},
	}
}

func runGroups(opts *RootOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	_, registries, err := loadConfig(opts, f)
	if err != nil {
		return err
	}

	tables := sortedTables(registries)
	if len(args) == 1 {
		if _, err := lookupRegistry(registries, args[0], f); err != nil {
			return err
		}
		tables = []string{args[0]}
	}

	var groups []GroupInfo
	for _, table := range tables {
		groups = append(groups, describeGroups(registries[table])...)
	}

	return f.Emit(groups, func(w io.Writer) {
		current := ""
		for _, g := range groups {
			if g.Table != current {
				if current != "" {
					fmt.Fprintln(w)
				}
				fmt.Fprintf(w, "%s:\n", g.Table)
				current = g.Table
			}
			fmt.Fprintf(w, "  %s\n", g.Name)
			fmt.Fprintf(w, "    column:     %s\n", g.Column)
			fmt.Fprintf(w, "    expression: %s\n", g.Expression)
			fmt.Fprintf(w, "    codec:      %s\n", g.Codec)
		}
	})
}

func describeGroups(r *propgroup.Registry) []GroupInfo {
	var out []GroupInfo
	for _, name := range r.Groups() {
		def, _ := r.Definition(name)
		out = append(out, GroupInfo{
			Table:      r.Target().Table,
			Name:       name,
			Column:     r.ColumnName(name),
			Expression: def.FilterExpression(),
			Codec:      def.Codec(),
		})
	}
	return out
}
