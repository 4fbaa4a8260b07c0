package cli

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/propgroups/internal/config"
	"github.com/roach88/propgroups/internal/propgroup"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // path to YAML config; empty uses defaults
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the propgroups root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "propgroups",
		Short: "Materialized property groups for ClickHouse",
		Long: `Manage property groups: subsets of a JSON properties column
materialized as Map(String, String) columns with bloom filter indexes.

Groups are configured per table. Manifests in CUE order their creation
and removal; applied statements are tracked in a local ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			configureLogging(opts, cmd)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to config file (env: PROPGROUPS_*)")

	cmd.AddCommand(NewGroupsCommand(opts))
	cmd.AddCommand(NewClassifyCommand(opts))
	cmd.AddCommand(NewStatementsCommand(opts))
	cmd.AddCommand(NewConformCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}

// Execute runs cmd and returns the process exit code. Errors a command
// already reported through its formatter are not printed again.
func Execute(cmd *cobra.Command, stderr io.Writer) int {
	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	if !WasReported(err) {
		fmt.Fprintln(stderr, err)
	}
	return GetExitCode(err)
}

// configureLogging installs a text slog handler on stderr.
// Verbose switches to debug level.
func configureLogging(opts *RootOptions, cmd *cobra.Command) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// loadConfig loads the config and builds the table registries.
// Failures are reported through f as E020.
func loadConfig(opts *RootOptions, f *OutputFormatter) (config.Config, map[string]*propgroup.Registry, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, nil, f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil, nil)
	}
	registries, err := cfg.Registries()
	if err != nil {
		return config.Config{}, nil, f.Fail(ExitCommandError, ErrCodeConfig, err.Error(), nil, nil)
	}
	f.VerboseLog("Loaded %d table(s) from %s", len(registries), configSource(opts.Config))
	return cfg, registries, nil
}

func configSource(path string) string {
	if path == "" {
		return "defaults"
	}
	return path
}

// lookupRegistry finds the registry of table, reporting E021 when missing.
func lookupRegistry(registries map[string]*propgroup.Registry, table string, f *OutputFormatter) (*propgroup.Registry, error) {
	r, ok := registries[table]
	if !ok {
		tables := sortedTables(registries)
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("table %q has no property groups configured", table), nil,
			map[string]any{"tables": tables})
	}
	return r, nil
}

func sortedTables(registries map[string]*propgroup.Registry) []string {
	return slices.Sorted(maps.Keys(registries))
}
