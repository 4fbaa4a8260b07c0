package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/propgroups/internal/manifest"
	"github.com/roach88/propgroups/internal/propgroup"
)

// ManifestIssue is one manifest load error.
type ManifestIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <manifests-dir>",
		Short: "Print the statements manifests would apply, in order",
		Long: `Load the CUE migration manifests in a directory and print the generated
statements, ordered by migration order then name. Nothing is executed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, args[0], cmd)
		},
	}
}

func runPlan(opts *RootOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	_, registries, err := loadConfig(opts, f)
	if err != nil {
		return err
	}
	planned, err := loadPlan(dir, registries, f)
	if err != nil {
		return err
	}

	return f.Emit(planned, func(w io.Writer) {
		for i, p := range planned {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "-- %s (order %d)\n", p.Name, p.Order)
			writeStatements(w, p.Statements)
		}
	})
}

// loadPlan loads the manifests in dir and plans them against registries.
// Failures are reported through f.
func loadPlan(dir string, registries map[string]*propgroup.Registry, f *OutputFormatter) ([]manifest.Planned, error) {
	result, loadErrs := manifest.Load(dir)
	if len(loadErrs) > 0 {
		return nil, failManifest(f, loadErrs)
	}
	f.VerboseLog("Found %d CUE file(s), %d migration(s) in %s", result.FileCount, len(result.Migrations), dir)

	planned, err := manifest.Plan(result.Migrations, registries)
	if err != nil {
		code := ErrCodePlan
		if propgroup.IsLookupError(err) {
			code = ErrCodeNotFound
		}
		return nil, f.Fail(ExitCommandError, code, err.Error(), nil, nil)
	}
	return planned, nil
}

func failManifest(f *OutputFormatter, errs []error) error {
	issues := make([]ManifestIssue, 0, len(errs))
	for _, err := range errs {
		issue := ManifestIssue{Code: manifest.ErrCodeGeneric, Message: err.Error()}
		var loadErr *manifest.LoadError
		if errors.As(err, &loadErr) {
			issue.Code = loadErr.Code
			issue.Message = loadErr.Message
			if loadErr.Pos.IsValid() {
				issue.Line = loadErr.Pos.Line()
			}
		}
		issues = append(issues, issue)
	}

	if !f.isJSON() && len(issues) > 1 {
		fmt.Fprintln(f.Writer, "✗ Manifests invalid")
		fmt.Fprintln(f.Writer)
		for _, issue := range issues {
			if issue.Line > 0 {
				fmt.Fprintf(f.Writer, "line %d\n", issue.Line)
			}
			fmt.Fprintf(f.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("manifests invalid with %d error(s)", len(issues)))
	}

	return f.Fail(ExitCommandError, issues[0].Code, issues[0].Message, nil, issues)
}
