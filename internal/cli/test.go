package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/quip/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-or-dir>...",
		Short: "Run scenario files against their catalogs",
		Long: `Run YAML scenarios. Each scenario sets facts, runs peek and pick steps
and checks the picks and final facts it expects.

Directories are searched (non-recursively) for .yaml and .yml files.
Exits 1 if any scenario fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenario files whose name matches this glob")

	return cmd
}

func runTest(cmd *cobra.Command, opts *TestOptions, args []string) error {
	f := opts.formatter(cmd)

	paths, err := collectScenarios(args, opts.Filter)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeScenario, "failed to find scenarios", err)
	}
	if len(paths) == 0 {
		return f.Fail(ExitCommandError, ErrCodeScenario, "no scenarios found", nil)
	}

	var logger *slog.Logger
	if opts.Verbose {
		logger = opts.logger(f.GetErrWriter())
	}

	result := harness.RunSuite(commandContext(cmd), paths, logger)

	if f.JSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, fail := range result.Failures {
			name := fail.Scenario
			if name == "" {
				name = filepath.Base(fail.Path)
			}
			fmt.Fprintf(w, "✗ %s (%s)\n", name, fail.Path)
			for _, e := range fail.Errors {
				fmt.Fprintf(w, "    %s\n", e)
			}
		}
		fmt.Fprintf(w, "%d scenario(s): %d passed, %d failed\n", result.Total, result.Passed, result.Failed)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// collectScenarios expands directories and applies the name filter.
func collectScenarios(args []string, filter string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := harness.FindScenarios(arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}

	if filter == "" {
		return paths, nil
	}
	var kept []string
	for _, p := range paths {
		ok, err := filepath.Match(filter, filepath.Base(p))
		if err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
		}
		if ok {
			kept = append(kept, p)
		}
	}
	return kept, nil
}
