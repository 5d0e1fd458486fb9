package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/quip/internal/catalog"
)

// ValidateResult is the JSON result of a validation.
type ValidateResult struct {
	Catalog  string           `json:"catalog"`
	Format   string           `json:"format"`
	Valid    bool             `json:"valid"`
	Rules    int              `json:"rules"`
	Errors   catalog.Problems `json:"errors,omitempty"`
	Warnings catalog.Problems `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [catalog]",
		Short: "Check a catalog for errors",
		Long: `Compile and validate a catalog without writing anything. Accepts a CUE
directory, a .cue file or a compiled .json catalog.

Exits 1 when the catalog has errors. Warnings never fail validation.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, args)
		},
	}
	return cmd
}

func runValidate(cmd *cobra.Command, opts *RootOptions, args []string) error {
	f := opts.formatter(cmd)

	path, err := opts.catalogArg(args)
	if err != nil {
		return err
	}

	loaded, err := LoadCatalog(path)
	if err != nil {
		return f.Fail(ExitCommandError, loadErrorCode(err), "failed to load catalog", err)
	}

	result := ValidateResult{
		Catalog:  path,
		Format:   loaded.Format,
		Valid:    !loaded.Problems.Fatal(),
		Errors:   loaded.Problems.Errors(),
		Warnings: loaded.Problems.Warnings(),
	}
	if result.Valid {
		result.Rules = len(loaded.Catalog.Rules)
	}

	if f.JSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		if result.Valid {
			fmt.Fprintf(w, "✓ %s is valid (%d rule(s))\n", path, result.Rules)
		} else {
			fmt.Fprintf(w, "✗ %s has %d error(s)\n", path, len(result.Errors))
		}
		f.Problems(loaded.Problems)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: catalog is invalid", ErrCodeCatalogErrors))
	}
	return nil
}
