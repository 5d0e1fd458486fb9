package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/quip/internal/catalog"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string
}

// CompileResult is the JSON summary of a compile.
type CompileResult struct {
	Catalog  string           `json:"catalog"`
	Output   string           `json:"output,omitempty"`
	Hash     string           `json:"hash"`
	Facts    int              `json:"facts"`
	Strings  int              `json:"strings"`
	Rules    int              `json:"rules"`
	Tests    int              `json:"tests"`
	Buckets  int              `json:"buckets"`
	Warnings catalog.Problems `json:"warnings,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [catalog]",
		Short: "Compile CUE rules into a JSON catalog",
		Long: `Compile a CUE catalog (a directory or a single .cue file) and report a
summary. With --output the compiled catalog is written as JSON, which
every other command accepts in place of the CUE sources.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the compiled catalog to this JSON file")

	return cmd
}

func runCompile(cmd *cobra.Command, opts *CompileOptions, args []string) error {
	f := opts.formatter(cmd)

	path, err := opts.catalogArg(args)
	if err != nil {
		return err
	}

	loaded, err := LoadCatalog(path)
	if err != nil {
		return f.Fail(ExitCommandError, loadErrorCode(err), "failed to load catalog", err)
	}
	if loaded.Problems.Fatal() {
		return reportProblems(f, loaded, ExitCommandError)
	}

	hash, err := catalog.Hash(loaded.Catalog)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to hash catalog", err)
	}

	if opts.Output != "" {
		if err := writeCatalog(opts.Output, loaded.Catalog); err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write catalog", err)
		}
		f.VerboseLog("Wrote %s", opts.Output)
	}

	c := loaded.Catalog
	result := CompileResult{
		Catalog:  path,
		Output:   opts.Output,
		Hash:     hash,
		Facts:    len(c.Facts),
		Strings:  len(c.Strings),
		Rules:    len(c.Rules),
		Tests:    len(c.Tests),
		Buckets:  len(c.Buckets),
		Warnings: loaded.Problems.Warnings(),
	}

	if f.JSON() {
		return f.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ Compiled %d rule(s), %d fact(s), %d bucket(s)\n", result.Rules, result.Facts, result.Buckets)
	fmt.Fprintf(w, "  hash: %s\n", result.Hash)
	if result.Output != "" {
		fmt.Fprintf(w, "  output: %s\n", result.Output)
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintf(w, "%d warning(s):\n", len(result.Warnings))
		f.Problems(result.Warnings)
	}
	return nil
}

func writeCatalog(path string, c *catalog.Catalog) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.Encode(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// reportProblems prints a catalog's problems and returns an ExitError.
func reportProblems(f *OutputFormatter, loaded *LoadedCatalog, exitCode int) error {
	errs := loaded.Problems.Errors()
	msg := fmt.Sprintf("catalog has %d error(s)", len(errs))

	if f.JSON() {
		_ = f.Error(ErrCodeCatalogErrors, msg, loaded.Problems)
	} else {
		fmt.Fprintf(f.Writer, "✗ %s: %s\n", loaded.Path, msg)
		f.Problems(loaded.Problems)
	}
	return NewExitError(exitCode, fmt.Sprintf("%s: %s", ErrCodeCatalogErrors, msg))
}

// loadErrorCode returns the code carried by a *LoadError.
func loadErrorCode(err error) string {
	var lerr *LoadError
	if errors.As(err, &lerr) {
		return lerr.Code
	}
	return ErrCodeLoadFailed
}
