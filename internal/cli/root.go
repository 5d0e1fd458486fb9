package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/quip/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// cfg is loaded by the root command; subcommands built on their own
	// fall back to config.DefaultConfig.
	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the quip CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "quip",
		Short: "quip - fact and rule matching",
		Long: `Match rule catalogs against a table of facts.

Rules are written in CUE, compiled into a catalog and scored against the
current fact values. The best scoring rules can be inspected (peek) or
picked, which applies their write-backs to the facts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			if err := cfg.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid config", err)
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "quip.yaml", "path to config file")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPeekCommand(opts))
	cmd.AddCommand(NewPickCommand(opts))
	cmd.AddCommand(NewFactsCommand(opts))
	cmd.AddCommand(NewPicksCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// config returns the loaded configuration.
func (o *RootOptions) config() *config.Config {
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}
	return o.cfg
}

// logger builds the diagnostic logger. --verbose forces debug level.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	cfg := *o.config()
	if o.Verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := cfg.Logger(w)
	if err != nil {
		return slog.New(slog.NewTextHandler(w, nil))
	}
	return logger
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// catalogArg returns the catalog path from args, or the configured one.
func (o *RootOptions) catalogArg(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if path := o.config().Catalog; path != "" {
		return path, nil
	}
	return "", NewExitError(ExitCommandError, "no catalog given and none configured")
}
