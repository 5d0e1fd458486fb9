package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/quip/internal/facts"
	"github.com/roach88/quip/internal/store"
)

// FactsOptions holds flags for the facts subcommands.
type FactsOptions struct {
	*RootOptions
	Facts     []string
	FactsFile string
	Snapshot  string
	Database  string
	Output    string
	Delete    bool
}

// SnapshotInfo is one stored snapshot in a facts list.
type SnapshotInfo struct {
	Name        string `json:"name"`
	CatalogHash string `json:"catalog_hash"`
	Seq         int64  `json:"seq"`
	Facts       int    `json:"facts"`
}

// NewFactsCommand creates the facts command group.
func NewFactsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FactsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Dump, load and list fact values",
		Long: `Work with fact values outside of a query.

A dump is a header line followed by one "Kind,  name,  value" line per
fact. String facts are dumped as text.`,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the SQLite database (default from config)")

	cmd.AddCommand(newFactsDumpCommand(opts))
	cmd.AddCommand(newFactsLoadCommand(opts))
	cmd.AddCommand(newFactsSnapshotsCommand(opts))

	return cmd
}

func newFactsDumpCommand(opts *FactsOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump [catalog]",
		Short: "Write every fact of a catalog as a CSV dump",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFactsDump(cmd, opts, args)
		},
	}
	cmd.Flags().StringArrayVar(&opts.Facts, "fact", nil, "set a fact before dumping, name=value (repeatable)")
	cmd.Flags().StringVar(&opts.FactsFile, "facts", "", "load facts from a CSV dump first")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "load facts from a stored snapshot first")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the dump to this file instead of stdout")
	return cmd
}

func newFactsLoadCommand(opts *FactsOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load [catalog] <dump.csv> --snapshot <name>",
		Short: "Store a CSV dump as a named snapshot",
		Long: `Read a CSV dump against a catalog and store the resulting facts as a
named snapshot. Rows naming facts the catalog does not declare are
skipped and reported.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFactsLoad(cmd, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "snapshot name (required)")
	_ = cmd.MarkFlagRequired("snapshot")
	return cmd
}

func newFactsSnapshotsCommand(opts *FactsOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots [name...]",
		Short: "List stored snapshots, or delete them with --delete",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFactsSnapshots(cmd, opts, args)
		},
	}
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "delete the named snapshots")
	return cmd
}

func (o *FactsOptions) database() string {
	if o.Database != "" {
		return o.Database
	}
	return o.config().Database
}

func (o *FactsOptions) openStore(f *OutputFormatter) (*store.Store, error) {
	path := o.database()
	if path == "" {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "no database", errors.New("set --db or database in the config"))
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	return db, nil
}

func runFactsDump(cmd *cobra.Command, opts *FactsOptions, args []string) error {
	ctx := commandContext(cmd)
	f := opts.formatter(cmd)

	path, err := opts.catalogArg(args)
	if err != nil {
		return err
	}

	var db *store.Store
	if opts.Snapshot != "" {
		if db, err = opts.openStore(f); err != nil {
			return err
		}
		defer db.Close()
	}

	s, err := openSession(ctx, opts.RootOptions, path, f.GetErrWriter(), false)
	if err != nil {
		return f.Fail(ExitCommandError, engineErrorCode(err), "failed to load catalog", err)
	}
	defer s.close()

	q := &QueryOptions{RootOptions: opts.RootOptions, Facts: opts.Facts, FactsFile: opts.FactsFile, Snapshot: opts.Snapshot}
	if err := loadQueryFacts(ctx, s, db, q); err != nil {
		return f.Fail(ExitCommandError, ErrCodeBadFact, "failed to set facts", err)
	}

	if f.JSON() && opts.Output == "" {
		records := s.engine.ExportFacts()
		if records == nil {
			records = []facts.Record{}
		}
		return f.Success(records)
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.Output != "" {
		out, err := os.Create(opts.Output)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to create dump", err)
		}
		defer out.Close()
		w = out
	}
	if err := s.engine.SaveFacts(w); err != nil {
		return f.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write dump", err)
	}
	if opts.Output != "" {
		f.VerboseLog("Wrote %s", opts.Output)
	}
	return nil
}

func runFactsLoad(cmd *cobra.Command, opts *FactsOptions, args []string) error {
	ctx := commandContext(cmd)
	f := opts.formatter(cmd)

	dump := args[len(args)-1]
	path, err := opts.catalogArg(args[:len(args)-1])
	if err != nil {
		return err
	}

	db, err := opts.openStore(f)
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := openSession(ctx, opts.RootOptions, path, f.GetErrWriter(), false)
	if err != nil {
		return f.Fail(ExitCommandError, engineErrorCode(err), "failed to load catalog", err)
	}
	defer s.close()

	in, err := os.Open(dump)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "failed to open dump", err)
	}
	defer in.Close()

	stats, err := s.engine.LoadFacts(in)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeBadFact, "failed to read dump", err)
	}

	snap := store.Snapshot{
		Name:        opts.Snapshot,
		CatalogHash: s.engine.CatalogHash(),
		Seq:         s.engine.Clock().Current(),
		Records:     s.engine.ExportFacts(),
	}
	if err := db.SaveSnapshot(ctx, snap); err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to save snapshot", err)
	}

	if f.JSON() {
		return f.Success(map[string]interface{}{
			"snapshot": snap.Name,
			"loaded":   stats.Loaded,
			"unknown":  stats.Unknown,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Stored snapshot %q (%d fact(s) loaded)\n", snap.Name, stats.Loaded)
	for _, name := range stats.Unknown {
		fmt.Fprintf(cmd.OutOrStdout(), "  skipped unknown fact %q\n", name)
	}
	return nil
}

func runFactsSnapshots(cmd *cobra.Command, opts *FactsOptions, args []string) error {
	ctx := commandContext(cmd)
	f := opts.formatter(cmd)

	if opts.Delete && len(args) == 0 {
		return NewExitError(ExitCommandError, "--delete needs at least one snapshot name")
	}

	db, err := opts.openStore(f)
	if err != nil {
		return err
	}
	defer db.Close()

	if opts.Delete {
		for _, name := range args {
			if err := db.DeleteSnapshot(ctx, name); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("snapshot %q not found", name), nil)
				}
				return f.Fail(ExitCommandError, ErrCodeStore, "failed to delete snapshot", err)
			}
			f.VerboseLog("Deleted %s", name)
		}
		if f.JSON() {
			return f.Success(map[string]interface{}{"deleted": args})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %d snapshot(s)\n", len(args))
		return nil
	}

	infos, err := listSnapshots(ctx, db, args)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to list snapshots", err)
	}

	if f.JSON() {
		return f.Success(infos)
	}
	w := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(w, "No snapshots")
		return nil
	}
	for _, info := range infos {
		fmt.Fprintf(w, "%-24s seq=%-6d facts=%-4d %s\n", info.Name, info.Seq, info.Facts, info.CatalogHash)
	}
	return nil
}

// listSnapshots loads the named snapshots, or every snapshot when names
// is empty.
func listSnapshots(ctx context.Context, db *store.Store, names []string) ([]SnapshotInfo, error) {
	if len(names) == 0 {
		all, err := db.ListSnapshots(ctx)
		if err != nil {
			return nil, err
		}
		names = all
	}

	infos := []SnapshotInfo{}
	for _, name := range names {
		snap, err := db.LoadSnapshot(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("snapshot %q: %w", name, err)
		}
		infos = append(infos, SnapshotInfo{
			Name:        snap.Name,
			CatalogHash: snap.CatalogHash,
			Seq:         snap.Seq,
			Facts:       len(snap.Records),
		})
	}
	return infos, nil
}

// commandContext returns cmd's context, or Background when it has none.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
