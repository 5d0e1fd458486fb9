package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/quip/internal/engine"
	"github.com/roach88/quip/internal/facts"
	"github.com/roach88/quip/internal/match"
	"github.com/roach88/quip/internal/store"
)

// Query modes.
const (
	ModeBest   = "best"
	ModeValid  = "valid"
	ModeBucket = "bucket"
)

// ValidModes defines the allowed query modes.
var ValidModes = []string{ModeBest, ModeValid, ModeBucket}

// QueryOptions holds flags shared by peek and pick.
type QueryOptions struct {
	*RootOptions
	Mode      string
	Bucket    string
	Start     int
	End       int
	Facts     []string
	FactsFile string
	Snapshot  string
	Database  string
	CheckAll  bool
	CountAll  bool
	Metrics   bool

	// pick only
	SaveFacts    string
	SaveSnapshot string
}

// RuleMatch is one selected rule in a query result.
type RuleMatch struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Bucket  string `json:"bucket"`
	Matches int    `json:"matches"`
}

// ChangeSummary is a write-back with its values rendered as text.
type ChangeSummary struct {
	Fact string `json:"fact"`
	Mode string `json:"mode"`
	Old  string `json:"old"`
	New  string `json:"new"`
}

// PickSummary is one pick event in a query result.
type PickSummary struct {
	ID       string          `json:"id"`
	Seq      int64           `json:"seq"`
	Rule     int             `json:"rule"`
	RuleName string          `json:"rule_name"`
	Payload  string          `json:"payload,omitempty"`
	Changes  []ChangeSummary `json:"changes,omitempty"`
}

// QueryResult is the JSON result of peek and pick.
type QueryResult struct {
	Mode      string         `json:"mode"`
	Bucket    string         `json:"bucket,omitempty"`
	BestCount int            `json:"best_count"`
	Count     int            `json:"count"`
	Rules     []RuleMatch    `json:"rules"`
	Picks     []PickSummary  `json:"picks,omitempty"`
	Facts     []facts.Record `json:"facts,omitempty"`
}

// NewPeekCommand creates the peek command.
func NewPeekCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "peek [catalog]",
		Short: "Score rules against facts without changing them",
		Long: `Score the catalog's rules against the given facts and list the rules
that would be picked. Facts are assembled from, in order: a stored
snapshot (--snapshot), a CSV dump (--facts) and --fact flags.

Modes:
  best    rules tied for the highest match count (default)
  valid   every rule whose tests all pass
  bucket  best rules of one bucket, after applying its seeds`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, args, false)
		},
	}

	addQueryFlags(cmd, opts)
	return cmd
}

// NewPickCommand creates the pick command.
func NewPickCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pick [catalog]",
		Short: "Pick the best rules and apply their write-backs",
		Long: `Score rules like peek, then pick every selected rule: its write-backs
are applied in rule order and its payload is rendered.

With --db each pick is appended to the pick log and --save-snapshot
stores the resulting facts under a name for a later --snapshot.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, args, true)
		},
	}

	addQueryFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.SaveFacts, "save-facts", "", "write the facts after picking to this CSV file")
	cmd.Flags().StringVar(&opts.SaveSnapshot, "save-snapshot", "", "store the facts after picking as a named snapshot (requires --db)")
	return cmd
}

func addQueryFlags(cmd *cobra.Command, opts *QueryOptions) {
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "query mode (best|valid|bucket)")
	cmd.Flags().StringVar(&opts.Bucket, "bucket", "", "bucket to query (implies --mode bucket)")
	cmd.Flags().IntVar(&opts.Start, "start", 0, "first rule index to scan")
	cmd.Flags().IntVar(&opts.End, "end", -1, "rule index to stop before (-1 for all rules)")
	cmd.Flags().StringArrayVar(&opts.Facts, "fact", nil, "set a fact, name=value (repeatable)")
	cmd.Flags().StringVar(&opts.FactsFile, "facts", "", "load facts from a CSV dump")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", "", "load facts from a stored snapshot (requires --db)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite database (default from config)")
	cmd.Flags().BoolVar(&opts.CheckAll, "check-all", false, "disable pruning and score every rule")
	cmd.Flags().BoolVar(&opts.CountAll, "count-all", false, "keep counting matches after a rule fails")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print engine metrics to stderr")
}

func (o *QueryOptions) mode() (string, error) {
	mode := o.Mode
	if mode == "" {
		mode = ModeBest
		if o.Bucket != "" {
			mode = ModeBucket
		}
	}
	if !slices.Contains(ValidModes, mode) {
		return "", fmt.Errorf("invalid mode %q: must be one of %v", mode, ValidModes)
	}
	return mode, nil
}

func (o *QueryOptions) database() string {
	if o.Database != "" {
		return o.Database
	}
	return o.config().Database
}

func (o *QueryOptions) settings() match.Settings {
	set := o.config().Match
	set.CheckAllRules = set.CheckAllRules || o.CheckAll
	set.CountAllFactMatches = set.CountAllFactMatches || o.CountAll
	return set
}

func runQuery(cmd *cobra.Command, opts *QueryOptions, args []string, pick bool) error {
	ctx := commandContext(cmd)
	f := opts.formatter(cmd)

	path, err := opts.catalogArg(args)
	if err != nil {
		return err
	}
	mode, err := opts.mode()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeBadQuery, "invalid query", err)
	}

	dbPath := opts.database()
	if (opts.Snapshot != "" || opts.SaveSnapshot != "") && dbPath == "" {
		return f.Fail(ExitCommandError, ErrCodeStore, "snapshots need a database", errors.New("set --db or database in the config"))
	}

	var db *store.Store
	var engineOpts []engine.Option
	if dbPath != "" {
		db, err = store.Open(dbPath)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
		}
		defer db.Close()

		// Resume sequence numbers after the last logged pick.
		last, err := db.LastPickSeq(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to read pick log", err)
		}
		engineOpts = append(engineOpts, engine.WithClock(engine.NewClockAt(last)))
	}

	s, err := openSession(ctx, opts.RootOptions, path, f.GetErrWriter(), opts.Metrics, engineOpts...)
	if err != nil {
		return f.Fail(ExitCommandError, engineErrorCode(err), "failed to load catalog", err)
	}
	defer s.close()
	eng := s.engine

	if err := loadQueryFacts(ctx, s, db, opts); err != nil {
		return f.Fail(ExitCommandError, ErrCodeBadFact, "failed to set facts", err)
	}

	start, end := opts.Start, opts.End
	if end < 0 {
		end = eng.RuleCount()
	}
	if mode != ModeBucket && (start < 0 || start > end || end > eng.RuleCount()) {
		return f.Fail(ExitCommandError, ErrCodeBadQuery, "invalid query",
			fmt.Errorf("rule range [%d, %d) outside [0, %d)", start, end, eng.RuleCount()))
	}

	var events []engine.PickEvent
	if pick {
		unsubscribe := eng.OnRulePicked(func(ev engine.PickEvent) {
			events = append(events, ev)
		})
		defer unsubscribe()
	}

	set := opts.settings()
	switch {
	case mode == ModeBest && pick:
		eng.PickBest(set, start, end)
	case mode == ModeBest:
		eng.PeekBest(set, start, end)
	case mode == ModeValid && pick:
		eng.PickValid(set, start, end)
	case mode == ModeValid:
		eng.PeekValid(set, start, end)
	case pick:
		eng.PickBucket(opts.Bucket, set)
	default:
		eng.PeekBucket(opts.Bucket, set)
	}

	result := QueryResult{
		Mode:      mode,
		Bucket:    opts.Bucket,
		BestCount: eng.BestCount(),
		Rules:     []RuleMatch{},
	}
	selected := eng.BestRules()
	if mode == ModeValid {
		selected = eng.ValidRules()
	}
	for _, i := range selected {
		r, _ := eng.Rule(i)
		n, _ := eng.MatchesFor(i)
		result.Rules = append(result.Rules, RuleMatch{Index: i, Name: r.Name, Bucket: r.BucketName(), Matches: n})
	}
	result.Count = len(result.Rules)

	if pick {
		names := s.factNames()
		for _, ev := range events {
			result.Picks = append(result.Picks, summarizePick(s, names, ev))
			if db != nil {
				if err := db.RecordPick(ctx, ev, eng.CatalogHash()); err != nil {
					return f.Fail(ExitCommandError, ErrCodeStore, "failed to record pick", err)
				}
			}
		}
		result.Facts = eng.ExportFacts()

		if err := savePickedFacts(ctx, s, db, opts); err != nil {
			return f.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to save facts", err)
		}
	}

	if f.JSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		printQuery(f, result, pick)
	}

	if s.registry != nil && (opts.Metrics || opts.Verbose) {
		if err := writeMetrics(f.GetErrWriter(), s.registry); err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to gather metrics", err)
		}
	}
	return nil
}

// loadQueryFacts applies, in order, the snapshot, the CSV dump and the
// --fact flags.
func loadQueryFacts(ctx context.Context, s *session, db *store.Store, opts *QueryOptions) error {
	if opts.Snapshot != "" {
		snap, err := db.LoadSnapshot(ctx, opts.Snapshot)
		if err != nil {
			return fmt.Errorf("snapshot %q: %w", opts.Snapshot, err)
		}
		if snap.CatalogHash != s.engine.CatalogHash() {
			s.logger.Warn("snapshot was taken under a different catalog",
				"snapshot", snap.Name, "snapshot_hash", snap.CatalogHash, "catalog_hash", s.engine.CatalogHash())
		}
		s.engine.ImportFacts(snap.Records)
	}

	if opts.FactsFile != "" {
		in, err := os.Open(opts.FactsFile)
		if err != nil {
			return err
		}
		defer in.Close()
		if _, err := s.engine.LoadFacts(in); err != nil {
			return err
		}
	}

	return s.applyFactFlags(opts.Facts)
}

func savePickedFacts(ctx context.Context, s *session, db *store.Store, opts *QueryOptions) error {
	if opts.SaveFacts != "" {
		out, err := os.Create(opts.SaveFacts)
		if err != nil {
			return err
		}
		if err := s.engine.SaveFacts(out); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	}

	if opts.SaveSnapshot != "" {
		return db.SaveSnapshot(ctx, store.Snapshot{
			Name:        opts.SaveSnapshot,
			CatalogHash: s.engine.CatalogHash(),
			Seq:         s.engine.Clock().Current(),
			Records:     s.engine.ExportFacts(),
		})
	}
	return nil
}

func summarizePick(s *session, names []string, ev engine.PickEvent) PickSummary {
	out := PickSummary{
		ID:       ev.ID,
		Seq:      ev.Seq,
		Rule:     ev.Rule,
		RuleName: ev.RuleName,
		Payload:  ev.Payload,
	}
	defs := s.engine.FactDefs()
	for _, c := range ev.Changes {
		cs := ChangeSummary{Mode: c.Mode.String()}
		if int(c.Fact) < len(names) {
			cs.Fact = names[c.Fact]
		}
		if int(c.Fact) < len(defs) && defs[c.Fact].Kind == facts.KindString {
			cs.Old, _ = s.engine.StringText(int(c.Old))
			cs.New, _ = s.engine.StringText(int(c.New))
		} else {
			cs.Old = formatValue(c.Old)
			cs.New = formatValue(c.New)
		}
		out.Changes = append(out.Changes, cs)
	}
	return out
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func printQuery(f *OutputFormatter, r QueryResult, pick bool) {
	w := f.Writer
	label := r.Mode
	if r.Mode == ModeBucket {
		label = fmt.Sprintf("bucket %q", r.Bucket)
	}

	if r.Count == 0 {
		fmt.Fprintf(w, "%s: no rules matched\n", label)
	} else if r.Mode == ModeValid {
		fmt.Fprintf(w, "%s: %d valid rule(s)\n", label, r.Count)
	} else {
		fmt.Fprintf(w, "%s: %d rule(s) with %d match(es)\n", label, r.Count, r.BestCount)
	}
	for _, m := range r.Rules {
		fmt.Fprintf(w, "  [%d] %-24s %-12s %d\n", m.Index, m.Name, m.Bucket, m.Matches)
	}

	if !pick {
		return
	}
	for _, p := range r.Picks {
		fmt.Fprintf(w, "picked #%d %s", p.Seq, p.RuleName)
		if p.Payload != "" {
			fmt.Fprintf(w, ": %s", p.Payload)
		}
		fmt.Fprintln(w)
		for _, c := range p.Changes {
			fmt.Fprintf(w, "    %s %s: %s -> %s\n", c.Fact, c.Mode, c.Old, c.New)
		}
	}
}

// engineErrorCode maps engine init failures to CLI codes.
func engineErrorCode(err error) string {
	var lerr *LoadError
	if errors.As(err, &lerr) {
		return lerr.Code
	}
	if engine.IsVoidedError(err) {
		return ErrCodeCatalogErrors
	}
	return ErrCodeEngine
}
