package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/quip/internal/engine"
	"github.com/roach88/quip/internal/store"
)

// PicksOptions holds flags for the picks command.
type PicksOptions struct {
	*RootOptions
	Database string
	After    int64
	Limit    int
	Counts   bool
}

// RuleCount is one row of a picks --counts listing.
type RuleCount struct {
	Rule  string `json:"rule"`
	Picks int    `json:"picks"`
}

// NewPicksCommand creates the picks command.
func NewPicksCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PicksOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "picks",
		Short: "Show the pick log",
		Long: `Show picks recorded by "quip pick --db", ordered by sequence number.

Use --after to page through the log and --counts to see how often each
rule was picked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPicks(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite database (default from config)")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only show picks with a greater sequence number")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of picks to show (0 for all)")
	cmd.Flags().BoolVar(&opts.Counts, "counts", false, "show pick counts per rule instead of events")

	return cmd
}

func runPicks(cmd *cobra.Command, opts *PicksOptions) error {
	ctx := commandContext(cmd)
	f := opts.formatter(cmd)

	path := opts.Database
	if path == "" {
		path = opts.config().Database
	}
	if path == "" {
		return f.Fail(ExitCommandError, ErrCodeStore, "no database", errors.New("set --db or database in the config"))
	}

	db, err := store.Open(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer db.Close()

	if opts.Counts {
		counts, err := db.CountPicks(ctx)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to count picks", err)
		}
		rows := sortedCounts(counts)
		if f.JSON() {
			return f.Success(rows)
		}
		w := cmd.OutOrStdout()
		if len(rows) == 0 {
			fmt.Fprintln(w, "No picks recorded")
		}
		for _, r := range rows {
			fmt.Fprintf(w, "%-24s %d\n", r.Rule, r.Picks)
		}
		return nil
	}

	events, err := db.ReadPicks(ctx, opts.After, opts.Limit)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to read picks", err)
	}

	if f.JSON() {
		return f.Success(events)
	}
	printPicks(f, events)
	return nil
}

// sortedCounts orders counts by descending picks, then rule name.
func sortedCounts(counts map[string]int) []RuleCount {
	rows := make([]RuleCount, 0, len(counts))
	for rule, n := range counts {
		rows = append(rows, RuleCount{Rule: rule, Picks: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Picks != rows[j].Picks {
			return rows[i].Picks > rows[j].Picks
		}
		return rows[i].Rule < rows[j].Rule
	})
	return rows
}

func printPicks(f *OutputFormatter, events []engine.PickEvent) {
	w := f.Writer
	if len(events) == 0 {
		fmt.Fprintln(w, "No picks recorded")
		return
	}
	for _, ev := range events {
		fmt.Fprintf(w, "#%-5d %-24s %d change(s)", ev.Seq, ev.RuleName, len(ev.Changes))
		if ev.Payload != "" {
			fmt.Fprintf(w, "  %s", ev.Payload)
		}
		fmt.Fprintln(w)
		if f.Verbose {
			fmt.Fprintf(w, "       id=%s affected=%v\n", ev.ID, ev.Affected)
		}
	}
}
