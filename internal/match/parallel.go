package match

import (
	"golang.org/x/sync/errgroup"
)

// scanParallel evaluates every rule in [start, end) across workers, each
// writing only its own slots, then ranks them serially in index order.
// Ranking replays the serial pruning decision, so the result is identical
// to a serial scan; pruned rules were evaluated but are not recorded.
func (s *Scanner) scanParallel(f Facts, start, end int, set Settings, out *Result) {
	n := end - start
	chunk := (n + s.workers - 1) / s.workers

	var g errgroup.Group
	for lo := start; lo < end; lo += chunk {
		lo, hi := lo, min(lo+chunk, end)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				r := &s.rules[i]
				s.counts[i], s.valid[i] = Evaluate(s.tests[r.TestStart:r.TestStart+r.TestCount], f, set.CountAllFactMatches)
			}
			return nil
		})
	}
	// workers never fail
	_ = g.Wait()

	best := 0
	for i := start; i < end; i++ {
		if !set.CheckAllRules && s.rules[i].TestCount < best {
			continue
		}
		count, valid := s.counts[i], s.valid[i]
		out.record(i, count, valid)
		if set.CheckAllRules && valid {
			out.Valid = append(out.Valid, i)
		}
		out.rank(i, count, valid, &best)
	}
	if len(out.Best) > 0 {
		out.BestCount = best
	}
}
