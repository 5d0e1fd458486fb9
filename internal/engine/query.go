package engine

import (
	"time"

	"github.com/roach88/quip/internal/catalog"
	"github.com/roach88/quip/internal/match"
	"github.com/roach88/quip/internal/writeback"
)

// Scan modes, also used as metric labels.
const (
	modeBest   = "best"
	modeValid  = "valid"
	modeBucket = "bucket"
)

// PeekBest scans rules [start, end) and returns how many rules tie for the
// best match count. Facts are not modified.
func (e *Engine) PeekBest(set match.Settings, start, end int) int {
	if !e.lockReady("peek_best") {
		return 0
	}
	defer e.mu.Unlock()

	e.scan(modeBest, set, start, end)
	return len(e.result.Best)
}

// PeekValid scans rules [start, end) without pruning and returns how many
// rules are valid. Facts are not modified.
func (e *Engine) PeekValid(set match.Settings, start, end int) int {
	if !e.lockReady("peek_valid") {
		return 0
	}
	defer e.mu.Unlock()

	set.CheckAllRules = true
	e.scan(modeValid, set, start, end)
	return len(e.result.Valid)
}

// PeekBucket applies the bucket's seeds, scans its rules and returns how
// many rules tie for best. An unknown bucket falls back to the default
// bucket.
//
// Unlike the other peeks this writes to the facts: the seeds stay applied
// after it returns, exactly as Bucket and PickBucket leave them. No
// write-backs run.
func (e *Engine) PeekBucket(name string, set match.Settings) int {
	if !e.lockReady("peek_bucket") {
		return 0
	}
	defer e.mu.Unlock()

	b := e.bucket(name)
	e.scan(modeBucket, set, b.Start, b.End)
	return len(e.result.Best)
}

// PickBest scans like PeekBest, then applies the write-backs of every rule
// tied for best, in rule order. It returns the number of rules picked.
func (e *Engine) PickBest(set match.Settings, start, end int) int {
	if !e.lockReady("pick_best") {
		return 0
	}
	events := e.pickLocked(func() []int {
		e.scan(modeBest, set, start, end)
		return e.result.Best
	})

	e.dispatch(events)
	return len(events)
}

// PickValid scans like PeekValid, then applies the write-backs of every
// valid rule, in rule order. It returns the number of rules picked.
func (e *Engine) PickValid(set match.Settings, start, end int) int {
	if !e.lockReady("pick_valid") {
		return 0
	}
	set.CheckAllRules = true
	events := e.pickLocked(func() []int {
		e.scan(modeValid, set, start, end)
		return e.result.Valid
	})

	e.dispatch(events)
	return len(events)
}

// PickBucket scans like PeekBucket, then applies the write-backs of every
// rule tied for best.
func (e *Engine) PickBucket(name string, set match.Settings) int {
	if !e.lockReady("pick_bucket") {
		return 0
	}
	events := e.pickLocked(func() []int {
		b := e.bucket(name)
		e.scan(modeBucket, set, b.Start, b.End)
		return e.result.Best
	})

	e.dispatch(events)
	return len(events)
}

// Bucket resolves a bucket, applies its seeds and returns its rule range.
// An unknown name falls back to the default bucket, then to an empty range.
func (e *Engine) Bucket(name string) catalog.BucketSlice {
	if !e.lockReady("bucket") {
		return catalog.EmptySlice
	}
	defer e.mu.Unlock()
	return e.bucket(name)
}

// BestRules returns the rules tied for best in the last scan.
func (e *Engine) BestRules() []int {
	if !e.lockReady("best_rules") {
		return nil
	}
	defer e.mu.Unlock()
	return append([]int(nil), e.result.Best...)
}

// BestCount returns the best match count of the last scan.
func (e *Engine) BestCount() int {
	if !e.lockReady("best_count") {
		return match.NoBest
	}
	defer e.mu.Unlock()
	return e.result.BestCount
}

// ValidRules returns the valid rules of the last PeekValid or PickValid.
func (e *Engine) ValidRules() []int {
	if !e.lockReady("valid_rules") {
		return nil
	}
	defer e.mu.Unlock()
	return append([]int(nil), e.result.Valid...)
}

// LastResult returns a copy of the last scan's result.
func (e *Engine) LastResult() *match.Result {
	if !e.lockReady("last_result") {
		return nil
	}
	defer e.mu.Unlock()
	return e.result.Clone()
}

// SignedCounts returns a copy of the per-rule signed counts of the last
// scan: positive for valid rules, negative for invalid ones, zero for rules
// that were not evaluated or scored nothing.
func (e *Engine) SignedCounts() []int {
	if !e.lockReady("signed_counts") {
		return nil
	}
	defer e.mu.Unlock()
	return append([]int(nil), e.result.Signed...)
}

// MatchesFor returns the last scan's match count for rule and whether the
// rule was valid.
func (e *Engine) MatchesFor(rule int) (count int, valid bool) {
	if !e.lockReady("matches_for") {
		return 0, false
	}
	defer e.mu.Unlock()
	return e.result.MatchesFor(rule)
}

// RuleCount returns the number of loaded rules.
func (e *Engine) RuleCount() int {
	if !e.lockReady("rule_count") {
		return 0
	}
	defer e.mu.Unlock()
	return len(e.cat.Rules)
}

// RuleIndex returns the sorted index of the named rule, or -1.
func (e *Engine) RuleIndex(name string) int {
	if !e.lockReady("rule_index") {
		return -1
	}
	defer e.mu.Unlock()
	if i, ok := e.ruleByName[name]; ok {
		return i
	}
	if e.diagnostics {
		e.logger.Debug("unknown rule", "name", name)
	}
	return -1
}

// Rule returns a copy of the rule at index.
func (e *Engine) Rule(index int) (catalog.Rule, bool) {
	if !e.lockReady("rule") {
		return catalog.Rule{}, false
	}
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.cat.Rules) {
		return catalog.Rule{}, false
	}
	r := e.cat.Rules[index]
	r.Writes = append([]catalog.FactWrite(nil), r.Writes...)
	return r, true
}

// Buckets returns the bucket ranges in scan order.
func (e *Engine) Buckets() []catalog.BucketSlice {
	if !e.lockReady("buckets") {
		return nil
	}
	defer e.mu.Unlock()
	return append([]catalog.BucketSlice(nil), e.index.Slices()...)
}

// scan runs the scanner into the shared result. Caller holds e.mu.
func (e *Engine) scan(mode string, set match.Settings, start, end int) {
	began := time.Now()
	n := e.scanner.Scan(e.store, start, end, set, e.result)
	e.metrics.ObserveScan(mode, n, time.Since(began))
}

// pickLocked runs scan, picks the rules it returns and releases e.mu.
// Caller holds e.mu.
func (e *Engine) pickLocked(scan func() []int) []PickEvent {
	defer e.mu.Unlock()
	return e.pick(scan())
}

// bucket resolves name and applies its seeds. Caller holds e.mu.
func (e *Engine) bucket(name string) catalog.BucketSlice {
	b, found := e.index.Lookup(name)
	if !found && e.diagnostics {
		e.logger.Debug("unknown bucket, using fallback", "name", name, "fallback", b.Name)
	}
	for _, s := range b.Seeds {
		e.store.Set(s.Fact, s.Value)
	}
	return b
}

// pick applies the write-backs of rules in order and builds one event per
// rule. Caller holds e.mu.
func (e *Engine) pick(rules []int) []PickEvent {
	if len(rules) == 0 {
		return nil
	}
	events := make([]PickEvent, 0, len(rules))
	for _, ri := range rules {
		r := &e.cat.Rules[ri]
		changes := writeback.Apply(r, e.store)
		e.metrics.ObservePick(len(changes))

		ev := PickEvent{
			ID:       e.ids.Generate(),
			Seq:      e.clock.Next(),
			Rule:     ri,
			RuleName: r.Name,
			Payload:  e.render(r.Payload),
			Changes:  changes,
			Affected: e.index.RulesReadingAny(writeback.Touched(changes)),
		}
		events = append(events, ev)

		e.logger.Debug("rule picked",
			"rule", r.Name,
			"index", ri,
			"seq", ev.Seq,
			"writes", len(changes),
		)
	}
	return events
}
