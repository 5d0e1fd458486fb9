package match

import "unsafe"

// Settings tunes a single scan.
type Settings struct {
	// CheckAllRules disables pruning and collects every valid rule.
	CheckAllRules bool `yaml:"check_all_rules" json:"check_all_rules"`
	// CountAllFactMatches keeps evaluating a rule after it turns invalid so
	// its count reflects every passing test.
	CountAllFactMatches bool `yaml:"count_all_fact_matches" json:"count_all_fact_matches"`
}

// NoBest is the BestCount of a scan in which no rule scored.
const NoBest = -1

// Result holds the outcome of a scan. Its buffers are sized for the whole
// catalog once and reused by every scan.
type Result struct {
	// Best holds the rule indices tied for BestCount, in scan order.
	Best []int
	// BestCount is the winning match count, or NoBest.
	BestCount int
	// Signed is indexed by rule index: +count for a valid rule, -count for
	// an invalid one. Only entries with Scanned set are meaningful.
	Signed []int
	// Scanned marks rules evaluated by the last scan (pruned rules are not).
	Scanned []bool
	// Valid lists valid rule indices; filled only with CheckAllRules.
	Valid []int

	valid []bool
}

// NewResult allocates a result for a catalog of n rules.
func NewResult(n int) *Result {
	return &Result{
		Best:      make([]int, 0, n),
		BestCount: NoBest,
		Signed:    make([]int, n),
		Scanned:   make([]bool, n),
		Valid:     make([]int, 0, n),
		valid:     make([]bool, n),
	}
}

// Reset clears the result without releasing buffers.
func (r *Result) Reset() {
	r.Best = r.Best[:0]
	r.BestCount = NoBest
	r.Valid = r.Valid[:0]
	clear(r.Signed)
	clear(r.Scanned)
	clear(r.valid)
}

// MatchesFor returns the match count of a rule from the last scan and
// whether it was valid. A rule the scan did not evaluate reports (0, false).
//
// The explicit flag disambiguates an invalid rule with zero passing tests,
// which Signed encodes as 0.
func (r *Result) MatchesFor(rule int) (count int, valid bool) {
	if rule < 0 || rule >= len(r.Signed) || !r.Scanned[rule] {
		return 0, false
	}
	count = r.Signed[rule]
	if count < 0 {
		count = -count
	}
	return count, r.valid[rule]
}

// Clone returns a deep copy of r.
func (r *Result) Clone() *Result {
	return &Result{
		Best:      append([]int(nil), r.Best...),
		BestCount: r.BestCount,
		Signed:    append([]int(nil), r.Signed...),
		Scanned:   append([]bool(nil), r.Scanned...),
		Valid:     append([]int(nil), r.Valid...),
		valid:     append([]bool(nil), r.valid...),
	}
}

// Len returns the number of rules the result is sized for.
func (r *Result) Len() int {
	return len(r.Signed)
}

// Bytes reports the memory held by the result buffers.
func (r *Result) Bytes() int {
	word := int(unsafe.Sizeof(int(0)))
	return (cap(r.Best)+cap(r.Signed)+cap(r.Valid))*word + cap(r.Scanned) + cap(r.valid)
}

func (r *Result) record(rule, count int, valid bool) {
	r.Scanned[rule] = true
	r.valid[rule] = valid
	if valid {
		r.Signed[rule] = count
	} else {
		r.Signed[rule] = -count
	}
}

// rank folds one evaluated rule into the best set.
func (r *Result) rank(rule, count int, valid bool, best *int) {
	switch {
	case !valid:
	case count > *best:
		*best = count
		r.Best = append(r.Best[:0], rule)
	case count == *best && count >= 1:
		r.Best = append(r.Best, rule)
	}
}
