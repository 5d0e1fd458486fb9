package match

import (
	"github.com/roach88/quip/internal/catalog"
	"github.com/roach88/quip/internal/facts"
)

// Facts is the read side of a fact store.
type Facts interface {
	Get(id facts.FactID) float64
}

// Scanner scores ranges of a sorted rule array.
type Scanner struct {
	rules   []catalog.Rule
	tests   []catalog.FactTest
	workers int

	counts []int
	valid  []bool
}

// NewScanner binds a scanner to a sorted catalog. With workers > 1, Scan
// evaluates rules on that many goroutines.
func NewScanner(c *catalog.Catalog, workers int) *Scanner {
	s := &Scanner{
		rules:   c.Rules,
		tests:   c.Tests,
		workers: workers,
	}
	if workers > 1 {
		s.counts = make([]int, len(c.Rules))
		s.valid = make([]bool, len(c.Rules))
	}
	return s
}

// Bytes reports the memory held by parallel scratch buffers.
func (s *Scanner) Bytes() int {
	return cap(s.counts)*8 + cap(s.valid)
}

// Scan scores rules [start, end) into out and returns the number of rules
// in the range after it is clamped to the catalog. An empty or inverted
// range scans nothing. out is reset first.
func (s *Scanner) Scan(f Facts, start, end int, set Settings, out *Result) int {
	start, end = s.clamp(start, end)
	out.Reset()
	if start >= end {
		return 0
	}
	if s.workers > 1 && end-start >= s.workers {
		s.scanParallel(f, start, end, set, out)
		return end - start
	}

	best := 0
	for i := start; i < end; i++ {
		r := &s.rules[i]
		if !set.CheckAllRules && r.TestCount < best {
			continue
		}
		count, valid := Evaluate(s.tests[r.TestStart:r.TestStart+r.TestCount], f, set.CountAllFactMatches)
		out.record(i, count, valid)
		if set.CheckAllRules && valid {
			out.Valid = append(out.Valid, i)
		}
		out.rank(i, count, valid, &best)
	}
	if len(out.Best) > 0 {
		out.BestCount = best
	}
	return end - start
}

func (s *Scanner) clamp(start, end int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > len(s.rules) {
		end = len(s.rules)
	}
	return start, end
}

// Evaluate scores one rule's test block. It returns the number of passing
// tests, counting each OR-group once, and whether the rule is valid.
//
// Evaluation stops at the first failure that invalidates the rule unless
// countAll is set.
func Evaluate(tests []catalog.FactTest, f Facts, countAll bool) (count int, valid bool) {
	valid = true
	group := catalog.NoOrGroup
	hits := 0

	for j := range tests {
		t := &tests[j]

		if t.OrGroup != group {
			if group != catalog.NoOrGroup && hits == 0 {
				valid = false
				if !countAll {
					return count, false
				}
			}
			group = t.OrGroup
			hits = 0
		}

		if t.Compare.Matches(f.Get(t.Fact)) {
			if t.Grouped() {
				hits++
				if hits == 1 {
					count++
				}
			} else {
				count++
			}
			continue
		}

		if !t.Strict {
			continue
		}
		lastInGroup := j == len(tests)-1 || tests[j+1].OrGroup != t.OrGroup
		if !t.Grouped() || (lastInGroup && hits == 0) {
			valid = false
			if !countAll {
				return count, false
			}
		}
	}

	// the trailing group has no boundary after it
	if group != catalog.NoOrGroup && hits == 0 {
		valid = false
	}
	return count, valid
}
