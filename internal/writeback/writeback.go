// Package writeback applies a picked rule's fact mutations.
//
// Writes run in declaration order and take effect immediately: a later
// write in the same rule, or a write from the next rule picked in the same
// batch, sees the new value. There is no rollback.
package writeback

import (
	"github.com/roach88/quip/internal/catalog"
	"github.com/roach88/quip/internal/facts"
)

// Store is the fact access write-back needs.
type Store interface {
	Get(id facts.FactID) float64
	Set(id facts.FactID, v float64) bool
	Len() int
}

// Change records one applied write.
type Change struct {
	Fact facts.FactID      `json:"fact"`
	Mode catalog.WriteMode `json:"mode"`
	Old  float64           `json:"old"`
	New  float64           `json:"new"`
}

// Apply executes every write of r against s and returns what changed.
// Writes whose target or source is out of range are skipped.
func Apply(r *catalog.Rule, s Store) []Change {
	if len(r.Writes) == 0 {
		return nil
	}
	changes := make([]Change, 0, len(r.Writes))
	for _, w := range r.Writes {
		if c, ok := applyOne(w, s); ok {
			changes = append(changes, c)
		}
	}
	return changes
}

func applyOne(w catalog.FactWrite, s Store) (Change, bool) {
	if !inRange(w.Fact, s) {
		return Change{}, false
	}
	if w.Mode.UsesSource() && !inRange(w.Source, s) {
		return Change{}, false
	}

	old := s.Get(w.Fact)
	var v float64
	switch w.Mode {
	case catalog.SetValue, catalog.SetString:
		v = w.Value
	case catalog.Increment:
		v = old + w.Value
	case catalog.Subtract:
		v = old - w.Value
	case catalog.SetFromOtherFact:
		v = s.Get(w.Source)
	case catalog.IncrementByOtherFact:
		v = old + s.Get(w.Source)
	case catalog.SubtractByOtherFact:
		v = old - s.Get(w.Source)
	default:
		return Change{}, false
	}
	s.Set(w.Fact, v)
	return Change{Fact: w.Fact, Mode: w.Mode, Old: old, New: v}, true
}

func inRange(id facts.FactID, s Store) bool {
	return id >= 0 && int(id) < s.Len()
}

// Touched returns the distinct facts a change list wrote, in first-write
// order.
func Touched(changes []Change) []facts.FactID {
	seen := make(map[facts.FactID]bool, len(changes))
	var out []facts.FactID
	for _, c := range changes {
		if !seen[c.Fact] {
			seen[c.Fact] = true
			out = append(out, c.Fact)
		}
	}
	return out
}
