package catalog

import (
	"github.com/roach88/quip/internal/facts"
)

// Validate checks the structural invariants the matcher depends on.
// It never stops at the first problem.
func Validate(c *Catalog) Problems {
	var ps Problems

	if len(c.Facts) == 0 || c.Facts[facts.DevNull].Name != facts.DevNullName {
		ps = append(ps, errorf(nil, "fact 0 must be %q", facts.DevNullName))
	}
	if len(c.Strings) < 2 || c.Strings[facts.StringFalse] != "false" || c.Strings[facts.StringTrue] != "true" {
		ps = append(ps, errorf(nil, "strings 0 and 1 must be \"false\" and \"true\""))
	}

	seenStrings := make(map[string]bool, len(c.Strings))
	for _, str := range c.Strings {
		if str == "" {
			ps = append(ps, errorf(nil, "empty string in string table; empty means unset"))
			continue
		}
		if seenStrings[str] {
			ps = append(ps, errorf(nil, "duplicate string %q", str))
		}
		seenStrings[str] = true
	}

	factNames := make(map[string]bool, len(c.Facts))
	for _, f := range c.Facts {
		if err := facts.CheckName(f.Name); err != nil {
			ps = append(ps, errorf(nil, "%v", err))
		}
		if factNames[f.Name] {
			ps = append(ps, errorf(nil, "duplicate fact %q", f.Name))
		}
		factNames[f.Name] = true
	}

	buckets := make(map[string]bool, len(c.Buckets))
	for _, b := range c.Buckets {
		if buckets[b.Name] {
			ps = append(ps, errorf(nil, "duplicate bucket %q", b.Name))
		}
		buckets[b.Name] = true
		for _, s := range b.Seeds {
			if !c.validFact(s.Fact) {
				ps = append(ps, errorf(nil, "bucket %q seeds unknown fact %d", b.Name, s.Fact))
			}
		}
	}

	owner := make([]int, len(c.Tests))
	for i := range owner {
		owner[i] = -1
	}
	ids := make(map[int]bool, len(c.Rules))
	names := make(map[string]bool, len(c.Rules))

	for i := range c.Rules {
		r := &c.Rules[i]
		if ids[r.ID] {
			ps = append(ps, errorf(r, "duplicate rule id %d", r.ID))
		}
		ids[r.ID] = true
		if r.Name != "" {
			if names[r.Name] {
				ps = append(ps, errorf(r, "duplicate rule name %q", r.Name))
			}
			names[r.Name] = true
		}

		if r.TestStart < 0 || r.TestCount < 0 || r.TestStart+r.TestCount > len(c.Tests) {
			ps = append(ps, errorf(r, "rule %q test range [%d,+%d) outside %d tests", r.Name, r.TestStart, r.TestCount, len(c.Tests)))
			continue
		}
		if r.TestCount == 0 {
			ps = append(ps, warnf(r, "rule %q has no tests and can never score", r.Name))
		}
		if len(c.Buckets) > 0 && !buckets[r.BucketName()] && r.Bucket != "" {
			ps = append(ps, warnf(r, "rule %q names undeclared bucket %q", r.Name, r.Bucket))
		}

		prevGroup := NoOrGroup
		for j := r.TestStart; j < r.TestStart+r.TestCount; j++ {
			if owner[j] != -1 {
				ps = append(ps, errorf(r, "rule %q shares test %d with rule %d", r.Name, j, owner[j]))
			}
			owner[j] = r.ID

			t := c.Tests[j]
			if t.RuleID != r.ID {
				ps = append(ps, errorf(r, "test %d claims rule %d, owned by rule %d", j, t.RuleID, r.ID))
			}
			if !c.validFact(t.Fact) {
				ps = append(ps, errorf(r, "rule %q tests unknown fact %d", r.Name, t.Fact))
			}
			if t.OrGroup < prevGroup {
				ps = append(ps, errorf(r, "rule %q tests are not ordered by or-group", r.Name))
			}
			prevGroup = t.OrGroup
			if !(t.Compare.Lower < t.Compare.Upper) && !t.Compare.Negate {
				ps = append(ps, warnf(r, "rule %q has a test on fact %d that can never match", r.Name, t.Fact))
			}
		}

		for _, w := range r.Writes {
			if int(w.Mode) >= len(writeModeNames) {
				ps = append(ps, errorf(r, "rule %q has unknown write mode %d", r.Name, w.Mode))
			}
			if !c.validFact(w.Fact) {
				ps = append(ps, errorf(r, "rule %q writes unknown fact %d", r.Name, w.Fact))
			}
			if w.Mode.UsesSource() && !c.validFact(w.Source) {
				ps = append(ps, errorf(r, "rule %q reads unknown fact %d", r.Name, w.Source))
			}
		}
	}

	return ps
}

func (c *Catalog) validFact(id facts.FactID) bool {
	return id >= 0 && int(id) < len(c.Facts)
}
