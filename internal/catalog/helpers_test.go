package catalog

import "github.com/roach88/quip/internal/facts"

// newTestCatalog builds a catalog with the named numeric facts after
// dev_null and no rules.
func newTestCatalog(factNames ...string) *Catalog {
	c := Void()
	for _, n := range factNames {
		c.Facts = append(c.Facts, facts.Def{Name: n, Kind: facts.KindValue})
	}
	return c
}

// addRule appends a rule whose tests are all strict and ungrouped.
func addRule(c *Catalog, name, bucket string, fs ...facts.FactID) {
	id := len(c.Rules)
	r := Rule{ID: id, Name: name, Bucket: bucket, TestStart: len(c.Tests), TestCount: len(fs)}
	for _, f := range fs {
		c.Tests = append(c.Tests, FactTest{Fact: f, Compare: Equal(1), RuleID: id, OrGroup: NoOrGroup, Strict: true})
	}
	c.Rules = append(c.Rules, r)
}
