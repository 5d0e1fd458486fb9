package testutil

import (
	"github.com/roach88/quip/internal/catalog"
	"github.com/roach88/quip/internal/facts"
)

// CatalogBuilder assembles small catalogs for tests without going through
// the CUE compiler. Facts are created on first mention.
//
// Example:
//
//	b := testutil.NewCatalog()
//	b.Rule("greet").Test("met", catalog.Equal(1)).Payload("hello").Done()
//	c := b.Build()
type CatalogBuilder struct {
	c       *catalog.Catalog
	strs    *facts.StringTable
	factIDs map[string]facts.FactID
}

// NewCatalog starts an empty catalog holding only dev_null.
func NewCatalog() *CatalogBuilder {
	b := &CatalogBuilder{
		c:       catalog.Void(),
		strs:    facts.NewStringTable(),
		factIDs: map[string]facts.FactID{facts.DevNullName: facts.DevNull},
	}
	return b
}

// Fact returns the id of a numeric fact, declaring it if needed.
func (b *CatalogBuilder) Fact(name string) facts.FactID {
	return b.declare(name, facts.KindValue)
}

// StringFact returns the id of a string fact, declaring it if needed.
func (b *CatalogBuilder) StringFact(name string) facts.FactID {
	return b.declare(name, facts.KindString)
}

// Str interns text and returns its id as a fact value.
func (b *CatalogBuilder) Str(text string) float64 {
	return float64(b.strs.Intern(text))
}

func (b *CatalogBuilder) declare(name string, kind facts.Kind) facts.FactID {
	if id, ok := b.factIDs[name]; ok {
		return id
	}
	id := facts.FactID(len(b.c.Facts))
	b.c.Facts = append(b.c.Facts, facts.Def{Name: name, Kind: kind})
	b.factIDs[name] = id
	return id
}

// Bucket declares a bucket with optional seeds given as fact name/value
// pairs.
func (b *CatalogBuilder) Bucket(name string, seeds map[string]float64) *CatalogBuilder {
	def := catalog.BucketDef{Name: name}
	for fact, v := range seeds {
		def.Seeds = append(def.Seeds, catalog.Seed{Fact: b.Fact(fact), Value: v})
	}
	b.c.Buckets = append(b.c.Buckets, def)
	return b
}

// Rule starts a rule. Call Done to add it.
func (b *CatalogBuilder) Rule(name string) *RuleBuilder {
	return &RuleBuilder{
		b:    b,
		rule: catalog.Rule{ID: len(b.c.Rules), Name: name},
	}
}

// Build returns the catalog. The builder must not be used afterwards.
func (b *CatalogBuilder) Build() *catalog.Catalog {
	b.c.Strings = b.strs.Strings()
	return b.c
}

// RuleBuilder accumulates one rule's tests and writes.
type RuleBuilder struct {
	b     *CatalogBuilder
	rule  catalog.Rule
	tests []catalog.FactTest
}

// In assigns the rule to a bucket.
func (r *RuleBuilder) In(bucket string) *RuleBuilder {
	r.rule.Bucket = bucket
	return r
}

// Test adds a strict, ungrouped test.
func (r *RuleBuilder) Test(fact string, cmp catalog.FactCompare) *RuleBuilder {
	return r.add(fact, cmp, catalog.NoOrGroup, true)
}

// Loose adds a non-strict, ungrouped test.
func (r *RuleBuilder) Loose(fact string, cmp catalog.FactCompare) *RuleBuilder {
	return r.add(fact, cmp, catalog.NoOrGroup, false)
}

// Or adds a strict member of OR-group g.
func (r *RuleBuilder) Or(g int, fact string, cmp catalog.FactCompare) *RuleBuilder {
	return r.add(fact, cmp, g, true)
}

func (r *RuleBuilder) add(fact string, cmp catalog.FactCompare, group int, strict bool) *RuleBuilder {
	r.tests = append(r.tests, catalog.FactTest{
		Fact:    r.b.Fact(fact),
		Compare: cmp,
		RuleID:  r.rule.ID,
		OrGroup: group,
		Strict:  strict,
	})
	return r
}

// Write adds a write-back. Source is only read by the "other fact" modes.
func (r *RuleBuilder) Write(fact string, mode catalog.WriteMode, value float64, source string) *RuleBuilder {
	w := catalog.FactWrite{Fact: r.b.Fact(fact), Mode: mode, Value: value}
	if source != "" {
		w.Source = r.b.Fact(source)
	}
	r.rule.Writes = append(r.rule.Writes, w)
	return r
}

// Payload sets the rule's response text.
func (r *RuleBuilder) Payload(text string) *RuleBuilder {
	r.rule.Payload = text
	return r
}

// Done appends the rule and its tests to the catalog.
func (r *RuleBuilder) Done() *CatalogBuilder {
	catalog.OrderTests(r.tests)
	r.rule.TestStart = len(r.b.c.Tests)
	r.rule.TestCount = len(r.tests)
	r.b.c.Tests = append(r.b.c.Tests, r.tests...)
	r.b.c.Rules = append(r.b.c.Rules, r.rule)
	return r.b
}
