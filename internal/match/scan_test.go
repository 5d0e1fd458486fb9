package match

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/quip/internal/catalog"
	"github.com/roach88/quip/internal/facts"
	"github.com/roach88/quip/internal/testutil"
)

func build(t *testing.T, b *testutil.CatalogBuilder) (*catalog.Catalog, *facts.Store) {
	t.Helper()
	c, _, ps := catalog.Build(b.Build())
	require.False(t, ps.Fatal(), "%v", ps)
	return c, facts.NewStore(len(c.Facts))
}

func ruleIndex(t *testing.T, c *catalog.Catalog, name string) int {
	t.Helper()
	for i, r := range c.Rules {
		if r.Name == name {
			return i
		}
	}
	t.Fatalf("rule %q not found", name)
	return -1
}

func TestScan_BestAndValid(t *testing.T) {
	b := testutil.NewCatalog()
	b.Rule("A").Test("test1", catalog.Equal(facts.StringTrue)).Test("test2", catalog.Equal(facts.StringTrue)).Done()
	b.Rule("B").Test("test1", catalog.Equal(facts.StringTrue)).Test("test2", catalog.Equal(facts.StringTrue)).Done()
	b.Rule("C").Test("test1", catalog.Equal(facts.StringTrue)).Done()
	c, s := build(t, b)
	s.Set(1, facts.StringTrue)
	s.Set(2, facts.StringTrue)

	sc := NewScanner(c, 1)
	res := NewResult(len(c.Rules))

	sc.Scan(s, 0, len(c.Rules), Settings{}, res)
	assert.Equal(t, []int{ruleIndex(t, c, "A"), ruleIndex(t, c, "B")}, res.Best)
	assert.Equal(t, 2, res.BestCount)
	assert.Empty(t, res.Valid, "valid list needs CheckAllRules")

	sc.Scan(s, 0, len(c.Rules), Settings{CheckAllRules: true}, res)
	assert.Len(t, res.Valid, 3)
	assert.Len(t, res.Best, 2)
}

func TestScan_NoMatch(t *testing.T) {
	b := testutil.NewCatalog()
	b.Rule("r").Test("x", catalog.Equal(5)).Done()
	c, s := build(t, b)

	res := NewResult(len(c.Rules))
	NewScanner(c, 1).Scan(s, 0, len(c.Rules), Settings{}, res)

	assert.Empty(t, res.Best)
	assert.Equal(t, NoBest, res.BestCount)
	count, valid := res.MatchesFor(0)
	assert.Equal(t, 0, count)
	assert.False(t, valid)
}

func TestEvaluate_OrGroupSemantics(t *testing.T) {
	b := testutil.NewCatalog()
	b.Rule("r").
		Test("u", catalog.Equal(1)).
		Or(0, "o1", catalog.Equal(1)).
		Or(0, "o2", catalog.Equal(1)).
		Done()
	c, s := build(t, b)
	tests := c.RuleTests(c.Rules[0])

	for mask := 0; mask < 8; mask++ {
		u, o1, o2 := mask&1 != 0, mask&2 != 0, mask&4 != 0
		s.Set(1, b2f(u))
		s.Set(2, b2f(o1))
		s.Set(3, b2f(o2))

		count, valid := Evaluate(tests, s, true)

		assert.Equal(t, u && (o1 || o2), valid, "mask %03b", mask)
		want := 0
		if u {
			want++
		}
		if o1 || o2 {
			want++
		}
		assert.Equal(t, want, count, "or-group counts once, mask %03b", mask)
	}
}

func TestEvaluate_StrictFailure(t *testing.T) {
	b := testutil.NewCatalog()
	b.Rule("r").
		Test("a", catalog.Equal(1)).
		Test("b", catalog.Equal(1)).
		Test("c", catalog.Equal(1)).
		Done()
	c, s := build(t, b)
	tests := c.RuleTests(c.Rules[0])
	s.Set(2, 1)
	s.Set(3, 1)

	count, valid := Evaluate(tests, s, false)
	assert.False(t, valid)
	assert.Equal(t, 0, count, "stops at the first strict failure")

	count, valid = Evaluate(tests, s, true)
	assert.False(t, valid)
	assert.Equal(t, 2, count, "counts every passing test when asked")
}

func TestEvaluate_LooseFailureKeepsRuleValid(t *testing.T) {
	b := testutil.NewCatalog()
	b.Rule("r").Test("a", catalog.Equal(1)).Loose("b", catalog.Equal(1)).Done()
	c, s := build(t, b)
	s.Set(1, 1)

	count, valid := Evaluate(c.RuleTests(c.Rules[0]), s, false)
	assert.True(t, valid)
	assert.Equal(t, 1, count)
}

func TestEvaluate_EmptyGroupBeforeBoundary(t *testing.T) {
	b := testutil.NewCatalog()
	b.Rule("r").
		Or(0, "a", catalog.Equal(1)).
		Or(0, "b", catalog.Equal(1)).
		Or(1, "c", catalog.Equal(1)).
		Done()
	c, s := build(t, b)
	s.Set(3, 1)

	count, valid := Evaluate(c.RuleTests(c.Rules[0]), s, true)
	assert.False(t, valid)
	assert.Equal(t, 1, count)
}

func TestScan_SignedCounts(t *testing.T) {
	b := testutil.NewCatalog()
	b.Rule("ok").Test("a", catalog.Equal(1)).Test("b", catalog.Equal(1)).Done()
	b.Rule("bad").Test("a", catalog.Equal(1)).Test("b", catalog.Equal(2)).Done()
	c, s := build(t, b)
	s.Set(1, 1)
	s.Set(2, 1)

	res := NewResult(len(c.Rules))
	NewScanner(c, 1).Scan(s, 0, len(c.Rules), Settings{CountAllFactMatches: true}, res)

	assert.Equal(t, 2, res.Signed[ruleIndex(t, c, "ok")])
	assert.Equal(t, -1, res.Signed[ruleIndex(t, c, "bad")])

	count, valid := res.MatchesFor(ruleIndex(t, c, "bad"))
	assert.Equal(t, 1, count)
	assert.False(t, valid)
}

func TestScan_PrunesShorterRules(t *testing.T) {
	b := testutil.NewCatalog()
	b.Rule("long").Test("a", catalog.Equal(1)).Test("b", catalog.Equal(1)).Done()
	b.Rule("short").Test("a", catalog.Equal(1)).Done()
	c, s := build(t, b)
	s.Set(1, 1)
	s.Set(2, 1)

	res := NewResult(len(c.Rules))
	sc := NewScanner(c, 1)

	sc.Scan(s, 0, len(c.Rules), Settings{}, res)
	assert.False(t, res.Scanned[ruleIndex(t, c, "short")])

	sc.Scan(s, 0, len(c.Rules), Settings{CheckAllRules: true}, res)
	assert.True(t, res.Scanned[ruleIndex(t, c, "short")])
}

func TestScan_RangeIsClamped(t *testing.T) {
	b := testutil.NewCatalog()
	b.Rule("r").Test("a", catalog.Equal(0)).Done()
	c, s := build(t, b)

	res := NewResult(len(c.Rules))
	sc := NewScanner(c, 1)
	assert.Equal(t, 1, sc.Scan(s, -5, 99, Settings{}, res))
	assert.Equal(t, []int{0}, res.Best)

	assert.Zero(t, sc.Scan(s, 1, 1, Settings{}, res))
	assert.Empty(t, res.Best)

	assert.Zero(t, sc.Scan(s, 0, -1, Settings{}, res))
	assert.Empty(t, res.Best)
}

func TestScan_ReadOnly(t *testing.T) {
	b := testutil.NewCatalog()
	b.Rule("r").Test("a", catalog.Equal(1)).Write("a", catalog.Increment, 1, "").Done()
	c, s := build(t, b)
	s.Set(1, 1)
	before := s.Snapshot()

	res := NewResult(len(c.Rules))
	sc := NewScanner(c, 1)
	sc.Scan(s, 0, len(c.Rules), Settings{}, res)
	first := append([]int(nil), res.Best...)
	sc.Scan(s, 0, len(c.Rules), Settings{}, res)

	assert.Equal(t, before, s.Snapshot())
	assert.Equal(t, first, res.Best)
}

func TestScan_ParallelMatchesSerial(t *testing.T) {
	defer goleak.VerifyNone(t)

	rng := rand.New(rand.NewSource(7))
	b := testutil.NewCatalog()
	names := []string{"f0", "f1", "f2", "f3", "f4", "f5"}
	for i := 0; i < 200; i++ {
		rb := b.Rule("").In([]string{"x", "y", ""}[i%3])
		n := 1 + rng.Intn(4)
		for j := 0; j < n; j++ {
			f := names[rng.Intn(len(names))]
			switch rng.Intn(3) {
			case 0:
				rb.Test(f, catalog.Equal(float64(rng.Intn(3))))
			case 1:
				rb.Loose(f, catalog.GreaterEqual(1))
			default:
				rb.Or(rng.Intn(2), f, catalog.Less(2))
			}
		}
		rb.Done()
	}
	c, s := build(t, b)

	serial := NewScanner(c, 1)
	parallel := NewScanner(c, 4)

	for round := 0; round < 20; round++ {
		for id := 1; id < s.Len(); id++ {
			s.Set(facts.FactID(id), float64(rng.Intn(3)))
		}
		for _, set := range []Settings{{}, {CheckAllRules: true}, {CountAllFactMatches: true}} {
			want := NewResult(len(c.Rules))
			got := NewResult(len(c.Rules))
			serial.Scan(s, 0, len(c.Rules), set, want)
			parallel.Scan(s, 0, len(c.Rules), set, got)

			if diff := cmp.Diff(want, got, cmp.AllowUnexported(Result{})); diff != "" {
				t.Fatalf("round %d settings %+v: parallel scan differs (-serial +parallel):\n%s", round, set, diff)
			}
		}
	}
}

func TestResult_MatchesForAgreesWithRescan(t *testing.T) {
	b := testutil.NewCatalog()
	b.Rule("a").Test("x", catalog.Equal(1)).Or(0, "y", catalog.Equal(1)).Or(0, "z", catalog.Equal(1)).Done()
	b.Rule("b").Test("x", catalog.Equal(0)).Loose("y", catalog.Equal(1)).Done()
	c, s := build(t, b)

	res := NewResult(len(c.Rules))
	sc := NewScanner(c, 1)
	for mask := 0; mask < 8; mask++ {
		s.Set(1, float64(mask&1))
		s.Set(2, float64(mask>>1&1))
		s.Set(3, float64(mask>>2&1))
		sc.Scan(s, 0, len(c.Rules), Settings{CheckAllRules: true, CountAllFactMatches: true}, res)

		for i, r := range c.Rules {
			wantCount, wantValid := Evaluate(c.RuleTests(r), s, true)
			count, valid := res.MatchesFor(i)
			assert.Equal(t, wantCount, count)
			assert.Equal(t, wantValid, valid)
		}
	}
}

func TestResult_Bytes(t *testing.T) {
	assert.Greater(t, NewResult(4).Bytes(), 0)
	assert.Equal(t, 0, NewResult(0).Bytes())
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
