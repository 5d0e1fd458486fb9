package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/quip/internal/catalog"
	"github.com/roach88/quip/internal/facts"
	"github.com/roach88/quip/internal/match"
	"github.com/roach88/quip/internal/metrics"
	"github.com/roach88/quip/internal/testutil"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newEngine(t *testing.T, c *catalog.Catalog, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(quiet), WithIDGenerator(NewSequenceGenerator("pick"))}, opts...)
	e := New(Static(c), opts...)
	require.NoError(t, e.Init(context.Background()))
	t.Cleanup(e.Dispose)
	return e
}

// abcCatalog: A and B test two facts, C tests one.
func abcCatalog() *catalog.Catalog {
	b := testutil.NewCatalog()
	b.Rule("C").Test("test1", catalog.Equal(facts.StringTrue)).Done()
	b.Rule("A").Test("test1", catalog.Equal(facts.StringTrue)).Test("test2", catalog.Equal(facts.StringTrue)).Done()
	b.Rule("B").Test("test1", catalog.Equal(facts.StringTrue)).Test("test2", catalog.Equal(facts.StringTrue)).Done()
	return b.Build()
}

func ruleNames(t *testing.T, e *Engine, idx []int) []string {
	t.Helper()
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		r, ok := e.Rule(i)
		require.True(t, ok)
		out = append(out, r.Name)
	}
	return out
}

func TestEngine_Lifecycle(t *testing.T) {
	e := New(Static(abcCatalog()), WithLogger(quiet))

	assert.Equal(t, StateUninitialized, e.State())
	assert.Zero(t, e.BufferBytes())
	assert.Zero(t, e.PeekBest(match.Settings{}, 0, 10))
	assert.True(t, IsStateError(e.Reload(context.Background())))

	require.NoError(t, e.Init(context.Background()))
	assert.Equal(t, StateReady, e.State())
	assert.Positive(t, e.BufferBytes())
	assert.Equal(t, 3, e.RuleCount())

	assert.True(t, IsStateError(e.Init(context.Background())), "second Init")

	require.NoError(t, e.Reload(context.Background()))
	assert.Equal(t, StateReady, e.State())
	assert.Positive(t, e.BufferBytes())

	e.Dispose()
	assert.Equal(t, StateDisposed, e.State())
	assert.Zero(t, e.BufferBytes())
	assert.Zero(t, e.RuleCount())
	assert.True(t, IsStateError(e.Reload(context.Background())))

	e.Dispose()
	assert.Equal(t, StateDisposed, e.State())
}

func TestEngine_InitSourceError(t *testing.T) {
	boom := errors.New("boom")
	e := New(SourceFunc(func(context.Context) (*catalog.Catalog, error) {
		return nil, boom
	}), WithLogger(quiet))

	err := e.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, ErrCodeCatalogSource, engErr.Code)
	assert.Equal(t, StateUninitialized, e.State())
	assert.Zero(t, e.BufferBytes())
}

func TestEngine_ReloadSourceErrorKeepsCatalog(t *testing.T) {
	var calls atomic.Int32
	c := abcCatalog()
	e := New(SourceFunc(func(context.Context) (*catalog.Catalog, error) {
		if calls.Add(1) > 1 {
			return nil, errors.New("gone")
		}
		return c, nil
	}), WithLogger(quiet))
	require.NoError(t, e.Init(context.Background()))
	defer e.Dispose()

	require.Error(t, e.Reload(context.Background()))
	assert.Equal(t, StateReady, e.State())
	assert.Equal(t, 3, e.RuleCount())
}

func TestEngine_VoidedCatalog(t *testing.T) {
	c := abcCatalog()
	c.Tests[0].Fact = 99

	e := New(Static(c), WithLogger(quiet))
	defer e.Dispose()

	err := e.Init(context.Background())
	require.Error(t, err)
	assert.True(t, IsVoidedError(err))

	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.True(t, engErr.Problems.Fatal())

	assert.Equal(t, StateReady, e.State())
	assert.Zero(t, e.RuleCount())
	assert.True(t, e.Problems().Fatal())
	assert.Zero(t, e.PeekValid(match.Settings{}, 0, 100))
}

func TestEngine_BestAndValid(t *testing.T) {
	e := newEngine(t, abcCatalog())
	e.Set(e.FactID("test1"), facts.StringTrue)
	e.Set(e.FactID("test2"), facts.StringTrue)

	n := e.RuleCount()
	assert.Equal(t, 2, e.PeekBest(match.Settings{}, 0, n))
	assert.Equal(t, 2, e.BestCount())
	assert.ElementsMatch(t, []string{"A", "B"}, ruleNames(t, e, e.BestRules()))

	assert.Equal(t, 3, e.PeekValid(match.Settings{}, 0, n))
	assert.ElementsMatch(t, []string{"A", "B", "C"}, ruleNames(t, e, e.ValidRules()))

	count, valid := e.MatchesFor(e.RuleIndex("C"))
	assert.Equal(t, 1, count)
	assert.True(t, valid)

	res := e.LastResult()
	require.NotNil(t, res)
	assert.Len(t, res.Valid, 3)
}

func TestEngine_PeekDoesNotMutate(t *testing.T) {
	e := newEngine(t, abcCatalog())
	e.Set(e.FactID("test1"), facts.StringTrue)

	before := e.ExportFacts()
	first := e.PeekBest(match.Settings{}, 0, e.RuleCount())
	second := e.PeekBest(match.Settings{}, 0, e.RuleCount())

	assert.Equal(t, first, second)
	assert.Equal(t, before, e.ExportFacts())
	assert.Equal(t, []string{"C"}, ruleNames(t, e, e.BestRules()))
}

func bucketCatalog() *catalog.Catalog {
	b := testutil.NewCatalog()
	b.Bucket("foo", map[string]float64{"seeded": 3})
	b.Bucket("boo", nil)
	b.Rule("foo.x").In("foo").Test("x", catalog.Equal(1)).Done()
	b.Rule("foo.y").In("foo").Test("y", catalog.Equal(1)).Done()
	b.Rule("boo.x").In("boo").Test("x", catalog.Equal(1)).Done()
	b.Rule("boo.xy").In("boo").Test("x", catalog.Equal(1)).Test("y", catalog.Equal(1)).Done()
	b.Rule("misc").Test("x", catalog.Equal(1)).Done()
	return b.Build()
}

func TestEngine_BucketIsolation(t *testing.T) {
	e := newEngine(t, bucketCatalog())
	x, y := e.FactID("x"), e.FactID("y")

	for _, bucket := range []string{"foo", "boo"} {
		for _, xv := range []float64{0, 1} {
			for _, yv := range []float64{0, 1} {
				e.Set(x, xv)
				e.Set(y, yv)

				e.PeekBucket(bucket, match.Settings{})
				for _, name := range ruleNames(t, e, e.BestRules()) {
					assert.True(t, strings.HasPrefix(name, bucket+"."), "best %s leaked into %s", name, bucket)
				}

				slice := e.Bucket(bucket)
				e.PeekValid(match.Settings{}, slice.Start, slice.End)
				for _, name := range ruleNames(t, e, e.ValidRules()) {
					assert.True(t, strings.HasPrefix(name, bucket+"."), "valid %s leaked into %s", name, bucket)
				}
			}
		}
	}
}

func TestEngine_BucketSeedsAndFallback(t *testing.T) {
	e := newEngine(t, bucketCatalog(), WithDiagnostics(true))

	foo := e.Bucket("foo")
	assert.Equal(t, "foo", foo.Name)
	assert.Equal(t, 2, foo.Len())
	assert.Equal(t, 3.0, e.Get(e.FactID("seeded")))

	fallback := e.Bucket("nope")
	assert.Equal(t, catalog.DefaultBucket, fallback.Name)
	assert.Equal(t, []string{"misc"}, ruleNames(t, e, []int{fallback.Start}))

	e.Set(e.FactID("x"), 1)
	assert.Equal(t, 1, e.PeekBucket("nope", match.Settings{}))
	assert.Equal(t, []string{"misc"}, ruleNames(t, e, e.BestRules()))

	// a peek selects the bucket, so its seeds stay applied
	e.Set(e.FactID("seeded"), 0)
	e.PeekBucket("foo", match.Settings{})
	assert.Equal(t, 3.0, e.Get(e.FactID("seeded")))
}

func TestEngine_BucketWithoutDefault(t *testing.T) {
	b := testutil.NewCatalog()
	b.Rule("only").In("foo").Test("x", catalog.Equal(0)).Done()
	e := newEngine(t, b.Build())

	assert.Equal(t, catalog.EmptySlice, e.Bucket("missing"))
	assert.Zero(t, e.PeekBucket("missing", match.Settings{}))
}

func pickCatalog() *catalog.Catalog {
	b := testutil.NewCatalog()
	b.Rule("hit").
		Test("health", catalog.Greater(0)).
		Write("health", catalog.Subtract, 10, "").
		Write("hits", catalog.Increment, 1, "").
		Payload("ouch, {health} left after {hits} hits ({unknown})").
		Done()
	b.Rule("sulk").
		Test("mood", catalog.Equal(b.Str("angry"))).
		Write("mood", catalog.SetString, b.Str("calm"), "").
		Done()
	return b.Build()
}

func TestEngine_PickAppliesWriteBacks(t *testing.T) {
	e := newEngine(t, pickCatalog())
	health := e.FactID("health")
	e.Set(health, 15)

	var events []PickEvent
	unsubscribe := e.OnRulePicked(func(ev PickEvent) { events = append(events, ev) })

	assert.Equal(t, 1, e.PickBest(match.Settings{}, 0, e.RuleCount()))
	assert.Equal(t, 5.0, e.Get(health))
	assert.Equal(t, 1.0, e.Get(e.FactID("hits")))

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "pick-1", ev.ID)
	assert.Equal(t, int64(1), ev.Seq)
	assert.Equal(t, "hit", ev.RuleName)
	assert.Equal(t, "ouch, 5 left after 1 hits ({unknown})", ev.Payload)
	require.Len(t, ev.Changes, 2)
	assert.Equal(t, 15.0, ev.Changes[0].Old)
	assert.Equal(t, 5.0, ev.Changes[0].New)
	assert.Equal(t, []int{e.RuleIndex("hit")}, ev.Affected)

	assert.Equal(t, 1, e.PickBest(match.Settings{}, 0, e.RuleCount()))
	assert.Equal(t, -5.0, e.Get(health))
	assert.Zero(t, e.PeekBest(match.Settings{}, 0, e.RuleCount()), "hit no longer matches")

	unsubscribe()
	e.Set(health, 1)
	e.PickBest(match.Settings{}, 0, e.RuleCount())
	assert.Len(t, events, 2)
}

func TestEngine_PickString(t *testing.T) {
	e := newEngine(t, pickCatalog())
	mood := e.FactID("mood")
	require.True(t, e.SetString(mood, "angry"))

	assert.Equal(t, 1, e.PickValid(match.Settings{}, 0, e.RuleCount()))
	text, ok := e.GetString(mood)
	require.True(t, ok)
	assert.Equal(t, "calm", text)
}

func TestEngine_ListenerMayCallEngine(t *testing.T) {
	e := newEngine(t, pickCatalog())
	health := e.FactID("health")
	e.Set(health, 15)

	var seen float64
	e.OnRulePicked(func(PickEvent) { seen = e.Get(health) })

	e.PickBest(match.Settings{}, 0, e.RuleCount())
	assert.Equal(t, 5.0, seen)
}

func TestEngine_QueriesWhileReloading(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	gate := make(chan struct{})
	c := abcCatalog()
	e := New(SourceFunc(func(context.Context) (*catalog.Catalog, error) {
		if calls.Add(1) > 1 {
			<-gate
		}
		return c, nil
	}), WithLogger(quiet))
	require.NoError(t, e.Init(context.Background()))
	defer e.Dispose()

	e.Set(e.FactID("test1"), facts.StringTrue)

	done := make(chan error, 1)
	go func() { done <- e.Reload(context.Background()) }()

	require.Eventually(t, func() bool { return e.State() == StateReloading }, time.Second, time.Millisecond)

	assert.Zero(t, e.PeekBest(match.Settings{}, 0, 10))
	assert.Zero(t, e.PickValid(match.Settings{}, 0, 10))
	assert.Zero(t, e.Get(1))
	assert.False(t, e.Set(1, 1))
	assert.Equal(t, facts.DevNull, e.FactID("test1"))
	assert.Equal(t, -1, e.RuleIndex("A"))
	assert.Equal(t, facts.StringUnset, e.StringID("true"))
	assert.Nil(t, e.BestRules())
	assert.Equal(t, catalog.EmptySlice, e.Bucket("default"))

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, e.State())
	assert.Zero(t, e.Get(e.FactID("test1")), "facts reset by reload")
}

func TestEngine_KeepFactsOnReload(t *testing.T) {
	e := newEngine(t, pickCatalog(), WithKeepFactsOnReload(true))
	e.Set(e.FactID("health"), 7)
	e.SetString(e.FactID("mood"), "angry")

	require.NoError(t, e.Reload(context.Background()))

	assert.Equal(t, 7.0, e.Get(e.FactID("health")))
	text, ok := e.GetString(e.FactID("mood"))
	require.True(t, ok)
	assert.Equal(t, "angry", text)
}

func TestEngine_FactsCSVRoundTrip(t *testing.T) {
	e := newEngine(t, pickCatalog())
	e.Set(e.FactID("health"), 42.5)
	e.Set(e.FactID("hits"), 3)
	e.SetString(e.FactID("mood"), "wistful")
	want := e.ExportFacts()

	var buf bytes.Buffer
	require.NoError(t, e.SaveFacts(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "Type,  Name,  Value\n"))

	e.ResetFacts()
	assert.Zero(t, e.Get(e.FactID("health")))

	stats, err := e.LoadFacts(&buf)
	require.NoError(t, err)
	assert.Equal(t, len(want), stats.Loaded)
	assert.Equal(t, want, e.ExportFacts())
}

func TestEngine_LoadFactsMalformed(t *testing.T) {
	e := newEngine(t, pickCatalog())

	_, err := e.LoadFacts(strings.NewReader("nonsense"))
	require.Error(t, err)

	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, ErrCodeFactIO, engErr.Code)
}

func TestEngine_Lookups(t *testing.T) {
	e := newEngine(t, pickCatalog(), WithDiagnostics(true))

	assert.Equal(t, facts.DevNull, e.FactID("no_such_fact"))
	assert.NotEqual(t, facts.DevNull, e.FactID("health"))
	assert.Equal(t, -1, e.RuleIndex("no_such_rule"))
	assert.GreaterOrEqual(t, e.RuleIndex("hit"), 0)

	assert.Equal(t, facts.StringFalse, e.StringID("false"))
	assert.Equal(t, facts.StringTrue, e.StringID("true"))
	assert.GreaterOrEqual(t, e.StringID("angry"), 2)
	assert.Equal(t, facts.StringUnset, e.StringID("never interned"))
	text, ok := e.StringText(facts.StringTrue)
	assert.True(t, ok)
	assert.Equal(t, "true", text)
	_, ok = e.StringText(facts.StringUnset)
	assert.False(t, ok)

	assert.False(t, e.Set(facts.FactID(1000), 1))
	assert.Zero(t, e.Get(facts.FactID(1000)))
	_, ok = e.Rule(1000)
	assert.False(t, ok)

	// writes through an unknown name land in dev_null
	assert.True(t, e.Set(e.FactID("no_such_fact"), 9))

	defs := e.FactDefs()
	require.NotEmpty(t, defs)
	assert.Equal(t, facts.DevNullName, defs[0].Name)
}

func TestEngine_ParallelMatchesSerial(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := testutil.NewCatalog()
	for i := 0; i < 40; i++ {
		r := b.Rule("r" + string(rune('a'+i%26)) + string(rune('a'+i/26)))
		r.Test("x", catalog.GreaterEqual(float64(i%5)))
		if i%3 == 0 {
			r.Test("y", catalog.Equal(1))
		}
		r.Done()
	}
	c := b.Build()

	serial := newEngine(t, c)
	parallel := newEngine(t, c, WithWorkers(4))
	for _, e := range []*Engine{serial, parallel} {
		e.Set(e.FactID("x"), 3)
		e.Set(e.FactID("y"), 1)
	}

	assert.Equal(t,
		serial.PeekValid(match.Settings{}, 0, serial.RuleCount()),
		parallel.PeekValid(match.Settings{}, 0, parallel.RuleCount()))
	assert.Equal(t, serial.ValidRules(), parallel.ValidRules())
	assert.Equal(t, serial.SignedCounts(), parallel.SignedCounts())

	assert.Equal(t,
		serial.PeekBest(match.Settings{}, 0, serial.RuleCount()),
		parallel.PeekBest(match.Settings{}, 0, parallel.RuleCount()))
	assert.Equal(t, serial.BestRules(), parallel.BestRules())
}

// counterSum adds up every sample of the named counter family.
func counterSum(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func TestEngine_MetricsCountClampedRanges(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := newEngine(t, abcCatalog(), WithMetrics(metrics.New(reg)))
	e.Set(e.FactID("test1"), facts.StringTrue)

	assert.Zero(t, e.PeekBest(match.Settings{}, 0, -1))
	assert.Zero(t, e.PeekValid(match.Settings{}, 2, 1))
	assert.Zero(t, e.PickBest(match.Settings{}, 5, 0))
	assert.Zero(t, counterSum(t, reg, "quip_match_rules_scanned_total"))

	assert.Equal(t, 1, e.PeekValid(match.Settings{}, -3, 99))
	assert.Equal(t, 3.0, counterSum(t, reg, "quip_match_rules_scanned_total"))

	assert.Equal(t, 1, e.PickBest(match.Settings{}, 0, 99))
	assert.Equal(t, 6.0, counterSum(t, reg, "quip_match_rules_scanned_total"))
	assert.Equal(t, 5.0, counterSum(t, reg, "quip_match_scans_total"))

	// the lock was released by every pick above
	assert.Equal(t, 1, e.PeekBest(match.Settings{}, 0, e.RuleCount()))
}
