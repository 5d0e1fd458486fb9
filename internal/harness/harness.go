package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/roach88/quip/internal/catalog"
	"github.com/roach88/quip/internal/compiler"
	"github.com/roach88/quip/internal/engine"
	"github.com/roach88/quip/internal/facts"
	"github.com/roach88/quip/internal/match"
)

// Harness is the test execution engine.
// It drives one engine through a scenario with deterministic pick ids and
// sequence numbers.
type Harness struct {
	engine   *engine.Engine
	defs     map[string]facts.Def
	ids      map[string]facts.FactID
	names    []string
	settings match.Settings
	logger   *slog.Logger

	// picks collects events delivered by the engine during one pick step.
	picks []engine.PickEvent
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh engine. Pick ids come from a
// sequence generator and seq numbers from a fresh clock, so traces are
// reproducible.
//
// Execution flow:
// 1. Compile the catalog and initialise the engine
// 2. Assign the scenario facts
// 3. Execute steps, validating expect clauses
// 4. Evaluate assertions against the trace and final facts
//
// An error is returned when the scenario cannot run at all (bad catalog,
// unknown fact). Failed expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario, nil)
}

// RunContext is Run with a context and a logger. A nil logger discards
// engine logs.
func RunContext(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c, err := loadCatalog(scenario)
	if err != nil {
		return nil, err
	}

	eng := engine.New(engine.Static(c),
		engine.WithLogger(logger),
		engine.WithIDGenerator(engine.NewSequenceGenerator("pick")),
		engine.WithClock(engine.NewClock()),
	)
	if err := eng.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialise engine: %w", err)
	}
	defer eng.Dispose()

	h := newHarness(eng, scenario.Settings, logger)
	unsubscribe := eng.OnRulePicked(func(ev engine.PickEvent) {
		h.picks = append(h.picks, ev)
	})
	defer unsubscribe()

	result := NewResult()

	if len(scenario.Facts) > 0 {
		if err := h.assign(scenario.Facts); err != nil {
			return nil, fmt.Errorf("failed to assign facts: %w", err)
		}
	}

	for i := range scenario.Steps {
		if err := h.executeStep(i, &scenario.Steps[i], result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	result.Facts = h.finalFacts()

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

func newHarness(eng *engine.Engine, settings match.Settings, logger *slog.Logger) *Harness {
	h := &Harness{
		engine:   eng,
		defs:     make(map[string]facts.Def),
		ids:      make(map[string]facts.FactID),
		settings: settings,
		logger:   logger,
	}
	for i, def := range eng.FactDefs() {
		h.defs[def.Name] = def
		h.ids[def.Name] = facts.FactID(i)
		h.names = append(h.names, def.Name)
	}
	return h
}

// loadCatalog compiles the scenario's inline source, CUE file or CUE
// directory. Any error-severity problem fails the scenario.
func loadCatalog(s *Scenario) (*catalog.Catalog, error) {
	var (
		c  *catalog.Catalog
		ps catalog.Problems
	)
	switch {
	case s.Source != "":
		c, ps = compiler.CompileSource(s.Name+".cue", []byte(s.Source))
	default:
		info, err := os.Stat(s.Catalog)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}
		if info.IsDir() {
			c, ps, err = compiler.LoadDir(s.Catalog)
			if err != nil {
				return nil, err
			}
		} else {
			src, err := os.ReadFile(s.Catalog)
			if err != nil {
				return nil, fmt.Errorf("failed to read catalog: %w", err)
			}
			c, ps = compiler.CompileSource(filepath.Base(s.Catalog), src)
		}
	}
	if ps.Fatal() {
		return nil, fmt.Errorf("catalog has %d errors: %v", len(ps.Errors()), ps.Errors()[0])
	}
	return c, nil
}

// executeStep runs one step and appends its trace events.
func (h *Harness) executeStep(i int, st *Step, result *Result) error {
	if st.Set != nil {
		if err := h.assign(st.Set); err != nil {
			return err
		}
		result.Trace = append(result.Trace, TraceEvent{
			Type:  EventSet,
			Step:  i,
			Facts: st.Set,
		})
		return nil
	}

	set := h.settings
	if st.Settings != nil {
		set = *st.Settings
	}
	start, end := 0, h.engine.RuleCount()
	if st.Range != nil {
		start, end = st.Range[0], st.Range[1]
	}
	mode := st.Mode()

	if st.Peek != "" {
		var n int
		switch mode {
		case ModeBest:
			n = h.engine.PeekBest(set, start, end)
		case ModeValid:
			n = h.engine.PeekValid(set, start, end)
		case ModeBucket:
			n = h.engine.PeekBucket(st.Bucket, set)
		}
		rules := h.selected(mode)
		result.Trace = append(result.Trace, TraceEvent{
			Type:   EventPeek,
			Step:   i,
			Mode:   mode,
			Bucket: st.Bucket,
			Rules:  rules,
		})
		h.check(i, st.Expect, n, rules, nil, result)

		h.logger.Debug("peek step completed", "step", i, "mode", mode, "selected", n)
		return nil
	}

	h.picks = h.picks[:0]
	var n int
	switch mode {
	case ModeBest:
		n = h.engine.PickBest(set, start, end)
	case ModeValid:
		n = h.engine.PickValid(set, start, end)
	case ModeBucket:
		n = h.engine.PickBucket(st.Bucket, set)
	}

	rules := make([]string, 0, len(h.picks))
	payloads := make([]string, 0, len(h.picks))
	for _, ev := range h.picks {
		rules = append(rules, ev.RuleName)
		payloads = append(payloads, ev.Payload)
		result.Trace = append(result.Trace, TraceEvent{
			Type:    EventPick,
			Step:    i,
			Mode:    mode,
			Bucket:  st.Bucket,
			Rule:    ev.RuleName,
			Payload: ev.Payload,
			Changes: h.changes(ev),
			Seq:     ev.Seq,
		})
	}
	h.check(i, st.Expect, n, rules, payloads, result)

	h.logger.Debug("pick step completed", "step", i, "mode", mode, "picked", n)
	return nil
}

// selected returns the names of the rules the last scan selected.
func (h *Harness) selected(mode string) []string {
	idx := h.engine.BestRules()
	if mode == ModeValid {
		idx = h.engine.ValidRules()
	}
	names := make([]string, 0, len(idx))
	for _, ri := range idx {
		if r, ok := h.engine.Rule(ri); ok {
			names = append(names, r.Name)
		}
	}
	return names
}

func (h *Harness) check(i int, exp *ExpectClause, n int, rules, payloads []string, result *Result) {
	if exp == nil {
		return
	}
	if exp.Count != nil && *exp.Count != n {
		result.AddError(fmt.Sprintf("steps[%d]: expected %d rules, got %d %v", i, *exp.Count, n, rules))
	}
	if exp.Rules != nil && !slices.Equal(exp.Rules, rules) {
		result.AddError(fmt.Sprintf("steps[%d]: expected rules %v, got %v", i, exp.Rules, rules))
	}
	if exp.Payloads != nil && !slices.Equal(exp.Payloads, payloads) {
		result.AddError(fmt.Sprintf("steps[%d]: expected payloads %q, got %q", i, exp.Payloads, payloads))
	}
}

// changes resolves a pick's write-backs to fact names and text.
func (h *Harness) changes(ev engine.PickEvent) []FactChange {
	if len(ev.Changes) == 0 {
		return nil
	}
	out := make([]FactChange, 0, len(ev.Changes))
	for _, ch := range ev.Changes {
		fc := FactChange{Mode: ch.Mode.String(), Old: ch.Old, New: ch.New}
		if int(ch.Fact) < len(h.names) {
			fc.Fact = h.names[ch.Fact]
			if h.defs[fc.Fact].Kind == facts.KindString {
				fc.Old = h.text(ch.Old)
				fc.New = h.text(ch.New)
			}
		}
		out = append(out, fc)
	}
	return out
}

func (h *Harness) text(v float64) string {
	s, _ := h.engine.StringText(int(v))
	return s
}

// assign writes scenario values into facts by name.
func (h *Harness) assign(values map[string]interface{}) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		def, ok := h.defs[name]
		if !ok || name == facts.DevNullName {
			return fmt.Errorf("unknown fact %q", name)
		}
		id := h.ids[name]
		val := values[name]

		if def.Kind == facts.KindString {
			text, err := toText(val)
			if err != nil {
				return fmt.Errorf("fact %q: %w", name, err)
			}
			h.engine.SetString(id, text)
			continue
		}
		num, err := toNumber(val)
		if err != nil {
			return fmt.Errorf("fact %q: %w", name, err)
		}
		h.engine.Set(id, num)
	}
	return nil
}

// toNumber converts a YAML-parsed value for a value fact.
func toNumber(val interface{}) (float64, error) {
	switch v := val.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("value fact needs a number or bool, got %T", val)
	}
}

// toText converts a YAML-parsed value for a string fact.
func toText(val interface{}) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	default:
		return "", fmt.Errorf("string fact needs a string or bool, got %T", val)
	}
}

// finalFacts returns every fact's value keyed by name.
func (h *Harness) finalFacts() map[string]any {
	out := make(map[string]any)
	for _, rec := range h.engine.ExportFacts() {
		if rec.Kind == facts.KindString {
			out[rec.Name] = rec.Text
			continue
		}
		out[rec.Name] = rec.Value
	}
	return out
}
