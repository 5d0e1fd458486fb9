package engine

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/roach88/quip/internal/catalog"
	"github.com/roach88/quip/internal/facts"
	"github.com/roach88/quip/internal/match"
)

// Init loads the catalog and allocates all buffers. It is only valid in
// the Uninitialized state; a source failure leaves the engine there.
//
// If the catalog has fatal problems the engine still becomes Ready, with an
// empty rule set, and Init returns an ErrCodeCatalogVoided error carrying
// the problems.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s := e.State(); s != StateUninitialized {
		return newStateError("init", s)
	}
	c, err := e.fetch(ctx)
	if err != nil {
		return err
	}
	return e.load(c, nil)
}

// Reload replaces the catalog. Every buffer is released before the new
// ones are allocated. Queries arriving meanwhile see the Reloading state
// and return empty results.
//
// A source failure aborts the reload and keeps the previous catalog.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s := e.State(); s != StateReady {
		return newStateError("reload", s)
	}
	e.state.Store(int32(StateReloading))

	c, err := e.fetch(ctx)
	if err != nil {
		e.state.Store(int32(StateReady))
		return err
	}

	var carried []facts.Record
	if e.keepFacts {
		carried = facts.Export(e.cat.Facts, e.store, e.strs)
	}
	e.release()
	return e.load(c, carried)
}

// Dispose releases every buffer. The engine cannot be used afterwards.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() == StateDisposed {
		return
	}
	e.release()
	e.state.Store(int32(StateDisposed))
	e.metrics.ObserveDispose()
	e.logger.Info("engine disposed")
}

// Problems returns the diagnostics of the last catalog load.
func (e *Engine) Problems() catalog.Problems {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append(catalog.Problems(nil), e.problems...)
}

// CatalogHash returns the content hash of the loaded catalog.
func (e *Engine) CatalogHash() string {
	if !e.lockReady("catalog_hash") {
		return ""
	}
	defer e.mu.Unlock()
	return e.hash
}

// BufferBytes reports the bytes held by catalog-derived buffers. It is
// zero before Init and after Dispose.
func (e *Engine) BufferBytes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bufferBytes()
}

func (e *Engine) fetch(ctx context.Context) (*catalog.Catalog, error) {
	if e.source == nil {
		return nil, &Error{Code: ErrCodeCatalogSource, Message: "no catalog source", State: e.State()}
	}
	c, err := e.source.Catalog(ctx)
	if err != nil {
		return nil, &Error{Code: ErrCodeCatalogSource, Message: "load catalog", State: e.State(), Err: err}
	}
	if c == nil {
		return nil, &Error{Code: ErrCodeCatalogSource, Message: "source returned no catalog", State: e.State()}
	}
	return c, nil
}

// load builds every buffer from c and moves to Ready. Caller holds e.mu
// and has released any previous buffers.
func (e *Engine) load(c *catalog.Catalog, carried []facts.Record) error {
	built, ix, ps := catalog.Build(c)

	strs := facts.NewStringTable()
	strs.SetDiagnostics(e.logger, e.diagnostics)
	for i, s := range built.Strings {
		if id := strs.Intern(s); id != i {
			e.logger.Warn("string id mismatch", "text", s, "want", i, "got", id)
		}
	}

	store := facts.NewStore(len(built.Facts))
	store.Reset(built.Kinds())
	if len(carried) > 0 {
		stats := facts.Import(carried, built.Facts, store, strs)
		e.logger.Debug("facts carried across reload", "loaded", stats.Loaded, "dropped", len(stats.Unknown))
	}

	factByName := make(map[string]facts.FactID, len(built.Facts))
	for i, f := range built.Facts {
		factByName[f.Name] = facts.FactID(i)
	}
	ruleByName := make(map[string]int, len(built.Rules))
	for i, r := range built.Rules {
		if r.Name != "" {
			ruleByName[r.Name] = i
		}
	}

	hash, err := catalog.Hash(built)
	if err != nil {
		e.logger.Warn("catalog hash unavailable", "error", err)
	}

	e.cat = built
	e.hash = hash
	e.index = ix
	e.problems = ps
	e.strs = strs
	e.store = store
	e.factByName = factByName
	e.ruleByName = ruleByName
	e.scanner = match.NewScanner(built, e.workers)
	e.result = match.NewResult(len(built.Rules))
	e.state.Store(int32(StateReady))

	bytes := e.bufferBytes()
	e.metrics.ObserveLoad(!ps.Fatal(), len(built.Rules), bytes)

	for _, p := range ps.Warnings() {
		e.logger.Warn("catalog warning", "message", p.Message, "source", p.Source, "line", p.Line)
	}
	if ps.Fatal() {
		for _, p := range ps.Errors() {
			e.logger.Error("catalog error", "message", p.Message, "source", p.Source, "line", p.Line)
		}
		return &Error{
			Code:     ErrCodeCatalogVoided,
			Message:  fmt.Sprintf("catalog has %d error(s), loaded empty", len(ps.Errors())),
			State:    StateReady,
			Problems: ps,
		}
	}

	e.logger.Info("catalog loaded",
		"rules", len(built.Rules),
		"tests", len(built.Tests),
		"facts", len(built.Facts),
		"buckets", len(ix.Slices()),
		"bytes", bytes,
	)
	return nil
}

// release drops every catalog-derived buffer. Caller holds e.mu.
func (e *Engine) release() {
	if e.store != nil {
		e.store.Release()
	}
	e.cat = nil
	e.hash = ""
	e.index = nil
	e.store = nil
	e.strs = nil
	e.scanner = nil
	e.result = nil
	e.factByName = nil
	e.ruleByName = nil
	e.problems = nil
}

func (e *Engine) bufferBytes() int {
	n := 0
	if e.store != nil {
		n += e.store.Bytes()
	}
	if e.strs != nil {
		n += e.strs.Bytes()
	}
	if e.result != nil {
		n += e.result.Bytes()
	}
	if e.scanner != nil {
		n += e.scanner.Bytes()
	}
	if e.index != nil {
		n += e.index.Bytes()
	}
	if e.cat != nil {
		n += len(e.cat.Rules) * int(unsafe.Sizeof(catalog.Rule{}))
		n += len(e.cat.Tests) * int(unsafe.Sizeof(catalog.FactTest{}))
		for _, r := range e.cat.Rules {
			n += len(r.Writes)*int(unsafe.Sizeof(catalog.FactWrite{})) + len(r.Payload) + len(r.Name)
		}
	}
	return n
}
