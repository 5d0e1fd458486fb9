package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/quip/internal/catalog"
	"github.com/roach88/quip/internal/facts"
	"github.com/roach88/quip/internal/match"
	"github.com/roach88/quip/internal/metrics"
)

// Source supplies the compiled catalog on Init and Reload.
type Source interface {
	Catalog(ctx context.Context) (*catalog.Catalog, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*catalog.Catalog, error)

// Catalog implements Source.
func (f SourceFunc) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	return f(ctx)
}

// Static returns a Source that always yields c.
func Static(c *catalog.Catalog) Source {
	return SourceFunc(func(context.Context) (*catalog.Catalog, error) {
		return c, nil
	})
}

// Engine scores and picks rules against a fact store.
//
// Thread-safety: every method is safe for concurrent use. Calls are
// serialized; listeners are invoked outside the lock.
type Engine struct {
	mu    sync.Mutex
	state atomic.Int32

	source      Source
	logger      *slog.Logger
	diagnostics bool
	workers     int
	keepFacts   bool
	metrics     *metrics.Metrics
	ids         IDGenerator
	clock       *Clock

	listenerMu   sync.RWMutex
	listeners    []listener
	nextListener int

	// buffers owned by the current catalog; nil unless Ready
	cat        *catalog.Catalog
	hash       string
	index      *catalog.Index
	store      *facts.Store
	strs       *facts.StringTable
	scanner    *match.Scanner
	result     *match.Result
	factByName map[string]facts.FactID
	ruleByName map[string]int
	problems   catalog.Problems
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDiagnostics logs failed name lookups and bucket fallbacks.
func WithDiagnostics(enabled bool) Option {
	return func(e *Engine) {
		e.diagnostics = enabled
	}
}

// WithWorkers scans on n goroutines. n <= 1 scans on the caller's goroutine.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithKeepFactsOnReload carries fact values across Reload by fact name.
// Without it a reload resets every fact to its default.
func WithKeepFactsOnReload(keep bool) Option {
	return func(e *Engine) {
		e.keepFacts = keep
	}
}

// WithMetrics records scans, picks and loads. A nil *Metrics is allowed.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithIDGenerator sets the generator for pick event ids.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		if g != nil {
			e.ids = g
		}
	}
}

// WithClock sets the logical clock stamping pick events, e.g. one resumed
// from a persisted pick log.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// New creates an Uninitialized engine. Call Init before querying.
func New(src Source, opts ...Option) *Engine {
	e := &Engine{
		source:  src,
		logger:  slog.Default(),
		workers: 1,
		ids:     UUIDv7Generator{},
		clock:   NewClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// ready reports whether queries may run. Callers must hold e.mu; the
// state is re-read under the lock because a reload may have started.
func (e *Engine) ready(op string) bool {
	s := e.State()
	if s == StateReady {
		return true
	}
	e.metrics.ObserveRejected(s.String())
	if e.diagnostics {
		e.logger.Debug("engine call ignored", "op", op, "state", s)
	}
	return false
}

// lockReady takes the lock when the engine is Ready. It fails fast without
// waiting for the lock if the engine is reloading or not yet initialized.
func (e *Engine) lockReady(op string) bool {
	if e.State() != StateReady {
		e.ready(op)
		return false
	}
	e.mu.Lock()
	if !e.ready(op) {
		e.mu.Unlock()
		return false
	}
	return true
}
