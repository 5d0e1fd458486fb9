package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/quip/internal/engine"
	"github.com/roach88/quip/internal/facts"
	"github.com/roach88/quip/internal/metrics"
)

// session is an initialised engine plus the collaborators a command
// needs to report on it.
type session struct {
	engine   *engine.Engine
	logger   *slog.Logger
	registry *prometheus.Registry // nil unless metrics are enabled
}

// openSession builds and initialises an engine over the catalog at path.
// Metrics are collected when the config enables them or withMetrics is set.
func openSession(ctx context.Context, opts *RootOptions, path string, logW io.Writer, withMetrics bool, extra ...engine.Option) (*session, error) {
	cfg := opts.config()
	s := &session{logger: opts.logger(logW)}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled || withMetrics {
		s.registry = prometheus.NewRegistry()
		m = metrics.New(s.registry)
	}

	eopts := cfg.EngineOptions(s.logger, m)
	if withMetrics && !cfg.Metrics.Enabled {
		eopts = append(eopts, engine.WithMetrics(m))
	}
	eopts = append(eopts, extra...)

	s.engine = engine.New(catalogSource(path), eopts...)
	if err := s.engine.Init(ctx); err != nil {
		s.engine.Dispose()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	s.engine.Dispose()
}

// factNames returns fact names indexed by id.
func (s *session) factNames() []string {
	defs := s.engine.FactDefs()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// applyFactFlags assigns name=value pairs. String facts take the value as
// text; value facts accept numbers and true/false.
func (s *session) applyFactFlags(pairs []string) error {
	if len(pairs) == 0 {
		return nil
	}
	kinds := make(map[string]facts.Kind)
	for _, d := range s.engine.FactDefs() {
		kinds[d.Name] = d.Kind
	}

	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid fact %q: want name=value", pair)
		}
		kind, known := kinds[name]
		if !known || name == facts.DevNullName {
			return fmt.Errorf("unknown fact %q", name)
		}
		id := s.engine.FactID(name)

		if kind == facts.KindString {
			s.engine.SetString(id, raw)
			continue
		}
		v, err := parseFactValue(raw)
		if err != nil {
			return fmt.Errorf("fact %q: %w", name, err)
		}
		s.engine.Set(id, v)
	}
	return nil
}

func parseFactValue(raw string) (float64, error) {
	switch strings.ToLower(raw) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not a number", raw)
	}
	return v, nil
}
