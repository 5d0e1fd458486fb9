// Package metrics exposes Prometheus counters for scans, picks and reloads.
//
// A nil *Metrics is valid and records nothing, so callers never need to
// check whether metrics are enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	scansTotal    *prometheus.CounterVec
	scanDuration  *prometheus.HistogramVec
	rulesScanned  prometheus.Counter
	picksTotal    prometheus.Counter
	writesTotal   prometheus.Counter
	reloadsTotal  *prometheus.CounterVec
	rulesLoaded   prometheus.Gauge
	bufferBytes   prometheus.Gauge
	rejectedCalls *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg
// returns nil, which disables metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quip",
			Subsystem: "match",
			Name:      "scans_total",
			Help:      "Rule scans performed",
		}, []string{"mode"}),

		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quip",
			Subsystem: "match",
			Name:      "scan_duration_seconds",
			Help:      "Time spent scoring a rule range",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"mode"}),

		rulesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quip",
			Subsystem: "match",
			Name:      "rules_scanned_total",
			Help:      "Rules in the ranges handed to the matcher",
		}),

		picksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quip",
			Subsystem: "engine",
			Name:      "picks_total",
			Help:      "Rules picked and written back",
		}),

		writesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quip",
			Subsystem: "engine",
			Name:      "fact_writes_total",
			Help:      "Fact writes applied by picked rules",
		}),

		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quip",
			Subsystem: "engine",
			Name:      "reloads_total",
			Help:      "Catalog loads by outcome",
		}, []string{"result"}),

		rulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quip",
			Subsystem: "engine",
			Name:      "rules_loaded",
			Help:      "Rules in the active catalog",
		}),

		bufferBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quip",
			Subsystem: "engine",
			Name:      "buffer_bytes",
			Help:      "Bytes held by engine buffers",
		}),

		rejectedCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quip",
			Subsystem: "engine",
			Name:      "rejected_calls_total",
			Help:      "Queries refused because the engine was not ready",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.scansTotal,
		m.scanDuration,
		m.rulesScanned,
		m.picksTotal,
		m.writesTotal,
		m.reloadsTotal,
		m.rulesLoaded,
		m.bufferBytes,
		m.rejectedCalls,
	)
	return m
}

// ObserveScan records one scan over n rules. n <= 0 counts the scan
// but no rules.
func (m *Metrics) ObserveScan(mode string, n int, d time.Duration) {
	if m == nil {
		return
	}
	m.scansTotal.WithLabelValues(mode).Inc()
	m.scanDuration.WithLabelValues(mode).Observe(d.Seconds())
	if n > 0 {
		m.rulesScanned.Add(float64(n))
	}
}

// ObservePick records a picked rule and its writes.
func (m *Metrics) ObservePick(writes int) {
	if m == nil {
		return
	}
	m.picksTotal.Inc()
	m.writesTotal.Add(float64(writes))
}

// ObserveLoad records a catalog load.
func (m *Metrics) ObserveLoad(ok bool, rules, bytes int) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "voided"
	}
	m.reloadsTotal.WithLabelValues(result).Inc()
	m.rulesLoaded.Set(float64(rules))
	m.bufferBytes.Set(float64(bytes))
}

// ObserveDispose zeroes the resource gauges.
func (m *Metrics) ObserveDispose() {
	if m == nil {
		return
	}
	m.rulesLoaded.Set(0)
	m.bufferBytes.Set(0)
}

// ObserveRejected records a call refused in the given engine state.
func (m *Metrics) ObserveRejected(state string) {
	if m == nil {
		return
	}
	m.rejectedCalls.WithLabelValues(state).Inc()
}
