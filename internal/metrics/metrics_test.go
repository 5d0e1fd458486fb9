package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NilRegistryDisables(t *testing.T) {
	m := New(nil)
	assert.Nil(t, m)

	// every method tolerates a nil receiver
	m.ObserveScan("peek", 3, time.Millisecond)
	m.ObservePick(2)
	m.ObserveLoad(true, 1, 1)
	m.ObserveDispose()
	m.ObserveRejected("reloading")
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.ObserveScan("peek", 10, time.Microsecond)
	m.ObserveScan("pick", 5, time.Microsecond)
	m.ObservePick(3)
	m.ObserveLoad(true, 7, 4096)
	m.ObserveRejected("reloading")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.scansTotal.WithLabelValues("peek")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.rulesScanned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.picksTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.writesTotal))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.rulesLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejectedCalls.WithLabelValues("reloading")))

	m.ObserveDispose()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.bufferBytes))
}
