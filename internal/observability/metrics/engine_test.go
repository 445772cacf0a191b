package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)

	m.SaveOutcome("committed")
	m.SaveOutcome("committed")
	m.SaveOutcome("conflict")
	m.ObserveRecompute(3 * time.Millisecond)
	m.KitchenQueueDepth(4)
	m.KitchenLines(3)
	m.KitchenLines(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.saves.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.saves.WithLabelValues("conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recomputations))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.kitchenQueue))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.kitchenLines))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *EngineMetrics
	assert.NotPanics(t, func() {
		m.SaveOutcome("committed")
		m.ObserveRecompute(time.Millisecond)
		m.KitchenDropped()
	})
}
