package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ordersync"

// EngineMetrics exposes the reconciliation and kitchen-sync counters.
type EngineMetrics struct {
	recomputations   prometheus.Counter
	recomputeSeconds prometheus.Histogram
	relationEvents   *prometheus.CounterVec
	saves            *prometheus.CounterVec
	conflicts        prometheus.Counter
	kitchenQueue     prometheus.Gauge
	kitchenState     prometheus.Gauge
	kitchenDropped   prometheus.Counter
	kitchenLines     prometheus.Counter
	kitchenPublished *prometheus.CounterVec
}

// NewEngineMetrics registers the engine collectors on reg.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		recomputations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "recomputations_total",
			Help:      "Number of derived-view recomputations.",
		}),
		recomputeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "recompute_duration_seconds",
			Help:      "Duration of derived-view recomputations.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		relationEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "relation_batches_total",
			Help:      "Row batches applied per relation.",
		}, []string{"relation"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "saves_total",
			Help:      "Save attempts by outcome.",
		}, []string{"outcome"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "conflicts_total",
			Help:      "Version conflicts detected on remote write.",
		}),
		kitchenQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "kitchen",
			Name:      "queue_depth",
			Help:      "Messages waiting for the kitchen channel.",
		}),
		kitchenState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "kitchen",
			Name:      "connection_state",
			Help:      "0 disconnected, 1 connecting, 2 authenticating, 3 subscribed.",
		}),
		kitchenDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kitchen",
			Name:      "dropped_total",
			Help:      "Queued messages evicted by the capacity bound.",
		}),
		kitchenLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kitchen",
			Name:      "dispatched_lines_total",
			Help:      "Order lines sent to the kitchen.",
		}),
		kitchenPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kitchen",
			Name:      "published_total",
			Help:      "Kitchen messages by delivery path.",
		}, []string{"path"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.recomputations,
			m.recomputeSeconds,
			m.relationEvents,
			m.saves,
			m.conflicts,
			m.kitchenQueue,
			m.kitchenState,
			m.kitchenDropped,
			m.kitchenLines,
			m.kitchenPublished,
		)
	}
	return m
}

// NewNop returns metrics that are not registered anywhere.
func NewNop() *EngineMetrics {
	return NewEngineMetrics(nil)
}

func (m *EngineMetrics) ObserveRecompute(d time.Duration) {
	if m == nil {
		return
	}
	m.recomputations.Inc()
	m.recomputeSeconds.Observe(d.Seconds())
}

func (m *EngineMetrics) RelationBatch(relation string) {
	if m == nil {
		return
	}
	m.relationEvents.WithLabelValues(relation).Inc()
}

func (m *EngineMetrics) SaveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(outcome).Inc()
}

func (m *EngineMetrics) Conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *EngineMetrics) KitchenQueueDepth(n int) {
	if m == nil {
		return
	}
	m.kitchenQueue.Set(float64(n))
}

func (m *EngineMetrics) KitchenState(state int) {
	if m == nil {
		return
	}
	m.kitchenState.Set(float64(state))
}

func (m *EngineMetrics) KitchenDropped() {
	if m == nil {
		return
	}
	m.kitchenDropped.Inc()
}

func (m *EngineMetrics) KitchenLines(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.kitchenLines.Add(float64(n))
}

func (m *EngineMetrics) KitchenPublished(path string) {
	if m == nil {
		return
	}
	m.kitchenPublished.WithLabelValues(path).Inc()
}
