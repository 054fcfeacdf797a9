package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type settlementMetrics struct {
	stages   *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
	inflight prometheus.Gauge
}

var (
	settlementMetricsOnce sync.Once
	settlementRegistry    *settlementMetrics
)

// Settlement returns the metrics registry tracking swap orchestration.
func Settlement() *settlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementRegistry = &settlementMetrics{
			stages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swapper",
				Subsystem: "settlement",
				Name:      "stage_transitions_total",
				Help:      "Count of pending swap stage transitions segmented by stage entered.",
			}, []string{"stage"}),
			outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swapper",
				Subsystem: "settlement",
				Name:      "swaps_total",
				Help:      "Count of finished swaps segmented by final stage and error kind.",
			}, []string{"stage", "kind"}),
			duration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "swapper",
				Subsystem: "settlement",
				Name:      "swap_duration_seconds",
				Help:      "Wall time from swap acceptance to terminal stage.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			}),
			inflight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "swapper",
				Subsystem: "settlement",
				Name:      "inflight",
				Help:      "1 while a swap occupies the single in-flight slot.",
			}),
		}
		prometheus.MustRegister(
			settlementRegistry.stages,
			settlementRegistry.outcomes,
			settlementRegistry.duration,
			settlementRegistry.inflight,
		)
	})
	return settlementRegistry
}

// RecordStage counts a transition into stage.
func (m *settlementMetrics) RecordStage(stage string) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage).Inc()
}

// RecordOutcome counts a finished swap and observes its duration.
func (m *settlementMetrics) RecordOutcome(stage, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "none"
	}
	m.outcomes.WithLabelValues(stage, kind).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// SetInflight toggles the in-flight gauge.
func (m *settlementMetrics) SetInflight(active bool) {
	if m == nil {
		return
	}
	if active {
		m.inflight.Set(1)
		return
	}
	m.inflight.Set(0)
}
