package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type ledgerMetrics struct {
	events   *prometheus.CounterVec
	reserves *prometheus.GaugeVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *ledgerMetrics
)

// Ledger returns the metrics registry tracking exchange ledger activity.
func Ledger() *ledgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &ledgerMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swapper",
				Subsystem: "ledger",
				Name:      "events_total",
				Help:      "Count of ledger events segmented by event name and source.",
			}, []string{"event", "source"}),
			reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "swapper",
				Subsystem: "ledger",
				Name:      "reserve",
				Help:      "Ledger reserve in raw token units, as float.",
			}, []string{"side"}),
		}
		prometheus.MustRegister(ledgerRegistry.events, ledgerRegistry.reserves)
	})
	return ledgerRegistry
}

// RecordEvent counts one ledger event. source is "local" or "indexer".
func (m *ledgerMetrics) RecordEvent(event, source string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event, source).Inc()
}

// SetReserves records both reserves.
func (m *ledgerMetrics) SetReserves(a, b float64) {
	if m == nil {
		return
	}
	m.reserves.WithLabelValues("a").Set(a)
	m.reserves.WithLabelValues("b").Set(b)
}
