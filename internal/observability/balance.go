package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type balanceMetrics struct {
	refreshes *prometheus.CounterVec
	failures  *prometheus.CounterVec
	amounts   *prometheus.GaugeVec
}

var (
	balanceMetricsOnce sync.Once
	balanceRegistry    *balanceMetrics
)

// Balances returns the metrics registry tracking the balance cache.
func Balances() *balanceMetrics {
	balanceMetricsOnce.Do(func() {
		balanceRegistry = &balanceMetrics{
			refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swapper",
				Subsystem: "balance",
				Name:      "refreshes_total",
				Help:      "Count of cache refreshes segmented by whether any entry changed.",
			}, []string{"changed"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "swapper",
				Subsystem: "balance",
				Name:      "fetch_failures_total",
				Help:      "Count of per-token balance fetch failures.",
			}, []string{"token"}),
			amounts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "swapper",
				Subsystem: "balance",
				Name:      "amount",
				Help:      "Last cached balance in whole token units.",
			}, []string{"token"}),
		}
		prometheus.MustRegister(balanceRegistry.refreshes, balanceRegistry.failures, balanceRegistry.amounts)
	})
	return balanceRegistry
}

// RecordRefresh counts one refresh.
func (m *balanceMetrics) RecordRefresh(changed bool) {
	if m == nil {
		return
	}
	label := "false"
	if changed {
		label = "true"
	}
	m.refreshes.WithLabelValues(label).Inc()
}

// RecordFailure counts a failed fetch for token.
func (m *balanceMetrics) RecordFailure(token string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(normalizeToken(token)).Inc()
}

// SetAmount records the cached amount for token.
func (m *balanceMetrics) SetAmount(token string, amount float64) {
	if m == nil {
		return
	}
	m.amounts.WithLabelValues(normalizeToken(token)).Set(amount)
}

func normalizeToken(token string) string {
	normalized := strings.TrimSpace(strings.ToUpper(token))
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}
