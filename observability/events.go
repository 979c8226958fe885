package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type transitionMetrics struct {
	transitions *prometheus.CounterVec
}

var (
	transitionMetricsOnce sync.Once
	transitionRegistry    *transitionMetrics
)

// Transitions returns the metrics registry counting committed engine events.
func Transitions() *transitionMetrics {
	transitionMetricsOnce.Do(func() {
		transitionRegistry = &transitionMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Count of committed state transitions segmented by module and event.",
			}, []string{"module", "event"}),
		}
		prometheus.MustRegister(transitionRegistry.transitions)
	})
	return transitionRegistry
}

// Record increments the counter for an event type such as "loans.created".
// The module label is the prefix before the first dot.
func (m *transitionMetrics) Record(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		return
	}
	module, event, found := strings.Cut(normalized, ".")
	if !found {
		module, event = "unknown", normalized
	}
	m.transitions.WithLabelValues(module, event).Inc()
}
