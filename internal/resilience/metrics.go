package resilience

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	// BreakerState is the current state per target: 0=closed, 1=open, 2=half-open.
	BreakerState *prometheus.GaugeVec
	// BreakerTransitions counts state changes per target.
	BreakerTransitions *prometheus.CounterVec
)

// MustRegisterMetrics creates and registers the breaker collectors once. Breakers record
// nothing until it has been called.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BreakerState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_state",
				Help:      "Current breaker state: 0=closed,1=open,2=half-open",
			},
			[]string{"target"},
		)
		BreakerTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_transition_total",
				Help:      "Count of breaker state transitions",
			},
			[]string{"target", "from", "to"},
		)
		reg.MustRegister(BreakerState, BreakerTransitions)
	})
}
