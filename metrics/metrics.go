// Package metrics exports contract call and session transition metrics to
// Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements transport.Observer and session.TransitionObserver.
type Collector struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	transitions *prometheus.CounterVec
}

// New creates a Collector and registers it with reg. A nil reg leaves the
// metrics unregistered, which is useful in tests.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moviecat",
			Subsystem: "contract",
			Name:      "requests_total",
			Help:      "Contract invocations by alias and outcome.",
		}, []string{"alias", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "moviecat",
			Subsystem: "contract",
			Name:      "duration_seconds",
			Help:      "Contract invocation latency, including validation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"alias"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moviecat",
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions by target state.",
		}, []string{"to"}),
	}
	if reg != nil {
		for _, col := range []prometheus.Collector{c.requests, c.duration, c.transitions} {
			if err := reg.Register(col); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// ObserveCall records one contract invocation.
func (c *Collector) ObserveCall(alias, outcome string, elapsed time.Duration) {
	c.requests.WithLabelValues(alias, outcome).Inc()
	c.duration.WithLabelValues(alias).Observe(elapsed.Seconds())
}

// ObserveTransition records a session transition.
func (c *Collector) ObserveTransition(to string) {
	c.transitions.WithLabelValues(to).Inc()
}
