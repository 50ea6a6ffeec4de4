// Package metrics exposes Prometheus instrumentation for scopes, dispatch
// and listeners.
//
// All methods are safe on a nil *Metrics, so components can be built without
// instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "txsignal"

// Scope outcomes.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
)

// Listener results.
const (
	ResultOK      = "ok"
	ResultFailure = "failure"
)

// Metrics holds the collectors registered for one process (or one test).
type Metrics struct {
	scopes           *prometheus.CounterVec
	records          *prometheus.CounterVec
	listenerCalls    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
// Panics if registration fails, as prometheus.MustRegister does.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scopes_total",
			Help:      "Transaction scopes closed, by outcome.",
		}, []string{"outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Pending records made durable or discarded, by scope outcome.",
		}, []string{"outcome"}),
		listenerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_invocations_total",
			Help:      "Listener invocations, by listener and result.",
		}, []string{"listener", "result"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Wall time spent dispatching one event to all of its listeners.",
			Buckets:   []float64{.001, .01, .1, .5, 1, 2.5, 5, 10},
		}, []string{"event", "source"}),
	}

	reg.MustRegister(m.scopes, m.records, m.listenerCalls, m.dispatchDuration)
	return m
}

// ScopeClosed records a scope reaching a terminal state with n pending writes.
func (m *Metrics) ScopeClosed(outcome string, n int) {
	if m == nil {
		return
	}
	m.scopes.WithLabelValues(outcome).Inc()
	m.records.WithLabelValues(outcome).Add(float64(n))
}

// ListenerInvoked records one listener call.
func (m *Metrics) ListenerInvoked(listener, result string) {
	if m == nil {
		return
	}
	m.listenerCalls.WithLabelValues(listener, result).Inc()
}

// DispatchObserved records how long one dispatch blocked its caller.
func (m *Metrics) DispatchObserved(event, source string, d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(event, source).Observe(d.Seconds())
}
