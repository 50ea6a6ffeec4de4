package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ScopeClosed(OutcomeCommitted, 1)
		m.ListenerInvoked("demo_all", ResultOK)
		m.DispatchObserved("created", "MyModel", time.Second)
	})
}

func TestMetrics_ScopeClosed(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ScopeClosed(OutcomeCommitted, 2)
	m.ScopeClosed(OutcomeCommitted, 1)
	m.ScopeClosed(OutcomeRolledBack, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.scopes.WithLabelValues(OutcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scopes.WithLabelValues(OutcomeRolledBack)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.records.WithLabelValues(OutcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.records.WithLabelValues(OutcomeRolledBack)))
}

func TestMetrics_ListenerInvoked(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ListenerInvoked("demo_all", ResultOK)
	m.ListenerInvoked("demo_all", ResultFailure)
	m.ListenerInvoked("demo_all", ResultOK)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.listenerCalls.WithLabelValues("demo_all", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.listenerCalls.WithLabelValues("demo_all", ResultFailure)))
}

func TestMetrics_DispatchObserved(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.DispatchObserved("created", "MyModel", 3*time.Second)

	count, err := testutil.GatherAndCount(reg, "txsignal_dispatch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
