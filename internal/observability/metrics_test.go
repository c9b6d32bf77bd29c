package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.GatekeeperDecisions.WithLabelValues("POST", "allowed").Inc()
	m.FieldRepairs.WithLabelValues("fbp", "generated").Inc()
	m.EventsTotal.WithLabelValues("delivered").Inc()
	m.UpstreamDuration.WithLabelValues("delivered").Observe(0.1)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("delivered")))
}

func TestNewMetrics_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	assert.Panics(t, func() { NewMetrics(reg) })
}
