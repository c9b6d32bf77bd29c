package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay's Prometheus metrics.
type Metrics struct {
	GatekeeperDecisions *prometheus.CounterVec
	FieldRepairs        *prometheus.CounterVec
	EventsTotal         *prometheus.CounterVec
	UpstreamDuration    *prometheus.HistogramVec
}

// NewMetrics creates and registers all relay metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		GatekeeperDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "capi_relay_gatekeeper_decisions_total",
			Help: "CORS and method decisions by outcome.",
		}, []string{"method", "outcome"}),

		FieldRepairs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "capi_relay_field_repairs_total",
			Help: "Event fields repaired or dropped during normalization.",
		}, []string{"field", "action"}),

		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "capi_relay_events_total",
			Help: "Tracking requests by final status.",
		}, []string{"status"}),

		UpstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "capi_relay_upstream_duration_seconds",
			Help:    "Latency of Conversions API calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
	}
}

// NewNopMetrics returns metrics registered to a throwaway registry.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
