package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	syncTotal       *prometheus.CounterVec
	testTotal       *prometheus.CounterVec
}

// NewMetrics registers the hub collectors on a fresh registry so tests can
// run isolated servers without duplicate-registration panics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hub_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		syncTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_provider_syncs_total",
			Help: "Provider sync attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		testTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hub_connection_tests_total",
			Help: "Connection tests by provider and outcome.",
		}, []string{"provider", "outcome"}),
	}
	reg.MustRegister(m.requestDuration, m.syncTotal, m.testTotal)
	return m
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
