package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		upstreamCallsTotal,
		upstreamLatencyMs,
	)
}

var (
	upstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_calls_total",
			Help: "Relayed upstream calls per endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"}, // outcome: 'ok', 'failed', 'quota', 'unknown'
	)

	upstreamLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_ms",
			Help:    "Upstream call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"endpoint", "success"},
	)
)

func IncUpstreamCall(endpoint, outcome string) {
	upstreamCallsTotal.WithLabelValues(norm(endpoint), norm(outcome)).Inc()
}

func ObserveUpstreamLatency(endpoint string, latencyMs int64, success bool) {
	s := "false"
	if success {
		s = "true"
	}
	upstreamLatencyMs.WithLabelValues(norm(endpoint), s).Observe(float64(latencyMs))
}
