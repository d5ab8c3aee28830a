package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "csmkit_breaker_state",
		Help: "Breaker state: 0 closed, 1 open, 2 half-open.",
	}, []string{"breaker"})

	metricBreakerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csmkit_breaker_calls_total",
		Help: "Measured calls through the breaker by outcome.",
	}, []string{"breaker", "outcome"})

	metricBreakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csmkit_breaker_rejected_total",
		Help: "Calls refused while the breaker was open.",
	}, []string{"breaker"})

	metricBreakerElapsed = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "csmkit_breaker_call_seconds",
		Help:    "Wall-clock duration of measured calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"breaker"})
)
