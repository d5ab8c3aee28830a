package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csmkit_cache_hits_total",
		Help: "Cache reads served without touching the store.",
	}, []string{"cache"})

	metricMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csmkit_cache_misses_total",
		Help: "Cache reads that fell through to the store.",
	}, []string{"cache"})

	metricEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csmkit_cache_evictions_total",
		Help: "Entries removed because their TTL had passed.",
	}, []string{"cache"})

	metricEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "csmkit_cache_entries",
		Help: "Entries currently stored, expired-but-unread included.",
	}, []string{"cache"})
)
