package offline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csmkit_offline_queue_depth",
		Help: "Writes currently queued for sync.",
	})
	syncedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csmkit_offline_synced_total",
		Help: "Queued writes replayed successfully.",
	})
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csmkit_offline_dropped_total",
		Help: "Queued writes dropped because the backend rejected them.",
	})
)
