package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_sync_operations_total",
		Help: "Replayed queue operations, labeled by kind and result (succeeded, retried, failed)",
	}, []string{"kind", "result"})

	drainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "receipt_sync_drain_duration_seconds",
		Help:    "Duration of sync queue drain passes",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "receipt_sync_queue_depth",
		Help: "Operations in the sync queue, labeled by status",
	}, []string{"status"})
)
