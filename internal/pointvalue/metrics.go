package pointvalue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncInsertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "historian_pointvalue_sync_inserts_total",
		Help: "Cumulative number of point values inserted synchronously.",
	})
	asyncEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "historian_pointvalue_async_enqueued_total",
		Help: "Cumulative number of point values queued for write-behind insertion.",
	})
	unsavedValues = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "historian_pointvalue_unsaved_values",
		Help: "Number of point values held in memory after failed synchronous inserts.",
	})
	unsavedDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "historian_pointvalue_unsaved_dropped_total",
		Help: "Cumulative number of unsaved point values discarded because the buffer was full.",
	})
	writeBehindQueueEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "historian_pointvalue_write_behind_queue_entries",
		Help: "Number of point values waiting for batch insertion.",
	})
	writeBehindInstances = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "historian_pointvalue_write_behind_instances",
		Help: "Number of running batch writer instances.",
	})
	writeBehindSpawnRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "historian_pointvalue_write_behind_spawn_rejected_total",
		Help: "Cumulative number of batch writer spawns rejected by the background executor.",
	})
	batchRowsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "historian_pointvalue_batch_rows_written_total",
		Help: "Cumulative number of point values written by batch inserts.",
	})
	batchRowsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "historian_pointvalue_batch_rows_dropped_total",
		Help: "Cumulative number of point values lost after batch insert retries were exhausted.",
	})
	batchWriteSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "historian_pointvalue_batch_write_seconds",
		Help:    "Latency of batch inserts, including retries.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})
	deletedRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "historian_pointvalue_deleted_rows_total",
		Help: "Cumulative number of point values removed by counting deletes and purges.",
	})
)
