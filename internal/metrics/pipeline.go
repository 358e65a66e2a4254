package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest pipeline metrics.
// All metrics are low-cardinality (no camera_id labels).

var (
	DetectionsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lantern_detections_ingested_total",
		Help: "Detections accepted into the ingest channel",
	})

	DetectionsDedupedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lantern_detections_deduped_total",
		Help: "Detections suppressed as duplicates before enqueue",
	})

	DetectionsPersistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lantern_detections_persisted_total",
		Help: "Detections durably written by the batch collector",
	})

	DetectionsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lantern_detections_dropped_total",
		Help: "Detections dropped after flush failure, by reason",
	}, []string{"reason"})

	BatchesFlushedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lantern_batches_flushed_total",
		Help: "Batch flush attempts by outcome",
	}, []string{"result"})

	BatchFlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lantern_batch_flush_duration_ms",
		Help:    "Batch flush latency in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	IngestQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lantern_ingest_queue_depth",
		Help: "Detections buffered in the ingest channel",
	})
)

// Nightly report metrics.

var (
	ReportCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lantern_report_cycles_total",
		Help: "Nightly report cycles by outcome",
	}, []string{"result"})

	ReportLastCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lantern_report_last_count",
		Help: "Detection count of the most recent nightly report",
	})
)
