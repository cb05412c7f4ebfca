package metrics

import "github.com/prometheus/client_golang/prometheus"

// Maintainer Prometheus metrics.
var (
	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omniview",
			Name:      "batches_total",
			Help:      "Total number of change batches processed",
		},
		[]string{"source", "status"},
	)

	BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omniview",
			Name:      "batch_duration_seconds",
			Help:      "Change batch processing duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	RecordsClassifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omniview",
			Name:      "records_classified_total",
			Help:      "Change records by classified kind",
		},
		[]string{"kind"},
	)

	RecordsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omniview",
			Name:      "records_skipped_total",
			Help:      "Change records or events skipped without a write",
		},
		[]string{"reason"}, // "malformed" / "ignored" / "duplicate" / "absent" / "entity_miss" / "type_miss"
	)

	AggregateWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omniview",
			Name:      "aggregate_writes_total",
			Help:      "Writes issued against the aggregate",
		},
		[]string{"op", "status"},
	)

	VersionConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omniview",
			Name:      "version_conflicts_total",
			Help:      "Aggregate version conflicts by step",
		},
		[]string{"step"},
	)
)

func init() {
	prometheus.MustRegister(BatchesTotal)
	prometheus.MustRegister(BatchDuration)
	prometheus.MustRegister(RecordsClassifiedTotal)
	prometheus.MustRegister(RecordsSkippedTotal)
	prometheus.MustRegister(AggregateWritesTotal)
	prometheus.MustRegister(VersionConflictsTotal)
}
