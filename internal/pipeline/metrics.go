package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts answered queries by terminal status.
	// Labels: status (done, rejected, failed), reason
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insights",
			Subsystem: "workflow",
			Name:      "queries_total",
			Help:      "Answered queries by terminal status and reason",
		},
		[]string{"status", "reason"},
	)

	// StageDuration tracks how long each workflow stage takes.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "insights",
			Subsystem: "workflow",
			Name:      "stage_duration_seconds",
			Help:      "Duration of workflow stages in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// SynthesisAttempts tracks model attempts per synthesized query.
	SynthesisAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "insights",
			Subsystem: "workflow",
			Name:      "synthesis_attempts",
			Help:      "Model attempts used per synthesis",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)

	// InvariantViolations counts grounded-category mismatches. Any non-zero
	// value needs investigation.
	InvariantViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "insights",
			Subsystem: "workflow",
			Name:      "invariant_violations_total",
			Help:      "Grounded categories found outside the snapshot",
		},
	)
)
