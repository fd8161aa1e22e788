package assembler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CategoryFetchTotal counts per-category repository reads.
	// Labels: category, result (ok, error)
	CategoryFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insights",
			Subsystem: "assembler",
			Name:      "category_fetch_total",
			Help:      "Per-category record fetches by result",
		},
		[]string{"category", "result"},
	)

	// RecordsLoaded tracks how many records land in a snapshot per category.
	RecordsLoaded = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "insights",
			Subsystem: "assembler",
			Name:      "records_loaded",
			Help:      "Records loaded into a snapshot per category",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200, 500},
		},
		[]string{"category"},
	)
)
