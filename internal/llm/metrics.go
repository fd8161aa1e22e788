package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ModelRequestsTotal counts model calls.
	// Labels: result (ok, error, timeout, empty)
	ModelRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insights",
			Subsystem: "model",
			Name:      "requests_total",
			Help:      "Language model calls by result",
		},
		[]string{"result"},
	)

	// ModelLatency tracks model call duration.
	ModelLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "insights",
			Subsystem: "model",
			Name:      "latency_seconds",
			Help:      "Language model call latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
)
