package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RunsTotal counts audit records by outcome.
// Labels: outcome (queued, dropped, written, archive_error, sink_error)
var RunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "insights",
		Subsystem: "audit",
		Name:      "runs_total",
		Help:      "Audit records by outcome",
	},
	[]string{"outcome"},
)
