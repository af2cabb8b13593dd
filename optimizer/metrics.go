package optimizer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	passes        prometheus.Counter
	absorbed      *prometheus.CounterVec
	optimizedAway prometheus.Counter
}

// NewMetrics registers the optimizer metrics with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		passes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "docdb",
			Subsystem: "optimizer",
			Name:      "passes_total",
			Help:      "Total number of pipelines optimized.",
		}),
		absorbed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "docdb",
			Subsystem: "optimizer",
			Name:      "projections_absorbed_total",
			Help:      "Total number of projections pushed down to the cursor.",
		}, []string{"covered", "inferred"}),
		optimizedAway: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "docdb",
			Subsystem: "optimizer",
			Name:      "pipelines_optimized_away_total",
			Help:      "Total number of pipelines that ran as a plain cursor without pipeline stages.",
		}),
	}
}
