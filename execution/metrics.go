package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	queries      *prometheus.CounterVec
	docsExamined prometheus.Counter
	keysExamined prometheus.Counter
	docsReturned prometheus.Counter
}

// NewMetrics registers the execution metrics with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		queries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "docdb",
			Subsystem: "execution",
			Name:      "queries_total",
			Help:      "Total number of queries built, by access path and projection strategy.",
		}, []string{"access_path", "strategy"}),
		docsExamined: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "docdb",
			Subsystem: "execution",
			Name:      "documents_examined_total",
			Help:      "Total number of documents read from record stores.",
		}),
		keysExamined: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "docdb",
			Subsystem: "execution",
			Name:      "keys_examined_total",
			Help:      "Total number of index entries read by index scans.",
		}),
		docsReturned: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "docdb",
			Subsystem: "execution",
			Name:      "cursor_documents_returned_total",
			Help:      "Total number of documents returned by cursors to the pipeline.",
		}),
	}
}
