package safedb

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/querysafe/querysafe/metrics"
)

// queryMetrics holds the prometheus stats for statements run through a DB.
type queryMetrics struct {
	queries  *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	rejected *prometheus.CounterVec
}

func newQueryMetrics(stats prometheus.Registerer) *queryMetrics {
	queries := metrics.RegisterOrReuse(stats, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "querysafe_queries_total",
		Help: "Number of statements sent to the database, by kind and result.",
	}, []string{"kind", "result"}))

	latency := metrics.RegisterOrReuse(stats, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "querysafe_query_duration_seconds",
		Help:    "Time taken by the database to run a statement, by kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"}))

	rejected := metrics.RegisterOrReuse(stats, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "querysafe_rejected_total",
		Help: "Number of statements refused before reaching the database, by error type.",
	}, []string{"error_type"}))

	return &queryMetrics{
		queries:  queries,
		latency:  latency,
		rejected: rejected,
	}
}

// observe records one statement that reached the database. result is
// "success" or the error type of the failure.
func (m *queryMetrics) observe(kind, result string, took time.Duration) {
	m.queries.WithLabelValues(kind, result).Inc()
	m.latency.WithLabelValues(kind).Observe(took.Seconds())
}
