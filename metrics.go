package metrictree

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records build and query activity as Prometheus series under the
// "metrictree" namespace. A nil *Metrics is valid and records nothing.
type Metrics struct {
	builds         prometheus.Counter
	buildDuration  prometheus.Histogram
	buildDistances prometheus.Counter
	buildErrors    prometheus.Counter

	queries        *prometheus.CounterVec
	queryErrors    *prometheus.CounterVec
	queryDistances *prometheus.HistogramVec
	nodesVisited   *prometheus.HistogramVec
	queryDuration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		builds: f.NewCounter(prometheus.CounterOpts{
			Namespace: "metrictree",
			Subsystem: "build",
			Name:      "total",
			Help:      "Completed tree builds",
		}),
		buildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "metrictree",
			Subsystem: "build",
			Name:      "duration_seconds",
			Help:      "Tree build wall time in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		buildDistances: f.NewCounter(prometheus.CounterOpts{
			Namespace: "metrictree",
			Subsystem: "build",
			Name:      "distance_computations_total",
			Help:      "Distance computations spent building trees",
		}),
		buildErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "metrictree",
			Subsystem: "build",
			Name:      "errors_total",
			Help:      "Failed tree builds",
		}),
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metrictree",
			Subsystem: "query",
			Name:      "total",
			Help:      "Queries by kind (range, knn)",
		}, []string{"kind"}),
		queryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "metrictree",
			Subsystem: "query",
			Name:      "errors_total",
			Help:      "Failed queries by kind (range, knn)",
		}, []string{"kind"}),
		queryDistances: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metrictree",
			Subsystem: "query",
			Name:      "distance_computations",
			Help:      "Distance computations per query",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"kind"}),
		nodesVisited: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metrictree",
			Subsystem: "query",
			Name:      "nodes_visited",
			Help:      "Tree nodes visited per query",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"kind"}),
		queryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metrictree",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Query latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"kind"}),
	}
}

func (m *Metrics) observeBuild(stats TreeStats, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.buildErrors.Inc()
		return
	}
	m.builds.Inc()
	m.buildDuration.Observe(stats.BuildDuration.Seconds())
	m.buildDistances.Add(float64(stats.BuildDistanceComputations))
}

func (m *Metrics) observeQuery(kind string, stats QueryStats, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.queryErrors.WithLabelValues(kind).Inc()
		return
	}
	m.queries.WithLabelValues(kind).Inc()
	m.queryDistances.WithLabelValues(kind).Observe(float64(stats.DistanceComputations))
	m.nodesVisited.WithLabelValues(kind).Observe(float64(stats.NodesVisited))
	m.queryDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
