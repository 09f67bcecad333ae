package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks detail and listing fetches by kind and result.
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_fetches_total",
			Help: "Total number of source page fetches (by kind and result).",
		},
		[]string{"kind", "result"}, // kind = listing | detail
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_fetch_duration_seconds",
			Help:    "Duration of source page fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms → ~25s
		},
		[]string{"kind"},
	)

	// Tracks store writes by operation and result.
	UpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_upserts_total",
			Help: "Total number of instrument upserts (by operation and result).",
		},
		[]string{"operation", "result"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_runs_total",
			Help: "Total number of pipeline runs (by trigger and status).",
		},
		[]string{"trigger", "status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_run_duration_seconds",
			Help:    "Wall time of pipeline runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	InFlightFetches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_in_flight_fetches",
			Help: "Detail fetches currently holding a permit.",
		},
	)

	// Gauges the last completed run time (seconds since epoch).
	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_last_run_timestamp",
			Help: "Timestamp (unix seconds) of the last completed pipeline run.",
		},
	)

	InsightCacheAccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_insight_cache_access_total",
			Help: "Number of cache hits/misses for insight queries.",
		},
		[]string{"result"}, // hit | miss
	)
)

// ObserveFetch records the result and duration of one fetch.
func ObserveFetch(kind, result string, start time.Time) {
	FetchesTotal.WithLabelValues(kind, result).Inc()
	FetchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func IncUpsert(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	UpsertsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveRun records a finished run.
func ObserveRun(trigger, status string, duration time.Duration) {
	RunsTotal.WithLabelValues(trigger, status).Inc()
	RunDuration.Observe(duration.Seconds())
	LastRunTimestamp.SetToCurrentTime()
}

func IncCacheAccess(hit bool) {
	if hit {
		InsightCacheAccess.WithLabelValues("hit").Inc()
		return
	}
	InsightCacheAccess.WithLabelValues("miss").Inc()
}
