// Package metrics exposes Prometheus collectors for the sync engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calsync_sync_runs_total",
			Help: "Total number of calendar sync runs by terminal status",
		},
		[]string{"status", "trigger"},
	)

	SyncRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calsync_sync_run_duration_seconds",
			Help:    "Calendar sync run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"status"},
	)

	RecordsReconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calsync_records_reconciled_total",
			Help: "Total number of upstream records written by entity and outcome",
		},
		[]string{"entity", "outcome"},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calsync_api_requests_total",
			Help: "Total number of event platform API requests by endpoint and status class",
		},
		[]string{"endpoint", "status"},
	)

	RateLimitWaits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calsync_rate_limit_waits_total",
			Help: "Number of times a request was suspended by the API request budget",
		},
	)

	PeopleLinked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "calsync_people_linked_total",
			Help: "Total number of external people linked to local users",
		},
	)
)

func init() {
	prometheus.MustRegister(SyncRunsTotal)
	prometheus.MustRegister(SyncRunDuration)
	prometheus.MustRegister(RecordsReconciled)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(RateLimitWaits)
	prometheus.MustRegister(PeopleLinked)
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
