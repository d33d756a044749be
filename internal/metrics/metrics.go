package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamQueries counts ledger table queries by table and status
	UpstreamQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dapphub_upstream_queries_total",
			Help: "Total number of ledger table queries",
		},
		[]string{"table", "status"},
	)

	// UpstreamQueryDuration tracks ledger query latency by table
	UpstreamQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dapphub_upstream_query_duration_seconds",
			Help:    "Ledger table query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	// CacheRequests counts aggregate cache lookups by cache and outcome
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dapphub_cache_requests_total",
			Help: "Aggregate cache lookups by cache name and outcome",
		},
		[]string{"cache", "outcome"},
	)

	// MetadataFetches counts off-chain registry fetches by status
	MetadataFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dapphub_metadata_fetches_total",
			Help: "Off-chain metadata registry fetches",
		},
		[]string{"registry", "status"},
	)
)

// ObserveUpstreamQuery records one ledger query outcome.
func ObserveUpstreamQuery(table string, dur time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	UpstreamQueries.WithLabelValues(table, status).Inc()
	UpstreamQueryDuration.WithLabelValues(table).Observe(dur.Seconds())
}

// CacheHit records a served-from-cache lookup.
func CacheHit(cache string) {
	CacheRequests.WithLabelValues(cache, "hit").Inc()
}

// CacheMiss records a lookup that triggered a fresh fetch.
func CacheMiss(cache string) {
	CacheRequests.WithLabelValues(cache, "miss").Inc()
}
