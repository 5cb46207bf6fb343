package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questlog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "questlog_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ThreadAnomalies counts rows the thread assembler had to degrade or drop.
	ThreadAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questlog_thread_anomalies_total",
			Help: "Review thread rows with dangling or inconsistent references",
		},
		[]string{"kind"},
	)

	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questlog_thread_mutations_total",
			Help: "Review, reply and vote mutations by outcome",
		},
		[]string{"op", "result"},
	)

	ThreadCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questlog_thread_cache_lookups_total",
			Help: "Thread row snapshot cache lookups",
		},
		[]string{"result"},
	)

	// CatalogBreakerState 0=closed 1=half-open 2=open
	CatalogBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "questlog_catalog_breaker_state",
			Help: "State of the game catalog circuit breaker",
		},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questlog_rate_limited_requests_total",
			Help: "Requests rejected by the per-client rate limiter",
		},
		[]string{"path"},
	)
)
