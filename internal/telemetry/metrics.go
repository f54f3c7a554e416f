package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueryLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_lookups_total",
			Help: "Query cache lookups by operation and result (hit, miss, disabled).",
		},
		[]string{"op", "result"},
	)

	QueryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_fetches_total",
			Help: "Fetches issued to the marketplace service by operation and status.",
		},
		[]string{"op", "status"},
	)

	QueryFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "query_cache_fetch_duration_seconds",
			Help:    "Latency of query cache fetches.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	QueryDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_deduplicated_total",
			Help: "Lookups that joined an in-flight fetch instead of issuing a new one.",
		},
		[]string{"op"},
	)

	QueryInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_invalidated_entries_total",
			Help: "Cache entries marked stale by mutations.",
		},
		[]string{"op"},
	)

	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mutations_total",
			Help: "Mutations by name and result (success, validation, not_ready, remote).",
		},
		[]string{"mutation", "result"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		},
		[]string{"breaker"},
	)
)
