package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_cache_hits_total",
			Help: "Total number of query cache hits",
		},
		[]string{"layer"}, // "memory", "redis"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pager_cache_misses_total",
			Help: "Total number of query cache misses",
		},
	)

	// CacheSize tracks bytes written by layer
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pager_cache_size_bytes",
			Help: "Bytes of query results written to the cache",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheEntries tracks entries held by layer
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pager_cache_entries",
			Help: "Number of query results held in the cache",
		},
		[]string{"layer"}, // "memory"
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)

	// SectionPlans tracks planned cached sections by kind
	SectionPlans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_cache_plans_total",
			Help: "Total number of cached section plans by kind",
		},
		[]string{"kind"}, // "miss", "start", "end", "complete"
	)
)
