package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters and gauges, partitioned by network.

var (
	// Endpoint pool
	PoolEndpoints = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cosmos_indexer",
		Subsystem: "pool",
		Name:      "endpoints",
		Help:      "Endpoints currently in the pool",
	}, []string{"network"})

	PoolRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cosmos_indexer",
		Subsystem: "pool",
		Name:      "rejected_total",
		Help:      "Candidate endpoints rejected by the health check",
	}, []string{"network"})

	PoolRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cosmos_indexer",
		Subsystem: "pool",
		Name:      "refreshes_total",
		Help:      "Pool refreshes (scheduled and escalated)",
	}, []string{"network"})

	// Fetcher
	RPCCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cosmos_indexer",
		Subsystem: "fetcher",
		Name:      "rpc_calls_total",
		Help:      "RPC calls by endpoint, method and result",
	}, []string{"network", "endpoint", "method", "result"})

	RPCLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cosmos_indexer",
		Subsystem: "fetcher",
		Name:      "rpc_duration_seconds",
		Help:      "RPC call duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"network", "method"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cosmos_indexer",
		Subsystem: "fetcher",
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by kind and result (hit, miss, error)",
	}, []string{"network", "kind", "result"})

	// Composer
	ComposeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cosmos_indexer",
		Subsystem: "composer",
		Name:      "batch_failures_total",
		Help:      "Failed batch composition attempts",
	}, []string{"network"})

	// Watcher
	LatestHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cosmos_indexer",
		Subsystem: "watcher",
		Name:      "latest_height",
		Help:      "Latest chain height observed",
	}, []string{"network"})

	DeliveredHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cosmos_indexer",
		Subsystem: "watcher",
		Name:      "delivered_height",
		Help:      "Last height delivered to the consumer",
	}, []string{"network"})

	BlocksDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cosmos_indexer",
		Subsystem: "watcher",
		Name:      "blocks_delivered_total",
		Help:      "Blocks delivered to the consumer",
	}, []string{"network"})

	WorkerRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cosmos_indexer",
		Subsystem: "watcher",
		Name:      "worker_restarts_total",
		Help:      "Network worker restarts after a failure",
	}, []string{"network"})
)
