package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksProcessed tracks total blocks fetched and assembled by the fetcher.
	BlocksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_blocks_processed_total",
			Help: "Total number of blocks fetched and assembled",
		},
	)

	// RangesCompleted and RangesFailed track work-queue outcomes.
	RangesCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_ranges_completed_total",
			Help: "Total number of ranges acknowledged as complete",
		},
	)
	RangesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_ranges_failed_total",
			Help: "Total number of ranges returned to the queue after a failure",
		},
	)

	// RPCCallsTotal tracks RPC calls per method.
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"method"},
	)

	// RPCErrorsTotal tracks RPC errors per method and classification.
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"method", "action"},
	)

	// RPCLatency tracks RPC call latency per method.
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watcher_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// ChainLatestBlock tracks the latest finalized height the seeder observed.
	ChainLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watcher_chain_latest_block",
			Help: "Latest finalized block height observed by the seeder",
		},
	)

	// IndexerLastProcessed tracks the progress watermark's committed height.
	IndexerLastProcessed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watcher_indexer_last_processed",
			Help: "Highest block number committed to storage",
		},
	)

	// QueueDepth tracks pending, processing, and dead-letter range counts.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watcher_queue_depth",
			Help: "Number of ranges in the work queue by state",
		},
		[]string{"state"},
	)

	// DBBatchSize tracks row counts per batch write, by table.
	DBBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watcher_db_batch_size",
			Help:    "Row count of each batch write",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"table"},
	)

	// ZombiesRecovered tracks ranges the janitor moved back to the work list.
	ZombiesRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watcher_zombies_recovered_total",
			Help: "Total number of expired leases recovered by the janitor",
		},
	)
)
