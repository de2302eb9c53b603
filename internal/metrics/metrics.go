// Package metrics registers the indexer's Prometheus gauges and counters
// against a dedicated registry, following the registerer-per-component
// pattern other_examples/2b3f73d4_lasthyphen-laper__vms-avm-vm.go.go uses
// (prometheus.NewRegistry() passed to the component that owns its metrics,
// rather than relying on the global default registry).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the indexer's gauges/counters. The Block Processor updates
// BlocksProcessed, BlockHeight, CharmsIndexed, ProcessingErrors and
// BlockProcessTime; MempoolSeenTxids is registered but nothing updates it.
type Metrics struct {
	BlocksProcessed   *prometheus.CounterVec
	BlockHeight       *prometheus.GaugeVec
	CharmsIndexed     *prometheus.CounterVec
	MempoolSeenTxids  *prometheus.GaugeVec
	ProcessingErrors  *prometheus.CounterVec
	BlockProcessTime  *prometheus.HistogramVec
}

// New registers every metric on reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BlocksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charms_indexer_blocks_processed_total",
			Help: "Blocks successfully processed, per network.",
		}, []string{"network"}),
		BlockHeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "charms_indexer_block_height",
			Help: "Last processed block height, per network.",
		}, []string{"network"}),
		CharmsIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charms_indexer_charms_indexed_total",
			Help: "Charms persisted, per network and asset_type.",
		}, []string{"network", "asset_type"}),
		MempoolSeenTxids: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "charms_indexer_mempool_seen_txids",
			Help: "Size of the in-memory seen_txids cache, per network.",
		}, []string{"network"}),
		ProcessingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charms_indexer_processing_errors_total",
			Help: "Recoverable errors encountered, per network and kind.",
		}, []string{"network", "kind"}),
		BlockProcessTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "charms_indexer_block_process_seconds",
			Help:    "Wall time to fetch, parse and persist one block.",
			Buckets: prometheus.DefBuckets,
		}, []string{"network"}),
	}

	reg.MustRegister(
		m.BlocksProcessed,
		m.BlockHeight,
		m.CharmsIndexed,
		m.MempoolSeenTxids,
		m.ProcessingErrors,
		m.BlockProcessTime,
	)
	return m
}
