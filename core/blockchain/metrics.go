package blockchain

import (
	"github.com/cth001/exonum"
	"github.com/prometheus/client_golang/prometheus"
)

// defines prometheus metrics
var (
	promHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "exonum_blockchain_height",
		Help: "height of the last committed block",
	})

	promBlocks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exonum_blockchain_blocks_total",
		Help: "total number of blocks committed",
	})

	promProofsRefused = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exonum_blockchain_index_proofs_refused_total",
		Help: "total number of index proofs that could not be emitted",
	})
)

func init() {
	exonum.PromCollectors = append(exonum.PromCollectors, promHeight,
		promBlocks, promProofsRefused)
}
