package merkledb

import (
	"github.com/cth001/exonum"
	"github.com/prometheus/client_golang/prometheus"
)

// defines prometheus metrics
var (
	promMerges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exonum_merkledb_merges_total",
		Help: "total number of patches merged into the database",
	})

	promMergeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "exonum_merkledb_merge_duration_seconds",
		Help:    "duration of the merges",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	promMergeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exonum_merkledb_merge_failures_total",
		Help: "total number of merges that left the database in a fatal state",
	})

	promChanges = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "exonum_merkledb_changes_merge",
		Help:    "number of keys written or deleted by the last merge",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	promSnapshots = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "exonum_merkledb_open_snapshots",
		Help: "number of snapshots that are not released",
	})

	promCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exonum_merkledb_cache_hits_total",
		Help: "total number of reads served by the cache",
	})

	promCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exonum_merkledb_cache_misses_total",
		Help: "total number of reads that missed the cache",
	})
)

func init() {
	exonum.PromCollectors = append(exonum.PromCollectors, promMerges,
		promMergeDuration, promMergeFailures, promChanges, promSnapshots,
		promCacheHits, promCacheMisses)
}
