package dataflow

import (
	"hash/fnv"

	"github.com/dreamware/k9db/internal/record"
)

// PartitionOf computes which of n worker partitions a row belongs to, based
// on the bytes of its partitioning column value. It reuses the exact
// FNV-1a-plus-modulo routing internal/coordinator/shard_registry.go (this
// pack's teacher) uses in GetShardForKey, so that the "same hash function
// must be used everywhere" invariant spec.md section 4.7 requires holds by
// construction between shard routing and dataflow partition routing,
// rather than by convention.
func PartitionOf(v record.Value, n int) int {
	if n <= 0 {
		panic("dataflow: PartitionOf: n must be positive")
	}
	h := fnv.New32a()
	h.Write(v.Encode())
	return int(h.Sum32() % uint32(n))
}
