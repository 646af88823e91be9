// Package shardstate tracks, for every table in the schema, which shard(s)
// own or can read its rows (spec.md section 2's OWNS/ACCESSES annotations)
// and the runtime state of each subject's shard. It is k9db's analogue of
// the teacher's internal/shard and internal/coordinator packages: the same
// "per-partition state plus a registry that maps keys to partitions" shape,
// generalized from a hash-bucket shard to a per-subject GDPR shard whose
// identity is a value, not a bucket index.
package shardstate
