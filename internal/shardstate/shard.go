package shardstate

import "sync"

// ShardState tags a subject shard's lifecycle, adapted from the teacher's
// ShardState (which tracked migration between nodes) to GDPR's narrower
// transitions: a shard is created on first write and retired once FORGET
// has erased it.
type ShardState string

const (
	// Active shards accept reads and writes.
	Active ShardState = "active"

	// Forgotten shards have had GDPR FORGET applied: their row data and
	// encryption key are gone, and any further read of the shard name
	// should behave as if it never existed.
	Forgotten ShardState = "forgotten"
)

// OperationStats counts operations against one shard, mirroring the
// teacher's per-shard OperationStats but without the get/put/delete split,
// since k9db's operations are rows-inserted/rows-deleted at the dataflow
// level rather than raw KV verbs.
type OperationStats struct {
	RowsWritten uint64
	RowsDeleted uint64
}

// Shard is the runtime record for one subject's shard: every table's rows
// for that subject are namespaced under Shard.Name as the shard-cipher
// prefix (internal/crypto.EncryptSeek(Name)).
type Shard struct {
	Name string

	mu    sync.RWMutex
	state ShardState
	stats OperationStats
}

// NewShard returns an Active shard named name.
func NewShard(name string) *Shard {
	return &Shard{Name: name, state: Active}
}

func (s *Shard) State() ShardState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Shard) MarkForgotten() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Forgotten
}

func (s *Shard) RecordWrite(rows uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.RowsWritten += rows
}

func (s *Shard) RecordDelete(rows uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.RowsDeleted += rows
}

func (s *Shard) Stats() OperationStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
