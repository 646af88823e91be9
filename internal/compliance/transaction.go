package compliance

import (
	"fmt"
	"sync"

	"github.com/dreamware/k9db/internal/record"
)

// DefaultShard is the reserved shard name for rows whose owner has not yet
// been resolved, per spec.md section 3.
const DefaultShard = "default"

// State tags where a Transaction sits in the
// Idle -> Open -> Checkpointed* -> Open -> Committed|RolledBack lifecycle
// spec.md section 4.10 describes.
type State uint8

const (
	Idle State = iota
	Open
	Checkpointed
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Open:
		return "Open"
	case Checkpointed:
		return "Checkpointed"
	case Committed:
		return "Committed"
	case RolledBack:
		return "RolledBack"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// ExistsChecker answers whether (table, pk) is still present in
// DefaultShard. internal/engine supplies this against live kvstore data at
// Commit time; this package has no storage access of its own, the same
// narrow-seam shape shardstate.ForeignResolver uses for ownership
// resolution.
type ExistsChecker func(table string, pk record.Value) (bool, error)

// OrphanError is returned by Commit when rows created in the default shard
// during the transaction are still there. It is the ComplianceError kind
// spec.md section 7 assigns to this case: recoverable, surfaced to the
// caller, and the transaction stays Open so the caller can reconcile
// (typically by re-running the OWNS update that resolves the row) or
// Discard.
type OrphanError struct {
	Rows []string // "table:pk" for each still-orphaned row, for diagnostics
}

func (e *OrphanError) Error() string {
	return fmt.Sprintf("compliance: %d orphaned row(s) remain in the default shard: %v", len(e.Rows), e.Rows)
}

type orphanSet map[string]map[record.Key]record.Value

func keyOf(pk record.Value) record.Key {
	return record.New(true, []record.Value{pk}).KeyFor([]int{0})
}

func newOrphanSet() orphanSet { return make(orphanSet) }

func (o orphanSet) add(table string, pk record.Value) {
	bucket, ok := o[table]
	if !ok {
		bucket = make(map[record.Key]record.Value)
		o[table] = bucket
	}
	bucket[keyOf(pk)] = pk
}

func (o orphanSet) mergeFrom(other orphanSet) {
	for table, pks := range other {
		for _, pk := range pks {
			o.add(table, pk)
		}
	}
}

// Transaction scopes one logical client operation's worth of default-shard
// writes. Ported from original_source/pelton/ctx.{h,cc}'s
// ComplianceTransaction, generalized from its single optional checkpoint
// into the explicit checkpoint stack spec.md's "stack-discipline over
// orphan deltas" calls for: only the top of the stack can be rolled back,
// and committing a checkpoint merges its orphans into the ones accumulated
// by enclosing checkpoints (or the transaction itself, if there are none).
type Transaction struct {
	mu          sync.Mutex
	state       State
	orphans     orphanSet
	checkpoints []orphanSet
}

// New returns a Transaction in the Idle state.
func New() *Transaction {
	return &Transaction{state: Idle, orphans: newOrphanSet()}
}

// State returns the transaction's current state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start opens the transaction, clearing any prior orphan map. Requires Idle.
func (t *Transaction) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Idle {
		return fmt.Errorf("compliance: Start: transaction is %s, want Idle", t.state)
	}
	t.orphans = newOrphanSet()
	t.checkpoints = nil
	t.state = Open
	return nil
}

// AddCheckpoint pushes a new checkpoint frame. Orphans recorded after this
// call and before the matching CommitCheckpoint/RollbackCheckpoint belong
// to this frame only.
func (t *Transaction) AddCheckpoint() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Open && t.state != Checkpointed {
		return fmt.Errorf("compliance: AddCheckpoint: transaction is %s, want Open or Checkpointed", t.state)
	}
	t.checkpoints = append(t.checkpoints, newOrphanSet())
	t.state = Checkpointed
	return nil
}

// RollbackCheckpoint discards the top checkpoint frame's orphans without
// merging them into the transaction's accumulated set. Only the most
// recently added checkpoint may be rolled back.
func (t *Transaction) RollbackCheckpoint() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Checkpointed || len(t.checkpoints) == 0 {
		return fmt.Errorf("compliance: RollbackCheckpoint: no open checkpoint (state %s)", t.state)
	}
	t.checkpoints = t.checkpoints[:len(t.checkpoints)-1]
	if len(t.checkpoints) == 0 {
		t.state = Open
	}
	return nil
}

// CommitCheckpoint merges the top checkpoint frame's orphans into the next
// frame down (or the transaction's own orphan set, if this was the
// outermost checkpoint).
func (t *Transaction) CommitCheckpoint() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Checkpointed || len(t.checkpoints) == 0 {
		return fmt.Errorf("compliance: CommitCheckpoint: no open checkpoint (state %s)", t.state)
	}
	top := t.checkpoints[len(t.checkpoints)-1]
	t.checkpoints = t.checkpoints[:len(t.checkpoints)-1]
	if len(t.checkpoints) > 0 {
		t.checkpoints[len(t.checkpoints)-1].mergeFrom(top)
	} else {
		t.orphans.mergeFrom(top)
		t.state = Open
	}
	return nil
}

// AddOrphan records that table's row pk was just written to DefaultShard
// during this transaction. Legal only inside a checkpoint.
func (t *Transaction) AddOrphan(table string, pk record.Value) error {
	return t.AddOrphans(table, []record.Value{pk})
}

// AddOrphans is AddOrphan for a batch of primary keys of the same table.
func (t *Transaction) AddOrphans(table string, pks []record.Value) error {
	if len(pks) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Checkpointed || len(t.checkpoints) == 0 {
		return fmt.Errorf("compliance: AddOrphans: orphaned data recorded outside of a checkpoint (state %s)", t.state)
	}
	top := t.checkpoints[len(t.checkpoints)-1]
	for _, pk := range pks {
		top.add(table, pk)
	}
	return nil
}

// Commit scans every orphan this transaction has accumulated against
// DefaultShard via exists. If any is still there, Commit fails with an
// *OrphanError and the transaction remains Open so the caller can
// reconcile (issue the OWNS write that resolves the row) or Discard;
// otherwise the transaction moves to Committed. Per spec.md section 8
// invariant 5: Commit returns OK iff the default shard contains no row
// whose pk is in the transaction's orphan set.
func (t *Transaction) Commit(exists ExistsChecker) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Open {
		return fmt.Errorf("compliance: Commit: transaction is %s, want Open", t.state)
	}

	var remaining []string
	for table, pks := range t.orphans {
		for _, pk := range pks {
			ok, err := exists(table, pk)
			if err != nil {
				return fmt.Errorf("compliance: commit: check %s: %w", table, err)
			}
			if ok {
				remaining = append(remaining, fmt.Sprintf("%s:%v", table, pk))
			}
		}
	}
	if len(remaining) > 0 {
		return &OrphanError{Rows: remaining}
	}

	t.orphans = newOrphanSet()
	t.state = Committed
	return nil
}

// Discard abandons every orphan recorded by this transaction without
// checking them, moving it to the terminal RolledBack state.
func (t *Transaction) Discard() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Open {
		return fmt.Errorf("compliance: Discard: transaction is %s, want Open", t.state)
	}
	t.orphans = newOrphanSet()
	t.checkpoints = nil
	t.state = RolledBack
	return nil
}
