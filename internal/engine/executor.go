package engine

import (
	"github.com/dreamware/k9db/internal/compliance"
	"github.com/dreamware/k9db/internal/dataflow"
	"github.com/dreamware/k9db/internal/errkind"
	"github.com/dreamware/k9db/internal/record"
	"github.com/dreamware/k9db/internal/shardstate"
)

// Executor runs the statement-level operations (spec.md section 6) against
// one Session's Engine and compliance.Transaction. It is the narrow surface
// the out-of-scope SQL layer would sit on top of (see planner.go).
type Executor struct {
	session *Session
	engine  *Engine
	txn     *compliance.Transaction
}

// Insert resolves rec's owning shard, writes it, feeds the resulting
// positive delta into the dataflow graph, and — if the row's owner could
// not yet be resolved — records it as an orphan in the default shard under
// a fresh checkpoint, per spec.md section 4.11's insert steps.
func (ex *Executor) Insert(table string, rec *record.Record, future *dataflow.Future) error {
	t, ok := ex.engine.Table(table)
	if !ok {
		return &errkind.SchemaError{Table: table, Reason: "not found"}
	}
	meta, _ := ex.engine.State().Table(table)
	pk := rec.Values[meta.Schema.PKIndex]

	shardName, orphaned := ex.resolveShardForWrite(table, meta, rec)

	if exists, err := t.Exists(shardName, pk); err != nil {
		return &errkind.StorageError{Op: "insert: exists check", Err: err}
	} else if exists {
		return &errkind.ConstraintError{Table: table, Constraint: "primary key"}
	}

	if orphaned {
		if err := ex.txn.AddCheckpoint(); err != nil {
			return &errkind.ComplianceError{Reason: err.Error()}
		}
	}

	if err := t.Put(shardName, rec); err != nil {
		if orphaned {
			_ = ex.txn.RollbackCheckpoint()
		}
		return &errkind.StorageError{Op: "insert", Err: err}
	}
	if meta.IsOwned() {
		ex.engine.recordOwner(table, pk, shardName)
	}
	shard := ex.engine.State().GetOrCreateShard(shardName)
	shard.RecordWrite(1)

	if orphaned {
		if err := ex.txn.AddOrphans(table, []record.Value{pk}); err != nil {
			return &errkind.ComplianceError{Reason: err.Error()}
		}
		if err := ex.txn.CommitCheckpoint(); err != nil {
			return &errkind.ComplianceError{Reason: err.Error()}
		}
	}

	return ex.emit(table, meta, rec, future)
}

// resolveShardForWrite returns the shard a row should be written to, and
// whether that placement is an orphan (an owned table's row that landed in
// the default shard because its owner isn't resolvable yet).
func (ex *Executor) resolveShardForWrite(table string, meta *shardstate.TableMeta, rec *record.Record) (shard string, orphaned bool) {
	if !meta.IsOwned() {
		return compliance.DefaultShard, false
	}
	resolved, err := ex.engine.State().ResolveOwner(table, rec, ex.engine)
	if err != nil {
		return compliance.DefaultShard, true
	}
	return resolved, false
}

// emit fans rec out to table's own echo graph and to every materialized
// view currently reading live deltas from table (spec.md section 4.11
// steps 3/4: "emit a positive/negative delta to each base input of the
// relevant flows via partitioned channels"), all deriving their promises
// from the same future so a consistent caller's Wait sees every flow
// settle, not just the first.
func (ex *Executor) emit(table string, meta *shardstate.TableMeta, rec *record.Record, future *dataflow.Future) error {
	pool, ok := ex.engine.poolFor(table)
	if !ok {
		return &errkind.SchemaError{Table: table, Reason: "no dataflow pool registered"}
	}
	if future == nil {
		future = dataflow.NewFuture(false)
	}
	partitionCol := dataflow.ColumnID(meta.Schema.PKIndex)
	if err := pool.Emit(dataflow.FlowID(table), table, rec, partitionCol, future); err != nil {
		return &errkind.StorageError{Op: "emit", Err: err}
	}
	for _, view := range ex.engine.viewsFor(table) {
		viewPool, ok := ex.engine.viewPoolFor(view)
		if !ok {
			continue
		}
		if err := viewPool.Emit(dataflow.FlowID(view), table, rec, partitionCol, future); err != nil {
			return &errkind.StorageError{Op: "emit: view " + view, Err: err}
		}
	}
	return nil
}

// SelectView answers a read against a materialized view, per spec.md
// section 4.11 step 6's "if on a view: consult the corresponding matview
// operator using the key/range condition."
func (ex *Executor) SelectView(view string, cond LookupCondition) ([]*record.Record, error) {
	rows, err := ex.engine.SelectView(view, cond)
	if err != nil {
		return nil, &errkind.SchemaError{Table: view, Reason: err.Error()}
	}
	return rows, nil
}

// Delete removes pk's current row (wherever the owner index says it
// lives, defaulting to the default shard if never recorded) and feeds a
// negative delta into the dataflow graph.
func (ex *Executor) Delete(table string, pk record.Value, future *dataflow.Future) error {
	t, ok := ex.engine.Table(table)
	if !ok {
		return &errkind.SchemaError{Table: table, Reason: "not found"}
	}
	meta, _ := ex.engine.State().Table(table)

	shardName := compliance.DefaultShard
	if meta.IsOwned() {
		if s, err := ex.engine.ShardOf(table, pk); err == nil {
			shardName = s
		}
	}

	rec, err := t.GetDirect(shardName, pk)
	if err != nil {
		return &errkind.StorageError{Op: "delete: lookup", Err: err}
	}
	if err := t.Delete(shardName, pk); err != nil {
		return &errkind.StorageError{Op: "delete", Err: err}
	}
	ex.engine.forgetOwner(table, pk)
	shard := ex.engine.State().GetOrCreateShard(shardName)
	shard.RecordDelete(1)

	return ex.emit(table, meta, rec.Negate(), future)
}

// Update applies the engine's chosen UPDATE semantics (see DESIGN.md's
// Open Question decision): a negative delta retracting the old row
// immediately followed by a positive delta inserting newRec, both derived
// from the same Future so a consistent caller sees both settle together.
func (ex *Executor) Update(table string, oldPK record.Value, newRec *record.Record, future *dataflow.Future) error {
	if future == nil {
		future = dataflow.NewFuture(false)
	}
	if err := ex.Delete(table, oldPK, future); err != nil {
		return err
	}
	return ex.Insert(table, newRec, future)
}

// SelectByPK reads a single row of table from shardName, the fast path a
// base-table point lookup follows once the caller already knows the
// subject's shard (e.g. one step of a larger plan that resolved it via the
// shard registry).
func (ex *Executor) SelectByPK(table, shardName string, pk record.Value) (*record.Record, error) {
	t, ok := ex.engine.Table(table)
	if !ok {
		return nil, &errkind.SchemaError{Table: table, Reason: "not found"}
	}
	rec, err := t.GetDirect(shardName, pk)
	if err != nil {
		return nil, &errkind.StorageError{Op: "select", Err: err}
	}
	return rec, nil
}

// GDPRGet implements spec.md section 4.1's subject-access request: every
// row, across every owned table, currently stored in shardName.
func (ex *Executor) GDPRGet(shardName string) (map[string][]*record.Record, error) {
	out := make(map[string][]*record.Record)

	for name := range ex.engine.ownedTables() {
		t, ok := ex.engine.Table(name)
		if !ok {
			continue
		}
		rows, err := t.ScanShard(shardName)
		if err != nil {
			return nil, &errkind.StorageError{Op: "gdpr get", Err: err}
		}
		if len(rows) > 0 {
			out[name] = rows
		}
	}
	return out, nil
}

// GDPRForget implements spec.md section 4.1's right-to-erasure: every
// owned table's rows under shardName are bulk-deleted, a negative delta is
// emitted into the dataflow graph for each one (spec.md section 4.11 step
// 8: "emits negative deltas into dataflow"), the shard is retired in the
// registry, and its encryption key is destroyed so past ciphertext for
// this subject becomes unrecoverable.
func (ex *Executor) GDPRForget(shardName string, future *dataflow.Future) error {
	if future == nil {
		future = dataflow.NewFuture(false)
	}
	for name, meta := range ex.engine.ownedTables() {
		t, ok := ex.engine.Table(name)
		if !ok {
			continue
		}
		rows, err := t.ScanShard(shardName)
		if err != nil {
			return &errkind.StorageError{Op: "gdpr forget: scan", Err: err}
		}
		if err := t.DeleteShard(shardName); err != nil {
			return &errkind.StorageError{Op: "gdpr forget", Err: err}
		}
		for _, rec := range rows {
			ex.engine.forgetOwner(name, rec.Values[meta.Schema.PKIndex])
			if err := ex.emit(name, meta, rec.Negate(), future); err != nil {
				return err
			}
		}
	}
	ex.engine.State().Forget(shardName)
	if err := ex.engine.Crypt().ForgetSubject(shardName); err != nil {
		return &errkind.CryptoError{Op: "gdpr forget", Err: err}
	}
	return nil
}
