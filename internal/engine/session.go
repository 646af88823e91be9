package engine

import (
	"github.com/google/uuid"

	"github.com/dreamware/k9db/internal/compliance"
	"github.com/dreamware/k9db/internal/record"
)

// Session binds one client's in-flight compliance.Transaction to the
// Engine it reads and writes through. Each Session is identified by a
// uuid.UUID, the same "opaque per-connection identifier" shape
// spec.md section 6 asks for, minted with google/uuid the way
// internal/engine's sibling packages reuse the pack's existing
// dependencies rather than hand-rolling an ID scheme.
type Session struct {
	ID     uuid.UUID
	engine *Engine
	txn    *compliance.Transaction
}

func newSession(e *Engine, txn *compliance.Transaction) *Session {
	return &Session{ID: uuid.New(), engine: e, txn: txn}
}

// Executor returns an Executor bound to this Session's Engine and
// Transaction, the surface statement handling is actually performed
// through.
func (s *Session) Executor() *Executor {
	return &Executor{session: s, engine: s.engine, txn: s.txn}
}

// Commit finalizes the session's compliance transaction: it fails with a
// *compliance.OrphanError, returned unwrapped, if any row the transaction
// wrote to the default shard during its lifetime is still there.
func (s *Session) Commit() error {
	return s.txn.Commit(s.checkExists)
}

// Rollback discards every orphan the transaction accumulated, without
// checking them.
func (s *Session) Rollback() error {
	return s.txn.Discard()
}

func (s *Session) checkExists(table string, pk record.Value) (bool, error) {
	t, ok := s.engine.Table(table)
	if !ok {
		return false, nil
	}
	return t.Exists(compliance.DefaultShard, pk)
}
