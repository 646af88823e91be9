package dataflow

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Future and Promise implement the consistency barrier spec.md section 4.9
// requires: a write that needs every derived update to have settled across
// every partition before it returns (consistent=true) must be able to block
// until that happens. Ported from original_source/dataflow/future.h's
// atomic counter plus binary semaphore, using
// golang.org/x/sync/semaphore.Weighted as the binary semaphore (weight 1)
// instead of a hand-rolled one — the same barrier shape
// storj-storj/internal/sync2.Fence exercises against errgroup in its tests.
//
// In non-consistent mode, Wait returns immediately and Promise.Resolve is a
// no-op: the caller accepted eventual consistency and doesn't want to pay
// for the barrier.
type Future struct {
	consistent   bool
	remaining    int64
	sem          *semaphore.Weighted
	selfResolved int32 // guards releasing the producer's initial reservation exactly once, across repeated/retried Wait calls
}

// NewFuture returns a Future for one write. If consistent, the returned
// Future's semaphore starts held and remaining starts at 1: the producer's
// own initial reservation, per spec.md section 4.9. That reservation keeps
// the barrier closed while the producer is still deriving Promises and
// calling Emit across several targets (the table's own graph, then each
// view reading from it); it is only released once Wait is called, so a
// worker resolving an early Promise can never close the barrier out from
// under an emit still in progress.
func NewFuture(consistent bool) *Future {
	f := &Future{consistent: consistent}
	if consistent {
		f.sem = semaphore.NewWeighted(1)
		_ = f.sem.Acquire(context.Background(), 1)
		f.remaining = 1
	}
	return f
}

// Promise represents one pending unit of work that must complete before its
// Future can be considered settled: the initial send into the graph, and
// one more per cross-partition hop (Exchange) it triggers along the way.
type Promise struct {
	future *Future
}

// NewPromise returns a Promise tied to f, incrementing f's pending count.
// Every returned Promise must eventually be Resolved exactly once.
func (f *Future) NewPromise() *Promise {
	if f.consistent {
		atomic.AddInt64(&f.remaining, 1)
	}
	return &Promise{future: f}
}

// Derive returns a new Promise against the same Future as p, for use when
// processing p's batch causes a further send to another partition; that
// send must also resolve before the original write is considered settled.
func (p *Promise) Derive() *Promise {
	return p.future.NewPromise()
}

// Resolve marks p's unit of work complete. Once every Promise derived from
// a Future has been resolved — including the producer's own initial
// reservation, released by Wait — the blocked Wait call returns.
func (p *Promise) Resolve() {
	if !p.future.consistent {
		return
	}
	p.future.resolve()
}

// resolve decrements remaining and releases the semaphore the one time it
// reaches zero, shared by Promise.Resolve and Wait's own initial-
// reservation release.
func (f *Future) resolve() {
	if atomic.AddInt64(&f.remaining, -1) == 0 {
		f.sem.Release(1)
	}
}

// Wait releases the producer's own initial reservation (spec.md section
// 4.9: "Wait() decrements its own initial reservation"), then blocks until
// every Promise derived from f has resolved, or ctx is canceled. In
// non-consistent mode it returns immediately. The initial reservation is
// released only on the first call, so a caller that retries Wait after a
// canceled context (e.g. a shorter probe followed by an unbounded wait)
// does not resolve it twice.
func (f *Future) Wait(ctx context.Context) error {
	if !f.consistent {
		return nil
	}
	if atomic.CompareAndSwapInt32(&f.selfResolved, 0, 1) {
		f.resolve()
	}
	return f.sem.Acquire(ctx, 1)
}
