package dataflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/k9db/internal/record"
)

// Message is one unit of work on a partition's inbox: a batch of deltas
// arriving on edge, destined for operator target, carrying the Promise
// that must be Resolved once target (and everything it fans out to) has
// finished processing this batch. Ported from spec.md section 4.8's
// `Message { flow, source_op, target_op, records, promise }`.
type Message struct {
	Flow    FlowID
	Edge    EdgeIndex
	Target  NodeIndex
	Records []*record.Record
	Promise *Promise
}

// WorkerPool runs one goroutine per GraphPartition, each draining a bounded
// inbox channel of Messages, per spec.md section 4.8. Grounded on the
// teacher's internal/coordinator/health_monitor.go ticking-goroutine +
// context-cancellation + graceful-shutdown idiom, here driving a message
// consumption loop instead of a health-check poll, and supervised by
// golang.org/x/sync/errgroup the way the rest of the pack
// (erigon, most other_examples/manifests/* go.mod files) uses it to fan
// out and collect the first error from a worker group.
type WorkerPool struct {
	partitions []*GraphPartition
	inboxes    []chan Message

	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	stopped atomic.Bool

	// closeMu lets Shutdown wait for every in-flight send to finish (or
	// bail out via ctx.Done()) before it closes the inboxes, so a send
	// can never race a close on the same channel.
	closeMu sync.RWMutex

	log *logrus.Entry
}

// NewWorkerPool returns a pool with one inbox of the given capacity per
// partition. Call Start to launch the worker goroutines.
func NewWorkerPool(partitions []*GraphPartition, inboxCapacity int, log *logrus.Logger) *WorkerPool {
	if log == nil {
		log = logrus.StandardLogger()
	}
	inboxes := make([]chan Message, len(partitions))
	for i := range inboxes {
		inboxes[i] = make(chan Message, inboxCapacity)
	}
	return &WorkerPool{
		partitions: partitions,
		inboxes:    inboxes,
		log:        log.WithField("component", "dataflow.worker_pool"),
	}
}

// Start launches one goroutine per partition. Each drains its inbox in
// FIFO order (spec.md section 5: "within a single partition, messages are
// processed in FIFO order of their arrival") until the channel is closed by
// Shutdown.
func (p *WorkerPool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	p.ctx, p.cancel, p.group = ctx, cancel, group

	for i := range p.partitions {
		i := i
		group.Go(func() error { return p.runWorker(i) })
	}
}

func (p *WorkerPool) runWorker(i int) error {
	log := p.log.WithField("partition", i)
	log.Debug("dataflow: worker started")
	for msg := range p.inboxes[i] {
		if err := p.processAndForward(i, p.partitions[i], msg); err != nil {
			log.WithError(err).Error("dataflow: message processing failed")
		}
	}
	log.Debug("dataflow: worker drained and exiting")
	return nil
}

// Emit enqueues rec as a new delta into table's Input operator, on the
// partition rec hashes to under partitionCol, deriving one Promise from
// future. This is the entry point a session uses for an INSERT/DELETE
// (spec.md section 4.11 steps 3/4).
func (p *WorkerPool) Emit(flow FlowID, table string, rec *record.Record, partitionCol ColumnID, future *Future) error {
	if int(partitionCol) >= len(rec.Values) {
		return fmt.Errorf("dataflow: emit: partition column %d out of range", partitionCol)
	}
	target := PartitionOf(rec.Values[partitionCol], len(p.partitions))
	node, ok := p.partitions[target].InputNode(table)
	if !ok {
		return fmt.Errorf("dataflow: emit: no input operator registered for table %q", table)
	}
	promise := future.NewPromise()
	msg := Message{Flow: flow, Edge: 0, Target: node, Records: []*record.Record{rec}, Promise: promise}
	return p.send(target, msg, promise)
}

func (p *WorkerPool) send(partition int, msg Message, promise *Promise) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.stopped.Load() {
		promise.Resolve()
		return fmt.Errorf("dataflow: worker pool is shutting down")
	}
	select {
	case p.inboxes[partition] <- msg:
		return nil
	case <-p.ctx.Done():
		promise.Resolve()
		return fmt.Errorf("dataflow: worker pool is shutting down")
	}
}

// processAndForward runs msg.Target's Process step and fans its output out
// along every registered outgoing edge, deriving one Promise per edge
// before resolving msg's own Promise — exactly spec.md section 4.8's
// "invoke target.process_and_forward(source_op, records, promise), and on
// the final downstream emission resolve the promise." An Exchange node's
// children live in other partitions, so its fan-out goes through the
// channel rather than a direct recursive call; every other operator keeps
// processing within the same goroutine, since all its children live in
// this same partition.
func (p *WorkerPool) processAndForward(partIdx int, part *GraphPartition, msg Message) error {
	op := part.Nodes[msg.Target]
	out, err := op.Process(msg.Edge, msg.Records)
	if err != nil {
		msg.Promise.Resolve()
		return fmt.Errorf("dataflow: partition %d: operator %d (%v): %w", partIdx, msg.Target, op.Kind, err)
	}

	children := part.outEdges[msg.Target]

	if op.Kind == KindExchange {
		err := p.forwardExchange(op, children, out, msg)
		return err
	}

	if len(out) == 0 || len(children) == 0 {
		msg.Promise.Resolve()
		return nil
	}

	for _, e := range children {
		child := msg.Promise.Derive()
		next := Message{Flow: msg.Flow, Edge: e.EdgeID, Target: e.Child, Records: out, Promise: child}
		if err := p.processAndForward(partIdx, part, next); err != nil {
			msg.Promise.Resolve()
			return err
		}
	}
	msg.Promise.Resolve()
	return nil
}

// forwardExchange re-hashes out by the Exchange operator's key column and
// sends each group to the partition it belongs to, addressed at the
// Exchange's single child node (present at the same NodeIndex in every
// partition, since every partition clones the same logical plan).
func (p *WorkerPool) forwardExchange(op *Operator, children []Edge, out []*record.Record, msg Message) error {
	if len(children) != 1 {
		msg.Promise.Resolve()
		return fmt.Errorf("dataflow: exchange node %d must have exactly one child, got %d", msg.Target, len(children))
	}
	edge := children[0]

	grouped := make(map[int][]*record.Record)
	for _, rec := range out {
		if int(op.ExchangeKeyColumn) >= len(rec.Values) {
			msg.Promise.Resolve()
			return fmt.Errorf("dataflow: exchange key column %d out of range", op.ExchangeKeyColumn)
		}
		target := PartitionOf(rec.Values[op.ExchangeKeyColumn], op.ExchangePartitions)
		grouped[target] = append(grouped[target], rec)
	}

	for target, recs := range grouped {
		child := msg.Promise.Derive()
		next := Message{Flow: msg.Flow, Edge: edge.EdgeID, Target: edge.Child, Records: recs, Promise: child}
		if err := p.send(target, next, child); err != nil {
			msg.Promise.Resolve()
			return err
		}
	}
	msg.Promise.Resolve()
	return nil
}

// Shutdown sets the stop flag, closes every inbox so each worker drains its
// remaining buffered messages and exits, then waits for all workers to
// return. Safe to call more than once. Per spec.md section 4.8:
// "Shutdown sets a stop flag and closes the channels; threads drain and
// exit."
func (p *WorkerPool) Shutdown() error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()
	p.closeMu.Lock()
	for _, ch := range p.inboxes {
		close(ch)
	}
	p.closeMu.Unlock()
	return p.group.Wait()
}
