package dataflow

import (
	"fmt"

	"github.com/dreamware/k9db/internal/record"
)

// FlowID names one independently running dataflow graph — typically one
// CREATE VIEW statement's compiled plan, or the shared base-table input
// graph every view reads from — so a single WorkerPool can host several
// Flows side by side.
type FlowID string

// Edge is a directed parent -> child edge within one GraphPartition,
// expressed as indices only (spec.md section 9's Design Note: "back
// references ... are indices, never owning references"), which is what
// lets a GraphPartition be cloned per worker without any pointer fix-up.
type Edge struct {
	Parent NodeIndex
	Child  NodeIndex
	EdgeID EdgeIndex
}

// GraphPartition is one worker's private copy of a Flow's operator DAG:
// spec.md section 4.7 calls a Graph "an ordered set of N GraphPartitions
// produced by cloning the logical plan." Every partition has identical
// Nodes/edges/inputs/views; only the per-operator runtime state (join hash
// tables, aggregate groups, view contents) differs across clones, because
// each partition only ever sees the rows hashed to it.
type GraphPartition struct {
	Nodes []*Operator

	outEdges map[NodeIndex][]Edge
	inputs   map[string]NodeIndex
	views    map[string]NodeIndex
	nextEdge EdgeIndex
}

// NewGraphPartition returns an empty partition ready to accept operators.
func NewGraphPartition() *GraphPartition {
	return &GraphPartition{
		outEdges: make(map[NodeIndex][]Edge),
		inputs:   make(map[string]NodeIndex),
		views:    make(map[string]NodeIndex),
	}
}

// AddOperator appends op, assigning it the next NodeIndex.
func (gp *GraphPartition) AddOperator(op *Operator) NodeIndex {
	op.ID = NodeIndex(len(gp.Nodes))
	gp.Nodes = append(gp.Nodes, op)
	return op.ID
}

// Connect records a parent -> child edge, returning its EdgeIndex. A node
// processing a batch for itself (see WorkerPool.processAndForward) fans the
// output out along every edge Connect has registered for it, in the order
// they were added.
func (gp *GraphPartition) Connect(parent, child NodeIndex) EdgeIndex {
	e := gp.nextEdge
	gp.nextEdge++
	gp.outEdges[parent] = append(gp.outEdges[parent], Edge{Parent: parent, Child: child, EdgeID: e})
	return e
}

// RegisterInput names node as the Input operator base-table writes to table
// should be routed to.
func (gp *GraphPartition) RegisterInput(table string, node NodeIndex) {
	gp.inputs[table] = node
}

// InputNode returns the Input operator registered for table, if any.
func (gp *GraphPartition) InputNode(table string) (NodeIndex, bool) {
	n, ok := gp.inputs[table]
	return n, ok
}

// RegisterView names node (a MatView or ForwardView operator) so
// SELECTs and nested-view backfill can find it by the view's SQL name.
func (gp *GraphPartition) RegisterView(name string, node NodeIndex) {
	gp.views[name] = node
}

// ViewNode returns the view operator registered under name, if any.
func (gp *GraphPartition) ViewNode(name string) (NodeIndex, bool) {
	n, ok := gp.views[name]
	return n, ok
}

// Clone returns a fresh GraphPartition with the same nodes/edges/names but
// independent per-operator runtime state, for use as one more worker's
// copy of the logical plan.
func (gp *GraphPartition) Clone() *GraphPartition {
	clone := &GraphPartition{
		Nodes:    make([]*Operator, len(gp.Nodes)),
		outEdges: gp.outEdges, // structural, read-only once the plan is built
		inputs:   gp.inputs,
		views:    gp.views,
		nextEdge: gp.nextEdge,
	}
	for i, op := range gp.Nodes {
		clone.Nodes[i] = op.cloneFresh()
	}
	return clone
}

// cloneFresh returns a new Operator with op's parameters (Kind, Schema,
// filter/project/join/aggregate/view column choices) but newly allocated
// runtime state, so two clones never share a join hash table, aggregate
// group map, or view's stored rows.
func (op *Operator) cloneFresh() *Operator {
	clone := *op
	switch op.Kind {
	case KindEquiJoin:
		clone.joinLeft = NewGroupedData()
		clone.joinRight = NewGroupedData()
	case KindAggregate:
		clone.aggState = make(map[record.Key]*aggregateState)
	case KindMatView, KindForwardView:
		clone.view = NewGroupedData()
	}
	return &clone
}

// Graph is one Flow's dataflow DAG, replicated across N partitions.
type Graph struct {
	Flow       FlowID
	Partitions []*GraphPartition
}

// NewGraph replicates logical (a fully wired GraphPartition describing the
// plan once) into n independent partitions, one per worker.
func NewGraph(flow FlowID, logical *GraphPartition, n int) *Graph {
	g := &Graph{Flow: flow, Partitions: make([]*GraphPartition, n)}
	for i := 0; i < n; i++ {
		g.Partitions[i] = logical.Clone()
	}
	return g
}

// InstallChild performs the nested-view backfill spec.md section 9's
// Design Notes prescribe: every row currently held by parent's materialized
// view parentViewName is replayed synchronously into every partition of
// child's ForwardView operator childViewName, before child's own input is
// wired to receive live deltas. Doing this at installation time rather than
// having the ForwardView block on the parent's Future avoids a worker
// waiting on its own future mid-processing.
func InstallChild(parent *Graph, parentViewName string, child *Graph, childViewName string) error {
	for _, childPart := range child.Partitions {
		node, ok := childPart.ViewNode(childViewName)
		if !ok {
			return fmt.Errorf("dataflow: child graph has no view %q to install into", childViewName)
		}
		fv := childPart.Nodes[node]
		if fv.Kind != KindForwardView {
			return fmt.Errorf("dataflow: node %q is a %v, not a ForwardView", childViewName, fv.Kind)
		}

		for _, parentPart := range parent.Partitions {
			pnode, ok := parentPart.ViewNode(parentViewName)
			if !ok {
				return fmt.Errorf("dataflow: parent graph has no view %q to back-fill from", parentViewName)
			}
			pv := parentPart.Nodes[pnode]
			if pv.Kind != KindMatView && pv.Kind != KindForwardView {
				return fmt.Errorf("dataflow: node %q is a %v, not a view", parentViewName, pv.Kind)
			}
			for _, rows := range pv.view.rows {
				for _, rec := range rows {
					if _, err := fv.Process(0, []*record.Record{rec}); err != nil {
						return fmt.Errorf("dataflow: backfill %q from %q: %w", childViewName, parentViewName, err)
					}
				}
			}
		}
	}
	return nil
}
