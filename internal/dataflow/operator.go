package dataflow

import (
	"fmt"

	"github.com/dreamware/k9db/internal/record"
)

// NodeIndex identifies an Operator within a Graph; EdgeIndex identifies the
// directed edge between two operators. Both are plain integers rather than
// pointers, per original_source/dataflow/types.h's NodeIndex/EdgeIndex
// typedefs, so a Graph can be copied/serialized without pointer-fixing.
type NodeIndex uint32
type EdgeIndex uint32

// ColumnID is a zero-based column position within a Record.
type ColumnID uint32

// Kind tags which operator variant an Operator holds.
type Kind uint8

const (
	KindInput Kind = iota
	KindIdentity
	KindFilter
	KindProject
	KindUnion
	KindEquiJoin
	KindAggregate
	KindMatView
	KindForwardView
	KindExchange
)

func (k Kind) String() string {
	names := [...]string{"Input", "Identity", "Filter", "Project", "Union", "EquiJoin", "Aggregate", "MatView", "ForwardView", "Exchange"}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Operator is a single dataflow node. Exactly the fields relevant to Kind
// are meaningful; this tagged-struct shape (one allocation, one type,
// switched on in Process) replaces the original implementation's
// Operator-subclass-per-kind hierarchy so that a Graph's node slice is
// contiguous rather than a slice of interface values pointing at scattered
// heap objects.
type Operator struct {
	ID     NodeIndex
	Kind   Kind
	Schema *record.Schema

	// Input
	InputTable string

	// Filter
	FilterColumn ColumnID
	FilterOp     FilterOp
	FilterValue  record.Value

	// Project
	ProjectColumns []ColumnID

	// EquiJoin. JoinLeftEdge/JoinRightEdge identify which incoming edge
	// carries each side's batch, since Process needs to know which
	// GroupedData to probe and which to update.
	JoinLeftColumn  ColumnID
	JoinRightColumn ColumnID
	JoinLeftEdge    EdgeIndex
	JoinRightEdge   EdgeIndex
	joinLeft        *GroupedData
	joinRight       *GroupedData

	// Aggregate
	GroupColumns []ColumnID
	AggFunc      AggFunc
	AggColumn    ColumnID
	aggState     map[record.Key]*aggregateState

	// MatView / ForwardView
	ViewKeyColumns []ColumnID
	view           *GroupedData

	// Exchange
	ExchangeKeyColumn  ColumnID
	ExchangePartitions int
}

// NewInput returns an Input operator reading base-table writes for table.
func NewInput(id NodeIndex, schema *record.Schema, table string) *Operator {
	return &Operator{ID: id, Kind: KindInput, Schema: schema, InputTable: table}
}

// NewIdentity returns a pass-through operator, used where the graph needs a
// stable node identity without transforming the batch (e.g. a fan-out
// point feeding two downstream operators).
func NewIdentity(id NodeIndex, schema *record.Schema) *Operator {
	return &Operator{ID: id, Kind: KindIdentity, Schema: schema}
}

// NewEquiJoin returns an EquiJoin operator joining on leftCol = rightCol,
// reading the left side from leftEdge and the right side from rightEdge.
func NewEquiJoin(id NodeIndex, schema *record.Schema, leftCol, rightCol ColumnID, leftEdge, rightEdge EdgeIndex) *Operator {
	return &Operator{
		ID: id, Kind: KindEquiJoin, Schema: schema,
		JoinLeftColumn: leftCol, JoinRightColumn: rightCol,
		JoinLeftEdge: leftEdge, JoinRightEdge: rightEdge,
		joinLeft: NewGroupedData(), joinRight: NewGroupedData(),
	}
}

// NewAggregate returns an Aggregate operator grouping by groupCols and
// applying fn to aggCol.
func NewAggregate(id NodeIndex, schema *record.Schema, groupCols []ColumnID, fn AggFunc, aggCol ColumnID) *Operator {
	return &Operator{
		ID: id, Kind: KindAggregate, Schema: schema,
		GroupColumns: groupCols, AggFunc: fn, AggColumn: aggCol,
		aggState: make(map[record.Key]*aggregateState),
	}
}

// NewMatView returns a materialized view operator keyed by keyCols.
func NewMatView(id NodeIndex, schema *record.Schema, keyCols []ColumnID) *Operator {
	return &Operator{ID: id, Kind: KindMatView, Schema: schema, ViewKeyColumns: keyCols, view: NewGroupedData()}
}

// NewForwardView returns a ForwardView operator: like MatView, it retains
// content keyed by keyCols, but Process also re-emits every input delta
// downstream instead of only storing it, for views that feed another
// operator rather than terminating the graph.
func NewForwardView(id NodeIndex, schema *record.Schema, keyCols []ColumnID) *Operator {
	return &Operator{ID: id, Kind: KindForwardView, Schema: schema, ViewKeyColumns: keyCols, view: NewGroupedData()}
}

// NewExchange returns an Exchange operator: a partition-boundary marker
// that re-routes a batch to the worker owning each record's partition,
// keyed by keyCol (the planner's chosen hash column when a join needs a
// key other than the graph's base partitioning column, per spec.md section
// 4.7's tie-break rule). Its own Process is the identity;
// internal/dataflow/worker.go is what actually performs the cross-partition
// send.
func NewExchange(id NodeIndex, schema *record.Schema, keyCol ColumnID, partitions int) *Operator {
	return &Operator{ID: id, Kind: KindExchange, Schema: schema, ExchangeKeyColumn: keyCol, ExchangePartitions: partitions}
}

// Process transforms a batch arriving on edge into this operator's output
// batch, updating any internal state (join/aggregate/view contents) along
// the way. edge is only consulted by EquiJoin, which must know which side
// of the join the batch belongs to; every other kind ignores it.
func (op *Operator) Process(edge EdgeIndex, batch []*record.Record) ([]*record.Record, error) {
	switch op.Kind {
	case KindInput, KindIdentity, KindExchange, KindUnion:
		return batch, nil
	case KindFilter:
		return op.processFilter(batch)
	case KindProject:
		return op.processProject(batch)
	case KindEquiJoin:
		return op.processEquiJoin(edge, batch)
	case KindAggregate:
		return op.processAggregate(batch)
	case KindMatView:
		return op.processMatView(batch)
	case KindForwardView:
		return op.processForwardView(batch)
	default:
		return nil, fmt.Errorf("dataflow: unknown operator kind %v", op.Kind)
	}
}

// Lookup is valid for MatView and ForwardView operators: it returns the
// live rows stored under the given key columns' values — the point lookup
// spec.md section 4.6 requires of a materialized view.
func (op *Operator) Lookup(key record.Key) ([]*record.Record, error) {
	if op.Kind != KindMatView && op.Kind != KindForwardView {
		return nil, fmt.Errorf("dataflow: Lookup called on non-view operator %v", op.Kind)
	}
	return op.view.Lookup(key), nil
}

// LookupGreater returns every live row whose key sorts strictly after key,
// in ascending key order, after applying offset then limit (limit <= 0
// means unbounded) — spec.md section 4.6's "ordered range 'greater than'
// lookup" plus "limit, and offset."
func (op *Operator) LookupGreater(key record.Key, offset, limit int) ([]*record.Record, error) {
	if op.Kind != KindMatView && op.Kind != KindForwardView {
		return nil, fmt.Errorf("dataflow: LookupGreater called on non-view operator %v", op.Kind)
	}
	var out []*record.Record
	for _, k := range op.view.Keys() {
		if k <= key {
			continue
		}
		out = append(out, op.view.Lookup(k)...)
	}
	return paginate(out, offset, limit), nil
}

// Scan returns every live row in the view in ascending key order, after
// applying offset then limit — spec.md section 4.6's "full scan."
func (op *Operator) Scan(offset, limit int) ([]*record.Record, error) {
	if op.Kind != KindMatView && op.Kind != KindForwardView {
		return nil, fmt.Errorf("dataflow: Scan called on non-view operator %v", op.Kind)
	}
	var out []*record.Record
	for _, k := range op.view.Keys() {
		out = append(out, op.view.Lookup(k)...)
	}
	return paginate(out, offset, limit), nil
}

func paginate(rows []*record.Record, offset, limit int) []*record.Record {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
