package dataflow

import (
	"fmt"

	"github.com/dreamware/k9db/internal/record"
)

// processEquiJoin implements incremental equi-join: an incoming row on one
// side is matched against every currently-live row on the other side (kept
// in joinLeft/joinRight so a late row can still join against earlier
// history), and for each match emits a combined row with the right side's
// join column dropped, same as
// original_source/dataflow/ops/equijoin.h's emitRow.
func (op *Operator) processEquiJoin(edge EdgeIndex, batch []*record.Record) ([]*record.Record, error) {
	var fromLeft bool
	switch edge {
	case op.JoinLeftEdge:
		fromLeft = true
	case op.JoinRightEdge:
		fromLeft = false
	default:
		return nil, fmt.Errorf("dataflow: equijoin received batch on unrecognized edge %d", edge)
	}

	var out []*record.Record
	if fromLeft {
		for _, rec := range batch {
			if int(op.JoinLeftColumn) >= len(rec.Values) {
				return nil, fmt.Errorf("dataflow: join left column %d out of range", op.JoinLeftColumn)
			}
			key := rec.KeyFor([]int{int(op.JoinLeftColumn)})
			op.joinLeft.Apply(key, rec)
			for _, other := range op.joinRight.Lookup(key) {
				out = append(out, combineJoinRow(rec, other, op.JoinRightColumn, rec.Positive))
			}
		}
	} else {
		for _, rec := range batch {
			if int(op.JoinRightColumn) >= len(rec.Values) {
				return nil, fmt.Errorf("dataflow: join right column %d out of range", op.JoinRightColumn)
			}
			key := rec.KeyFor([]int{int(op.JoinRightColumn)})
			op.joinRight.Apply(key, rec)
			for _, other := range op.joinLeft.Lookup(key) {
				out = append(out, combineJoinRow(other, rec, op.JoinRightColumn, rec.Positive))
			}
		}
	}
	return out, nil
}

// combineJoinRow concatenates left's columns with right's columns, dropping
// right's join column (it is redundant with left's), and tags the result
// with positive, the polarity of whichever side produced this delta.
func combineJoinRow(left, right *record.Record, rightJoinCol ColumnID, positive bool) *record.Record {
	values := make([]record.Value, 0, len(left.Values)+len(right.Values)-1)
	values = append(values, left.Values...)
	for i, v := range right.Values {
		if ColumnID(i) == rightJoinCol {
			continue
		}
		values = append(values, v)
	}
	return record.New(positive, values)
}
