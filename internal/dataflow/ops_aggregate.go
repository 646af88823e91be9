package dataflow

import (
	"fmt"

	"github.com/dreamware/k9db/internal/record"
)

// AggFunc selects an aggregate function, per
// original_source/dataflow/ops/aggregate.h's FuncCount/FuncSum/FuncMin/
// FuncMax (FuncAvg is this engine's addition, derived from sum/count).
type AggFunc uint8

const (
	FuncCount AggFunc = iota
	FuncSum
	FuncAvg
	FuncMin
	FuncMax
)

// aggregateState is the per-group running state one Aggregate operator
// keeps for one group key. Count and Sum support SUM/COUNT/AVG by direct
// increment/decrement (both are invertible under a negative delta). MIN/MAX
// are not invertible by a running scalar — removing the current minimum
// needs to know the next-smallest surviving value — so the operator keeps
// a full multiset of live values for the group and rescans it on removal,
// the variant spec.md's Open Question adopts over a constant-time
// approximation.
type aggregateState struct {
	count    uint64
	sum      int64
	multiset map[string]*multisetEntry
}

type multisetEntry struct {
	value record.Value
	count uint64
}

func newAggregateState() *aggregateState {
	return &aggregateState{multiset: make(map[string]*multisetEntry)}
}

func (st *aggregateState) add(v record.Value) {
	st.count++
	st.sum += numericOf(v)
	key := string(v.Encode())
	if e, ok := st.multiset[key]; ok {
		e.count++
	} else {
		st.multiset[key] = &multisetEntry{value: v, count: 1}
	}
}

func (st *aggregateState) remove(v record.Value) {
	st.count--
	st.sum -= numericOf(v)
	key := string(v.Encode())
	if e, ok := st.multiset[key]; ok {
		e.count--
		if e.count == 0 {
			delete(st.multiset, key)
		}
	}
}

func numericOf(v record.Value) int64 {
	switch v.Kind {
	case record.KindUint:
		return int64(v.U)
	case record.KindInt, record.KindDatetime:
		return v.I
	default:
		return 0
	}
}

func (st *aggregateState) isEmpty() bool { return st.count == 0 }

func (st *aggregateState) value(fn AggFunc) (record.Value, bool) {
	if st.isEmpty() {
		return record.Value{}, false
	}
	switch fn {
	case FuncCount:
		return record.Uint(st.count), true
	case FuncSum:
		return record.Int(st.sum), true
	case FuncAvg:
		return record.Int(st.sum / int64(st.count)), true
	case FuncMin:
		return st.extreme(func(a, b record.Value) bool { return a.Less(b) }), true
	case FuncMax:
		return st.extreme(func(a, b record.Value) bool { return b.Less(a) }), true
	default:
		return record.Value{}, false
	}
}

// extreme scans the multiset for the value that "wins" under better(a,b) =
// "a should replace b".
func (st *aggregateState) extreme(better func(a, b record.Value) bool) record.Value {
	var result record.Value
	first := true
	for _, e := range st.multiset {
		if first || better(e.value, result) {
			result = e.value
			first = false
		}
	}
	return result
}

// processAggregate emits, for every input record, a negative delta for the
// group's previous aggregate row (if it had one) immediately followed by a
// positive delta for its new aggregate row (if the group still has any
// members), so downstream MatView state always reflects exactly one row
// per live group.
func (op *Operator) processAggregate(batch []*record.Record) ([]*record.Record, error) {
	groupIdx := columnIndexes(op.GroupColumns)
	var out []*record.Record

	for _, rec := range batch {
		if int(op.AggColumn) >= len(rec.Values) {
			return nil, fmt.Errorf("dataflow: aggregate column %d out of range", op.AggColumn)
		}
		key := rec.KeyFor(groupIdx)
		st, ok := op.aggState[key]
		if !ok {
			st = newAggregateState()
			op.aggState[key] = st
		}

		if old, hadOld := st.value(op.AggFunc); hadOld {
			out = append(out, buildAggRow(rec, groupIdx, old, false))
		}

		v := rec.Values[op.AggColumn]
		if rec.Positive {
			st.add(v)
		} else {
			if st.count == 0 {
				panic(fmt.Sprintf("dataflow: aggregate: negative delta for group %q would take count below zero", key))
			}
			st.remove(v)
		}

		if st.isEmpty() {
			delete(op.aggState, key)
			continue
		}
		newVal, _ := st.value(op.AggFunc)
		out = append(out, buildAggRow(rec, groupIdx, newVal, true))
	}
	return out, nil
}

func buildAggRow(rec *record.Record, groupIdx []int, aggValue record.Value, positive bool) *record.Record {
	values := make([]record.Value, 0, len(groupIdx)+1)
	for _, i := range groupIdx {
		values = append(values, rec.Values[i])
	}
	values = append(values, aggValue)
	return record.New(positive, values)
}

func columnIndexes(cols []ColumnID) []int {
	out := make([]int, len(cols))
	for i, c := range cols {
		out[i] = int(c)
	}
	return out
}
