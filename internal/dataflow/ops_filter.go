package dataflow

import (
	"fmt"

	"github.com/dreamware/k9db/internal/record"
)

// FilterOp is a comparison predicate applied to one column against a fixed
// Value, matching the comparison free-functions
// original_source/dataflow/record_utils.h switches over per DataType.
type FilterOp uint8

const (
	FilterEq FilterOp = iota
	FilterNeq
	FilterLt
	FilterLte
	FilterGt
	FilterGte
)

func matches(op FilterOp, lhs, rhs record.Value) bool {
	switch op {
	case FilterEq:
		return lhs.Equal(rhs)
	case FilterNeq:
		return !lhs.Equal(rhs)
	case FilterLt:
		return lhs.Less(rhs)
	case FilterLte:
		return lhs.Less(rhs) || lhs.Equal(rhs)
	case FilterGt:
		return rhs.Less(lhs)
	case FilterGte:
		return rhs.Less(lhs) || lhs.Equal(rhs)
	default:
		return false
	}
}

// processFilter is stateless: each record is kept or dropped independent
// of every other record and of polarity, so a filtered-out negative delta
// simply never reaches downstream operators that never saw the positive
// either.
func (op *Operator) processFilter(batch []*record.Record) ([]*record.Record, error) {
	out := make([]*record.Record, 0, len(batch))
	for _, rec := range batch {
		if int(op.FilterColumn) >= len(rec.Values) {
			return nil, fmt.Errorf("dataflow: filter column %d out of range for record with %d values", op.FilterColumn, len(rec.Values))
		}
		if matches(op.FilterOp, rec.Values[op.FilterColumn], op.FilterValue) {
			out = append(out, rec)
		}
	}
	return out, nil
}
