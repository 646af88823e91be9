package dataflow

import "github.com/dreamware/k9db/internal/record"

// processMatView applies every delta to the view's GroupedData and emits
// nothing further: a MatView is a terminal node (spec.md section 4's
// "materialized view"), read through Operator.Lookup, LookupGreater, and
// Scan, grounded on
// original_source/dataflow/ops/matview.h's contents_ map plus
// lookup/multi_lookup.
func (op *Operator) processMatView(batch []*record.Record) ([]*record.Record, error) {
	idx := columnIndexes(op.ViewKeyColumns)
	for _, rec := range batch {
		key := rec.KeyFor(idx)
		op.view.Apply(key, rec)
	}
	return nil, nil
}
