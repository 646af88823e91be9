package dataflow

import "github.com/dreamware/k9db/internal/record"

// processForwardView applies every delta to the view's GroupedData exactly
// like MatView, but also re-emits the batch unchanged: a ForwardView is not
// terminal, it both answers Lookup queries and feeds whatever operator
// comes after it (e.g. a view whose rows are themselves joined against by
// another table's view).
func (op *Operator) processForwardView(batch []*record.Record) ([]*record.Record, error) {
	idx := columnIndexes(op.ViewKeyColumns)
	for _, rec := range batch {
		key := rec.KeyFor(idx)
		op.view.Apply(key, rec)
	}
	return batch, nil
}
