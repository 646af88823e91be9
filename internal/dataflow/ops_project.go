package dataflow

import (
	"fmt"

	"github.com/dreamware/k9db/internal/record"
)

// processProject re-projects each record onto op.ProjectColumns, preserving
// polarity. Like Filter, it's stateless.
func (op *Operator) processProject(batch []*record.Record) ([]*record.Record, error) {
	out := make([]*record.Record, len(batch))
	for i, rec := range batch {
		values := make([]record.Value, len(op.ProjectColumns))
		for j, col := range op.ProjectColumns {
			if int(col) >= len(rec.Values) {
				return nil, fmt.Errorf("dataflow: project column %d out of range for record with %d values", col, len(rec.Values))
			}
			values[j] = rec.Values[col]
		}
		out[i] = record.New(rec.Positive, values)
	}
	return out, nil
}
