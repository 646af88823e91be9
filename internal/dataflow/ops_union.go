package dataflow

import "github.com/dreamware/k9db/internal/record"

// NewUnion returns a Union operator: every input edge must already agree on
// schema (enforced by the planner when the graph is built), so Union itself
// has no per-kind state and Operator.Process passes each incoming batch
// through unchanged, regardless of which input edge it arrived on.
func NewUnion(id NodeIndex, schema *record.Schema) *Operator {
	return &Operator{ID: id, Kind: KindUnion, Schema: schema}
}
