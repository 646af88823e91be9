// Package dataflow implements k9db's incremental materialized-view engine
// (spec.md section 4). A Graph is a DAG of Operators; every base-table
// write enters at an Input node as a batch of positive/negative
// record.Records and flows downstream, each operator transforming the
// batch and emitting its own delta to its successors, until the result
// settles into a MatView or ForwardView.
//
// Operator is a single tagged struct carrying every operator kind's state
// inline (per spec.md's "tagged structs instead of interfaces/vtables"
// redesign note), switched on in Operator.Process rather than dispatched
// through a per-kind interface — the same shape the original C++
// implementation's dataflow/ops/*.h hierarchy has, minus the vtable.
//
// A Graph is split into GraphPartitions, one per worker (spec
// section 4.7); each partition is driven by its own worker goroutine
// (worker.go) reading off a bounded channel, and Future/Promise (future.go)
// lets a caller block until a write's effects have settled across every
// partition it touched.
package dataflow
