package engine

import (
	"github.com/dreamware/k9db/internal/dataflow"
	"github.com/dreamware/k9db/internal/errkind"
	"github.com/dreamware/k9db/internal/record"
)

// StatementKind tags which Executor operation a Statement names. Standing
// in for the out-of-scope SQL parser/planner, per spec.md's Design Note
// "the planner is modeled purely as a function plan(sql) -> GraphPartition":
// here plan(Statement) routes directly to the Executor method that would
// sit at the bottom of that function, without a SQL front end above it.
type StatementKind uint8

const (
	StatementInsert StatementKind = iota
	StatementDelete
	StatementUpdate
	StatementSelectByPK
	StatementSelectView
	StatementGDPRGet
	StatementGDPRForget
)

// LookupCondition combines the WHERE patterns spec.md section 4.11 names
// select-on-view planning can recognize (`key = v`, `key IN (v1..vn)`,
// `key > v`, and conjunctions of these) into the single shape Engine.
// SelectView consumes. Only one of EqualityKeys or GreaterThan is
// meaningful at a time; the zero value requests a full scan.
type LookupCondition struct {
	// EqualityKeys holds one value per view key column for a `key = v` (or
	// a single-key `key IN (...)` expanded by the caller into one
	// LookupCondition per value) point lookup.
	EqualityKeys []record.Value

	// GreaterThan, if non-nil, requests every row whose key sorts after
	// the key columns' values in this synthetic record — spec's
	// `greater_key`/`greater_record` pair collapsed into one field.
	GreaterThan *record.Record

	Offset int
	Limit  int
}

// Statement is the narrow, already-typed request shape a real SQL layer
// would compile down to before handing it to Executor.Execute.
type Statement struct {
	Kind StatementKind

	Table  string
	Shard  string
	PK     record.Value
	Record *record.Record // Insert, Update's new row
	Future *dataflow.Future

	View      string          // SelectView's view name
	Condition LookupCondition // SelectView's planned WHERE condition
}

// Plan validates stmt against its Kind's required fields, catching a
// malformed Statement as a *errkind.ParseError before Execute ever touches
// storage.
func Plan(stmt Statement) (*Statement, error) {
	switch stmt.Kind {
	case StatementInsert:
		if stmt.Table == "" || stmt.Record == nil {
			return nil, &errkind.ParseError{Statement: "insert", Reason: "table and record are required"}
		}
	case StatementDelete:
		if stmt.Table == "" {
			return nil, &errkind.ParseError{Statement: "delete", Reason: "table is required"}
		}
	case StatementUpdate:
		if stmt.Table == "" || stmt.Record == nil {
			return nil, &errkind.ParseError{Statement: "update", Reason: "table and new record are required"}
		}
	case StatementSelectByPK:
		if stmt.Table == "" || stmt.Shard == "" {
			return nil, &errkind.ParseError{Statement: "select", Reason: "table and shard are required"}
		}
	case StatementSelectView:
		if stmt.View == "" {
			return nil, &errkind.ParseError{Statement: "select view", Reason: "view is required"}
		}
	case StatementGDPRGet, StatementGDPRForget:
		if stmt.Shard == "" {
			return nil, &errkind.ParseError{Statement: "gdpr", Reason: "shard is required"}
		}
	default:
		return nil, &errkind.ParseError{Statement: "unknown", Reason: "unrecognized statement kind"}
	}
	return &stmt, nil
}

// Execute plans then runs stmt against ex, returning GDPR GET's result set
// (nil for every other kind, whose effects are observed through subsequent
// Select calls instead).
func (ex *Executor) Execute(stmt Statement) (map[string][]*record.Record, error) {
	plan, err := Plan(stmt)
	if err != nil {
		return nil, err
	}
	switch plan.Kind {
	case StatementInsert:
		return nil, ex.Insert(plan.Table, plan.Record, plan.Future)
	case StatementDelete:
		return nil, ex.Delete(plan.Table, plan.PK, plan.Future)
	case StatementUpdate:
		return nil, ex.Update(plan.Table, plan.PK, plan.Record, plan.Future)
	case StatementSelectByPK:
		rec, err := ex.SelectByPK(plan.Table, plan.Shard, plan.PK)
		if err != nil {
			return nil, err
		}
		return map[string][]*record.Record{plan.Table: {rec}}, nil
	case StatementSelectView:
		rows, err := ex.SelectView(plan.View, plan.Condition)
		if err != nil {
			return nil, err
		}
		return map[string][]*record.Record{plan.View: rows}, nil
	case StatementGDPRGet:
		return ex.GDPRGet(plan.Shard)
	case StatementGDPRForget:
		return nil, ex.GDPRForget(plan.Shard, plan.Future)
	default:
		return nil, &errkind.ParseError{Statement: "unknown", Reason: "unrecognized statement kind"}
	}
}
