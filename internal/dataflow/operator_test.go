package dataflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/k9db/internal/record"
)

func rec(positive bool, vals ...record.Value) *record.Record {
	return record.New(positive, vals)
}

func TestFilterEmptyInputProducesEmptyOutput(t *testing.T) {
	op := &Operator{Kind: KindFilter, FilterColumn: 0, FilterOp: FilterEq, FilterValue: record.Int(1)}
	out, err := op.Process(0, nil)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestFilterKeepsOnlyMatchingRows(t *testing.T) {
	op := &Operator{Kind: KindFilter, FilterColumn: 0, FilterOp: FilterGt, FilterValue: record.Int(5)}
	batch := []*record.Record{
		rec(true, record.Int(3)),
		rec(true, record.Int(9)),
		rec(false, record.Int(10)),
	}
	out, err := op.Process(0, batch)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, int64(9), out[0].Values[0].I)
	require.Equal(t, int64(10), out[1].Values[0].I)
}

func TestProjectDropsUnselectedColumns(t *testing.T) {
	op := &Operator{Kind: KindProject, ProjectColumns: []ColumnID{1}}
	batch := []*record.Record{rec(true, record.Int(1), record.Text("a"))}
	out, err := op.Process(0, batch)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, []record.Value{record.Text("a")}, out[0].Values)
	require.True(t, out[0].Positive)
}

func TestUnionPassesThroughUnchanged(t *testing.T) {
	op := NewUnion(0, nil)
	batch := []*record.Record{rec(true, record.Int(1)), rec(false, record.Int(2))}
	out, err := op.Process(0, batch)
	require.NoError(t, err)
	require.Equal(t, batch, out)
}

func TestEquiJoinBeforeRightRowsArrivesProducesNoOutputButRetainsLeftState(t *testing.T) {
	op := NewEquiJoin(0, nil, 0, 0, 1, 2)
	left := []*record.Record{rec(true, record.Int(1), record.Text("alice"))}
	out, err := op.Process(1, left)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Equal(t, 1, op.joinLeft.Len(), "left row must be retained for a later-arriving right match")
}

func TestEquiJoinMatchesAndDropsRightJoinColumn(t *testing.T) {
	op := NewEquiJoin(0, nil, 0, 0, 1, 2)
	_, err := op.Process(1, []*record.Record{rec(true, record.Int(1), record.Text("alice"))})
	require.NoError(t, err)

	out, err := op.Process(2, []*record.Record{rec(true, record.Int(1), record.Text("hi"))})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, []record.Value{record.Int(1), record.Text("alice"), record.Text("hi")}, out[0].Values)
}

func TestEquiJoinNegativeEmitsMatchingRetraction(t *testing.T) {
	op := NewEquiJoin(0, nil, 0, 0, 1, 2)
	_, _ = op.Process(1, []*record.Record{rec(true, record.Int(1), record.Text("alice"))})
	_, _ = op.Process(2, []*record.Record{rec(true, record.Int(1), record.Text("hi"))})

	out, err := op.Process(2, []*record.Record{rec(false, record.Int(1), record.Text("hi"))})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.False(t, out[0].Positive)
}

func TestEquiJoinRejectsUnrecognizedEdge(t *testing.T) {
	op := NewEquiJoin(0, nil, 0, 0, 1, 2)
	_, err := op.Process(99, []*record.Record{rec(true, record.Int(1))})
	require.Error(t, err)
}

func TestAggregateSumEmitsRetractThenInsertOnChange(t *testing.T) {
	op := NewAggregate(0, nil, []ColumnID{0}, FuncSum, 1)
	out, err := op.Process(0, []*record.Record{rec(true, record.Int(1), record.Int(100))})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(100), out[0].Values[1].I)

	out, err = op.Process(0, []*record.Record{rec(true, record.Int(1), record.Int(50))})
	require.NoError(t, err)
	require.Len(t, out, 2, "a changed group emits a retraction of the old row then an insertion of the new")
	require.False(t, out[0].Positive)
	require.Equal(t, int64(100), out[0].Values[1].I)
	require.True(t, out[1].Positive)
	require.Equal(t, int64(150), out[1].Values[1].I)
}

func TestAggregateMaxRescansMultisetOnNegativeDelta(t *testing.T) {
	op := NewAggregate(0, nil, []ColumnID{0}, FuncMax, 1)
	_, err := op.Process(0, []*record.Record{rec(true, record.Int(1), record.Int(10))})
	require.NoError(t, err)
	_, err = op.Process(0, []*record.Record{rec(true, record.Int(1), record.Int(20))})
	require.NoError(t, err)

	out, err := op.Process(0, []*record.Record{rec(false, record.Int(1), record.Int(20))})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, int64(10), out[1].Values[1].I, "MAX must fall back to the next-highest surviving value")
}

func TestAggregateNegativeBelowZeroPanics(t *testing.T) {
	op := NewAggregate(0, nil, []ColumnID{0}, FuncCount, 1)
	require.Panics(t, func() {
		_, _ = op.Process(0, []*record.Record{rec(false, record.Int(1), record.Int(1))})
	})
}

func TestMatViewPointLookupAndNegativeRemoval(t *testing.T) {
	op := NewMatView(0, nil, []ColumnID{0})
	_, err := op.Process(0, []*record.Record{rec(true, record.Int(1), record.Text("a"))})
	require.NoError(t, err)

	key := rec(true, record.Int(1)).KeyFor([]int{0})
	rows, err := op.Lookup(key)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = op.Process(0, []*record.Record{rec(false, record.Int(1), record.Text("a"))})
	require.NoError(t, err)
	rows, err = op.Lookup(key)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestMatViewScanAndGreaterAndPagination(t *testing.T) {
	op := NewMatView(0, nil, []ColumnID{0})
	for _, id := range []int64{3, 1, 2} {
		_, err := op.Process(0, []*record.Record{rec(true, record.Int(id), record.Text("row"))})
		require.NoError(t, err)
	}

	all, err := op.Scan(0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, int64(1), all[0].Values[0].I)
	require.Equal(t, int64(3), all[2].Values[0].I)

	page, err := op.Scan(1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, int64(2), page[0].Values[0].I)

	gt, err := op.LookupGreater(rec(true, record.Int(1)).KeyFor([]int{0}), 0, 0)
	require.NoError(t, err)
	require.Len(t, gt, 2)
}

func TestForwardViewStoresAndReemits(t *testing.T) {
	op := NewForwardView(0, nil, []ColumnID{0})
	batch := []*record.Record{rec(true, record.Int(1), record.Text("a"))}
	out, err := op.Process(0, batch)
	require.NoError(t, err)
	require.Equal(t, batch, out)

	rows, err := op.Lookup(rec(true, record.Int(1)).KeyFor([]int{0}))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestLookupOnNonViewOperatorFails(t *testing.T) {
	op := &Operator{Kind: KindFilter}
	_, err := op.Lookup("x")
	require.Error(t, err)
}
