package dataflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/k9db/internal/record"
)

func idForPartition(t *testing.T, partitions, target int) int64 {
	t.Helper()
	for id := int64(0); id < 10_000; id++ {
		if PartitionOf(record.Int(id), partitions) == target {
			return id
		}
	}
	t.Fatalf("no id in range hashes to partition %d of %d", target, partitions)
	return 0
}

func buildInputFilterViewLogical() (*GraphPartition, NodeIndex) {
	gp := NewGraphPartition()
	input := gp.AddOperator(NewInput(0, nil, "users"))
	filter := gp.AddOperator(&Operator{Kind: KindFilter, FilterColumn: 0, FilterOp: FilterGte, FilterValue: record.Int(0)})
	view := gp.AddOperator(NewMatView(0, nil, []ColumnID{0}))
	gp.Connect(input, filter)
	gp.Connect(filter, view)
	gp.RegisterInput("users", input)
	gp.RegisterView("users_view", view)
	return gp, view
}

func TestWorkerPoolRoutesEmitsToTheOwningPartitionAndResolvesFuture(t *testing.T) {
	const n = 2
	logical, viewNode := buildInputFilterViewLogical()
	graph := NewGraph("flow", logical, n)

	pool := NewWorkerPool(graph.Partitions, 8, nil)
	pool.Start()

	id0 := idForPartition(t, n, 0)
	id1 := idForPartition(t, n, 1)

	future := NewFuture(true)
	rec0 := record.New(true, []record.Value{record.Int(id0), record.Text("a")})
	rec1 := record.New(true, []record.Value{record.Int(id1), record.Text("b")})

	require.NoError(t, pool.Emit("flow", "users", rec0, 0, future))
	require.NoError(t, pool.Emit("flow", "users", rec1, 0, future))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, future.Wait(ctx), "future must resolve once both emits have fully settled")

	view0 := graph.Partitions[0].Nodes[viewNode]
	view1 := graph.Partitions[1].Nodes[viewNode]

	rows, err := view0.Lookup(rec0.KeyFor([]int{0}))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = view1.Lookup(rec0.KeyFor([]int{0}))
	require.NoError(t, err)
	require.Empty(t, rows, "a row partitioned onto worker 0 must not appear in worker 1's clone")

	rows, err = view1.Lookup(rec1.KeyFor([]int{0}))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, pool.Shutdown())
}

func TestWorkerPoolNonConsistentEmitDoesNotBlock(t *testing.T) {
	logical, viewNode := buildInputFilterViewLogical()
	graph := NewGraph("flow", logical, 1)

	pool := NewWorkerPool(graph.Partitions, 4, nil)
	pool.Start()

	future := NewFuture(false)
	rec0 := record.New(true, []record.Value{record.Int(1), record.Text("x")})
	require.NoError(t, pool.Emit("flow", "users", rec0, 0, future))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, future.Wait(ctx))

	require.NoError(t, pool.Shutdown())
	_ = viewNode
}

func TestWorkerPoolShutdownIsIdempotentAndRejectsFurtherEmits(t *testing.T) {
	logical, _ := buildInputFilterViewLogical()
	graph := NewGraph("flow", logical, 1)

	pool := NewWorkerPool(graph.Partitions, 4, nil)
	pool.Start()
	require.NoError(t, pool.Shutdown())
	require.NoError(t, pool.Shutdown(), "Shutdown must be safe to call twice")

	future := NewFuture(false)
	rec := record.New(true, []record.Value{record.Int(1)})
	err := pool.Emit("flow", "users", rec, 0, future)
	require.Error(t, err, "emitting after shutdown must fail rather than hang")
}
