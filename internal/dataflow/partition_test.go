package dataflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/k9db/internal/record"
)

func TestPartitionOfIsDeterministic(t *testing.T) {
	v := record.Int(42)
	first := PartitionOf(v, 8)
	for i := 0; i < 50; i++ {
		require.Equal(t, first, PartitionOf(v, 8))
	}
}

func TestPartitionOfSameValueSamePartitionAcrossKinds(t *testing.T) {
	require.Equal(t, PartitionOf(record.Text("alice"), 4), PartitionOf(record.Text("alice"), 4))
	require.Equal(t, PartitionOf(record.Uint(7), 4), PartitionOf(record.Uint(7), 4))
}

func TestPartitionOfStaysInRange(t *testing.T) {
	for i := int64(0); i < 200; i++ {
		p := PartitionOf(record.Int(i), 5)
		require.GreaterOrEqual(t, p, 0)
		require.Less(t, p, 5)
	}
}

func TestPartitionOfPanicsOnNonPositiveN(t *testing.T) {
	require.Panics(t, func() { PartitionOf(record.Int(1), 0) })
	require.Panics(t, func() { PartitionOf(record.Int(1), -1) })
}
