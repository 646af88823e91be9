package compliance

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/k9db/internal/record"
)

func alwaysAbsent(string, record.Value) (bool, error) { return false, nil }

func TestLifecycleHappyPath(t *testing.T) {
	tx := New()
	require.Equal(t, Idle, tx.State())
	require.NoError(t, tx.Start())
	require.Equal(t, Open, tx.State())

	require.NoError(t, tx.AddCheckpoint())
	require.Equal(t, Checkpointed, tx.State())
	require.NoError(t, tx.AddOrphan("orders", record.Int(99)))
	require.NoError(t, tx.CommitCheckpoint())
	require.Equal(t, Open, tx.State())

	require.NoError(t, tx.Commit(func(table string, pk record.Value) (bool, error) {
		require.Equal(t, "orders", table)
		return false, nil // row was claimed by an OWNS update before commit
	}))
	require.Equal(t, Committed, tx.State())
}

func TestCommitFailsWhileOrphanStillInDefaultShard(t *testing.T) {
	tx := New()
	require.NoError(t, tx.Start())
	require.NoError(t, tx.AddCheckpoint())
	require.NoError(t, tx.AddOrphan("orders", record.Int(99)))
	require.NoError(t, tx.CommitCheckpoint())

	err := tx.Commit(func(string, record.Value) (bool, error) { return true, nil })
	require.Error(t, err)
	var orphanErr *OrphanError
	require.ErrorAs(t, err, &orphanErr)
	require.Len(t, orphanErr.Rows, 1)
	require.Equal(t, Open, tx.State(), "a failed commit leaves the transaction open for reconciliation")
}

func TestRollbackCheckpointDropsOnlyTopFrame(t *testing.T) {
	tx := New()
	require.NoError(t, tx.Start())

	require.NoError(t, tx.AddCheckpoint())
	require.NoError(t, tx.AddOrphan("orders", record.Int(1)))
	require.NoError(t, tx.CommitCheckpoint())

	require.NoError(t, tx.AddCheckpoint())
	require.NoError(t, tx.AddOrphan("orders", record.Int(2)))
	require.NoError(t, tx.RollbackCheckpoint())
	require.Equal(t, Open, tx.State())

	var seen []record.Value
	err := tx.Commit(func(table string, pk record.Value) (bool, error) {
		seen = append(seen, pk)
		return false, nil
	})
	require.NoError(t, err)
	require.Equal(t, []record.Value{record.Int(1)}, seen, "rolled-back checkpoint's orphan must not survive")
}

func TestNestedCheckpointsMergeIntoEnclosingFrame(t *testing.T) {
	tx := New()
	require.NoError(t, tx.Start())

	require.NoError(t, tx.AddCheckpoint())
	require.NoError(t, tx.AddCheckpoint())
	require.NoError(t, tx.AddOrphan("orders", record.Int(7)))
	require.NoError(t, tx.CommitCheckpoint()) // merges inner frame into outer
	require.Equal(t, Checkpointed, tx.State(), "outer checkpoint frame is still open")
	require.NoError(t, tx.CommitCheckpoint()) // merges outer frame into the transaction
	require.Equal(t, Open, tx.State())

	count := 0
	require.NoError(t, tx.Commit(func(table string, pk record.Value) (bool, error) {
		count++
		return false, nil
	}))
	require.Equal(t, 1, count)
}

func TestAddOrphanOutsideCheckpointIsRejected(t *testing.T) {
	tx := New()
	require.NoError(t, tx.Start())
	err := tx.AddOrphan("orders", record.Int(1))
	require.Error(t, err)
}

func TestStartRequiresIdle(t *testing.T) {
	tx := New()
	require.NoError(t, tx.Start())
	require.Error(t, tx.Start())
}

func TestDiscardAbandonsOrphansAndEndsTerminal(t *testing.T) {
	tx := New()
	require.NoError(t, tx.Start())
	require.NoError(t, tx.AddCheckpoint())
	require.NoError(t, tx.AddOrphan("orders", record.Int(1)))
	require.NoError(t, tx.CommitCheckpoint())

	require.NoError(t, tx.Discard())
	require.Equal(t, RolledBack, tx.State())
	require.Error(t, tx.Start(), "a discarded transaction is terminal, not reusable")
}
