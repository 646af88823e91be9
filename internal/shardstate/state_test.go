package shardstate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/k9db/internal/record"
)

func mustSchema(t *testing.T, name string, cols []record.Column, pk int) *record.Schema {
	t.Helper()
	s, err := record.NewSchema(name, cols, pk)
	require.NoError(t, err)
	return s
}

func TestDirectOwnershipResolvesFromOwnColumn(t *testing.T) {
	st := NewState()
	users := mustSchema(t, "users", []record.Column{
		{Name: "id", Kind: record.KindText},
		{Name: "name", Kind: record.KindText},
	}, 0)
	st.DefineTable(users)
	require.NoError(t, st.SetOwners("users", Descriptor{Kind: Direct, ShardColumn: "id"}))

	row := record.New(true, []record.Value{record.Text("alice"), record.Text("Alice A.")})
	shard, err := st.ResolveOwner("users", row, nil)
	require.NoError(t, err)
	require.Equal(t, "alice", shard)
}

func TestTransitiveOwnershipFollowsForeignKey(t *testing.T) {
	st := NewState()
	users := mustSchema(t, "users", []record.Column{{Name: "id", Kind: record.KindText}}, 0)
	st.DefineTable(users)
	require.NoError(t, st.SetOwners("users", Descriptor{Kind: Direct, ShardColumn: "id"}))

	orders := mustSchema(t, "orders", []record.Column{
		{Name: "order_id", Kind: record.KindText},
		{Name: "user_id", Kind: record.KindText},
	}, 0)
	st.DefineTable(orders)
	require.NoError(t, st.SetOwners("orders", Descriptor{Kind: Transitive, ShardColumn: "user_id", ForeignTable: "users"}))

	usersTable, ok := st.Table("users")
	require.True(t, ok)
	require.Contains(t, usersTable.Dependents, "orders")

	resolver := &fakeResolverSimple{answer: "alice"}
	row := record.New(true, []record.Value{record.Text("order-1"), record.Text("alice")})
	shard, err := st.ResolveOwner("orders", row, resolver)
	require.NoError(t, err)
	require.Equal(t, "alice", shard)
}

type fakeResolverSimple struct{ answer string }

func (f *fakeResolverSimple) ShardOf(table string, pk record.Value) (string, error) {
	return f.answer, nil
}

func TestSetOwnersRejectsUnknownForeignTable(t *testing.T) {
	st := NewState()
	orders := mustSchema(t, "orders", []record.Column{{Name: "id", Kind: record.KindText}}, 0)
	st.DefineTable(orders)

	err := st.SetOwners("orders", Descriptor{Kind: Transitive, ShardColumn: "user_id", ForeignTable: "users"})
	require.Error(t, err)
}

func TestGetOrCreateShardIsIdempotent(t *testing.T) {
	st := NewState()
	a := st.GetOrCreateShard("alice")
	b := st.GetOrCreateShard("alice")
	require.Same(t, a, b)
	require.Equal(t, Active, a.State())
}

func TestForgetRemovesShardFromRegistry(t *testing.T) {
	st := NewState()
	sh := st.GetOrCreateShard("alice")
	st.Forget("alice")
	require.Equal(t, Forgotten, sh.State())

	fresh := st.GetOrCreateShard("alice")
	require.NotSame(t, sh, fresh)
	require.Equal(t, Active, fresh.State())
}
