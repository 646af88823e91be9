package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/k9db/internal/config"
	"github.com/dreamware/k9db/internal/crypto"
	"github.com/dreamware/k9db/internal/dataflow"
	"github.com/dreamware/k9db/internal/errkind"
	"github.com/dreamware/k9db/internal/record"
	"github.com/dreamware/k9db/internal/shardstate"
)

func testConfig() *config.Config {
	return &config.Config{Workers: 2, Consistent: true, DBName: "test", DataDir: config.InMemoryDataDir, Encryption: false}
}

func usersSchema(t *testing.T) *record.Schema {
	t.Helper()
	s, err := record.NewSchema("users", []record.Column{
		{Name: "id", Kind: record.KindText},
		{Name: "name", Kind: record.KindText},
	}, 0)
	require.NoError(t, err)
	return s
}

func postsSchema(t *testing.T) *record.Schema {
	t.Helper()
	s, err := record.NewSchema("posts", []record.Column{
		{Name: "id", Kind: record.KindText},
		{Name: "user_id", Kind: record.KindText},
		{Name: "body", Kind: record.KindText},
	}, 0)
	require.NoError(t, err)
	return s
}

func openEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOpenWithEncryptionDisabledUsesNoopEncryptor(t *testing.T) {
	e := openEngine(t)
	require.IsType(t, crypto.Noop{}, e.Crypt())
}

func TestOpenWithEncryptionEnabledUsesManager(t *testing.T) {
	cfg := testConfig()
	cfg.Encryption = true
	e, err := Open(cfg)
	require.NoError(t, err)
	defer e.Close()
	require.IsType(t, &crypto.Manager{}, e.Crypt())
}

func TestCreateTableRejectsDuplicateName(t *testing.T) {
	e := openEngine(t)
	schema := usersSchema(t)
	require.NoError(t, e.CreateTable(schema, shardstate.Descriptor{Kind: shardstate.Unowned}))
	err := e.CreateTable(schema, shardstate.Descriptor{Kind: shardstate.Unowned})
	require.Error(t, err)
}

func TestCreateTableRejectsOnClosedEngine(t *testing.T) {
	e := openEngine(t)
	require.NoError(t, e.Close())
	err := e.CreateTable(usersSchema(t), shardstate.Descriptor{Kind: shardstate.Unowned})
	require.Error(t, err)
}

func TestInsertThenSelectByPKRoundTrips(t *testing.T) {
	e := openEngine(t)
	schema := usersSchema(t)
	require.NoError(t, e.CreateTable(schema, shardstate.Descriptor{Kind: shardstate.Direct, ShardColumn: "id"}))

	sess, err := e.NewSession()
	require.NoError(t, err)
	ex := sess.Executor()

	rec := record.New(true, []record.Value{record.Text("u1"), record.Text("Ada")})
	require.NoError(t, ex.Insert("users", rec, nil))

	got, err := ex.SelectByPK("users", "u1", record.Text("u1"))
	require.NoError(t, err)
	require.True(t, got.Equal(rec))

	require.NoError(t, sess.Commit())
}

func TestInsertDuplicatePrimaryKeyReturnsConstraintError(t *testing.T) {
	e := openEngine(t)
	schema := usersSchema(t)
	require.NoError(t, e.CreateTable(schema, shardstate.Descriptor{Kind: shardstate.Direct, ShardColumn: "id"}))

	sess, err := e.NewSession()
	require.NoError(t, err)
	ex := sess.Executor()

	rec := record.New(true, []record.Value{record.Text("u1"), record.Text("Ada")})
	require.NoError(t, ex.Insert("users", rec, nil))

	dup := record.New(true, []record.Value{record.Text("u1"), record.Text("Someone Else")})
	err = ex.Insert("users", dup, nil)
	require.Error(t, err)
	var constraintErr *errkind.ConstraintError
	require.ErrorAs(t, err, &constraintErr)

	got, err := ex.SelectByPK("users", "u1", record.Text("u1"))
	require.NoError(t, err)
	require.Equal(t, "Ada", got.Values[1].S, "the original row must be untouched after a rejected duplicate insert")
}

func TestDeleteRemovesRowAndRecordsDelta(t *testing.T) {
	e := openEngine(t)
	schema := usersSchema(t)
	require.NoError(t, e.CreateTable(schema, shardstate.Descriptor{Kind: shardstate.Direct, ShardColumn: "id"}))

	sess, err := e.NewSession()
	require.NoError(t, err)
	ex := sess.Executor()

	rec := record.New(true, []record.Value{record.Text("u1"), record.Text("Ada")})
	require.NoError(t, ex.Insert("users", rec, nil))
	require.NoError(t, ex.Delete("users", record.Text("u1"), nil))

	_, err = ex.SelectByPK("users", "u1", record.Text("u1"))
	require.Error(t, err)

	shard := e.State().GetOrCreateShard("u1")
	stats := shard.Stats()
	require.EqualValues(t, 1, stats.RowsWritten)
	require.EqualValues(t, 1, stats.RowsDeleted)
}

func TestUpdateAppliesDeleteThenInsertAndSettlesConsistentFuture(t *testing.T) {
	e := openEngine(t)
	schema := usersSchema(t)
	require.NoError(t, e.CreateTable(schema, shardstate.Descriptor{Kind: shardstate.Direct, ShardColumn: "id"}))

	sess, err := e.NewSession()
	require.NoError(t, err)
	ex := sess.Executor()

	old := record.New(true, []record.Value{record.Text("u1"), record.Text("Ada")})
	require.NoError(t, ex.Insert("users", old, nil))

	updated := record.New(true, []record.Value{record.Text("u1"), record.Text("Ada Lovelace")})
	future := dataflow.NewFuture(true)
	require.NoError(t, ex.Update("users", record.Text("u1"), updated, future))
	require.NoError(t, future.Wait(context.Background()))

	got, err := ex.SelectByPK("users", "u1", record.Text("u1"))
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", got.Values[1].S)
}

func TestTransitiveOwnershipResolvesViaRecordedOwner(t *testing.T) {
	e := openEngine(t)
	require.NoError(t, e.CreateTable(usersSchema(t), shardstate.Descriptor{Kind: shardstate.Direct, ShardColumn: "id"}))
	require.NoError(t, e.CreateTable(postsSchema(t), shardstate.Descriptor{
		Kind: shardstate.Transitive, ShardColumn: "user_id", ForeignTable: "users",
	}))

	sess, err := e.NewSession()
	require.NoError(t, err)
	ex := sess.Executor()

	user := record.New(true, []record.Value{record.Text("u1"), record.Text("Ada")})
	require.NoError(t, ex.Insert("users", user, nil))

	post := record.New(true, []record.Value{record.Text("p1"), record.Text("u1"), record.Text("hello")})
	require.NoError(t, ex.Insert("posts", post, nil))

	got, err := ex.SelectByPK("posts", "u1", record.Text("p1"))
	require.NoError(t, err)
	require.True(t, got.Equal(post))

	require.NoError(t, sess.Commit())
}

func TestInsertWithUnresolvableOwnerOrphansIntoDefaultShardAndFailsCommit(t *testing.T) {
	e := openEngine(t)
	require.NoError(t, e.CreateTable(usersSchema(t), shardstate.Descriptor{Kind: shardstate.Direct, ShardColumn: "id"}))
	require.NoError(t, e.CreateTable(postsSchema(t), shardstate.Descriptor{
		Kind: shardstate.Transitive, ShardColumn: "user_id", ForeignTable: "users",
	}))

	sess, err := e.NewSession()
	require.NoError(t, err)
	ex := sess.Executor()

	// No "users" row for u1 exists yet, so this post's owner can't be
	// resolved and it lands in the default shard as an orphan.
	post := record.New(true, []record.Value{record.Text("p1"), record.Text("u1"), record.Text("hello")})
	require.NoError(t, ex.Insert("posts", post, nil))

	got, err := ex.SelectByPK("posts", "default", record.Text("p1"))
	require.NoError(t, err)
	require.True(t, got.Equal(post))

	err = sess.Commit()
	require.Error(t, err)

	require.NoError(t, sess.Rollback())
}

func TestRollbackDiscardsOrphansWithoutChecking(t *testing.T) {
	e := openEngine(t)
	require.NoError(t, e.CreateTable(usersSchema(t), shardstate.Descriptor{Kind: shardstate.Direct, ShardColumn: "id"}))
	require.NoError(t, e.CreateTable(postsSchema(t), shardstate.Descriptor{
		Kind: shardstate.Transitive, ShardColumn: "user_id", ForeignTable: "users",
	}))

	sess, err := e.NewSession()
	require.NoError(t, err)
	ex := sess.Executor()

	post := record.New(true, []record.Value{record.Text("p1"), record.Text("u1"), record.Text("hello")})
	require.NoError(t, ex.Insert("posts", post, nil))
	require.NoError(t, sess.Rollback())
}

func TestGDPRGetCollectsOwnedRowsAcrossTables(t *testing.T) {
	e := openEngine(t)
	require.NoError(t, e.CreateTable(usersSchema(t), shardstate.Descriptor{Kind: shardstate.Direct, ShardColumn: "id"}))
	require.NoError(t, e.CreateTable(postsSchema(t), shardstate.Descriptor{
		Kind: shardstate.Transitive, ShardColumn: "user_id", ForeignTable: "users",
	}))

	sess, err := e.NewSession()
	require.NoError(t, err)
	ex := sess.Executor()

	require.NoError(t, ex.Insert("users", record.New(true, []record.Value{record.Text("u1"), record.Text("Ada")}), nil))
	require.NoError(t, ex.Insert("posts", record.New(true, []record.Value{record.Text("p1"), record.Text("u1"), record.Text("hi")}), nil))
	require.NoError(t, ex.Insert("posts", record.New(true, []record.Value{record.Text("p2"), record.Text("u1"), record.Text("yo")}), nil))

	rows, err := ex.GDPRGet("u1")
	require.NoError(t, err)
	require.Len(t, rows["users"], 1)
	require.Len(t, rows["posts"], 2)
}

func TestGDPRForgetErasesRowsAndRetiresShard(t *testing.T) {
	e := openEngine(t)
	require.NoError(t, e.CreateTable(usersSchema(t), shardstate.Descriptor{Kind: shardstate.Direct, ShardColumn: "id"}))
	require.NoError(t, e.CreateTable(postsSchema(t), shardstate.Descriptor{
		Kind: shardstate.Transitive, ShardColumn: "user_id", ForeignTable: "users",
	}))

	sess, err := e.NewSession()
	require.NoError(t, err)
	ex := sess.Executor()

	require.NoError(t, ex.Insert("users", record.New(true, []record.Value{record.Text("u1"), record.Text("Ada")}), nil))
	require.NoError(t, ex.Insert("posts", record.New(true, []record.Value{record.Text("p1"), record.Text("u1"), record.Text("hi")}), nil))

	require.NoError(t, ex.GDPRForget("u1", nil))

	rows, err := ex.GDPRGet("u1")
	require.NoError(t, err)
	require.Empty(t, rows["users"])
	require.Empty(t, rows["posts"])

	shard := e.State().GetOrCreateShard("u1")
	require.Equal(t, shardstate.Active, shard.State(), "GetOrCreateShard after Forget creates a fresh Active shard")
}

func TestSelectByPKOnUnknownTableReturnsSchemaError(t *testing.T) {
	e := openEngine(t)
	sess, err := e.NewSession()
	require.NoError(t, err)
	_, err = sess.Executor().SelectByPK("ghosts", "default", record.Text("x"))
	require.Error(t, err)
}
