package connection

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hollowdb/hollow/pkg/dberr"
	"github.com/hollowdb/hollow/pkg/document"
	"github.com/hollowdb/hollow/pkg/query"
	"github.com/hollowdb/hollow/pkg/schema"
	"github.com/hollowdb/hollow/pkg/storage"
	"github.com/hollowdb/hollow/pkg/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notesCollection() document.CollectionName {
	return document.CollectionName{Authority: "scratch", Name: "notes"}
}

func newTestConnection(t *testing.T) *Connection {
	t.Helper()

	s, err := schema.New("scratch.v1")
	require.NoError(t, err)
	_, err = s.DefineCollection(notesCollection())
	require.NoError(t, err)

	engine, err := storage.OpenBoltEngine(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	conn, err := Open(s, engine)
	require.NoError(t, err)
	return conn
}

func TestApplyTransactionAndGet(t *testing.T) {
	conn := newTestConnection(t)

	results, err := conn.ApplyTransaction(transaction.New().Insert(notesCollection(), nil, []byte("hello")))
	require.NoError(t, err)
	require.Len(t, results, 1)

	doc, found, err := conn.Get(notesCollection(), results[0].Header.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), doc.Contents)
}

func TestGetMultipleSkipsMissing(t *testing.T) {
	conn := newTestConnection(t)

	r1, err := conn.ApplyTransaction(transaction.New().Insert(notesCollection(), nil, []byte("a")))
	require.NoError(t, err)
	r2, err := conn.ApplyTransaction(transaction.New().Insert(notesCollection(), nil, []byte("b")))
	require.NoError(t, err)

	docs, err := conn.GetMultiple(context.Background(), notesCollection(), []uint64{
		r1[0].Header.ID, 9999, r2[0].Header.ID,
	})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestListOrdersAndLimits(t *testing.T) {
	conn := newTestConnection(t)

	for _, body := range []string{"a", "b", "c"} {
		_, err := conn.ApplyTransaction(transaction.New().Insert(notesCollection(), nil, []byte(body)))
		require.NoError(t, err)
	}

	docs, err := conn.List(notesCollection(), IDRange{}, query.Descending, 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Greater(t, docs[0].Header.ID, docs[1].Header.ID)
}

func TestListExecutedTransactionsEnforcesCaps(t *testing.T) {
	conn := newTestConnection(t)
	_, err := conn.ApplyTransaction(transaction.New().Insert(notesCollection(), nil, []byte("a")))
	require.NoError(t, err)

	records, err := conn.ListExecutedTransactions(1, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = conn.ListExecutedTransactions(1, MaxExecutedLimit+500)
	require.NoError(t, err)
}

func TestCompactVariantsAllSucceed(t *testing.T) {
	conn := newTestConnection(t)
	assert.NoError(t, conn.Compact())
	assert.NoError(t, conn.CompactCollection(notesCollection()))
	assert.NoError(t, conn.CompactKeyValueStore())
}

func TestManagerCreateListDeleteDatabase(t *testing.T) {
	registry := schema.NewRegistry()
	s, err := schema.New("scratch.v1")
	require.NoError(t, err)
	_, err = s.DefineCollection(notesCollection())
	require.NoError(t, err)
	require.NoError(t, registry.Register(s))

	mgr := NewManager(t.TempDir(), registry)

	conn, err := mgr.CreateDatabase("My-App", "scratch.v1", false)
	require.NoError(t, err)
	require.NotNil(t, conn)

	_, err = mgr.CreateDatabase("my-app", "scratch.v1", false)
	assert.Error(t, err)

	again, err := mgr.CreateDatabase("my-app", "scratch.v1", true)
	require.NoError(t, err)
	assert.Same(t, conn, again)

	assert.Equal(t, []string{"My-App"}, mgr.ListDatabases())
	assert.Equal(t, []string{"scratch.v1"}, mgr.ListAvailableSchemas())

	require.NoError(t, mgr.DeleteDatabase("MY-APP"))
	assert.Empty(t, mgr.ListDatabases())

	_, err = mgr.Get("My-App")
	assert.Error(t, err)
}

func TestManagerCreateDatabaseDetectsSchemaMismatch(t *testing.T) {
	dataDir := t.TempDir()

	registryA := schema.NewRegistry()
	a, err := schema.New("scratch.v1")
	require.NoError(t, err)
	_, err = a.DefineCollection(notesCollection())
	require.NoError(t, err)
	require.NoError(t, registryA.Register(a))

	mgr1 := NewManager(dataDir, registryA)
	conn1, err := mgr1.CreateDatabase("my-app", "scratch.v1", false)
	require.NoError(t, err)
	require.NoError(t, conn1.Close())

	// Simulate reopening the same on-disk database, in a later process,
	// against a different registered schema.
	registryB := schema.NewRegistry()
	b, err := schema.New("other.v1")
	require.NoError(t, err)
	_, err = b.DefineCollection(notesCollection())
	require.NoError(t, err)
	require.NoError(t, registryB.Register(b))

	mgr2 := NewManager(dataDir, registryB)
	_, err = mgr2.CreateDatabase("my-app", "other.v1", false)
	require.Error(t, err)
	var mismatch *dberr.SchemaMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "my-app", mismatch.DatabaseName)
	assert.Equal(t, "other.v1", mismatch.Requested)
	assert.Equal(t, "scratch.v1", mismatch.Stored)
}

func TestManagerCreateDatabaseRejectsInvalidName(t *testing.T) {
	registry := schema.NewRegistry()
	mgr := NewManager(t.TempDir(), registry)

	_, err := mgr.CreateDatabase("", "scratch.v1", false)
	assert.Error(t, err)
}

func TestManagerDataDirLayout(t *testing.T) {
	dir := t.TempDir()
	registry := schema.NewRegistry()
	s, err := schema.New("scratch.v1")
	require.NoError(t, err)
	require.NoError(t, registry.Register(s))

	mgr := NewManager(dir, registry)
	_, err = mgr.CreateDatabase("orders", "scratch.v1", false)
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(dir, "orders"))
}
