package rpc

import (
	"context"
	"net"
	"testing"

	"github.com/hollowdb/hollow/pkg/connection"
	"github.com/hollowdb/hollow/pkg/document"
	"github.com/hollowdb/hollow/pkg/kv"
	"github.com/hollowdb/hollow/pkg/query"
	"github.com/hollowdb/hollow/pkg/schema"
	"github.com/hollowdb/hollow/pkg/storage"
	"github.com/hollowdb/hollow/pkg/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func notesCollection() document.CollectionName {
	return document.CollectionName{Authority: "scratch", Name: "notes"}
}

// startTestServer wires a Manager with one "notes" database behind an
// in-process bufconn listener and returns a dialed Client; shutdown is
// registered with t.Cleanup.
func startTestServer(t *testing.T) *Client {
	t.Helper()

	s, err := schema.New("scratch.v1")
	require.NoError(t, err)
	_, err = s.DefineCollection(notesCollection())
	require.NoError(t, err)

	registry := schema.NewRegistry()
	require.NoError(t, registry.Register(s))

	mgr := connection.NewManager(t.TempDir(), registry)
	_, err = mgr.CreateDatabase("notes-db", "scratch.v1", false)
	require.NoError(t, err)

	srv := NewServer(mgr)
	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = srv.grpc.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { cc.Close() })

	return &Client{conn: cc, database: "notes-db"}
}

func TestClientApplyTransactionAndGet(t *testing.T) {
	c := startTestServer(t)
	ctx := context.Background()

	results, err := c.ApplyTransaction(ctx, transaction.New().Insert(notesCollection(), nil, []byte("hello")))
	require.NoError(t, err)
	require.Len(t, results, 1)

	doc, found, err := c.Get(ctx, notesCollection(), results[0].Header.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), doc.Contents)
}

func TestClientGetMultipleSkipsMissing(t *testing.T) {
	c := startTestServer(t)
	ctx := context.Background()

	r1, err := c.ApplyTransaction(ctx, transaction.New().Insert(notesCollection(), nil, []byte("a")))
	require.NoError(t, err)
	r2, err := c.ApplyTransaction(ctx, transaction.New().Insert(notesCollection(), nil, []byte("b")))
	require.NoError(t, err)

	docs, err := c.GetMultiple(ctx, notesCollection(), []uint64{r1[0].Header.ID, 9999, r2[0].Header.ID})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestClientListDescendingWithLimit(t *testing.T) {
	c := startTestServer(t)
	ctx := context.Background()

	for _, body := range []string{"a", "b", "c"} {
		_, err := c.ApplyTransaction(ctx, transaction.New().Insert(notesCollection(), nil, []byte(body)))
		require.NoError(t, err)
	}

	docs, err := c.List(ctx, notesCollection(), nil, nil, query.Descending, 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Greater(t, docs[0].Header.ID, docs[1].Header.ID)
}

func TestClientLastTransactionIDAndListExecuted(t *testing.T) {
	c := startTestServer(t)
	ctx := context.Background()

	_, err := c.ApplyTransaction(ctx, transaction.New().Insert(notesCollection(), nil, []byte("a")))
	require.NoError(t, err)

	id, err := c.LastTransactionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	records, err := c.ListExecutedTransactions(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestClientCompactVariants(t *testing.T) {
	c := startTestServer(t)
	ctx := context.Background()

	assert.NoError(t, c.Compact(ctx))
	assert.NoError(t, c.CompactKeyValueStore(ctx))
}

func TestClientKVRoundTrip(t *testing.T) {
	c := startTestServer(t)
	ctx := context.Background()

	prev, err := c.KV().Set(ctx, "app", "key1", storage.KVValue{Bytes: []byte("v1")}, kv.SetOptions{})
	require.NoError(t, err)
	assert.Nil(t, prev)

	value, err := c.KV().Get(ctx, "app", "key1", false)
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, []byte("v1"), value.Bytes)

	require.NoError(t, c.KV().Delete(ctx, "app", "key1"))
	value, err = c.KV().Get(ctx, "app", "key1", false)
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestClientKVIncrement(t *testing.T) {
	c := startTestServer(t)
	ctx := context.Background()

	n, err := c.KV().Increment(ctx, "app", "counter", 5, false)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = c.KV().Decrement(ctx, "app", "counter", 2, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestClientDatabaseLifecycle(t *testing.T) {
	c := startTestServer(t)
	ctx := context.Background()

	names, err := c.ListDatabases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"notes-db"}, names)

	schemas, err := c.ListAvailableSchemas(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"scratch.v1"}, schemas)

	require.NoError(t, c.CreateDatabase(ctx, "second-db", "scratch.v1", false))

	names, err = c.ListDatabases(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"notes-db", "second-db"}, names)

	require.NoError(t, c.DeleteDatabase(ctx, "second-db"))
}

func TestClientUnknownMethodErrors(t *testing.T) {
	c := startTestServer(t)
	err := c.call(context.Background(), "not_a_real_method", struct{}{}, nil)
	assert.Error(t, err)
}
