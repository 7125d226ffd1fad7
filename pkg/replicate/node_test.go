package replicate

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/hollowdb/hollow/pkg/document"
	"github.com/hollowdb/hollow/pkg/schema"
	"github.com/hollowdb/hollow/pkg/storage"
	"github.com/hollowdb/hollow/pkg/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notesCollection() document.CollectionName {
	return document.CollectionName{Authority: "scratch", Name: "notes"}
}

// freePort asks the OS for an unused TCP port, since raft.NewTCPTransport
// needs a concrete address to bind rather than ":0".
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func openTestNode(t *testing.T) *Node {
	t.Helper()

	s, err := schema.New("scratch.v1")
	require.NoError(t, err)
	_, err = s.DefineCollection(notesCollection())
	require.NoError(t, err)

	engine, err := storage.OpenBoltEngine(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	db, err := transaction.Open(s, engine)
	require.NoError(t, err)

	cfg := Config{
		NodeID:             "node1",
		BindAddr:           fmt.Sprintf("127.0.0.1:%d", freePort(t)),
		DataDir:            t.TempDir(),
		HeartbeatTimeout:   50 * time.Millisecond,
		ElectionTimeout:    50 * time.Millisecond,
		LeaderLeaseTimeout: 50 * time.Millisecond,
	}
	n, err := Open(cfg, db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Shutdown() })

	require.NoError(t, n.Bootstrap())
	require.Eventually(t, n.IsLeader, time.Second, 10*time.Millisecond)

	return n
}

func TestNodeBootstrapBecomesLeader(t *testing.T) {
	n := openTestNode(t)
	assert.True(t, n.IsLeader())
	assert.Equal(t, n.cfg.BindAddr, n.LeaderAddr())
}

func TestNodeProposeAppliesLocally(t *testing.T) {
	n := openTestNode(t)

	tx := transaction.New().Insert(notesCollection(), nil, []byte("hello"))
	results, err := n.Propose(tx, time.Second)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].Header.ID)

	assert.Eventually(t, func() bool { return n.AppliedIndex() > 0 }, time.Second, 10*time.Millisecond)
}

func TestNodeProposeRejectedWhenNotLeader(t *testing.T) {
	// a node that never bootstraps or joins a cluster has no leader yet.
	s, err := schema.New("scratch.v1")
	require.NoError(t, err)
	_, err = s.DefineCollection(notesCollection())
	require.NoError(t, err)

	engine, err := storage.OpenBoltEngine(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	db, err := transaction.Open(s, engine)
	require.NoError(t, err)

	cfg := Config{NodeID: "node2", BindAddr: fmt.Sprintf("127.0.0.1:%d", freePort(t)), DataDir: t.TempDir()}
	lonely, err := Open(cfg, db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lonely.Shutdown() })

	_, err = lonely.Propose(transaction.New().Insert(notesCollection(), nil, []byte("x")), time.Second)
	assert.Error(t, err)
}
