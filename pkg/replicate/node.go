package replicate

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/hollowdb/hollow/pkg/transaction"
	"github.com/hollowdb/hollow/pkg/wire"
)

// Config configures one replication node.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// Timeouts default to raft.DefaultConfig's conservative WAN values
	// when zero; set them lower for a LAN/edge deployment, following the
	// teacher's Bootstrap/Join tuning.
	HeartbeatTimeout   time.Duration
	ElectionTimeout    time.Duration
	LeaderLeaseTimeout time.Duration
}

// Node owns one member's Raft instance plus the FSM applying its log to
// a local transaction.Database.
type Node struct {
	cfg  Config
	fsm  *FSM
	raft *raft.Raft
}

// Open constructs the Raft transport/log/stable/snapshot stores for cfg
// and wires them to db's FSM, without yet joining or bootstrapping a
// cluster. Call Bootstrap for the first node in a new cluster; every
// subsequent node is added by calling AddVoter on the leader.
func Open(cfg Config, db *transaction.Database) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("replicate: create data dir: %w", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	if cfg.HeartbeatTimeout > 0 {
		raftCfg.HeartbeatTimeout = cfg.HeartbeatTimeout
	}
	if cfg.ElectionTimeout > 0 {
		raftCfg.ElectionTimeout = cfg.ElectionTimeout
	}
	if cfg.LeaderLeaseTimeout > 0 {
		raftCfg.LeaderLeaseTimeout = cfg.LeaderLeaseTimeout
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("replicate: resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("replicate: create transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("replicate: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("replicate: create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("replicate: create stable store: %w", err)
	}

	fsm := NewFSM(db)
	r, err := raft.NewRaft(raftCfg, fsm, logStore, stableStore, snapshots, transport)
	if err != nil {
		return nil, fmt.Errorf("replicate: create raft instance: %w", err)
	}

	return &Node{cfg: cfg, fsm: fsm, raft: r}, nil
}

// Bootstrap forms a brand-new single-node cluster with this node as its
// only voter. Subsequent members join through a leader-side AddVoter
// call.
func (n *Node) Bootstrap() error {
	addr, err := net.ResolveTCPAddr("tcp", n.cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("replicate: resolve bind address: %w", err)
	}
	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(n.cfg.NodeID), Address: raft.ServerAddress(addr.String())},
		},
	}
	return n.raft.BootstrapCluster(configuration).Error()
}

// AddVoter adds another node to the cluster. Must be called against the
// current leader.
func (n *Node) AddVoter(nodeID, addr string) error {
	if !n.IsLeader() {
		return fmt.Errorf("replicate: not the leader, current leader is %s", n.LeaderAddr())
	}
	return n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 10*time.Second).Error()
}

// Propose submits tx to the cluster's Raft log and blocks until it has
// been applied locally, returning the ApplyTransaction results from this
// node's own FSM invocation. Must be called against the leader; followers
// should forward writes to the leader at the pkg/rpc layer (§4.G
// `UpdateBefore`/leader-forwarding is a deployment concern, not this
// package's).
func (n *Node) Propose(tx *transaction.Transaction, timeout time.Duration) ([]transaction.OperationResult, error) {
	if !n.IsLeader() {
		return nil, fmt.Errorf("replicate: not the leader, current leader is %s", n.LeaderAddr())
	}

	data, err := wire.Encode(wire.TransactionToWire(tx))
	if err != nil {
		return nil, fmt.Errorf("replicate: encode transaction: %w", err)
	}

	future := n.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("replicate: apply: %w", err)
	}

	switch resp := future.Response().(type) {
	case error:
		return nil, resp
	case []transaction.OperationResult:
		return resp, nil
	default:
		return nil, nil
	}
}

// IsLeader reports whether this node currently holds Raft leadership.
func (n *Node) IsLeader() bool { return n.raft.State() == raft.Leader }

// LeaderAddr returns the current leader's Raft bind address, or "" if
// none is known yet.
func (n *Node) LeaderAddr() string {
	addr, _ := n.raft.LeaderWithID()
	return string(addr)
}

// AppliedIndex returns the index of the last log entry applied to this
// node's FSM, the signal pkg/query's UpdateBefore access policy would
// block on in a replicated deployment.
func (n *Node) AppliedIndex() uint64 { return n.raft.AppliedIndex() }

// Shutdown gracefully leaves the Raft cluster and releases local
// resources.
func (n *Node) Shutdown() error {
	return n.raft.Shutdown().Error()
}
