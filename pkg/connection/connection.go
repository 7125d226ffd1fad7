// Package connection implements the local Connection facade (§4.G): the
// single entry point an embedding application uses for transactions,
// queries, document reads, and maintenance operations against one open
// database, plus a storage-level facade for database lifecycle. Grounded
// on the teacher's pkg/client.Client, which plays the same "one façade,
// many subsystems wired behind it" role over a remote warren cluster.
package connection

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hollowdb/hollow/pkg/dberr"
	"github.com/hollowdb/hollow/pkg/document"
	"github.com/hollowdb/hollow/pkg/kv"
	"github.com/hollowdb/hollow/pkg/metrics"
	"github.com/hollowdb/hollow/pkg/query"
	"github.com/hollowdb/hollow/pkg/schema"
	"github.com/hollowdb/hollow/pkg/storage"
	"github.com/hollowdb/hollow/pkg/transaction"
	"golang.org/x/sync/errgroup"
)

// Default and hard caps on list_executed_transactions (§4.G).
const (
	DefaultExecutedLimit = 1000
	MaxExecutedLimit     = 100000
)

// IDRange bounds a List call by document id, either side optionally unset.
type IDRange struct {
	Start    *uint64
	End      *uint64 // exclusive
	HasStart bool
	HasEnd   bool
}

// Connection is the facade over one open database: transactions, queries,
// document reads, and maintenance, all serialized behind the underlying
// transaction.Database's single commit lock where durability requires it.
type Connection struct {
	db     *transaction.Database
	engine storage.Engine
	query  *query.Engine
	kv     *kv.Store
}

// Open wires a schema and storage engine into a ready-to-use Connection.
func Open(s *schema.Schema, engine storage.Engine) (*Connection, error) {
	db, err := transaction.Open(s, engine)
	if err != nil {
		return nil, err
	}
	return &Connection{
		db:     db,
		engine: engine,
		query:  query.New(db),
		kv:     kv.New(engine),
	}, nil
}

// Database exposes the underlying transaction.Database for callers that
// need direct access (pkg/metrics.Collector, pkg/rpc's dispatch layer).
func (c *Connection) Database() *transaction.Database { return c.db }

// KV exposes the key-value sidestore (§4.H).
func (c *Connection) KV() *kv.Store { return c.kv }

// ApplyTransaction commits tx (§4.E).
func (c *Connection) ApplyTransaction(tx *transaction.Transaction) ([]transaction.OperationResult, error) {
	return c.db.ApplyTransaction(tx)
}

// Query runs a view query (§4.F).
func (c *Connection) Query(ctx context.Context, coll document.CollectionName, viewName string, filter query.KeyFilter, order query.Order, limit int, policy query.AccessPolicy) ([]query.MappedRow, error) {
	return c.query.Query(ctx, coll, viewName, filter, order, limit, policy)
}

// QueryWithDocs runs a view query and hydrates source documents (§4.F).
func (c *Connection) QueryWithDocs(ctx context.Context, coll document.CollectionName, viewName string, filter query.KeyFilter, order query.Order, limit int, policy query.AccessPolicy) ([]query.MappedRow, []document.Document, error) {
	return c.query.QueryWithDocs(ctx, coll, viewName, filter, order, limit, policy)
}

// Reduce folds a view query to one value (§4.F).
func (c *Connection) Reduce(ctx context.Context, coll document.CollectionName, viewName string, filter query.KeyFilter, policy query.AccessPolicy) ([]byte, error) {
	return c.query.Reduce(ctx, coll, viewName, filter, policy)
}

// ReduceGrouped folds a view query per key (§4.F).
func (c *Connection) ReduceGrouped(ctx context.Context, coll document.CollectionName, viewName string, filter query.KeyFilter, policy query.AccessPolicy) ([]query.ReducedGroup, error) {
	return c.query.ReduceGrouped(ctx, coll, viewName, filter, policy)
}

// DeleteDocs deletes every document matching a view query (§4.F).
func (c *Connection) DeleteDocs(ctx context.Context, coll document.CollectionName, viewName string, filter query.KeyFilter, policy query.AccessPolicy) (uint64, error) {
	return c.query.DeleteDocs(ctx, coll, viewName, filter, policy)
}

// Get returns one document by collection and id (§4.G `get`).
func (c *Connection) Get(coll document.CollectionName, id uint64) (document.Document, bool, error) {
	return c.db.Get(coll, id)
}

// GetMultiple returns every document among ids that exists, silently
// skipping missing ones rather than erroring (§4.G `get_multiple`,
// following original_source/crates/bonsaidb-core/src/connection.rs).
// Lookups run concurrently since each is an independent bbolt read.
func (c *Connection) GetMultiple(ctx context.Context, coll document.CollectionName, ids []uint64) ([]document.Document, error) {
	docs := make([]document.Document, len(ids))
	found := make([]bool, len(ids))

	g, _ := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			doc, ok, err := c.db.Get(coll, id)
			if err != nil {
				return err
			}
			docs[i], found[i] = doc, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]document.Document, 0, len(ids))
	for i, ok := range found {
		if ok {
			out = append(out, docs[i])
		}
	}
	return out, nil
}

// List returns a collection's documents within idRange, ordered and
// limited (§4.G `list`).
func (c *Connection) List(coll document.CollectionName, idRange IDRange, order query.Order, limit int) ([]document.Document, error) {
	stored, err := c.engine.ListDocuments(coll)
	if err != nil {
		return nil, &dberr.Storage{Op: "list_documents", Err: err}
	}

	out := make([]document.Document, 0, len(stored))
	for _, sd := range stored {
		if idRange.HasStart && idRange.Start != nil && sd.ID < *idRange.Start {
			continue
		}
		if idRange.HasEnd && idRange.End != nil && sd.ID >= *idRange.End {
			continue
		}
		out = append(out, document.Document{
			Header:   document.Header{Collection: coll, ID: sd.ID, Revision: sd.Revision},
			Contents: sd.Contents,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if order == query.Descending {
			return out[i].Header.ID > out[j].Header.ID
		}
		return out[i].Header.ID < out[j].Header.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LastTransactionID returns the id of the most recently committed
// transaction (§4.G `last_transaction_id`).
func (c *Connection) LastTransactionID() (uint64, error) {
	return c.db.LastTransactionID()
}

// ListExecutedTransactions returns committed transaction records starting
// at startingID, enforcing the default/hard caps (§4.G
// `list_executed_transactions`): limit <= 0 uses the default cap, and any
// requested limit above the hard cap is silently clamped to it.
func (c *Connection) ListExecutedTransactions(startingID uint64, limit int) ([]storage.ExecutedRecord, error) {
	if limit <= 0 {
		limit = DefaultExecutedLimit
	}
	if limit > MaxExecutedLimit {
		limit = MaxExecutedLimit
	}
	return c.db.ListExecuted(startingID, limit)
}

// Compact runs a full maintenance pass over the storage engine (§4.G
// `compact`).
func (c *Connection) Compact() error {
	return c.engine.Compact()
}

// CompactCollection is equivalent to Compact: bbolt compacts at the level
// of the whole file, not per bucket, so there is no cheaper per-collection
// pass to run. Kept as a distinct method to preserve the §4.G surface for
// callers and future backends that can scope the work more tightly.
func (c *Connection) CompactCollection(_ document.CollectionName) error {
	return c.engine.Compact()
}

// CompactKeyValueStore is equivalent to Compact, for the same reason as
// CompactCollection (§4.G `compact_key_value_store`).
func (c *Connection) CompactKeyValueStore() error {
	return c.engine.Compact()
}

// Close releases the underlying storage engine's resources.
func (c *Connection) Close() error {
	return c.engine.Close()
}

// Manager is the storage-level facade over database lifecycle (§4.G
// "separate storage-level facade"): create_database, delete_database,
// list_databases, list_available_schemas. One bbolt file per database,
// named after the (case-folded) database name under dataDir.
type Manager struct {
	mu        sync.Mutex
	dataDir   string
	schemas   *schema.Registry
	databases map[string]*Connection // folded name -> open connection
	names     map[string]string      // folded name -> display name
}

// NewManager creates a database manager rooted at dataDir, resolving
// schemas for create_database against registry.
func NewManager(dataDir string, registry *schema.Registry) *Manager {
	return &Manager{
		dataDir:   dataDir,
		schemas:   registry,
		databases: make(map[string]*Connection),
		names:     make(map[string]string),
	}
}

// CreateDatabase opens or creates a database named name using the
// registered schema schemaName. If onlyIfNeeded is true and the database
// already exists, the existing Connection is returned instead of erroring
// (§4.G `create_database(name, schema, only_if_needed)`).
func (m *Manager) CreateDatabase(name, schemaName string, onlyIfNeeded bool) (*Connection, error) {
	if err := schema.ValidateName("database", name); err != nil {
		return nil, &dberr.InvalidDatabaseName{Name: name, Detail: err.Error()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	folded := schema.FoldName(name)
	if existing, ok := m.databases[folded]; ok {
		if onlyIfNeeded {
			return existing, nil
		}
		return nil, dberr.ErrDatabaseNameAlreadyTaken
	}

	s, err := m.schemas.Resolve(schemaName)
	if err != nil {
		return nil, err
	}

	dbDir := filepath.Join(m.dataDir, folded)
	if err := os.MkdirAll(dbDir, 0700); err != nil {
		return nil, &dberr.Storage{Op: "open_database", Err: err}
	}
	engine, err := storage.OpenBoltEngine(dbDir)
	if err != nil {
		return nil, &dberr.Storage{Op: "open_database", Err: err}
	}

	stored, hasStored, err := engine.SchemaName()
	if err != nil {
		engine.Close()
		return nil, &dberr.Storage{Op: "open_database", Err: err}
	}
	if hasStored {
		if stored != schemaName {
			engine.Close()
			return nil, &dberr.SchemaMismatch{DatabaseName: name, Requested: schemaName, Stored: stored}
		}
	} else if err := engine.SetSchemaName(schemaName); err != nil {
		engine.Close()
		return nil, &dberr.Storage{Op: "open_database", Err: err}
	}

	conn, err := Open(s, engine)
	if err != nil {
		engine.Close()
		return nil, err
	}

	m.databases[folded] = conn
	m.names[folded] = name
	metrics.RegisterDatabaseProbe(name, func() error {
		_, err := conn.LastTransactionID()
		return err
	})
	return conn, nil
}

// DeleteDatabase closes and removes name's data directory
// (§4.G `delete_database`).
func (m *Manager) DeleteDatabase(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	folded := schema.FoldName(name)
	conn, ok := m.databases[folded]
	if !ok {
		return dberr.ErrDatabaseNotFound
	}
	displayName := m.names[folded]
	if err := conn.Close(); err != nil {
		return &dberr.Storage{Op: "close_database", Err: err}
	}
	delete(m.databases, folded)
	delete(m.names, folded)
	metrics.RegisterDatabaseProbe(displayName, nil)
	return os.RemoveAll(filepath.Join(m.dataDir, folded))
}

// ListDatabases returns every open database's display name, sorted
// (§4.G `list_databases`).
func (m *Manager) ListDatabases() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.names))
	for _, name := range m.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ListAvailableSchemas delegates to the schema registry
// (§4.G `list_available_schemas`).
func (m *Manager) ListAvailableSchemas() []string {
	return m.schemas.List()
}

// Get resolves an already-open database by name, reporting
// ErrDatabaseNotFound if it has not been created this process.
func (m *Manager) Get(name string) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.databases[schema.FoldName(name)]
	if !ok {
		return nil, dberr.ErrDatabaseNotFound
	}
	return conn, nil
}
