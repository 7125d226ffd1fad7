// Package storage defines the interface the transaction and key-value
// layers persist through, and ships one concrete implementation backed by
// bbolt. The interface is the contract SPEC_FULL.md's component E/H rely
// on; which engine backs a given database is a deployment choice, not
// something the core dictates, mirroring the teacher's storage.Store
// interface/boltdb.go split.
package storage

import "github.com/hollowdb/hollow/pkg/document"

// StoredDocument is the on-disk shape of one document revision, as handed
// to and returned from an Engine.
type StoredDocument struct {
	ID       uint64
	Revision document.Revision
	Contents []byte
}

// ViewEntry is one persisted (key, value) row for a view, tagged with the
// document that produced it so it can be retracted when that document
// changes or is deleted.
type ViewEntry struct {
	Key        []byte
	Value      []byte
	DocumentID uint64
}

// ExecutedRecord is the durable audit row for one committed transaction
// (§3 "Executed record").
type ExecutedRecord struct {
	TransactionID uint64
	TimestampUnix int64 // milliseconds
	Changes       []Change
}

// Change describes one operation's effect within an Executed record.
type Change struct {
	Collection  document.CollectionName
	DocumentID  uint64
	Op          ChangeOp
	NewRevision *document.Revision // nil for deletes
}

// ChangeOp enumerates the operation kinds recorded in an Executed record.
type ChangeOp int

const (
	ChangeInserted ChangeOp = iota
	ChangeUpdated
	ChangeDeleted
)

func (op ChangeOp) String() string {
	switch op {
	case ChangeInserted:
		return "inserted"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// KVValue is the sidestore's tagged value union (§4.H).
type KVValue struct {
	Bytes   []byte
	Numeric *int64
}

// IsNumeric reports whether the value holds the Numeric variant.
func (v KVValue) IsNumeric() bool { return v.Numeric != nil }

// KVEntry is one persisted key-value row with its optional expiration.
type KVEntry struct {
	Value          KVValue
	ExpirationUnix *int64 // milliseconds; nil means no TTL
}

// Engine is the durability contract a database instance is built on. One
// Engine instance serves exactly one database: document storage, view
// index persistence, the executed log, and the key-value sidestore all
// share its commit boundary so a single Engine.Commit call is the atomic
// unit transaction.Database relies on (§4.E "Atomicity").
type Engine interface {
	// Commit durably applies every accumulated change in one atomic
	// operation: document writes/deletes, view entry writes/deletes, the
	// new Executed record, and any key-value writes folded into the same
	// transaction. Implementations must leave no partial effect on error.
	Commit(batch Batch) error

	GetDocument(collection document.CollectionName, id uint64) (StoredDocument, bool, error)
	ListDocuments(collection document.CollectionName) ([]StoredDocument, error)

	// ViewEntries returns every persisted entry for a view, used to
	// rebuild the in-memory index at startup.
	ViewEntries(viewName string) ([]ViewEntry, error)

	// ViewVersion returns the version a view's persisted entries were
	// last built with, or (0, false, nil) if the view has never been
	// built (§4.D "Versioning").
	ViewVersion(viewName string) (int, bool, error)

	// RebuildView atomically replaces every persisted entry for a view
	// with entries and records version as the version they were built
	// at, discarding whatever was stored under the old version.
	RebuildView(viewName string, version int, entries []ViewEntry) error

	LastTransactionID() (uint64, error)
	ListExecuted(startingID uint64, limit int) ([]ExecutedRecord, error)

	GetKV(namespace, key string) (KVEntry, bool, error)
	ListKV(namespace string) (map[string]KVEntry, error)
	PutKV(namespace, key string, entry KVEntry) error
	DeleteKV(namespace, key string) error

	// SchemaName returns the qualified schema name this database was
	// created with, or ("", false, nil) if none has been recorded yet
	// (a database opened before this check existed, or mid-creation).
	SchemaName() (string, bool, error)

	// SetSchemaName persists the qualified schema name a database was
	// created with. Called once, the first time a database is opened.
	SetSchemaName(name string) error

	// Compact runs the engine's maintenance pass. BoltEngine's pass checks
	// the file's consistency and does not reclaim space.
	Compact() error

	Close() error
}

// Batch accumulates one transaction's durable effects before Engine.Commit
// applies them atomically.
type Batch struct {
	Executed    ExecutedRecord
	PutDocs     map[document.CollectionName][]StoredDocument
	DeleteDocs  map[document.CollectionName][]uint64
	PutViews    map[string][]ViewEntry
	DeleteViews map[string][]ViewEntryKey
	PutKV       []KVWrite
	DeleteKV    []KVKey
}

// NewBatch returns an empty batch ready for accumulation.
func NewBatch() Batch {
	return Batch{
		PutDocs:     make(map[document.CollectionName][]StoredDocument),
		DeleteDocs:  make(map[document.CollectionName][]uint64),
		PutViews:    make(map[string][]ViewEntry),
		DeleteViews: make(map[string][]ViewEntryKey),
	}
}

// ViewEntryKey identifies one persisted view row for retraction.
type ViewEntryKey struct {
	Key        []byte
	DocumentID uint64
}

// KVWrite is one key-value put folded into a transaction's batch.
type KVWrite struct {
	Namespace, Key string
	Entry          KVEntry
}

// KVKey identifies one key-value row for deletion.
type KVKey struct {
	Namespace, Key string
}
