// Package dberr defines the error kinds every backend (local engine, remote
// client) reports through the same shapes, mirroring the Error enum in
// khonsulabs/pliantdb's core/src/lib.rs and spec.md §7.
package dberr

import (
	"errors"
	"fmt"

	"github.com/hollowdb/hollow/pkg/document"
)

// Sentinel errors for conditions that carry no extra context. Wrap with
// fmt.Errorf("...: %w", ErrX) to attach context and keep errors.Is working.
var (
	// ErrCollectionNotFound means an operation referenced a collection not
	// registered with the connected schema.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionAlreadyDefined means a collection name collided during
	// schema registration.
	ErrCollectionAlreadyDefined = errors.New("collection already defined")

	// ErrSchemaAlreadyRegistered means the schema name was registered twice.
	ErrSchemaAlreadyRegistered = errors.New("schema already registered")

	// ErrSchemaNotRegistered means a schema name was referenced before
	// registration.
	ErrSchemaNotRegistered = errors.New("schema not registered")

	// ErrDatabaseNotFound means the named database does not exist.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrDatabaseNameAlreadyTaken means create_database collided with an
	// existing, case-insensitively equal, database name.
	ErrDatabaseNameAlreadyTaken = errors.New("database name already taken")

	// ErrPermissionDenied is reserved for the (external) auth collaborator.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidCredentials is reserved for the (external) auth collaborator.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound is reserved for the (external) auth collaborator.
	ErrUserNotFound = errors.New("user not found")
)

// InvalidName reports a name grammar violation (§4.C).
type InvalidName struct {
	Name   string
	Detail string
}

func (e *InvalidName) Error() string {
	return fmt.Sprintf("invalid name %q: %s", e.Name, e.Detail)
}

// InvalidDatabaseName reports a database name grammar violation (§4.G).
type InvalidDatabaseName struct {
	Name   string
	Detail string
}

func (e *InvalidDatabaseName) Error() string {
	return fmt.Sprintf("invalid database name %q: %s", e.Name, e.Detail)
}

// SchemaMismatch is returned opening a database whose persisted schema
// qualifier differs from the one the caller provided.
type SchemaMismatch struct {
	DatabaseName string
	Requested    string
	Stored       string
}

func (e *SchemaMismatch) Error() string {
	return fmt.Sprintf("database %q was created with schema %q, not %q",
		e.DatabaseName, e.Stored, e.Requested)
}

// DocumentNotFound is returned by Update/Delete when the referenced
// document does not exist, and by Get for a missing id when the caller
// requires existence (Get itself reports "not found" as found == false
// with a nil error).
type DocumentNotFound struct {
	Collection document.CollectionName
	ID         uint64
}

func (e *DocumentNotFound) Error() string {
	return fmt.Sprintf("document %d not found in collection %s", e.ID, e.Collection)
}

// DocumentConflict is returned when an Update or Delete's expected revision
// no longer matches the stored document.
type DocumentConflict struct {
	Collection document.CollectionName
	ID         uint64
}

func (e *DocumentConflict) Error() string {
	return fmt.Sprintf("conflict updating document %d in collection %s", e.ID, e.Collection)
}

// DocumentAlreadyExists is returned by Insert(collection, Some(id), ...)
// when id is already taken.
type DocumentAlreadyExists struct {
	Collection document.CollectionName
	ID         uint64
}

func (e *DocumentAlreadyExists) Error() string {
	return fmt.Sprintf("document %d already exists in collection %s", e.ID, e.Collection)
}

// UniqueKeyViolation is returned at commit time when two documents in a
// transaction (or one transacted document and an existing one) emit the
// same key for a unique view.
type UniqueKeyViolation struct {
	View                  string
	ExistingDocumentID    uint64
	ConflictingDocumentID uint64
}

func (e *UniqueKeyViolation) Error() string {
	return fmt.Sprintf(
		"unique key violation: document %d already has the same key as %d for view %s",
		e.ExistingDocumentID, e.ConflictingDocumentID, e.View,
	)
}

// KeySerialization wraps a codec failure with the context of which key it
// occurred for.
type KeySerialization struct {
	Detail string
}

func (e *KeySerialization) Error() string { return "key serialization: " + e.Detail }

// Storage wraps an error surfaced by the storage engine collaborator. The
// core never swallows it; callers distinguish retryable conditions (a
// locked data file, an in-flight compaction) from permanent ones by
// inspecting Err directly.
type Storage struct {
	Op  string
	Err error
}

func (e *Storage) Error() string { return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err) }

func (e *Storage) Unwrap() error { return e.Err }

// ValueKindMismatch is returned by the KV sidestore when an operation that
// requires a Numeric value is applied to a Bytes value, or vice versa.
type ValueKindMismatch struct {
	Namespace, Key string
}

func (e *ValueKindMismatch) Error() string {
	return fmt.Sprintf("value kind mismatch for %s/%s", e.Namespace, e.Key)
}

// MissingKey is returned by a KV Set with Check=IfPresent when the key does
// not exist.
type MissingKey struct {
	Namespace, Key string
}

func (e *MissingKey) Error() string { return fmt.Sprintf("missing key %s/%s", e.Namespace, e.Key) }

// KeyExists is returned by a KV Set with Check=IfAbsent when the key
// already exists.
type KeyExists struct {
	Namespace, Key string
}

func (e *KeyExists) Error() string { return fmt.Sprintf("key exists %s/%s", e.Namespace, e.Key) }
