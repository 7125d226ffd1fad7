// Package transaction implements the atomic insert/update/delete batch
// engine (§4.E): Transaction value construction, commit, conflict
// detection, unique-view enforcement, and the Executed audit log. It also
// owns the in-memory view indexes (§4.D), keeping them consistent with
// every commit it accepts.
package transaction

import (
	"github.com/hollowdb/hollow/pkg/document"
)

// OpKind enumerates the three operation shapes a transaction may contain.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
)

// Operation is one step of a Transaction (§3 "Transaction").
type Operation struct {
	Kind             OpKind
	Collection       document.CollectionName
	ID               *uint64             // Insert only; nil means engine-chosen
	ExpectedRevision *document.Revision  // Update/Delete only
	DocumentID       uint64              // Update/Delete only
	Contents         []byte              // Insert/Update only
}

// Insert builds an Insert operation. id is nil to let the engine choose.
func Insert(collection document.CollectionName, id *uint64, contents []byte) Operation {
	return Operation{Kind: OpInsert, Collection: collection, ID: id, Contents: contents}
}

// Update builds an Update operation referencing the document's last-known
// header for optimistic concurrency control.
func Update(header document.Header, contents []byte) Operation {
	rev := header.Revision
	return Operation{
		Kind:             OpUpdate,
		Collection:       header.Collection,
		DocumentID:       header.ID,
		ExpectedRevision: &rev,
		Contents:         contents,
	}
}

// Delete builds a Delete operation referencing the document's last-known
// header.
func Delete(header document.Header) Operation {
	rev := header.Revision
	return Operation{
		Kind:             OpDelete,
		Collection:       header.Collection,
		DocumentID:       header.ID,
		ExpectedRevision: &rev,
	}
}

// Transaction is an ordered, non-empty sequence of operations submitted
// together for atomic application.
type Transaction struct {
	Ops []Operation
}

// New returns an empty transaction ready to be built up with Insert,
// Update, Delete, or Push.
func New() *Transaction {
	return &Transaction{}
}

// Insert appends an Insert operation and returns the transaction for
// chaining.
func (t *Transaction) Insert(collection document.CollectionName, id *uint64, contents []byte) *Transaction {
	return t.Push(Insert(collection, id, contents))
}

// Update appends an Update operation and returns the transaction for
// chaining.
func (t *Transaction) Update(header document.Header, contents []byte) *Transaction {
	return t.Push(Update(header, contents))
}

// Delete appends a Delete operation and returns the transaction for
// chaining.
func (t *Transaction) Delete(header document.Header) *Transaction {
	return t.Push(Delete(header))
}

// Push appends an arbitrary, already-constructed operation.
func (t *Transaction) Push(op Operation) *Transaction {
	t.Ops = append(t.Ops, op)
	return t
}

// ResultKind enumerates the two operation outcomes defined in §4.E.
type ResultKind int

const (
	ResultDocumentUpdated ResultKind = iota
	ResultDocumentDeleted
)

// OperationResult is the per-operation outcome returned by
// Database.ApplyTransaction, in the same order as the submitted
// operations.
type OperationResult struct {
	Kind   ResultKind
	Header document.Header // set for ResultDocumentUpdated (covers inserts too)
}
