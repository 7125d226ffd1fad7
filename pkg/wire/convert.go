package wire

import (
	"strings"

	"github.com/hollowdb/hollow/pkg/document"
	"github.com/hollowdb/hollow/pkg/kv"
	"github.com/hollowdb/hollow/pkg/query"
	"github.com/hollowdb/hollow/pkg/storage"
	"github.com/hollowdb/hollow/pkg/transaction"
)

// ParseCollectionName splits a dotted "authority.name" wire string back
// into a document.CollectionName. Malformed input (no dot) is returned as
// an all-Name CollectionName; validation happens against the schema, not
// here.
func ParseCollectionName(s string) document.CollectionName {
	authority, name, ok := strings.Cut(s, ".")
	if !ok {
		return document.CollectionName{Name: s}
	}
	return document.CollectionName{Authority: authority, Name: name}
}

func revisionToWire(r document.Revision) Revision {
	hash := r.Hash
	return Revision{Sequence: r.Sequence, Hash: hash[:]}
}

func revisionFromWire(r Revision) document.Revision {
	var hash document.Hash
	copy(hash[:], r.Hash)
	return document.Revision{Sequence: r.Sequence, Hash: hash}
}

// HeaderToWire converts a document.Header to its wire shape.
func HeaderToWire(h document.Header) Header {
	return Header{Collection: h.Collection.String(), ID: h.ID, Revision: revisionToWire(h.Revision)}
}

// HeaderFromWire converts a wire Header back to document.Header.
func HeaderFromWire(h Header) document.Header {
	return document.Header{Collection: ParseCollectionName(h.Collection), ID: h.ID, Revision: revisionFromWire(h.Revision)}
}

// TransactionToWire converts a native Transaction to its wire shape, for
// a Raft log entry or an outbound RPC request.
func TransactionToWire(tx *transaction.Transaction) Transaction {
	out := Transaction{Ops: make([]Operation, len(tx.Ops))}
	for i, op := range tx.Ops {
		w := Operation{
			Collection: op.Collection.String(),
			ID:         op.ID,
			DocumentID: op.DocumentID,
			Contents:   op.Contents,
		}
		switch op.Kind {
		case transaction.OpInsert:
			w.Kind = OpInsert
		case transaction.OpUpdate:
			w.Kind = OpUpdate
		case transaction.OpDelete:
			w.Kind = OpDelete
		}
		if op.ExpectedRevision != nil {
			rev := revisionToWire(*op.ExpectedRevision)
			w.ExpectedRevision = &rev
		}
		out.Ops[i] = w
	}
	return out
}

// TransactionFromWire converts a wire Transaction back to the native type
// pkg/transaction.Database.ApplyTransaction accepts.
func TransactionFromWire(w Transaction) *transaction.Transaction {
	tx := transaction.New()
	for _, op := range w.Ops {
		coll := ParseCollectionName(op.Collection)
		var rev *document.Revision
		if op.ExpectedRevision != nil {
			r := revisionFromWire(*op.ExpectedRevision)
			rev = &r
		}
		switch op.Kind {
		case OpInsert:
			tx.Push(transaction.Insert(coll, op.ID, op.Contents))
		case OpUpdate:
			tx.Push(transaction.Operation{
				Kind: transaction.OpUpdate, Collection: coll, DocumentID: op.DocumentID,
				ExpectedRevision: rev, Contents: op.Contents,
			})
		case OpDelete:
			tx.Push(transaction.Operation{
				Kind: transaction.OpDelete, Collection: coll, DocumentID: op.DocumentID,
				ExpectedRevision: rev,
			})
		}
	}
	return tx
}

// OperationResultsToWire converts ApplyTransaction's results to wire shape.
func OperationResultsToWire(results []transaction.OperationResult) []OperationResult {
	out := make([]OperationResult, len(results))
	for i, r := range results {
		kind := ResultDocumentUpdated
		if r.Kind == transaction.ResultDocumentDeleted {
			kind = ResultDocumentDeleted
		}
		out[i] = OperationResult{Kind: kind, Header: HeaderToWire(r.Header)}
	}
	return out
}

// DocumentToWire converts a document.Document to its wire Header plus raw
// contents, the shape `get`/`get_multiple`/`list` return over RPC.
func DocumentToWire(doc document.Document) (Header, []byte) {
	return HeaderToWire(doc.Header), doc.Contents
}

// ExecutedToWire converts a storage.ExecutedRecord to wire shape.
func ExecutedToWire(rec storage.ExecutedRecord) Executed {
	changes := make([]Change, len(rec.Changes))
	for i, c := range rec.Changes {
		w := Change{Collection: c.Collection.String(), DocumentID: c.DocumentID}
		switch c.Op {
		case storage.ChangeInserted:
			w.Op = ChangeInserted
		case storage.ChangeUpdated:
			w.Op = ChangeUpdated
		case storage.ChangeDeleted:
			w.Op = ChangeDeleted
		}
		if c.NewRevision != nil {
			rev := revisionToWire(*c.NewRevision)
			w.NewRevision = &rev
		}
		changes[i] = w
	}
	return Executed{TransactionID: rec.TransactionID, TimestampUnix: rec.TimestampUnix, Changes: changes}
}

// KeyFilterFromWire converts a wire QueryKey to a query.KeyFilter.
func KeyFilterFromWire(k QueryKey) query.KeyFilter {
	switch k.Kind {
	case FilterMatches:
		return query.Matches(k.Match)
	case FilterRange:
		return query.Range(boundFromWire(k.Start), boundFromWire(k.End))
	case FilterMultiple:
		return query.Multiple(k.Multiple)
	default:
		return query.All()
	}
}

// KeyFilterToWire converts a query.KeyFilter to its wire shape, the
// inverse of KeyFilterFromWire, via KeyFilter.Inspect.
func KeyFilterToWire(k query.KeyFilter) QueryKey {
	isAll, match, start, end, multiple := k.Inspect()
	switch {
	case isAll:
		return QueryKey{Kind: FilterAll}
	case match != nil:
		return QueryKey{Kind: FilterMatches, Match: match}
	case start != nil || end != nil:
		return QueryKey{Kind: FilterRange, Start: boundToWire(start), End: boundToWire(end)}
	default:
		return QueryKey{Kind: FilterMultiple, Multiple: multiple}
	}
}

func boundToWire(b *query.Bound) *Bound {
	if b == nil {
		return nil
	}
	return &Bound{Key: b.Key, Inclusive: b.Inclusive}
}

func boundFromWire(b *Bound) *query.Bound {
	if b == nil {
		return nil
	}
	return &query.Bound{Key: b.Key, Inclusive: b.Inclusive}
}

// OrderFromWire converts a wire Order to query.Order.
func OrderFromWire(o Order) query.Order {
	if o == Descending {
		return query.Descending
	}
	return query.Ascending
}

// AccessPolicyFromWire converts a wire AccessPolicy to query.AccessPolicy.
func AccessPolicyFromWire(p AccessPolicy) query.AccessPolicy {
	switch p {
	case UpdateBefore:
		return query.UpdateBefore
	case UpdateAfter:
		return query.UpdateAfter
	default:
		return query.NoUpdate
	}
}

// MappedRowToWire converts a query.MappedRow to wire shape.
func MappedRowToWire(r query.MappedRow) MappedRow {
	return MappedRow{SourceID: r.SourceID, Key: r.Key, Value: r.Value}
}

// KVCheckFromWire converts a wire KVCheck to kv.Check.
func KVCheckFromWire(c KVCheck) kv.Check {
	switch c {
	case KVCheckPresent:
		return kv.CheckIfPresent
	case KVCheckAbsent:
		return kv.CheckIfAbsent
	default:
		return kv.CheckNone
	}
}

// KVValueToWire converts a storage.KVValue to wire shape.
func KVValueToWire(v storage.KVValue) KVValue {
	return KVValue{Bytes: v.Bytes, Numeric: v.Numeric}
}

// KVValueFromWire converts a wire KVValue to storage.KVValue.
func KVValueFromWire(v KVValue) storage.KVValue {
	return storage.KVValue{Bytes: v.Bytes, Numeric: v.Numeric}
}
