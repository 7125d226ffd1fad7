// Package wire defines the stable, self-describing payload shapes carried
// across a process boundary: gRPC request/response bodies (pkg/rpc) and
// Raft log entries (pkg/replicate). In-process callers use pkg/transaction
// and pkg/query's native Go types directly; anything leaving the process
// goes through these CBOR-encoded shapes instead, the split map.rs draws
// between its typed Map and wire-encoded Serialized forms (§6).
package wire

import "github.com/fxamacker/cbor/v2"

// Revision is document.Revision's wire shape.
type Revision struct {
	Sequence uint32
	Hash     []byte
}

// Header is document.Header's wire shape; Collection is the dotted
// "authority.name" string (document.CollectionName.String()).
type Header struct {
	Collection string
	ID         uint64
	Revision   Revision
}

// OpKind mirrors transaction.OpKind as a wire-stable string rather than an
// unexported int, so the byte layout does not depend on iota order.
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Operation is transaction.Operation's wire shape.
type Operation struct {
	Kind             OpKind
	Collection       string
	ID               *uint64
	ExpectedRevision *Revision
	DocumentID       uint64
	Contents         []byte
}

// Transaction is transaction.Transaction's wire shape, and the payload
// type carried inside every Raft log entry pkg/replicate applies.
type Transaction struct {
	Ops []Operation
}

// ResultKind mirrors transaction.ResultKind.
type ResultKind string

const (
	ResultDocumentUpdated ResultKind = "updated"
	ResultDocumentDeleted ResultKind = "deleted"
)

// OperationResult is transaction.OperationResult's wire shape.
type OperationResult struct {
	Kind   ResultKind
	Header Header
}

// ChangeOp mirrors storage.ChangeOp.
type ChangeOp string

const (
	ChangeInserted ChangeOp = "inserted"
	ChangeUpdated  ChangeOp = "updated"
	ChangeDeleted  ChangeOp = "deleted"
)

// Change is storage.Change's wire shape.
type Change struct {
	Collection  string
	DocumentID  uint64
	Op          ChangeOp
	NewRevision *Revision
}

// Executed is storage.ExecutedRecord's wire shape. TimestampUnix is
// carried as a plain int64 since the whole envelope is CBOR, not
// protobuf messages; there's no wrapper type to round-trip through.
type Executed struct {
	TransactionID uint64
	TimestampUnix int64
	Changes       []Change
}

// Bound is query.Bound's wire shape.
type Bound struct {
	Key       []byte
	Inclusive bool
}

// FilterKind mirrors query's unexported filterKind.
type FilterKind string

const (
	FilterAll      FilterKind = "all"
	FilterMatches  FilterKind = "matches"
	FilterRange    FilterKind = "range"
	FilterMultiple FilterKind = "multiple"
)

// QueryKey is query.KeyFilter's wire shape.
type QueryKey struct {
	Kind     FilterKind
	Match    []byte
	Start    *Bound
	End      *Bound
	Multiple [][]byte
}

// Order mirrors query.Order.
type Order string

const (
	Ascending  Order = "ascending"
	Descending Order = "descending"
)

// AccessPolicy mirrors query.AccessPolicy.
type AccessPolicy string

const (
	UpdateBefore AccessPolicy = "update_before"
	UpdateAfter  AccessPolicy = "update_after"
	NoUpdate     AccessPolicy = "no_update"
)

// MappedRow is query.MappedRow's wire shape.
type MappedRow struct {
	SourceID uint64
	Key      []byte
	Value    []byte
}

// KVCheck mirrors kv.Check.
type KVCheck string

const (
	KVCheckNone    KVCheck = "none"
	KVCheckPresent KVCheck = "if_present"
	KVCheckAbsent  KVCheck = "if_absent"
)

// KVValue is storage.KVValue's wire shape.
type KVValue struct {
	Bytes   []byte
	Numeric *int64
}

// Envelope is the generic gRPC request body pkg/rpc exchanges: Method
// names one of pkg/rpc's dispatch table entries and Payload is a further
// CBOR-encoded value specific to that method.
type Envelope struct {
	Method  string
	Payload []byte
}

// Reply is the generic gRPC response body. Err carries a server-side
// failure back as a string rather than a grpc status, since the codec
// never leaves the raw-bytes layer.
type Reply struct {
	Payload []byte
	Err     string
}

// Encode CBOR-encodes v, the wire format every payload in this package
// uses both over gRPC and inside Raft log entries.
func Encode(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

// Decode CBOR-decodes data into v.
func Decode(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}
