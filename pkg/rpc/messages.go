package rpc

import "github.com/hollowdb/hollow/pkg/wire"

// Every *Request/*Response pair below is CBOR-encoded as the Payload of a
// wire.Envelope/wire.Reply by Client.call and decoded by the matching
// dispatch table entry in server.go. Database carries the target
// database name resolved through the Manager; it is empty for calls that
// do not need one (list_databases, list_available_schemas).

type applyTransactionRequest struct {
	Database    string
	Transaction wire.Transaction
}

type applyTransactionResponse struct {
	Results []wire.OperationResult
}

type getRequest struct {
	Database   string
	Collection string
	ID         uint64
}

type getResponse struct {
	Found   bool
	Header  wire.Header
	Content []byte
}

type getMultipleRequest struct {
	Database   string
	Collection string
	IDs        []uint64
}

type documentWire struct {
	Header  wire.Header
	Content []byte
}

type getMultipleResponse struct {
	Documents []documentWire
}

type listRequest struct {
	Database   string
	Collection string
	Start      *uint64
	End        *uint64
	Order      wire.Order
	Limit      int
}

type listResponse struct {
	Documents []documentWire
}

type queryRequest struct {
	Database   string
	Collection string
	View       string
	Filter     wire.QueryKey
	Order      wire.Order
	Limit      int
	Policy     wire.AccessPolicy
}

type queryResponse struct {
	Rows []wire.MappedRow
}

type queryWithDocsResponse struct {
	Rows      []wire.MappedRow
	Documents []documentWire
}

type reduceRequest struct {
	Database   string
	Collection string
	View       string
	Filter     wire.QueryKey
	Policy     wire.AccessPolicy
}

type reduceResponse struct {
	Value []byte
}

type reduceGroupedResponse struct {
	Groups []wire.MappedRow
}

type deleteDocsResponse struct {
	Deleted uint64
}

type databaseOnlyRequest struct {
	Database string
}

type lastTransactionIDResponse struct {
	ID uint64
}

type listExecutedRequest struct {
	Database   string
	StartingID uint64
	Limit      int
}

type listExecutedResponse struct {
	Records []wire.Executed
}

type kvSetRequest struct {
	Database       string
	Namespace      string
	Key            string
	Value          wire.KVValue
	Check          wire.KVCheck
	ExpirationUnix *int64
	ReturnPrevious bool
}

type kvSetResponse struct {
	HadPrevious bool
	Previous    wire.KVValue
}

type kvGetRequest struct {
	Database  string
	Namespace string
	Key       string
	Delete    bool
}

type kvGetResponse struct {
	Found bool
	Value wire.KVValue
}

type kvDeleteRequest struct {
	Database  string
	Namespace string
	Key       string
}

type kvAdjustRequest struct {
	Database   string
	Namespace  string
	Key        string
	Delta      int64
	Saturating bool
	Decrement  bool
}

type kvAdjustResponse struct {
	Value int64
}

type createDatabaseRequest struct {
	Name         string
	Schema       string
	OnlyIfNeeded bool
}

type deleteDatabaseRequest struct {
	Name string
}

type listDatabasesResponse struct {
	Names []string
}

type listAvailableSchemasResponse struct {
	Names []string
}
