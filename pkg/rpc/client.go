package rpc

import (
	"context"
	"fmt"

	"github.com/hollowdb/hollow/pkg/document"
	"github.com/hollowdb/hollow/pkg/kv"
	"github.com/hollowdb/hollow/pkg/query"
	"github.com/hollowdb/hollow/pkg/storage"
	"github.com/hollowdb/hollow/pkg/transaction"
	"github.com/hollowdb/hollow/pkg/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is the remote half of the Connection facade (§4.G): every method
// mirrors pkg/connection.Connection's surface but round-trips through a
// gRPC call against a hollowd listener instead of touching bbolt directly.
type Client struct {
	conn     *grpc.ClientConn
	database string
}

// Dial connects to a hollowd RPC listener at addr, scoping every call to
// database. TLS is left to callers via opts; a loopback or otherwise
// trusted network is assumed when opts is empty.
func Dial(addr, database string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	return &Client{conn: cc, database: database}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	p, err := wire.Encode(payload)
	if err != nil {
		return fmt.Errorf("rpc: encode %s payload: %w", method, err)
	}
	body, err := wire.Encode(wire.Envelope{Method: method, Payload: p})
	if err != nil {
		return fmt.Errorf("rpc: encode envelope: %w", err)
	}

	var respBody []byte
	if err := c.conn.Invoke(ctx, "/hollow.rpc.Connection/Call", &body, &respBody, grpc.ForceCodec(codec{})); err != nil {
		return fmt.Errorf("rpc: %s: %w", method, err)
	}

	var reply wire.Reply
	if err := wire.Decode(respBody, &reply); err != nil {
		return fmt.Errorf("rpc: decode %s reply: %w", method, err)
	}
	if reply.Err != "" {
		return fmt.Errorf("rpc: %s: %s", method, reply.Err)
	}
	if out == nil || len(reply.Payload) == 0 {
		return nil
	}
	return wire.Decode(reply.Payload, out)
}

func docFromWire(d documentWire) document.Document {
	return document.Document{Header: wire.HeaderFromWire(d.Header), Contents: d.Content}
}

func docsFromWire(docs []documentWire) []document.Document {
	out := make([]document.Document, len(docs))
	for i, d := range docs {
		out[i] = docFromWire(d)
	}
	return out
}

// ApplyTransaction commits tx against the client's database.
func (c *Client) ApplyTransaction(ctx context.Context, tx *transaction.Transaction) ([]transaction.OperationResult, error) {
	var resp applyTransactionResponse
	if err := c.call(ctx, "apply_transaction", applyTransactionRequest{
		Database:    c.database,
		Transaction: wire.TransactionToWire(tx),
	}, &resp); err != nil {
		return nil, err
	}
	out := make([]transaction.OperationResult, len(resp.Results))
	for i, r := range resp.Results {
		kind := transaction.ResultDocumentUpdated
		if r.Kind == wire.ResultDocumentDeleted {
			kind = transaction.ResultDocumentDeleted
		}
		out[i] = transaction.OperationResult{Kind: kind, Header: wire.HeaderFromWire(r.Header)}
	}
	return out, nil
}

// Get returns one document by collection and id.
func (c *Client) Get(ctx context.Context, coll document.CollectionName, id uint64) (document.Document, bool, error) {
	var resp getResponse
	err := c.call(ctx, "get", getRequest{Database: c.database, Collection: coll.String(), ID: id}, &resp)
	if err != nil || !resp.Found {
		return document.Document{}, resp.Found, err
	}
	return docFromWire(documentWire{Header: resp.Header, Content: resp.Content}), true, nil
}

// GetMultiple returns every document among ids that exists.
func (c *Client) GetMultiple(ctx context.Context, coll document.CollectionName, ids []uint64) ([]document.Document, error) {
	var resp getMultipleResponse
	if err := c.call(ctx, "get_multiple", getMultipleRequest{Database: c.database, Collection: coll.String(), IDs: ids}, &resp); err != nil {
		return nil, err
	}
	return docsFromWire(resp.Documents), nil
}

// List returns a collection's documents within [start, end), ordered and
// limited.
func (c *Client) List(ctx context.Context, coll document.CollectionName, start, end *uint64, order query.Order, limit int) ([]document.Document, error) {
	var resp listResponse
	if err := c.call(ctx, "list", listRequest{
		Database: c.database, Collection: coll.String(), Start: start, End: end,
		Order: orderToWire(order), Limit: limit,
	}, &resp); err != nil {
		return nil, err
	}
	return docsFromWire(resp.Documents), nil
}

// Query runs a view query remotely.
func (c *Client) Query(ctx context.Context, coll document.CollectionName, viewName string, filter query.KeyFilter, order query.Order, limit int, policy query.AccessPolicy) ([]query.MappedRow, error) {
	var resp queryResponse
	if err := c.call(ctx, "query", queryRequest{
		Database: c.database, Collection: coll.String(), View: viewName,
		Filter: wire.KeyFilterToWire(filter), Order: orderToWire(order), Limit: limit, Policy: accessPolicyToWire(policy),
	}, &resp); err != nil {
		return nil, err
	}
	return mappedRowsFromWire(resp.Rows), nil
}

// QueryWithDocs runs a view query and hydrates source documents remotely.
func (c *Client) QueryWithDocs(ctx context.Context, coll document.CollectionName, viewName string, filter query.KeyFilter, order query.Order, limit int, policy query.AccessPolicy) ([]query.MappedRow, []document.Document, error) {
	var resp queryWithDocsResponse
	if err := c.call(ctx, "query_with_docs", queryRequest{
		Database: c.database, Collection: coll.String(), View: viewName,
		Filter: wire.KeyFilterToWire(filter), Order: orderToWire(order), Limit: limit, Policy: accessPolicyToWire(policy),
	}, &resp); err != nil {
		return nil, nil, err
	}
	return mappedRowsFromWire(resp.Rows), docsFromWire(resp.Documents), nil
}

// Reduce folds a view query to one value remotely.
func (c *Client) Reduce(ctx context.Context, coll document.CollectionName, viewName string, filter query.KeyFilter, policy query.AccessPolicy) ([]byte, error) {
	var resp reduceResponse
	if err := c.call(ctx, "reduce", reduceRequest{
		Database: c.database, Collection: coll.String(), View: viewName,
		Filter: wire.KeyFilterToWire(filter), Policy: accessPolicyToWire(policy),
	}, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// ReduceGrouped folds a view query per key remotely.
func (c *Client) ReduceGrouped(ctx context.Context, coll document.CollectionName, viewName string, filter query.KeyFilter, policy query.AccessPolicy) ([]query.ReducedGroup, error) {
	var resp reduceGroupedResponse
	if err := c.call(ctx, "reduce_grouped", reduceRequest{
		Database: c.database, Collection: coll.String(), View: viewName,
		Filter: wire.KeyFilterToWire(filter), Policy: accessPolicyToWire(policy),
	}, &resp); err != nil {
		return nil, err
	}
	out := make([]query.ReducedGroup, len(resp.Groups))
	for i, g := range resp.Groups {
		out[i] = query.ReducedGroup{Key: g.Key, Value: g.Value}
	}
	return out, nil
}

// DeleteDocs deletes every document matching a view query remotely.
func (c *Client) DeleteDocs(ctx context.Context, coll document.CollectionName, viewName string, filter query.KeyFilter, policy query.AccessPolicy) (uint64, error) {
	var resp deleteDocsResponse
	if err := c.call(ctx, "delete_docs", reduceRequest{
		Database: c.database, Collection: coll.String(), View: viewName,
		Filter: wire.KeyFilterToWire(filter), Policy: accessPolicyToWire(policy),
	}, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// LastTransactionID returns the id of the most recently committed
// transaction.
func (c *Client) LastTransactionID(ctx context.Context) (uint64, error) {
	var resp lastTransactionIDResponse
	if err := c.call(ctx, "last_transaction_id", databaseOnlyRequest{Database: c.database}, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// ListExecutedTransactions returns committed transaction records starting
// at startingID.
func (c *Client) ListExecutedTransactions(ctx context.Context, startingID uint64, limit int) ([]storage.ExecutedRecord, error) {
	var resp listExecutedResponse
	if err := c.call(ctx, "list_executed_transactions", listExecutedRequest{
		Database: c.database, StartingID: startingID, Limit: limit,
	}, &resp); err != nil {
		return nil, err
	}
	out := make([]storage.ExecutedRecord, len(resp.Records))
	for i, r := range resp.Records {
		out[i] = executedFromWire(r)
	}
	return out, nil
}

// Compact runs a full maintenance pass over the remote database's storage.
func (c *Client) Compact(ctx context.Context) error {
	return c.call(ctx, "compact", databaseOnlyRequest{Database: c.database}, nil)
}

// CompactKeyValueStore is Compact's key-value-store-scoped equivalent,
// mirroring pkg/connection.Connection's surface.
func (c *Client) CompactKeyValueStore(ctx context.Context) error {
	return c.call(ctx, "compact_key_value_store", databaseOnlyRequest{Database: c.database}, nil)
}

// CreateDatabase creates or opens a database on the remote manager.
func (c *Client) CreateDatabase(ctx context.Context, name, schemaName string, onlyIfNeeded bool) error {
	return c.call(ctx, "create_database", createDatabaseRequest{Name: name, Schema: schemaName, OnlyIfNeeded: onlyIfNeeded}, nil)
}

// DeleteDatabase deletes a database on the remote manager.
func (c *Client) DeleteDatabase(ctx context.Context, name string) error {
	return c.call(ctx, "delete_database", deleteDatabaseRequest{Name: name}, nil)
}

// ListDatabases lists every database the remote manager has open.
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	var resp listDatabasesResponse
	if err := c.call(ctx, "list_databases", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Names, nil
}

// ListAvailableSchemas lists every schema registered with the remote
// manager.
func (c *Client) ListAvailableSchemas(ctx context.Context) ([]string, error) {
	var resp listAvailableSchemasResponse
	if err := c.call(ctx, "list_available_schemas", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Names, nil
}

// KV exposes key-value sidestore operations scoped to the client's
// database. Its methods intentionally mirror *kv.Store's signatures.
type KV struct{ c *Client }

// KV returns the key-value facade for this client's database.
func (c *Client) KV() *KV { return &KV{c: c} }

// Set writes ns/key remotely, honoring the same Check/TTL/ReturnPrevious
// semantics as the local store.
func (k *KV) Set(ctx context.Context, ns, key string, value storage.KVValue, opts kv.SetOptions) (*storage.KVValue, error) {
	var resp kvSetResponse
	err := k.c.call(ctx, "kv_set", kvSetRequest{
		Database: k.c.database, Namespace: ns, Key: key,
		Value: wire.KVValueToWire(value), Check: checkToWire(opts.Check),
		ExpirationUnix: opts.ExpirationUnix, ReturnPrevious: opts.ReturnPrevious,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.HadPrevious {
		return nil, nil
	}
	v := wire.KVValueFromWire(resp.Previous)
	return &v, nil
}

// Get reads ns/key remotely, optionally tombstoning it atomically.
func (k *KV) Get(ctx context.Context, ns, key string, del bool) (*storage.KVValue, error) {
	var resp kvGetResponse
	err := k.c.call(ctx, "kv_get", kvGetRequest{Database: k.c.database, Namespace: ns, Key: key, Delete: del}, &resp)
	if err != nil || !resp.Found {
		return nil, err
	}
	v := wire.KVValueFromWire(resp.Value)
	return &v, nil
}

// Delete removes ns/key remotely.
func (k *KV) Delete(ctx context.Context, ns, key string) error {
	return k.c.call(ctx, "kv_delete", kvDeleteRequest{Database: k.c.database, Namespace: ns, Key: key}, nil)
}

// Increment adjusts a Numeric value by delta atomically, remotely.
func (k *KV) Increment(ctx context.Context, ns, key string, delta int64, saturating bool) (int64, error) {
	return k.adjust(ctx, ns, key, delta, saturating, false)
}

// Decrement is Increment with the delta's sign flipped.
func (k *KV) Decrement(ctx context.Context, ns, key string, delta int64, saturating bool) (int64, error) {
	return k.adjust(ctx, ns, key, delta, saturating, true)
}

func (k *KV) adjust(ctx context.Context, ns, key string, delta int64, saturating, decrement bool) (int64, error) {
	var resp kvAdjustResponse
	err := k.c.call(ctx, "kv_increment", kvAdjustRequest{
		Database: k.c.database, Namespace: ns, Key: key,
		Delta: delta, Saturating: saturating, Decrement: decrement,
	}, &resp)
	return resp.Value, err
}

func mappedRowsFromWire(rows []wire.MappedRow) []query.MappedRow {
	out := make([]query.MappedRow, len(rows))
	for i, r := range rows {
		out[i] = query.MappedRow{SourceID: r.SourceID, Key: r.Key, Value: r.Value}
	}
	return out
}

func executedFromWire(e wire.Executed) storage.ExecutedRecord {
	changes := make([]storage.Change, len(e.Changes))
	for i, c := range e.Changes {
		sc := storage.Change{
			Collection: wire.ParseCollectionName(c.Collection),
			DocumentID: c.DocumentID,
		}
		switch c.Op {
		case wire.ChangeInserted:
			sc.Op = storage.ChangeInserted
		case wire.ChangeUpdated:
			sc.Op = storage.ChangeUpdated
		case wire.ChangeDeleted:
			sc.Op = storage.ChangeDeleted
		}
		if c.NewRevision != nil {
			rev := document.Revision{Sequence: c.NewRevision.Sequence}
			copy(rev.Hash[:], c.NewRevision.Hash)
			sc.NewRevision = &rev
		}
		changes[i] = sc
	}
	return storage.ExecutedRecord{TransactionID: e.TransactionID, TimestampUnix: e.TimestampUnix, Changes: changes}
}

func checkToWire(c kv.Check) wire.KVCheck {
	switch c {
	case kv.CheckIfPresent:
		return wire.KVCheckPresent
	case kv.CheckIfAbsent:
		return wire.KVCheckAbsent
	default:
		return wire.KVCheckNone
	}
}

func orderToWire(o query.Order) wire.Order {
	if o == query.Descending {
		return wire.Descending
	}
	return wire.Ascending
}

func accessPolicyToWire(p query.AccessPolicy) wire.AccessPolicy {
	switch p {
	case query.UpdateBefore:
		return wire.UpdateBefore
	case query.UpdateAfter:
		return wire.UpdateAfter
	default:
		return wire.NoUpdate
	}
}
