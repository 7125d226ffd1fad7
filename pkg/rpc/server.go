package rpc

import (
	"context"
	"fmt"
	"net"

	"github.com/hollowdb/hollow/pkg/connection"
	"github.com/hollowdb/hollow/pkg/kv"
	"github.com/hollowdb/hollow/pkg/wire"
	"google.golang.org/grpc"
)

// Server dispatches RPC calls to a database manager, one open Connection
// per name, the same role the teacher's pkg/api.Server plays over a
// generated WarrenAPI service.
type Server struct {
	mgr  *connection.Manager
	grpc *grpc.Server
}

// NewServer wires mgr behind a gRPC server that only ever speaks the
// raw-bytes codec.
func NewServer(mgr *connection.Manager) *Server {
	s := &Server{mgr: mgr}
	s.grpc = grpc.NewServer(grpc.ForceServerCodec(codec{}))
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Serve blocks, accepting connections on addr until Stop is called.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return s.grpc.Serve(lis)
}

// Stop gracefully drains in-flight calls before returning.
func (s *Server) Stop() { s.grpc.GracefulStop() }

// serviceDesc registers a single generic unary method; dispatch happens
// inside call based on the decoded envelope's Method field, since nothing
// here is protoc-generated.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "hollow.rpc.Connection",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Metadata: "hollow/rpc",
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var body []byte
	if err := dec(&body); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).call(ctx, req.([]byte))
	}
	if interceptor == nil {
		return handler(ctx, body)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/hollow.rpc.Connection/Call"}
	return interceptor(ctx, body, info, handler)
}

func (s *Server) call(ctx context.Context, body []byte) ([]byte, error) {
	var env wire.Envelope
	if err := wire.Decode(body, &env); err != nil {
		return nil, fmt.Errorf("rpc: decode envelope: %w", err)
	}

	payload, err := s.dispatch(ctx, env.Method, env.Payload)
	reply := wire.Reply{}
	if err != nil {
		reply.Err = err.Error()
	} else {
		reply.Payload = payload
	}

	out, encErr := wire.Encode(reply)
	if encErr != nil {
		return nil, fmt.Errorf("rpc: encode reply: %w", encErr)
	}
	return out, nil
}

func (s *Server) dispatch(ctx context.Context, method string, payload []byte) ([]byte, error) {
	switch method {
	case "apply_transaction":
		return s.applyTransaction(payload)
	case "get":
		return s.get(payload)
	case "get_multiple":
		return s.getMultiple(ctx, payload)
	case "list":
		return s.list(payload)
	case "query":
		return s.query(ctx, payload)
	case "query_with_docs":
		return s.queryWithDocs(ctx, payload)
	case "reduce":
		return s.reduce(ctx, payload)
	case "reduce_grouped":
		return s.reduceGrouped(ctx, payload)
	case "delete_docs":
		return s.deleteDocs(ctx, payload)
	case "last_transaction_id":
		return s.lastTransactionID(payload)
	case "list_executed_transactions":
		return s.listExecuted(payload)
	case "compact":
		return s.compact(payload)
	case "compact_key_value_store":
		return s.compactKV(payload)
	case "kv_set":
		return s.kvSet(payload)
	case "kv_get":
		return s.kvGet(payload)
	case "kv_delete":
		return s.kvDelete(payload)
	case "kv_increment":
		return s.kvAdjust(payload)
	case "create_database":
		return s.createDatabase(payload)
	case "delete_database":
		return s.deleteDatabase(payload)
	case "list_databases":
		return wire.Encode(listDatabasesResponse{Names: s.mgr.ListDatabases()})
	case "list_available_schemas":
		return wire.Encode(listAvailableSchemasResponse{Names: s.mgr.ListAvailableSchemas()})
	default:
		return nil, fmt.Errorf("rpc: unknown method %q", method)
	}
}

func (s *Server) conn(name string) (*connection.Connection, error) {
	return s.mgr.Get(name)
}

func (s *Server) applyTransaction(payload []byte) ([]byte, error) {
	var req applyTransactionRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	results, err := conn.ApplyTransaction(wire.TransactionFromWire(req.Transaction))
	if err != nil {
		return nil, err
	}
	return wire.Encode(applyTransactionResponse{Results: wire.OperationResultsToWire(results)})
}

func (s *Server) get(payload []byte) ([]byte, error) {
	var req getRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	doc, found, err := conn.Get(wire.ParseCollectionName(req.Collection), req.ID)
	if err != nil {
		return nil, err
	}
	resp := getResponse{Found: found}
	if found {
		hdr, content := wire.DocumentToWire(doc)
		resp.Header, resp.Content = hdr, content
	}
	return wire.Encode(resp)
}

func (s *Server) getMultiple(ctx context.Context, payload []byte) ([]byte, error) {
	var req getMultipleRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	docs, err := conn.GetMultiple(ctx, wire.ParseCollectionName(req.Collection), req.IDs)
	if err != nil {
		return nil, err
	}
	resp := getMultipleResponse{Documents: make([]documentWire, len(docs))}
	for i, d := range docs {
		hdr, content := wire.DocumentToWire(d)
		resp.Documents[i] = documentWire{Header: hdr, Content: content}
	}
	return wire.Encode(resp)
}

func (s *Server) list(payload []byte) ([]byte, error) {
	var req listRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	idRange := connection.IDRange{Start: req.Start, End: req.End, HasStart: req.Start != nil, HasEnd: req.End != nil}
	docs, err := conn.List(wire.ParseCollectionName(req.Collection), idRange, wire.OrderFromWire(req.Order), req.Limit)
	if err != nil {
		return nil, err
	}
	resp := listResponse{Documents: make([]documentWire, len(docs))}
	for i, d := range docs {
		hdr, content := wire.DocumentToWire(d)
		resp.Documents[i] = documentWire{Header: hdr, Content: content}
	}
	return wire.Encode(resp)
}

func (s *Server) query(ctx context.Context, payload []byte) ([]byte, error) {
	var req queryRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, wire.ParseCollectionName(req.Collection), req.View,
		wire.KeyFilterFromWire(req.Filter), wire.OrderFromWire(req.Order), req.Limit, wire.AccessPolicyFromWire(req.Policy))
	if err != nil {
		return nil, err
	}
	out := make([]wire.MappedRow, len(rows))
	for i, r := range rows {
		out[i] = wire.MappedRowToWire(r)
	}
	return wire.Encode(queryResponse{Rows: out})
}

func (s *Server) queryWithDocs(ctx context.Context, payload []byte) ([]byte, error) {
	var req queryRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	rows, docs, err := conn.QueryWithDocs(ctx, wire.ParseCollectionName(req.Collection), req.View,
		wire.KeyFilterFromWire(req.Filter), wire.OrderFromWire(req.Order), req.Limit, wire.AccessPolicyFromWire(req.Policy))
	if err != nil {
		return nil, err
	}
	resp := queryWithDocsResponse{Rows: make([]wire.MappedRow, len(rows)), Documents: make([]documentWire, len(docs))}
	for i, r := range rows {
		resp.Rows[i] = wire.MappedRowToWire(r)
	}
	for i, d := range docs {
		hdr, content := wire.DocumentToWire(d)
		resp.Documents[i] = documentWire{Header: hdr, Content: content}
	}
	return wire.Encode(resp)
}

func (s *Server) reduce(ctx context.Context, payload []byte) ([]byte, error) {
	var req reduceRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	value, err := conn.Reduce(ctx, wire.ParseCollectionName(req.Collection), req.View,
		wire.KeyFilterFromWire(req.Filter), wire.AccessPolicyFromWire(req.Policy))
	if err != nil {
		return nil, err
	}
	return wire.Encode(reduceResponse{Value: value})
}

func (s *Server) reduceGrouped(ctx context.Context, payload []byte) ([]byte, error) {
	var req reduceRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	groups, err := conn.ReduceGrouped(ctx, wire.ParseCollectionName(req.Collection), req.View,
		wire.KeyFilterFromWire(req.Filter), wire.AccessPolicyFromWire(req.Policy))
	if err != nil {
		return nil, err
	}
	out := make([]wire.MappedRow, len(groups))
	for i, g := range groups {
		out[i] = wire.MappedRow{Key: g.Key, Value: g.Value}
	}
	return wire.Encode(reduceGroupedResponse{Groups: out})
}

func (s *Server) deleteDocs(ctx context.Context, payload []byte) ([]byte, error) {
	var req reduceRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	n, err := conn.DeleteDocs(ctx, wire.ParseCollectionName(req.Collection), req.View,
		wire.KeyFilterFromWire(req.Filter), wire.AccessPolicyFromWire(req.Policy))
	if err != nil {
		return nil, err
	}
	return wire.Encode(deleteDocsResponse{Deleted: n})
}

func (s *Server) lastTransactionID(payload []byte) ([]byte, error) {
	var req databaseOnlyRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	id, err := conn.LastTransactionID()
	if err != nil {
		return nil, err
	}
	return wire.Encode(lastTransactionIDResponse{ID: id})
}

func (s *Server) listExecuted(payload []byte) ([]byte, error) {
	var req listExecutedRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	records, err := conn.ListExecutedTransactions(req.StartingID, req.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]wire.Executed, len(records))
	for i, r := range records {
		out[i] = wire.ExecutedToWire(r)
	}
	return wire.Encode(listExecutedResponse{Records: out})
}

func (s *Server) compact(payload []byte) ([]byte, error) {
	var req databaseOnlyRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	return nil, conn.Compact()
}

func (s *Server) compactKV(payload []byte) ([]byte, error) {
	var req databaseOnlyRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	return nil, conn.CompactKeyValueStore()
}

func (s *Server) kvSet(payload []byte) ([]byte, error) {
	var req kvSetRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	prev, err := conn.KV().Set(req.Namespace, req.Key, wire.KVValueFromWire(req.Value), kv.SetOptions{
		Check:          wire.KVCheckFromWire(req.Check),
		ExpirationUnix: req.ExpirationUnix,
		ReturnPrevious: req.ReturnPrevious,
	})
	if err != nil {
		return nil, err
	}
	resp := kvSetResponse{HadPrevious: prev != nil}
	if prev != nil {
		resp.Previous = wire.KVValueToWire(*prev)
	}
	return wire.Encode(resp)
}

func (s *Server) kvGet(payload []byte) ([]byte, error) {
	var req kvGetRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	value, err := conn.KV().Get(req.Namespace, req.Key, req.Delete)
	if err != nil {
		return nil, err
	}
	resp := kvGetResponse{Found: value != nil}
	if value != nil {
		resp.Value = wire.KVValueToWire(*value)
	}
	return wire.Encode(resp)
}

func (s *Server) kvDelete(payload []byte) ([]byte, error) {
	var req kvDeleteRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	return nil, conn.KV().Delete(req.Namespace, req.Key)
}

func (s *Server) kvAdjust(payload []byte) ([]byte, error) {
	var req kvAdjustRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	conn, err := s.conn(req.Database)
	if err != nil {
		return nil, err
	}
	var (
		value  int64
		adjErr error
	)
	if req.Decrement {
		value, adjErr = conn.KV().Decrement(req.Namespace, req.Key, req.Delta, req.Saturating)
	} else {
		value, adjErr = conn.KV().Increment(req.Namespace, req.Key, req.Delta, req.Saturating)
	}
	if adjErr != nil {
		return nil, adjErr
	}
	return wire.Encode(kvAdjustResponse{Value: value})
}

func (s *Server) createDatabase(payload []byte) ([]byte, error) {
	var req createDatabaseRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	_, err := s.mgr.CreateDatabase(req.Name, req.Schema, req.OnlyIfNeeded)
	return nil, err
}

func (s *Server) deleteDatabase(payload []byte) ([]byte, error) {
	var req deleteDatabaseRequest
	if err := wire.Decode(payload, &req); err != nil {
		return nil, err
	}
	return nil, s.mgr.DeleteDatabase(req.Name)
}
