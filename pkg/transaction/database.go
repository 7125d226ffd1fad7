package transaction

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hollowdb/hollow/pkg/dberr"
	"github.com/hollowdb/hollow/pkg/document"
	"github.com/hollowdb/hollow/pkg/metrics"
	"github.com/hollowdb/hollow/pkg/schema"
	"github.com/hollowdb/hollow/pkg/storage"
	"github.com/hollowdb/hollow/pkg/view"
)

// Database ties a schema, a storage engine, and the in-memory view indexes
// together behind one commit lock, the same role the teacher's WarrenFSM
// plays for cluster state: single-writer Apply, many concurrent readers.
type Database struct {
	mu      sync.Mutex
	schema  *schema.Schema
	engine  storage.Engine
	indexes map[string]*view.Index // qualified view name -> index
	nextID  map[string]uint64      // qualified collection name -> next auto id
}

// Open constructs a Database over an already-populated schema and storage
// engine, rebuilding every view's in-memory index from the engine's
// persisted rows and seeding per-collection id counters from the highest
// id on disk.
func Open(s *schema.Schema, engine storage.Engine) (*Database, error) {
	db := &Database{
		schema:  s,
		engine:  engine,
		indexes: make(map[string]*view.Index),
		nextID:  make(map[string]uint64),
	}

	for _, coll := range s.Collections() {
		docs, err := engine.ListDocuments(coll.Name)
		if err != nil {
			return nil, fmt.Errorf("list documents for %s: %w", coll.Name, err)
		}
		var maxID uint64
		for _, d := range docs {
			if d.ID > maxID {
				maxID = d.ID
			}
		}
		db.nextID[coll.Name.String()] = maxID + 1

		for _, v := range coll.Views() {
			qname := qualifiedViewName(coll.Name, v.Name())
			idx := view.NewIndex()

			storedVersion, hasVersion, err := engine.ViewVersion(qname)
			if err != nil {
				return nil, fmt.Errorf("load view version for %s: %w", qname, err)
			}

			if hasVersion && storedVersion == v.Version() {
				entries, err := engine.ViewEntries(qname)
				if err != nil {
					return nil, fmt.Errorf("load view entries for %s: %w", qname, err)
				}
				for _, e := range entries {
					idx.Put(e.Key, e.DocumentID, e.Value)
				}
			} else {
				// First build, or the view's declared version (§4.D
				// "Versioning") moved on from what is on disk: every
				// persisted entry for this view is stale and must be
				// recomputed from the collection's current documents.
				rebuilt, err := rebuildViewEntries(v, docs)
				if err != nil {
					return nil, fmt.Errorf("rebuild view %s: %w", qname, err)
				}
				for _, e := range rebuilt {
					idx.Put(e.Key, e.DocumentID, e.Value)
				}
				if err := engine.RebuildView(qname, v.Version(), rebuilt); err != nil {
					return nil, fmt.Errorf("persist rebuilt view %s: %w", qname, err)
				}
			}
			db.indexes[qname] = idx
		}
	}
	return db, nil
}

// rebuildViewEntries reruns a view's Map function over every document
// currently in its collection, for the version-mismatch path in Open.
func rebuildViewEntries(v schema.View, docs []storage.StoredDocument) ([]storage.ViewEntry, error) {
	out := make([]storage.ViewEntry, 0, len(docs))
	for _, d := range docs {
		doc := document.Document{
			Header:   document.Header{Collection: v.Collection(), ID: d.ID, Revision: d.Revision},
			Contents: d.Contents,
		}
		mapped, err := v.Map(doc)
		if err != nil {
			return nil, err
		}
		for _, e := range mapped {
			out = append(out, storage.ViewEntry{Key: e.Key, Value: e.Value, DocumentID: d.ID})
		}
	}
	return out, nil
}

func qualifiedViewName(coll document.CollectionName, viewName string) string {
	return coll.String() + "." + viewName
}

// Index returns the live in-memory index backing a view, for pkg/query to
// read from under the access policy it is enforcing.
func (db *Database) Index(coll document.CollectionName, viewName string) (*view.Index, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	idx, ok := db.indexes[qualifiedViewName(coll, viewName)]
	return idx, ok
}

// Schema exposes the database's schema for callers resolving
// collections/views by name.
func (db *Database) Schema() *schema.Schema { return db.schema }

// DocumentCount returns the number of live documents in coll, for metrics
// collection (pkg/metrics.Collector) and administrative introspection.
func (db *Database) DocumentCount(coll document.CollectionName) (int, error) {
	docs, err := db.engine.ListDocuments(coll)
	if err != nil {
		return 0, wrapStorageErr("list_documents", err)
	}
	return len(docs), nil
}

// Get returns a document by collection and id, or (zero, false, nil) if
// it does not exist.
func (db *Database) Get(coll document.CollectionName, id uint64) (document.Document, bool, error) {
	if _, err := db.schema.Collection(coll); err != nil {
		return document.Document{}, false, err
	}
	stored, found, err := db.engine.GetDocument(coll, id)
	if err != nil || !found {
		return document.Document{}, found, wrapStorageErr("get_document", err)
	}
	return document.Document{
		Header:   document.Header{Collection: coll, ID: id, Revision: stored.Revision},
		Contents: stored.Contents,
	}, true, nil
}

// LastTransactionID returns the id of the most recently committed
// transaction, or 0 if none has committed yet.
func (db *Database) LastTransactionID() (uint64, error) {
	return db.engine.LastTransactionID()
}

// ListExecuted returns committed transaction records starting at
// startingID, capped at limit (the caller, pkg/connection, enforces the
// default/hard caps from §4.G).
func (db *Database) ListExecuted(startingID uint64, limit int) ([]storage.ExecutedRecord, error) {
	return db.engine.ListExecuted(startingID, limit)
}

// pendingDoc tracks one document's state as seen by operations already
// processed earlier in the same transaction, giving later operations
// read-your-writes visibility before the transaction commits.
type pendingDoc struct {
	tombstoned bool
	doc        document.Document
}

// pendingViewRow is one view-index mutation computed while walking a
// transaction's operations, applied to the real index only after the
// whole transaction is accepted.
type pendingViewRow struct {
	key   []byte
	docID uint64
	value []byte // nil for removals
}

// ApplyTransaction commits tx atomically: either every operation succeeds
// and is assigned the transaction's single id, or none are applied
// (§4.E). Operations are processed in their listed order with
// read-your-writes visibility into earlier operations in the same
// transaction.
func (db *Database) ApplyTransaction(tx *Transaction) (results []OperationResult, err error) {
	if len(tx.Ops) == 0 {
		return nil, fmt.Errorf("transaction must contain at least one operation")
	}

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.TransactionDuration)
		metrics.TransactionsTotal.WithLabelValues(transactionOutcome(err)).Inc()
	}()

	db.mu.Lock()
	defer db.mu.Unlock()

	overlay := make(map[document.CollectionName]map[uint64]*pendingDoc)
	viewRows := make(map[string][]pendingViewRow)
	localNextID := make(map[string]uint64)
	results = make([]OperationResult, 0, len(tx.Ops))

	for _, op := range tx.Ops {
		coll, err := db.schema.Collection(op.Collection)
		if err != nil {
			return nil, err
		}

		switch op.Kind {
		case OpInsert:
			id, err := db.resolveInsertID(op, overlay, localNextID)
			if err != nil {
				return nil, err
			}
			newDoc := document.New(op.Collection, id, op.Contents)
			db.recordInsert(overlay, newDoc)
			if err := db.recordViewDeltas(viewRows, coll, nil, &newDoc); err != nil {
				return nil, err
			}
			results = append(results, OperationResult{Kind: ResultDocumentUpdated, Header: newDoc.Header})
			metrics.DocumentOperationsTotal.WithLabelValues(op.Collection.String(), "insert").Inc()

		case OpUpdate:
			current, err := db.resolveCurrent(overlay, op.Collection, op.DocumentID)
			if err != nil {
				return nil, err
			}
			if !current.MatchesRevision(*op.ExpectedRevision) {
				return nil, &dberr.DocumentConflict{Collection: op.Collection, ID: op.DocumentID}
			}
			updated := current.WithNewContents(op.Contents)
			db.recordUpdate(overlay, updated)
			if err := db.recordViewDeltas(viewRows, coll, &current, &updated); err != nil {
				return nil, err
			}
			results = append(results, OperationResult{Kind: ResultDocumentUpdated, Header: updated.Header})
			metrics.DocumentOperationsTotal.WithLabelValues(op.Collection.String(), "update").Inc()

		case OpDelete:
			current, err := db.resolveCurrent(overlay, op.Collection, op.DocumentID)
			if err != nil {
				return nil, err
			}
			if !current.MatchesRevision(*op.ExpectedRevision) {
				return nil, &dberr.DocumentConflict{Collection: op.Collection, ID: op.DocumentID}
			}
			db.recordDelete(overlay, op.Collection, op.DocumentID)
			if err := db.recordViewDeltas(viewRows, coll, &current, nil); err != nil {
				return nil, err
			}
			results = append(results, OperationResult{
				Kind:   ResultDocumentDeleted,
				Header: document.Header{Collection: op.Collection, ID: op.DocumentID, Revision: current.Header.Revision},
			})
			metrics.DocumentOperationsTotal.WithLabelValues(op.Collection.String(), "delete").Inc()

		default:
			return nil, fmt.Errorf("unknown operation kind %d", op.Kind)
		}
	}

	if err := db.checkUniqueViews(viewRows); err != nil {
		return nil, err
	}

	batch := db.buildBatch(overlay, viewRows)
	id, err := db.engine.LastTransactionID()
	if err != nil {
		return nil, wrapStorageErr("last_transaction_id", err)
	}
	batch.Executed = storage.ExecutedRecord{
		TransactionID: id + 1,
		TimestampUnix: time.Now().UnixMilli(),
		Changes:       changesFromResults(tx.Ops, results),
	}

	if err := db.engine.Commit(batch); err != nil {
		return nil, wrapStorageErr("commit", err)
	}

	db.applyIndexDeltas(viewRows)
	for coll, next := range localNextID {
		db.nextID[coll] = next
	}
	return results, nil
}

func (db *Database) resolveInsertID(op Operation, overlay map[document.CollectionName]map[uint64]*pendingDoc, localNextID map[string]uint64) (uint64, error) {
	collKey := op.Collection.String()

	if op.ID != nil {
		id := *op.ID
		if _, exists := db.resolveExisting(overlay, op.Collection, id); exists {
			return 0, &dberr.DocumentAlreadyExists{Collection: op.Collection, ID: id}
		}
		return id, nil
	}

	next, ok := localNextID[collKey]
	if !ok {
		next = db.nextID[collKey]
		if next == 0 {
			next = 1
		}
	}
	localNextID[collKey] = next + 1
	return next, nil
}

// resolveExisting reports whether a document is currently visible
// (neither absent nor tombstoned earlier in this transaction).
func (db *Database) resolveExisting(overlay map[document.CollectionName]map[uint64]*pendingDoc, coll document.CollectionName, id uint64) (document.Document, bool) {
	if byID, ok := overlay[coll]; ok {
		if p, ok := byID[id]; ok {
			if p.tombstoned {
				return document.Document{}, false
			}
			return p.doc, true
		}
	}
	stored, found, err := db.engine.GetDocument(coll, id)
	if err != nil || !found {
		return document.Document{}, false
	}
	return document.Document{
		Header:   document.Header{Collection: coll, ID: id, Revision: stored.Revision},
		Contents: stored.Contents,
	}, true
}

func (db *Database) resolveCurrent(overlay map[document.CollectionName]map[uint64]*pendingDoc, coll document.CollectionName, id uint64) (document.Document, error) {
	doc, ok := db.resolveExisting(overlay, coll, id)
	if !ok {
		return document.Document{}, &dberr.DocumentNotFound{Collection: coll, ID: id}
	}
	return doc, nil
}

func (db *Database) recordInsert(overlay map[document.CollectionName]map[uint64]*pendingDoc, doc document.Document) {
	db.setOverlay(overlay, doc.Header.Collection, doc.Header.ID, &pendingDoc{doc: doc})
}

func (db *Database) recordUpdate(overlay map[document.CollectionName]map[uint64]*pendingDoc, doc document.Document) {
	db.setOverlay(overlay, doc.Header.Collection, doc.Header.ID, &pendingDoc{doc: doc})
}

func (db *Database) recordDelete(overlay map[document.CollectionName]map[uint64]*pendingDoc, coll document.CollectionName, id uint64) {
	db.setOverlay(overlay, coll, id, &pendingDoc{tombstoned: true})
}

func (db *Database) setOverlay(overlay map[document.CollectionName]map[uint64]*pendingDoc, coll document.CollectionName, id uint64, p *pendingDoc) {
	byID, ok := overlay[coll]
	if !ok {
		byID = make(map[uint64]*pendingDoc)
		overlay[coll] = byID
	}
	byID[id] = p
}

// recordViewDeltas computes the view-row additions/removals a
// before->after document transition implies, for every view declared on
// the document's collection. before == nil means insert; after == nil
// means delete.
func (db *Database) recordViewDeltas(viewRows map[string][]pendingViewRow, coll *schema.Collection, before, after *document.Document) error {
	for _, v := range coll.Views() {
		qname := qualifiedViewName(coll.Name, v.Name())

		if before != nil {
			entries, err := v.Map(*before)
			if err != nil {
				return fmt.Errorf("view %s map (retract): %w", qname, err)
			}
			for _, e := range entries {
				viewRows[qname] = append(viewRows[qname], pendingViewRow{key: e.Key, docID: before.Header.ID, value: nil})
			}
		}
		if after != nil {
			entries, err := v.Map(*after)
			if err != nil {
				return fmt.Errorf("view %s map: %w", qname, err)
			}
			for _, e := range entries {
				viewRows[qname] = append(viewRows[qname], pendingViewRow{key: e.Key, docID: after.Header.ID, value: e.Value})
			}
		}
	}
	return nil
}

// checkUniqueViews enforces §4.D: within this transaction's net additions
// to a unique view, no key may be claimed by more than one document id.
func (db *Database) checkUniqueViews(viewRows map[string][]pendingViewRow) error {
	for qname, rows := range viewRows {
		idx, ok := db.indexes[qname]
		if !ok {
			continue
		}
		if !db.isUnique(qname) {
			continue
		}

		claimants := make(map[string]uint64)
		for _, row := range rows {
			if row.value == nil {
				continue // retraction; does not claim the key
			}
			key := string(row.key)
			if existingID, claimed := claimants[key]; claimed {
				if existingID != row.docID {
					return &dberr.UniqueKeyViolation{View: qname, ExistingDocumentID: existingID, ConflictingDocumentID: row.docID}
				}
				continue
			}
			claimants[key] = row.docID

			for _, existing := range idx.Entries(row.key) {
				if existing.DocumentID != row.docID && !retractedBy(viewRows[qname], row.key, existing.DocumentID) {
					return &dberr.UniqueKeyViolation{View: qname, ExistingDocumentID: existing.DocumentID, ConflictingDocumentID: row.docID}
				}
			}
		}
	}
	return nil
}

func retractedBy(rows []pendingViewRow, key []byte, docID uint64) bool {
	for _, r := range rows {
		if r.value == nil && r.docID == docID && string(r.key) == string(key) {
			return true
		}
	}
	return false
}

func (db *Database) isUnique(qualifiedViewName string) bool {
	for _, coll := range db.schema.Collections() {
		for _, v := range coll.Views() {
			if qualifiedViewNameOf(coll, v) == qualifiedViewName {
				return v.Unique()
			}
		}
	}
	return false
}

func qualifiedViewNameOf(coll *schema.Collection, v schema.View) string {
	return qualifiedViewName(coll.Name, v.Name())
}

func (db *Database) buildBatch(overlay map[document.CollectionName]map[uint64]*pendingDoc, viewRows map[string][]pendingViewRow) storage.Batch {
	batch := storage.NewBatch()

	for coll, byID := range overlay {
		for id, p := range byID {
			if p.tombstoned {
				batch.DeleteDocs[coll] = append(batch.DeleteDocs[coll], id)
				continue
			}
			batch.PutDocs[coll] = append(batch.PutDocs[coll], storage.StoredDocument{
				ID:       id,
				Revision: p.doc.Header.Revision,
				Contents: p.doc.Contents,
			})
		}
	}

	for qname, rows := range viewRows {
		for _, row := range rows {
			if row.value == nil {
				batch.DeleteViews[qname] = append(batch.DeleteViews[qname], storage.ViewEntryKey{Key: row.key, DocumentID: row.docID})
			} else {
				batch.PutViews[qname] = append(batch.PutViews[qname], storage.ViewEntry{Key: row.key, DocumentID: row.docID, Value: row.value})
			}
		}
	}
	return batch
}

func (db *Database) applyIndexDeltas(viewRows map[string][]pendingViewRow) {
	for qname, rows := range viewRows {
		idx, ok := db.indexes[qname]
		if !ok {
			continue
		}
		for _, row := range rows {
			if row.value == nil {
				idx.Remove(row.key, row.docID)
			} else {
				idx.Put(row.key, row.docID, row.value)
			}
		}
	}
}

func changesFromResults(ops []Operation, results []OperationResult) []storage.Change {
	changes := make([]storage.Change, len(results))
	for i, r := range results {
		switch r.Kind {
		case ResultDocumentUpdated:
			op := ChangeOpForInsertOrUpdate(ops[i])
			rev := r.Header.Revision
			changes[i] = storage.Change{
				Collection:  r.Header.Collection,
				DocumentID:  r.Header.ID,
				Op:          op,
				NewRevision: &rev,
			}
		case ResultDocumentDeleted:
			changes[i] = storage.Change{
				Collection: r.Header.Collection,
				DocumentID: r.Header.ID,
				Op:         storage.ChangeDeleted,
			}
		}
	}
	return changes
}

// ChangeOpForInsertOrUpdate distinguishes an Insert from an Update result,
// both of which share ResultDocumentUpdated, for the Executed record.
func ChangeOpForInsertOrUpdate(op Operation) storage.ChangeOp {
	if op.Kind == OpInsert {
		return storage.ChangeInserted
	}
	return storage.ChangeUpdated
}

// transactionOutcome labels TransactionsTotal: conflicts are a distinct,
// expected outcome from unexpected engine/schema errors.
func transactionOutcome(err error) string {
	if err == nil {
		return "committed"
	}
	var conflict *dberr.DocumentConflict
	if errors.As(err, &conflict) {
		return "conflict"
	}
	return "error"
}

func wrapStorageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &dberr.Storage{Op: op, Err: err}
}
