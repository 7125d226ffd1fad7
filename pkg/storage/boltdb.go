package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/hollowdb/hollow/pkg/document"
	"github.com/hollowdb/hollow/pkg/metrics"
	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketDocuments = []byte("documents")
	bucketViews     = []byte("views")
	bucketExecuted  = []byte("executed")
	bucketKV        = []byte("kv")
	bucketMeta      = []byte("meta")
)

var (
	metaLastTransactionID = []byte("last_transaction_id")
	metaSchemaName        = []byte("schema_name")
)

func viewVersionKey(viewName string) []byte {
	return []byte("view_version:" + viewName)
}

// BoltEngine implements Engine on top of a single bbolt file, mirroring
// the teacher's bucket-per-concern BoltStore (pkg/storage/boltdb.go) with
// one bucket per document collection, one sub-bucket per view, an
// append-only executed bucket keyed by big-endian transaction id, and a
// namespaced key-value bucket. CBOR replaces JSON as the row codec so the
// same self-describing format backs storage and the wire (§6).
type BoltEngine struct {
	db *bolt.DB
}

// OpenBoltEngine opens (creating if absent) a bbolt-backed engine rooted
// at dataDir/hollow.db.
func OpenBoltEngine(dataDir string) (*BoltEngine, error) {
	path := filepath.Join(dataDir, "hollow.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketDocuments, bucketViews, bucketExecuted, bucketKV, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltEngine{db: db}, nil
}

func (e *BoltEngine) Close() error { return e.db.Close() }

func collectionBucketName(c document.CollectionName) []byte {
	return []byte(c.String())
}

func documentKey(id uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, id)
	return k
}

type storedDocRow struct {
	Sequence uint32
	Hash     document.Hash
	Contents []byte
}

// Commit applies one transaction's batch atomically under a single bbolt
// write transaction, so either every document/view/executed/KV effect
// lands or none does (§4.E "Atomicity").
func (e *BoltEngine) Commit(batch Batch) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		docsRoot := tx.Bucket(bucketDocuments)
		for coll, docs := range batch.PutDocs {
			b, err := docsRoot.CreateBucketIfNotExists(collectionBucketName(coll))
			if err != nil {
				return err
			}
			for _, d := range docs {
				row := storedDocRow{Sequence: d.Revision.Sequence, Hash: d.Revision.Hash, Contents: d.Contents}
				data, err := cbor.Marshal(row)
				if err != nil {
					return err
				}
				if err := b.Put(documentKey(d.ID), data); err != nil {
					return err
				}
			}
		}
		for coll, ids := range batch.DeleteDocs {
			b := docsRoot.Bucket(collectionBucketName(coll))
			if b == nil {
				continue
			}
			for _, id := range ids {
				if err := b.Delete(documentKey(id)); err != nil {
					return err
				}
			}
		}

		viewsRoot := tx.Bucket(bucketViews)
		for view, entries := range batch.PutViews {
			b, err := viewsRoot.CreateBucketIfNotExists([]byte(view))
			if err != nil {
				return err
			}
			for _, ve := range entries {
				if err := b.Put(viewRowKey(ve.Key, ve.DocumentID), ve.Value); err != nil {
					return err
				}
			}
		}
		for view, keys := range batch.DeleteViews {
			b := viewsRoot.Bucket([]byte(view))
			if b == nil {
				continue
			}
			for _, k := range keys {
				if err := b.Delete(viewRowKey(k.Key, k.DocumentID)); err != nil {
					return err
				}
			}
		}

		for _, w := range batch.PutKV {
			b, err := tx.Bucket(bucketKV).CreateBucketIfNotExists([]byte(w.Namespace))
			if err != nil {
				return err
			}
			data, err := cbor.Marshal(w.Entry)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(w.Key), data); err != nil {
				return err
			}
		}
		for _, k := range batch.DeleteKV {
			b := tx.Bucket(bucketKV).Bucket([]byte(k.Namespace))
			if b == nil {
				continue
			}
			if err := b.Delete([]byte(k.Key)); err != nil {
				return err
			}
		}

		if batch.Executed.TransactionID != 0 {
			data, err := cbor.Marshal(batch.Executed)
			if err != nil {
				return err
			}
			if err := tx.Bucket(bucketExecuted).Put(documentKey(batch.Executed.TransactionID), data); err != nil {
				return err
			}
			if err := tx.Bucket(bucketMeta).Put(metaLastTransactionID, documentKey(batch.Executed.TransactionID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// viewRowKey appends the document id after the view key so multiple
// documents filed under one key get distinct bbolt rows while still
// sorting contiguously (key bytes, then id) under that key's prefix.
func viewRowKey(key []byte, docID uint64) []byte {
	out := make([]byte, 0, len(key)+8)
	out = append(out, key...)
	out = append(out, documentKey(docID)...)
	return out
}

func (e *BoltEngine) GetDocument(collection document.CollectionName, id uint64) (StoredDocument, bool, error) {
	var result StoredDocument
	var found bool
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments).Bucket(collectionBucketName(collection))
		if b == nil {
			return nil
		}
		data := b.Get(documentKey(id))
		if data == nil {
			return nil
		}
		var row storedDocRow
		if err := cbor.Unmarshal(data, &row); err != nil {
			return err
		}
		result = StoredDocument{
			ID:       id,
			Revision: document.Revision{Sequence: row.Sequence, Hash: row.Hash},
			Contents: row.Contents,
		}
		found = true
		return nil
	})
	return result, found, err
}

func (e *BoltEngine) ListDocuments(collection document.CollectionName) ([]StoredDocument, error) {
	var out []StoredDocument
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments).Bucket(collectionBucketName(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var row storedDocRow
			if err := cbor.Unmarshal(v, &row); err != nil {
				return err
			}
			out = append(out, StoredDocument{
				ID:       binary.BigEndian.Uint64(k),
				Revision: document.Revision{Sequence: row.Sequence, Hash: row.Hash},
				Contents: row.Contents,
			})
			return nil
		})
	})
	return out, err
}

func (e *BoltEngine) ViewEntries(viewName string) ([]ViewEntry, error) {
	var out []ViewEntry
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketViews).Bucket([]byte(viewName))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(k) < 8 {
				return fmt.Errorf("malformed view row key for %s", viewName)
			}
			split := len(k) - 8
			value := make([]byte, len(v))
			copy(value, v)
			out = append(out, ViewEntry{
				Key:        append([]byte(nil), k[:split]...),
				DocumentID: binary.BigEndian.Uint64(k[split:]),
				Value:      value,
			})
			return nil
		})
	})
	return out, err
}

func (e *BoltEngine) ViewVersion(viewName string) (int, bool, error) {
	var version int
	var found bool
	err := e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(viewVersionKey(viewName))
		if v == nil {
			return nil
		}
		version = int(binary.BigEndian.Uint32(v))
		found = true
		return nil
	})
	return version, found, err
}

// RebuildView drops the view's bucket entirely before repopulating it, so
// a view whose Map function changed shape (or emits fewer keys in its new
// version) is never left with stale rows from the previous version mixed
// in with fresh ones.
func (e *BoltEngine) RebuildView(viewName string, version int, entries []ViewEntry) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		viewsRoot := tx.Bucket(bucketViews)
		if viewsRoot.Bucket([]byte(viewName)) != nil {
			if err := viewsRoot.DeleteBucket([]byte(viewName)); err != nil {
				return err
			}
		}
		b, err := viewsRoot.CreateBucket([]byte(viewName))
		if err != nil {
			return err
		}
		for _, ve := range entries {
			if err := b.Put(viewRowKey(ve.Key, ve.DocumentID), ve.Value); err != nil {
				return err
			}
		}
		versionBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(versionBytes, uint32(version))
		return tx.Bucket(bucketMeta).Put(viewVersionKey(viewName), versionBytes)
	})
}

func (e *BoltEngine) LastTransactionID() (uint64, error) {
	var id uint64
	err := e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(metaLastTransactionID)
		if v == nil {
			return nil
		}
		id = binary.BigEndian.Uint64(v)
		return nil
	})
	return id, err
}

func (e *BoltEngine) ListExecuted(startingID uint64, limit int) ([]ExecutedRecord, error) {
	var out []ExecutedRecord
	err := e.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketExecuted).Cursor()
		for k, v := c.Seek(documentKey(startingID)); k != nil && len(out) < limit; k, v = c.Next() {
			var rec ExecutedRecord
			if err := cbor.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func (e *BoltEngine) GetKV(namespace, key string) (KVEntry, bool, error) {
	var entry KVEntry
	var found bool
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV).Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return cbor.Unmarshal(data, &entry)
	})
	return entry, found, err
}

func (e *BoltEngine) ListKV(namespace string) (map[string]KVEntry, error) {
	out := make(map[string]KVEntry)
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV).Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var entry KVEntry
			if err := cbor.Unmarshal(v, &entry); err != nil {
				return err
			}
			out[string(k)] = entry
			return nil
		})
	})
	return out, err
}

func (e *BoltEngine) PutKV(namespace, key string, entry KVEntry) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketKV).CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		data, err := cbor.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (e *BoltEngine) DeleteKV(namespace, key string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV).Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (e *BoltEngine) SchemaName() (string, bool, error) {
	var name string
	var found bool
	err := e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(metaSchemaName)
		if v == nil {
			return nil
		}
		name = string(v)
		found = true
		return nil
	})
	return name, found, err
}

func (e *BoltEngine) SetSchemaName(name string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(metaSchemaName, []byte(name))
	})
}

// Compact runs bbolt's consistency check over the live file, then streams
// a snapshot of the database through a zstd encoder into io.Discard. It
// does not rewrite the database file, keep a backup, or reclaim space
// freed by deletes; the file's size is unchanged afterwards.
func (e *BoltEngine) Compact() (err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.CompactionDuration)
		if err == nil {
			metrics.CompactionsTotal.Inc()
		}
	}()

	return e.db.View(func(tx *bolt.Tx) error {
		if err := tx.Check(); err != nil {
			return err
		}
		enc, err := zstd.NewWriter(io.Discard)
		if err != nil {
			return fmt.Errorf("compact: init zstd encoder: %w", err)
		}
		defer enc.Close()
		if _, err := tx.WriteTo(enc); err != nil {
			return fmt.Errorf("compact: stream snapshot: %w", err)
		}
		return nil
	})
}
