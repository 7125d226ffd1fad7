package view

import (
	"bytes"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// Entry is one (document, value) pair filed under a view key. A non-unique
// view may file several entries under the same key; order among them is
// the order they were Put, not document id order (an updated document is
// removed and re-appended). pkg/query sorts rows by key, then document id.
type Entry struct {
	DocumentID uint64
	Value      []byte
}

// Index is the ordered, in-memory materialization of one view's emitted
// entries, keyed by the view's key-codec bytes so iteration order matches
// the key type's natural order (§4.A). It is rebuilt from the storage
// engine's committed key/value rows at load time and kept current by the
// transaction engine on every commit; it is not itself the durable copy.
//
// Built on hashicorp/go-immutable-radix so readers iterating a query range
// never observe a commit partway through: each write replaces the root
// pointer atomically under the lock, and in-flight iterators keep walking
// the tree snapshot they started with.
type Index struct {
	mu   sync.RWMutex
	tree *iradix.Tree
}

// NewIndex creates an empty view index.
func NewIndex() *Index {
	return &Index{tree: iradix.New()}
}

// Put files doc under key, appending to any existing entries already filed
// there. Unique-key enforcement happens one layer up (pkg/transaction),
// where it can be attributed to the conflicting document id.
func (idx *Index) Put(key []byte, docID uint64, value []byte) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	entries := idx.entriesLocked(key)
	entries = append(entries, Entry{DocumentID: docID, Value: value})
	idx.tree, _, _ = idx.tree.Insert(key, entries)
}

// Entries returns every entry filed under key, or nil if none.
func (idx *Index) Entries(key []byte) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.entriesLocked(key)
}

func (idx *Index) entriesLocked(key []byte) []Entry {
	v, ok := idx.tree.Get(key)
	if !ok {
		return nil
	}
	return v.([]Entry)
}

// Remove drops the entry belonging to docID under key, leaving any other
// documents' entries under the same key untouched. It is a no-op if no
// such entry exists, which happens when a document's previous revision
// never emitted this key.
func (idx *Index) Remove(key []byte, docID uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	entries := idx.entriesLocked(key)
	if entries == nil {
		return
	}
	kept := entries[:0:0]
	for _, e := range entries {
		if e.DocumentID != docID {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		idx.tree, _, _ = idx.tree.Delete(key)
		return
	}
	idx.tree, _, _ = idx.tree.Insert(key, kept)
}

// KeyEntries pairs a key with the entries filed under it, returned by
// Range in ascending key order.
type KeyEntries struct {
	Key     []byte
	Entries []Entry
}

// Range walks keys in [start, end) ascending order. A nil start begins at
// the smallest key; a nil end walks to the largest. It matches the
// half-open KeyFilter bound semantics pkg/query builds on (§4.F).
func (idx *Index) Range(start, end []byte) []KeyEntries {
	idx.mu.RLock()
	tree := idx.tree
	idx.mu.RUnlock()

	var out []KeyEntries
	it := tree.Root().Iterator()
	if start != nil {
		it.SeekLowerBound(start)
	}
	for {
		k, v, ok := it.Next()
		if !ok {
			break
		}
		if end != nil && bytes.Compare(k, end) >= 0 {
			break
		}
		out = append(out, KeyEntries{Key: k, Entries: v.([]Entry)})
	}
	return out
}

// Len returns the number of distinct keys currently filed, mainly for
// tests and diagnostics.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}
