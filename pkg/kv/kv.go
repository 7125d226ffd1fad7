// Package kv implements the key-value sidestore (§4.H): a per-database
// namespaced register of Bytes/Numeric values with TTL and atomic numeric
// operations, grounded on the teacher's poc/raft KeyValueFSM set/get/
// delete shape and pkg/storage/boltdb.go's bucket-per-namespace pattern.
package kv

import (
	"sync"
	"time"

	"github.com/hollowdb/hollow/pkg/dberr"
	"github.com/hollowdb/hollow/pkg/metrics"
	"github.com/hollowdb/hollow/pkg/storage"
)

// Check constrains a Set call's precondition.
type Check int

const (
	CheckNone Check = iota
	CheckIfPresent
	CheckIfAbsent
)

// Store is the namespaced key-value register. A single commit lock
// matches the transaction engine's single-writer discipline (§5): the
// sidestore shares the same durability expectations even though it is
// not folded into document transactions.
type Store struct {
	mu     sync.Mutex
	engine storage.Engine
	clock  func() time.Time
}

// New wraps a storage engine as a key-value store. clock defaults to
// time.Now and is overridable in tests for deterministic expiration.
func New(engine storage.Engine) *Store {
	return &Store{engine: engine, clock: time.Now}
}

// SetOptions configures one Set call.
type SetOptions struct {
	Check          Check
	ExpirationUnix *int64 // milliseconds; nil clears any TTL
	ReturnPrevious bool
}

// Set writes ns/key, optionally gated by Check and optionally returning
// the value it replaced. TTL updates replace any prior expiration
// atomically with the value update (§4.H).
func (s *Store) Set(ns, key string, value storage.KVValue, opts SetOptions) (*storage.KVValue, error) {
	defer metrics.KVOperationsTotal.WithLabelValues(ns, "set").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found, err := s.liveEntry(ns, key)
	if err != nil {
		return nil, err
	}

	switch opts.Check {
	case CheckIfPresent:
		if !found {
			return nil, &dberr.MissingKey{Namespace: ns, Key: key}
		}
	case CheckIfAbsent:
		if found {
			return nil, &dberr.KeyExists{Namespace: ns, Key: key}
		}
	}

	entry := storage.KVEntry{Value: value, ExpirationUnix: opts.ExpirationUnix}
	if err := s.engine.PutKV(ns, key, entry); err != nil {
		return nil, wrapStorageErr("kv_set", err)
	}

	if opts.ReturnPrevious && found {
		return &existing.Value, nil
	}
	return nil, nil
}

// Get reads ns/key, optionally tombstoning it atomically (§4.H
// "get(ns, key, delete?)").
func (s *Store) Get(ns, key string, del bool) (*storage.KVValue, error) {
	defer metrics.KVOperationsTotal.WithLabelValues(ns, "get").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found, err := s.liveEntry(ns, key)
	if err != nil || !found {
		return nil, err
	}
	if del {
		if err := s.engine.DeleteKV(ns, key); err != nil {
			return nil, wrapStorageErr("kv_get_delete", err)
		}
	}
	v := entry.Value
	return &v, nil
}

// Delete removes ns/key unconditionally.
func (s *Store) Delete(ns, key string) error {
	defer metrics.KVOperationsTotal.WithLabelValues(ns, "delete").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	return wrapStorageErr("kv_delete", s.engine.DeleteKV(ns, key))
}

// Increment adjusts a Numeric value by delta atomically, failing with
// ValueKindMismatch against a Bytes value. saturating clamps to
// math.MaxInt64/MinInt64 instead of wrapping on overflow.
func (s *Store) Increment(ns, key string, delta int64, saturating bool) (int64, error) {
	return s.adjust(ns, key, delta, saturating)
}

// Decrement is Increment with the delta's sign flipped.
func (s *Store) Decrement(ns, key string, delta int64, saturating bool) (int64, error) {
	return s.adjust(ns, key, -delta, saturating)
}

func (s *Store) adjust(ns, key string, delta int64, saturating bool) (int64, error) {
	kind := "increment"
	if delta < 0 {
		kind = "decrement"
	}
	defer metrics.KVOperationsTotal.WithLabelValues(ns, kind).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found, err := s.liveEntry(ns, key)
	if err != nil {
		return 0, err
	}

	var current int64
	if found {
		if !entry.Value.IsNumeric() {
			return 0, &dberr.ValueKindMismatch{Namespace: ns, Key: key}
		}
		current = *entry.Value.Numeric
	}

	next := addSaturating(current, delta, saturating)
	numeric := next
	newEntry := storage.KVEntry{Value: storage.KVValue{Numeric: &numeric}}
	if found {
		newEntry.ExpirationUnix = entry.ExpirationUnix
	}
	if err := s.engine.PutKV(ns, key, newEntry); err != nil {
		return 0, wrapStorageErr("kv_adjust", err)
	}
	return next, nil
}

func addSaturating(a, b int64, saturating bool) int64 {
	sum := a + b
	if !saturating {
		return sum
	}
	if b > 0 && sum < a {
		return 1<<63 - 1
	}
	if b < 0 && sum > a {
		return -1 << 63
	}
	return sum
}

// liveEntry fetches ns/key, treating an entry past its expiration as
// absent (§4.H "Expiration").
func (s *Store) liveEntry(ns, key string) (storage.KVEntry, bool, error) {
	entry, found, err := s.engine.GetKV(ns, key)
	if err != nil {
		return storage.KVEntry{}, false, wrapStorageErr("kv_get", err)
	}
	if !found {
		return storage.KVEntry{}, false, nil
	}
	if entry.ExpirationUnix != nil && s.clock().UnixMilli() >= *entry.ExpirationUnix {
		return storage.KVEntry{}, false, nil
	}
	return entry, true, nil
}

func wrapStorageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &dberr.Storage{Op: op, Err: err}
}
