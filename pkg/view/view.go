// Package view supplies the typed, generic construction layer applications
// write views against (§4.D). pkg/schema stores views type-erased as
// closures over encoded bytes; Definition here is the generic wrapper that
// produces one of those closures, mirroring the split between typed and
// wire-encoded forms in map.rs's Map/Serialized/MappedValue trio.
package view

import (
	"github.com/hollowdb/hollow/pkg/document"
	"github.com/hollowdb/hollow/pkg/schema"
)

// MappedValue is one typed (key, value) pair emitted for a document before
// serialization.
type MappedValue[K, V any] struct {
	Key   K
	Value V
}

// Mapper is the deterministic, pure per-document emitter a view declares.
// Returning (nil, nil) means the document contributes nothing.
type Mapper[K, V any] func(doc document.Document) ([]MappedValue[K, V], error)

// Reducer folds values sharing a key, or folds already-reduced values from
// sub-ranges when rereduce is true, mirroring CouchDB/PouchDB-style
// hierarchical reduction (§4.D). pkg/query calls the reducer once per
// reduction over every matching value with rereduce=false; it makes no
// sub-range rereduce pass.
type Reducer[K, V any] func(keys []K, counts []int, values []V, rereduce bool) (V, error)

// Definition is a concrete, typed view: a name, the collection it indexes,
// a Mapper, an optional Reducer, a uniqueness flag and a version (§4.D
// "Versioning": bumping Version invalidates previously-built index state).
type Definition[K, V any] struct {
	name       string
	collection document.CollectionName
	version    int
	unique     bool
	keyCodec   Codec[K]
	valueCodec Codec[V]
	mapFn      Mapper[K, V]
	reduceFn   Reducer[K, V]
}

// Option configures a Definition at construction time.
type Option[K, V any] func(*Definition[K, V])

// WithReducer attaches a reduce function to the view.
func WithReducer[K, V any](r Reducer[K, V]) Option[K, V] {
	return func(d *Definition[K, V]) { d.reduceFn = r }
}

// WithVersion overrides the default version of 1.
func WithVersion[K, V any](version int) Option[K, V] {
	return func(d *Definition[K, V]) { d.version = version }
}

// Unique marks the view as enforcing one document per emitted key (§4.D
// "Unique views").
func Unique[K, V any]() Option[K, V] {
	return func(d *Definition[K, V]) { d.unique = true }
}

// New constructs a typed view definition. name must be the view's
// unqualified name; it is registered under the owning collection via
// pkg/schema.DefineCollection.
func New[K, V any](
	name string,
	collection document.CollectionName,
	keyCodec Codec[K],
	valueCodec Codec[V],
	mapFn Mapper[K, V],
	opts ...Option[K, V],
) *Definition[K, V] {
	d := &Definition[K, V]{
		name:       name,
		collection: collection,
		version:    1,
		keyCodec:   keyCodec,
		valueCodec: valueCodec,
		mapFn:      mapFn,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Definition[K, V]) Name() string                        { return d.name }
func (d *Definition[K, V]) Collection() document.CollectionName { return d.collection }
func (d *Definition[K, V]) Unique() bool                        { return d.unique }
func (d *Definition[K, V]) Version() int                        { return d.version }

// Map implements schema.View by running the typed Mapper and serializing
// its output through the view's key and value codecs.
func (d *Definition[K, V]) Map(doc document.Document) ([]schema.MapEntry, error) {
	mapped, err := d.mapFn(doc)
	if err != nil {
		return nil, err
	}
	entries := make([]schema.MapEntry, 0, len(mapped))
	for _, m := range mapped {
		key, err := d.keyCodec.Encode(m.Key)
		if err != nil {
			return nil, err
		}
		value, err := d.valueCodec.Encode(m.Value)
		if err != nil {
			return nil, err
		}
		entries = append(entries, schema.MapEntry{Key: key, Value: value})
	}
	return entries, nil
}

// Reduce implements schema.View by decoding the raw keys/values, delegating
// to the typed Reducer, and re-encoding the single folded result.
func (d *Definition[K, V]) Reduce(keys [][]byte, counts []int, values [][]byte, rereduce bool) ([]byte, bool, error) {
	if d.reduceFn == nil {
		return nil, false, nil
	}

	typedKeys := make([]K, len(keys))
	for i, k := range keys {
		tk, err := d.keyCodec.Decode(k)
		if err != nil {
			return nil, false, err
		}
		typedKeys[i] = tk
	}
	typedValues := make([]V, len(values))
	for i, v := range values {
		tv, err := d.valueCodec.Decode(v)
		if err != nil {
			return nil, false, err
		}
		typedValues[i] = tv
	}

	folded, err := d.reduceFn(typedKeys, counts, typedValues, rereduce)
	if err != nil {
		return nil, false, err
	}
	encoded, err := d.valueCodec.Encode(folded)
	if err != nil {
		return nil, false, err
	}
	return encoded, true, nil
}

// KeyCodec exposes the view's key codec so callers building a KeyFilter
// (pkg/query) can encode typed bounds without reaching into internals.
func (d *Definition[K, V]) KeyCodec() Codec[K] { return d.keyCodec }

// ValueCodec exposes the view's value codec for callers decoding query
// results back into typed values.
func (d *Definition[K, V]) ValueCodec() Codec[V] { return d.valueCodec }
