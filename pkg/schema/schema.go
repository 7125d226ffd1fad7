// Package schema declares collections and their views and resolves names to
// definitions (§4.C). Views themselves are type-erased here (design note
// "Cyclic/self-referential generic trait objects" in spec.md §9): this
// package stores closures over encoded bytes; pkg/view supplies the typed,
// generic wrappers application code actually writes against.
package schema

import (
	"sort"
	"strings"
	"sync"

	"github.com/hollowdb/hollow/pkg/dberr"
	"github.com/hollowdb/hollow/pkg/document"
)

// MapEntry is one (key, value) pair a View emits for a document, already
// encoded to bytes via the key codec and the value's serialization format.
type MapEntry struct {
	Key   []byte
	Value []byte
}

// View is the type-erased contract a schema stores per view name. Typed,
// ergonomic construction lives in pkg/view.
type View interface {
	Name() string
	Collection() document.CollectionName
	Unique() bool
	// Version changes signal that existing index entries are stale and
	// must be rebuilt (§4.D "Versioning").
	Version() int
	// Map emits zero or more entries for one document. Must be a pure,
	// deterministic function of the document's contents.
	Map(doc document.Document) ([]MapEntry, error)
	// Reduce folds values sharing a key (rereduce=false) or folds
	// previously-reduced values from sub-ranges (rereduce=true). keys and
	// counts are parallel to each distinct key folded into this call;
	// values is parallel to every individual (possibly already-reduced)
	// value. Returns (nil, false) if the view declares no reducer.
	Reduce(keys [][]byte, counts []int, values [][]byte, rereduce bool) ([]byte, bool, error)
}

// Collection is a named container of documents belonging to exactly one
// schema, declaring zero or more views.
type Collection struct {
	Name  document.CollectionName
	views map[string]View
}

// Views returns the collection's views sorted by name, for deterministic
// enumeration.
func (c *Collection) Views() []View {
	out := make([]View, 0, len(c.views))
	for _, v := range c.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// View resolves one of the collection's views by unqualified name.
func (c *Collection) View(name string) (View, bool) {
	v, ok := c.views[foldName(name)]
	return v, ok
}

// Schema is a set of collection definitions plus the transitive closure of
// their views, identified by a qualified name.
type Schema struct {
	Name string

	mu          sync.RWMutex
	collections map[string]*Collection
}

// New creates an empty schema. name must satisfy the §4.C name grammar.
func New(name string) (*Schema, error) {
	if err := ValidateQualifiedName("schema", name); err != nil {
		return nil, err
	}
	return &Schema{Name: name, collections: make(map[string]*Collection)}, nil
}

// DefineCollection registers a new collection with its views. Mutations to
// the registry are rare and must be externally serialized (§5 "Shared
// resources"); DefineCollection itself takes the write lock so concurrent
// registration attempts fail cleanly rather than racing.
func (s *Schema) DefineCollection(name document.CollectionName, views ...View) (*Collection, error) {
	if err := ValidateQualifiedName("collection", name.String()); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := foldName(name.String())
	if _, exists := s.collections[key]; exists {
		return nil, dberr.ErrCollectionAlreadyDefined
	}

	viewsByName := make(map[string]View, len(views))
	for _, v := range views {
		viewsByName[foldName(v.Name())] = v
	}

	coll := &Collection{Name: name, views: viewsByName}
	s.collections[key] = coll
	return coll, nil
}

// Collection resolves a collection by its qualified name.
func (s *Schema) Collection(name document.CollectionName) (*Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[foldName(name.String())]
	if !ok {
		return nil, dberr.ErrCollectionNotFound
	}
	return coll, nil
}

// Collections returns all registered collections sorted by name.
func (s *Schema) Collections() []*Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Collection, 0, len(s.collections))
	for _, c := range s.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name.String() < out[j].Name.String() })
	return out
}

// View resolves a view by its qualified name "authority.collection.view",
// used when callers only have a view name (e.g. a query request off the
// wire) rather than a live Collection handle.
func (s *Schema) View(qualifiedView string) (View, error) {
	authority, rest, ok := strings.Cut(qualifiedView, ".")
	if !ok {
		return nil, &dberr.InvalidName{Name: qualifiedView, Detail: "view name must be authority.collection.view"}
	}
	collName, viewName, ok := strings.Cut(rest, ".")
	if !ok {
		return nil, &dberr.InvalidName{Name: qualifiedView, Detail: "view name must be authority.collection.view"}
	}

	coll, err := s.Collection(document.CollectionName{Authority: authority, Name: collName})
	if err != nil {
		return nil, err
	}
	v, ok := coll.View(viewName)
	if !ok {
		return nil, dberr.ErrCollectionNotFound
	}
	return v, nil
}

// Registry tracks registered schemas process-wide; it is read-mostly after
// initialization (§5 "Shared resources").
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register adds a schema to the registry.
func (r *Registry) Register(s *Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := foldName(s.Name)
	if _, exists := r.schemas[key]; exists {
		return dberr.ErrSchemaAlreadyRegistered
	}
	r.schemas[key] = s
	return nil
}

// Resolve looks up a previously-registered schema by name.
func (r *Registry) Resolve(name string) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schemas[foldName(name)]
	if !ok {
		return nil, dberr.ErrSchemaNotRegistered
	}
	return s, nil
}

// List returns every registered schema name, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
