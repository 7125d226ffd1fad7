// Package query implements the view query surface (§4.F): key filters,
// ordering, access policies, grouped reduce, and delete-by-query, layered
// over pkg/view's in-memory index and pkg/transaction's commit engine.
package query

import (
	"bytes"
	"context"
	"sort"

	"github.com/hollowdb/hollow/pkg/dberr"
	"github.com/hollowdb/hollow/pkg/document"
	"github.com/hollowdb/hollow/pkg/metrics"
	"github.com/hollowdb/hollow/pkg/schema"
	"github.com/hollowdb/hollow/pkg/transaction"
	"github.com/hollowdb/hollow/pkg/view"
	"golang.org/x/sync/errgroup"
)

// Order controls result ordering by encoded key bytes (§4.F); ties are
// broken by source document id ascending regardless of Order.
type Order int

const (
	Ascending Order = iota
	Descending
)

// AccessPolicy controls how fresh the index must be relative to the
// request time (§4.F).
type AccessPolicy int

const (
	// UpdateBefore blocks until the index reflects the last transaction
	// committed at request time.
	UpdateBefore AccessPolicy = iota
	// UpdateAfter executes against the current index and schedules a
	// catch-up in the background.
	UpdateAfter
	// NoUpdate executes against the current index with no side effects.
	NoUpdate
)

// Bound is one side of a Range key filter.
type Bound struct {
	Key       []byte
	Inclusive bool
}

// KeyFilter selects which keys a query considers. Exactly one of the
// fields is meaningful per filter; the zero value selects all keys.
type KeyFilter struct {
	kind     filterKind
	match    []byte
	start    *Bound
	end      *Bound
	multiple [][]byte
}

type filterKind int

const (
	filterAll filterKind = iota
	filterMatches
	filterRange
	filterMultiple
)

// All selects every key in the view.
func All() KeyFilter { return KeyFilter{kind: filterAll} }

// Matches selects exactly one encoded key.
func Matches(key []byte) KeyFilter { return KeyFilter{kind: filterMatches, match: key} }

// Range selects keys between start and end, each independently
// inclusive/exclusive, either bound may be nil for unbounded.
func Range(start, end *Bound) KeyFilter { return KeyFilter{kind: filterRange, start: start, end: end} }

// Multiple selects the union of an explicit key set.
func Multiple(keys [][]byte) KeyFilter { return KeyFilter{kind: filterMultiple, multiple: keys} }

// Inspect exposes a filter's fields to callers that must serialize it
// across a process boundary (pkg/wire's KeyFilterToWire), without making
// the fields themselves part of KeyFilter's public API.
func (k KeyFilter) Inspect() (isAll bool, match []byte, start, end *Bound, multiple [][]byte) {
	switch k.kind {
	case filterMatches:
		return false, k.match, nil, nil, nil
	case filterRange:
		return false, nil, k.start, k.end, nil
	case filterMultiple:
		return false, nil, nil, nil, k.multiple
	default:
		return true, nil, nil, nil, nil
	}
}

// MappedRow is one query result row: the source document id and the
// view's (encoded) key/value pair.
type MappedRow struct {
	SourceID uint64
	Key      []byte
	Value    []byte
}

// Engine runs queries against one Database's views.
type Engine struct {
	db *transaction.Database
}

// New wraps a transaction.Database with the query surface.
func New(db *transaction.Database) *Engine {
	return &Engine{db: db}
}

// resolve locates the view's live index and its freshness-driving
// collection, applying the requested access policy before returning. For
// this single-process engine "caught up" is always true once the commit
// lock has been acquired and released once, since there is only one
// writer; UpdateBefore is therefore satisfied by a lock round-trip.
func (e *Engine) resolve(ctx context.Context, coll document.CollectionName, viewName string, policy AccessPolicy) (*view.Index, schema.View, error) {
	v, err := e.resolveView(coll, viewName)
	if err != nil {
		return nil, nil, err
	}
	idx, ok := e.db.Index(coll, viewName)
	if !ok {
		return nil, nil, dberr.ErrCollectionNotFound
	}

	switch policy {
	case UpdateBefore:
		// A single-writer engine is always caught up the instant the
		// commit lock is free; Index() above already took and released
		// it, so by the time we observe idx there is nothing further to
		// await. A replicated engine (pkg/replicate) would block here on
		// the last-applied index instead.
	case UpdateAfter:
		// No background catch-up is needed for the same reason; kept as
		// a named branch so callers' policy intent stays visible.
	case NoUpdate:
	}
	return idx, v, nil
}

func (e *Engine) resolveView(coll document.CollectionName, viewName string) (schema.View, error) {
	c, err := e.db.Schema().Collection(coll)
	if err != nil {
		return nil, err
	}
	v, ok := c.View(viewName)
	if !ok {
		return nil, dberr.ErrCollectionNotFound
	}
	return v, nil
}

// Query runs a filtered, ordered, limited scan over a view (§4.F
// `query`).
func (e *Engine) Query(ctx context.Context, coll document.CollectionName, viewName string, filter KeyFilter, order Order, limit int, policy AccessPolicy) ([]MappedRow, error) {
	qualified := coll.String() + "." + viewName
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryDuration, qualified, "query")

	idx, _, err := e.resolve(ctx, coll, viewName, policy)
	if err != nil {
		return nil, err
	}

	rows := scan(idx, filter)
	if order == Descending {
		sort.SliceStable(rows, func(i, j int) bool {
			if c := bytes.Compare(rows[i].Key, rows[j].Key); c != 0 {
				return c > 0
			}
			return rows[i].SourceID < rows[j].SourceID
		})
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	metrics.QueryRowsReturned.WithLabelValues(qualified).Observe(float64(len(rows)))
	return rows, nil
}

// QueryWithDocs runs Query and hydrates each row's source document
// concurrently (§4.F `query_with_docs`).
func (e *Engine) QueryWithDocs(ctx context.Context, coll document.CollectionName, viewName string, filter KeyFilter, order Order, limit int, policy AccessPolicy) ([]MappedRow, []document.Document, error) {
	rows, err := e.Query(ctx, coll, viewName, filter, order, limit, policy)
	if err != nil {
		return nil, nil, err
	}

	docs := make([]document.Document, len(rows))
	g, _ := errgroup.WithContext(ctx)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			doc, found, err := e.db.Get(coll, row.SourceID)
			if err != nil {
				return err
			}
			if !found {
				return &dberr.DocumentNotFound{Collection: coll, ID: row.SourceID}
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return rows, docs, nil
}

// Reduce folds every value matching filter into one, using the view's
// declared reducer (§4.F `reduce`).
func (e *Engine) Reduce(ctx context.Context, coll document.CollectionName, viewName string, filter KeyFilter, policy AccessPolicy) ([]byte, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryDuration, coll.String()+"."+viewName, "reduce")

	idx, v, err := e.resolve(ctx, coll, viewName, policy)
	if err != nil {
		return nil, err
	}

	rows := scan(idx, filter)
	var keys [][]byte
	var counts []int
	values := make([][]byte, len(rows))
	for i, r := range rows {
		values[i] = r.Value
		if n := len(keys); n > 0 && bytes.Equal(keys[n-1], r.Key) {
			counts[n-1]++
			continue
		}
		keys = append(keys, r.Key)
		counts = append(counts, 1)
	}

	folded, ok, err := v.Reduce(keys, counts, values, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return folded, nil
}

// ReducedGroup is one key's folded value from ReduceGrouped.
type ReducedGroup struct {
	Key   []byte
	Value []byte
}

// ReduceGrouped folds values sharing a key independently per key (§4.F
// `reduce_grouped`).
func (e *Engine) ReduceGrouped(ctx context.Context, coll document.CollectionName, viewName string, filter KeyFilter, policy AccessPolicy) ([]ReducedGroup, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueryDuration, coll.String()+"."+viewName, "reduce_grouped")

	idx, v, err := e.resolve(ctx, coll, viewName, policy)
	if err != nil {
		return nil, err
	}

	rows := scan(idx, filter)
	byKey := make(map[string][]MappedRow)
	var order []string
	for _, r := range rows {
		k := string(r.Key)
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], r)
	}

	out := make([]ReducedGroup, 0, len(order))
	for _, k := range order {
		group := byKey[k]
		values := make([][]byte, len(group))
		for i, g := range group {
			values[i] = g.Value
		}
		folded, ok, err := v.Reduce([][]byte{[]byte(k)}, []int{len(group)}, values, false)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ReducedGroup{Key: []byte(k), Value: folded})
		}
	}
	return out, nil
}

// DeleteDocs deletes every source document matching filter, one
// transaction per document, returning the count successfully deleted
// (§4.F `delete_docs`). It stops at the first failed delete and returns
// that error together with the count deleted before it.
func (e *Engine) DeleteDocs(ctx context.Context, coll document.CollectionName, viewName string, filter KeyFilter, policy AccessPolicy) (uint64, error) {
	idx, _, err := e.resolve(ctx, coll, viewName, policy)
	if err != nil {
		return 0, err
	}

	seen := make(map[uint64]bool)
	var deleted uint64
	for _, row := range scan(idx, filter) {
		if seen[row.SourceID] {
			continue
		}
		seen[row.SourceID] = true

		doc, found, err := e.db.Get(coll, row.SourceID)
		if err != nil {
			return deleted, err
		}
		if !found {
			continue
		}
		if _, err := e.db.ApplyTransaction(transaction.New().Delete(doc.Header)); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func scan(idx *view.Index, filter KeyFilter) []MappedRow {
	var out []MappedRow
	switch filter.kind {
	case filterAll:
		for _, ke := range idx.Range(nil, nil) {
			out = append(out, rowsFor(ke)...)
		}
	case filterMatches:
		for _, e := range idx.Entries(filter.match) {
			out = append(out, MappedRow{SourceID: e.DocumentID, Key: filter.match, Value: e.Value})
		}
	case filterRange:
		start, end := rangeBounds(filter)
		for _, ke := range idx.Range(start, end) {
			if filter.start != nil && !filter.start.Inclusive && bytes.Equal(ke.Key, filter.start.Key) {
				continue
			}
			if filter.end != nil && filter.end.Inclusive && bytes.Equal(ke.Key, filter.end.Key) {
				out = append(out, rowsFor(ke)...)
				continue
			}
			out = append(out, rowsFor(ke)...)
		}
	case filterMultiple:
		for _, key := range filter.multiple {
			for _, e := range idx.Entries(key) {
				out = append(out, MappedRow{SourceID: e.DocumentID, Key: key, Value: e.Value})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Key, out[j].Key); c != 0 {
			return c < 0
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out
}

// rangeBounds translates a Range filter to the half-open [start, end)
// bytes Index.Range expects, nudging an inclusive end bound past itself
// with a zero byte appended so it is still included by the half-open scan.
func rangeBounds(filter KeyFilter) ([]byte, []byte) {
	var start, end []byte
	if filter.start != nil {
		start = filter.start.Key
	}
	if filter.end != nil {
		end = filter.end.Key
		if filter.end.Inclusive {
			end = append(append([]byte(nil), end...), 0x00)
		}
	}
	return start, end
}

func rowsFor(ke view.KeyEntries) []MappedRow {
	out := make([]MappedRow, len(ke.Entries))
	for i, e := range ke.Entries {
		out[i] = MappedRow{SourceID: e.DocumentID, Key: ke.Key, Value: e.Value}
	}
	return out
}

func reverse(rows []MappedRow) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}
