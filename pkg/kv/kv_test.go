package kv

import (
	"testing"
	"time"

	"github.com/hollowdb/hollow/pkg/dberr"
	"github.com/hollowdb/hollow/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	engine, err := storage.OpenBoltEngine(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return New(engine)
}

func TestSetGetDelete(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Set("sessions", "alice", storage.KVValue{Bytes: []byte("tok")}, SetOptions{})
	require.NoError(t, err)

	v, err := s.Get("sessions", "alice", false)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, []byte("tok"), v.Bytes)

	require.NoError(t, s.Delete("sessions", "alice"))
	v, err = s.Get("sessions", "alice", false)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSetIfAbsentRejectsExisting(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Set("ns", "k", storage.KVValue{Bytes: []byte("1")}, SetOptions{})
	require.NoError(t, err)

	_, err = s.Set("ns", "k", storage.KVValue{Bytes: []byte("2")}, SetOptions{Check: CheckIfAbsent})
	var exists *dberr.KeyExists
	assert.ErrorAs(t, err, &exists)
}

func TestSetIfPresentRejectsMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Set("ns", "k", storage.KVValue{Bytes: []byte("1")}, SetOptions{Check: CheckIfPresent})
	var missing *dberr.MissingKey
	assert.ErrorAs(t, err, &missing)
}

func TestSetReturnsPrevious(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Set("ns", "k", storage.KVValue{Bytes: []byte("old")}, SetOptions{})
	require.NoError(t, err)

	prev, err := s.Set("ns", "k", storage.KVValue{Bytes: []byte("new")}, SetOptions{ReturnPrevious: true})
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, []byte("old"), prev.Bytes)
}

func TestGetWithDeleteTombstones(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Set("ns", "k", storage.KVValue{Bytes: []byte("v")}, SetOptions{})
	require.NoError(t, err)

	v, err := s.Get("ns", "k", true)
	require.NoError(t, err)
	require.NotNil(t, v)

	v, err = s.Get("ns", "k", false)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestIncrementDecrementOnNumeric(t *testing.T) {
	s := newTestStore(t)
	zero := int64(0)
	_, err := s.Set("ns", "counter", storage.KVValue{Numeric: &zero}, SetOptions{})
	require.NoError(t, err)

	v, err := s.Increment("ns", "counter", 5, false)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	v, err = s.Decrement("ns", "counter", 2, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestIncrementOnBytesFailsTypeMismatch(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Set("ns", "k", storage.KVValue{Bytes: []byte("x")}, SetOptions{})
	require.NoError(t, err)

	_, err = s.Increment("ns", "k", 1, false)
	var mismatch *dberr.ValueKindMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestIncrementSaturatesAtMax(t *testing.T) {
	s := newTestStore(t)
	near := int64(1<<63 - 1)
	_, err := s.Set("ns", "k", storage.KVValue{Numeric: &near}, SetOptions{})
	require.NoError(t, err)

	v, err := s.Increment("ns", "k", 10, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<63-1), v)
}

func TestExpiredKeyIsInvisible(t *testing.T) {
	s := newTestStore(t)
	now := time.UnixMilli(1_000_000)
	s.clock = func() time.Time { return now }

	past := now.Add(-time.Second).UnixMilli()
	_, err := s.Set("ns", "k", storage.KVValue{Bytes: []byte("v")}, SetOptions{ExpirationUnix: &past})
	require.NoError(t, err)

	v, err := s.Get("ns", "k", false)
	require.NoError(t, err)
	assert.Nil(t, v)
}
