package keycodec

import (
	"bytes"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint64RoundTripAndOrder(t *testing.T) {
	values := []uint64{0, 1, 2, 42, 1_000_000, ^uint64(0)}
	for _, v := range values {
		decoded, err := DecodeUint64(EncodeUint64(v))
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
	}

	sorted := append([]uint64{}, values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	assertEncodedOrderMatches(t, sorted, func(v uint64) []byte { return EncodeUint64(v) })
}

func TestInt64RoundTripAndOrder(t *testing.T) {
	values := []int64{-1_000_000, -42, -1, 0, 1, 42, 1_000_000}
	for _, v := range values {
		decoded, err := DecodeInt64(EncodeInt64(v))
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
	}
	assertEncodedOrderMatches(t, values, func(v int64) []byte { return EncodeInt64(v) })
}

func TestInt8Extremes(t *testing.T) {
	min, max := int8(-128), int8(127)
	encMin, encMax := EncodeInt8(min), EncodeInt8(max)
	assert.True(t, bytes.Compare(encMin, encMax) < 0, "min must sort before max")

	decodedMin, err := DecodeInt8(encMin)
	require.NoError(t, err)
	assert.Equal(t, min, decodedMin)

	decodedMax, err := DecodeInt8(encMax)
	require.NoError(t, err)
	assert.Equal(t, max, decodedMax)
}

func TestUnitEncodingIsEmpty(t *testing.T) {
	assert.Empty(t, EncodeUnit(Unit{}))
	v, err := DecodeUnit(nil)
	require.NoError(t, err)
	assert.Equal(t, Unit{}, v)
}

func TestStringPreservesByteOrder(t *testing.T) {
	values := []string{"", "a", "aa", "ab", "b", "pliantdb", "z"}
	assertEncodedOrderMatches(t, values, EncodeString)

	for _, v := range values {
		decoded, err := DecodeString(EncodeString(v))
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
	}
}

func TestStringRejectsInvalidUTF8(t *testing.T) {
	_, err := DecodeString([]byte{0xff, 0xfe})
	require.Error(t, err)
	var kerr *Error
	assert.ErrorAs(t, err, &kerr)
}

func TestUUIDRoundTrip(t *testing.T) {
	id := uuid.New()
	decoded, err := DecodeUUID(EncodeUUID(id))
	require.NoError(t, err)
	assert.Equal(t, id, decoded)
}

func TestUUIDRejectsWrongLength(t *testing.T) {
	_, err := DecodeUUID([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestOptionalKeyEncoding(t *testing.T) {
	noneBytes, err := EncodeOptional(false, nil)
	require.NoError(t, err)
	assert.Empty(t, noneBytes)

	someBytes, err := EncodeOptional(true, EncodeInt8(1))
	require.NoError(t, err)
	assert.Equal(t, EncodeInt8(1), someBytes)

	present, rest := DecodeOptional(someBytes)
	assert.True(t, present)
	assert.Equal(t, someBytes, rest)

	present, rest = DecodeOptional(nil)
	assert.False(t, present)
	assert.Nil(t, rest)
}

func TestOptionalRejectsEmptyWrappedEncoding(t *testing.T) {
	_, err := EncodeOptional(true, EncodeUnit(Unit{}))
	require.Error(t, err)
}

func TestUint128RoundTripAndOrder(t *testing.T) {
	values := []Uint128{
		{Hi: 0, Lo: 0},
		{Hi: 0, Lo: 1},
		{Hi: 0, Lo: ^uint64(0)},
		{Hi: 1, Lo: 0},
		{Hi: ^uint64(0), Lo: ^uint64(0)},
	}
	assertEncodedOrderMatches(t, values, EncodeUint128)
	for _, v := range values {
		decoded, err := DecodeUint128(EncodeUint128(v))
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
	}
}

func TestAdd128Carries(t *testing.T) {
	sum := Add128(Uint128{Hi: 0, Lo: ^uint64(0)}, Uint128{Hi: 0, Lo: 1})
	assert.Equal(t, Uint128{Hi: 1, Lo: 0}, sum)
}

// assertEncodedOrderMatches checks law 2 from spec.md §8: for an
// already-sorted slice of values, their encodings must also be sorted.
func assertEncodedOrderMatches[T any](t *testing.T, sortedValues []T, encode func(T) []byte) {
	t.Helper()
	for i := 1; i < len(sortedValues); i++ {
		prev := encode(sortedValues[i-1])
		cur := encode(sortedValues[i])
		assert.LessOrEqual(t, bytes.Compare(prev, cur), 0,
			"encode(%v) should sort at or before encode(%v)", sortedValues[i-1], sortedValues[i])
	}
}
