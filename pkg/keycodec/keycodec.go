// Package keycodec implements the order-preserving bijection between typed
// view/document keys and the byte sequences stored in the index: for every
// supported type T and values a, b of that type, Encode(a) < Encode(b)
// lexicographically iff a < b in T's natural order.
package keycodec

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Error reports a codec failure: invalid bytes on decode, or an
// encode-time ambiguity (an Optional wrapping a value that encodes empty).
type Error struct {
	Detail string
}

func (e *Error) Error() string { return "key serialization: " + e.Detail }

func errf(format string, args ...any) error {
	return &Error{Detail: fmt.Sprintf(format, args...)}
}

// Unit is the zero-length key, used by views that do not discriminate on key
// at all (every document maps to the same bucket).
type Unit struct{}

// EncodeUnit always returns an empty slice.
func EncodeUnit(Unit) []byte { return nil }

// DecodeUnit ignores its input; any byte slice decodes to Unit{}.
func DecodeUnit([]byte) (Unit, error) { return Unit{}, nil }

// EncodeBytes passes raw bytes through unchanged: byte strings inherit the
// lexicographic order of their own bytes.
func EncodeBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// DecodeBytes is the inverse of EncodeBytes.
func DecodeBytes(b []byte) ([]byte, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// EncodeString encodes a UTF-8 string as its raw bytes.
func EncodeString(s string) []byte { return []byte(s) }

// DecodeString decodes bytes as UTF-8, failing on invalid sequences so that
// decode(encode(x)) = x holds exactly (round-trip law).
func DecodeString(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", errf("invalid UTF-8 in string key")
	}
	return string(b), nil
}

// EncodeUUID returns the 16 raw bytes of a UUID, which are already in the
// wire/sortable order the RFC defines.
func EncodeUUID(id uuid.UUID) []byte {
	out := make([]byte, 16)
	copy(out, id[:])
	return out
}

// DecodeUUID parses exactly 16 bytes back into a UUID.
func DecodeUUID(b []byte) (uuid.UUID, error) {
	if len(b) != 16 {
		return uuid.UUID{}, errf("uuid key must be exactly 16 bytes, got %d", len(b))
	}
	var id uuid.UUID
	copy(id[:], b)
	return id, nil
}

// Unsigned integer encodings: big-endian, fixed width. Big-endian byte order
// already matches natural numeric order for unsigned integers.

func EncodeUint8(v uint8) []byte { return []byte{v} }
func DecodeUint8(b []byte) (uint8, error) {
	if len(b) != 1 {
		return 0, errf("uint8 key must be 1 byte, got %d", len(b))
	}
	return b[0], nil
}

func EncodeUint16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}
func DecodeUint16(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, errf("uint16 key must be 2 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

func EncodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
func DecodeUint32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, errf("uint32 key must be 4 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

func EncodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
func DecodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, errf("uint64 key must be 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// Uint128 is a 128-bit unsigned integer split into big-endian halves. No
// library in the retrieval pack provides a 128-bit integer type, so this is
// the one deliberately stdlib-only type in the codec (see DESIGN.md).
type Uint128 struct {
	Hi, Lo uint64
}

func EncodeUint128(v Uint128) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], v.Hi)
	binary.BigEndian.PutUint64(b[8:16], v.Lo)
	return b
}

func DecodeUint128(b []byte) (Uint128, error) {
	if len(b) != 16 {
		return Uint128{}, errf("uint128 key must be 16 bytes, got %d", len(b))
	}
	return Uint128{
		Hi: binary.BigEndian.Uint64(b[0:8]),
		Lo: binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// Signed integer encodings: big-endian with the sign bit flipped, so that
// the most negative value encodes as all zero bits and sorts before the
// most positive value, which encodes as all one bits. spec.md is explicit
// about this; see DESIGN.md for the point where original_source disagrees.

func EncodeInt8(v int8) []byte { return []byte{uint8(v) ^ 0x80} }
func DecodeInt8(b []byte) (int8, error) {
	if len(b) != 1 {
		return 0, errf("int8 key must be 1 byte, got %d", len(b))
	}
	return int8(b[0] ^ 0x80), nil
}

func EncodeInt16(v int16) []byte {
	b := EncodeUint16(uint16(v))
	b[0] ^= 0x80
	return b
}
func DecodeInt16(b []byte) (int16, error) {
	if len(b) != 2 {
		return 0, errf("int16 key must be 2 bytes, got %d", len(b))
	}
	flipped := make([]byte, 2)
	copy(flipped, b)
	flipped[0] ^= 0x80
	u, _ := DecodeUint16(flipped)
	return int16(u), nil
}

func EncodeInt32(v int32) []byte {
	b := EncodeUint32(uint32(v))
	b[0] ^= 0x80
	return b
}
func DecodeInt32(b []byte) (int32, error) {
	if len(b) != 4 {
		return 0, errf("int32 key must be 4 bytes, got %d", len(b))
	}
	flipped := make([]byte, 4)
	copy(flipped, b)
	flipped[0] ^= 0x80
	u, _ := DecodeUint32(flipped)
	return int32(u), nil
}

func EncodeInt64(v int64) []byte {
	b := EncodeUint64(uint64(v))
	b[0] ^= 0x80
	return b
}
func DecodeInt64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, errf("int64 key must be 8 bytes, got %d", len(b))
	}
	flipped := make([]byte, 8)
	copy(flipped, b)
	flipped[0] ^= 0x80
	u, _ := DecodeUint64(flipped)
	return int64(u), nil
}

// Int128 is a 128-bit signed integer, stored as (Hi, Lo) two's-complement
// halves in the same layout as Uint128.
type Int128 struct {
	Hi int64
	Lo uint64
}

func EncodeInt128(v Int128) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], uint64(v.Hi)^(1<<63))
	binary.BigEndian.PutUint64(b[8:16], v.Lo)
	return b
}

func DecodeInt128(b []byte) (Int128, error) {
	if len(b) != 16 {
		return Int128{}, errf("int128 key must be 16 bytes, got %d", len(b))
	}
	hi := binary.BigEndian.Uint64(b[0:8]) ^ (1 << 63)
	lo := binary.BigEndian.Uint64(b[8:16])
	return Int128{Hi: int64(hi), Lo: lo}, nil
}

// Add128 is a small wrapping 128-bit addition helper for callers that
// accumulate Uint128 sums; only this package's tests call it, and it is
// not part of the codec contract itself.
func Add128(a, b Uint128) Uint128 {
	lo, carry := bits.Add64(a.Lo, b.Lo, 0)
	hi, _ := bits.Add64(a.Hi, b.Hi, carry)
	return Uint128{Hi: hi, Lo: lo}
}

// EncodeOptional implements the Optional(T) codec: None maps to the empty
// byte slice; Some(x) maps to Encode(x), which must itself be non-empty or
// the two cases become indistinguishable on decode.
func EncodeOptional(present bool, encoded []byte) ([]byte, error) {
	if !present {
		return nil, nil
	}
	if len(encoded) == 0 {
		return nil, errf("optional key cannot wrap a zero-length encoding; it is indistinguishable from None")
	}
	return encoded, nil
}

// DecodeOptional reports whether the wrapped value was present; callers
// pass the remaining bytes to the wrapped type's decoder themselves.
func DecodeOptional(b []byte) (present bool, rest []byte) {
	if len(b) == 0 {
		return false, nil
	}
	return true, b
}
