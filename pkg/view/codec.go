package view

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/hollowdb/hollow/pkg/keycodec"
)

// Codec is the per-type contract a view's key or value type must satisfy:
// a lossless encode/decode pair. Key codecs additionally preserve natural
// order in their byte encoding (§4.A); value codecs only need to round-trip
// (§4.D "value type must be serializable").
type Codec[T any] struct {
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

// CBORValue builds a value Codec backed by the self-describing binary value
// format assumed by §6: github.com/fxamacker/cbor/v2.
func CBORValue[T any]() Codec[T] {
	return Codec[T]{
		Encode: func(v T) ([]byte, error) { return cbor.Marshal(v) },
		Decode: func(b []byte) (T, error) {
			var v T
			err := cbor.Unmarshal(b, &v)
			return v, err
		},
	}
}

// Key codecs for every mandatory type in §4.A. Each wraps the bijection
// implemented in pkg/keycodec.

func Uint8Key() Codec[uint8] {
	return Codec[uint8]{
		Encode: func(v uint8) ([]byte, error) { return keycodec.EncodeUint8(v), nil },
		Decode: keycodec.DecodeUint8,
	}
}

func Uint16Key() Codec[uint16] {
	return Codec[uint16]{
		Encode: func(v uint16) ([]byte, error) { return keycodec.EncodeUint16(v), nil },
		Decode: keycodec.DecodeUint16,
	}
}

func Uint32Key() Codec[uint32] {
	return Codec[uint32]{
		Encode: func(v uint32) ([]byte, error) { return keycodec.EncodeUint32(v), nil },
		Decode: keycodec.DecodeUint32,
	}
}

func Uint64Key() Codec[uint64] {
	return Codec[uint64]{
		Encode: func(v uint64) ([]byte, error) { return keycodec.EncodeUint64(v), nil },
		Decode: keycodec.DecodeUint64,
	}
}

func Int8Key() Codec[int8] {
	return Codec[int8]{
		Encode: func(v int8) ([]byte, error) { return keycodec.EncodeInt8(v), nil },
		Decode: keycodec.DecodeInt8,
	}
}

func Int16Key() Codec[int16] {
	return Codec[int16]{
		Encode: func(v int16) ([]byte, error) { return keycodec.EncodeInt16(v), nil },
		Decode: keycodec.DecodeInt16,
	}
}

func Int32Key() Codec[int32] {
	return Codec[int32]{
		Encode: func(v int32) ([]byte, error) { return keycodec.EncodeInt32(v), nil },
		Decode: keycodec.DecodeInt32,
	}
}

func Int64Key() Codec[int64] {
	return Codec[int64]{
		Encode: func(v int64) ([]byte, error) { return keycodec.EncodeInt64(v), nil },
		Decode: keycodec.DecodeInt64,
	}
}

func StringKey() Codec[string] {
	return Codec[string]{
		Encode: func(v string) ([]byte, error) { return keycodec.EncodeString(v), nil },
		Decode: keycodec.DecodeString,
	}
}

func BytesKey() Codec[[]byte] {
	return Codec[[]byte]{
		Encode: func(v []byte) ([]byte, error) { return keycodec.EncodeBytes(v), nil },
		Decode: keycodec.DecodeBytes,
	}
}

func UnitKey() Codec[keycodec.Unit] {
	return Codec[keycodec.Unit]{
		Encode: func(v keycodec.Unit) ([]byte, error) { return keycodec.EncodeUnit(v), nil },
		Decode: keycodec.DecodeUnit,
	}
}

func UUIDKey() Codec[uuid.UUID] {
	return Codec[uuid.UUID]{
		Encode: func(v uuid.UUID) ([]byte, error) { return keycodec.EncodeUUID(v), nil },
		Decode: keycodec.DecodeUUID,
	}
}

// OptionalKey lifts a key Codec to Optional(T), per §4.A: None <-> empty,
// Some(x) <-> encode(x), failing at encode time if encode(x) is empty.
func OptionalKey[T any](inner Codec[T]) Codec[*T] {
	return Codec[*T]{
		Encode: func(v *T) ([]byte, error) {
			if v == nil {
				return keycodec.EncodeOptional(false, nil)
			}
			encoded, err := inner.Encode(*v)
			if err != nil {
				return nil, err
			}
			return keycodec.EncodeOptional(true, encoded)
		},
		Decode: func(b []byte) (*T, error) {
			present, rest := keycodec.DecodeOptional(b)
			if !present {
				return nil, nil
			}
			decoded, err := inner.Decode(rest)
			if err != nil {
				return nil, err
			}
			return &decoded, nil
		},
	}
}
