// Package codec defines the conversion of the typed keys and values of the
// indexes from and to bytes.
//
// The encoding of a key must preserve the order that the iterations of an
// index are expected to follow, as the storage iterates over the raw bytes in
// ascending order. The unsigned integers are therefore encoded in big endian.
//
// Documentation Last Review: 19.10.2026
//
package codec

import (
	"encoding/binary"

	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/serde"
	"golang.org/x/xerrors"
)

// Codec converts a type from and to bytes. The name identifies the codec in the
// metadata of the indexes, so that an index cannot be reopened with a codec of
// a different type.
type Codec[T any] struct {
	Name   string
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

// Bytes returns the identity codec.
func Bytes() Codec[[]byte] {
	return Codec[[]byte]{
		Name: "bytes",
		Encode: func(v []byte) ([]byte, error) {
			return v, nil
		},
		Decode: func(data []byte) ([]byte, error) {
			return append([]byte{}, data...), nil
		},
	}
}

// String returns the codec of a string as its UTF-8 bytes.
func String() Codec[string] {
	return Codec[string]{
		Name: "string",
		Encode: func(v string) ([]byte, error) {
			return []byte(v), nil
		},
		Decode: func(data []byte) (string, error) {
			return string(data), nil
		},
	}
}

// Uint64 returns the codec of an unsigned integer in 8 bytes big endian.
func Uint64() Codec[uint64] {
	return Codec[uint64]{
		Name: "u64",
		Encode: func(v uint64) ([]byte, error) {
			return binary.BigEndian.AppendUint64(nil, v), nil
		},
		Decode: func(data []byte) (uint64, error) {
			if len(data) != 8 {
				return 0, xerrors.Errorf("u64 must be 8 bytes but got %d", len(data))
			}

			return binary.BigEndian.Uint64(data), nil
		},
	}
}

// Uint32 returns the codec of an unsigned integer in 4 bytes big endian.
func Uint32() Codec[uint32] {
	return Codec[uint32]{
		Name: "u32",
		Encode: func(v uint32) ([]byte, error) {
			return binary.BigEndian.AppendUint32(nil, v), nil
		},
		Decode: func(data []byte) (uint32, error) {
			if len(data) != 4 {
				return 0, xerrors.Errorf("u32 must be 4 bytes but got %d", len(data))
			}

			return binary.BigEndian.Uint32(data), nil
		},
	}
}

// Int64 returns the codec of a signed integer. The sign bit is flipped so that
// the negative values are ordered before the positive ones.
func Int64() Codec[int64] {
	return Codec[int64]{
		Name: "i64",
		Encode: func(v int64) ([]byte, error) {
			return binary.BigEndian.AppendUint64(nil, uint64(v)^(1<<63)), nil
		},
		Decode: func(data []byte) (int64, error) {
			if len(data) != 8 {
				return 0, xerrors.Errorf("i64 must be 8 bytes but got %d", len(data))
			}

			return int64(binary.BigEndian.Uint64(data) ^ (1 << 63)), nil
		},
	}
}

// Bool returns the codec of a boolean in a single byte.
func Bool() Codec[bool] {
	return Codec[bool]{
		Name: "bool",
		Encode: func(v bool) ([]byte, error) {
			if v {
				return []byte{1}, nil
			}

			return []byte{0}, nil
		},
		Decode: func(data []byte) (bool, error) {
			if len(data) != 1 || data[0] > 1 {
				return false, xerrors.Errorf("invalid bool %#x", data)
			}

			return data[0] == 1, nil
		},
	}
}

// Digest returns the codec of a digest.
func Digest() Codec[hashtree.Digest] {
	return Codec[hashtree.Digest]{
		Name: "digest",
		Encode: func(v hashtree.Digest) ([]byte, error) {
			return v.Bytes(), nil
		},
		Decode: hashtree.DigestFromBytes,
	}
}

// Unit is the empty value of the sets.
type Unit struct{}

// UnitCodec returns the codec of the empty value, which is stored as an empty
// byte slice.
func UnitCodec() Codec[Unit] {
	return Codec[Unit]{
		Name: "unit",
		Encode: func(Unit) ([]byte, error) {
			return []byte{}, nil
		},
		Decode: func(data []byte) (Unit, error) {
			if len(data) != 0 {
				return Unit{}, xerrors.Errorf("unit must be empty but got %d bytes", len(data))
			}

			return Unit{}, nil
		},
	}
}

// Message returns the codec of a serde message. The message is serialized
// with the format of the context and deserialized by the factory.
func Message[T serde.Message](name string, ctx serde.Context, fac serde.Factory) Codec[T] {
	return Codec[T]{
		Name: name,
		Encode: func(v T) ([]byte, error) {
			data, err := v.Serialize(ctx)
			if err != nil {
				return nil, xerrors.Errorf("failed to serialize: %v", err)
			}

			return data, nil
		},
		Decode: func(data []byte) (T, error) {
			var zero T

			msg, err := fac.Deserialize(ctx, data)
			if err != nil {
				return zero, xerrors.Errorf("failed to deserialize: %v", err)
			}

			v, ok := msg.(T)
			if !ok {
				return zero, xerrors.Errorf("invalid message of type '%T'", msg)
			}

			return v, nil
		},
	}
}

// BinaryMessage is implemented by the types that have a canonical binary
// encoding.
type BinaryMessage interface {
	MarshalBinary() ([]byte, error)
}

// Binary returns the codec of a type with a canonical binary encoding. The
// decode function parses the bytes produced by MarshalBinary.
func Binary[T BinaryMessage](name string, decode func([]byte) (T, error)) Codec[T] {
	return Codec[T]{
		Name: name,
		Encode: func(v T) ([]byte, error) {
			return v.MarshalBinary()
		},
		Decode: decode,
	}
}
