// Package index implements the typed indexes on top of the views of the
// merkledb storage engine.
//
// An index is opened from a fork, to read and write it, or from a snapshot or
// a patch, to read it. The keys and the values are converted with the codecs
// given when the index is opened, and the names of the codecs are recorded in
// the metadata so that an index cannot be reopened with different types.
//
// The reads return the value, a boolean that is false when the key is not
// set, and an error when the storage fails or when the stored bytes cannot be
// decoded.
//
// Documentation Last Review: 19.10.2026
//
package index

import (
	"github.com/cth001/exonum/core/store/codec"
	"github.com/cth001/exonum/core/store/merkledb"
	"golang.org/x/xerrors"
)

func open(access merkledb.Access, addr merkledb.Address, typ merkledb.IndexType,
	keyCodec, valueCodec string) (*merkledb.View, error) {

	view, err := access.Open(addr, merkledb.IndexMetadata{
		Type:       typ,
		KeyCodec:   keyCodec,
		ValueCodec: valueCodec,
	})
	if err != nil {
		return nil, xerrors.Errorf("couldn't open %v '%v': %w", typ, addr, err)
	}

	return view, nil
}

func encode[T any](c codec.Codec[T], v T) ([]byte, error) {
	data, err := c.Encode(v)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode %s: %v", c.Name, err)
	}

	return data, nil
}

func decode[T any](c codec.Codec[T], data []byte) (T, error) {
	v, err := c.Decode(data)
	if err != nil {
		return v, xerrors.Errorf("failed to decode %s: %v", c.Name, err)
	}

	return v, nil
}

// read decodes a stored value. A nil value is a key that is not set.
func read[T any](c codec.Codec[T], data []byte, err error) (T, bool, error) {
	var zero T

	if err != nil {
		return zero, false, err
	}

	if data == nil {
		return zero, false, nil
	}

	v, err := decode(c, data)
	if err != nil {
		return zero, false, err
	}

	return v, true, nil
}
