package types

import (
	"bytes"

	"github.com/cth001/exonum/core/store/hashtree"
	"golang.org/x/xerrors"
	"google.golang.org/protobuf/encoding/protowire"
)

// fieldFunc consumes the value of a field and returns the number of bytes it
// read.
type fieldFunc func(num protowire.Number, typ protowire.Type, data []byte) (int, error)

// consumeFields calls the function for every field of the protobuf message.
func consumeFields(data []byte, fn fieldFunc) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return xerrors.Errorf("malformed tag: %v", protowire.ParseError(n))
		}

		data = data[n:]

		n, err := fn(num, typ, data)
		if err != nil {
			return xerrors.Errorf("field %d: %v", num, err)
		}

		data = data[n:]
	}

	return nil
}

func consumeVarint(typ protowire.Type, data []byte, v *uint64) (int, error) {
	if typ != protowire.VarintType {
		return 0, xerrors.Errorf("unexpected wire type %d", typ)
	}

	value, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}

	*v = value

	return n, nil
}

func consumeBytes(typ protowire.Type, data []byte, v *[]byte) (int, error) {
	if typ != protowire.BytesType {
		return 0, xerrors.Errorf("unexpected wire type %d", typ)
	}

	value, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}

	*v = append([]byte{}, value...)

	return n, nil
}

func consumeDigest(typ protowire.Type, data []byte, v *hashtree.Digest) (int, error) {
	var raw []byte

	n, err := consumeBytes(typ, data, &raw)
	if err != nil {
		return 0, err
	}

	*v, err = hashtree.DigestFromBytes(raw)
	if err != nil {
		return 0, err
	}

	return n, nil
}

func appendVarint(data []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return data
	}

	data = protowire.AppendTag(data, num, protowire.VarintType)

	return protowire.AppendVarint(data, v)
}

func appendBytes(data []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return data
	}

	data = protowire.AppendTag(data, num, protowire.BytesType)

	return protowire.AppendBytes(data, v)
}

func appendDigest(data []byte, num protowire.Number, v hashtree.Digest) []byte {
	data = protowire.AppendTag(data, num, protowire.BytesType)

	return protowire.AppendBytes(data, v[:])
}

// checkCanonical returns an error if the data is not the canonical encoding of
// the decoded message.
func checkCanonical(data []byte, canonical []byte) error {
	if !bytes.Equal(data, canonical) {
		return xerrors.New("non-canonical encoding")
	}

	return nil
}
