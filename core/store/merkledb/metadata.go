package merkledb

import (
	"github.com/cth001/exonum/crypto"
	"golang.org/x/xerrors"
	"google.golang.org/protobuf/encoding/protowire"
)

// FormatVersion is the version of the layout of the database and of the
// domain separation of the hashes. A database with another version cannot be
// opened.
const FormatVersion = 1

const (
	metadataTag byte = 0x00
	dbInfoTag   byte = 0x01
)

// metadataPrefix is the prefix of the pool of metadata. It cannot collide with
// the prefix of an index unless the hash function is broken.
var metadataPrefix = string(make([]byte, PrefixSize))

// IndexMetadata is the description of an index recorded when it is created.
type IndexMetadata struct {
	Type       IndexType
	KeyCodec   string
	ValueCodec string
}

// Check returns an IndexTypeError if the other metadata describes a different
// index.
func (m IndexMetadata) Check(addr Address, other IndexMetadata) error {
	if m != other {
		return &IndexTypeError{Address: addr, Expected: other, Actual: m}
	}

	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler. The fields are encoded as
// a protobuf message.
func (m IndexMetadata) MarshalBinary() ([]byte, error) {
	var data []byte

	data = protowire.AppendTag(data, 1, protowire.VarintType)
	data = protowire.AppendVarint(data, uint64(m.Type))
	data = protowire.AppendTag(data, 2, protowire.BytesType)
	data = protowire.AppendString(data, m.KeyCodec)
	data = protowire.AppendTag(data, 3, protowire.BytesType)
	data = protowire.AppendString(data, m.ValueCodec)

	return data, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *IndexMetadata) UnmarshalBinary(data []byte) error {
	*m = IndexMetadata{}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return xerrors.Errorf("malformed tag: %v", protowire.ParseError(n))
		}

		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return xerrors.Errorf("malformed type: %v", protowire.ParseError(n))
			}

			m.Type = IndexType(v)
			data = data[n:]
		case (num == 2 || num == 3) && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return xerrors.Errorf("malformed codec: %v", protowire.ParseError(n))
			}

			if num == 2 {
				m.KeyCodec = v
			} else {
				m.ValueCodec = v
			}

			data = data[n:]
		default:
			return xerrors.Errorf("unexpected field %d", num)
		}
	}

	_, known := indexTypeNames[m.Type]
	if !known {
		return xerrors.Errorf("unknown index type %d", m.Type)
	}

	return nil
}

// dbInfo is the description of the database written when it is created.
type dbInfo struct {
	Version uint64
	Hash    crypto.HashAlgorithm
}

func (i dbInfo) marshal() []byte {
	var data []byte

	data = protowire.AppendTag(data, 1, protowire.VarintType)
	data = protowire.AppendVarint(data, i.Version)
	data = protowire.AppendTag(data, 2, protowire.BytesType)
	data = protowire.AppendString(data, i.Hash.String())

	return data
}

func unmarshalDBInfo(data []byte) (dbInfo, error) {
	var info dbInfo
	var hashName string

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return info, xerrors.Errorf("malformed tag: %v", protowire.ParseError(n))
		}

		data = data[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			info.Version, n = protowire.ConsumeVarint(data)
		case num == 2 && typ == protowire.BytesType:
			hashName, n = protowire.ConsumeString(data)
		default:
			return info, xerrors.Errorf("unexpected field %d", num)
		}

		if n < 0 {
			return info, xerrors.Errorf("malformed field %d: %v", num, protowire.ParseError(n))
		}

		data = data[n:]
	}

	algo, err := crypto.ParseHashAlgorithm(hashName)
	if err != nil {
		return info, err
	}

	info.Hash = algo

	return info, nil
}
