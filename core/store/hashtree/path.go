package hashtree

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/bits"

	"golang.org/x/xerrors"
)

// PathBits is the number of bits of the path of a key in a map.
const PathBits = DigestSize * 8

// storageKeySize is the size of the key of a trie node in the storage.
const storageKeySize = DigestSize + 2

// ProofPath is a prefix of the path of a key in the trie of a map. The bits are
// read from the most significant bit of the first byte. The bits after the
// length are always zero.
type ProofPath struct {
	bits   Digest
	length int
}

// NewProofPath returns the full path of a key, which is the digest of the key.
func NewProofPath(key Digest) ProofPath {
	return ProofPath{bits: key, length: PathBits}
}

// Len returns the number of bits of the path.
func (p ProofPath) Len() int {
	return p.length
}

// IsLeaf returns true when the path is the full path of a key.
func (p ProofPath) IsLeaf() bool {
	return p.length == PathBits
}

// Bit returns the bit at the given position.
func (p ProofPath) Bit(i int) byte {
	return (p.bits[i/8] >> (7 - uint(i%8))) & 1
}

// Prefix returns the first n bits of the path.
func (p ProofPath) Prefix(n int) ProofPath {
	if n > p.length {
		n = p.length
	}

	prefix := ProofPath{length: n}
	copy(prefix.bits[:n/8], p.bits[:n/8])

	if n%8 != 0 {
		prefix.bits[n/8] = p.bits[n/8] & (0xff << (8 - uint(n%8)))
	}

	return prefix
}

// CommonPrefixLen returns the number of leading bits shared by both paths.
func (p ProofPath) CommonPrefixLen(other ProofPath) int {
	limit := p.length
	if other.length < limit {
		limit = other.length
	}

	for i := 0; i*8 < limit; i++ {
		diff := p.bits[i] ^ other.bits[i]
		if diff != 0 {
			n := i*8 + bits.LeadingZeros8(diff)
			if n < limit {
				return n
			}

			return limit
		}
	}

	return limit
}

// HasPrefix returns true when the other path is a prefix of this path, or is
// equal to it.
func (p ProofPath) HasPrefix(other ProofPath) bool {
	return other.length <= p.length && p.CommonPrefixLen(other) == other.length
}

// Equal returns true when both paths are the same.
func (p ProofPath) Equal(other ProofPath) bool {
	return p == other
}

// Compare returns -1, 0 or 1 depending on the order of the paths. A path is
// ordered before its extensions, and otherwise by the first differing bit.
func (p ProofPath) Compare(other ProofPath) int {
	n := p.CommonPrefixLen(other)

	switch {
	case n == p.length && n == other.length:
		return 0
	case n == p.length:
		return -1
	case n == other.length:
		return 1
	case p.Bit(n) < other.Bit(n):
		return -1
	default:
		return 1
	}
}

// Compressed returns the canonical encoding of the path that is hashed in the
// branches of the trie: uvarint(length) followed by ceil(length/8) bytes.
func (p ProofPath) Compressed() []byte {
	size := (p.length + 7) / 8

	buffer := make([]byte, binary.MaxVarintLen16, binary.MaxVarintLen16+size)
	n := binary.PutUvarint(buffer, uint64(p.length))

	return append(buffer[:n], p.bits[:size]...)
}

// DecodeCompressed reads a compressed path at the beginning of the data and
// returns it with the number of bytes consumed.
func DecodeCompressed(data []byte) (ProofPath, int, error) {
	length, n := binary.Uvarint(data)
	if n <= 0 {
		return ProofPath{}, 0, xerrors.New("malformed path length")
	}

	if length > PathBits {
		return ProofPath{}, 0, xerrors.Errorf("path length %d out of range", length)
	}

	size := (int(length) + 7) / 8
	if len(data) < n+size {
		return ProofPath{}, 0, xerrors.Errorf("path truncated: %d < %d", len(data)-n, size)
	}

	path := ProofPath{length: int(length)}
	copy(path.bits[:], data[n:n+size])

	if path != path.Prefix(path.length) {
		return ProofPath{}, 0, xerrors.New("non-zero bits after the path")
	}

	return path, n + size, nil
}

// MarshalText implements encoding.TextMarshaler. It returns the hexadecimal
// string of the compressed path.
func (p ProofPath) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(p.Compressed())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ProofPath) UnmarshalText(text []byte) error {
	data, err := hex.DecodeString(string(text))
	if err != nil {
		return xerrors.Errorf("malformed hex: %v", err)
	}

	path, n, err := DecodeCompressed(data)
	if err != nil {
		return err
	}

	if n != len(data) {
		return xerrors.Errorf("trailing %d bytes after the path", len(data)-n)
	}

	*p = path

	return nil
}

// StorageKey returns the key of the node of the path in the storage of the
// trie. It is the bytes of the path followed by the length in big endian.
func (p ProofPath) StorageKey() []byte {
	key := make([]byte, storageKeySize)
	copy(key, p.bits[:])
	binary.BigEndian.PutUint16(key[DigestSize:], uint16(p.length))

	return key
}

// String implements fmt.Stringer. It prints the bits of the path.
func (p ProofPath) String() string {
	buffer := make([]byte, p.length)
	for i := range buffer {
		buffer[i] = '0' + p.Bit(i)
	}

	return fmt.Sprintf("ProofPath[%s]", buffer)
}
