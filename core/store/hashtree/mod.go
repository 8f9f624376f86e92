// Package hashtree defines the hashing rules shared by the merkelized indexes
// and their proofs.
//
// Every hash is domain separated by a tag prepended to the hashed bytes, so a
// leaf can never be confused with a branch, a list with a map, or a map branch
// with a map entry. The tags and the layouts of the hashed bytes are part of
// the compatibility surface of the databases and of the proofs: changing any
// of them requires a new FormatVersion.
//
// Documentation Last Review: 19.10.2026
//
package hashtree

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/cth001/exonum/core/store"
	"github.com/cth001/exonum/crypto"
	"golang.org/x/xerrors"
)

// FormatVersion is the version of the hashing rules and of the storage layout
// of the merkelized indexes.
const FormatVersion = 1

// DigestSize is the size in bytes of a digest.
const DigestSize = 32

// Tag is the domain separator prepended to the hashed bytes.
type Tag byte

const (
	// TagBlob separates the hash of a value.
	TagBlob Tag = 0x00
	// TagListBranch separates the hash of an interior node of a list tree.
	TagListBranch Tag = 0x01
	// TagListNode separates the object hash of a list.
	TagListNode Tag = 0x02
	// TagMapNode separates the object hash of a map.
	TagMapNode Tag = 0x03
	// TagMapBranch separates the hash of a branch of a map trie, and the root
	// of a map with a single entry.
	TagMapBranch Tag = 0x04
)

// Storage is the key space of a merkelized index. It remembers the keys of the
// values that changed since the hashes were last flushed.
type Storage interface {
	store.Snapshot

	// MarkDirty records that the value of the key changed.
	MarkDirty(key []byte)

	// DirtyKeys returns the keys marked since the last reset, in ascending
	// order.
	DirtyKeys() [][]byte

	// ResetDirty forgets the dirty keys.
	ResetDirty()
}

// Digest is the output of the hash function.
type Digest [DigestSize]byte

// DigestFromBytes returns the digest of the slice which must be exactly
// DigestSize bytes long.
func DigestFromBytes(data []byte) (Digest, error) {
	var d Digest

	if len(data) != DigestSize {
		return d, xerrors.Errorf("invalid digest length %d", len(data))
	}

	copy(d[:], data)

	return d, nil
}

// Bytes returns a copy of the digest as a slice.
func (d Digest) Bytes() []byte {
	return append([]byte{}, d[:]...)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (d Digest) MarshalBinary() ([]byte, error) {
	return d.Bytes(), nil
}

// IsZero returns true when every byte of the digest is zero, which is the
// root of an empty list or map.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// String implements fmt.Stringer. It returns a short hexadecimal string of the
// digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:4])
}

// MarshalText implements encoding.TextMarshaler. It returns the full
// hexadecimal representation.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(d[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	data, err := hex.DecodeString(string(text))
	if err != nil {
		return xerrors.Errorf("malformed hex: %v", err)
	}

	digest, err := DigestFromBytes(data)
	if err != nil {
		return err
	}

	*d = digest

	return nil
}

// Hasher computes the domain separated hashes of the merkelized indexes.
type Hasher struct {
	fac crypto.HashFactory
}

// NewHasher returns a hasher using the hash function of the factory. The
// function must produce DigestSize bytes.
func NewHasher(fac crypto.HashFactory) Hasher {
	return Hasher{fac: fac}
}

// DefaultHasher returns a hasher using SHA-256.
func DefaultHasher() Hasher {
	return NewHasher(crypto.NewSha256Factory())
}

// Hash returns the untagged hash of the data. It is used to derive the paths
// of the keys of a map.
func (h Hasher) Hash(data ...[]byte) Digest {
	fn := h.fac.New()
	for _, d := range data {
		fn.Write(d)
	}

	var digest Digest
	copy(digest[:], fn.Sum(nil))

	return digest
}

func (h Hasher) tagged(tag Tag, data ...[]byte) Digest {
	return h.Hash(append([][]byte{{byte(tag)}}, data...)...)
}

// HashLeaf returns the hash of a value: H(0x00 || value).
func (h Hasher) HashLeaf(value []byte) Digest {
	return h.tagged(TagBlob, value)
}

// HashListBranch returns the hash of an interior node of a list tree with two
// children: H(0x01 || left || right).
func (h Hasher) HashListBranch(left, right Digest) Digest {
	return h.tagged(TagListBranch, left[:], right[:])
}

// HashSingleListBranch returns the hash of the last node of a level of odd
// size, which has no right sibling: H(0x01 || left).
func (h Hasher) HashSingleListBranch(left Digest) Digest {
	return h.tagged(TagListBranch, left[:])
}

// HashListNode returns the object hash of a list of the given length:
// H(0x02 || u64le(length) || root).
func (h Hasher) HashListNode(length uint64, root Digest) Digest {
	buffer := make([]byte, 8)
	binary.LittleEndian.PutUint64(buffer, length)

	return h.tagged(TagListNode, buffer, root[:])
}

// HashMapNode returns the object hash of a map: H(0x03 || root).
func (h Hasher) HashMapNode(root Digest) Digest {
	return h.tagged(TagMapNode, root[:])
}

// HashMapBranch returns the hash of a branch of the trie:
// H(0x04 || lh || rh || compressed(lp) || compressed(rp)).
func (h Hasher) HashMapBranch(lp ProofPath, lh Digest, rp ProofPath, rh Digest) Digest {
	return h.tagged(TagMapBranch, lh[:], rh[:], lp.Compressed(), rp.Compressed())
}

// HashSingleEntry returns the root of a map with a single entry:
// H(0x04 || compressed(path) || leaf).
func (h Hasher) HashSingleEntry(path ProofPath, leaf Digest) Digest {
	return h.tagged(TagMapBranch, path.Compressed(), leaf[:])
}
