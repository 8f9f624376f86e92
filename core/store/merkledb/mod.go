// Package merkledb implements the storage engine of the merkelized indexes.
//
// The database persists the indexes in an ordered key/value database. Each
// index owns a key space prefixed by 16 bytes derived from the hash of its
// address, and a metadata pool records the type of every index so that it
// cannot be reopened with a different one.
//
// The changes are written in a fork, which buffers them in memory on top of a
// snapshot of the database. The fork is converted into a patch, which computes
// the hashes of the merkelized indexes and the state hash, and the patch is
// merged atomically into the database. A snapshot is a point-in-time view that
// is never affected by the merges that follow its creation.
//
// Only one merge runs at a time, and an I/O failure during a merge leaves the
// database in a fatal state where every operation returns an EngineError.
//
// Documentation Last Review: 19.10.2026
//
package merkledb

import (
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/kv"
)

// IndexType is the type of an index, recorded in its metadata.
type IndexType uint8

const (
	// EntryType is an index holding a single value.
	EntryType IndexType = iota + 1
	// ProofEntryType is a single value with a hash.
	ProofEntryType
	// ListType is a list of values.
	ListType
	// ProofListType is a list of values with a Merkle tree.
	ProofListType
	// MapType is a map of keys to values.
	MapType
	// ProofMapType is a map of keys to values with a Merkle Patricia trie.
	ProofMapType
	// KeySetType is a set of keys.
	KeySetType
	// RawProofMapType is a proof map whose keys are used as their paths in the
	// trie.
	RawProofMapType
)

var indexTypeNames = map[IndexType]string{
	EntryType:       "Entry",
	ProofEntryType:  "ProofEntry",
	ListType:        "List",
	ProofListType:   "ProofList",
	MapType:         "Map",
	ProofMapType:    "ProofMap",
	KeySetType:      "KeySet",
	RawProofMapType: "RawProofMap",
}

// String implements fmt.Stringer.
func (t IndexType) String() string {
	name, found := indexTypeNames[t]
	if !found {
		return "Unknown"
	}

	return name
}

// IsMerkelized returns true if the index has an object hash that is
// aggregated into the state hash.
func (t IndexType) IsMerkelized() bool {
	switch t {
	case ProofEntryType, ProofListType, ProofMapType, RawProofMapType:
		return true
	default:
		return false
	}
}

// Access is the interface of the handles that can open the indexes: a
// snapshot, a patch or a fork.
type Access interface {
	// Open returns the view of the index at the address. It returns an
	// IndexTypeError if the index exists with a different type or codecs.
	Open(addr Address, meta IndexMetadata) (*View, error)

	// Hasher returns the hasher of the database.
	Hasher() hashtree.Hasher
}

// Readable is the interface of the access handles that can be read as a whole.
type Readable interface {
	Access

	// StateHash returns the object hash of the state aggregator.
	StateHash() (hashtree.Digest, error)

	// Indexes returns the addresses and the metadata of the indexes in the
	// order of their addresses.
	Indexes() ([]IndexInfo, error)
}

// IndexInfo describes an index that exists in the database.
type IndexInfo struct {
	Address  Address
	Metadata IndexMetadata
}

// source is a read-only layer of the content of the indexes. The keys are
// relative to the prefix of the index.
type source interface {
	get(prefix string, key []byte) ([]byte, error)

	iterator(prefix string, keyPrefix, start []byte) kv.Iterator
}
