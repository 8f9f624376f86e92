package index

import (
	"github.com/cth001/exonum/core/store/codec"
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/merkledb"
)

// Entry is an index holding an optional single value.
type Entry[V any] struct {
	view  *merkledb.View
	codec codec.Codec[V]
}

// NewEntry opens the entry at the address.
func NewEntry[V any](access merkledb.Access, addr merkledb.Address, vc codec.Codec[V]) (Entry[V], error) {
	view, err := open(access, addr, merkledb.EntryType, "", vc.Name)
	if err != nil {
		return Entry[V]{}, err
	}

	return Entry[V]{view: view, codec: vc}, nil
}

// Get returns the value and true if it is set.
func (e Entry[V]) Get() (V, bool, error) {
	data, err := e.view.Get(nil)

	return read(e.codec, data, err)
}

// Set sets the value.
func (e Entry[V]) Set(value V) error {
	data, err := encode(e.codec, value)
	if err != nil {
		return err
	}

	return e.view.Set(nil, data)
}

// Remove unsets the value.
func (e Entry[V]) Remove() error {
	return e.view.Delete(nil)
}

// ProofEntry is an entry whose object hash is the hash of its value, or the
// zero digest when it is not set.
type ProofEntry[V any] struct {
	Entry[V]
}

// NewProofEntry opens the proof entry at the address.
func NewProofEntry[V any](access merkledb.Access, addr merkledb.Address, vc codec.Codec[V]) (ProofEntry[V], error) {
	view, err := open(access, addr, merkledb.ProofEntryType, "", vc.Name)
	if err != nil {
		return ProofEntry[V]{}, err
	}

	return ProofEntry[V]{Entry: Entry[V]{view: view, codec: vc}}, nil
}

// ObjectHash returns the hash of the entry.
func (e ProofEntry[V]) ObjectHash() (hashtree.Digest, error) {
	return merkledb.ObjectHash(e.view)
}
