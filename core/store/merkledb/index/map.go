package index

import (
	"github.com/cth001/exonum/core/store/codec"
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/hashtree/proofmap"
	"github.com/cth001/exonum/core/store/merkledb"
	"golang.org/x/xerrors"
)

// Map is a map of keys to values. The iterations follow the order of the
// encoded keys.
type Map[K, V any] struct {
	view       *merkledb.View
	keyCodec   codec.Codec[K]
	valueCodec codec.Codec[V]
}

// NewMap opens the map at the address.
func NewMap[K, V any](access merkledb.Access, addr merkledb.Address,
	kc codec.Codec[K], vc codec.Codec[V]) (Map[K, V], error) {

	view, err := open(access, addr, merkledb.MapType, kc.Name, vc.Name)
	if err != nil {
		return Map[K, V]{}, err
	}

	return Map[K, V]{view: view, keyCodec: kc, valueCodec: vc}, nil
}

// Get returns the value of the key and true, or false if the key is not set.
func (m Map[K, V]) Get(key K) (V, bool, error) {
	var zero V

	raw, err := encode(m.keyCodec, key)
	if err != nil {
		return zero, false, err
	}

	data, err := m.view.Get(raw)

	return read(m.valueCodec, data, err)
}

// Contains returns true if the key is set.
func (m Map[K, V]) Contains(key K) (bool, error) {
	raw, err := encode(m.keyCodec, key)
	if err != nil {
		return false, err
	}

	data, err := m.view.Get(raw)

	return data != nil, err
}

// Put sets the value of the key.
func (m Map[K, V]) Put(key K, value V) error {
	raw, err := encode(m.keyCodec, key)
	if err != nil {
		return err
	}

	data, err := encode(m.valueCodec, value)
	if err != nil {
		return err
	}

	return m.view.Set(raw, data)
}

// Remove unsets the key. It does nothing if the key is not set.
func (m Map[K, V]) Remove(key K) error {
	raw, err := encode(m.keyCodec, key)
	if err != nil {
		return err
	}

	return m.view.Delete(raw)
}

// Clear removes every key.
func (m Map[K, V]) Clear() error {
	return m.view.Clear()
}

// ForEach calls the function for every key in ascending order. The iteration
// stops at the first error.
func (m Map[K, V]) ForEach(fn func(key K, value V) error) error {
	return forEachEntry(m.view, nil, m.keyCodec, m.valueCodec, nil, fn)
}

// ForEachFrom calls the function for every key starting from the given one.
func (m Map[K, V]) ForEachFrom(start K, fn func(key K, value V) error) error {
	raw, err := encode(m.keyCodec, start)
	if err != nil {
		return err
	}

	return forEachEntry(m.view, nil, m.keyCodec, m.valueCodec, raw, fn)
}

// ProofMap is a map of keys to values with a Merkle Patricia trie. The
// iterations follow the order of the encoded keys, not of the trie.
type ProofMap[K, V any] struct {
	view       *merkledb.View
	tree       proofmap.Tree
	keyCodec   codec.Codec[K]
	valueCodec codec.Codec[V]
}

// NewProofMap opens the proof map at the address.
func NewProofMap[K, V any](access merkledb.Access, addr merkledb.Address,
	kc codec.Codec[K], vc codec.Codec[V]) (ProofMap[K, V], error) {

	view, err := open(access, addr, merkledb.ProofMapType, kc.Name, vc.Name)
	if err != nil {
		return ProofMap[K, V]{}, err
	}

	m := ProofMap[K, V]{
		view:       view,
		tree:       proofmap.New(view, access.Hasher()),
		keyCodec:   kc,
		valueCodec: vc,
	}

	return m, nil
}

// NewRawProofMap opens the proof map at the address where the encoded keys are
// used as their paths in the trie. The key codec must produce keys of the
// size of a digest, like a public key or a hash.
func NewRawProofMap[K, V any](access merkledb.Access, addr merkledb.Address,
	kc codec.Codec[K], vc codec.Codec[V]) (ProofMap[K, V], error) {

	view, err := open(access, addr, merkledb.RawProofMapType, kc.Name, vc.Name)
	if err != nil {
		return ProofMap[K, V]{}, err
	}

	m := ProofMap[K, V]{
		view:       view,
		tree:       proofmap.New(view, access.Hasher(), proofmap.WithRawKeys()),
		keyCodec:   kc,
		valueCodec: vc,
	}

	return m, nil
}

// Get returns the value of the key and true, or false if the key is not set.
func (m ProofMap[K, V]) Get(key K) (V, bool, error) {
	var zero V

	raw, err := encode(m.keyCodec, key)
	if err != nil {
		return zero, false, err
	}

	data, err := m.tree.Get(raw)

	return read(m.valueCodec, data, err)
}

// Contains returns true if the key is set.
func (m ProofMap[K, V]) Contains(key K) (bool, error) {
	raw, err := encode(m.keyCodec, key)
	if err != nil {
		return false, err
	}

	data, err := m.tree.Get(raw)

	return data != nil, err
}

// Put sets the value of the key.
func (m ProofMap[K, V]) Put(key K, value V) error {
	raw, err := encode(m.keyCodec, key)
	if err != nil {
		return err
	}

	data, err := encode(m.valueCodec, value)
	if err != nil {
		return err
	}

	return m.tree.Put(raw, data)
}

// Remove unsets the key. It does nothing if the key is not set.
func (m ProofMap[K, V]) Remove(key K) error {
	raw, err := encode(m.keyCodec, key)
	if err != nil {
		return err
	}

	return m.tree.Remove(raw)
}

// Clear removes every key.
func (m ProofMap[K, V]) Clear() error {
	return m.view.Clear()
}

// ForEach calls the function for every key in ascending order of the encoded
// keys. The iteration stops at the first error.
func (m ProofMap[K, V]) ForEach(fn func(key K, value V) error) error {
	return forEachEntry(m.view, proofmap.ValuePrefix(), m.keyCodec, m.valueCodec, nil, fn)
}

// ObjectHash returns the hash of the map.
func (m ProofMap[K, V]) ObjectHash() (hashtree.Digest, error) {
	return m.tree.ObjectHash()
}

// GetProof returns the proof of the value of the key, or of its absence.
func (m ProofMap[K, V]) GetProof(key K) (MapProof[K, V], error) {
	return m.GetMultiproof(key)
}

// GetMultiproof returns the proof of the values of the keys. The keys that are
// not set are proven absent.
func (m ProofMap[K, V]) GetMultiproof(keys ...K) (MapProof[K, V], error) {
	raws := make([][]byte, len(keys))

	for i, key := range keys {
		raw, err := encode(m.keyCodec, key)
		if err != nil {
			return MapProof[K, V]{}, err
		}

		raws[i] = raw
	}

	proof, err := m.tree.Proof(raws...)
	if err != nil {
		return MapProof[K, V]{}, xerrors.Errorf("couldn't prove '%v': %v", m.view.Address(), err)
	}

	mp := MapProof[K, V]{
		Proof:      proof,
		keyCodec:   m.keyCodec,
		valueCodec: m.valueCodec,
		raw:        m.tree.IsRaw(),
	}

	return mp, nil
}

// KeySet is a set of keys.
type KeySet[K any] struct {
	view  *merkledb.View
	codec codec.Codec[K]
}

// NewKeySet opens the set at the address.
func NewKeySet[K any](access merkledb.Access, addr merkledb.Address, kc codec.Codec[K]) (KeySet[K], error) {
	view, err := open(access, addr, merkledb.KeySetType, kc.Name, codec.UnitCodec().Name)
	if err != nil {
		return KeySet[K]{}, err
	}

	return KeySet[K]{view: view, codec: kc}, nil
}

// Contains returns true if the key is in the set.
func (s KeySet[K]) Contains(key K) (bool, error) {
	raw, err := encode(s.codec, key)
	if err != nil {
		return false, err
	}

	data, err := s.view.Get(raw)

	return data != nil, err
}

// Insert adds the key to the set.
func (s KeySet[K]) Insert(key K) error {
	raw, err := encode(s.codec, key)
	if err != nil {
		return err
	}

	return s.view.Set(raw, []byte{})
}

// Remove removes the key from the set.
func (s KeySet[K]) Remove(key K) error {
	raw, err := encode(s.codec, key)
	if err != nil {
		return err
	}

	return s.view.Delete(raw)
}

// Clear removes every key.
func (s KeySet[K]) Clear() error {
	return s.view.Clear()
}

// ForEach calls the function for every key in ascending order.
func (s KeySet[K]) ForEach(fn func(key K) error) error {
	return forEachEntry(s.view, nil, s.codec, codec.UnitCodec(), nil,
		func(key K, _ codec.Unit) error {
			return fn(key)
		})
}

// forEachEntry iterates over the keys of the view that start with the prefix,
// which is removed before decoding them.
func forEachEntry[K, V any](view *merkledb.View, prefix []byte, kc codec.Codec[K],
	vc codec.Codec[V], start []byte, fn func(K, V) error) error {

	var seek []byte
	if start != nil {
		seek = append(append([]byte{}, prefix...), start...)
	}

	it := view.Iterator(prefix, seek)
	defer it.Release()

	for it.Next() {
		key, err := decode(kc, it.Key()[len(prefix):])
		if err != nil {
			return err
		}

		value, err := decode(vc, it.Value())
		if err != nil {
			return err
		}

		err = fn(key, value)
		if err != nil {
			return err
		}
	}

	return it.Error()
}
