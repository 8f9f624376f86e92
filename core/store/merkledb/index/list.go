package index

import (
	"encoding/binary"

	"github.com/cth001/exonum/core/store/codec"
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/hashtree/prooflist"
	"github.com/cth001/exonum/core/store/merkledb"
	"golang.org/x/xerrors"
)

// List is a list of values. It uses the same layout as the values of a proof
// list, without the nodes of the tree.
type List[V any] struct {
	view  *merkledb.View
	codec codec.Codec[V]
}

// NewList opens the list at the address.
func NewList[V any](access merkledb.Access, addr merkledb.Address, vc codec.Codec[V]) (List[V], error) {
	view, err := open(access, addr, merkledb.ListType, codec.Uint64().Name, vc.Name)
	if err != nil {
		return List[V]{}, err
	}

	return List[V]{view: view, codec: vc}, nil
}

// Len returns the number of values.
func (l List[V]) Len() (uint64, error) {
	data, err := l.view.Get(prooflist.LengthKey())
	if err != nil || data == nil {
		return 0, err
	}

	if len(data) != 8 {
		return 0, xerrors.Errorf("malformed length of %d bytes", len(data))
	}

	return binary.BigEndian.Uint64(data), nil
}

// Get returns the value at the index and true, or false if the index is out
// of range.
func (l List[V]) Get(index uint64) (V, bool, error) {
	var zero V

	length, err := l.Len()
	if err != nil || index >= length {
		return zero, false, err
	}

	data, err := l.view.Get(prooflist.ValueKey(index))

	return read(l.codec, data, err)
}

// Last returns the last value and true, or false if the list is empty.
func (l List[V]) Last() (V, bool, error) {
	var zero V

	length, err := l.Len()
	if err != nil || length == 0 {
		return zero, false, err
	}

	return l.Get(length - 1)
}

// Push appends the value and returns its index.
func (l List[V]) Push(value V) (uint64, error) {
	data, err := encode(l.codec, value)
	if err != nil {
		return 0, err
	}

	length, err := l.Len()
	if err != nil {
		return 0, err
	}

	err = l.view.Set(prooflist.ValueKey(length), data)
	if err != nil {
		return 0, err
	}

	return length, l.setLen(length + 1)
}

// Set replaces the value at the index, which must be in range.
func (l List[V]) Set(index uint64, value V) error {
	data, err := encode(l.codec, value)
	if err != nil {
		return err
	}

	length, err := l.Len()
	if err != nil {
		return err
	}

	if index >= length {
		return xerrors.Errorf("index %d out of bounds for length %d", index, length)
	}

	return l.view.Set(prooflist.ValueKey(index), data)
}

// Pop removes the last value and returns it and true, or false if the list
// is empty.
func (l List[V]) Pop() (V, bool, error) {
	value, found, err := l.Last()
	if err != nil || !found {
		return value, found, err
	}

	length, err := l.Len()
	if err != nil {
		return value, false, err
	}

	return value, true, l.Truncate(length - 1)
}

// Truncate shortens the list to the given length. It does nothing if the list
// is already shorter.
func (l List[V]) Truncate(length uint64) error {
	current, err := l.Len()
	if err != nil || length >= current {
		return err
	}

	for i := length; i < current; i++ {
		err = l.view.Delete(prooflist.ValueKey(i))
		if err != nil {
			return err
		}
	}

	return l.setLen(length)
}

// Clear removes every value.
func (l List[V]) Clear() error {
	return l.view.Clear()
}

// ForEach calls the function for every value from the index, in order. The
// iteration stops at the first error.
func (l List[V]) ForEach(from uint64, fn func(index uint64, value V) error) error {
	length, err := l.Len()
	if err != nil {
		return err
	}

	return forEachValue(l.view, l.codec, from, length, fn)
}

func (l List[V]) setLen(length uint64) error {
	if length == 0 {
		return l.view.Delete(prooflist.LengthKey())
	}

	return l.view.Set(prooflist.LengthKey(), binary.BigEndian.AppendUint64(nil, length))
}

// ProofList is a list of values with a Merkle tree. Its object hash commits
// to the values and the length.
type ProofList[V any] struct {
	view  *merkledb.View
	tree  prooflist.Tree
	codec codec.Codec[V]
}

// NewProofList opens the proof list at the address.
func NewProofList[V any](access merkledb.Access, addr merkledb.Address, vc codec.Codec[V]) (ProofList[V], error) {
	view, err := open(access, addr, merkledb.ProofListType, codec.Uint64().Name, vc.Name)
	if err != nil {
		return ProofList[V]{}, err
	}

	list := ProofList[V]{
		view:  view,
		tree:  prooflist.New(view, access.Hasher()),
		codec: vc,
	}

	return list, nil
}

// Len returns the number of values.
func (l ProofList[V]) Len() (uint64, error) {
	return l.tree.Len()
}

// Get returns the value at the index and true, or false if the index is out
// of range.
func (l ProofList[V]) Get(index uint64) (V, bool, error) {
	data, err := l.tree.Get(index)

	return read(l.codec, data, err)
}

// Last returns the last value and true, or false if the list is empty.
func (l ProofList[V]) Last() (V, bool, error) {
	var zero V

	length, err := l.tree.Len()
	if err != nil || length == 0 {
		return zero, false, err
	}

	return l.Get(length - 1)
}

// Push appends the value and returns its index.
func (l ProofList[V]) Push(value V) (uint64, error) {
	data, err := encode(l.codec, value)
	if err != nil {
		return 0, err
	}

	return l.tree.Push(data)
}

// Extend appends the values in order.
func (l ProofList[V]) Extend(values ...V) error {
	for _, value := range values {
		_, err := l.Push(value)
		if err != nil {
			return err
		}
	}

	return nil
}

// Set replaces the value at the index, which must be in range.
func (l ProofList[V]) Set(index uint64, value V) error {
	data, err := encode(l.codec, value)
	if err != nil {
		return err
	}

	return l.tree.Set(index, data)
}

// Pop removes the last value and returns it and true, or false if the list
// is empty.
func (l ProofList[V]) Pop() (V, bool, error) {
	data, err := l.tree.Pop()

	return read(l.codec, data, err)
}

// Truncate shortens the list to the given length.
func (l ProofList[V]) Truncate(length uint64) error {
	return l.tree.Truncate(length)
}

// Clear removes every value.
func (l ProofList[V]) Clear() error {
	return l.view.Clear()
}

// ForEach calls the function for every value from the index, in order. The
// iteration stops at the first error.
func (l ProofList[V]) ForEach(from uint64, fn func(index uint64, value V) error) error {
	length, err := l.tree.Len()
	if err != nil {
		return err
	}

	return forEachValue(l.view, l.codec, from, length, fn)
}

// ObjectHash returns the hash of the list.
func (l ProofList[V]) ObjectHash() (hashtree.Digest, error) {
	return l.tree.ObjectHash()
}

// GetProof returns the proof of the values at the indexes. An index out of
// range is an error.
func (l ProofList[V]) GetProof(indexes ...uint64) (ListProof[V], error) {
	proof, err := l.tree.Proof(indexes...)
	if err != nil {
		return ListProof[V]{}, xerrors.Errorf("couldn't prove '%v': %v", l.view.Address(), err)
	}

	return ListProof[V]{Proof: proof, codec: l.codec}, nil
}

// GetRangeProof returns the proof of the values in [from, to).
func (l ProofList[V]) GetRangeProof(from, to uint64) (ListProof[V], error) {
	proof, err := l.tree.RangeProof(from, to)
	if err != nil {
		return ListProof[V]{}, xerrors.Errorf("couldn't prove '%v': %v", l.view.Address(), err)
	}

	return ListProof[V]{Proof: proof, codec: l.codec}, nil
}

func forEachValue[V any](view *merkledb.View, c codec.Codec[V], from, length uint64,
	fn func(uint64, V) error) error {

	if from >= length {
		return nil
	}

	it := view.Iterator(prooflist.ValuePrefix(), prooflist.ValueKey(from))
	defer it.Release()

	for it.Next() {
		index, err := prooflist.IndexOf(it.Key())
		if err != nil {
			return err
		}

		if index >= length {
			break
		}

		value, err := decode(c, it.Value())
		if err != nil {
			return err
		}

		err = fn(index, value)
		if err != nil {
			return err
		}
	}

	return it.Error()
}
