// Package prooflist implements the Merkle tree of a list.
//
// The leaves of the tree are the hashes of the values and every interior node
// hashes its two children. The last node of a level of odd size has no right
// sibling and is hashed alone. The height of the tree is 1 + ceil(log2(len)),
// the leaves being at height 1 and the root at the top.
//
// The values and the nodes live in the storage of the index:
//
//	0x00 || u64be(index)           value
//	0x01 || height || u64be(index) node hash
//	0x02                           length
//
// The nodes are only recomputed on the paths of the values marked dirty, when
// the hashes are flushed. Reading the root flushes the pending changes.
//
// Documentation Last Review: 19.10.2026
//
package prooflist

import (
	"encoding/binary"
	"math/bits"

	"github.com/cth001/exonum/core/store/hashtree"
	"golang.org/x/xerrors"
)

const (
	valuePrefix  byte = 0x00
	nodePrefix   byte = 0x01
	lengthPrefix byte = 0x02
)

// ValueKey returns the storage key of the value at the index.
func ValueKey(index uint64) []byte {
	key := make([]byte, 9)
	key[0] = valuePrefix
	binary.BigEndian.PutUint64(key[1:], index)

	return key
}

// NodeKey returns the storage key of the node at the height and the index.
func NodeKey(height uint8, index uint64) []byte {
	key := make([]byte, 10)
	key[0] = nodePrefix
	key[1] = height
	binary.BigEndian.PutUint64(key[2:], index)

	return key
}

// LengthKey returns the storage key of the length of the list.
func LengthKey() []byte {
	return []byte{lengthPrefix}
}

// ValuePrefix returns the prefix of the storage keys of the values.
func ValuePrefix() []byte {
	return []byte{valuePrefix}
}

// IndexOf returns the index of the value of the storage key.
func IndexOf(key []byte) (uint64, error) {
	if len(key) != 9 || key[0] != valuePrefix {
		return 0, xerrors.Errorf("invalid value key %#x", key)
	}

	return binary.BigEndian.Uint64(key[1:]), nil
}

// Height returns the height of the tree of a list of the given length. The
// tree of an empty list has no height.
func Height(length uint64) uint8 {
	if length == 0 {
		return 0
	}

	return uint8(1 + bits.Len64(length-1))
}

// levelSize returns the number of nodes at the height of the tree of a list
// of the given length.
func levelSize(length uint64, height uint8) uint64 {
	shift := uint(height - 1)

	size := length >> shift
	if length&(1<<shift-1) != 0 {
		size++
	}

	return size
}

// Tree is the Merkle tree of a list stored in an index.
type Tree struct {
	storage hashtree.Storage
	hasher  hashtree.Hasher
}

// New returns the tree of the list in the storage.
func New(storage hashtree.Storage, hasher hashtree.Hasher) Tree {
	return Tree{storage: storage, hasher: hasher}
}

// Len returns the number of values in the list.
func (t Tree) Len() (uint64, error) {
	data, err := t.storage.Get(LengthKey())
	if err != nil {
		return 0, xerrors.Errorf("failed to read length: %v", err)
	}

	if data == nil {
		return 0, nil
	}

	if len(data) != 8 {
		return 0, xerrors.Errorf("malformed length of %d bytes", len(data))
	}

	return binary.BigEndian.Uint64(data), nil
}

// Get returns the value at the index, or nil if the index is out of range.
func (t Tree) Get(index uint64) ([]byte, error) {
	length, err := t.Len()
	if err != nil {
		return nil, err
	}

	if index >= length {
		return nil, nil
	}

	value, err := t.storage.Get(ValueKey(index))
	if err != nil {
		return nil, xerrors.Errorf("failed to read value: %v", err)
	}

	if value == nil {
		return nil, xerrors.Errorf("missing value at index %d", index)
	}

	return value, nil
}

// Push appends the value at the end of the list and returns its index.
func (t Tree) Push(value []byte) (uint64, error) {
	length, err := t.Len()
	if err != nil {
		return 0, err
	}

	err = t.storage.Set(ValueKey(length), value)
	if err != nil {
		return 0, xerrors.Errorf("failed to write value: %v", err)
	}

	err = t.setLen(length + 1)
	if err != nil {
		return 0, err
	}

	t.storage.MarkDirty(ValueKey(length))

	return length, nil
}

// Set replaces the value at the index. The index must be in range.
func (t Tree) Set(index uint64, value []byte) error {
	length, err := t.Len()
	if err != nil {
		return err
	}

	if index >= length {
		return xerrors.Errorf("index %d out of bounds for length %d", index, length)
	}

	err = t.storage.Set(ValueKey(index), value)
	if err != nil {
		return xerrors.Errorf("failed to write value: %v", err)
	}

	t.storage.MarkDirty(ValueKey(index))

	return nil
}

// Pop removes the last value of the list and returns it, or nil if the list is
// empty.
func (t Tree) Pop() ([]byte, error) {
	length, err := t.Len()
	if err != nil {
		return nil, err
	}

	if length == 0 {
		return nil, nil
	}

	value, err := t.Get(length - 1)
	if err != nil {
		return nil, err
	}

	err = t.Truncate(length - 1)
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Truncate shortens the list to the given length. It does nothing if the list
// is already shorter. The nodes that only cover removed values are deleted.
func (t Tree) Truncate(length uint64) error {
	current, err := t.Len()
	if err != nil {
		return err
	}

	if length >= current {
		return nil
	}

	for i := length; i < current; i++ {
		err = t.storage.Delete(ValueKey(i))
		if err != nil {
			return xerrors.Errorf("failed to delete value: %v", err)
		}
	}

	newHeight := Height(length)

	for h := uint8(1); h <= Height(current); h++ {
		from := uint64(0)
		if h <= newHeight {
			from = levelSize(length, h)
		}

		for i := from; i < levelSize(current, h); i++ {
			err = t.storage.Delete(NodeKey(h, i))
			if err != nil {
				return xerrors.Errorf("failed to delete node: %v", err)
			}
		}
	}

	err = t.setLen(length)
	if err != nil {
		return err
	}

	if length > 0 {
		// The right edge of the tree lost its siblings.
		t.storage.MarkDirty(ValueKey(length - 1))
	}

	return nil
}

// Flush recomputes the nodes on the paths of the dirty values.
func (t Tree) Flush() error {
	length, err := t.Len()
	if err != nil {
		return err
	}

	dirty := t.storage.DirtyKeys()
	t.storage.ResetDirty()

	indexes := make([]uint64, 0, len(dirty))
	for _, key := range dirty {
		index, err := IndexOf(key)
		if err != nil {
			return xerrors.Errorf("dirty key: %v", err)
		}

		if index < length {
			indexes = append(indexes, index)
		}
	}

	if len(indexes) == 0 {
		return nil
	}

	for _, index := range indexes {
		value, err := t.storage.Get(ValueKey(index))
		if err != nil {
			return xerrors.Errorf("failed to read value: %v", err)
		}

		err = t.writeNode(1, index, t.hasher.HashLeaf(value))
		if err != nil {
			return err
		}
	}

	height := Height(length)

	for h := uint8(1); h < height; h++ {
		size := levelSize(length, h)
		parents := parentsOf(indexes)

		for _, j := range parents {
			hash, err := t.hashChildren(h, j, size)
			if err != nil {
				return err
			}

			err = t.writeNode(h+1, j, hash)
			if err != nil {
				return err
			}
		}

		indexes = parents
	}

	return nil
}

// RootHash returns the root of the tree, or the zero digest if the list is
// empty.
func (t Tree) RootHash() (hashtree.Digest, error) {
	err := t.flushIfDirty()
	if err != nil {
		return hashtree.Digest{}, err
	}

	length, err := t.Len()
	if err != nil {
		return hashtree.Digest{}, err
	}

	if length == 0 {
		return hashtree.Digest{}, nil
	}

	return t.readNode(Height(length), 0)
}

// ObjectHash returns the hash of the list that binds the root and the length.
func (t Tree) ObjectHash() (hashtree.Digest, error) {
	root, err := t.RootHash()
	if err != nil {
		return root, err
	}

	length, err := t.Len()
	if err != nil {
		return hashtree.Digest{}, err
	}

	return t.hasher.HashListNode(length, root), nil
}

func (t Tree) flushIfDirty() error {
	if len(t.storage.DirtyKeys()) == 0 {
		return nil
	}

	return t.Flush()
}

func (t Tree) hashChildren(height uint8, parent uint64, size uint64) (hashtree.Digest, error) {
	left, err := t.readNode(height, 2*parent)
	if err != nil {
		return left, err
	}

	if 2*parent+1 >= size {
		return t.hasher.HashSingleListBranch(left), nil
	}

	right, err := t.readNode(height, 2*parent+1)
	if err != nil {
		return right, err
	}

	return t.hasher.HashListBranch(left, right), nil
}

func (t Tree) readNode(height uint8, index uint64) (hashtree.Digest, error) {
	data, err := t.storage.Get(NodeKey(height, index))
	if err != nil {
		return hashtree.Digest{}, xerrors.Errorf("failed to read node: %v", err)
	}

	if data == nil {
		return hashtree.Digest{}, xerrors.Errorf("missing node at height %d index %d", height, index)
	}

	digest, err := hashtree.DigestFromBytes(data)
	if err != nil {
		return digest, xerrors.Errorf("malformed node: %v", err)
	}

	return digest, nil
}

func (t Tree) writeNode(height uint8, index uint64, hash hashtree.Digest) error {
	err := t.storage.Set(NodeKey(height, index), hash.Bytes())
	if err != nil {
		return xerrors.Errorf("failed to write node: %v", err)
	}

	return nil
}

func (t Tree) setLen(length uint64) error {
	var err error
	if length == 0 {
		err = t.storage.Delete(LengthKey())
	} else {
		buffer := make([]byte, 8)
		binary.BigEndian.PutUint64(buffer, length)

		err = t.storage.Set(LengthKey(), buffer)
	}

	if err != nil {
		return xerrors.Errorf("failed to write length: %v", err)
	}

	return nil
}

// parentsOf returns the sorted and unique indexes of the parents of the sorted
// indexes.
func parentsOf(indexes []uint64) []uint64 {
	parents := make([]uint64, 0, len(indexes))

	for _, i := range indexes {
		p := i / 2
		if len(parents) == 0 || parents[len(parents)-1] != p {
			parents = append(parents, p)
		}
	}

	return parents
}
