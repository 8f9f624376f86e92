// Package proofmap implements the Merkle Patricia trie of a map.
//
// A key is placed in the trie at the path of its hash, read bit by bit from
// the most significant bit of the first byte. A trie of raw keys uses keys of
// the size of a digest, such as public keys, directly as their paths. A branch
// has exactly two children and stores the absolute paths of both, so the edges
// are compressed: a branch only exists where two keys diverge.
//
// The values and the nodes live in the storage of the index:
//
//	0x00 || key              value
//	0x01 || path.StorageKey  leaf hash or branch
//	0x02                     compressed path of the root node
//
// The trie is only updated for the keys marked dirty, when the hashes are
// flushed. Reading the root flushes the pending changes.
//
// Documentation Last Review: 19.10.2026
//
package proofmap

import (
	"github.com/cth001/exonum/core/store/hashtree"
	"golang.org/x/xerrors"
)

const (
	valuePrefix byte = 0x00
	nodePrefix  byte = 0x01
	rootPrefix  byte = 0x02
)

// ValueKey returns the storage key of the value of the key.
func ValueKey(key []byte) []byte {
	return append([]byte{valuePrefix}, key...)
}

// ValuePrefix returns the prefix of the storage keys of the values.
func ValuePrefix() []byte {
	return []byte{valuePrefix}
}

// NodeKey returns the storage key of the node at the path.
func NodeKey(path hashtree.ProofPath) []byte {
	return append([]byte{nodePrefix}, path.StorageKey()...)
}

// RootKey returns the storage key of the path of the root node.
func RootKey() []byte {
	return []byte{rootPrefix}
}

// branch is an interior node of the trie. The first child is the one with the
// bit 0 after the path of the branch.
type branch struct {
	paths  [2]hashtree.ProofPath
	hashes [2]hashtree.Digest
}

func newBranch(p1 hashtree.ProofPath, h1 hashtree.Digest,
	p2 hashtree.ProofPath, h2 hashtree.Digest, at int) branch {

	if p1.Bit(at) == 0 {
		return branch{paths: [2]hashtree.ProofPath{p1, p2}, hashes: [2]hashtree.Digest{h1, h2}}
	}

	return branch{paths: [2]hashtree.ProofPath{p2, p1}, hashes: [2]hashtree.Digest{h2, h1}}
}

func (b branch) hash(h hashtree.Hasher) hashtree.Digest {
	return h.HashMapBranch(b.paths[0], b.hashes[0], b.paths[1], b.hashes[1])
}

func (b branch) encode() []byte {
	data := make([]byte, 0, 2*hashtree.DigestSize+2*(hashtree.DigestSize+3))
	data = append(data, b.hashes[0][:]...)
	data = append(data, b.hashes[1][:]...)
	data = append(data, b.paths[0].Compressed()...)
	data = append(data, b.paths[1].Compressed()...)

	return data
}

func decodeBranch(data []byte) (branch, error) {
	var b branch

	if len(data) < 2*hashtree.DigestSize {
		return b, xerrors.Errorf("branch too short: %d bytes", len(data))
	}

	copy(b.hashes[0][:], data)
	copy(b.hashes[1][:], data[hashtree.DigestSize:])

	rest := data[2*hashtree.DigestSize:]

	for i := range b.paths {
		path, n, err := hashtree.DecodeCompressed(rest)
		if err != nil {
			return b, xerrors.Errorf("child path: %v", err)
		}

		b.paths[i] = path
		rest = rest[n:]
	}

	if len(rest) != 0 {
		return b, xerrors.Errorf("trailing %d bytes in branch", len(rest))
	}

	return b, nil
}

// Option is the type of the options to create a tree.
type Option func(*Tree)

// WithRawKeys uses the keys as their paths instead of their hashes. The keys
// must be exactly hashtree.DigestSize bytes.
func WithRawKeys() Option {
	return func(t *Tree) {
		t.raw = true
	}
}

// Tree is the Merkle Patricia trie of a map stored in an index.
type Tree struct {
	storage hashtree.Storage
	hasher  hashtree.Hasher
	raw     bool
}

// New returns the trie of the map in the storage.
func New(storage hashtree.Storage, hasher hashtree.Hasher, opts ...Option) Tree {
	t := Tree{storage: storage, hasher: hasher}

	for _, opt := range opts {
		opt(&t)
	}

	return t
}

// IsRaw returns true if the keys are used as their paths.
func (t Tree) IsRaw() bool {
	return t.raw
}

// PathOf returns the path of the key in the trie.
func (t Tree) PathOf(key []byte) hashtree.ProofPath {
	return pathOf(t.hasher, t.raw, key)
}

func (t Tree) checkKey(key []byte) error {
	return checkKey(t.raw, key)
}

func pathOf(hasher hashtree.Hasher, raw bool, key []byte) hashtree.ProofPath {
	if raw {
		var digest hashtree.Digest
		copy(digest[:], key)

		return hashtree.NewProofPath(digest)
	}

	return hashtree.NewProofPath(hasher.Hash(key))
}

func checkKey(raw bool, key []byte) error {
	if raw && len(key) != hashtree.DigestSize {
		return xerrors.Errorf("raw key must be %d bytes but is %d",
			hashtree.DigestSize, len(key))
	}

	return nil
}

// Get returns the value of the key, or nil if it is not set.
func (t Tree) Get(key []byte) ([]byte, error) {
	value, err := t.storage.Get(ValueKey(key))
	if err != nil {
		return nil, xerrors.Errorf("failed to read value: %v", err)
	}

	return value, nil
}

// Put sets the value of the key.
func (t Tree) Put(key, value []byte) error {
	err := t.checkKey(key)
	if err != nil {
		return err
	}

	if value == nil {
		value = []byte{}
	}

	err = t.storage.Set(ValueKey(key), value)
	if err != nil {
		return xerrors.Errorf("failed to write value: %v", err)
	}

	t.storage.MarkDirty(key)

	return nil
}

// Remove deletes the key. It does nothing if the key is not set.
func (t Tree) Remove(key []byte) error {
	err := t.checkKey(key)
	if err != nil {
		return err
	}

	err = t.storage.Delete(ValueKey(key))
	if err != nil {
		return xerrors.Errorf("failed to delete value: %v", err)
	}

	t.storage.MarkDirty(key)

	return nil
}

// Flush updates the trie for the keys marked dirty.
func (t Tree) Flush() error {
	dirty := t.storage.DirtyKeys()
	t.storage.ResetDirty()

	for _, key := range dirty {
		value, err := t.storage.Get(ValueKey(key))
		if err != nil {
			return xerrors.Errorf("failed to read value: %v", err)
		}

		path := t.PathOf(key)

		if value != nil {
			err = t.insert(path, t.hasher.HashLeaf(value))
		} else {
			err = t.remove(path)
		}

		if err != nil {
			return xerrors.Errorf("couldn't update key %#x: %v", key, err)
		}
	}

	return nil
}

// RootHash returns the root of the trie. The root of an empty map is the zero
// digest, and the root of a single entry binds its path and its leaf hash.
func (t Tree) RootHash() (hashtree.Digest, error) {
	err := t.flushIfDirty()
	if err != nil {
		return hashtree.Digest{}, err
	}

	path, found, err := t.root()
	if err != nil || !found {
		return hashtree.Digest{}, err
	}

	if path.IsLeaf() {
		leaf, err := t.readLeaf(path)
		if err != nil {
			return leaf, err
		}

		return t.hasher.HashSingleEntry(path, leaf), nil
	}

	b, err := t.readBranch(path)
	if err != nil {
		return hashtree.Digest{}, err
	}

	return b.hash(t.hasher), nil
}

// ObjectHash returns the hash of the map.
func (t Tree) ObjectHash() (hashtree.Digest, error) {
	root, err := t.RootHash()
	if err != nil {
		return root, err
	}

	return t.hasher.HashMapNode(root), nil
}

func (t Tree) flushIfDirty() error {
	if len(t.storage.DirtyKeys()) == 0 {
		return nil
	}

	return t.Flush()
}

func (t Tree) insert(path hashtree.ProofPath, leaf hashtree.Digest) error {
	rootPath, found, err := t.root()
	if err != nil {
		return err
	}

	if !found {
		err = t.writeLeaf(path, leaf)
		if err != nil {
			return err
		}

		return t.setRoot(path)
	}

	if rootPath.IsLeaf() && rootPath == path {
		return t.writeLeaf(path, leaf)
	}

	common := rootPath.CommonPrefixLen(path)

	if common < rootPath.Len() {
		// The new key diverges above the root, which becomes the sibling of
		// the leaf under a new root branch.
		var rootHash hashtree.Digest
		if rootPath.IsLeaf() {
			rootHash, err = t.readLeaf(rootPath)
		} else {
			var b branch
			b, err = t.readBranch(rootPath)
			rootHash = b.hash(t.hasher)
		}

		if err != nil {
			return err
		}

		err = t.writeLeaf(path, leaf)
		if err != nil {
			return err
		}

		prefix := path.Prefix(common)

		err = t.writeBranch(prefix, newBranch(rootPath, rootHash, path, leaf, common))
		if err != nil {
			return err
		}

		return t.setRoot(prefix)
	}

	_, err = t.insertAt(rootPath, path, leaf)

	return err
}

// insertAt inserts the leaf under the branch at the given path, which is a
// prefix of the path of the leaf, and returns the new hash of the branch.
func (t Tree) insertAt(at, path hashtree.ProofPath, leaf hashtree.Digest) (hashtree.Digest, error) {
	b, err := t.readBranch(at)
	if err != nil {
		return hashtree.Digest{}, err
	}

	bit := path.Bit(at.Len())
	child := b.paths[bit]
	common := child.CommonPrefixLen(path)

	switch {
	case common == child.Len() && child.IsLeaf():
		err = t.writeLeaf(path, leaf)
		b.hashes[bit] = leaf
	case common == child.Len():
		b.hashes[bit], err = t.insertAt(child, path, leaf)
	default:
		err = t.writeLeaf(path, leaf)
		if err != nil {
			return hashtree.Digest{}, err
		}

		prefix := path.Prefix(common)
		nb := newBranch(child, b.hashes[bit], path, leaf, common)

		err = t.writeBranch(prefix, nb)
		b.paths[bit] = prefix
		b.hashes[bit] = nb.hash(t.hasher)
	}

	if err != nil {
		return hashtree.Digest{}, err
	}

	err = t.writeBranch(at, b)
	if err != nil {
		return hashtree.Digest{}, err
	}

	return b.hash(t.hasher), nil
}

type removalKind int

const (
	unchanged removalKind = iota
	updated
	replaced
)

// removal is the outcome of a removal under a branch. A branch left with a
// single child is replaced by it.
type removal struct {
	kind removalKind
	path hashtree.ProofPath
	hash hashtree.Digest
}

func (t Tree) remove(path hashtree.ProofPath) error {
	rootPath, found, err := t.root()
	if err != nil || !found {
		return err
	}

	if rootPath.IsLeaf() {
		if rootPath != path {
			return nil
		}

		err = t.deleteNode(path)
		if err != nil {
			return err
		}

		return t.deleteRoot()
	}

	if !path.HasPrefix(rootPath) {
		return nil
	}

	res, err := t.removeAt(rootPath, path)
	if err != nil {
		return err
	}

	if res.kind == replaced {
		return t.setRoot(res.path)
	}

	return nil
}

func (t Tree) removeAt(at, path hashtree.ProofPath) (removal, error) {
	b, err := t.readBranch(at)
	if err != nil {
		return removal{}, err
	}

	bit := path.Bit(at.Len())
	child := b.paths[bit]

	if !path.HasPrefix(child) {
		return removal{kind: unchanged}, nil
	}

	if child.IsLeaf() {
		err = t.deleteNode(child)
		if err != nil {
			return removal{}, err
		}

		err = t.deleteNode(at)
		if err != nil {
			return removal{}, err
		}

		return removal{kind: replaced, path: b.paths[1-bit], hash: b.hashes[1-bit]}, nil
	}

	res, err := t.removeAt(child, path)
	if err != nil {
		return removal{}, err
	}

	switch res.kind {
	case unchanged:
		return res, nil
	case replaced:
		b.paths[bit] = res.path
	}

	b.hashes[bit] = res.hash

	err = t.writeBranch(at, b)
	if err != nil {
		return removal{}, err
	}

	return removal{kind: updated, hash: b.hash(t.hasher)}, nil
}

func (t Tree) root() (hashtree.ProofPath, bool, error) {
	data, err := t.storage.Get(RootKey())
	if err != nil {
		return hashtree.ProofPath{}, false, xerrors.Errorf("failed to read root: %v", err)
	}

	if data == nil {
		return hashtree.ProofPath{}, false, nil
	}

	path, n, err := hashtree.DecodeCompressed(data)
	if err != nil {
		return path, false, xerrors.Errorf("malformed root: %v", err)
	}

	if n != len(data) {
		return path, false, xerrors.Errorf("malformed root: trailing %d bytes", len(data)-n)
	}

	return path, true, nil
}

func (t Tree) setRoot(path hashtree.ProofPath) error {
	err := t.storage.Set(RootKey(), path.Compressed())
	if err != nil {
		return xerrors.Errorf("failed to write root: %v", err)
	}

	return nil
}

func (t Tree) deleteRoot() error {
	err := t.storage.Delete(RootKey())
	if err != nil {
		return xerrors.Errorf("failed to delete root: %v", err)
	}

	return nil
}

func (t Tree) readNode(path hashtree.ProofPath) ([]byte, error) {
	data, err := t.storage.Get(NodeKey(path))
	if err != nil {
		return nil, xerrors.Errorf("failed to read node: %v", err)
	}

	if data == nil {
		return nil, xerrors.Errorf("missing node at %v", path)
	}

	return data, nil
}

func (t Tree) readLeaf(path hashtree.ProofPath) (hashtree.Digest, error) {
	data, err := t.readNode(path)
	if err != nil {
		return hashtree.Digest{}, err
	}

	digest, err := hashtree.DigestFromBytes(data)
	if err != nil {
		return digest, xerrors.Errorf("malformed leaf: %v", err)
	}

	return digest, nil
}

func (t Tree) readBranch(path hashtree.ProofPath) (branch, error) {
	data, err := t.readNode(path)
	if err != nil {
		return branch{}, err
	}

	b, err := decodeBranch(data)
	if err != nil {
		return b, xerrors.Errorf("malformed branch at %v: %v", path, err)
	}

	return b, nil
}

func (t Tree) writeLeaf(path hashtree.ProofPath, leaf hashtree.Digest) error {
	err := t.storage.Set(NodeKey(path), leaf.Bytes())
	if err != nil {
		return xerrors.Errorf("failed to write leaf: %v", err)
	}

	return nil
}

func (t Tree) writeBranch(path hashtree.ProofPath, b branch) error {
	err := t.storage.Set(NodeKey(path), b.encode())
	if err != nil {
		return xerrors.Errorf("failed to write branch: %v", err)
	}

	return nil
}

func (t Tree) deleteNode(path hashtree.ProofPath) error {
	err := t.storage.Delete(NodeKey(path))
	if err != nil {
		return xerrors.Errorf("failed to delete node: %v", err)
	}

	return nil
}
