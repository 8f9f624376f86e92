package prooflist

import (
	"github.com/cth001/exonum/core/store/hashtree"
	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"
)

// Entry is a value revealed by a proof.
type Entry struct {
	Index uint64 `json:"index"`
	Value []byte `json:"value"`
}

// Node is the hash of a node of the tree that is not derived from the entries
// of a proof.
type Node struct {
	Height uint8           `json:"height"`
	Index  uint64          `json:"index"`
	Hash   hashtree.Digest `json:"hash"`
}

// Proof reveals some values of a list and the hashes required to recompute the
// root of the tree. A proof without entries only contains the root.
type Proof struct {
	Length  uint64  `json:"length"`
	Entries []Entry `json:"entries"`
	Nodes   []Node  `json:"nodes"`
}

// Proof returns a proof of the values at the indexes. Every index must be in
// range.
func (t Tree) Proof(indexes ...uint64) (Proof, error) {
	sorted := append([]uint64{}, indexes...)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	return t.buildProof(sorted)
}

// RangeProof returns a proof of the values in the range [from, to).
func (t Tree) RangeProof(from, to uint64) (Proof, error) {
	if from > to {
		return Proof{}, xerrors.Errorf("invalid range [%d, %d)", from, to)
	}

	indexes := make([]uint64, 0, to-from)
	for i := from; i < to; i++ {
		indexes = append(indexes, i)
	}

	return t.buildProof(indexes)
}

func (t Tree) buildProof(indexes []uint64) (Proof, error) {
	root, err := t.RootHash()
	if err != nil {
		return Proof{}, err
	}

	length, err := t.Len()
	if err != nil {
		return Proof{}, err
	}

	proof := Proof{Length: length}

	if len(indexes) > 0 && indexes[len(indexes)-1] >= length {
		return proof, xerrors.Errorf("index %d out of bounds for length %d",
			indexes[len(indexes)-1], length)
	}

	if length == 0 {
		return proof, nil
	}

	height := Height(length)

	if len(indexes) == 0 {
		proof.Nodes = []Node{{Height: height, Index: 0, Hash: root}}
		return proof, nil
	}

	proof.Entries = make([]Entry, len(indexes))
	for i, index := range indexes {
		value, err := t.storage.Get(ValueKey(index))
		if err != nil {
			return proof, xerrors.Errorf("failed to read value: %v", err)
		}

		proof.Entries[i] = Entry{Index: index, Value: value}
	}

	known := indexes

	for h := uint8(1); h < height; h++ {
		size := levelSize(length, h)

		for k, i := range known {
			sibling := i ^ 1
			if sibling >= size {
				continue
			}

			if (k > 0 && known[k-1] == sibling) || (k+1 < len(known) && known[k+1] == sibling) {
				continue
			}

			hash, err := t.readNode(h, sibling)
			if err != nil {
				return proof, err
			}

			proof.Nodes = append(proof.Nodes, Node{Height: h, Index: sibling, Hash: hash})
		}

		known = parentsOf(known)
	}

	return proof, nil
}

// Verify checks the proof against the object hash of the list and returns the
// revealed entries. The root is recomputed from the entries and the nodes of
// the proof, which must contain exactly the hashes that cannot be derived.
func (p Proof) Verify(hasher hashtree.Hasher, expected hashtree.Digest) ([]Entry, error) {
	root, err := p.computeRoot(hasher)
	if err != nil {
		return nil, err
	}

	actual := hasher.HashListNode(p.Length, root)
	if actual != expected {
		return nil, hashtree.NewHashMismatch(expected, actual)
	}

	return p.Entries, nil
}

func (p Proof) computeRoot(hasher hashtree.Hasher) (hashtree.Digest, error) {
	if p.Length == 0 {
		if len(p.Entries) > 0 || len(p.Nodes) > 0 {
			return hashtree.Digest{}, hashtree.NewMalformed("non-empty proof of an empty list")
		}

		return hashtree.Digest{}, nil
	}

	height := Height(p.Length)

	for k, e := range p.Entries {
		if e.Index >= p.Length {
			return hashtree.Digest{}, hashtree.NewMalformed("entry index %d out of range", e.Index)
		}

		if k > 0 && e.Index <= p.Entries[k-1].Index {
			return hashtree.Digest{}, hashtree.NewMalformed("entries not in strictly increasing order")
		}
	}

	given := make(map[uint8]map[uint64]hashtree.Digest)

	for _, n := range p.Nodes {
		if n.Height < 1 || n.Height > height {
			return hashtree.Digest{}, hashtree.NewMalformed("node height %d out of range", n.Height)
		}

		if n.Index >= levelSize(p.Length, n.Height) {
			return hashtree.Digest{}, hashtree.NewMalformed("node index %d out of range at height %d",
				n.Index, n.Height)
		}

		level := given[n.Height]
		if level == nil {
			level = make(map[uint64]hashtree.Digest)
			given[n.Height] = level
		}

		_, found := level[n.Index]
		if found {
			return hashtree.Digest{}, hashtree.NewMalformed("duplicate node at height %d index %d",
				n.Height, n.Index)
		}

		level[n.Index] = n.Hash
	}

	if len(p.Entries) == 0 {
		if len(p.Nodes) != 1 || p.Nodes[0].Height != height {
			return hashtree.Digest{}, hashtree.NewMalformed("proof without entries must only contain the root")
		}

		return p.Nodes[0].Hash, nil
	}

	layer := make([]uint64, len(p.Entries))
	hashes := make(map[uint64]hashtree.Digest, len(p.Entries))

	for i, e := range p.Entries {
		layer[i] = e.Index
		hashes[e.Index] = hasher.HashLeaf(e.Value)
	}

	for h := uint8(1); h < height; h++ {
		size := levelSize(p.Length, h)
		level := given[h]

		for _, index := range layer {
			_, found := level[index]
			if found {
				return hashtree.Digest{}, hashtree.NewMalformed("redundant node at height %d index %d", h, index)
			}
		}

		used := 0
		lookup := func(index uint64) (hashtree.Digest, error) {
			hash, found := hashes[index]
			if found {
				return hash, nil
			}

			hash, found = level[index]
			if !found {
				return hash, hashtree.NewMalformed("missing node at height %d index %d", h, index)
			}

			used++

			return hash, nil
		}

		parents := parentsOf(layer)
		next := make(map[uint64]hashtree.Digest, len(parents))

		for _, j := range parents {
			left, err := lookup(2 * j)
			if err != nil {
				return left, err
			}

			if 2*j+1 >= size {
				next[j] = hasher.HashSingleListBranch(left)
				continue
			}

			right, err := lookup(2*j + 1)
			if err != nil {
				return right, err
			}

			next[j] = hasher.HashListBranch(left, right)
		}

		if used != len(level) {
			return hashtree.Digest{}, hashtree.NewMalformed("redundant nodes at height %d", h)
		}

		layer = parents
		hashes = next
	}

	if len(given[height]) > 0 {
		return hashtree.Digest{}, hashtree.NewMalformed("redundant nodes at height %d", height)
	}

	return hashes[0], nil
}
