package proofmap

import (
	"bytes"
	"sort"

	"github.com/cth001/exonum/core/store/hashtree"
	"golang.org/x/xerrors"
)

// Entry is a key and its value revealed by a proof.
type Entry struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

// Node is the hash of a subtree of the trie that holds none of the keys of a
// proof.
type Node struct {
	Path hashtree.ProofPath `json:"path"`
	Hash hashtree.Digest    `json:"hash"`
}

// Proof reveals the values of some keys of a map, or their absence, with the
// hashes required to recompute the root of the trie.
type Proof struct {
	Entries []Entry  `json:"entries"`
	Missing [][]byte `json:"missing"`
	Nodes   []Node   `json:"nodes"`
}

type request struct {
	key  []byte
	path hashtree.ProofPath
}

// Proof returns a proof of the keys. A key that is not set is proven absent.
func (t Tree) Proof(keys ...[]byte) (Proof, error) {
	var proof Proof

	err := t.flushIfDirty()
	if err != nil {
		return proof, err
	}

	seen := make(map[string]struct{}, len(keys))
	reqs := make([]request, 0, len(keys))

	for _, key := range keys {
		_, found := seen[string(key)]
		if found {
			continue
		}

		err = t.checkKey(key)
		if err != nil {
			return proof, err
		}

		seen[string(key)] = struct{}{}
		reqs = append(reqs, request{key: key, path: t.PathOf(key)})
	}

	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].path.Compare(reqs[j].path) < 0
	})

	rootPath, found, err := t.root()
	if err != nil {
		return proof, err
	}

	if !found {
		for _, req := range reqs {
			proof.Missing = append(proof.Missing, req.key)
		}

		return proof, nil
	}

	if rootPath.IsLeaf() {
		revealed := false

		for _, req := range reqs {
			if req.path != rootPath {
				proof.Missing = append(proof.Missing, req.key)
				continue
			}

			err = t.addEntry(&proof, req.key)
			if err != nil {
				return proof, err
			}

			revealed = true
		}

		if !revealed {
			leaf, err := t.readLeaf(rootPath)
			if err != nil {
				return proof, err
			}

			proof.Nodes = append(proof.Nodes, Node{Path: rootPath, Hash: leaf})
		}

		return proof, nil
	}

	under := make([]request, 0, len(reqs))
	for _, req := range reqs {
		if req.path.HasPrefix(rootPath) {
			under = append(under, req)
		} else {
			proof.Missing = append(proof.Missing, req.key)
		}
	}

	err = t.visit(&proof, rootPath, under)
	if err != nil {
		return proof, err
	}

	return proof, nil
}

// visit descends the branch at the path with the requests under it. A child
// that holds none of the requested keys is added to the proof as a node.
func (t Tree) visit(proof *Proof, at hashtree.ProofPath, reqs []request) error {
	b, err := t.readBranch(at)
	if err != nil {
		return err
	}

	for bit := range b.paths {
		child := b.paths[bit]

		below := make([]request, 0, len(reqs))
		for _, req := range reqs {
			if req.path.Bit(at.Len()) != byte(bit) {
				continue
			}

			if req.path.HasPrefix(child) {
				below = append(below, req)
			} else {
				proof.Missing = append(proof.Missing, req.key)
			}
		}

		switch {
		case len(below) == 0:
			proof.Nodes = append(proof.Nodes, Node{Path: child, Hash: b.hashes[bit]})
		case child.IsLeaf():
			err = t.addEntry(proof, below[0].key)
		default:
			err = t.visit(proof, child, below)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func (t Tree) addEntry(proof *Proof, key []byte) error {
	value, err := t.Get(key)
	if err != nil {
		return err
	}

	if value == nil {
		return xerrors.Errorf("missing value of key %#x", key)
	}

	proof.Entries = append(proof.Entries, Entry{Key: key, Value: value})

	return nil
}

type contourItem struct {
	path hashtree.ProofPath
	hash hashtree.Digest
}

// Verify recomputes the root of the trie from the proof and checks that the
// object hash of the map matches the expected one. It returns the revealed
// entries and the keys proven absent.
func (p Proof) Verify(hasher hashtree.Hasher, expected hashtree.Digest) ([]Entry, [][]byte, error) {
	return p.verify(hasher, expected, false)
}

// VerifyRaw is Verify for the proof of a trie of raw keys. A key of another
// size than a digest makes the proof malformed.
func (p Proof) VerifyRaw(hasher hashtree.Hasher, expected hashtree.Digest) ([]Entry, [][]byte, error) {
	return p.verify(hasher, expected, true)
}

func (p Proof) verify(hasher hashtree.Hasher, expected hashtree.Digest, raw bool) ([]Entry, [][]byte, error) {
	root, err := p.computeRoot(hasher, raw)
	if err != nil {
		return nil, nil, err
	}

	actual := hasher.HashMapNode(root)
	if actual != expected {
		return nil, nil, hashtree.NewHashMismatch(expected, actual)
	}

	return p.Entries, p.Missing, nil
}

func (p Proof) computeRoot(hasher hashtree.Hasher, raw bool) (hashtree.Digest, error) {
	keys := make(map[string]struct{}, len(p.Entries)+len(p.Missing))

	items := make([]contourItem, 0, len(p.Entries)+len(p.Nodes))

	for _, node := range p.Nodes {
		items = append(items, contourItem{path: node.Path, hash: node.Hash})
	}

	for _, entry := range p.Entries {
		_, found := keys[string(entry.Key)]
		if found {
			return hashtree.Digest{}, hashtree.NewMalformed("duplicate key %#x", entry.Key)
		}

		if checkKey(raw, entry.Key) != nil {
			return hashtree.Digest{}, hashtree.NewMalformed("invalid raw key %#x", entry.Key)
		}

		keys[string(entry.Key)] = struct{}{}

		items = append(items, contourItem{
			path: pathOf(hasher, raw, entry.Key),
			hash: hasher.HashLeaf(entry.Value),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].path.Compare(items[j].path) < 0
	})

	for i := 1; i < len(items); i++ {
		prev, curr := items[i-1].path, items[i].path

		if prev == curr {
			return hashtree.Digest{}, hashtree.NewMalformed("duplicate path %v", curr)
		}

		if curr.HasPrefix(prev) {
			return hashtree.Digest{}, hashtree.NewMalformed("path %v is embedded in %v", curr, prev)
		}
	}

	for _, key := range p.Missing {
		_, found := keys[string(key)]
		if found {
			return hashtree.Digest{}, hashtree.NewMalformed("duplicate key %#x", key)
		}

		if checkKey(raw, key) != nil {
			return hashtree.Digest{}, hashtree.NewMalformed("invalid raw key %#x", key)
		}

		keys[string(key)] = struct{}{}

		path := pathOf(hasher, raw, key)

		for _, item := range items {
			if path.HasPrefix(item.path) {
				return hashtree.Digest{}, hashtree.NewMalformed("absence of key %#x is not proven", key)
			}
		}
	}

	switch len(items) {
	case 0:
		return hashtree.Digest{}, nil
	case 1:
		if !items[0].path.IsLeaf() {
			return hashtree.Digest{}, hashtree.NewMalformed("single node %v is not a leaf", items[0].path)
		}

		return hasher.HashSingleEntry(items[0].path, items[0].hash), nil
	}

	return foldContour(hasher, items), nil
}

// foldContour computes the root of the trie from the sorted nodes that cover
// it entirely. The contour is the stack of the nodes on the right edge of the
// part of the trie already visited, and two nodes are merged into their branch
// as soon as the next node diverges higher.
func foldContour(hasher hashtree.Hasher, items []contourItem) hashtree.Digest {
	contour := []contourItem{items[0], items[1]}
	lastPrefix := commonPrefix(items[0].path, items[1].path)

	fold := func() {
		right := contour[len(contour)-1]
		left := contour[len(contour)-2]
		contour = contour[:len(contour)-2]

		merged := contourItem{
			path: lastPrefix,
			hash: hasher.HashMapBranch(left.path, left.hash, right.path, right.hash),
		}

		if len(contour) > 0 {
			lastPrefix = commonPrefix(contour[len(contour)-1].path, merged.path)
		}

		contour = append(contour, merged)
	}

	for _, item := range items[2:] {
		newPrefix := commonPrefix(contour[len(contour)-1].path, item.path)

		for len(contour) > 1 && newPrefix.Len() < lastPrefix.Len() {
			fold()
		}

		contour = append(contour, item)
		lastPrefix = newPrefix
	}

	for len(contour) > 1 {
		fold()
	}

	return contour[0].hash
}

func commonPrefix(a, b hashtree.ProofPath) hashtree.ProofPath {
	return a.Prefix(a.CommonPrefixLen(b))
}

// SortEntries orders the entries by key. It is a convenience for the callers
// that compare the entries of a proof.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Key, entries[j].Key) < 0
	})
}
