package prooflist

import (
	"testing"
	"testing/quick"

	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/internal/testing/mem"
	"github.com/stretchr/testify/require"
)

func TestTree_Proof(t *testing.T) {
	for length := 0; length <= 9; length++ {
		tree := makeTree(t, length)
		expected := rootOfTree(t, tree)

		// Every subset of indexes is proven.
		for mask := 0; mask < 1<<length; mask++ {
			var indexes []uint64
			for i := 0; i < length; i++ {
				if mask&(1<<i) != 0 {
					indexes = append(indexes, uint64(i))
				}
			}

			proof, err := tree.Proof(indexes...)
			require.NoError(t, err)

			entries, err := proof.Verify(hasher, expected)
			require.NoError(t, err, "length %d mask %b", length, mask)
			require.Len(t, entries, len(indexes))

			for i, e := range entries {
				require.Equal(t, indexes[i], e.Index)
				require.Equal(t, []byte{byte(e.Index)}, e.Value)
			}
		}
	}
}

func TestTree_Proof_Duplicates(t *testing.T) {
	tree := makeTree(t, 5)

	proof, err := tree.Proof(3, 1, 3)
	require.NoError(t, err)
	require.Len(t, proof.Entries, 2)
	require.Equal(t, uint64(1), proof.Entries[0].Index)

	_, err = tree.Proof(5)
	require.EqualError(t, err, "index 5 out of bounds for length 5")
}

func TestTree_Proof_Empty(t *testing.T) {
	tree := makeTree(t, 0)

	proof, err := tree.Proof()
	require.NoError(t, err)
	require.Equal(t, Proof{}, proof)

	entries, err := proof.Verify(hasher, rootOfTree(t, tree))
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = tree.Proof(0)
	require.EqualError(t, err, "index 0 out of bounds for length 0")

	tree = makeTree(t, 6)

	proof, err = tree.Proof()
	require.NoError(t, err)
	require.Len(t, proof.Nodes, 1)
	require.Equal(t, uint8(4), proof.Nodes[0].Height)

	_, err = proof.Verify(hasher, rootOfTree(t, tree))
	require.NoError(t, err)
}

func TestTree_RangeProof(t *testing.T) {
	tree := makeTree(t, 11)
	expected := rootOfTree(t, tree)

	for from := uint64(0); from <= 11; from++ {
		for to := from; to <= 11; to++ {
			proof, err := tree.RangeProof(from, to)
			require.NoError(t, err)

			entries, err := proof.Verify(hasher, expected)
			require.NoError(t, err)
			require.Len(t, entries, int(to-from))
		}
	}

	_, err := tree.RangeProof(3, 2)
	require.EqualError(t, err, "invalid range [3, 2)")

	_, err = tree.RangeProof(3, 12)
	require.EqualError(t, err, "index 11 out of bounds for length 11")
}

func TestProof_Tamper(t *testing.T) {
	tree := makeTree(t, 13)
	expected := rootOfTree(t, tree)

	proof, err := tree.Proof(2, 9)
	require.NoError(t, err)
	require.NotEmpty(t, proof.Nodes)

	// Flipping any bit of any hash of the path is detected.
	for i := range proof.Nodes {
		for b := 0; b < hashtree.DigestSize; b++ {
			tampered := cloneProof(proof)
			tampered.Nodes[i].Hash[b] ^= 0x01

			_, err := tampered.Verify(hasher, expected)
			require.True(t, hashtree.IsHashMismatch(err), err)
		}
	}

	tampered := cloneProof(proof)
	tampered.Entries[1].Value = []byte("forged")
	_, err = tampered.Verify(hasher, expected)
	require.True(t, hashtree.IsHashMismatch(err))

	tampered = cloneProof(proof)
	tampered.Entries[0].Index = 3
	_, err = tampered.Verify(hasher, expected)
	require.Error(t, err)

	tampered = cloneProof(proof)
	tampered.Length = 14
	_, err = tampered.Verify(hasher, expected)
	require.Error(t, err)

	_, err = proof.Verify(hasher, hashtree.Digest{})
	require.True(t, hashtree.IsHashMismatch(err))
}

func TestProof_TamperQuick(t *testing.T) {
	tree := makeTree(t, 29)
	expected := rootOfTree(t, tree)

	f := func(index uint8, node uint8, bit uint8) bool {
		proof, err := tree.Proof(uint64(index % 29))
		require.NoError(t, err)

		n := int(node) % len(proof.Nodes)
		proof.Nodes[n].Hash[bit%32] ^= 1 << (bit % 8)

		_, err = proof.Verify(hasher, expected)

		return hashtree.IsHashMismatch(err)
	}

	err := quick.Check(f, nil)
	require.NoError(t, err)
}

func TestProof_Malformed(t *testing.T) {
	tree := makeTree(t, 6)
	expected := rootOfTree(t, tree)

	proof, err := tree.Proof(1, 4)
	require.NoError(t, err)

	check := func(p Proof, msg string) {
		_, err := p.Verify(hasher, expected)
		require.EqualError(t, err, "malformed proof: "+msg)
		require.True(t, hashtree.IsMalformed(err))
	}

	p := cloneProof(proof)
	p.Nodes = p.Nodes[1:]
	check(p, "missing node at height 1 index 0")

	p = cloneProof(proof)
	p.Nodes = append(p.Nodes, p.Nodes[0])
	check(p, "duplicate node at height 1 index 0")

	p = cloneProof(proof)
	p.Nodes = append(p.Nodes, Node{Height: 1, Index: 4})
	check(p, "redundant node at height 1 index 4")

	p = cloneProof(proof)
	p.Nodes = append(p.Nodes, Node{Height: 1, Index: 3})
	check(p, "redundant nodes at height 1")

	p = cloneProof(proof)
	p.Nodes = append(p.Nodes, Node{Height: 4, Index: 0})
	check(p, "redundant nodes at height 4")

	p = cloneProof(proof)
	p.Nodes = append(p.Nodes, Node{Height: 5, Index: 0})
	check(p, "node height 5 out of range")

	p = cloneProof(proof)
	p.Nodes = append(p.Nodes, Node{Height: 2, Index: 3})
	check(p, "node index 3 out of range at height 2")

	p = cloneProof(proof)
	p.Entries[0], p.Entries[1] = p.Entries[1], p.Entries[0]
	check(p, "entries not in strictly increasing order")

	p = cloneProof(proof)
	p.Entries[1].Index = 6
	check(p, "entry index 6 out of range")

	check(Proof{Length: 6}, "proof without entries must only contain the root")
	check(Proof{Entries: []Entry{{}}}, "non-empty proof of an empty list")
}

// -----------------------------------------------------------------------------
// Utility functions

func makeTree(t *testing.T, length int) Tree {
	tree := New(mem.NewStorage(), hasher)

	for i := 0; i < length; i++ {
		_, err := tree.Push([]byte{byte(i)})
		require.NoError(t, err)
	}

	return tree
}

func cloneProof(p Proof) Proof {
	clone := Proof{Length: p.Length}
	clone.Entries = append([]Entry{}, p.Entries...)
	clone.Nodes = append([]Node{}, p.Nodes...)

	return clone
}
