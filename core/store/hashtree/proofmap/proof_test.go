package proofmap

import (
	"encoding/json"
	"fmt"
	"testing"
	"testing/quick"

	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/internal/testing/mem"
	"github.com/stretchr/testify/require"
)

func TestTree_Proof(t *testing.T) {
	for n := 0; n <= 8; n++ {
		tree, expected := makeTree(t, n)

		// Every subset of the keys, with one absent key.
		for mask := 0; mask < 1<<n; mask++ {
			keys := [][]byte{[]byte("absent")}
			for i := 0; i < n; i++ {
				if mask&(1<<i) != 0 {
					keys = append(keys, keyOf(i))
				}
			}

			proof, err := tree.Proof(keys...)
			require.NoError(t, err)

			entries, missing, err := proof.Verify(hasher, expected)
			require.NoError(t, err, fmt.Sprintf("n=%d mask=%b", n, mask))
			require.Len(t, entries, len(keys)-1)
			require.Equal(t, [][]byte{[]byte("absent")}, missing)

			SortEntries(entries)
			for k, entry := range entries {
				require.Equal(t, keys[k+1], entry.Key)
				value, err := tree.Get(entry.Key)
				require.NoError(t, err)
				require.Equal(t, value, entry.Value)
			}
		}
	}
}

func TestTree_Proof_Absent(t *testing.T) {
	tree, expected := makeTree(t, 50)

	keys := make([][]byte, 0, 30)
	for i := 0; i < 30; i++ {
		keys = append(keys, []byte(fmt.Sprintf("absent%d", i)))
	}

	proof, err := tree.Proof(keys...)
	require.NoError(t, err)
	require.Empty(t, proof.Entries)
	require.Len(t, proof.Missing, 30)

	_, missing, err := proof.Verify(hasher, expected)
	require.NoError(t, err)
	require.Len(t, missing, 30)
}

func TestTree_Proof_Duplicates(t *testing.T) {
	tree, expected := makeTree(t, 5)

	proof, err := tree.Proof(keyOf(1), keyOf(1), []byte("x"), []byte("x"))
	require.NoError(t, err)
	require.Len(t, proof.Entries, 1)
	require.Len(t, proof.Missing, 1)

	_, _, err = proof.Verify(hasher, expected)
	require.NoError(t, err)
}

func TestTree_Proof_Empty(t *testing.T) {
	tree := New(mem.NewStorage(), hasher)

	proof, err := tree.Proof([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, Proof{Missing: [][]byte{[]byte("a")}}, proof)

	obj, err := tree.ObjectHash()
	require.NoError(t, err)

	_, missing, err := proof.Verify(hasher, obj)
	require.NoError(t, err)
	require.Len(t, missing, 1)
}

func TestTree_Proof_Single(t *testing.T) {
	tree, expected := makeTree(t, 1)

	proof, err := tree.Proof([]byte("absent"))
	require.NoError(t, err)
	require.Len(t, proof.Nodes, 1)
	require.True(t, proof.Nodes[0].Path.IsLeaf())

	_, _, err = proof.Verify(hasher, expected)
	require.NoError(t, err)

	proof, err = tree.Proof(keyOf(0))
	require.NoError(t, err)
	require.Empty(t, proof.Nodes)

	entries, _, err := proof.Verify(hasher, expected)
	require.NoError(t, err)
	require.Equal(t, []Entry{{Key: keyOf(0), Value: valueOf(0)}}, entries)
}

func TestProof_JSON(t *testing.T) {
	tree, expected := makeTree(t, 10)

	proof, err := tree.Proof(keyOf(3), keyOf(7), []byte("absent"))
	require.NoError(t, err)

	data, err := json.Marshal(proof)
	require.NoError(t, err)

	var decoded Proof
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, proof, decoded)

	_, _, err = decoded.Verify(hasher, expected)
	require.NoError(t, err)
}

func TestProof_Tamper(t *testing.T) {
	tree, expected := makeTree(t, 12)

	proof, err := tree.Proof(keyOf(2), keyOf(9))
	require.NoError(t, err)

	tampered := cloneProof(proof)
	tampered.Entries[0].Value = []byte("forged")
	_, _, err = tampered.Verify(hasher, expected)
	require.True(t, hashtree.IsHashMismatch(err), err)

	tampered = cloneProof(proof)
	tampered.Entries[0].Key = []byte("forged")
	_, _, err = tampered.Verify(hasher, expected)
	require.Error(t, err)

	tampered = cloneProof(proof)
	tampered.Nodes = tampered.Nodes[1:]
	_, _, err = tampered.Verify(hasher, expected)
	require.Error(t, err)

	// Hiding a present key behind its own leaf node does not prove absence.
	tampered = cloneProof(proof)
	tampered.Missing = [][]byte{tampered.Entries[0].Key}
	tampered.Nodes = append(tampered.Nodes, Node{
		Path: tree.PathOf(tampered.Entries[0].Key),
		Hash: hasher.HashLeaf(tampered.Entries[0].Value),
	})
	tampered.Entries = tampered.Entries[1:]
	_, _, err = tampered.Verify(hasher, expected)
	require.True(t, hashtree.IsMalformed(err), err)
	require.Contains(t, err.Error(), "is not proven")

	_, _, err = proof.Verify(hasher, hashtree.Digest{})
	require.True(t, hashtree.IsHashMismatch(err), err)
}

func TestProof_TamperQuick(t *testing.T) {
	tree, expected := makeTree(t, 25)

	f := func(index uint8, bit uint8) bool {
		proof, err := tree.Proof(keyOf(int(index) % 25))
		require.NoError(t, err)

		i := int(bit) % len(proof.Nodes)
		proof.Nodes[i].Hash[bit%hashtree.DigestSize] ^= 1 << (bit % 8)

		_, _, err = proof.Verify(hasher, expected)

		return hashtree.IsHashMismatch(err)
	}

	err := quick.Check(f, nil)
	require.NoError(t, err)
}

func TestProof_Malformed(t *testing.T) {
	tree, expected := makeTree(t, 6)

	proof, err := tree.Proof(keyOf(1), keyOf(4))
	require.NoError(t, err)

	p := cloneProof(proof)
	p.Entries = append(p.Entries, p.Entries[0])
	_, _, err = p.Verify(hasher, expected)
	require.EqualError(t, err, fmt.Sprintf("malformed proof: duplicate key %#x", p.Entries[0].Key))

	p = cloneProof(proof)
	p.Missing = [][]byte{keyOf(1)}
	_, _, err = p.Verify(hasher, expected)
	require.EqualError(t, err, "malformed proof: duplicate key 0x6b657931")

	p = cloneProof(proof)
	p.Nodes = append(p.Nodes, p.Nodes[0])
	_, _, err = p.Verify(hasher, expected)
	require.True(t, hashtree.IsMalformed(err), err)
	require.Contains(t, err.Error(), "duplicate path")

	p = cloneProof(proof)
	p.Nodes = append(p.Nodes, Node{Path: tree.PathOf(keyOf(1)).Prefix(3)})
	_, _, err = p.Verify(hasher, expected)
	require.True(t, hashtree.IsMalformed(err), err)

	p = Proof{Nodes: []Node{{Path: tree.PathOf(keyOf(1)).Prefix(7)}}}
	_, _, err = p.Verify(hasher, expected)
	require.True(t, hashtree.IsMalformed(err), err)
	require.Contains(t, err.Error(), "is not a leaf")
}

func TestTree_RawKeys(t *testing.T) {
	tree := New(mem.NewStorage(), hasher, WithRawKeys())
	require.True(t, tree.IsRaw())
	require.False(t, New(mem.NewStorage(), hasher).IsRaw())

	keys := make([][]byte, 5)
	for i := range keys {
		digest := hasher.Hash(keyOf(i))
		keys[i] = digest.Bytes()

		require.NoError(t, tree.Put(keys[i], valueOf(i)))
	}

	// A raw key is its own path.
	require.Equal(t, hashtree.NewProofPath(hashtree.Digest{0xaa}),
		tree.PathOf(hashtree.Digest{0xaa}.Bytes()))

	obj, err := tree.ObjectHash()
	require.NoError(t, err)

	hashed := New(mem.NewStorage(), hasher)
	for i := range keys {
		require.NoError(t, hashed.Put(keys[i], valueOf(i)))
	}

	hashedObj, err := hashed.ObjectHash()
	require.NoError(t, err)
	require.NotEqual(t, hashedObj, obj)

	absent := hashtree.Digest{0x01}

	proof, err := tree.Proof(keys[1], keys[3], absent.Bytes())
	require.NoError(t, err)

	entries, missing, err := proof.VerifyRaw(hasher, obj)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, [][]byte{absent.Bytes()}, missing)

	_, _, err = proof.Verify(hasher, obj)
	require.Error(t, err)

	err = tree.Put([]byte("short"), []byte{1})
	require.EqualError(t, err, "raw key must be 32 bytes but is 5")

	err = tree.Remove([]byte("short"))
	require.EqualError(t, err, "raw key must be 32 bytes but is 5")

	_, err = tree.Proof([]byte("short"))
	require.EqualError(t, err, "raw key must be 32 bytes but is 5")

	tampered := cloneProof(proof)
	tampered.Missing = append(tampered.Missing, []byte("short"))

	_, _, err = tampered.VerifyRaw(hasher, obj)
	require.True(t, hashtree.IsMalformed(err))
}

// -----------------------------------------------------------------------------
// Utility functions

func keyOf(i int) []byte {
	return []byte(fmt.Sprintf("key%d", i))
}

func valueOf(i int) []byte {
	return []byte(fmt.Sprintf("value%d", i))
}

func makeTree(t *testing.T, n int) (Tree, hashtree.Digest) {
	tree := New(mem.NewStorage(), hasher)

	for i := 0; i < n; i++ {
		require.NoError(t, tree.Put(keyOf(i), valueOf(i)))
	}

	obj, err := tree.ObjectHash()
	require.NoError(t, err)

	return tree, obj
}

func cloneProof(p Proof) Proof {
	clone := Proof{
		Entries: append([]Entry{}, p.Entries...),
		Missing: append([][]byte{}, p.Missing...),
		Nodes:   append([]Node{}, p.Nodes...),
	}

	return clone
}
