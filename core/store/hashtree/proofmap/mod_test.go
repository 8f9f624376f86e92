package proofmap

import (
	"fmt"
	"testing"
	"testing/quick"

	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/internal/testing/mem"
	"github.com/stretchr/testify/require"
)

var hasher = hashtree.DefaultHasher()

func TestKeys(t *testing.T) {
	require.Equal(t, []byte{0, 'a'}, ValueKey([]byte("a")))
	require.Equal(t, []byte{0}, ValuePrefix())
	require.Equal(t, []byte{2}, RootKey())

	key := NodeKey(hashtree.NewProofPath(hashtree.Digest{0xff}).Prefix(3))
	require.Len(t, key, 1+hashtree.DigestSize+2)
	require.Equal(t, byte(1), key[0])
	require.Equal(t, byte(0xe0), key[1])
	require.Equal(t, []byte{0, 3}, key[len(key)-2:])
}

func TestBranch_Encode(t *testing.T) {
	b := branch{
		paths: [2]hashtree.ProofPath{
			hashtree.NewProofPath(hashtree.Digest{0x00}).Prefix(5),
			hashtree.NewProofPath(hashtree.Digest{0x80}),
		},
		hashes: [2]hashtree.Digest{{1}, {2}},
	}

	decoded, err := decodeBranch(b.encode())
	require.NoError(t, err)
	require.Equal(t, b, decoded)

	_, err = decodeBranch([]byte{1, 2})
	require.EqualError(t, err, "branch too short: 2 bytes")

	_, err = decodeBranch(append(b.encode(), 0))
	require.EqualError(t, err, "trailing 1 bytes in branch")

	_, err = decodeBranch(b.encode()[:2*hashtree.DigestSize+1])
	require.Error(t, err)
}

func TestTree_RootHash_Empty(t *testing.T) {
	tree := New(mem.NewStorage(), hasher)

	root, err := tree.RootHash()
	require.NoError(t, err)
	require.True(t, root.IsZero())

	obj, err := tree.ObjectHash()
	require.NoError(t, err)
	require.Equal(t, hasher.HashMapNode(hashtree.Digest{}), obj)
}

func TestTree_RootHash_Single(t *testing.T) {
	tree := New(mem.NewStorage(), hasher)

	require.NoError(t, tree.Put([]byte("a"), []byte("1")))

	root, err := tree.RootHash()
	require.NoError(t, err)

	expected := hasher.HashSingleEntry(tree.PathOf([]byte("a")), hasher.HashLeaf([]byte("1")))
	require.Equal(t, expected, root)
}

func TestTree_RootHash_Pair(t *testing.T) {
	tree := New(mem.NewStorage(), hasher)

	require.NoError(t, tree.Put([]byte("a"), []byte("1")))
	require.NoError(t, tree.Put([]byte("b"), []byte("2")))

	root, err := tree.RootHash()
	require.NoError(t, err)

	pa, pb := tree.PathOf([]byte("a")), tree.PathOf([]byte("b"))
	ha, hb := hasher.HashLeaf([]byte("1")), hasher.HashLeaf([]byte("2"))

	if pa.Compare(pb) > 0 {
		pa, pb = pb, pa
		ha, hb = hb, ha
	}

	require.Equal(t, hasher.HashMapBranch(pa, ha, pb, hb), root)
}

func TestTree_PutGet(t *testing.T) {
	tree := New(mem.NewStorage(), hasher)

	value, err := tree.Get([]byte("a"))
	require.NoError(t, err)
	require.Nil(t, value)

	require.NoError(t, tree.Put([]byte("a"), []byte("1")))
	require.NoError(t, tree.Put([]byte("empty"), nil))

	value, err = tree.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value)

	value, err = tree.Get([]byte("empty"))
	require.NoError(t, err)
	require.Equal(t, []byte{}, value)

	require.NoError(t, tree.Remove([]byte("a")))

	value, err = tree.Get([]byte("a"))
	require.NoError(t, err)
	require.Nil(t, value)
}

func TestTree_OrderIndependence(t *testing.T) {
	r1 := rootOf(t, [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}}, true)
	r2 := rootOf(t, [][2]string{{"c", "3"}, {"b", "2"}, {"a", "1"}}, true)
	r3 := rootOf(t, [][2]string{{"b", "2"}, {"a", "1"}, {"c", "3"}}, false)

	require.Equal(t, r1, r2)
	require.Equal(t, r1, r3)

	f := func(keys [][]byte) bool {
		tree1 := New(mem.NewStorage(), hasher)
		tree2 := New(mem.NewStorage(), hasher)

		for i, key := range keys {
			require.NoError(t, tree1.Put(key, []byte{byte(i)}))
			_, err := tree1.RootHash()
			require.NoError(t, err)
		}

		for i := len(keys) - 1; i >= 0; i-- {
			// Only the last write of a duplicated key counts.
			first := true
			for j := i + 1; j < len(keys); j++ {
				if string(keys[j]) == string(keys[i]) {
					first = false
				}
			}

			if first {
				require.NoError(t, tree2.Put(keys[i], []byte{byte(i)}))
			}
		}

		root1, err := tree1.RootHash()
		require.NoError(t, err)

		root2, err := tree2.RootHash()
		require.NoError(t, err)

		return root1 == root2
	}

	err := quick.Check(f, nil)
	require.NoError(t, err)
}

func TestTree_Overwrite(t *testing.T) {
	tree := New(mem.NewStorage(), hasher)

	for i := 0; i < 10; i++ {
		require.NoError(t, tree.Put([]byte(fmt.Sprintf("key%d", i)), []byte("old")))
	}

	_, err := tree.RootHash()
	require.NoError(t, err)

	for i := 0; i < 10; i += 3 {
		require.NoError(t, tree.Put([]byte(fmt.Sprintf("key%d", i)), []byte("new")))
	}

	root, err := tree.RootHash()
	require.NoError(t, err)

	fresh := New(mem.NewStorage(), hasher)
	for i := 0; i < 10; i++ {
		value := []byte("old")
		if i%3 == 0 {
			value = []byte("new")
		}

		require.NoError(t, fresh.Put([]byte(fmt.Sprintf("key%d", i)), value))
	}

	expected, err := fresh.RootHash()
	require.NoError(t, err)
	require.Equal(t, expected, root)
}

func TestTree_Remove(t *testing.T) {
	storage := mem.NewStorage()
	tree := New(storage, hasher)

	for i := 0; i < 20; i++ {
		require.NoError(t, tree.Put([]byte(fmt.Sprintf("key%d", i)), []byte{byte(i)}))
	}

	_, err := tree.RootHash()
	require.NoError(t, err)

	for i := 0; i < 20; i += 2 {
		require.NoError(t, tree.Remove([]byte(fmt.Sprintf("key%d", i))))
	}

	require.NoError(t, tree.Remove([]byte("unknown")))

	root, err := tree.RootHash()
	require.NoError(t, err)

	fresh := New(mem.NewStorage(), hasher)
	for i := 1; i < 20; i += 2 {
		require.NoError(t, fresh.Put([]byte(fmt.Sprintf("key%d", i)), []byte{byte(i)}))
	}

	expected, err := fresh.RootHash()
	require.NoError(t, err)
	require.Equal(t, expected, root)

	for i := 1; i < 20; i += 2 {
		require.NoError(t, tree.Remove([]byte(fmt.Sprintf("key%d", i))))

		// Flush after every removal to collapse the branches one by one.
		_, err = tree.RootHash()
		require.NoError(t, err)
	}

	root, err = tree.RootHash()
	require.NoError(t, err)
	require.True(t, root.IsZero())
	require.Equal(t, 0, storage.Len())
}

func TestTree_RemoveToSingle(t *testing.T) {
	tree := New(mem.NewStorage(), hasher)

	require.NoError(t, tree.Put([]byte("a"), []byte("1")))
	require.NoError(t, tree.Put([]byte("b"), []byte("2")))
	require.NoError(t, tree.Put([]byte("c"), []byte("3")))

	_, err := tree.RootHash()
	require.NoError(t, err)

	require.NoError(t, tree.Remove([]byte("a")))
	require.NoError(t, tree.Remove([]byte("c")))

	root, err := tree.RootHash()
	require.NoError(t, err)

	expected := hasher.HashSingleEntry(tree.PathOf([]byte("b")), hasher.HashLeaf([]byte("2")))
	require.Equal(t, expected, root)
}

func TestTree_MalformedStorage(t *testing.T) {
	storage := mem.NewStorage()
	tree := New(storage, hasher)

	require.NoError(t, storage.Set(RootKey(), []byte{0xff}))

	_, err := tree.RootHash()
	require.EqualError(t, err, "malformed root: malformed path length")

	require.NoError(t, storage.Set(RootKey(), hashtree.ProofPath{}.Compressed()))

	_, err = tree.RootHash()
	require.EqualError(t, err, "missing node at ProofPath[]")

	require.NoError(t, tree.Put([]byte("a"), []byte("1")))

	_, err = tree.RootHash()
	require.EqualError(t, err, "couldn't update key 0x61: missing node at ProofPath[]")
}

// -----------------------------------------------------------------------------
// Utility functions

func rootOf(t *testing.T, pairs [][2]string, flush bool) hashtree.Digest {
	tree := New(mem.NewStorage(), hasher)

	for _, pair := range pairs {
		require.NoError(t, tree.Put([]byte(pair[0]), []byte(pair[1])))

		if flush {
			require.NoError(t, tree.Flush())
		}
	}

	root, err := tree.RootHash()
	require.NoError(t, err)

	return root
}
