package merkledb

import (
	"strings"
	"testing"

	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/stretchr/testify/require"
)

func TestAddress_Validate(t *testing.T) {
	valid := []string{"wallets", "__core.blocks", "a-b_c.d", "A1", strings.Repeat("a", MaxNameLength)}
	for _, name := range valid {
		require.NoError(t, NewAddress(name).Validate(), name)
	}

	err := NewAddress("").Validate()
	require.EqualError(t, err, "empty index name")

	err = NewAddress(strings.Repeat("a", MaxNameLength+1)).Validate()
	require.EqualError(t, err, "index name too long: 256 > 255")

	for _, name := range []string{"a b", "a/b", "é", "a\x00b"} {
		require.Error(t, NewAddress(name).Validate(), name)
	}
}

func TestAddress_Kind(t *testing.T) {
	require.True(t, NewAddress("wallets").IsAggregated())
	require.False(t, NewAddress("wallets").IsSystem())

	require.True(t, NewAddress("__core").IsSystem())
	require.False(t, NewAddress("__core").IsAggregated())

	require.False(t, GroupAddress("history", []byte{1}).IsAggregated())
	require.True(t, GroupAddress("history", nil).IsAggregated())
}

func TestAddress_Prefix(t *testing.T) {
	hasher := hashtree.DefaultHasher()

	prefixes := map[string]struct{}{}

	addrs := []Address{
		NewAddress("a"),
		NewAddress("ab"),
		GroupAddress("a", []byte("b")),
		GroupAddress("a", []byte{1}),
		GroupAddress("a", []byte{1, 0}),
	}

	for _, addr := range addrs {
		prefix := addr.Prefix(hasher)
		require.Len(t, prefix, PrefixSize)

		prefixes[string(prefix)] = struct{}{}
	}

	require.Len(t, prefixes, len(addrs))
	require.Equal(t, NewAddress("a").Prefix(hasher), NewAddress("a").Prefix(hasher))
}

func TestAddress_String(t *testing.T) {
	require.Equal(t, "wallets", NewAddress("wallets").String())
	require.Equal(t, "history[0aff]", GroupAddress("history", []byte{0xa, 0xff}).String())
}

func TestAddress_MetadataKey(t *testing.T) {
	addrs := []Address{
		NewAddress("wallets"),
		GroupAddress("history", []byte{0, 1, 2}),
	}

	for _, addr := range addrs {
		decoded, err := addressOfMetadataKey(addr.metadataKey())
		require.NoError(t, err)
		require.Equal(t, addr, decoded)
	}

	_, err := addressOfMetadataKey([]byte{metadataTag, 'a'})
	require.EqualError(t, err, "invalid metadata key 0x0061")

	_, err = addressOfMetadataKey(nil)
	require.Error(t, err)
}
