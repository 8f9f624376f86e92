package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashFactory_New(t *testing.T) {
	h := NewSha256Factory().New()
	h.Write([]byte("abc"))
	require.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		hex.EncodeToString(h.Sum(nil)))

	h = NewHashFactory(Sha3_256).New()
	h.Write([]byte("abc"))
	require.Equal(t,
		"3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532",
		hex.EncodeToString(h.Sum(nil)))

	require.Panics(t, func() { NewHashFactory(HashAlgorithm(42)).New() })
}

func TestHashAlgorithm_String(t *testing.T) {
	require.Equal(t, "sha256", Sha256.String())
	require.Equal(t, "sha3-256", Sha3_256.String())
	require.Equal(t, "unknown", HashAlgorithm(42).String())
}

func TestParseHashAlgorithm(t *testing.T) {
	algo, err := ParseHashAlgorithm("sha3-256")
	require.NoError(t, err)
	require.Equal(t, Sha3_256, algo)

	algo, err = ParseHashAlgorithm("sha256")
	require.NoError(t, err)
	require.Equal(t, Sha256, algo)

	_, err = ParseHashAlgorithm("md5")
	require.EqualError(t, err, "unknown hash algorithm 'md5'")
}
