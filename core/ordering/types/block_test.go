package types

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/crypto"
	"github.com/cth001/exonum/internal/testing/fake"
	"github.com/stretchr/testify/require"
)

func TestBlock_New(t *testing.T) {
	block, err := NewBlock(5,
		WithProposer(2),
		WithTransactions(3, hashtree.Digest{1}),
		WithPrevHash(hashtree.Digest{2}),
		WithStateHash(hashtree.Digest{3}),
		WithErrorHash(hashtree.Digest{4}))
	require.NoError(t, err)

	require.Equal(t, ValidatorID(2), block.GetProposer())
	require.Equal(t, uint64(5), block.GetHeight())
	require.Equal(t, uint32(3), block.GetTxCount())
	require.Equal(t, hashtree.Digest{1}, block.GetTxHash())
	require.Equal(t, hashtree.Digest{2}, block.GetPrevHash())
	require.Equal(t, hashtree.Digest{3}, block.GetStateHash())
	require.Equal(t, hashtree.Digest{4}, block.GetErrorHash())

	data, err := block.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, hashtree.Digest(sha256.Sum256(data)), block.GetHash())

	other, err := NewBlock(5,
		WithProposer(2),
		WithTransactions(3, hashtree.Digest{1}),
		WithPrevHash(hashtree.Digest{2}),
		WithStateHash(hashtree.Digest{3}),
		WithErrorHash(hashtree.Digest{4}),
		WithHashFactory(crypto.NewHashFactory(crypto.Sha3_256)))
	require.NoError(t, err)
	require.NotEqual(t, block.GetHash(), other.GetHash())

	_, err = NewBlock(0, WithHashFactory(fake.NewHashFactory(fake.NewBadHash())))
	require.EqualError(t, err, fake.Err("fingerprint failed: couldn't write header"))
}

func TestBlock_Binary(t *testing.T) {
	block, err := NewBlock(42, WithStateHash(hashtree.Digest{0xaa}))
	require.NoError(t, err)

	data, err := block.MarshalBinary()
	require.NoError(t, err)

	buffer := new(bytes.Buffer)
	require.NoError(t, block.Fingerprint(buffer))
	require.Equal(t, data, buffer.Bytes())

	decoded, err := NewBlockFactory().BlockOf(data)
	require.NoError(t, err)
	require.Equal(t, block, decoded)

	sha3 := NewBlockFactory(crypto.NewHashFactory(crypto.Sha3_256))

	decoded, err = sha3.BlockOf(data)
	require.NoError(t, err)
	require.Equal(t, block.GetStateHash(), decoded.GetStateHash())
	require.NotEqual(t, block.GetHash(), decoded.GetHash())

	// The digests are mandatory.
	_, err = NewBlockFactory().BlockOf([]byte{0x10, 0x01})
	require.EqualError(t, err, "malformed block: non-canonical encoding")

	_, err = NewBlockFactory().BlockOf([]byte{0x08, 0x80, 0x80, 0x04})
	require.EqualError(t, err, "malformed block: value out of range")

	_, err = NewBlockFactory().BlockOf([]byte{0x10, 0x01, 0x10})
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed block: field 2: ")

	_, err = NewBlockFactory().BlockOf([]byte{0x42, 0x00})
	require.EqualError(t, err, "malformed block: field 8: unknown field")

	_, err = NewBlockFactory().BlockOf([]byte{0x12, 0x00})
	require.EqualError(t, err, "malformed block: field 2: unexpected wire type 2")
}

func TestBlock_Serialize(t *testing.T) {
	block, err := NewBlock(1)
	require.NoError(t, err)

	data, err := block.Serialize(fake.NewContext())
	require.NoError(t, err)
	require.Equal(t, fake.GetFakeFormatValue(), data)

	_, err = block.Serialize(fake.NewBadContext())
	require.EqualError(t, err, fake.Err("encoding failed"))
}

func TestBlockFactory_Deserialize(t *testing.T) {
	fac := NewBlockFactory()
	require.NotNil(t, fac.HashFactory())

	msg, err := fac.Deserialize(fake.NewContext(), nil)
	require.NoError(t, err)
	require.Equal(t, Block{}, msg)

	_, err = fac.Deserialize(fake.NewBadContext(), nil)
	require.EqualError(t, err, fake.Err("decoding failed"))
}
