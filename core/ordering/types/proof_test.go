package types

import (
	"testing"
	"time"

	"github.com/cth001/exonum/core/store/codec"
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/hashtree/proofmap"
	"github.com/cth001/exonum/core/store/kv/leveldb"
	"github.com/cth001/exonum/core/store/merkledb"
	"github.com/cth001/exonum/core/store/merkledb/index"
	"github.com/cth001/exonum/crypto"
	"github.com/cth001/exonum/internal/testing/fake"
	"github.com/stretchr/testify/require"
)

func TestQuorum(t *testing.T) {
	require.Equal(t, 1, Quorum(1))
	require.Equal(t, 2, Quorum(2))
	require.Equal(t, 3, Quorum(3))
	require.Equal(t, 3, Quorum(4))
	require.Equal(t, 5, Quorum(7))
}

func TestBlockProof_Verify(t *testing.T) {
	signers, validators := makeValidators(4)

	block, err := NewBlock(3, WithStateHash(hashtree.Digest{1}))
	require.NoError(t, err)

	precommits := makePrecommits(t, block, signers, 0, 2, 3)

	proof := NewBlockProof(block, precommits)
	require.Equal(t, block, proof.GetBlock())
	require.Len(t, proof.GetPrecommits(), 3)
	require.NoError(t, proof.Verify(validators))

	err = NewBlockProof(block, precommits[:2]).Verify(validators)
	require.EqualError(t, err, "not enough precommits: 2 < 3")

	err = NewBlockProof(block, append(precommits[:2:2], precommits[1])).Verify(validators)
	require.EqualError(t, err, "precommit 2: duplicate vote of validator 2")

	err = proof.Verify(validators[:2])
	require.EqualError(t, err, "precommit 1: unknown validator 2")

	err = proof.Verify([]crypto.PublicKey{validators[0], validators[0], validators[2]})
	require.EqualError(t, err, "precommit 2: unknown validator 3")

	swapped := []crypto.PublicKey{validators[2], validators[1], validators[0], validators[3]}
	err = proof.Verify(swapped)
	require.EqualError(t, err, "precommit 0: not signed by validator 0")

	// A precommit for another block.
	other, err := NewBlock(3, WithStateHash(hashtree.Digest{2}))
	require.NoError(t, err)

	err = NewBlockProof(other, precommits).Verify(validators)
	require.Error(t, err)
	require.Contains(t, err.Error(), "precommit 0: block hash ")

	// A precommit at another height.
	p := NewPrecommit(1, 4, 0, hashtree.Digest{}, block.GetHash(), time.Now())
	verified, err := p.Sign(signers[1])
	require.NoError(t, err)

	err = NewBlockProof(block, append(precommits[:2:2], verified.Raw())).Verify(validators)
	require.EqualError(t, err, "precommit 2: height 4 != 3")

	// A forged signature.
	raw := precommits[0]
	forged := NewSignedMessage(precommits[1].GetPayload(), raw.GetAuthor(), raw.GetSignature())

	err = NewBlockProof(block, []SignedMessage{forged}).Verify(validators)
	require.Error(t, err)
	require.Contains(t, err.Error(), "precommit 0: invalid signature: ")

	// A signed payload that is not a precommit.
	junk, err := Sign(signers[0], []byte{0xff})
	require.NoError(t, err)

	err = NewBlockProof(block, []SignedMessage{junk.Raw()}).Verify(validators)
	require.Error(t, err)
	require.Contains(t, err.Error(), "precommit 0: malformed precommit: ")
}

func TestBlockProof_Serialize(t *testing.T) {
	proof := NewBlockProof(Block{}, nil)

	data, err := proof.Serialize(fake.NewContext())
	require.NoError(t, err)
	require.Equal(t, fake.GetFakeFormatValue(), data)

	_, err = proof.Serialize(fake.NewBadContext())
	require.EqualError(t, err, fake.Err("encoding failed"))

	fac := NewBlockProofFactory(NewBlockFactory(), fake.MessageFactory{})

	msg, err := fac.Deserialize(fake.NewContext(), data)
	require.NoError(t, err)
	require.Equal(t, BlockProof{}, msg)

	_, err = fac.Deserialize(fake.NewBadContext(), data)
	require.EqualError(t, err, fake.Err("decoding failed"))
}

func TestIndexProof_Verify(t *testing.T) {
	signers, validators := makeValidators(1)

	db := newDB(t)

	fork, err := db.Fork()
	require.NoError(t, err)

	wallets, err := index.NewProofMap(fork, merkledb.NewAddress("wallets"), codec.String(), codec.Uint64())
	require.NoError(t, err)
	require.NoError(t, wallets.Put("alice", 10))

	history, err := index.NewProofList(fork, merkledb.NewAddress("history"), codec.String())
	require.NoError(t, err)
	require.NoError(t, history.Extend("a", "b"))

	walletsHash, err := wallets.ObjectHash()
	require.NoError(t, err)

	require.NoError(t, db.Merge(fork))

	state, err := db.StateHash()
	require.NoError(t, err)

	block, err := NewBlock(1, WithStateHash(state))
	require.NoError(t, err)

	bp := NewBlockProof(block, makePrecommits(t, block, signers, 0))

	snap, err := db.Snapshot()
	require.NoError(t, err)
	defer snap.Release()

	aggregator, err := index.NewProofMap(snap, merkledb.NewAddress(merkledb.AggregatorName),
		codec.String(), codec.Digest())
	require.NoError(t, err)

	mp, err := aggregator.GetProof("wallets")
	require.NoError(t, err)

	proof := NewIndexProof(bp, mp.Proof)
	require.Equal(t, bp, proof.GetBlockProof())
	require.Equal(t, mp.Proof, proof.GetIndexProof())

	name, hash, err := proof.Verify(validators, db.Hasher())
	require.NoError(t, err)
	require.Equal(t, "wallets", name)
	require.Equal(t, walletsHash, hash)

	_, _, err = proof.Verify(nil, db.Hasher())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid block proof: ")

	// The block does not endorse the state.
	other, err := NewBlock(1, WithStateHash(hashtree.Digest{1}))
	require.NoError(t, err)

	proof = NewIndexProof(NewBlockProof(other, makePrecommits(t, other, signers, 0)), mp.Proof)
	_, _, err = proof.Verify(validators, db.Hasher())
	require.Error(t, err)
	require.True(t, hashtree.IsHashMismatch(err))
	require.Contains(t, err.Error(), "invalid index proof: ")

	mp, err = aggregator.GetProof("unknown")
	require.NoError(t, err)

	_, _, err = NewIndexProof(bp, mp.Proof).Verify(validators, db.Hasher())
	require.EqualError(t, err, "index 'unknown' is not in the state")

	mp, err = aggregator.GetMultiproof("wallets", "history")
	require.NoError(t, err)

	_, _, err = NewIndexProof(bp, mp.Proof).Verify(validators, db.Hasher())
	require.EqualError(t, err, "expected one index, got 2")
}

func TestIndexProof_Serialize(t *testing.T) {
	proof := NewIndexProof(BlockProof{}, proofmap.Proof{})

	data, err := proof.Serialize(fake.NewContext())
	require.NoError(t, err)
	require.Equal(t, fake.GetFakeFormatValue(), data)

	_, err = proof.Serialize(fake.NewBadContext())
	require.EqualError(t, err, fake.Err("encoding failed"))

	fac := NewIndexProofFactory(fake.MessageFactory{})

	msg, err := fac.Deserialize(fake.NewContext(), data)
	require.NoError(t, err)
	require.Equal(t, IndexProof{}, msg)

	_, err = fac.Deserialize(fake.NewBadContext(), data)
	require.EqualError(t, err, fake.Err("decoding failed"))
}

// -----------------------------------------------------------------------------
// Utility functions

func makePrecommits(t *testing.T, block Block, signers []crypto.Signer, ids ...int) []SignedMessage {
	msgs := make([]SignedMessage, len(ids))

	for i, id := range ids {
		p := NewPrecommit(ValidatorID(id), block.GetHeight(), 1,
			hashtree.Digest{}, block.GetHash(), time.Unix(1600000000, 0))

		verified, err := p.Sign(signers[id])
		require.NoError(t, err)

		msgs[i] = verified.Raw()
	}

	return msgs
}

func newDB(t *testing.T) *merkledb.Database {
	kvdb, err := leveldb.NewInMemory()
	require.NoError(t, err)

	db, err := merkledb.NewDatabase(kvdb)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}
