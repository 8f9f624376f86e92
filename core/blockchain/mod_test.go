package blockchain

import (
	"testing"
	"time"

	"github.com/cth001/exonum/core/ordering/types"
	"github.com/cth001/exonum/core/store/codec"
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/kv/leveldb"
	"github.com/cth001/exonum/core/store/merkledb"
	"github.com/cth001/exonum/core/store/merkledb/index"
	"github.com/cth001/exonum/crypto"
	"github.com/cth001/exonum/crypto/ed25519"
	"github.com/cth001/exonum/internal/testing/fake"
	"github.com/stretchr/testify/require"
)

func TestBlockchain_CreateGenesis(t *testing.T) {
	db := newDB(t)
	bc := New(db)

	signers, keys := makeValidators(4)

	_, err := bc.CreateGenesis(nil)
	require.EqualError(t, err, "no validator")

	_, err = bc.LastBlock()
	require.Equal(t, ErrNoBlock, err)

	genesis, err := bc.CreateGenesis(keys, types.WithProposer(2))
	require.NoError(t, err)
	require.Equal(t, uint64(0), genesis.GetHeight())
	require.Equal(t, types.ValidatorID(2), genesis.GetProposer())
	require.True(t, genesis.GetPrevHash().IsZero())

	state, err := db.StateHash()
	require.NoError(t, err)
	require.Equal(t, state, genesis.GetStateHash())

	last, err := bc.LastBlock()
	require.NoError(t, err)
	require.Equal(t, genesis, last)

	validators, err := bc.Validators()
	require.NoError(t, err)
	require.Len(t, validators, len(signers))

	for i, key := range validators {
		require.True(t, keys[i].Equal(key))
	}

	_, err = bc.CreateGenesis(keys)
	require.EqualError(t, err, "genesis block already exists")

	length, err := bc.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(1), length)
}

func TestBlockchain_Commit(t *testing.T) {
	db := newDB(t)
	bc := New(db)

	signers, keys := makeValidators(4)

	genesis, err := bc.CreateGenesis(keys)
	require.NoError(t, err)

	fork, err := db.Fork()
	require.NoError(t, err)

	wallets := openWallets(t, fork)
	require.NoError(t, wallets.Put("alice", []byte{1}))

	bp, err := bc.CreateBlock(fork,
		types.WithProposer(1),
		types.WithTransactions(1, hashtree.Digest{1}),
		types.WithPrevHash(hashtree.Digest{0xff}))
	require.NoError(t, err)

	block := bp.GetBlock()
	require.Equal(t, uint64(1), block.GetHeight())
	require.Equal(t, genesis.GetHash(), block.GetPrevHash())
	require.Equal(t, uint32(1), block.GetTxCount())

	err = bc.Commit(bp, makePrecommits(t, block, signers, 0, 1))
	require.EqualError(t, err, "invalid precommits: not enough precommits: 2 < 3")

	err = bc.Commit(bp, makePrecommits(t, block, signers, 0, 1, 3))
	require.NoError(t, err)

	state, err := db.StateHash()
	require.NoError(t, err)
	require.Equal(t, state, block.GetStateHash())
	require.NotEqual(t, genesis.GetStateHash(), state)

	last, err := bc.LastBlock()
	require.NoError(t, err)
	require.Equal(t, block, last)

	found, err := bc.GetBlock(0)
	require.NoError(t, err)
	require.Equal(t, genesis, found)

	_, err = bc.GetBlock(2)
	require.Equal(t, ErrNoBlock, err)

	err = bc.Commit(BlockPatch{}, nil)
	require.EqualError(t, err, "missing patch")
}

func TestBlockchain_Commit_Stale(t *testing.T) {
	db := newDB(t)
	bc := New(db)

	signers, keys := makeValidators(1)

	_, err := bc.CreateGenesis(keys)
	require.NoError(t, err)

	first, err := db.Fork()
	require.NoError(t, err)

	second, err := db.Fork()
	require.NoError(t, err)

	bp1, err := bc.CreateBlock(first)
	require.NoError(t, err)

	bp2, err := bc.CreateBlock(second)
	require.NoError(t, err)

	require.Equal(t, bp1.GetBlock().GetHeight(), bp2.GetBlock().GetHeight())

	err = bc.Commit(bp1, makePrecommits(t, bp1.GetBlock(), signers, 0))
	require.NoError(t, err)

	err = bc.Commit(bp2, makePrecommits(t, bp2.GetBlock(), signers, 0))
	require.Error(t, err)
	require.Contains(t, err.Error(), "stale patch")

	length, err := bc.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(2), length)
}

func TestBlockchain_BlockProof(t *testing.T) {
	db := newDB(t)
	bc := New(db)

	signers, keys := makeValidators(3)

	_, err := bc.CreateGenesis(keys)
	require.NoError(t, err)

	block := commitBlock(t, db, bc, signers, "bob")

	proof, err := bc.BlockProof(1)
	require.NoError(t, err)
	require.Equal(t, block, proof.GetBlock())
	require.Len(t, proof.GetPrecommits(), len(signers))
	require.NoError(t, proof.Verify(keys))

	genesis, err := bc.BlockProof(0)
	require.NoError(t, err)
	require.Empty(t, genesis.GetPrecommits())

	_, err = bc.BlockProof(5)
	require.Equal(t, ErrNoBlock, err)
}

func TestBlockchain_IndexProof(t *testing.T) {
	db := newDB(t)

	logger, check := fake.CheckLog("state differs from the last block")

	bc := New(db, WithLogger(logger))

	_, err := bc.IndexProof("wallets")
	require.Equal(t, ErrNoBlock, err)

	signers, keys := makeValidators(4)

	_, err = bc.CreateGenesis(keys)
	require.NoError(t, err)

	_, err = bc.IndexProof("wallets")
	require.EqualError(t, err, "index 'wallets' is not in the state")

	commitBlock(t, db, bc, signers, "alice")

	proof, err := bc.IndexProof("wallets")
	require.NoError(t, err)

	snap, err := db.Snapshot()
	require.NoError(t, err)

	expected, err := openWallets(t, snap).ObjectHash()
	require.NoError(t, err)

	snap.Release()

	name, hash, err := proof.Verify(keys, db.Hasher())
	require.NoError(t, err)
	require.Equal(t, "wallets", name)
	require.Equal(t, expected, hash)

	_, _, err = proof.Verify(keys[:2], db.Hasher())
	require.Error(t, err)

	// A change merged without a block makes the state differ from the last
	// block.
	fork, err := db.Fork()
	require.NoError(t, err)
	require.NoError(t, openWallets(t, fork).Put("mallory", []byte{2}))
	require.NoError(t, db.Merge(fork))

	_, err = bc.IndexProof("wallets")
	require.Error(t, err)
	require.Contains(t, err.Error(), "differs from block 1")
	check(t)
}

func TestBlockchain_ClosedDatabase(t *testing.T) {
	db := newDB(t)
	bc := New(db)

	require.NoError(t, db.Close())

	_, err := bc.LastBlock()
	require.EqualError(t, err, "couldn't create snapshot: database closed")

	_, err = bc.CreateGenesis(makeKeys(1))
	require.EqualError(t, err, "couldn't create fork: database closed")
}

// -----------------------------------------------------------------------------
// Utility functions

func newDB(t *testing.T) *merkledb.Database {
	kvdb, err := leveldb.NewInMemory()
	require.NoError(t, err)

	db, err := merkledb.NewDatabase(kvdb)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func makeValidators(n int) ([]crypto.Signer, []crypto.PublicKey) {
	signers := make([]crypto.Signer, n)
	keys := make([]crypto.PublicKey, n)

	for i := range signers {
		signers[i] = ed25519.NewSigner()
		keys[i] = signers[i].GetPublicKey()
	}

	return signers, keys
}

func makeKeys(n int) []crypto.PublicKey {
	_, keys := makeValidators(n)
	return keys
}

func makePrecommits(t *testing.T, block types.Block, signers []crypto.Signer, ids ...int) []types.Verified {
	msgs := make([]types.Verified, len(ids))

	for i, id := range ids {
		p := types.NewPrecommit(types.ValidatorID(id), block.GetHeight(), 0,
			hashtree.Digest{}, block.GetHash(), time.Now())

		verified, err := p.Sign(signers[id])
		require.NoError(t, err)

		msgs[i] = verified
	}

	return msgs
}

func openWallets(t *testing.T, access merkledb.Access) index.ProofMap[string, []byte] {
	wallets, err := index.NewProofMap(access, merkledb.NewAddress("wallets"), codec.String(), codec.Bytes())
	require.NoError(t, err)

	return wallets
}

func commitBlock(t *testing.T, db *merkledb.Database, bc *Blockchain,
	signers []crypto.Signer, wallet string) types.Block {

	fork, err := db.Fork()
	require.NoError(t, err)
	require.NoError(t, openWallets(t, fork).Put(wallet, []byte(wallet)))

	bp, err := bc.CreateBlock(fork, types.WithTransactions(1, hashtree.Digest{}))
	require.NoError(t, err)

	ids := make([]int, len(signers))
	for i := range ids {
		ids[i] = i
	}

	err = bc.Commit(bp, makePrecommits(t, bp.GetBlock(), signers, ids...))
	require.NoError(t, err)

	return bp.GetBlock()
}
