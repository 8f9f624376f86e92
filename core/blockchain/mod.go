// Package blockchain implements the chain of blocks on top of the merkledb
// storage engine.
//
// A block records the state hash of the database after the changes of the
// block. The blocks, their hashes by height, their precommits and the keys of
// the validators are stored in system indexes, which are not part of the state
// hash. A block is created from a fork holding the changes of its
// transactions, and committed with the precommits of a quorum of validators,
// except for the genesis block.
//
// The proofs of the blocks and of the indexes can be read for the last block
// so that a light client can verify the object hash of an index against the
// keys of the validators.
//
// Documentation Last Review: 19.10.2026
//
package blockchain

import (
	"github.com/cth001/exonum"
	"github.com/cth001/exonum/core/ordering/types"
	"github.com/cth001/exonum/core/store/codec"
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/merkledb"
	"github.com/cth001/exonum/core/store/merkledb/index"
	"github.com/cth001/exonum/crypto"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

// ErrNoBlock is returned when no block exists for a height.
var ErrNoBlock = xerrors.New("block not found")

type options struct {
	logger zerolog.Logger
}

// Option is the type of the options to create a blockchain.
type Option func(*options)

// WithLogger sets the logger of the blockchain.
func WithLogger(logger zerolog.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// Blockchain is the chain of blocks stored in a merkelized database.
type Blockchain struct {
	db       *merkledb.Database
	blockFac types.BlockFactory
	logger   zerolog.Logger
}

// New returns the blockchain stored in the database. The blocks are hashed
// with the hash algorithm of the database.
func New(db *merkledb.Database, opts ...Option) *Blockchain {
	tmpl := options{
		logger: exonum.Logger,
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	return &Blockchain{
		db:       db,
		blockFac: types.NewBlockFactory(crypto.NewHashFactory(db.HashAlgorithm())),
		logger:   tmpl.logger.With().Str("component", "blockchain").Logger(),
	}
}

// BlockFactory returns the factory of the blocks of the chain.
func (bc *Blockchain) BlockFactory() types.BlockFactory {
	return bc.blockFac
}

// BlockPatch is a block with the patch of its changes. The patch is merged
// when the block is committed.
type BlockPatch struct {
	block types.Block
	patch *merkledb.Patch
}

// GetBlock returns the block.
func (p BlockPatch) GetBlock() types.Block {
	return p.block
}

// GetPatch returns the patch of the changes of the block.
func (p BlockPatch) GetPatch() *merkledb.Patch {
	return p.patch
}

// Release discards the patch of a block that is not committed.
func (p BlockPatch) Release() {
	if p.patch != nil {
		p.patch.Release()
	}
}

// CreateGenesis creates and commits the genesis block with the keys of the
// validators. It returns an error if the chain already has a block.
func (bc *Blockchain) CreateGenesis(validators []crypto.PublicKey, opts ...types.BlockOption) (types.Block, error) {
	if len(validators) == 0 {
		return types.Block{}, xerrors.New("no validator")
	}

	fork, err := bc.db.Fork()
	if err != nil {
		return types.Block{}, xerrors.Errorf("couldn't create fork: %v", err)
	}

	schema := NewSchema(fork, bc.blockFac)

	length, err := schema.Len()
	if err != nil {
		fork.Release()
		return types.Block{}, xerrors.Errorf("couldn't read height: %v", err)
	}

	if length > 0 {
		fork.Release()
		return types.Block{}, xerrors.New("genesis block already exists")
	}

	list, err := schema.Validators()
	if err != nil {
		fork.Release()
		return types.Block{}, xerrors.Errorf("couldn't open validators: %v", err)
	}

	for _, key := range validators {
		_, err = list.Push(key)
		if err != nil {
			fork.Release()
			return types.Block{}, xerrors.Errorf("couldn't write validator: %v", err)
		}
	}

	bp, err := bc.CreateBlock(fork, opts...)
	if err != nil {
		return types.Block{}, err
	}

	err = bc.Commit(bp, nil)
	if err != nil {
		bp.Release()
		return types.Block{}, err
	}

	return bp.GetBlock(), nil
}

// CreateBlock converts the fork into a patch and returns the block of its
// changes at the next height. The previous hash and the state hash are
// computed, and they override the options.
func (bc *Blockchain) CreateBlock(fork *merkledb.Fork, opts ...types.BlockOption) (BlockPatch, error) {
	schema := NewSchema(fork, bc.blockFac)

	height, err := schema.Len()
	if err != nil {
		fork.Release()
		return BlockPatch{}, xerrors.Errorf("couldn't read height: %v", err)
	}

	var prev hashtree.Digest

	if height > 0 {
		last, err := schema.LastBlock()
		if err != nil {
			fork.Release()
			return BlockPatch{}, xerrors.Errorf("couldn't read last block: %v", err)
		}

		prev = last.GetHash()
	}

	patch, err := fork.IntoPatch()
	if err != nil {
		fork.Release()
		return BlockPatch{}, xerrors.Errorf("couldn't create patch: %v", err)
	}

	state, err := patch.StateHash()
	if err != nil {
		patch.Release()
		return BlockPatch{}, xerrors.Errorf("couldn't compute state hash: %v", err)
	}

	opts = append(opts,
		types.WithPrevHash(prev),
		types.WithStateHash(state),
		types.WithHashFactory(bc.blockFac.HashFactory()))

	block, err := types.NewBlock(height, opts...)
	if err != nil {
		patch.Release()
		return BlockPatch{}, xerrors.Errorf("couldn't create block: %v", err)
	}

	return BlockPatch{block: block, patch: patch}, nil
}

// Commit verifies the precommits of the block and merges the block with its
// changes. The precommits are not verified for the genesis block. A block
// created on top of an older state is refused.
func (bc *Blockchain) Commit(bp BlockPatch, precommits []types.Verified) error {
	if bp.patch == nil {
		return xerrors.New("missing patch")
	}

	block := bp.block

	raws := make([]types.SignedMessage, len(precommits))
	for i, p := range precommits {
		raws[i] = p.Raw()
	}

	if block.GetHeight() > 0 {
		validators, err := NewSchema(bp.patch, bc.blockFac).ValidatorKeys()
		if err != nil {
			return xerrors.Errorf("couldn't read validators: %v", err)
		}

		err = types.NewBlockProof(block, raws).Verify(validators)
		if err != nil {
			return xerrors.Errorf("invalid precommits: %v", err)
		}
	}

	fork, err := bp.patch.Fork()
	if err != nil {
		return xerrors.Errorf("couldn't create fork: %v", err)
	}

	err = bc.writeBlock(fork, block, raws)
	if err != nil {
		fork.Release()
		return err
	}

	err = bc.db.Merge(fork)
	if err != nil {
		return xerrors.Errorf("couldn't merge block: %w", err)
	}

	promHeight.Set(float64(block.GetHeight()))
	promBlocks.Inc()

	bc.logger.Info().
		Uint64("height", block.GetHeight()).
		Stringer("hash", block.GetHash()).
		Uint32("txs", block.GetTxCount()).
		Int("precommits", len(raws)).
		Msg("block committed")

	return nil
}

// Len returns the number of blocks.
func (bc *Blockchain) Len() (uint64, error) {
	var length uint64

	err := bc.read(func(schema Schema, _ merkledb.Readable) error {
		var err error
		length, err = schema.Len()

		return err
	})

	return length, err
}

// LastBlock returns the last committed block, or ErrNoBlock.
func (bc *Blockchain) LastBlock() (types.Block, error) {
	var block types.Block

	err := bc.read(func(schema Schema, _ merkledb.Readable) error {
		var err error
		block, err = schema.LastBlock()

		return err
	})

	return block, err
}

// GetBlock returns the block at the height, or ErrNoBlock.
func (bc *Blockchain) GetBlock(height uint64) (types.Block, error) {
	var block types.Block

	err := bc.read(func(schema Schema, _ merkledb.Readable) error {
		var err error
		block, err = schema.BlockAt(height)

		return err
	})

	return block, err
}

// Validators returns the keys of the validators.
func (bc *Blockchain) Validators() ([]crypto.PublicKey, error) {
	var keys []crypto.PublicKey

	err := bc.read(func(schema Schema, _ merkledb.Readable) error {
		var err error
		keys, err = schema.ValidatorKeys()

		return err
	})

	return keys, err
}

// BlockProof returns the proof of the block at the height.
func (bc *Blockchain) BlockProof(height uint64) (types.BlockProof, error) {
	var proof types.BlockProof

	err := bc.read(func(schema Schema, _ merkledb.Readable) error {
		var err error
		proof, err = schema.BlockProof(height)

		return err
	})

	return proof, err
}

// IndexProof returns the proof of the object hash of the aggregated index
// against the last block. The proof is refused when the state of the database
// differs from the state of the last block, or when it does not verify.
func (bc *Blockchain) IndexProof(name string) (types.IndexProof, error) {
	var proof types.IndexProof

	err := bc.read(func(schema Schema, snap merkledb.Readable) error {
		bp, err := schema.lastBlockProof()
		if err != nil {
			return err
		}

		state, err := snap.StateHash()
		if err != nil {
			return xerrors.Errorf("couldn't read state hash: %v", err)
		}

		block := bp.GetBlock()

		if state != block.GetStateHash() {
			promProofsRefused.Inc()

			bc.logger.Warn().
				Uint64("height", block.GetHeight()).
				Stringer("state", state).
				Stringer("expected", block.GetStateHash()).
				Msg("state differs from the last block")

			return xerrors.Errorf("state hash %v differs from block %d", state, block.GetHeight())
		}

		aggregator, err := index.NewProofMap(snap, merkledb.NewAddress(merkledb.AggregatorName),
			codec.String(), codec.Digest())
		if err != nil {
			return xerrors.Errorf("couldn't open aggregator: %v", err)
		}

		found, err := aggregator.Contains(name)
		if err != nil {
			return xerrors.Errorf("couldn't read aggregator: %v", err)
		}

		if !found {
			return xerrors.Errorf("index '%s' is not in the state", name)
		}

		mp, err := aggregator.GetProof(name)
		if err != nil {
			return xerrors.Errorf("couldn't prove index: %v", err)
		}

		validators, err := schema.ValidatorKeys()
		if err != nil {
			return xerrors.Errorf("couldn't read validators: %v", err)
		}

		proof = types.NewIndexProof(bp, mp.Proof)

		_, _, err = proof.Verify(validators, snap.Hasher())
		if err != nil {
			promProofsRefused.Inc()

			bc.logger.Warn().
				Err(err).
				Str("index", name).
				Uint64("height", block.GetHeight()).
				Msg("index proof refused")

			return xerrors.Errorf("couldn't verify proof: %v", err)
		}

		return nil
	})

	return proof, err
}

func (bc *Blockchain) read(fn func(Schema, merkledb.Readable) error) error {
	snap, err := bc.db.Snapshot()
	if err != nil {
		return xerrors.Errorf("couldn't create snapshot: %v", err)
	}

	defer snap.Release()

	return fn(NewSchema(snap, bc.blockFac), snap)
}

func (bc *Blockchain) writeBlock(fork *merkledb.Fork, block types.Block, precommits []types.SignedMessage) error {
	schema := NewSchema(fork, bc.blockFac)

	blocks, err := schema.Blocks()
	if err != nil {
		return xerrors.Errorf("couldn't open blocks: %v", err)
	}

	err = blocks.Put(block.GetHash(), block)
	if err != nil {
		return xerrors.Errorf("couldn't write block: %v", err)
	}

	hashes, err := schema.BlockHashes()
	if err != nil {
		return xerrors.Errorf("couldn't open hashes: %v", err)
	}

	height, err := hashes.Push(block.GetHash())
	if err != nil {
		return xerrors.Errorf("couldn't write hash: %v", err)
	}

	if height != block.GetHeight() {
		return xerrors.Errorf("block height %d != %d", block.GetHeight(), height)
	}

	list, err := schema.Precommits(block.GetHash())
	if err != nil {
		return xerrors.Errorf("couldn't open precommits: %v", err)
	}

	for _, msg := range precommits {
		_, err = list.Push(msg)
		if err != nil {
			return xerrors.Errorf("couldn't write precommit: %v", err)
		}
	}

	return nil
}
