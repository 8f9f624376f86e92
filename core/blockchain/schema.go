package blockchain

import (
	"github.com/cth001/exonum/core/ordering/types"
	"github.com/cth001/exonum/core/store/codec"
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/merkledb"
	"github.com/cth001/exonum/core/store/merkledb/index"
	"github.com/cth001/exonum/crypto"
	"github.com/cth001/exonum/crypto/ed25519"
	"golang.org/x/xerrors"
)

const (
	// BlocksName is the name of the map of the blocks by hash.
	BlocksName = "__core.blocks"
	// BlockHashesName is the name of the list of the block hashes by height.
	BlockHashesName = "__core.block_hashes_by_height"
	// PrecommitsName is the name of the group of the precommits of a block.
	PrecommitsName = "__core.precommits"
	// ValidatorsName is the name of the list of the validator keys.
	ValidatorsName = "__core.consensus_config"
)

var signedCodec = codec.Binary("signed_message", types.DecodeSignedMessage)

var keyCodec = codec.Binary("ed25519", ed25519.NewPublicKeyFactory().FromBytes)

// Schema gives access to the indexes of the blockchain. The indexes are system
// indexes, so they are never part of the state hash.
type Schema struct {
	access     merkledb.Access
	blockCodec codec.Codec[types.Block]
}

// NewSchema returns the schema of the blockchain over the access. The blocks
// are decoded with the factory.
func NewSchema(access merkledb.Access, fac types.BlockFactory) Schema {
	return Schema{
		access:     access,
		blockCodec: codec.Binary("block", fac.BlockOf),
	}
}

// Blocks returns the map of the blocks by hash.
func (s Schema) Blocks() (index.Map[hashtree.Digest, types.Block], error) {
	return index.NewMap(s.access, merkledb.NewAddress(BlocksName), codec.Digest(), s.blockCodec)
}

// BlockHashes returns the list of the block hashes by height.
func (s Schema) BlockHashes() (index.ProofList[hashtree.Digest], error) {
	return index.NewProofList(s.access, merkledb.NewAddress(BlockHashesName), codec.Digest())
}

// Precommits returns the list of the precommits of the block.
func (s Schema) Precommits(hash hashtree.Digest) (index.List[types.SignedMessage], error) {
	return index.NewList(s.access, merkledb.GroupAddress(PrecommitsName, hash[:]), signedCodec)
}

// Validators returns the list of the keys of the validators.
func (s Schema) Validators() (index.List[crypto.PublicKey], error) {
	return index.NewList(s.access, merkledb.NewAddress(ValidatorsName), keyCodec)
}

// Len returns the number of blocks.
func (s Schema) Len() (uint64, error) {
	hashes, err := s.BlockHashes()
	if err != nil {
		return 0, err
	}

	return hashes.Len()
}

// BlockAt returns the block at the height.
func (s Schema) BlockAt(height uint64) (types.Block, error) {
	hashes, err := s.BlockHashes()
	if err != nil {
		return types.Block{}, err
	}

	hash, found, err := hashes.Get(height)
	if err != nil {
		return types.Block{}, xerrors.Errorf("couldn't read hash: %v", err)
	}

	if !found {
		return types.Block{}, ErrNoBlock
	}

	return s.block(hash)
}

// LastBlock returns the block with the highest height.
func (s Schema) LastBlock() (types.Block, error) {
	hashes, err := s.BlockHashes()
	if err != nil {
		return types.Block{}, err
	}

	hash, found, err := hashes.Last()
	if err != nil {
		return types.Block{}, xerrors.Errorf("couldn't read hash: %v", err)
	}

	if !found {
		return types.Block{}, ErrNoBlock
	}

	return s.block(hash)
}

// ValidatorKeys returns the keys of the validators in the order of their
// identifiers.
func (s Schema) ValidatorKeys() ([]crypto.PublicKey, error) {
	list, err := s.Validators()
	if err != nil {
		return nil, err
	}

	var keys []crypto.PublicKey

	err = list.ForEach(0, func(_ uint64, key crypto.PublicKey) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("couldn't read validators: %v", err)
	}

	return keys, nil
}

// BlockProof returns the block at the height with its precommits.
func (s Schema) BlockProof(height uint64) (types.BlockProof, error) {
	block, err := s.BlockAt(height)
	if err != nil {
		return types.BlockProof{}, err
	}

	list, err := s.Precommits(block.GetHash())
	if err != nil {
		return types.BlockProof{}, err
	}

	var precommits []types.SignedMessage

	err = list.ForEach(0, func(_ uint64, msg types.SignedMessage) error {
		precommits = append(precommits, msg)
		return nil
	})
	if err != nil {
		return types.BlockProof{}, xerrors.Errorf("couldn't read precommits: %v", err)
	}

	return types.NewBlockProof(block, precommits), nil
}

func (s Schema) block(hash hashtree.Digest) (types.Block, error) {
	blocks, err := s.Blocks()
	if err != nil {
		return types.Block{}, err
	}

	block, found, err := blocks.Get(hash)
	if err != nil {
		return types.Block{}, xerrors.Errorf("couldn't read block: %v", err)
	}

	if !found {
		return types.Block{}, xerrors.Errorf("missing block %v", hash)
	}

	return block, nil
}

func (s Schema) lastBlockProof() (types.BlockProof, error) {
	length, err := s.Len()
	if err != nil {
		return types.BlockProof{}, err
	}

	if length == 0 {
		return types.BlockProof{}, ErrNoBlock
	}

	return s.BlockProof(length - 1)
}
