package types

import (
	"github.com/cth001/exonum/core/store/codec"
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/core/store/hashtree/proofmap"
	"github.com/cth001/exonum/core/store/merkledb/index"
	"github.com/cth001/exonum/crypto"
	"github.com/cth001/exonum/serde"
	"golang.org/x/xerrors"
)

// BlockProof is a block with the precommits of a quorum of validators.
//
// - implements serde.Message
type BlockProof struct {
	block      Block
	precommits []SignedMessage
}

// NewBlockProof returns the proof of the block.
func NewBlockProof(block Block, precommits []SignedMessage) BlockProof {
	return BlockProof{
		block:      block,
		precommits: precommits,
	}
}

// GetBlock returns the block.
func (p BlockProof) GetBlock() Block {
	return p.block
}

// GetPrecommits returns the signed precommits.
func (p BlockProof) GetPrecommits() []SignedMessage {
	return append([]SignedMessage{}, p.precommits...)
}

// Verify checks that the precommits are correctly signed by distinct
// validators of the list, that they vote for the block, and that they reach
// the quorum.
func (p BlockProof) Verify(validators []crypto.PublicKey) error {
	quorum := Quorum(len(validators))
	voters := make(map[ValidatorID]struct{}, len(p.precommits))

	for i, msg := range p.precommits {
		verified, err := msg.Verify()
		if err != nil {
			return xerrors.Errorf("precommit %d: %v", i, err)
		}

		precommit, err := verified.Precommit()
		if err != nil {
			return xerrors.Errorf("precommit %d: %v", i, err)
		}

		id := precommit.GetValidator()

		if int(id) >= len(validators) {
			return xerrors.Errorf("precommit %d: unknown validator %d", i, id)
		}

		if !validators[id].Equal(verified.Author()) {
			return xerrors.Errorf("precommit %d: not signed by validator %d", i, id)
		}

		if precommit.GetHeight() != p.block.GetHeight() {
			return xerrors.Errorf("precommit %d: height %d != %d",
				i, precommit.GetHeight(), p.block.GetHeight())
		}

		if precommit.GetBlockHash() != p.block.GetHash() {
			return xerrors.Errorf("precommit %d: block hash %v != %v",
				i, precommit.GetBlockHash(), p.block.GetHash())
		}

		_, found := voters[id]
		if found {
			return xerrors.Errorf("precommit %d: duplicate vote of validator %d", i, id)
		}

		voters[id] = struct{}{}
	}

	if len(voters) < quorum {
		return xerrors.Errorf("not enough precommits: %d < %d", len(voters), quorum)
	}

	return nil
}

// Serialize implements serde.Message.
func (p BlockProof) Serialize(ctx serde.Context) ([]byte, error) {
	format := blockProofFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, p)
	if err != nil {
		return nil, xerrors.Errorf("encoding failed: %v", err)
	}

	return data, nil
}

// BlockProofFactory is the factory of the block proofs.
//
// - implements serde.Factory
type BlockProofFactory struct {
	blockFac serde.Factory
	msgFac   serde.Factory
}

// NewBlockProofFactory returns a factory that decodes the blocks and the
// precommits with the given factories.
func NewBlockProofFactory(bf, mf serde.Factory) BlockProofFactory {
	return BlockProofFactory{
		blockFac: bf,
		msgFac:   mf,
	}
}

// Deserialize implements serde.Factory.
func (f BlockProofFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	format := blockProofFormats.Get(ctx.GetFormat())

	ctx = serde.WithFactory(ctx, BlockKey{}, f.blockFac)
	ctx = serde.WithFactory(ctx, SignedMessageKey{}, f.msgFac)

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("decoding failed: %v", err)
	}

	return msg, nil
}

// IndexProof proves the object hash of an index to a client that only knows
// the validators: the block proof endorses the state hash, and the map proof
// links the state hash to the entry of the index in the state aggregator.
//
// - implements serde.Message
type IndexProof struct {
	blockProof BlockProof
	indexProof proofmap.Proof
}

// NewIndexProof returns the proof of an index.
func NewIndexProof(bp BlockProof, proof proofmap.Proof) IndexProof {
	return IndexProof{
		blockProof: bp,
		indexProof: proof,
	}
}

// GetBlockProof returns the proof of the block.
func (p IndexProof) GetBlockProof() BlockProof {
	return p.blockProof
}

// GetIndexProof returns the proof of the entry in the state aggregator.
func (p IndexProof) GetIndexProof() proofmap.Proof {
	return p.indexProof
}

// Verify checks the block proof against the validators, then the map proof
// against the state hash of the block. It returns the name of the index and
// its object hash.
func (p IndexProof) Verify(validators []crypto.PublicKey, hasher hashtree.Hasher) (string, hashtree.Digest, error) {
	err := p.blockProof.Verify(validators)
	if err != nil {
		return "", hashtree.Digest{}, xerrors.Errorf("invalid block proof: %w", err)
	}

	proof := index.NewMapProof(p.indexProof, codec.String(), codec.Digest())

	entries, missing, err := proof.Verify(hasher, p.blockProof.GetBlock().GetStateHash())
	if err != nil {
		return "", hashtree.Digest{}, xerrors.Errorf("invalid index proof: %w", err)
	}

	if len(missing) > 0 {
		return "", hashtree.Digest{}, xerrors.Errorf("index '%s' is not in the state", missing[0])
	}

	if len(entries) != 1 {
		return "", hashtree.Digest{}, xerrors.Errorf("expected one index, got %d", len(entries))
	}

	return entries[0].Key, entries[0].Value, nil
}

// Serialize implements serde.Message.
func (p IndexProof) Serialize(ctx serde.Context) ([]byte, error) {
	format := indexProofFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, p)
	if err != nil {
		return nil, xerrors.Errorf("encoding failed: %v", err)
	}

	return data, nil
}

// IndexProofFactory is the factory of the index proofs.
//
// - implements serde.Factory
type IndexProofFactory struct {
	blockProofFac serde.Factory
}

// NewIndexProofFactory returns a factory that decodes the block proofs with
// the given factory.
func NewIndexProofFactory(f serde.Factory) IndexProofFactory {
	return IndexProofFactory{
		blockProofFac: f,
	}
}

// Deserialize implements serde.Factory.
func (f IndexProofFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	format := indexProofFormats.Get(ctx.GetFormat())

	ctx = serde.WithFactory(ctx, BlockProofKey{}, f.blockProofFac)

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("decoding failed: %v", err)
	}

	return msg, nil
}
