package json

import (
	"encoding/json"

	"github.com/cth001/exonum/core/ordering/types"
	"github.com/cth001/exonum/core/store/hashtree/proofmap"
	"github.com/cth001/exonum/serde"
	"golang.org/x/xerrors"
)

// BlockProofJSON is the JSON message of a block proof.
type BlockProofJSON struct {
	Block      json.RawMessage
	Precommits []json.RawMessage
}

// IndexProofJSON is the JSON message of an index proof.
type IndexProofJSON struct {
	BlockProof json.RawMessage
	IndexProof proofmap.Proof
}

// blockProofFormat is the engine to encode and decode block proofs in JSON
// format.
//
// - implements serde.FormatEngine
type blockProofFormat struct{}

// Encode implements serde.FormatEngine.
func (f blockProofFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	proof, ok := msg.(types.BlockProof)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	block, err := proof.GetBlock().Serialize(ctx)
	if err != nil {
		return nil, xerrors.Errorf("couldn't serialize block: %v", err)
	}

	precommits := proof.GetPrecommits()

	m := BlockProofJSON{
		Block:      block,
		Precommits: make([]json.RawMessage, len(precommits)),
	}

	for i, precommit := range precommits {
		m.Precommits[i], err = precommit.Serialize(ctx)
		if err != nil {
			return nil, xerrors.Errorf("couldn't serialize precommit %d: %v", i, err)
		}
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine.
func (f blockProofFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := BlockProofJSON{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal block proof: %v", err)
	}

	fac := ctx.GetFactory(types.BlockKey{})
	if fac == nil {
		return nil, xerrors.New("missing block factory")
	}

	msg, err := fac.Deserialize(ctx, m.Block)
	if err != nil {
		return nil, xerrors.Errorf("couldn't deserialize block: %v", err)
	}

	block, ok := msg.(types.Block)
	if !ok {
		return nil, xerrors.Errorf("invalid block of type '%T'", msg)
	}

	fac = ctx.GetFactory(types.SignedMessageKey{})
	if fac == nil {
		return nil, xerrors.New("missing signed message factory")
	}

	precommits := make([]types.SignedMessage, len(m.Precommits))

	for i, raw := range m.Precommits {
		msg, err := fac.Deserialize(ctx, raw)
		if err != nil {
			return nil, xerrors.Errorf("couldn't deserialize precommit %d: %v", i, err)
		}

		precommits[i], ok = msg.(types.SignedMessage)
		if !ok {
			return nil, xerrors.Errorf("invalid precommit of type '%T'", msg)
		}
	}

	return types.NewBlockProof(block, precommits), nil
}

// indexProofFormat is the engine to encode and decode index proofs in JSON
// format.
//
// - implements serde.FormatEngine
type indexProofFormat struct{}

// Encode implements serde.FormatEngine.
func (f indexProofFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	proof, ok := msg.(types.IndexProof)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	bp, err := proof.GetBlockProof().Serialize(ctx)
	if err != nil {
		return nil, xerrors.Errorf("couldn't serialize block proof: %v", err)
	}

	m := IndexProofJSON{
		BlockProof: bp,
		IndexProof: proof.GetIndexProof(),
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine.
func (f indexProofFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := IndexProofJSON{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal index proof: %v", err)
	}

	fac := ctx.GetFactory(types.BlockProofKey{})
	if fac == nil {
		return nil, xerrors.New("missing block proof factory")
	}

	msg, err := fac.Deserialize(ctx, m.BlockProof)
	if err != nil {
		return nil, xerrors.Errorf("couldn't deserialize block proof: %v", err)
	}

	bp, ok := msg.(types.BlockProof)
	if !ok {
		return nil, xerrors.Errorf("invalid block proof of type '%T'", msg)
	}

	return types.NewIndexProof(bp, m.IndexProof), nil
}
