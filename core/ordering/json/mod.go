// Package json defines the JSON formats of the consensus messages and of the
// proofs.
package json

import (
	"encoding/json"
	"time"

	"github.com/cth001/exonum/core/ordering/types"
	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/crypto"
	"github.com/cth001/exonum/serde"
	"golang.org/x/xerrors"
)

func init() {
	types.RegisterSignedMessageFormat(serde.FormatJSON, signedFormat{})
	types.RegisterPrecommitFormat(serde.FormatJSON, precommitFormat{})
	types.RegisterBlockFormat(serde.FormatJSON, blockFormat{})
	types.RegisterBlockProofFormat(serde.FormatJSON, blockProofFormat{})
	types.RegisterIndexProofFormat(serde.FormatJSON, indexProofFormat{})
}

// SignedMessageJSON is the JSON message of a signed message.
type SignedMessageJSON struct {
	Payload   []byte
	Author    json.RawMessage
	Signature json.RawMessage
}

// PrecommitJSON is the JSON message of a precommit.
type PrecommitJSON struct {
	Validator   uint16
	Height      uint64
	Round       uint32
	ProposeHash hashtree.Digest
	BlockHash   hashtree.Digest
	Time        time.Time
}

// BlockJSON is the JSON message of a block header.
type BlockJSON struct {
	Proposer  uint16
	Height    uint64
	TxCount   uint32
	PrevHash  hashtree.Digest
	TxHash    hashtree.Digest
	StateHash hashtree.Digest
	ErrorHash hashtree.Digest
}

// signedFormat is the engine to encode and decode signed messages in JSON
// format.
//
// - implements serde.FormatEngine
type signedFormat struct{}

// Encode implements serde.FormatEngine.
func (f signedFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	signed, ok := msg.(types.SignedMessage)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	if signed.GetAuthor() == nil || signed.GetSignature() == nil {
		return nil, xerrors.New("missing author or signature")
	}

	author, err := signed.GetAuthor().Serialize(ctx)
	if err != nil {
		return nil, xerrors.Errorf("couldn't serialize author: %v", err)
	}

	sig, err := signed.GetSignature().Serialize(ctx)
	if err != nil {
		return nil, xerrors.Errorf("couldn't serialize signature: %v", err)
	}

	m := SignedMessageJSON{
		Payload:   signed.GetPayload(),
		Author:    author,
		Signature: sig,
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine.
func (f signedFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := SignedMessageJSON{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal signed message: %v", err)
	}

	pkf, ok := ctx.GetFactory(types.PublicKeyKey{}).(crypto.PublicKeyFactory)
	if !ok {
		return nil, xerrors.Errorf("invalid public key factory '%T'",
			ctx.GetFactory(types.PublicKeyKey{}))
	}

	sf, ok := ctx.GetFactory(types.SignatureKey{}).(crypto.SignatureFactory)
	if !ok {
		return nil, xerrors.Errorf("invalid signature factory '%T'",
			ctx.GetFactory(types.SignatureKey{}))
	}

	author, err := pkf.PublicKeyOf(ctx, m.Author)
	if err != nil {
		return nil, xerrors.Errorf("couldn't deserialize author: %v", err)
	}

	sig, err := sf.SignatureOf(ctx, m.Signature)
	if err != nil {
		return nil, xerrors.Errorf("couldn't deserialize signature: %v", err)
	}

	return types.NewSignedMessage(m.Payload, author, sig), nil
}

// precommitFormat is the engine to encode and decode precommits in JSON
// format.
//
// - implements serde.FormatEngine
type precommitFormat struct{}

// Encode implements serde.FormatEngine.
func (f precommitFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	p, ok := msg.(types.Precommit)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	m := PrecommitJSON{
		Validator:   uint16(p.GetValidator()),
		Height:      p.GetHeight(),
		Round:       p.GetRound(),
		ProposeHash: p.GetProposeHash(),
		BlockHash:   p.GetBlockHash(),
		Time:        p.GetTime(),
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine.
func (f precommitFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := PrecommitJSON{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal precommit: %v", err)
	}

	p := types.NewPrecommit(types.ValidatorID(m.Validator), m.Height, m.Round,
		m.ProposeHash, m.BlockHash, m.Time)

	return p, nil
}

// blockFormat is the engine to encode and decode block headers in JSON
// format. The hash of a decoded block is recomputed with the hash factory of
// the block factory of the context.
//
// - implements serde.FormatEngine
type blockFormat struct{}

// Encode implements serde.FormatEngine.
func (f blockFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	block, ok := msg.(types.Block)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	m := BlockJSON{
		Proposer:  uint16(block.GetProposer()),
		Height:    block.GetHeight(),
		TxCount:   block.GetTxCount(),
		PrevHash:  block.GetPrevHash(),
		TxHash:    block.GetTxHash(),
		StateHash: block.GetStateHash(),
		ErrorHash: block.GetErrorHash(),
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine.
func (f blockFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := BlockJSON{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal block: %v", err)
	}

	fac, ok := ctx.GetFactory(types.BlockKey{}).(types.BlockFactory)
	if !ok {
		return nil, xerrors.Errorf("invalid block factory '%T'", ctx.GetFactory(types.BlockKey{}))
	}

	block, err := types.NewBlock(m.Height,
		types.WithProposer(types.ValidatorID(m.Proposer)),
		types.WithTransactions(m.TxCount, m.TxHash),
		types.WithPrevHash(m.PrevHash),
		types.WithStateHash(m.StateHash),
		types.WithErrorHash(m.ErrorHash),
		types.WithHashFactory(fac.HashFactory()))
	if err != nil {
		return nil, xerrors.Errorf("couldn't create block: %v", err)
	}

	return block, nil
}
