package types

import (
	"io"
	"time"

	"github.com/cth001/exonum/core/store/hashtree"
	"github.com/cth001/exonum/crypto"
	"github.com/cth001/exonum/crypto/ed25519"
	"github.com/cth001/exonum/serde"
	"golang.org/x/xerrors"
	"google.golang.org/protobuf/encoding/protowire"
)

// SignedMessage is a payload signed by the author. The signature is not
// checked until the message is verified.
//
// - implements serde.Message
// - implements serde.Fingerprinter
type SignedMessage struct {
	payload   []byte
	author    crypto.PublicKey
	signature crypto.Signature
}

// NewSignedMessage returns a signed message from its fields.
func NewSignedMessage(payload []byte, author crypto.PublicKey, sig crypto.Signature) SignedMessage {
	return SignedMessage{
		payload:   payload,
		author:    author,
		signature: sig,
	}
}

// Sign signs the payload with the signer and returns the message, already
// verified.
func Sign(signer crypto.Signer, payload []byte) (Verified, error) {
	sig, err := signer.Sign(payload)
	if err != nil {
		return Verified{}, xerrors.Errorf("couldn't sign: %v", err)
	}

	msg := NewSignedMessage(payload, signer.GetPublicKey(), sig)

	return Verified{raw: msg}, nil
}

// GetPayload returns the signed bytes.
func (m SignedMessage) GetPayload() []byte {
	return append([]byte{}, m.payload...)
}

// GetAuthor returns the public key of the author.
func (m SignedMessage) GetAuthor() crypto.PublicKey {
	return m.author
}

// GetSignature returns the signature of the payload.
func (m SignedMessage) GetSignature() crypto.Signature {
	return m.signature
}

// Verify checks the signature of the payload against the author.
func (m SignedMessage) Verify() (Verified, error) {
	if m.author == nil || m.signature == nil {
		return Verified{}, xerrors.New("missing author or signature")
	}

	err := m.author.Verify(m.payload, m.signature)
	if err != nil {
		return Verified{}, xerrors.Errorf("invalid signature: %v", err)
	}

	return Verified{raw: m}, nil
}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the canonical
// encoding of the message.
func (m SignedMessage) MarshalBinary() ([]byte, error) {
	if m.author == nil || m.signature == nil {
		return nil, xerrors.New("missing author or signature")
	}

	author, err := m.author.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal author: %v", err)
	}

	sig, err := m.signature.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal signature: %v", err)
	}

	var data []byte
	data = appendBytes(data, 1, m.payload)
	data = appendBytes(data, 2, author)
	data = appendBytes(data, 3, sig)

	return data, nil
}

// Fingerprint implements serde.Fingerprinter. It writes the canonical encoding
// of the message.
func (m SignedMessage) Fingerprint(w io.Writer) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return xerrors.Errorf("couldn't marshal: %v", err)
	}

	_, err = w.Write(data)
	if err != nil {
		return xerrors.Errorf("couldn't write: %v", err)
	}

	return nil
}

// Serialize implements serde.Message.
func (m SignedMessage) Serialize(ctx serde.Context) ([]byte, error) {
	format := signedFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, m)
	if err != nil {
		return nil, xerrors.Errorf("encoding failed: %v", err)
	}

	return data, nil
}

// DecodeSignedMessage returns the signed message of the canonical encoding,
// authored by an Ed25519 key.
func DecodeSignedMessage(data []byte) (SignedMessage, error) {
	var payload, author, sig []byte

	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			return consumeBytes(typ, data, &payload)
		case 2:
			return consumeBytes(typ, data, &author)
		case 3:
			return consumeBytes(typ, data, &sig)
		default:
			return 0, xerrors.New("unknown field")
		}
	})
	if err != nil {
		return SignedMessage{}, xerrors.Errorf("malformed signed message: %v", err)
	}

	pubkey, err := ed25519.NewPublicKey(author)
	if err != nil {
		return SignedMessage{}, xerrors.Errorf("invalid author: %v", err)
	}

	msg := NewSignedMessage(payload, pubkey, ed25519.NewSignature(sig))

	canonical, err := msg.MarshalBinary()
	if err != nil {
		return SignedMessage{}, err
	}

	err = checkCanonical(data, canonical)
	if err != nil {
		return SignedMessage{}, xerrors.Errorf("malformed signed message: %v", err)
	}

	return msg, nil
}

// SignedMessageFactory is the factory of the signed messages.
//
// - implements serde.Factory
type SignedMessageFactory struct {
	pubkeyFac crypto.PublicKeyFactory
	sigFac    crypto.SignatureFactory
}

// NewSignedMessageFactory returns a factory that decodes the authors and the
// signatures with the given factories.
func NewSignedMessageFactory(pkf crypto.PublicKeyFactory, sf crypto.SignatureFactory) SignedMessageFactory {
	return SignedMessageFactory{
		pubkeyFac: pkf,
		sigFac:    sf,
	}
}

// Deserialize implements serde.Factory.
func (f SignedMessageFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	format := signedFormats.Get(ctx.GetFormat())

	ctx = serde.WithFactory(ctx, PublicKeyKey{}, f.pubkeyFac)
	ctx = serde.WithFactory(ctx, SignatureKey{}, f.sigFac)

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("decoding failed: %v", err)
	}

	return msg, nil
}

// Verified is a signed message whose signature has been checked.
//
// - implements serde.Message
type Verified struct {
	raw SignedMessage
}

// Raw returns the signed message.
func (v Verified) Raw() SignedMessage {
	return v.raw
}

// Author returns the public key of the author.
func (v Verified) Author() crypto.PublicKey {
	return v.raw.author
}

// Payload returns the signed bytes.
func (v Verified) Payload() []byte {
	return v.raw.GetPayload()
}

// Precommit returns the precommit carried by the payload.
func (v Verified) Precommit() (Precommit, error) {
	return DecodePrecommit(v.raw.payload)
}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the canonical
// encoding of the signed message.
func (v Verified) MarshalBinary() ([]byte, error) {
	return v.raw.MarshalBinary()
}

// Serialize implements serde.Message. A verified message is sent as the
// signed message.
func (v Verified) Serialize(ctx serde.Context) ([]byte, error) {
	return v.raw.Serialize(ctx)
}

// DecodeVerified decodes the signed message and verifies it.
func DecodeVerified(data []byte) (Verified, error) {
	msg, err := DecodeSignedMessage(data)
	if err != nil {
		return Verified{}, err
	}

	return msg.Verify()
}

// Precommit is the vote of a validator to commit a block at a height.
//
// - implements serde.Message
// - implements serde.Fingerprinter
type Precommit struct {
	validator   ValidatorID
	height      uint64
	round       uint32
	proposeHash hashtree.Digest
	blockHash   hashtree.Digest
	time        time.Time
}

// NewPrecommit returns a precommit of the validator for the block. The time is
// kept with a nanosecond precision in UTC.
func NewPrecommit(validator ValidatorID, height uint64, round uint32,
	propose, block hashtree.Digest, t time.Time) Precommit {

	return Precommit{
		validator:   validator,
		height:      height,
		round:       round,
		proposeHash: propose,
		blockHash:   block,
		time:        t.UTC(),
	}
}

// Sign returns the precommit signed by the validator.
func (p Precommit) Sign(signer crypto.Signer) (Verified, error) {
	data, err := p.MarshalBinary()
	if err != nil {
		return Verified{}, err
	}

	return Sign(signer, data)
}

// GetValidator returns the identifier of the validator.
func (p Precommit) GetValidator() ValidatorID {
	return p.validator
}

// GetHeight returns the height of the block.
func (p Precommit) GetHeight() uint64 {
	return p.height
}

// GetRound returns the round of the consensus.
func (p Precommit) GetRound() uint32 {
	return p.round
}

// GetProposeHash returns the hash of the proposal the block is built from.
func (p Precommit) GetProposeHash() hashtree.Digest {
	return p.proposeHash
}

// GetBlockHash returns the hash of the block.
func (p Precommit) GetBlockHash() hashtree.Digest {
	return p.blockHash
}

// GetTime returns the local time of the validator when it voted.
func (p Precommit) GetTime() time.Time {
	return p.time
}

// MarshalBinary implements encoding.BinaryMarshaler. The time is encoded as a
// google.protobuf.Timestamp.
func (p Precommit) MarshalBinary() ([]byte, error) {
	var ts []byte
	ts = appendVarint(ts, 1, uint64(p.time.Unix()))
	ts = appendVarint(ts, 2, uint64(p.time.Nanosecond()))

	var data []byte
	data = appendVarint(data, 1, uint64(p.validator))
	data = appendVarint(data, 2, p.height)
	data = appendVarint(data, 3, uint64(p.round))
	data = appendDigest(data, 4, p.proposeHash)
	data = appendDigest(data, 5, p.blockHash)
	data = protowire.AppendTag(data, 6, protowire.BytesType)
	data = protowire.AppendBytes(data, ts)

	return data, nil
}

// Fingerprint implements serde.Fingerprinter.
func (p Precommit) Fingerprint(w io.Writer) error {
	data, _ := p.MarshalBinary()

	_, err := w.Write(data)
	if err != nil {
		return xerrors.Errorf("couldn't write: %v", err)
	}

	return nil
}

// Serialize implements serde.Message.
func (p Precommit) Serialize(ctx serde.Context) ([]byte, error) {
	format := precommitFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, p)
	if err != nil {
		return nil, xerrors.Errorf("encoding failed: %v", err)
	}

	return data, nil
}

// DecodePrecommit returns the precommit of the canonical encoding.
func DecodePrecommit(data []byte) (Precommit, error) {
	var validator, height, round uint64
	var propose, block hashtree.Digest
	var ts []byte

	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			return consumeVarint(typ, data, &validator)
		case 2:
			return consumeVarint(typ, data, &height)
		case 3:
			return consumeVarint(typ, data, &round)
		case 4:
			return consumeDigest(typ, data, &propose)
		case 5:
			return consumeDigest(typ, data, &block)
		case 6:
			return consumeBytes(typ, data, &ts)
		default:
			return 0, xerrors.New("unknown field")
		}
	})
	if err != nil {
		return Precommit{}, xerrors.Errorf("malformed precommit: %v", err)
	}

	var secs, nanos uint64

	err = consumeFields(ts, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			return consumeVarint(typ, data, &secs)
		case 2:
			return consumeVarint(typ, data, &nanos)
		default:
			return 0, xerrors.New("unknown field")
		}
	})
	if err != nil {
		return Precommit{}, xerrors.Errorf("malformed time: %v", err)
	}

	if validator > 0xffff || round > 0xffffffff || nanos >= uint64(time.Second) {
		return Precommit{}, xerrors.New("malformed precommit: value out of range")
	}

	p := NewPrecommit(ValidatorID(validator), height, uint32(round), propose, block,
		time.Unix(int64(secs), int64(nanos)))

	canonical, _ := p.MarshalBinary()

	err = checkCanonical(data, canonical)
	if err != nil {
		return Precommit{}, xerrors.Errorf("malformed precommit: %v", err)
	}

	return p, nil
}

// PrecommitFactory is the factory of the precommits.
//
// - implements serde.Factory
type PrecommitFactory struct{}

// NewPrecommitFactory returns a new factory.
func NewPrecommitFactory() PrecommitFactory {
	return PrecommitFactory{}
}

// Deserialize implements serde.Factory.
func (f PrecommitFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	format := precommitFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("decoding failed: %v", err)
	}

	return msg, nil
}
