// Package json defines the JSON messages of the Ed25519 public keys and
// signatures.
package json

import (
	"github.com/cth001/exonum/crypto/ed25519"
	"github.com/cth001/exonum/serde"
	"golang.org/x/xerrors"
)

func init() {
	ed25519.RegisterPublicKeyFormat(serde.FormatJSON, pubkeyFormat{})
	ed25519.RegisterSignatureFormat(serde.FormatJSON, sigFormat{})
}

// Element is the JSON message of a public key or a signature, prefixed by the
// name of the algorithm.
type Element struct {
	Name string
	Data []byte
}

// pubkeyFormat is the engine to encode and decode public key messages in JSON
// format.
//
// - implements serde.FormatEngine
type pubkeyFormat struct{}

// Encode implements serde.FormatEngine.
func (f pubkeyFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	pubkey, ok := msg.(ed25519.PublicKey)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	buffer, err := pubkey.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal point: %v", err)
	}

	data, err := ctx.Marshal(Element{Name: ed25519.Algorithm, Data: buffer})
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine.
func (f pubkeyFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := Element{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal public key: %v", err)
	}

	pubkey, err := ed25519.NewPublicKey(m.Data)
	if err != nil {
		return nil, xerrors.Errorf("couldn't create public key: %v", err)
	}

	return pubkey, nil
}

// sigFormat is the engine to encode and decode signature messages in JSON
// format.
//
// - implements serde.FormatEngine
type sigFormat struct{}

// Encode implements serde.FormatEngine.
func (f sigFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	signature, ok := msg.(ed25519.Signature)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	raw, _ := signature.MarshalBinary()

	data, err := ctx.Marshal(Element{Name: ed25519.Algorithm, Data: raw})
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine.
func (f sigFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := Element{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal signature: %v", err)
	}

	if m.Name != "" && m.Name != ed25519.Algorithm {
		return nil, xerrors.Errorf("unsupported algorithm '%s'", m.Name)
	}

	return ed25519.NewSignature(m.Data), nil
}
