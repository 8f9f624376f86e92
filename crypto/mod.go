// Package crypto defines the cryptographic primitives used to authenticate the
// consensus messages and to hash the content of the merkelized indexes.
package crypto

import (
	"encoding"
	"hash"

	"github.com/cth001/exonum/serde"
)

// HashFactory is an interface to produce a hash digest.
type HashFactory interface {
	New() hash.Hash
}

// PublicKey is a public identity that can be used to verify a signature.
type PublicKey interface {
	encoding.BinaryMarshaler
	encoding.TextMarshaler
	serde.Message

	// Verify returns nil if the signature matches the message, otherwise an
	// error.
	Verify(msg []byte, sig Signature) error

	// Equal returns true when the other object is the same public key.
	Equal(other interface{}) bool
}

// PublicKeyFactory is a factory to deserialize public keys.
type PublicKeyFactory interface {
	serde.Factory

	// PublicKeyOf returns the public key decoded from the data using the
	// format of the context.
	PublicKeyOf(serde.Context, []byte) (PublicKey, error)

	// FromBytes returns the public key unmarshaled from its binary form.
	FromBytes([]byte) (PublicKey, error)
}

// Signature is a verifiable element for a unique message.
type Signature interface {
	encoding.BinaryMarshaler
	serde.Message

	// Equal returns true when the other signature is the same.
	Equal(other Signature) bool
}

// SignatureFactory is a factory to deserialize signatures.
type SignatureFactory interface {
	serde.Factory

	// SignatureOf returns the signature decoded from the data using the format
	// of the context.
	SignatureOf(serde.Context, []byte) (Signature, error)
}

// Signer provides the primitives to sign and verify signatures.
type Signer interface {
	GetPublicKeyFactory() PublicKeyFactory

	GetSignatureFactory() SignatureFactory

	GetPublicKey() PublicKey

	Sign(msg []byte) (Signature, error)
}
