// Package types defines the messages that authenticate the state of the
// database for a client that does not trust the node serving it: the signed
// messages of the validators, the precommits, the blocks and the proofs
// bundling them.
//
// Every message has a canonical binary encoding, a protobuf message without
// default values, which is what gets signed and hashed. The other formats are
// registered by the sub-packages, like the JSON one.
//
// Documentation Last Review: 19.10.2026
//
package types

import (
	"github.com/cth001/exonum/serde"
	"github.com/cth001/exonum/serde/registry"
)

var (
	signedFormats     = registry.NewSimpleRegistry()
	precommitFormats  = registry.NewSimpleRegistry()
	blockFormats      = registry.NewSimpleRegistry()
	blockProofFormats = registry.NewSimpleRegistry()
	indexProofFormats = registry.NewSimpleRegistry()
)

// RegisterSignedMessageFormat registers the engine for the provided format.
func RegisterSignedMessageFormat(f serde.Format, e serde.FormatEngine) {
	signedFormats.Register(f, e)
}

// RegisterPrecommitFormat registers the engine for the provided format.
func RegisterPrecommitFormat(f serde.Format, e serde.FormatEngine) {
	precommitFormats.Register(f, e)
}

// RegisterBlockFormat registers the engine for the provided format.
func RegisterBlockFormat(f serde.Format, e serde.FormatEngine) {
	blockFormats.Register(f, e)
}

// RegisterBlockProofFormat registers the engine for the provided format.
func RegisterBlockProofFormat(f serde.Format, e serde.FormatEngine) {
	blockProofFormats.Register(f, e)
}

// RegisterIndexProofFormat registers the engine for the provided format.
func RegisterIndexProofFormat(f serde.Format, e serde.FormatEngine) {
	indexProofFormats.Register(f, e)
}

// PublicKeyKey is the key of the public key factory.
type PublicKeyKey struct{}

// SignatureKey is the key of the signature factory.
type SignatureKey struct{}

// SignedMessageKey is the key of the signed message factory.
type SignedMessageKey struct{}

// BlockKey is the key of the block factory.
type BlockKey struct{}

// BlockProofKey is the key of the block proof factory.
type BlockProofKey struct{}

// ValidatorID is the position of a validator in the list of validators of the
// blockchain.
type ValidatorID uint16

// Quorum returns the number of distinct validators that must endorse a block
// among n validators, which is more than two thirds of them.
func Quorum(n int) int {
	return n*2/3 + 1
}
