// Package serde defines the primitives to serialize and deserialize (serde)
// the messages of the module, like the block proofs or the values stored in
// the indexes.
//
// A message implements its own serialization by looking up a format engine in
// a registry, using the format of the context. It keeps the data model
// independent from the encoding.
package serde

import "io"

// Format is the identifier of a serialization format.
type Format string

const (
	// FormatJSON is the identifier of the JSON format.
	FormatJSON Format = "JSON"
)

// Message is the interface that a data model must implement to be serialized.
type Message interface {
	// Serialize returns the bytes of the message encoded using the format of
	// the context.
	Serialize(ctx Context) ([]byte, error)
}

// Factory is the interface to implement to instantiate a message from its
// serialized form.
type Factory interface {
	// Deserialize returns the message populated with the data.
	Deserialize(ctx Context, data []byte) (Message, error)
}

// Fingerprinter is the interface implemented by a message that has a unique
// binary representation, like the one used to compute a hash or a signature.
type Fingerprinter interface {
	// Fingerprint writes the canonical bytes of the message into the writer.
	Fingerprint(w io.Writer) error
}

// FormatEngine is the interface to implement to encode and decode a message in
// a given format.
type FormatEngine interface {
	// Encode returns the bytes of the message.
	Encode(ctx Context, message Message) ([]byte, error)

	// Decode returns the message populated from the data.
	Decode(ctx Context, data []byte) (Message, error)
}
