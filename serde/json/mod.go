// Package json implements the context engine for the JSON format. Importing
// the engine registers the JSON formats of the blocks, the proofs and the
// ed25519 primitives.
package json

import (
	"encoding/json"

	_ "github.com/cth001/exonum/core/ordering/json"
	_ "github.com/cth001/exonum/crypto/ed25519/json"
	"github.com/cth001/exonum/serde"
)

// Option is the type of option to configure the JSON engine.
type Option func(*jsonEngine)

// WithIndent is an option to print the documents on multiple lines, each
// level of nesting being prefixed with the indentation.
func WithIndent(indent string) Option {
	return func(e *jsonEngine) {
		e.indent = indent
	}
}

// jsonEngine is a context engine to marshal and unmarshal in JSON format.
//
// - implements serde.ContextEngine
type jsonEngine struct {
	indent string
}

// NewContext returns a JSON context.
func NewContext(opts ...Option) serde.Context {
	engine := jsonEngine{}

	for _, opt := range opts {
		opt(&engine)
	}

	return serde.NewContext(engine)
}

// GetFormat implements serde.ContextEngine. It returns the JSON format name.
func (e jsonEngine) GetFormat() serde.Format {
	return serde.FormatJSON
}

// Marshal implements serde.ContextEngine. It returns the bytes of the message
// marshaled in JSON format.
func (e jsonEngine) Marshal(m interface{}) ([]byte, error) {
	if e.indent != "" {
		return json.MarshalIndent(m, "", e.indent)
	}

	return json.Marshal(m)
}

// Unmarshal implements serde.ContextEngine. It populates the message using the
// JSON format definition.
func (e jsonEngine) Unmarshal(data []byte, m interface{}) error {
	return json.Unmarshal(data, m)
}
