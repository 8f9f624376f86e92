// Package registry defines the format registry mechanism. The default
// implementation always returns a format engine: an unknown format resolves to
// an engine that fails every request with a meaningful error.
//
// Documentation Last Review: 19.10.2026
//
package registry

import (
	"sync"

	"github.com/cth001/exonum/serde"
	"golang.org/x/xerrors"
)

// Registry is an interface to register and get format engines for a specific
// format.
type Registry interface {
	// Register takes a format and its engine and it registers them so that the
	// engine can be looked up later.
	Register(serde.Format, serde.FormatEngine)

	// Get returns the engine associated with the format.
	Get(serde.Format) serde.FormatEngine
}

// SimpleRegistry is the default implementation of a registry. It is safe for
// concurrent use as the formats are registered by init functions but looked up
// by any goroutine.
//
// - implements registry.Registry
type SimpleRegistry struct {
	sync.RWMutex
	store map[serde.Format]serde.FormatEngine
}

// NewSimpleRegistry returns a new empty registry.
func NewSimpleRegistry() *SimpleRegistry {
	return &SimpleRegistry{
		store: make(map[serde.Format]serde.FormatEngine),
	}
}

// Register implements registry.Registry. It registers the engine for the given
// format, replacing any previous one.
func (r *SimpleRegistry) Register(name serde.Format, f serde.FormatEngine) {
	r.Lock()
	r.store[name] = f
	r.Unlock()
}

// Get implements registry.Registry. It returns the format engine associated
// with the format if it exists, otherwise it returns an empty format.
func (r *SimpleRegistry) Get(name serde.Format) serde.FormatEngine {
	r.RLock()
	defer r.RUnlock()

	fmt := r.store[name]
	if fmt == nil {
		return emptyFormat{name: name}
	}

	return fmt
}

// emptyFormat is returned for unknown formats.
//
// - implements serde.FormatEngine
type emptyFormat struct {
	name serde.Format
}

// Encode implements serde.FormatEngine. It always returns an error.
func (f emptyFormat) Encode(serde.Context, serde.Message) ([]byte, error) {
	return nil, xerrors.Errorf("format '%s' is not implemented", f.name)
}

// Decode implements serde.FormatEngine. It always returns an error.
func (f emptyFormat) Decode(serde.Context, []byte) (serde.Message, error) {
	return nil, xerrors.Errorf("format '%s' is not implemented", f.name)
}
