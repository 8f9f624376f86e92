//
// Documentation Last Review: 19.10.2026
//

package serde

// ContextEngine is the interface to implement to create a context.
type ContextEngine interface {
	// GetFormat returns the name of the format for this context.
	GetFormat() Format

	// Marshal returns the bytes of the message according to the format of the
	// context.
	Marshal(message interface{}) ([]byte, error)

	// Unmarshal populates the message with the data according to the format of
	// the context.
	Unmarshal(data []byte, message interface{}) error
}

// Context is the context passed to the serialization and deserialization
// requests. It carries the factories that a message needs to decode nested
// messages.
type Context struct {
	ContextEngine

	factories map[interface{}]Factory
}

// NewContext returns a new empty context.
func NewContext(engine ContextEngine) Context {
	return Context{
		ContextEngine: engine,
		factories:     make(map[interface{}]Factory),
	}
}

// GetFactory returns the factory associated to the key or nil.
func (ctx Context) GetFactory(key interface{}) Factory {
	return ctx.factories[key]
}

// WithFactory returns a copy of the context with the factory registered under
// the key. The parent context is left untouched.
func WithFactory(ctx Context, key interface{}, f Factory) Context {
	factories := make(map[interface{}]Factory, len(ctx.factories)+1)

	for k, v := range ctx.factories {
		factories[k] = v
	}

	factories[key] = f
	ctx.factories = factories

	return ctx
}
