package registry

import (
	"testing"

	"github.com/cth001/exonum/serde"
	"github.com/stretchr/testify/require"
)

func TestSimpleRegistry_Register(t *testing.T) {
	registry := NewSimpleRegistry()

	registry.Register(serde.FormatJSON, fakeFormat{})
	require.Len(t, registry.store, 1)

	registry.Register(serde.FormatJSON, fakeFormat{})
	require.Len(t, registry.store, 1)

	registry.Register(serde.Format("A"), fakeFormat{})
	require.Len(t, registry.store, 2)
}

func TestSimpleRegistry_Get(t *testing.T) {
	registry := NewSimpleRegistry()

	registry.Register(serde.FormatJSON, fakeFormat{})

	format := registry.Get(serde.FormatJSON)
	require.Equal(t, fakeFormat{}, format)

	format = registry.Get(serde.Format("unknown"))
	require.NotNil(t, format)

	_, err := format.Encode(serde.NewContext(nil), nil)
	require.EqualError(t, err, "format 'unknown' is not implemented")

	_, err = format.Decode(serde.NewContext(nil), nil)
	require.EqualError(t, err, "format 'unknown' is not implemented")
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeFormat struct {
	serde.FormatEngine
}
