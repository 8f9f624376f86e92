package mem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorage_GetSetDelete(t *testing.T) {
	s := NewStorage()

	value, err := s.Get([]byte("A"))
	require.NoError(t, err)
	require.Nil(t, value)

	require.NoError(t, s.Set([]byte("A"), []byte("B")))
	require.NoError(t, s.Set([]byte("C"), nil))

	value, err = s.Get([]byte("A"))
	require.NoError(t, err)
	require.Equal(t, []byte("B"), value)

	value, err = s.Get([]byte("C"))
	require.NoError(t, err)
	require.Equal(t, []byte{}, value)
	require.Equal(t, 2, s.Len())

	require.NoError(t, s.Delete([]byte("A")))

	value, err = s.Get([]byte("A"))
	require.NoError(t, err)
	require.Nil(t, value)
	require.Equal(t, 1, s.Len())
}

func TestStorage_Stage(t *testing.T) {
	parent := NewStorage()
	require.NoError(t, parent.Set([]byte("A"), []byte("1")))
	require.NoError(t, parent.Set([]byte("B"), []byte("2")))

	child := parent.Stage()
	require.NoError(t, child.Set([]byte("A"), []byte("3")))
	require.NoError(t, child.Delete([]byte("B")))
	require.NoError(t, child.Set([]byte("C"), []byte("4")))

	value, _ := child.Get([]byte("A"))
	require.Equal(t, []byte("3"), value)

	value, _ = child.Get([]byte("B"))
	require.Nil(t, value)

	value, _ = parent.Get([]byte("A"))
	require.Equal(t, []byte("1"), value)

	value, _ = parent.Get([]byte("C"))
	require.Nil(t, value)

	require.Equal(t, 2, child.Len())
	require.Equal(t, 2, parent.Len())
}

func TestStorage_Dirty(t *testing.T) {
	s := NewStorage()

	s.MarkDirty([]byte("b"))
	s.MarkDirty([]byte("a"))
	s.MarkDirty([]byte("b"))

	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, s.DirtyKeys())

	s.ResetDirty()
	require.Empty(t, s.DirtyKeys())
}
