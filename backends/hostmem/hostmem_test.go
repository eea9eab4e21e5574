package hostmem

import (
	"testing"

	"github.com/infergraph/infergraph/backends"
	"github.com/stretchr/testify/require"
)

func TestAllocDealloc(t *testing.T) {
	b := New("")
	arena := b.Alloc(1024)
	require.Len(t, arena, 1024)

	// The arena is writable all the way through.
	arena[0] = 0xFF
	arena[1023] = 0xAB
	require.Equal(t, byte(0xAB), arena[1023])

	other := b.Alloc(16)
	require.Len(t, other, 16)

	b.Dealloc(arena)
	require.Panics(t, func() { b.Dealloc(arena) }) // Double free.

	b.Dealloc(other)
	require.Nil(t, b.Alloc(0))
	require.Panics(t, func() { b.Alloc(-1) })

	b.Finalize()
	require.Panics(t, func() { b.Alloc(8) })
}

func TestRegistry(t *testing.T) {
	b := backends.NewWithConfig(BackendName + ":")
	require.Equal(t, BackendName, b.Name())
	require.Contains(t, b.Description(), "hostmem")
	b.Finalize()

	require.Panics(t, func() { backends.NewWithConfig("no-such-backend:") })

	// hostmem is registered, so the empty default resolves to some backend.
	b2 := backends.New()
	require.NotNil(t, b2)
	b2.Finalize()
}
