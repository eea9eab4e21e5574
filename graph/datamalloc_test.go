package graph

import (
	"testing"
	"unsafe"

	"github.com/infergraph/infergraph/pkg/core/dtypes"
	"github.com/infergraph/infergraph/types/shapes"
	"github.com/stretchr/testify/require"
)

func TestDataMalloc(t *testing.T) {
	g := newTestGraph()
	a := g.AddTensor(shapes.Make(dtypes.Float32, 2, 3, 4)) // 96 bytes.
	b := g.AddTensor(shapes.Make(dtypes.Float32, 2, 4, 5)) // 160 bytes.
	mm := g.AddMatMul(a, b, nil, false, false)
	_ = mm.Output() // [2,3,5], 120 bytes.

	g.DataMalloc()

	alloc := g.Allocator()
	require.Equal(t, alloc.Peak(), alloc.Used()) // Nothing was freed during planning.
	require.Equal(t, 96+160+120, alloc.Peak())

	base := alloc.Base()
	baseAddr := uintptr(unsafe.Pointer(unsafe.SliceData(base)))
	end := baseAddr + uintptr(len(base))
	for _, tensor := range g.Tensors() {
		require.True(t, tensor.HasStorage())
		data := tensor.Data()
		require.Equal(t, tensor.Bytes(), len(data))

		// Every storage view lies inside the one arena.
		addr := uintptr(unsafe.Pointer(unsafe.SliceData(data)))
		require.GreaterOrEqual(t, addr, baseAddr)
		require.LessOrEqual(t, addr+uintptr(len(data)), end)
		require.Zero(t, (addr-baseAddr)%Alignment)
	}

	// Views are disjoint: writing one tensor does not touch another.
	for i := range Flat[float32](a) {
		Flat[float32](a)[i] = 1
	}
	for _, v := range Flat[float32](b) {
		require.Zero(t, v)
	}

	g.Finalize()
}

func TestDataMallocBindsOnce(t *testing.T) {
	g := newTestGraph()
	in := g.AddTensor(shapes.Make(dtypes.Float32, 4))
	g.AddRelu(in, nil)
	g.DataMalloc()
	require.Panics(t, func() { g.DataMalloc() }) // The arena is materialized: no second plan.
	g.Finalize()
}

func TestFlatTypeChecked(t *testing.T) {
	g := newTestGraph()
	in := g.AddTensor(shapes.Make(dtypes.Float32, 2, 2))
	g.AddIdentity(in, nil)

	// Unbound access panics.
	require.Panics(t, func() { in.Data() })
	require.Panics(t, func() { Flat[float32](in) })

	g.DataMalloc()
	flat := Flat[float32](in)
	require.Len(t, flat, 4)
	require.Panics(t, func() { Flat[float64](in) }) // Wrong element type.

	flat[3] = 42
	require.Equal(t, float32(42), Flat[float32](in)[3])
	g.Finalize()
}
