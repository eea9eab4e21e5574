package graph

import (
	"testing"

	"github.com/infergraph/infergraph/pkg/core/dtypes"
	"github.com/infergraph/infergraph/types/shapes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatMulShapeInference(t *testing.T) {
	g := newTestGraph()

	// Batch axes broadcast: [1,3,4] x [5,4,7] -> [5,3,7].
	a := g.AddTensor(shapes.Make(dtypes.Float32, 1, 3, 4))
	b := g.AddTensor(shapes.Make(dtypes.Float32, 5, 4, 7))
	mm := g.AddMatMul(a, b, nil, false, false)
	require.Equal(t, []int{5, 3, 7}, mm.Output().Shape().Dimensions)
	require.Equal(t, dtypes.Float32, mm.Output().DType())

	m, n, k := mm.MNK()
	assert.Equal(t, 3, m)
	assert.Equal(t, 7, n)
	assert.Equal(t, 4, k)
}

func TestMatMulTransposeFlags(t *testing.T) {
	g := newTestGraph()

	// transA reads A's last two axes swapped: [4,3]^T x [4,5] -> [3,5].
	a := g.AddTensor(shapes.Make(dtypes.Float32, 4, 3))
	b := g.AddTensor(shapes.Make(dtypes.Float32, 4, 5))
	mm := g.AddMatMul(a, b, nil, true, false)
	require.Equal(t, []int{3, 5}, mm.Output().Shape().Dimensions)
	require.True(t, mm.TransA())
	require.False(t, mm.TransB())

	// transB: [2,3] x [5,3]^T -> [2,5].
	c := g.AddTensor(shapes.Make(dtypes.Float32, 2, 3))
	d := g.AddTensor(shapes.Make(dtypes.Float32, 5, 3))
	mm2 := g.AddMatMul(c, d, nil, false, true)
	require.Equal(t, []int{2, 5}, mm2.Output().Shape().Dimensions)
}

func TestMatMulShapeMismatch(t *testing.T) {
	g := newTestGraph()
	a := g.AddTensor(shapes.Make(dtypes.Float32, 2, 3, 4))

	// Inner dimensions disagree.
	bad := g.AddTensor(shapes.Make(dtypes.Float32, 2, 3, 5))
	require.Panics(t, func() { g.AddMatMul(a, bad, nil, false, false) })

	// Rank < 2.
	vec := g.AddTensor(shapes.Make(dtypes.Float32, 4))
	require.Panics(t, func() { g.AddMatMul(a, vec, nil, false, false) })

	// Batch axes that don't broadcast.
	clash := g.AddTensor(shapes.Make(dtypes.Float32, 3, 4, 5))
	require.Panics(t, func() { g.AddMatMul(a, clash, nil, false, false) })

	// DType disagreement.
	double := g.AddTensor(shapes.Make(dtypes.Float64, 2, 4, 5))
	require.Panics(t, func() { g.AddMatMul(a, double, nil, false, false) })
}

func TestTransposeShapeInference(t *testing.T) {
	g := newTestGraph()
	in := g.AddTensor(shapes.Make(dtypes.Float32, 1, 2, 3, 4))
	tr := g.AddTranspose(in, nil, []int{0, 1, 3, 2})
	require.Equal(t, []int{1, 2, 4, 3}, tr.Output().Shape().Dimensions)
	require.Equal(t, []int{0, 1, 3, 2}, tr.Permutation())

	// The accessor returns a copy.
	tr.Permutation()[0] = 9
	require.Equal(t, []int{0, 1, 3, 2}, tr.Permutation())

	// Not a permutation of the input's axes.
	other := g.AddTensor(shapes.Make(dtypes.Float32, 2, 3))
	require.Panics(t, func() { g.AddTranspose(other, nil, []int{0, 0}) })
	require.Panics(t, func() { g.AddTranspose(other, nil, []int{0, 1, 2}) })
}

func TestDeclaredOutputChecked(t *testing.T) {
	g := newTestGraph()
	a := g.AddTensor(shapes.Make(dtypes.Float32, 2, 3))
	b := g.AddTensor(shapes.Make(dtypes.Float32, 3, 5))

	// Matching declared output is accepted.
	out := g.AddTensor(shapes.Make(dtypes.Float32, 2, 5))
	mm := g.AddMatMul(a, b, out, false, false)
	require.Equal(t, out, mm.Output())

	// Wrong declared shape or dtype panics.
	badShape := g.AddTensor(shapes.Make(dtypes.Float32, 2, 6))
	require.Panics(t, func() { g.AddMatMul(a, b, badShape, false, false) })
	badDType := g.AddTensor(shapes.Make(dtypes.Float64, 2, 5))
	require.Panics(t, func() { g.AddMatMul(a, b, badDType, false, false) })
}

func TestOperatorAccessors(t *testing.T) {
	g := newTestGraph()
	a := g.AddTensor(shapes.Make(dtypes.Float32, 2, 3))
	b := g.AddTensor(shapes.Make(dtypes.Float32, 3, 5))
	mm := g.AddMatMul(a, b, nil, false, false)

	require.Equal(t, OpTypeMatMul, mm.Type())
	require.Equal(t, 2, mm.NumInputs())
	require.Equal(t, 1, mm.NumOutputs())
	require.Equal(t, a, mm.Input(0))
	require.Equal(t, b, mm.Input(1))
	require.Panics(t, func() { mm.Input(2) })
	require.Contains(t, mm.String(), "MatMul#")

	tr := g.AddTranspose(mm.Output(), nil, []int{1, 0})
	require.Equal(t, OpTypeTranspose, tr.Type())
	require.Equal(t, "Transpose", tr.Type().String())
}

func TestClone(t *testing.T) {
	g := newTestGraph()
	a := g.AddTensor(shapes.Make(dtypes.Float32, 2, 3))
	b := g.AddTensor(shapes.Make(dtypes.Float32, 5, 3))
	mm := g.AddMatMul(a, b, nil, false, true)

	// The clone binds to fresh tensors and reuses the attributes, with
	// empty back-edges.
	na := a.CloneDetached()
	nb := b.CloneDetached()
	nOut := mm.Output().CloneDetached()
	clone := mm.Clone([]*Tensor{na, nb}, []*Tensor{nOut}).(*MatMul)

	require.True(t, clone.TransB())
	require.False(t, clone.TransA())
	require.Equal(t, []*Tensor{na, nb}, clone.Inputs())
	require.Equal(t, nOut, clone.Output())
	require.Empty(t, clone.Predecessors())
	require.Empty(t, clone.Successors())
	require.NotEqual(t, mm.Guid(), clone.Guid())

	// The original keeps its own wiring.
	require.Equal(t, []Operator{mm}, a.Targets())

	// Cloning a transpose keeps the permutation.
	in := g.AddTensor(shapes.Make(dtypes.Float32, 2, 3, 4))
	tr := g.AddTranspose(in, nil, []int{0, 2, 1})
	trClone := tr.Clone([]*Tensor{in.CloneDetached()}, []*Tensor{tr.Output().CloneDetached()}).(*Transpose)
	require.Equal(t, []int{0, 2, 1}, trClone.Permutation())
}

func TestUnaryOps(t *testing.T) {
	g := newTestGraph()
	in := g.AddTensor(shapes.Make(dtypes.Float32, 2, 3))

	id := g.AddIdentity(in, nil)
	require.Equal(t, OpTypeIdentity, id.Type())
	require.True(t, id.Output().Shape().Equal(in.Shape()))

	relu := g.AddRelu(id.Output(), nil)
	require.Equal(t, OpTypeRelu, relu.Type())
	require.True(t, relu.Output().Shape().Equal(in.Shape()))

	out := must.M1(relu.InferShapes(relu.Inputs()))
	require.Len(t, out, 1)
	require.True(t, out[0].Equal(in.Shape()))
}
