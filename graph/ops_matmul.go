package graph

import (
	"fmt"

	"github.com/infergraph/infergraph/types/shapes"
	"github.com/pkg/errors"
)

// MatMul multiplies two batched matrices A and B. The leading (batch) axes
// broadcast pairwise; the trailing two axes follow matrix-multiplication
// rules, with transA/transB selecting whether each operand's last two axes
// are read swapped. m, n and k are cached by shape inference for kernels
// and diagnostics.
type MatMul struct {
	operatorBase
	transA, transB bool
	m, n, k        int
}

// Compile-time check:
var _ Operator = (*MatMul)(nil)

// AddMatMul inserts a MatMul of a and b with the given transpose flags.
// If output is nil a fresh output tensor is created in the graph.
func (g *Graph) AddMatMul(a, b, output *Tensor, transA, transB bool) *MatMul {
	op := &MatMul{
		operatorBase: newOperatorBase(OpTypeMatMul, []*Tensor{a, b}, tensorList(output)),
		transA:       transA,
		transB:       transB,
	}
	checkAndFinish(g, op)
	g.addOperatorAndConnect(op)
	return op
}

// TransA returns whether A's last two axes are read swapped.
func (op *MatMul) TransA() bool { return op.transA }

// TransB returns whether B's last two axes are read swapped.
func (op *MatMul) TransB() bool { return op.transB }

// MNK returns the cached matrix dimensions from the last shape inference:
// the output tile is m x n, contracting over k.
func (op *MatMul) MNK() (m, n, k int) { return op.m, op.n, op.k }

// NumInputs implements Operator.
func (op *MatMul) NumInputs() int { return 2 }

// NumOutputs implements Operator.
func (op *MatMul) NumOutputs() int { return 1 }

// InferShapes implements Operator.
//
// With A of shape [batchA..., mA, kA] (swapped if transA) and B of shape
// [batchB..., kB, nB] (swapped if transB), the output is
// [broadcast(batchA, batchB)..., m, n], requiring kA == kB.
func (op *MatMul) InferShapes(inputs []*Tensor) ([]shapes.Shape, error) {
	if len(inputs) != 2 {
		return nil, errors.Errorf("MatMul takes 2 inputs, got %d", len(inputs))
	}
	shapeA, shapeB := inputs[0].Shape(), inputs[1].Shape()
	if shapeA.Rank() < 2 || shapeB.Rank() < 2 {
		return nil, errors.Errorf("MatMul requires operands of rank >= 2, got %s and %s", shapeA, shapeB)
	}
	if shapeA.DType != shapeB.DType {
		return nil, errors.Errorf("MatMul operands must share a dtype, got %s and %s", shapeA, shapeB)
	}

	m, kA := shapeA.Dim(-2), shapeA.Dim(-1)
	if op.transA {
		m, kA = kA, m
	}
	kB, n := shapeB.Dim(-2), shapeB.Dim(-1)
	if op.transB {
		kB, n = n, kB
	}
	if kA != kB {
		return nil, errors.Errorf("MatMul inner dimensions disagree: %d (from %s%s) vs %d (from %s%s)",
			kA, shapeA, transSuffix(op.transA), kB, shapeB, transSuffix(op.transB))
	}

	batch, err := shapes.BroadcastDimensions(
		shapeA.Dimensions[:shapeA.Rank()-2],
		shapeB.Dimensions[:shapeB.Rank()-2])
	if err != nil {
		return nil, errors.WithMessage(err, "MatMul batch axes")
	}

	op.m, op.n, op.k = m, n, kA
	output := shapes.Shape{DType: shapeA.DType, Dimensions: append(batch, m, n)}
	return []shapes.Shape{output}, nil
}

// Clone implements Operator. The clone reuses the transpose flags and the
// cached m, n, k.
func (op *MatMul) Clone(newInputs, newOutputs []*Tensor) Operator {
	clone := &MatMul{
		operatorBase: op.cloneBase(newInputs, newOutputs),
		transA:       op.transA,
		transB:       op.transB,
		m:            op.m,
		n:            op.n,
		k:            op.k,
	}
	checkAndFinish(nil, clone)
	return clone
}

// String implements fmt.Stringer.
func (op *MatMul) String() string {
	return fmt.Sprintf("MatMul#%d(A%s, B%s, mnk=[%d %d %d])",
		op.guid, transSuffix(op.transA), transSuffix(op.transB), op.m, op.n, op.k)
}

func transSuffix(trans bool) string {
	if trans {
		return "^T"
	}
	return ""
}
