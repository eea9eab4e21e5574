package graph

import (
	"fmt"
	"slices"

	"github.com/infergraph/infergraph/types/shapes"
	"github.com/pkg/errors"
)

// Transpose reorders the axes of its input by a fixed permutation:
// output dimension i is the input dimension permutation[i].
type Transpose struct {
	operatorBase
	permutation []int
}

// Compile-time check:
var _ Operator = (*Transpose)(nil)

// AddTranspose inserts a Transpose of input by the given permutation.
// If output is nil a fresh output tensor is created in the graph.
func (g *Graph) AddTranspose(input, output *Tensor, permutation []int) *Transpose {
	op := &Transpose{
		operatorBase: newOperatorBase(OpTypeTranspose, []*Tensor{input}, tensorList(output)),
		permutation:  slices.Clone(permutation),
	}
	checkAndFinish(g, op)
	g.addOperatorAndConnect(op)
	return op
}

// Permutation returns the axis permutation. The returned slice is a copy.
func (op *Transpose) Permutation() []int {
	return slices.Clone(op.permutation)
}

// NumInputs implements Operator.
func (op *Transpose) NumInputs() int { return 1 }

// NumOutputs implements Operator.
func (op *Transpose) NumOutputs() int { return 1 }

// InferShapes implements Operator: the output shape is the input shape
// reindexed by the permutation.
func (op *Transpose) InferShapes(inputs []*Tensor) ([]shapes.Shape, error) {
	if len(inputs) != 1 {
		return nil, errors.Errorf("Transpose takes 1 input, got %d", len(inputs))
	}
	input := inputs[0].Shape()
	if !shapes.IsPermutation(op.permutation, input.Rank()) {
		return nil, errors.Errorf("Transpose permutation %v is not a permutation of the %d axes of %s",
			op.permutation, input.Rank(), input)
	}
	output := input.Clone()
	output.Dimensions = shapes.PermuteDimensions(input.Dimensions, op.permutation)
	return []shapes.Shape{output}, nil
}

// Clone implements Operator.
func (op *Transpose) Clone(newInputs, newOutputs []*Tensor) Operator {
	clone := &Transpose{
		operatorBase: op.cloneBase(newInputs, newOutputs),
		permutation:  slices.Clone(op.permutation),
	}
	checkAndFinish(nil, clone)
	return clone
}

// String implements fmt.Stringer.
func (op *Transpose) String() string {
	return fmt.Sprintf("Transpose#%d(perm=%v)", op.guid, op.permutation)
}
