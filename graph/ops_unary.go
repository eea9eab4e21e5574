package graph

import (
	"fmt"

	"github.com/infergraph/infergraph/types/shapes"
	"github.com/pkg/errors"
)

// Identity copies its input unchanged. It is the simplest shape-preserving
// operator, useful as an explicit graph sink.
type Identity struct {
	operatorBase
}

// Relu is the rectified-linear activation, shape-preserving like Identity.
type Relu struct {
	operatorBase
}

// Compile-time checks:
var (
	_ Operator = (*Identity)(nil)
	_ Operator = (*Relu)(nil)
)

// AddIdentity inserts an Identity of input. If output is nil a fresh output
// tensor is created in the graph.
func (g *Graph) AddIdentity(input, output *Tensor) *Identity {
	op := &Identity{newOperatorBase(OpTypeIdentity, []*Tensor{input}, tensorList(output))}
	checkAndFinish(g, op)
	g.addOperatorAndConnect(op)
	return op
}

// AddRelu inserts a Relu of input. If output is nil a fresh output tensor is
// created in the graph.
func (g *Graph) AddRelu(input, output *Tensor) *Relu {
	op := &Relu{newOperatorBase(OpTypeRelu, []*Tensor{input}, tensorList(output))}
	checkAndFinish(g, op)
	g.addOperatorAndConnect(op)
	return op
}

func inferUnaryShapes(opType OpType, inputs []*Tensor) ([]shapes.Shape, error) {
	if len(inputs) != 1 {
		return nil, errors.Errorf("%s takes 1 input, got %d", opType, len(inputs))
	}
	return []shapes.Shape{inputs[0].Shape().Clone()}, nil
}

// NumInputs implements Operator.
func (op *Identity) NumInputs() int { return 1 }

// NumOutputs implements Operator.
func (op *Identity) NumOutputs() int { return 1 }

// InferShapes implements Operator: the output shape is the input shape.
func (op *Identity) InferShapes(inputs []*Tensor) ([]shapes.Shape, error) {
	return inferUnaryShapes(op.opType, inputs)
}

// Clone implements Operator.
func (op *Identity) Clone(newInputs, newOutputs []*Tensor) Operator {
	clone := &Identity{op.cloneBase(newInputs, newOutputs)}
	checkAndFinish(nil, clone)
	return clone
}

// String implements fmt.Stringer.
func (op *Identity) String() string {
	return fmt.Sprintf("Identity#%d", op.guid)
}

// NumInputs implements Operator.
func (op *Relu) NumInputs() int { return 1 }

// NumOutputs implements Operator.
func (op *Relu) NumOutputs() int { return 1 }

// InferShapes implements Operator: the output shape is the input shape.
func (op *Relu) InferShapes(inputs []*Tensor) ([]shapes.Shape, error) {
	return inferUnaryShapes(op.opType, inputs)
}

// Clone implements Operator.
func (op *Relu) Clone(newInputs, newOutputs []*Tensor) Operator {
	clone := &Relu{op.cloneBase(newInputs, newOutputs)}
	checkAndFinish(nil, clone)
	return clone
}

// String implements fmt.Stringer.
func (op *Relu) String() string {
	return fmt.Sprintf("Relu#%d", op.guid)
}
