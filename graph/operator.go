/*
 *	Copyright 2024 The InferGraph Authors
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package graph

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/infergraph/infergraph/types/shapes"
	"github.com/pkg/errors"
)

// OpType identifies the operation performed by an operator.
type OpType int

const (
	OpTypeInvalid OpType = iota
	OpTypeIdentity
	OpTypeRelu
	OpTypeTranspose
	OpTypeMatMul
)

// String implements fmt.Stringer.
func (t OpType) String() string {
	switch t {
	case OpTypeIdentity:
		return "Identity"
	case OpTypeRelu:
		return "Relu"
	case OpTypeTranspose:
		return "Transpose"
	case OpTypeMatMul:
		return "MatMul"
	default:
		return fmt.Sprintf("InvalidOpType(%d)", int(t))
	}
}

// Operator is a node of the computation graph that consumes input tensors
// and produces output tensors. The registry of variants is compile-time
// closed: Identity, Relu, Transpose and MatMul implement it. Adding a
// variant is a mechanical addition of a struct embedding operatorBase.
//
// Operators are created by Graph factory methods, which also wire the
// bidirectional tensor edges; the interface only exposes read access to the
// connectivity.
type Operator interface {
	fmt.Stringer

	// Type returns the operator's tag.
	Type() OpType

	// Guid returns the diagnostic id, unique per process.
	Guid() int64

	// NumInputs and NumOutputs are static per variant.
	NumInputs() int
	NumOutputs() int

	// Inputs returns the ordered input tensor list (not a copy).
	Inputs() []*Tensor
	// Input returns the i-th input tensor. It panics for out-of-range i.
	Input(i int) *Tensor
	// Outputs returns the ordered output tensor list (not a copy).
	Outputs() []*Tensor
	// Output returns the single output tensor; it panics unless the
	// operator has exactly one output.
	Output() *Tensor

	// Predecessors returns the operators producing this operator's inputs.
	Predecessors() []Operator
	// Successors returns the operators consuming this operator's outputs.
	Successors() []Operator

	// InferShapes derives the output shapes (dtype included) from the input
	// tensors' shapes and the operator's own attributes. It is pure with
	// respect to the graph and returns an error on incompatible inputs.
	InferShapes(inputs []*Tensor) ([]shapes.Shape, error)

	// Clone produces a detached copy reusing the operator's attributes but
	// bound to the given tensors, with empty predecessor/successor lists.
	// The clone is not registered in any graph.
	Clone(newInputs, newOutputs []*Tensor) Operator

	// base gives the graph wiring code access to the shared edge state.
	base() *operatorBase
}

// operatorBase carries the state shared by every operator variant: the tag,
// the diagnostic id and the four edge lists. Variants embed it by value.
type operatorBase struct {
	opType OpType
	guid   int64

	inputs  []*Tensor
	outputs []*Tensor

	// Derived back-references, maintained by the graph wiring protocols.
	predecessors []Operator
	successors   []Operator
}

func newOperatorBase(opType OpType, inputs, outputs []*Tensor) operatorBase {
	for i, input := range inputs {
		if input == nil {
			exceptions.Panicf("%s: input #%d is nil", opType, i)
		}
	}
	return operatorBase{
		opType:  opType,
		guid:    nextGuid(),
		inputs:  inputs,
		outputs: outputs,
	}
}

func (b *operatorBase) base() *operatorBase { return b }

// Type returns the operator's tag.
func (b *operatorBase) Type() OpType { return b.opType }

// Guid returns the diagnostic id.
func (b *operatorBase) Guid() int64 { return b.guid }

// Inputs returns the ordered input tensor list.
func (b *operatorBase) Inputs() []*Tensor { return b.inputs }

// Input returns the i-th input tensor.
func (b *operatorBase) Input(i int) *Tensor {
	if i < 0 || i >= len(b.inputs) {
		exceptions.Panicf("%s: input index %d out of range (%d inputs)", b.opType, i, len(b.inputs))
	}
	return b.inputs[i]
}

// Outputs returns the ordered output tensor list.
func (b *operatorBase) Outputs() []*Tensor { return b.outputs }

// Output returns the single output tensor.
func (b *operatorBase) Output() *Tensor {
	if len(b.outputs) != 1 {
		exceptions.Panicf("%s: Output() requires exactly one output, operator has %d", b.opType, len(b.outputs))
	}
	return b.outputs[0]
}

// Predecessors returns a copy of the producing-operators list.
func (b *operatorBase) Predecessors() []Operator {
	return append([]Operator(nil), b.predecessors...)
}

// Successors returns a copy of the consuming-operators list.
func (b *operatorBase) Successors() []Operator {
	return append([]Operator(nil), b.successors...)
}

func (b *operatorBase) addPredecessor(op Operator) {
	b.predecessors = append(b.predecessors, op)
}

func (b *operatorBase) addSuccessor(op Operator) {
	b.successors = append(b.successors, op)
}

// removePredecessor removes every occurrence, mirroring Tensor.removeTarget.
func (b *operatorBase) removePredecessor(op Operator) {
	b.predecessors = removeAll(b.predecessors, op)
}

func (b *operatorBase) removeSuccessor(op Operator) {
	b.successors = removeAll(b.successors, op)
}

func removeAll(ops []Operator, op Operator) []Operator {
	kept := ops[:0]
	for _, o := range ops {
		if o != op {
			kept = append(kept, o)
		}
	}
	return kept
}

// cloneBase returns a copy of the base bound to the given tensors, with a
// fresh guid and cleared back-edges: back-edges belong to a graph context,
// not to the operator's identity.
func (b *operatorBase) cloneBase(newInputs, newOutputs []*Tensor) operatorBase {
	return newOperatorBase(b.opType, newInputs, newOutputs)
}

// checkAndFinish runs the construction-time contract of an operator: if the
// outputs are absent and a graph is given, it infers the output shapes and
// creates fresh output tensors in the graph. In all cases it asserts that
// arities match and that the declared outputs agree with the inferred
// shapes and dtypes. Contract violations panic -- this is graph-building
// time, callers are expected to present valid operators.
func checkAndFinish(g *Graph, op Operator) {
	b := op.base()
	if len(b.inputs) != op.NumInputs() {
		exceptions.Panicf("%s requires %d input(s), got %d", op, op.NumInputs(), len(b.inputs))
	}
	inferred, err := op.InferShapes(b.inputs)
	if err != nil {
		panic(errors.WithMessagef(err, "building %s operator", op.Type()))
	}
	if len(inferred) != op.NumOutputs() {
		exceptions.Panicf("%s inferred %d output shape(s), expected %d", op, len(inferred), op.NumOutputs())
	}
	if len(b.outputs) == 0 && g != nil {
		b.outputs = make([]*Tensor, 0, len(inferred))
		for _, shape := range inferred {
			b.outputs = append(b.outputs, g.AddTensor(shape))
		}
		return
	}
	if len(b.outputs) != op.NumOutputs() {
		exceptions.Panicf("%s requires %d output(s), got %d", op, op.NumOutputs(), len(b.outputs))
	}
	for i, output := range b.outputs {
		if output == nil {
			exceptions.Panicf("%s: output #%d is nil", op, i)
		}
		if output.DType() != inferred[i].DType {
			exceptions.Panicf("%s: output #%d has dtype %s, inferred %s", op, i, output.DType(), inferred[i].DType)
		}
		if !output.Shape().EqualDimensions(inferred[i]) {
			exceptions.Panicf("%s: output #%d has shape %s, inferred %s", op, i, output.Shape(), inferred[i])
		}
	}
}
