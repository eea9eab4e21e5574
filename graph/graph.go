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

// Package graph is the core of infergraph: the in-memory model of a
// computation described as a directed acyclic graph of tensors and
// operators, as produced by exporting a model to an interchange format.
//
// A Graph owns its tensors and operators; the edges between them (a
// tensor's source and targets, an operator's inputs, outputs, predecessors
// and successors) are non-owning back-references maintained by the graph's
// wiring protocols, so the rewriter can delete either side without leaving
// stale edges.
//
// The typical session is:
//
//	g := graph.New(backends.New())
//	... build with g.AddTensor / g.AddMatMul / g.AddTranspose ...
//	g.Optimize()
//	err := g.ShapeInfer()
//	g.DataMalloc()
//
// after which every tensor has a storage view into one contiguous arena
// whose peak size was known before any real memory was requested.
//
// Errors: incompatible shapes surface as errors from shape inference;
// everything else (caller contract violations, invalid graphs) panics with
// a stack trace, see package github.com/gomlx/exceptions. A Graph is not
// safe for concurrent mutation.
package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/infergraph/infergraph/backends"
	"github.com/infergraph/infergraph/types"
	"github.com/infergraph/infergraph/types/shapes"
	"github.com/infergraph/infergraph/types/xslices"
	"k8s.io/klog/v2"
)

// Graph owns the tensors and operators of one computation and the allocator
// that plans their memory. Create it with New.
type Graph struct {
	backend   backends.Backend
	tensors   []*Tensor
	ops       []Operator
	allocator *Allocator

	// sorted tracks whether ops is currently in topological order; any
	// operator insertion clears it.
	sorted bool
}

// New creates an empty Graph bound to the given backend.
func New(backend backends.Backend) *Graph {
	return &Graph{
		backend:   backend,
		allocator: NewAllocator(backend),
	}
}

// Backend the graph is bound to.
func (g *Graph) Backend() backends.Backend { return g.backend }

// Allocator planning this graph's memory.
func (g *Graph) Allocator() *Allocator { return g.allocator }

// Tensors returns the graph's tensors in insertion order. The returned
// slice is a copy.
func (g *Graph) Tensors() []*Tensor {
	return append([]*Tensor(nil), g.tensors...)
}

// Operators returns the graph's operators in their current order (the
// topological order after a successful TopoSort). The returned slice is a copy.
func (g *Graph) Operators() []Operator {
	return append([]Operator(nil), g.ops...)
}

// Tensor looks a tensor up by its family id, nil if absent.
func (g *Graph) Tensor(fuid int64) *Tensor {
	for _, t := range g.tensors {
		if t.fuid == fuid {
			return t
		}
	}
	return nil
}

// Inputs returns the graph's input tensors: the ones no operator produces.
func (g *Graph) Inputs() (ret []*Tensor) {
	for _, t := range g.tensors {
		if t.source == nil {
			ret = append(ret, t)
		}
	}
	return
}

// Outputs returns the graph's output tensors: the ones no operator consumes.
func (g *Graph) Outputs() (ret []*Tensor) {
	for _, t := range g.tensors {
		if len(t.targets) == 0 {
			ret = append(ret, t)
		}
	}
	return
}

// AddTensor creates a fresh tensor with the given shape, registers it and
// returns it.
func (g *Graph) AddTensor(shape shapes.Shape) *Tensor {
	t := newTensor(shape, g.backend)
	g.tensors = append(g.tensors, t)
	return t
}

// AddTensorFrom registers an existing detached tensor (e.g. from
// Tensor.CloneDetached) in the graph. The tensor must have been created for
// the same backend.
func (g *Graph) AddTensorFrom(t *Tensor) *Tensor {
	if t.backend != g.backend {
		exceptions.Panicf("cannot add tensor %s: it belongs to backend %q, graph uses %q",
			t, t.backend.Description(), g.backend.Description())
	}
	g.tensors = append(g.tensors, t)
	return t
}

// tensorList wraps a possibly-nil declared output into the outputs list the
// operator constructors take: nil means "create the outputs by inference".
func tensorList(output *Tensor) []*Tensor {
	if output == nil {
		return nil
	}
	return []*Tensor{output}
}

// addOperatorAndConnect appends op and wires the bidirectional edges: every
// input gains op as a target (exchanging predecessor/successor entries with
// the input's source, if any), every output gets op as its source
// (exchanging entries with the output's pre-existing targets).
func (g *Graph) addOperatorAndConnect(op Operator) {
	g.sorted = false
	g.ops = append(g.ops, op)
	b := op.base()
	for _, input := range b.inputs {
		input.addTarget(op)
		if pred := input.source; pred != nil {
			pred.base().addSuccessor(op)
			b.addPredecessor(pred)
		}
	}
	for _, output := range b.outputs {
		output.setSource(op)
		for _, succ := range output.targets {
			if succ == op {
				continue
			}
			succ.base().addPredecessor(op)
			b.addSuccessor(succ)
		}
	}
}

// disconnectOperator runs the removal protocol: drop op from its inputs'
// target lists, clear its outputs' sources, and remove it from every
// predecessor's successor list and successor's predecessor list. The
// operator keeps its own edge lists; it is about to be dropped.
func (g *Graph) disconnectOperator(op Operator) {
	b := op.base()
	for _, input := range b.inputs {
		input.removeTarget(op)
	}
	for _, output := range b.outputs {
		output.setSource(nil)
	}
	for _, pred := range b.predecessors {
		pred.base().removeSuccessor(op)
	}
	for _, succ := range b.successors {
		succ.base().removePredecessor(op)
	}
}

// RemoveOperator disconnects op (removal protocol) and drops it from the
// graph. Output tensors the operator produced stay in the graph, now
// source-less; remove them separately if they became orphans.
func (g *Graph) RemoveOperator(op Operator) {
	g.disconnectOperator(op)
	g.removeOperator(op)
}

func (g *Graph) removeOperator(op Operator) {
	for i, o := range g.ops {
		if o == op {
			g.ops = append(g.ops[:i], g.ops[i+1:]...)
			return
		}
	}
}

// RemoveTensor drops t from the graph. The caller is responsible for the
// tensor having no live edges (its source and targets already disconnected).
func (g *Graph) RemoveTensor(t *Tensor) {
	for i, other := range g.tensors {
		if other == t {
			g.tensors = append(g.tensors[:i], g.tensors[i+1:]...)
			return
		}
	}
}

// replaceInput rewires op to consume newT wherever it consumed oldT,
// keeping every side of the relation consistent: the input list, both
// tensors' target lists, and the predecessor/successor exchange with both
// tensors' sources.
func (g *Graph) replaceInput(op Operator, oldT, newT *Tensor) {
	b := op.base()
	replaced := 0
	for i, input := range b.inputs {
		if input == oldT {
			b.inputs[i] = newT
			replaced++
		}
	}
	if replaced == 0 {
		exceptions.Panicf("replaceInput: %s does not consume %s", op, oldT)
	}
	oldT.removeTarget(op)
	for range replaced {
		newT.addTarget(op)
	}
	if pred := oldT.source; pred != nil {
		pred.base().removeSuccessor(op)
		b.removePredecessor(pred)
	}
	if pred := newT.source; pred != nil {
		pred.base().addSuccessor(op)
		b.addPredecessor(pred)
	}
}

// TopoSort reorders the operator list topologically: an operator is ready
// once every input tensor either has no source or has its source already
// placed. The sort is stable, preserving insertion order among independent
// operators -- downstream passes rely on that. It returns false, leaving
// the order untouched, if the graph has a cycle.
func (g *Graph) TopoSort() bool {
	if g.sorted {
		return true
	}
	sorted := make([]Operator, 0, len(g.ops))
	placed := types.MakeSet[Operator](len(g.ops))
	for len(sorted) < len(g.ops) {
		modified := false
		for _, op := range g.ops {
			if placed.Has(op) {
				continue
			}
			ready := true
			for _, input := range op.Inputs() {
				if src := input.source; src != nil && !placed.Has(src) {
					ready = false
					break
				}
			}
			if ready {
				sorted = append(sorted, op)
				placed.Insert(op)
				modified = true
			}
		}
		if !modified {
			// No progress in a full pass: a cycle.
			return false
		}
	}
	g.ops = sorted
	g.sorted = true
	return true
}

// ShapeInfer recomputes every operator's output shapes in the current
// operator order and overwrites changed tensor shapes in place, looking the
// tensor up by family id. The pass assumes the operators are topologically
// ordered; DataMalloc enforces that, direct callers should TopoSort first.
func (g *Graph) ShapeInfer() error {
	for _, op := range g.ops {
		inferred, err := op.InferShapes(op.Inputs())
		if err != nil {
			return err
		}
		outputs := op.Outputs()
		if len(inferred) != len(outputs) {
			exceptions.Panicf("%s inferred %d shapes for %d outputs", op, len(inferred), len(outputs))
		}
		for i, newShape := range inferred {
			if newShape.Equal(outputs[i].Shape()) {
				continue
			}
			t := g.Tensor(outputs[i].fuid)
			if t == nil {
				exceptions.Panicf("%s: output %s is not registered in the graph", op, outputs[i])
			}
			t.setShape(newShape)
		}
	}
	return nil
}

// DataMalloc plans and binds the memory of every tensor: it requires a
// topological order (panics on a cyclic graph), reserves an offset per
// tensor in insertion order, materializes the arena at the accumulated
// peak, and binds each tensor's storage view at base+offset.
func (g *Graph) DataMalloc() {
	if !g.TopoSort() {
		exceptions.Panicf("DataMalloc requires an acyclic graph: topological sort failed")
	}
	offsets := make([]int, len(g.tensors))
	for i, t := range g.tensors {
		offsets[i] = g.allocator.Alloc(t.Bytes())
	}
	base := g.allocator.Base()
	for i, t := range g.tensors {
		view := base[offsets[i] : offsets[i]+t.Bytes() : offsets[i]+t.Bytes()]
		t.bindStorage(&Storage{backend: g.backend, data: view})
	}
	klog.V(1).Info(g.allocator.Info())
}

// CheckValid asserts the graph's structural invariants: no tensor with
// neither source nor targets, every operator referenced by a tensor edge in
// the operator list, every tensor referenced by an operator edge in the
// tensor list, every predecessor/successor in the operator list, and family
// ids unique. Violations panic.
func (g *Graph) CheckValid() {
	opSet := types.MakeSet[Operator](len(g.ops))
	for _, op := range g.ops {
		opSet.Insert(op)
	}
	tensorSet := types.MakeSet[*Tensor](len(g.tensors))
	for _, t := range g.tensors {
		tensorSet.Insert(t)
	}

	for _, t := range g.tensors {
		if t.source == nil && len(t.targets) == 0 {
			exceptions.Panicf("invalid graph: tensor %s has neither source nor targets", t)
		}
		for _, op := range t.targets {
			if !opSet.Has(op) {
				exceptions.Panicf("invalid graph: tensor %s targets %s, which is not in the graph", t, op)
			}
		}
		if t.source != nil && !opSet.Has(t.source) {
			exceptions.Panicf("invalid graph: tensor %s has source %s, which is not in the graph", t, t.source)
		}
	}
	for _, op := range g.ops {
		b := op.base()
		for _, t := range b.inputs {
			if !tensorSet.Has(t) {
				exceptions.Panicf("invalid graph: %s consumes %s, which is not in the graph", op, t)
			}
		}
		for _, t := range b.outputs {
			if !tensorSet.Has(t) {
				exceptions.Panicf("invalid graph: %s produces %s, which is not in the graph", op, t)
			}
		}
		for _, pred := range b.predecessors {
			if !opSet.Has(pred) {
				exceptions.Panicf("invalid graph: %s has predecessor %s, which is not in the graph", op, pred)
			}
		}
		for _, succ := range b.successors {
			if !opSet.Has(succ) {
				exceptions.Panicf("invalid graph: %s has successor %s, which is not in the graph", op, succ)
			}
		}
	}

	fuids := types.MakeSet[int64](len(g.tensors))
	for _, t := range g.tensors {
		if fuids.Has(t.fuid) {
			exceptions.Panicf("invalid graph: duplicate family id %d (tensor %s)", t.fuid, t)
		}
		fuids.Insert(t.fuid)
	}
}

// String implements fmt.Stringer with a multi-line dump of the graph.
func (g *Graph) String() string {
	var sb strings.Builder
	sb.WriteString("Graph tensors:\n")
	for _, t := range g.tensors {
		sb.WriteString("\t")
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}
	sb.WriteString("Graph operators:\n")
	guids := func(ops []Operator) []int64 {
		return xslices.Map(ops, func(o Operator) int64 { return o.Guid() })
	}
	for _, op := range g.ops {
		_, _ = fmt.Fprintf(&sb, "\t%s pred=%v succ=%v\n",
			op, guids(op.base().predecessors), guids(op.base().successors))
	}
	return sb.String()
}

// Finalize tears the graph down, releasing the arena back to the backend.
// The graph and its tensors' storage views must not be used afterwards.
func (g *Graph) Finalize() {
	g.allocator.Finalize()
	for _, t := range g.tensors {
		t.storage = nil
	}
}
