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
	"slices"

	"github.com/infergraph/infergraph/types"
	"github.com/infergraph/infergraph/types/shapes"
)

// Optimize applies the local algebraic rewrites to the graph: one pass of
// transpose cancellation, then one pass of transpose-into-matmul fusion.
// Both passes mark operators and tensors over the current operator list and
// a single sweep removes them afterwards, so no pass mutates the list it
// iterates.
func (g *Graph) Optimize() {
	opsToRemove := types.MakeSet[Operator]()
	tensorsToRemove := types.MakeSet[*Tensor]()

	g.cancelInverseTransposes(opsToRemove, tensorsToRemove)
	g.fuseTransposeIntoMatMul(opsToRemove, tensorsToRemove)

	// Sweep: removal protocol first, then drop the marked entities.
	for op := range opsToRemove {
		g.disconnectOperator(op)
	}
	for t := range tensorsToRemove {
		g.RemoveTensor(t)
	}
	for op := range opsToRemove {
		g.removeOperator(op)
	}
}

// cancelInverseTransposes marks pairs of adjacent transposes whose composed
// permutation is the identity, rewiring every consumer of the second
// transpose's output to consume the first transpose's input instead.
//
// The middle tensor must have no consumer besides the second transpose,
// otherwise the pair still has an observer and must stay.
func (g *Graph) cancelInverseTransposes(opsToRemove types.Set[Operator], tensorsToRemove types.Set[*Tensor]) {
	for _, op := range g.ops {
		if opsToRemove.Has(op) || op.Type() != OpTypeTranspose {
			continue
		}
		second := op.(*Transpose)
		middle := second.Input(0)
		src := middle.Source()
		if src == nil || opsToRemove.Has(src) || src.Type() != OpTypeTranspose {
			continue
		}
		first := src.(*Transpose)
		if len(first.permutation) != len(second.permutation) {
			continue
		}
		composed := shapes.ComposePermutations(first.permutation, second.permutation)
		if !slices.Equal(composed, shapes.IdentityPermutation(len(composed))) {
			continue
		}
		if len(middle.targets) != 1 {
			continue
		}

		original := first.Input(0)
		output := second.Output()
		// Targets lists a consumer once per consuming input; replaceInput
		// rewires every occurrence at once.
		rewired := types.MakeSet[Operator]()
		for _, succ := range output.Targets() {
			if rewired.Has(succ) {
				continue
			}
			rewired.Insert(succ)
			g.replaceInput(succ, output, original)
		}
		tensorsToRemove.Insert(middle, output)
		opsToRemove.Insert(first, second)
	}
}

// fuseTransposeIntoMatMul folds a transpose that only swaps the last two
// axes into the transpose flag of each downstream matmul, replacing the
// matmul's input with the transpose's own input. The transpose (and its
// output tensor) is dropped once no consumer is left; a non-matmul consumer
// keeps it alive.
func (g *Graph) fuseTransposeIntoMatMul(opsToRemove types.Set[Operator], tensorsToRemove types.Set[*Tensor]) {
	for _, op := range g.ops {
		if opsToRemove.Has(op) || op.Type() != OpTypeTranspose {
			continue
		}
		transpose := op.(*Transpose)
		if !shapes.IsLastTwoSwap(transpose.permutation) {
			continue
		}
		output := transpose.Output()
		input := transpose.Input(0)

		fused := types.MakeSet[Operator]()
		for _, target := range output.Targets() {
			if target.Type() != OpTypeMatMul || opsToRemove.Has(target) || fused.Has(target) {
				continue
			}
			matmul := target.(*MatMul)
			if matmul.Input(0) == output {
				matmul.transA = !matmul.transA
			}
			if matmul.Input(1) == output {
				matmul.transB = !matmul.transB
			}
			fused.Insert(matmul)
			g.replaceInput(matmul, output, input)
		}

		if len(output.targets) == 0 {
			tensorsToRemove.Insert(output)
			opsToRemove.Insert(transpose)
		}
	}
}
