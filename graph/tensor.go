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
	"sync/atomic"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/infergraph/infergraph/backends"
	"github.com/infergraph/infergraph/pkg/core/dtypes"
	"github.com/infergraph/infergraph/types/shapes"
)

// Process-wide id counters. Guids are diagnostic ids handed to every tensor
// and operator; fuids are family ids shared by clones of the same logical
// tensor and unique per family.
var (
	guidCounter atomic.Int64
	fuidCounter atomic.Int64
)

func nextGuid() int64 { return guidCounter.Add(1) }
func nextFuid() int64 { return fuidCounter.Add(1) }

// Tensor is a node of the computation graph: a shape, a dtype and, after
// memory planning, a view into the graph's arena. It is created by Graph
// factory methods and owned by the Graph; the source and targets fields are
// back-references into the operator list, maintained by the graph's wiring
// protocols.
type Tensor struct {
	shape   shapes.Shape
	size    int // Cache of shape.Size().
	backend backends.Backend

	guid int64 // Diagnostic id, unique per process.
	fuid int64 // Family id: cloned tensors share it, fresh tensors get a new one.

	source  Operator   // Producer; nil for graph inputs.
	targets []Operator // Consumers; empty for graph outputs.

	storage *Storage // Bound during memory planning; nil before.
}

// Storage is a tensor's bound view into the arena of the backend it was
// planned on.
type Storage struct {
	backend backends.Backend
	data    []byte
}

// Bytes returns the raw byte view. The slice aliases the graph arena.
func (s *Storage) Bytes() []byte { return s.data }

// Backend that holds the arena this storage points into.
func (s *Storage) Backend() backends.Backend { return s.backend }

func newTensor(shape shapes.Shape, backend backends.Backend) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("cannot create a tensor with an invalid shape")
	}
	return &Tensor{
		shape:   shape.Clone(),
		size:    shape.Size(),
		backend: backend,
		guid:    nextGuid(),
		fuid:    nextFuid(),
	}
}

// Shape of the tensor. The returned value aliases the tensor's shape; treat it as read-only.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor's elements.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size returns the number of elements, the product of the dimensions.
func (t *Tensor) Size() int { return t.size }

// Bytes returns the storage size in bytes: Size() * DType().Size().
func (t *Tensor) Bytes() int { return t.size * t.shape.DType.Size() }

// Guid returns the diagnostic id, unique per process.
func (t *Tensor) Guid() int64 { return t.guid }

// Fuid returns the family id, shared by clones of the same logical tensor.
func (t *Tensor) Fuid() int64 { return t.fuid }

// Backend the tensor was created for.
func (t *Tensor) Backend() backends.Backend { return t.backend }

// Source returns the operator that produces this tensor, or nil if it is a
// graph input.
func (t *Tensor) Source() Operator { return t.source }

// Targets returns the operators consuming this tensor. The returned slice is
// a copy; an empty result means the tensor is a graph output.
func (t *Tensor) Targets() []Operator {
	return append([]Operator(nil), t.targets...)
}

// setShape replaces the tensor's shape and element-count cache. Only the
// shape-inference pass does this; bound storage would be invalidated by a
// shape change, so it is forbidden after binding.
func (t *Tensor) setShape(shape shapes.Shape) {
	if t.storage != nil {
		exceptions.Panicf("cannot reshape tensor %s: storage already bound", t)
	}
	t.shape = shape.Clone()
	t.size = shape.Size()
}

// bindStorage binds the tensor to its planned arena view. Binding is one-shot.
func (t *Tensor) bindStorage(storage *Storage) {
	if t.storage != nil {
		exceptions.Panicf("tensor %s already has storage bound", t)
	}
	if len(storage.data) != t.Bytes() {
		exceptions.Panicf("storage view of %d bytes does not match tensor %s (%d bytes)",
			len(storage.data), t, t.Bytes())
	}
	t.storage = storage
}

// HasStorage reports whether memory planning already bound this tensor.
func (t *Tensor) HasStorage() bool { return t.storage != nil }

// Storage returns the bound storage view. It panics if the tensor is not
// bound yet -- call Graph.DataMalloc first.
func (t *Tensor) Storage() *Storage {
	if t.storage == nil {
		exceptions.Panicf("tensor %s has no storage bound -- run Graph.DataMalloc first", t)
	}
	return t.storage
}

// Data returns the raw bytes of the tensor inside the graph arena.
// It panics if the tensor is not bound yet.
func (t *Tensor) Data() []byte { return t.Storage().Bytes() }

// CloneDetached returns a copy of the tensor that shares its fuid but has a
// fresh guid, no edges and no storage. It is not registered in any graph;
// see Graph.AddTensorFrom.
func (t *Tensor) CloneDetached() *Tensor {
	return &Tensor{
		shape:   t.shape.Clone(),
		size:    t.size,
		backend: t.backend,
		guid:    nextGuid(),
		fuid:    t.fuid,
	}
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor#%d(fuid=%d, %s)", t.guid, t.fuid, t.shape)
}

// addTarget registers op as a consumer. Wiring protocol use only.
func (t *Tensor) addTarget(op Operator) {
	t.targets = append(t.targets, op)
}

// removeTarget removes every occurrence of op from the consumer list: a
// tensor may be consumed more than once by the same operator, and the
// symmetric operator-side mutation drops all of its references too.
func (t *Tensor) removeTarget(op Operator) {
	kept := t.targets[:0]
	for _, target := range t.targets {
		if target != op {
			kept = append(kept, target)
		}
	}
	t.targets = kept
}

// setSource sets (or clears, with nil) the producer. Wiring protocol use only.
func (t *Tensor) setSource(op Operator) {
	t.source = op
}

// Flat returns the tensor's bound storage viewed as a flat slice of the Go
// type corresponding to its dtype. It panics if T does not match the
// tensor's dtype or if the tensor has no storage bound.
func Flat[T dtypes.Supported](t *Tensor) []T {
	dtype := dtypes.FromGenericsType[T]()
	if dtype != t.DType() {
		exceptions.Panicf("Flat[%s] called on tensor %s of dtype %s", dtype, t, t.DType())
	}
	data := t.Data()
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), t.Size())
}
