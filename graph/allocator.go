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
	"cmp"
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/infergraph/infergraph/backends"
	"github.com/infergraph/infergraph/types/xslices"
	"k8s.io/klog/v2"
)

// Alignment every allocation is rounded up to: the size of the widest
// supported dtype (uint64/float64).
const Alignment = 8

// Allocator plans the arena of one graph. Alloc returns offsets, not
// addresses: the complete footprint is planned first, and only Base
// materializes the arena by requesting peak bytes from the backend in one
// go. After materialization the plan is frozen -- Alloc and Free panic.
//
// Freed blocks are kept in an offset-ordered, coalesced free list and are
// reused first-fit; a freed block adjacent to the tail is extended instead
// of abandoned, keeping peak tight for LIFO-ish free patterns.
type Allocator struct {
	backend   backends.Backend
	alignment int

	// used is the high-water mark: the first offset past the last
	// ever-allocated byte, not counting the free list. peak is the maximum
	// used ever observed, and is what Base requests from the backend.
	used, peak int

	arena        []byte
	materialized bool

	// freeBlocks lie strictly below used, ordered by offset, no two
	// adjacent (coalescing invariant).
	freeBlocks []freeBlock
}

type freeBlock struct {
	offset, size int
}

// NewAllocator creates an Allocator drawing its backing memory from the
// given backend.
func NewAllocator(backend backends.Backend) *Allocator {
	return &Allocator{
		backend:   backend,
		alignment: Alignment,
	}
}

// Used returns the current high-water mark in bytes.
func (a *Allocator) Used() int { return a.used }

// Peak returns the maximum high-water mark ever observed, the size Base
// will request from the backend.
func (a *Allocator) Peak() int { return a.peak }

// alignedSize pads size up to the next multiple of the alignment.
func (a *Allocator) alignedSize(size int) int {
	return ((size-1)/a.alignment + 1) * a.alignment
}

// Alloc reserves size bytes (rounded up to the alignment) and returns their
// offset within the future arena. It must not be called after Base.
func (a *Allocator) Alloc(size int) int {
	if a.materialized {
		exceptions.Panicf("Allocator.Alloc after the arena was materialized -- planning is over")
	}
	if size <= 0 {
		exceptions.Panicf("Allocator.Alloc(%d): size must be positive", size)
	}
	size = a.alignedSize(size)

	// First fit: carve from the low end of the first block large enough.
	for i, blk := range a.freeBlocks {
		if blk.size < size {
			continue
		}
		if remainder := blk.size - size; remainder > 0 {
			a.freeBlocks[i] = freeBlock{offset: blk.offset + size, size: remainder}
		} else {
			a.freeBlocks = slices.Delete(a.freeBlocks, i, i+1)
		}
		return blk.offset
	}

	// An undersized block at the tail is extended rather than abandoned.
	if len(a.freeBlocks) > 0 {
		last := xslices.Last(a.freeBlocks)
		if last.offset+last.size == a.used {
			a.freeBlocks = a.freeBlocks[:len(a.freeBlocks)-1]
			a.used += size - last.size
			a.peak = max(a.peak, a.used)
			return last.offset
		}
	}

	offset := a.used
	a.used += size
	a.peak = max(a.peak, a.used)
	return offset
}

// Free returns a block previously reserved by Alloc, coalescing it with
// adjacent free blocks. size is rounded with the same rule as Alloc. It
// must not be called after Base.
func (a *Allocator) Free(offset, size int) {
	if a.materialized {
		exceptions.Panicf("Allocator.Free after the arena was materialized -- planning is over")
	}
	if size <= 0 {
		exceptions.Panicf("Allocator.Free(%d, %d): size must be positive", offset, size)
	}
	size = a.alignedSize(size)

	i, found := slices.BinarySearchFunc(a.freeBlocks, offset,
		func(blk freeBlock, off int) int { return cmp.Compare(blk.offset, off) })
	if found {
		exceptions.Panicf("Allocator.Free(%d, %d): block already free", offset, size)
	}
	a.freeBlocks = slices.Insert(a.freeBlocks, i, freeBlock{offset: offset, size: size})

	// Merge with the lower neighbour, then absorb the higher one.
	if i > 0 {
		if prev := a.freeBlocks[i-1]; prev.offset+prev.size == offset {
			a.freeBlocks[i-1].size += size
			a.freeBlocks = slices.Delete(a.freeBlocks, i, i+1)
			i--
		}
	}
	if i+1 < len(a.freeBlocks) {
		blk := a.freeBlocks[i]
		if next := a.freeBlocks[i+1]; blk.offset+blk.size == next.offset {
			a.freeBlocks[i].size += next.size
			a.freeBlocks = slices.Delete(a.freeBlocks, i+1, i+2)
		}
	}
}

// Base materializes the arena on first call by requesting peak contiguous
// bytes from the backend, and returns it. Subsequent calls return the same
// arena. A failed backing allocation panics.
func (a *Allocator) Base() []byte {
	if !a.materialized {
		a.arena = a.backend.Alloc(a.peak)
		if len(a.arena) < a.peak {
			exceptions.Panicf("backend %q failed to allocate the %s arena",
				a.backend.Name(), humanize.Bytes(uint64(a.peak)))
		}
		a.materialized = true
		klog.V(1).Infof("allocator: materialized %s arena on backend %q",
			humanize.Bytes(uint64(a.peak)), a.backend.Name())
	}
	return a.arena
}

// Materialized reports whether Base was already called.
func (a *Allocator) Materialized() bool { return a.materialized }

// Info returns a diagnostic one-liner with the used and peak byte counts.
func (a *Allocator) Info() string {
	return fmt.Sprintf("used memory: %d (%s), peak memory: %d (%s)",
		a.used, humanize.Bytes(uint64(a.used)), a.peak, humanize.Bytes(uint64(a.peak)))
}

// Finalize releases the arena back to the backend. A no-op if the arena was
// never materialized or was already finalized.
func (a *Allocator) Finalize() {
	if !a.materialized {
		return
	}
	if len(a.arena) > 0 {
		a.backend.Dealloc(a.arena)
	}
	a.arena = nil
}
