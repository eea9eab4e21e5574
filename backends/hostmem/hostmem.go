// Package hostmem implements the host-memory backend: arenas are plain Go
// byte slices, kept alive in a table until deallocated.
//
// It registers itself under the name "hostmem" and is the default backend
// when it is the only one imported.
package hostmem

import (
	"fmt"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/infergraph/infergraph/backends"
	"k8s.io/klog/v2"
)

// BackendName to use in the INFERGRAPH_BACKEND environment variable or backends.DefaultConfig.
const BackendName = "hostmem"

func init() {
	backends.Register(BackendName, New)
}

// Backend holds the live arenas handed out by Alloc, keyed by their base
// address, so the garbage collector cannot reclaim them while a graph still
// points into them.
type Backend struct {
	id        uuid.UUID
	arenas    map[uintptr][]byte
	liveBytes int
	finalized bool
}

// Compile-time check:
var _ backends.Backend = (*Backend)(nil)

// New constructs a hostmem Backend. The config string is ignored, there is
// nothing to configure on the host.
func New(_ string) backends.Backend {
	return &Backend{
		id:     uuid.New(),
		arenas: make(map[uintptr][]byte),
	}
}

// Name implements backends.Backend.
func (b *Backend) Name() string { return BackendName }

// Description implements backends.Backend.
func (b *Backend) Description() string {
	return fmt.Sprintf("hostmem backend %s, %s live in %d arena(s)",
		b.id, humanize.Bytes(uint64(b.liveBytes)), len(b.arenas))
}

// Alloc implements backends.Backend: it reserves size contiguous bytes on
// the host heap and keeps them alive until Dealloc or Finalize.
func (b *Backend) Alloc(size int) []byte {
	b.assertValid()
	if size < 0 {
		exceptions.Panicf("hostmem.Alloc(%d): negative size", size)
	}
	if size == 0 {
		return nil
	}
	arena := make([]byte, size)
	b.arenas[baseAddress(arena)] = arena
	b.liveBytes += size
	klog.V(1).Infof("hostmem: allocated arena of %s", humanize.Bytes(uint64(size)))
	return arena
}

// Dealloc implements backends.Backend. The arena must be exactly a slice
// returned by Alloc on this backend.
func (b *Backend) Dealloc(arena []byte) {
	b.assertValid()
	if len(arena) == 0 {
		return
	}
	addr := baseAddress(arena)
	held, found := b.arenas[addr]
	if !found {
		exceptions.Panicf("hostmem.Dealloc: arena (%d bytes) was not allocated by this backend", len(arena))
	}
	delete(b.arenas, addr)
	b.liveBytes -= len(held)
}

// Finalize implements backends.Backend. Any arena still live is released;
// that usually means a graph was dropped without teardown, so it is logged.
func (b *Backend) Finalize() {
	if b.finalized {
		return
	}
	if len(b.arenas) > 0 {
		klog.Warningf("hostmem: Finalize with %d arena(s) (%s) still live",
			len(b.arenas), humanize.Bytes(uint64(b.liveBytes)))
	}
	b.arenas = nil
	b.liveBytes = 0
	b.finalized = true
}

func (b *Backend) assertValid() {
	if b.finalized {
		exceptions.Panicf("hostmem backend already finalized")
	}
}

func baseAddress(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
}
