// Package rawheap is the concrete stand-in for the raw heap service that
// seglist treats as an external collaborator: a single fixed-size
// reservation that only ever grows via Sbrk, with Lo/Hi reporting its
// current bounds.
//
// There is no memlib.c equivalent in the retrieved original source, so the
// contract here is read off seglist's own expectations of its dependency:
// contiguous growth, a stable low address, and no silent zero-fill beyond
// what the allocator itself establishes.
package rawheap

import (
	"errors"
	"unsafe"

	"github.com/cloudwego-gopkg-labs/seglist/internal/scratch"
)

// ErrOutOfMemory is returned by Sbrk when growing the heap would exceed the
// reservation a Heap was created with.
var ErrOutOfMemory = errors.New("rawheap: out of memory")

// Heap is a fixed-size memory reservation with a monotonically increasing
// high-water mark. It is not safe for concurrent use.
type Heap struct {
	arena []byte
	base  unsafe.Pointer
	used  int
}

// New reserves a backing array of maxBytes and returns a Heap with nothing
// yet committed (Lo() == Hi()).
func New(maxBytes int) *Heap {
	if maxBytes <= 0 {
		panic("rawheap: maxBytes must be positive")
	}
	arena := scratch.Malloc(maxBytes)
	return &Heap{
		arena: arena,
		base:  unsafe.Pointer(&arena[0]),
	}
}

// Sbrk grows the heap by n bytes and returns a pointer to the first byte of
// the new region. n may be negative to shrink the high-water mark, mirroring
// the sbrk(2) contract the original lab relies on; n == 0 returns the
// current break without moving it. The bytes of a growing Sbrk are not
// guaranteed to be zeroed.
func (h *Heap) Sbrk(n int) (unsafe.Pointer, error) {
	if h.used+n < 0 {
		return nil, errors.New("rawheap: sbrk would move break before heap start")
	}
	if h.used+n > len(h.arena) {
		return nil, ErrOutOfMemory
	}
	old := h.used
	h.used += n
	return unsafe.Add(h.base, old), nil
}

// Base returns the fixed address of the first byte of the reservation,
// available immediately after New — unlike Lo, which only becomes
// meaningful once something has been committed via Sbrk. Callers that need
// a stable address to measure offsets from (seglist's BASE) use this
// instead of Lo.
func (h *Heap) Base() unsafe.Pointer {
	return h.base
}

// Lo returns the address of the first byte of the heap, or nil if nothing
// has been committed yet.
func (h *Heap) Lo() unsafe.Pointer {
	if h.used == 0 {
		return nil
	}
	return h.base
}

// Hi returns the address of the last valid byte of the heap, or nil if
// nothing has been committed yet.
func (h *Heap) Hi() unsafe.Pointer {
	if h.used == 0 {
		return nil
	}
	return unsafe.Add(h.base, h.used-1)
}

// Size reports the number of bytes currently committed via Sbrk.
func (h *Heap) Size() int {
	return h.used
}

// Cap reports the total reservation this Heap was created with.
func (h *Heap) Cap() int {
	return len(h.arena)
}

// Close returns the backing array to the pool it was drawn from. The Heap
// must not be used afterwards.
func (h *Heap) Close() {
	scratch.Free(h.arena)
	h.arena = nil
	h.base = nil
	h.used = 0
}
