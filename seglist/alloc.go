package seglist

import "unsafe"

const (
	// dirZoneSize is SEG_NUM * 8: the directory zone holding one head
	// offset per size class.
	dirZoneSize = numClasses * 8

	// chunkSize is the minimum number of bytes requested from the raw
	// heap on a miss, amortizing extension calls.
	chunkSize = 464
)

// rawHeap is the subset of *rawheap.Heap that the allocator depends on.
// Kept as an interface so the core allocator never imports rawheap
// directly — it only needs something that behaves like a raw heap
// service, matching spec's framing of the dependency as external.
type rawHeap interface {
	Sbrk(n int) (unsafe.Pointer, error)
	Base() unsafe.Pointer
	Size() int
}

// Allocator is a segregated-fit dynamic memory allocator over a single
// raw heap. It is not safe for concurrent use and re-entrant calls are
// forbidden, matching the single-threaded, synchronous model this design
// assumes throughout.
type Allocator struct {
	heap rawHeap

	initialized bool
	base        unsafe.Pointer // BASE: offsets in free-list links are relative to this
	epilogueHdr unsafe.Pointer // address of the current epilogue header word
}

// New creates an Allocator over h. The heap is lazily initialized on the
// first Malloc call.
func New(h rawHeap) *Allocator {
	return &Allocator{heap: h}
}

func (a *Allocator) blocksLo() unsafe.Pointer {
	return unsafe.Add(a.base, dirZoneSize+16)
}

func (a *Allocator) inHeap(p unsafe.Pointer) bool {
	if p == nil {
		return false
	}
	lo := uintptr(a.base)
	hi := lo + uintptr(a.heap.Size())
	u := uintptr(p)
	return u >= lo && u < hi
}

// init lays out the directory zone, prologue, and epilogue, then seeds the
// heap with one initial free block. Mirrors §6's initialization protocol.
func (a *Allocator) init() error {
	a.base = a.heap.Base()

	if _, err := a.heap.Sbrk(dirZoneSize); err != nil {
		return err
	}
	for c := 0; c < numClasses; c++ {
		a.setDirOffset(c, 0)
	}

	p, err := a.heap.Sbrk(16)
	if err != nil {
		return err
	}
	prologueHdr := unsafe.Add(p, 4)
	prologueFooter := unsafe.Add(p, 8)
	epilogueHdr := unsafe.Add(p, 12)
	*(*uint32)(prologueHdr) = pack(16, true, true)
	*(*uint32)(prologueFooter) = pack(16, true, true)
	*(*uint32)(epilogueHdr) = pack(0, true, true)
	a.epilogueHdr = epilogueHdr

	_, err = a.extend(chunkSize / 4)
	return err
}

func (a *Allocator) ensureInit() bool {
	if a.initialized {
		return true
	}
	if err := a.init(); err != nil {
		return false
	}
	a.initialized = true
	return true
}

// extend grows the heap by the block-sized equivalent of words 4-byte
// words, replacing the epilogue with a new free block and writing a fresh
// epilogue past it, then coalesces with a free predecessor if one exists.
//
// The original lab computes this block's size from a local that is read
// before it's assigned when the predecessor is free, then special-cases
// shrinking the request by the predecessor's size — a use of uninitialized
// memory. This implementation computes size up front and leaves merging
// entirely to the unconditional coalesce call at the end, which is both
// simpler and correct.
func (a *Allocator) extend(words int) (unsafe.Pointer, error) {
	size := roundUp8(words * 4)
	if size < minBlockSize {
		size = minBlockSize
	}

	oldEpiPrevAlloc := wordPrevAlloc(*(*uint32)(a.epilogueHdr))

	if _, err := a.heap.Sbrk(size); err != nil {
		return nil, err
	}

	bp := unsafe.Add(a.epilogueHdr, 4)
	setHeader(bp, size, oldEpiPrevAlloc, false)
	setFooter(bp, size, oldEpiPrevAlloc, false)

	newEpilogueHdr := unsafe.Add(bp, size-headerSize)
	*(*uint32)(newEpilogueHdr) = pack(0, false, true)
	a.epilogueHdr = newEpilogueHdr

	a.addFree(bp)
	return a.coalesce(bp), nil
}

// coalesce merges bp with whichever of its address-order neighbours are
// free, re-homing the result to the free list for its (possibly new) size
// class. bp must already be present in a free list when this is called —
// both Free and extend insert before coalescing, per §4.G/§4.H.
func (a *Allocator) coalesce(bp unsafe.Pointer) unsafe.Pointer {
	prevFree := !isPrevAllocated(bp)
	next := nextBlockPtr(bp)
	nextFree := !isAllocated(next)

	if !prevFree && !nextFree {
		return bp
	}

	a.removeFree(bp)

	switch {
	case !prevFree && nextFree:
		a.removeFree(next)
		merged := blockSize(bp) + blockSize(next)
		pa := isPrevAllocated(bp)
		setHeader(bp, merged, pa, false)
		setFooter(bp, merged, pa, false)
		a.addFree(bp)
		return bp

	case prevFree && !nextFree:
		prev := prevBlockPtr(bp)
		a.removeFree(prev)
		merged := blockSize(prev) + blockSize(bp)
		pa := isPrevAllocated(prev)
		setHeader(prev, merged, pa, false)
		setFooter(prev, merged, pa, false)
		a.addFree(prev)
		return prev

	default: // both free
		prev := prevBlockPtr(bp)
		a.removeFree(prev)
		a.removeFree(next)
		// Compute the merged size before writing anything, then write the
		// header at prev's address and the footer at prev+merged-8 — both
		// derived from the already-known merged size, so neither write
		// depends on bytes the other write might have disturbed. The
		// original computes the footer's address from the (by-then-stale)
		// successor pointer after mutating prev's header first.
		merged := blockSize(prev) + blockSize(bp) + blockSize(next)
		pa := isPrevAllocated(prev)
		setHeader(prev, merged, pa, false)
		setFooter(prev, merged, pa, false)
		a.addFree(prev)
		return prev
	}
}

// place removes bp from its free list and marks (a prefix of) it
// allocated, splitting off a free remainder when enough slack remains.
func (a *Allocator) place(bp unsafe.Pointer, reqSize int) unsafe.Pointer {
	a.removeFree(bp)
	have := blockSize(bp)
	pa := isPrevAllocated(bp)

	if have-reqSize >= minBlockSize {
		setHeader(bp, reqSize, pa, true)
		rem := unsafe.Add(bp, reqSize)
		remSize := have - reqSize
		setHeader(rem, remSize, true, false)
		setFooter(rem, remSize, true, false)
		a.addFree(rem)
		return bp
	}

	setHeader(bp, have, pa, true)
	setPrevAllocBit(nextBlockPtr(bp), true)
	return bp
}

// adjustedSize computes A: the block size (header included) needed to
// satisfy a size-byte request, rounded up to alignment and floored at the
// minimum block size.
func adjustedSize(size int) int {
	need := roundUp8(size + headerSize)
	if need < minBlockSize {
		need = minBlockSize
	}
	return need
}

// Malloc returns a pointer to an 8-byte-aligned block of at least size
// usable bytes, or nil if size is zero or the heap cannot be extended
// further.
func (a *Allocator) Malloc(size int) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	if !a.ensureInit() {
		return nil
	}

	need := adjustedSize(size)
	if bp := a.findFit(need); bp != nil {
		return a.place(bp, need)
	}

	grow := need
	if chunkSize > grow {
		grow = chunkSize
	}
	bp, err := a.extend(grow / 4)
	if err != nil {
		return nil
	}
	if blockSize(bp) < need {
		return nil
	}
	return a.place(bp, need)
}

// Free releases a block previously returned by Malloc, Calloc, or Realloc.
// A nil pointer or one outside the heap's current bounds is a silent
// no-op; pointers inside the heap that do not address a real block
// boundary are undefined behaviour, per §7.
func (a *Allocator) Free(p unsafe.Pointer) {
	if !a.inHeap(p) {
		return
	}
	sz := blockSize(p)
	pa := isPrevAllocated(p)
	setHeader(p, sz, pa, false)
	setFooter(p, sz, pa, false)
	setPrevAllocBit(nextBlockPtr(p), false)
	a.addFree(p)
	a.coalesce(p)
}

// Realloc resizes the block at p to hold n bytes, preserving its contents
// up to min(n, old payload size). p == nil behaves like Malloc(n); n == 0
// behaves like Free(p), returning nil.
func (a *Allocator) Realloc(p unsafe.Pointer, n int) unsafe.Pointer {
	if p == nil {
		return a.Malloc(n)
	}
	if n == 0 {
		a.Free(p)
		return nil
	}

	need := adjustedSize(n)
	cur := blockSize(p)

	if need <= cur {
		if cur-need >= minBlockSize {
			pa := isPrevAllocated(p)
			setHeader(p, need, pa, true)
			rem := unsafe.Add(p, need)
			remSize := cur - need
			setHeader(rem, remSize, true, false)
			setFooter(rem, remSize, true, false)
			setPrevAllocBit(nextBlockPtr(rem), false)
			a.addFree(rem)
			a.coalesce(rem)
		}
		return p
	}

	q := a.Malloc(n)
	if q == nil {
		return nil
	}
	oldPayload := cur - headerSize
	copySize := oldPayload
	if n < copySize {
		copySize = n
	}
	copy(unsafe.Slice((*byte)(q), copySize), unsafe.Slice((*byte)(p), copySize))
	a.Free(p)
	return q
}

// Calloc returns a zero-initialized block of nmemb*size bytes, or nil if
// either count is zero or the multiplication overflows int.
func (a *Allocator) Calloc(nmemb, size int) unsafe.Pointer {
	if nmemb == 0 || size == 0 {
		return nil
	}
	total := nmemb * size
	if total/nmemb != size {
		return nil
	}
	p := a.Malloc(total)
	if p == nil {
		return nil
	}
	payload := unsafe.Slice((*byte)(p), total)
	for i := range payload {
		payload[i] = 0
	}
	return p
}

// Stats summarizes the heap's current utilization.
type Stats struct {
	HeapSize   int
	BytesUsed  int
	BytesFree  int
	LiveBlocks int
	FreeBlocks int
}

// Stats walks the heap in address order and reports its current
// utilization. Grounded on the teacher's BuddyAllocator.Available, widened
// from "bytes free" alone to a fuller breakdown since this allocator's
// callers care about fragmentation, not just headroom.
func (a *Allocator) Stats() Stats {
	var s Stats
	if !a.initialized {
		return s
	}
	s.HeapSize = a.heap.Size()
	for bp := a.blocksLo(); ; {
		sz := blockSize(bp)
		if sz == 0 {
			break
		}
		if isAllocated(bp) {
			s.LiveBlocks++
			s.BytesUsed += sz
		} else {
			s.FreeBlocks++
			s.BytesFree += sz
		}
		bp = nextBlockPtr(bp)
	}
	return s
}
