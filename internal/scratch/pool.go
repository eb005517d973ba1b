// Package scratch hands out size-classed byte buffers from a pool instead
// of allocating a fresh slice every time, and validates on Free that the
// buffer it gets back really came from this package.
//
// Adapted from cache/mempool in the retrieval pack: same footer-encoded
// magic+index tag at the end of the buffer, same power-of-two size classes,
// same sync.Pool backing. Trimmed to the Malloc/Free/Cap surface this
// module actually uses; append helpers were dropped since nothing here
// grows a buffer incrementally. rawheap draws its backing array from here
// instead of calling dirtmake directly, so the array can be returned to the
// pool on Close rather than left for the garbage collector.
package scratch

import (
	"math/bits"
	"sync"
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"
)

type pool struct {
	sync.Pool

	size int
}

var pools []*pool

const (
	minPoolSize = 1 << 10 // 1KB
	maxPoolSize = 1 << 30 // 1GB

	// footer is a trailing 8 bytes holding a magic tag in the high 58 bits
	// and an index into `pools` in the low 6 bits. A footer (rather than a
	// header) means Free can always locate it from cap(buf) alone, with no
	// dependency on how much of the buffer the caller actually used.
	footerLen = 8

	footerMagicMask = uint64(0xFFFFFFFFFFFFFFC0)
	footerIndexMask = uint64(0x000000000000003F)
	footerMagic     = uint64(0x5CEA7C4B5CEA7C00)
)

// bits2idx maps bits.Len(size) to an index into pools.
var bits2idx [64]int

func init() {
	i := 0
	for sz := minPoolSize; sz <= maxPoolSize; sz <<= 1 {
		sz := sz
		p := &pool{size: sz}
		p.New = func() any {
			b := dirtmake.Bytes(sz, sz)
			return &b[0]
		}
		pools = append(pools, p)
		bits2idx[bits.Len(uint(sz))] = i
		i++
	}
}

func poolIndex(sz int) int {
	if sz <= minPoolSize {
		return 0
	}
	i := bits2idx[bits.Len(uint(sz))]
	if uint(sz)&(uint(sz)-1) == 0 {
		return i
	}
	return i + 1
}

type sliceHeader struct {
	Data unsafe.Pointer
	Len  int
	Cap  int
}

// Malloc returns a []byte of length size drawn from a pool. Its contents
// are not guaranteed to be zeroed. Call Free when done with it.
func Malloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	c := size + footerLen
	if c > maxPoolSize {
		b := make([]byte, size)
		return b
	}
	i := poolIndex(c)
	p := pools[i]
	ptr := p.Get().(*byte)

	ret := []byte{}
	h := (*sliceHeader)(unsafe.Pointer(&ret))
	h.Data = unsafe.Pointer(ptr)
	h.Len = size
	h.Cap = p.size

	*(*uint64)(unsafe.Add(h.Data, h.Cap-footerLen)) = footerMagic | uint64(i)
	return ret
}

// Cap returns the usable capacity of a buf returned by Malloc (cap(buf)
// minus the footer). Panics if buf was not obtained from Malloc.
func Cap(buf []byte) int {
	if cap(buf) < footerLen || getFooter(buf)&footerMagicMask != footerMagic {
		panic("scratch: buf not allocated by this package")
	}
	return cap(buf) - footerLen
}

// Free returns buf to its pool. A no-op if buf was not obtained from
// Malloc (e.g. it fell back to a bare make because it exceeded
// maxPoolSize), so it is always safe to call.
func Free(buf []byte) {
	c := cap(buf)
	if c < minPoolSize || c > maxPoolSize {
		return
	}
	if uint(c)&uint(c-1) != 0 {
		return
	}
	if c-len(buf) < footerLen {
		return
	}
	footer := getFooter(buf)
	if footer&footerMagicMask != footerMagic {
		return
	}
	i := int(footer & footerIndexMask)
	if i < len(pools) && pools[i].size == c {
		pools[i].Put(&buf[:c][0])
	}
}

func getFooter(buf []byte) uint64 {
	h := (*sliceHeader)(unsafe.Pointer(&buf))
	return *(*uint64)(unsafe.Add(h.Data, h.Cap-footerLen))
}
