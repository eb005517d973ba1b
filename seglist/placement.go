package seglist

import "unsafe"

// findFit searches the segregated lists for a free block of at least
// reqSize bytes, escalating to larger classes on a miss. Requests below
// the C7 threshold use first-fit within each list; at or above it, every
// list searched uses best-fit (scan the whole list, smallest adequate
// block wins, ties go to whichever was found first). Returns nil if no
// class has a fit.
func (a *Allocator) findFit(reqSize int) unsafe.Pointer {
	bestFit := reqSize >= classLowerBound[firstBestFitClass]
	for c := classify(reqSize); c < numClasses; c++ {
		headOff := a.getDirOffset(c)
		if headOff == 0 {
			continue
		}
		if !bestFit {
			if bp := firstFitIn(a, headOff, reqSize); bp != nil {
				return bp
			}
			continue
		}
		if bp := bestFitIn(a, headOff, reqSize); bp != nil {
			return bp
		}
	}
	return nil
}

func firstFitIn(a *Allocator, headOff uint32, reqSize int) unsafe.Pointer {
	for off := headOff; off != 0; {
		bp := a.offsetToPtr(off)
		if blockSize(bp) >= reqSize {
			return bp
		}
		off = getNextOffset(bp)
	}
	return nil
}

func bestFitIn(a *Allocator, headOff uint32, reqSize int) unsafe.Pointer {
	var best unsafe.Pointer
	bestSize := 0
	for off := headOff; off != 0; {
		bp := a.offsetToPtr(off)
		sz := blockSize(bp)
		if sz == reqSize {
			return bp
		}
		if sz >= reqSize && (best == nil || sz < bestSize) {
			best, bestSize = bp, sz
		}
		off = getNextOffset(bp)
	}
	return best
}
