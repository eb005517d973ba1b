package seglist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckHeapCleanOnUninitialized(t *testing.T) {
	a := newTestAllocator(t, 4096)
	assert.NoError(t, a.CheckHeap(1))
}

func TestCheckHeapCleanAfterInit(t *testing.T) {
	a := newTestAllocator(t, 1<<16)
	require.NotNil(t, a.Malloc(8))
	assert.NoError(t, a.CheckHeap(1))
}

func TestCheckHeapCatchesFooterCorruption(t *testing.T) {
	a := newTestAllocator(t, 1<<16)
	p := a.Malloc(64)
	require.NotNil(t, p)
	a.Free(p)
	require.NoError(t, a.CheckHeap(1))

	*(*uint32)(footerAddr(p, blockSize(p))) ^= 0xFF

	err := a.CheckHeap(2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFooterMismatch)
}

func TestCheckHeapCatchesAllocBitMismatch(t *testing.T) {
	a := newTestAllocator(t, 1<<16)
	p := a.Malloc(64)
	require.NotNil(t, p)

	// Corrupt the successor's prev-alloc bit directly, bypassing the
	// allocator's own bookkeeping, to simulate metadata corruption.
	setPrevAllocBit(nextBlockPtr(p), false)

	err := a.CheckHeap(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllocBit)
}

func TestCheckHeapCatchesMisclassifiedFreeBlock(t *testing.T) {
	a := newTestAllocator(t, 1<<16)
	p := a.Malloc(64)
	require.NotNil(t, p)
	a.Free(p)
	require.NoError(t, a.CheckHeap(1))

	c := classify(blockSize(p))
	// Move the list head's class bookkeeping without touching the block
	// itself: relocate it to the wrong slot in the directory.
	off := a.getDirOffset(c)
	a.setDirOffset(c, 0)
	a.setDirOffset((c+1)%numClasses, off)

	err := a.CheckHeap(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFreeListMembership)
}

func TestCheckHeapAggregatesMultipleViolations(t *testing.T) {
	a := newTestAllocator(t, 1<<16)
	p := a.Malloc(64)
	require.NotNil(t, p)
	a.Free(p)

	*(*uint32)(footerAddr(p, blockSize(p))) ^= 0xFF
	setPrevAllocBit(nextBlockPtr(p), true)

	err := a.CheckHeap(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFooterMismatch)
	assert.ErrorIs(t, err, ErrAllocBit)
}
