package vma

import (
	"unsafe"

	"github.com/flier/vma/internal/debug"
	"github.com/flier/vma/pkg/arenamgr"
	"github.com/flier/vma/pkg/block"
	"github.com/flier/vma/pkg/freetree"
	"github.com/flier/vma/pkg/xunsafe"
	"github.com/flier/vma/pkg/xunsafe/layout"
)

// blockSizeFor computes the total, aligned block size (header included)
// needed to satisfy a size-byte payload request. ok is false if size is
// so large that rounding it up overflows uintptr.
func (a *Allocator) blockSizeFor(size uintptr) (_ uintptr, ok bool) {
	if size > ^uintptr(0)-(Align-1) {
		return 0, false
	}

	payload := layout.RoundUp(size, uintptr(Align))
	if payload < BlockSizeMin-block.Size {
		payload = BlockSizeMin - block.Size
	}

	if payload > ^uintptr(0)-block.Size {
		return 0, false
	}

	return block.Size + payload, true
}

// afterSplit carves the tail off a newly placed block hdr once it no
// longer needs to be as large as req, if doing so leaves a usable free
// remainder, and indexes that remainder.
func (a *Allocator) afterSplit(hdr *block.Header, req uintptr) {
	tail := block.Split(hdr, req, BlockSizeMin-block.Size)
	if tail == nil {
		return
	}

	a.insertFree(tail)
}

// growArena obtains a fresh arena of at least size bytes and indexes the
// single free block it seeds, returning false if the kernel could not
// satisfy the request.
func (a *Allocator) growArena(size uintptr) bool {
	hdr := arenamgr.Alloc(size)
	if hdr == nil {
		return false
	}

	a.arenas++
	a.bytesObtained += block.SizeCurr(hdr)

	a.insertFree(hdr)

	return true
}

// allocateOversized serves a request too large for a shared arena by
// giving it an arena all to itself, sized to fit exactly.
//
// Oversized blocks are never indexed in the free tree and, unlike
// ordinary blocks, are not marked busy: they are always exactly one
// arena, and [Allocator.Free] recognises them by their clear busy flag,
// since every ordinary block it is handed is busy.
func (a *Allocator) allocateOversized(req uintptr) unsafe.Pointer {
	hdr := arenamgr.Alloc(req)
	if hdr == nil {
		return nil
	}

	a.arenas++
	a.bytesObtained += block.SizeCurr(hdr)
	a.bytesInUse += block.SizeCurr(hdr)

	return block.PayloadOf(hdr)
}

// releaseArena returns a whole, single-block arena to the kernel. hdr
// must be both first and last in its arena.
func (a *Allocator) releaseArena(hdr *block.Header) {
	size := block.SizeCurr(hdr)

	a.bytesReleased += size
	a.arenas--

	arenamgr.Release(hdr, size)
}

// coalesce merges hdr with any free neighbour immediately before or
// after it in the implicit chain, returning the (possibly different)
// header of the merged block. Neighbours already indexed in the free
// tree are removed from it before merging.
func (a *Allocator) coalesce(hdr *block.Header) *block.Header {
	if next := block.Next(hdr); next != nil && !block.Busy(next) {
		a.removeFree(next)
		block.Merge(hdr, next)
	}

	if prev := block.Prev(hdr); prev != nil && !block.Busy(prev) {
		a.removeFree(prev)
		block.Merge(prev, hdr)

		hdr = prev
	}

	return hdr
}

func (a *Allocator) insertFree(hdr *block.Header) {
	debug.Assert(!block.Busy(hdr), "cannot index a busy block as free")

	payload := block.SizeCurr(hdr) - block.Size
	a.free.Add(block.PayloadOf(hdr), payload, uintptr(unsafe.Pointer(hdr)))
	a.freeBlocks++
}

func (a *Allocator) removeFree(hdr *block.Header) {
	n := (*freetree.Node)(block.PayloadOf(hdr))

	a.free.Remove(n)
	a.freeBlocks--
}

// trim gives back the interior pages of a large free block to the
// kernel, keeping its first page -- which holds the header and, once
// re-indexed, the free-tree node -- resident.
//
// It only applies once the block holds at least one whole page beyond
// the header and node; anything smaller has no interior page left to
// reclaim.
func (a *Allocator) trim(hdr *block.Header) {
	pageSize := arenamgr.PageSize()

	size := block.SizeCurr(hdr)
	nodeSpace := block.Size + layout.RoundUp(freetree.Size, uintptr(Align))

	if size < nodeSpace+pageSize {
		return
	}

	base := uintptr(unsafe.Pointer(hdr))
	trimStart := layout.RoundUp(base+nodeSpace, pageSize)
	trimEnd := layout.RoundDown(base+size, pageSize)

	if trimEnd <= trimStart {
		return
	}

	trimmed := unsafe.Slice(xunsafe.ByteAdd[byte](hdr, trimStart-base), trimEnd-trimStart)

	if debug.Enabled {
		for i := range trimmed {
			trimmed[i] = trimPoisonByte
		}
	}

	arenamgr.Trim(unsafe.Pointer(&trimmed[0]), trimEnd-trimStart)
}
