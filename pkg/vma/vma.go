// Package vma implements a general-purpose dynamic memory allocator
// backed directly by kernel virtual memory, in the style of a
// traditional C allocator core: an implicit block chain for coalescing,
// a size-ordered tree index for placement, and page-granular arenas
// obtained on demand.
package vma

import (
	"fmt"
	"io"
	"unsafe"

	"github.com/flier/vma/internal/debug"
	"github.com/flier/vma/pkg/arenamgr"
	"github.com/flier/vma/pkg/block"
	"github.com/flier/vma/pkg/freetree"
	"github.com/flier/vma/pkg/xunsafe"
	"github.com/flier/vma/pkg/xunsafe/layout"
)

// Align is the alignment, in bytes, guaranteed for every payload pointer
// handed back to callers. It matches [block.Align].
const Align = block.Align

// ArenaPages is the number of pages requested for a normal arena. An
// allocation larger than an arena this size can hold is served from its
// own oversized arena instead (see [BlockSizeMax]).
const ArenaPages = 64

// poisonByte is written over a freed payload in debug builds, to turn
// use-after-free into an immediately visible corruption rather than a
// silent read of stale data.
const poisonByte = 0xdd

// trimPoisonByte is written, in debug builds only, over the interior
// pages a large free block gives back to the kernel, just before they are
// reset; a reset page reads back as zero, so a page still holding this
// value was never actually handed back.
const trimPoisonByte = 0x7e

// BlockSizeMin is the smallest total block size the allocator will ever
// produce: a header plus enough payload to host a free-tree node.
var BlockSizeMin = block.Size + layout.RoundUp(freetree.Size, uintptr(Align))

// BlockSizeMax is the size of the largest block a normal, shared arena
// could ever hold: the whole arena, as a single block. Any request whose
// aligned, header-included block size exceeds this gets its own oversized
// arena, sized to fit exactly.
var BlockSizeMax = arenaSize()

func arenaSize() uintptr {
	return layout.RoundUp(ArenaPages*arenamgr.PageSize(), uintptr(Align))
}

// Stats is a point-in-time snapshot of an [Allocator]'s bookkeeping
// counters.
type Stats struct {
	Arenas        uint64
	BytesObtained uint64
	BytesReleased uint64
	BytesInUse    uint64
	FreeBlocks    uint64
}

// FreeBlockInfo describes one block indexed in an [Allocator]'s free
// tree, as reported by [Allocator.Walk].
type FreeBlockInfo struct {
	Size uintptr
	Addr uintptr
}

// Allocator is a single, independent heap.
//
// The zero value is an empty, ready-to-use allocator. Allocator is not
// safe for concurrent use; callers needing that must serialize access
// themselves.
type Allocator struct {
	_ xunsafe.NoCopy

	free freetree.Tree

	arenas        uintptr
	bytesObtained uintptr
	bytesReleased uintptr
	bytesInUse    uintptr
	freeBlocks    uintptr
}

// Allocate returns a pointer to at least size bytes of newly obtained,
// [Align]-aligned memory, or nil if the request could not be satisfied
// (either because the kernel is out of memory, or because size
// overflows when rounded up to an aligned block size).
func (a *Allocator) Allocate(size uintptr) unsafe.Pointer {
	if size == 0 {
		size = 1
	}

	req, ok := a.blockSizeFor(size)
	if !ok {
		debug.Log(nil, "Allocate", "request %d overflows", size)

		return nil
	}

	if req > BlockSizeMax {
		return a.allocateOversized(req)
	}

	b := a.free.FindBest(req - block.Size)
	if b == nil {
		if !a.growArena(arenaSize()) {
			return nil
		}

		b = a.free.FindBest(req - block.Size)
		if b == nil {
			return nil
		}
	}

	hdr := nodeHeader(b)
	a.removeFree(hdr)
	a.afterSplit(hdr, req)

	block.SetBusy(hdr)
	a.bytesInUse += block.SizeCurr(hdr)

	return block.PayloadOf(hdr)
}

// Free returns a payload pointer previously obtained from [Allocate] (or
// [Resize]) to the allocator, making its space available for future
// allocations.
//
// Freeing a nil pointer is a no-op. Freeing anything else that wasn't
// obtained from this allocator is undefined behaviour.
func (a *Allocator) Free(p unsafe.Pointer) {
	if p == nil {
		return
	}

	hdr := block.FromPayload(p)

	// Oversized blocks are never flagged busy by Allocate, by design (see
	// allocateOversized); a clear busy bit on a pointer a caller is
	// legitimately freeing can therefore only mean this.
	if !block.Busy(hdr) {
		a.bytesInUse -= block.SizeCurr(hdr)

		a.releaseArena(hdr)

		return
	}

	a.bytesInUse -= block.SizeCurr(hdr)

	if debug.Enabled {
		poison(hdr, poisonByte)
	}

	block.ClearBusy(hdr)

	hdr = a.coalesce(hdr)

	// Coalescing may have reassembled the whole arena; give it back
	// rather than leave it idle in the free tree.
	if block.First(hdr) && block.Last(hdr) {
		a.releaseArena(hdr)

		return
	}

	a.insertFree(hdr)
	a.trim(hdr)
}

// Resize changes the size of the allocation at p to size bytes,
// returning a (possibly different) pointer to the resized memory. The
// contents up to the smaller of the old and new sizes are preserved.
//
// Resize(nil, size) behaves like Allocate(size). Resize(p, 0) behaves
// like Free(p) and returns nil.
func (a *Allocator) Resize(p unsafe.Pointer, size uintptr) unsafe.Pointer {
	if p == nil {
		return a.Allocate(size)
	}

	if size == 0 {
		a.Free(p)

		return nil
	}

	hdr := block.FromPayload(p)
	oldPayload := block.SizeCurr(hdr) - block.Size

	req, ok := a.blockSizeFor(size)
	if !ok {
		return nil
	}

	// An oversized block is a single-block arena on its own; it can't be
	// split or grown in place without losing the one-arena-per-mapping
	// invariant [Allocator.Free] relies on. A request for exactly its
	// current size is a no-op; anything else goes through the copy path
	// below.
	oversized := block.SizeCurr(hdr) > BlockSizeMax
	if oversized && req == block.SizeCurr(hdr) {
		return p
	}

	if !oversized && req <= block.SizeCurr(hdr) {
		// A block that is last in its arena keeps its slack rather than
		// being split: carving a tail off it would leave that tail as the
		// new last block, but nothing downstream needs the space back
		// badly enough to justify a split here, and the in-place pointer
		// is the cheaper answer anyway.
		if !block.Last(hdr) {
			old := block.SizeCurr(hdr)

			block.ClearBusy(hdr)
			a.afterSplit(hdr, req)
			block.SetBusy(hdr)

			a.bytesInUse -= old - block.SizeCurr(hdr)
		}

		return p
	}

	if !oversized && !block.Last(hdr) {
		next := block.Next(hdr)
		if !block.Busy(next) {
			grown := block.SizeCurr(hdr) + block.SizeCurr(next)
			if grown >= req {
				old := block.SizeCurr(hdr)

				a.removeFree(next)
				block.ClearBusy(hdr)
				block.Merge(hdr, next)
				a.afterSplit(hdr, req)
				block.SetBusy(hdr)

				a.bytesInUse += block.SizeCurr(hdr) - old

				return p
			}
		}
	}

	np := a.Allocate(size)
	if np == nil {
		return nil
	}

	n := oldPayload
	if size < n {
		n = size
	}

	xunsafe.Copy((*byte)(np), (*byte)(p), n)

	a.Free(p)

	return np
}

// Stats returns a snapshot of a's bookkeeping counters.
func (a *Allocator) Stats() Stats {
	return Stats{
		Arenas:        uint64(a.arenas),
		BytesObtained: uint64(a.bytesObtained),
		BytesReleased: uint64(a.bytesReleased),
		BytesInUse:    uint64(a.bytesInUse),
		FreeBlocks:    uint64(a.freeBlocks),
	}
}

// Walk visits every free block currently indexed by a, in ascending
// (size, address) order, stopping early if visit returns false.
func (a *Allocator) Walk(visit func(FreeBlockInfo) bool) {
	a.free.Walk(func(n *freetree.Node) bool {
		return visit(FreeBlockInfo{Size: n.SizeOf(), Addr: n.Addr()})
	})
}

// Show writes a human-readable summary of a's free-block index to w.
func (a *Allocator) Show(w io.Writer) {
	stats := a.Stats()
	fmt.Fprintf(w, "arenas=%d obtained=%d released=%d in-use=%d free-blocks=%d\n",
		stats.Arenas, stats.BytesObtained, stats.BytesReleased, stats.BytesInUse, stats.FreeBlocks)

	a.Walk(func(fb FreeBlockInfo) bool {
		fmt.Fprintf(w, "  free block size=%d addr=%#x\n", fb.Size, fb.Addr)

		return true
	})
}

func nodeHeader(n *freetree.Node) *block.Header {
	return block.FromPayload(unsafe.Pointer(n))
}

func poison(hdr *block.Header, c byte) {
	payload := block.SizeCurr(hdr) - block.Size
	b := unsafe.Slice((*byte)(block.PayloadOf(hdr)), payload)

	for i := range b {
		b[i] = c
	}
}
