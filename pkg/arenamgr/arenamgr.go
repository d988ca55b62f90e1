// Package arenamgr obtains and releases the page-granular regions of
// memory, called arenas, that the allocator carves blocks out of.
//
// It is a thin layer over [kernel]: its only job is to round requests up
// to whole pages and seed a freshly obtained arena with a single free
// block spanning it.
package arenamgr

import (
	"unsafe"

	"github.com/flier/vma/internal/kernel"
	"github.com/flier/vma/pkg/block"
	"github.com/flier/vma/pkg/xunsafe/layout"
)

// Alloc obtains a new arena of at least size bytes from the kernel,
// rounded up to a whole number of pages, and returns the header of the
// single free block that spans it. It returns nil if the kernel could
// not satisfy the request.
func Alloc(size uintptr) *block.Header {
	size = layout.RoundUp(size, kernel.PageSize)

	p := kernel.Alloc(size)
	if p == nil {
		return nil
	}

	return block.ArenaInit((*block.Header)(p), size)
}

// Release returns an arena, previously obtained from [Alloc], to the
// kernel. size must be the arena's total size, the same value [Alloc]
// rounded up to and used for the allocation.
func Release(b *block.Header, size uintptr) {
	kernel.Free(unsafe.Pointer(b), size)
}

// PageSize is the granularity [Alloc] rounds requests up to, and the
// unit [Trim] releases interior pages in.
func PageSize() uintptr {
	return kernel.PageSize
}

// Trim advises the kernel that the size bytes starting at p, which must
// be page-aligned, are no longer needed. It is used to give back the
// interior pages of a large free block while keeping its first
// page -- and the free-tree node living there -- intact.
func Trim(p unsafe.Pointer, size uintptr) {
	kernel.Reset(p, size)
}
