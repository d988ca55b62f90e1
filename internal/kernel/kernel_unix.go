//go:build unix

package kernel

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/flier/vma/internal/debug"
	"github.com/flier/vma/pkg/xerrors"
)

func pageSize() uintptr {
	return uintptr(unix.Getpagesize())
}

// Alloc asks the kernel for a fresh, zeroed mapping of size bytes.
//
// size must already be a multiple of [PageSize]. Alloc returns nil when
// the kernel refuses the request for lack of memory (ENOMEM); any other
// failure indicates a contract violation by the caller (bad size,
// exhausted address space flags, ...) and is fatal, since the allocator
// has no way to recover from a kernel it cannot reason about.
func Alloc(size uintptr) unsafe.Pointer {
	b, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		if errno, ok := xerrors.AsA[syscall.Errno](err); ok && errno == syscall.ENOMEM {
			debug.Log(nil, "Alloc", "mmap(%d) failed: out of memory", size)

			return nil
		}

		fatal("mmap", size, err)
	}

	return unsafe.Pointer(&b[0])
}

// Free releases a mapping previously obtained from Alloc. size must be
// the same size passed to the matching Alloc call.
func Free(p unsafe.Pointer, size uintptr) {
	b := unsafe.Slice((*byte)(p), size)

	if err := unix.Munmap(b); err != nil {
		fatal("munmap", size, err)
	}
}

// Reset advises the kernel that the pages backing [p, p+size) are no
// longer needed, allowing it to reclaim their physical backing. The
// virtual mapping itself is left intact; a subsequent touch will fault
// in fresh, zeroed pages.
func Reset(p unsafe.Pointer, size uintptr) {
	b := unsafe.Slice((*byte)(p), size)

	if err := unix.Madvise(b, unix.MADV_DONTNEED); err != nil {
		fatal("madvise", size, err)
	}
}

func fatal(op string, size uintptr, err error) {
	fmt.Fprintf(os.Stderr, "vma: %s(%d) failed: %s\n", op, size, err)
	os.Exit(1)
}
