//go:build !unix

package kernel

import (
	"unsafe"

	"github.com/flier/vma/internal/debug"
)

func pageSize() uintptr {
	return 4096
}

func Alloc(size uintptr) unsafe.Pointer {
	panic(debug.Unsupported())
}

func Free(p unsafe.Pointer, size uintptr) {
	panic(debug.Unsupported())
}

func Reset(p unsafe.Pointer, size uintptr) {
	panic(debug.Unsupported())
}
