//go:build unix

package kernel_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flier/vma/internal/kernel"
)

func TestAllocFree(t *testing.T) {
	t.Parallel()

	size := kernel.PageSize * 4

	p := kernel.Alloc(size)
	require.NotNil(t, p)

	b := unsafe.Slice((*byte)(p), size)
	for _, c := range b {
		assert.Equal(t, byte(0), c)
	}

	b[0] = 0x7e

	kernel.Free(p, size)
}

func TestReset(t *testing.T) {
	t.Parallel()

	size := kernel.PageSize * 4

	p := kernel.Alloc(size)
	require.NotNil(t, p)

	b := unsafe.Slice((*byte)(p), size)
	b[0] = 0x7e

	kernel.Reset(p, size)

	assert.Equal(t, byte(0), b[0])

	kernel.Free(p, size)
}
