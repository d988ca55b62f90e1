//go:build unix

package arenamgr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flier/vma/pkg/arenamgr"
	"github.com/flier/vma/pkg/block"
)

func TestAllocRelease(t *testing.T) {
	t.Parallel()

	b := arenamgr.Alloc(1)
	require.NotNil(t, b)

	assert.True(t, block.First(b))
	assert.True(t, block.Last(b))
	assert.False(t, block.Busy(b))
	assert.GreaterOrEqual(t, block.SizeCurr(b), arenamgr.PageSize())
	assert.Equal(t, uintptr(0), block.SizeCurr(b)%arenamgr.PageSize())

	arenamgr.Release(b, block.SizeCurr(b))
}
