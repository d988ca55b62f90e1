package xunsafe_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/flier/vma/pkg/xunsafe"
)

func TestByteAdd(t *testing.T) {
	Convey("Given byte addition operations", t, func() {
		arr := [5]int{1, 2, 3, 4, 5}
		basePtr := &arr[0]

		ptr1 := xunsafe.ByteAdd[int](basePtr, 8) // assuming int is 8 bytes
		So(*ptr1, ShouldEqual, 2)

		ptr2 := xunsafe.ByteAdd[int](basePtr, 16) // 2 * 8 bytes
		So(*ptr2, ShouldEqual, 3)

		ptr0 := xunsafe.ByteAdd[int](basePtr, 0)
		So(*ptr0, ShouldEqual, 1)
	})
}
