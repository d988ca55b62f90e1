package block_test

import (
	"testing"
	"unsafe"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/flier/vma/pkg/block"
)

func arenaBuf(size uintptr) unsafe.Pointer {
	b := make([]byte, size+block.Align)

	addr := uintptr(unsafe.Pointer(&b[0]))
	pad := (block.Align - addr%block.Align) % block.Align

	return unsafe.Pointer(&b[pad])
}

func TestHeader(t *testing.T) {
	Convey("Given a fresh arena", t, func() {
		const arenaSize = 4096

		p := (*block.Header)(arenaBuf(arenaSize))
		b := block.ArenaInit(p, arenaSize)

		Convey("It is first, last and free", func() {
			So(block.First(b), ShouldBeTrue)
			So(block.Last(b), ShouldBeTrue)
			So(block.Busy(b), ShouldBeFalse)
			So(block.SizeCurr(b), ShouldEqual, arenaSize)
		})

		Convey("PayloadOf and FromPayload round-trip", func() {
			payload := block.PayloadOf(b)
			So(block.FromPayload(payload), ShouldEqual, b)
		})

		Convey("Busy can be toggled without disturbing size", func() {
			block.SetBusy(b)
			So(block.Busy(b), ShouldBeTrue)
			So(block.SizeCurr(b), ShouldEqual, arenaSize)

			block.ClearBusy(b)
			So(block.Busy(b), ShouldBeFalse)
		})

		Convey("When split with a satisfiable remainder", func() {
			req := uintptr(256)
			tail := block.Split(b, req, block.Align)

			Convey("b shrinks to req and is no longer last", func() {
				So(block.SizeCurr(b), ShouldEqual, req)
				So(block.Last(b), ShouldBeFalse)
			})

			Convey("the tail covers the remainder and is last", func() {
				So(tail, ShouldNotBeNil)
				So(block.SizeCurr(tail), ShouldEqual, arenaSize-req)
				So(block.Last(tail), ShouldBeTrue)
				So(block.First(tail), ShouldBeFalse)
				So(block.SizePrev(tail), ShouldEqual, req)
			})

			Convey("Next/Prev thread the two blocks together", func() {
				So(block.Next(b), ShouldEqual, tail)
				So(block.Prev(tail), ShouldEqual, b)
			})

			Convey("Merge restores the original single block", func() {
				block.Merge(b, tail)

				So(block.SizeCurr(b), ShouldEqual, arenaSize)
				So(block.Last(b), ShouldBeTrue)
			})
		})

		Convey("When split would leave too small a remainder", func() {
			tail := block.Split(b, arenaSize-block.Size, block.Align)

			So(tail, ShouldBeNil)
			So(block.SizeCurr(b), ShouldEqual, arenaSize)
		})
	})
}
