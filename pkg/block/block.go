// Package block implements the in-band block header used by the implicit
// doubly-linked chain that threads every arena together.
//
// Each live or free block of memory is preceded by a [Header]. Headers
// form a chain within an arena: walking forward from the first block to
// the one flagged [Last] visits every block in address order, and each
// header's sizePrev field lets the chain be walked backwards too. A
// block is free or busy; free blocks additionally carry a node of the
// free-tree (see package freetree) at the start of their payload.
package block

import (
	"unsafe"

	"github.com/flier/vma/internal/debug"
	"github.com/flier/vma/pkg/xunsafe"
	"github.com/flier/vma/pkg/xunsafe/layout"
)

// Align is the alignment, in bytes, of every block boundary and of every
// payload handed back to callers.
const Align = 16

const (
	busy uintptr = 1 << 0
	last uintptr = 1 << 1

	flagsMask = busy | last
)

// Header precedes every block in an arena.
//
// sizeCurr holds this block's size (header + payload), rounded to
// [Align], with the two low bits repurposed as the busy/last flags.
// sizePrev holds the previous block's size in the same encoding, with
// zero meaning "no previous block" (this is the first block of the
// arena). offset records the distance, in bytes, from the start of the
// owning arena to this header, which lets [block_dontneed]-style
// trimming recover arena boundaries without a side table.
type Header struct {
	sizeCurr uintptr
	sizePrev uintptr
	offset   uintptr
}

// Size is the rounded-up size of a [Header], and therefore the minimum
// distance between two adjacent blocks' start addresses.
var Size = uintptr(layout.RoundUp(layout.Size[Header](), Align))

// SizeCurr returns b's total size (header + payload), in bytes.
func SizeCurr(b *Header) uintptr {
	return b.sizeCurr &^ flagsMask
}

// SetSizeCurr sets b's total size, preserving its flags.
func SetSizeCurr(b *Header, size uintptr) {
	debug.Assert(size%Align == 0, "size %d is not aligned to %d", size, Align)

	b.sizeCurr = size | (b.sizeCurr & flagsMask)
}

// SizePrev returns the size of the block preceding b in its arena, or 0
// if b is the first block.
func SizePrev(b *Header) uintptr {
	return b.sizePrev &^ flagsMask
}

// SetSizePrev records prev's size on b.
func SetSizePrev(b *Header, size uintptr) {
	debug.Assert(size%Align == 0, "size %d is not aligned to %d", size, Align)

	b.sizePrev = size
}

// Offset returns the distance from the start of b's arena to b.
func Offset(b *Header) uintptr {
	return b.offset
}

// SetOffset records b's distance from the start of its arena.
func SetOffset(b *Header, offset uintptr) {
	b.offset = offset
}

// Busy reports whether b is currently handed out to a caller.
func Busy(b *Header) bool {
	return b.sizeCurr&busy != 0
}

// SetBusy marks b as handed out.
func SetBusy(b *Header) {
	b.sizeCurr |= busy
}

// ClearBusy marks b as free.
func ClearBusy(b *Header) {
	b.sizeCurr &^= busy
}

// Last reports whether b is the last block of its arena.
func Last(b *Header) bool {
	return b.sizeCurr&last != 0
}

// SetLast marks b as the last block of its arena.
func SetLast(b *Header) {
	b.sizeCurr |= last
}

// ClearLast clears b's last-block flag.
func ClearLast(b *Header) {
	b.sizeCurr &^= last
}

// First reports whether b is the first block of its arena.
func First(b *Header) bool {
	return b.sizePrev&^flagsMask == 0
}

// PayloadOf returns a pointer to b's payload, immediately following its
// header.
func PayloadOf(b *Header) unsafe.Pointer {
	return unsafe.Pointer(xunsafe.ByteAdd[byte](b, Size))
}

// FromPayload recovers the [Header] owning a payload pointer returned by
// [PayloadOf].
func FromPayload(p unsafe.Pointer) *Header {
	return xunsafe.ByteAdd[Header]((*byte)(p), -int(Size))
}

// Next returns the block immediately following b in its arena, or nil
// if b is the last block.
func Next(b *Header) *Header {
	if Last(b) {
		return nil
	}

	return xunsafe.ByteAdd[Header](b, SizeCurr(b))
}

// Prev returns the block immediately preceding b in its arena, or nil if
// b is the first block.
func Prev(b *Header) *Header {
	prev := SizePrev(b)
	if prev == 0 {
		return nil
	}

	return xunsafe.ByteAdd[Header](b, -int(prev))
}
