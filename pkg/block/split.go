package block

import (
	"github.com/flier/vma/internal/debug"
	"github.com/flier/vma/pkg/xunsafe"
)

// ArenaInit carves a single free block spanning the whole of an
// arena-sized region starting at p, and returns its header.
//
// The block is marked both [First] (implicitly, via sizePrev == 0) and
// [Last], since it is, for the moment, the only block in the arena.
func ArenaInit(p *Header, size uintptr) *Header {
	debug.Assert(size%Align == 0, "arena size %d is not aligned to %d", size, Align)

	*p = Header{}

	SetSizeCurr(p, size)
	SetLast(p)

	return p
}

// Split carves req bytes (header included) off the front of a free
// block b, leaving the remainder as a new free block, and returns a
// pointer to that remainder.
//
// Split returns nil, leaving b untouched, when the tail left behind
// would be smaller than minPayload bytes of usable payload -- carving
// it off would produce a free block too small to ever satisfy a future
// request or hold a free-tree node.
func Split(b *Header, req, minPayload uintptr) *Header {
	debug.Assert(!Busy(b), "cannot split a busy block")
	debug.Assert(req%Align == 0, "split request %d is not aligned to %d", req, Align)

	total := SizeCurr(b)
	remainder := total - req

	if remainder < Size+minPayload {
		return nil
	}

	wasLast := Last(b)
	next := Next(b)

	SetSizeCurr(b, req)
	ClearLast(b)

	tail := xunsafe.ByteAdd[Header](b, req)
	*tail = Header{}
	SetSizeCurr(tail, remainder)
	SetSizePrev(tail, req)
	SetOffset(tail, Offset(b)+req)

	if wasLast {
		SetLast(tail)
	} else {
		SetSizePrev(next, remainder)
	}

	return tail
}

// Merge folds the free block r, which must immediately follow b, into
// b, growing b to cover both blocks' space. r must not be referenced
// after Merge returns.
func Merge(b, r *Header) {
	debug.Assert(!Busy(b), "cannot merge into a busy block")
	debug.Assert(!Busy(r), "cannot merge a busy block")
	debug.Assert(Next(b) == r, "r does not immediately follow b")

	total := SizeCurr(b) + SizeCurr(r)

	wasLast := Last(r)

	SetSizeCurr(b, total)

	if wasLast {
		SetLast(b)
	} else {
		next := Next(r)
		SetSizePrev(next, total)
	}
}
