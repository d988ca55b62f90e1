// Package freetree implements the size-ordered index of free blocks.
//
// The index is a treap: a binary search tree ordered by (size, addr) and
// heap-ordered by a random priority, which keeps it balanced in
// expectation without the bookkeeping a strict AVL or red-black tree
// would need. Ties on size are broken by address so that lookups and
// walks are fully deterministic despite the randomized shape.
//
// Nodes are not allocated separately: each one is overlaid directly on
// the payload of the free block it describes, via a plain pointer
// reinterpretation. A block must therefore have at least [Size] bytes of
// payload before it can be indexed.
package freetree

import (
	"math/rand/v2"
	"unsafe"
)

// Node is the free-tree's view of a free block's payload.
type Node struct {
	left, right *Node
	priority    uint64
	size, addr  uintptr
}

// Size is the number of payload bytes a [Node] occupies.
var Size = unsafe.Sizeof(Node{})

// Of reinterprets a free block's payload as a [Node].
//
// The returned node's fields are whatever bytes the payload holds; they
// are only meaningful once the node has been inserted with [Tree.Add].
func Of(payload unsafe.Pointer) *Node {
	return (*Node)(payload)
}

// Addr returns the address a node indexes, i.e. the addr value it was
// given by [Tree.Add].
func (n *Node) Addr() uintptr { return n.addr }

// SizeOf returns the size a node indexes.
func (n *Node) SizeOf() uintptr { return n.size }

// Tree is a size-ordered index of free blocks.
//
// The zero value is an empty, ready-to-use tree.
type Tree struct {
	root *Node
	rng  *rand.Rand
}

// IsEmpty reports whether t holds no nodes.
func (t *Tree) IsEmpty() bool {
	return t.root == nil
}

func (t *Tree) nextPriority() uint64 {
	if t.rng == nil {
		t.rng = rand.New(rand.NewPCG(0xd1ce5eed, uint64(uintptr(unsafe.Pointer(t)))))
	}

	return t.rng.Uint64()
}

// Add indexes a free block of the given size, identified by addr (used
// as the tie-breaker between equal sizes), overlaying a [Node] on its
// payload in the process.
func (t *Tree) Add(payload unsafe.Pointer, size, addr uintptr) *Node {
	n := Of(payload)
	*n = Node{size: size, addr: addr, priority: t.nextPriority()}

	t.root = insert(t.root, n)

	return n
}

// Remove deletes n from t. n must have been returned by a prior call to
// [Tree.Add] or [Tree.FindBest] on this tree.
func (t *Tree) Remove(n *Node) {
	t.root = remove(t.root, n.size, n.addr)
}

// FindBest returns the free-tree node describing the smallest indexed
// block whose size is at least size, or nil if no block is large
// enough. Ties are broken towards the lowest address.
func (t *Tree) FindBest(size uintptr) *Node {
	var best *Node

	cur := t.root
	for cur != nil {
		if cur.size >= size {
			if best == nil || cur.size < best.size ||
				(cur.size == best.size && cur.addr < best.addr) {
				best = cur
			}

			cur = cur.left
		} else {
			cur = cur.right
		}
	}

	return best
}

// Walk visits every node in ascending (size, addr) order, stopping early
// if visit returns false.
func (t *Tree) Walk(visit func(*Node) bool) {
	walk(t.root, visit)
}

func walk(n *Node, visit func(*Node) bool) bool {
	if n == nil {
		return true
	}

	if !walk(n.left, visit) {
		return false
	}

	if !visit(n) {
		return false
	}

	return walk(n.right, visit)
}

func less(size1, addr1, size2, addr2 uintptr) bool {
	if size1 != size2 {
		return size1 < size2
	}

	return addr1 < addr2
}

func insert(root, n *Node) *Node {
	if root == nil {
		return n
	}

	if less(n.size, n.addr, root.size, root.addr) {
		root.left = insert(root.left, n)

		if root.left.priority > root.priority {
			root = rotateRight(root)
		}
	} else {
		root.right = insert(root.right, n)

		if root.right.priority > root.priority {
			root = rotateLeft(root)
		}
	}

	return root
}

func remove(root *Node, size, addr uintptr) *Node {
	if root == nil {
		return nil
	}

	switch {
	case less(size, addr, root.size, root.addr):
		root.left = remove(root.left, size, addr)
	case less(root.size, root.addr, size, addr):
		root.right = remove(root.right, size, addr)
	default:
		root = mergeChildren(root.left, root.right)
	}

	return root
}

// mergeChildren merges two subtrees known to respect the BST ordering
// relative to each other (everything in left is less than everything in
// right) into one, preserving heap order.
func mergeChildren(left, right *Node) *Node {
	switch {
	case left == nil:
		return right
	case right == nil:
		return left
	case left.priority > right.priority:
		left.right = mergeChildren(left.right, right)
		return left
	default:
		right.left = mergeChildren(left, right.left)
		return right
	}
}

func rotateRight(n *Node) *Node {
	l := n.left
	n.left = l.right
	l.right = n

	return l
}

func rotateLeft(n *Node) *Node {
	r := n.right
	n.right = r.left
	r.left = n

	return r
}
