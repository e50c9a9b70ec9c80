package btree

import "encoding/binary"

// NodeHeader is the bounds-checked, typed view over the fixed 8x32-bit
// header present at offset 0 of every non-zero page (§3.4, §6.1):
//
//	kind, n, num_free, free_list_head_or_child_pid, num_fragmented,
//	left_sibling, right_sibling, next_overflow
//
// Field 4's meaning depends on kind: for LEAF it is free_list_head (a byte
// offset); for BRANCH it is the head pid of the branch's owned leaf heap
// (see headLeafOf in branch.go). FreeListHead and InitialChildPID read the
// same raw field and do not check kind, so callers assert Kind() before
// using either.
type NodeHeader struct {
	buf []byte
}

// wrapNodeHeader views buf's first NodeHeaderSize bytes as a node header.
// buf must be at least NodeHeaderSize long.
func wrapNodeHeader(buf []byte) NodeHeader {
	return NodeHeader{buf: buf}
}

func (h NodeHeader) field(i int) uint32 {
	off := 4 * i
	return binary.LittleEndian.Uint32(h.buf[off : off+4])
}

func (h NodeHeader) setField(i int, v uint32) {
	off := 4 * i
	binary.LittleEndian.PutUint32(h.buf[off:off+4], v)
}

// Kind returns the node's tag.
func (h NodeHeader) Kind() NodeKind { return NodeKind(h.field(0)) }

// SetKind sets the node's tag.
func (h NodeHeader) SetKind(k NodeKind) { h.setField(0, uint32(k)) }

// N returns the slot/entry/child count.
func (h NodeHeader) N() int { return int(h.field(1)) }

// SetN sets the slot/entry/child count.
func (h NodeHeader) SetN(n int) {
	if n < 0 {
		panicInvariant("N set to negative value %d", n)
	}
	h.setField(1, uint32(n))
}

// NumFree returns the leaf's num_free counter. initLeaf sets it to 1 and
// deleteFromLeaf adds 1 per freed record; it is not lowered when blocks
// coalesce or are used up by an insert, so it can differ from the actual
// free-list chain length.
func (h NodeHeader) NumFree() int { return int(h.field(2)) }

// SetNumFree sets the leaf's num_free counter.
func (h NodeHeader) SetNumFree(n int) { h.setField(2, uint32(n)) }

// FreeListHead returns field 4 interpreted as a LEAF's free-list head byte
// offset (0 means the list is empty).
func (h NodeHeader) FreeListHead() uint16 { return uint16(h.field(3)) }

// SetFreeListHead sets field 4 as a LEAF's free-list head offset.
func (h NodeHeader) SetFreeListHead(off uint16) { h.setField(3, uint32(off)) }

// InitialChildPID returns field 4 interpreted as a BRANCH's leaf-heap head
// pid: the initial child leaf allocated on its first insert, kept for the
// branch's whole lifetime.
func (h NodeHeader) InitialChildPID() PageID { return PageID(h.field(3)) }

// SetInitialChildPID sets field 4 as a BRANCH's leaf-heap head pid.
func (h NodeHeader) SetInitialChildPID(pid PageID) { h.setField(3, uint32(pid)) }

// NumFragmented returns bytes lost in a LEAF to sub-freeblock-header
// residues.
func (h NodeHeader) NumFragmented() int { return int(h.field(4)) }

// SetNumFragmented sets the fragmentation counter.
func (h NodeHeader) SetNumFragmented(n int) { h.setField(4, uint32(n)) }

// LeftSibling returns the left doubly-linked sibling pid within this
// node's level (0 = none).
func (h NodeHeader) LeftSibling() PageID { return PageID(h.field(5)) }

// SetLeftSibling sets the left sibling pid.
func (h NodeHeader) SetLeftSibling(pid PageID) { h.setField(5, uint32(pid)) }

// RightSibling returns the right doubly-linked sibling pid within this
// node's level (0 = none).
func (h NodeHeader) RightSibling() PageID { return PageID(h.field(6)) }

// SetRightSibling sets the right sibling pid.
func (h NodeHeader) SetRightSibling(pid PageID) { h.setField(6, uint32(pid)) }

// NextOverflow returns the chained overflow LEAF pid (0 = none).
func (h NodeHeader) NextOverflow() PageID { return PageID(h.field(7)) }

// SetNextOverflow sets the chained overflow LEAF pid.
func (h NodeHeader) SetNextOverflow(pid PageID) { h.setField(7, uint32(pid)) }

// Reset zeroes every header field and sets kind.
func (h NodeHeader) Reset(k NodeKind) {
	for i := 0; i < 8; i++ {
		h.setField(i, 0)
	}
	h.SetKind(k)
}
