package btree

import "github.com/arborkv/arbordb/core/storage"

// NodeKind tags which of the three node shapes a page holds. Dispatch goes
// through this tag rather than an interface hierarchy, so the
// bounds-checked layout accessors in nodeheader.go and record.go stay
// non-polymorphic plain functions over a byte slice.
type NodeKind uint32

const (
	KindIntermediate NodeKind = iota
	KindBranch
	KindLeaf
)

func (k NodeKind) String() string {
	switch k {
	case KindIntermediate:
		return "INTERMEDIATE"
	case KindBranch:
		return "BRANCH"
	case KindLeaf:
		return "LEAF"
	default:
		return "UNKNOWN"
	}
}

// FieldKind enumerates the record-schema field types stored in the tree
// header.
type FieldKind int

const (
	FieldInt FieldKind = iota
	FieldFloat
	FieldVarchar
)

// NodeHeaderSize is the fixed 8x32-bit-field header present at offset 0 of
// every page except the tree header (page 0).
const NodeHeaderSize = 32

// bodyOffset is where a node's type-specific body starts, immediately
// after the fixed header.
const bodyOffset = NodeHeaderSize

// recordHeaderSize is the {type:u32, size:u32} prefix of every record.
const recordHeaderSize = 8

// freeBlockHeaderSize is the {next_offset:u16, size:u16} freeblock prefix.
const freeBlockHeaderSize = 4

// branchEntrySize is one (key:i32, leaf_pid:u32, record_offset:u32) triple.
const branchEntrySize = 12

// PageID re-exported for callers that only import core/btree.
type PageID = storage.PageID
