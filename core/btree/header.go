package btree

import (
	"encoding/binary"
	"fmt"
)

// TreeHeader is the persistent, tree-wide configuration stored at page 0:
// page size, branching factor, and the record schema. It never changes
// after Create.
type TreeHeader struct {
	PageSize        int
	BranchingFactor int
	Schema          []FieldKind
}

// treeHeaderSize returns the encoded size in bytes for a schema of the
// given field count: page_size, branching_factor, num_fields, then one u32
// per field kind.
func treeHeaderSize(numFields int) int {
	return 12 + 4*numFields
}

// encode packs the tree header as little-endian u32 fields per §6.1:
// offset 0 page_size, offset 4 branching_factor, offset 8 num_fields,
// offset 12.. one u32 field_kind per schema field.
func (h *TreeHeader) encode(pageSize int) []byte {
	buf := make([]byte, pageSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.PageSize))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.BranchingFactor))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(h.Schema)))
	for i, fk := range h.Schema {
		binary.LittleEndian.PutUint32(buf[12+4*i:16+4*i], uint32(fk))
	}
	return buf
}

// decodeTreeHeader reads back a TreeHeader from page 0's raw bytes.
func decodeTreeHeader(buf []byte) (*TreeHeader, error) {
	if len(buf) < 12 {
		return nil, fmt.Errorf("%w: tree header page shorter than 12 bytes", ErrInvariantViolation)
	}
	pageSize := int(binary.LittleEndian.Uint32(buf[0:4]))
	branching := int(binary.LittleEndian.Uint32(buf[4:8]))
	numFields := int(binary.LittleEndian.Uint32(buf[8:12]))
	if numFields < 0 || 12+4*numFields > len(buf) {
		return nil, fmt.Errorf("%w: tree header num_fields %d out of bounds", ErrInvariantViolation, numFields)
	}
	schema := make([]FieldKind, numFields)
	for i := 0; i < numFields; i++ {
		schema[i] = FieldKind(binary.LittleEndian.Uint32(buf[12+4*i : 16+4*i]))
	}
	return &TreeHeader{PageSize: pageSize, BranchingFactor: branching, Schema: schema}, nil
}
