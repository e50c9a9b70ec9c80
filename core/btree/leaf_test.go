package btree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arborkv/arbordb/core/storage"
)

func newTestPager(t *testing.T, pageSize int) *pager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arbordb.db")
	bp, err := storage.NewBufferPool(path, pageSize, 16, storage.WithMaxSlots(64))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bp.Close() })
	alloc := storage.NewPageAllocator(64, bp.Disk())
	return newPager(bp, alloc)
}

// leafFreeSumAndFragmented reads back the free-list total and fragmentation
// counter a leaf page currently reports.
func leafFreeSumAndFragmented(t *testing.T, p *pager, pid PageID) (freeSum, fragmented int) {
	t.Helper()
	err := p.read(pid, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		fragmented = h.NumFragmented()
		next := decodeNextPtr(h.FreeListHead())
		for next.kind != nextPtrEnd {
			fb := readFreeBlock(buf, int(next.offset))
			freeSum += fb.size
			next = fb.next
		}
		return nil
	})
	require.NoError(t, err)
	return
}

func TestLeaf_InsertAndReadRecord(t *testing.T) {
	p := newTestPager(t, 128)
	pid, err := p.allocate()
	require.NoError(t, err)
	require.NoError(t, p.initLeaf(pid))

	leafPID, offset, err := p.insertIntoLeaf(pid, Record{Type: 1, Payload: []byte("hello")})
	require.NoError(t, err)
	require.Equal(t, pid, leafPID)

	got, err := p.readRecord(leafPID, offset)
	require.NoError(t, err)
	require.Equal(t, uint32(1), got.Type)
	require.Equal(t, "hello", string(got.Payload))
}

func TestLeaf_DeleteFreesSpaceForReuse(t *testing.T) {
	p := newTestPager(t, 128)
	pid, err := p.allocate()
	require.NoError(t, err)
	require.NoError(t, p.initLeaf(pid))

	_, off1, err := p.insertIntoLeaf(pid, Record{Payload: []byte("aaaaaaaaaaaaaaaaaaaa")})
	require.NoError(t, err)
	require.NoError(t, p.deleteFromLeaf(pid, off1))

	_, off2, err := p.insertIntoLeaf(pid, Record{Payload: []byte("bbbbbbbbbbbbbbbbbbbb")})
	require.NoError(t, err)
	require.Equal(t, off1, off2, "freed block should be reused by the next insert of equal size")
}

func TestLeaf_AccountingInvariantHoldsAfterChurn(t *testing.T) {
	const pageSize = 128
	p := newTestPager(t, pageSize)
	pid, err := p.allocate()
	require.NoError(t, err)
	require.NoError(t, p.initLeaf(pid))

	liveFootprint := 0
	offsets := []int{}
	for i := 0; i < 4; i++ {
		rec := Record{Payload: []byte("xyz")}
		_, off, err := p.insertIntoLeaf(pid, rec)
		require.NoError(t, err)
		offsets = append(offsets, off)
		liveFootprint += rec.footprint()
	}

	require.NoError(t, p.deleteFromLeaf(pid, offsets[1]))
	liveFootprint -= Record{Payload: []byte("xyz")}.footprint()

	shrunk := Record{Payload: []byte("x")}
	fits, err := p.updateLeafInPlace(pid, offsets[0], shrunk)
	require.NoError(t, err)
	require.True(t, fits)
	liveFootprint += shrunk.footprint() - Record{Payload: []byte("xyz")}.footprint()

	freeSum, fragmented := leafFreeSumAndFragmented(t, p, pid)
	require.Equal(t, pageSize, liveFootprint+freeSum+fragmented+NodeHeaderSize,
		"bytes_used(records) + free + fragmented + header must equal PAGE_SIZE")
}

func TestLeaf_OverflowChainOnFullPage(t *testing.T) {
	const pageSize = 64
	p := newTestPager(t, pageSize)
	pid, err := p.allocate()
	require.NoError(t, err)
	require.NoError(t, p.initLeaf(pid))

	var leafPIDs []PageID
	for i := 0; i < 3; i++ {
		leafPID, _, err := p.insertIntoLeaf(pid, Record{Payload: []byte("0123456789")})
		require.NoError(t, err)
		leafPIDs = append(leafPIDs, leafPID)
	}
	require.Greater(t, leafPIDs[len(leafPIDs)-1], pid, "third insert should have hopped onto an overflow page")
}
