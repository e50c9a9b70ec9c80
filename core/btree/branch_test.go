package btree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBranch_InsertSortsByKey(t *testing.T) {
	p := newTestPager(t, 128)
	pid, err := p.allocate()
	require.NoError(t, err)
	require.NoError(t, p.initBranch(pid))

	for _, key := range []int32{30, 10, 20} {
		require.NoError(t, p.insertIntoBranch(pid, key, Record{Payload: []byte("v")}))
	}

	var entries []branchEntry
	require.NoError(t, p.read(pid, func(buf []byte) error {
		entries = branchEntries(buf, wrapNodeHeader(buf).N())
		return nil
	}))
	require.Len(t, entries, 3)
	require.Equal(t, []int32{10, 20, 30}, []int32{entries[0].Key, entries[1].Key, entries[2].Key})
}

func TestBranch_DuplicateKeyRejected(t *testing.T) {
	p := newTestPager(t, 128)
	pid, err := p.allocate()
	require.NoError(t, err)
	require.NoError(t, p.initBranch(pid))

	require.NoError(t, p.insertIntoBranch(pid, 1, Record{Payload: []byte("a")}))
	require.ErrorIs(t, p.insertIntoBranch(pid, 1, Record{Payload: []byte("b")}), ErrDuplicateKey)
}

func TestBranch_UpdateInPlaceAndRelocate(t *testing.T) {
	p := newTestPager(t, 128)
	pid, err := p.allocate()
	require.NoError(t, err)
	require.NoError(t, p.initBranch(pid))

	require.NoError(t, p.insertIntoBranch(pid, 1, Record{Payload: []byte("short")}))

	rec, found, err := p.searchBranch(pid, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "short", string(rec.Payload))

	require.NoError(t, p.updateBranchByKey(pid, 1, Record{Payload: []byte("a-much-longer-value-than-before")}))
	rec, found, err = p.searchBranch(pid, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "a-much-longer-value-than-before", string(rec.Payload))
}

func TestBranch_DeleteRemovesEntryAndRecord(t *testing.T) {
	p := newTestPager(t, 128)
	pid, err := p.allocate()
	require.NoError(t, err)
	require.NoError(t, p.initBranch(pid))

	require.NoError(t, p.insertIntoBranch(pid, 1, Record{Payload: []byte("a")}))
	require.NoError(t, p.insertIntoBranch(pid, 2, Record{Payload: []byte("b")}))

	require.NoError(t, p.deleteFromBranchByKey(pid, 1))
	_, found, err := p.searchBranch(pid, 1)
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = p.searchBranch(pid, 2)
	require.NoError(t, err)
	require.True(t, found)

	require.ErrorIs(t, p.deleteFromBranchByKey(pid, 1), ErrKeyNotFound)
}

func TestBranch_SplitMovesRightHalfAndPromotesMinKey(t *testing.T) {
	p := newTestPager(t, 128)
	pid, err := p.allocate()
	require.NoError(t, err)
	require.NoError(t, p.initBranch(pid))

	for _, key := range []int32{1, 2, 3, 4} {
		require.NoError(t, p.insertIntoBranch(pid, key, Record{Payload: []byte{byte(key)}}))
	}

	promotedKey, newPID, err := p.splitBranch(pid)
	require.NoError(t, err)
	require.Equal(t, int32(3), promotedKey)
	require.NotEqual(t, pid, newPID)

	var leftN, rightN int
	require.NoError(t, p.read(pid, func(buf []byte) error {
		leftN = wrapNodeHeader(buf).N()
		return nil
	}))
	require.NoError(t, p.read(newPID, func(buf []byte) error {
		rightN = wrapNodeHeader(buf).N()
		return nil
	}))
	require.Equal(t, 2, leftN)
	require.Equal(t, 2, rightN)

	for _, key := range []int32{1, 2} {
		_, found, err := p.searchBranch(pid, key)
		require.NoError(t, err)
		require.True(t, found, "key %d should remain on the left branch", key)
	}
	for _, key := range []int32{3, 4} {
		_, found, err := p.searchBranch(newPID, key)
		require.NoError(t, err)
		require.True(t, found, "key %d should have moved to the right branch", key)
	}
}

func TestBranch_RedistributeFromRicherRightSibling(t *testing.T) {
	p := newTestPager(t, 128)
	parent, err := p.allocate()
	require.NoError(t, err)
	require.NoError(t, p.initIntermediate(parent))

	left, err := p.allocate()
	require.NoError(t, err)
	require.NoError(t, p.initBranch(left))
	right, err := p.allocate()
	require.NoError(t, err)
	require.NoError(t, p.initBranch(right))

	require.NoError(t, p.write(left, func(buf []byte) error {
		wrapNodeHeader(buf).SetRightSibling(right)
		return nil
	}))
	require.NoError(t, p.write(right, func(buf []byte) error {
		wrapNodeHeader(buf).SetLeftSibling(left)
		return nil
	}))
	require.NoError(t, p.write(parent, func(buf []byte) error {
		setRootSplitEntries(buf, 100, left, right)
		wrapNodeHeader(buf).SetN(2)
		return nil
	}))

	require.NoError(t, p.insertIntoBranch(left, 10, Record{Payload: []byte("a")}))
	for _, key := range []int32{100, 101, 102} {
		require.NoError(t, p.insertIntoBranch(right, key, Record{Payload: []byte{byte(key)}}))
	}

	min := minOccupancy(4)
	require.Equal(t, 2, min)

	ok, err := p.redistributeBranch(parent, 0, left, 4)
	require.NoError(t, err)
	require.True(t, ok)

	var leftN, rightN int
	require.NoError(t, p.read(left, func(buf []byte) error { leftN = wrapNodeHeader(buf).N(); return nil }))
	require.NoError(t, p.read(right, func(buf []byte) error { rightN = wrapNodeHeader(buf).N(); return nil }))
	require.Equal(t, 2, leftN)
	require.Equal(t, 2, rightN)

	_, found, err := p.searchBranch(left, 100)
	require.NoError(t, err)
	require.True(t, found, "the moved entry should now live on the left branch")
}

func TestBranch_MergeAbsorbsUnderfullSibling(t *testing.T) {
	p := newTestPager(t, 128)
	parent, err := p.allocate()
	require.NoError(t, err)
	require.NoError(t, p.initIntermediate(parent))

	left, err := p.allocate()
	require.NoError(t, err)
	require.NoError(t, p.initBranch(left))
	right, err := p.allocate()
	require.NoError(t, err)
	require.NoError(t, p.initBranch(right))

	require.NoError(t, p.write(left, func(buf []byte) error {
		wrapNodeHeader(buf).SetRightSibling(right)
		return nil
	}))
	require.NoError(t, p.write(right, func(buf []byte) error {
		wrapNodeHeader(buf).SetLeftSibling(left)
		return nil
	}))
	require.NoError(t, p.write(parent, func(buf []byte) error {
		setRootSplitEntries(buf, 100, left, right)
		wrapNodeHeader(buf).SetN(2)
		return nil
	}))

	require.NoError(t, p.insertIntoBranch(left, 10, Record{Payload: []byte("a")}))
	require.NoError(t, p.insertIntoBranch(left, 11, Record{Payload: []byte("b")}))
	require.NoError(t, p.insertIntoBranch(right, 100, Record{Payload: []byte("c")}))

	ok, err := p.mergeBranch(parent, 1, right, 4)
	require.NoError(t, err)
	require.True(t, ok)

	var parentN int
	require.NoError(t, p.read(parent, func(buf []byte) error { parentN = wrapNodeHeader(buf).N(); return nil }))
	require.Equal(t, 1, parentN)

	for _, key := range []int32{10, 11, 100} {
		_, found, err := p.searchBranch(left, key)
		require.NoError(t, err)
		require.True(t, found, "key %d should have been absorbed into the surviving branch", key)
	}
}
