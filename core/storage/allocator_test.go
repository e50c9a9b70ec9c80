package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageAllocator_AllocateReturnsSmallestFreeID(t *testing.T) {
	a := NewPageAllocator(8, nil)

	first, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, FirstFreePageID, first)

	second, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, FirstFreePageID+1, second)

	require.NoError(t, a.Free(first))

	third, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, first, third, "freed id should be reused before higher ids")
}

func TestPageAllocator_NeverHandsOutReservedIDs(t *testing.T) {
	a := NewPageAllocator(4, nil)
	for i := 0; i < 2; i++ {
		pid, err := a.Allocate()
		require.NoError(t, err)
		require.GreaterOrEqual(t, uint32(pid), uint32(FirstFreePageID))
	}
	_, err := a.Allocate()
	require.ErrorIs(t, err, ErrOutOfPages)
}

func TestPageAllocator_FreeRejectsReservedAndDoubleFree(t *testing.T) {
	a := NewPageAllocator(8, nil)

	require.ErrorIs(t, a.Free(TreeHeaderPageID), ErrInvalidPageID)
	require.ErrorIs(t, a.Free(RootPageID), ErrInvalidPageID)

	pid, err := a.Allocate()
	require.NoError(t, err)
	require.NoError(t, a.Free(pid))
	require.ErrorIs(t, a.Free(pid), ErrDoubleFree)
}
