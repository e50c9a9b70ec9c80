package storage

import (
	"fmt"
	"sync"
)

// PageAllocator owns the page-id namespace [0, maxSlots) for a single
// database file. It never allocates or frees ids 0 (tree header) and 1
// (root); those are implicitly reserved for the lifetime of the file.
//
// It does no disk I/O of its own apart from Addr, a convenience accessor
// that reads a page's current on-disk bytes directly, bypassing the buffer
// pool's cache. Everything that needs bounded-RAM, concurrent access goes
// through BufferPool.Guard instead.
type PageAllocator struct {
	mu       sync.Mutex
	maxSlots uint32
	free     map[PageID]struct{}
	disk     *DiskManager
}

// NewPageAllocator creates an allocator over [0, maxSlots). disk may be nil
// for allocators used purely for id bookkeeping (e.g. in tests); Addr then
// always returns ErrDiskError.
func NewPageAllocator(maxSlots uint32, disk *DiskManager) *PageAllocator {
	free := make(map[PageID]struct{}, maxSlots)
	for pid := FirstFreePageID; uint32(pid) < maxSlots; pid++ {
		free[pid] = struct{}{}
	}
	return &PageAllocator{maxSlots: maxSlots, free: free, disk: disk}
}

// Allocate returns the smallest free id >= 2 and removes it from the free
// set. It fails with ErrOutOfPages once the free set is exhausted.
func (a *PageAllocator) Allocate() (PageID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) == 0 {
		return 0, ErrOutOfPages
	}
	var best PageID
	found := false
	for pid := range a.free {
		if !found || pid < best {
			best = pid
			found = true
		}
	}
	delete(a.free, best)
	return best, nil
}

// Free returns pid to the free set. pid must be >= 2 and not already free.
func (a *PageAllocator) Free(pid PageID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if pid < FirstFreePageID {
		return ErrInvalidPageID
	}
	if _, ok := a.free[pid]; ok {
		return ErrDoubleFree
	}
	if uint32(pid) >= a.maxSlots {
		return fmt.Errorf("%w: pid %d exceeds %d slots", ErrInvalidPageID, pid, a.maxSlots)
	}
	a.free[pid] = struct{}{}
	return nil
}

// Addr reads pid's current bytes directly from disk, bypassing the buffer
// pool. It is O(1) in the number of resident pages (a single seek+read). It
// does not see bytes that are only in a buffer-pool frame, and nothing in
// the engine's read/write path calls it.
func (a *PageAllocator) Addr(pid PageID) ([]byte, error) {
	if a.disk == nil {
		return nil, fmt.Errorf("%w: allocator has no disk manager", ErrDiskError)
	}
	buf := make([]byte, a.disk.PageSize())
	if err := a.disk.ReadPage(pid, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// MaxSlots returns the configured id-space size.
func (a *PageAllocator) MaxSlots() uint32 { return a.maxSlots }

// Reserve removes pid from the free set without requiring it to be
// present, for reconstructing allocator state from an existing file's
// structure (e.g. BPTree.Open walking the tree to find occupied pages).
// A no-op if pid is already reserved/allocated.
func (a *PageAllocator) Reserve(pid PageID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.free, pid)
}
