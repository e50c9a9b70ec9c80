package storage

import "errors"

var (
	// ErrOutOfPages is returned by PageAllocator.Allocate when the free-id
	// set is exhausted.
	ErrOutOfPages = errors.New("page allocator: out of pages")
	// ErrDoubleFree is returned by PageAllocator.Free when the page id is
	// already in the free set (or was never allocated).
	ErrDoubleFree = errors.New("page allocator: double free")
	// ErrInvalidPageID is returned when a caller tries to allocate/free one
	// of the two reserved ids (0: tree header, 1: root).
	ErrInvalidPageID = errors.New("page allocator: page id 0 and 1 are reserved")

	// ErrDiskError wraps any open/seek/read/write failure from the
	// underlying file. Non-fatal: the caller may retry.
	ErrDiskError = errors.New("storage: disk error")
	// ErrBufferPoolFull is returned by Guard when every frame is pinned
	// and eviction could not free one.
	ErrBufferPoolFull = errors.New("storage: buffer pool full")
	// ErrDoubleLoad signals a corrupted page_to_frame invariant: fatal.
	ErrDoubleLoad = errors.New("storage: page already mapped to a frame")

	// ErrGuardReleased is returned by Read/Write on a guard that already
	// had Release called on it.
	ErrGuardReleased = errors.New("storage: guard already released")
	// ErrGuardNotWritable is returned by Write on a read guard.
	ErrGuardNotWritable = errors.New("storage: guard does not hold write access")
	// ErrOutOfBounds is returned by Write when offset+len(b) exceeds the
	// page size.
	ErrOutOfBounds = errors.New("storage: write out of page bounds")
)
