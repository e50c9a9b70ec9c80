package storage

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// PageGuard is a scoped, move-only access token for one frame. A read
// guard allows repeated reads and may coexist with other read guards on the
// same page; a write guard is exclusive and flushes the frame to disk on
// Release, before releasing the frame lock. Release is idempotent.
type PageGuard struct {
	bp       *BufferPool
	f        *frame
	frameIdx int
	pid      PageID
	mode     AccessMode
	released int32
}

func newGuard(bp *BufferPool, f *frame, frameIdx int, pid PageID, mode AccessMode) *PageGuard {
	return &PageGuard{bp: bp, f: f, frameIdx: frameIdx, pid: pid, mode: mode}
}

// PageID returns the page this guard grants access to.
func (g *PageGuard) PageID() PageID { return g.pid }

// Read returns the frame's current bytes. Valid for both read and write
// guards until Release is called.
func (g *PageGuard) Read() []byte {
	return g.f.data
}

// Write copies b into the frame at offset and marks the frame dirty. Only
// valid on a write guard; bounds-checked against the page size.
func (g *PageGuard) Write(b []byte, offset int) error {
	if g.mode != Write {
		return ErrGuardNotWritable
	}
	if atomic.LoadInt32(&g.released) != 0 {
		return ErrGuardReleased
	}
	if offset < 0 || offset+len(b) > len(g.f.data) {
		return ErrOutOfBounds
	}
	copy(g.f.data[offset:], b)
	g.f.dirty = true
	return nil
}

// WritableBytes returns the frame's raw byte slice for in-place, scattered
// mutation (slotted layouts touch header fields, free blocks, and record
// bytes at arbitrary offsets in one pass). Only valid on a write guard;
// callers must call MarkDirty after mutating.
func (g *PageGuard) WritableBytes() ([]byte, error) {
	if g.mode != Write {
		return nil, ErrGuardNotWritable
	}
	if atomic.LoadInt32(&g.released) != 0 {
		return nil, ErrGuardReleased
	}
	return g.f.data, nil
}

// MarkDirty flags the frame for write-back on Release. Only valid on a
// write guard.
func (g *PageGuard) MarkDirty() {
	if g.mode == Write {
		g.f.dirty = true
	}
}

// Release releases the frame lock, flushing dirty bytes to disk first if
// this is a write guard. Safe to call more than once; only the first call
// has effect.
func (g *PageGuard) Release() {
	if !atomic.CompareAndSwapInt32(&g.released, 0, 1) {
		return
	}
	if g.mode == Write {
		if err := g.bp.flush(g.f, g.pid); err != nil {
			g.bp.logger.Error("failed to flush write guard on release",
				zap.Uint32("pid", uint32(g.pid)), zap.Error(err))
		}
		g.f.mu.Unlock()
	} else {
		g.f.mu.RUnlock()
	}
}
