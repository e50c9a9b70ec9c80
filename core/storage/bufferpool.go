package storage

import (
	"container/heap"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// lruKWindow is the K in the LRU-K-style access-count proxy (spec: K=2).
const lruKWindow = 2

// frame is one slot in the buffer pool: a fixed-size byte buffer plus the
// bookkeeping needed for reader/writer concurrency and eviction.
type frame struct {
	mu             sync.RWMutex
	data           []byte
	pageID         PageID
	mapped         bool
	dirty          bool
	accessCount    uint32
	pendingReaders int32
	pendingWriters int32
}

// AccessMode selects whether Guard returns shared or exclusive access.
type AccessMode int

const (
	Read AccessMode = iota
	Write
)

// BufferPool is a bounded cache of page frames with reader/writer
// concurrency, LRU-K-style eviction, and write-back-on-release. See
// spec.md §4.2 for the full acquisition/eviction algorithm this implements.
type BufferPool struct {
	disk     *DiskManager
	pageSize int
	maxSlots uint32

	mu          sync.Mutex
	frames      []*frame
	freeFrames  map[int]struct{}
	pageToFrame map[PageID]int
	frameToPage map[int]PageID
	inflight    map[PageID]struct{}

	logger  *zap.Logger
	metrics *Metrics
}

// NewBufferPool opens (or creates) the database file at path and builds a
// pool of frameCount frames over it.
func NewBufferPool(path string, pageSize int, frameCount int, opts ...Option) (*BufferPool, error) {
	bp := &BufferPool{
		pageSize: pageSize,
		maxSlots: 1 << 16,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.metrics == nil {
		bp.metrics = NewMetrics(nil)
	}

	disk, err := OpenDiskManager(path, pageSize, bp.maxSlots)
	if err != nil {
		return nil, err
	}
	bp.disk = disk

	bp.frames = make([]*frame, frameCount)
	bp.freeFrames = make(map[int]struct{}, frameCount)
	bp.pageToFrame = make(map[PageID]int, frameCount)
	bp.frameToPage = make(map[int]PageID, frameCount)
	bp.inflight = make(map[PageID]struct{})
	for i := 0; i < frameCount; i++ {
		bp.frames[i] = &frame{data: make([]byte, pageSize)}
		bp.freeFrames[i] = struct{}{}
	}
	return bp, nil
}

// PageSize returns the pool's fixed page size.
func (bp *BufferPool) PageSize() int { return bp.pageSize }

// Disk exposes the underlying DiskManager, e.g. so a PageAllocator can be
// built alongside this pool.
func (bp *BufferPool) Disk() *DiskManager { return bp.disk }

// Close flushes nothing (write guards already flush on release) and closes
// the backing file.
func (bp *BufferPool) Close() error {
	return bp.disk.Close()
}

// Guard acquires a frame for pid in the given mode, following spec.md
// §4.2's frame-acquisition algorithm: hit path blocks on the frame lock with
// the pool mutex released; miss path de-duplicates concurrent loads via
// inflight, and never blocks on disk I/O or a frame lock while holding the
// pool mutex except for the guaranteed-uncontended lock on a freshly
// allocated frame.
func (bp *BufferPool) Guard(pid PageID, mode AccessMode) (*PageGuard, error) {
	backoff := 10 * time.Microsecond
	const maxBackoff = time.Millisecond

	for {
		bp.mu.Lock()

		if idx, ok := bp.pageToFrame[pid]; ok {
			f := bp.frames[idx]
			if mode == Read {
				atomic.AddInt32(&f.pendingReaders, 1)
			} else {
				atomic.AddInt32(&f.pendingWriters, 1)
			}
			bp.mu.Unlock()

			if mode == Read {
				f.mu.RLock()
			} else {
				f.mu.Lock()
			}

			bp.mu.Lock()
			if mode == Read {
				atomic.AddInt32(&f.pendingReaders, -1)
			} else {
				atomic.AddInt32(&f.pendingWriters, -1)
			}
			f.accessCount = (f.accessCount + 1) % lruKWindow
			bp.metrics.PageHits.Inc()
			bp.mu.Unlock()

			bp.logger.Debug("buffer pool hit", zap.Uint32("pid", uint32(pid)), zap.Int("mode", int(mode)))
			return newGuard(bp, f, idx, pid, mode), nil
		}

		if _, ok := bp.inflight[pid]; ok {
			bp.mu.Unlock()
			time.Sleep(backoff)
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}

		idx, err := bp.acquireFreeFrameLocked()
		if err != nil {
			bp.mu.Unlock()
			bp.metrics.BufferPoolFullErrors.Inc()
			return nil, err
		}
		f := bp.frames[idx]
		bp.pageToFrame[pid] = idx
		bp.frameToPage[idx] = pid
		bp.inflight[pid] = struct{}{}
		// Guaranteed uncontended: nobody else can reach this frame index
		// until we publish it above, which we already did under bp.mu.
		if mode == Read {
			f.mu.RLock()
		} else {
			f.mu.Lock()
		}
		bp.mu.Unlock()

		readErr := bp.disk.ReadPage(pid, f.data)

		bp.mu.Lock()
		if readErr != nil {
			delete(bp.pageToFrame, pid)
			delete(bp.frameToPage, idx)
			delete(bp.inflight, pid)
			bp.freeFrames[idx] = struct{}{}
			bp.mu.Unlock()
			if mode == Read {
				f.mu.RUnlock()
			} else {
				f.mu.Unlock()
			}
			bp.metrics.DiskErrors.Inc()
			return nil, fmt.Errorf("%w: loading page %d: %v", ErrDiskError, pid, readErr)
		}
		f.pageID = pid
		f.mapped = true
		f.dirty = false
		f.accessCount = 0
		delete(bp.inflight, pid)
		bp.metrics.PageMisses.Inc()
		bp.metrics.DiskReads.Inc()
		bp.metrics.FramesInUse.Set(float64(len(bp.frameToPage)))
		bp.mu.Unlock()

		bp.logger.Debug("buffer pool miss, loaded from disk", zap.Uint32("pid", uint32(pid)))
		return newGuard(bp, f, idx, pid, mode), nil
	}
}

// acquireFreeFrameLocked must be called with bp.mu held. It returns a free
// frame index, evicting one if necessary.
func (bp *BufferPool) acquireFreeFrameLocked() (int, error) {
	for idx := range bp.freeFrames {
		delete(bp.freeFrames, idx)
		return idx, nil
	}
	return bp.evictLocked()
}

// evictCandidate is one entry in the eviction priority queue: a resident
// frame ordered ascending by its LRU-K access-count proxy.
type evictCandidate struct {
	frameIdx    int
	accessCount uint32
}

type evictHeap []evictCandidate

func (h evictHeap) Len() int            { return len(h) }
func (h evictHeap) Less(i, j int) bool  { return h[i].accessCount < h[j].accessCount }
func (h evictHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *evictHeap) Push(x interface{}) { *h = append(*h, x.(evictCandidate)) }
func (h *evictHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// evictLocked must be called with bp.mu held. It builds a priority queue,
// ascending by access count, over every resident frame, then pops
// candidates until it finds one with zero pending readers/writers whose
// lock can be acquired without blocking.
func (bp *BufferPool) evictLocked() (int, error) {
	h := make(evictHeap, 0, len(bp.frameToPage))
	for idx := range bp.frameToPage {
		h = append(h, evictCandidate{frameIdx: idx, accessCount: bp.frames[idx].accessCount})
	}
	heap.Init(&h)

	for h.Len() > 0 {
		cand := heap.Pop(&h).(evictCandidate)
		f := bp.frames[cand.frameIdx]

		if atomic.LoadInt32(&f.pendingReaders) != 0 || atomic.LoadInt32(&f.pendingWriters) != 0 {
			continue
		}
		if !f.mu.TryLock() {
			continue
		}
		// Dirty pages were already flushed on their last write-guard
		// release (write-back on drop, not on eviction); nothing to do.
		oldPID := f.pageID
		delete(bp.pageToFrame, oldPID)
		delete(bp.frameToPage, cand.frameIdx)
		f.mapped = false
		f.accessCount = 0
		f.mu.Unlock()

		bp.metrics.Evictions.Inc()
		bp.logger.Debug("evicted frame", zap.Int("frame", cand.frameIdx), zap.Uint32("pid", uint32(oldPID)))
		return cand.frameIdx, nil
	}
	return -1, ErrBufferPoolFull
}

// flush writes f's bytes to disk if dirty, then clears the dirty flag.
// Called by PageGuard.Release while f's write lock is still held.
func (bp *BufferPool) flush(f *frame, pid PageID) error {
	if !f.dirty {
		return nil
	}
	if err := bp.disk.WritePage(pid, f.data); err != nil {
		bp.metrics.DiskErrors.Inc()
		return fmt.Errorf("%w: flushing page %d: %v", ErrDiskError, pid, err)
	}
	f.dirty = false
	bp.metrics.DiskWrites.Inc()
	return nil
}
