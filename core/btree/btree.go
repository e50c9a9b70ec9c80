// Package btree implements the B+Tree index described in the storage
// engine: a slotted-leaf record store addressed through BRANCH record
// pointers and descended through INTERMEDIATE separator levels, backed by
// core/storage's buffer pool.
package btree

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/arborkv/arbordb/core/storage"
)

const defaultFrameCount = 64
const defaultMaxSlots = 1 << 20

// BPTree is the top-level driver: root-anchored descent, split/merge
// propagation, and search (§4.8). All structural mutation (Insert,
// Update, Delete) is serialized behind mu; Search takes a read lock. Every
// individual page touch still goes through a real buffer-pool guard via
// pager — this single-writer discipline is what lets the tree avoid the
// increasing-pid guard-ordering protocol §5 requires of concurrent
// callers, without needing per-operation deadlock retry at the tree
// level. The BufferPool underneath is independently safe for genuinely
// concurrent guard acquisition; see core/storage's own tests.
type BPTree struct {
	mu     sync.RWMutex
	pager  *pager
	header *TreeHeader

	logger  *zap.Logger
	metrics *Metrics

	frameCount int
	maxSlots   uint32
}

// Create initializes a fresh database file at path: a tree header at page
// 0 and an empty BRANCH root at page 1.
func Create(path string, pageSize int, branchingFactor int, schema []FieldKind, opts ...Option) (*BPTree, error) {
	if branchingFactor < 2 || branchingFactor > 2048 {
		return nil, ErrInvalidBranchingFactor
	}
	if NodeHeaderSize+(branchingFactor+1)*branchEntrySize > pageSize {
		return nil, fmt.Errorf("%w: page size %d too small for branching factor %d", ErrInvalidBranchingFactor, pageSize, branchingFactor)
	}

	t := newTreeWithDefaults(opts...)
	bp, err := storage.NewBufferPool(path, pageSize, t.frameCount,
		storage.WithMaxSlots(t.maxSlots), storage.WithLogger(t.logger))
	if err != nil {
		return nil, err
	}
	alloc := storage.NewPageAllocator(t.maxSlots, bp.Disk())
	t.pager = newPager(bp, alloc)

	header := &TreeHeader{PageSize: pageSize, BranchingFactor: branchingFactor, Schema: schema}
	if err := t.pager.write(storage.TreeHeaderPageID, func(buf []byte) error {
		copy(buf, header.encode(pageSize))
		return nil
	}); err != nil {
		bp.Close()
		return nil, err
	}
	if err := t.pager.initBranch(storage.RootPageID); err != nil {
		bp.Close()
		return nil, err
	}
	t.header = header
	return t, nil
}

// Open reopens an existing database file, recovering the tree's
// configuration from its page-0 header and reconstructing the page
// allocator's free set by walking the tree structure (the allocator
// itself persists nothing to disk).
func Open(path string, opts ...Option) (*BPTree, error) {
	header, err := peekTreeHeader(path)
	if err != nil {
		return nil, err
	}

	t := newTreeWithDefaults(opts...)
	bp, err := storage.NewBufferPool(path, header.PageSize, t.frameCount,
		storage.WithMaxSlots(t.maxSlots), storage.WithLogger(t.logger))
	if err != nil {
		return nil, err
	}
	alloc := storage.NewPageAllocator(t.maxSlots, bp.Disk())
	t.pager = newPager(bp, alloc)
	t.header = header

	occupied, err := t.collectOccupiedPages()
	if err != nil {
		bp.Close()
		return nil, err
	}
	for pid := range occupied {
		alloc.Reserve(pid)
	}
	return t, nil
}

func newTreeWithDefaults(opts ...Option) *BPTree {
	t := &BPTree{
		logger:     zap.NewNop(),
		frameCount: defaultFrameCount,
		maxSlots:   defaultMaxSlots,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.metrics == nil {
		t.metrics = NewMetrics(nil)
	}
	return t
}

// peekTreeHeader reads just enough of path's first page to recover the
// tree header before the real page size (and thus the buffer pool's frame
// geometry) is known. Every field the header can hold fits well within
// storage.MinPageSize for any schema this engine's record model supports.
func peekTreeHeader(path string) (*TreeHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", storage.ErrDiskError, path, err)
	}
	defer f.Close()

	buf := make([]byte, storage.MinPageSize)
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading tree header: %v", storage.ErrDiskError, err)
	}
	return decodeTreeHeader(buf)
}

// Close releases the underlying buffer pool and its file handle.
func (t *BPTree) Close() error {
	return t.pager.bp.Close()
}

// collectOccupiedPages walks the whole tree from the root, returning
// every page id currently part of the structure (branches, intermediates,
// and leaf heaps including their overflow chains).
func (t *BPTree) collectOccupiedPages() (map[PageID]struct{}, error) {
	occupied := make(map[PageID]struct{})
	var walk func(pid PageID) error
	walk = func(pid PageID) error {
		var kind NodeKind
		var n int
		if err := t.pager.read(pid, func(buf []byte) error {
			h := wrapNodeHeader(buf)
			kind = h.Kind()
			n = h.N()
			return nil
		}); err != nil {
			return err
		}
		switch kind {
		case KindIntermediate:
			for i := 0; i < n; i++ {
				var child PageID
				if err := t.pager.read(pid, func(buf []byte) error {
					child = intermediateChild(buf, i)
					return nil
				}); err != nil {
					return err
				}
				occupied[child] = struct{}{}
				if err := walk(child); err != nil {
					return err
				}
			}
		case KindBranch:
			if n == 0 {
				return nil
			}
			head, err := t.pager.readInitialChildPID(pid)
			if err != nil {
				return err
			}
			cur := head
			for cur != 0 {
				occupied[cur] = struct{}{}
				var next PageID
				if err := t.pager.read(cur, func(buf []byte) error {
					next = wrapNodeHeader(buf).NextOverflow()
					return nil
				}); err != nil {
					return err
				}
				cur = next
			}
		}
		return nil
	}
	if err := walk(storage.RootPageID); err != nil {
		return nil, err
	}
	return occupied, nil
}

// splitNode dispatches §4.8's Split cases for the node at pid, given
// whether it's the root and (if not) its parent's pid.
func (t *BPTree) splitNode(pid PageID, kind NodeKind, isRoot bool, parentPID PageID) error {
	defer t.metrics.Splits.Inc()

	if isRoot {
		if kind == KindIntermediate {
			return t.pager.splitRootIntermediate(pid)
		}
		return t.pager.splitRootBranch(pid)
	}

	if kind == KindIntermediate {
		promotedKey, newPID, err := t.pager.splitIntermediate(pid)
		if err != nil {
			return err
		}
		return t.pager.write(parentPID, func(buf []byte) error {
			h := wrapNodeHeader(buf)
			oldN := h.N()
			appendIntermediateEntry(buf, oldN, promotedKey, newPID)
			h.SetN(oldN + 1)
			return nil
		})
	}

	promotedKey, newPID, err := t.pager.splitBranch(pid)
	if err != nil {
		return err
	}
	return t.pager.write(parentPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		oldN := h.N()
		appendIntermediateEntry(buf, oldN, promotedKey, newPID)
		h.SetN(oldN + 1)
		return nil
	})
}

func (t *BPTree) readHeader(pid PageID) (kind NodeKind, n int, err error) {
	err = t.pager.read(pid, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		kind = h.Kind()
		n = h.N()
		return nil
	})
	return
}

// Insert implements §4.8's Insert: descend from the root, splitting any
// full node encountered along the way and rebinding to its parent to
// re-choose the child, until a BRANCH accepts the key and record.
func (t *BPTree) Insert(key int32, rec Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	B := t.header.BranchingFactor
	var path []PageID
	cur := storage.RootPageID

	for {
		kind, n, err := t.readHeader(cur)
		if err != nil {
			return err
		}

		if n >= B {
			isRoot := len(path) == 0
			var parent PageID
			if !isRoot {
				parent = path[len(path)-1]
			}
			if err := t.splitNode(cur, kind, isRoot, parent); err != nil {
				return err
			}
			if isRoot {
				cur = storage.RootPageID
			} else {
				cur = parent
				path = path[:len(path)-1]
			}
			continue
		}

		if kind == KindBranch {
			if err := t.pager.insertIntoBranch(cur, key, rec); err != nil {
				return err
			}
			t.metrics.Inserts.Inc()
			return nil
		}

		var idx int
		var child PageID
		if err := t.pager.read(cur, func(buf []byte) error {
			idx = intermediateChildIndex(buf, n, key)
			child = intermediateChild(buf, idx)
			return nil
		}); err != nil {
			return err
		}
		path = append(path, cur)
		cur = child
	}
}

// Update implements §4.8's descent for Update: no split handling is
// needed since an update never grows a node's entry count, only relocates
// bytes within its owned leaf heap.
func (t *BPTree) Update(key int32, rec Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := storage.RootPageID
	for {
		kind, n, err := t.readHeader(cur)
		if err != nil {
			return err
		}
		if kind == KindBranch {
			if err := t.pager.updateBranchByKey(cur, key, rec); err != nil {
				return err
			}
			t.metrics.Updates.Inc()
			return nil
		}
		var child PageID
		if err := t.pager.read(cur, func(buf []byte) error {
			idx := intermediateChildIndex(buf, n, key)
			child = intermediateChild(buf, idx)
			return nil
		}); err != nil {
			return err
		}
		cur = child
	}
}

// Delete implements §4.8's Delete: descend, redistributing or merging any
// under-occupied child before stepping into it (root exempted from the
// occupancy floor), then delete the triple at the BRANCH.
func (t *BPTree) Delete(key int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	B := t.header.BranchingFactor
	min := minOccupancy(B)
	cur := storage.RootPageID

	for {
		kind, n, err := t.readHeader(cur)
		if err != nil {
			return err
		}

		if kind == KindBranch {
			if err := t.pager.deleteFromBranchByKey(cur, key); err != nil {
				return err
			}
			t.metrics.Deletes.Inc()
			return nil
		}

		var idx int
		var childPID PageID
		if err := t.pager.read(cur, func(buf []byte) error {
			idx = intermediateChildIndex(buf, n, key)
			childPID = intermediateChild(buf, idx)
			return nil
		}); err != nil {
			return err
		}

		childKind, childN, err := t.readHeader(childPID)
		if err != nil {
			return err
		}

		if childN < min {
			var ok bool
			if childKind == KindBranch {
				ok, err = t.pager.redistributeBranch(cur, idx, childPID, B)
				if err == nil && !ok {
					ok, err = t.pager.mergeBranch(cur, idx, childPID, B)
					if ok {
						t.metrics.Merges.Inc()
					}
				} else if ok {
					t.metrics.Redistributions.Inc()
				}
			} else {
				ok, err = t.pager.redistributeIntermediate(cur, idx, childPID, B)
				if err == nil && !ok {
					ok, err = t.pager.mergeIntermediate(cur, idx, childPID, B)
					if ok {
						t.metrics.Merges.Inc()
					}
				} else if ok {
					t.metrics.Redistributions.Inc()
				}
			}
			if err != nil {
				return err
			}
			if !ok {
				// Neither redistribute nor merge could act: childPID has no
				// sibling at all, which only happens when cur is a root that
				// previously collapsed to a single child via merge (the root
				// is exempt from the occupancy floor, so that child was never
				// topped back up). Nothing to fix up at this level; step into
				// the lone child instead of spinning on cur.
				cur = childPID
			}
			continue
		}

		cur = childPID
	}
}

// Search implements §4.8's Search: linear-scan descent through
// INTERMEDIATE separators to a BRANCH, then exact-match lookup.
func (t *BPTree) Search(key int32) (Record, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cur := storage.RootPageID
	for {
		kind, n, err := t.readHeader(cur)
		if err != nil {
			return Record{}, false, err
		}
		if kind == KindBranch {
			return t.pager.searchBranch(cur, key)
		}
		if err := t.pager.read(cur, func(buf []byte) error {
			idx := intermediateChildIndex(buf, n, key)
			cur = intermediateChild(buf, idx)
			return nil
		}); err != nil {
			return Record{}, false, err
		}
	}
}
