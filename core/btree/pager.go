package btree

import "github.com/arborkv/arbordb/core/storage"

// pager is the tree's one gateway to page storage: every structural
// operation reads and writes pages exclusively through it, one guard at a
// time, rather than holding several guards across a multi-page mutation.
// Because BPTree already serializes all structural mutation behind a
// single RWMutex (see btree.go), this is safe without the guard ordering
// discipline §5 otherwise requires of concurrent callers — there is only
// ever one structural writer in flight, so sequential acquire/release
// cannot race against itself.
type pager struct {
	bp    *storage.BufferPool
	alloc *storage.PageAllocator
}

func newPager(bp *storage.BufferPool, alloc *storage.PageAllocator) *pager {
	return &pager{bp: bp, alloc: alloc}
}

// read acquires a read guard on pid, hands its bytes to fn, and releases.
func (p *pager) read(pid PageID, fn func(buf []byte) error) error {
	g, err := p.bp.Guard(pid, storage.Read)
	if err != nil {
		return err
	}
	defer g.Release()
	return fn(g.Read())
}

// write acquires a write guard on pid, hands its mutable bytes to fn,
// marks the frame dirty, and releases (which flushes).
func (p *pager) write(pid PageID, fn func(buf []byte) error) error {
	g, err := p.bp.Guard(pid, storage.Write)
	if err != nil {
		return err
	}
	defer g.Release()
	buf, err := g.WritableBytes()
	if err != nil {
		return err
	}
	if err := fn(buf); err != nil {
		return err
	}
	g.MarkDirty()
	return nil
}

// allocate hands out a fresh page id.
func (p *pager) allocate() (PageID, error) { return p.alloc.Allocate() }

// free returns pid to the allocator's free set.
func (p *pager) free(pid PageID) error { return p.alloc.Free(pid) }
