package btree

// initLeaf formats a freshly allocated page as an empty LEAF: a single
// freeblock spanning the whole body, free_list_head pointing at it, no
// siblings, no overflow chain yet.
func (p *pager) initLeaf(pid PageID) error {
	return p.write(pid, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		h.Reset(KindLeaf)
		h.SetFreeListHead(uint16(bodyOffset))
		h.SetNumFree(1)
		writeFreeBlock(buf, bodyOffset, freeBlock{next: nextPtr{kind: nextPtrEnd}, size: len(buf) - bodyOffset})
		return nil
	})
}

// coalesceForward merges the freeblock at offset with its physically
// adjacent in-page successors, following fb.next while the successor
// starts exactly where this block ends. Returns the merged block as now
// written at offset.
func coalesceForward(buf []byte, offset int) freeBlock {
	fb := readFreeBlock(buf, offset)
	for fb.next.kind == nextPtrInPage && int(fb.next.offset) == offset+fb.size {
		adj := readFreeBlock(buf, int(fb.next.offset))
		fb.size += adj.size
		fb.next = adj.next
	}
	writeFreeBlock(buf, offset, fb)
	return fb
}

func setFreeBlockNext(buf []byte, offset int, next nextPtr) {
	writeFreeBlock(buf, offset, freeBlock{next: next, size: readFreeBlock(buf, offset).size})
}

// hopToOverflow moves the walk onto pid's overflow leaf, allocating and
// linking a fresh one if none exists yet, and returns the new current pid.
func (p *pager) hopToOverflow(pid PageID) (PageID, error) {
	var next PageID
	if err := p.read(pid, func(buf []byte) error {
		next = wrapNodeHeader(buf).NextOverflow()
		return nil
	}); err != nil {
		return 0, err
	}
	if next != 0 {
		return next, nil
	}
	newPID, err := p.allocate()
	if err != nil {
		return 0, err
	}
	if err := p.initLeaf(newPID); err != nil {
		return 0, err
	}
	if err := p.write(pid, func(buf []byte) error {
		wrapNodeHeader(buf).SetNextOverflow(newPID)
		return nil
	}); err != nil {
		return 0, err
	}
	return newPID, nil
}

// insertIntoLeaf implements §4.5's insert-into-leaf: walk the free list
// starting at headPID, following the overflow chain when the current
// page's list is exhausted, write rec into the first block that fits, and
// report back where it landed so the caller's BRANCH entry can point at
// it.
func (p *pager) insertIntoLeaf(headPID PageID, rec Record) (leafPID PageID, offset int, err error) {
	f := rec.footprint()
	if f > p.bp.PageSize()-bodyOffset {
		return 0, 0, ErrRecordTooLarge
	}
	curPID := headPID
	headerField := true
	var prevOffset uint16
	var curOffset uint16

	loadHead := func(pid PageID) error {
		return p.read(pid, func(buf []byte) error {
			curOffset = wrapNodeHeader(buf).FreeListHead()
			return nil
		})
	}
	if err = loadHead(curPID); err != nil {
		return 0, 0, err
	}

	for {
		if curOffset == 0 {
			next, hErr := p.hopToOverflow(curPID)
			if hErr != nil {
				return 0, 0, hErr
			}
			curPID = next
			headerField = true
			if err = loadHead(curPID); err != nil {
				return 0, 0, err
			}
			continue
		}

		var fb freeBlock
		if err = p.read(curPID, func(buf []byte) error {
			fb = readFreeBlock(buf, int(curOffset))
			return nil
		}); err != nil {
			return 0, 0, err
		}

		if fb.size >= f {
			offset = int(curOffset)
			leafPID = curPID
			thisHeaderField := headerField
			thisPrevOffset := prevOffset
			err = p.write(curPID, func(buf []byte) error {
				h := wrapNodeHeader(buf)
				encodeRecord(buf, offset, rec)
				residual := fb.size - f
				var newHead nextPtr
				if residual < freeBlockHeaderSize {
					h.SetNumFragmented(h.NumFragmented() + residual)
					newHead = fb.next
				} else {
					writeFreeBlock(buf, offset+f, freeBlock{next: fb.next, size: residual})
					coalesceForward(buf, offset+f)
					newHead = nextPtr{kind: nextPtrInPage, offset: uint16(offset + f)}
				}
				if thisHeaderField {
					h.SetFreeListHead(encodeNextPtr(newHead))
				} else {
					setFreeBlockNext(buf, int(thisPrevOffset), newHead)
				}
				h.SetN(h.N() + 1)
				return nil
			})
			return leafPID, offset, err
		}

		if fb.next.kind == nextPtrEnd {
			next, hErr := p.hopToOverflow(curPID)
			if hErr != nil {
				return 0, 0, hErr
			}
			curPID = next
			headerField = true
			if err = loadHead(curPID); err != nil {
				return 0, 0, err
			}
			continue
		}

		if fb.next.kind == nextPtrOverflow {
			var next PageID
			if err = p.read(curPID, func(buf []byte) error {
				next = wrapNodeHeader(buf).NextOverflow()
				return nil
			}); err != nil {
				return 0, 0, err
			}
			prevOffset = fb.next.offset
			curPID = next
			headerField = false
			curOffset = fb.next.offset
			continue
		}

		prevOffset = curOffset
		headerField = false
		curOffset = fb.next.offset
	}
}

// deleteFromLeaf implements §4.5's delete-from-leaf: zero the record at
// offset, then splice a freeblock of its footprint into the page's
// address-ordered free list, coalescing forward with whatever physically
// adjacent neighbor follows it.
func (p *pager) deleteFromLeaf(leafPID PageID, offset int) error {
	return p.write(leafPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		size := recordSizeAt(buf, offset) + recordHeaderSize
		for i := offset; i < offset+size; i++ {
			buf[i] = 0
		}

		headRaw := h.FreeListHead()
		if headRaw == 0 || int(headRaw) > offset {
			newBlock := freeBlock{next: decodeNextPtr(headRaw), size: size}
			writeFreeBlock(buf, offset, newBlock)
			h.SetFreeListHead(uint16(offset))
			coalesceForward(buf, offset)
		} else {
			prevOffset := int(headRaw)
			for {
				prevBlock := readFreeBlock(buf, prevOffset)
				if prevBlock.next.kind == nextPtrEnd || int(prevBlock.next.offset) > offset {
					newBlock := freeBlock{next: prevBlock.next, size: size}
					writeFreeBlock(buf, offset, newBlock)
					setFreeBlockNext(buf, prevOffset, nextPtr{kind: nextPtrInPage, offset: uint16(offset)})
					coalesceForward(buf, offset)
					break
				}
				prevOffset = int(prevBlock.next.offset)
			}
		}

		h.SetN(h.N() - 1)
		h.SetNumFree(h.NumFree() + 1)
		return nil
	})
}

// readRecord reads the record stored at (leafPID, offset).
func (p *pager) readRecord(leafPID PageID, offset int) (Record, error) {
	var rec Record
	err := p.read(leafPID, func(buf []byte) error {
		rec = decodeRecord(buf, offset)
		return nil
	})
	return rec, err
}

// freeLeafChain deallocates headPID and every page chained off it via
// next_overflow, per §3.9's "deallocated on merge" lifecycle rule.
func (p *pager) freeLeafChain(headPID PageID) error {
	pid := headPID
	for pid != 0 {
		var next PageID
		if err := p.read(pid, func(buf []byte) error {
			next = wrapNodeHeader(buf).NextOverflow()
			return nil
		}); err != nil {
			return err
		}
		if err := p.free(pid); err != nil {
			return err
		}
		pid = next
	}
	return nil
}

// updateLeafInPlace overwrites the record at offset with newRec if it fits
// within the old record's footprint, per §4.5's update-leaf in-place path.
// Slack left over from a shrinking update is folded into num_fragmented so
// the leaf-accounting invariant keeps holding; it reports whether it could
// do so (false means the caller must delete-then-reinsert).
func (p *pager) updateLeafInPlace(leafPID PageID, offset int, newRec Record) (bool, error) {
	var fits bool
	err := p.write(leafPID, func(buf []byte) error {
		oldFootprint := recordSizeAt(buf, offset) + recordHeaderSize
		newFootprint := newRec.footprint()
		if newFootprint > oldFootprint {
			fits = false
			return nil
		}
		encodeRecord(buf, offset, newRec)
		if slack := oldFootprint - newFootprint; slack > 0 {
			h := wrapNodeHeader(buf)
			h.SetNumFragmented(h.NumFragmented() + slack)
		}
		fits = true
		return nil
	})
	return fits, err
}
