package btree

import "encoding/binary"

// branchEntry is one (key, leaf_pid, record_offset) triple stored in a
// BRANCH node: the record pointer the BRANCH owns (§3.3, §4.6).
type branchEntry struct {
	Key     int32
	LeafPID PageID
	Offset  uint32
}

func branchEntryOffset(i int) int { return bodyOffset + i*branchEntrySize }

func readBranchEntry(buf []byte, i int) branchEntry {
	off := branchEntryOffset(i)
	return branchEntry{
		Key:     int32(binary.LittleEndian.Uint32(buf[off : off+4])),
		LeafPID: PageID(binary.LittleEndian.Uint32(buf[off+4 : off+8])),
		Offset:  binary.LittleEndian.Uint32(buf[off+8 : off+12]),
	}
}

func writeBranchEntry(buf []byte, i int, e branchEntry) {
	off := branchEntryOffset(i)
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(e.Key))
	binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(e.LeafPID))
	binary.LittleEndian.PutUint32(buf[off+8:off+12], e.Offset)
}

// branchEntries returns a copy of all n entries in order.
func branchEntries(buf []byte, n int) []branchEntry {
	out := make([]branchEntry, n)
	for i := 0; i < n; i++ {
		out[i] = readBranchEntry(buf, i)
	}
	return out
}

// branchFind returns the index of key among n sorted entries and whether
// it was found, via the linear scan §4.8 specifies for exact-match lookup
// (n is bounded by the branching factor, so this never dominates).
func branchFind(buf []byte, n int, key int32) (idx int, found bool) {
	for i := 0; i < n; i++ {
		e := readBranchEntry(buf, i)
		if e.Key == key {
			return i, true
		}
		if e.Key > key {
			return i, false
		}
	}
	return n, false
}

// insertEntryAt shifts entries [idx, n) right by one slot and writes e at
// idx, growing the array to n+1 entries.
func insertEntryAt(buf []byte, n, idx int, e branchEntry) {
	for i := n; i > idx; i-- {
		writeBranchEntry(buf, i, readBranchEntry(buf, i-1))
	}
	writeBranchEntry(buf, idx, e)
}

// removeEntryAt shifts entries (idx, n) left by one slot, shrinking the
// array to n-1 entries.
func removeEntryAt(buf []byte, n, idx int) {
	for i := idx; i < n-1; i++ {
		writeBranchEntry(buf, i, readBranchEntry(buf, i+1))
	}
}

// initBranch formats a freshly allocated page as an empty BRANCH.
func (p *pager) initBranch(pid PageID) error {
	return p.write(pid, func(buf []byte) error {
		wrapNodeHeader(buf).Reset(KindBranch)
		return nil
	})
}

// headLeafOf returns the pid of the single leaf-heap (head page plus its
// own overflow chain) this BRANCH owns. §3.4 only specifies field 4's
// meaning while n=0 ("the initial child_pid"); this implementation keeps
// that field holding the heap's head pid for the BRANCH's entire lifetime,
// since every triple's leaf_pid points somewhere within that one heap and
// insertIntoLeaf needs a stable head to walk from on every insert.
func headLeafOf(h NodeHeader) PageID { return h.InitialChildPID() }

// insertIntoBranch implements §4.6's BRANCH insert: insert-sort a new
// triple, delegating the record bytes to insertIntoLeaf against this
// BRANCH's owned leaf heap (allocating the heap's head leaf on the first
// insert).
func (p *pager) insertIntoBranch(branchPID PageID, key int32, rec Record) error {
	var n int
	var headLeaf PageID
	var idx int
	var dup bool
	if err := p.read(branchPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		n = h.N()
		headLeaf = headLeafOf(h)
		idx, dup = branchFind(buf, n, key)
		return nil
	}); err != nil {
		return err
	}
	if dup {
		return ErrDuplicateKey
	}

	if n == 0 {
		newLeaf, err := p.allocate()
		if err != nil {
			return err
		}
		if err := p.initLeaf(newLeaf); err != nil {
			return err
		}
		headLeaf = newLeaf
		if err := p.write(branchPID, func(buf []byte) error {
			wrapNodeHeader(buf).SetInitialChildPID(headLeaf)
			return nil
		}); err != nil {
			return err
		}
	}

	leafPID, offset, err := p.insertIntoLeaf(headLeaf, rec)
	if err != nil {
		return err
	}

	return p.write(branchPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		insertEntryAt(buf, h.N(), idx, branchEntry{Key: key, LeafPID: leafPID, Offset: uint32(offset)})
		h.SetN(h.N() + 1)
		return nil
	})
}

// updateBranchByKey implements §4.6's BRANCH update: locate the triple,
// try an in-place leaf overwrite, and fall back to delete-then-reinsert
// (which may relocate the record within the owned leaf heap) when the new
// record doesn't fit the old footprint.
func (p *pager) updateBranchByKey(branchPID PageID, key int32, newRec Record) error {
	var n int
	var idx int
	var found bool
	var entry branchEntry
	var headLeaf PageID
	if err := p.read(branchPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		n = h.N()
		idx, found = branchFind(buf, n, key)
		if found {
			entry = readBranchEntry(buf, idx)
		}
		headLeaf = headLeafOf(h)
		return nil
	}); err != nil {
		return err
	}
	if !found {
		return ErrKeyNotFound
	}

	fits, err := p.updateLeafInPlace(entry.LeafPID, int(entry.Offset), newRec)
	if err != nil {
		return err
	}
	if fits {
		return nil
	}

	if err := p.deleteFromLeaf(entry.LeafPID, int(entry.Offset)); err != nil {
		return err
	}
	newLeafPID, newOffset, err := p.insertIntoLeaf(headLeaf, newRec)
	if err != nil {
		return err
	}
	return p.write(branchPID, func(buf []byte) error {
		writeBranchEntry(buf, idx, branchEntry{Key: key, LeafPID: newLeafPID, Offset: uint32(newOffset)})
		return nil
	})
}

// deleteFromBranchByKey implements §4.6's BRANCH delete: recursively
// delete the record bytes from the owning leaf, then memmove the triple
// out of the array.
func (p *pager) deleteFromBranchByKey(branchPID PageID, key int32) error {
	var n int
	var idx int
	var found bool
	var entry branchEntry
	if err := p.read(branchPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		n = h.N()
		idx, found = branchFind(buf, n, key)
		if found {
			entry = readBranchEntry(buf, idx)
		}
		return nil
	}); err != nil {
		return err
	}
	if !found {
		return ErrKeyNotFound
	}

	if err := p.deleteFromLeaf(entry.LeafPID, int(entry.Offset)); err != nil {
		return err
	}
	return p.write(branchPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		removeEntryAt(buf, h.N(), idx)
		h.SetN(h.N() - 1)
		return nil
	})
}

// writeBranchEntries overwrites a BRANCH's entire entry array with entries
// (already sorted by key) and sets its header's n and head-leaf fields.
func writeBranchEntries(buf []byte, entries []branchEntry, headLeaf PageID) {
	h := wrapNodeHeader(buf)
	for i, e := range entries {
		writeBranchEntry(buf, i, e)
	}
	h.SetN(len(entries))
	h.SetInitialChildPID(headLeaf)
}

// splitBranch implements §4.8's non-root BRANCH split: the right half of
// branchPID's entries moves, record bytes and all, into a freshly
// allocated branch+leaf pair; the left half and its leaf heap stay in
// place. Returns the promoted (min_key_of_right, new_branch_pid) pair the
// caller inserts into the parent INTERMEDIATE.
func (p *pager) splitBranch(branchPID PageID) (promotedKey int32, newBranchPID PageID, err error) {
	var entries []branchEntry
	var n int
	var rightSibling PageID
	if err = p.read(branchPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		n = h.N()
		entries = branchEntries(buf, n)
		rightSibling = h.RightSibling()
		return nil
	}); err != nil {
		return 0, 0, err
	}

	mid := n / 2
	left := entries[:mid]
	right := entries[mid:]
	promotedKey = right[0].Key

	newBranchPID, err = p.allocate()
	if err != nil {
		return 0, 0, err
	}
	newLeafPID, err := p.allocate()
	if err != nil {
		return 0, 0, err
	}
	if err = p.initLeaf(newLeafPID); err != nil {
		return 0, 0, err
	}
	if err = p.initBranch(newBranchPID); err != nil {
		return 0, 0, err
	}

	movedEntries := make([]branchEntry, len(right))
	for i, e := range right {
		rec, rErr := p.readRecord(e.LeafPID, int(e.Offset))
		if rErr != nil {
			return 0, 0, rErr
		}
		if dErr := p.deleteFromLeaf(e.LeafPID, int(e.Offset)); dErr != nil {
			return 0, 0, dErr
		}
		newPID, newOffset, iErr := p.insertIntoLeaf(newLeafPID, rec)
		if iErr != nil {
			return 0, 0, iErr
		}
		movedEntries[i] = branchEntry{Key: e.Key, LeafPID: newPID, Offset: uint32(newOffset)}
	}

	if err = p.write(newBranchPID, func(buf []byte) error {
		writeBranchEntries(buf, movedEntries, newLeafPID)
		h := wrapNodeHeader(buf)
		h.SetLeftSibling(branchPID)
		h.SetRightSibling(rightSibling)
		return nil
	}); err != nil {
		return 0, 0, err
	}

	if err = p.write(branchPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		h.SetN(len(left))
		h.SetRightSibling(newBranchPID)
		return nil
	}); err != nil {
		return 0, 0, err
	}

	if rightSibling != 0 {
		if err = p.write(rightSibling, func(buf []byte) error {
			wrapNodeHeader(buf).SetLeftSibling(newBranchPID)
			return nil
		}); err != nil {
			return 0, 0, err
		}
	}

	return promotedKey, newBranchPID, nil
}

// splitRootBranch implements §4.8's root BRANCH split: both halves move
// into two freshly allocated branch+leaf pairs; the root page itself is
// rewritten in place as a 2-entry INTERMEDIATE.
func (p *pager) splitRootBranch(rootPID PageID) error {
	var entries []branchEntry
	var n int
	if err := p.read(rootPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		n = h.N()
		entries = branchEntries(buf, n)
		return nil
	}); err != nil {
		return err
	}
	oldHeadLeaf, err := p.readInitialChildPID(rootPID)
	if err != nil {
		return err
	}

	mid := n / 2
	halves := [2][]branchEntry{entries[:mid], entries[mid:]}
	newBranches := [2]PageID{}
	for i, half := range halves {
		bPID, bErr := p.allocate()
		if bErr != nil {
			return bErr
		}
		lPID, lErr := p.allocate()
		if lErr != nil {
			return lErr
		}
		if err := p.initLeaf(lPID); err != nil {
			return err
		}
		if err := p.initBranch(bPID); err != nil {
			return err
		}
		moved := make([]branchEntry, len(half))
		for j, e := range half {
			rec, rErr := p.readRecord(e.LeafPID, int(e.Offset))
			if rErr != nil {
				return rErr
			}
			newPID, newOffset, iErr := p.insertIntoLeaf(lPID, rec)
			if iErr != nil {
				return iErr
			}
			moved[j] = branchEntry{Key: e.Key, LeafPID: newPID, Offset: uint32(newOffset)}
		}
		if err := p.write(bPID, func(buf []byte) error {
			writeBranchEntries(buf, moved, lPID)
			return nil
		}); err != nil {
			return err
		}
		newBranches[i] = bPID
	}
	if err := p.write(newBranches[0], func(buf []byte) error {
		wrapNodeHeader(buf).SetRightSibling(newBranches[1])
		return nil
	}); err != nil {
		return err
	}
	if err := p.write(newBranches[1], func(buf []byte) error {
		wrapNodeHeader(buf).SetLeftSibling(newBranches[0])
		return nil
	}); err != nil {
		return err
	}

	if oldHeadLeaf != 0 {
		if err := p.freeLeafChain(oldHeadLeaf); err != nil {
			return err
		}
	}
	promotedKey := halves[1][0].Key

	return p.write(rootPID, func(buf []byte) error {
		wrapNodeHeader(buf).Reset(KindIntermediate)
		setRootSplitEntries(buf, promotedKey, newBranches[0], newBranches[1])
		wrapNodeHeader(buf).SetN(2)
		return nil
	})
}

func (p *pager) readInitialChildPID(pid PageID) (PageID, error) {
	var out PageID
	err := p.read(pid, func(buf []byte) error {
		out = headLeafOf(wrapNodeHeader(buf))
		return nil
	})
	return out, err
}

const ceilHalfDivisor = 2

// minOccupancy returns ceil(B/2), the minimum entry count a non-root node
// must hold per §3.8 invariant 2.
func minOccupancy(branchingFactor int) int {
	return (branchingFactor + 1) / ceilHalfDivisor
}

// redistributeBranch implements §4.6's BRANCH redistribute and the open
// question's resolution (§9): move the single extremal entry (and its
// record bytes) from the richer sibling into the depleted branch, then
// reset the parent separator between the two: to the moved key when
// borrowing from the left, to the right sibling's new minimum when
// borrowing from the right. Tries the left sibling, then the right.
// Returns whether it succeeded.
func (p *pager) redistributeBranch(parentPID PageID, childIdx int, childPID PageID, branchingFactor int) (bool, error) {
	min := minOccupancy(branchingFactor)

	var left, right PageID
	if err := p.read(childPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		left = h.LeftSibling()
		right = h.RightSibling()
		return nil
	}); err != nil {
		return false, err
	}

	if left != 0 {
		ok, err := p.tryRedistributeFromLeft(parentPID, childIdx, left, childPID, min)
		if err != nil || ok {
			return ok, err
		}
	}
	if right != 0 {
		ok, err := p.tryRedistributeFromRight(parentPID, childIdx, childPID, right, min)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (p *pager) tryRedistributeFromLeft(parentPID PageID, childIdx int, leftPID, childPID PageID, min int) (bool, error) {
	var leftN int
	var moved branchEntry
	if err := p.read(leftPID, func(buf []byte) error {
		leftN = wrapNodeHeader(buf).N()
		if leftN > min {
			moved = readBranchEntry(buf, leftN-1)
		}
		return nil
	}); err != nil {
		return false, err
	}
	if leftN <= min {
		return false, nil
	}

	headLeaf, err := p.readInitialChildPID(leftPID)
	if err != nil {
		return false, err
	}
	childHead, err := p.readInitialChildPID(childPID)
	if err != nil {
		return false, err
	}
	rec, err := p.readRecord(moved.LeafPID, int(moved.Offset))
	if err != nil {
		return false, err
	}
	if err := p.deleteFromLeaf(moved.LeafPID, int(moved.Offset)); err != nil {
		return false, err
	}
	newPID, newOffset, err := p.insertIntoLeaf(childHead, rec)
	if err != nil {
		return false, err
	}
	moved.LeafPID, moved.Offset = newPID, uint32(newOffset)
	if err := p.write(leftPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		removeEntryAt(buf, h.N(), h.N()-1)
		h.SetN(h.N() - 1)
		h.SetInitialChildPID(headLeaf)
		return nil
	}); err != nil {
		return false, err
	}
	if err := p.write(childPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		insertEntryAt(buf, h.N(), 0, moved)
		h.SetN(h.N() + 1)
		return nil
	}); err != nil {
		return false, err
	}
	return true, p.write(parentPID, func(buf []byte) error {
		setIntermediateKey(buf, childIdx-1, moved.Key)
		return nil
	})
}

func (p *pager) tryRedistributeFromRight(parentPID PageID, childIdx int, childPID, rightPID PageID, min int) (bool, error) {
	var rightN int
	var moved branchEntry
	var newRightMin int32
	if err := p.read(rightPID, func(buf []byte) error {
		rightN = wrapNodeHeader(buf).N()
		if rightN > min {
			moved = readBranchEntry(buf, 0)
			if rightN > 1 {
				newRightMin = readBranchEntry(buf, 1).Key
			}
		}
		return nil
	}); err != nil {
		return false, err
	}
	if rightN <= min {
		return false, nil
	}

	headLeaf, err := p.readInitialChildPID(rightPID)
	if err != nil {
		return false, err
	}
	childHead, err := p.readInitialChildPID(childPID)
	if err != nil {
		return false, err
	}
	rec, err := p.readRecord(moved.LeafPID, int(moved.Offset))
	if err != nil {
		return false, err
	}
	if err := p.deleteFromLeaf(moved.LeafPID, int(moved.Offset)); err != nil {
		return false, err
	}
	newPID, newOffset, err := p.insertIntoLeaf(childHead, rec)
	if err != nil {
		return false, err
	}
	moved.LeafPID, moved.Offset = newPID, uint32(newOffset)
	if err := p.write(rightPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		removeEntryAt(buf, h.N(), 0)
		h.SetN(h.N() - 1)
		h.SetInitialChildPID(headLeaf)
		return nil
	}); err != nil {
		return false, err
	}
	if err := p.write(childPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		insertEntryAt(buf, h.N(), h.N(), moved)
		h.SetN(h.N() + 1)
		return nil
	}); err != nil {
		return false, err
	}
	return true, p.write(parentPID, func(buf []byte) error {
		setIntermediateKey(buf, childIdx, newRightMin)
		return nil
	})
}

// mergeBranch implements §4.6's BRANCH merge: pull all entries from
// whichever sibling (left preferred, then right) has n <= minOccupancy
// across, fix the parent's separator keys, and deallocate the donor
// branch and its owned leaf heap.
func (p *pager) mergeBranch(parentPID PageID, childIdx int, childPID PageID, branchingFactor int) (bool, error) {
	min := minOccupancy(branchingFactor)

	var left, right PageID
	if err := p.read(childPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		left = h.LeftSibling()
		right = h.RightSibling()
		return nil
	}); err != nil {
		return false, err
	}

	if left != 0 {
		var leftN int
		if err := p.read(left, func(buf []byte) error {
			leftN = wrapNodeHeader(buf).N()
			return nil
		}); err != nil {
			return false, err
		}
		if leftN <= min {
			return true, p.mergeBranchPair(parentPID, childIdx-1, left, childIdx, childPID)
		}
	}
	if right != 0 {
		var rightN int
		if err := p.read(right, func(buf []byte) error {
			rightN = wrapNodeHeader(buf).N()
			return nil
		}); err != nil {
			return false, err
		}
		if rightN <= min {
			return true, p.mergeBranchPair(parentPID, childIdx, childPID, childIdx+1, right)
		}
	}
	return false, nil
}

// mergeBranchPair merges rightPID's entries (and owned leaf heap) into
// leftPID, removes the separator between them (at parent key index
// leftIdx, child index rightIdx) from the parent, and deallocates
// rightPID and its leaf heap.
func (p *pager) mergeBranchPair(parentPID PageID, leftIdx int, leftPID PageID, rightIdx int, rightPID PageID) error {
	var rightEntries []branchEntry
	var rightHeadLeaf PageID
	var rightRightSibling PageID
	if err := p.read(rightPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		rightEntries = branchEntries(buf, h.N())
		rightHeadLeaf = headLeafOf(h)
		rightRightSibling = h.RightSibling()
		return nil
	}); err != nil {
		return err
	}

	leftHeadLeaf, err := p.readInitialChildPID(leftPID)
	if err != nil {
		return err
	}

	movedEntries := make([]branchEntry, len(rightEntries))
	for i, e := range rightEntries {
		rec, rErr := p.readRecord(e.LeafPID, int(e.Offset))
		if rErr != nil {
			return rErr
		}
		newPID, newOffset, iErr := p.insertIntoLeaf(leftHeadLeaf, rec)
		if iErr != nil {
			return iErr
		}
		movedEntries[i] = branchEntry{Key: e.Key, LeafPID: newPID, Offset: uint32(newOffset)}
	}

	if err := p.write(leftPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		base := h.N()
		for i, e := range movedEntries {
			writeBranchEntry(buf, base+i, e)
		}
		h.SetN(base + len(movedEntries))
		h.SetRightSibling(rightRightSibling)
		return nil
	}); err != nil {
		return err
	}
	if rightRightSibling != 0 {
		if err := p.write(rightRightSibling, func(buf []byte) error {
			wrapNodeHeader(buf).SetLeftSibling(leftPID)
			return nil
		}); err != nil {
			return err
		}
	}
	if rightHeadLeaf != 0 {
		if err := p.freeLeafChain(rightHeadLeaf); err != nil {
			return err
		}
	}
	if err := p.free(rightPID); err != nil {
		return err
	}

	return p.write(parentPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		removeIntermediateEntry(buf, h.N(), leftIdx, rightIdx)
		h.SetN(h.N() - 1)
		return nil
	})
}

// searchBranch implements the BRANCH half of §4.8's Search: exact-match
// lookup, returning the stored record when present.
func (p *pager) searchBranch(branchPID PageID, key int32) (Record, bool, error) {
	var idx int
	var found bool
	var entry branchEntry
	if err := p.read(branchPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		idx, found = branchFind(buf, h.N(), key)
		if found {
			entry = readBranchEntry(buf, idx)
		}
		return nil
	}); err != nil {
		return Record{}, false, err
	}
	if !found {
		return Record{}, false, nil
	}
	rec, err := p.readRecord(entry.LeafPID, int(entry.Offset))
	return rec, err == nil, err
}
