package btree

import "encoding/binary"

// Intermediate body layout (§4.7, §6.1): n-1 keys packed forward from the
// header, n child pids packed backward from the page's tail (pid[0]
// occupies the last 4 bytes).

func intermediateKeyOffset(i int) int { return bodyOffset + 4*i }

func intermediatePIDOffset(pageSize, i int) int { return pageSize - 4*(i+1) }

func intermediateKey(buf []byte, i int) int32 {
	off := intermediateKeyOffset(i)
	return int32(binary.LittleEndian.Uint32(buf[off : off+4]))
}

func setIntermediateKey(buf []byte, i int, k int32) {
	off := intermediateKeyOffset(i)
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(k))
}

func intermediateChild(buf []byte, i int) PageID {
	off := intermediatePIDOffset(len(buf), i)
	return PageID(binary.LittleEndian.Uint32(buf[off : off+4]))
}

func setIntermediateChild(buf []byte, i int, pid PageID) {
	off := intermediatePIDOffset(len(buf), i)
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(pid))
}

// initIntermediate formats a freshly allocated page as an empty
// INTERMEDIATE.
func (p *pager) initIntermediate(pid PageID) error {
	return p.write(pid, func(buf []byte) error {
		wrapNodeHeader(buf).Reset(KindIntermediate)
		return nil
	})
}

// intermediateChildIndex implements §4.8's descent rule, shared by Search
// and Insert/Delete: the largest i with key >= keys[i], or 0 if none.
func intermediateChildIndex(buf []byte, n int, key int32) int {
	idx := 0
	for i := 0; i < n-1; i++ {
		if key >= intermediateKey(buf, i) {
			idx = i + 1
		}
	}
	return idx
}

// appendIntermediateEntry implements §4.7's INTERMEDIATE insert: given n,
// the child count before this call, add key as a new separator and
// otherPID as the child immediately to its right. Larger separators (and
// the children to their right) shift up one slot, so keys stay sorted even
// when the split child was not the last one; when key is the largest it
// lands at key[n-1] and otherPID at pid[n]. Callers grow n by one
// themselves after calling this.
func appendIntermediateEntry(buf []byte, n int, key int32, otherPID PageID) {
	pos := n - 1
	for pos > 0 && intermediateKey(buf, pos-1) > key {
		setIntermediateKey(buf, pos, intermediateKey(buf, pos-1))
		setIntermediateChild(buf, pos+1, intermediateChild(buf, pos))
		pos--
	}
	setIntermediateKey(buf, pos, key)
	setIntermediateChild(buf, pos+1, otherPID)
}

// setRootSplitEntries implements §4.7's two-child insert used only when a
// root split turns an empty INTERMEDIATE into an n=2 node.
func setRootSplitEntries(buf []byte, key int32, leftPID, rightPID PageID) {
	setIntermediateKey(buf, 0, key)
	setIntermediateChild(buf, 0, leftPID)
	setIntermediateChild(buf, 1, rightPID)
}

// removeIntermediateEntry implements §4.7's delete by key: drop the
// separator key at keyIdx and the child pid at childIdx, shifting the
// remaining keys and pids down to close the gap.
func removeIntermediateEntry(buf []byte, n, keyIdx, childIdx int) {
	for i := keyIdx; i < n-2; i++ {
		setIntermediateKey(buf, i, intermediateKey(buf, i+1))
	}
	for i := childIdx; i < n-1; i++ {
		setIntermediateChild(buf, i, intermediateChild(buf, i+1))
	}
}

// splitIntermediate implements §4.8's non-root INTERMEDIATE split: the
// right half of pid's children (and their separator keys) moves into a
// freshly allocated intermediate; pid keeps the left half. Returns the
// promoted (min_key_of_right, new_pid) pair for the parent.
func (p *pager) splitIntermediate(pid PageID) (promotedKey int32, newPID PageID, err error) {
	var n int
	var keys []int32
	var children []PageID
	var rightSibling PageID
	if err = p.read(pid, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		n = h.N()
		keys = make([]int32, n-1)
		for i := range keys {
			keys[i] = intermediateKey(buf, i)
		}
		children = make([]PageID, n)
		for i := range children {
			children[i] = intermediateChild(buf, i)
		}
		rightSibling = h.RightSibling()
		return nil
	}); err != nil {
		return 0, 0, err
	}

	mid := n / 2
	promotedKey = keys[mid-1]

	newPID, err = p.allocate()
	if err != nil {
		return 0, 0, err
	}
	if err = p.initIntermediate(newPID); err != nil {
		return 0, 0, err
	}

	rightKeys := keys[mid:]
	rightChildren := children[mid:]
	if err = p.write(newPID, func(buf []byte) error {
		for i, k := range rightKeys {
			setIntermediateKey(buf, i, k)
		}
		for i, c := range rightChildren {
			setIntermediateChild(buf, i, c)
		}
		h := wrapNodeHeader(buf)
		h.SetN(len(rightChildren))
		h.SetLeftSibling(pid)
		h.SetRightSibling(rightSibling)
		return nil
	}); err != nil {
		return 0, 0, err
	}

	if err = p.write(pid, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		h.SetN(mid)
		h.SetRightSibling(newPID)
		return nil
	}); err != nil {
		return 0, 0, err
	}

	if rightSibling != 0 {
		if err = p.write(rightSibling, func(buf []byte) error {
			wrapNodeHeader(buf).SetLeftSibling(newPID)
			return nil
		}); err != nil {
			return 0, 0, err
		}
	}

	return promotedKey, newPID, nil
}

// splitRootIntermediate implements §4.8's root INTERMEDIATE split:
// bisect keys and pids into two freshly allocated intermediate children;
// the root page is rewritten in place as a 2-entry intermediate over them.
func (p *pager) splitRootIntermediate(rootPID PageID) error {
	var n int
	var keys []int32
	var children []PageID
	if err := p.read(rootPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		n = h.N()
		keys = make([]int32, n-1)
		for i := range keys {
			keys[i] = intermediateKey(buf, i)
		}
		children = make([]PageID, n)
		for i := range children {
			children[i] = intermediateChild(buf, i)
		}
		return nil
	}); err != nil {
		return err
	}

	mid := n / 2
	promotedKey := keys[mid-1]
	halves := [2]struct {
		keys     []int32
		children []PageID
	}{
		{keys[:mid-1], children[:mid]},
		{keys[mid:], children[mid:]},
	}
	var newPIDs [2]PageID
	for i, half := range halves {
		pid, err := p.allocate()
		if err != nil {
			return err
		}
		if err := p.initIntermediate(pid); err != nil {
			return err
		}
		if err := p.write(pid, func(buf []byte) error {
			for j, k := range half.keys {
				setIntermediateKey(buf, j, k)
			}
			for j, c := range half.children {
				setIntermediateChild(buf, j, c)
			}
			wrapNodeHeader(buf).SetN(len(half.children))
			return nil
		}); err != nil {
			return err
		}
		newPIDs[i] = pid
	}
	if err := p.write(newPIDs[0], func(buf []byte) error {
		wrapNodeHeader(buf).SetRightSibling(newPIDs[1])
		return nil
	}); err != nil {
		return err
	}
	if err := p.write(newPIDs[1], func(buf []byte) error {
		wrapNodeHeader(buf).SetLeftSibling(newPIDs[0])
		return nil
	}); err != nil {
		return err
	}

	return p.write(rootPID, func(buf []byte) error {
		wrapNodeHeader(buf).Reset(KindIntermediate)
		setRootSplitEntries(buf, promotedKey, newPIDs[0], newPIDs[1])
		wrapNodeHeader(buf).SetN(2)
		return nil
	})
}

// redistributeIntermediate mirrors redistributeBranch for INTERMEDIATE
// children: move one child (and its bounding separator) from a richer
// sibling into the underfull node, fixing the parent separator.
func (p *pager) redistributeIntermediate(parentPID PageID, childIdx int, childPID PageID, branchingFactor int) (bool, error) {
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
		if leftN > min {
			return true, p.moveFromLeftIntermediate(parentPID, childIdx, left, childPID)
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
		if rightN > min {
			return true, p.moveFromRightIntermediate(parentPID, childIdx, childPID, right)
		}
	}
	return false, nil
}

func (p *pager) moveFromLeftIntermediate(parentPID PageID, childIdx int, leftPID, childPID PageID) error {
	var borrowedChild PageID
	var borrowedKey int32
	var separator int32
	if err := p.read(leftPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		n := h.N()
		borrowedChild = intermediateChild(buf, n-1)
		borrowedKey = intermediateKey(buf, n-2)
		return nil
	}); err != nil {
		return err
	}
	if err := p.read(parentPID, func(buf []byte) error {
		separator = intermediateKey(buf, childIdx-1)
		return nil
	}); err != nil {
		return err
	}

	if err := p.write(leftPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		h.SetN(h.N() - 1)
		return nil
	}); err != nil {
		return err
	}
	if err := p.write(childPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		n := h.N()
		for i := n - 1; i >= 1; i-- {
			setIntermediateChild(buf, i+1, intermediateChild(buf, i))
		}
		setIntermediateChild(buf, 1, intermediateChild(buf, 0))
		setIntermediateChild(buf, 0, borrowedChild)
		for i := n - 2; i >= 0; i-- {
			setIntermediateKey(buf, i+1, intermediateKey(buf, i))
		}
		setIntermediateKey(buf, 0, separator)
		h.SetN(n + 1)
		return nil
	}); err != nil {
		return err
	}
	return p.write(parentPID, func(buf []byte) error {
		setIntermediateKey(buf, childIdx-1, borrowedKey)
		return nil
	})
}

func (p *pager) moveFromRightIntermediate(parentPID PageID, childIdx int, childPID, rightPID PageID) error {
	var borrowedChild PageID
	var newRightSeparator int32
	var separator int32
	if err := p.read(rightPID, func(buf []byte) error {
		borrowedChild = intermediateChild(buf, 0)
		if wrapNodeHeader(buf).N() > 1 {
			newRightSeparator = intermediateKey(buf, 0)
		}
		return nil
	}); err != nil {
		return err
	}
	if err := p.read(parentPID, func(buf []byte) error {
		separator = intermediateKey(buf, childIdx)
		return nil
	}); err != nil {
		return err
	}

	if err := p.write(rightPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		n := h.N()
		for i := 0; i < n-1; i++ {
			setIntermediateChild(buf, i, intermediateChild(buf, i+1))
		}
		for i := 0; i < n-2; i++ {
			setIntermediateKey(buf, i, intermediateKey(buf, i+1))
		}
		h.SetN(n - 1)
		return nil
	}); err != nil {
		return err
	}
	if err := p.write(childPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		n := h.N()
		setIntermediateChild(buf, n, borrowedChild)
		setIntermediateKey(buf, n-1, separator)
		h.SetN(n + 1)
		return nil
	}); err != nil {
		return err
	}
	return p.write(parentPID, func(buf []byte) error {
		setIntermediateKey(buf, childIdx, newRightSeparator)
		return nil
	})
}

// mergeIntermediate mirrors mergeBranch for INTERMEDIATE children: pull
// all children from whichever sibling is at minimum occupancy into the
// underfull node, remove the parent separator between them.
func (p *pager) mergeIntermediate(parentPID PageID, childIdx int, childPID PageID, branchingFactor int) (bool, error) {
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
			return true, p.mergeIntermediatePair(parentPID, childIdx-1, left, childIdx, childPID)
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
			return true, p.mergeIntermediatePair(parentPID, childIdx, childPID, childIdx+1, right)
		}
	}
	return false, nil
}

func (p *pager) mergeIntermediatePair(parentPID PageID, leftIdx int, leftPID PageID, rightIdx int, rightPID PageID) error {
	var separator int32
	var rightKeys []int32
	var rightChildren []PageID
	var rightRightSibling PageID
	if err := p.read(parentPID, func(buf []byte) error {
		separator = intermediateKey(buf, leftIdx)
		return nil
	}); err != nil {
		return err
	}
	if err := p.read(rightPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		n := h.N()
		rightKeys = make([]int32, n-1)
		for i := range rightKeys {
			rightKeys[i] = intermediateKey(buf, i)
		}
		rightChildren = make([]PageID, n)
		for i := range rightChildren {
			rightChildren[i] = intermediateChild(buf, i)
		}
		rightRightSibling = h.RightSibling()
		return nil
	}); err != nil {
		return err
	}

	if err := p.write(leftPID, func(buf []byte) error {
		h := wrapNodeHeader(buf)
		base := h.N()
		setIntermediateKey(buf, base-1, separator)
		for i, k := range rightKeys {
			setIntermediateKey(buf, base+i, k)
		}
		for i, c := range rightChildren {
			setIntermediateChild(buf, base+i, c)
		}
		h.SetN(base + len(rightChildren))
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
