// Copyright 2023 Molecula Corp. All rights reserved.

package btree

import (
	"github.com/featurebasedb/stratum/bufferpool"
)

// node is a typed view over a latched buffer pool page holding either an
// internal or a leaf index page.
//
// Internal pages store size (key, childPointer) entries; the key in slot 0
// is unused, so child i holds keys in [key(i), key(i+1)). Leaf pages store
// size (key, RID) entries in strictly ascending key order and chain to the
// right sibling through the next pointer.
type node struct {
	page *bufferpool.Page
}

func (n *node) id() bufferpool.PageID {
	return n.page.ID()
}

func (n *node) isLeaf() bool {
	return n.page.ReadPageType() == bufferpool.PAGE_TYPE_BTREE_LEAF
}

func (n *node) size() int32 {
	return n.page.ReadEntryCount()
}

func (n *node) setSize(size int32) {
	n.page.WriteEntryCount(size)
}

func (n *node) maxSize() int32 {
	return n.page.ReadMaxEntries()
}

func (n *node) minSize() int32 {
	return (n.maxSize() + 1) / 2
}

func (n *node) parent() bufferpool.PageID {
	return n.page.ReadParentPointer()
}

func (n *node) setParent(parent bufferpool.PageID) {
	n.page.WriteParentPointer(parent)
}

func (n *node) next() bufferpool.PageID {
	return n.page.ReadNextPointer()
}

func (n *node) setNext(next bufferpool.PageID) {
	n.page.WriteNextPointer(next)
}

func (n *node) initLeaf(id, parent bufferpool.PageID, maxSize int32) {
	n.page.WritePageType(bufferpool.PAGE_TYPE_BTREE_LEAF)
	n.page.WriteLSN(0)
	n.page.WriteEntryCount(0)
	n.page.WriteMaxEntries(maxSize)
	n.page.WriteParentPointer(parent)
	n.page.WritePageNumber(id)
	n.page.WriteNextPointer(bufferpool.INVALID_PAGE)
}

func (n *node) initInternal(id, parent bufferpool.PageID, maxSize int32) {
	n.page.WritePageType(bufferpool.PAGE_TYPE_BTREE_INTERNAL)
	n.page.WriteLSN(0)
	n.page.WriteEntryCount(0)
	n.page.WriteMaxEntries(maxSize)
	n.page.WriteParentPointer(parent)
	n.page.WritePageNumber(id)
}

// latch passthroughs

func (n *node) takeReadLatch() {
	n.page.TakeReadLatch()
}

func (n *node) releaseReadLatch() {
	n.page.ReleaseReadLatch()
}

func (n *node) takeWriteLatch() {
	n.page.TakeWriteLatch()
}

func (n *node) releaseWriteLatch() {
	n.page.ReleaseWriteLatch()
}

func (n *node) latchState() bufferpool.PageLatchState {
	return n.page.LatchState()
}

// leaf accessors

func (n *node) leafKeyAt(i int32) int64 {
	key, _ := n.page.ReadLeafEntry(i)
	return key
}

func (n *node) leafRIDAt(i int32) bufferpool.RID {
	_, rid := n.page.ReadLeafEntry(i)
	return rid
}

// leafLookup binary searches the leaf. It returns the slot of the key and
// true, or the slot the key would be inserted at and false.
func (n *node) leafLookup(key int64) (int32, bool) {
	if n.latchState() == bufferpool.None {
		panic("unexpected latch state")
	}
	minIndex := int32(0)
	onePastMaxIndex := n.size()
	for onePastMaxIndex != minIndex {
		index := (minIndex + onePastMaxIndex) / 2
		keyAtIndex := n.leafKeyAt(index)
		if key == keyAtIndex {
			return index, true
		}
		if key < keyAtIndex {
			onePastMaxIndex = index
		} else {
			minIndex = index + 1
		}
	}
	return minIndex, false
}

func (n *node) leafInsertAt(i int32, key int64, rid bufferpool.RID) {
	size := n.size()
	n.page.MoveLeafEntries(i+1, i, size-i)
	n.page.WriteLeafEntry(i, key, rid)
	n.setSize(size + 1)
}

func (n *node) leafRemoveAt(i int32) {
	size := n.size()
	n.page.MoveLeafEntries(i, i+1, size-i-1)
	n.setSize(size - 1)
}

// internal accessors

func (n *node) keyAt(i int32) int64 {
	key, _ := n.page.ReadInternalEntry(i)
	return key
}

func (n *node) setKeyAt(i int32, key int64) {
	_, child := n.page.ReadInternalEntry(i)
	n.page.WriteInternalEntry(i, key, child)
}

func (n *node) childAt(i int32) bufferpool.PageID {
	_, child := n.page.ReadInternalEntry(i)
	return child
}

func (n *node) internalInsertAt(i int32, key int64, child bufferpool.PageID) {
	size := n.size()
	n.page.MoveInternalEntries(i+1, i, size-i)
	n.page.WriteInternalEntry(i, key, child)
	n.setSize(size + 1)
}

func (n *node) internalRemoveAt(i int32) {
	size := n.size()
	n.page.MoveInternalEntries(i, i+1, size-i-1)
	n.setSize(size - 1)
}

// findChild returns the child pointer to follow for key: the child at the
// largest slot whose separator key is <= key, or child 0 when every
// separator is greater.
func (n *node) findChild(key int64) bufferpool.PageID {
	if n.latchState() == bufferpool.None {
		panic("unexpected latch state")
	}
	// binary search for the first separator in [1, size) greater than key
	minIndex := int32(1)
	onePastMaxIndex := n.size()
	for onePastMaxIndex != minIndex {
		index := (minIndex + onePastMaxIndex) / 2
		if key < n.keyAt(index) {
			onePastMaxIndex = index
		} else {
			minIndex = index + 1
		}
	}
	return n.childAt(minIndex - 1)
}

// internalInsertPos returns the slot a separator key should be inserted at,
// keeping slots [1, size) sorted.
func (n *node) internalInsertPos(key int64) int32 {
	minIndex := int32(1)
	onePastMaxIndex := n.size()
	for onePastMaxIndex != minIndex {
		index := (minIndex + onePastMaxIndex) / 2
		if key < n.keyAt(index) {
			onePastMaxIndex = index
		} else {
			minIndex = index + 1
		}
	}
	return minIndex
}

// findChildIndex returns the slot holding the child pointer, or -1.
func (n *node) findChildIndex(child bufferpool.PageID) int32 {
	for i := int32(0); i < n.size(); i++ {
		if n.childAt(i) == child {
			return i
		}
	}
	return -1
}
