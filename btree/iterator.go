// Copyright 2023 Molecula Corp. All rights reserved.

package btree

import (
	"github.com/featurebasedb/stratum/bufferpool"
)

// TreeIterator is a cursor over the leaf chain in key order. It holds a
// read latch and a pin on the current leaf; crossing to the next leaf
// latches it before the current one is released. An iterator at the end
// stays usable; Next is then a no-op.
type TreeIterator struct {
	pool  *bufferpool.BufferPool
	page  *bufferpool.Page // read latched and pinned; nil at end
	index int32
}

// Begin returns an iterator positioned at the smallest key.
func (t *BTree) Begin() (*TreeIterator, error) {
	t.mu.Lock()
	rootID := t.rootPageID
	t.mu.Unlock()
	if rootID == bufferpool.INVALID_PAGE {
		return t.End(), nil
	}

	cur, err := t.fetchNode(rootID)
	if err != nil {
		return nil, err
	}
	cur.takeReadLatch()
	for !cur.isLeaf() {
		child, err := t.fetchNode(cur.childAt(0))
		if err != nil {
			cur.releaseReadLatch()
			t.pool.UnpinPage(cur.id(), false)
			return nil, err
		}
		child.takeReadLatch()
		cur.releaseReadLatch()
		t.pool.UnpinPage(cur.id(), false)
		cur = child
	}
	// only an empty root leaf can have size zero
	if cur.size() == 0 {
		cur.releaseReadLatch()
		t.pool.UnpinPage(cur.id(), false)
		return t.End(), nil
	}
	return &TreeIterator{pool: t.pool, page: cur.page, index: 0}, nil
}

// BeginAt returns an iterator positioned at the first key >= key.
func (t *BTree) BeginAt(key int64) (*TreeIterator, error) {
	t.mu.Lock()
	rootID := t.rootPageID
	t.mu.Unlock()
	if rootID == bufferpool.INVALID_PAGE {
		return t.End(), nil
	}

	cur, err := t.fetchNode(rootID)
	if err != nil {
		return nil, err
	}
	cur.takeReadLatch()
	for !cur.isLeaf() {
		child, err := t.fetchNode(cur.findChild(key))
		if err != nil {
			cur.releaseReadLatch()
			t.pool.UnpinPage(cur.id(), false)
			return nil, err
		}
		child.takeReadLatch()
		cur.releaseReadLatch()
		t.pool.UnpinPage(cur.id(), false)
		cur = child
	}
	if cur.size() == 0 {
		cur.releaseReadLatch()
		t.pool.UnpinPage(cur.id(), false)
		return t.End(), nil
	}

	it := &TreeIterator{pool: t.pool, page: cur.page}
	it.index, _ = cur.leafLookup(key)
	if it.index >= cur.size() {
		// every key on this leaf is smaller; move to the right sibling
		if err := it.advanceLeaf(); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// End returns an iterator representing one-past-the-last key.
func (t *BTree) End() *TreeIterator {
	return &TreeIterator{pool: t.pool}
}

// IsEnd reports whether the iterator is past the last key.
func (it *TreeIterator) IsEnd() bool {
	return it.page == nil
}

// Key returns the key at the cursor.
func (it *TreeIterator) Key() int64 {
	key, _ := it.page.ReadLeafEntry(it.index)
	return key
}

// RID returns the RID at the cursor.
func (it *TreeIterator) RID() bufferpool.RID {
	_, rid := it.page.ReadLeafEntry(it.index)
	return rid
}

// Next advances the cursor. Advancing past the last key releases the leaf
// and leaves the iterator at the end.
func (it *TreeIterator) Next() error {
	if it.page == nil {
		return nil
	}
	n := &node{page: it.page}
	if it.index+1 < n.size() {
		it.index++
		return nil
	}
	return it.advanceLeaf()
}

// advanceLeaf hands the cursor over to the next leaf in the chain, or ends
// the iteration when there is none.
func (it *TreeIterator) advanceLeaf() error {
	n := &node{page: it.page}
	nextID := n.next()
	if nextID == bufferpool.INVALID_PAGE {
		it.release()
		return nil
	}
	nextPage, err := it.pool.FetchPage(nextID)
	if err != nil {
		it.release()
		return err
	}
	nextPage.TakeReadLatch()
	it.page.ReleaseReadLatch()
	it.pool.UnpinPage(it.page.ID(), false)
	it.page = nextPage
	it.index = 0
	return nil
}

func (it *TreeIterator) release() {
	it.page.ReleaseReadLatch()
	it.pool.UnpinPage(it.page.ID(), false)
	it.page = nil
	it.index = 0
}

// Dispose releases the cursor's latch and pin. Safe to call on an ended
// iterator.
func (it *TreeIterator) Dispose() {
	if it.page != nil {
		it.release()
	}
}
