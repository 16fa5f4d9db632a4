// Copyright 2023 Molecula Corp. All rights reserved.

// Package btree implements a concurrent B+ tree index over the buffer pool,
// mapping int64 keys to RIDs. Keys are unique. Descent uses latch crabbing;
// the root page id never changes once the tree exists, so external catalogs
// can hold it without coordination.
package btree

import (
	"sync"

	"github.com/featurebasedb/stratum/bufferpool"
	"github.com/featurebasedb/stratum/errors"
	"github.com/featurebasedb/stratum/logger"
	"github.com/featurebasedb/stratum/transaction"
)

// MAX_LEAF_ENTRIES and MAX_INTERNAL_ENTRIES bound the configurable node
// sizes; one slot of slack is reserved so a node can hold the overflowing
// entry while it splits.
const MAX_LEAF_ENTRIES = (bufferpool.PAGE_SIZE-bufferpool.PAGE_LEAF_ENTRIES_OFFSET)/bufferpool.LEAF_ENTRY_LENGTH - 1
const MAX_INTERNAL_ENTRIES = (bufferpool.PAGE_SIZE-bufferpool.PAGE_INTERNAL_ENTRIES_OFFSET)/bufferpool.INTERNAL_ENTRY_LENGTH - 1

type treeOp int

const (
	opRead treeOp = iota
	opInsert
	opRemove
)

// protocol for latching
// 		▶ latch parent node
// 		▶ get latch for childNode
// 		▶ release latch for parent if “safe”.
// 			• A safe node is one that will not split or merge when updated.
// 				▶ size < maxSize (on insertion)
// 				▶ size > minSize (on removal)
//
// reads take read latches and always release the parent once the child is
// latched; writes take write latches all the way down and keep the unsafe
// suffix of the path latched in the transaction's page set.

// BTree represents a B+ tree index over (key → RID)
type BTree struct {
	mu         sync.Mutex // guards rootPageID creation
	rootPageID bufferpool.PageID

	leafMaxSize     int32
	internalMaxSize int32

	pool   *bufferpool.BufferPool
	logger logger.Logger
}

// NewBTree returns a B+ tree over the pool with the given node capacities.
func NewBTree(pool *bufferpool.BufferPool, leafMaxSize, internalMaxSize int32) (*BTree, error) {
	if leafMaxSize < 2 || leafMaxSize > MAX_LEAF_ENTRIES {
		return nil, errors.Errorf("leaf max size %d out of range [2, %d]", leafMaxSize, MAX_LEAF_ENTRIES)
	}
	if internalMaxSize < 3 || internalMaxSize > MAX_INTERNAL_ENTRIES {
		return nil, errors.Errorf("internal max size %d out of range [3, %d]", internalMaxSize, MAX_INTERNAL_ENTRIES)
	}
	return &BTree{
		rootPageID:      bufferpool.INVALID_PAGE,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		pool:            pool,
		logger:          logger.NopLogger,
	}, nil
}

// SetLogger sets the logger used by the tree.
func (t *BTree) SetLogger(l logger.Logger) {
	t.logger = l
}

// IsEmpty reports whether the tree has no root page.
func (t *BTree) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rootPageID == bufferpool.INVALID_PAGE
}

// RootPageID returns the root page id, INVALID_PAGE for an empty tree. The
// id is stable for the life of the tree.
func (t *BTree) RootPageID() bufferpool.PageID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rootPageID
}

// GetValue looks a key up and returns its RID.
func (t *BTree) GetValue(key int64, txn *transaction.Transaction) (bufferpool.RID, bool, error) {
	txn = scratchIfNil(txn)
	leaf, err := t.findLeaf(key, txn, opRead)
	if err != nil {
		t.releaseAll(txn, opRead)
		return bufferpool.RID{}, false, err
	}
	if leaf == nil {
		return bufferpool.RID{}, false, nil
	}
	i, found := leaf.leafLookup(key)
	var rid bufferpool.RID
	if found {
		rid = leaf.leafRIDAt(i)
	}
	t.releaseAll(txn, opRead)
	return rid, found, nil
}

// Insert puts a key/RID pair into the tree. Inserting a duplicate key is
// not an error; it returns false and leaves the tree unchanged.
func (t *BTree) Insert(key int64, rid bufferpool.RID, txn *transaction.Transaction) (bool, error) {
	txn = scratchIfNil(txn)

	var leaf *node
	for {
		var err error
		leaf, err = t.findLeaf(key, txn, opInsert)
		if err != nil {
			t.releaseAll(txn, opInsert)
			return false, err
		}
		if leaf != nil {
			break
		}
		// the tree may be empty; start it with a single leaf root
		if err := t.startNewTree(); err != nil {
			return false, err
		}
	}

	i, found := leaf.leafLookup(key)
	if found {
		t.releaseAll(txn, opInsert)
		return false, nil
	}
	leaf.leafInsertAt(i, key, rid)

	// walk up splitting every node the insert overflowed
	cur := leaf
	for cur.size() > cur.maxSize() {
		if cur.parent() == bufferpool.INVALID_PAGE {
			next, err := t.growRoot(cur, txn)
			if err != nil {
				t.releaseAll(txn, opInsert)
				return false, err
			}
			cur = next
			continue
		}

		right, sep, err := t.splitNode(cur)
		if err != nil {
			t.releaseAll(txn, opInsert)
			return false, err
		}
		rightID := right.id()

		// release the split node and its new sibling; the parent stays
		// latched in the page set because it was unsafe
		pages := txn.PageSet()
		txn.SetPageSet(pages[:len(pages)-1])
		cur.releaseWriteLatch()
		t.pool.UnpinPage(cur.id(), true)
		right.releaseWriteLatch()
		t.pool.UnpinPage(rightID, true)

		pages = txn.PageSet()
		parent := &node{page: pages[len(pages)-1]}
		parent.internalInsertAt(parent.internalInsertPos(sep), sep, rightID)
		cur = parent
	}

	t.releaseAll(txn, opInsert)
	return true, nil
}

// Remove deletes a key from the tree. Removing an absent key is a no-op.
func (t *BTree) Remove(key int64, txn *transaction.Transaction) error {
	txn = scratchIfNil(txn)
	leaf, err := t.findLeaf(key, txn, opRemove)
	if err != nil {
		t.releaseAll(txn, opRemove)
		return err
	}
	if leaf == nil {
		return nil
	}
	if i, found := leaf.leafLookup(key); found {
		leaf.leafRemoveAt(i)
	}

	cur := leaf
	for {
		if cur.size() >= cur.minSize() {
			break
		}
		if cur.parent() == bufferpool.INVALID_PAGE {
			if err := t.shrinkRoot(cur, txn); err != nil {
				t.releaseAll(txn, opRemove)
				return err
			}
			break
		}
		next, err := t.fixUnderflow(cur, txn)
		if err != nil {
			t.releaseAll(txn, opRemove)
			return err
		}
		cur = next
	}

	t.releaseAll(txn, opRemove)
	return nil
}

// private methods

func scratchIfNil(txn *transaction.Transaction) *transaction.Transaction {
	if txn == nil {
		txn = transaction.NewTransaction(transaction.INVALID_TXN_ID, transaction.RepeatableRead)
	}
	return txn
}

func (t *BTree) fetchNode(id bufferpool.PageID) (*node, error) {
	page, err := t.pool.FetchPage(id)
	if err != nil {
		return nil, err
	}
	return &node{page: page}, nil
}

func isSafe(n *node, op treeOp) bool {
	switch op {
	case opInsert:
		return n.size() < n.maxSize()
	case opRemove:
		return n.size() > n.minSize()
	}
	return true
}

// findLeaf descends from the root to the leaf for key, crabbing latches.
// Every latched page is appended to the transaction's page set; ancestors
// are released as soon as the next child is proven safe for op. Returns nil
// for an empty tree.
func (t *BTree) findLeaf(key int64, txn *transaction.Transaction, op treeOp) (*node, error) {
	t.mu.Lock()
	rootID := t.rootPageID
	t.mu.Unlock()
	if rootID == bufferpool.INVALID_PAGE {
		return nil, nil
	}

	cur, err := t.fetchNode(rootID)
	if err != nil {
		return nil, err
	}
	t.latchFor(cur, op)
	txn.AddIntoPageSet(cur.page)

	for !cur.isLeaf() {
		childID := cur.findChild(key)
		child, err := t.fetchNode(childID)
		if err != nil {
			return nil, err
		}
		t.latchFor(child, op)
		txn.AddIntoPageSet(child.page)
		if isSafe(child, op) {
			t.releaseAncestors(txn, op)
		}
		cur = child
	}
	return cur, nil
}

func (t *BTree) latchFor(n *node, op treeOp) {
	if op == opRead {
		n.takeReadLatch()
	} else {
		n.takeWriteLatch()
	}
}

// releaseAncestors unlatches and unpins everything in the page set except
// the last entry.
func (t *BTree) releaseAncestors(txn *transaction.Transaction, op treeOp) {
	pages := txn.PageSet()
	for _, page := range pages[:len(pages)-1] {
		if op == opRead {
			page.ReleaseReadLatch()
		} else {
			page.ReleaseWriteLatch()
		}
		t.pool.UnpinPage(page.ID(), false)
	}
	txn.SetPageSet(pages[len(pages)-1:])
}

// releaseAll unlatches and unpins the whole page set, then deletes any
// pages queued for deletion.
func (t *BTree) releaseAll(txn *transaction.Transaction, op treeOp) {
	for _, page := range txn.PageSet() {
		if op == opRead {
			page.ReleaseReadLatch()
			t.pool.UnpinPage(page.ID(), false)
		} else {
			page.ReleaseWriteLatch()
			t.pool.UnpinPage(page.ID(), true)
		}
	}
	txn.SetPageSet(nil)
	for _, id := range txn.DeletedPageSet() {
		t.pool.DeletePage(id)
	}
	txn.ClearDeletedPageSet()
}

// startNewTree creates the root leaf if the tree is still empty.
func (t *BTree) startNewTree() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rootPageID != bufferpool.INVALID_PAGE {
		return nil
	}
	page, err := t.pool.NewPage()
	if err != nil {
		return errors.Wrap(err, "starting new tree")
	}
	root := &node{page: page}
	root.initLeaf(page.ID(), bufferpool.INVALID_PAGE, t.leafMaxSize)
	t.pool.UnpinPage(page.ID(), true)
	t.rootPageID = page.ID()
	t.logger.Debugf("created root page %d", page.ID())
	return nil
}

// growRoot handles an overflowing root: the root's payload moves to a newly
// allocated page and the root becomes an internal node with that single
// child, preserving the root page id. The caller then splits the copy. The
// new child page is write latched, pinned and pushed onto the page set.
func (t *BTree) growRoot(root *node, txn *transaction.Transaction) (*node, error) {
	page, err := t.pool.NewPage()
	if err != nil {
		return nil, errors.Wrap(err, "growing root")
	}
	page.TakeWriteLatch()
	child := &node{page: page}

	if root.isLeaf() {
		child.initLeaf(page.ID(), root.id(), root.maxSize())
		root.page.CopyLeafEntries(page, 0, 0, root.size())
		child.setSize(root.size())
		child.setNext(root.next())

		root.page.WritePageType(bufferpool.PAGE_TYPE_BTREE_INTERNAL)
		root.page.WriteMaxEntries(t.internalMaxSize)
		root.setSize(0)
		root.internalInsertAt(0, child.leafKeyAt(0), child.id())
	} else {
		child.initInternal(page.ID(), root.id(), root.maxSize())
		root.page.CopyInternalEntries(page, 0, 0, root.size())
		child.setSize(root.size())
		if err := t.reparentChildren(child, 0, child.size()); err != nil {
			page.ReleaseWriteLatch()
			t.pool.UnpinPage(page.ID(), true)
			return nil, err
		}

		root.setSize(0)
		root.internalInsertAt(0, child.keyAt(0), child.id())
	}

	txn.AddIntoPageSet(page)
	return child, nil
}

// splitNode splits an overflowing non-root node at minSize: entries
// [0, minSize) stay, entries [minSize, size) move to a new right sibling.
// Returns the right node (write latched, pinned) and the separator key to
// push into the parent.
func (t *BTree) splitNode(cur *node) (*node, int64, error) {
	if cur.latchState() != bufferpool.Write {
		panic("unexpected latch state")
	}
	page, err := t.pool.NewPage()
	if err != nil {
		return nil, 0, errors.Wrap(err, "splitting node")
	}
	page.TakeWriteLatch()
	right := &node{page: page}

	splitAt := cur.minSize()
	moveCount := cur.size() - splitAt

	var sep int64
	if cur.isLeaf() {
		right.initLeaf(page.ID(), cur.parent(), cur.maxSize())
		cur.page.CopyLeafEntries(page, 0, splitAt, moveCount)
		right.setSize(moveCount)
		cur.setSize(splitAt)
		// link the right sibling into the leaf chain
		right.setNext(cur.next())
		cur.setNext(right.id())
		sep = right.leafKeyAt(0)
	} else {
		right.initInternal(page.ID(), cur.parent(), cur.maxSize())
		cur.page.CopyInternalEntries(page, 0, splitAt, moveCount)
		right.setSize(moveCount)
		cur.setSize(splitAt)
		sep = right.keyAt(0)
		if err := t.reparentChildren(right, 0, moveCount); err != nil {
			page.ReleaseWriteLatch()
			t.pool.UnpinPage(page.ID(), true)
			return nil, 0, err
		}
	}
	return right, sep, nil
}

// reparentChildren points the parent id of children [from, to) of n at n.
func (t *BTree) reparentChildren(n *node, from, to int32) error {
	for i := from; i < to; i++ {
		child, err := t.fetchNode(n.childAt(i))
		if err != nil {
			return err
		}
		child.takeWriteLatch()
		child.setParent(n.id())
		child.releaseWriteLatch()
		t.pool.UnpinPage(child.id(), true)
	}
	return nil
}

// shrinkRoot handles an underflowing root. A leaf root may hold any number
// of entries including zero. An internal root keeps at least two children;
// at exactly one, the sole child's payload is pulled up into the root page
// (preserving the root page id) and the child is deleted.
func (t *BTree) shrinkRoot(root *node, txn *transaction.Transaction) error {
	if root.isLeaf() {
		return nil
	}
	if root.size() >= 2 {
		return nil
	}

	child, err := t.fetchNode(root.childAt(0))
	if err != nil {
		return err
	}
	child.takeWriteLatch()

	if child.isLeaf() {
		root.page.WritePageType(bufferpool.PAGE_TYPE_BTREE_LEAF)
		root.page.WriteMaxEntries(t.leafMaxSize)
		root.setSize(0)
		child.page.CopyLeafEntries(root.page, 0, 0, child.size())
		root.setSize(child.size())
		// the sole child has no siblings
		root.setNext(bufferpool.INVALID_PAGE)
	} else {
		root.setSize(0)
		child.page.CopyInternalEntries(root.page, 0, 0, child.size())
		root.setSize(child.size())
		if err := t.reparentChildren(root, 0, root.size()); err != nil {
			child.releaseWriteLatch()
			t.pool.UnpinPage(child.id(), false)
			return err
		}
	}

	child.releaseWriteLatch()
	t.pool.UnpinPage(child.id(), false)
	txn.AddIntoDeletedPageSet(child.id())
	t.logger.Debugf("collapsed root child page %d", child.id())
	return nil
}

// fixUnderflow resolves an underflowing non-root node by redistributing
// from, or merging with, a sibling. The node's write latch is released
// first; its parent (still latched in the page set) is the only path to the
// siblings, which are re-fetched and latched fresh. Returns the parent so
// the caller can continue the walk upward.
func (t *BTree) fixUnderflow(cur *node, txn *transaction.Transaction) (*node, error) {
	pages := txn.PageSet()
	txn.SetPageSet(pages[:len(pages)-1])
	curID := cur.id()
	cur.releaseWriteLatch()
	t.pool.UnpinPage(curID, true)

	pages = txn.PageSet()
	parent := &node{page: pages[len(pages)-1]}

	idx := parent.findChildIndex(curID)
	if idx < 0 {
		panic("underflowing node missing from parent")
	}
	// pick a sibling: prefer the right one; the rightmost child pairs with
	// its left sibling
	li := idx
	if idx == parent.size()-1 {
		li = idx - 1
	}

	left, err := t.fetchNode(parent.childAt(li))
	if err != nil {
		return nil, err
	}
	left.takeWriteLatch()
	right, err := t.fetchNode(parent.childAt(li + 1))
	if err != nil {
		left.releaseWriteLatch()
		t.pool.UnpinPage(left.id(), false)
		return nil, err
	}
	right.takeWriteLatch()

	if left.size()+right.size() >= 2*left.minSize() {
		err = t.redistribute(parent, left, right, li+1)
	} else {
		err = t.merge(parent, left, right, li+1)
		if err == nil {
			txn.AddIntoDeletedPageSet(right.id())
		}
	}

	left.releaseWriteLatch()
	t.pool.UnpinPage(left.id(), true)
	right.releaseWriteLatch()
	t.pool.UnpinPage(right.id(), true)
	if err != nil {
		return nil, err
	}
	return parent, nil
}

// redistribute moves one entry across the boundary between two siblings,
// from the larger side to the smaller, and refreshes the parent's
// separator. rightIdx is right's slot in the parent.
func (t *BTree) redistribute(parent, left, right *node, rightIdx int32) error {
	if left.isLeaf() {
		if left.size() < right.size() {
			// right -> left
			key, rid := right.page.ReadLeafEntry(0)
			left.leafInsertAt(left.size(), key, rid)
			right.leafRemoveAt(0)
		} else {
			// left -> right
			key, rid := left.page.ReadLeafEntry(left.size() - 1)
			right.leafInsertAt(0, key, rid)
			left.leafRemoveAt(left.size() - 1)
		}
		parent.setKeyAt(rightIdx, right.leafKeyAt(0))
		return nil
	}

	sep := parent.keyAt(rightIdx)
	if left.size() < right.size() {
		// right's first child moves to left's end; the parent separator
		// comes down as its key and right's first real separator goes up
		child := right.childAt(0)
		left.internalInsertAt(left.size(), sep, child)
		newSep := right.keyAt(1)
		right.internalRemoveAt(0)
		parent.setKeyAt(rightIdx, newSep)
		return t.reparentChildren(left, left.size()-1, left.size())
	}
	// left's last child moves to right's front; the parent separator comes
	// down as the key of right's previously-first child and left's last
	// separator goes up
	key := left.keyAt(left.size() - 1)
	child := left.childAt(left.size() - 1)
	right.internalInsertAt(0, 0, child)
	right.setKeyAt(1, sep)
	left.internalRemoveAt(left.size() - 1)
	parent.setKeyAt(rightIdx, key)
	return t.reparentChildren(right, 0, 1)
}

// merge concatenates right into left, fixes the leaf chain, and removes
// right's entry from the parent. rightIdx is right's slot in the parent.
func (t *BTree) merge(parent, left, right *node, rightIdx int32) error {
	if left.isLeaf() {
		right.page.CopyLeafEntries(left.page, left.size(), 0, right.size())
		left.setSize(left.size() + right.size())
		left.setNext(right.next())
	} else {
		sep := parent.keyAt(rightIdx)
		oldSize := left.size()
		right.page.CopyInternalEntries(left.page, oldSize, 0, right.size())
		left.setSize(oldSize + right.size())
		// the separator comes down as the key of right's first child
		left.setKeyAt(oldSize, sep)
		if err := t.reparentChildren(left, oldSize, left.size()); err != nil {
			return err
		}
	}
	parent.internalRemoveAt(rightIdx)
	return nil
}
