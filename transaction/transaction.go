// Package transaction defines the transaction object shared by the lock
// manager and the index: identity, isolation level, two-phase state, the
// held-lock sets, and the latched-page sets used by index crabbing.
package transaction

import (
	"sync"

	"github.com/featurebasedb/stratum/bufferpool"
)

// TxnID is the type for transaction id
type TxnID int32

const INVALID_TXN_ID = TxnID(-1)

// TableOID is the type for table object id
type TableOID int32

// IsolationLevel selects the locking discipline for a transaction.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ_UNCOMMITTED"
	case ReadCommitted:
		return "READ_COMMITTED"
	case RepeatableRead:
		return "REPEATABLE_READ"
	}
	return "UNKNOWN"
}

// State is the two-phase-locking state of a transaction.
type State int

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	}
	return "UNKNOWN"
}

// Transaction carries the state the storage core reads and mutates. The
// lock manager guards it with LockTxn/UnlockTxn; the page sets are only
// touched by the single thread running the transaction's index operations.
type Transaction struct {
	mu sync.Mutex

	id             TxnID
	isolationLevel IsolationLevel
	state          State

	sharedTableLockSet                   map[TableOID]struct{}
	exclusiveTableLockSet                map[TableOID]struct{}
	intentionSharedTableLockSet          map[TableOID]struct{}
	intentionExclusiveTableLockSet       map[TableOID]struct{}
	sharedIntentionExclusiveTableLockSet map[TableOID]struct{}

	sharedRowLockSet    map[TableOID]map[bufferpool.RID]struct{}
	exclusiveRowLockSet map[TableOID]map[bufferpool.RID]struct{}

	// pages latched by an in-flight index operation, root first
	pageSet []*bufferpool.Page
	// pages to delete when the operation releases its latches
	deletedPageSet []bufferpool.PageID
}

// NewTransaction returns a transaction in the GROWING state.
func NewTransaction(id TxnID, level IsolationLevel) *Transaction {
	return &Transaction{
		id:                                   id,
		isolationLevel:                       level,
		state:                                Growing,
		sharedTableLockSet:                   make(map[TableOID]struct{}),
		exclusiveTableLockSet:                make(map[TableOID]struct{}),
		intentionSharedTableLockSet:          make(map[TableOID]struct{}),
		intentionExclusiveTableLockSet:       make(map[TableOID]struct{}),
		sharedIntentionExclusiveTableLockSet: make(map[TableOID]struct{}),
		sharedRowLockSet:                     make(map[TableOID]map[bufferpool.RID]struct{}),
		exclusiveRowLockSet:                  make(map[TableOID]map[bufferpool.RID]struct{}),
	}
}

func (t *Transaction) ID() TxnID {
	return t.id
}

func (t *Transaction) IsolationLevel() IsolationLevel {
	return t.isolationLevel
}

// LockTxn takes the transaction's internal mutex. Per the global lock
// ordering it is acquired after any lock-map or queue mutex.
func (t *Transaction) LockTxn() {
	t.mu.Lock()
}

func (t *Transaction) UnlockTxn() {
	t.mu.Unlock()
}

// State returns the transaction state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState sets the transaction state.
func (t *Transaction) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// StateLocked returns the state; the caller holds the txn mutex.
func (t *Transaction) StateLocked() State {
	return t.state
}

// SetStateLocked sets the state; the caller holds the txn mutex.
func (t *Transaction) SetStateLocked(s State) {
	t.state = s
}

// held-set accessors; the caller holds the txn mutex

func (t *Transaction) SharedTableLockSet() map[TableOID]struct{} {
	return t.sharedTableLockSet
}

func (t *Transaction) ExclusiveTableLockSet() map[TableOID]struct{} {
	return t.exclusiveTableLockSet
}

func (t *Transaction) IntentionSharedTableLockSet() map[TableOID]struct{} {
	return t.intentionSharedTableLockSet
}

func (t *Transaction) IntentionExclusiveTableLockSet() map[TableOID]struct{} {
	return t.intentionExclusiveTableLockSet
}

func (t *Transaction) SharedIntentionExclusiveTableLockSet() map[TableOID]struct{} {
	return t.sharedIntentionExclusiveTableLockSet
}

func (t *Transaction) SharedRowLockSet() map[TableOID]map[bufferpool.RID]struct{} {
	return t.sharedRowLockSet
}

func (t *Transaction) ExclusiveRowLockSet() map[TableOID]map[bufferpool.RID]struct{} {
	return t.exclusiveRowLockSet
}

// IsTableSharedLocked reports whether the txn holds S on the table; the
// caller holds the txn mutex.
func (t *Transaction) IsTableSharedLocked(oid TableOID) bool {
	_, ok := t.sharedTableLockSet[oid]
	return ok
}

func (t *Transaction) IsTableExclusiveLocked(oid TableOID) bool {
	_, ok := t.exclusiveTableLockSet[oid]
	return ok
}

func (t *Transaction) IsTableIntentionSharedLocked(oid TableOID) bool {
	_, ok := t.intentionSharedTableLockSet[oid]
	return ok
}

func (t *Transaction) IsTableIntentionExclusiveLocked(oid TableOID) bool {
	_, ok := t.intentionExclusiveTableLockSet[oid]
	return ok
}

func (t *Transaction) IsTableSharedIntentionExclusiveLocked(oid TableOID) bool {
	_, ok := t.sharedIntentionExclusiveTableLockSet[oid]
	return ok
}

func (t *Transaction) IsRowSharedLocked(oid TableOID, rid bufferpool.RID) bool {
	rows, ok := t.sharedRowLockSet[oid]
	if !ok {
		return false
	}
	_, ok = rows[rid]
	return ok
}

func (t *Transaction) IsRowExclusiveLocked(oid TableOID, rid bufferpool.RID) bool {
	rows, ok := t.exclusiveRowLockSet[oid]
	if !ok {
		return false
	}
	_, ok = rows[rid]
	return ok
}

// AddSharedRowLock records a held S row lock; the caller holds the txn mutex.
func (t *Transaction) AddSharedRowLock(oid TableOID, rid bufferpool.RID) {
	rows, ok := t.sharedRowLockSet[oid]
	if !ok {
		rows = make(map[bufferpool.RID]struct{})
		t.sharedRowLockSet[oid] = rows
	}
	rows[rid] = struct{}{}
}

// AddExclusiveRowLock records a held X row lock; the caller holds the txn
// mutex.
func (t *Transaction) AddExclusiveRowLock(oid TableOID, rid bufferpool.RID) {
	rows, ok := t.exclusiveRowLockSet[oid]
	if !ok {
		rows = make(map[bufferpool.RID]struct{})
		t.exclusiveRowLockSet[oid] = rows
	}
	rows[rid] = struct{}{}
}

func (t *Transaction) RemoveSharedRowLock(oid TableOID, rid bufferpool.RID) {
	if rows, ok := t.sharedRowLockSet[oid]; ok {
		delete(rows, rid)
	}
}

func (t *Transaction) RemoveExclusiveRowLock(oid TableOID, rid bufferpool.RID) {
	if rows, ok := t.exclusiveRowLockSet[oid]; ok {
		delete(rows, rid)
	}
}

// page-set handling for index crabbing; single-threaded per transaction, so
// the txn mutex is not taken

// AddIntoPageSet appends a latched page.
func (t *Transaction) AddIntoPageSet(p *bufferpool.Page) {
	t.pageSet = append(t.pageSet, p)
}

// PageSet returns the latched pages, root first.
func (t *Transaction) PageSet() []*bufferpool.Page {
	return t.pageSet
}

// SetPageSet replaces the latched-page set.
func (t *Transaction) SetPageSet(pages []*bufferpool.Page) {
	t.pageSet = pages
}

// AddIntoDeletedPageSet records a page to delete at latch release.
func (t *Transaction) AddIntoDeletedPageSet(id bufferpool.PageID) {
	t.deletedPageSet = append(t.deletedPageSet, id)
}

// DeletedPageSet returns the pages pending deletion.
func (t *Transaction) DeletedPageSet() []bufferpool.PageID {
	return t.deletedPageSet
}

// ClearDeletedPageSet empties the pending-deletion set.
func (t *Transaction) ClearDeletedPageSet() {
	t.deletedPageSet = nil
}
