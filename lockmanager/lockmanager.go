// Package lockmanager implements multi-granularity two-phase locking over
// tables and rows: intention modes, lock upgrades with a single-upgrader
// queue, isolation-level rules, and a background waits-for deadlock
// detector.
package lockmanager

import (
	"sync"

	"github.com/featurebasedb/stratum/bufferpool"
	"github.com/featurebasedb/stratum/errors"
	"github.com/featurebasedb/stratum/logger"
	"github.com/featurebasedb/stratum/stats"
	"github.com/featurebasedb/stratum/transaction"
)

// Error codes raised by the lock manager. Every one of them marks the
// transaction ABORTED before surfacing.
const (
	ErrUpgradeConflict                  errors.Code = "UpgradeConflict"
	ErrIncompatibleUpgrade              errors.Code = "IncompatibleUpgrade"
	ErrLockOnShrinking                  errors.Code = "LockOnShrinking"
	ErrLockSharedOnReadUncommitted      errors.Code = "LockSharedOnReadUncommitted"
	ErrTableLockNotPresent              errors.Code = "TableLockNotPresent"
	ErrAttemptedUnlockButNoLockHeld     errors.Code = "AttemptedUnlockButNoLockHeld"
	ErrAttemptedIntentionLockOnRow      errors.Code = "AttemptedIntentionLockOnRow"
	ErrTableUnlockedBeforeUnlockingRows errors.Code = "TableUnlockedBeforeUnlockingRows"
)

// LockMode is a multi-granularity lock mode.
type LockMode int

const (
	IntentionShared LockMode = iota
	IntentionExclusive
	Shared
	SharedIntentionExclusive
	Exclusive
)

func (m LockMode) String() string {
	switch m {
	case IntentionShared:
		return "IS"
	case IntentionExclusive:
		return "IX"
	case Shared:
		return "S"
	case SharedIntentionExclusive:
		return "SIX"
	case Exclusive:
		return "X"
	}
	return "UNKNOWN"
}

// compatible implements the compatibility matrix. It is symmetric.
func compatible(a, b LockMode) bool {
	switch a {
	case IntentionShared:
		return b != Exclusive
	case IntentionExclusive:
		return b == IntentionShared || b == IntentionExclusive
	case Shared:
		return b == IntentionShared || b == Shared
	case SharedIntentionExclusive:
		return b == IntentionShared
	case Exclusive:
		return false
	}
	return false
}

// canUpgrade implements the strict upgrade lattice.
func canUpgrade(cur, req LockMode) bool {
	switch cur {
	case IntentionShared:
		return req == Shared || req == Exclusive || req == IntentionExclusive || req == SharedIntentionExclusive
	case Shared, IntentionExclusive:
		return req == Exclusive || req == SharedIntentionExclusive
	case SharedIntentionExclusive:
		return req == Exclusive
	}
	return false
}

// LockRequest is one table or row lock request by a transaction.
type LockRequest struct {
	txnID   transaction.TxnID
	mode    LockMode
	granted bool
	oid     transaction.TableOID
	rid     bufferpool.RID
	onRow   bool
}

// LockRequestQueue holds the requests on one object in arrival order,
// logically granted | upgrading | waiters. At most one transaction may be
// upgrading at a time.
type LockRequestQueue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	requests  []*LockRequest
	upgrading transaction.TxnID
}

func newLockRequestQueue() *LockRequestQueue {
	q := &LockRequestQueue{
		upgrading: transaction.INVALID_TXN_ID,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// LockManager hands out table and row locks. Lock ordering is map mutex →
// queue mutex → txn mutex, never the reverse.
type LockManager struct {
	tableLockMapMu sync.Mutex
	tableLockMap   map[transaction.TableOID]*LockRequestQueue

	rowLockMapMu sync.Mutex
	rowLockMap   map[bufferpool.RID]*LockRequestQueue

	// transactions seen by this manager, so the detector can abort by id
	txnMapMu sync.Mutex
	txnMap   map[transaction.TxnID]*transaction.Transaction

	waitsForMu sync.Mutex
	waitsFor   map[transaction.TxnID][]transaction.TxnID

	stopCh chan struct{}

	logger logger.Logger
	stats  stats.StatsClient
}

// NewLockManager returns a lock manager. Deadlock detection starts when
// RunDeadlockDetection is called.
func NewLockManager() *LockManager {
	return &LockManager{
		tableLockMap: make(map[transaction.TableOID]*LockRequestQueue),
		rowLockMap:   make(map[bufferpool.RID]*LockRequestQueue),
		txnMap:       make(map[transaction.TxnID]*transaction.Transaction),
		waitsFor:     make(map[transaction.TxnID][]transaction.TxnID),
		logger:       logger.NopLogger,
		stats:        stats.NopStatsClient,
	}
}

// SetLogger sets the logger used by the lock manager.
func (l *LockManager) SetLogger(lg logger.Logger) {
	l.logger = lg
}

// SetStatsClient sets the stats client used by the lock manager.
func (l *LockManager) SetStatsClient(s stats.StatsClient) {
	l.stats = s
}

// LockTable acquires a table lock, blocking until it is granted or the
// transaction is aborted. Returns false with no error when the wait ended
// because the transaction was aborted by the deadlock detector.
func (l *LockManager) LockTable(txn *transaction.Transaction, mode LockMode, oid transaction.TableOID) (bool, error) {
	if s := txn.State(); s != transaction.Growing && s != transaction.Shrinking {
		panic("lock table on finished transaction")
	}
	l.registerTxn(txn)

	if err := l.checkLockTxnState(txn, mode); err != nil {
		return false, err
	}

	// a lock already held in the requested mode is a no-op; a different
	// held mode must be a legal upgrade
	txn.LockTxn()
	cur, held := tableLockMode(txn, oid)
	txn.UnlockTxn()
	if held {
		if cur == mode {
			return true, nil
		}
		if !canUpgrade(cur, mode) {
			l.abort(txn)
			return false, errors.Newf(ErrIncompatibleUpgrade, "txn %d: cannot upgrade table lock %v to %v", txn.ID(), cur, mode)
		}
	}

	l.tableLockMapMu.Lock()
	q, ok := l.tableLockMap[oid]
	if !ok {
		q = newLockRequestQueue()
		l.tableLockMap[oid] = q
	}
	q.mu.Lock()
	l.tableLockMapMu.Unlock()

	req := &LockRequest{txnID: txn.ID(), mode: mode, oid: oid}
	if err := l.enqueue(txn, q, req, held); err != nil {
		q.mu.Unlock()
		return false, err
	}

	granted := l.waitForGrant(txn, q, req)
	if granted {
		l.addTableLockOnTxn(txn, mode, oid)
		l.stats.Count(stats.MetricLockGrants, 1, 1.0)
		l.logger.Debugf("txn %d granted %v on table %d", txn.ID(), mode, oid)
	}
	q.mu.Unlock()
	return granted, nil
}

// UnlockTable releases the transaction's granted table lock and applies the
// isolation-level state transition. All row locks on the table must be
// released first.
func (l *LockManager) UnlockTable(txn *transaction.Transaction, oid transaction.TableOID) (bool, error) {
	txn.LockTxn()
	rowsHeld := len(txn.SharedRowLockSet()[oid]) > 0 || len(txn.ExclusiveRowLockSet()[oid]) > 0
	txn.UnlockTxn()
	if rowsHeld {
		l.abort(txn)
		return false, errors.Newf(ErrTableUnlockedBeforeUnlockingRows, "txn %d: row locks on table %d still held", txn.ID(), oid)
	}

	txn.LockTxn()
	_, held := tableLockMode(txn, oid)
	txn.UnlockTxn()
	if !held {
		l.abort(txn)
		return false, errors.Newf(ErrAttemptedUnlockButNoLockHeld, "txn %d: no lock held on table %d", txn.ID(), oid)
	}

	l.tableLockMapMu.Lock()
	q, ok := l.tableLockMap[oid]
	if !ok {
		l.tableLockMapMu.Unlock()
		l.abort(txn)
		return false, errors.Newf(ErrAttemptedUnlockButNoLockHeld, "txn %d: no lock queue on table %d", txn.ID(), oid)
	}
	q.mu.Lock()
	l.tableLockMapMu.Unlock()

	found := false
	kept := make([]*LockRequest, 0, len(q.requests))
	for _, r := range q.requests {
		if r.txnID != txn.ID() || !r.granted {
			kept = append(kept, r)
			continue
		}
		if err := l.applyUnlockStateTransition(txn, r.mode); err != nil {
			q.mu.Unlock()
			return false, err
		}
		l.removeTableLockOnTxn(txn, r.mode, oid)
		found = true
	}
	q.requests = kept

	if !found {
		q.mu.Unlock()
		l.abort(txn)
		return false, errors.Newf(ErrAttemptedUnlockButNoLockHeld, "txn %d: no granted request on table %d", txn.ID(), oid)
	}
	q.cond.Broadcast()
	q.mu.Unlock()
	return true, nil
}

// LockRow acquires a row lock. Rows take only S or X, and the matching
// table intention lock must already be held.
func (l *LockManager) LockRow(txn *transaction.Transaction, mode LockMode, oid transaction.TableOID, rid bufferpool.RID) (bool, error) {
	if s := txn.State(); s != transaction.Growing && s != transaction.Shrinking {
		panic("lock row on finished transaction")
	}
	l.registerTxn(txn)

	txn.LockTxn()
	cur, held := rowLockMode(txn, oid, rid)
	txn.UnlockTxn()
	if held {
		if cur == mode {
			return true, nil
		}
		if !canUpgrade(cur, mode) {
			l.abort(txn)
			return false, errors.Newf(ErrIncompatibleUpgrade, "txn %d: cannot upgrade row lock %v to %v", txn.ID(), cur, mode)
		}
	}

	if mode != Shared && mode != Exclusive {
		l.abort(txn)
		return false, errors.Newf(ErrAttemptedIntentionLockOnRow, "txn %d: %v lock on row", txn.ID(), mode)
	}

	if err := l.checkLockTxnState(txn, mode); err != nil {
		return false, err
	}

	txn.LockTxn()
	var tablePresent bool
	if mode == Exclusive {
		tablePresent = txn.IsTableExclusiveLocked(oid) || txn.IsTableIntentionExclusiveLocked(oid) ||
			txn.IsTableSharedIntentionExclusiveLocked(oid)
	} else {
		tablePresent = txn.IsTableSharedLocked(oid) || txn.IsTableIntentionSharedLocked(oid) ||
			txn.IsTableExclusiveLocked(oid) || txn.IsTableIntentionExclusiveLocked(oid) ||
			txn.IsTableSharedIntentionExclusiveLocked(oid)
	}
	txn.UnlockTxn()
	if !tablePresent {
		l.abort(txn)
		return false, errors.Newf(ErrTableLockNotPresent, "txn %d: %v row lock without table lock on table %d", txn.ID(), mode, oid)
	}

	l.rowLockMapMu.Lock()
	q, ok := l.rowLockMap[rid]
	if !ok {
		q = newLockRequestQueue()
		l.rowLockMap[rid] = q
	}
	q.mu.Lock()
	l.rowLockMapMu.Unlock()

	req := &LockRequest{txnID: txn.ID(), mode: mode, oid: oid, rid: rid, onRow: true}
	if err := l.enqueue(txn, q, req, held); err != nil {
		q.mu.Unlock()
		return false, err
	}

	granted := l.waitForGrant(txn, q, req)
	if granted {
		l.addRowLockOnTxn(txn, mode, oid, rid)
		l.stats.Count(stats.MetricLockGrants, 1, 1.0)
		l.logger.Debugf("txn %d granted %v on row %v", txn.ID(), mode, rid)
	}
	q.mu.Unlock()
	return granted, nil
}

// UnlockRow releases the transaction's granted row lock and applies the
// isolation-level state transition.
func (l *LockManager) UnlockRow(txn *transaction.Transaction, oid transaction.TableOID, rid bufferpool.RID) (bool, error) {
	txn.LockTxn()
	_, held := rowLockMode(txn, oid, rid)
	txn.UnlockTxn()
	if !held {
		l.abort(txn)
		return false, errors.Newf(ErrAttemptedUnlockButNoLockHeld, "txn %d: no lock held on row %v", txn.ID(), rid)
	}

	l.rowLockMapMu.Lock()
	q, ok := l.rowLockMap[rid]
	if !ok {
		l.rowLockMapMu.Unlock()
		l.abort(txn)
		return false, errors.Newf(ErrAttemptedUnlockButNoLockHeld, "txn %d: no lock queue on row %v", txn.ID(), rid)
	}
	q.mu.Lock()
	l.rowLockMapMu.Unlock()

	found := false
	kept := make([]*LockRequest, 0, len(q.requests))
	for _, r := range q.requests {
		if r.txnID != txn.ID() || !r.granted {
			kept = append(kept, r)
			continue
		}
		if err := l.applyUnlockStateTransition(txn, r.mode); err != nil {
			q.mu.Unlock()
			return false, err
		}
		l.removeRowLockOnTxn(txn, r.mode, oid, rid)
		found = true
	}
	q.requests = kept

	if !found {
		q.mu.Unlock()
		l.abort(txn)
		return false, errors.Newf(ErrAttemptedUnlockButNoLockHeld, "txn %d: no granted request on row %v", txn.ID(), rid)
	}
	q.cond.Broadcast()
	q.mu.Unlock()
	return true, nil
}

// ReleaseAllLocks drops every lock the transaction holds, rows first. Used
// when a transaction commits or aborts. State transitions do not apply.
func (l *LockManager) ReleaseAllLocks(txn *transaction.Transaction) {
	l.rowLockMapMu.Lock()
	rowQueues := make([]*LockRequestQueue, 0, len(l.rowLockMap))
	for _, q := range l.rowLockMap {
		rowQueues = append(rowQueues, q)
	}
	l.rowLockMapMu.Unlock()
	for _, q := range rowQueues {
		q.mu.Lock()
		if removeGrantedRequests(q, txn.ID()) {
			q.cond.Broadcast()
		}
		q.mu.Unlock()
	}

	l.tableLockMapMu.Lock()
	tableQueues := make([]*LockRequestQueue, 0, len(l.tableLockMap))
	for _, q := range l.tableLockMap {
		tableQueues = append(tableQueues, q)
	}
	l.tableLockMapMu.Unlock()
	for _, q := range tableQueues {
		q.mu.Lock()
		if removeGrantedRequests(q, txn.ID()) {
			q.cond.Broadcast()
		}
		q.mu.Unlock()
	}

	clearHeldSets(txn)
}

// private methods

func (l *LockManager) registerTxn(txn *transaction.Transaction) {
	l.txnMapMu.Lock()
	l.txnMap[txn.ID()] = txn
	l.txnMapMu.Unlock()
}

// abort marks the transaction ABORTED and counts it.
func (l *LockManager) abort(txn *transaction.Transaction) {
	txn.SetState(transaction.Aborted)
	l.stats.Count(stats.MetricLockAborts, 1, 1.0)
}

// enqueue places the request in the queue: an upgrade goes ahead of every
// waiter after removing the old granted request; anything else appends.
// Called with q.mu held.
func (l *LockManager) enqueue(txn *transaction.Transaction, q *LockRequestQueue, req *LockRequest, upgrade bool) error {
	if !upgrade {
		q.requests = append(q.requests, req)
		return nil
	}

	if q.upgrading != transaction.INVALID_TXN_ID {
		l.abort(txn)
		return errors.Newf(ErrUpgradeConflict, "txn %d: txn %d is already upgrading", txn.ID(), q.upgrading)
	}

	// drop the old granted request before re-queueing; the queue is
	// per-object so any granted entry of this txn is the lock being
	// upgraded
	kept := q.requests[:0]
	for _, r := range q.requests {
		if r.txnID == req.txnID && r.granted {
			l.removeHeldLock(txn, r)
			continue
		}
		kept = append(kept, r)
	}
	q.requests = kept
	q.cond.Broadcast()

	q.upgrading = req.txnID
	pos := len(q.requests)
	for i, r := range q.requests {
		if !r.granted {
			pos = i
			break
		}
	}
	q.requests = append(q.requests, nil)
	copy(q.requests[pos+1:], q.requests[pos:])
	q.requests[pos] = req
	return nil
}

// waitForGrant blocks on the queue's condition variable until the request
// is grantable or the transaction has been aborted. Called with q.mu held;
// returns with q.mu held. On abort the request is removed and the queue
// broadcast.
func (l *LockManager) waitForGrant(txn *transaction.Transaction, q *LockRequestQueue, req *LockRequest) bool {
	for !(txn.State() == transaction.Aborted || grantable(req, q)) {
		q.cond.Wait()
	}
	if q.upgrading == req.txnID {
		q.upgrading = transaction.INVALID_TXN_ID
	}
	if txn.State() == transaction.Aborted {
		for i, r := range q.requests {
			if r == req {
				q.requests = append(q.requests[:i], q.requests[i+1:]...)
				break
			}
		}
		q.cond.Broadcast()
		return false
	}
	req.granted = true
	return true
}

// grantable reports whether every request ahead of req in the queue is
// compatible with it, a same-transaction same-mode entry excepted, and is
// itself grantable; grants happen in strict queue order. Called with q.mu
// held.
func grantable(req *LockRequest, q *LockRequestQueue) bool {
	if req.granted {
		return true
	}
	for _, r := range q.requests {
		if r == req {
			break
		}
		if !compatible(req.mode, r.mode) {
			if r.txnID == req.txnID && r.mode == req.mode {
				continue
			}
			return false
		}
		if !grantable(r, q) {
			return false
		}
	}
	return true
}

// checkLockTxnState validates an acquisition against the isolation level.
func (l *LockManager) checkLockTxnState(txn *transaction.Transaction, mode LockMode) error {
	state := txn.State()
	switch txn.IsolationLevel() {
	case transaction.RepeatableRead:
		if state == transaction.Shrinking {
			l.abort(txn)
			return errors.Newf(ErrLockOnShrinking, "txn %d: lock while shrinking", txn.ID())
		}
	case transaction.ReadCommitted:
		if state == transaction.Shrinking && mode != Shared && mode != IntentionShared {
			l.abort(txn)
			return errors.Newf(ErrLockOnShrinking, "txn %d: %v lock while shrinking", txn.ID(), mode)
		}
	case transaction.ReadUncommitted:
		if mode != IntentionExclusive && mode != Exclusive {
			l.abort(txn)
			return errors.Newf(ErrLockSharedOnReadUncommitted, "txn %d: %v lock under read uncommitted", txn.ID(), mode)
		}
		if state == transaction.Shrinking {
			l.abort(txn)
			return errors.Newf(ErrLockOnShrinking, "txn %d: lock while shrinking", txn.ID())
		}
	}
	return nil
}

// applyUnlockStateTransition moves GROWING transactions into SHRINKING per
// the isolation level when a lock of the given mode is released.
func (l *LockManager) applyUnlockStateTransition(txn *transaction.Transaction, mode LockMode) error {
	txn.LockTxn()
	defer txn.UnlockTxn()
	state := txn.StateLocked()
	switch txn.IsolationLevel() {
	case transaction.RepeatableRead:
		if (mode == Shared || mode == Exclusive) && state == transaction.Growing {
			txn.SetStateLocked(transaction.Shrinking)
		}
	case transaction.ReadCommitted:
		if mode == Exclusive && state == transaction.Growing {
			txn.SetStateLocked(transaction.Shrinking)
		}
	case transaction.ReadUncommitted:
		if mode == Exclusive && state == transaction.Growing {
			txn.SetStateLocked(transaction.Shrinking)
		}
		if mode == Shared {
			txn.SetStateLocked(transaction.Aborted)
			l.stats.Count(stats.MetricLockAborts, 1, 1.0)
			return errors.Newf(ErrLockSharedOnReadUncommitted, "txn %d: S release under read uncommitted", txn.ID())
		}
	}
	return nil
}

// tableLockMode returns the mode the txn holds on the table. The caller
// holds the txn mutex.
func tableLockMode(txn *transaction.Transaction, oid transaction.TableOID) (LockMode, bool) {
	switch {
	case txn.IsTableExclusiveLocked(oid):
		return Exclusive, true
	case txn.IsTableIntentionSharedLocked(oid):
		return IntentionShared, true
	case txn.IsTableSharedLocked(oid):
		return Shared, true
	case txn.IsTableIntentionExclusiveLocked(oid):
		return IntentionExclusive, true
	case txn.IsTableSharedIntentionExclusiveLocked(oid):
		return SharedIntentionExclusive, true
	}
	return IntentionShared, false
}

// rowLockMode returns the mode the txn holds on the row. The caller holds
// the txn mutex.
func rowLockMode(txn *transaction.Transaction, oid transaction.TableOID, rid bufferpool.RID) (LockMode, bool) {
	switch {
	case txn.IsRowExclusiveLocked(oid, rid):
		return Exclusive, true
	case txn.IsRowSharedLocked(oid, rid):
		return Shared, true
	}
	return Shared, false
}

func (l *LockManager) addTableLockOnTxn(txn *transaction.Transaction, mode LockMode, oid transaction.TableOID) {
	txn.LockTxn()
	defer txn.UnlockTxn()
	switch mode {
	case Shared:
		txn.SharedTableLockSet()[oid] = struct{}{}
	case Exclusive:
		txn.ExclusiveTableLockSet()[oid] = struct{}{}
	case IntentionShared:
		txn.IntentionSharedTableLockSet()[oid] = struct{}{}
	case IntentionExclusive:
		txn.IntentionExclusiveTableLockSet()[oid] = struct{}{}
	case SharedIntentionExclusive:
		txn.SharedIntentionExclusiveTableLockSet()[oid] = struct{}{}
	}
}

func (l *LockManager) removeTableLockOnTxn(txn *transaction.Transaction, mode LockMode, oid transaction.TableOID) {
	txn.LockTxn()
	defer txn.UnlockTxn()
	switch mode {
	case Shared:
		delete(txn.SharedTableLockSet(), oid)
	case Exclusive:
		delete(txn.ExclusiveTableLockSet(), oid)
	case IntentionShared:
		delete(txn.IntentionSharedTableLockSet(), oid)
	case IntentionExclusive:
		delete(txn.IntentionExclusiveTableLockSet(), oid)
	case SharedIntentionExclusive:
		delete(txn.SharedIntentionExclusiveTableLockSet(), oid)
	}
}

func (l *LockManager) addRowLockOnTxn(txn *transaction.Transaction, mode LockMode, oid transaction.TableOID, rid bufferpool.RID) {
	txn.LockTxn()
	defer txn.UnlockTxn()
	switch mode {
	case Shared:
		txn.AddSharedRowLock(oid, rid)
	case Exclusive:
		txn.AddExclusiveRowLock(oid, rid)
	default:
		panic("intention lock on row")
	}
}

func (l *LockManager) removeRowLockOnTxn(txn *transaction.Transaction, mode LockMode, oid transaction.TableOID, rid bufferpool.RID) {
	txn.LockTxn()
	defer txn.UnlockTxn()
	switch mode {
	case Shared:
		txn.RemoveSharedRowLock(oid, rid)
	case Exclusive:
		txn.RemoveExclusiveRowLock(oid, rid)
	default:
		panic("intention lock on row")
	}
}

// removeHeldLock drops the held-set entry for a granted request. Called
// with q.mu held.
func (l *LockManager) removeHeldLock(txn *transaction.Transaction, r *LockRequest) {
	if r.onRow {
		l.removeRowLockOnTxn(txn, r.mode, r.oid, r.rid)
	} else {
		l.removeTableLockOnTxn(txn, r.mode, r.oid)
	}
}

// removeGrantedRequests drops every granted request of the txn from the
// queue; returns true if any were removed. Called with q.mu held.
func removeGrantedRequests(q *LockRequestQueue, txnID transaction.TxnID) bool {
	removed := false
	kept := q.requests[:0]
	for _, r := range q.requests {
		if r.txnID == txnID && r.granted {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	q.requests = kept
	return removed
}

func clearHeldSets(txn *transaction.Transaction) {
	txn.LockTxn()
	defer txn.UnlockTxn()
	for oid := range txn.SharedTableLockSet() {
		delete(txn.SharedTableLockSet(), oid)
	}
	for oid := range txn.ExclusiveTableLockSet() {
		delete(txn.ExclusiveTableLockSet(), oid)
	}
	for oid := range txn.IntentionSharedTableLockSet() {
		delete(txn.IntentionSharedTableLockSet(), oid)
	}
	for oid := range txn.IntentionExclusiveTableLockSet() {
		delete(txn.IntentionExclusiveTableLockSet(), oid)
	}
	for oid := range txn.SharedIntentionExclusiveTableLockSet() {
		delete(txn.SharedIntentionExclusiveTableLockSet(), oid)
	}
	for oid := range txn.SharedRowLockSet() {
		delete(txn.SharedRowLockSet(), oid)
	}
	for oid := range txn.ExclusiveRowLockSet() {
		delete(txn.ExclusiveRowLockSet(), oid)
	}
}
