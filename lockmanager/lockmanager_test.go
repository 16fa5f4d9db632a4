package lockmanager_test

import (
	"sync"
	"testing"
	"time"

	"github.com/featurebasedb/stratum/bufferpool"
	"github.com/featurebasedb/stratum/errors"
	"github.com/featurebasedb/stratum/lockmanager"
	"github.com/featurebasedb/stratum/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tableA = transaction.TableOID(1)
const tableB = transaction.TableOID(2)

var row1 = bufferpool.RID{PageID: 1, SlotNum: 1}
var row2 = bufferpool.RID{PageID: 1, SlotNum: 2}

func newTxn(id transaction.TxnID, level transaction.IsolationLevel) *transaction.Transaction {
	return transaction.NewTransaction(id, level)
}

func TestLockManager_BasicTableLockUnlock(t *testing.T) {
	lm := lockmanager.NewLockManager()

	txn := newTxn(1, transaction.RepeatableRead)
	for _, mode := range []lockmanager.LockMode{
		lockmanager.IntentionShared,
		lockmanager.Shared,
	} {
		granted, err := lm.LockTable(txn, mode, tableA)
		require.NoError(t, err)
		assert.True(t, granted)
	}

	// re-requesting the held mode is a no-op success
	granted, err := lm.LockTable(txn, lockmanager.Shared, tableA)
	require.NoError(t, err)
	assert.True(t, granted)

	ok, err := lm.UnlockTable(txn, tableA)
	require.NoError(t, err)
	assert.True(t, ok)
	// releasing S under repeatable read starts the shrinking phase
	assert.Equal(t, transaction.Shrinking, txn.State())
}

func TestLockManager_SharedLocksAreConcurrent(t *testing.T) {
	lm := lockmanager.NewLockManager()

	t1 := newTxn(1, transaction.RepeatableRead)
	t2 := newTxn(2, transaction.RepeatableRead)

	for _, txn := range []*transaction.Transaction{t1, t2} {
		granted, err := lm.LockTable(txn, lockmanager.Shared, tableA)
		require.NoError(t, err)
		assert.True(t, granted)
	}
}

func TestLockManager_ExclusiveBlocksUntilRelease(t *testing.T) {
	lm := lockmanager.NewLockManager()

	t1 := newTxn(1, transaction.RepeatableRead)
	t2 := newTxn(2, transaction.RepeatableRead)

	granted, err := lm.LockTable(t1, lockmanager.Shared, tableA)
	require.NoError(t, err)
	require.True(t, granted)

	acquired := make(chan bool)
	go func() {
		granted, err := lm.LockTable(t2, lockmanager.Exclusive, tableA)
		assert.NoError(t, err)
		acquired <- granted
	}()

	select {
	case <-acquired:
		t.Fatal("X granted while S held")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = lm.UnlockTable(t1, tableA)
	require.NoError(t, err)

	select {
	case granted := <-acquired:
		assert.True(t, granted)
	case <-time.After(time.Second):
		t.Fatal("X never granted after S release")
	}
}

func TestLockManager_UpgradeLattice(t *testing.T) {
	lm := lockmanager.NewLockManager()

	// IS -> X is a legal upgrade
	txn := newTxn(1, transaction.RepeatableRead)
	granted, err := lm.LockTable(txn, lockmanager.IntentionShared, tableA)
	require.NoError(t, err)
	require.True(t, granted)
	granted, err = lm.LockTable(txn, lockmanager.Exclusive, tableA)
	require.NoError(t, err)
	require.True(t, granted)

	// X -> anything else is not
	txn2 := newTxn(2, transaction.RepeatableRead)
	granted, err = lm.LockTable(txn2, lockmanager.Exclusive, tableB)
	require.NoError(t, err)
	require.True(t, granted)
	_, err = lm.LockTable(txn2, lockmanager.Shared, tableB)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lockmanager.ErrIncompatibleUpgrade))
	assert.Equal(t, transaction.Aborted, txn2.State())
}

func TestLockManager_RowLockRequiresTableIntention(t *testing.T) {
	lm := lockmanager.NewLockManager()

	txn := newTxn(1, transaction.RepeatableRead)
	_, err := lm.LockRow(txn, lockmanager.Exclusive, tableA, row1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lockmanager.ErrTableLockNotPresent))
	assert.Equal(t, transaction.Aborted, txn.State())

	// an IX table lock makes the row X legal
	txn2 := newTxn(2, transaction.RepeatableRead)
	granted, err := lm.LockTable(txn2, lockmanager.IntentionExclusive, tableA)
	require.NoError(t, err)
	require.True(t, granted)
	granted, err = lm.LockRow(txn2, lockmanager.Exclusive, tableA, row1)
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestLockManager_IntentionLockOnRowAborts(t *testing.T) {
	lm := lockmanager.NewLockManager()

	txn := newTxn(1, transaction.RepeatableRead)
	granted, err := lm.LockTable(txn, lockmanager.IntentionShared, tableA)
	require.NoError(t, err)
	require.True(t, granted)

	_, err = lm.LockRow(txn, lockmanager.IntentionShared, tableA, row1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lockmanager.ErrAttemptedIntentionLockOnRow))
	assert.Equal(t, transaction.Aborted, txn.State())
}

func TestLockManager_UnlockTableBeforeRowsAborts(t *testing.T) {
	lm := lockmanager.NewLockManager()

	txn := newTxn(1, transaction.RepeatableRead)
	granted, err := lm.LockTable(txn, lockmanager.IntentionExclusive, tableA)
	require.NoError(t, err)
	require.True(t, granted)
	granted, err = lm.LockRow(txn, lockmanager.Exclusive, tableA, row1)
	require.NoError(t, err)
	require.True(t, granted)

	_, err = lm.UnlockTable(txn, tableA)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lockmanager.ErrTableUnlockedBeforeUnlockingRows))
	assert.Equal(t, transaction.Aborted, txn.State())
}

func TestLockManager_UnlockWithoutLockAborts(t *testing.T) {
	lm := lockmanager.NewLockManager()

	txn := newTxn(1, transaction.RepeatableRead)
	_, err := lm.UnlockTable(txn, tableA)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lockmanager.ErrAttemptedUnlockButNoLockHeld))
	assert.Equal(t, transaction.Aborted, txn.State())
}

func TestLockManager_ReadUncommittedForbidsSharedLocks(t *testing.T) {
	lm := lockmanager.NewLockManager()

	for _, mode := range []lockmanager.LockMode{
		lockmanager.Shared,
		lockmanager.IntentionShared,
		lockmanager.SharedIntentionExclusive,
	} {
		txn := newTxn(1, transaction.ReadUncommitted)
		_, err := lm.LockTable(txn, mode, tableA)
		require.Error(t, err, "mode %v", mode)
		assert.True(t, errors.Is(err, lockmanager.ErrLockSharedOnReadUncommitted))
		assert.Equal(t, transaction.Aborted, txn.State())
	}

	// X and IX are fine
	txn := newTxn(2, transaction.ReadUncommitted)
	granted, err := lm.LockTable(txn, lockmanager.IntentionExclusive, tableA)
	require.NoError(t, err)
	assert.True(t, granted)
	granted, err = lm.LockTable(txn, lockmanager.Exclusive, tableA)
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestLockManager_RepeatableReadLockOnShrinkingAborts(t *testing.T) {
	lm := lockmanager.NewLockManager()

	txn := newTxn(1, transaction.RepeatableRead)
	granted, err := lm.LockTable(txn, lockmanager.Shared, tableA)
	require.NoError(t, err)
	require.True(t, granted)
	_, err = lm.UnlockTable(txn, tableA)
	require.NoError(t, err)
	require.Equal(t, transaction.Shrinking, txn.State())

	_, err = lm.LockTable(txn, lockmanager.Shared, tableB)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lockmanager.ErrLockOnShrinking))
	assert.Equal(t, transaction.Aborted, txn.State())
}

// Under READ_COMMITTED, releasing an S row lock does not start shrinking; a
// later exclusive lock still succeeds.
func TestLockManager_ReadCommittedUnlockFlow(t *testing.T) {
	lm := lockmanager.NewLockManager()

	txn := newTxn(1, transaction.ReadCommitted)
	granted, err := lm.LockTable(txn, lockmanager.IntentionShared, tableA)
	require.NoError(t, err)
	require.True(t, granted)
	granted, err = lm.LockRow(txn, lockmanager.Shared, tableA, row1)
	require.NoError(t, err)
	require.True(t, granted)

	ok, err := lm.UnlockRow(txn, tableA, row1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, transaction.Growing, txn.State())

	// still growing, so upgrading the table to IX and taking a row X works
	granted, err = lm.LockTable(txn, lockmanager.IntentionExclusive, tableA)
	require.NoError(t, err)
	require.True(t, granted)
	granted, err = lm.LockRow(txn, lockmanager.Exclusive, tableA, row1)
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestLockManager_GrantOrderIsFIFO(t *testing.T) {
	lm := lockmanager.NewLockManager()

	t1 := newTxn(1, transaction.RepeatableRead)
	granted, err := lm.LockTable(t1, lockmanager.Exclusive, tableA)
	require.NoError(t, err)
	require.True(t, granted)

	var mu sync.Mutex
	order := make([]transaction.TxnID, 0)
	var wg sync.WaitGroup
	for id := transaction.TxnID(2); id <= 4; id++ {
		id := id
		txn := newTxn(id, transaction.RepeatableRead)
		wg.Add(1)
		go func() {
			defer wg.Done()
			granted, err := lm.LockTable(txn, lockmanager.Exclusive, tableA)
			assert.NoError(t, err)
			assert.True(t, granted)
			mu.Lock()
			order = append(order, txn.ID())
			mu.Unlock()
			_, err = lm.UnlockTable(txn, tableA)
			assert.NoError(t, err)
		}()
		// give each waiter time to enqueue so arrival order is fixed
		time.Sleep(20 * time.Millisecond)
	}

	_, err = lm.UnlockTable(t1, tableA)
	require.NoError(t, err)
	wg.Wait()

	assert.Equal(t, []transaction.TxnID{2, 3, 4}, order)
}

func TestLockManager_UpgradeGoesAheadOfWaiters(t *testing.T) {
	lm := lockmanager.NewLockManager()

	t1 := newTxn(1, transaction.RepeatableRead)
	granted, err := lm.LockTable(t1, lockmanager.Shared, tableA)
	require.NoError(t, err)
	require.True(t, granted)

	// a plain X waiter queues behind t1's S
	t2 := newTxn(2, transaction.RepeatableRead)
	t2granted := make(chan bool)
	go func() {
		granted, err := lm.LockTable(t2, lockmanager.Exclusive, tableA)
		assert.NoError(t, err)
		t2granted <- granted
	}()
	time.Sleep(50 * time.Millisecond)

	// t1's S -> X upgrade is placed ahead of t2 and grants immediately
	// once its old S is surrendered
	granted, err = lm.LockTable(t1, lockmanager.Exclusive, tableA)
	require.NoError(t, err)
	require.True(t, granted)

	select {
	case <-t2granted:
		t.Fatal("waiter overtook the upgrade")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = lm.UnlockTable(t1, tableA)
	require.NoError(t, err)
	select {
	case granted := <-t2granted:
		assert.True(t, granted)
	case <-time.After(time.Second):
		t.Fatal("waiter starved")
	}
}

func TestLockManager_DeadlockDetectionAbortsYoungest(t *testing.T) {
	lm := lockmanager.NewLockManager()

	t1 := newTxn(1, transaction.RepeatableRead)
	t2 := newTxn(2, transaction.RepeatableRead)

	for _, txn := range []*transaction.Transaction{t1, t2} {
		granted, err := lm.LockTable(txn, lockmanager.IntentionExclusive, tableA)
		require.NoError(t, err)
		require.True(t, granted)
	}
	granted, err := lm.LockRow(t1, lockmanager.Exclusive, tableA, row1)
	require.NoError(t, err)
	require.True(t, granted)
	granted, err = lm.LockRow(t2, lockmanager.Exclusive, tableA, row2)
	require.NoError(t, err)
	require.True(t, granted)

	// t1 waits for row2, t2 waits for row1: a cycle
	t1done := make(chan bool)
	t2done := make(chan bool)
	go func() {
		granted, err := lm.LockRow(t1, lockmanager.Exclusive, tableA, row2)
		assert.NoError(t, err)
		t1done <- granted
	}()
	go func() {
		granted, err := lm.LockRow(t2, lockmanager.Exclusive, tableA, row1)
		assert.NoError(t, err)
		t2done <- granted
	}()
	time.Sleep(100 * time.Millisecond)

	lm.DetectDeadlocks()

	// the youngest transaction on the cycle is the victim
	select {
	case granted := <-t2done:
		assert.False(t, granted)
	case <-time.After(time.Second):
		t.Fatal("victim still waiting")
	}
	assert.Equal(t, transaction.Aborted, t2.State())

	// the survivor's request is granted
	select {
	case granted := <-t1done:
		assert.True(t, granted)
	case <-time.After(time.Second):
		t.Fatal("survivor still waiting")
	}
	assert.NotEqual(t, transaction.Aborted, t1.State())
}

// Two holders of S both upgrading to X: the second upgrader aborts with
// UPGRADE_CONFLICT (it has the larger id), and the detector's sweep of
// aborted holders lets the survivor's X through.
func TestLockManager_UpgradeDeadlock(t *testing.T) {
	lm := lockmanager.NewLockManager()

	t1 := newTxn(1, transaction.RepeatableRead)
	t2 := newTxn(2, transaction.RepeatableRead)
	for _, txn := range []*transaction.Transaction{t1, t2} {
		granted, err := lm.LockTable(txn, lockmanager.Shared, tableA)
		require.NoError(t, err)
		require.True(t, granted)
	}

	t1done := make(chan bool)
	go func() {
		granted, err := lm.LockTable(t1, lockmanager.Exclusive, tableA)
		assert.NoError(t, err)
		t1done <- granted
	}()
	time.Sleep(50 * time.Millisecond)

	// t1 is upgrading, so t2's upgrade attempt aborts immediately
	_, err := lm.LockTable(t2, lockmanager.Exclusive, tableA)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lockmanager.ErrUpgradeConflict))
	assert.Equal(t, transaction.Aborted, t2.State())

	// the detector sweeps the aborted holder's S and t1's X grants
	lm.DetectDeadlocks()
	select {
	case granted := <-t1done:
		assert.True(t, granted)
	case <-time.After(time.Second):
		t.Fatal("survivor's upgrade never granted")
	}
}

func TestLockManager_BackgroundDetectionLoop(t *testing.T) {
	lm := lockmanager.NewLockManager()
	lm.RunDeadlockDetection(10 * time.Millisecond)
	defer lm.Close()

	t1 := newTxn(1, transaction.RepeatableRead)
	t2 := newTxn(2, transaction.RepeatableRead)
	for _, txn := range []*transaction.Transaction{t1, t2} {
		granted, err := lm.LockTable(txn, lockmanager.IntentionExclusive, tableA)
		require.NoError(t, err)
		require.True(t, granted)
	}
	granted, err := lm.LockRow(t1, lockmanager.Exclusive, tableA, row1)
	require.NoError(t, err)
	require.True(t, granted)
	granted, err = lm.LockRow(t2, lockmanager.Exclusive, tableA, row2)
	require.NoError(t, err)
	require.True(t, granted)

	results := make(chan bool, 2)
	go func() {
		granted, _ := lm.LockRow(t1, lockmanager.Exclusive, tableA, row2)
		results <- granted
	}()
	go func() {
		granted, _ := lm.LockRow(t2, lockmanager.Exclusive, tableA, row1)
		results <- granted
	}()

	// the background loop breaks the cycle without an explicit pass
	got := make([]bool, 0, 2)
	for i := 0; i < 2; i++ {
		select {
		case granted := <-results:
			got = append(got, granted)
		case <-time.After(2 * time.Second):
			t.Fatal("deadlock not broken")
		}
	}
	assert.Contains(t, got, true)
	assert.Contains(t, got, false)
	assert.Equal(t, transaction.Aborted, t2.State())
}

func TestLockManager_WaitsForGraphIsDeterministic(t *testing.T) {
	lm := lockmanager.NewLockManager()

	t1 := newTxn(1, transaction.RepeatableRead)
	granted, err := lm.LockTable(t1, lockmanager.Exclusive, tableA)
	require.NoError(t, err)
	require.True(t, granted)

	waiters := []*transaction.Transaction{
		newTxn(3, transaction.RepeatableRead),
		newTxn(2, transaction.RepeatableRead),
	}
	var wg sync.WaitGroup
	for _, txn := range waiters {
		txn := txn
		wg.Add(1)
		go func() {
			defer wg.Done()
			granted, err := lm.LockTable(txn, lockmanager.Exclusive, tableA)
			assert.NoError(t, err)
			assert.True(t, granted)
			_, err = lm.UnlockTable(txn, tableA)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(100 * time.Millisecond)

	lm.DetectDeadlocks()
	edges := lm.GetEdgeList()
	// no cycle, and edges are reported ascending by source
	assert.Equal(t, [][2]transaction.TxnID{{2, 1}, {3, 1}}, edges)

	_, err = lm.UnlockTable(t1, tableA)
	require.NoError(t, err)
	wg.Wait()
}
