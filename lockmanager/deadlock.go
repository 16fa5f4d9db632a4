package lockmanager

import (
	"sort"
	"time"

	"github.com/featurebasedb/stratum/stats"
	"github.com/featurebasedb/stratum/transaction"
)

// DEFAULT_DEADLOCK_DETECTION_INTERVAL is how often the background detector
// runs unless configured otherwise.
const DEFAULT_DEADLOCK_DETECTION_INTERVAL = 50 * time.Millisecond

// RunDeadlockDetection starts the background detection loop. Stop it with
// Close.
func (l *LockManager) RunDeadlockDetection(interval time.Duration) {
	if l.stopCh != nil {
		return
	}
	l.stopCh = make(chan struct{})
	go func(stop chan struct{}) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				l.DetectDeadlocks()
			}
		}
	}(l.stopCh)
}

// Close stops the background detection loop.
func (l *LockManager) Close() {
	if l.stopCh != nil {
		close(l.stopCh)
		l.stopCh = nil
	}
}

// DetectDeadlocks runs one detection pass: it rebuilds the waits-for graph
// from every lock queue, then repeatedly finds a cycle, aborts the
// youngest (largest-id) transaction on it, strips that transaction's
// granted requests from every queue, and broadcasts, until the graph is
// acyclic. Transactions found already ABORTED while still holding grants
// are swept the same way, so an abort taken on the acquisition path frees
// its waiters too.
func (l *LockManager) DetectDeadlocks() {
	l.waitsForMu.Lock()
	defer l.waitsForMu.Unlock()
	l.tableLockMapMu.Lock()
	defer l.tableLockMapMu.Unlock()
	l.rowLockMapMu.Lock()
	defer l.rowLockMapMu.Unlock()

	queues := make([]*LockRequestQueue, 0, len(l.tableLockMap)+len(l.rowLockMap))
	for _, q := range l.tableLockMap {
		queues = append(queues, q)
	}
	for _, q := range l.rowLockMap {
		queues = append(queues, q)
	}

	// sweep grants still held by transactions aborted on the acquisition
	// path
	for _, q := range queues {
		q.mu.Lock()
		for _, r := range q.requests {
			if !r.granted {
				continue
			}
			if txn := l.lookupTxn(r.txnID); txn != nil && txn.State() == transaction.Aborted {
				removeGrantedRequests(q, r.txnID)
				clearHeldSets(txn)
				q.cond.Broadcast()
				break
			}
		}
		q.mu.Unlock()
	}

	l.waitsFor = make(map[transaction.TxnID][]transaction.TxnID)
	for _, q := range queues {
		l.addEdgesFromQueue(q)
	}

	for {
		victimID, ok := l.hasCycle()
		if !ok {
			break
		}
		victim := l.lookupTxn(victimID)
		l.logger.Infof("deadlock detected: aborting txn %d", victimID)
		l.stats.Count(stats.MetricDeadlockVictim, 1, 1.0)
		if victim != nil {
			victim.SetState(transaction.Aborted)
		}

		// erase the victim from the graph
		delete(l.waitsFor, victimID)
		for from, tos := range l.waitsFor {
			kept := tos[:0]
			for _, to := range tos {
				if to != victimID {
					kept = append(kept, to)
				}
			}
			l.waitsFor[from] = kept
		}

		// strip its granted requests from every queue and wake waiters;
		// its own waiting requests are removed by the waiters themselves
		for _, q := range queues {
			q.mu.Lock()
			removeGrantedRequests(q, victimID)
			q.cond.Broadcast()
			q.mu.Unlock()
		}
		if victim != nil {
			clearHeldSets(victim)
		}
	}
}

// GetEdgeList returns the waits-for edges from the last detection pass,
// ascending by source then target.
func (l *LockManager) GetEdgeList() [][2]transaction.TxnID {
	l.waitsForMu.Lock()
	defer l.waitsForMu.Unlock()
	froms := make([]transaction.TxnID, 0, len(l.waitsFor))
	for from := range l.waitsFor {
		froms = append(froms, from)
	}
	sort.Slice(froms, func(i, j int) bool { return froms[i] < froms[j] })
	edges := make([][2]transaction.TxnID, 0)
	for _, from := range froms {
		for _, to := range l.waitsFor[from] {
			edges = append(edges, [2]transaction.TxnID{from, to})
		}
	}
	return edges
}

func (l *LockManager) lookupTxn(id transaction.TxnID) *transaction.Transaction {
	l.txnMapMu.Lock()
	defer l.txnMapMu.Unlock()
	return l.txnMap[id]
}

// addEdgesFromQueue adds an edge u → g for every ungranted request u and
// granted request g in the queue whose modes are incompatible.
func (l *LockManager) addEdgesFromQueue(q *LockRequestQueue) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, ri := range q.requests {
		for _, rj := range q.requests[i+1:] {
			if ri.txnID == rj.txnID {
				continue
			}
			if compatible(ri.mode, rj.mode) {
				continue
			}
			if !ri.granted && rj.granted {
				l.addEdge(ri.txnID, rj.txnID)
			}
			if !rj.granted && ri.granted {
				l.addEdge(rj.txnID, ri.txnID)
			}
		}
	}
}

// addEdge inserts t1 → t2 keeping each adjacency list ascending and
// deduplicated; deterministic traversal order is part of the contract.
func (l *LockManager) addEdge(t1, t2 transaction.TxnID) {
	tos := l.waitsFor[t1]
	i := sort.Search(len(tos), func(i int) bool { return tos[i] >= t2 })
	if i < len(tos) && tos[i] == t2 {
		return
	}
	tos = append(tos, 0)
	copy(tos[i+1:], tos[i:])
	tos[i] = t2
	l.waitsFor[t1] = tos
}

// hasCycle searches the waits-for graph depth first, starting from
// transaction ids in ascending order and visiting neighbours in ascending
// order. On finding a cycle it returns the largest transaction id on it.
func (l *LockManager) hasCycle() (transaction.TxnID, bool) {
	starts := make([]transaction.TxnID, 0, len(l.waitsFor))
	for id := range l.waitsFor {
		starts = append(starts, id)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	visited := make(map[transaction.TxnID]map[transaction.TxnID]bool)
	for _, start := range starts {
		path := []transaction.TxnID{start}
		onPath := map[transaction.TxnID]int{start: 0}
		if victim, ok := l.dfs(start, visited, &path, onPath); ok {
			return victim, true
		}
	}
	return transaction.INVALID_TXN_ID, false
}

func (l *LockManager) dfs(cur transaction.TxnID, visited map[transaction.TxnID]map[transaction.TxnID]bool, path *[]transaction.TxnID, onPath map[transaction.TxnID]int) (transaction.TxnID, bool) {
	for _, next := range l.waitsFor[cur] {
		if visited[cur][next] {
			continue
		}
		if visited[cur] == nil {
			visited[cur] = make(map[transaction.TxnID]bool)
		}
		visited[cur][next] = true

		if pos, ok := onPath[next]; ok {
			// back edge: the cycle is the path suffix from next
			victim := next
			for _, id := range (*path)[pos:] {
				if id > victim {
					victim = id
				}
			}
			return victim, true
		}

		onPath[next] = len(*path)
		*path = append(*path, next)
		if victim, ok := l.dfs(next, visited, path, onPath); ok {
			return victim, true
		}
		*path = (*path)[:len(*path)-1]
		delete(onPath, next)
	}
	return transaction.INVALID_TXN_ID, false
}
