package txn

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/intellect4all/entropy/common"
)

// LockMode is the lock strength; only shared/shared is compatible.
type LockMode uint8

const (
	LockShared LockMode = iota
	LockExclusive
)

func (m LockMode) String() string {
	if m == LockShared {
		return "SHARED"
	}
	return "EXCLUSIVE"
}

// Compatible implements the S/X matrix.
func Compatible(a, b LockMode) bool {
	return a == LockShared && b == LockShared
}

// LockTarget names a table or (with a valid RID) one row of it.
type LockTarget struct {
	TableOID common.OID
	RID      common.RID
}

// IsTableLock reports whether the target is a whole table.
func (t LockTarget) IsTableLock() bool { return !t.RID.IsValid() }

// lockRequest is one queue entry; grantedCh closes when granted.
type lockRequest struct {
	txnID     common.TxnID
	mode      LockMode
	granted   bool
	grantedCh chan struct{}
}

// lockQueue holds a target's requests in FIFO order: granted entries
// first, then waiters.
type lockQueue struct {
	requests  []*lockRequest
	upgrading common.TxnID // txn with a pending S->X upgrade
}

func (q *lockQueue) find(txnID common.TxnID) *lockRequest {
	for _, r := range q.requests {
		if r.txnID == txnID {
			return r
		}
	}
	return nil
}

func (q *lockQueue) remove(txnID common.TxnID) bool {
	for i, r := range q.requests {
		if r.txnID == txnID {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return true
		}
	}
	return false
}

// LockManagerOptions tune waiting and deadlock behavior.
type LockManagerOptions struct {
	DeadlockDetection bool
	LockTimeout       time.Duration
}

// DefaultLockManagerOptions enables detection with the standard timeout.
func DefaultLockManagerOptions() LockManagerOptions {
	return LockManagerOptions{
		DeadlockDetection: true,
		LockTimeout:       common.DefaultLockTimeoutMs * time.Millisecond,
	}
}

// LockManager grants S/X locks on tables and rows with FIFO queues,
// bounded waits and wait-for-graph deadlock detection. All public
// methods are thread-safe.
type LockManager struct {
	mu            sync.Mutex
	table         map[LockTarget]*lockQueue
	opts          LockManagerOptions
	deadlockCount atomic.Uint64
}

// NewLockManager builds a lock manager with the given options.
func NewLockManager(opts LockManagerOptions) *LockManager {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = common.DefaultLockTimeoutMs * time.Millisecond
	}
	return &LockManager{table: make(map[LockTarget]*lockQueue), opts: opts}
}

// DeadlockCount returns the number of deadlocks broken so far.
func (lm *LockManager) DeadlockCount() uint64 { return lm.deadlockCount.Load() }

// LockTableSize returns the number of targets with live queues.
func (lm *LockManager) LockTableSize() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.table)
}

// LockTable acquires a table-level lock.
func (lm *LockManager) LockTable(t *Transaction, tableOID common.OID, mode LockMode) common.Status {
	st := lm.lock(t, LockTarget{TableOID: tableOID, RID: common.InvalidRID()}, mode)
	if st.OK() {
		t.AddTableLock(tableOID)
	}
	return st
}

// UnlockTable releases a table-level lock.
func (lm *LockManager) UnlockTable(t *Transaction, tableOID common.OID) common.Status {
	st := lm.unlock(t, LockTarget{TableOID: tableOID, RID: common.InvalidRID()})
	if st.OK() {
		t.RemoveTableLock(tableOID)
	}
	return st
}

// LockRow acquires a row-level lock.
func (lm *LockManager) LockRow(t *Transaction, tableOID common.OID, rid common.RID, mode LockMode) common.Status {
	st := lm.lock(t, LockTarget{TableOID: tableOID, RID: rid}, mode)
	if st.OK() {
		t.AddRowLock(tableOID, rid)
	}
	return st
}

// UnlockRow releases a row-level lock.
func (lm *LockManager) UnlockRow(t *Transaction, tableOID common.OID, rid common.RID) common.Status {
	st := lm.unlock(t, LockTarget{TableOID: tableOID, RID: rid})
	if st.OK() {
		t.RemoveRowLock(tableOID, rid)
	}
	return st
}

// lock enqueues a request and blocks until granted, timed out, or
// chosen as a deadlock victim.
func (lm *LockManager) lock(t *Transaction, target LockTarget, mode LockMode) common.Status {
	switch t.State() {
	case StateAborted:
		return common.Aborted("transaction %d is aborted", t.ID())
	case StateCommitted:
		return common.InvalidArgument("transaction %d already committed", t.ID())
	case StateShrinking:
		return common.InvalidArgument("transaction %d cannot lock while shrinking", t.ID())
	}

	lm.mu.Lock()
	queue, ok := lm.table[target]
	if !ok {
		queue = &lockQueue{}
		lm.table[target] = queue
	}

	if existing := queue.find(t.ID()); existing != nil {
		if existing.granted && (existing.mode == mode || existing.mode == LockExclusive) {
			lm.mu.Unlock()
			return common.OkStatus()
		}
		if existing.granted && existing.mode == LockShared && mode == LockExclusive {
			return lm.upgradeLocked(t, target, queue, existing)
		}
		lm.mu.Unlock()
		return common.Busy("transaction %d already waiting on this target", t.ID())
	}

	req := &lockRequest{txnID: t.ID(), mode: mode, grantedCh: make(chan struct{})}
	queue.requests = append(queue.requests, req)
	if lm.canGrantLocked(queue, req) {
		req.granted = true
		close(req.grantedCh)
		lm.mu.Unlock()
		return common.OkStatus()
	}

	if lm.opts.DeadlockDetection && lm.wouldDeadlockLocked(t.ID()) {
		queue.remove(t.ID())
		lm.deadlockCount.Add(1)
		lm.grantWaitersLocked(queue)
		lm.mu.Unlock()
		t.SetState(StateAborted)
		return common.Aborted("deadlock detected; transaction %d chosen as victim", t.ID())
	}
	lm.mu.Unlock()

	select {
	case <-req.grantedCh:
		return common.OkStatus()
	case <-time.After(lm.opts.LockTimeout):
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	// The grant may have raced the timeout.
	select {
	case <-req.grantedCh:
		return common.OkStatus()
	default:
	}
	queue.remove(t.ID())
	lm.grantWaitersLocked(queue)
	return common.Timeout("lock wait on table %d exceeded %v", target.TableOID, lm.opts.LockTimeout)
}

// upgradeLocked atomically raises an S grant to X. Called with lm.mu
// held; releases it before blocking.
func (lm *LockManager) upgradeLocked(t *Transaction, target LockTarget, queue *lockQueue, req *lockRequest) common.Status {
	if queue.upgrading != common.InvalidTxnID {
		lm.mu.Unlock()
		return common.Busy("another upgrade is pending on this target")
	}
	granted := 0
	for _, r := range queue.requests {
		if r.granted {
			granted++
		}
	}
	if granted == 1 {
		req.mode = LockExclusive
		lm.mu.Unlock()
		return common.OkStatus()
	}
	// Other shared holders exist: wait for them to drain. No other
	// waiter may be granted while the upgrade is pending.
	queue.upgrading = t.ID()
	upgradeCh := make(chan struct{})
	req.grantedCh = upgradeCh
	req.granted = false
	req.mode = LockExclusive
	if lm.opts.DeadlockDetection && lm.wouldDeadlockLocked(t.ID()) {
		queue.upgrading = common.InvalidTxnID
		queue.remove(t.ID())
		lm.deadlockCount.Add(1)
		lm.grantWaitersLocked(queue)
		lm.mu.Unlock()
		t.SetState(StateAborted)
		return common.Aborted("deadlock detected during upgrade; transaction %d aborted", t.ID())
	}
	lm.mu.Unlock()

	select {
	case <-upgradeCh:
		return common.OkStatus()
	case <-time.After(lm.opts.LockTimeout):
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	select {
	case <-upgradeCh:
		return common.OkStatus()
	default:
	}
	queue.upgrading = common.InvalidTxnID
	queue.remove(t.ID())
	lm.grantWaitersLocked(queue)
	return common.Timeout("lock upgrade on table %d exceeded %v", target.TableOID, lm.opts.LockTimeout)
}

// canGrantLocked applies FIFO order: a request is grantable when it is
// compatible with every granted request and no older request waits.
func (lm *LockManager) canGrantLocked(queue *lockQueue, req *lockRequest) bool {
	if queue.upgrading != common.InvalidTxnID && queue.upgrading != req.txnID {
		return false
	}
	for _, r := range queue.requests {
		if r == req {
			return true
		}
		if r.granted {
			if !Compatible(r.mode, req.mode) {
				return false
			}
			continue
		}
		// An older waiter blocks us (FIFO).
		return false
	}
	return true
}

// grantWaitersLocked re-scans a queue after a release and grants every
// newly compatible request, honoring a pending upgrade first.
func (lm *LockManager) grantWaitersLocked(queue *lockQueue) {
	if queue.upgrading != common.InvalidTxnID {
		req := queue.find(queue.upgrading)
		if req == nil {
			queue.upgrading = common.InvalidTxnID
		} else {
			others := 0
			for _, r := range queue.requests {
				if r.granted && r.txnID != queue.upgrading {
					others++
				}
			}
			if others == 0 {
				// Every other holder drained; complete the upgrade.
				req.mode = LockExclusive
				req.granted = true
				queue.upgrading = common.InvalidTxnID
				close(req.grantedCh)
			}
			return
		}
	}
	for _, r := range queue.requests {
		if r.granted {
			continue
		}
		if !lm.compatibleWithGrantedLocked(queue, r) {
			break
		}
		r.granted = true
		close(r.grantedCh)
	}
}

func (lm *LockManager) compatibleWithGrantedLocked(queue *lockQueue, req *lockRequest) bool {
	for _, r := range queue.requests {
		if r != req && r.granted && !Compatible(r.mode, req.mode) {
			return false
		}
	}
	return true
}

// unlock releases a request and wakes compatible waiters. The first
// release moves the transaction into its shrinking phase.
func (lm *LockManager) unlock(t *Transaction, target LockTarget) common.Status {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	queue, ok := lm.table[target]
	if !ok || queue.find(t.ID()) == nil {
		return common.NotFound("transaction %d holds no lock on this target", t.ID())
	}
	queue.remove(t.ID())
	if t.State() == StateGrowing {
		t.SetState(StateShrinking)
	}
	lm.grantWaitersLocked(queue)
	if len(queue.requests) == 0 {
		delete(lm.table, target)
	}
	return common.OkStatus()
}

// ReleaseAllLocks drops every lock a finishing transaction still holds.
func (lm *LockManager) ReleaseAllLocks(t *Transaction) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for target, queue := range lm.table {
		if queue.remove(t.ID()) {
			if queue.upgrading == t.ID() {
				queue.upgrading = common.InvalidTxnID
			}
			lm.grantWaitersLocked(queue)
			if len(queue.requests) == 0 {
				delete(lm.table, target)
			}
		}
	}
}

// wouldDeadlockLocked walks the wait-for graph (waiter -> each granted
// holder on the same queue) looking for a cycle through txnID.
func (lm *LockManager) wouldDeadlockLocked(txnID common.TxnID) bool {
	edges := make(map[common.TxnID][]common.TxnID)
	for _, queue := range lm.table {
		for _, waiter := range queue.requests {
			if waiter.granted {
				continue
			}
			for _, holder := range queue.requests {
				if holder.granted && holder.txnID != waiter.txnID {
					edges[waiter.txnID] = append(edges[waiter.txnID], holder.txnID)
				}
			}
		}
	}
	visited := make(map[common.TxnID]bool)
	var dfs func(from common.TxnID) bool
	dfs = func(from common.TxnID) bool {
		if from == txnID {
			return true
		}
		if visited[from] {
			return false
		}
		visited[from] = true
		for _, next := range edges[from] {
			if dfs(next) {
				return true
			}
		}
		return false
	}
	for _, next := range edges[txnID] {
		if dfs(next) {
			return true
		}
	}
	return false
}
