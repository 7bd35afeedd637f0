package txn

import (
	"sync"

	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/storage"
)

// HeapResolver maps a table oid to its heap so abort can undo writes.
// The catalog provides this; an indirection keeps the dependency
// one-way.
type HeapResolver func(oid common.OID) (*storage.TableHeap, bool)

// TransactionManager hands out transaction ids, drives the commit and
// abort protocols, and links per-transaction log records through
// prev_lsn. All public methods are thread-safe.
type TransactionManager struct {
	mu      sync.Mutex
	nextID  common.TxnID
	txns    map[common.TxnID]*Transaction
	wal     *WALManager // optional
	mvcc    *MVCCManager
	locks   *LockManager
	resolve HeapResolver
}

// NewTransactionManager wires the manager. wal may be nil to run
// without logging; resolve may be nil when undo is not needed.
func NewTransactionManager(wal *WALManager, mvcc *MVCCManager, locks *LockManager, resolve HeapResolver) *TransactionManager {
	return &TransactionManager{
		nextID:  1,
		txns:    make(map[common.TxnID]*Transaction),
		wal:     wal,
		mvcc:    mvcc,
		locks:   locks,
		resolve: resolve,
	}
}

// Begin starts a transaction, logging BEGIN when a WAL is attached.
func (tm *TransactionManager) Begin(isolation IsolationLevel) (*Transaction, common.Status) {
	tm.mu.Lock()
	id := tm.nextID
	tm.nextID++
	t := NewTransaction(id, isolation, tm.mvcc.GetTimestamp())
	tm.txns[id] = t
	tm.mu.Unlock()

	if tm.wal != nil {
		lsn, st := tm.wal.AppendLog(NewBeginRecord(id))
		if !st.OK() {
			return nil, st
		}
		t.SetPrevLSN(lsn)
	}
	return t, common.OkStatus()
}

// Get returns a live transaction by id.
func (tm *TransactionManager) Get(id common.TxnID) (*Transaction, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	t, ok := tm.txns[id]
	return t, ok
}

// IsCommitted reports whether id belongs to a committed transaction.
// Used as the read-committed visibility oracle.
func (tm *TransactionManager) IsCommitted(id common.TxnID) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	t, ok := tm.txns[id]
	return ok && t.State() == StateCommitted
}

// LogInsert appends an INSERT record for t and advances its prev_lsn.
func (tm *TransactionManager) LogInsert(t *Transaction, tableOID common.OID, rid common.RID, data []byte) common.Status {
	if tm.wal == nil {
		return common.OkStatus()
	}
	lsn, st := tm.wal.AppendLog(NewInsertRecord(t.ID(), t.PrevLSN(), tableOID, rid, data))
	if !st.OK() {
		return st
	}
	t.SetPrevLSN(lsn)
	return common.OkStatus()
}

// LogDelete appends a DELETE record for t and advances its prev_lsn.
func (tm *TransactionManager) LogDelete(t *Transaction, tableOID common.OID, rid common.RID, oldData []byte) common.Status {
	if tm.wal == nil {
		return common.OkStatus()
	}
	lsn, st := tm.wal.AppendLog(NewDeleteRecord(t.ID(), t.PrevLSN(), tableOID, rid, oldData))
	if !st.OK() {
		return st
	}
	t.SetPrevLSN(lsn)
	return common.OkStatus()
}

// LogUpdate appends an UPDATE record for t and advances its prev_lsn.
func (tm *TransactionManager) LogUpdate(t *Transaction, tableOID common.OID, rid common.RID, oldData, newData []byte) common.Status {
	if tm.wal == nil {
		return common.OkStatus()
	}
	lsn, st := tm.wal.AppendLog(NewUpdateRecord(t.ID(), t.PrevLSN(), tableOID, rid, oldData, newData))
	if !st.OK() {
		return st
	}
	t.SetPrevLSN(lsn)
	return common.OkStatus()
}

// Commit logs COMMIT, forces the log, stamps the commit timestamp and
// clears the write set. The call returns only once the COMMIT record is
// durable.
func (tm *TransactionManager) Commit(t *Transaction) common.Status {
	if !t.IsActive() {
		return common.InvalidArgument("transaction %d is not active (%s)", t.ID(), t.State())
	}
	if tm.wal != nil {
		lsn, st := tm.wal.AppendLog(NewCommitRecord(t.ID(), t.PrevLSN()))
		if !st.OK() {
			return st
		}
		t.SetPrevLSN(lsn)
		if st := tm.wal.FlushToLSN(lsn); !st.OK() {
			return st
		}
	}
	t.SetCommitTS(tm.mvcc.GetTimestamp())
	t.SetState(StateCommitted)
	t.ClearWriteSet()
	if tm.locks != nil {
		tm.locks.ReleaseAllLocks(t)
	}
	return common.OkStatus()
}

// Abort walks the write set in reverse, undoing each record: an insert
// is deleted, a delete reinserted from its before image, an update
// rewritten from its before image. Then logs ABORT.
func (tm *TransactionManager) Abort(t *Transaction) common.Status {
	if t.State() == StateCommitted {
		return common.InvalidArgument("transaction %d already committed", t.ID())
	}
	writes := t.WriteSet()
	for i := len(writes) - 1; i >= 0; i-- {
		rec := writes[i]
		if tm.resolve == nil {
			break
		}
		heap, ok := tm.resolve(rec.TableOID)
		if !ok {
			continue
		}
		switch rec.Type {
		case WriteInsert:
			if st := heap.DeleteTuple(rec.RID); !st.OK() {
				common.Log().Warnw("undo insert failed", "txn", t.ID(), "status", st.String())
			}
		case WriteDelete:
			tuple := storage.NewTupleFromBytes(rec.OldData, rec.RID)
			if st := heap.InsertTuple(tuple); !st.OK() {
				common.Log().Warnw("undo delete failed", "txn", t.ID(), "status", st.String())
			}
		case WriteUpdate:
			tuple := storage.NewTupleFromBytes(rec.OldData, rec.RID)
			if st := heap.UpdateTuple(tuple, rec.RID); !st.OK() {
				common.Log().Warnw("undo update failed", "txn", t.ID(), "status", st.String())
			}
		}
	}
	t.ClearWriteSet()

	if tm.wal != nil {
		lsn, st := tm.wal.AppendLog(NewAbortRecord(t.ID(), t.PrevLSN()))
		if !st.OK() {
			return st
		}
		t.SetPrevLSN(lsn)
	}
	t.SetState(StateAborted)
	if tm.locks != nil {
		tm.locks.ReleaseAllLocks(t)
	}
	return common.OkStatus()
}

// ActiveTxnIDs snapshots the ids of transactions still running.
func (tm *TransactionManager) ActiveTxnIDs() []common.TxnID {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	var out []common.TxnID
	for id, t := range tm.txns {
		if t.IsActive() {
			out = append(out, id)
		}
	}
	return out
}

// Checkpoint logs a CHECKPOINT record carrying the active set and
// forces the log.
func (tm *TransactionManager) Checkpoint() common.Status {
	if tm.wal == nil {
		return common.OkStatus()
	}
	if _, st := tm.wal.AppendLog(NewCheckpointRecord(tm.ActiveTxnIDs())); !st.OK() {
		return st
	}
	return tm.wal.Flush()
}
