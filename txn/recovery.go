package txn

import (
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/storage"
)

// RecoveryManager replays the WAL on open: records of committed
// transactions are redone in log order; records of transactions with no
// COMMIT are ignored (their effects never reached a durable commit).
type RecoveryManager struct {
	wal     *WALManager
	resolve HeapResolver
}

// NewRecoveryManager builds a recovery pass over wal.
func NewRecoveryManager(wal *WALManager, resolve HeapResolver) *RecoveryManager {
	return &RecoveryManager{wal: wal, resolve: resolve}
}

// Recover scans the log and applies redo for committed transactions.
// Returns the number of records applied.
func (r *RecoveryManager) Recover() (int, common.Status) {
	records, st := r.wal.ReadLog()
	if !st.OK() {
		return 0, st
	}
	if len(records) == 0 {
		return 0, common.OkStatus()
	}

	committed := make(map[common.TxnID]bool)
	for _, rec := range records {
		if rec.Type == LogCommit {
			committed[rec.TxnID] = true
		}
	}

	applied := 0
	for _, rec := range records {
		if !committed[rec.TxnID] {
			continue
		}
		if r.resolve == nil {
			break
		}
		heap, ok := r.resolve(rec.TableOID)
		if !ok {
			continue
		}
		switch rec.Type {
		case LogInsert:
			tuple := storage.NewTupleFromBytes(rec.NewData, rec.RID)
			if st := heap.InsertTuple(tuple); st.OK() {
				applied++
			}
		case LogDelete:
			if st := heap.DeleteTuple(rec.RID); st.OK() {
				applied++
			}
		case LogUpdate:
			tuple := storage.NewTupleFromBytes(rec.NewData, rec.RID)
			if st := heap.UpdateTuple(tuple, rec.RID); st.OK() {
				applied++
			}
		}
	}
	if applied > 0 {
		common.Log().Infow("wal recovery applied records", "count", applied)
	}
	return applied, common.OkStatus()
}
