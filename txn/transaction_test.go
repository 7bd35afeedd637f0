package txn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/storage"
)

type txnEnv struct {
	tm   *TransactionManager
	heap *storage.TableHeap
	wal  *WALManager
}

func setupTxnEnv(t *testing.T, withWAL bool) *txnEnv {
	t.Helper()
	dm, st := storage.NewDiskManager(storage.MemoryPath, common.DefaultPageSize, false)
	require.True(t, st.OK())
	pool := storage.NewBufferPool(64, dm)
	heap, st := storage.NewTableHeap(pool)
	require.True(t, st.OK())

	var wal *WALManager
	if withWAL {
		wal, st = NewWALManager(filepath.Join(t.TempDir(), "txn.wal"))
		require.True(t, st.OK())
		t.Cleanup(func() { wal.Close() })
	}
	resolve := func(oid common.OID) (*storage.TableHeap, bool) {
		if oid == 1 {
			return heap, true
		}
		return nil, false
	}
	locks := NewLockManager(DefaultLockManagerOptions())
	tm := NewTransactionManager(wal, NewMVCCManager(), locks, resolve)
	return &txnEnv{tm: tm, heap: heap, wal: wal}
}

func TestTransactionLifecycle(t *testing.T) {
	env := setupTxnEnv(t, false)
	tx, st := env.tm.Begin(RepeatableRead)
	require.True(t, st.OK())
	require.Equal(t, StateGrowing, tx.State())
	require.True(t, tx.IsActive())

	require.True(t, env.tm.Commit(tx).OK())
	require.Equal(t, StateCommitted, tx.State())
	require.False(t, tx.IsActive())
	require.True(t, env.tm.IsCommitted(tx.ID()))

	// Terminal states reject further protocol actions.
	require.False(t, env.tm.Commit(tx).OK())
	require.False(t, env.tm.Abort(tx).OK())
}

func TestTransactionIDsMonotonic(t *testing.T) {
	env := setupTxnEnv(t, false)
	a, _ := env.tm.Begin(RepeatableRead)
	b, _ := env.tm.Begin(RepeatableRead)
	require.Greater(t, b.ID(), a.ID())
	require.Greater(t, b.StartTS(), a.StartTS())
}

func insertRow(t *testing.T, env *txnEnv, data string) common.RID {
	t.Helper()
	tuple := storage.NewTupleFromBytes([]byte(data), common.InvalidRID())
	require.True(t, env.heap.InsertTuple(tuple).OK())
	return tuple.RID()
}

func TestAbortUndoesInsert(t *testing.T) {
	env := setupTxnEnv(t, false)
	tx, _ := env.tm.Begin(RepeatableRead)

	rid := insertRow(t, env, "inserted row")
	tx.AddWriteRecord(WriteRecord{Type: WriteInsert, TableOID: 1, RID: rid})

	require.True(t, env.tm.Abort(tx).OK())
	require.Equal(t, StateAborted, tx.State())
	_, st := env.heap.GetTuple(rid)
	require.Equal(t, common.CodeNotFound, st.Code)
}

func TestAbortUndoesDelete(t *testing.T) {
	env := setupTxnEnv(t, false)
	rid := insertRow(t, env, "keep me")

	tx, _ := env.tm.Begin(RepeatableRead)
	old, st := env.heap.GetTuple(rid)
	require.True(t, st.OK())
	require.True(t, env.heap.DeleteTuple(rid).OK())
	tx.AddWriteRecord(WriteRecord{Type: WriteDelete, TableOID: 1, RID: rid, OldData: old.Data()})

	require.True(t, env.tm.Abort(tx).OK())
	// The row is back at its old RID: the reinsert reuses the freed slot 0.
	got, st := env.heap.GetTuple(rid)
	require.True(t, st.OK(), st.String())
	require.Equal(t, []byte("keep me"), got.Data())
}

func TestAbortUndoesUpdate(t *testing.T) {
	env := setupTxnEnv(t, false)
	rid := insertRow(t, env, "original value")

	tx, _ := env.tm.Begin(RepeatableRead)
	old, st := env.heap.GetTuple(rid)
	require.True(t, st.OK())
	updated := storage.NewTupleFromBytes([]byte("modified value"), rid)
	require.True(t, env.heap.UpdateTuple(updated, rid).OK())
	tx.AddWriteRecord(WriteRecord{Type: WriteUpdate, TableOID: 1, RID: rid, OldData: old.Data()})

	require.True(t, env.tm.Abort(tx).OK())
	got, st := env.heap.GetTuple(rid)
	require.True(t, st.OK())
	require.Equal(t, []byte("original value"), got.Data())
}

func TestAbortUndoesInReverseOrder(t *testing.T) {
	env := setupTxnEnv(t, false)
	rid := insertRow(t, env, "v1-bytes")

	tx, _ := env.tm.Begin(RepeatableRead)
	// Two stacked updates; undo must land back on v1.
	old1, _ := env.heap.GetTuple(rid)
	require.True(t, env.heap.UpdateTuple(storage.NewTupleFromBytes([]byte("v2-bytes"), rid), rid).OK())
	tx.AddWriteRecord(WriteRecord{Type: WriteUpdate, TableOID: 1, RID: rid, OldData: old1.Data()})
	old2, _ := env.heap.GetTuple(rid)
	require.True(t, env.heap.UpdateTuple(storage.NewTupleFromBytes([]byte("v3-bytes"), rid), rid).OK())
	tx.AddWriteRecord(WriteRecord{Type: WriteUpdate, TableOID: 1, RID: rid, OldData: old2.Data()})

	require.True(t, env.tm.Abort(tx).OK())
	got, st := env.heap.GetTuple(rid)
	require.True(t, st.OK())
	require.Equal(t, []byte("v1-bytes"), got.Data())
}

func TestCommitClearsWriteSet(t *testing.T) {
	env := setupTxnEnv(t, false)
	tx, _ := env.tm.Begin(RepeatableRead)
	tx.AddWriteRecord(WriteRecord{Type: WriteInsert, TableOID: 1})
	require.Len(t, tx.WriteSet(), 1)
	require.True(t, env.tm.Commit(tx).OK())
	require.Empty(t, tx.WriteSet())
}

func TestCommitForcesWAL(t *testing.T) {
	env := setupTxnEnv(t, true)
	tx, st := env.tm.Begin(RepeatableRead)
	require.True(t, st.OK())
	rid := common.RID{PageID: 3, SlotID: 1}
	require.True(t, env.tm.LogInsert(tx, 1, rid, []byte("payload")).OK())
	require.True(t, env.tm.Commit(tx).OK())

	// The COMMIT record is durable before Commit returns.
	records, st := env.wal.ReadLog()
	require.True(t, st.OK())
	require.Len(t, records, 3)
	require.Equal(t, LogBegin, records[0].Type)
	require.Equal(t, LogInsert, records[1].Type)
	require.Equal(t, LogCommit, records[2].Type)
	require.GreaterOrEqual(t, env.wal.FlushedLSN(), records[2].LSN)
	// prev_lsn links the chain.
	require.Equal(t, records[0].LSN, records[1].PrevLSN)
	require.Equal(t, records[1].LSN, records[2].PrevLSN)
}

func TestRecoveryReplaysCommitted(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "recover.wal")

	// Session one: one committed, one uncommitted transaction.
	w, st := NewWALManager(walPath)
	require.True(t, st.OK())
	tm := NewTransactionManager(w, NewMVCCManager(), nil, nil)
	committed, _ := tm.Begin(RepeatableRead)
	require.True(t, tm.LogInsert(committed, 1, common.RID{PageID: 0, SlotID: 0}, []byte("durable")).OK())
	require.True(t, tm.Commit(committed).OK())
	uncommitted, _ := tm.Begin(RepeatableRead)
	require.True(t, tm.LogInsert(uncommitted, 1, common.RID{PageID: 0, SlotID: 1}, []byte("lost")).OK())
	require.True(t, w.Flush().OK())
	require.True(t, w.Close().OK())

	// Session two: replay onto a fresh heap.
	dm, st := storage.NewDiskManager(storage.MemoryPath, common.DefaultPageSize, false)
	require.True(t, st.OK())
	heap, st := storage.NewTableHeap(storage.NewBufferPool(64, dm))
	require.True(t, st.OK())
	w2, st := NewWALManager(walPath)
	require.True(t, st.OK())
	defer w2.Close()

	resolve := func(oid common.OID) (*storage.TableHeap, bool) { return heap, oid == 1 }
	applied, st := NewRecoveryManager(w2, resolve).Recover()
	require.True(t, st.OK())
	require.Equal(t, 1, applied)

	it := heap.Iterator()
	require.True(t, it.Valid())
	require.Equal(t, []byte("durable"), it.Tuple().Data())
	it.Next()
	require.False(t, it.Valid())
}

func TestCheckpointRecordsActiveSet(t *testing.T) {
	env := setupTxnEnv(t, true)
	active, _ := env.tm.Begin(RepeatableRead)
	done, _ := env.tm.Begin(RepeatableRead)
	require.True(t, env.tm.Commit(done).OK())
	require.True(t, env.tm.Checkpoint().OK())

	records, st := env.wal.ReadLog()
	require.True(t, st.OK())
	last := records[len(records)-1]
	require.Equal(t, LogCheckpoint, last.Type)
	require.Equal(t, []common.TxnID{active.ID()}, last.ActiveTxnIDs)
}
