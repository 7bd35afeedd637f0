package txn

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intellect4all/entropy/common"
)

func setupWAL(t *testing.T) (*WALManager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wal")
	w, st := NewWALManager(path)
	require.True(t, st.OK(), st.String())
	return w, path
}

func TestWALAppendAssignsMonotonicLSNs(t *testing.T) {
	w, _ := setupWAL(t)
	defer w.Close()

	var last common.LSN
	for i := 0; i < 10; i++ {
		lsn, st := w.AppendLog(NewBeginRecord(common.TxnID(i + 1)))
		require.True(t, st.OK())
		require.Greater(t, lsn, last)
		last = lsn
	}
	require.Equal(t, common.LSN(11), w.NextLSN())
}

func TestWALPersistence(t *testing.T) {
	w, path := setupWAL(t)

	rid := common.RID{PageID: 5, SlotID: 3}
	_, st := w.AppendLog(NewBeginRecord(42))
	require.True(t, st.OK())
	_, st = w.AppendLog(NewInsertRecord(42, 1, 10, rid, []byte("data")))
	require.True(t, st.OK())
	_, st = w.AppendLog(NewCommitRecord(42, 2))
	require.True(t, st.OK())
	require.True(t, w.Flush().OK())
	require.True(t, w.Close().OK())

	// Reopen and read back.
	w2, st := NewWALManager(path)
	require.True(t, st.OK())
	defer w2.Close()
	records, st := w2.ReadLog()
	require.True(t, st.OK())
	require.Len(t, records, 3)

	require.Equal(t, LogBegin, records[0].Type)
	require.Equal(t, common.TxnID(42), records[0].TxnID)

	require.Equal(t, LogInsert, records[1].Type)
	require.Equal(t, common.OID(10), records[1].TableOID)
	require.Equal(t, rid, records[1].RID)
	require.True(t, bytes.Equal([]byte("data"), records[1].NewData))

	require.Equal(t, LogCommit, records[2].Type)
	require.Equal(t, common.LSN(2), records[2].PrevLSN)

	// LSNs are strictly increasing; next_lsn resumes past them.
	require.Less(t, records[0].LSN, records[1].LSN)
	require.Less(t, records[1].LSN, records[2].LSN)
	require.Equal(t, records[2].LSN+1, w2.NextLSN())
}

func TestWALFlushedLSNAdvances(t *testing.T) {
	w, _ := setupWAL(t)
	defer w.Close()

	lsn, st := w.AppendLog(NewBeginRecord(1))
	require.True(t, st.OK())
	require.Less(t, w.FlushedLSN(), lsn)
	require.True(t, w.Flush().OK())
	require.GreaterOrEqual(t, w.FlushedLSN(), lsn)
	require.True(t, w.FlushToLSN(lsn).OK())
}

func TestWALBufferOverflowFlushes(t *testing.T) {
	w, _ := setupWAL(t)
	defer w.Close()

	// Enough records to roll the 64 KiB buffer over several times.
	payload := bytes.Repeat([]byte("p"), 1000)
	var lastLSN common.LSN
	for i := 0; i < 200; i++ {
		lsn, st := w.AppendLog(NewInsertRecord(7, common.LSN(i), 1,
			common.RID{PageID: 1, SlotID: common.SlotID(i)}, payload))
		require.True(t, st.OK())
		lastLSN = lsn
	}
	require.True(t, w.Flush().OK())

	records, st := w.ReadLog()
	require.True(t, st.OK())
	require.Len(t, records, 200)
	require.Equal(t, lastLSN, records[199].LSN)
}

func TestWALLargeRecordBypassesBuffer(t *testing.T) {
	w, _ := setupWAL(t)
	defer w.Close()

	big := bytes.Repeat([]byte("x"), common.WALBufferSize+100)
	lsn, st := w.AppendLog(NewInsertRecord(1, 0, 1, common.RID{PageID: 1, SlotID: 0}, big))
	require.True(t, st.OK())
	// Direct writes are synced immediately.
	require.GreaterOrEqual(t, w.FlushedLSN(), lsn)

	records, st := w.ReadLog()
	require.True(t, st.OK())
	require.Len(t, records, 1)
	require.True(t, bytes.Equal(big, records[0].NewData))
}

func TestLogRecordRoundTripAllTypes(t *testing.T) {
	rid := common.RID{PageID: 9, SlotID: 4}
	records := []*LogRecord{
		NewBeginRecord(1),
		NewCommitRecord(1, 5),
		NewAbortRecord(2, 6),
		NewInsertRecord(1, 7, 3, rid, []byte("new")),
		NewDeleteRecord(1, 8, 3, rid, []byte("old")),
		NewUpdateRecord(1, 9, 3, rid, []byte("old"), []byte("new")),
		NewCheckpointRecord([]common.TxnID{4, 5, 6}),
	}
	for _, rec := range records {
		rec.LSN = 99
		out, st := DeserializeLogRecord(rec.Serialize())
		require.True(t, st.OK(), rec.Type.String())
		require.Equal(t, rec.Type, out.Type)
		require.Equal(t, rec.TxnID, out.TxnID)
		require.Equal(t, rec.PrevLSN, out.PrevLSN)
		require.Equal(t, rec.LSN, out.LSN)
		require.Equal(t, rec.OldData, out.OldData)
		require.Equal(t, rec.NewData, out.NewData)
		require.Equal(t, rec.ActiveTxnIDs, out.ActiveTxnIDs)
		if rec.hasBody() && rec.Type != LogCheckpoint {
			require.Equal(t, rid, out.RID)
		}
	}
}

func TestDeserializeRejectsTruncated(t *testing.T) {
	rec := NewInsertRecord(1, 0, 3, common.RID{PageID: 1, SlotID: 1}, []byte("payload"))
	data := rec.Serialize()
	_, st := DeserializeLogRecord(data[:10])
	require.Equal(t, common.CodeCorruption, st.Code)
}
