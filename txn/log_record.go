package txn

import (
	"encoding/binary"

	"github.com/intellect4all/entropy/common"
)

// LogRecordType discriminates WAL records.
type LogRecordType uint8

const (
	LogInvalid LogRecordType = iota
	LogBegin
	LogCommit
	LogAbort
	LogInsert
	LogDelete
	LogUpdate
	LogCheckpoint
)

func (t LogRecordType) String() string {
	switch t {
	case LogBegin:
		return "BEGIN"
	case LogCommit:
		return "COMMIT"
	case LogAbort:
		return "ABORT"
	case LogInsert:
		return "INSERT"
	case LogDelete:
		return "DELETE"
	case LogUpdate:
		return "UPDATE"
	case LogCheckpoint:
		return "CHECKPOINT"
	}
	return "INVALID"
}

// Fixed 32-byte record header, little-endian.
// Layout: [type(1)][pad(3)][size(4)][lsn(8)][txn_id(8)][prev_lsn(8)]
// size covers the whole record, header included.
const (
	LogRecordHeaderSize = 32

	logOffsetType    = 0
	logOffsetSize    = 4
	logOffsetLSN     = 8
	logOffsetTxnID   = 16
	logOffsetPrevLSN = 24
)

// LogRecord is one WAL entry. Data-mutation records carry the table,
// the RID and before/after images for undo and redo; CHECKPOINT records
// carry the set of active transactions.
type LogRecord struct {
	Type    LogRecordType
	LSN     common.LSN
	TxnID   common.TxnID
	PrevLSN common.LSN

	TableOID common.OID
	RID      common.RID
	OldData  []byte // DELETE, UPDATE: before image
	NewData  []byte // INSERT, UPDATE: after image

	ActiveTxnIDs []common.TxnID // CHECKPOINT
}

// NewBeginRecord starts a transaction's log chain.
func NewBeginRecord(txnID common.TxnID) *LogRecord {
	return &LogRecord{Type: LogBegin, TxnID: txnID}
}

// NewCommitRecord ends a transaction's log chain.
func NewCommitRecord(txnID common.TxnID, prevLSN common.LSN) *LogRecord {
	return &LogRecord{Type: LogCommit, TxnID: txnID, PrevLSN: prevLSN}
}

// NewAbortRecord marks a rolled-back transaction.
func NewAbortRecord(txnID common.TxnID, prevLSN common.LSN) *LogRecord {
	return &LogRecord{Type: LogAbort, TxnID: txnID, PrevLSN: prevLSN}
}

// NewInsertRecord logs a tuple insertion.
func NewInsertRecord(txnID common.TxnID, prevLSN common.LSN, tableOID common.OID,
	rid common.RID, data []byte) *LogRecord {
	return &LogRecord{Type: LogInsert, TxnID: txnID, PrevLSN: prevLSN,
		TableOID: tableOID, RID: rid, NewData: data}
}

// NewDeleteRecord logs a tuple deletion with its before image.
func NewDeleteRecord(txnID common.TxnID, prevLSN common.LSN, tableOID common.OID,
	rid common.RID, oldData []byte) *LogRecord {
	return &LogRecord{Type: LogDelete, TxnID: txnID, PrevLSN: prevLSN,
		TableOID: tableOID, RID: rid, OldData: oldData}
}

// NewUpdateRecord logs a tuple rewrite with both images.
func NewUpdateRecord(txnID common.TxnID, prevLSN common.LSN, tableOID common.OID,
	rid common.RID, oldData, newData []byte) *LogRecord {
	return &LogRecord{Type: LogUpdate, TxnID: txnID, PrevLSN: prevLSN,
		TableOID: tableOID, RID: rid, OldData: oldData, NewData: newData}
}

// NewCheckpointRecord snapshots the active transaction set.
func NewCheckpointRecord(activeTxnIDs []common.TxnID) *LogRecord {
	return &LogRecord{Type: LogCheckpoint, ActiveTxnIDs: activeTxnIDs}
}

// hasBody reports whether the record type carries a type-specific body.
func (r *LogRecord) hasBody() bool {
	switch r.Type {
	case LogInsert, LogDelete, LogUpdate, LogCheckpoint:
		return true
	}
	return false
}

// bodySize computes the serialized body length.
func (r *LogRecord) bodySize() int {
	switch r.Type {
	case LogInsert:
		return 4 + 8 + 4 + len(r.NewData)
	case LogDelete:
		return 4 + 8 + 4 + len(r.OldData)
	case LogUpdate:
		return 4 + 8 + 4 + len(r.OldData) + 4 + len(r.NewData)
	case LogCheckpoint:
		return 4 + 8*len(r.ActiveTxnIDs)
	}
	return 0
}

// Serialize renders the record: header then type-specific body.
func (r *LogRecord) Serialize() []byte {
	size := LogRecordHeaderSize + r.bodySize()
	buf := make([]byte, size)
	buf[logOffsetType] = byte(r.Type)
	binary.LittleEndian.PutUint32(buf[logOffsetSize:], uint32(size))
	binary.LittleEndian.PutUint64(buf[logOffsetLSN:], uint64(r.LSN))
	binary.LittleEndian.PutUint64(buf[logOffsetTxnID:], uint64(r.TxnID))
	binary.LittleEndian.PutUint64(buf[logOffsetPrevLSN:], uint64(r.PrevLSN))

	off := LogRecordHeaderSize
	putRID := func(rid common.RID) {
		binary.LittleEndian.PutUint32(buf[off:], uint32(rid.PageID))
		binary.LittleEndian.PutUint16(buf[off+4:], uint16(rid.SlotID))
		off += 8
	}
	putBytes := func(b []byte) {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(b)))
		off += 4
		copy(buf[off:], b)
		off += len(b)
	}
	switch r.Type {
	case LogInsert:
		binary.LittleEndian.PutUint32(buf[off:], uint32(r.TableOID))
		off += 4
		putRID(r.RID)
		putBytes(r.NewData)
	case LogDelete:
		binary.LittleEndian.PutUint32(buf[off:], uint32(r.TableOID))
		off += 4
		putRID(r.RID)
		putBytes(r.OldData)
	case LogUpdate:
		binary.LittleEndian.PutUint32(buf[off:], uint32(r.TableOID))
		off += 4
		putRID(r.RID)
		putBytes(r.OldData)
		putBytes(r.NewData)
	case LogCheckpoint:
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.ActiveTxnIDs)))
		off += 4
		for _, id := range r.ActiveTxnIDs {
			binary.LittleEndian.PutUint64(buf[off:], uint64(id))
			off += 8
		}
	}
	return buf
}

// DeserializeLogRecord rebuilds a record from its serialized form.
func DeserializeLogRecord(buf []byte) (*LogRecord, common.Status) {
	if len(buf) < LogRecordHeaderSize {
		return nil, common.Corruption("log record shorter than header")
	}
	r := &LogRecord{
		Type:    LogRecordType(buf[logOffsetType]),
		LSN:     common.LSN(binary.LittleEndian.Uint64(buf[logOffsetLSN:])),
		TxnID:   common.TxnID(binary.LittleEndian.Uint64(buf[logOffsetTxnID:])),
		PrevLSN: common.LSN(binary.LittleEndian.Uint64(buf[logOffsetPrevLSN:])),
	}
	size := int(binary.LittleEndian.Uint32(buf[logOffsetSize:]))
	if size != len(buf) {
		return nil, common.Corruption("log record size %d does not match buffer %d", size, len(buf))
	}
	if !r.hasBody() {
		return r, common.OkStatus()
	}

	off := LogRecordHeaderSize
	need := func(n int) bool { return off+n <= len(buf) }
	getRID := func() common.RID {
		rid := common.RID{
			PageID: common.PageID(int32(binary.LittleEndian.Uint32(buf[off:]))),
			SlotID: common.SlotID(binary.LittleEndian.Uint16(buf[off+4:])),
		}
		off += 8
		return rid
	}
	getBytes := func() ([]byte, bool) {
		if !need(4) {
			return nil, false
		}
		n := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		if !need(n) {
			return nil, false
		}
		out := make([]byte, n)
		copy(out, buf[off:off+n])
		off += n
		return out, true
	}

	switch r.Type {
	case LogInsert, LogDelete, LogUpdate:
		if !need(12) {
			return nil, common.Corruption("truncated %s record", r.Type)
		}
		r.TableOID = common.OID(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		r.RID = getRID()
		first, ok := getBytes()
		if !ok {
			return nil, common.Corruption("truncated %s record", r.Type)
		}
		if r.Type == LogInsert {
			r.NewData = first
		} else {
			r.OldData = first
		}
		if r.Type == LogUpdate {
			second, ok := getBytes()
			if !ok {
				return nil, common.Corruption("truncated UPDATE record")
			}
			r.NewData = second
		}
	case LogCheckpoint:
		if !need(4) {
			return nil, common.Corruption("truncated CHECKPOINT record")
		}
		n := int(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		if !need(8 * n) {
			return nil, common.Corruption("truncated CHECKPOINT record")
		}
		for i := 0; i < n; i++ {
			r.ActiveTxnIDs = append(r.ActiveTxnIDs,
				common.TxnID(binary.LittleEndian.Uint64(buf[off:])))
			off += 8
		}
	}
	return r, common.OkStatus()
}
