package txn

import (
	"encoding/binary"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/intellect4all/entropy/common"
)

// WALManager owns the log file and an in-memory append buffer. Records
// are flushed when the buffer fills, on explicit Flush, and before any
// commit returns. All public methods are thread-safe.
type WALManager struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	buffer  []byte
	bufOff  int
	nextLSN atomic.Uint64
	flushed atomic.Uint64
}

// NewWALManager opens (creating if absent) the log at path and restores
// next_lsn by scanning the existing records.
func NewWALManager(path string) (*WALManager, common.Status) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, common.IOError("%v", errors.Wrap(err, "open WAL file"))
	}
	w := &WALManager{
		file:   file,
		path:   path,
		buffer: make([]byte, common.WALBufferSize),
	}
	w.nextLSN.Store(1)

	records, st := w.ReadLog()
	if !st.OK() {
		file.Close()
		return nil, st
	}
	if len(records) > 0 {
		last := records[len(records)-1].LSN
		w.nextLSN.Store(uint64(last) + 1)
		w.flushed.Store(uint64(last))
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return nil, common.IOError("%v", errors.Wrap(err, "seek WAL file"))
	}
	common.Log().Debugw("wal opened", "path", path,
		"next_lsn", w.nextLSN.Load(), "flushed_lsn", w.flushed.Load())
	return w, common.OkStatus()
}

// Path returns the log file path.
func (w *WALManager) Path() string { return w.path }

// NextLSN returns the LSN the next record will receive.
func (w *WALManager) NextLSN() common.LSN { return common.LSN(w.nextLSN.Load()) }

// FlushedLSN returns the highest LSN known durable.
func (w *WALManager) FlushedLSN() common.LSN { return common.LSN(w.flushed.Load()) }

// AppendLog assigns the record its LSN and buffers it. Records larger
// than the buffer bypass it and are written (and synced) directly.
func (w *WALManager) AppendLog(record *LogRecord) (common.LSN, common.Status) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lsn := common.LSN(w.nextLSN.Add(1) - 1)
	record.LSN = lsn
	data := record.Serialize()

	if w.bufOff+len(data) > len(w.buffer) {
		if st := w.flushLocked(); !st.OK() {
			return common.InvalidLSN, st
		}
	}
	if len(data) > len(w.buffer) {
		if _, err := w.file.Write(data); err != nil {
			return common.InvalidLSN, common.IOError("%v", errors.Wrap(err, "write WAL record"))
		}
		if err := w.file.Sync(); err != nil {
			return common.InvalidLSN, common.IOError("%v", errors.Wrap(err, "sync WAL file"))
		}
		w.flushed.Store(uint64(lsn))
		return lsn, common.OkStatus()
	}
	copy(w.buffer[w.bufOff:], data)
	w.bufOff += len(data)
	return lsn, common.OkStatus()
}

// Flush writes and fsyncs the buffered records.
func (w *WALManager) Flush() common.Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *WALManager) flushLocked() common.Status {
	if w.bufOff == 0 {
		return common.OkStatus()
	}
	if _, err := w.file.Write(w.buffer[:w.bufOff]); err != nil {
		return common.IOError("%v", errors.Wrap(err, "write WAL buffer"))
	}
	if err := w.file.Sync(); err != nil {
		return common.IOError("%v", errors.Wrap(err, "sync WAL file"))
	}
	w.flushed.Store(w.nextLSN.Load() - 1)
	w.bufOff = 0
	return common.OkStatus()
}

// FlushToLSN ensures every record up to lsn is durable.
func (w *WALManager) FlushToLSN(lsn common.LSN) common.Status {
	if lsn <= w.FlushedLSN() {
		return common.OkStatus()
	}
	return w.Flush()
}

// ReadLog linearly scans the log file and rebuilds every record, header
// first, then body. Truncated tails end the scan without error.
func (w *WALManager) ReadLog() ([]*LogRecord, common.Status) {
	f, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.OkStatus()
		}
		return nil, common.IOError("%v", errors.Wrap(err, "open WAL for read"))
	}
	defer f.Close()

	var records []*LogRecord
	header := make([]byte, LogRecordHeaderSize)
	for {
		n, err := io.ReadFull(f, header)
		if err == io.EOF || (err == io.ErrUnexpectedEOF && n < LogRecordHeaderSize) {
			break
		}
		if err != nil {
			return nil, common.IOError("%v", errors.Wrap(err, "read WAL header"))
		}
		size := int(binary.LittleEndian.Uint32(header[logOffsetSize:]))
		if size < LogRecordHeaderSize {
			common.Log().Warnw("invalid WAL record size, truncating scan", "size", size)
			break
		}
		buf := make([]byte, size)
		copy(buf, header)
		if size > LogRecordHeaderSize {
			if _, err := io.ReadFull(f, buf[LogRecordHeaderSize:]); err != nil {
				common.Log().Warnw("incomplete WAL record, truncating scan")
				break
			}
		}
		record, st := DeserializeLogRecord(buf)
		if !st.OK() {
			return nil, st
		}
		records = append(records, record)
	}
	return records, common.OkStatus()
}

// Close flushes remaining records and releases the file.
func (w *WALManager) Close() common.Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	if st := w.flushLocked(); !st.OK() {
		return st
	}
	if err := w.file.Close(); err != nil {
		return common.IOError("%v", errors.Wrap(err, "close WAL file"))
	}
	return common.OkStatus()
}
