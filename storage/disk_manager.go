package storage

import (
	"io"
	"os"
	"sync"

	"github.com/dsnet/golib/memfile"
	"github.com/ncw/directio"
	"github.com/pkg/errors"

	"github.com/intellect4all/entropy/common"
)

// MemoryPath opens the disk manager over an in-memory file instead of the
// filesystem.
const MemoryPath = ":memory:"

// backingFile is the surface the disk manager needs from its file. Both
// *os.File and *memfile.File satisfy it.
type backingFile interface {
	io.ReaderAt
	io.WriterAt
}

// DiskManager performs fixed-size page I/O over a single database file
// and owns the allocation counter. All methods serialize on an internal
// mutex; the manager exclusively owns the file handle.
type DiskManager struct {
	mu       sync.Mutex
	file     backingFile
	osFile   *os.File // nil for in-memory databases
	mem      *memfile.File
	path     string
	pageSize int
	numPages common.PageID
	compress bool
	scratch  []byte // page-aligned I/O buffer
}

// NewDiskManager opens (creating if absent) the database file at path.
// Pass MemoryPath for a transient in-memory database.
func NewDiskManager(path string, pageSize int, compress bool) (*DiskManager, common.Status) {
	if pageSize < common.MinPageSize || pageSize > common.MaxPageSize {
		return nil, common.InvalidArgument("page size %d out of range", pageSize)
	}
	d := &DiskManager{
		path:     path,
		pageSize: pageSize,
		compress: compress,
		scratch:  directio.AlignedBlock(pageSize),
	}
	if path == MemoryPath {
		d.mem = memfile.New(nil)
		d.file = d.mem
		return d, common.OkStatus()
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, common.IOError("%v", errors.Wrap(err, "open database file"))
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, common.IOError("%v", errors.Wrap(err, "stat database file"))
	}
	d.osFile = f
	d.file = f
	d.numPages = common.PageID(info.Size() / int64(pageSize))
	return d, common.OkStatus()
}

// PageSize returns the configured page size.
func (d *DiskManager) PageSize() int { return d.pageSize }

// Path returns the database file path.
func (d *DiskManager) Path() string { return d.path }

// NumPages returns the allocation counter.
func (d *DiskManager) NumPages() common.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numPages
}

// ReadPage reads page pid into out. Reading past the end of the file
// zero-fills the buffer.
func (d *DiskManager) ReadPage(pid common.PageID, out []byte) common.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pid < 0 {
		return common.InvalidArgument("invalid page id %d", pid)
	}
	if len(out) != d.pageSize {
		return common.InvalidArgument("buffer size %d does not match page size %d", len(out), d.pageSize)
	}
	offset := int64(pid) * int64(d.pageSize)
	n, err := d.file.ReadAt(d.scratch, offset)
	if err != nil && err != io.EOF {
		return common.IOError("%v", errors.Wrapf(err, "read page %d", pid))
	}
	// Short reads past EOF leave the tail zeroed.
	for i := n; i < d.pageSize; i++ {
		d.scratch[i] = 0
	}
	if d.compress && IsCompressedPage(d.scratch[:n]) {
		if !DecompressPage(d.scratch, out) {
			return common.Corruption("page %d failed decompression", pid)
		}
		return common.OkStatus()
	}
	copy(out, d.scratch)
	return common.OkStatus()
}

// WritePage writes page pid from in and flushes to the OS.
func (d *DiskManager) WritePage(pid common.PageID, in []byte) common.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pid < 0 {
		return common.InvalidArgument("invalid page id %d", pid)
	}
	if len(in) != d.pageSize {
		return common.InvalidArgument("buffer size %d does not match page size %d", len(in), d.pageSize)
	}
	offset := int64(pid) * int64(d.pageSize)
	buf := in
	if d.compress {
		if n, ok := CompressPage(in, d.scratch); ok {
			// Zero the slot tail so stale bytes never masquerade as data.
			for i := n; i < d.pageSize; i++ {
				d.scratch[i] = 0
			}
			buf = d.scratch
		}
	}
	if _, err := d.file.WriteAt(buf, offset); err != nil {
		return common.IOError("%v", errors.Wrapf(err, "write page %d", pid))
	}
	if pid >= d.numPages {
		d.numPages = pid + 1
	}
	return common.OkStatus()
}

// AllocatePage hands out the next page id. Deallocated pages are not
// reused in v1.
func (d *DiskManager) AllocatePage() common.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()
	pid := d.numPages
	d.numPages++
	return pid
}

// DeallocatePage is a no-op in v1; the id is simply abandoned.
func (d *DiskManager) DeallocatePage(pid common.PageID) common.Status {
	if pid < 0 {
		return common.InvalidArgument("invalid page id %d", pid)
	}
	return common.OkStatus()
}

// Sync fsyncs the database file.
func (d *DiskManager) Sync() common.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.osFile == nil {
		return common.OkStatus()
	}
	if err := d.osFile.Sync(); err != nil {
		return common.IOError("%v", errors.Wrap(err, "sync database file"))
	}
	return common.OkStatus()
}

// Close syncs and releases the file handle.
func (d *DiskManager) Close() common.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.osFile == nil {
		return common.OkStatus()
	}
	if err := d.osFile.Sync(); err != nil {
		return common.IOError("%v", errors.Wrap(err, "sync database file"))
	}
	if err := d.osFile.Close(); err != nil {
		return common.IOError("%v", errors.Wrap(err, "close database file"))
	}
	return common.OkStatus()
}
