package storage

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/intellect4all/entropy/common"
)

// Page types stored in the generic header.
const (
	PageTypeInvalid       = 0
	PageTypeTable         = 1
	PageTypeBTreeInternal = 2
	PageTypeBTreeLeaf     = 3
	PageTypeHeader        = 4
	PageTypeFree          = 5
)

// Generic 32-byte page header, little-endian.
// Layout: [page_id(4)][page_type(1)][flags(1)][record_count(2)]
//         [free_space_offset(2)][free_space_end(2)][lsn(8)][checksum(4)]
//         [next_page_id(4)][prev_page_id(4)]
// The trailing two fields are the header's reserved bytes; the table heap
// uses them as sibling links.
const (
	offsetPageID          = 0
	offsetPageType        = 4
	offsetFlags           = 5
	offsetRecordCount     = 6
	offsetFreeSpaceOffset = 8
	offsetFreeSpaceEnd    = 10
	offsetLSN             = 12
	offsetChecksum        = 20
	offsetNextPageID      = 24
	offsetPrevPageID      = 28

	PageHeaderSize = common.PageHeaderSize
)

// Page is one fixed-size frame worth of data plus its in-memory state.
// The buffer pool owns every Page; borrowers hold it only while pinned.
type Page struct {
	data     []byte
	pinCount int
	dirty    bool
}

// NewPage allocates a zeroed page of the given size.
func NewPage(pageSize int) *Page {
	return &Page{data: make([]byte, pageSize)}
}

// Data returns the raw page bytes, header included.
func (p *Page) Data() []byte { return p.data }

// Size returns the page size in bytes.
func (p *Page) Size() int { return len(p.data) }

// Reset zeroes the page content and clears in-memory state.
func (p *Page) Reset() {
	for i := range p.data {
		p.data[i] = 0
	}
	p.pinCount = 0
	p.dirty = false
	p.SetPageID(common.InvalidPageID)
}

// PinCount returns the number of outstanding borrowers.
func (p *Page) PinCount() int { return p.pinCount }

// IsDirty reports whether the content differs from the disk image.
func (p *Page) IsDirty() bool { return p.dirty }

// SetDirty marks or clears the dirty flag.
func (p *Page) SetDirty(dirty bool) { p.dirty = dirty }

func (p *Page) PageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(p.data[offsetPageID:])))
}

func (p *Page) SetPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(p.data[offsetPageID:], uint32(id))
}

func (p *Page) PageType() uint8 { return p.data[offsetPageType] }

func (p *Page) SetPageType(t uint8) { p.data[offsetPageType] = t }

func (p *Page) RecordCount() uint16 {
	return binary.LittleEndian.Uint16(p.data[offsetRecordCount:])
}

func (p *Page) SetRecordCount(n uint16) {
	binary.LittleEndian.PutUint16(p.data[offsetRecordCount:], n)
}

func (p *Page) FreeSpaceOffset() uint16 {
	return binary.LittleEndian.Uint16(p.data[offsetFreeSpaceOffset:])
}

func (p *Page) SetFreeSpaceOffset(off uint16) {
	binary.LittleEndian.PutUint16(p.data[offsetFreeSpaceOffset:], off)
}

func (p *Page) FreeSpaceEnd() uint16 {
	return binary.LittleEndian.Uint16(p.data[offsetFreeSpaceEnd:])
}

func (p *Page) SetFreeSpaceEnd(end uint16) {
	binary.LittleEndian.PutUint16(p.data[offsetFreeSpaceEnd:], end)
}

func (p *Page) LSN() common.LSN {
	return common.LSN(binary.LittleEndian.Uint64(p.data[offsetLSN:]))
}

func (p *Page) SetLSN(lsn common.LSN) {
	binary.LittleEndian.PutUint64(p.data[offsetLSN:], uint64(lsn))
}

func (p *Page) NextPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(p.data[offsetNextPageID:])))
}

func (p *Page) SetNextPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(p.data[offsetNextPageID:], uint32(id))
}

func (p *Page) PrevPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(p.data[offsetPrevPageID:])))
}

func (p *Page) SetPrevPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(p.data[offsetPrevPageID:], uint32(id))
}

// UpdateChecksum recomputes the header checksum over the page content.
// The checksum field itself is zeroed during the computation.
func (p *Page) UpdateChecksum() {
	binary.LittleEndian.PutUint32(p.data[offsetChecksum:], 0)
	sum := uint32(xxhash.Sum64(p.data))
	binary.LittleEndian.PutUint32(p.data[offsetChecksum:], sum)
}

// VerifyChecksum reports whether the stored checksum matches the content.
// A zero checksum (never written) passes.
func (p *Page) VerifyChecksum() bool {
	stored := binary.LittleEndian.Uint32(p.data[offsetChecksum:])
	if stored == 0 {
		return true
	}
	binary.LittleEndian.PutUint32(p.data[offsetChecksum:], 0)
	sum := uint32(xxhash.Sum64(p.data))
	binary.LittleEndian.PutUint32(p.data[offsetChecksum:], stored)
	return sum == stored
}
