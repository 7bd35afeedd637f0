package storage

import (
	"encoding/binary"

	"github.com/intellect4all/entropy/common"
)

// Slot directory entry: [offset(2)][length(2)]. A zero offset marks a
// deleted slot; offsets are absolute within the page so zero can never
// address a record (the header occupies the first 32 bytes).
const slotSize = 4

// TablePage overlays slotted-record operations on a raw page. The slot
// directory grows upward right after the generic header; records grow
// downward from the page end. record_count in the header counts slots
// (deleted ones included) so free_space_offset stays derivable.
type TablePage struct {
	*Page
}

// AsTablePage wraps a page without re-initializing it.
func AsTablePage(p *Page) *TablePage { return &TablePage{Page: p} }

// InitTablePage formats p as an empty table page.
func InitTablePage(p *Page) *TablePage {
	tp := &TablePage{Page: p}
	p.SetPageType(PageTypeTable)
	p.SetRecordCount(0)
	p.SetFreeSpaceOffset(PageHeaderSize)
	p.SetFreeSpaceEnd(uint16(p.Size()))
	p.SetNextPageID(common.InvalidPageID)
	p.SetPrevPageID(common.InvalidPageID)
	return tp
}

// SlotCount returns the slot directory size, deleted slots included.
func (tp *TablePage) SlotCount() int { return int(tp.RecordCount()) }

func (tp *TablePage) slotBase(slot common.SlotID) int {
	return PageHeaderSize + int(slot)*slotSize
}

func (tp *TablePage) slotOffset(slot common.SlotID) uint16 {
	return binary.LittleEndian.Uint16(tp.Data()[tp.slotBase(slot):])
}

func (tp *TablePage) slotLength(slot common.SlotID) uint16 {
	return binary.LittleEndian.Uint16(tp.Data()[tp.slotBase(slot)+2:])
}

func (tp *TablePage) setSlot(slot common.SlotID, offset, length uint16) {
	base := tp.slotBase(slot)
	binary.LittleEndian.PutUint16(tp.Data()[base:], offset)
	binary.LittleEndian.PutUint16(tp.Data()[base+2:], length)
}

// FreeSpace returns the bytes between the slot directory and the record
// region.
func (tp *TablePage) FreeSpace() int {
	return int(tp.FreeSpaceEnd()) - int(tp.FreeSpaceOffset())
}

func (tp *TablePage) firstDeletedSlot() (common.SlotID, bool) {
	for i := 0; i < tp.SlotCount(); i++ {
		if tp.slotOffset(common.SlotID(i)) == 0 {
			return common.SlotID(i), true
		}
	}
	return common.InvalidSlotID, false
}

// CanFit reports whether a record of size bytes can be inserted.
func (tp *TablePage) CanFit(size int) bool {
	needed := size + slotSize
	if _, ok := tp.firstDeletedSlot(); ok {
		needed = size
	}
	return tp.FreeSpace() >= needed
}

// InsertRecord stores data in the page, reusing the first deleted slot
// before growing the directory. Returns the slot id, or false when the
// record does not fit.
func (tp *TablePage) InsertRecord(data []byte) (common.SlotID, bool) {
	size := len(data)
	slot, reuse := tp.firstDeletedSlot()
	needed := size
	if !reuse {
		needed += slotSize
	}
	if tp.FreeSpace() < needed {
		return common.InvalidSlotID, false
	}
	if !reuse {
		slot = common.SlotID(tp.SlotCount())
		tp.SetRecordCount(tp.RecordCount() + 1)
		tp.SetFreeSpaceOffset(tp.FreeSpaceOffset() + slotSize)
	}
	end := tp.FreeSpaceEnd() - uint16(size)
	copy(tp.Data()[end:], data)
	tp.SetFreeSpaceEnd(end)
	tp.setSlot(slot, end, uint16(size))
	return slot, true
}

// DeleteRecord marks a slot deleted. The record bytes become
// fragmentation reclaimed by Compact.
func (tp *TablePage) DeleteRecord(slot common.SlotID) bool {
	if int(slot) >= tp.SlotCount() || tp.slotOffset(slot) == 0 {
		return false
	}
	tp.setSlot(slot, 0, 0)
	return true
}

// UpdateRecord rewrites a record in place when the new data fits the old
// footprint (the slot keeps its old length; the gap is fragmentation).
// Larger records relocate within the page if space admits. Returns false
// when the slot is invalid or the page cannot hold the new data.
func (tp *TablePage) UpdateRecord(slot common.SlotID, data []byte) bool {
	if int(slot) >= tp.SlotCount() {
		return false
	}
	offset := tp.slotOffset(slot)
	length := tp.slotLength(slot)
	if offset == 0 {
		return false
	}
	size := len(data)
	if size <= int(length) {
		copy(tp.Data()[offset:], data)
		return true
	}
	if tp.FreeSpace() < size {
		return false
	}
	end := tp.FreeSpaceEnd() - uint16(size)
	copy(tp.Data()[end:], data)
	tp.SetFreeSpaceEnd(end)
	tp.setSlot(slot, end, uint16(size))
	return true
}

// GetRecord returns the record bytes for a slot, or nil for invalid or
// deleted slots.
func (tp *TablePage) GetRecord(slot common.SlotID) []byte {
	if int(slot) >= tp.SlotCount() {
		return nil
	}
	offset := tp.slotOffset(slot)
	if offset == 0 {
		return nil
	}
	length := tp.slotLength(slot)
	return tp.Data()[offset : offset+length]
}

// Compact rewrites surviving records contiguously against the page end.
// Slot ids are preserved; only record offsets move.
func (tp *TablePage) Compact() {
	type liveRecord struct {
		slot common.SlotID
		data []byte
	}
	var live []liveRecord
	for i := 0; i < tp.SlotCount(); i++ {
		slot := common.SlotID(i)
		if tp.slotOffset(slot) == 0 {
			continue
		}
		src := tp.GetRecord(slot)
		buf := make([]byte, len(src))
		copy(buf, src)
		live = append(live, liveRecord{slot: slot, data: buf})
	}
	end := uint16(tp.Size())
	for _, rec := range live {
		end -= uint16(len(rec.data))
		copy(tp.Data()[end:], rec.data)
		tp.setSlot(rec.slot, end, uint16(len(rec.data)))
	}
	tp.SetFreeSpaceEnd(end)
}
