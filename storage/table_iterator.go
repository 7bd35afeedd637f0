package storage

import (
	"github.com/intellect4all/entropy/common"
)

// TableIterator walks a heap in (page, slot) order, skipping deleted
// slots and crossing pages via the next-page link. It copies each tuple's
// bytes as it lands on it, so no page pin survives a yield.
type TableIterator struct {
	heap    *TableHeap
	rid     common.RID
	current *Tuple
}

// Valid reports whether the iterator references a tuple.
func (it *TableIterator) Valid() bool { return it.current != nil }

// Tuple returns the materialized tuple at the current position.
func (it *TableIterator) Tuple() *Tuple { return it.current }

// RID returns the current position; invalid once exhausted.
func (it *TableIterator) RID() common.RID {
	if it.current == nil {
		return common.InvalidRID()
	}
	return it.rid
}

// Next advances to the following live tuple.
func (it *TableIterator) Next() {
	if it.current == nil {
		return
	}
	it.rid.SlotID++
	it.advanceToLive()
}

// advanceToLive settles the iterator on the first live slot at or after
// the current position.
func (it *TableIterator) advanceToLive() {
	it.current = nil
	for it.rid.PageID != common.InvalidPageID {
		page, st := it.heap.pool.FetchPage(it.rid.PageID)
		if !st.OK() {
			it.rid = common.InvalidRID()
			return
		}
		tp := AsTablePage(page)
		slots := tp.SlotCount()
		for int(it.rid.SlotID) < slots {
			record := tp.GetRecord(it.rid.SlotID)
			if record != nil {
				data := make([]byte, len(record))
				copy(data, record)
				it.current = NewTupleFromBytes(data, it.rid)
				it.heap.pool.UnpinPage(it.rid.PageID, false)
				return
			}
			it.rid.SlotID++
		}
		next := tp.NextPageID()
		it.heap.pool.UnpinPage(it.rid.PageID, false)
		it.rid = common.RID{PageID: next, SlotID: 0}
	}
	it.rid = common.InvalidRID()
}
