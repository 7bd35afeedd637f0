package storage

import (
	"github.com/intellect4all/entropy/common"
)

// TableHeap stores a table's rows in a doubly linked list of slotted
// pages. It is not internally thread-safe; Database.Execute runs one
// statement at a time under the database mutex.
type TableHeap struct {
	pool        *BufferPool
	firstPageID common.PageID
}

// NewTableHeap allocates an empty heap with one formatted table page.
func NewTableHeap(pool *BufferPool) (*TableHeap, common.Status) {
	page, st := pool.NewPage()
	if !st.OK() {
		return nil, st
	}
	InitTablePage(page)
	heap := &TableHeap{pool: pool, firstPageID: page.PageID()}
	pool.UnpinPage(page.PageID(), true)
	return heap, common.OkStatus()
}

// OpenTableHeap re-attaches to an existing heap rooted at firstPageID.
func OpenTableHeap(pool *BufferPool, firstPageID common.PageID) *TableHeap {
	return &TableHeap{pool: pool, firstPageID: firstPageID}
}

// FirstPageID returns the head of the page chain.
func (h *TableHeap) FirstPageID() common.PageID { return h.firstPageID }

// BufferPool returns the pool this heap allocates through.
func (h *TableHeap) BufferPool() *BufferPool { return h.pool }

// InsertTuple places the tuple on the first page that fits, appending a
// new page when none does. The tuple's RID is set on success.
func (h *TableHeap) InsertTuple(tuple *Tuple) common.Status {
	if tuple.Size()+slotSize > h.pool.disk.PageSize()-PageHeaderSize {
		return common.InvalidArgument("tuple size %d exceeds page capacity", tuple.Size())
	}
	pid := h.firstPageID
	for {
		page, st := h.pool.FetchPage(pid)
		if !st.OK() {
			return st
		}
		tp := AsTablePage(page)
		if slot, ok := tp.InsertRecord(tuple.Data()); ok {
			tuple.SetRID(common.RID{PageID: pid, SlotID: slot})
			h.pool.UnpinPage(pid, true)
			return common.OkStatus()
		}
		next := tp.NextPageID()
		if next == common.InvalidPageID {
			// Tail reached: allocate, link, insert there.
			newPage, st := h.pool.NewPage()
			if !st.OK() {
				h.pool.UnpinPage(pid, false)
				return st
			}
			newTP := InitTablePage(newPage)
			newTP.SetPrevPageID(pid)
			tp.SetNextPageID(newPage.PageID())
			h.pool.UnpinPage(pid, true)
			slot, ok := newTP.InsertRecord(tuple.Data())
			if !ok {
				h.pool.UnpinPage(newPage.PageID(), true)
				return common.Internal("tuple does not fit an empty page")
			}
			tuple.SetRID(common.RID{PageID: newPage.PageID(), SlotID: slot})
			h.pool.UnpinPage(newPage.PageID(), true)
			return common.OkStatus()
		}
		h.pool.UnpinPage(pid, false)
		pid = next
	}
}

// GetTuple materializes the tuple at rid. Deleted or invalid slots report
// NotFound.
func (h *TableHeap) GetTuple(rid common.RID) (*Tuple, common.Status) {
	if !rid.IsValid() {
		return nil, common.InvalidArgument("invalid rid")
	}
	page, st := h.pool.FetchPage(rid.PageID)
	if !st.OK() {
		return nil, st
	}
	tp := AsTablePage(page)
	record := tp.GetRecord(rid.SlotID)
	if record == nil {
		h.pool.UnpinPage(rid.PageID, false)
		return nil, common.NotFound("no tuple at (%d, %d)", rid.PageID, rid.SlotID)
	}
	data := make([]byte, len(record))
	copy(data, record)
	h.pool.UnpinPage(rid.PageID, false)
	return NewTupleFromBytes(data, rid), common.OkStatus()
}

// DeleteTuple marks the slot at rid deleted.
func (h *TableHeap) DeleteTuple(rid common.RID) common.Status {
	if !rid.IsValid() {
		return common.InvalidArgument("invalid rid")
	}
	page, st := h.pool.FetchPage(rid.PageID)
	if !st.OK() {
		return st
	}
	tp := AsTablePage(page)
	if !tp.DeleteRecord(rid.SlotID) {
		h.pool.UnpinPage(rid.PageID, false)
		return common.NotFound("no tuple at (%d, %d)", rid.PageID, rid.SlotID)
	}
	h.pool.UnpinPage(rid.PageID, true)
	return common.OkStatus()
}

// UpdateTuple rewrites the tuple at rid. When the page cannot hold the
// new version, the heap deletes and re-inserts elsewhere; the new RID is
// set on tuple.
func (h *TableHeap) UpdateTuple(tuple *Tuple, rid common.RID) common.Status {
	if !rid.IsValid() {
		return common.InvalidArgument("invalid rid")
	}
	page, st := h.pool.FetchPage(rid.PageID)
	if !st.OK() {
		return st
	}
	tp := AsTablePage(page)
	if tp.GetRecord(rid.SlotID) == nil {
		h.pool.UnpinPage(rid.PageID, false)
		return common.NotFound("no tuple at (%d, %d)", rid.PageID, rid.SlotID)
	}
	if tp.UpdateRecord(rid.SlotID, tuple.Data()) {
		tuple.SetRID(rid)
		h.pool.UnpinPage(rid.PageID, true)
		return common.OkStatus()
	}
	// Overflow: migrate to another page.
	tp.DeleteRecord(rid.SlotID)
	h.pool.UnpinPage(rid.PageID, true)
	return h.InsertTuple(tuple)
}

// Iterator returns a TableIterator positioned at the first live tuple.
func (h *TableHeap) Iterator() *TableIterator {
	it := &TableIterator{heap: h, rid: common.RID{PageID: h.firstPageID, SlotID: 0}}
	it.advanceToLive()
	return it
}
