package btree

import (
	"github.com/intellect4all/entropy/common"
)

// Iterator walks leaf entries in key order. It copies each entry on
// arrival and holds no page pin between Next calls.
type Iterator struct {
	tree   *BPlusTree
	pageID common.PageID
	index  int
	endKey int64
	ranged bool

	key   int64
	value common.RID
	valid bool
}

// Begin positions an iterator at the leftmost entry.
func (t *BPlusTree) Begin() *Iterator {
	t.mu.Lock()
	defer t.mu.Unlock()
	it := &Iterator{tree: t}
	if t.rootPageID == common.InvalidPageID {
		return it
	}
	pid := t.rootPageID
	for {
		page, st := t.pool.FetchPage(pid)
		if !st.OK() {
			return it
		}
		if (node{page}).isLeaf() {
			t.pool.UnpinPage(pid, false)
			break
		}
		next := asInternal(page).childAt(0)
		t.pool.UnpinPage(pid, false)
		pid = next
	}
	it.pageID = pid
	it.index = 0
	it.load()
	return it
}

// LowerBound positions an iterator at the first entry whose key >= lo.
func (t *BPlusTree) LowerBound(lo int64) *Iterator {
	t.mu.Lock()
	defer t.mu.Unlock()
	it := &Iterator{tree: t}
	if t.rootPageID == common.InvalidPageID {
		return it
	}
	page, st := t.findLeaf(lo)
	if !st.OK() {
		return it
	}
	leaf := asLeaf(page)
	it.pageID = page.PageID()
	it.index = leaf.findKeyIndex(lo)
	t.pool.UnpinPage(page.PageID(), false)
	it.load()
	return it
}

// RangeScan iterates keys in [lo, hi] inclusive.
func (t *BPlusTree) RangeScan(lo, hi int64) *Iterator {
	it := t.LowerBound(lo)
	it.endKey = hi
	it.ranged = true
	if it.valid && it.key > hi {
		it.valid = false
	}
	return it
}

// Valid reports whether the iterator references an entry.
func (it *Iterator) Valid() bool { return it.valid }

// Key returns the current key.
func (it *Iterator) Key() int64 { return it.key }

// Value returns the current RID.
func (it *Iterator) Value() common.RID { return it.value }

// Next advances to the following entry, crossing leaf links as needed.
func (it *Iterator) Next() {
	if !it.valid {
		return
	}
	it.index++
	it.load()
	if it.valid && it.ranged && it.key > it.endKey {
		it.valid = false
	}
}

// load materializes the entry at (pageID, index), following the sibling
// chain past exhausted leaves.
func (it *Iterator) load() {
	it.valid = false
	for it.pageID != common.InvalidPageID {
		page, st := it.tree.pool.FetchPage(it.pageID)
		if !st.OK() {
			return
		}
		leaf := asLeaf(page)
		if it.index < leaf.numKeys() {
			it.key = leaf.keyAt(it.index)
			it.value = leaf.valueAt(it.index)
			it.valid = true
			it.tree.pool.UnpinPage(page.PageID(), false)
			return
		}
		next := leaf.nextLeaf()
		it.tree.pool.UnpinPage(page.PageID(), false)
		it.pageID = next
		it.index = 0
	}
}
