package execution

import (
	"github.com/intellect4all/entropy/btree"
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/storage"
)

// IndexScanType selects how the index is traversed.
type IndexScanType int

const (
	IndexScanPoint IndexScanType = iota
	IndexScanRange
	IndexScanFull
)

// IndexScanExecutor pulls RIDs out of a B+-tree and resolves them
// against the heap. RIDs that no longer resolve (deleted tuples) are
// skipped silently.
type IndexScanExecutor struct {
	tree     *btree.BPlusTree
	heap     *storage.TableHeap
	schema   *common.Schema
	scanType IndexScanType
	startKey int64
	endKey   int64

	iter *btree.Iterator
	done bool
}

// NewIndexPointScan looks up a single key.
func NewIndexPointScan(tree *btree.BPlusTree, heap *storage.TableHeap, schema *common.Schema, key int64) *IndexScanExecutor {
	return &IndexScanExecutor{tree: tree, heap: heap, schema: schema,
		scanType: IndexScanPoint, startKey: key, endKey: key}
}

// NewIndexRangeScan iterates keys in [start, end].
func NewIndexRangeScan(tree *btree.BPlusTree, heap *storage.TableHeap, schema *common.Schema, start, end int64) *IndexScanExecutor {
	return &IndexScanExecutor{tree: tree, heap: heap, schema: schema,
		scanType: IndexScanRange, startKey: start, endKey: end}
}

// NewIndexFullScan iterates the whole index in key order.
func NewIndexFullScan(tree *btree.BPlusTree, heap *storage.TableHeap, schema *common.Schema) *IndexScanExecutor {
	return &IndexScanExecutor{tree: tree, heap: heap, schema: schema, scanType: IndexScanFull}
}

func (e *IndexScanExecutor) Init() common.Status {
	e.done = false
	switch e.scanType {
	case IndexScanPoint:
		e.iter = nil
	case IndexScanRange:
		e.iter = e.tree.RangeScan(e.startKey, e.endKey)
	case IndexScanFull:
		e.iter = e.tree.Begin()
	}
	return common.OkStatus()
}

func (e *IndexScanExecutor) Next() (*storage.Tuple, common.Status) {
	if e.scanType == IndexScanPoint {
		if e.done {
			return nil, common.OkStatus()
		}
		e.done = true
		rid, st := e.tree.Find(e.startKey)
		if !st.OK() {
			return nil, common.OkStatus()
		}
		tuple, st := e.heap.GetTuple(rid)
		if !st.OK() {
			return nil, common.OkStatus()
		}
		return tuple, common.OkStatus()
	}
	for e.iter.Valid() {
		rid := e.iter.Value()
		e.iter.Next()
		tuple, st := e.heap.GetTuple(rid)
		if st.OK() {
			return tuple, common.OkStatus()
		}
		// Stale index entry; the tuple was deleted underneath.
	}
	return nil, common.OkStatus()
}
