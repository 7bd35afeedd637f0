package execution

import (
	"github.com/intellect4all/entropy/catalog"
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/storage"
)

// InsertExecutor owns a materialized list of tuples prepared by the
// caller (type coercion already applied) and inserts them all on the
// first Next. No tuples are emitted; the count is read via RowsInserted.
type InsertExecutor struct {
	table   *catalog.TableInfo
	indexes []*catalog.IndexInfo
	tuples  []*storage.Tuple

	inserted int
	done     bool
}

// NewInsertExecutor inserts tuples into table, maintaining indexes.
func NewInsertExecutor(table *catalog.TableInfo, indexes []*catalog.IndexInfo, tuples []*storage.Tuple) *InsertExecutor {
	return &InsertExecutor{table: table, indexes: indexes, tuples: tuples}
}

// RowsInserted returns the number of rows written.
func (e *InsertExecutor) RowsInserted() int { return e.inserted }

func (e *InsertExecutor) Init() common.Status {
	e.inserted = 0
	e.done = false
	return common.OkStatus()
}

func (e *InsertExecutor) Next() (*storage.Tuple, common.Status) {
	if e.done {
		return nil, common.OkStatus()
	}
	e.done = true
	for _, tuple := range e.tuples {
		if st := e.table.Heap.InsertTuple(tuple); !st.OK() {
			return nil, st
		}
		e.inserted++
		for _, idx := range e.indexes {
			key := tuple.Value(e.table.Schema, idx.ColumnIndex)
			if key.IsNull() {
				continue
			}
			if st := idx.Tree.Insert(key.AsInt(), tuple.RID()); !st.OK() && st.Code != common.CodeAlreadyExists {
				return nil, st
			}
		}
	}
	return nil, common.OkStatus()
}
