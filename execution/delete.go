package execution

import (
	"github.com/intellect4all/entropy/catalog"
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/storage"
)

// DeleteExecutor deletes every tuple yielded by its child and counts
// successes.
type DeleteExecutor struct {
	child   Executor
	table   *catalog.TableInfo
	indexes []*catalog.IndexInfo

	deleted int
	done    bool
}

// NewDeleteExecutor deletes child's tuples from table, maintaining
// indexes.
func NewDeleteExecutor(child Executor, table *catalog.TableInfo, indexes []*catalog.IndexInfo) *DeleteExecutor {
	return &DeleteExecutor{child: child, table: table, indexes: indexes}
}

// RowsDeleted returns the number of rows removed.
func (e *DeleteExecutor) RowsDeleted() int { return e.deleted }

func (e *DeleteExecutor) Init() common.Status {
	e.deleted = 0
	e.done = false
	return e.child.Init()
}

func (e *DeleteExecutor) Next() (*storage.Tuple, common.Status) {
	if e.done {
		return nil, common.OkStatus()
	}
	e.done = true
	for {
		tuple, st := e.child.Next()
		if !st.OK() {
			return nil, st
		}
		if tuple == nil {
			return nil, common.OkStatus()
		}
		if st := e.table.Heap.DeleteTuple(tuple.RID()); !st.OK() {
			continue
		}
		e.deleted++
		for _, idx := range e.indexes {
			key := tuple.Value(e.table.Schema, idx.ColumnIndex)
			if key.IsNull() {
				continue
			}
			_ = idx.Tree.Remove(key.AsInt())
		}
	}
}
