package execution

import (
	"github.com/intellect4all/entropy/catalog"
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/parser"
	"github.com/intellect4all/entropy/storage"
)

// UpdateExecutor rebuilds each child tuple with the SET columns replaced
// by their evaluated expressions, coerced to the target column types,
// and writes it back in place. A migrating update does not report its
// new RID, so index entries for moved tuples can go stale.
type UpdateExecutor struct {
	child         Executor
	table         *catalog.TableInfo
	columnIndices []int
	values        []parser.Expression

	updated int
	done    bool
}

// NewUpdateExecutor updates the tuples yielded by child.
func NewUpdateExecutor(child Executor, table *catalog.TableInfo,
	columnIndices []int, values []parser.Expression) *UpdateExecutor {
	return &UpdateExecutor{child: child, table: table, columnIndices: columnIndices, values: values}
}

// RowsUpdated returns the number of rows rewritten.
func (e *UpdateExecutor) RowsUpdated() int { return e.updated }

func (e *UpdateExecutor) Init() common.Status {
	e.updated = 0
	e.done = false
	return e.child.Init()
}

func (e *UpdateExecutor) Next() (*storage.Tuple, common.Status) {
	if e.done {
		return nil, common.OkStatus()
	}
	e.done = true
	schema := e.table.Schema
	for {
		tuple, st := e.child.Next()
		if !st.OK() {
			return nil, st
		}
		if tuple == nil {
			return nil, common.OkStatus()
		}
		values := tuple.Values(schema)
		for i, colIdx := range e.columnIndices {
			v := e.values[i].Evaluate(tuple, schema)
			values[colIdx] = v.CastTo(schema.Column(colIdx).Type)
		}
		newTuple, st := storage.NewTuple(values, schema)
		if !st.OK() {
			// Per-tuple failure: skip, keep going.
			continue
		}
		if st := e.table.Heap.UpdateTuple(newTuple, tuple.RID()); st.OK() {
			e.updated++
		}
	}
}
