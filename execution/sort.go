package execution

import (
	"sort"

	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/storage"
)

// SortKey names one sort column by schema index and direction.
type SortKey struct {
	ColumnIndex int
	Ascending   bool
}

// SortExecutor drains its child in Init and yields tuples in sorted
// order. The sort is stable; NULLs order first for ASC and last for
// DESC.
type SortExecutor struct {
	child  Executor
	schema *common.Schema
	keys   []SortKey

	tuples []*storage.Tuple
	pos    int
}

// NewSortExecutor sorts child output by keys, compared left to right.
func NewSortExecutor(child Executor, schema *common.Schema, keys []SortKey) *SortExecutor {
	return &SortExecutor{child: child, schema: schema, keys: keys}
}

func (e *SortExecutor) Init() common.Status {
	if st := e.child.Init(); !st.OK() {
		return st
	}
	e.tuples = e.tuples[:0]
	e.pos = 0
	for {
		tuple, st := e.child.Next()
		if !st.OK() {
			return st
		}
		if tuple == nil {
			break
		}
		e.tuples = append(e.tuples, tuple)
	}
	sort.SliceStable(e.tuples, func(i, j int) bool {
		return e.less(e.tuples[i], e.tuples[j])
	})
	return common.OkStatus()
}

// less walks the sort keys left to right. NULLs place first under ASC
// and last under DESC.
func (e *SortExecutor) less(a, b *storage.Tuple) bool {
	for _, key := range e.keys {
		av := a.Value(e.schema, key.ColumnIndex)
		bv := b.Value(e.schema, key.ColumnIndex)
		switch {
		case av.IsNull() && bv.IsNull():
			continue
		case av.IsNull():
			return key.Ascending
		case bv.IsNull():
			return !key.Ascending
		}
		cmp, ok := common.CompareValues(av, bv)
		if !ok || cmp == 0 {
			continue
		}
		return (cmp < 0) == key.Ascending
	}
	return false
}

func (e *SortExecutor) Next() (*storage.Tuple, common.Status) {
	if e.pos >= len(e.tuples) {
		return nil, common.OkStatus()
	}
	tuple := e.tuples[e.pos]
	e.pos++
	return tuple, common.OkStatus()
}
