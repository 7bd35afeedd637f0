package execution

import (
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/storage"
)

// LimitExecutor skips the first offset tuples and then emits at most
// limit tuples. Pure streaming; nothing is materialized.
type LimitExecutor struct {
	child   Executor
	limit   int64 // negative: unlimited
	offset  int64
	skipped int64
	emitted int64
}

// NewLimitExecutor bounds child's output. A negative limit means no
// bound.
func NewLimitExecutor(child Executor, limit, offset int64) *LimitExecutor {
	return &LimitExecutor{child: child, limit: limit, offset: offset}
}

func (e *LimitExecutor) Init() common.Status {
	e.skipped = 0
	e.emitted = 0
	return e.child.Init()
}

func (e *LimitExecutor) Next() (*storage.Tuple, common.Status) {
	if e.limit >= 0 && e.emitted >= e.limit {
		return nil, common.OkStatus()
	}
	for {
		tuple, st := e.child.Next()
		if !st.OK() || tuple == nil {
			return nil, st
		}
		if e.skipped < e.offset {
			e.skipped++
			continue
		}
		e.emitted++
		return tuple, common.OkStatus()
	}
}
