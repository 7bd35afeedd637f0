package execution

import (
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/parser"
	"github.com/intellect4all/entropy/storage"
)

// FilterExecutor passes through child tuples whose predicate evaluates
// to exactly true.
type FilterExecutor struct {
	child     Executor
	schema    *common.Schema
	predicate parser.Expression
}

// NewFilterExecutor wraps child with a predicate over schema.
func NewFilterExecutor(child Executor, schema *common.Schema, predicate parser.Expression) *FilterExecutor {
	return &FilterExecutor{child: child, schema: schema, predicate: predicate}
}

func (e *FilterExecutor) Init() common.Status {
	return e.child.Init()
}

func (e *FilterExecutor) Next() (*storage.Tuple, common.Status) {
	for {
		tuple, st := e.child.Next()
		if !st.OK() || tuple == nil {
			return nil, st
		}
		if predicateTrue(e.predicate, tuple, e.schema) {
			return tuple, common.OkStatus()
		}
	}
}
