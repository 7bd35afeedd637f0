package execution

import (
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/storage"
)

// ProjectionExecutor narrows each inbound tuple to the selected column
// indices. The output schema is fixed at construction.
type ProjectionExecutor struct {
	child        Executor
	inputSchema  *common.Schema
	outputSchema *common.Schema
	indices      []int
}

// NewProjectionExecutor projects the given input column indices.
func NewProjectionExecutor(child Executor, inputSchema *common.Schema, indices []int) *ProjectionExecutor {
	cols := make([]common.Column, len(indices))
	for i, idx := range indices {
		cols[i] = inputSchema.Column(idx)
	}
	return &ProjectionExecutor{
		child:        child,
		inputSchema:  inputSchema,
		outputSchema: derivedSchema(cols),
		indices:      indices,
	}
}

// OutputSchema returns the projected schema.
func (e *ProjectionExecutor) OutputSchema() *common.Schema { return e.outputSchema }

func (e *ProjectionExecutor) Init() common.Status {
	return e.child.Init()
}

func (e *ProjectionExecutor) Next() (*storage.Tuple, common.Status) {
	for {
		tuple, st := e.child.Next()
		if !st.OK() || tuple == nil {
			return nil, st
		}
		values := make([]common.Value, len(e.indices))
		for i, idx := range e.indices {
			values[i] = tuple.Value(e.inputSchema, idx)
		}
		out := buildTuple(values, e.outputSchema)
		if out == nil {
			continue
		}
		out.SetRID(tuple.RID())
		return out, common.OkStatus()
	}
}
