package execution

import (
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/parser"
	"github.com/intellect4all/entropy/storage"
)

// Executor is the volcano-style iterator every operator implements.
// Next returns a nil tuple once the operator is exhausted; a non-OK
// status signals a catastrophic error, not end-of-stream.
type Executor interface {
	Init() common.Status
	Next() (*storage.Tuple, common.Status)
}

// predicateTrue evaluates a predicate in three-valued logic; only an
// exact true passes. A nil predicate always passes.
func predicateTrue(pred parser.Expression, tuple *storage.Tuple, schema *common.Schema) bool {
	if pred == nil {
		return true
	}
	v := pred.Evaluate(tuple, schema)
	b, ok := v.TryBool()
	return ok && b
}

// derivedSchema copies columns for an operator's output, dropping NOT
// NULL constraints so null-extended join rows and projections always
// serialize.
func derivedSchema(cols []common.Column) *common.Schema {
	out := make([]common.Column, len(cols))
	copy(out, cols)
	for i := range out {
		out[i].Nullable = true
	}
	return common.NewSchema(out)
}

// concatSchemas joins two schemas side by side for join output.
func concatSchemas(left, right *common.Schema) *common.Schema {
	cols := make([]common.Column, 0, left.ColumnCount()+right.ColumnCount())
	cols = append(cols, left.Columns()...)
	cols = append(cols, right.Columns()...)
	return derivedSchema(cols)
}

// buildTuple serializes values against schema; serialization failures
// surface as a nil tuple and are skipped by callers per the per-tuple
// error policy.
func buildTuple(values []common.Value, schema *common.Schema) *storage.Tuple {
	tuple, st := storage.NewTuple(values, schema)
	if !st.OK() {
		return nil
	}
	return tuple
}
