package execution

import (
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/parser"
	"github.com/intellect4all/entropy/storage"
)

// NestedLoopJoinExecutor joins two children by re-initializing the inner
// child for every outer tuple. LEFT emits a null-extended row when an
// outer tuple matched nothing. RIGHT materializes the right side with a
// matched bit per row and emits unmatched rows null-extended after the
// outer side is exhausted. CROSS ignores the condition.
type NestedLoopJoinExecutor struct {
	joinType    parser.JoinType
	outer       Executor
	inner       Executor
	leftSchema  *common.Schema
	rightSchema *common.Schema
	outSchema   *common.Schema
	condition   parser.Expression

	outerTuple   *storage.Tuple
	outerMatched bool

	// RIGHT join state.
	rightRows    []*storage.Tuple
	rightMatched []bool
	innerPos     int
	drainPos     int
	outerDone    bool
}

// NewNestedLoopJoinExecutor builds a join of the given type. condition
// is evaluated over the concatenated (left, right) tuple; nil for CROSS.
func NewNestedLoopJoinExecutor(joinType parser.JoinType, outer, inner Executor,
	leftSchema, rightSchema *common.Schema, condition parser.Expression) *NestedLoopJoinExecutor {
	return &NestedLoopJoinExecutor{
		joinType:    joinType,
		outer:       outer,
		inner:       inner,
		leftSchema:  leftSchema,
		rightSchema: rightSchema,
		outSchema:   concatSchemas(leftSchema, rightSchema),
		condition:   condition,
	}
}

// OutputSchema returns the concatenated schema.
func (e *NestedLoopJoinExecutor) OutputSchema() *common.Schema { return e.outSchema }

func (e *NestedLoopJoinExecutor) Init() common.Status {
	if st := e.outer.Init(); !st.OK() {
		return st
	}
	e.outerTuple = nil
	e.outerMatched = false
	e.outerDone = false
	e.rightRows = nil
	e.rightMatched = nil
	e.innerPos = 0
	e.drainPos = 0
	if e.joinType == parser.JoinRight {
		// The inner child is rebuilt per outer tuple, so unmatched right
		// rows can only be tracked against a materialized copy.
		if st := e.inner.Init(); !st.OK() {
			return st
		}
		for {
			tuple, st := e.inner.Next()
			if !st.OK() {
				return st
			}
			if tuple == nil {
				break
			}
			e.rightRows = append(e.rightRows, tuple)
		}
		e.rightMatched = make([]bool, len(e.rightRows))
	}
	return common.OkStatus()
}

// concat builds the joined output row; nil on either side null-extends.
func (e *NestedLoopJoinExecutor) concat(left, right *storage.Tuple) *storage.Tuple {
	values := make([]common.Value, 0, e.outSchema.ColumnCount())
	if left != nil {
		values = append(values, left.Values(e.leftSchema)...)
	} else {
		for i := 0; i < e.leftSchema.ColumnCount(); i++ {
			values = append(values, common.NewNull())
		}
	}
	if right != nil {
		values = append(values, right.Values(e.rightSchema)...)
	} else {
		for i := 0; i < e.rightSchema.ColumnCount(); i++ {
			values = append(values, common.NewNull())
		}
	}
	return buildTuple(values, e.outSchema)
}

// matches evaluates the join condition over a concatenated candidate.
func (e *NestedLoopJoinExecutor) matches(joined *storage.Tuple) bool {
	if e.joinType == parser.JoinCross || e.condition == nil {
		return true
	}
	return predicateTrue(e.condition, joined, e.outSchema)
}

func (e *NestedLoopJoinExecutor) Next() (*storage.Tuple, common.Status) {
	if e.joinType == parser.JoinRight {
		return e.nextRight()
	}
	for {
		if e.outerTuple == nil {
			tuple, st := e.outer.Next()
			if !st.OK() {
				return nil, st
			}
			if tuple == nil {
				return nil, common.OkStatus()
			}
			e.outerTuple = tuple
			e.outerMatched = false
			if st := e.inner.Init(); !st.OK() {
				return nil, st
			}
		}
		for {
			inner, st := e.inner.Next()
			if !st.OK() {
				return nil, st
			}
			if inner == nil {
				break
			}
			joined := e.concat(e.outerTuple, inner)
			if joined == nil {
				continue
			}
			if e.matches(joined) {
				e.outerMatched = true
				return joined, common.OkStatus()
			}
		}
		outer := e.outerTuple
		matched := e.outerMatched
		e.outerTuple = nil
		if e.joinType == parser.JoinLeft && !matched {
			if joined := e.concat(outer, nil); joined != nil {
				return joined, common.OkStatus()
			}
		}
	}
}

// nextRight probes the materialized right rows per outer tuple, then
// drains unmatched right rows null-extended.
func (e *NestedLoopJoinExecutor) nextRight() (*storage.Tuple, common.Status) {
	for !e.outerDone {
		if e.outerTuple == nil {
			tuple, st := e.outer.Next()
			if !st.OK() {
				return nil, st
			}
			if tuple == nil {
				e.outerDone = true
				break
			}
			e.outerTuple = tuple
			e.innerPos = 0
		}
		for e.innerPos < len(e.rightRows) {
			idx := e.innerPos
			e.innerPos++
			joined := e.concat(e.outerTuple, e.rightRows[idx])
			if joined == nil {
				continue
			}
			if e.matches(joined) {
				e.rightMatched[idx] = true
				return joined, common.OkStatus()
			}
		}
		e.outerTuple = nil
	}
	for e.drainPos < len(e.rightRows) {
		idx := e.drainPos
		e.drainPos++
		if e.rightMatched[idx] {
			continue
		}
		if joined := e.concat(nil, e.rightRows[idx]); joined != nil {
			return joined, common.OkStatus()
		}
	}
	return nil, common.OkStatus()
}
