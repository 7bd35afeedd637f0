package execution

import (
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/parser"
	"github.com/intellect4all/entropy/storage"
)

// HashJoinExecutor equi-joins on one key expression per side. The left
// child is the build side, drained into a multimap in Init; the right
// child probes in Next. NULL keys never match. LEFT emits null-extended
// rows for unmatched probe tuples; RIGHT drains unmatched build tuples
// null-extended after the probe side is exhausted.
type HashJoinExecutor struct {
	joinType    parser.JoinType
	build       Executor
	probe       Executor
	buildSchema *common.Schema
	probeSchema *common.Schema
	outSchema   *common.Schema
	buildKey    parser.Expression
	probeKey    parser.Expression

	table     map[string][]int
	buildRows []*storage.Tuple
	matched   []bool

	pending  []*storage.Tuple
	drainPos int
}

// NewHashJoinExecutor joins build (left) and probe (right) children on
// equality of their key expressions.
func NewHashJoinExecutor(joinType parser.JoinType, build, probe Executor,
	buildSchema, probeSchema *common.Schema, buildKey, probeKey parser.Expression) *HashJoinExecutor {
	return &HashJoinExecutor{
		joinType:    joinType,
		build:       build,
		probe:       probe,
		buildSchema: buildSchema,
		probeSchema: probeSchema,
		outSchema:   concatSchemas(buildSchema, probeSchema),
		buildKey:    buildKey,
		probeKey:    probeKey,
	}
}

// OutputSchema returns the concatenated schema.
func (e *HashJoinExecutor) OutputSchema() *common.Schema { return e.outSchema }

// hashKey renders a join key for map lookup; the type tag keeps 1 and
// "1" distinct. NULL keys return false.
func hashKey(v common.Value) (string, bool) {
	if v.IsNull() {
		return "", false
	}
	return string(rune(v.Type())) + v.String(), true
}

func (e *HashJoinExecutor) Init() common.Status {
	if st := e.build.Init(); !st.OK() {
		return st
	}
	if st := e.probe.Init(); !st.OK() {
		return st
	}
	e.table = make(map[string][]int)
	e.buildRows = nil
	e.matched = nil
	e.pending = nil
	e.drainPos = 0
	for {
		tuple, st := e.build.Next()
		if !st.OK() {
			return st
		}
		if tuple == nil {
			break
		}
		idx := len(e.buildRows)
		e.buildRows = append(e.buildRows, tuple)
		key := e.buildKey.Evaluate(tuple, e.buildSchema)
		if k, ok := hashKey(key); ok {
			e.table[k] = append(e.table[k], idx)
		}
	}
	e.matched = make([]bool, len(e.buildRows))
	return common.OkStatus()
}

func (e *HashJoinExecutor) concat(build, probe *storage.Tuple) *storage.Tuple {
	values := make([]common.Value, 0, e.outSchema.ColumnCount())
	if build != nil {
		values = append(values, build.Values(e.buildSchema)...)
	} else {
		for i := 0; i < e.buildSchema.ColumnCount(); i++ {
			values = append(values, common.NewNull())
		}
	}
	if probe != nil {
		values = append(values, probe.Values(e.probeSchema)...)
	} else {
		for i := 0; i < e.probeSchema.ColumnCount(); i++ {
			values = append(values, common.NewNull())
		}
	}
	return buildTuple(values, e.outSchema)
}

func (e *HashJoinExecutor) Next() (*storage.Tuple, common.Status) {
	for {
		if len(e.pending) > 0 {
			out := e.pending[0]
			e.pending = e.pending[1:]
			return out, common.OkStatus()
		}
		probe, st := e.probe.Next()
		if !st.OK() {
			return nil, st
		}
		if probe == nil {
			break
		}
		key := e.probeKey.Evaluate(probe, e.probeSchema)
		k, ok := hashKey(key)
		if !ok {
			if e.joinType == parser.JoinLeft {
				if joined := e.concat(nil, probe); joined != nil {
					return joined, common.OkStatus()
				}
			}
			continue
		}
		indices := e.table[k]
		if len(indices) == 0 {
			if e.joinType == parser.JoinLeft {
				if joined := e.concat(nil, probe); joined != nil {
					return joined, common.OkStatus()
				}
			}
			continue
		}
		for _, idx := range indices {
			e.matched[idx] = true
			if joined := e.concat(e.buildRows[idx], probe); joined != nil {
				e.pending = append(e.pending, joined)
			}
		}
	}
	if e.joinType == parser.JoinRight {
		for e.drainPos < len(e.buildRows) {
			idx := e.drainPos
			e.drainPos++
			if e.matched[idx] {
				continue
			}
			if joined := e.concat(e.buildRows[idx], nil); joined != nil {
				return joined, common.OkStatus()
			}
		}
	}
	return nil, common.OkStatus()
}
