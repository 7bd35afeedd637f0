package execution

import (
	"strings"

	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/parser"
	"github.com/intellect4all/entropy/storage"
)

// AggregateType enumerates the supported aggregate functions.
type AggregateType int

const (
	AggCountStar AggregateType = iota
	AggCount
	AggSum
	AggAvg
	AggMin
	AggMax
)

func (a AggregateType) String() string {
	switch a {
	case AggCountStar:
		return "COUNT(*)"
	case AggCount:
		return "COUNT"
	case AggSum:
		return "SUM"
	case AggAvg:
		return "AVG"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	}
	return "UNKNOWN"
}

// Aggregate pairs a function with its argument expression (nil for
// COUNT(*)).
type Aggregate struct {
	Type AggregateType
	Arg  parser.Expression
}

// outputType returns the aggregate's result type. SUM widens: integer
// family to BIGINT, floats to DOUBLE.
func (a Aggregate) outputType() common.TypeID {
	switch a.Type {
	case AggCountStar, AggCount:
		return common.TypeBigInt
	case AggAvg:
		return common.TypeDouble
	case AggSum:
		if a.Arg != nil && common.IsIntegerFamily(a.Arg.ResultType()) {
			return common.TypeBigInt
		}
		return common.TypeDouble
	default:
		if a.Arg != nil {
			return a.Arg.ResultType()
		}
		return common.TypeBigInt
	}
}

// accumulator is one aggregate's running state within a group.
type accumulator struct {
	count    int64
	sumInt   int64
	sumFloat float64
	minVal   common.Value
	maxVal   common.Value
	hasValue bool
}

// aggGroup holds a group's key values and accumulators.
type aggGroup struct {
	keys []common.Value
	accs []accumulator
}

// AggregationExecutor performs single-pass hash aggregation. Blocking:
// the child is drained in Init.
type AggregationExecutor struct {
	child      Executor
	schema     *common.Schema
	groupBys   []parser.Expression
	aggregates []Aggregate

	outSchema *common.Schema
	groups    []*aggGroup
	index     map[string]int
	pos       int
}

// NewAggregationExecutor groups child tuples by groupBys (possibly
// empty) and folds each aggregate.
func NewAggregationExecutor(child Executor, schema *common.Schema,
	groupBys []parser.Expression, aggregates []Aggregate) *AggregationExecutor {
	cols := make([]common.Column, 0, len(groupBys)+len(aggregates))
	for i, g := range groupBys {
		name := "group_" + string(rune('a'+i))
		if ref, ok := g.(*parser.ColumnRefExpr); ok {
			name = ref.ColumnName
		}
		cols = append(cols, common.Column{Name: name, Type: g.ResultType(), Nullable: true})
	}
	for _, a := range aggregates {
		cols = append(cols, common.Column{
			Name:     strings.ToLower(a.Type.String()),
			Type:     a.outputType(),
			Length:   common.TypeSize(a.outputType()),
			Nullable: true,
		})
	}
	for i := range cols {
		if cols[i].Length == 0 && !common.IsVariableLength(cols[i].Type) {
			cols[i].Length = common.TypeSize(cols[i].Type)
		}
		if common.IsVariableLength(cols[i].Type) && cols[i].Length == 0 {
			cols[i].Length = common.DefaultVarcharLength
		}
	}
	return &AggregationExecutor{
		child:      child,
		schema:     schema,
		groupBys:   groupBys,
		aggregates: aggregates,
		outSchema:  common.NewSchema(cols),
	}
}

// OutputSchema returns group-by columns followed by aggregate columns.
func (e *AggregationExecutor) OutputSchema() *common.Schema { return e.outSchema }

func (e *AggregationExecutor) Init() common.Status {
	if st := e.child.Init(); !st.OK() {
		return st
	}
	e.groups = nil
	e.index = make(map[string]int)
	e.pos = 0
	for {
		tuple, st := e.child.Next()
		if !st.OK() {
			return st
		}
		if tuple == nil {
			break
		}
		e.consume(tuple)
	}
	if len(e.groups) == 0 && len(e.groupBys) == 0 {
		// Empty input with no grouping still yields one row.
		e.groups = append(e.groups, &aggGroup{accs: make([]accumulator, len(e.aggregates))})
	}
	return common.OkStatus()
}

func (e *AggregationExecutor) consume(tuple *storage.Tuple) {
	keys := make([]common.Value, len(e.groupBys))
	var kb strings.Builder
	for i, g := range e.groupBys {
		keys[i] = g.Evaluate(tuple, e.schema)
		if keys[i].IsNull() {
			kb.WriteString("\x00N")
		} else {
			kb.WriteByte(byte(keys[i].Type()))
			kb.WriteString(keys[i].String())
		}
		kb.WriteByte(0x1f)
	}
	key := kb.String()
	idx, ok := e.index[key]
	if !ok {
		idx = len(e.groups)
		e.index[key] = idx
		e.groups = append(e.groups, &aggGroup{
			keys: keys,
			accs: make([]accumulator, len(e.aggregates)),
		})
	}
	group := e.groups[idx]
	for i, agg := range e.aggregates {
		acc := &group.accs[i]
		if agg.Type == AggCountStar {
			acc.count++
			continue
		}
		v := agg.Arg.Evaluate(tuple, e.schema)
		if v.IsNull() {
			continue
		}
		switch agg.Type {
		case AggCount:
			acc.count++
		case AggSum, AggAvg:
			acc.count++
			if i64, ok := v.TryInt(); ok {
				acc.sumInt += i64
			}
			if f, ok := v.TryFloat(); ok {
				acc.sumFloat += f
			}
			acc.hasValue = true
		case AggMin:
			if !acc.hasValue {
				acc.minVal = v
				acc.hasValue = true
			} else if cmp, ok := common.CompareValues(v, acc.minVal); ok && cmp < 0 {
				acc.minVal = v
			}
		case AggMax:
			if !acc.hasValue {
				acc.maxVal = v
				acc.hasValue = true
			} else if cmp, ok := common.CompareValues(v, acc.maxVal); ok && cmp > 0 {
				acc.maxVal = v
			}
		}
	}
}

// finalize renders one aggregate's output value.
func (e *AggregationExecutor) finalize(agg Aggregate, acc accumulator) common.Value {
	switch agg.Type {
	case AggCountStar, AggCount:
		return common.NewBigInt(acc.count)
	case AggSum:
		if !acc.hasValue {
			return common.NewNull()
		}
		if agg.outputType() == common.TypeBigInt {
			return common.NewBigInt(acc.sumInt)
		}
		return common.NewDouble(acc.sumFloat)
	case AggAvg:
		if !acc.hasValue || acc.count == 0 {
			return common.NewNull()
		}
		return common.NewDouble(acc.sumFloat / float64(acc.count))
	case AggMin:
		if !acc.hasValue {
			return common.NewNull()
		}
		return acc.minVal
	case AggMax:
		if !acc.hasValue {
			return common.NewNull()
		}
		return acc.maxVal
	}
	return common.NewNull()
}

func (e *AggregationExecutor) Next() (*storage.Tuple, common.Status) {
	for e.pos < len(e.groups) {
		group := e.groups[e.pos]
		e.pos++
		values := make([]common.Value, 0, e.outSchema.ColumnCount())
		values = append(values, group.keys...)
		for i, agg := range e.aggregates {
			values = append(values, e.finalize(agg, group.accs[i]))
		}
		if out := buildTuple(values, e.outSchema); out != nil {
			return out, common.OkStatus()
		}
	}
	return nil, common.OkStatus()
}
