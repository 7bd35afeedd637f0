package parser

import (
	"github.com/intellect4all/entropy/catalog"
	"github.com/intellect4all/entropy/common"
)

// Binder resolves statement names against the catalog and assigns each
// column reference its index and type.
type Binder struct {
	catalog *catalog.Catalog
}

// NewBinder builds a binder over cat.
func NewBinder(cat *catalog.Catalog) *Binder {
	return &Binder{catalog: cat}
}

// BoundJoin is a join clause with its table resolved and condition bound
// against the concatenated schema.
type BoundJoin struct {
	Type  JoinType
	Table *catalog.TableInfo
	On    Expression
}

// BoundSelect carries everything execution needs for a SELECT.
type BoundSelect struct {
	Table         *catalog.TableInfo
	Joins         []BoundJoin
	OutputSchema  *common.Schema // concatenated schema across joins
	SelectAll     bool
	ColumnIndices []int
	Predicate     Expression
}

// BoundInsert maps each VALUES position to its target column.
type BoundInsert struct {
	Table         *catalog.TableInfo
	ColumnIndices []int
}

// BoundUpdate carries resolved SET targets and bound value expressions.
type BoundUpdate struct {
	Table         *catalog.TableInfo
	ColumnIndices []int
	Values        []Expression
	Predicate     Expression
}

// BoundDelete carries the resolved target and bound predicate.
type BoundDelete struct {
	Table     *catalog.TableInfo
	Predicate Expression
}

// tableScope resolves (qualifier, column) pairs against the concatenated
// schema of one or more tables.
type tableScope struct {
	tables  []*catalog.TableInfo
	offsets []int
}

func newTableScope(tables ...*catalog.TableInfo) *tableScope {
	s := &tableScope{tables: tables, offsets: make([]int, len(tables))}
	off := 0
	for i, t := range tables {
		s.offsets[i] = off
		off += t.Schema.ColumnCount()
	}
	return s
}

// resolve returns the combined index and column for a reference, or
// -1 when unknown. Unqualified names match the first table declaring
// them, in join order.
func (s *tableScope) resolve(qualifier, name string) (int, common.Column) {
	for i, t := range s.tables {
		if qualifier != "" && t.Name != qualifier {
			continue
		}
		if idx := t.Schema.ColumnIndex(name); idx >= 0 {
			return s.offsets[i] + idx, t.Schema.Column(idx)
		}
	}
	return -1, common.Column{}
}

// combinedSchema concatenates the member schemas in order.
func (s *tableScope) combinedSchema() *common.Schema {
	if len(s.tables) == 1 {
		return s.tables[0].Schema
	}
	var cols []common.Column
	for _, t := range s.tables {
		cols = append(cols, t.Schema.Columns()...)
	}
	return common.NewSchema(cols)
}

// bindExpression assigns indices and types to every column reference in
// expr.
func (b *Binder) bindExpression(expr Expression, scope *tableScope) common.Status {
	switch e := expr.(type) {
	case nil:
		return common.OkStatus()
	case *ConstantExpr:
		return common.OkStatus()
	case *ColumnRefExpr:
		idx, col := scope.resolve(e.TableName, e.ColumnName)
		if idx < 0 {
			return common.NotFound("column %q does not exist", e.ColumnName)
		}
		e.Index = idx
		e.Type = col.Type
		return common.OkStatus()
	case *ArithmeticExpr:
		if st := b.bindExpression(e.Left, scope); !st.OK() {
			return st
		}
		return b.bindExpression(e.Right, scope)
	case *ComparisonExpr:
		if st := b.bindExpression(e.Left, scope); !st.OK() {
			return st
		}
		return b.bindExpression(e.Right, scope)
	case *LogicalExpr:
		if st := b.bindExpression(e.Left, scope); !st.OK() {
			return st
		}
		return b.bindExpression(e.Right, scope)
	case *NotExpr:
		return b.bindExpression(e.Child, scope)
	case *IsNullExpr:
		return b.bindExpression(e.Child, scope)
	}
	return common.Internal("unknown expression kind")
}

// BindSelect resolves the FROM table, any joins, the projected columns
// and the WHERE predicate.
func (b *Binder) BindSelect(stmt *SelectStatement) (*BoundSelect, common.Status) {
	table, st := b.catalog.GetTable(stmt.TableName)
	if !st.OK() {
		return nil, st
	}
	ctx := &BoundSelect{Table: table, SelectAll: stmt.SelectAll}

	tables := []*catalog.TableInfo{table}
	for _, join := range stmt.Joins {
		jt, st := b.catalog.GetTable(join.TableName)
		if !st.OK() {
			return nil, st
		}
		tables = append(tables, jt)
	}
	scope := newTableScope(tables...)
	ctx.OutputSchema = scope.combinedSchema()

	for i, join := range stmt.Joins {
		bound := BoundJoin{Type: join.Type, Table: tables[i+1]}
		if join.On != nil {
			bound.On = join.On.Clone()
			if st := b.bindExpression(bound.On, scope); !st.OK() {
				return nil, st
			}
		}
		ctx.Joins = append(ctx.Joins, bound)
	}

	if stmt.SelectAll {
		for i := 0; i < ctx.OutputSchema.ColumnCount(); i++ {
			ctx.ColumnIndices = append(ctx.ColumnIndices, i)
		}
	} else {
		for _, name := range stmt.Columns {
			idx, _ := scope.resolve("", name)
			if idx < 0 {
				return nil, common.NotFound("column %q does not exist", name)
			}
			ctx.ColumnIndices = append(ctx.ColumnIndices, idx)
		}
	}

	if stmt.Where != nil {
		ctx.Predicate = stmt.Where.Clone()
		if st := b.bindExpression(ctx.Predicate, scope); !st.OK() {
			return nil, st
		}
	}
	return ctx, common.OkStatus()
}

// BindInsert resolves the target table and checks every row's arity.
func (b *Binder) BindInsert(stmt *InsertStatement) (*BoundInsert, common.Status) {
	table, st := b.catalog.GetTable(stmt.TableName)
	if !st.OK() {
		return nil, st
	}
	ctx := &BoundInsert{Table: table}
	if len(stmt.Columns) == 0 {
		for i := 0; i < table.Schema.ColumnCount(); i++ {
			ctx.ColumnIndices = append(ctx.ColumnIndices, i)
		}
	} else {
		for _, name := range stmt.Columns {
			idx := table.Schema.ColumnIndex(name)
			if idx < 0 {
				return nil, common.NotFound("column %q does not exist in table %q", name, table.Name)
			}
			ctx.ColumnIndices = append(ctx.ColumnIndices, idx)
		}
	}
	for i, row := range stmt.Rows {
		if len(row) != len(ctx.ColumnIndices) {
			return nil, common.InvalidArgument("row %d has %d values, expected %d",
				i+1, len(row), len(ctx.ColumnIndices))
		}
	}
	return ctx, common.OkStatus()
}

// BindUpdate resolves SET targets and binds the value expressions and
// predicate.
func (b *Binder) BindUpdate(stmt *UpdateStatement) (*BoundUpdate, common.Status) {
	table, st := b.catalog.GetTable(stmt.TableName)
	if !st.OK() {
		return nil, st
	}
	scope := newTableScope(table)
	ctx := &BoundUpdate{Table: table}
	for _, assign := range stmt.Assignments {
		idx := table.Schema.ColumnIndex(assign.ColumnName)
		if idx < 0 {
			return nil, common.NotFound("column %q does not exist in table %q",
				assign.ColumnName, table.Name)
		}
		value := assign.Value.Clone()
		if st := b.bindExpression(value, scope); !st.OK() {
			return nil, st
		}
		ctx.ColumnIndices = append(ctx.ColumnIndices, idx)
		ctx.Values = append(ctx.Values, value)
	}
	if stmt.Where != nil {
		ctx.Predicate = stmt.Where.Clone()
		if st := b.bindExpression(ctx.Predicate, scope); !st.OK() {
			return nil, st
		}
	}
	return ctx, common.OkStatus()
}

// BindDelete resolves the target table and binds the predicate.
func (b *Binder) BindDelete(stmt *DeleteStatement) (*BoundDelete, common.Status) {
	table, st := b.catalog.GetTable(stmt.TableName)
	if !st.OK() {
		return nil, st
	}
	ctx := &BoundDelete{Table: table}
	if stmt.Where != nil {
		scope := newTableScope(table)
		ctx.Predicate = stmt.Where.Clone()
		if st := b.bindExpression(ctx.Predicate, scope); !st.OK() {
			return nil, st
		}
	}
	return ctx, common.OkStatus()
}
