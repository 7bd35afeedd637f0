package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intellect4all/entropy/catalog"
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/storage"
)

func setupBinder(t *testing.T) *Binder {
	t.Helper()
	dm, st := storage.NewDiskManager(storage.MemoryPath, common.DefaultPageSize, false)
	require.True(t, st.OK())
	cat := catalog.NewCatalog(storage.NewBufferPool(64, dm))
	_, st = cat.CreateTable("users", common.NewSchema([]common.Column{
		common.NewColumn("id", common.TypeInteger),
		common.NewVarcharColumn("name", 100),
		common.NewColumn("age", common.TypeInteger),
	}))
	require.True(t, st.OK())
	_, st = cat.CreateTable("orders", common.NewSchema([]common.Column{
		common.NewColumn("order_id", common.TypeInteger),
		common.NewColumn("user_id", common.TypeInteger),
	}))
	require.True(t, st.OK())
	return NewBinder(cat)
}

func TestBindSelectStar(t *testing.T) {
	b := setupBinder(t)
	stmt, st := Parse("SELECT * FROM users")
	require.True(t, st.OK())
	ctx, st := b.BindSelect(stmt.(*SelectStatement))
	require.True(t, st.OK())
	require.Equal(t, []int{0, 1, 2}, ctx.ColumnIndices)
	require.True(t, ctx.SelectAll)
}

func TestBindSelectColumnsAndPredicate(t *testing.T) {
	b := setupBinder(t)
	stmt, _ := Parse("SELECT name, age FROM users WHERE id = 1")
	ctx, st := b.BindSelect(stmt.(*SelectStatement))
	require.True(t, st.OK())
	require.Equal(t, []int{1, 2}, ctx.ColumnIndices)

	cmp := ctx.Predicate.(*ComparisonExpr)
	ref := cmp.Left.(*ColumnRefExpr)
	require.Equal(t, 0, ref.Index)
	require.Equal(t, common.TypeInteger, ref.Type)
}

func TestBindSelectUnknownTable(t *testing.T) {
	b := setupBinder(t)
	stmt, _ := Parse("SELECT * FROM ghosts")
	_, st := b.BindSelect(stmt.(*SelectStatement))
	require.Equal(t, common.CodeNotFound, st.Code)
}

func TestBindSelectUnknownColumn(t *testing.T) {
	b := setupBinder(t)
	stmt, _ := Parse("SELECT wat FROM users")
	_, st := b.BindSelect(stmt.(*SelectStatement))
	require.Equal(t, common.CodeNotFound, st.Code)

	stmt, _ = Parse("SELECT * FROM users WHERE wat = 1")
	_, st = b.BindSelect(stmt.(*SelectStatement))
	require.Equal(t, common.CodeNotFound, st.Code)
}

func TestBindSelectJoin(t *testing.T) {
	b := setupBinder(t)
	stmt, _ := Parse("SELECT name, order_id FROM users JOIN orders ON users.id = orders.user_id")
	ctx, st := b.BindSelect(stmt.(*SelectStatement))
	require.True(t, st.OK(), st.String())
	require.Equal(t, 5, ctx.OutputSchema.ColumnCount())
	require.Equal(t, []int{1, 3}, ctx.ColumnIndices)

	on := ctx.Joins[0].On.(*ComparisonExpr)
	require.Equal(t, 0, on.Left.(*ColumnRefExpr).Index)
	require.Equal(t, 4, on.Right.(*ColumnRefExpr).Index)
}

func TestBindInsertArity(t *testing.T) {
	b := setupBinder(t)
	stmt, _ := Parse("INSERT INTO users VALUES (1, 'x', 30)")
	ctx, st := b.BindInsert(stmt.(*InsertStatement))
	require.True(t, st.OK())
	require.Equal(t, []int{0, 1, 2}, ctx.ColumnIndices)

	stmt, _ = Parse("INSERT INTO users VALUES (1, 'x')")
	_, st = b.BindInsert(stmt.(*InsertStatement))
	require.Equal(t, common.CodeInvalidArgument, st.Code)

	stmt, _ = Parse("INSERT INTO users (id, age) VALUES (1, 30)")
	ctx, st = b.BindInsert(stmt.(*InsertStatement))
	require.True(t, st.OK())
	require.Equal(t, []int{0, 2}, ctx.ColumnIndices)

	stmt, _ = Parse("INSERT INTO users (wat) VALUES (1)")
	_, st = b.BindInsert(stmt.(*InsertStatement))
	require.Equal(t, common.CodeNotFound, st.Code)
}

func TestBindUpdate(t *testing.T) {
	b := setupBinder(t)
	stmt, _ := Parse("UPDATE users SET age = age + 1 WHERE id = 2")
	ctx, st := b.BindUpdate(stmt.(*UpdateStatement))
	require.True(t, st.OK())
	require.Equal(t, []int{2}, ctx.ColumnIndices)
	require.Len(t, ctx.Values, 1)

	arith := ctx.Values[0].(*ArithmeticExpr)
	require.Equal(t, 2, arith.Left.(*ColumnRefExpr).Index)

	stmt, _ = Parse("UPDATE users SET wat = 1")
	_, st = b.BindUpdate(stmt.(*UpdateStatement))
	require.Equal(t, common.CodeNotFound, st.Code)
}

func TestBindDelete(t *testing.T) {
	b := setupBinder(t)
	stmt, _ := Parse("DELETE FROM users WHERE age > 90")
	ctx, st := b.BindDelete(stmt.(*DeleteStatement))
	require.True(t, st.OK())
	require.NotNil(t, ctx.Predicate)

	stmt, _ = Parse("DELETE FROM ghosts")
	_, st = b.BindDelete(stmt.(*DeleteStatement))
	require.Equal(t, common.CodeNotFound, st.Code)
}

func TestBindDoesNotMutateStatementExpressions(t *testing.T) {
	b := setupBinder(t)
	stmt, _ := Parse("SELECT * FROM users WHERE id = 1")
	sel := stmt.(*SelectStatement)
	_, st := b.BindSelect(sel)
	require.True(t, st.OK())
	// The statement keeps its unbound tree; the context owns the clone.
	ref := sel.Where.(*ComparisonExpr).Left.(*ColumnRefExpr)
	require.Equal(t, -1, ref.Index)
}
