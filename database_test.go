package entropy

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/storage"
)

func setupDatabase(t *testing.T) *Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test"+common.DatabaseFileExtension)
	db, st := Open(path, DefaultOptions())
	require.True(t, st.OK(), st.String())
	t.Cleanup(func() { db.Close() })
	return db
}

func mustExec(t *testing.T, db *Database, sql string) Result {
	t.Helper()
	res := db.Execute(sql)
	require.True(t, res.OK(), "%s: %s", sql, res.Status.String())
	return res
}

func TestInsertAndScan(t *testing.T) {
	db := setupDatabase(t)
	mustExec(t, db, "CREATE TABLE t (id INTEGER, name VARCHAR(100))")
	res := mustExec(t, db, "INSERT INTO t VALUES (1, 'Alice'), (2, 'Bob'), (3, 'Charlie')")
	require.Equal(t, 3, res.AffectedRows)

	res = mustExec(t, db, "SELECT * FROM t")
	require.Equal(t, []string{"id", "name"}, res.ColumnNames)
	require.Equal(t, 3, res.RowCount())
	// Insertion order is preserved by the scan.
	names := []string{"Alice", "Bob", "Charlie"}
	for i, row := range res.Rows {
		require.Equal(t, int64(i+1), row.Value(0).AsInt())
		require.Equal(t, names[i], row.Value(1).AsString())
		require.Equal(t, names[i], row.ValueByName("name").AsString())
	}
}

func TestPredicateFilter(t *testing.T) {
	db := setupDatabase(t)
	mustExec(t, db, "CREATE TABLE t (id INTEGER, name VARCHAR(100))")
	mustExec(t, db, "INSERT INTO t VALUES (1, 'Alice'), (2, 'Bob'), (3, 'Charlie')")
	mustExec(t, db, "INSERT INTO t VALUES (4, 'Dave')")

	res := mustExec(t, db, "SELECT * FROM t WHERE id > 2")
	require.Equal(t, 2, res.RowCount())
	ids := map[int64]bool{}
	for _, row := range res.Rows {
		ids[row.Value(0).AsInt()] = true
	}
	require.Equal(t, map[int64]bool{3: true, 4: true}, ids)
}

func TestUpdateAndVerify(t *testing.T) {
	db := setupDatabase(t)
	mustExec(t, db, "CREATE TABLE u (id INTEGER, age INTEGER)")
	mustExec(t, db, "INSERT INTO u VALUES (1, 25), (2, 30)")

	res := mustExec(t, db, "UPDATE u SET age = 99 WHERE id = 1")
	require.Equal(t, 1, res.AffectedRows)

	res = mustExec(t, db, "SELECT age FROM u WHERE id = 1")
	require.Equal(t, 1, res.RowCount())
	require.Equal(t, int64(99), res.Rows[0].Value(0).AsInt())
}

func TestDelete(t *testing.T) {
	db := setupDatabase(t)
	mustExec(t, db, "CREATE TABLE t (id INTEGER)")
	mustExec(t, db, "INSERT INTO t VALUES (1), (2), (3), (4), (5)")
	res := mustExec(t, db, "DELETE FROM t WHERE id > 3")
	require.Equal(t, 2, res.AffectedRows)
	res = mustExec(t, db, "SELECT * FROM t")
	require.Equal(t, 3, res.RowCount())

	res = mustExec(t, db, "DELETE FROM t")
	require.Equal(t, 3, res.AffectedRows)
	res = mustExec(t, db, "SELECT * FROM t")
	require.Equal(t, 0, res.RowCount())
}

func TestOrderByLimitOffset(t *testing.T) {
	db := setupDatabase(t)
	mustExec(t, db, "CREATE TABLE t (id INTEGER, score INTEGER)")
	mustExec(t, db, "INSERT INTO t VALUES (1, 50), (2, 90), (3, 10), (4, 70), (5, 30)")

	res := mustExec(t, db, "SELECT id, score FROM t ORDER BY score DESC LIMIT 2 OFFSET 1")
	require.Equal(t, 2, res.RowCount())
	require.Equal(t, int64(4), res.Rows[0].Value(0).AsInt())
	require.Equal(t, int64(1), res.Rows[1].Value(0).AsInt())
}

func TestNullHandling(t *testing.T) {
	db := setupDatabase(t)
	mustExec(t, db, "CREATE TABLE t (id INTEGER, v INTEGER)")
	mustExec(t, db, "INSERT INTO t VALUES (1, 10), (2, NULL), (3, 30)")

	// NULL never satisfies a comparison.
	res := mustExec(t, db, "SELECT id FROM t WHERE v > 5")
	require.Equal(t, 2, res.RowCount())

	res = mustExec(t, db, "SELECT id FROM t WHERE v IS NULL")
	require.Equal(t, 1, res.RowCount())
	require.Equal(t, int64(2), res.Rows[0].Value(0).AsInt())

	res = mustExec(t, db, "SELECT id FROM t WHERE v IS NOT NULL")
	require.Equal(t, 2, res.RowCount())

	// ORDER BY ASC places NULL first.
	res = mustExec(t, db, "SELECT * FROM t ORDER BY v")
	require.Equal(t, int64(2), res.Rows[0].Value(0).AsInt())
}

func TestNotNullConstraint(t *testing.T) {
	db := setupDatabase(t)
	mustExec(t, db, "CREATE TABLE t (id INTEGER NOT NULL, v INTEGER)")
	res := db.Execute("INSERT INTO t VALUES (NULL, 1)")
	require.Equal(t, common.CodeInvalidArgument, res.Status.Code)
}

func TestJoinQueries(t *testing.T) {
	db := setupDatabase(t)
	mustExec(t, db, "CREATE TABLE users (id INTEGER, name VARCHAR(50))")
	mustExec(t, db, "CREATE TABLE orders (oid INTEGER, uid INTEGER)")
	mustExec(t, db, "INSERT INTO users VALUES (1, 'Alice'), (2, 'Bob')")
	mustExec(t, db, "INSERT INTO orders VALUES (100, 1), (101, 1), (102, 9)")

	res := mustExec(t, db, "SELECT name, oid FROM users JOIN orders ON users.id = orders.uid")
	require.Equal(t, 2, res.RowCount())
	for _, row := range res.Rows {
		require.Equal(t, "Alice", row.Value(0).AsString())
	}

	res = mustExec(t, db, "SELECT name, oid FROM users LEFT JOIN orders ON users.id = orders.uid")
	require.Equal(t, 3, res.RowCount())

	res = mustExec(t, db, "SELECT name, oid FROM users RIGHT JOIN orders ON users.id = orders.uid")
	require.Equal(t, 3, res.RowCount())
	orphans := 0
	for _, row := range res.Rows {
		if row.Value(0).IsNull() {
			orphans++
			require.Equal(t, int64(102), row.Value(1).AsInt())
		}
	}
	require.Equal(t, 1, orphans)

	res = mustExec(t, db, "SELECT * FROM users CROSS JOIN orders")
	require.Equal(t, 6, res.RowCount())
}

func TestPrimaryKeyIndexAndExplain(t *testing.T) {
	db := setupDatabase(t)
	mustExec(t, db, "CREATE TABLE t (id INTEGER PRIMARY KEY, name VARCHAR(50))")
	mustExec(t, db, "INSERT INTO t VALUES (1, 'a'), (2, 'b'), (3, 'c')")

	res := mustExec(t, db, "SELECT name FROM t WHERE id = 2")
	require.Equal(t, 1, res.RowCount())
	require.Equal(t, "b", res.Rows[0].Value(0).AsString())

	res = mustExec(t, db, "EXPLAIN SELECT * FROM t WHERE id = 2")
	require.Equal(t, []string{"QUERY PLAN"}, res.ColumnNames)
	var plan strings.Builder
	for _, row := range res.Rows {
		plan.WriteString(row.Value(0).AsString())
		plan.WriteString("\n")
	}
	require.Contains(t, plan.String(), "Query Plan:")
	require.Contains(t, plan.String(), "Index Scan (Point Lookup)")
	require.Contains(t, plan.String(), "Estimated Rows:")

	res = mustExec(t, db, "EXPLAIN SELECT * FROM t")
	plan.Reset()
	for _, row := range res.Rows {
		plan.WriteString(row.Value(0).AsString())
		plan.WriteString("\n")
	}
	require.Contains(t, plan.String(), "Sequential Scan on t")
}

func TestTransactionRollback(t *testing.T) {
	db := setupDatabase(t)
	mustExec(t, db, "CREATE TABLE t (id INTEGER)")
	mustExec(t, db, "INSERT INTO t VALUES (1)")

	require.True(t, db.Begin().OK())
	require.True(t, db.InTransaction())
	mustExec(t, db, "INSERT INTO t VALUES (2), (3)")
	mustExec(t, db, "DELETE FROM t WHERE id = 1")
	require.True(t, db.Rollback().OK())
	require.False(t, db.InTransaction())

	res := mustExec(t, db, "SELECT * FROM t")
	require.Equal(t, 1, res.RowCount())
	require.Equal(t, int64(1), res.Rows[0].Value(0).AsInt())
}

func TestTransactionCommit(t *testing.T) {
	db := setupDatabase(t)
	mustExec(t, db, "CREATE TABLE t (id INTEGER)")

	require.True(t, db.Begin().OK())
	mustExec(t, db, "INSERT INTO t VALUES (1), (2)")
	require.True(t, db.Commit().OK())

	res := mustExec(t, db, "SELECT * FROM t")
	require.Equal(t, 2, res.RowCount())

	// Protocol errors.
	require.False(t, db.Commit().OK())
	require.False(t, db.Rollback().OK())
	require.True(t, db.Begin().OK())
	require.False(t, db.Begin().OK())
	require.True(t, db.Rollback().OK())
}

func TestStatementErrors(t *testing.T) {
	db := setupDatabase(t)
	mustExec(t, db, "CREATE TABLE t (id INTEGER)")

	for sql, code := range map[string]common.StatusCode{
		"SELECT * FROM missing":          common.CodeNotFound,
		"SELECT wat FROM t":              common.CodeNotFound,
		"CREATE TABLE t (id INTEGER)":    common.CodeAlreadyExists,
		"DROP TABLE missing":             common.CodeNotFound,
		"INSERT INTO t VALUES (1, 2)":    common.CodeInvalidArgument,
		"SELECT FROM t":                  common.CodeInvalidArgument,
		"INSERT INTO t VALUES ('words')": common.CodeInvalidArgument,
	} {
		res := db.Execute(sql)
		require.False(t, res.OK(), sql)
		require.Equal(t, code, res.Status.Code, sql)
	}
}

func TestDropTable(t *testing.T) {
	db := setupDatabase(t)
	mustExec(t, db, "CREATE TABLE t (id INTEGER)")
	mustExec(t, db, "DROP TABLE t")
	res := db.Execute("SELECT * FROM t")
	require.Equal(t, common.CodeNotFound, res.Status.Code)
	// The name can be reused.
	mustExec(t, db, "CREATE TABLE t (id INTEGER)")
}

func TestTypeCoercionOnInsert(t *testing.T) {
	db := setupDatabase(t)
	mustExec(t, db, "CREATE TABLE t (a SMALLINT, b BIGINT, c FLOAT, d DOUBLE, e BOOLEAN)")
	mustExec(t, db, "INSERT INTO t VALUES (300, 5000000000, 2.5, 3.25, TRUE)")
	res := mustExec(t, db, "SELECT * FROM t")
	row := res.Rows[0]
	require.Equal(t, int64(300), row.Value(0).AsInt())
	require.Equal(t, int64(5000000000), row.Value(1).AsInt())
	require.Equal(t, 2.5, row.Value(2).AsFloat())
	require.Equal(t, 3.25, row.Value(3).AsFloat())
	require.True(t, row.Value(4).AsBool())
}

func TestArithmeticInUpdate(t *testing.T) {
	db := setupDatabase(t)
	mustExec(t, db, "CREATE TABLE t (id INTEGER, n INTEGER)")
	mustExec(t, db, "INSERT INTO t VALUES (1, 10), (2, 20)")
	mustExec(t, db, "UPDATE t SET n = n * 2 + 1")
	res := mustExec(t, db, "SELECT n FROM t ORDER BY n")
	require.Equal(t, int64(21), res.Rows[0].Value(0).AsInt())
	require.Equal(t, int64(41), res.Rows[1].Value(0).AsInt())
}

func TestWALSurvivesAcrossStatements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal-db"+common.DatabaseFileExtension)
	db, st := Open(path, DefaultOptions())
	require.True(t, st.OK())
	mustExec(t, db, "CREATE TABLE t (id INTEGER)")
	mustExec(t, db, "INSERT INTO t VALUES (1), (2)")
	require.True(t, db.Close().OK())

	// Reopening runs WAL recovery over the committed inserts and succeeds.
	db2, st := Open(path, DefaultOptions())
	require.True(t, st.OK())
	defer db2.Close()
	require.True(t, db2.IsOpen())
}

func TestInMemoryDatabase(t *testing.T) {
	db, st := Open(storage.MemoryPath, DefaultOptions())
	require.True(t, st.OK())
	defer db.Close()
	mustExec(t, db, "CREATE TABLE t (id INTEGER)")
	mustExec(t, db, "INSERT INTO t VALUES (7)")
	res := mustExec(t, db, "SELECT * FROM t")
	require.Equal(t, int64(7), res.Rows[0].Value(0).AsInt())
}

func TestOpenOptions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opts"+common.DatabaseFileExtension)

	opts := DefaultOptions()
	opts.CreateIfMissing = false
	_, st := Open(path, opts)
	require.Equal(t, common.CodeNotFound, st.Code)

	db, st := Open(path, DefaultOptions())
	require.True(t, st.OK())
	require.True(t, db.Close().OK())
	require.False(t, db.IsOpen())

	opts = DefaultOptions()
	opts.ErrorIfExists = true
	_, st = Open(path, opts)
	require.Equal(t, common.CodeAlreadyExists, st.Code)
}

func TestExecuteAfterClose(t *testing.T) {
	db := setupDatabase(t)
	require.True(t, db.Close().OK())
	res := db.Execute("SELECT 1")
	require.False(t, res.OK())
}
