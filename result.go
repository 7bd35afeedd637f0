package entropy

import (
	"github.com/intellect4all/entropy/common"
)

// Value is the public scalar type returned in result rows.
type Value = common.Value

// Row is one result row with access by index or column name.
type Row struct {
	values      []Value
	columnNames []string
}

// NewRow builds a row; columnNames is shared across a result's rows.
func NewRow(values []Value, columnNames []string) Row {
	return Row{values: values, columnNames: columnNames}
}

// Len returns the column count.
func (r Row) Len() int { return len(r.values) }

// Value returns the value at idx; NULL when out of range.
func (r Row) Value(idx int) Value {
	if idx < 0 || idx >= len(r.values) {
		return common.NewNull()
	}
	return r.values[idx]
}

// ValueByName returns the value under the named column; NULL when
// unknown.
func (r Row) ValueByName(name string) Value {
	for i, col := range r.columnNames {
		if col == name {
			return r.values[i]
		}
	}
	return common.NewNull()
}

// Values exposes the row's values in column order.
func (r Row) Values() []Value { return r.values }

// Result is the outcome of one executed statement: either rows (SELECT,
// EXPLAIN) or an affected-row count (DML, DDL), plus a status.
type Result struct {
	Status       common.Status
	Rows         []Row
	ColumnNames  []string
	AffectedRows int
}

func errorResult(st common.Status) Result { return Result{Status: st} }

func rowsResult(rows []Row, columnNames []string) Result {
	return Result{Status: common.OkStatus(), Rows: rows, ColumnNames: columnNames}
}

func affectedResult(n int) Result {
	return Result{Status: common.OkStatus(), AffectedRows: n}
}

// OK reports whether the statement succeeded.
func (r Result) OK() bool { return r.Status.OK() }

// RowCount returns the number of result rows.
func (r Result) RowCount() int { return len(r.Rows) }
