package optimizer

import (
	"sync"

	"github.com/intellect4all/entropy/catalog"
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/parser"
)

// Selectivity fallbacks when no column statistics are available.
// Consumers must tolerate approximate values and never rely on exact
// selectivity.
const (
	EqualitySelectivity = 0.01
	RangeSelectivity    = 0.33
)

// ColumnStats summarizes one column's value distribution.
type ColumnStats struct {
	DistinctValues int64
	NullFraction   float64
	Min            common.Value
	Max            common.Value
}

// TableStats summarizes one table.
type TableStats struct {
	RowCount  int64
	PageCount int64
	Columns   map[string]ColumnStats
}

// Statistics is the planner's oracle for row counts and selectivity.
// Counters update through event callbacks; distributions refresh only on
// CollectStatistics full scans.
type Statistics struct {
	mu      sync.RWMutex
	catalog *catalog.Catalog
	tables  map[common.OID]*TableStats
}

// NewStatistics builds an empty oracle over cat.
func NewStatistics(cat *catalog.Catalog) *Statistics {
	return &Statistics{catalog: cat, tables: make(map[common.OID]*TableStats)}
}

// OnTableCreated registers a table with zeroed counters.
func (s *Statistics) OnTableCreated(oid common.OID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[oid] = &TableStats{Columns: make(map[string]ColumnStats)}
}

// OnTableDropped forgets a table.
func (s *Statistics) OnTableDropped(oid common.OID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, oid)
}

// OnRowsInserted bumps the row counter.
func (s *Statistics) OnRowsInserted(oid common.OID, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[oid]; ok {
		t.RowCount += n
	}
}

// OnRowsDeleted decrements the row counter.
func (s *Statistics) OnRowsDeleted(oid common.OID, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[oid]; ok {
		t.RowCount -= n
		if t.RowCount < 0 {
			t.RowCount = 0
		}
	}
}

// TableCardinality returns the (approximate) row count.
func (s *Statistics) TableCardinality(oid common.OID) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tables[oid]; ok {
		return t.RowCount
	}
	return 0
}

// GetTableStats returns a copy of the stats for oid.
func (s *Statistics) GetTableStats(oid common.OID) TableStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[oid]
	if !ok {
		return TableStats{Columns: map[string]ColumnStats{}}
	}
	out := TableStats{RowCount: t.RowCount, PageCount: t.PageCount,
		Columns: make(map[string]ColumnStats, len(t.Columns))}
	for name, cs := range t.Columns {
		out.Columns[name] = cs
	}
	if out.PageCount == 0 {
		// Rough page estimate until a full collection runs.
		out.PageCount = out.RowCount/64 + 1
	}
	return out
}

// CollectStatistics full-scans the table and rebuilds per-column
// distinct counts, null fractions and min/max.
func (s *Statistics) CollectStatistics(oid common.OID) common.Status {
	info, st := s.catalog.GetTableByOID(oid)
	if !st.OK() {
		return st
	}
	schema := info.Schema
	ncols := schema.ColumnCount()
	distinct := make([]map[string]struct{}, ncols)
	nulls := make([]int64, ncols)
	mins := make([]common.Value, ncols)
	maxs := make([]common.Value, ncols)
	for i := range distinct {
		distinct[i] = make(map[string]struct{})
	}
	var rows, pages int64
	lastPage := common.InvalidPageID
	for it := info.Heap.Iterator(); it.Valid(); it.Next() {
		rows++
		if it.RID().PageID != lastPage {
			pages++
			lastPage = it.RID().PageID
		}
		tuple := it.Tuple()
		for i := 0; i < ncols; i++ {
			v := tuple.Value(schema, i)
			if v.IsNull() {
				nulls[i]++
				continue
			}
			distinct[i][v.String()] = struct{}{}
			if mins[i].IsNull() {
				mins[i] = v
				maxs[i] = v
				continue
			}
			if cmp, ok := common.CompareValues(v, mins[i]); ok && cmp < 0 {
				mins[i] = v
			}
			if cmp, ok := common.CompareValues(v, maxs[i]); ok && cmp > 0 {
				maxs[i] = v
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[oid]
	if !ok {
		t = &TableStats{Columns: make(map[string]ColumnStats)}
		s.tables[oid] = t
	}
	t.RowCount = rows
	t.PageCount = pages
	for i := 0; i < ncols; i++ {
		nullFrac := 0.0
		if rows > 0 {
			nullFrac = float64(nulls[i]) / float64(rows)
		}
		t.Columns[schema.Column(i).Name] = ColumnStats{
			DistinctValues: int64(len(distinct[i])),
			NullFraction:   nullFrac,
			Min:            mins[i],
			Max:            maxs[i],
		}
	}
	return common.OkStatus()
}

// EstimateSelectivity estimates the fraction of rows surviving expr.
// Conjunctions multiply and disjunctions add (capped at 1). A comparison
// that is not column-versus-constant estimates 0.5; shapes other than
// logical, comparison and IS NULL fall back to 1.0.
func (s *Statistics) EstimateSelectivity(oid common.OID, expr parser.Expression) float64 {
	if expr == nil {
		return 1.0
	}
	switch e := expr.(type) {
	case *parser.LogicalExpr:
		if e.Op == parser.OpAnd {
			sel := s.EstimateSelectivity(oid, e.Left) * s.EstimateSelectivity(oid, e.Right)
			if sel < 0 {
				sel = 0
			}
			return sel
		}
		// OR: union bound, capped at 1.
		sel := s.EstimateSelectivity(oid, e.Left) + s.EstimateSelectivity(oid, e.Right)
		if sel > 1 {
			sel = 1
		}
		return sel
	case *parser.ComparisonExpr:
		col, _, _, ok := extractColumnComparison(e)
		if !ok {
			return 0.5
		}
		if e.Op == parser.CmpEq {
			return s.equalitySelectivity(oid, col)
		}
		if e.Op == parser.CmpNotEq {
			return 1 - s.equalitySelectivity(oid, col)
		}
		return RangeSelectivity
	case *parser.IsNullExpr:
		return EqualitySelectivity
	}
	return 1.0
}

func (s *Statistics) equalitySelectivity(oid common.OID, col *parser.ColumnRefExpr) float64 {
	info, st := s.catalog.GetTableByOID(oid)
	if !st.OK() {
		return EqualitySelectivity
	}
	stats := s.GetTableStats(oid)
	if col.Index >= 0 && col.Index < info.Schema.ColumnCount() {
		if cs, ok := stats.Columns[info.Schema.Column(col.Index).Name]; ok && cs.DistinctValues > 0 {
			return 1.0 / float64(cs.DistinctValues)
		}
	}
	return EqualitySelectivity
}

// extractColumnComparison matches `col OP const` (either side), flipping
// the operator when the constant is on the left.
func extractColumnComparison(e *parser.ComparisonExpr) (*parser.ColumnRefExpr, parser.ComparisonOp, common.Value, bool) {
	if col, ok := e.Left.(*parser.ColumnRefExpr); ok {
		if c, ok := e.Right.(*parser.ConstantExpr); ok {
			return col, e.Op, c.Value, true
		}
	}
	if col, ok := e.Right.(*parser.ColumnRefExpr); ok {
		if c, ok := e.Left.(*parser.ConstantExpr); ok {
			return col, flipComparison(e.Op), c.Value, true
		}
	}
	return nil, e.Op, common.NewNull(), false
}

func flipComparison(op parser.ComparisonOp) parser.ComparisonOp {
	switch op {
	case parser.CmpLess:
		return parser.CmpGreater
	case parser.CmpLessEq:
		return parser.CmpGreaterEq
	case parser.CmpGreater:
		return parser.CmpLess
	case parser.CmpGreaterEq:
		return parser.CmpLessEq
	}
	return op
}
