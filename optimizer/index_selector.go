package optimizer

import (
	"math"

	"github.com/intellect4all/entropy/catalog"
	"github.com/intellect4all/entropy/common"
	"github.com/intellect4all/entropy/parser"
)

// IndexScanKind mirrors how the chosen index would be traversed.
type IndexScanKind int

const (
	ScanPointLookup IndexScanKind = iota
	ScanRange
	ScanFullIndex
)

func (k IndexScanKind) String() string {
	switch k {
	case ScanPointLookup:
		return "Point Lookup"
	case ScanRange:
		return "Range Scan"
	case ScanFullIndex:
		return "Full Index Scan"
	}
	return "Unknown"
}

// AccessMethod is the selector's verdict for one table access.
type AccessMethod struct {
	UseIndex    bool
	Index       *catalog.IndexInfo
	ScanType    IndexScanKind
	StartKey    *int64
	EndKey      *int64
	IndexCost   float64
	SeqScanCost float64
}

// IndexSelector picks the cheapest access method for a table given an
// optional predicate.
type IndexSelector struct {
	catalog *catalog.Catalog
	stats   *Statistics
	cost    *CostModel
}

// NewIndexSelector wires the selector's collaborators.
func NewIndexSelector(cat *catalog.Catalog, stats *Statistics, cost *CostModel) *IndexSelector {
	return &IndexSelector{catalog: cat, stats: stats, cost: cost}
}

// conjuncts flattens an AND tree into its comparison leaves.
func conjuncts(expr parser.Expression, out []parser.Expression) []parser.Expression {
	if expr == nil {
		return out
	}
	if logical, ok := expr.(*parser.LogicalExpr); ok && logical.Op == parser.OpAnd {
		out = conjuncts(logical.Left, out)
		return conjuncts(logical.Right, out)
	}
	return append(out, expr)
}

// SelectAccessMethod compares a sequential scan against every index
// usable by a predicate conjunct and returns the cheapest plan.
func (s *IndexSelector) SelectAccessMethod(tableOID common.OID, predicate parser.Expression) AccessMethod {
	result := AccessMethod{SeqScanCost: s.cost.SeqScanCost(tableOID)}
	best := result.SeqScanCost

	for _, conj := range conjuncts(predicate, nil) {
		cmp, ok := conj.(*parser.ComparisonExpr)
		if !ok {
			continue
		}
		col, op, constVal, ok := extractColumnComparison(cmp)
		if !ok || col.Index < 0 {
			continue
		}
		idx := s.catalog.GetIndexForColumn(tableOID, col.Index)
		if idx == nil {
			continue
		}
		key, ok := constVal.TryInt()
		if !ok {
			if f, fok := constVal.TryFloat(); fok {
				key = int64(f)
			} else {
				continue
			}
		}

		var selectivity float64
		var scanType IndexScanKind
		var start, end *int64
		switch op {
		case parser.CmpEq:
			selectivity = s.stats.EstimateSelectivity(tableOID, cmp)
			if selectivity <= 0 || selectivity > 1 {
				selectivity = EqualitySelectivity
			}
			scanType = ScanPointLookup
			k := key
			start, end = &k, &k
		case parser.CmpLess:
			selectivity = RangeSelectivity
			scanType = ScanRange
			e := key - 1
			end = &e
		case parser.CmpLessEq:
			selectivity = RangeSelectivity
			scanType = ScanRange
			e := key
			end = &e
		case parser.CmpGreater:
			selectivity = RangeSelectivity
			scanType = ScanRange
			st := key + 1
			start = &st
		case parser.CmpGreaterEq:
			selectivity = RangeSelectivity
			scanType = ScanRange
			st := key
			start = &st
		default:
			continue
		}

		indexCost := s.cost.IndexScanCost(tableOID, selectivity)
		if indexCost < best {
			best = indexCost
			result.UseIndex = true
			result.Index = idx
			result.ScanType = scanType
			result.StartKey = start
			result.EndKey = end
			result.IndexCost = indexCost
		}
	}
	return result
}

// RangeBounds returns the concrete scan bounds, defaulting open ends to
// the key domain limits.
func (a AccessMethod) RangeBounds() (int64, int64) {
	start, end := int64(math.MinInt64), int64(math.MaxInt64)
	if a.StartKey != nil {
		start = *a.StartKey
	}
	if a.EndKey != nil {
		end = *a.EndKey
	}
	return start, end
}
