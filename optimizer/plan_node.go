package optimizer

import (
	"fmt"

	"github.com/intellect4all/entropy/parser"
)

// Plan nodes are purely descriptive: EXPLAIN renders them, and the
// database entry point instantiates executors directly from the
// selector's output.

// PlanNode is one node of a descriptive plan tree.
type PlanNode interface {
	Describe() []string
}

// SeqScanPlanNode describes a sequential scan.
type SeqScanPlanNode struct {
	TableName string
	Cost      float64
}

func (n *SeqScanPlanNode) Describe() []string {
	return []string{
		"-> Sequential Scan on " + n.TableName,
		fmt.Sprintf("   SeqScan Cost: %.2f", n.Cost),
	}
}

// IndexScanPlanNode describes an index scan.
type IndexScanPlanNode struct {
	IndexName string
	ScanType  IndexScanKind
	Cost      float64
}

func (n *IndexScanPlanNode) Describe() []string {
	return []string{
		fmt.Sprintf("-> Index Scan (%s)", n.ScanType),
		fmt.Sprintf("   Index Cost: %.2f", n.Cost),
	}
}

// FilterPlanNode describes a residual predicate.
type FilterPlanNode struct {
	Child PlanNode
}

func (n *FilterPlanNode) Describe() []string {
	out := n.Child.Describe()
	return append(out, "   Filter: (predicate)")
}

// SortPlanNode describes an ORDER BY.
type SortPlanNode struct {
	Child PlanNode
	Keys  []parser.SortItem
}

func (n *SortPlanNode) Describe() []string {
	out := n.Child.Describe()
	out = append(out, "-> Sort")
	for _, key := range n.Keys {
		dir := "ASC"
		if !key.Ascending {
			dir = "DESC"
		}
		out = append(out, "   Key: "+key.ColumnName+" "+dir)
	}
	return out
}

// LimitPlanNode describes a LIMIT.
type LimitPlanNode struct {
	Child PlanNode
	Limit int64
}

func (n *LimitPlanNode) Describe() []string {
	out := n.Child.Describe()
	return append(out, fmt.Sprintf("-> Limit: %d", n.Limit))
}

// BuildSelectPlan assembles the descriptive plan for a bound SELECT.
func BuildSelectPlan(tableName string, selection AccessMethod, hasPredicate bool,
	orderBy []parser.SortItem, limit *int64) PlanNode {
	var plan PlanNode
	if selection.UseIndex {
		plan = &IndexScanPlanNode{
			IndexName: selection.Index.Name,
			ScanType:  selection.ScanType,
			Cost:      selection.IndexCost,
		}
	} else {
		plan = &SeqScanPlanNode{TableName: tableName, Cost: selection.SeqScanCost}
	}
	if hasPredicate {
		plan = &FilterPlanNode{Child: plan}
	}
	if len(orderBy) > 0 {
		plan = &SortPlanNode{Child: plan, Keys: orderBy}
	}
	if limit != nil {
		plan = &LimitPlanNode{Child: plan, Limit: *limit}
	}
	return plan
}
