package optimizer

import (
	"math"

	"github.com/intellect4all/entropy/common"
)

// Cost constants. Unitless; only relative magnitudes matter.
const (
	costIO    = 1.0
	costCPU   = 0.01
	costIndex = 0.05
)

// CostModel turns statistics into access-method cost estimates.
type CostModel struct {
	stats *Statistics
}

// NewCostModel builds a cost model over stats.
func NewCostModel(stats *Statistics) *CostModel {
	return &CostModel{stats: stats}
}

// SeqScanCost charges one IO per page plus one CPU per row.
func (m *CostModel) SeqScanCost(oid common.OID) float64 {
	t := m.stats.GetTableStats(oid)
	return float64(t.PageCount)*costIO + float64(t.RowCount)*costCPU
}

// IndexScanCost charges a logarithmic descent plus the selected
// fraction of the table.
func (m *CostModel) IndexScanCost(oid common.OID, selectivity float64) float64 {
	t := m.stats.GetTableStats(oid)
	rows := float64(t.RowCount)
	descent := 0.0
	if rows > 1 {
		descent = math.Log(rows) * costIndex
	}
	return descent + selectivity*rows*(costIO+costCPU)
}
