package pnl

import (
	"github.com/branchpnl/pnl-dashboard/internal/types"
)

// Profit-share rates applied to net income.
const (
	PNL3Rate = 0.03
	PNL5Rate = 0.05
)

// DefaultNetIncomeKeys are tried in order when the sheet has no bottom-line row.
var DefaultNetIncomeKeys = []string{"net_income", "net_income_loss"}

// BuildBranches produces one Branch per location column, in column order.
//
// A numeric cell becomes the value; anything else becomes nil. When two line
// items share a key the later row wins. Net income is read from the
// bottom-line row when one was found, otherwise from the first fallback key
// holding a value.
func BuildBranches(s Sheet, items []LineItem, cols []LocationColumn, bottomLine int, dir types.Directory, netIncomeKeys []string) []types.Branch {
	if netIncomeKeys == nil {
		netIncomeKeys = DefaultNetIncomeKeys
	}

	branches := make([]types.Branch, 0, len(cols))
	for _, col := range cols {
		values := make(map[string]*float64, len(items))
		for _, item := range items {
			values[item.Key] = numberAt(s, item.Row, col.Col)
		}

		var netIncome *float64
		if bottomLine >= 0 {
			netIncome = numberAt(s, bottomLine, col.Col)
		} else {
			for _, key := range netIncomeKeys {
				if v := values[key]; v != nil {
					ni := *v
					netIncome = &ni
					break
				}
			}
		}

		branches = append(branches, types.Branch{
			BranchName: col.Name,
			Company:    dir.Company(col.Name),
			ID:         dir.BranchID(col.Name),
			LineItems:  values,
			NetIncome:  netIncome,
			PNL3:       scale(netIncome, PNL3Rate),
			PNL5:       scale(netIncome, PNL5Rate),
		})
	}
	return branches
}

func numberAt(s Sheet, row, col int) *float64 {
	cell := s.Cell(row, col)
	if !cell.IsNumber() {
		return nil
	}
	v := cell.Number
	return &v
}

func scale(v *float64, rate float64) *float64 {
	if v == nil {
		return nil
	}
	r := *v * rate
	return &r
}
