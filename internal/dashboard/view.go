// Package dashboard computes the branch table shown for a quarter: filtering,
// sorting, summary totals and the default set of line-item columns.
package dashboard

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/branchpnl/pnl-dashboard/internal/types"
)

// Sort keys besides line-item keys.
const (
	SortBranchName = "branchName"
	SortCompany    = "company"
	SortID         = "id"
	SortNetIncome  = "netIncome"
	SortPNL3       = "pnl3"
	SortPNL5       = "pnl5"
)

// Show filters on the sign of the 5% figure.
const (
	ShowAll        = ""
	ShowProfitable = "profitable"
	ShowLoss       = "loss"
)

// Query selects and orders the branches of a quarter.
type Query struct {
	Company string
	Branch  string

	// Search matches branch name, company or id, case-insensitively.
	Search string

	// Show is ShowAll, ShowProfitable or ShowLoss.
	Show string

	// ShowArchived lists archived branches instead of active ones.
	ShowArchived bool

	// SortKey defaults to pnl5, descending.
	SortKey  string
	SortDesc bool
}

// DefaultQuery sorts by pnl5, largest first.
func DefaultQuery() Query {
	return Query{SortKey: SortPNL5, SortDesc: true}
}

// Row is a branch together with its state.
type Row struct {
	types.Branch
	State types.BranchState `json:"state"`
}

// Apply filters and sorts the quarter's branches.
func Apply(q *types.Quarter, states map[string]types.BranchState, query Query) []Row {
	search := strings.ToLower(strings.TrimSpace(query.Search))

	var rows []Row
	for _, b := range q.Branches {
		st := states[b.BranchName]
		if st.IsArchived() != query.ShowArchived {
			continue
		}
		if query.Company != "" && b.Company != query.Company {
			continue
		}
		if query.Branch != "" && b.BranchName != query.Branch {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(b.BranchName), search) &&
			!strings.Contains(strings.ToLower(b.Company), search) &&
			!strings.Contains(strings.ToLower(b.ID), search) {
			continue
		}
		switch query.Show {
		case ShowProfitable:
			if b.PNL5 == nil || *b.PNL5 < 0 {
				continue
			}
		case ShowLoss:
			if b.PNL5 == nil || *b.PNL5 >= 0 {
				continue
			}
		}
		rows = append(rows, Row{Branch: b, State: st})
	}

	Sort(rows, query.SortKey, query.SortDesc)
	return rows
}

// Sort orders rows in place. Text columns compare case-insensitively; for
// numeric columns nil values always sort last. Ties keep source order.
func Sort(rows []Row, key string, desc bool) {
	if key == "" {
		key, desc = SortPNL5, true
	}
	if text, ok := textValue(key); ok {
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := strings.ToLower(text(rows[i].Branch)), strings.ToLower(text(rows[j].Branch))
			if desc {
				return a > b
			}
			return a < b
		})
		return
	}

	num := numericValue(key)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := num(rows[i].Branch), num(rows[j].Branch)
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		case desc:
			return *a > *b
		default:
			return *a < *b
		}
	})
}

func textValue(key string) (func(types.Branch) string, bool) {
	switch key {
	case SortBranchName:
		return func(b types.Branch) string { return b.BranchName }, true
	case SortCompany:
		return func(b types.Branch) string { return b.Company }, true
	case SortID:
		return func(b types.Branch) string { return b.ID }, true
	}
	return nil, false
}

func numericValue(key string) func(types.Branch) *float64 {
	switch key {
	case SortNetIncome:
		return func(b types.Branch) *float64 { return b.NetIncome }
	case SortPNL3:
		return func(b types.Branch) *float64 { return b.PNL3 }
	case SortPNL5:
		return func(b types.Branch) *float64 { return b.PNL5 }
	}
	return func(b types.Branch) *float64 { return b.LineItems[key] }
}

// Branches returns the plain branch records of rows.
func Branches(rows []Row) []types.Branch {
	out := make([]types.Branch, len(rows))
	for i, r := range rows {
		out[i] = r.Branch
	}
	return out
}

// =============================================================================
// SUMMARY
// =============================================================================

// Candidate keys for the income and payroll summary cards, first match wins.
var (
	IncomeKeys  = []string{"pharmacy_services_income", "pharmacy_income", "total_revenue"}
	PayrollKeys = []string{"payroll_and_related_expenses", "payroll", "payroll_expense"}
)

// Totals summarises a filtered view.
type Totals struct {
	// Count is the number of rows in the view.
	Count int `json:"count"`

	// Active and Total count the quarter's unarchived and all branches.
	Active int `json:"active"`
	Total  int `json:"total"`

	NetIncome decimal.Decimal `json:"netIncome"`
	PNL5      decimal.Decimal `json:"pnl5"`

	// IncomeKey and PayrollKey are the line items summed, empty if absent.
	IncomeKey  string          `json:"incomeKey,omitempty"`
	Income     decimal.Decimal `json:"income"`
	PayrollKey string          `json:"payrollKey,omitempty"`
	Payroll    decimal.Decimal `json:"payroll"`

	// PayrollPct is payroll as a percentage of income, one decimal place.
	PayrollPct decimal.Decimal `json:"payrollPct"`
}

// Summarize totals the rows of a view. Nil values count as zero; sums are
// rounded to 2 decimal places.
func Summarize(q *types.Quarter, states map[string]types.BranchState, rows []Row) Totals {
	t := Totals{
		Count:      len(rows),
		Total:      len(q.Branches),
		IncomeKey:  FindKey(q.LineItemKeys, IncomeKeys),
		PayrollKey: FindKey(q.LineItemKeys, PayrollKeys),
	}
	for _, b := range q.Branches {
		if !states[b.BranchName].IsArchived() {
			t.Active++
		}
	}

	for _, r := range rows {
		t.NetIncome = t.NetIncome.Add(dec(r.NetIncome))
		t.PNL5 = t.PNL5.Add(dec(r.PNL5))
		if t.IncomeKey != "" {
			t.Income = t.Income.Add(dec(r.LineItems[t.IncomeKey]))
		}
		if t.PayrollKey != "" {
			t.Payroll = t.Payroll.Add(dec(r.LineItems[t.PayrollKey]))
		}
	}

	if t.Income.IsPositive() {
		t.PayrollPct = t.Payroll.Div(t.Income).Mul(decimal.NewFromInt(100)).Round(1)
	}
	t.NetIncome = t.NetIncome.Round(2)
	t.PNL5 = t.PNL5.Round(2)
	t.Income = t.Income.Round(2)
	t.Payroll = t.Payroll.Round(2)
	return t
}

func dec(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}

// FindKey returns the first candidate present in keys.
func FindKey(keys, candidates []string) string {
	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		present[k] = true
	}
	for _, c := range candidates {
		if present[c] {
			return c
		}
	}
	return ""
}

// =============================================================================
// FILTER OPTIONS AND COLUMNS
// =============================================================================

// Companies returns the distinct company names of the quarter, sorted.
func Companies(q *types.Quarter) []string {
	return distinct(q.Branches, func(b types.Branch) string { return b.Company })
}

// BranchNames returns the distinct branch names of the quarter, sorted.
func BranchNames(q *types.Quarter) []string {
	return distinct(q.Branches, func(b types.Branch) string { return b.BranchName })
}

func distinct(branches []types.Branch, field func(types.Branch) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range branches {
		v := field(b)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// DefaultColumns are shown when no visibility has been saved.
var DefaultColumns = []string{
	"pharmacy_services_income", "payroll_and_related_expenses",
	"total_revenue", "total_cost_of_revenue", "gross_profit",
	"total_operating_expenses", "net_income_loss",
}

// fallbackColumnCount is used when none of DefaultColumns exist.
const fallbackColumnCount = 5

// VisibleColumns returns the line-item keys to display, in quarter order.
// Saved visibility wins; otherwise DefaultColumns that exist; otherwise the
// first few keys.
func VisibleColumns(q *types.Quarter, saved map[string]bool) []string {
	keys := uniqueKeys(q.LineItemKeys)

	pick := func(keep func(string) bool) []string {
		var out []string
		for _, k := range keys {
			if keep(k) {
				out = append(out, k)
			}
		}
		return out
	}

	if len(saved) > 0 {
		if cols := pick(func(k string) bool { return saved[k] }); len(cols) > 0 {
			return cols
		}
	}

	defaults := make(map[string]bool, len(DefaultColumns))
	for _, k := range DefaultColumns {
		defaults[k] = true
	}
	if cols := pick(func(k string) bool { return defaults[k] }); len(cols) > 0 {
		return cols
	}
	return keys[:min(fallbackColumnCount, len(keys))]
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
