// =============================================================================
// Branch P&L Dashboard - Export Writer
// =============================================================================
//
// This module turns the branches of a quarter into a flat table and writes it
// as CSV or as an Excel workbook.
//
// TABLE STRUCTURE:
//
//	ID | Branch | Company | <line items...> | 3% | 5% | Notes
//
//   - ID, Branch, Company, 3% and 5% are always present
//   - Line-item columns follow the quarter's line-item order
//   - Notes come from the branch state
//   - Missing values are written as empty cells
//   - Money values are rounded to 2 decimal places
//
// =============================================================================

package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/branchpnl/pnl-dashboard/internal/types"
)

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Format is an export file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv", "xlsx" and "excel".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (want csv or xlsx)", s)
	}
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string { return string(f) }

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Options contains options for building and writing an export.
type Options struct {
	// Columns selects line-item keys and "notes". Empty selects everything.
	// The fixed columns and the profit-share columns are always written.
	Columns []string

	// SheetName is the worksheet name for Excel output.
	SheetName string

	// ByteOrderMark prefixes CSV output with a UTF-8 BOM so Excel detects
	// the encoding.
	ByteOrderMark bool

	// Places is the number of decimal places kept for money values.
	Places int32
}

// DefaultOptions returns the default export options.
func DefaultOptions() Options {
	return Options{
		SheetName:     "Branch P&L",
		ByteOrderMark: true,
		Places:        2,
	}
}

// FileName is the download name for a quarter export.
func FileName(quarterID string, f Format) string {
	if quarterID == "" {
		quarterID = "Export"
	}
	return fmt.Sprintf("Branch_PnL_%s_Export.%s", quarterID, f.Ext())
}

// =============================================================================
// TABLE BUILDING
// =============================================================================

// Column is one export column.
type Column struct {
	Key    string
	Label  string
	Indent int
}

// Table is the flattened export. Each cell is nil, a string or a
// decimal.Decimal.
type Table struct {
	Columns []Column
	Rows    [][]any
}

// Header returns the column labels.
func (t *Table) Header() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Label
	}
	return out
}

// Keys of the fixed columns.
const (
	KeyID         = "id"
	KeyBranchName = "branchName"
	KeyCompany    = "company"
	KeyPNL3       = "pnl3"
	KeyPNL5       = "pnl5"
	KeyNotes      = "notes"
)

var (
	fixedColumns = []Column{
		{Key: KeyID, Label: "ID"},
		{Key: KeyBranchName, Label: "Branch"},
		{Key: KeyCompany, Label: "Company"},
	}
	endColumns = []Column{
		{Key: KeyPNL3, Label: "3%"},
		{Key: KeyPNL5, Label: "5%"},
		{Key: KeyNotes, Label: "Notes"},
	}
)

// Columns lists the exportable columns of a quarter: fixed, line items in
// source order (one per key), then the profit-share and notes columns.
func Columns(q *types.Quarter) []Column {
	cols := append([]Column(nil), fixedColumns...)
	seen := make(map[string]bool)
	for _, m := range q.LineItemMeta {
		if seen[m.Key] {
			continue
		}
		seen[m.Key] = true
		cols = append(cols, Column{Key: m.Key, Label: m.Label, Indent: m.Indent})
	}
	return append(cols, endColumns...)
}

func alwaysIncluded(key string) bool {
	switch key {
	case KeyID, KeyBranchName, KeyCompany, KeyPNL3, KeyPNL5:
		return true
	}
	return false
}

// Build flattens branches into a table. branches is usually the filtered,
// sorted view of q; states supplies the notes.
func Build(q *types.Quarter, branches []types.Branch, states map[string]types.BranchState, opts Options) *Table {
	selected := make(map[string]bool, len(opts.Columns))
	for _, k := range opts.Columns {
		selected[k] = true
	}

	t := &Table{}
	for _, c := range Columns(q) {
		if len(selected) == 0 || selected[c.Key] || alwaysIncluded(c.Key) {
			t.Columns = append(t.Columns, c)
		}
	}

	for _, b := range branches {
		row := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			switch c.Key {
			case KeyID:
				row[i] = b.ID
			case KeyBranchName:
				row[i] = b.BranchName
			case KeyCompany:
				row[i] = b.Company
			case KeyPNL3:
				row[i] = money(b.PNL3, opts.Places)
			case KeyPNL5:
				row[i] = money(b.PNL5, opts.Places)
			case KeyNotes:
				row[i] = states[b.BranchName].NotesText()
			default:
				row[i] = money(b.LineItems[c.Key], opts.Places)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// money rounds v, keeping nil as nil.
func money(v *float64, places int32) any {
	if v == nil {
		return nil
	}
	return decimal.NewFromFloat(*v).Round(places)
}

// =============================================================================
// OUTPUT
// =============================================================================

// Write writes the table in the given format.
func Write(w io.Writer, f Format, t *Table, opts Options) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, t, opts)
	case FormatXLSX:
		return WriteXLSX(w, t, opts)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}

// WriteCSV writes the table with every field quoted. Nil cells are empty.
func WriteCSV(w io.Writer, t *Table, opts Options) error {
	bw := bufio.NewWriter(w)
	if opts.ByteOrderMark {
		bw.WriteString("\ufeff")
	}

	header := make([]any, len(t.Columns))
	for i, h := range t.Header() {
		header[i] = h
	}
	writeCSVRecord(bw, header, opts.Places)
	for _, row := range t.Rows {
		bw.WriteByte('\n')
		writeCSVRecord(bw, row, opts.Places)
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func writeCSVRecord(bw *bufio.Writer, row []any, places int32) {
	for i, v := range row {
		if i > 0 {
			bw.WriteByte(',')
		}
		bw.WriteByte('"')
		bw.WriteString(strings.ReplaceAll(cellText(v, places), `"`, `""`))
		bw.WriteByte('"')
	}
}

func cellText(v any, places int32) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case decimal.Decimal:
		return x.StringFixed(places)
	default:
		return fmt.Sprint(x)
	}
}

// WriteXLSX writes the table as a single-sheet workbook with a bold header
// row. Column widths follow the header: max(len+2, 12).
func WriteXLSX(w io.Writer, t *Table, opts Options) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := opts.SheetName
	if sheet == "" {
		sheet = DefaultOptions().SheetName
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	for i, label := range t.Header() {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, label); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, float64(max(len(label)+2, 12))); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	if len(t.Columns) > 0 {
		bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("failed to create header style: %w", err)
		}
		last, _ := excelize.CoordinatesToCellName(len(t.Columns), 1)
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
	}

	for r, row := range t.Rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if d, ok := v.(decimal.Decimal); ok {
				v = d.InexactFloat64()
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write %s: %w", cell, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
