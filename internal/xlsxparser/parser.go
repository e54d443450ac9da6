// =============================================================================
// Branch P&L Dashboard - Spreadsheet Grid Reader
// =============================================================================
//
// This module turns an uploaded workbook into a Grid: the first sheet's cells
// as a 2D array of typed values, addressed by zero-based row and column.
//
// Each cell is one of:
//   - Empty  : no value in the source file
//   - Number : a numeric cell (or a formula cell whose cached result is numeric)
//   - String : anything else, text kept exactly as stored (leading spaces
//              matter to the P&L parser, which reads them as indentation)
//
// SUPPORTED FORMATS:
//   - .xlsx / .xlsm via excelize
//   - .xls (BIFF) via extrame/xls
//
// Only the first sheet is read. Workbook/sheet selection is not supported.
//
// =============================================================================

package xlsxparser

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// ErrUnreadableWorkbook wraps every failure coming from the underlying
// spreadsheet libraries.
var ErrUnreadableWorkbook = errors.New("unable to read workbook")

// ErrUnsupportedFormat is returned for file extensions other than .xlsx/.xls.
var ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")

// =============================================================================
// CELL AND GRID
// =============================================================================

// CellKind identifies the type of value held by a Cell.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellNumber
	CellString
)

// Cell is a single typed spreadsheet value.
type Cell struct {
	Kind   CellKind
	Number float64
	Text   string
}

// NumberCell returns a numeric cell.
func NumberCell(v float64) Cell { return Cell{Kind: CellNumber, Number: v} }

// StringCell returns a text cell. The text is stored verbatim.
func StringCell(s string) Cell { return Cell{Kind: CellString, Text: s} }

// IsEmpty reports whether the cell holds no value.
func (c Cell) IsEmpty() bool { return c.Kind == CellEmpty }

// IsNumber reports whether the cell holds a number.
func (c Cell) IsNumber() bool { return c.Kind == CellNumber }

// IsString reports whether the cell holds text.
func (c Cell) IsString() bool { return c.Kind == CellString }

// String renders the cell as text. Numbers use the shortest representation.
func (c Cell) String() string {
	switch c.Kind {
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case CellString:
		return c.Text
	default:
		return ""
	}
}

// Grid is an immutable, fully loaded sheet.
type Grid struct {
	// SheetName is the name of the sheet the grid was read from.
	SheetName string

	rows   [][]Cell
	maxCol int
}

// NewGrid builds a grid from rows of cells. Rows may have different lengths.
func NewGrid(sheetName string, rows [][]Cell) *Grid {
	g := &Grid{SheetName: sheetName, rows: rows, maxCol: -1}
	for _, row := range rows {
		if len(row)-1 > g.maxCol {
			g.maxCol = len(row) - 1
		}
	}
	return g
}

// MaxRow is the last row index, or -1 for an empty sheet.
func (g *Grid) MaxRow() int { return len(g.rows) - 1 }

// MaxCol is the last column index across all rows, or -1 for an empty sheet.
func (g *Grid) MaxCol() int { return g.maxCol }

// Cell returns the cell at (row, col). Out-of-range addresses are empty.
func (g *Grid) Cell(row, col int) Cell {
	if row < 0 || row >= len(g.rows) || col < 0 || col >= len(g.rows[row]) {
		return Cell{}
	}
	return g.rows[row][col]
}

// Ref returns the A1-style range covered by the grid, e.g. "A1:F120".
func (g *Grid) Ref() string {
	if g.MaxRow() < 0 || g.maxCol < 0 {
		return ""
	}
	end, err := excelize.CoordinatesToCellName(g.maxCol+1, g.MaxRow()+1)
	if err != nil {
		return ""
	}
	return "A1:" + end
}

// =============================================================================
// READERS
// =============================================================================

// ReadFile dispatches on the file name extension. The name is only used to
// pick the decoder; data holds the file contents.
func ReadFile(name string, data []byte) (*Grid, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(data)
	case ".xls":
		return ReadXLS(data)
	default:
		return nil, fmt.Errorf("%w: %q (expected .xlsx or .xls)", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// IsSupported reports whether the file name has a readable extension.
func IsSupported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xls":
		return true
	}
	return false
}

// ReadXLSX reads the first sheet of an Office Open XML workbook.
func ReadXLSX(data []byte) (*Grid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadableWorkbook)
	}

	// Raw values keep numbers unformatted ("1234.5" rather than "1,234.50").
	rawRows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read rows: %v", ErrUnreadableWorkbook, err)
	}

	rows := make([][]Cell, len(rawRows))
	for r, rawRow := range rawRows {
		rows[r] = make([]Cell, len(rawRow))
		for c, raw := range rawRow {
			if raw == "" {
				continue
			}
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
			}
			cellType, err := f.GetCellType(sheetName, axis)
			if err != nil {
				return nil, fmt.Errorf("%w: cell %s: %v", ErrUnreadableWorkbook, axis, err)
			}
			rows[r][c] = classifyXLSX(raw, cellType)
		}
	}

	return NewGrid(sheetName, rows), nil
}

// classifyXLSX maps an excelize cell type and raw value onto a Cell.
// Number cells usually carry no explicit type attribute, so Unset is treated
// as numeric when the raw value parses.
func classifyXLSX(raw string, cellType excelize.CellType) Cell {
	switch cellType {
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if v, ok := parseNumber(raw); ok {
			return NumberCell(v)
		}
		return StringCell(raw)
	case excelize.CellTypeBool:
		if raw == "1" {
			return StringCell("TRUE")
		}
		return StringCell("FALSE")
	default:
		return StringCell(raw)
	}
}

// ReadXLS reads the first sheet of a legacy BIFF workbook.
//
// extrame/xls renders every cell as text, so numeric cells are recovered by
// parsing. Thousands separators are tolerated.
func ReadXLS(data []byte) (grid *Grid, err error) {
	// The decoder panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			grid = nil
			err = fmt.Errorf("%w: %v", ErrUnreadableWorkbook, r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	if wb.NumSheets() == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadableWorkbook)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadableWorkbook)
	}

	rows := make([][]Cell, int(sheet.MaxRow)+1)
	for r := 0; r <= int(sheet.MaxRow); r++ {
		row := sheet.Row(r)
		if row == nil {
			continue
		}
		last := row.LastCol()
		cells := make([]Cell, last+1)
		for c := row.FirstCol(); c <= last; c++ {
			cells[c] = classifyText(row.Col(c))
		}
		rows[r] = trimTrailingEmpty(cells)
	}

	return NewGrid(sheet.Name, trimTrailingEmptyRows(rows)), nil
}

// classifyText infers the kind of a cell whose value is only available as text.
func classifyText(s string) Cell {
	if s == "" {
		return Cell{}
	}
	if v, ok := parseNumber(s); ok {
		return NumberCell(v)
	}
	return StringCell(s)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func trimTrailingEmpty(cells []Cell) []Cell {
	end := len(cells)
	for end > 0 && cells[end-1].IsEmpty() {
		end--
	}
	return cells[:end]
}

func trimTrailingEmptyRows(rows [][]Cell) [][]Cell {
	end := len(rows)
	for end > 0 && len(rows[end-1]) == 0 {
		end--
	}
	return rows[:end]
}

// parseNumber accepts plain decimal or scientific notation with optional
// thousands separators. Words such as "NaN" or "Inf" are rejected.
func parseNumber(s string) (float64, bool) {
	t := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if t == "" {
		return 0, false
	}
	for _, r := range t {
		if !strings.ContainsRune("0123456789.-+eE", r) {
			return 0, false
		}
	}
	v, err := strconv.ParseFloat(t, 64)
	return v, err == nil
}
