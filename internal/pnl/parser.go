// =============================================================================
// Branch P&L Dashboard - P&L Sheet Parser
// =============================================================================
//
// This package turns the grid of a quarterly P&L workbook into per-branch
// records. The layout of the report moves between releases, so nothing is
// addressed by fixed coordinates unless the fixed template is configured.
//
// SHEET LAYOUT (heuristic mode):
//
//	row L      |            | Branch A       | Branch B       | ...
//	row L+1    |            | Quarter Ending | Quarter Ending | ...
//	row L+2    |            | Sep 30, 2024   | Sep 30, 2024   | ...
//	row L+3..  | Revenue    |                |                |
//	           |   Sales    | 1000           | 1200           |
//	           | Net Income | 100            | 80             |
//
// PROCESSING FLOW:
//  1. Locate the header (the row above "Quarter Ending" in column B)
//  2. Read location names from that row, columns B onward
//  3. Extract line items from column A below the header block
//  4. Build one Branch per location column
//
// The parser is a pure function of (sheet, directory). It performs no I/O
// beyond optional debug logging and is safe for concurrent use.
//
// =============================================================================

package pnl

import (
	"fmt"
	"log/slog"

	"github.com/branchpnl/pnl-dashboard/internal/types"
	"github.com/branchpnl/pnl-dashboard/internal/xlsxparser"
)

// Options configures a Parser. The zero value selects the heuristic layout
// and the default net income keys.
type Options struct {
	// Locator finds the header and the line-item window.
	Locator HeaderLocator

	// NetIncomeKeys are the fallback keys used when no bottom-line row exists.
	NetIncomeKeys []string

	// Logger receives debug output. Nil means slog.Default().
	Logger *slog.Logger
}

// Parser parses P&L sheets.
type Parser struct {
	locator       HeaderLocator
	netIncomeKeys []string
	logger        *slog.Logger
}

// Report is the parse result together with what the parser found on the way.
type Report struct {
	Result types.ParseResult

	// Layout is the header position and the scanned window.
	Layout Layout

	// Items are the extracted line items, duplicates included.
	Items []LineItem

	// BottomLine is the net income row, or -1 when the fallback keys were used.
	BottomLine int
}

// New creates a Parser.
func New(opts Options) *Parser {
	p := &Parser{
		locator:       opts.Locator,
		netIncomeKeys: opts.NetIncomeKeys,
		logger:        opts.Logger,
	}
	if p.locator == nil {
		p.locator = HeuristicLocator{}
	}
	if len(p.netIncomeKeys) == 0 {
		p.netIncomeKeys = DefaultNetIncomeKeys
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Parse parses a sheet with the default options.
func Parse(s Sheet, dir types.Directory) (types.ParseResult, error) {
	return New(Options{}).Parse(s, dir)
}

// Parse runs the full pipeline on a sheet.
func (p *Parser) Parse(s Sheet, dir types.Directory) (types.ParseResult, error) {
	r, err := p.Analyze(s, dir)
	if err != nil {
		return types.ParseResult{}, err
	}
	return r.Result, nil
}

// ParseFile reads the first sheet of a workbook and parses it. name selects
// the decoder by extension.
func (p *Parser) ParseFile(name string, data []byte, dir types.Directory) (*Report, error) {
	grid, err := xlsxparser.ReadFile(name, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCellRead, err)
	}
	p.logger.Debug("workbook loaded",
		"file", name,
		"sheet", grid.SheetName,
		"range", grid.Ref())
	return p.Analyze(grid, dir)
}

// Analyze runs the full pipeline and keeps the intermediate findings.
func (p *Parser) Analyze(s Sheet, dir types.Directory) (*Report, error) {
	p.logger.Debug("parsing sheet",
		"max_row", s.MaxRow(),
		"max_col", s.MaxCol(),
		"layout", p.locator.Name())

	layout, err := p.locator.Locate(s)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("header located",
		"location_row", layout.LocationRow,
		"scan_start", layout.ScanStart,
		"scan_end", layout.ScanEnd)

	cols, err := LocateLocationColumns(s, layout.LocationRow)
	if err != nil {
		return nil, err
	}

	items, bottomLine, err := ExtractLineItems(s, layout.ScanStart, layout.ScanEnd)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("line items extracted",
		"locations", len(cols),
		"line_items", len(items),
		"bottom_line_row", bottomLine)

	result := types.ParseResult{
		LineItemLabels: make([]string, len(items)),
		LineItemKeys:   make([]string, len(items)),
		LineItemMeta:   make([]types.LineItemMeta, len(items)),
		Branches:       BuildBranches(s, items, cols, bottomLine, dir, p.netIncomeKeys),
		LocationCount:  len(cols),
	}
	for i, item := range items {
		result.LineItemLabels[i] = item.Label
		result.LineItemKeys[i] = item.Key
		result.LineItemMeta[i] = types.LineItemMeta{
			Label:  item.Label,
			Key:    item.Key,
			Indent: item.Indent,
		}
	}

	return &Report{
		Result:     result,
		Layout:     layout,
		Items:      items,
		BottomLine: bottomLine,
	}, nil
}
