package pnl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/branchpnl/pnl-dashboard/internal/xlsxparser"
)

// Sheet is the read-only grid the parser works on. *xlsxparser.Grid satisfies it.
type Sheet interface {
	MaxRow() int
	MaxCol() int
	Cell(row, col int) xlsxparser.Cell
}

const (
	// labelCol holds line-item labels; it is never a location column.
	labelCol = 0

	// anchorCol holds the "Quarter Ending" label.
	anchorCol = 1

	anchorText = "quarter ending"

	// headerRowsBelowNames is the number of rows between the location-name
	// row and the first line item: the names row itself, the "Quarter Ending"
	// row and the period/date row.
	headerRowsBelowNames = 3

	// DefaultHeaderScanRows is the last row inspected by the heuristic search.
	DefaultHeaderScanRows = 20
)

// Layout is where a locator found the report inside the grid.
type Layout struct {
	// LocationRow holds the branch names.
	LocationRow int

	// ScanStart and ScanEnd bound the rows searched for line items (inclusive).
	ScanStart int
	ScanEnd   int
}

// HeaderLocator finds the location-name row and the line-item window.
type HeaderLocator interface {
	Locate(s Sheet) (Layout, error)
	Name() string
}

// =============================================================================
// HEURISTIC SEARCH
// =============================================================================

// HeuristicLocator searches the top of column B for the "Quarter Ending"
// label; branch names sit in the row directly above it.
type HeuristicLocator struct {
	// MaxScanRow is the last row inspected. Zero means DefaultHeaderScanRows.
	MaxScanRow int
}

func (h HeuristicLocator) Name() string { return "heuristic" }

// Locate scans rows in ascending order; the first match wins.
func (h HeuristicLocator) Locate(s Sheet) (Layout, error) {
	limit := h.MaxScanRow
	if limit <= 0 {
		limit = DefaultHeaderScanRows
	}
	last := min(s.MaxRow(), limit)

	for row := 0; row <= last; row++ {
		cell := s.Cell(row, anchorCol)
		if !cell.IsString() || strings.ToLower(strings.TrimSpace(cell.Text)) != anchorText {
			continue
		}
		// An anchor in the first row leaves no room for the names above it.
		if row == 0 {
			break
		}
		locationRow := row - 1
		return Layout{
			LocationRow: locationRow,
			ScanStart:   locationRow + headerRowsBelowNames,
			ScanEnd:     s.MaxRow(),
		}, nil
	}

	return Layout{}, fmt.Errorf(`%w: could not find "Quarter Ending" in column B of rows 1-%d; check file format`,
		ErrLayoutNotRecognized, last+1)
}

// =============================================================================
// FIXED TEMPLATE
// =============================================================================

// Legacy template offsets.
const (
	DefaultFixedLocationRow = 6
	DefaultFixedScanStart   = 10
	DefaultFixedScanEnd     = 60
)

// FixedLocator serves spreadsheets that follow the legacy fixed template:
// names on a known row and line items in a known window.
type FixedLocator struct {
	LocationRow int
	ScanStart   int
	ScanEnd     int
}

// DefaultFixedLocator returns the legacy template offsets.
func DefaultFixedLocator() FixedLocator {
	return FixedLocator{
		LocationRow: DefaultFixedLocationRow,
		ScanStart:   DefaultFixedScanStart,
		ScanEnd:     DefaultFixedScanEnd,
	}
}

func (f FixedLocator) Name() string { return "fixed" }

// Locate only checks that the grid is tall enough for the template.
func (f FixedLocator) Locate(s Sheet) (Layout, error) {
	if f.LocationRow < 0 || f.ScanStart > f.ScanEnd {
		return Layout{}, fmt.Errorf("%w: invalid fixed layout (names row %d, window %d-%d)",
			ErrLayoutNotRecognized, f.LocationRow+1, f.ScanStart+1, f.ScanEnd+1)
	}
	if s.MaxRow() < f.ScanStart {
		return Layout{}, fmt.Errorf("%w: sheet has %d rows, fixed template expects line items from row %d",
			ErrLayoutNotRecognized, s.MaxRow()+1, f.ScanStart+1)
	}
	return Layout{
		LocationRow: f.LocationRow,
		ScanStart:   f.ScanStart,
		ScanEnd:     min(f.ScanEnd, s.MaxRow()),
	}, nil
}

// =============================================================================
// FALLBACK CHAIN
// =============================================================================

// FallbackLocator tries each locator in order and returns the first success.
type FallbackLocator []HeaderLocator

func (c FallbackLocator) Name() string {
	names := make([]string, len(c))
	for i, l := range c {
		names[i] = l.Name()
	}
	return strings.Join(names, "+")
}

func (c FallbackLocator) Locate(s Sheet) (Layout, error) {
	var errs []error
	for _, l := range c {
		layout, err := l.Locate(s)
		if err == nil {
			return layout, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Layout{}, fmt.Errorf("%w: no layout strategy configured", ErrLayoutNotRecognized)
	}
	return Layout{}, errors.Join(errs...)
}

// Layout modes accepted by NewLocator.
const (
	ModeHeuristic = "heuristic"
	ModeFixed     = "fixed"
	ModeAuto      = "auto"
)

// NewLocator builds the locator for a configured mode. Auto tries the
// heuristic search first and falls back to the fixed template.
func NewLocator(mode string, heuristic HeuristicLocator, fixed FixedLocator) (HeaderLocator, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeHeuristic:
		return heuristic, nil
	case ModeFixed:
		return fixed, nil
	case ModeAuto:
		return FallbackLocator{heuristic, fixed}, nil
	default:
		return nil, fmt.Errorf("unknown layout mode %q (want heuristic, fixed or auto)", mode)
	}
}

// =============================================================================
// LOCATION COLUMNS
// =============================================================================

// LocationColumn is one branch column discovered in the header row.
type LocationColumn struct {
	Col  int
	Name string
}

// LocateLocationColumns reads columns 1..MaxCol of the names row. Every
// non-blank text cell becomes a location, left to right.
func LocateLocationColumns(s Sheet, row int) ([]LocationColumn, error) {
	var cols []LocationColumn
	for col := labelCol + 1; col <= s.MaxCol(); col++ {
		cell := s.Cell(row, col)
		if !cell.IsString() {
			continue
		}
		name := strings.TrimSpace(cell.Text)
		if name == "" {
			continue
		}
		cols = append(cols, LocationColumn{Col: col, Name: name})
	}

	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no location names found in row %d; check file format",
			ErrNoBranchesDetected, row+1)
	}
	return cols, nil
}
