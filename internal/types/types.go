// =============================================================================
// Branch P&L Dashboard - Shared Types
// =============================================================================
//
// This package contains the types shared by the parser, the store, the
// exporters and the HTTP layer. Keeping them here avoids import cycles between:
//   - pnl        (produces ParseResult)
//   - store      (persists Quarter documents)
//   - export     (reads Branches and LineItemKeys)
//   - dashboard  (filters and sorts Branches)
//
// JSON field names match the documents written by earlier releases of the
// dashboard, so stored quarters stay readable.
//
// =============================================================================

package types

import "time"

// =============================================================================
// PARSER OUTPUT
// =============================================================================

// LineItemMeta describes one financial row of a quarter in source order.
type LineItemMeta struct {
	Label  string `json:"label"`
	Key    string `json:"key"`
	Indent int    `json:"indent"`
}

// Branch is the per-location record built from one spreadsheet column.
type Branch struct {
	// BranchName is the trimmed location name from the header row.
	BranchName string `json:"branchName"`

	// Company is resolved from the directory; "Unknown" when absent.
	Company string `json:"company"`

	// ID is resolved from the directory; "-" when absent.
	ID string `json:"id"`

	// LineItems maps a line-item key to its value. A nil value means the
	// source cell was empty or not numeric.
	LineItems map[string]*float64 `json:"lineItems"`

	// NetIncome is the bottom-line figure for the branch.
	NetIncome *float64 `json:"netIncome"`

	// PNL3 and PNL5 are the 3% and 5% profit-share figures.
	PNL3 *float64 `json:"pnl3"`
	PNL5 *float64 `json:"pnl5"`
}

// ParseResult is the unit persisted per quarter.
type ParseResult struct {
	LineItemLabels []string       `json:"lineItemLabels"`
	LineItemKeys   []string       `json:"lineItemKeys"`
	LineItemMeta   []LineItemMeta `json:"lineItemMeta"`
	Branches       []Branch       `json:"branches"`
	LocationCount  int            `json:"locationCount"`
}

// =============================================================================
// DIRECTORY
// =============================================================================

// Directory holds the branch name lookups supplied to the parser.
// Lookups are exact-string; the parser never mutates a Directory.
type Directory struct {
	Companies map[string]string `json:"companies" yaml:"companies"`
	BranchIDs map[string]string `json:"branchIds" yaml:"branch_ids"`
}

// Company returns the company for a branch name, or "Unknown".
func (d Directory) Company(branchName string) string {
	if c, ok := d.Companies[branchName]; ok && c != "" {
		return c
	}
	return "Unknown"
}

// BranchID returns the identifier for a branch name, or "-".
func (d Directory) BranchID(branchName string) string {
	if id, ok := d.BranchIDs[branchName]; ok && id != "" {
		return id
	}
	return "-"
}

// IsEmpty reports whether neither map holds an entry.
func (d Directory) IsEmpty() bool {
	return len(d.Companies) == 0 && len(d.BranchIDs) == 0
}

// =============================================================================
// STORED DOCUMENTS
// =============================================================================

// Quarter is the stored document for one uploaded quarter.
type Quarter struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	DateRange string `json:"dateRange"`

	// SourceFile is the base name of the uploaded spreadsheet.
	SourceFile string `json:"sourceFile,omitempty"`

	ParseResult

	UploadedAt time.Time `json:"uploadedAt"`
}

// QuarterSummary is the listing entry for a stored quarter.
type QuarterSummary struct {
	ID            string    `json:"id"`
	Label         string    `json:"label"`
	LocationCount int       `json:"locationCount"`
	UploadedAt    time.Time `json:"uploadedAt"`
}

// BranchState is the user-maintained state attached to a branch within a
// quarter. Pointer fields let a partial update leave other fields untouched.
type BranchState struct {
	Notes     *string `json:"notes,omitempty"`
	Archived  *bool   `json:"archived,omitempty"`
	ExportCol *bool   `json:"exportCol,omitempty"`
}

// Merge overlays the non-nil fields of patch onto s.
func (s BranchState) Merge(patch BranchState) BranchState {
	if patch.Notes != nil {
		s.Notes = patch.Notes
	}
	if patch.Archived != nil {
		s.Archived = patch.Archived
	}
	if patch.ExportCol != nil {
		s.ExportCol = patch.ExportCol
	}
	return s
}

// IsArchived reports whether the branch is hidden from the main table.
func (s BranchState) IsArchived() bool {
	return s.Archived != nil && *s.Archived
}

// NotesText returns the notes or an empty string.
func (s BranchState) NotesText() string {
	if s.Notes == nil {
		return ""
	}
	return *s.Notes
}
