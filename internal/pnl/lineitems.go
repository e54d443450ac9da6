package pnl

import (
	"fmt"
	"strings"
	"unicode"
)

// LineItem is one financial row of the report.
type LineItem struct {
	// Row is the zero-based grid row the label was read from.
	Row int

	// Label is the trimmed label text.
	Label string

	// Key is the normalized identifier, see NormalizeKey.
	Key string

	// Indent counts the leading whitespace characters of the raw label.
	// Higher means nested deeper.
	Indent int

	// IsTotal marks subtotal rows ("Total Revenue", "Total Payroll", ...).
	IsTotal bool
}

const createdOnPrefix = "created on"

// bottomLineLabels are the trimmed lowercase labels of the net income row.
var bottomLineLabels = map[string]bool{
	"net income":        true,
	"net income (loss)": true,
}

// NormalizeKey turns a line-item label into a stable key: trimmed, lowercased,
// every character other than ASCII letters, digits and whitespace dropped, and
// whitespace runs collapsed to a single underscore.
//
// Underscores count as whitespace so that a key normalizes to itself.
func NormalizeKey(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))

	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if inSpace {
				b.WriteByte('_')
				inSpace = false
			}
			b.WriteRune(r)
		case r == '_' || unicode.IsSpace(r):
			inSpace = true
		}
	}
	// Whitespace left at the end once punctuation is gone still yields an
	// underscore, matching keys stored by earlier releases.
	if inSpace {
		b.WriteByte('_')
	}
	return b.String()
}

// leadingWhitespace counts the whitespace characters before the first
// non-whitespace character.
func leadingWhitespace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			break
		}
		n++
	}
	return n
}

// ExtractLineItems scans column A from startRow to endRow (inclusive) and
// returns the line items in row order together with the bottom-line row, or
// -1 when no net income row exists. Duplicate keys are kept.
func ExtractLineItems(s Sheet, startRow, endRow int) ([]LineItem, int, error) {
	var items []LineItem
	bottomLine := -1

	for row := max(startRow, 0); row <= endRow; row++ {
		cell := s.Cell(row, labelCol)
		if cell.IsEmpty() {
			continue
		}
		label := cell.String()
		trimmed := strings.TrimSpace(label)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, createdOnPrefix) {
			continue
		}

		key := NormalizeKey(trimmed)
		if key == "" {
			continue
		}

		items = append(items, LineItem{
			Row:     row,
			Label:   trimmed,
			Key:     key,
			Indent:  leadingWhitespace(label),
			IsTotal: strings.HasPrefix(lower, "total "),
		})

		// Last match wins.
		if bottomLineLabels[lower] {
			bottomLine = row
		}
	}

	if len(items) == 0 {
		return nil, -1, fmt.Errorf("%w: no labels in column A of rows %d-%d; check file format",
			ErrNoLineItemsDetected, startRow+1, endRow+1)
	}
	return items, bottomLine, nil
}
