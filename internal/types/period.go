package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidPeriod is returned for a year/quarter pair that cannot name a quarter.
var ErrInvalidPeriod = errors.New("invalid quarter period")

// Period identifies a reporting quarter.
type Period struct {
	Year    int
	Quarter int // 1..4
}

// NewPeriod validates a year and a quarter label such as "Q3" or "3".
func NewPeriod(year int, quarter string) (Period, error) {
	if year < 1000 || year > 9999 {
		return Period{}, fmt.Errorf("%w: year %d must have four digits", ErrInvalidPeriod, year)
	}
	q := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(quarter)), "Q")
	n, err := strconv.Atoi(q)
	if err != nil || n < 1 || n > 4 {
		return Period{}, fmt.Errorf("%w: quarter %q must be Q1-Q4", ErrInvalidPeriod, quarter)
	}
	return Period{Year: year, Quarter: n}, nil
}

// ID is the storage identifier, e.g. "2024-Q3".
func (p Period) ID() string {
	return fmt.Sprintf("%d-Q%d", p.Year, p.Quarter)
}

// Label is the display label, e.g. "Q3 2024".
func (p Period) Label() string {
	return fmt.Sprintf("Q%d %d", p.Quarter, p.Year)
}

func (p Period) String() string { return p.ID() }

var (
	yearFirst    = regexp.MustCompile(`(?i)(\d{4})[\s_-]*Q([1-4])`)
	quarterFirst = regexp.MustCompile(`(?i)Q([1-4])[\s_-]*(\d{4})`)
)

// ParsePeriodFromFilename extracts a period from names like
// "2024-Q3 P&L.xlsx" or "PnL_Q3_2024.xls".
func ParsePeriodFromFilename(name string) (Period, error) {
	if m := yearFirst.FindStringSubmatch(name); m != nil {
		year, _ := strconv.Atoi(m[1])
		return NewPeriod(year, m[2])
	}
	if m := quarterFirst.FindStringSubmatch(name); m != nil {
		year, _ := strconv.Atoi(m[2])
		return NewPeriod(year, m[1])
	}
	return Period{}, fmt.Errorf("%w: no quarter found in file name %q", ErrInvalidPeriod, name)
}

// ParsePeriodID parses a storage identifier produced by Period.ID.
func ParsePeriodID(id string) (Period, error) {
	year, q, ok := strings.Cut(id, "-")
	if !ok {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, id)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, id)
	}
	return NewPeriod(y, q)
}
