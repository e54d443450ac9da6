package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/branchpnl/pnl-dashboard/internal/types"
)

func num(v float64) *float64 { return &v }

func str(s string) *string { return &s }

func sampleQuarter() *types.Quarter {
	return &types.Quarter{
		ID: "2024-Q3",
		ParseResult: types.ParseResult{
			LineItemKeys: []string{"sales", "rent", "sales"},
			LineItemMeta: []types.LineItemMeta{
				{Label: "Sales", Key: "sales", Indent: 2},
				{Label: "Rent", Key: "rent", Indent: 2},
				{Label: "Sales", Key: "sales", Indent: 4},
			},
			Branches: []types.Branch{
				{
					BranchName: `Fair "field"`,
					Company:    "Acme Ltd",
					ID:         "018",
					LineItems:  map[string]*float64{"sales": num(1234.567), "rent": nil},
					NetIncome:  num(1000),
					PNL3:       num(30),
					PNL5:       num(50),
				},
				{
					BranchName: "Hollybush",
					Company:    "Unknown",
					ID:         "-",
					LineItems:  map[string]*float64{"sales": num(-10), "rent": num(5)},
				},
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatCSV, "CSV": FormatCSV, "xlsx": FormatXLSX, " excel ": FormatXLSX} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("pdf")
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Branch_PnL_2024-Q3_Export.csv", FileName("2024-Q3", FormatCSV))
	assert.Equal(t, "Branch_PnL_Export_Export.xlsx", FileName("", FormatXLSX))
}

func TestColumns_DedupesLineItems(t *testing.T) {
	var keys []string
	for _, c := range Columns(sampleQuarter()) {
		keys = append(keys, c.Key)
	}
	assert.Equal(t, []string{"id", "branchName", "company", "sales", "rent", "pnl3", "pnl5", "notes"}, keys)
}

func TestBuild_SelectionKeepsFixedColumns(t *testing.T) {
	q := sampleQuarter()
	tbl := Build(q, q.Branches, nil, Options{Columns: []string{"rent"}, Places: 2})
	assert.Equal(t, []string{"ID", "Branch", "Company", "Rent", "3%", "5%"}, tbl.Header())
	require.Len(t, tbl.Rows, 2)
	assert.Nil(t, tbl.Rows[0][3])
	assert.True(t, decimal.NewFromInt(5).Equal(tbl.Rows[1][3].(decimal.Decimal)))
}

func TestWriteCSV(t *testing.T) {
	q := sampleQuarter()
	states := map[string]types.BranchState{`Fair "field"`: {Notes: str("check rent")}}
	tbl := Build(q, q.Branches, states, DefaultOptions())

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl, DefaultOptions()))
	out := buf.String()

	require.True(t, strings.HasPrefix(out, "\ufeff"))
	lines := strings.Split(strings.TrimPrefix(out, "\ufeff"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `"ID","Branch","Company","Sales","Rent","3%","5%","Notes"`, lines[0])
	assert.Equal(t, `"018","Fair ""field""","Acme Ltd","1234.57","","30.00","50.00","check rent"`, lines[1])
	assert.Equal(t, `"-","Hollybush","Unknown","-10.00","5.00","","",""`, lines[2])
}

func TestWriteCSV_NoBOM(t *testing.T) {
	q := sampleQuarter()
	opts := DefaultOptions()
	opts.ByteOrderMark = false
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, Build(q, nil, nil, opts), opts))
	assert.Equal(t, `"ID","Branch","Company","Sales","Rent","3%","5%","Notes"`, buf.String())
}

func TestWriteXLSX(t *testing.T) {
	q := sampleQuarter()
	opts := DefaultOptions()
	tbl := Build(q, q.Branches, nil, opts)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, tbl, opts))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, "Branch P&L", f.GetSheetName(0))
	rows, err := f.GetRows("Branch P&L")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, tbl.Header(), rows[0])
	assert.Equal(t, "Fair \"field\"", rows[1][1])

	v, err := f.GetCellValue("Branch P&L", "D2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "1234.57", v)

	rent, err := f.GetCellValue("Branch P&L", "E2")
	require.NoError(t, err)
	assert.Empty(t, rent)

	width, err := f.GetColWidth("Branch P&L", "A")
	require.NoError(t, err)
	assert.Equal(t, 12.0, width)
}

func TestWrite_UnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, Format("pdf"), &Table{}, DefaultOptions()))
}
