package xlsxparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, cells map[string]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for axis, v := range cells {
		require.NoError(t, f.SetCellValue(sheet, axis, v))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestReadXLSX_TypedCells(t *testing.T) {
	data := buildWorkbook(t, map[string]any{
		"A1": "  Payroll",
		"B1": 1250.75,
		"C1": "123",
		"B3": -40,
		"D2": "Branch A",
	})

	g, err := ReadXLSX(data)
	require.NoError(t, err)

	assert.Equal(t, "Sheet1", g.SheetName)
	assert.Equal(t, 2, g.MaxRow())
	assert.Equal(t, 3, g.MaxCol())
	assert.Equal(t, "A1:D3", g.Ref())

	label := g.Cell(0, 0)
	require.True(t, label.IsString())
	assert.Equal(t, "  Payroll", label.Text, "leading whitespace must survive")

	num := g.Cell(0, 1)
	require.True(t, num.IsNumber())
	assert.InDelta(t, 1250.75, num.Number, 1e-9)

	text := g.Cell(0, 2)
	assert.True(t, text.IsString(), "numeric-looking text stays text")

	assert.True(t, g.Cell(2, 1).IsNumber())
	assert.Equal(t, -40.0, g.Cell(2, 1).Number)

	assert.True(t, g.Cell(1, 0).IsEmpty())
	assert.True(t, g.Cell(99, 99).IsEmpty())
	assert.True(t, g.Cell(-1, 0).IsEmpty())
}

func TestReadXLSX_Garbage(t *testing.T) {
	_, err := ReadXLSX([]byte("definitely not a zip archive"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadableWorkbook)
}

func TestReadXLS_Garbage(t *testing.T) {
	_, err := ReadXLS([]byte("not an ole2 compound document"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadableWorkbook)
}

func TestReadFile_Dispatch(t *testing.T) {
	data := buildWorkbook(t, map[string]any{"A1": "x"})

	g, err := ReadFile("Q3 2024.XLSX", data)
	require.NoError(t, err)
	assert.Equal(t, "x", g.Cell(0, 0).Text)

	_, err = ReadFile("report.csv", data)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	assert.True(t, IsSupported("a.xls"))
	assert.True(t, IsSupported("a.xlsx"))
	assert.False(t, IsSupported("a.pdf"))
}

func TestClassifyText(t *testing.T) {
	tests := []struct {
		in   string
		kind CellKind
		num  float64
	}{
		{"", CellEmpty, 0},
		{"1,234.50", CellNumber, 1234.5},
		{"-12", CellNumber, -12},
		{"1e3", CellNumber, 1000},
		{"NaN", CellString, 0},
		{"Inf", CellString, 0},
		{"  Rent", CellString, 0},
		{"Net Income (Loss)", CellString, 0},
	}
	for _, tt := range tests {
		c := classifyText(tt.in)
		assert.Equal(t, tt.kind, c.Kind, tt.in)
		if tt.kind == CellNumber {
			assert.InDelta(t, tt.num, c.Number, 1e-9, tt.in)
		}
	}
}

func TestCellString(t *testing.T) {
	assert.Equal(t, "1250.5", NumberCell(1250.5).String())
	assert.Equal(t, " a ", StringCell(" a ").String())
	assert.Equal(t, "", Cell{}.String())
}

func TestNewGrid_Ragged(t *testing.T) {
	g := NewGrid("s", [][]Cell{
		{StringCell("a")},
		nil,
		{Cell{}, Cell{}, NumberCell(3)},
	})
	assert.Equal(t, 2, g.MaxRow())
	assert.Equal(t, 2, g.MaxCol())
	assert.True(t, g.Cell(1, 0).IsEmpty())
	assert.Equal(t, 3.0, g.Cell(2, 2).Number)

	empty := NewGrid("e", nil)
	assert.Equal(t, -1, empty.MaxRow())
	assert.Equal(t, -1, empty.MaxCol())
	assert.Equal(t, "", empty.Ref())
}
