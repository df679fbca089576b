package xlrd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func dataSheet(t *testing.T, opts *OpenWorkbookOptions) *Sheet {
	t.Helper()
	book, _ := openBytes(t, cfbWorkbook("Workbook", sampleWorkbook()), opts)
	sh, err := book.SheetByName("Data")
	require.NoError(t, err)
	return sh
}

func TestCellValues(t *testing.T) {
	sheet := dataSheet(t, nil)
	if sheet.NRows != 4 || sheet.NCols != 3 {
		t.Fatalf("sheet size = (%d, %d), want (4, 3)", sheet.NRows, sheet.NCols)
	}

	tests := []struct {
		rowx, colx int
		ctype      int
		value      interface{}
		xfx        int
	}{
		{0, 0, XL_CELL_NUMBER, 1.5, 15},
		{0, 1, XL_CELL_NUMBER, 42.0, 15},
		{0, 2, XL_CELL_TEXT, "beta", 15},
		{1, 0, XL_CELL_DATE, 38406.0, xfDate},
		{1, 1, XL_CELL_BOOLEAN, 1, 15},
		{1, 2, XL_CELL_ERROR, 0x07, 15},
		{2, 0, XL_CELL_TEXT, "plain", 15},
		{2, 1, XL_CELL_NUMBER, 3.0, xfFixed},
		{2, 2, XL_CELL_TEXT, "from formula", 15},
		{3, 0, XL_CELL_NUMBER, 7.0, 15},
		{3, 1, XL_CELL_DATE, 61.0, xfStdDate},
		{3, 2, XL_CELL_EMPTY, "", -1},
	}

	for _, tt := range tests {
		cell, err := sheet.Cell(tt.rowx, tt.colx)
		if err != nil {
			t.Errorf("Cell(%d, %d) error = %v", tt.rowx, tt.colx, err)
			continue
		}
		if cell.CType != tt.ctype {
			t.Errorf("Cell(%d, %d).CType = %d, want %d", tt.rowx, tt.colx, cell.CType, tt.ctype)
		}
		if cell.Value != tt.value {
			t.Errorf("Cell(%d, %d).Value = %#v, want %#v", tt.rowx, tt.colx, cell.Value, tt.value)
		}
		if cell.XFIndex != tt.xfx {
			t.Errorf("Cell(%d, %d).XFIndex = %d, want %d", tt.rowx, tt.colx, cell.XFIndex, tt.xfx)
		}
		if got := sheet.CellValue(tt.rowx, tt.colx); got != tt.value {
			t.Errorf("CellValue(%d, %d) = %#v, want %#v", tt.rowx, tt.colx, got, tt.value)
		}
		if got := sheet.CellType(tt.rowx, tt.colx); got != tt.ctype {
			t.Errorf("CellType(%d, %d) = %d, want %d", tt.rowx, tt.colx, got, tt.ctype)
		}
	}
}

func TestCellString(t *testing.T) {
	sheet := dataSheet(t, nil)
	tests := []struct {
		rowx, colx int
		want       string
	}{
		{0, 0, "number:1.5"},
		{0, 2, `text:"beta"`},
		{1, 0, "xldate:38406"},
		{1, 1, "bool:1"},
		{1, 2, "error:#DIV/0!"},
		{3, 2, "empty:''"},
	}
	for _, tt := range tests {
		cell, err := sheet.Cell(tt.rowx, tt.colx)
		require.NoError(t, err)
		if got := cell.String(); got != tt.want {
			t.Errorf("Cell(%d, %d).String() = %q, want %q", tt.rowx, tt.colx, got, tt.want)
		}
	}
	require.Equal(t, "blank:''", (&Cell{CType: XL_CELL_BLANK, Value: ""}).String())
}

func TestFormulaCells(t *testing.T) {
	sheet := dataSheet(t, nil)

	cell, err := sheet.Cell(2, 1)
	require.NoError(t, err)
	require.True(t, cell.IsFormula())
	require.Equal(t, []byte{0x1E, 0x03, 0x00}, cell.Formula)

	cell, err = sheet.Cell(2, 2)
	require.NoError(t, err)
	require.True(t, cell.IsFormula())
	require.Equal(t, "from formula", cell.Value)

	cell, err = sheet.Cell(0, 0)
	require.NoError(t, err)
	require.False(t, cell.IsFormula())
}

func TestDateCellConversion(t *testing.T) {
	book, _ := openBytes(t, cfbWorkbook("Workbook", sampleWorkbook()), nil)
	sheet, err := book.SheetByIndex(0)
	require.NoError(t, err)

	tests := []struct {
		rowx, colx int
		want       DateTuple
	}{
		{1, 0, DateTuple{2005, 2, 23, 0, 0, 0}},
		{3, 1, DateTuple{1900, 3, 1, 0, 0, 0}},
	}
	for _, tt := range tests {
		cell, err := sheet.Cell(tt.rowx, tt.colx)
		require.NoError(t, err)
		require.Equal(t, XL_CELL_DATE, cell.CType)
		got, err := XldateAsTuple(cell.Value.(float64), book.Datemode)
		require.NoError(t, err)
		if got != tt.want {
			t.Errorf("date at (%d, %d) = %v, want %v", tt.rowx, tt.colx, got, tt.want)
		}
	}

	// the integer cell before it is a date only by its XF
	_, err = XldateAsTuple(sheet.CellValue(3, 0).(float64), book.Datemode)
	require.True(t, ErrXLDateAmbiguous.Is(err), "got %v", err)
}

func TestUnpackRK(t *testing.T) {
	tests := []struct {
		rk   []byte
		want float64
	}{
		// integer
		{[]byte{0x02, 0x00, 0x00, 0x00}, 0},
		{[]byte{0xA6, 0x00, 0x00, 0x00}, 41},
		// integer divided by 100
		{[]byte{0x03, 0x01, 0x00, 0x00}, 0.64},
		// negative integer
		{[]byte{0xFE, 0xFF, 0xFF, 0xFF}, -1},
		// top 30 bits of a float64: 1.0 is 0x3FF00000...
		{[]byte{0x00, 0x00, 0xF0, 0x3F}, 1},
		// 1.0 / 100
		{[]byte{0x01, 0x00, 0xF0, 0x3F}, 0.01},
	}
	for _, tt := range tests {
		if got := unpackRK(tt.rk); !almostEqual(got, tt.want, 1e-12) {
			t.Errorf("unpackRK(% x) = %v, want %v", tt.rk, got, tt.want)
		}
	}
}

// Helper function to compare floats with tolerance
func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}
