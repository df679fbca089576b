package xlrd

import (
	"testing"

	"github.com/stretchr/testify/require"

	tx "github.com/yamitzky/xlrd-go/v2/internal/testxls"
)

const (
	rowErr = 10
	colErr = 10
)

// layoutSheet exercises the sheet-level records: a merged range, row and
// column defaults, WINDOW2, and a blank that only counts with formatting.
func layoutSheet() tx.Sheet {
	return tx.Sheet{Name: "Layout", Records: [][]byte{
		tx.Dimension(5, 4),
		tx.Record(XL_DEFCOLWIDTH, tx.U16(10)),
		tx.Record(XL_STANDARDWIDTH, tx.U16(2560)),
		tx.ColInfo(2, 3, 3000, xfDate, 1),
		tx.Row(1, 300, xfStdDate),
		tx.Label(tx.BIFF80, 0, 0, 15, "top"),
		tx.LabelSST(2, 2, 15, 9),
		tx.Formula(2, 1, 15, tx.SpecialResult(2, 0x55), []byte{0x1C, 0x55}),
		tx.BoolErr(3, 0, 15, 0x99, true),
		tx.Number(3, 1, 15, 2),
		tx.Blank(4, 3, xfFixed),
		tx.Window2(0x063A, 0x17),
		tx.MergedCells([4]int{0, 1, 0, 1}),
	}}
}

func openLayout(t *testing.T, opts *OpenWorkbookOptions) (*Sheet, []string) {
	t.Helper()
	stream := tx.Workbook(tx.BIFF80, sampleGlobals(), []tx.Sheet{layoutSheet()})
	book, hook := openBytes(t, stream, opts)
	sh, err := book.SheetByIndex(0)
	require.NoError(t, err)
	return sh, warnings(hook)
}

func TestSheetDimensions(t *testing.T) {
	sheet, _ := openLayout(t, nil)
	require.Equal(t, 4, sheet.NRows)
	require.Equal(t, 3, sheet.NCols)
	require.Equal(t, 5, sheet.DimNRows)
	require.Equal(t, 4, sheet.DimNCols)
	require.Equal(t, 65536, sheet.UtterMaxRows)

	sheet, _ = openLayout(t, &OpenWorkbookOptions{FormattingInfo: true})
	require.Equal(t, 5, sheet.NRows)
	require.Equal(t, 4, sheet.NCols)
	cell, err := sheet.Cell(4, 3)
	require.NoError(t, err)
	require.Equal(t, XL_CELL_BLANK, cell.CType)
	require.Equal(t, xfFixed, cell.XFIndex)
}

func TestSheetCellError(t *testing.T) {
	sheet, _ := openLayout(t, nil)

	for _, pos := range [][2]int{{rowErr, 0}, {0, colErr}, {-1, 0}, {4, 0}} {
		_, err := sheet.Cell(pos[0], pos[1])
		if !ErrCellIndex.Is(err) {
			t.Errorf("Cell(%d, %d) error = %v, want ErrCellIndex", pos[0], pos[1], err)
		}
		_, err = sheet.RawCell(pos[0], pos[1])
		if !ErrCellIndex.Is(err) {
			t.Errorf("RawCell(%d, %d) error = %v, want ErrCellIndex", pos[0], pos[1], err)
		}
		if got := sheet.CellValue(pos[0], pos[1]); got != "" {
			t.Errorf("CellValue(%d, %d) = %#v, want empty", pos[0], pos[1], got)
		}
		if got := sheet.CellType(pos[0], pos[1]); got != XL_CELL_EMPTY {
			t.Errorf("CellType(%d, %d) = %d, want XL_CELL_EMPTY", pos[0], pos[1], got)
		}
		if got := sheet.CellXFIndex(pos[0], pos[1]); got != 15 {
			t.Errorf("CellXFIndex(%d, %d) = %d, want 15", pos[0], pos[1], got)
		}
	}

	_, err := sheet.Row(rowErr)
	require.True(t, ErrCellIndex.Is(err))
	_, err = sheet.Col(colErr)
	require.True(t, ErrCellIndex.Is(err))
	require.Nil(t, sheet.ColValues(colErr))
	require.Empty(t, sheet.RowValues(rowErr))
}

func TestSheetMergedCells(t *testing.T) {
	sheet, _ := openLayout(t, nil)
	require.Equal(t, [][4]int{{0, 2, 0, 2}}, sheet.MergedCells)

	for _, pos := range [][2]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}} {
		cell, err := sheet.Cell(pos[0], pos[1])
		require.NoError(t, err)
		if cell.Value != "top" {
			t.Errorf("Cell(%d, %d).Value = %#v, want top", pos[0], pos[1], cell.Value)
		}
	}
	raw, err := sheet.RawCell(1, 1)
	require.NoError(t, err)
	require.Equal(t, XL_CELL_EMPTY, raw.CType)
	require.Equal(t, "", sheet.RawCellValue(1, 1))
	require.Equal(t, XL_CELL_EMPTY, sheet.RawCellType(0, 1))

	require.Equal(t, []interface{}{"top", "top", ""}, sheet.RowValues(1))
	require.Equal(t, []int{XL_CELL_TEXT, XL_CELL_TEXT, XL_CELL_EMPTY}, sheet.RowTypes(1))
	require.Equal(t, []interface{}{"top", "top", "", UnknownErrorCode}, sheet.ColValues(0))
}

// xfSheet places cells with and without their own XF in rows with and
// without a default XF, in a column with and without one. Row 1 has a
// ROW record without a default, rows 2 and 4 have no ROW record.
func xfSheet() tx.Sheet {
	return tx.Sheet{Name: "XFs", Records: [][]byte{
		tx.ColInfo(1, 1, 3000, xfDate, 0),
		tx.Row(0, 300, xfStdDate),
		tx.Row(1, 300, -1),
		tx.Row(3, 300, xfStdDate),
		tx.Number(0, 0, xfFixed, 1),
		tx.Number(0, 1, xfFixed, 1),
		tx.Number(1, 0, xfFixed, 1),
		tx.Number(2, 1, xfFixed, 1),
		tx.Number(4, 2, 15, 1),
	}}
}

func TestSheetXFIndexFallback(t *testing.T) {
	stream := tx.Workbook(tx.BIFF80, sampleGlobals(), []tx.Sheet{xfSheet()})
	book, _ := openBytes(t, stream, nil)
	sheet, err := book.SheetByIndex(0)
	require.NoError(t, err)

	tests := []struct {
		name       string
		rowx, colx int
		want       int
	}{
		{"own, row default", 0, 0, xfFixed},
		{"own, row and column default", 0, 1, xfFixed},
		{"own only", 1, 0, xfFixed},
		{"own, column default", 2, 1, xfFixed},
		{"row default", 3, 0, xfStdDate},
		{"row default over column default", 3, 1, xfStdDate},
		{"column default, row without default", 1, 1, xfDate},
		{"column default, no row record", 4, 1, xfDate},
		{"nothing, no row record", 2, 0, 15},
		{"nothing, row without default", 1, 2, 15},
	}
	for _, tt := range tests {
		if got := sheet.RawCellXFIndex(tt.rowx, tt.colx); got != tt.want {
			t.Errorf("%s: RawCellXFIndex(%d, %d) = %d, want %d", tt.name, tt.rowx, tt.colx, got, tt.want)
		}
	}
	require.Equal(t, 15, sheet.RawCellXFIndex(10, 10), "outside the sheet")

	// without the 16 default XFs the last resort is XF 0
	small := tx.Workbook(tx.BIFF80, [][]byte{
		tx.Record(tx.RecCodepage, tx.U16(1200)),
		tx.Font8(tx.BIFF80, "Arial"),
		tx.XF(tx.BIFF80, 0, 0, true, 0),
		tx.XF(tx.BIFF80, 0, 0, false, 0),
	}, []tx.Sheet{{Name: "Small", Records: [][]byte{tx.Number(1, 1, 1, 2)}}})
	book, _ = openBytes(t, small, nil)
	sheet, err = book.SheetByIndex(0)
	require.NoError(t, err)
	require.Equal(t, 1, sheet.RawCellXFIndex(1, 1))
	require.Equal(t, 0, sheet.RawCellXFIndex(0, 0))
	require.Equal(t, 0, sheet.RawCellXFIndex(5, 5))
}

func TestSheetMergedXFIndex(t *testing.T) {
	sheet, _ := openLayout(t, nil)
	// inside the merged range the anchor's XF applies
	require.Equal(t, 15, sheet.CellXFIndex(1, 1))
	require.Equal(t, xfStdDate, sheet.RawCellXFIndex(1, 1))
	require.Equal(t, xfStdDate, sheet.RawCellXFIndex(1, 2), "row default wins over column default")
	require.Equal(t, xfDate, sheet.RawCellXFIndex(0, 2))
}

func TestSheetRowAndColInfo(t *testing.T) {
	sheet, _ := openLayout(t, nil)

	ri, ok := sheet.RowInfoMap[1]
	require.True(t, ok)
	require.Equal(t, 300, ri.Height)
	require.Equal(t, 1, ri.HasDefaultXFIndex)
	require.Equal(t, xfStdDate, ri.XFIndex)
	require.Equal(t, 0, ri.Hidden)
	_, ok = sheet.RowInfoMap[0]
	require.False(t, ok)

	ci, ok := sheet.ColInfoMap[3]
	require.True(t, ok)
	require.True(t, ci == sheet.ColInfoMap[2])
	require.Equal(t, 3000, ci.Width)
	require.Equal(t, xfDate, ci.XFIndex)
	require.Equal(t, 1, ci.Hidden)
	_, ok = sheet.ColInfoMap[4]
	require.False(t, ok)

	require.Equal(t, 10, sheet.DefColWidth)
	require.Equal(t, 2560, sheet.StandardWidth)
}

func TestSheetWindow2(t *testing.T) {
	sheet, _ := openLayout(t, &OpenWorkbookOptions{FormattingInfo: true})
	require.Equal(t, 0, sheet.ShowFormulas)
	require.Equal(t, 1, sheet.ShowGridLines)
	require.Equal(t, 1, sheet.PanesAreFrozen)
	require.Equal(t, 1, sheet.ShowZeroValues)
	require.Equal(t, 1, sheet.AutomaticGridLineColour)
	require.Equal(t, 1, sheet.SheetSelected)
	require.Equal(t, 1, sheet.SheetVisible)
	require.Equal(t, 0x17, sheet.GridlineColourIndex)
	require.NotNil(t, sheet.GridlineColourRGB)
	require.Equal(t, RGB{128, 128, 128}, *sheet.GridlineColourRGB)
}

func TestSheetRaggedRows(t *testing.T) {
	sheet, _ := openLayout(t, &OpenWorkbookOptions{RaggedRows: true})
	require.Equal(t, 4, sheet.NRows)
	require.Equal(t, 3, sheet.NCols)

	lens := make([]int, sheet.NRows)
	for rowx := range lens {
		lens[rowx] = sheet.RowLen(rowx)
	}
	require.Equal(t, []int{1, 0, 3, 2}, lens)

	row, err := sheet.Row(3)
	require.NoError(t, err)
	require.Len(t, row, 2)

	cell, err := sheet.Cell(0, 2)
	require.NoError(t, err, "positions past a short row read as empty")
	require.Equal(t, XL_CELL_EMPTY, cell.CType)

	padded, _ := openLayout(t, nil)
	for rowx := 0; rowx < padded.NRows; rowx++ {
		require.Equal(t, 3, padded.RowLen(rowx))
	}
}

func TestSheetCol(t *testing.T) {
	sheet, _ := openLayout(t, nil)
	col, err := sheet.Col(1)
	require.NoError(t, err)
	require.Len(t, col, 4)
	require.Equal(t, "top", col[1].Value)
	require.Equal(t, 2.0, col[3].Value)
}

func TestSheetBadCellData(t *testing.T) {
	sheet, warned := openLayout(t, nil)

	require.Equal(t, XL_CELL_TEXT, sheet.CellType(2, 2))
	require.Equal(t, "", sheet.CellValue(2, 2))
	// unknown error codes in a BOOLERR and in a formula result
	for _, pos := range [][2]int{{3, 0}, {2, 1}} {
		cell, err := sheet.Cell(pos[0], pos[1])
		require.NoError(t, err)
		require.Equal(t, XL_CELL_ERROR, cell.CType)
		require.Equal(t, UnknownErrorCode, cell.Value)
		require.Equal(t, "error:#N/A", cell.String())
	}

	require.Contains(t, warned, "LABELSST index beyond shared string table; using empty text")
	var unknown int
	for _, msg := range warned {
		if msg == "unknown error code in cell; stored as #N/A" {
			unknown++
		}
	}
	require.Equal(t, 2, unknown)
}

func TestSheetCellOutsideLimits(t *testing.T) {
	stream := tx.Workbook(tx.BIFF80, sampleGlobals(), []tx.Sheet{
		{Name: "Wide", Records: [][]byte{tx.Number(0, 300, 15, 1)}},
	})
	_, _, err := tryOpenBytes(stream, nil)
	require.True(t, ErrCorrupt.Is(err), "got %v", err)
}
