package xlrd

import (
	"testing"

	"github.com/stretchr/testify/require"

	tx "github.com/yamitzky/xlrd-go/v2/internal/testxls"
)

// biff4Worksheet is a bare BIFF4 worksheet stream with neither FORMAT nor
// WINDOW2 records.
func biff4Worksheet(records ...[]byte) []byte {
	return tx.Cat(tx.BOF(tx.BIFF40, tx.Worksheet), tx.Cat(records...), tx.EOF())
}

func TestMissingRecordsDefaultFormat(t *testing.T) {
	book, _ := openBytes(t, biff4Worksheet(
		tx.Label(tx.BIFF40, 0, 0, 0, "Hello"),
		tx.Number(1, 0, 0, 2.5),
	), nil)
	require.Equal(t, 40, book.BiffVersion)
	require.Equal(t, []string{"Sheet1"}, book.SheetNames())
	require.Equal(t, "iso-8859-1", book.Encoding)

	sheet, err := book.SheetByIndex(0)
	require.NoError(t, err)
	cell, err := sheet.Cell(0, 0)
	require.NoError(t, err)
	require.Equal(t, XL_CELL_TEXT, cell.CType)
	require.Equal(t, "Hello", cell.Value)
	require.Equal(t, XL_CELL_NUMBER, sheet.CellType(1, 0))
	require.Equal(t, 16384, sheet.UtterMaxRows)
}

func TestMissingRecordsDefaultWindow2Options(t *testing.T) {
	book, _ := openBytes(t, biff4Worksheet(tx.Label(tx.BIFF40, 0, 0, 0, "Hello")), nil)
	sheet, err := book.SheetByIndex(0)
	require.NoError(t, err)

	require.Equal(t, 0, sheet.ShowFormulas)
	require.Equal(t, 1, sheet.ShowGridLines)
	require.Equal(t, 0x40, sheet.GridlineColourIndex)
	require.Nil(t, sheet.GridlineColourRGB)
	require.Equal(t, -1, sheet.DefColWidth)
	require.Equal(t, -1, sheet.DimNRows)
}

func TestBIFF4EmbeddedFormats(t *testing.T) {
	xf4 := func(format int) []byte {
		return tx.Record(0x0443, tx.U8(0), tx.U8(format), tx.U16(0x0001), make([]byte, 8))
	}
	format4 := func(s string) []byte { return tx.Record(tx.RecFormat, tx.U16(0), tx.Str8(s, 1)) }

	book, _ := openBytes(t, biff4Worksheet(
		tx.Record(tx.RecCodepage, tx.U16(1252)),
		format4("General"),
		format4("d-mmm-yy"),
		xf4(0),
		xf4(1),
		tx.Number(0, 0, 0, 12),
		tx.Number(0, 1, 1, 38406),
	), &OpenWorkbookOptions{OnDemand: true})
	require.Equal(t, "cp1252", book.Encoding)
	require.Len(t, book.FormatList, 2)
	require.Equal(t, FDT, book.FormatMap[1].Type)
	require.Len(t, book.XFList, 2)

	sheet, err := book.SheetByIndex(0)
	require.NoError(t, err)
	require.Equal(t, XL_CELL_NUMBER, sheet.CellType(0, 0))
	require.Equal(t, XL_CELL_DATE, sheet.CellType(0, 1))
}
