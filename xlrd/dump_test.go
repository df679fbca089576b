package xlrd

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	tx "github.com/yamitzky/xlrd-go/v2/internal/testxls"
)

func dumpBytes(t *testing.T, data []byte, unnumbered bool) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, DumpWithOptions("", &out, unnumbered, &OpenWorkbookOptions{FileContents: data}))
	return out.String()
}

func hexLine(prefix, hex, chars string) string {
	return fmt.Sprintf("%s     %-48s %s\n", prefix, hex, chars)
}

func TestDump(t *testing.T) {
	stream := tx.Cat(tx.Record(XL_CODEPAGE, tx.U16(1200)), tx.EOF())

	want := "0042 CODEPAGE len = 0002 (2)\n" +
		hexLine("", "b0 04 ", "??") +
		"000a EOF len = 0000 (0)\n"
	require.Equal(t, want, dumpBytes(t, stream, true))

	want = "    0: 0042 CODEPAGE len = 0002 (2)\n" +
		hexLine("    4: ", "b0 04 ", "??") +
		"    6: 000a EOF len = 0000 (0)\n"
	require.Equal(t, want, dumpBytes(t, stream, false))
}

func TestDumpContainerOffsets(t *testing.T) {
	stream := sampleWorkbook()
	require.Equal(t, dumpBytes(t, stream, false), dumpBytes(t, cfbWorkbook("Workbook", stream), false),
		"offsets count from the start of the workbook stream")
}

func TestDumpOddBytes(t *testing.T) {
	padded := tx.Cat(tx.EOF(), make([]byte, 8))
	require.Equal(t, "000a EOF len = 0000 (0)\n---- 8 zero bytes skipped ----\n", dumpBytes(t, padded, true))

	tail := tx.Cat(tx.EOF(), tx.EOF(), []byte("AB"))
	require.Equal(t, "000a EOF len = 0000 (0)\n000a EOF len = 0000 (0)\n---- Misc bytes at end ----\n"+
		hexLine("", "41 42 ", "AB"), dumpBytes(t, tail, true))

	long := tx.Cat(tx.EOF(), tx.U16(XL_CODEPAGE), tx.U16(40), []byte{0x01, 0x02})
	out := dumpBytes(t, long, true)
	require.Contains(t, out, "0042 CODEPAGE len = 0028 (40)\n")
	require.Contains(t, out, "Last dumped record has length (40) that is too large\n")
}

func TestHexCharDump(t *testing.T) {
	data := append([]byte("0123456789abcdef"), 0x00, 0x7F, 'z')
	var out bytes.Buffer
	require.NoError(t, HexCharDump(data, 0, len(data), 100, &out, false))
	want := hexLine("  100: ", "30 31 32 33 34 35 36 37 38 39 61 62 63 64 65 66 ", "0123456789abcdef") +
		hexLine("  116: ", "00 7f 7a ", "~?z")
	require.Equal(t, want, out.String())
}

func TestCountRecords(t *testing.T) {
	stream := tx.Cat(
		tx.BOF(tx.BIFF80, tx.Globals),
		tx.Record(XL_CODEPAGE, tx.U16(1200)),
		tx.Record(XL_CODEPAGE, tx.U16(1200)),
		tx.Record(0x7777),
		make([]byte, 4),
		tx.EOF(),
		make([]byte, 12),
	)
	var out bytes.Buffer
	require.NoError(t, CountRecordsWithOptions("", &out, &OpenWorkbookOptions{FileContents: stream}))
	want := "       1 <Dummy (zero)>\n" +
		"       1 BOF\n" +
		"       2 CODEPAGE\n" +
		"       1 EOF\n" +
		"       1 Unknown_0x7777\n"
	require.Equal(t, want, out.String())
}
