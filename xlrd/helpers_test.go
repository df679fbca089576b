package xlrd

import (
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	tx "github.com/yamitzky/xlrd-go/v2/internal/testxls"
)

// openBytes opens a workbook held in memory with a logger whose entries
// the test can inspect.
func openBytes(t *testing.T, data []byte, opts *OpenWorkbookOptions) (*Book, *logtest.Hook) {
	t.Helper()
	book, hook, err := tryOpenBytes(data, opts)
	require.NoError(t, err)
	return book, hook
}

func tryOpenBytes(data []byte, opts *OpenWorkbookOptions) (*Book, *logtest.Hook, error) {
	var o OpenWorkbookOptions
	if opts != nil {
		o = *opts
	}
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	o.Logger = logger
	o.FileContents = data
	book, err := OpenWorkbook("", &o)
	return book, hook, err
}

// warnings returns the messages logged at warning level or above.
func warnings(hook *logtest.Hook) []string {
	var out []string
	for _, e := range hook.AllEntries() {
		if e.Level <= logrus.WarnLevel {
			out = append(out, e.Message)
		}
	}
	return out
}

// cfbWorkbook wraps a BIFF stream in a compound document under the given
// stream name.
func cfbWorkbook(streamName string, stream []byte) []byte {
	return tx.BuildCFB([]tx.Stream{{Path: streamName, Data: stream}}, tx.Options{}).Data
}

const (
	xfDate    = 16 // custom yyyy-mm-dd
	xfStdDate = 17 // built-in m/d/yy
	xfFixed   = 18 // built-in 0.00
)

// sampleGlobals returns BIFF8 globals records: code page, date mode, the
// default styles and three cell XFs, and a two-entry shared string table.
func sampleGlobals() [][]byte {
	globals := [][]byte{
		tx.Record(tx.RecCodepage, tx.U16(1200)),
		tx.Record(tx.RecWriteAccess, tx.Uni("alice", 2), []byte("     ")),
		tx.Record(tx.RecDatemode, tx.U16(0)),
		tx.Format(tx.BIFF80, 164, "yyyy-mm-dd"),
	}
	globals = append(globals, tx.StdStyles(tx.BIFF80)...)
	return append(globals,
		tx.XF(tx.BIFF80, 0, 164, false, 0),
		tx.XF(tx.BIFF80, 0, 14, false, 0),
		tx.XF(tx.BIFF80, 0, 2, false, 0),
		tx.SST("alpha", "beta"),
	)
}

// sampleDataSheet holds one cell of every kind.
func sampleDataSheet() tx.Sheet {
	return tx.Sheet{Name: "Data", Records: [][]byte{
		tx.Number(0, 0, 15, 1.5),
		tx.RK(0, 1, 15, 42),
		tx.LabelSST(0, 2, 15, 1),
		tx.Number(1, 0, xfDate, 38406),
		tx.BoolErr(1, 1, 15, 1, false),
		tx.BoolErr(1, 2, 15, 0x07, true),
		tx.Label(tx.BIFF80, 2, 0, 15, "plain"),
		tx.Formula(2, 1, xfFixed, tx.F64(3), []byte{0x1E, 0x03, 0x00}),
		tx.Formula(2, 2, 15, tx.SpecialResult(0, 0), []byte{0x17, 0x02, 0x00, 'h', 'i'}),
		tx.Record(tx.RecString, tx.Uni("from formula", 2)),
		tx.Record(tx.RecMulRK, tx.U16(3), tx.U16(0), tx.U16(15), tx.U32(7<<2|2), tx.U16(xfStdDate), tx.U32(61<<2|2), tx.U16(1)),
	}}
}

// sampleWorkbook is a BIFF8 workbook stream with a data sheet, a chart and
// a hidden worksheet.
func sampleWorkbook() []byte {
	return tx.Workbook(tx.BIFF80, sampleGlobals(), []tx.Sheet{
		sampleDataSheet(),
		{Name: "Chart1", Kind: 2},
		{Name: "Hidden", Visibility: 1, Records: [][]byte{tx.Number(0, 0, 15, 9)}},
	})
}
