package xlrd

import (
	"testing"

	"github.com/stretchr/testify/require"

	tx "github.com/yamitzky/xlrd-go/v2/internal/testxls"
)

// sharedSectorWorkbook stores the last sector of the workbook stream in
// the sector that also holds the short-stream container.
func sharedSectorWorkbook() []byte {
	l := tx.BuildCFB([]tx.Stream{
		{Path: "Workbook", Data: sampleWorkbook()},
		{Path: "Small", Data: []byte("tiny stream")},
	}, tx.Options{MiniCutoff: 64})
	wb, sscs := l.Chains["Workbook"], l.Chains["<sscs>"][0]
	copy(l.Sector(sscs), l.Sector(wb[len(wb)-1]))
	l.SetSAT(wb[len(wb)-2], sscs)
	return l.Data
}

func TestIgnoreWorkbookCorruption(t *testing.T) {
	data := sharedSectorWorkbook()

	_, _, err := tryOpenBytes(data, nil)
	require.True(t, ErrCorrupt.Is(err), "got %v", err)

	book, hook := openBytes(t, data, &OpenWorkbookOptions{IgnoreWorkbookCorruption: true})
	require.Equal(t, []string{"Data", "Hidden"}, book.SheetNames())
	sh, err := book.SheetByIndex(0)
	require.NoError(t, err)
	require.Equal(t, 1.5, sh.CellValue(0, 0))
	require.Contains(t, warnings(hook), "sector shared by two streams; corruption ignored")
}
