package xlrd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBookGlobals(t *testing.T) {
	book, _ := openBytes(t, cfbWorkbook("Workbook", sampleWorkbook()), nil)

	require.Equal(t, 80, book.BiffVersion)
	require.Equal(t, 2, book.NSheets)
	require.Equal(t, []string{"Data", "Hidden"}, book.SheetNames())
	require.Equal(t, []int{0, 1}, book.SheetVisibility())
	require.Equal(t, []int{0, 2, 0}, book.SheetKinds)
	require.Equal(t, "alice", book.UserName)
	require.NotNil(t, book.Codepage)
	require.Equal(t, 1200, *book.Codepage)
	require.Equal(t, "utf_16_le", book.Encoding)
	require.Equal(t, 0, book.Datemode)
	require.Equal(t, []string{"alpha", "beta"}, book.SharedStrings())
	require.Len(t, book.XFList, 19)
}

func TestBookSheetAccess(t *testing.T) {
	book, _ := openBytes(t, cfbWorkbook("Workbook", sampleWorkbook()), nil)

	sheets, err := book.Sheets()
	require.NoError(t, err)
	require.Len(t, sheets, 2)
	require.Equal(t, "Data", sheets[0].Name)
	require.Equal(t, "Hidden", sheets[1].Name)
	require.Equal(t, 1, sheets[1].Visibility)

	byName, err := book.SheetByName("Hidden")
	require.NoError(t, err)
	require.True(t, byName == sheets[1])

	byKey, err := book.Get(0)
	require.NoError(t, err)
	require.True(t, byKey == sheets[0])

	byKey, err = book.Get("Hidden")
	require.NoError(t, err)
	require.True(t, byKey == sheets[1])

	tests := []struct {
		name   string
		key    interface{}
		isKind func(error) bool
	}{
		{"unknown name", "Chart1", ErrSheetNotFound.Is},
		{"index too large", 2, ErrSheetIndex.Is},
		{"negative index", -1, ErrSheetIndex.Is},
		{"bad key type", 1.5, ErrInvalidKey.Is},
	}
	for _, tt := range tests {
		_, err := book.Get(tt.key)
		if !tt.isKind(err) {
			t.Errorf("%s: Get(%v) error = %v", tt.name, tt.key, err)
		}
		_, err = book.SheetLoaded(tt.key)
		if !tt.isKind(err) {
			t.Errorf("%s: SheetLoaded(%v) error = %v", tt.name, tt.key, err)
		}
	}
}

func TestBookReleasedAfterFullLoad(t *testing.T) {
	book, _ := openBytes(t, cfbWorkbook("Workbook", sampleWorkbook()), nil)

	loaded, err := book.SheetLoaded("Data")
	require.NoError(t, err)
	require.True(t, loaded)

	require.NoError(t, book.UnloadSheet("Data"))
	loaded, err = book.SheetLoaded(0)
	require.NoError(t, err)
	require.False(t, loaded)

	_, err = book.SheetByName("Data")
	require.True(t, ErrReleased.Is(err), "got %v", err)

	sh, err := book.SheetByIndex(1)
	require.NoError(t, err, "sheets loaded before the release stay usable")
	require.Equal(t, 9.0, sh.CellValue(0, 0))

	require.NoError(t, book.ReleaseResources())
}

func TestBookOnDemand(t *testing.T) {
	book, _ := openBytes(t, cfbWorkbook("Workbook", sampleWorkbook()), &OpenWorkbookOptions{OnDemand: true})

	for _, key := range []interface{}{0, 1, "Data"} {
		loaded, err := book.SheetLoaded(key)
		require.NoError(t, err)
		require.False(t, loaded, "%v", key)
	}

	sh, err := book.SheetByName("Hidden")
	require.NoError(t, err)
	require.Equal(t, 9.0, sh.CellValue(0, 0))
	loaded, err := book.SheetLoaded(1)
	require.NoError(t, err)
	require.True(t, loaded)

	require.NoError(t, book.UnloadSheet(1))
	again, err := book.SheetByIndex(1)
	require.NoError(t, err)
	require.False(t, again == sh, "an unloaded sheet is parsed again")

	require.NoError(t, book.ReleaseResources())
	require.NoError(t, book.ReleaseResources())

	_, err = book.SheetByIndex(0)
	require.True(t, ErrReleased.Is(err), "got %v", err)
	kept, err := book.SheetByIndex(1)
	require.NoError(t, err)
	require.True(t, kept == again)
}

func TestBookSheetCache(t *testing.T) {
	book, hook := openBytes(t, cfbWorkbook("Workbook", sampleWorkbook()),
		&OpenWorkbookOptions{OnDemand: true, SheetCacheSize: 1})

	_, err := book.SheetByIndex(0)
	require.NoError(t, err)
	_, err = book.SheetByIndex(1)
	require.NoError(t, err)

	loaded, err := book.SheetLoaded(0)
	require.NoError(t, err)
	require.False(t, loaded, "least recently used sheet is evicted")
	loaded, err = book.SheetLoaded(1)
	require.NoError(t, err)
	require.True(t, loaded)

	var evicted bool
	for _, e := range hook.AllEntries() {
		if e.Message == "sheet evicted from cache" {
			evicted = true
		}
	}
	require.True(t, evicted)

	sh, err := book.SheetByIndex(0)
	require.NoError(t, err)
	require.Equal(t, "Data", sh.Name)
	require.Equal(t, 1.5, sh.CellValue(0, 0))
}

func TestBookBareStream(t *testing.T) {
	book, _ := openBytes(t, sampleWorkbook(), nil)
	require.Equal(t, []string{"Data", "Hidden"}, book.SheetNames())
	sh, err := book.SheetByIndex(0)
	require.NoError(t, err)
	require.Equal(t, 4, sh.NRows)
}

func TestBookStreamNamedBook(t *testing.T) {
	book, _ := openBytes(t, cfbWorkbook("Book", sampleWorkbook()), nil)
	require.Equal(t, 2, book.NSheets)

	_, _, err := tryOpenBytes(cfbWorkbook("Other", sampleWorkbook()), nil)
	require.True(t, ErrUnsupportedSchema.Is(err), "got %v", err)
}
