package xlrd

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func zipOf(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("<x/>"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestInspectContent(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    string
	}{
		{"xlsx", zipOf(t, "[Content_Types].xml", "xl/workbook.xml"), "xlsx"},
		{"xlsb", zipOf(t, "[Content_Types].xml", "xl/workbook.bin"), "xlsb"},
		{"xlsb with odd names", zipOf(t, `XL\Workbook.BIN`), "xlsb"},
		{"ods", zipOf(t, "mimetype", "content.xml"), "ods"},
		{"other zip", zipOf(t, "readme.txt"), "zip"},
		{"xls", cfbWorkbook("Workbook", sampleWorkbook()), "xls"},
		{"bare stream", sampleWorkbook(), ""},
		{"short", []byte("PK\x03"), ""},
		{"text", []byte("just some plain text"), ""},
	}
	for _, tt := range tests {
		got, err := InspectFormat("", tt.content)
		if err != nil {
			t.Errorf("%s: InspectFormat error: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: InspectFormat = %q, want %q", tt.name, got, tt.want)
		}
		if _, ok := FileFormatDescriptions[got]; !ok {
			t.Errorf("%s: no description for %q", tt.name, got)
		}
	}
}

func TestInspectPath(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0o644))
		return path
	}

	format, err := InspectFormat(write("book.xlsx", zipOf(t, "xl/workbook.xml")), nil)
	require.NoError(t, err)
	require.Equal(t, "xlsx", format)

	format, err = InspectFormat(write("book.xls", cfbWorkbook("Workbook", sampleWorkbook())), nil)
	require.NoError(t, err)
	require.Equal(t, "xls", format)

	format, err = InspectFormat(write("empty", nil), nil)
	require.NoError(t, err)
	require.Equal(t, "", format)

	_, err = InspectFormat(filepath.Join(dir, "missing.xls"), nil)
	require.Error(t, err)
}
