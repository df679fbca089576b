package command

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
	yaml "gopkg.in/yaml.v2"

	tx "github.com/yamitzky/xlrd-go/v2/internal/testxls"
)

func testStream() []byte {
	globals := [][]byte{
		tx.Record(tx.RecCodepage, tx.U16(1200)),
		tx.Record(tx.RecWriteAccess, tx.Uni("alice", 2), []byte("     ")),
		tx.Record(tx.RecDatemode, tx.U16(1)),
	}
	globals = append(globals, tx.StdStyles(tx.BIFF80)...)
	globals = append(globals, tx.Name(0, 0, "Answer", tx.Cat([]byte{0x1E}, tx.U16(42))))

	return tx.Workbook(tx.BIFF80, globals, []tx.Sheet{
		{Name: "Data", Records: [][]byte{
			tx.Number(0, 0, 15, 1.5),
			tx.Label(tx.BIFF80, 1, 1, 15, "x"),
			tx.Blank(2, 2, 15),
			tx.MergedCells([4]int{0, 0, 0, 1}),
		}},
		{Name: "Secret", Visibility: 1, Records: [][]byte{
			tx.Number(0, 0, 15, 7),
		}},
	})
}

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.xls")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func testFile(t *testing.T, extra ...tx.Stream) (string, []byte) {
	t.Helper()
	stream := testStream()
	streams := append([]tx.Stream{{Path: "Workbook", Data: stream}}, extra...)
	return writeFile(t, tx.BuildCFB(streams, tx.Options{}).Data), stream
}

func newInput(path string, out, log io.Writer) input {
	in := input{Out: out, Log: log}
	in.Args.File = path
	return in
}

func TestDump(t *testing.T) {
	path, _ := testFile(t)
	var out, log bytes.Buffer

	cmd := &Dump{input: newInput(path, &out, &log)}
	require.NoError(t, cmd.Execute(nil))
	require.True(t, strings.HasPrefix(out.String(), "    0: 0809 BOF len = 0010 (16)\n"), out.String())
	require.Contains(t, out.String(), "0042 CODEPAGE len = 0002 (2)\n")
	require.Contains(t, out.String(), "0085 BOUNDSHEET")

	out.Reset()
	cmd.Unnumbered = true
	cmd.Mmap = true
	require.NoError(t, cmd.Execute(nil))
	require.True(t, strings.HasPrefix(out.String(), "0809 BOF len = 0010 (16)\n"), out.String())
	require.Empty(t, log.String())
}

func TestCount(t *testing.T) {
	path, _ := testFile(t)
	var out bytes.Buffer

	cmd := &Count{input: newInput(path, &out, nil)}
	require.NoError(t, cmd.Execute(nil))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Contains(t, lines, "       3 BOF")
	require.Contains(t, lines, "       3 EOF")
	require.Contains(t, lines, "       2 BOUNDSHEET")
	require.Contains(t, lines, "       2 NUMBER")
	require.Contains(t, lines, "      16 XF")
}

func TestReadErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.xls")
	text := writeFile(t, []byte("plain text, not a workbook"))

	in := newInput(missing, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, (&Dump{input: in}).Execute(nil))
	require.Error(t, (&Count{input: in}).Execute(nil))

	// dump and count read input without a container as a bare record
	// stream; the other commands need a real workbook
	for _, path := range []string{missing, text} {
		in := newInput(path, &bytes.Buffer{}, &bytes.Buffer{})
		require.Error(t, (&Streams{input: in}).Execute(nil), path)
		require.Error(t, (&Summary{input: in}).Execute(nil), path)
	}

	in = newInput(missing, nil, nil)
	in.LogLevel = "loud"
	require.Error(t, (&Dump{input: in}).Execute(nil))
}

func TestStreams(t *testing.T) {
	meta := []byte("some metadata")
	path, stream := testFile(t, tx.Stream{Path: "Info/Meta", Data: meta})
	var out bytes.Buffer

	cmd := &Streams{input: newInput(path, &out, nil)}
	require.NoError(t, cmd.Execute(nil))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines, fmt.Sprintf("storage %10s %-16s Info", "-", "-"))
	require.Contains(t, lines, fmt.Sprintf("stream  %10d %s Workbook", len(stream), fingerprint(stream, false)))
	require.Contains(t, lines, fmt.Sprintf("stream  %10d %s Info/Meta", 13, fingerprint(meta, false)))

	out.Reset()
	cmd.FullHash = true
	require.NoError(t, cmd.Execute(nil))
	sum := blake3.Sum256(meta)
	require.Contains(t, out.String(), fingerprint(meta, true)+" Info/Meta")
	require.Len(t, fingerprint(meta, true), 2*len(sum))

	out.Reset()
	cmd.Extract = "info/meta"
	require.NoError(t, cmd.Execute(nil))
	require.Equal(t, meta, out.Bytes())

	cmd.Extract = "Nothing"
	require.Error(t, cmd.Execute(nil))
}

func TestFingerprint(t *testing.T) {
	require.Len(t, fingerprint(nil, false), 16)
	require.NotEqual(t, fingerprint([]byte("a"), false), fingerprint([]byte("b"), false))
	require.True(t, strings.HasPrefix(fingerprint([]byte("a"), true), fingerprint([]byte("a"), false)))
}

func TestSummary(t *testing.T) {
	path, _ := testFile(t)
	var out bytes.Buffer

	cmd := &Summary{input: newInput(path, &out, nil), Names: true}
	require.NoError(t, cmd.Execute(nil))

	var got workbookSummary
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	require.Equal(t, workbookSummary{
		File:        path,
		BiffVersion: "8",
		Encoding:    "utf_16_le",
		Datemode:    1,
		UserName:    "alice",
		Sheets: []sheetSummary{
			{Name: "Data", Visibility: "visible", Rows: 2, Cols: 2, MergedRanges: 1},
			{Name: "Secret", Visibility: "hidden", Rows: 1, Cols: 1},
		},
		Names: []nameSummary{{Name: "Answer", Scope: -1, Value: "42"}},
	}, got)
	require.Contains(t, out.String(), "biff_version:")
	require.NotContains(t, out.String(), "formats:")

	out.Reset()
	cmd.FormattingInfo = true
	cmd.Names = false
	require.NoError(t, cmd.Execute(nil))
	got = workbookSummary{}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	require.Nil(t, got.Names)
	require.Equal(t, 16, got.XFs)
	require.Equal(t, sheetSummary{Name: "Data", Visibility: "visible", Rows: 3, Cols: 3, MergedRanges: 1}, got.Sheets[0])
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := &Version{Name: "xlrdtool", Version: "1.2.3", Build: "abc", Out: &out}
	require.NoError(t, cmd.Execute(nil))
	require.Equal(t, "xlrdtool (1.2.3) - build abc\n", out.String())
}
