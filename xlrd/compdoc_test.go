package xlrd

import (
	"encoding/binary"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/yamitzky/xlrd-go/v2/internal/testxls"
)

func patterned(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i*7)
	}
	return out
}

func sampleStreams() []testxls.Stream {
	return []testxls.Stream{
		{Path: "Workbook", Data: patterned(9000, 1)},
		{Path: "Small", Data: patterned(300, 2)},
		{Path: "Storage/Inner", Data: patterned(5000, 3)},
	}
}

func TestCompDocStreams(t *testing.T) {
	tests := []struct {
		name string
		opts testxls.Options
	}{
		{"contiguous", testxls.Options{}},
		{"fragmented", testxls.Options{Fragment: true}},
		{"large sectors", testxls.Options{SectorShift: 12}},
		{"msat extension", testxls.Options{MinSATSectors: 110}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			streams := sampleStreams()
			l := testxls.BuildCFB(streams, tt.opts)
			cd, err := NewCompDoc(l.Data, nil)
			require.NoError(t, err)

			for _, st := range streams {
				got, err := cd.Stream(st.Path)
				require.NoError(t, err, st.Path)
				require.Equal(t, st.Data, got, st.Path)
			}

			got, err := cd.Stream("small")
			require.NoError(t, err)
			require.Equal(t, streams[1].Data, got, "lookup is case-insensitive")

			got, err = cd.Stream("Missing")
			require.NoError(t, err)
			require.Nil(t, got)
		})
	}
}

func TestCompDocZeroCopy(t *testing.T) {
	l := testxls.BuildCFB(sampleStreams(), testxls.Options{})
	cd, err := NewCompDoc(l.Data, nil)
	require.NoError(t, err)

	mem, base, size, err := cd.LocateNamedStream("Workbook")
	require.NoError(t, err)
	require.Equal(t, 9000, size)
	require.True(t, &mem[0] == &l.Data[0], "contiguous stream should alias the file")
	require.Equal(t, 512+l.Chains["Workbook"][0]*512, base)

	l = testxls.BuildCFB(sampleStreams(), testxls.Options{Fragment: true})
	cd, err = NewCompDoc(l.Data, nil)
	require.NoError(t, err)
	mem, base, size, err = cd.LocateNamedStream("Workbook")
	require.NoError(t, err)
	require.Equal(t, 0, base)
	require.Equal(t, 9000, size)
	require.False(t, &mem[0] == &l.Data[0], "fragmented stream is copied")
}

func TestCompDocWalk(t *testing.T) {
	l := testxls.BuildCFB(sampleStreams(), testxls.Options{})
	cd, err := NewCompDoc(l.Data, nil)
	require.NoError(t, err)

	var paths []string
	var types []int
	err = cd.Walk(func(path string, d *DirNode) error {
		paths = append(paths, path)
		types = append(types, d.EType)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Workbook", "Small", "Storage", "Storage/Inner"}, paths)
	require.Equal(t, []int{DirStream, DirStream, DirStorage, DirStream}, types)
	require.Equal(t, DirRoot, cd.Entries()[0].EType)
}

func TestCompDocStorageIsNotAStream(t *testing.T) {
	l := testxls.BuildCFB(sampleStreams(), testxls.Options{})
	cd, err := NewCompDoc(l.Data, nil)
	require.NoError(t, err)

	_, err = cd.Stream("Storage")
	require.True(t, ErrCorrupt.Is(err), "got %v", err)
}

func TestCompDocHeaderErrors(t *testing.T) {
	good := testxls.BuildCFB(sampleStreams(), testxls.Options{}).Data

	badMagic := append([]byte(nil), good...)
	badMagic[0] = 0

	badBOM := append([]byte(nil), good...)
	badBOM[28] = 0xFF

	tests := []struct {
		name string
		data []byte
	}{
		{"magic", badMagic},
		{"short header", good[:300]},
		{"byte order", badBOM},
	}
	for _, tt := range tests {
		_, err := NewCompDoc(tt.data, nil)
		if !ErrFormat.Is(err) {
			t.Errorf("%s: NewCompDoc error = %v, want ErrFormat", tt.name, err)
		}
	}
}

func TestCompDocCorruptChains(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(l *testxls.Layout)
	}{
		{"cycle", func(l *testxls.Layout) {
			c := l.Chains["Workbook"]
			l.SetSAT(c[3], c[1])
		}},
		{"outside allocation table", func(l *testxls.Layout) {
			l.SetSAT(l.Chains["Workbook"][0], 1000000)
		}},
		{"chain too short", func(l *testxls.Layout) {
			l.SetSAT(l.Chains["Workbook"][2], testxls.EndSID)
		}},
		{"bad terminator", func(l *testxls.Layout) {
			c := l.Chains["Workbook"]
			l.SetSAT(c[len(c)-1], testxls.FreeSID)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := testxls.BuildCFB(sampleStreams(), testxls.Options{})
			tt.corrupt(l)
			cd, err := NewCompDoc(l.Data, nil)
			require.NoError(t, err)
			_, err = cd.Stream("Workbook")
			require.True(t, ErrCorrupt.Is(err), "got %v", err)
		})
	}
}

func TestCompDocSharedSectors(t *testing.T) {
	build := func() *testxls.Layout {
		l := testxls.BuildCFB(sampleStreams(), testxls.Options{})
		inner, wb := l.Chains["Storage/Inner"], l.Chains["Workbook"]
		l.SetSAT(inner[0], wb[1])
		return l
	}

	cd, err := NewCompDoc(build().Data, nil)
	require.NoError(t, err)
	_, err = cd.Stream("Workbook")
	require.NoError(t, err)
	_, err = cd.Stream("Storage/Inner")
	require.True(t, ErrCorrupt.Is(err), "got %v", err)

	cd, err = NewCompDoc(build().Data, &CompDocOptions{IgnoreWorkbookCorruption: true})
	require.NoError(t, err)
	_, err = cd.Stream("Workbook")
	require.NoError(t, err)
	got, err := cd.Stream("Storage/Inner")
	require.NoError(t, err)
	require.Len(t, got, 5000)
}

func TestCompDocSharedShortSectors(t *testing.T) {
	build := func() *testxls.Layout {
		streams := append(sampleStreams(), testxls.Stream{Path: "Tiny", Data: patterned(200, 4)})
		l := testxls.BuildCFB(streams, testxls.Options{})
		small, tiny := l.ShortChains["Small"], l.ShortChains["Tiny"]
		l.SetSSAT(tiny[0], small[1])
		return l
	}

	cd, err := NewCompDoc(build().Data, nil)
	require.NoError(t, err)
	_, err = cd.Stream("Small")
	require.NoError(t, err)
	_, err = cd.Stream("Small")
	require.NoError(t, err, "reading a stream twice is not sharing")
	_, err = cd.Stream("Tiny")
	require.True(t, ErrCorrupt.Is(err), "got %v", err)

	cd, err = NewCompDoc(build().Data, &CompDocOptions{IgnoreWorkbookCorruption: true})
	require.NoError(t, err)
	_, err = cd.Stream("Small")
	require.NoError(t, err)
	got, err := cd.Stream("Tiny")
	require.NoError(t, err)
	require.Len(t, got, 200)
}

func TestCompDocMSATLoops(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(l *testxls.Layout)
	}{
		{"extension sector links to itself", func(l *testxls.Layout) {
			x := l.MSATSectors[0]
			sec := l.Sector(x)
			binary.LittleEndian.PutUint32(sec[l.SecSize-4:], uint32(x))
		}},
		{"SAT sector listed twice", func(l *testxls.Layout) {
			l.SetMSAT(109, l.SATSectors[0])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := testxls.BuildCFB(sampleStreams(), testxls.Options{MinSATSectors: 110})
			require.Len(t, l.MSATSectors, 1)
			tt.corrupt(l)

			for _, opts := range []*CompDocOptions{nil, {LenientMSAT: true, IgnoreWorkbookCorruption: true}} {
				_, err := NewCompDoc(l.Data, opts)
				require.True(t, ErrCorrupt.Is(err), "got %v", err)
			}
		})
	}
}

func TestCompDocSharedStructureSector(t *testing.T) {
	l := testxls.BuildCFB(sampleStreams(), testxls.Options{})
	// a directory sector listed as a SAT sector
	l.SetMSAT(1, l.Chains["<directory>"][0])
	l.SetHeader32(44, 2)

	_, err := NewCompDoc(l.Data, &CompDocOptions{IgnoreWorkbookCorruption: true})
	require.True(t, ErrCorrupt.Is(err), "got %v", err)
}

func TestCompDocMSATOutOfRange(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(l *testxls.Layout)
	}{
		{"SAT sector past end of file", func(l *testxls.Layout) {
			l.SetMSAT(109, 500000)
		}},
		{"extension sector past end of file", func(l *testxls.Layout) {
			l.SetHeader32(68, 500000)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			streams := sampleStreams()
			l := testxls.BuildCFB(streams, testxls.Options{MinSATSectors: 110})
			require.NotEmpty(t, l.MSATSectors)
			tt.corrupt(l)

			_, err := NewCompDoc(l.Data, nil)
			require.True(t, ErrCorrupt.Is(err), "got %v", err)

			logger, hook := logtest.NewNullLogger()
			cd, err := NewCompDoc(l.Data, &CompDocOptions{Logger: logger, LenientMSAT: true})
			require.NoError(t, err)
			got, err := cd.Stream("Workbook")
			require.NoError(t, err)
			require.Equal(t, streams[0].Data, got)

			var warned bool
			for _, e := range hook.AllEntries() {
				if e.Level == logrus.WarnLevel {
					warned = true
				}
			}
			require.True(t, warned, "lenient MSAT handling should warn")
		})
	}
}

func TestCompDocTruncatedFile(t *testing.T) {
	l := testxls.BuildCFB(sampleStreams(), testxls.Options{})
	// the SAT sector is last in the layout
	l.Truncate(1)
	_, err := NewCompDoc(l.Data, nil)
	require.True(t, ErrCorrupt.Is(err), "got %v", err)
}
