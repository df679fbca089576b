package xlrd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupTables(t *testing.T) {
	t.Run("biff versions", func(t *testing.T) {
		for num, text := range map[int]string{
			0: "(not BIFF)", 20: "2.0", 21: "2.1", 30: "3", 40: "4S",
			45: "4W", 50: "5", 70: "7", 80: "8", 85: "8X", 99: "Unknown(99)",
		} {
			require.Equal(t, text, BiffTextFromNum(num), "version %d", num)
		}
	})

	t.Run("error codes", func(t *testing.T) {
		require.Len(t, ErrorTextFromCode, 7)
		for code, text := range map[byte]string{
			0x00: "#NULL!", 0x07: "#DIV/0!", 0x0F: "#VALUE!", 0x17: "#REF!",
			0x1D: "#NAME?", 0x24: "#NUM!", 0x2A: "#N/A",
		} {
			require.Equal(t, text, ErrorTextFromCode[code], "code 0x%02x", code)
		}
	})

	t.Run("cell opcodes", func(t *testing.T) {
		for _, code := range []int{XL_BOOLERR, XL_FORMULA, XL_LABELSST, XL_NUMBER, XL_RK} {
			require.True(t, IsCellOpcode(code), "0x%04x", code)
		}
		for _, code := range []int{XL_BOF, XL_EOF, 0xFFFF} {
			require.False(t, IsCellOpcode(code), "0x%04x", code)
		}
	})
}

func TestUnpackString(t *testing.T) {
	tests := []struct {
		data     []byte
		encoding string
		lenlen   int
		want     string
	}{
		{[]byte{0x03, 0x00, 'a', 'b', 'c'}, "iso-8859-1", 2, "abc"},
		{[]byte{0x02, 0xE9, 0x80}, "cp1252", 1, "é€"},
		{[]byte{0x02, 0xE9, 0x80}, "unknown_codepage_99", 1, "é\u0080"},
		{[]byte{0x04, 0x00, 0x61, 0x00, 0x62, 0x00}, "utf_16_le", 2, "ab"},
	}

	for _, tt := range tests {
		got, err := UnpackString(tt.data, 0, tt.encoding, tt.lenlen)
		if err != nil {
			t.Errorf("UnpackString(% x, %s) error = %v", tt.data, tt.encoding, err)
			continue
		}
		if got != tt.want {
			t.Errorf("UnpackString(% x, %s) = %q, want %q", tt.data, tt.encoding, got, tt.want)
		}
	}

	if _, err := UnpackString([]byte{0x05, 'a'}, 0, "iso-8859-1", 1); !ErrCorrupt.Is(err) {
		t.Errorf("UnpackString on a short record: error = %v, want ErrCorrupt", err)
	}
}

func TestUnpackUnicode(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    string
		wantPos int
	}{
		{"compressed", []byte{0x03, 0x00, 0x00, 'a', 'b', 'c'}, "abc", 6},
		{"wide", []byte{0x02, 0x00, 0x01, 0xAC, 0x20, 0x41, 0x00}, "\u20acA", 7},
		{"rich text runs skipped", []byte{0x01, 0x00, 0x08, 0x01, 0x00, 'x', 0, 0, 0, 0}, "x", 10},
		{"empty at end of record", []byte{0x00, 0x00}, "", 2},
	}

	for _, tt := range tests {
		got, pos, err := UnpackUnicodeUpdatePos(tt.data, 0, 2, nil)
		if err != nil {
			t.Errorf("%s: UnpackUnicodeUpdatePos error = %v", tt.name, err)
			continue
		}
		if got != tt.want || pos != tt.wantPos {
			t.Errorf("%s: UnpackUnicodeUpdatePos = (%q, %d), want (%q, %d)", tt.name, got, pos, tt.want, tt.wantPos)
		}
	}

	n := 2
	got, pos, err := UnpackUnicodeUpdatePos([]byte{0x00, 'h', 'i', '!'}, 0, 2, &n)
	if err != nil || got != "hi" || pos != 3 {
		t.Errorf("UnpackUnicodeUpdatePos with known length = (%q, %d, %v), want (\"hi\", 3, nil)", got, pos, err)
	}

	if _, err := UnpackUnicode([]byte{0x04, 0x00, 0x01, 'a', 0}, 0, 2); !ErrCorrupt.Is(err) {
		t.Errorf("UnpackUnicode on a short record: error = %v, want ErrCorrupt", err)
	}
}

func TestRecordName(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{XL_BOF, "BOF"},
		{0x0409, "BOF_B4"},
		{XL_LABELSST, "LABELSST"},
		{XL_SUPBOOK, "SUPBOOK"},
		{0x7777, "<UNKNOWN>"},
	}

	for _, tt := range tests {
		if got := RecordName(tt.code); got != tt.want {
			t.Errorf("RecordName(0x%04x) = %s, want %s", tt.code, got, tt.want)
		}
	}
}
