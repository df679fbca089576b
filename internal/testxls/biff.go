package testxls

import (
	"encoding/binary"
	"math"
	"unicode/utf16"
)

// BIFF versions as reported by the reader.
const (
	BIFF21 = 21
	BIFF30 = 30
	BIFF40 = 40
	BIFF50 = 50
	BIFF70 = 70
	BIFF80 = 80
)

// BOF stream types.
const (
	Globals   = 0x0005
	Worksheet = 0x0010
	Chart     = 0x0020
	Macro     = 0x0040
	Globals4W = 0x0100
)

// Record codes used by the builders below.
const (
	RecEOF         = 0x000A
	RecBOF8        = 0x0809
	RecFormula     = 0x0006
	RecExternSheet = 0x0017
	RecName        = 0x0018
	RecDatemode    = 0x0022
	RecFilepass    = 0x002F
	RecFont        = 0x0031
	RecContinue    = 0x003C
	RecCodepage    = 0x0042
	RecWriteAccess = 0x005C
	RecColInfo     = 0x007D
	RecBoundsheet  = 0x0085
	RecMulRK       = 0x00BD
	RecMulBlank    = 0x00BE
	RecXF          = 0x00E0
	RecMergedCells = 0x00E5
	RecSST         = 0x00FC
	RecLabelSST    = 0x00FD
	RecSupbook     = 0x01AE
	RecDimension   = 0x0200
	RecBlank       = 0x0201
	RecNumber      = 0x0203
	RecLabel       = 0x0204
	RecBoolErr     = 0x0205
	RecString      = 0x0207
	RecRow         = 0x0208
	RecWindow2     = 0x023E
	RecRK          = 0x027E
	RecFormat      = 0x041E
)

// Cat concatenates byte slices.
func Cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Record builds one record from its code and payload parts.
func Record(code int, parts ...[]byte) []byte {
	payload := Cat(parts...)
	out := make([]byte, 4, 4+len(payload))
	binary.LittleEndian.PutUint16(out, uint16(code))
	binary.LittleEndian.PutUint16(out[2:], uint16(len(payload)))
	return append(out, payload...)
}

func U8(v int) []byte { return []byte{byte(v)} }

func U16(v int) []byte {
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, uint16(v))
	return out
}

func U32(v int) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(v))
	return out
}

func F64(v float64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, math.Float64bits(v))
	return out
}

func length(n, lenlen int) []byte {
	if lenlen == 1 {
		return U8(n)
	}
	return U16(n)
}

// Str8 is an 8-bit string with a lenlen-byte length. Runes above U+00FF
// are not representable and must not be passed.
func Str8(s string, lenlen int) []byte {
	runes := []rune(s)
	out := length(len(runes), lenlen)
	for _, r := range runes {
		out = append(out, byte(r))
	}
	return out
}

// Uni is a BIFF8 string with a lenlen-byte length, stored compressed when
// every character fits in one byte.
func Uni(s string, lenlen int) []byte {
	units := utf16.Encode([]rune(s))
	for _, u := range units {
		if u > 0xFF {
			return UniWide(s, lenlen)
		}
	}
	out := Cat(length(len(units), lenlen), U8(0))
	for _, u := range units {
		out = append(out, byte(u))
	}
	return out
}

// UniWide is a BIFF8 string stored as UTF-16LE.
func UniWide(s string, lenlen int) []byte {
	units := utf16.Encode([]rune(s))
	out := Cat(length(len(units), lenlen), U8(1))
	for _, u := range units {
		out = append(out, U16(int(u))...)
	}
	return out
}

// BOF builds the BOF record a given BIFF version writes.
func BOF(version, streamType int) []byte {
	switch version {
	case BIFF80:
		return Record(RecBOF8, U16(0x0600), U16(streamType), U16(0x0DBB), U16(0x07CC), U32(0x41), U32(6))
	case BIFF70:
		return Record(RecBOF8, U16(0x0500), U16(streamType), U16(0x0DBB), U16(1996))
	case BIFF50:
		return Record(RecBOF8, U16(0x0500), U16(streamType), U16(0x0DBB), U16(1993))
	case BIFF40:
		return Record(0x0409, U16(0), U16(streamType), U16(0))
	case BIFF30:
		return Record(0x0209, U16(0), U16(streamType), U16(0))
	}
	return Record(0x0009, U16(0), U16(streamType))
}

func EOF() []byte { return Record(RecEOF) }

// Sheet is a substream of a workbook.
type Sheet struct {
	Name       string
	Kind       int
	Visibility int
	Records    [][]byte
}

// Workbook assembles a BIFF5 to BIFF8 workbook stream: the globals BOF,
// the globals records, one BOUNDSHEET per sheet, EOF, then every sheet
// substream. BOUNDSHEET offsets are computed from the layout.
func Workbook(version int, globals [][]byte, sheets []Sheet) []byte {
	head := Cat(BOF(version, Globals), Cat(globals...))
	bsLen := 0
	for _, sh := range sheets {
		bsLen += len(boundsheet(version, 0, sh))
	}
	offset := len(head) + bsLen + len(EOF())

	var bodies [][]byte
	var bs [][]byte
	for _, sh := range sheets {
		bs = append(bs, boundsheet(version, offset, sh))
		streamType := Worksheet
		switch sh.Kind {
		case 1:
			streamType = Macro
		case 2:
			streamType = Chart
		}
		body := Cat(BOF(version, streamType), Cat(sh.Records...), EOF())
		bodies = append(bodies, body)
		offset += len(body)
	}
	return Cat(head, Cat(bs...), EOF(), Cat(bodies...))
}

func boundsheet(version, offset int, sh Sheet) []byte {
	name := Str8(sh.Name, 1)
	if version >= BIFF80 {
		name = Uni(sh.Name, 1)
	}
	return Record(RecBoundsheet, U32(offset), U8(sh.Visibility), U8(sh.Kind), name)
}

// Font8 is a minimal FONT record for BIFF5 and later.
func Font8(version int, name string) []byte {
	s := Str8(name, 1)
	if version >= BIFF80 {
		s = Uni(name, 1)
	}
	return Record(RecFont, U16(200), U16(0), U16(0x7FFF), U16(400), U16(0), U8(0), U8(0), U8(0), U8(0), s)
}

// Format is a BIFF5+ FORMAT record.
func Format(version, key int, fmtStr string) []byte {
	if version >= BIFF80 {
		return Record(RecFormat, U16(key), Uni(fmtStr, 2))
	}
	return Record(RecFormat, U16(key), Str8(fmtStr, 1))
}

// XF is an XF record for BIFF5 or BIFF8. parent is ignored for style XFs.
func XF(version, font, format int, style bool, parent int) []byte {
	typ := 0x0001 | parent<<4
	if style {
		typ = 0x0005 | 0xFFF0
	}
	if version >= BIFF80 {
		return Record(RecXF, U16(font), U16(format), U16(typ), make([]byte, 14))
	}
	return Record(RecXF, U16(font), U16(format), U16(typ), make([]byte, 10))
}

// StdStyles returns the font and the 16 XFs Excel writes by default: 15
// style XFs followed by the default cell XF. Cell XFs added after them
// start at index 16.
func StdStyles(version int) [][]byte {
	recs := [][]byte{Font8(version, "Arial")}
	for i := 0; i < 15; i++ {
		recs = append(recs, XF(version, 0, 0, true, 0))
	}
	return append(recs, XF(version, 0, 0, false, 0))
}

// SST is a shared string table held in a single record.
func SST(strs ...string) []byte {
	parts := [][]byte{U32(len(strs)), U32(len(strs))}
	for _, s := range strs {
		parts = append(parts, Uni(s, 2))
	}
	return Record(RecSST, parts...)
}

func Number(rowx, colx, xfx int, v float64) []byte {
	return Record(RecNumber, U16(rowx), U16(colx), U16(xfx), F64(v))
}

// RK stores an integer that fits in 30 bits as an RK value.
func RK(rowx, colx, xfx int, v int) []byte {
	return Record(RecRK, U16(rowx), U16(colx), U16(xfx), U32(v<<2|2))
}

func LabelSST(rowx, colx, xfx, sstx int) []byte {
	return Record(RecLabelSST, U16(rowx), U16(colx), U16(xfx), U32(sstx))
}

// Label is a LABEL record; BIFF8 strings are unicode.
func Label(version, rowx, colx, xfx int, s string) []byte {
	if version >= BIFF80 {
		return Record(RecLabel, U16(rowx), U16(colx), U16(xfx), Uni(s, 2))
	}
	return Record(RecLabel, U16(rowx), U16(colx), U16(xfx), Str8(s, 2))
}

func BoolErr(rowx, colx, xfx, value int, isErr bool) []byte {
	flag := 0
	if isErr {
		flag = 1
	}
	return Record(RecBoolErr, U16(rowx), U16(colx), U16(xfx), U8(value), U8(flag))
}

func Blank(rowx, colx, xfx int) []byte {
	return Record(RecBlank, U16(rowx), U16(colx), U16(xfx))
}

// Formula is a BIFF5+ FORMULA record with an 8-byte cached result.
func Formula(rowx, colx, xfx int, result []byte, tokens []byte) []byte {
	return Record(RecFormula, U16(rowx), U16(colx), U16(xfx), result, U16(0), U32(0), U16(len(tokens)), tokens)
}

// SpecialResult is a cached formula result that is not a number: kind 0
// string, 1 boolean, 2 error, 3 empty string.
func SpecialResult(kind, value int) []byte {
	return []byte{byte(kind), 0, byte(value), 0, 0, 0, 0xFF, 0xFF}
}

// MergedCells lists ranges as inclusive (rlo, rhi, clo, chi).
func MergedCells(ranges ...[4]int) []byte {
	parts := [][]byte{U16(len(ranges))}
	for _, r := range ranges {
		parts = append(parts, U16(r[0]), U16(r[1]), U16(r[2]), U16(r[3]))
	}
	return Record(RecMergedCells, parts...)
}

// Row is a BIFF3+ ROW record. xfx < 0 means no default format.
func Row(rowx, height, xfx int) []byte {
	bits2 := 0x100
	if xfx >= 0 {
		bits2 |= 0x80 | xfx<<16
	}
	return Record(RecRow, U16(rowx), U16(0), U16(0), U16(height), U16(0), U16(0), U32(bits2))
}

func ColInfo(first, last, width, xfx, flags int) []byte {
	return Record(RecColInfo, U16(first), U16(last), U16(width), U16(xfx), U16(flags), U16(0))
}

// Name is a BIFF8 NAME record. itab is the 1-based sheet scope, 0 for a
// global name. Built-in names pass their one-character code as name.
func Name(flags, itab int, name string, formula []byte) []byte {
	return Record(RecName, U16(flags), U8(0), U8(len(name)), U16(len(formula)), U16(0), U16(itab),
		U8(0), U8(0), U8(0), U8(0), U8(0), []byte(name), formula)
}

// InternalSupbook is the SUPBOOK record that marks references into the
// workbook itself.
func InternalSupbook(nsheets int) []byte {
	return Record(RecSupbook, U16(nsheets), []byte{0x01, 0x04})
}

// ExternSheet is a BIFF8 EXTERNSHEET record; each ref is (supbook, first
// sheet, last sheet).
func ExternSheet(refs ...[3]int) []byte {
	parts := [][]byte{U16(len(refs))}
	for _, r := range refs {
		parts = append(parts, U16(r[0]), U16(r[1]), U16(r[2]))
	}
	return Record(RecExternSheet, parts...)
}

// Window2 is a BIFF8 WINDOW2 record.
func Window2(options, gridColourIndex int) []byte {
	return Record(RecWindow2, U16(options), U16(0), U16(0), U16(gridColourIndex), U16(0), U16(0), U16(0), U32(0))
}

// Dimension is a BIFF8 DIMENSION record; the row and column limits are
// exclusive.
func Dimension(nrows, ncols int) []byte {
	return Record(RecDimension, U32(0), U32(nrows), U16(0), U16(ncols), U16(0))
}
