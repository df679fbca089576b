package xlrd

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// EncodingFromCodepage maps codepage numbers to encoding names.
// Codepages not listed here in the 300..1999 range are named cpNNN.
var EncodingFromCodepage = map[int]string{
	367:   "ascii",
	1200:  "utf_16_le",
	10000: "mac_roman",
	10006: "mac_greek",    // guess
	10007: "mac_cyrillic", // guess
	10029: "mac_latin2",   // guess
	10079: "mac_iceland",  // guess
	10081: "mac_turkish",  // guess
	21010: "utf_16_le",    // Excel for Mac 2008
	32768: "mac_roman",
	32769: "cp1252",
}

var textEncodings = map[string]encoding.Encoding{
	"utf_16_le":    unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	"iso-8859-1":   charmap.ISO8859_1,
	"latin_1":      charmap.ISO8859_1,
	"ascii":        charmap.ISO8859_1,
	"mac_roman":    charmap.Macintosh,
	"mac_cyrillic": charmap.MacintoshCyrillic,
	"cp437":        charmap.CodePage437,
	"cp850":        charmap.CodePage850,
	"cp852":        charmap.CodePage852,
	"cp855":        charmap.CodePage855,
	"cp860":        charmap.CodePage860,
	"cp862":        charmap.CodePage862,
	"cp863":        charmap.CodePage863,
	"cp865":        charmap.CodePage865,
	"cp866":        charmap.CodePage866,
	"cp874":        charmap.Windows874,
	"cp932":        japanese.ShiftJIS,
	"cp936":        simplifiedchinese.GBK,
	"cp949":        korean.EUCKR,
	"cp950":        traditionalchinese.Big5,
	"cp1250":       charmap.Windows1250,
	"cp1251":       charmap.Windows1251,
	"cp1252":       charmap.Windows1252,
	"cp1253":       charmap.Windows1253,
	"cp1254":       charmap.Windows1254,
	"cp1255":       charmap.Windows1255,
	"cp1256":       charmap.Windows1256,
	"cp1257":       charmap.Windows1257,
	"cp1258":       charmap.Windows1258,
}

// encodingName returns the encoding name for a codepage. Unknown codepages
// get a placeholder name; decoding then falls back to Latin-1.
func encodingName(codepage int) string {
	if enc, ok := EncodingFromCodepage[codepage]; ok {
		return enc
	}
	if codepage >= 300 && codepage <= 1999 {
		return fmt.Sprintf("cp%d", codepage)
	}
	return fmt.Sprintf("unknown_codepage_%d", codepage)
}

// knownEncoding reports whether name can be decoded exactly.
func knownEncoding(name string) bool {
	_, ok := textEncodings[strings.ToLower(name)]
	return ok
}

// decodeText decodes 8-bit (or UTF-16LE) text in the named encoding.
func decodeText(raw []byte, name string) string {
	enc, ok := textEncodings[strings.ToLower(name)]
	if !ok {
		enc = charmap.ISO8859_1
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return latin1(raw)
	}
	return string(out)
}

// latin1 decodes "compressed" BIFF8 characters: each byte is the low byte of
// a UTF-16 code unit.
func latin1(raw []byte) string {
	runes := make([]rune, len(raw))
	for i, c := range raw {
		runes[i] = rune(c)
	}
	return string(runes)
}

// utf16le decodes little-endian UTF-16 code units, pairing surrogates.
func utf16le(raw []byte) string {
	words := make([]uint16, len(raw)/2)
	for i := range words {
		words[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	return string(utf16.Decode(words))
}
