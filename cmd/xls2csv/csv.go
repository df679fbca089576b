package main

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/yamitzky/xlrd-go/v2/xlrd"
)

type quotingMode int

const (
	quotingNone quotingMode = iota
	quotingMinimal
	quotingNonNumeric
	quotingAll
)

var quotingModes = map[string]quotingMode{
	"none":       quotingNone,
	"minimal":    quotingMinimal,
	"nonnumeric": quotingNonNumeric,
	"all":        quotingAll,
}

type field struct {
	text    string
	numeric bool
}

type csvWriter struct {
	w              io.Writer
	delimiter      rune
	lineTerminator string
	quoting        quotingMode
	buf            strings.Builder
}

func (cw *csvWriter) writeRow(fields []field) error {
	cw.buf.Reset()
	for i, f := range fields {
		if i > 0 {
			cw.buf.WriteRune(cw.delimiter)
		}
		if !cw.needsQuote(f) {
			cw.buf.WriteString(f.text)
			continue
		}
		cw.buf.WriteByte('"')
		cw.buf.WriteString(strings.ReplaceAll(f.text, `"`, `""`))
		cw.buf.WriteByte('"')
	}
	cw.buf.WriteString(cw.lineTerminator)
	_, err := io.WriteString(cw.w, cw.buf.String())
	return err
}

func (cw *csvWriter) needsQuote(f field) bool {
	switch cw.quoting {
	case quotingAll:
		return true
	case quotingNonNumeric:
		return !f.numeric
	case quotingMinimal:
		return strings.ContainsRune(f.text, cw.delimiter) || strings.ContainsAny(f.text, "\"\r\n")
	}
	return false
}

// formatCell renders one cell. With mergeCells every cell of a merged
// range reads as the range's top-left cell.
func (c *converter) formatCell(book *xlrd.Book, sheet *xlrd.Sheet, rowx, colx int) field {
	var (
		ctype int
		value interface{}
	)
	if c.opts.mergeCells {
		ctype, value = sheet.CellType(rowx, colx), sheet.CellValue(rowx, colx)
	} else {
		ctype, value = sheet.RawCellType(rowx, colx), sheet.RawCellValue(rowx, colx)
	}

	var f field
	switch ctype {
	case xlrd.XL_CELL_EMPTY, xlrd.XL_CELL_BLANK:
		return f
	case xlrd.XL_CELL_DATE:
		if text, ok := formatDate(value, book.Datemode, c.opts.dateFormat); ok {
			f.text = text
			break
		}
		f.text, f.numeric = formatFloat(value, c.opts.floatFormat), true
	case xlrd.XL_CELL_NUMBER:
		f.text, f.numeric = formatFloat(value, c.opts.floatFormat), true
	case xlrd.XL_CELL_BOOLEAN:
		f.text = formatBool(value)
	case xlrd.XL_CELL_ERROR:
		f.text = formatError(value)
	default:
		f.text = toString(value)
	}
	if c.opts.escape {
		f.text = cellEscaper.Replace(f.text)
	}
	return f
}

var cellEscaper = strings.NewReplacer("\r", `\r`, "\n", `\n`, "\t", `\t`)

func formatFloat(value interface{}, floatFormat string) string {
	v, ok := value.(float64)
	if !ok {
		return toString(value)
	}
	if floatFormat != "" {
		return fmt.Sprintf(floatFormat, v)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatBool(value interface{}) string {
	switch v := value.(type) {
	case int:
		if v != 0 {
			return "TRUE"
		}
		return "FALSE"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	}
	return toString(value)
}

func formatError(value interface{}) string {
	if code, ok := value.(int); ok {
		if text, ok := xlrd.ErrorTextFromCode[byte(code)]; ok {
			return text
		}
	}
	return "#ERROR"
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	}
	return fmt.Sprint(value)
}

// formatDate renders a date cell. Values below one day are times only;
// whole values are dates only. A dateFormat in strftime notation
// overrides both.
func formatDate(value interface{}, datemode int, dateFormat string) (string, bool) {
	v, ok := value.(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return "", false
	}
	t, err := xlrd.XldateAsDatetime(v, datemode)
	if err != nil {
		return "", false
	}
	switch {
	case dateFormat != "":
		return strftime(t, dateFormat), true
	case v < 1:
		return t.Format("15:04:05"), true
	case v != math.Floor(v):
		return t.Format("2006-01-02 15:04:05"), true
	}
	return t.Format("2006-01-02"), true
}

var strftimeLayouts = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
}

func strftime(t time.Time, format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 == len(format) {
			b.WriteByte(format[i])
			continue
		}
		i++
		if layout, ok := strftimeLayouts[format[i]]; ok {
			b.WriteString(t.Format(layout))
		} else if format[i] == '%' {
			b.WriteByte('%')
		} else {
			b.WriteByte('%')
			b.WriteByte(format[i])
		}
	}
	return b.String()
}

// outputEncoding resolves an encoding label. UTF-8 resolves to nil.
func outputEncoding(label string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported output encoding: %s", label)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return nil, nil
	}
	return enc, nil
}

func parseDelimiter(value string) (rune, error) {
	switch strings.ToLower(value) {
	case "":
		return 0, fmt.Errorf("delimiter cannot be empty")
	case "tab", "x09":
		return '\t', nil
	}
	if b, ok, err := parseHexByte(value); ok {
		return rune(b), err
	}
	r, size := utf8.DecodeRuneInString(value)
	if r == utf8.RuneError && size == 1 {
		return rune(value[0]), nil
	}
	return r, nil
}

func parseSheetDelimiter(value string) (string, error) {
	if value == `\f` {
		return "\f", nil
	}
	if b, ok, err := parseHexByte(value); ok {
		return string([]byte{b}), err
	}
	return value, nil
}

// parseHexByte parses the xHH notation. ok reports whether value has
// that shape at all.
func parseHexByte(value string) (b byte, ok bool, err error) {
	if len(value) != 3 || value[0] != 'x' {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(value[1:], 16, 8)
	return byte(n), true, err
}

func parseEscapedString(value string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] != '\\' {
			b.WriteByte(value[i])
			continue
		}
		i++
		if i == len(value) {
			return "", fmt.Errorf("dangling escape")
		}
		switch value[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '\\':
			b.WriteByte('\\')
		default:
			return "", fmt.Errorf("unknown escape \\%c", value[i])
		}
	}
	return b.String(), nil
}
