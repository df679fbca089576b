package xlrd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"
)

// openRecordStream locates the workbook stream of a file without parsing
// any records.
func openRecordStream(filename string, opts *OpenWorkbookOptions) (*Book, error) {
	if opts == nil {
		opts = &OpenWorkbookOptions{}
	}
	b := newBook(opts)
	if err := b.loadInput(filename, opts); err != nil {
		b.ReleaseResources()
		return nil, err
	}
	return b, nil
}

// Dump dumps an XLS file's BIFF records in char & hex format for debugging.
//
// filename: The path to the file to be dumped.
// outfile: An open file, to which the dump is written.
// unnumbered: If true, omit offsets (for meaningful diffs).
func Dump(filename string, outfile io.Writer, unnumbered bool) error {
	return DumpWithOptions(filename, outfile, unnumbered, nil)
}

// DumpWithOptions is Dump reading the input as described by opts, which
// may supply FileContents or request memory mapping.
func DumpWithOptions(filename string, outfile io.Writer, unnumbered bool, opts *OpenWorkbookOptions) error {
	b, err := openRecordStream(filename, opts)
	if err != nil {
		return err
	}
	defer b.ReleaseResources()
	return biffDump(b.mem, b.base, b.streamLen, 0, outfile, unnumbered)
}

// CountRecords summarises the file's BIFF records.
// It produces a sorted list of (count, record_name).
//
// filename: The path to the file to be summarised.
// outfile: An open file, to which the summary is written.
func CountRecords(filename string, outfile io.Writer) error {
	return CountRecordsWithOptions(filename, outfile, nil)
}

// CountRecordsWithOptions is CountRecords reading the input as described
// by opts.
func CountRecordsWithOptions(filename string, outfile io.Writer, opts *OpenWorkbookOptions) error {
	b, err := openRecordStream(filename, opts)
	if err != nil {
		return err
	}
	defer b.ReleaseResources()
	return biffCountRecords(b.mem, b.base, b.streamLen, outfile)
}

func numPrefix(numbered bool, offset int) string {
	if !numbered {
		return ""
	}
	return fmt.Sprintf("%5d: ", offset)
}

func biffDump(mem []byte, streamOffset, streamLen, base int, w io.Writer, unnumbered bool) error {
	numbered := !unnumbered
	pos := streamOffset
	streamEnd := streamOffset + streamLen
	adj := base - streamOffset
	dummies, savpos, length := 0, 0, 0
	for streamEnd-pos >= 4 {
		rc := int(binary.LittleEndian.Uint16(mem[pos:]))
		length = int(binary.LittleEndian.Uint16(mem[pos+2:]))
		if rc == 0 && length == 0 {
			if allZero(mem[pos:streamEnd]) {
				dummies = streamEnd - pos
				savpos = pos
				pos = streamEnd
				break
			}
			if dummies > 0 {
				dummies += 4
			} else {
				savpos = pos
				dummies = 4
			}
			pos += 4
			continue
		}
		if dummies > 0 {
			if _, err := fmt.Fprintf(w, "%s---- %d zero bytes skipped ----\n", numPrefix(numbered, adj+savpos), dummies); err != nil {
				return err
			}
			dummies = 0
		}
		if _, err := fmt.Fprintf(w, "%s%04x %s len = %04x (%d)\n",
			numPrefix(numbered, adj+pos), rc, RecordName(rc), length, length); err != nil {
			return err
		}
		pos += 4
		if err := HexCharDump(mem, pos, length, adj+pos, w, unnumbered); err != nil {
			return err
		}
		pos += length
	}
	if dummies > 0 {
		if _, err := fmt.Fprintf(w, "%s---- %d zero bytes skipped ----\n", numPrefix(numbered, adj+savpos), dummies); err != nil {
			return err
		}
	}
	switch {
	case pos < streamEnd:
		if _, err := fmt.Fprintf(w, "%s---- Misc bytes at end ----\n", numPrefix(numbered, adj+pos)); err != nil {
			return err
		}
		return HexCharDump(mem, pos, streamEnd-pos, adj+pos, w, unnumbered)
	case pos > streamEnd:
		_, err := fmt.Fprintf(w, "Last dumped record has length (%d) that is too large\n", length)
		return err
	}
	return nil
}

func allZero(b []byte) bool {
	return len(bytes.Trim(b, "\x00")) == 0
}

// HexCharDump writes dlen bytes of data starting at ofs, 16 bytes per
// line, as hex followed by characters. NUL shows as '~' and other
// non-printable bytes as '?'. Each line is prefixed by its offset counted
// from base unless unnumbered is set.
func HexCharDump(data []byte, ofs, dlen, base int, w io.Writer, unnumbered bool) error {
	endpos := ofs + dlen
	if endpos > len(data) {
		endpos = len(data)
	}
	var hexd, chard strings.Builder
	for pos := ofs; pos < endpos; pos += 16 {
		endsub := pos + 16
		if endsub > endpos {
			endsub = endpos
		}
		hexd.Reset()
		chard.Reset()
		for _, c := range data[pos:endsub] {
			fmt.Fprintf(&hexd, "%02x ", c)
			switch {
			case c == 0:
				chard.WriteByte('~')
			case c < ' ' || c > '~':
				chard.WriteByte('?')
			default:
				chard.WriteByte(c)
			}
		}
		if _, err := fmt.Fprintf(w, "%s     %-48s %s\n", numPrefix(!unnumbered, base+pos-ofs), hexd.String(), chard.String()); err != nil {
			return err
		}
	}
	return nil
}

func biffCountRecords(mem []byte, streamOffset, streamLen int, w io.Writer) error {
	tally := make(map[string]int)
	pos := streamOffset
	streamEnd := streamOffset + streamLen
	for streamEnd-pos >= 4 {
		rc := int(binary.LittleEndian.Uint16(mem[pos:]))
		length := int(binary.LittleEndian.Uint16(mem[pos+2:]))
		var recname string
		switch {
		case rc == 0 && length == 0:
			if allZero(mem[pos:streamEnd]) {
				pos = streamEnd
				continue
			}
			recname = "<Dummy (zero)>"
		default:
			var ok bool
			if recname, ok = recordNames[rc]; !ok {
				recname = fmt.Sprintf("Unknown_0x%04X", rc)
			}
		}
		tally[recname]++
		pos += length + 4
	}
	names := make([]string, 0, len(tally))
	for name := range tally {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "%8d %s\n", tally[name], name); err != nil {
			return err
		}
	}
	return nil
}
