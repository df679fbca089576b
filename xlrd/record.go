package xlrd

import (
	"encoding/binary"
	"fmt"
)

// recordCursor reads (code, length, payload) records from one workbook
// stream. Offsets are absolute positions in mem; end bounds the stream.
type recordCursor struct {
	mem    []byte
	offset int
	end    int
}

func newRecordCursor(mem []byte, base, size int) *recordCursor {
	return &recordCursor{mem: mem, offset: base, end: base + size}
}

func (c *recordCursor) pos() int { return c.offset }

func (c *recordCursor) atEnd() bool { return c.offset >= c.end }

// seek moves the cursor to an absolute offset, as recorded for a sheet.
func (c *recordCursor) seek(pos int) { c.offset = pos }

// peekCode returns the code of the next record without consuming it.
func (c *recordCursor) peekCode() (int, bool) {
	if c.offset < 0 || c.offset+4 > c.end {
		return 0, false
	}
	return int(binary.LittleEndian.Uint16(c.mem[c.offset:])), true
}

// next reads one record. A header or payload running past the end of the
// stream is corruption.
func (c *recordCursor) next() (code, length int, data []byte, err error) {
	if c.offset < 0 || c.offset+4 > c.end {
		return 0, 0, nil, ErrCorrupt.New(fmt.Sprintf("record header at offset %d runs past end of stream", c.offset))
	}
	code = int(binary.LittleEndian.Uint16(c.mem[c.offset:]))
	length = int(binary.LittleEndian.Uint16(c.mem[c.offset+2:]))
	start := c.offset + 4
	if start+length > c.end {
		return code, length, nil, ErrCorrupt.New(fmt.Sprintf(
			"record 0x%04x at offset %d: payload of %d bytes runs past end of stream", code, c.offset, length))
	}
	c.offset = start + length
	return code, length, c.mem[start:c.offset], nil
}

// nextIf consumes the next record only when its code matches.
func (c *recordCursor) nextIf(code int) ([]byte, bool, error) {
	got, ok := c.peekCode()
	if !ok || got != code {
		return nil, false, nil
	}
	_, _, data, err := c.next()
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// continuations collects the payloads of all CONTINUE records that follow.
func (c *recordCursor) continuations() ([][]byte, error) {
	var out [][]byte
	for {
		data, ok, err := c.nextIf(XL_CONTINUE)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, data)
	}
}
