package xlrd

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/sirupsen/logrus"
)

// RichTextRun marks the font used from character Offset onwards.
type RichTextRun struct {
	Offset    int
	FontIndex int
}

// segmentReader reads one logical record whose payload is split over a
// record and its CONTINUE records.
type segmentReader struct {
	segs [][]byte
	seg  int
	pos  int
}

func newSegmentReader(segs [][]byte) *segmentReader {
	return &segmentReader{segs: segs}
}

func (r *segmentReader) avail() int {
	if r.seg >= len(r.segs) {
		return 0
	}
	return len(r.segs[r.seg]) - r.pos
}

// skipExhausted moves past fully consumed segments.
func (r *segmentReader) skipExhausted() {
	for r.seg < len(r.segs) && r.pos >= len(r.segs[r.seg]) {
		r.seg++
		r.pos = 0
	}
}

func (r *segmentReader) done() bool {
	r.skipExhausted()
	return r.seg >= len(r.segs)
}

// bytes reads n bytes, crossing segment boundaries byte-wise.
func (r *segmentReader) bytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	r.skipExhausted()
	if r.avail() >= n {
		b := r.segs[r.seg][r.pos : r.pos+n]
		r.pos += n
		return b, nil
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		r.skipExhausted()
		if r.seg >= len(r.segs) {
			return nil, ErrCorrupt.New("string data runs past end of record and its continuations")
		}
		take := n - len(out)
		if a := r.avail(); take > a {
			take = a
		}
		out = append(out, r.segs[r.seg][r.pos:r.pos+take]...)
		r.pos += take
	}
	return out, nil
}

func (r *segmentReader) u8() (int, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return int(b[0]), nil
}

func (r *segmentReader) u16() (int, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint16(b)), nil
}

func (r *segmentReader) i32() (int, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return int(int32(binary.LittleEndian.Uint32(b))), nil
}

// chars reads nchars characters. When the character data is interrupted by
// a segment boundary, the next segment starts with a fresh option byte and
// the character width may change there.
func (r *segmentReader) chars(nchars int, wide bool) ([]uint16, error) {
	units := make([]uint16, 0, nchars)
	for len(units) < nchars {
		if r.avail() == 0 {
			r.seg++
			r.pos = 0
			if r.seg >= len(r.segs) {
				return nil, ErrCorrupt.New("string characters run past end of record and its continuations")
			}
			if len(r.segs[r.seg]) == 0 {
				continue
			}
			wide = r.segs[r.seg][0]&0x01 != 0
			r.pos = 1
		}
		need := nchars - len(units)
		data := r.segs[r.seg]
		if wide {
			take := r.avail() / 2
			if take == 0 {
				return nil, ErrCorrupt.New("UTF-16 character split across record boundary")
			}
			if take > need {
				take = need
			}
			for i := 0; i < take; i++ {
				units = append(units, binary.LittleEndian.Uint16(data[r.pos:]))
				r.pos += 2
			}
		} else {
			take := r.avail()
			if take > need {
				take = need
			}
			for i := 0; i < take; i++ {
				units = append(units, uint16(data[r.pos]))
				r.pos++
			}
		}
	}
	return units, nil
}

type unicodeString struct {
	text     string
	runs     []RichTextRun
	phonetic []byte
}

// unicodeString reads a complete BIFF8 string with a lenlen-byte length.
// UTF-16 units are collected over all segments and decoded once so that a
// surrogate pair split by a boundary survives.
func (r *segmentReader) unicodeString(lenlen int) (*unicodeString, error) {
	var nchars int
	var err error
	if lenlen == 1 {
		nchars, err = r.u8()
	} else {
		nchars, err = r.u16()
	}
	if err != nil {
		return nil, err
	}
	options, err := r.u8()
	if err != nil {
		return nil, err
	}
	var rtcount, phosz int
	if options&0x08 != 0 {
		if rtcount, err = r.u16(); err != nil {
			return nil, err
		}
	}
	if options&0x04 != 0 {
		if phosz, err = r.i32(); err != nil {
			return nil, err
		}
		if phosz < 0 {
			return nil, ErrCorrupt.New("negative phonetic block size")
		}
	}
	units, err := r.chars(nchars, options&0x01 != 0)
	if err != nil {
		return nil, err
	}
	us := &unicodeString{text: string(utf16.Decode(units))}
	if rtcount > 0 {
		raw, err := r.bytes(4 * rtcount)
		if err != nil {
			return nil, err
		}
		us.runs = make([]RichTextRun, rtcount)
		for i := range us.runs {
			us.runs[i] = RichTextRun{
				Offset:    int(binary.LittleEndian.Uint16(raw[4*i:])),
				FontIndex: int(binary.LittleEndian.Uint16(raw[4*i+2:])),
			}
		}
	}
	if phosz > 0 {
		raw, err := r.bytes(phosz)
		if err != nil {
			return nil, err
		}
		us.phonetic = append([]byte(nil), raw...)
	}
	return us, nil
}

type sstTable struct {
	strings  []string
	runs     map[int][]RichTextRun
	phonetic map[int][]byte
}

// unpackSSTTable decodes the shared string table held in segs: the SST
// payload after its 8-byte header followed by every CONTINUE payload. A
// count mismatch is logged and the strings decoded so far are kept.
func unpackSSTTable(segs [][]byte, nstrings int, log logrus.FieldLogger) *sstTable {
	t := &sstTable{
		runs:     make(map[int][]RichTextRun),
		phonetic: make(map[int][]byte),
	}
	if nstrings < 0 {
		nstrings = 0
	}
	r := newSegmentReader(segs)
	for i := 0; i < nstrings; i++ {
		if r.done() {
			break
		}
		us, err := r.unicodeString(2)
		if err != nil {
			log.WithFields(logrus.Fields{"index": i, "cause": err.Error()}).
				Warn("shared string truncated; dropped")
			break
		}
		t.strings = append(t.strings, us.text)
		if len(us.runs) > 0 {
			t.runs[i] = us.runs
		}
		if len(us.phonetic) > 0 {
			t.phonetic[i] = us.phonetic
		}
	}
	if len(t.strings) != nstrings {
		log.WithField("error", ErrStringTable.New(nstrings, len(t.strings)).Error()).
			Warn("shared string count mismatch")
	}
	return t
}
