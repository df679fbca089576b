package xlrd

import (
	"encoding/binary"
)

func readLen(data []byte, pos, lenlen int) (int, error) {
	if pos < 0 || pos+lenlen > len(data) {
		return 0, ErrCorrupt.New("string length field past end of record")
	}
	if lenlen == 1 {
		return int(data[pos]), nil
	}
	return int(binary.LittleEndian.Uint16(data[pos:])), nil
}

// UnpackString unpacks an 8-bit string preceded by a lenlen-byte length and
// decodes it with the named encoding.
func UnpackString(data []byte, pos int, encoding string, lenlen int) (string, error) {
	s, _, err := UnpackStringUpdatePos(data, pos, encoding, lenlen, nil)
	return s, err
}

// UnpackStringUpdatePos is UnpackString that also returns the position just
// past the string. When knownLen is not nil there is no length field.
func UnpackStringUpdatePos(data []byte, pos int, encoding string, lenlen int, knownLen *int) (string, int, error) {
	var nchars int
	if knownLen != nil {
		nchars = *knownLen
	} else {
		n, err := readLen(data, pos, lenlen)
		if err != nil {
			return "", pos, err
		}
		nchars = n
		pos += lenlen
	}
	if pos+nchars > len(data) {
		return "", pos, ErrCorrupt.New("8-bit string runs past end of record")
	}
	return decodeText(data[pos:pos+nchars], encoding), pos + nchars, nil
}

// UnpackUnicode unpacks a BIFF8 unicode string: length, option flags,
// optional rich-text and phonetic headers, characters, then the skipped
// rich-text runs and phonetic block.
func UnpackUnicode(data []byte, pos int, lenlen int) (string, error) {
	s, _, err := UnpackUnicodeUpdatePos(data, pos, lenlen, nil)
	return s, err
}

// UnpackUnicodeUpdatePos is UnpackUnicode that also returns the position
// just past the string, including any rich-text runs and phonetic data.
func UnpackUnicodeUpdatePos(data []byte, pos int, lenlen int, knownLen *int) (string, int, error) {
	var nchars int
	if knownLen != nil {
		nchars = *knownLen
	} else {
		n, err := readLen(data, pos, lenlen)
		if err != nil {
			return "", pos, err
		}
		nchars = n
		pos += lenlen
	}
	if nchars == 0 && pos >= len(data) {
		// Zero-length string at the very end of a record may omit its flags.
		return "", pos, nil
	}
	if pos >= len(data) {
		return "", pos, ErrCorrupt.New("unicode string flags past end of record")
	}
	options := data[pos]
	pos++

	var rtcount, phosz int
	if options&0x08 != 0 {
		if pos+2 > len(data) {
			return "", pos, ErrCorrupt.New("rich-text run count past end of record")
		}
		rtcount = int(binary.LittleEndian.Uint16(data[pos:]))
		pos += 2
	}
	if options&0x04 != 0 {
		if pos+4 > len(data) {
			return "", pos, ErrCorrupt.New("phonetic size past end of record")
		}
		phosz = int(int32(binary.LittleEndian.Uint32(data[pos:])))
		pos += 4
	}

	var s string
	if options&0x01 != 0 {
		end := pos + 2*nchars
		if end > len(data) {
			return "", pos, ErrCorrupt.New("UTF-16 string runs past end of record")
		}
		s = utf16le(data[pos:end])
		pos = end
	} else {
		end := pos + nchars
		if end > len(data) {
			return "", pos, ErrCorrupt.New("compressed string runs past end of record")
		}
		s = latin1(data[pos:end])
		pos = end
	}
	pos += 4*rtcount + phosz
	return s, pos, nil
}
