package xlrd

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Sheet contains the data for one worksheet.
//
// In the cell access functions, rowx is a row index, counting from zero,
// and colx is a column index, counting from zero.
//
// You don't instantiate this type yourself. You access Sheet objects via
// the Book object that was returned when you called OpenWorkbook.
type Sheet struct {
	// Name is the name of the sheet.
	Name string

	// Book is a reference to the Book object to which this sheet belongs.
	Book *Book

	// NRows is the number of rows in sheet. A row index is in [0, NRows).
	NRows int

	// NCols is the nominal number of columns in sheet.
	// It is one more than the maximum column index found, ignoring trailing empty cells.
	NCols int

	// Visibility of the sheet: 0 visible, 1 hidden, 2 "very hidden".
	Visibility int

	// ColInfoMap is the map from a column index to a ColInfo object.
	// Columns without a COLINFO record have no entry.
	ColInfoMap map[int]*ColInfo

	// RowInfoMap is the map from a row index to a RowInfo object.
	// Rows without a ROW record have no entry.
	RowInfoMap map[int]*RowInfo

	// MergedCells lists merged ranges as (rlo, rhi, clo, chi); the hi
	// bounds are exclusive. The top-left cell holds the data of the range.
	MergedCells [][4]int

	// RichTextRunlistMap maps (rowx, colx) of a rich text cell to its
	// formatting runs. Only filled when FormattingInfo is set.
	RichTextRunlistMap map[[2]int][]RichTextRun

	// DefColWidth is the DEFCOLWIDTH value, -1 if absent.
	DefColWidth int

	// StandardWidth is the STANDARDWIDTH value, -1 if absent.
	StandardWidth int

	// DimNRows and DimNCols are the sheet size declared by the DIMENSION
	// record. They are informational; NRows and NCols come from the cells.
	DimNRows int
	DimNCols int

	// UtterMaxRows and UtterMaxCols bound the cell addresses this BIFF
	// version can hold.
	UtterMaxRows int
	UtterMaxCols int

	// Values from the WINDOW2 record.
	ShowFormulas            int
	ShowGridLines           int
	PanesAreFrozen          int
	ShowZeroValues          int
	AutomaticGridLineColour int
	SheetSelected           int
	SheetVisible            int
	GridlineColourIndex     int
	GridlineColourRGB       *RGB

	number   int
	position int
	log      logrus.FieldLogger

	cellTypes     [][]int
	cellValues    [][]interface{}
	cellXFIndexes [][]int
	formulas      map[[2]int][]byte

	ixfe int
}

// Cell represents a cell in a worksheet.
type Cell struct {
	// CType is the type of the cell.
	// One of: XL_CELL_EMPTY, XL_CELL_TEXT, XL_CELL_NUMBER, XL_CELL_DATE, XL_CELL_BOOLEAN, XL_CELL_ERROR, XL_CELL_BLANK
	// For a formula cell it is the type of the cached result.
	CType int

	// Value is the value of the cell: string for text, float64 for numbers
	// and dates, int for booleans (0 or 1) and error codes, "" otherwise.
	Value interface{}

	// XFIndex is the index of the XF record for this cell, -1 if none.
	XFIndex int

	// Formula holds the raw formula tokens of a formula cell.
	Formula []byte
}

// IsFormula reports whether the cell value is the cached result of a formula.
func (c *Cell) IsFormula() bool {
	return c.Formula != nil
}

func (c *Cell) String() string {
	switch c.CType {
	case XL_CELL_EMPTY:
		return "empty:''"
	case XL_CELL_BLANK:
		return "blank:''"
	case XL_CELL_TEXT:
		return fmt.Sprintf("text:%q", c.Value)
	case XL_CELL_NUMBER:
		return fmt.Sprintf("number:%v", c.Value)
	case XL_CELL_DATE:
		return fmt.Sprintf("xldate:%v", c.Value)
	case XL_CELL_BOOLEAN:
		return fmt.Sprintf("bool:%v", c.Value)
	case XL_CELL_ERROR:
		if v, ok := c.Value.(int); ok {
			if text, ok := ErrorTextFromCode[byte(v)]; ok {
				return "error:" + text
			}
		}
		return fmt.Sprintf("error:%v", c.Value)
	}
	return fmt.Sprintf("unknown:%v", c.Value)
}

// EmptyCell returns an empty cell.
func EmptyCell() *Cell {
	return &Cell{CType: XL_CELL_EMPTY, Value: "", XFIndex: -1}
}

// ColInfo contains information about a column, from COLINFO (or BIFF2
// COLWIDTH) records.
type ColInfo struct {
	// Width is the column width in 1/256 of the width of the zero character.
	Width int

	// XFIndex is the index of the XF record for this column.
	XFIndex int

	// Hidden: 1 = column is hidden
	Hidden int

	// BitFlag holds the raw option flags.
	BitFlag int

	// OutlineLevel is the outline level of the column, 0 = no outline.
	OutlineLevel int

	// Collapsed: 1 = column is collapsed
	Collapsed int
}

// RowInfo contains information about a row, from ROW records.
type RowInfo struct {
	// Height of the row, in twips. One twip == 1/20 of a point.
	Height int

	// HasDefaultHeight: 0 = Row has custom height; 1 = Row has default height.
	HasDefaultHeight int

	// OutlineLevel of the row (0 to 7)
	OutlineLevel int

	// OutlineGroupStartsEnds: 1 = Outline group starts or ends here.
	OutlineGroupStartsEnds int

	// Hidden: 1 = Row is hidden (manually, or by a filter or outline group)
	Hidden int

	// HeightMismatch: 1 = Row height and default font height do not match.
	HeightMismatch int

	// HasDefaultXFIndex: 1 = the XFIndex attribute is usable; 0 = ignore it.
	HasDefaultXFIndex int

	// XFIndex is the index to the default XF record for empty cells in
	// this row, -1 when the row has no default format.
	XFIndex int

	// AdditionalSpaceAbove and AdditionalSpaceBelow are set when the row
	// has a thick or medium border on that side.
	AdditionalSpaceAbove int
	AdditionalSpaceBelow int
}

func newSheet(b *Book, position int, name string, number int) *Sheet {
	s := &Sheet{
		Name:                name,
		Book:                b,
		ColInfoMap:          make(map[int]*ColInfo),
		RowInfoMap:          make(map[int]*RowInfo),
		RichTextRunlistMap:  make(map[[2]int][]RichTextRun),
		DefColWidth:         -1,
		StandardWidth:       -1,
		DimNRows:            -1,
		DimNCols:            -1,
		UtterMaxRows:        16384,
		UtterMaxCols:        256,
		GridlineColourIndex: 0x40,
		ShowGridLines:       1,
		number:              number,
		position:            position,
		formulas:            make(map[[2]int][]byte),
		ixfe:                -1,
		log: b.log.WithFields(logrus.Fields{
			"sheet": number,
			"name":  name,
		}),
	}
	if b.BiffVersion >= 80 {
		s.UtterMaxRows = 65536
	}
	if number < len(b.sheetVisibility) {
		s.Visibility = b.sheetVisibility[number]
	}
	return s
}

// sheetBookRecords are records that BIFF 2 to 4 worksheet streams carry in
// place of workbook globals.
var sheetBookRecords = map[int]bool{
	XL_CODEPAGE:    true,
	XL_DATEMODE:    true,
	XL_FILEPASS:    true,
	XL_FONT:        true,
	XL_FONT_B3B4:   true,
	XL_FORMAT:      true,
	XL_FORMAT2:     true,
	XL_PALETTE:     true,
	XL_STYLE:       true,
	XL_WRITEACCESS: true,
	XL_XF:          true,
	XL_XF2:         true,
	XL_XF3:         true,
	XL_XF4:         true,
}

// read parses the worksheet records following the sheet's BOF up to its
// EOF. The book cursor must be positioned just past the BOF.
func (s *Sheet) read() error {
	b := s.Book
	bv := b.BiffVersion
	c := b.cursor
	for {
		code, _, data, err := c.next()
		if err != nil {
			return err
		}
		switch code {
		case XL_EOF:
			if bv <= 45 && !b.xfEpilogueDone {
				b.xfEpilogue()
			}
			s.tidyDimensions()
			s.log.WithFields(logrus.Fields{
				"nrows": s.NRows,
				"ncols": s.NCols,
			}).Debug("sheet loaded")
			return nil
		case 0x0809, 0x0409, 0x0209:
			if err := s.skipSubstream(); err != nil {
				return err
			}
			continue
		case 0x0009:
			if bv >= 30 {
				if err := s.skipSubstream(); err != nil {
					return err
				}
				continue
			}
		}

		if bv <= 45 && sheetBookRecords[code] {
			if b.Encoding == "" && code != XL_CODEPAGE && code != XL_WRITEACCESS {
				b.deriveEncoding()
			}
			if err := globalsHandlers[code](b, data); err != nil {
				return err
			}
			continue
		}
		if bv <= 45 && !b.xfEpilogueDone && isCellRecord(code, bv) {
			b.xfEpilogue()
		}
		if err := s.handleRecord(code, data); err != nil {
			return err
		}
	}
}

func isCellRecord(code, bv int) bool {
	if IsCellOpcode(code) || code == XL_BLANK || code == XL_MULBLANK {
		return true
	}
	if bv < 30 {
		switch code {
		case XL_BLANK_B2, XL_INTEGER, XL_NUMBER_B2, XL_LABEL_B2, XL_BOOLERR_B2:
			return true
		}
	}
	return false
}

// skipSubstream skips an embedded BOF...EOF block, such as a chart.
func (s *Sheet) skipSubstream() error {
	depth := 1
	for depth > 0 {
		code, _, _, err := s.Book.cursor.next()
		if err != nil {
			return err
		}
		switch code {
		case XL_EOF:
			depth--
		case 0x0809, 0x0409, 0x0209:
			depth++
		}
	}
	return nil
}

func (s *Sheet) handleRecord(code int, data []byte) error {
	b := s.Book
	bv := b.BiffVersion
	need := func(n int) error {
		if len(data) < n {
			return ErrCorrupt.New(fmt.Sprintf("%s record of %d bytes in sheet %q, need %d",
				RecordName(code), len(data), s.Name, n))
		}
		return nil
	}
	u16 := func(pos int) int { return int(binary.LittleEndian.Uint16(data[pos:])) }

	if bv < 30 {
		switch code {
		case XL_INTEGER, XL_NUMBER_B2, XL_LABEL_B2, XL_BOOLERR_B2, XL_BLANK_B2, XL_FORMULA:
			return s.handleBIFF2Cell(code, data)
		case XL_IXFE:
			if err := need(2); err != nil {
				return err
			}
			s.ixfe = u16(0)
			return nil
		case XL_DIMENSION2:
			return s.handleDimension(data)
		case XL_ROW_B2:
			return s.handleRowB2(data)
		case XL_COLWIDTH:
			return s.handleColWidth(data)
		case XL_STRING_B2:
			s.log.Debug("STRING record without a preceding FORMULA ignored")
			return nil
		}
	}

	switch code {
	case XL_NUMBER:
		if err := need(14); err != nil {
			return err
		}
		v := math.Float64frombits(binary.LittleEndian.Uint64(data[6:]))
		return s.putNumber(u16(0), u16(2), v, u16(4))
	case XL_RK:
		if err := need(10); err != nil {
			return err
		}
		return s.putNumber(u16(0), u16(2), unpackRK(data[6:10]), u16(4))
	case XL_MULRK:
		if err := need(6); err != nil {
			return err
		}
		rowx, first := u16(0), u16(2)
		last := u16(len(data) - 2)
		if last < first || 4+6*(last-first+1)+2 > len(data) {
			return ErrCorrupt.New(fmt.Sprintf("MULRK for columns %d..%d holds %d bytes", first, last, len(data)))
		}
		pos := 4
		for colx := first; colx <= last; colx++ {
			if err := s.putNumber(rowx, colx, unpackRK(data[pos+2:pos+6]), u16(pos)); err != nil {
				return err
			}
			pos += 6
		}
	case XL_LABEL, XL_RSTRING:
		if err := need(8); err != nil {
			return err
		}
		return s.handleLabel(code, data)
	case XL_LABELSST:
		if err := need(10); err != nil {
			return err
		}
		rowx, colx, xfx := u16(0), u16(2), u16(4)
		sstx := int(int32(binary.LittleEndian.Uint32(data[6:])))
		text := ""
		if sstx >= 0 && sstx < len(b.sharedStrings) {
			text = b.sharedStrings[sstx]
		} else {
			s.log.WithFields(logrus.Fields{
				"row":     rowx,
				"col":     colx,
				"sst":     sstx,
				"strings": len(b.sharedStrings),
			}).Warn("LABELSST index beyond shared string table; using empty text")
		}
		if b.formattingInfo {
			if runs, ok := b.RichTextRunlistMap[sstx]; ok {
				s.RichTextRunlistMap[[2]int{rowx, colx}] = runs
			}
		}
		return s.putCell(rowx, colx, XL_CELL_TEXT, text, xfx)
	case XL_BOOLERR:
		if err := need(8); err != nil {
			return err
		}
		return s.putBoolErr(u16(0), u16(2), int(data[6]), data[7] != 0, u16(4))
	case XL_FORMULA, XL_FORMULA3, XL_FORMULA4:
		return s.handleFormula(code, data)
	case XL_BLANK:
		if !b.formattingInfo {
			return nil
		}
		if err := need(6); err != nil {
			return err
		}
		return s.putCell(u16(0), u16(2), XL_CELL_BLANK, "", u16(4))
	case XL_MULBLANK:
		if !b.formattingInfo {
			return nil
		}
		if err := need(6); err != nil {
			return err
		}
		rowx, first := u16(0), u16(2)
		last := u16(len(data) - 2)
		if last < first || 4+2*(last-first+1)+2 > len(data) {
			return ErrCorrupt.New(fmt.Sprintf("MULBLANK for columns %d..%d holds %d bytes", first, last, len(data)))
		}
		pos := 4
		for colx := first; colx <= last; colx++ {
			if err := s.putCell(rowx, colx, XL_CELL_BLANK, "", u16(pos)); err != nil {
				return err
			}
			pos += 2
		}
	case XL_DIMENSION:
		return s.handleDimension(data)
	case XL_ROW:
		return s.handleRow(data)
	case XL_COLINFO:
		return s.handleColInfo(data)
	case XL_DEFCOLWIDTH:
		if err := need(2); err != nil {
			return err
		}
		s.DefColWidth = u16(0)
	case XL_STANDARDWIDTH:
		if err := need(2); err != nil {
			return err
		}
		s.StandardWidth = u16(0)
	case XL_MERGEDCELLS:
		return s.handleMergedCells(data)
	case XL_WINDOW2:
		s.handleWindow2(data)
	case XL_STRING:
		s.log.Debug("STRING record without a preceding FORMULA ignored")
	}
	return nil
}

// unpackRK decodes the 4-byte compressed number of RK and MULRK records.
func unpackRK(rk []byte) float64 {
	flags := rk[0]
	var d float64
	if flags&2 != 0 {
		d = float64(int32(binary.LittleEndian.Uint32(rk)) >> 2)
	} else {
		bits := uint64(binary.LittleEndian.Uint32(rk)&^3) << 32
		d = math.Float64frombits(bits)
	}
	if flags&1 != 0 {
		d /= 100
	}
	return d
}

// putNumber stores a number, typed as a date when its format is a date.
func (s *Sheet) putNumber(rowx, colx int, v float64, xfx int) error {
	ctype := XL_CELL_NUMBER
	if s.Book.xfIndexToXLTypeMap[xfx] == XL_CELL_DATE {
		ctype = XL_CELL_DATE
	}
	return s.putCell(rowx, colx, ctype, v, xfx)
}

// UnknownErrorCode is stored in place of an error code that is not a key
// of ErrorTextFromCode.
const UnknownErrorCode = 0x2A // #N/A

func (s *Sheet) putBoolErr(rowx, colx, value int, isErr bool, xfx int) error {
	if !isErr {
		return s.putCell(rowx, colx, XL_CELL_BOOLEAN, value, xfx)
	}
	if _, ok := ErrorTextFromCode[byte(value)]; !ok {
		s.log.WithFields(logrus.Fields{
			"row":  rowx,
			"col":  colx,
			"code": value,
		}).Warn("unknown error code in cell; stored as #N/A")
		value = UnknownErrorCode
	}
	return s.putCell(rowx, colx, XL_CELL_ERROR, value, xfx)
}

func (s *Sheet) handleLabel(code int, data []byte) error {
	b := s.Book
	rowx := int(binary.LittleEndian.Uint16(data))
	colx := int(binary.LittleEndian.Uint16(data[2:]))
	xfx := int(binary.LittleEndian.Uint16(data[4:]))
	var text string
	var pos int
	var err error
	if b.BiffVersion >= 80 {
		text, pos, err = UnpackUnicodeUpdatePos(data, 6, 2, nil)
	} else {
		text, pos, err = UnpackStringUpdatePos(data, 6, b.Encoding, 2, nil)
	}
	if err != nil {
		return err
	}
	if code == XL_RSTRING && b.formattingInfo {
		if runs := s.rstringRuns(data, pos); len(runs) > 0 {
			s.RichTextRunlistMap[[2]int{rowx, colx}] = runs
		}
	}
	return s.putCell(rowx, colx, XL_CELL_TEXT, text, xfx)
}

// rstringRuns reads the formatting runs that follow the text of an
// RSTRING record. BIFF8 uses a 2-byte count and 4-byte runs; earlier
// versions a 1-byte count and 2-byte runs.
func (s *Sheet) rstringRuns(data []byte, pos int) []RichTextRun {
	var runs []RichTextRun
	if s.Book.BiffVersion >= 80 {
		if pos+2 > len(data) {
			return nil
		}
		n := int(binary.LittleEndian.Uint16(data[pos:]))
		pos += 2
		for i := 0; i < n && pos+4 <= len(data); i++ {
			runs = append(runs, RichTextRun{
				Offset:    int(binary.LittleEndian.Uint16(data[pos:])),
				FontIndex: int(binary.LittleEndian.Uint16(data[pos+2:])),
			})
			pos += 4
		}
		return runs
	}
	if pos >= len(data) {
		return nil
	}
	n := int(data[pos])
	pos++
	for i := 0; i < n && pos+2 <= len(data); i++ {
		runs = append(runs, RichTextRun{Offset: int(data[pos]), FontIndex: int(data[pos+1])})
		pos += 2
	}
	return runs
}

// handleFormula stores the cached result of a FORMULA record together with
// its raw token bytes.
func (s *Sheet) handleFormula(code int, data []byte) error {
	b := s.Book
	bv := b.BiffVersion
	var fmlaPos int
	switch {
	case bv >= 50:
		fmlaPos = 22
	case bv >= 30:
		fmlaPos = 18
	default:
		return s.handleBIFF2Cell(code, data)
	}
	if len(data) < fmlaPos {
		return ErrCorrupt.New(fmt.Sprintf("FORMULA record of %d bytes in sheet %q", len(data), s.Name))
	}
	rowx := int(binary.LittleEndian.Uint16(data))
	colx := int(binary.LittleEndian.Uint16(data[2:]))
	xfx := int(binary.LittleEndian.Uint16(data[4:]))
	fmlaLen := int(binary.LittleEndian.Uint16(data[fmlaPos-2:]))
	return s.putFormula(rowx, colx, xfx, data[6:14], formulaTokens(data, fmlaPos, fmlaLen))
}

func formulaTokens(data []byte, pos, n int) []byte {
	end := pos + n
	if end > len(data) {
		end = len(data)
	}
	if pos > end {
		pos = end
	}
	return append([]byte{}, data[pos:end]...)
}

// putFormula decodes an 8-byte cached formula result. A string result is
// held in the STRING record that follows, possibly after a shared or array
// formula record.
func (s *Sheet) putFormula(rowx, colx, xfx int, result, tokens []byte) error {
	key := [2]int{rowx, colx}
	if result[6] != 0xFF || result[7] != 0xFF {
		v := math.Float64frombits(binary.LittleEndian.Uint64(result))
		if err := s.putNumber(rowx, colx, v, xfx); err != nil {
			return err
		}
		s.formulas[key] = tokens
		return nil
	}
	var err error
	switch result[0] {
	case 0:
		var text string
		if text, err = s.formulaString(); err != nil {
			return err
		}
		err = s.putCell(rowx, colx, XL_CELL_TEXT, text, xfx)
	case 1:
		err = s.putCell(rowx, colx, XL_CELL_BOOLEAN, int(result[2]), xfx)
	case 2:
		err = s.putBoolErr(rowx, colx, int(result[2]), true, xfx)
	case 3:
		err = s.putCell(rowx, colx, XL_CELL_TEXT, "", xfx)
	default:
		return ErrCorrupt.New(fmt.Sprintf("unexpected special formula result kind %d at (%d, %d)", result[0], rowx, colx))
	}
	if err != nil {
		return err
	}
	s.formulas[key] = tokens
	return nil
}

func (s *Sheet) formulaString() (string, error) {
	b := s.Book
	c := b.cursor
	for {
		code, ok := c.peekCode()
		if !ok {
			return "", ErrCorrupt.New("stream ends after FORMULA with a string result")
		}
		switch code {
		case XL_SHRFMLA, XL_ARRAY, XL_ARRAY2, XL_TABLEOP, XL_TABLEOP2, XL_TABLEOP_B2:
			if _, _, _, err := c.next(); err != nil {
				return "", err
			}
			continue
		case XL_STRING, XL_STRING_B2:
		default:
			s.log.WithField("next", RecordName(code)).Warn("FORMULA with a string result is not followed by STRING")
			return "", nil
		}
		break
	}
	_, _, data, err := c.next()
	if err != nil {
		return "", err
	}
	conts, err := c.continuations()
	if err != nil {
		return "", err
	}
	if b.BiffVersion >= 80 {
		us, err := newSegmentReader(append([][]byte{data}, conts...)).unicodeString(2)
		if err != nil {
			return "", err
		}
		return us.text, nil
	}
	lenlen := 1
	if b.BiffVersion >= 30 {
		lenlen = 2
	}
	for _, cont := range conts {
		data = append(append([]byte(nil), data...), cont...)
	}
	return UnpackString(data, 0, b.Encoding, lenlen)
}

// handleBIFF2Cell handles the BIFF2 cell records, which carry three bytes
// of cell attributes instead of an XF index.
func (s *Sheet) handleBIFF2Cell(code int, data []byte) error {
	if len(data) < 7 {
		return ErrCorrupt.New(fmt.Sprintf("%s record of %d bytes in sheet %q", RecordName(code), len(data), s.Name))
	}
	b := s.Book
	rowx := int(binary.LittleEndian.Uint16(data))
	colx := int(binary.LittleEndian.Uint16(data[2:]))
	xfx := int(data[4] & 0x3F)
	if xfx == 0x3F {
		if s.ixfe < 0 {
			return ErrCorrupt.New("BIFF2 cell record has XF index 63 but no preceding IXFE record")
		}
		xfx = s.ixfe
	}
	switch code {
	case XL_INTEGER:
		if len(data) < 9 {
			return ErrCorrupt.New("INTEGER record too short")
		}
		return s.putNumber(rowx, colx, float64(binary.LittleEndian.Uint16(data[7:])), xfx)
	case XL_NUMBER_B2:
		if len(data) < 15 {
			return ErrCorrupt.New("NUMBER record too short")
		}
		return s.putNumber(rowx, colx, math.Float64frombits(binary.LittleEndian.Uint64(data[7:])), xfx)
	case XL_LABEL_B2:
		text, err := UnpackString(data, 7, b.Encoding, 1)
		if err != nil {
			return err
		}
		return s.putCell(rowx, colx, XL_CELL_TEXT, text, xfx)
	case XL_BOOLERR_B2:
		if len(data) < 9 {
			return ErrCorrupt.New("BOOLERR record too short")
		}
		return s.putBoolErr(rowx, colx, int(data[7]), data[8] != 0, xfx)
	case XL_BLANK_B2:
		if !b.formattingInfo {
			return nil
		}
		return s.putCell(rowx, colx, XL_CELL_BLANK, "", xfx)
	}
	// FORMULA: attributes, 8-byte result, option byte, token length byte.
	if len(data) < 17 {
		return ErrCorrupt.New("FORMULA record too short")
	}
	return s.putFormula(rowx, colx, xfx, data[7:15], formulaTokens(data, 17, int(data[16])))
}

func (s *Sheet) handleDimension(data []byte) error {
	switch {
	case len(data) == 0:
		return nil
	case s.Book.BiffVersion >= 80:
		if len(data) < 12 {
			return ErrCorrupt.New("DIMENSION record too short")
		}
		s.DimNRows = int(int32(binary.LittleEndian.Uint32(data[4:])))
		s.DimNCols = int(binary.LittleEndian.Uint16(data[10:]))
	default:
		if len(data) < 8 {
			return ErrCorrupt.New("DIMENSION record too short")
		}
		s.DimNRows = int(binary.LittleEndian.Uint16(data[2:]))
		s.DimNCols = int(binary.LittleEndian.Uint16(data[6:]))
	}
	return nil
}

func (s *Sheet) handleRow(data []byte) error {
	if len(data) < 16 {
		return ErrCorrupt.New("ROW record too short")
	}
	rowx := int(binary.LittleEndian.Uint16(data))
	bits1 := int(binary.LittleEndian.Uint16(data[6:]))
	bits2 := int(int32(binary.LittleEndian.Uint32(data[12:])))
	if rowx >= s.UtterMaxRows {
		s.log.WithField("row", rowx).Warn("ROW record beyond the last possible row ignored")
		return nil
	}
	r := &RowInfo{
		Height:                 bits1 & 0x7FFF,
		HasDefaultHeight:       (bits1 >> 15) & 1,
		OutlineLevel:           bits2 & 7,
		OutlineGroupStartsEnds: (bits2 >> 4) & 1,
		Hidden:                 (bits2 >> 5) & 1,
		HeightMismatch:         (bits2 >> 6) & 1,
		HasDefaultXFIndex:      (bits2 >> 7) & 1,
		XFIndex:                (bits2 >> 16) & 0xFFF,
		AdditionalSpaceAbove:   (bits2 >> 28) & 1,
		AdditionalSpaceBelow:   (bits2 >> 29) & 1,
	}
	if r.HasDefaultXFIndex == 0 {
		r.XFIndex = -1
	}
	s.RowInfoMap[rowx] = r
	return nil
}

func (s *Sheet) handleRowB2(data []byte) error {
	if len(data) < 11 {
		return ErrCorrupt.New("ROW record too short")
	}
	rowx := int(binary.LittleEndian.Uint16(data))
	bits1 := int(binary.LittleEndian.Uint16(data[6:]))
	r := &RowInfo{
		Height:           bits1 & 0x7FFF,
		HasDefaultHeight: (bits1 >> 15) & 1,
		XFIndex:          -1,
	}
	if data[10] != 0 && len(data) >= 14 {
		xfx := int(data[11] & 0x3F)
		if xfx == 0x3F && len(data) >= 18 {
			xfx = int(binary.LittleEndian.Uint16(data[16:]))
		}
		r.HasDefaultXFIndex = 1
		r.XFIndex = xfx
	}
	s.RowInfoMap[rowx] = r
	return nil
}

func (s *Sheet) handleColInfo(data []byte) error {
	if len(data) < 10 {
		return ErrCorrupt.New("COLINFO record too short")
	}
	first := int(binary.LittleEndian.Uint16(data))
	last := int(binary.LittleEndian.Uint16(data[2:]))
	flags := int(binary.LittleEndian.Uint16(data[8:]))
	if !(first <= last && last <= 256) {
		s.log.WithFields(logrus.Fields{
			"first": first,
			"last":  last,
		}).Info("COLINFO record with invalid column range ignored")
		return nil
	}
	ci := &ColInfo{
		Width:        int(binary.LittleEndian.Uint16(data[4:])),
		XFIndex:      int(binary.LittleEndian.Uint16(data[6:])),
		BitFlag:      flags,
		Hidden:       flags & 1,
		OutlineLevel: (flags >> 8) & 7,
		Collapsed:    (flags >> 12) & 1,
	}
	for colx := first; colx <= last && colx < 256; colx++ {
		s.ColInfoMap[colx] = ci
	}
	return nil
}

// handleColWidth handles the BIFF2 COLWIDTH record.
func (s *Sheet) handleColWidth(data []byte) error {
	if len(data) < 4 {
		return ErrCorrupt.New("COLWIDTH record too short")
	}
	first, last := int(data[0]), int(data[1])
	width := int(binary.LittleEndian.Uint16(data[2:]))
	if first > last {
		return nil
	}
	for colx := first; colx <= last; colx++ {
		ci, ok := s.ColInfoMap[colx]
		if !ok {
			ci = &ColInfo{XFIndex: -1}
			s.ColInfoMap[colx] = ci
		}
		ci.Width = width
	}
	return nil
}

func (s *Sheet) handleMergedCells(data []byte) error {
	if len(data) < 2 {
		return ErrCorrupt.New("MERGEDCELLS record too short")
	}
	n := int(binary.LittleEndian.Uint16(data))
	if 2+8*n > len(data) {
		s.log.WithFields(logrus.Fields{
			"declared": n,
			"size":     len(data),
		}).Warn("MERGEDCELLS record truncated")
		n = (len(data) - 2) / 8
	}
	pos := 2
	for i := 0; i < n; i++ {
		rlo := int(binary.LittleEndian.Uint16(data[pos:]))
		rhi := int(binary.LittleEndian.Uint16(data[pos+2:]))
		clo := int(binary.LittleEndian.Uint16(data[pos+4:]))
		chi := int(binary.LittleEndian.Uint16(data[pos+6:]))
		s.MergedCells = append(s.MergedCells, [4]int{rlo, rhi + 1, clo, chi + 1})
		pos += 8
	}
	return nil
}

func (s *Sheet) handleWindow2(data []byte) {
	b := s.Book
	if len(data) < 10 {
		return
	}
	options := int(binary.LittleEndian.Uint16(data))
	s.ShowFormulas = options & 1
	s.ShowGridLines = (options >> 1) & 1
	s.PanesAreFrozen = (options >> 3) & 1
	s.ShowZeroValues = (options >> 4) & 1
	s.AutomaticGridLineColour = (options >> 5) & 1
	s.SheetSelected = (options >> 9) & 1
	s.SheetVisible = (options >> 10) & 1
	if b.BiffVersion >= 80 {
		s.GridlineColourIndex = int(binary.LittleEndian.Uint16(data[6:]))
		s.GridlineColourRGB = b.ColourMap[s.GridlineColourIndex]
		return
	}
	rgb := RGB{int(data[6]), int(data[7]), int(data[8])}
	s.GridlineColourRGB = &rgb
	if b.formattingInfo {
		s.GridlineColourIndex = NearestColourIndex(b.ColourMap, rgb)
	}
}

// putCell stores one cell, growing the row and the sheet as needed.
func (s *Sheet) putCell(rowx, colx, ctype int, value interface{}, xfx int) error {
	if rowx >= s.UtterMaxRows || colx >= s.UtterMaxCols {
		return ErrCorrupt.New(fmt.Sprintf("cell (%d, %d) in sheet %q is beyond the limits (%d, %d) of %s",
			rowx, colx, s.Name, s.UtterMaxRows, s.UtterMaxCols, BiffTextFromNum(s.Book.BiffVersion)))
	}
	for len(s.cellTypes) <= rowx {
		s.cellTypes = append(s.cellTypes, nil)
		s.cellValues = append(s.cellValues, nil)
		s.cellXFIndexes = append(s.cellXFIndexes, nil)
	}
	for len(s.cellTypes[rowx]) <= colx {
		s.cellTypes[rowx] = append(s.cellTypes[rowx], XL_CELL_EMPTY)
		s.cellValues[rowx] = append(s.cellValues[rowx], "")
		s.cellXFIndexes[rowx] = append(s.cellXFIndexes[rowx], -1)
	}
	s.cellTypes[rowx][colx] = ctype
	s.cellValues[rowx][colx] = value
	s.cellXFIndexes[rowx][colx] = xfx
	delete(s.formulas, [2]int{rowx, colx})
	if rowx >= s.NRows {
		s.NRows = rowx + 1
	}
	if colx >= s.NCols {
		s.NCols = colx + 1
	}
	return nil
}

// tidyDimensions extends the sheet over merged ranges and, unless rows are
// ragged, pads every row to NCols.
func (s *Sheet) tidyDimensions() {
	for _, m := range s.MergedCells {
		if m[1] > s.NRows {
			s.NRows = m[1]
		}
		if m[3] > s.NCols {
			s.NCols = m[3]
		}
	}
	if s.NRows > s.UtterMaxRows {
		s.NRows = s.UtterMaxRows
	}
	if s.NCols > s.UtterMaxCols {
		s.NCols = s.UtterMaxCols
	}
	if s.DimNRows >= 0 && (s.DimNRows != s.NRows || s.DimNCols != s.NCols) {
		s.log.WithFields(logrus.Fields{
			"dimnrows": s.DimNRows,
			"dimncols": s.DimNCols,
			"nrows":    s.NRows,
			"ncols":    s.NCols,
		}).Debug("DIMENSION record differs from cell extent")
	}
	for len(s.cellTypes) < s.NRows {
		s.cellTypes = append(s.cellTypes, nil)
		s.cellValues = append(s.cellValues, nil)
		s.cellXFIndexes = append(s.cellXFIndexes, nil)
	}
	if s.Book.raggedRows {
		return
	}
	for rowx := range s.cellTypes {
		for len(s.cellTypes[rowx]) < s.NCols {
			s.cellTypes[rowx] = append(s.cellTypes[rowx], XL_CELL_EMPTY)
			s.cellValues[rowx] = append(s.cellValues[rowx], "")
			s.cellXFIndexes[rowx] = append(s.cellXFIndexes[rowx], -1)
		}
	}
}

// mergedAnchor returns the top-left cell of the merged range holding
// (rowx, colx), or (rowx, colx) itself.
func (s *Sheet) mergedAnchor(rowx, colx int) (int, int) {
	for _, m := range s.MergedCells {
		if rowx >= m[0] && rowx < m[1] && colx >= m[2] && colx < m[3] {
			return m[0], m[2]
		}
	}
	return rowx, colx
}

func (s *Sheet) inRange(rowx, colx int) bool {
	return rowx >= 0 && rowx < s.NRows && colx >= 0 && colx < s.NCols
}

// rawCell reads the stored cell. Positions inside the sheet that hold no
// data, such as the tail of a ragged row, read as empty.
func (s *Sheet) rawCell(rowx, colx int) *Cell {
	if rowx >= len(s.cellTypes) || colx >= len(s.cellTypes[rowx]) {
		return EmptyCell()
	}
	c := &Cell{
		CType:   s.cellTypes[rowx][colx],
		Value:   s.cellValues[rowx][colx],
		XFIndex: s.cellXFIndexes[rowx][colx],
	}
	if f, ok := s.formulas[[2]int{rowx, colx}]; ok {
		c.Formula = f
	}
	return c
}

// Cell returns the Cell object at the given row and column. A cell inside
// a merged range reads as the top-left cell of that range.
func (s *Sheet) Cell(rowx, colx int) (*Cell, error) {
	if !s.inRange(rowx, colx) {
		return nil, ErrCellIndex.New(rowx, colx, s.Name)
	}
	return s.rawCell(s.mergedAnchor(rowx, colx)), nil
}

// RawCell is Cell without merged ranges applied.
func (s *Sheet) RawCell(rowx, colx int) (*Cell, error) {
	if !s.inRange(rowx, colx) {
		return nil, ErrCellIndex.New(rowx, colx, s.Name)
	}
	return s.rawCell(rowx, colx), nil
}

// CellValue returns the value of the cell at the given row and column,
// "" when the position is outside the sheet.
func (s *Sheet) CellValue(rowx, colx int) interface{} {
	if !s.inRange(rowx, colx) {
		return ""
	}
	return s.rawCell(s.mergedAnchor(rowx, colx)).Value
}

// CellType returns the type of the cell at the given row and column,
// XL_CELL_EMPTY when the position is outside the sheet.
func (s *Sheet) CellType(rowx, colx int) int {
	if !s.inRange(rowx, colx) {
		return XL_CELL_EMPTY
	}
	return s.rawCell(s.mergedAnchor(rowx, colx)).CType
}

// CellXFIndex returns the XF index used to format the cell. A cell without
// its own XF takes the default of its row, then of its column, then XF 15.
func (s *Sheet) CellXFIndex(rowx, colx int) int {
	if !s.inRange(rowx, colx) {
		return s.defaultXFIndex()
	}
	rowx, colx = s.mergedAnchor(rowx, colx)
	return s.resolveXFIndex(rowx, colx)
}

func (s *Sheet) RawCellValue(rowx, colx int) interface{} {
	if !s.inRange(rowx, colx) {
		return ""
	}
	return s.rawCell(rowx, colx).Value
}

func (s *Sheet) RawCellType(rowx, colx int) int {
	if !s.inRange(rowx, colx) {
		return XL_CELL_EMPTY
	}
	return s.rawCell(rowx, colx).CType
}

func (s *Sheet) RawCellXFIndex(rowx, colx int) int {
	if !s.inRange(rowx, colx) {
		return s.defaultXFIndex()
	}
	return s.resolveXFIndex(rowx, colx)
}

func (s *Sheet) resolveXFIndex(rowx, colx int) int {
	if xfx := s.rawCell(rowx, colx).XFIndex; xfx > -1 {
		return xfx
	}
	if ri, ok := s.RowInfoMap[rowx]; ok && ri.XFIndex > -1 {
		return ri.XFIndex
	}
	if ci, ok := s.ColInfoMap[colx]; ok && ci.XFIndex > -1 {
		return ci.XFIndex
	}
	return s.defaultXFIndex()
}

func (s *Sheet) defaultXFIndex() int {
	if len(s.Book.XFList) > 15 {
		return 15
	}
	return 0
}

// Row returns the cells of the given row. In ragged mode the row may be
// shorter than NCols.
func (s *Sheet) Row(rowx int) ([]*Cell, error) {
	if rowx < 0 || rowx >= s.NRows {
		return nil, ErrCellIndex.New(rowx, 0, s.Name)
	}
	n := s.RowLen(rowx)
	cells := make([]*Cell, n)
	for colx := 0; colx < n; colx++ {
		cells[colx] = s.rawCell(s.mergedAnchor(rowx, colx))
	}
	return cells, nil
}

// RowLen returns the number of cells stored for the row: NCols unless rows
// are ragged.
func (s *Sheet) RowLen(rowx int) int {
	if rowx < 0 || rowx >= len(s.cellTypes) {
		return 0
	}
	return len(s.cellTypes[rowx])
}

// RowValues returns the values of the row, with merged ranges applied.
func (s *Sheet) RowValues(rowx int) []interface{} {
	n := s.RowLen(rowx)
	values := make([]interface{}, n)
	for colx := 0; colx < n; colx++ {
		values[colx] = s.CellValue(rowx, colx)
	}
	return values
}

// RowTypes returns the cell types of the row, with merged ranges applied.
func (s *Sheet) RowTypes(rowx int) []int {
	n := s.RowLen(rowx)
	types := make([]int, n)
	for colx := 0; colx < n; colx++ {
		types[colx] = s.CellType(rowx, colx)
	}
	return types
}

// Col returns the cells of the given column, one per row.
func (s *Sheet) Col(colx int) ([]*Cell, error) {
	if colx < 0 || colx >= s.NCols {
		return nil, ErrCellIndex.New(0, colx, s.Name)
	}
	cells := make([]*Cell, s.NRows)
	for rowx := range cells {
		cells[rowx] = s.rawCell(s.mergedAnchor(rowx, colx))
	}
	return cells, nil
}

// ColValues returns the values of the column, one per row.
func (s *Sheet) ColValues(colx int) []interface{} {
	if colx < 0 || colx >= s.NCols {
		return nil
	}
	values := make([]interface{}, s.NRows)
	for rowx := range values {
		values[rowx] = s.CellValue(rowx, colx)
	}
	return values
}
