package xlrd

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"sort"

	"github.com/sirupsen/logrus"
)

// RGB is a (red, green, blue) triple.
type RGB [3]int

// Font represents font information.
type Font struct {
	// FontIndex is the position of the FONT record. Index 4 is never
	// written by Excel; a dummy font is inserted there.
	FontIndex int

	// Name is the font name.
	Name string

	Bold       bool
	Italic     bool
	Underlined bool
	StruckOut  bool
	Outline    bool
	Shadow     bool

	// UnderlineType: 0 none, 1 single, 2 double, 0x21 single accounting,
	// 0x22 double accounting.
	UnderlineType int

	// Escapement: 0 none, 1 superscript, 2 subscript.
	Escapement int

	// ColourIndex is an index into Book.ColourMap.
	ColourIndex int

	// Height is the font height in twips (1/20 of a point).
	Height int

	// Weight: 400 normal, 700 bold.
	Weight int

	Family       int
	CharacterSet int
}

// Format represents number format information.
type Format struct {
	// FormatKey is the key into Book.FormatMap.
	FormatKey int

	// Type is one of FUN, FDT, FNU, FGE, FTX.
	Type int

	// FormatString is the format string. Empty for locale dependent
	// built-in formats.
	FormatString string
}

// XF represents extended format information.
type XF struct {
	XFIndex int

	// IsStyle is true for style XFs, false for cell XFs.
	IsStyle bool

	Lotus123Prefix bool

	// ParentStyleIndex is the index of the parent style XF of a cell XF.
	ParentStyleIndex int

	// Attribute usage flags. For a cell XF a set flag means the attribute
	// is defined here rather than inherited from the parent style.
	FormatFlag     bool
	FontFlag       bool
	AlignmentFlag  bool
	BorderFlag     bool
	BackgroundFlag bool
	ProtectionFlag bool

	FontIndex int
	FormatKey int

	Alignment  XFAlignment
	Border     XFBorder
	Background XFBackground
	Protection XFProtection
}

// XFAlignment represents alignment information.
type XFAlignment struct {
	HorAlign      int
	VertAlign     int
	Rotation      int
	TextWrapped   bool
	IndentLevel   int
	ShrinkToFit   bool
	TextDirection int
}

// XFBorder represents border information.
type XFBorder struct {
	TopColourIndex    int
	BottomColourIndex int
	LeftColourIndex   int
	RightColourIndex  int
	DiagColourIndex   int
	TopLineStyle      int
	BottomLineStyle   int
	LeftLineStyle     int
	RightLineStyle    int
	DiagLineStyle     int
	DiagDown          bool
	DiagUp            bool
}

// XFBackground represents background information.
type XFBackground struct {
	FillPattern           int
	BackgroundColourIndex int
	PatternColourIndex    int
}

// XFProtection represents protection information.
type XFProtection struct {
	CellLocked    bool
	FormulaHidden bool
}

var stdFormatStrings = map[int]string{
	0x00: "General",
	0x01: "0",
	0x02: "0.00",
	0x03: "#,##0",
	0x04: "#,##0.00",
	0x05: "$#,##0_);($#,##0)",
	0x06: "$#,##0_);[Red]($#,##0)",
	0x07: "$#,##0.00_);($#,##0.00)",
	0x08: "$#,##0.00_);[Red]($#,##0.00)",
	0x09: "0%",
	0x0a: "0.00%",
	0x0b: "0.00E+00",
	0x0c: "# ?/?",
	0x0d: "# ??/??",
	0x0e: "m/d/yy",
	0x0f: "d-mmm-yy",
	0x10: "d-mmm",
	0x11: "mmm-yy",
	0x12: "h:mm AM/PM",
	0x13: "h:mm:ss AM/PM",
	0x14: "h:mm",
	0x15: "h:mm:ss",
	0x16: "m/d/yy h:mm",
	0x25: "#,##0_);(#,##0)",
	0x26: "#,##0_);[Red](#,##0)",
	0x27: "#,##0.00_);(#,##0.00)",
	0x28: "#,##0.00_);[Red](#,##0.00)",
	0x29: "_(* #,##0_);_(* (#,##0);_(* \"-\"_);_(@_)",
	0x2a: "_($* #,##0_);_($* (#,##0);_($* \"-\"_);_(@_)",
	0x2b: "_(* #,##0.00_);_(* (#,##0.00);_(* \"-\"??_);_(@_)",
	0x2c: "_($* #,##0.00_);_($* (#,##0.00);_($* \"-\"??_);_(@_)",
	0x2d: "mm:ss",
	0x2e: "[h]:mm:ss",
	0x2f: "mm:ss.0",
	0x30: "##0.0E+0",
	0x31: "@",
}

// Built-in format code ranges; codes 27-36 and 50-58 are locale dependent
// (CJK) date formats.
var fmtCodeRanges = []struct{ lo, hi, ty int }{
	{0, 0, FGE},
	{1, 13, FNU},
	{14, 22, FDT},
	{27, 36, FDT},
	{37, 44, FNU},
	{45, 47, FDT},
	{48, 48, FNU},
	{49, 49, FTX},
	{50, 58, FDT},
	{59, 62, FNU},
	{67, 70, FNU},
	{71, 81, FDT},
}

var stdFormatCodeTypes = func() map[int]int {
	m := make(map[int]int)
	for _, r := range fmtCodeRanges {
		for x := r.lo; x <= r.hi; x++ {
			m[x] = r.ty
		}
	}
	return m
}()

var celltyFromFmtty = map[int]int{
	FNU: XL_CELL_NUMBER,
	FUN: XL_CELL_NUMBER,
	FGE: XL_CELL_NUMBER,
	FDT: XL_CELL_DATE,
	FTX: XL_CELL_NUMBER, // a number is still a number in a text format
}

var builtInStyleNames = []string{
	"Normal",
	"RowLevel_",
	"ColLevel_",
	"Comma",
	"Currency",
	"Percent",
	"Comma [0]",
	"Currency [0]",
	"Hyperlink",
	"Followed Hyperlink",
}

var excelDefaultPaletteB5 = []RGB{
	{0, 0, 0}, {255, 255, 255}, {255, 0, 0}, {0, 255, 0},
	{0, 0, 255}, {255, 255, 0}, {255, 0, 255}, {0, 255, 255},
	{128, 0, 0}, {0, 128, 0}, {0, 0, 128}, {128, 128, 0},
	{128, 0, 128}, {0, 128, 128}, {192, 192, 192}, {128, 128, 128},
	{153, 153, 255}, {153, 51, 102}, {255, 255, 204}, {204, 255, 255},
	{102, 0, 102}, {255, 128, 128}, {0, 102, 204}, {204, 204, 255},
	{0, 0, 128}, {255, 0, 255}, {255, 255, 0}, {0, 255, 255},
	{128, 0, 128}, {128, 0, 0}, {0, 128, 128}, {0, 0, 255},
	{0, 204, 255}, {204, 255, 255}, {204, 255, 204}, {255, 255, 153},
	{153, 204, 255}, {255, 153, 204}, {204, 153, 255}, {227, 227, 227},
	{51, 102, 255}, {51, 204, 204}, {153, 204, 0}, {255, 204, 0},
	{255, 153, 0}, {255, 102, 0}, {102, 102, 153}, {150, 150, 150},
	{0, 51, 102}, {51, 153, 102}, {0, 51, 0}, {51, 51, 0},
	{153, 51, 0}, {153, 51, 102}, {51, 51, 153}, {51, 51, 51},
}

var excelDefaultPaletteB2 = excelDefaultPaletteB5[:16]

var excelDefaultPaletteB8 = []RGB{
	{0, 0, 0}, {255, 255, 255}, {255, 0, 0}, {0, 255, 0},               // 0
	{0, 0, 255}, {255, 255, 0}, {255, 0, 255}, {0, 255, 255},           // 4
	{128, 0, 0}, {0, 128, 0}, {0, 0, 128}, {128, 128, 0},               // 8
	{128, 0, 128}, {0, 128, 128}, {192, 192, 192}, {128, 128, 128},     // 12
	{153, 153, 255}, {153, 51, 102}, {255, 255, 204}, {204, 255, 255},  // 16
	{102, 0, 102}, {255, 128, 128}, {0, 102, 204}, {204, 204, 255},     // 20
	{0, 0, 128}, {255, 0, 255}, {255, 255, 0}, {0, 255, 255},           // 24
	{128, 0, 128}, {128, 0, 0}, {0, 128, 128}, {0, 0, 255},             // 28
	{0, 204, 255}, {204, 255, 255}, {204, 255, 204}, {255, 255, 153},   // 32
	{153, 204, 255}, {255, 153, 204}, {204, 153, 255}, {255, 204, 153}, // 36
	{51, 102, 255}, {51, 204, 204}, {153, 204, 0}, {255, 204, 0},       // 40
	{255, 153, 0}, {255, 102, 0}, {102, 102, 153}, {150, 150, 150},     // 44
	{0, 51, 102}, {51, 153, 102}, {0, 51, 0}, {51, 51, 0},              // 48
	{153, 51, 0}, {153, 51, 102}, {51, 51, 153}, {51, 51, 51},          // 52
}

func defaultPalette(biffVersion int) []RGB {
	switch {
	case biffVersion >= 80:
		return excelDefaultPaletteB8
	case biffVersion >= 50:
		return excelDefaultPaletteB5
	}
	return excelDefaultPaletteB2
}

// initialiseColourMap fills ColourMap with the 8 invariant colours, the
// version's default palette and the system colours, whose RGB is unknown.
func (b *Book) initialiseColourMap() {
	b.ColourMap = make(map[int]*RGB)
	b.ColourIndexesUsed = make(map[int]bool)
	if !b.formattingInfo {
		return
	}
	for i := 0; i < 8; i++ {
		c := excelDefaultPaletteB8[i]
		b.ColourMap[i] = &c
	}
	dpal := defaultPalette(b.BiffVersion)
	for i := range dpal {
		c := dpal[i]
		b.ColourMap[i+8] = &c
	}
	// system window text colour for border lines, and background colour
	b.ColourMap[len(dpal)+8] = nil
	b.ColourMap[len(dpal)+9] = nil
	b.ColourMap[0x51] = nil   // system tooltip text colour
	b.ColourMap[0x7FFF] = nil // system window text colour for fonts
}

func (b *Book) handleFont(data []byte) error {
	bv := b.BiffVersion
	k := len(b.FontList)
	if k == 4 {
		b.FontList = append(b.FontList, &Font{Name: "Dummy Font", FontIndex: k})
		k++
	}
	f := &Font{FontIndex: k}
	var flags int
	var err error
	switch {
	case bv >= 50:
		if len(data) < 14 {
			return ErrCorrupt.New(fmt.Sprintf("FONT record too short: %d bytes", len(data)))
		}
		f.Height = int(binary.LittleEndian.Uint16(data[0:]))
		flags = int(binary.LittleEndian.Uint16(data[2:]))
		f.ColourIndex = int(binary.LittleEndian.Uint16(data[4:]))
		f.Weight = int(binary.LittleEndian.Uint16(data[6:]))
		f.Escapement = int(binary.LittleEndian.Uint16(data[8:]))
		f.UnderlineType = int(data[10])
		f.Family = int(data[11])
		f.CharacterSet = int(data[12])
		if bv >= 80 {
			f.Name, err = UnpackUnicode(data, 14, 1)
		} else {
			f.Name, err = UnpackString(data, 14, b.Encoding, 1)
		}
	case bv >= 30:
		if len(data) < 6 {
			return ErrCorrupt.New(fmt.Sprintf("FONT record too short: %d bytes", len(data)))
		}
		f.Height = int(binary.LittleEndian.Uint16(data[0:]))
		flags = int(binary.LittleEndian.Uint16(data[2:]))
		f.ColourIndex = int(binary.LittleEndian.Uint16(data[4:]))
		f.Name, err = UnpackString(data, 6, b.Encoding, 1)
	default:
		if len(data) < 4 {
			return ErrCorrupt.New(fmt.Sprintf("FONT record too short: %d bytes", len(data)))
		}
		f.Height = int(binary.LittleEndian.Uint16(data[0:]))
		flags = int(binary.LittleEndian.Uint16(data[2:]))
		f.ColourIndex = 0x7FFF
		f.Name, err = UnpackString(data, 4, b.Encoding, 1)
	}
	if err != nil {
		return err
	}
	f.Bold = flags&0x01 != 0
	f.Italic = flags&0x02 != 0
	f.Underlined = flags&0x04 != 0
	f.StruckOut = flags&0x08 != 0
	f.Outline = flags&0x10 != 0
	f.Shadow = flags&0x20 != 0
	if bv < 50 {
		f.Weight = 400
		if f.Bold {
			f.Weight = 700
		}
		if f.Underlined {
			f.UnderlineType = 1
		}
		f.CharacterSet = 1
	}
	b.FontList = append(b.FontList, f)
	return nil
}

// handleEFont sets the colour of the preceding BIFF2 font.
func (b *Book) handleEFont(data []byte) error {
	if !b.formattingInfo || len(b.FontList) == 0 || len(data) < 2 {
		return nil
	}
	b.FontList[len(b.FontList)-1].ColourIndex = int(binary.LittleEndian.Uint16(data))
	return nil
}

func (b *Book) handleFormat(data []byte, rectype int) error {
	bv := b.BiffVersion
	if rectype == XL_FORMAT2 && bv > 30 {
		bv = 30
	}
	strpos := 2
	var fmtkey int
	if bv >= 50 {
		if len(data) < 2 {
			return ErrCorrupt.New("FORMAT record too short")
		}
		fmtkey = int(binary.LittleEndian.Uint16(data))
	} else {
		fmtkey = b.actualFmtCount
		if bv <= 30 {
			strpos = 0
		}
	}
	b.actualFmtCount++

	var s string
	var err error
	if bv >= 80 {
		s, err = UnpackUnicode(data, 2, 2)
	} else {
		s, err = UnpackString(data, strpos, b.Encoding, 1)
	}
	if err != nil {
		return err
	}
	isDate := IsDateFormatString(b, s)
	ty := FGE
	if isDate {
		ty = FDT
	}
	// user defined formats start at 164; below BIFF5 the built-in table
	// does not apply
	if fmtkey <= 163 && bv >= 50 && fmtkey > 0 && fmtkey < 50 {
		stdTy, ok := stdFormatCodeTypes[fmtkey]
		if !ok {
			stdTy = FUN
		}
		if (stdTy == FDT) != isDate {
			b.log.WithFields(logrus.Fields{
				"key":    fmtkey,
				"format": s,
			}).Debug("built-in format type disagrees with format string")
		}
	}
	f := &Format{FormatKey: fmtkey, Type: ty, FormatString: s}
	b.FormatMap[fmtkey] = f
	b.FormatList = append(b.FormatList, f)
	return nil
}

// fillInStandardFormats adds the built-in formats not overridden by FORMAT
// records.
func (b *Book) fillInStandardFormats() {
	for x, ty := range stdFormatCodeTypes {
		if _, ok := b.FormatMap[x]; !ok {
			b.FormatMap[x] = &Format{FormatKey: x, Type: ty, FormatString: stdFormatStrings[x]}
		}
	}
}

func (b *Book) handlePalette(data []byte) error {
	if !b.formattingInfo {
		return nil
	}
	if len(data) < 2 {
		return ErrCorrupt.New("PALETTE record too short")
	}
	n := int(binary.LittleEndian.Uint16(data))
	expectedN := 16
	if b.BiffVersion >= 50 {
		expectedN = 56
	}
	if n != expectedN {
		b.log.WithFields(logrus.Fields{"colours": n, "expected": expectedN}).
			Info("PALETTE record has unexpected number of colours")
	}
	expectedSize := 4*n + 2
	if len(data) < expectedSize || len(data) > expectedSize+4 {
		return ErrCorrupt.New(fmt.Sprintf("PALETTE record: expected size %d, actual size %d", expectedSize, len(data)))
	}
	b.PaletteRecord = b.PaletteRecord[:0]
	for i := 0; i < n; i++ {
		// 0x00bbggrr
		c := data[2+4*i : 6+4*i]
		rgb := RGB{int(c[0]), int(c[1]), int(c[2])}
		b.PaletteRecord = append(b.PaletteRecord, rgb)
		b.ColourMap[8+i] = &rgb
	}
	return nil
}

// paletteEpilogue checks font colour indexes. FONT records precede the
// PALETTE record, so this can only be done afterwards.
func (b *Book) paletteEpilogue() {
	for _, font := range b.FontList {
		if font.FontIndex == 4 {
			continue
		}
		cx := font.ColourIndex
		if cx == 0x7FFF {
			continue
		}
		if _, ok := b.ColourMap[cx]; ok {
			b.ColourIndexesUsed[cx] = true
		} else if b.formattingInfo {
			b.log.WithFields(logrus.Fields{
				"font":   font.FontIndex,
				"name":   font.Name,
				"colour": cx,
			}).Warn("font colour index is unknown")
		}
	}
}

func (b *Book) handleStyle(data []byte) error {
	if !b.formattingInfo {
		return nil
	}
	if len(data) < 4 {
		return ErrCorrupt.New("STYLE record too short")
	}
	flagAndXfx := int(binary.LittleEndian.Uint16(data))
	builtInID := int(data[2])
	level := int(data[3])
	xfIndex := flagAndXfx & 0x0FFF
	_, haveNormal := b.StyleNameMap["Normal"]

	var name string
	var builtIn int
	switch {
	case len(data) == 4 && flagAndXfx == 0 && builtInID == 0 && level == 0 && !haveNormal:
		// erroneous record without the built-in bit
		builtIn, xfIndex, name = 1, 0, "Normal"
	case flagAndXfx&0x8000 != 0:
		builtIn = 1
		if builtInID < len(builtInStyleNames) {
			name = builtInStyleNames[builtInID]
		} else {
			name = fmt.Sprintf("BuiltIn_%d", builtInID)
		}
		if builtInID == 1 || builtInID == 2 {
			name += fmt.Sprint(level + 1)
		}
	default:
		var err error
		if b.BiffVersion >= 80 {
			name, err = UnpackUnicode(data, 2, 2)
		} else {
			name, err = UnpackString(data, 2, b.Encoding, 1)
		}
		if err != nil {
			return err
		}
	}
	b.StyleNameMap[name] = [2]int{builtIn, xfIndex}
	return nil
}

func bits(v, mask uint32, shift uint) int { return int((v & mask) >> shift) }

var rotationFromOrientation = [4]int{0, 255, 90, 180}

func (b *Book) handleXF(data []byte) error {
	bv := b.BiffVersion
	xf := &XF{}
	if bv >= 50 && len(b.XFList) == 0 {
		b.fillInStandardFormats()
	}
	var need int
	switch {
	case bv >= 80:
		need = 20
	case bv >= 50:
		need = 16
	case bv >= 30:
		need = 12
	default:
		need = 4
	}
	if len(data) < need {
		return ErrCorrupt.New(fmt.Sprintf("XF record too short: %d bytes", len(data)))
	}
	u16 := func(off int) uint32 { return uint32(binary.LittleEndian.Uint16(data[off:])) }
	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(data[off:]) }
	usedFlags := func(reg int) {
		xf.FormatFlag = reg&0x01 != 0
		xf.FontFlag = reg&0x02 != 0
		xf.AlignmentFlag = reg&0x04 != 0
		xf.BorderFlag = reg&0x08 != 0
		xf.BackgroundFlag = reg&0x10 != 0
		xf.ProtectionFlag = reg&0x20 != 0
	}
	typeAndParent := func(v uint32) {
		xf.Protection.CellLocked = v&0x01 != 0
		xf.Protection.FormulaHidden = v&0x02 != 0
		xf.IsStyle = v&0x04 != 0
		xf.Lotus123Prefix = v&0x08 != 0
		xf.ParentStyleIndex = bits(v, 0xFFF0, 4)
	}
	border34 := func(v uint32) {
		xf.Border.TopLineStyle = bits(v, 0x00000007, 0)
		xf.Border.TopColourIndex = bits(v, 0x000000F8, 3)
		xf.Border.LeftLineStyle = bits(v, 0x00000700, 8)
		xf.Border.LeftColourIndex = bits(v, 0x0000F800, 11)
		xf.Border.BottomLineStyle = bits(v, 0x00070000, 16)
		xf.Border.BottomColourIndex = bits(v, 0x00F80000, 19)
		xf.Border.RightLineStyle = bits(v, 0x07000000, 24)
		xf.Border.RightColourIndex = bits(v, 0xF8000000, 27)
	}
	background34 := func(v uint32) {
		xf.Background.FillPattern = bits(v, 0x003F, 0)
		xf.Background.PatternColourIndex = bits(v, 0x07C0, 6)
		xf.Background.BackgroundColourIndex = bits(v, 0xF800, 11)
	}

	switch {
	case bv >= 80:
		xf.FontIndex = int(u16(0))
		xf.FormatKey = int(u16(2))
		typeAndParent(u16(4))
		align1 := uint32(data[6])
		xf.Alignment.HorAlign = bits(align1, 0x07, 0)
		xf.Alignment.TextWrapped = align1&0x08 != 0
		xf.Alignment.VertAlign = bits(align1, 0x70, 4)
		xf.Alignment.Rotation = int(data[7])
		align2 := uint32(data[8])
		xf.Alignment.IndentLevel = bits(align2, 0x0F, 0)
		xf.Alignment.ShrinkToFit = align2&0x10 != 0
		xf.Alignment.TextDirection = bits(align2, 0xC0, 6)
		usedFlags(int(data[9]) >> 2)
		brd1 := u32(10)
		xf.Border.LeftLineStyle = bits(brd1, 0x0000000F, 0)
		xf.Border.RightLineStyle = bits(brd1, 0x000000F0, 4)
		xf.Border.TopLineStyle = bits(brd1, 0x00000F00, 8)
		xf.Border.BottomLineStyle = bits(brd1, 0x0000F000, 12)
		xf.Border.LeftColourIndex = bits(brd1, 0x007F0000, 16)
		xf.Border.RightColourIndex = bits(brd1, 0x3F800000, 23)
		xf.Border.DiagDown = brd1&0x40000000 != 0
		xf.Border.DiagUp = brd1&0x80000000 != 0
		brd2 := u32(14)
		xf.Border.TopColourIndex = bits(brd2, 0x0000007F, 0)
		xf.Border.BottomColourIndex = bits(brd2, 0x00003F80, 7)
		xf.Border.DiagColourIndex = bits(brd2, 0x001FC000, 14)
		xf.Border.DiagLineStyle = bits(brd2, 0x01E00000, 21)
		xf.Background.FillPattern = bits(brd2, 0xFC000000, 26)
		brd3 := u16(18)
		xf.Background.PatternColourIndex = bits(brd3, 0x007F, 0)
		xf.Background.BackgroundColourIndex = bits(brd3, 0x3F80, 7)
	case bv >= 50:
		xf.FontIndex = int(u16(0))
		xf.FormatKey = int(u16(2))
		typeAndParent(u16(4))
		align1 := uint32(data[6])
		xf.Alignment.HorAlign = bits(align1, 0x07, 0)
		xf.Alignment.TextWrapped = align1&0x08 != 0
		xf.Alignment.VertAlign = bits(align1, 0x70, 4)
		orient := int(data[7])
		xf.Alignment.Rotation = rotationFromOrientation[orient&0x03]
		usedFlags(orient >> 2)
		brd1 := u32(8)
		xf.Background.PatternColourIndex = bits(brd1, 0x0000007F, 0)
		xf.Background.BackgroundColourIndex = bits(brd1, 0x00003F80, 7)
		xf.Background.FillPattern = bits(brd1, 0x003F0000, 16)
		xf.Border.BottomLineStyle = bits(brd1, 0x01C00000, 22)
		xf.Border.BottomColourIndex = bits(brd1, 0xFE000000, 25)
		brd2 := u32(12)
		xf.Border.TopLineStyle = bits(brd2, 0x00000007, 0)
		xf.Border.LeftLineStyle = bits(brd2, 0x00000038, 3)
		xf.Border.RightLineStyle = bits(brd2, 0x000001C0, 6)
		xf.Border.TopColourIndex = bits(brd2, 0x0000FE00, 9)
		xf.Border.LeftColourIndex = bits(brd2, 0x007F0000, 16)
		xf.Border.RightColourIndex = bits(brd2, 0x3F800000, 23)
	case bv >= 40:
		xf.FontIndex = int(data[0])
		xf.FormatKey = int(data[1])
		typeAndParent(u16(2))
		align := uint32(data[4])
		xf.Alignment.HorAlign = bits(align, 0x07, 0)
		xf.Alignment.TextWrapped = align&0x08 != 0
		xf.Alignment.VertAlign = bits(align, 0x30, 4)
		xf.Alignment.Rotation = rotationFromOrientation[bits(align, 0xC0, 6)]
		usedFlags(int(data[5]) >> 2)
		background34(u16(6))
		border34(u32(8))
	case bv == 30:
		xf.FontIndex = int(data[0])
		xf.FormatKey = int(data[1])
		prot := int(data[2])
		xf.Protection.CellLocked = prot&0x01 != 0
		xf.Protection.FormulaHidden = prot&0x02 != 0
		xf.IsStyle = prot&0x04 != 0
		xf.Lotus123Prefix = prot&0x08 != 0
		usedFlags(int(data[3]) >> 2)
		alignPar := u16(4)
		xf.Alignment.HorAlign = bits(alignPar, 0x07, 0)
		xf.Alignment.TextWrapped = alignPar&0x08 != 0
		xf.ParentStyleIndex = bits(alignPar, 0xFFF0, 4)
		background34(u16(6))
		border34(u32(8))
		xf.Alignment.VertAlign = 2 // bottom
	default:
		// BIFF2: font, unused, format and protection, alignment and borders
		xf.FontIndex = int(data[0])
		formatEtc := int(data[2])
		halignEtc := int(data[3])
		xf.FormatKey = formatEtc & 0x3F
		xf.Protection.CellLocked = formatEtc&0x40 != 0
		xf.Protection.FormulaHidden = formatEtc&0x80 != 0
		xf.Alignment.HorAlign = halignEtc & 0x07
		side := func(mask int) (colour, style int) {
			if halignEtc&mask != 0 {
				return 8, 1 // black, thin
			}
			return 0, 0
		}
		xf.Border.LeftColourIndex, xf.Border.LeftLineStyle = side(0x08)
		xf.Border.RightColourIndex, xf.Border.RightLineStyle = side(0x10)
		xf.Border.TopColourIndex, xf.Border.TopLineStyle = side(0x20)
		xf.Border.BottomColourIndex, xf.Border.BottomLineStyle = side(0x40)
		if halignEtc&0x80 != 0 {
			xf.Background.FillPattern = 17
		}
		xf.Background.BackgroundColourIndex = 9 // white
		xf.Background.PatternColourIndex = 8    // black
		xf.Alignment.VertAlign = 2
		usedFlags(0x3F)
	}

	xf.XFIndex = len(b.XFList)
	b.XFList = append(b.XFList, xf)
	cellty := XL_CELL_NUMBER
	if f, ok := b.FormatMap[xf.FormatKey]; ok {
		cellty = celltyFromFmtty[f.Type]
	}
	b.xfIndexToXLTypeMap[xf.XFIndex] = cellty

	if _, ok := b.FormatMap[xf.FormatKey]; !ok {
		b.log.WithFields(logrus.Fields{
			"xf":  xf.XFIndex,
			"key": xf.FormatKey,
		}).Info("XF has unknown format key; using 0")
		xf.FormatKey = 0
	}
	return nil
}

// xfEpilogue derives the cell type of every XF from its format and checks
// the parent style links of cell XFs.
func (b *Book) xfEpilogue() {
	b.xfEpilogueDone = true
	numXFs := len(b.XFList)
	for _, xf := range b.XFList {
		cellty := XL_CELL_NUMBER
		if f, ok := b.FormatMap[xf.FormatKey]; ok {
			cellty = celltyFromFmtty[f.Type]
		}
		b.xfIndexToXLTypeMap[xf.XFIndex] = cellty

		if !b.formattingInfo || xf.IsStyle {
			continue
		}
		if xf.ParentStyleIndex < 0 || xf.ParentStyleIndex >= numXFs {
			b.log.WithFields(logrus.Fields{
				"xf":     xf.XFIndex,
				"parent": xf.ParentStyleIndex,
			}).Info("cell XF parent style index out of range; using 0")
			xf.ParentStyleIndex = 0
		}
		if b.BiffVersion >= 30 {
			parent := b.XFList[xf.ParentStyleIndex]
			switch {
			case xf.ParentStyleIndex == xf.XFIndex:
				b.log.WithField("xf", xf.XFIndex).Debug("cell XF is its own parent")
			case !parent.IsStyle:
				b.log.WithFields(logrus.Fields{
					"xf":     xf.XFIndex,
					"parent": xf.ParentStyleIndex,
				}).Debug("cell XF parent is not a style XF")
			}
		}
	}
}

// IsDateFormatString reports whether a number format string formats dates.
//
// Quoted text, escaped characters and [bracketed] sections are ignored.
// Date formats contain ymdhs (caseless); numeric formats contain 0, # or ?.
func IsDateFormatString(book *Book, formatStr string) bool {
	state := 0
	s := make([]rune, 0, len(formatStr))
	for _, c := range formatStr {
		switch state {
		case 0:
			switch {
			case c == '"':
				state = 1
			case c == '\\' || c == '_' || c == '*':
				state = 2
			case skipCharDict[c]:
			default:
				s = append(s, c)
			}
		case 1:
			if c == '"' {
				state = 0
			}
		case 2:
			state = 0
		}
	}
	reduced := bracketedRe.ReplaceAllString(string(s), "")
	if nonDateFormats[reduced] {
		return false
	}

	dateCount, numCount := 0, 0
	gotSep := false
	for _, c := range reduced {
		if n, ok := dateCharDict[c]; ok {
			dateCount += n
		} else if n, ok := numCharDict[c]; ok {
			numCount += n
		} else if c == ';' {
			gotSep = true
		}
	}
	if dateCount > 0 && numCount == 0 {
		return true
	}
	if numCount > 0 && dateCount == 0 {
		return false
	}
	if book != nil && book.log != nil {
		if dateCount > 0 {
			book.log.WithField("format", formatStr).Debug("ambiguous number format: date and number symbols")
		} else if !gotSep {
			book.log.WithField("format", formatStr).Debug("number format has no date or number symbols")
		}
	}
	return dateCount > numCount
}

var bracketedRe = regexp.MustCompile(`\[[^]]*\]`)

var dateCharDict = map[rune]int{
	'y': 5, 'Y': 5, 'm': 5, 'M': 5, 'd': 5, 'D': 5, 'h': 5, 'H': 5, 's': 5, 'S': 5,
}

var skipCharDict = map[rune]bool{
	'$': true, '-': true, '+': true, '/': true, '(': true, ')': true, ':': true, ' ': true,
}

var numCharDict = map[rune]int{
	'0': 5, '#': 5, '?': 5,
}

var nonDateFormats = map[string]bool{
	"0.00E+00": true,
	"##0.0E+0": true,
	"General":  true,
	"GENERAL":  true,
	"general":  true,
	"@":        true,
}

// NearestColourIndex finds the colour index whose RGB value is nearest to
// rgb by Euclidean distance. Entries with unknown RGB are skipped; ties go
// to the lowest index.
func NearestColourIndex(colourMap map[int]*RGB, rgb RGB) int {
	keys := make([]int, 0, len(colourMap))
	for k := range colourMap {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	bestMetric := 3 * 256 * 256
	bestColourx := 0
	for _, colourx := range keys {
		cand := colourMap[colourx]
		if cand == nil {
			continue
		}
		metric := 0
		for i := 0; i < 3; i++ {
			d := rgb[i] - cand[i]
			metric += d * d
		}
		if metric < bestMetric {
			bestMetric = metric
			bestColourx = colourx
			if metric == 0 {
				break
			}
		}
	}
	return bestColourx
}
