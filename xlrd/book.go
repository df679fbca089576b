package xlrd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
)

// minInputSize is the size of the smallest record stream that can hold a
// BOF record.
const minInputSize = 8

// Book represents the contents of a "workbook".
//
// You should not instantiate this type yourself. You use the Book
// object that was returned when you called OpenWorkbook.
type Book struct {
	// NSheets is the number of worksheets present in the workbook file.
	// This information is available even when no sheets have yet been loaded.
	NSheets int

	// Datemode indicates which date system was in force when this file was last saved.
	// 0: 1900 system (the Excel for Windows default).
	// 1: 1904 system (the Excel for Macintosh default).
	// Defaults to 0 in case it's not specified in the file.
	Datemode int

	// BiffVersion is the version of BIFF (Binary Interchange File Format) used to create the file.
	// Latest is 8.0 (represented here as 80), introduced with Excel 97.
	// Earliest supported by this module: 2.0 (represented as 20).
	BiffVersion int

	// NameObjList contains a Name object for each NAME record in the workbook.
	NameObjList []*Name

	// Codepage is an integer denoting the character set used for strings in this file.
	// For BIFF 8 and later, this will be 1200, meaning Unicode;
	// more precisely, UTF_16_LE.
	// For earlier versions, this is used to derive the appropriate encoding.
	Codepage *int

	// Encoding is the encoding that was derived from the codepage.
	Encoding string

	// Countries is a tuple containing the telephone country code for:
	// [0]: the user-interface setting when the file was created.
	// [1]: the regional settings.
	Countries [2]int

	// UserName is what (if anything) is recorded as the name of the last user to save the file.
	UserName string

	// FontList is a list of Font class instances, each corresponding to a FONT record.
	FontList []*Font

	// XFList is a list of XF class instances, each corresponding to an XF record.
	XFList []*XF

	// FormatList is a list of Format objects, each corresponding to a FORMAT record.
	FormatList []*Format

	// FormatMap is the mapping from XF.FormatKey to Format object.
	FormatMap map[int]*Format

	// StyleNameMap provides access via name to the extended format information.
	StyleNameMap map[string][2]int // maps name to (built_in, xf_index)

	// ColourMap provides definitions for colour indexes. A nil entry is a
	// system colour whose RGB value is unknown.
	ColourMap map[int]*RGB

	// PaletteRecord contains RGB values if the user has changed any colours.
	PaletteRecord []RGB

	// ColourIndexesUsed holds the colour indexes referenced by fonts that
	// resolve through ColourMap.
	ColourIndexesUsed map[int]bool

	// SheetKinds holds the type byte of every BOUNDSHEET record in file
	// order: worksheets (0) as well as macro sheets, charts and VBA modules.
	SheetKinds []int

	// RichTextRunlistMap maps a shared string index to its formatting runs.
	// Only populated when FormattingInfo is set.
	RichTextRunlistMap map[int][]RichTextRun

	// PhoneticMap holds the raw phonetic block of each shared string that
	// carries one.
	PhoneticMap map[int][]byte

	// LoadTimeStage1 is the time in seconds to extract the XLS image as a contiguous string.
	LoadTimeStage1 float64

	// LoadTimeStage2 is the time in seconds to parse the data from the contiguous string.
	LoadTimeStage2 float64

	log              logrus.FieldLogger
	verbosity        int
	formattingInfo   bool
	raggedRows       bool
	onDemand         bool
	encodingOverride string
	cacheSize        int

	filestr   []byte
	unmap     func() error
	mem       []byte
	base      int
	streamLen int
	cursor    *recordCursor
	released  bool

	sheetList       []*Sheet
	sheetNames      []string
	sheetAbsPosn    []int
	sheetVisibility []int
	allSheetsMap    []int
	sheetCache      *lru.Cache
	sheetsOffset    int
	sheethdrCount   int

	sharedStrings  []string
	rawUserName    []byte
	encodingWarned string

	xfIndexToXLTypeMap map[int]int
	xfEpilogueDone     bool
	actualFmtCount     int

	supbooks           []*supbook
	supbookLocalsInx   int
	supbookAddinsInx   int
	externsheetInfo    [][3]int
	externsheetTypeB57 []int
	extnshtNameFromNum map[int]string
	extnshtCount       int
	addinFuncNames     []string

	nameMap         map[string][]*Name
	nameAndScopeMap map[NameScope]*Name
}

// OpenWorkbookOptions contains options for opening a workbook.
type OpenWorkbookOptions struct {
	// Logfile receives messages and diagnostics when Logger is nil.
	// Defaults to os.Stderr.
	Logfile io.Writer

	// Logger receives diagnostics. When nil a logger writing to Logfile is
	// built with a level derived from Verbosity.
	Logger logrus.FieldLogger

	// Verbosity increases the volume of trace material written to the logfile:
	// 0 warnings only, 1 adds notes, 2 and above adds debug output.
	Verbosity int

	// UseMmap maps the file into memory instead of reading it. The mapping
	// is released by ReleaseResources.
	UseMmap bool

	// FileContents is the file contents as bytes.
	// If FileContents is supplied, the filename will not be used, except (possibly) in messages.
	FileContents []byte

	// EncodingOverride is used to overcome missing or bad codepage information in older-version files.
	EncodingOverride string

	// FormattingInfo: The default is false, which saves memory.
	// When true, formatting information will be read from the spreadsheet file.
	FormattingInfo bool

	// OnDemand governs whether sheets are all loaded initially or when demanded by the caller.
	OnDemand bool

	// RaggedRows: The default of false means all rows are padded out with empty cells.
	// True means that there are no empty cells at the ends of rows.
	RaggedRows bool

	// IgnoreWorkbookCorruption allows a workbook whose streams share
	// sectors to be read.
	IgnoreWorkbookCorruption bool

	// LenientMSAT drops allocation table entries that point outside the
	// file, with a warning, instead of failing.
	LenientMSAT bool

	// SheetCacheSize bounds the number of sheets kept loaded in OnDemand
	// mode. The least recently used sheet is unloaded when the bound is
	// exceeded. Zero means unbounded.
	SheetCacheSize int
}

func newLogger(opts *OpenWorkbookOptions) logrus.FieldLogger {
	if opts.Logger != nil {
		return opts.Logger
	}
	l := logrus.New()
	l.Out = os.Stderr
	if opts.Logfile != nil {
		l.Out = opts.Logfile
	}
	switch {
	case opts.Verbosity >= 2:
		l.SetLevel(logrus.DebugLevel)
	case opts.Verbosity == 1:
		l.SetLevel(logrus.InfoLevel)
	default:
		l.SetLevel(logrus.WarnLevel)
	}
	return l
}

func newBook(opts *OpenWorkbookOptions) *Book {
	b := &Book{
		log:                newLogger(opts),
		verbosity:          opts.Verbosity,
		formattingInfo:     opts.FormattingInfo,
		raggedRows:         opts.RaggedRows,
		onDemand:           opts.OnDemand,
		encodingOverride:   opts.EncodingOverride,
		cacheSize:          opts.SheetCacheSize,
		supbookLocalsInx:   -1,
		supbookAddinsInx:   -1,
		extnshtNameFromNum: make(map[int]string),
		RichTextRunlistMap: make(map[int][]RichTextRun),
		PhoneticMap:        make(map[int][]byte),
		nameMap:            make(map[string][]*Name),
		nameAndScopeMap:    make(map[NameScope]*Name),
	}
	b.initialiseFormatInfo()
	return b
}

// initialiseFormatInfo resets the formatting tables. BIFF4W workbooks
// carry separate tables for every embedded worksheet.
func (b *Book) initialiseFormatInfo() {
	b.FontList = nil
	b.XFList = nil
	b.FormatList = nil
	b.FormatMap = make(map[int]*Format)
	b.StyleNameMap = make(map[string][2]int)
	b.PaletteRecord = nil
	b.xfIndexToXLTypeMap = make(map[int]int)
	b.xfEpilogueDone = false
	b.actualFmtCount = 0
	b.initialiseColourMap()
}

// OpenWorkbook opens a spreadsheet file for data extraction.
//
// filename: The path to the spreadsheet file to be opened.
// options: Optional parameters for opening the workbook.
//
// Files in other formats (xlsx, xlsb, ods) are detected and rejected with
// ErrFormat.
func OpenWorkbook(filename string, options *OpenWorkbookOptions) (*Book, error) {
	var opts OpenWorkbookOptions
	if options != nil {
		opts = *options
	}
	format, err := InspectFormat(filename, opts.FileContents)
	if err != nil {
		return nil, err
	}
	if format != "" && format != "xls" {
		return nil, ErrFormat.New(FileFormatDescriptions[format] + "; not supported")
	}
	return OpenWorkbookXLS(filename, &opts)
}

// OpenWorkbookFromReader reads r to the end and opens the result.
func OpenWorkbookFromReader(r io.Reader, options *OpenWorkbookOptions) (*Book, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var opts OpenWorkbookOptions
	if options != nil {
		opts = *options
	}
	if data == nil {
		data = []byte{}
	}
	opts.FileContents = data
	return OpenWorkbook("", &opts)
}

// OpenWorkbookXLS opens a legacy binary workbook without format sniffing.
// Any failure releases the input before returning.
func OpenWorkbookXLS(filename string, options *OpenWorkbookOptions) (*Book, error) {
	var opts OpenWorkbookOptions
	if options != nil {
		opts = *options
	}
	b := newBook(&opts)

	t0 := time.Now()
	if err := b.loadInput(filename, &opts); err != nil {
		b.ReleaseResources()
		return nil, err
	}
	t1 := time.Now()
	b.LoadTimeStage1 = t1.Sub(t0).Seconds()

	if err := b.parseGlobals(); err != nil {
		b.ReleaseResources()
		return nil, err
	}
	b.LoadTimeStage2 = time.Since(t1).Seconds()

	if !b.onDemand {
		// every sheet is loaded; the input is no longer needed
		if err := b.ReleaseResources(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// loadInput reads or maps the file and locates the workbook stream.
func (b *Book) loadInput(filename string, opts *OpenWorkbookOptions) error {
	switch {
	case opts.FileContents != nil:
		b.filestr = opts.FileContents
	case opts.UseMmap:
		filename, err := expandUser(filename)
		if err != nil {
			return err
		}
		mem, unmap, err := mapFile(filename)
		if err != nil {
			return err
		}
		b.filestr, b.unmap = mem, unmap
	default:
		filename, err := expandUser(filename)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(filename)
		if err != nil {
			return err
		}
		b.filestr = data
	}
	if len(b.filestr) < minInputSize {
		return ErrEmptyInput.New(len(b.filestr))
	}

	if !bytes.HasPrefix(b.filestr, XLS_SIGNATURE) {
		// a bare BIFF stream
		b.mem, b.base, b.streamLen = b.filestr, 0, len(b.filestr)
		return nil
	}
	cd, err := NewCompDoc(b.filestr, &CompDocOptions{
		Logger:                   b.log,
		IgnoreWorkbookCorruption: opts.IgnoreWorkbookCorruption,
		LenientMSAT:              opts.LenientMSAT,
	})
	if err != nil {
		return err
	}
	for _, qname := range []string{"Workbook", "Book"} {
		mem, base, size, err := cd.LocateNamedStream(qname)
		if err != nil {
			return err
		}
		if mem != nil {
			b.mem, b.base, b.streamLen = mem, base, size
			return nil
		}
	}
	return ErrUnsupportedSchema.New("can't find workbook in OLE2 compound document")
}

func isBOFCode(code int) bool {
	for _, c := range bofCodes {
		if c == code {
			return true
		}
	}
	return false
}

// getBOF reads the BOF record at the cursor and returns the BIFF version.
func (b *Book) getBOF(rqdStream int) (int, error) {
	savpos := b.cursor.pos()
	opcode, ok := b.cursor.peekCode()
	if !ok {
		return 0, ErrCorrupt.New(fmt.Sprintf("expected BOF record; met end of stream at offset %d", savpos))
	}
	if !isBOFCode(opcode) {
		return 0, ErrUnsupportedSchema.New(fmt.Sprintf("expected BOF record; found 0x%04x at offset %d", opcode, savpos))
	}
	_, length, data, err := b.cursor.next()
	if err != nil {
		return 0, err
	}
	if length < 4 || length > 20 {
		return 0, ErrUnsupportedSchema.New(fmt.Sprintf(
			"invalid length (%d) for BOF record type 0x%04x at offset %d", length, opcode, savpos))
	}
	if want := bofLen[opcode]; len(data) < want {
		padded := make([]byte, want)
		copy(padded, data)
		data = padded
	}

	version1 := opcode >> 8
	version2 := int(binary.LittleEndian.Uint16(data[0:]))
	streamType := int(binary.LittleEndian.Uint16(data[2:]))
	var build, year, version int
	switch version1 {
	case 0x08:
		build = int(binary.LittleEndian.Uint16(data[4:]))
		year = int(binary.LittleEndian.Uint16(data[6:]))
		switch version2 {
		case 0x0600:
			version = 80
		case 0x0500:
			if year < 1994 || build == 2412 || build == 3218 || build == 3321 {
				version = 50
			} else {
				version = 70
			}
		default:
			// written by third-party tools
			version = map[int]int{0x0000: 21, 0x0007: 21, 0x0200: 21, 0x0300: 30, 0x0400: 40}[version2]
		}
	case 0x04:
		version = 40
	case 0x02:
		version = 30
	case 0x00:
		version = 21
	}
	if version == 40 && streamType == XL_WORKBOOK_GLOBALS_4W {
		version = 45
	}

	gotGlobals := streamType == XL_WORKBOOK_GLOBALS ||
		(version == 45 && streamType == XL_WORKBOOK_GLOBALS_4W)
	if (rqdStream == XL_WORKBOOK_GLOBALS && gotGlobals) || streamType == rqdStream {
		return version, nil
	}
	if version < 50 && streamType == XL_WORKSHEET {
		return version, nil
	}
	if version >= 50 && streamType == 0x0100 {
		return 0, ErrUnsupportedSchema.New(fmt.Sprintf("workspace file at offset %d; no spreadsheet data", savpos))
	}
	return 0, ErrUnsupportedSchema.New(fmt.Sprintf(
		"BOF not workbook/worksheet at offset %d: op=0x%04x vers=0x%04x strm=0x%04x build=%d year=%d -> BIFF%d",
		savpos, opcode, version2, streamType, build, year, version))
}

func (b *Book) parseGlobals() error {
	b.cursor = newRecordCursor(b.mem, b.base, b.streamLen)
	bv, err := b.getBOF(XL_WORKBOOK_GLOBALS)
	if err != nil {
		return err
	}
	if !isSupportedVersion(bv) {
		return ErrUnsupportedSchema.New(fmt.Sprintf("BIFF version %s is not supported", BiffTextFromNum(bv)))
	}
	b.BiffVersion = bv
	b.initialiseFormatInfo()

	switch {
	case bv <= 40:
		// no workbook globals, only one worksheet
		if b.onDemand {
			b.log.WithField("biff", BiffTextFromNum(bv)).Warn("on-demand loading is not supported for this BIFF version")
			b.onDemand = false
		}
		if err := b.fakeGlobalsGetSheet(); err != nil {
			return err
		}
		if b.Encoding == "" {
			b.deriveEncoding()
		}
	case bv == 45:
		// worksheets are embedded in the globals stream
		if b.onDemand {
			b.log.WithField("biff", BiffTextFromNum(bv)).Warn("on-demand loading is not supported for this BIFF version")
			b.onDemand = false
		}
		if err := b.parseGlobalsRecords(); err != nil {
			return err
		}
	default:
		if err := b.parseGlobalsRecords(); err != nil {
			return err
		}
		b.sheetList = make([]*Sheet, len(b.sheetNames))
		if b.onDemand && b.cacheSize > 0 {
			b.sheetCache, err = lru.NewWithEvict(b.cacheSize, b.evictSheet)
			if err != nil {
				return err
			}
		}
		if !b.onDemand {
			if err := b.loadAllSheets(); err != nil {
				return err
			}
		}
	}
	b.NSheets = len(b.sheetList)
	if bv == 45 && b.NSheets > 1 {
		b.log.WithField("sheets", b.NSheets).
			Warn("Excel 4.0 workbook (.XLW) file contains several worksheets; book-level data is that of the last one")
	}
	return nil
}

// fakeGlobalsGetSheet handles BIFF 4.0 and earlier, where the stream is a
// single worksheet.
func (b *Book) fakeGlobalsGetSheet() error {
	b.sheetNames = []string{"Sheet1"}
	b.sheetAbsPosn = []int{b.base}
	b.sheetVisibility = []int{0}
	b.SheetKinds = []int{XL_BOUNDSHEET_WORKSHEET}
	b.allSheetsMap = []int{0}
	b.sheetList = make([]*Sheet, 1)
	return b.loadAllSheets()
}

type globalsHandler func(b *Book, data []byte) error

// globalsHandlers dispatches workbook globals records. Records without an
// entry are skipped.
var globalsHandlers map[int]globalsHandler

func init() {
	format := func(rectype int) globalsHandler {
		return func(b *Book, data []byte) error { return b.handleFormat(data, rectype) }
	}
	globalsHandlers = map[int]globalsHandler{
		XL_BOUNDSHEET:   (*Book).handleBoundsheet,
		XL_CODEPAGE:     (*Book).handleCodepage,
		XL_COUNTRY:      (*Book).handleCountry,
		XL_DATEMODE:     (*Book).handleDatemode,
		XL_EXTERNNAME:   (*Book).handleExternname,
		XL_EXTERNSHEET:  (*Book).handleExternsheet,
		XL_FILEPASS:     (*Book).handleFilepass,
		XL_FONT:         (*Book).handleFont,
		XL_FONT_B3B4:    (*Book).handleFont,
		XL_FORMAT:       format(XL_FORMAT),
		XL_FORMAT2:      format(XL_FORMAT2),
		XL_NAME:         (*Book).handleName,
		XL_PALETTE:      (*Book).handlePalette,
		XL_SHEETHDR:     (*Book).handleSheetHdr,
		XL_SHEETSOFFSET: (*Book).handleSheetsOffset,
		XL_SST:          (*Book).handleSST,
		XL_STYLE:        (*Book).handleStyle,
		XL_SUPBOOK:      (*Book).handleSupbook,
		XL_WRITEACCESS:  (*Book).handleWriteAccess,
		XL_XF:           (*Book).handleXF,
		XL_XF2:          (*Book).handleXF,
		XL_XF3:          (*Book).handleXF,
		XL_XF4:          (*Book).handleXF,
	}
}

// parseGlobalsRecords reads globals records up to EOF, then runs the XF,
// names and palette epilogues in that order.
func (b *Book) parseGlobalsRecords() error {
	for {
		code, _, data, err := b.cursor.next()
		if err != nil {
			return err
		}
		if code == XL_EOF {
			break
		}
		h, ok := globalsHandlers[code]
		if !ok {
			continue
		}
		if b.Encoding == "" && code != XL_CODEPAGE && code != XL_WRITEACCESS {
			b.deriveEncoding()
		}
		if err := h(b, data); err != nil {
			return err
		}
	}
	if !b.xfEpilogueDone {
		b.xfEpilogue()
	}
	b.namesEpilogue()
	b.paletteEpilogue()
	if b.Encoding == "" {
		b.deriveEncoding()
	}
	if b.Codepage == nil && b.encodingOverride == "" && b.BiffVersion < 80 {
		b.log.Info("no CODEPAGE record and no encoding override; using iso-8859-1")
	}
	return nil
}

// deriveEncoding sets Encoding from the override or the codepage, and
// decodes a user name that was seen before the encoding was known.
func (b *Book) deriveEncoding() string {
	switch {
	case b.encodingOverride != "":
		b.Encoding = b.encodingOverride
	case b.Codepage == nil:
		if b.BiffVersion < 80 {
			b.Encoding = "iso-8859-1"
		} else {
			cp := 1200
			b.Codepage = &cp
			b.Encoding = EncodingFromCodepage[cp]
		}
	default:
		enc := encodingName(*b.Codepage)
		if strings.HasPrefix(enc, "unknown_codepage_") && b.BiffVersion >= 80 {
			cp := 1200
			b.Codepage = &cp
			enc = EncodingFromCodepage[cp]
		}
		b.Encoding = enc
	}
	if !knownEncoding(b.Encoding) && b.encodingWarned != b.Encoding {
		b.encodingWarned = b.Encoding
		b.log.WithField("encoding", b.Encoding).
			Warn("no decoder for encoding; 8-bit text is decoded as iso-8859-1")
	}
	if b.rawUserName != nil {
		if name, err := UnpackString(b.rawUserName, 0, b.Encoding, 1); err == nil {
			b.UserName = strings.TrimRight(name, " \x00")
		}
		b.rawUserName = nil
	}
	return b.Encoding
}

func (b *Book) handleCodepage(data []byte) error {
	if len(data) < 2 {
		return ErrCorrupt.New("CODEPAGE record too short")
	}
	cp := int(binary.LittleEndian.Uint16(data))
	b.Codepage = &cp
	b.deriveEncoding()
	return nil
}

func (b *Book) handleCountry(data []byte) error {
	if len(data) < 4 {
		b.log.WithField("size", len(data)).Info("short COUNTRY record ignored")
		return nil
	}
	b.Countries = [2]int{
		int(binary.LittleEndian.Uint16(data[0:])),
		int(binary.LittleEndian.Uint16(data[2:])),
	}
	return nil
}

func (b *Book) handleDatemode(data []byte) error {
	if len(data) < 2 {
		return ErrCorrupt.New("DATEMODE record too short")
	}
	mode := int(binary.LittleEndian.Uint16(data))
	if mode != 0 && mode != 1 {
		return ErrCorrupt.New(fmt.Sprintf("invalid DATEMODE value %d", mode))
	}
	b.Datemode = mode
	return nil
}

func (b *Book) handleFilepass(data []byte) error {
	return ErrEncrypted.New()
}

func (b *Book) handleWriteAccess(data []byte) error {
	var name string
	var err error
	if b.BiffVersion < 80 {
		if b.Encoding == "" {
			b.rawUserName = append([]byte(nil), data...)
			return nil
		}
		name, err = UnpackString(data, 0, b.Encoding, 1)
	} else {
		name, err = UnpackUnicode(data, 0, 2)
	}
	if err != nil {
		b.log.WithField("cause", err.Error()).Info("unreadable WRITEACCESS record ignored")
		return nil
	}
	b.UserName = strings.TrimRight(name, " \x00")
	return nil
}

var sheetKindDescr = map[int]string{
	1: "Macro sheet",
	2: "Chart",
	6: "Visual Basic module",
}

func (b *Book) handleBoundsheet(data []byte) error {
	bv := b.BiffVersion
	var (
		name       string
		visibility int
		kind       = XL_BOUNDSHEET_WORKSHEET
		absPosn    = -1
		err        error
	)
	if bv == 45 {
		// the only data is the sheet name; the position comes from SHEETHDR
		name, err = UnpackString(data, 0, b.Encoding, 1)
		if len(b.sheetAbsPosn) == 0 {
			absPosn = b.sheetsOffset + b.base
		}
	} else {
		if len(data) < 6 {
			return ErrCorrupt.New(fmt.Sprintf("BOUNDSHEET record too short: %d bytes", len(data)))
		}
		// offsets are relative to the globals BOF at the stream start
		absPosn = int(int32(binary.LittleEndian.Uint32(data))) + b.base
		visibility = int(data[4])
		kind = int(data[5])
		if bv < BIFF_FIRST_UNICODE {
			name, err = UnpackString(data, 6, b.Encoding, 1)
		} else {
			name, err = UnpackUnicode(data, 6, 1)
		}
	}
	if err != nil {
		return err
	}

	b.SheetKinds = append(b.SheetKinds, kind)
	if kind != XL_BOUNDSHEET_WORKSHEET {
		b.allSheetsMap = append(b.allSheetsMap, -1)
		descr, ok := sheetKindDescr[kind]
		if !ok {
			descr = "UNKNOWN"
		}
		b.log.WithFields(logrus.Fields{
			"name": name,
			"type": fmt.Sprintf("0x%02x", kind),
		}).Info("ignoring non-worksheet data: " + descr)
		return nil
	}
	b.allSheetsMap = append(b.allSheetsMap, len(b.sheetNames))
	b.sheetNames = append(b.sheetNames, name)
	b.sheetAbsPosn = append(b.sheetAbsPosn, absPosn)
	b.sheetVisibility = append(b.sheetVisibility, visibility)
	return nil
}

func (b *Book) handleSheetsOffset(data []byte) error {
	if len(data) < 4 {
		return ErrCorrupt.New("SHEETSOFFSET record too short")
	}
	b.sheetsOffset = int(int32(binary.LittleEndian.Uint32(data)))
	return nil
}

// handleSheetHdr loads the BIFF4W worksheet substream that follows the
// SHEETHDR record, then skips past it.
func (b *Book) handleSheetHdr(data []byte) error {
	if len(data) < 5 {
		return ErrCorrupt.New("SHEETHDR record too short")
	}
	sheetLen := int(int32(binary.LittleEndian.Uint32(data)))
	name, err := UnpackString(data, 4, b.Encoding, 1)
	if err != nil {
		return err
	}
	sheetx := b.sheethdrCount
	b.sheethdrCount++
	if sheetx >= len(b.sheetNames) {
		return ErrCorrupt.New(fmt.Sprintf("SHEETHDR %d (%q) has no matching BOUNDSHEET", sheetx, name))
	}
	if name != b.sheetNames[sheetx] {
		b.log.WithFields(logrus.Fields{
			"sheet":      sheetx,
			"sheethdr":   name,
			"boundsheet": b.sheetNames[sheetx],
		}).Warn("SHEETHDR and BOUNDSHEET names differ")
	}
	bofPos := b.cursor.pos()
	b.sheetAbsPosn[sheetx] = bofPos
	for len(b.sheetList) < len(b.sheetNames) {
		b.sheetList = append(b.sheetList, nil)
	}
	b.initialiseFormatInfo()
	if _, err := b.getSheet(sheetx); err != nil {
		return err
	}
	b.cursor.seek(bofPos + sheetLen)
	return nil
}

func (b *Book) handleSST(data []byte) error {
	if len(data) < 8 {
		return ErrCorrupt.New("SST record too short")
	}
	conts, err := b.cursor.continuations()
	if err != nil {
		return err
	}
	nstrings := int(int32(binary.LittleEndian.Uint32(data[4:])))
	segs := append([][]byte{data[8:]}, conts...)
	t := unpackSSTTable(segs, nstrings, b.log)
	b.sharedStrings = t.strings
	if b.formattingInfo {
		b.RichTextRunlistMap = t.runs
	}
	b.PhoneticMap = t.phonetic
	return nil
}

// getSheet parses the worksheet at its recorded offset.
func (b *Book) getSheet(sheetx int) (*Sheet, error) {
	if b.released || b.cursor == nil {
		return nil, ErrReleased.New()
	}
	pos := b.sheetAbsPosn[sheetx]
	if pos < b.base || pos >= b.base+b.streamLen {
		return nil, ErrCorrupt.New(fmt.Sprintf(
			"sheet %d (%q) offset %d is outside the workbook stream", sheetx, b.sheetNames[sheetx], pos-b.base))
	}
	b.cursor.seek(pos)
	if _, err := b.getBOF(XL_WORKSHEET); err != nil {
		return nil, err
	}
	sh := newSheet(b, pos, b.sheetNames[sheetx], sheetx)
	if err := sh.read(); err != nil {
		return nil, err
	}
	b.sheetList[sheetx] = sh
	if b.sheetCache != nil {
		b.sheetCache.Add(sheetx, sh)
	}
	return sh, nil
}

func (b *Book) loadAllSheets() error {
	for sheetx := range b.sheetNames {
		if b.sheetList[sheetx] != nil {
			continue
		}
		if _, err := b.getSheet(sheetx); err != nil {
			return err
		}
	}
	return nil
}

// evictSheet is the sheet cache eviction callback.
func (b *Book) evictSheet(key, value interface{}) {
	sheetx := key.(int)
	if sheetx < len(b.sheetList) && b.sheetList[sheetx] == value.(*Sheet) {
		b.sheetList[sheetx] = nil
		b.log.WithField("sheet", sheetx).Debug("sheet evicted from cache")
	}
}

// Sheets returns all sheets in the book, loading those not already loaded.
func (b *Book) Sheets() ([]*Sheet, error) {
	sheets := make([]*Sheet, 0, len(b.sheetList))
	for sheetx := range b.sheetList {
		sh, err := b.SheetByIndex(sheetx)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, sh)
	}
	return sheets, nil
}

// SheetByIndex returns the sheet at sheetx, loading it if necessary.
func (b *Book) SheetByIndex(sheetx int) (*Sheet, error) {
	if sheetx < 0 || sheetx >= len(b.sheetList) {
		return nil, ErrSheetIndex.New(sheetx)
	}
	if sh := b.sheetList[sheetx]; sh != nil {
		if b.sheetCache != nil {
			b.sheetCache.Get(sheetx)
		}
		return sh, nil
	}
	return b.getSheet(sheetx)
}

// SheetByName returns the sheet with the given name.
func (b *Book) SheetByName(name string) (*Sheet, error) {
	sheetx := b.sheetIndex(name)
	if sheetx < 0 {
		return nil, ErrSheetNotFound.New(name)
	}
	return b.SheetByIndex(sheetx)
}

// Get returns a sheet by name (string) or index (int).
func (b *Book) Get(key interface{}) (*Sheet, error) {
	switch k := key.(type) {
	case int:
		return b.SheetByIndex(k)
	case string:
		return b.SheetByName(k)
	default:
		return nil, ErrInvalidKey.New(key)
	}
}

// SheetNames returns the names of all worksheets in the book.
func (b *Book) SheetNames() []string {
	return append([]string(nil), b.sheetNames...)
}

// SheetVisibility returns the visibility of each worksheet:
// 0 visible, 1 hidden, 2 very hidden.
func (b *Book) SheetVisibility() []int {
	return append([]int(nil), b.sheetVisibility...)
}

func (b *Book) sheetIndex(name string) int {
	for i, n := range b.sheetNames {
		if n == name {
			return i
		}
	}
	return -1
}

func (b *Book) resolveSheetKey(key interface{}) (int, error) {
	switch k := key.(type) {
	case int:
		if k < 0 || k >= len(b.sheetList) {
			return 0, ErrSheetIndex.New(k)
		}
		return k, nil
	case string:
		sheetx := b.sheetIndex(k)
		if sheetx < 0 {
			return 0, ErrSheetNotFound.New(k)
		}
		return sheetx, nil
	default:
		return 0, ErrInvalidKey.New(key)
	}
}

// SheetLoaded reports whether the sheet named or indexed by key is loaded.
func (b *Book) SheetLoaded(key interface{}) (bool, error) {
	sheetx, err := b.resolveSheetKey(key)
	if err != nil {
		return false, err
	}
	return b.sheetList[sheetx] != nil, nil
}

// UnloadSheet drops the sheet named or indexed by key. It is loaded again
// on the next access, unless resources have been released.
func (b *Book) UnloadSheet(key interface{}) error {
	sheetx, err := b.resolveSheetKey(key)
	if err != nil {
		return err
	}
	b.sheetList[sheetx] = nil
	if b.sheetCache != nil {
		b.sheetCache.Remove(sheetx)
	}
	return nil
}

// ReleaseResources drops the input buffer and unmaps a mapped file. Sheets
// already loaded remain usable; loading any other sheet fails with
// ErrReleased. Calling it again is a no-op.
func (b *Book) ReleaseResources() error {
	if b.released {
		return nil
	}
	b.released = true
	var err error
	if b.unmap != nil {
		err = b.unmap()
		b.unmap = nil
	}
	b.filestr = nil
	b.mem = nil
	b.cursor = nil
	return err
}

// SharedStrings returns the shared string table (BIFF8 only).
func (b *Book) SharedStrings() []string {
	return b.sharedStrings
}

// NameMap maps a lower-case name to its Name objects, sorted by scope.
func (b *Book) NameMap() map[string][]*Name {
	return b.nameMap
}

// NameAndScopeMap maps a lower-case name and scope to its Name object.
func (b *Book) NameAndScopeMap() map[NameScope]*Name {
	return b.nameAndScopeMap
}
