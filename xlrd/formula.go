package xlrd

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Operand kinds.
const (
	oUNK  = 0
	oSTRG = 1
	oNUM  = 2
	oBOOL = 3
	oERR  = 4
	oMSNG = 5 // tMissArg
	oREF  = -1
	oREL  = -2
)

var okindNames = map[int]string{
	oREL:  "oREL",
	oREF:  "oREF",
	oUNK:  "oUNK",
	oSTRG: "oSTRG",
	oNUM:  "oNUM",
	oBOOL: "oBOOL",
	oERR:  "oERR",
	oMSNG: "oMSNG",
}

const (
	leafRank = 90
	funcRank = 90

	// nameNestingLimit bounds tName recursion between NAME records.
	nameNestingLimit = 10
)

// Operand is the result of evaluating a NAME formula.
//
// Value depends on Kind: float64 for oNUM, string for oSTRG, int (0 or 1)
// for oBOOL, an int error code for oERR and []*Ref3D for oREF and oREL.
// A nil Value means the value depends on cell data and is not known.
type Operand struct {
	Value interface{}
	Kind  int

	// Rank is the operator precedence used when rebuilding Text.
	Rank int

	// Text is the reconstituted text of the formula.
	Text string
}

func newOperand(kind int, value interface{}, rank int, text string) *Operand {
	if text == "" {
		text = "?"
	}
	return &Operand{Kind: kind, Value: value, Rank: rank, Text: text}
}

// Refs returns the references held by an oREF or oREL operand.
func (o *Operand) Refs() []*Ref3D {
	refs, _ := o.Value.([]*Ref3D)
	return refs
}

func (o *Operand) String() string {
	kind, ok := okindNames[o.Kind]
	if !ok {
		kind = "?Unknown kind?"
	}
	return fmt.Sprintf("Operand(kind=%s, value=%v, text=%s)", kind, o.Value, o.Text)
}

// Ref3D is a reference to a box of cells spanning one or more sheets:
// Coords is (shtxlo, shtxhi, rowxlo, rowxhi, colxlo, colxhi) with the hi
// bounds exclusive. RelFlags marks each coordinate relative (1) or
// absolute (0). Negative sheet indexes describe references that do not
// resolve to a worksheet of this book:
//
//	-1 internal, any sheet
//	-2 deleted sheet(s)
//	-3 macro sheet
//	-4 external workbook
//	-5 add-in function
//	-101 and below: inconsistent cross-reference data
type Ref3D struct {
	Coords   [6]int
	RelFlags [6]int

	ShtXLo, ShtXHi int
	RowXLo, RowXHi int
	ColXLo, ColXHi int
}

// NewRef3D builds a Ref3D from six coordinates optionally followed by six
// relative flags.
func NewRef3D(atuple []int) *Ref3D {
	r := &Ref3D{}
	copy(r.Coords[:], atuple[:6])
	if len(atuple) >= 12 {
		copy(r.RelFlags[:], atuple[6:12])
	}
	r.ShtXLo, r.ShtXHi = r.Coords[0], r.Coords[1]
	r.RowXLo, r.RowXHi = r.Coords[2], r.Coords[3]
	r.ColXLo, r.ColXHi = r.Coords[4], r.Coords[5]
	return r
}

func (r *Ref3D) String() string {
	if r.RelFlags == [6]int{} {
		return fmt.Sprintf("Ref3D(coords=%v)", r.Coords)
	}
	return fmt.Sprintf("Ref3D(coords=%v, relflags=%v)", r.Coords, r.RelFlags)
}

// boxIntersect and boxUnion combine the coordinates of two boxes.
func boxIntersect(a, b *Ref3D) []int {
	out := make([]int, 6)
	for i := 0; i < 6; i++ {
		if i%2 == 0 {
			out[i] = maxInt(a.Coords[i], b.Coords[i])
		} else {
			out[i] = minInt(a.Coords[i], b.Coords[i])
		}
	}
	return out
}

func boxUnion(a, b *Ref3D) []int {
	out := make([]int, 6)
	for i := 0; i < 6; i++ {
		if i%2 == 0 {
			out[i] = minInt(a.Coords[i], b.Coords[i])
		} else {
			out[i] = maxInt(a.Coords[i], b.Coords[i])
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Token sizes indexed by opcode (class bits folded) for the generations
// that carry NAME records.
// -1 is variable length, -2 is not valid in that generation.
var (
	sztab3 = []int{-2, 5, 5, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, -1, -2, -1, -2, -2, 2, 2, 3, 9, 9, 3, 4, 15, 4, 7, 7, 7, 7, 3, 4, 7, 4, 7, 3, 3, -2, -2, -2, -2, -2, -2, -2, -2, -2, 25, 18, 21, 18, 21, -2, -2}
	sztab4 = []int{-2, 5, 5, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, -1, -1, -1, -2, -2, 2, 2, 3, 9, 9, 3, 4, 5, 5, 9, 7, 7, 7, 3, 5, 9, 5, 9, 3, 3, -2, -2, -2, -2, -2, -2, -2, -2, -2, 7, 7, 11, 7, 11, -2, -2}

	szdict = map[int][]int{
		50: sztab3,
		70: sztab3,
		80: sztab4,
	}
)

type funcDef struct {
	name string
	// nargs is the fixed argument count, or -1 when the count is carried
	// by the token (tFuncVar).
	nargs int
}

var funcDefs = map[int]funcDef{
	0:   {"COUNT", -1},
	1:   {"IF", -1},
	2:   {"ISNA", 1},
	3:   {"ISERROR", 1},
	4:   {"SUM", -1},
	5:   {"AVERAGE", -1},
	6:   {"MIN", -1},
	7:   {"MAX", -1},
	8:   {"ROW", -1},
	9:   {"COLUMN", -1},
	10:  {"NA", 0},
	11:  {"NPV", -1},
	12:  {"STDEV", -1},
	13:  {"DOLLAR", -1},
	14:  {"FIXED", -1},
	15:  {"SIN", 1},
	16:  {"COS", 1},
	17:  {"TAN", 1},
	18:  {"ATAN", 1},
	19:  {"PI", 0},
	20:  {"SQRT", 1},
	21:  {"EXP", 1},
	22:  {"LN", 1},
	23:  {"LOG10", 1},
	24:  {"ABS", 1},
	25:  {"INT", 1},
	26:  {"SIGN", 1},
	27:  {"ROUND", 2},
	28:  {"LOOKUP", -1},
	29:  {"INDEX", -1},
	30:  {"REPT", 2},
	31:  {"MID", 3},
	32:  {"LEN", 1},
	33:  {"VALUE", 1},
	34:  {"TRUE", 0},
	35:  {"FALSE", 0},
	36:  {"AND", -1},
	37:  {"OR", -1},
	38:  {"NOT", 1},
	39:  {"MOD", 2},
	40:  {"DCOUNT", 3},
	41:  {"DSUM", 3},
	42:  {"DAVERAGE", 3},
	43:  {"DMIN", 3},
	44:  {"DMAX", 3},
	45:  {"DSTDEV", 3},
	46:  {"VAR", -1},
	47:  {"DVAR", 3},
	48:  {"TEXT", 2},
	49:  {"LINEST", -1},
	50:  {"TREND", -1},
	51:  {"LOGEST", -1},
	52:  {"GROWTH", -1},
	57:  {"TRANSPOSE", 1},
	61:  {"RAND", 0},
	62:  {"MATCH", -1},
	63:  {"DATE", 3},
	64:  {"TIME", 3},
	65:  {"DAY", 1},
	66:  {"MONTH", 1},
	67:  {"YEAR", 1},
	68:  {"WEEKDAY", -1},
	69:  {"HOUR", 1},
	70:  {"MINUTE", 1},
	71:  {"SECOND", 1},
	72:  {"NOW", 0},
	73:  {"AREAS", 1},
	74:  {"ROWS", 1},
	75:  {"COLUMNS", 1},
	76:  {"OFFSET", -1},
	77:  {"SEARCH", -1},
	78:  {"TRANSPOSE", 1},
	79:  {"TYPE", 1},
	82:  {"ATAN2", 2},
	83:  {"ASIN", 1},
	84:  {"ACOS", 1},
	85:  {"CHOOSE", -1},
	86:  {"HLOOKUP", -1},
	87:  {"VLOOKUP", -1},
	88:  {"ISREF", 1},
	89:  {"LOG", -1},
	97:  {"CHAR", 1},
	98:  {"LOWER", 1},
	99:  {"UPPER", 1},
	100: {"PROPER", 1},
	101: {"LEFT", -1},
	102: {"RIGHT", -1},
	103: {"EXACT", 2},
	104: {"TRIM", 1},
	105: {"REPLACE", 4},
	106: {"SUBSTITUTE", -1},
	107: {"CODE", 1},
	109: {"FIND", -1},
	111: {"ISERR", 1},
	112: {"ISTEXT", 1},
	113: {"ISNUMBER", 1},
	114: {"ISBLANK", 1},
	115: {"T", 1},
	116: {"N", 1},
	117: {"DATEVALUE", 1},
	118: {"TIMEVALUE", 1},
	119: {"SLN", 3},
	120: {"SYD", 4},
	121: {"DDB", -1},
	124: {"INDIRECT", -1},
	125: {"CALLER", 0},
	126: {"CLEAN", 1},
	127: {"MDETERM", 1},
	128: {"MINVERSE", 1},
	129: {"MMULT", 2},
	130: {"IPMT", -1},
	131: {"PPMT", -1},
	132: {"COUNTA", -1},
	133: {"PRODUCT", -1},
	134: {"FACT", 1},
	135: {"DPRODUCT", 3},
	136: {"ISNONTEXT", 1},
	137: {"STDEVP", -1},
	138: {"VARP", -1},
	139: {"DSTDEVP", 3},
	140: {"DVARP", 3},
	141: {"TRUNC", -1},
	142: {"ISLOGICAL", 1},
	143: {"DCOUNTA", 3},
	144: {"FINDB", -1},
	145: {"SEARCHB", -1},
	146: {"REPLACEB", 4},
	147: {"LEFTB", -1},
	148: {"RIGHTB", -1},
	149: {"MIDB", 3},
	150: {"LENB", 1},
	151: {"ROUNDUP", 2},
	152: {"ROUNDDOWN", 2},
	153: {"ASC", 1},
	154: {"DBCS", 1},
	155: {"RANK", -1},
	156: {"ADDRESS", -1},
	157: {"DAYS360", 2},
	158: {"TODAY", 0},
	159: {"VDB", -1},
	160: {"MEDIAN", -1},
	161: {"SUMPRODUCT", -1},
	162: {"SINH", 1},
	163: {"COSH", 1},
	164: {"TANH", 1},
	165: {"ASINH", 1},
	166: {"ACOSH", 1},
	167: {"ATANH", 1},
	168: {"DGET", 3},
	169: {"INFO", 1},
	183: {"FREQUENCY", 2},
	184: {"ERROR.TYPE", 1},
	185: {"REGISTER.ID", -1},
	186: {"AVEDEV", -1},
	187: {"BETADIST", -1},
	188: {"GAMMALN", 1},
	189: {"BETAINV", -1},
	190: {"BINOMDIST", 4},
	191: {"CHIDIST", 2},
	192: {"CHIINV", 2},
	193: {"COMBIN", 2},
	194: {"CONFIDENCE", 3},
	195: {"CRITBINOM", 3},
	196: {"EVEN", 1},
	197: {"EXPONDIST", 3},
	198: {"FDIST", 3},
	199: {"FINV", 3},
	200: {"FISHER", 1},
	201: {"FISHERINV", 1},
	202: {"FLOOR", 2},
	203: {"GAMMADIST", 4},
	204: {"GAMMAINV", 3},
	205: {"CEILING", 2},
	206: {"HYPGEOMDIST", 4},
	207: {"LOGNORMDIST", 3},
	208: {"LOGINV", 3},
	209: {"NEGBINOMDIST", 3},
	210: {"NORMDIST", 4},
	211: {"NORMSDIST", 1},
	212: {"NORMSINV", 1},
	213: {"NORMINV", 3},
	214: {"PEARSON", 2},
	215: {"POISSON", 3},
	216: {"TDIST", 3},
	217: {"TINV", 2},
	218: {"WEIBULL", 4},
	219: {"SUMXMY2", 2},
	220: {"SUMX2MY2", 2},
	221: {"SUMX2PY2", 2},
	222: {"CHITEST", 2},
	223: {"CORREL", 2},
	224: {"COVAR", 2},
	225: {"FTEST", 2},
	226: {"INTERCEPT", 2},
	227: {"PEARSON", 2},
	228: {"RSQ", 2},
	229: {"STEYX", 2},
	230: {"SLOPE", 2},
	231: {"TTEST", 4},
	232: {"PROB", -1},
	233: {"DEVSQ", -1},
	234: {"GEOMEAN", -1},
	235: {"HARMEAN", -1},
	236: {"SUMSQ", -1},
	237: {"KURT", -1},
	238: {"SKEW", -1},
	239: {"ZTEST", -1},
	240: {"LARGE", 2},
	241: {"SMALL", 2},
	242: {"QUARTILE", 2},
	243: {"PERCENTILE", 2},
	244: {"PERCENTRANK", -1},
	245: {"MODE", -1},
	246: {"TRIMMEAN", 2},
	247: {"TINV2", 2},
	252: {"CONCATENATE", -1},
	253: {"POWER", 2},
	254: {"RADIANS", 1},
	255: {"DEGREES", 1},
	256: {"SUBTOTAL", -1},
	257: {"SUMIF", -1},
	258: {"COUNTIF", 2},
	259: {"COUNTBLANK", 1},
	260: {"ISPMT", 4},
	261: {"DATEDIF", 3},
	262: {"DATESTRING", 1},
	263: {"NUMBERSTRING", 2},
	269: {"SQRTPI", 1},
	270: {"RAND", 0},
	271: {"NOW", 0},
	272: {"TODAY", 0},
	273: {"AREAS", 1},
	274: {"ROWS", 1},
	275: {"COLUMNS", 1},
	276: {"OFFSET", -1},
	277: {"SEARCH", -1},
	278: {"TRANSPOSE", 1},
	279: {"TYPE", 1},
	285: {"CALLER", 0},
	288: {"SERIESSUM", 4},
	289: {"FACTDOUBLE", 1},
	290: {"SQRTPI", 1},
	291: {"RANDBETWEEN", 2},
	292: {"PRODUCT", -1},
	293: {"FACT", 1},
	294: {"DPRODUCT", 3},
	295: {"ISNONTEXT", 1},
	296: {"STDEVP", -1},
	297: {"VARP", -1},
	298: {"DSTDEVP", 3},
	299: {"DVARP", 3},
	300: {"TRUNC", -1},
	301: {"ISLOGICAL", 1},
	302: {"DCOUNTA", 3},
	303: {"FINDB", -1},
	304: {"SEARCHB", -1},
	305: {"REPLACEB", 4},
	306: {"LEFTB", -1},
	307: {"RIGHTB", -1},
	308: {"MIDB", 3},
	309: {"LENB", 1},
	310: {"ROUNDUP", 2},
	311: {"ROUNDDOWN", 2},
	312: {"ASC", 1},
	313: {"DBCS", 1},
	314: {"RANK", -1},
	315: {"ADDRESS", -1},
	316: {"DAYS360", 2},
	317: {"TODAY", 0},
	318: {"VDB", -1},
	319: {"MEDIAN", -1},
	320: {"SUMPRODUCT", -1},
	321: {"SINH", 1},
	322: {"COSH", 1},
	323: {"TANH", 1},
	324: {"ASINH", 1},
	325: {"ACOSH", 1},
	326: {"ATANH", 1},
	336: {"ISPMT", -1},
	337: {"DATEDIF", 3},
	338: {"DATESTRING", 1},
	339: {"NUMBERSTRING", 2},
	342: {"SUMSQ", -1},
	343: {"SUMX2MY2", 2},
	344: {"SUMX2PY2", 2},
	345: {"SUMXMY2", 2},
	346: {"FACTDOUBLE", 1},
	347: {"SQRTPI", 1},
	348: {"RANDBETWEEN", 2},
	349: {"SERIESSUM", 4},
	350: {"SUBTOTAL", -1},
	351: {"SUMIF", -1},
	352: {"COUNTIF", 2},
	353: {"COUNTBLANK", 1},
	354: {"SCENARIO_GET", 2},
	355: {"ISPMT", 4},
	356: {"DATEDIF", 3},
	357: {"DATESTRING", 1},
	358: {"NUMBERSTRING", 2},
	359: {"ROMAN", -1},
	360: {"GETPIVOTDATA", -1},
	361: {"HYPERLINK", -1},
	362: {"PHONETIC", 1},
	363: {"AVERAGEA", -1},
	364: {"MAXA", -1},
	365: {"MINA", -1},
	366: {"STDEVPA", -1},
	367: {"VARPA", -1},
	368: {"STDEVA", -1},
	369: {"VARA", -1},
	370: {"BAHTTEXT", 1},
	384: {"THAIDAYOFWEEK", 1},
	385: {"THAIDIGIT", 1},
	386: {"THAIMONTHOFYEAR", 1},
	387: {"THAINUMSOUND", 1},
	388: {"THAINUMSTRING", 1},
	389: {"THAISTRINGLENGTH", 1},
	390: {"ISTHAIDIGIT", 1},
	391: {"ROUNDBAHTDOWN", 1},
	392: {"ROUNDBAHTUP", 1},
	393: {"THAIYEAR", 1},
	394: {"RTD", -1},
}

// adjustCellAddr splits a packed address into indexes and relative flags.
// Relative coordinates in NAME formulas are offsets, so they are
// sign-extended.
func adjustCellAddr(rowval, colval, bv int) (rowx, colx int, rowRel, colRel bool) {
	if bv >= 80 {
		rowRel = colval&0x8000 != 0
		colRel = colval&0x4000 != 0
		rowx, colx = rowval, colval&0xFF
		if rowRel && rowx >= 32768 {
			rowx -= 65536
		}
	} else {
		rowRel = rowval&0x8000 != 0
		colRel = rowval&0x4000 != 0
		rowx, colx = rowval&0x3FFF, colval
		if rowRel && rowx >= 8192 {
			rowx -= 16384
		}
	}
	if colRel && colx >= 128 {
		colx -= 256
	}
	return
}

func cellAddr(data []byte, pos, bv int) (rowx, colx int, rowRel, colRel bool) {
	rowval := int(binary.LittleEndian.Uint16(data[pos:]))
	var colval int
	if bv >= 80 {
		colval = int(binary.LittleEndian.Uint16(data[pos+2:]))
	} else {
		colval = int(data[pos+2])
	}
	return adjustCellAddr(rowval, colval, bv)
}

// cellRangeAddr returns (rowxlo, rowxhi, colxlo, colxhi) inclusive, and
// the matching relative flags.
func cellRangeAddr(data []byte, pos, bv int) (box [4]int, rel [4]bool) {
	row1 := int(binary.LittleEndian.Uint16(data[pos:]))
	row2 := int(binary.LittleEndian.Uint16(data[pos+2:]))
	var col1, col2 int
	if bv >= 80 {
		col1 = int(binary.LittleEndian.Uint16(data[pos+4:]))
		col2 = int(binary.LittleEndian.Uint16(data[pos+6:]))
	} else {
		col1, col2 = int(data[pos+4]), int(data[pos+5])
	}
	box[0], box[2], rel[0], rel[2] = adjustCellAddr(row1, col1, bv)
	box[1], box[3], rel[1], rel[3] = adjustCellAddr(row2, col2, bv)
	return box, rel
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// externsheetLocalRange maps a BIFF8 EXTERNSHEET index to a pair of
// worksheet indexes in this book, or to a negative code (see Ref3D).
func (b *Book) externsheetLocalRange(refx int) (int, int) {
	if refx < 0 || refx >= len(b.externsheetInfo) {
		b.log.WithFields(logrus.Fields{
			"refx":    refx,
			"entries": len(b.externsheetInfo),
		}).Warn("EXTERNSHEET index out of range")
		return -101, -101
	}
	info := b.externsheetInfo[refx]
	recx, first, last := info[0], info[1], info[2]
	if recx == b.supbookAddinsInx {
		if first == 0xFFFE && last == 0xFFFE {
			return -5, -5
		}
		return -103, -103
	}
	if recx != b.supbookLocalsInx {
		return -4, -4
	}
	if first == 0xFFFE && last == 0xFFFE {
		return -1, -1
	}
	if first == 0xFFFF && last == 0xFFFF {
		return -2, -2
	}
	n := len(b.allSheetsMap)
	if !(0 <= first && first <= last && last < n) {
		b.log.WithFields(logrus.Fields{
			"first":  first,
			"last":   last,
			"sheets": n,
		}).Warn("EXTERNSHEET sheet range out of bounds")
		return -102, -102
	}
	return b.mapSheetPair(first, last)
}

// externsheetLocalRangeB57 is externsheetLocalRange for BIFF5 to BIFF7,
// where the sheet indexes are carried in the token itself.
func (b *Book) externsheetLocalRangeB57(rawExtshtx, first, last int) (int, int) {
	if rawExtshtx > 0 {
		return -4, -4
	}
	if first == -1 && last == -1 {
		return -2, -2
	}
	n := len(b.allSheetsMap)
	if !(0 <= first && first <= last && last < n) {
		return -103, -103
	}
	return b.mapSheetPair(first, last)
}

func (b *Book) mapSheetPair(first, last int) (int, int) {
	x1, x2 := b.allSheetsMap[first], b.allSheetsMap[last]
	if !(0 <= x1 && x1 <= x2) {
		return -3, -3
	}
	return x1, x2
}

// num2str renders a number the way a cell would show it in a formula.
func num2str(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func numValue(o *Operand) (float64, bool) {
	switch v := o.Value.(type) {
	case float64:
		return v, true
	case int:
		if o.Kind == oBOOL {
			return float64(v), true
		}
	}
	return 0, false
}

func strValue(o *Operand) (string, bool) {
	switch v := o.Value.(type) {
	case string:
		return v, true
	case float64:
		return num2str(v), true
	case int:
		if o.Kind == oBOOL {
			if v != 0 {
				return "TRUE", true
			}
			return "FALSE", true
		}
	}
	return "", false
}

type binopDef struct {
	sym  string
	rank int
	kind int
}

var binops = map[int]binopDef{
	0x03: {"+", 30, oNUM},
	0x04: {"-", 30, oNUM},
	0x05: {"*", 40, oNUM},
	0x06: {"/", 40, oNUM},
	0x07: {"^", 50, oNUM},
	0x08: {"&", 20, oSTRG},
	0x09: {"<", 10, oBOOL},
	0x0A: {"<=", 10, oBOOL},
	0x0B: {"=", 10, oBOOL},
	0x0C: {">=", 10, oBOOL},
	0x0D: {">", 10, oBOOL},
	0x0E: {"<>", 10, oBOOL},
}

// foldBinop computes a binary operation on two known constants. It
// returns nil when either side is unknown or the result is an error.
func foldBinop(opcode int, a, b *Operand) interface{} {
	if a.Value == nil || b.Value == nil {
		return nil
	}
	if opcode == 0x08 {
		x, ok1 := strValue(a)
		y, ok2 := strValue(b)
		if !ok1 || !ok2 {
			return nil
		}
		return x + y
	}
	if opcode <= 0x07 {
		x, ok1 := numValue(a)
		y, ok2 := numValue(b)
		if !ok1 || !ok2 {
			return nil
		}
		switch opcode {
		case 0x03:
			return x + y
		case 0x04:
			return x - y
		case 0x05:
			return x * y
		case 0x06:
			if y == 0 {
				return nil
			}
			return x / y
		default:
			r := math.Pow(x, y)
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return nil
			}
			return r
		}
	}
	var cmp int
	x, ok1 := numValue(a)
	y, ok2 := numValue(b)
	if ok1 && ok2 {
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	} else {
		xs, ok1 := a.Value.(string)
		ys, ok2 := b.Value.(string)
		if !ok1 || !ok2 {
			return nil
		}
		cmp = strings.Compare(strings.ToUpper(xs), strings.ToUpper(ys))
	}
	var r bool
	switch opcode {
	case 0x09:
		r = cmp < 0
	case 0x0A:
		r = cmp <= 0
	case 0x0B:
		r = cmp == 0
	case 0x0C:
		r = cmp >= 0
	case 0x0D:
		r = cmp > 0
	default:
		r = cmp != 0
	}
	return boolInt(r)
}

// operandText wraps the text of an operand in parentheses when it binds
// less tightly than rank.
func operandText(o *Operand, rank int) string {
	if o.Rank < rank {
		return "(" + o.Text + ")"
	}
	return o.Text
}

// evaluateNameFormula computes the value of the formula of nobj as far as
// it can be known without cell data, and rebuilds its text. level is the
// tName nesting depth.
func (b *Book) evaluateNameFormula(nobj *Name, level int) {
	if nobj.Evaluated {
		return
	}
	log := b.log.WithFields(logrus.Fields{"name": nobj.Name, "namex": nobj.NameIndex})
	if nobj.evaluating || level > nameNestingLimit {
		log.WithField("level", level).Warn("NAME formula refers to itself or is nested too deeply")
		nobj.Result = newOperand(oERR, nil, leafRank, "#CIRCULAR!")
		nobj.AnyErr = true
		nobj.Evaluated = true
		return
	}
	nobj.evaluating = true
	defer func() {
		nobj.evaluating = false
		nobj.Evaluated = true
	}()

	e := &nameEvaluator{b: b, nobj: nobj, level: level, log: log}
	if err := e.run(); err != nil {
		log.WithField("cause", err.Error()).Warn("NAME formula could not be evaluated")
		nobj.Result = nil
		nobj.AnyErr = true
		nobj.AnyRel = e.anyRel
		nobj.AnyExternal = e.anyExternal
		return
	}
	if len(e.stack) == 1 {
		nobj.Result = e.stack[0]
	} else {
		log.WithField("depth", len(e.stack)).Debug("NAME formula left an unbalanced stack")
		nobj.Result = nil
	}
	nobj.AnyRel = e.anyRel
	nobj.AnyErr = e.anyErr
	nobj.AnyExternal = e.anyExternal
}

type nameEvaluator struct {
	b     *Book
	nobj  *Name
	level int
	log   logrus.FieldLogger

	stack       []*Operand
	anyRel      bool
	anyErr      bool
	anyExternal bool
}

func (e *nameEvaluator) push(o *Operand) { e.stack = append(e.stack, o) }

func (e *nameEvaluator) pop() (*Operand, error) {
	if len(e.stack) == 0 {
		return nil, ErrCorrupt.New(fmt.Sprintf("NAME %q: formula stack underflow", e.nobj.Name))
	}
	o := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return o, nil
}

func (e *nameEvaluator) fail(format string, args ...interface{}) error {
	return ErrCorrupt.New(fmt.Sprintf("NAME %q: ", e.nobj.Name) + fmt.Sprintf(format, args...))
}

func (e *nameEvaluator) run() error {
	b := e.b
	data := e.nobj.RawFormula
	fmlalen := e.nobj.BasicFormulaLen
	if fmlalen > len(data) {
		e.log.WithFields(logrus.Fields{
			"declared":  fmlalen,
			"available": len(data),
		}).Warn("NAME formula shorter than declared")
		fmlalen = len(data)
	}
	bv := b.BiffVersion
	sztab, ok := szdict[bv]
	if !ok {
		return e.fail("no token table for %s", BiffTextFromNum(bv))
	}

	pos := 0
	for pos < fmlalen {
		op := int(data[pos])
		opcode := op & 0x1F
		optype := (op & 0x60) >> 5
		opx := opcode
		if optype != 0 {
			opx += 32
		}
		sz := sztab[opx]
		if sz == -2 {
			return e.fail("token 0x%02x is not valid in %s", op, BiffTextFromNum(bv))
		}
		if sz > 0 && pos+sz > len(data) {
			return e.fail("token 0x%02x at %d truncated", op, pos)
		}
		var err error
		if optype == 0 {
			sz, err = e.basicToken(data, pos, opcode, sz)
		} else {
			sz, err = e.classToken(data, pos, opcode, optype, sz)
		}
		if err != nil {
			return err
		}
		pos += sz
	}
	return nil
}

// basicToken handles tokens without an operand class. It returns the
// token size.
func (e *nameEvaluator) basicToken(data []byte, pos, opcode, sz int) (int, error) {
	b := e.b
	switch {
	case opcode >= 0x03 && opcode <= 0x0E:
		bop, err := e.pop()
		if err != nil {
			return 0, err
		}
		aop, err := e.pop()
		if err != nil {
			return 0, err
		}
		def := binops[opcode]
		text := operandText(aop, def.rank) + def.sym + operandText(bop, def.rank)
		e.push(newOperand(def.kind, foldBinop(opcode, aop, bop), def.rank, text))
	case opcode == 0x0F, opcode == 0x10, opcode == 0x11:
		if err := e.refBinop(opcode); err != nil {
			return 0, err
		}
	case opcode == 0x12, opcode == 0x13:
		aop, err := e.pop()
		if err != nil {
			return 0, err
		}
		sym := "+"
		if opcode == 0x13 {
			sym = "-"
		}
		var val interface{}
		if x, ok := numValue(aop); ok {
			if opcode == 0x13 {
				x = -x
			}
			val = x
		}
		e.push(newOperand(oNUM, val, 70, sym+operandText(aop, 70)))
	case opcode == 0x14:
		aop, err := e.pop()
		if err != nil {
			return 0, err
		}
		var val interface{}
		if x, ok := numValue(aop); ok {
			val = x / 100
		}
		e.push(newOperand(oNUM, val, 60, operandText(aop, 60)+"%"))
	case opcode == 0x15:
		aop, err := e.pop()
		if err != nil {
			return 0, err
		}
		e.push(newOperand(aop.Kind, aop.Value, leafRank, "("+aop.Text+")"))
	case opcode == 0x16:
		e.push(newOperand(oMSNG, nil, leafRank, " "))
	case opcode == 0x17:
		var s string
		var newpos int
		var err error
		if b.BiffVersion >= 80 {
			s, newpos, err = UnpackUnicodeUpdatePos(data, pos+1, 1, nil)
		} else {
			s, newpos, err = UnpackStringUpdatePos(data, pos+1, b.Encoding, 1, nil)
		}
		if err != nil {
			return 0, err
		}
		e.push(newOperand(oSTRG, s, leafRank, `"`+strings.ReplaceAll(s, `"`, `""`)+`"`))
		return newpos - pos, nil
	case opcode == 0x18:
		return 0, e.fail("tExtended token is not supported")
	case opcode == 0x19:
		if pos+4 > len(data) {
			return 0, e.fail("tAttr token at %d truncated", pos)
		}
		subop := data[pos+1]
		nc := int(binary.LittleEndian.Uint16(data[pos+2:]))
		switch {
		case subop == 0x04:
			sz = nc*2 + 6
		case subop == 0x10:
			sz = 4
			aop, err := e.pop()
			if err != nil {
				return 0, err
			}
			e.push(newOperand(oNUM, nil, funcRank, "SUM("+aop.Text+")"))
		default:
			sz = 4
		}
	case opcode == 0x1C:
		code := int(data[pos+1])
		text, ok := ErrorTextFromCode[byte(code)]
		if !ok {
			text = "#??"
		}
		e.push(newOperand(oERR, code, leafRank, text))
	case opcode == 0x1D:
		v := int(data[pos+1])
		text := "FALSE"
		if v != 0 {
			v, text = 1, "TRUE"
		}
		e.push(newOperand(oBOOL, v, leafRank, text))
	case opcode == 0x1E:
		v := int(binary.LittleEndian.Uint16(data[pos+1:]))
		e.push(newOperand(oNUM, float64(v), leafRank, strconv.Itoa(v)))
	case opcode == 0x1F:
		v := math.Float64frombits(binary.LittleEndian.Uint64(data[pos+1:]))
		e.push(newOperand(oNUM, v, leafRank, num2str(v)))
	default:
		return 0, e.fail("unexpected token 0x%02x", data[pos])
	}
	return sz, nil
}

// refBinop applies the reference operators: intersection, list and range.
func (e *nameEvaluator) refBinop(opcode int) error {
	bop, err := e.pop()
	if err != nil {
		return err
	}
	aop, err := e.pop()
	if err != nil {
		return err
	}
	sym := map[int]string{0x0F: " ", 0x10: ",", 0x11: ":"}[opcode]
	res := newOperand(oREF, nil, 80, operandText(aop, 80)+sym+operandText(bop, 80))
	isRef := func(o *Operand) bool { return o.Kind == oREF || o.Kind == oREL }
	switch {
	case aop.Kind == oERR || bop.Kind == oERR:
		res.Kind = oERR
	case !isRef(aop) || !isRef(bop):
		res.Kind = oUNK
	case opcode == 0x10:
		if aop.Kind == oREL || bop.Kind == oREL {
			res.Kind = oREL
		}
		if aop.Value != nil && bop.Value != nil {
			refs := append([]*Ref3D(nil), aop.Refs()...)
			res.Value = append(refs, bop.Refs()...)
		}
	case aop.Kind == oREF && bop.Kind == oREF:
		ra, rb := aop.Refs(), bop.Refs()
		if len(ra) == 1 && len(rb) == 1 {
			combine := boxIntersect
			if opcode == 0x11 {
				combine = boxUnion
			}
			res.Value = []*Ref3D{NewRef3D(combine(ra[0], rb[0]))}
		}
	default:
		res.Kind = oREL
		ra, rb := aop.Refs(), bop.Refs()
		if len(ra) == 1 && len(rb) == 1 && ra[0].RelFlags == rb[0].RelFlags {
			combine := boxIntersect
			if opcode == 0x11 {
				combine = boxUnion
			}
			coords := combine(ra[0], rb[0])
			res.Value = []*Ref3D{NewRef3D(append(coords, ra[0].RelFlags[:]...))}
		}
	}
	e.push(res)
	return nil
}

// classToken handles tokens that carry an operand class (reference, value
// or array). It returns the token size.
func (e *nameEvaluator) classToken(data []byte, pos, opcode, optype, sz int) (int, error) {
	b := e.b
	bv := b.BiffVersion
	switch opcode {
	case 0x00: // tArray; the constants follow the formula proper
		e.push(newOperand(oUNK, nil, leafRank, "{...}"))
	case 0x01: // tFunc
		funcx := int(binary.LittleEndian.Uint16(data[pos+1:]))
		def, ok := funcDefs[funcx]
		if !ok || def.nargs < 0 {
			e.log.WithField("funcx", funcx).Debug("unknown fixed-arity function in NAME formula")
			e.push(newOperand(oUNK, nil, funcRank, fmt.Sprintf("FUNC#%d()", funcx)))
			return sz, nil
		}
		if err := e.call(def.name, def.nargs); err != nil {
			return 0, err
		}
	case 0x02: // tFuncVar
		nargs := int(data[pos+1] & 0x7F)
		funcx := int(binary.LittleEndian.Uint16(data[pos+2:]) & 0x7FFF)
		if funcx == 255 {
			// User-defined function: the first argument names it.
			if err := e.call("", nargs); err != nil {
				return 0, err
			}
			return sz, nil
		}
		def, ok := funcDefs[funcx]
		name := def.name
		if !ok {
			name = fmt.Sprintf("FUNC#%d", funcx)
		}
		if err := e.call(name, nargs); err != nil {
			return 0, err
		}
	case 0x03: // tName
		tgtx := int(binary.LittleEndian.Uint16(data[pos+1:])) - 1
		if err := e.pushName(tgtx); err != nil {
			return 0, err
		}
	case 0x04: // tRef
		rowx, colx, rowRel, colRel := cellAddr(data, pos+1, bv)
		e.pushRef2D([4]int{rowx, rowx, colx, colx}, [4]bool{rowRel, rowRel, colRel, colRel}, optype)
	case 0x05: // tArea
		box, rel := cellRangeAddr(data, pos+1, bv)
		e.pushRef2D(box, rel, optype)
	case 0x06, 0x07, 0x08, 0x09, 0x0E, 0x0F:
		// tMem* tokens only describe the subexpression that follows.
	case 0x0A, 0x0B, 0x1C, 0x1D: // tRefErr, tAreaErr, tRefErr3d, tAreaErr3d
		e.anyErr = true
		e.push(newOperand(oERR, 0x17, leafRank, "#REF!"))
	case 0x0C, 0x0D:
		return 0, e.fail("relative token 0x%02x is not allowed in a NAME formula", data[pos])
	case 0x19: // tNameX
		if err := e.nameX(data, pos); err != nil {
			return 0, err
		}
	case 0x1A, 0x1B: // tRef3d, tArea3d
		e.ref3D(data, pos, opcode, optype)
	default:
		return 0, e.fail("unexpected token 0x%02x", data[pos])
	}
	return sz, nil
}

// call pops nargs arguments and pushes the function call built from them.
// An empty name takes the name from the first argument.
func (e *nameEvaluator) call(name string, nargs int) error {
	if nargs > len(e.stack) {
		return e.fail("function %s needs %d arguments, stack holds %d", name, nargs, len(e.stack))
	}
	args := e.stack[len(e.stack)-nargs:]
	e.stack = e.stack[:len(e.stack)-nargs]
	texts := make([]string, 0, len(args))
	for _, a := range args {
		texts = append(texts, a.Text)
	}
	if name == "" {
		if len(texts) == 0 {
			return e.fail("user-defined function call without a name")
		}
		name, texts = texts[0], texts[1:]
	}
	e.push(newOperand(oUNK, nil, funcRank, name+"("+strings.Join(texts, ",")+")"))
	return nil
}

func (e *nameEvaluator) pushName(tgtx int) error {
	names := e.b.NameObjList
	if tgtx < 0 || tgtx >= len(names) {
		return e.fail("tName index %d out of range", tgtx+1)
	}
	tgt := names[tgtx]
	if tgt.Macro == 0 && tgt.Binary == 0 {
		e.b.evaluateNameFormula(tgt, e.level+1)
	}
	if tgt.Macro != 0 || tgt.Binary != 0 || tgt.AnyErr {
		e.anyErr = true
		e.push(newOperand(oUNK, nil, leafRank, tgt.Name))
		return nil
	}
	e.anyRel = e.anyRel || tgt.AnyRel
	e.anyExternal = e.anyExternal || tgt.AnyExternal
	if tgt.Result == nil {
		e.push(newOperand(oUNK, nil, leafRank, tgt.Name))
		return nil
	}
	e.push(newOperand(tgt.Result.Kind, tgt.Result.Value, leafRank, tgt.Name))
	return nil
}

// nameX resolves a reference to a name that may live in another book or
// in an add-in.
func (e *nameEvaluator) nameX(data []byte, pos int) error {
	b := e.b
	if b.BiffVersion >= 80 {
		refx := int(binary.LittleEndian.Uint16(data[pos+1:]))
		tgtx := int(binary.LittleEndian.Uint16(data[pos+3:])) - 1
		if refx >= len(b.externsheetInfo) {
			return e.fail("tNameX EXTERNSHEET index %d out of range", refx)
		}
		recx := b.externsheetInfo[refx][0]
		switch {
		case recx == b.supbookAddinsInx && recx >= 0:
			name := fmt.Sprintf("<<add-in function #%d>>", tgtx+1)
			if tgtx >= 0 && tgtx < len(b.addinFuncNames) {
				name = b.addinFuncNames[tgtx]
			}
			e.push(newOperand(oUNK, nil, funcRank, name))
			return nil
		case recx != b.supbookLocalsInx:
			e.anyExternal = true
			e.push(newOperand(oUNK, nil, leafRank,
				fmt.Sprintf("<<Name #%d in external(?) file #%d>>", tgtx+1, recx)))
			return nil
		}
		return e.pushName(tgtx)
	}
	refx := int(int16(binary.LittleEndian.Uint16(data[pos+1:])))
	tgtx := int(binary.LittleEndian.Uint16(data[pos+11:])) - 1
	if refx < 0 {
		return e.pushName(tgtx)
	}
	e.anyExternal = true
	e.push(newOperand(oUNK, nil, leafRank,
		fmt.Sprintf("<<Name #%d in external(?) file #%d>>", tgtx+1, refx)))
	return nil
}

// pushRef2D pushes a reference to the sheet the name is used on.
func (e *nameEvaluator) pushRef2D(box [4]int, rel [4]bool, optype int) {
	e.anyRel = true
	coords := []int{0, 1, box[0], box[1] + 1, box[2], box[3] + 1}
	flags := []int{1, 1, boolInt(rel[0]), boolInt(rel[1]), boolInt(rel[2]), boolInt(rel[3])}
	ref := NewRef3D(append(coords, flags...))
	text := rangeName2DRel(ref)
	if optype != 1 {
		e.push(newOperand(oUNK, nil, leafRank, text))
		return
	}
	e.push(newOperand(oREL, []*Ref3D{ref}, leafRank, text))
}

// ref3D handles tRef3d and tArea3d.
func (e *nameEvaluator) ref3D(data []byte, pos, opcode, optype int) {
	b := e.b
	bv := b.BiffVersion
	var shx1, shx2, addr int
	if bv >= 80 {
		refx := int(binary.LittleEndian.Uint16(data[pos+1:]))
		shx1, shx2 = b.externsheetLocalRange(refx)
		addr = pos + 3
	} else {
		raw := int(int16(binary.LittleEndian.Uint16(data[pos+1:])))
		first := int(int16(binary.LittleEndian.Uint16(data[pos+11:])))
		last := int(int16(binary.LittleEndian.Uint16(data[pos+13:])))
		shx1, shx2 = b.externsheetLocalRangeB57(raw, first, last)
		addr = pos + 15
	}
	var box [4]int
	var rel [4]bool
	if opcode == 0x1A {
		rowx, colx, rowRel, colRel := cellAddr(data, addr, bv)
		box = [4]int{rowx, rowx, colx, colx}
		rel = [4]bool{rowRel, rowRel, colRel, colRel}
	} else {
		box, rel = cellRangeAddr(data, addr, bv)
	}
	coords := []int{shx1, shx2 + 1, box[0], box[1] + 1, box[2], box[3] + 1}
	if shx1 < -1 {
		e.anyErr = true
	}
	if shx1 == -4 {
		e.anyExternal = true
	}
	anyRel := rel[0] || rel[1] || rel[2] || rel[3]
	res := newOperand(oREF, nil, leafRank, "")
	if anyRel {
		e.anyRel = true
		flags := []int{0, 0, boolInt(rel[0]), boolInt(rel[1]), boolInt(rel[2]), boolInt(rel[3])}
		ref := NewRef3D(append(coords, flags...))
		res.Kind = oREL
		res.Text = rangeName3DRel(b, ref)
		if optype == 1 {
			res.Value = []*Ref3D{ref}
		}
	} else {
		ref := NewRef3D(coords)
		res.Text = RangeName3D(b, ref)
		if optype == 1 {
			res.Value = []*Ref3D{ref}
		}
	}
	e.push(res)
}

// Colname returns the column letters for colx: 0 is "A", 26 is "AA".
func Colname(colx int) string {
	if colx < 0 {
		return "?"
	}
	var buf []byte
	for n := colx + 1; n > 0; n = (n - 1) / 26 {
		buf = append([]byte{byte('A' + (n-1)%26)}, buf...)
	}
	return string(buf)
}

// CellName returns the A1-style name of a cell, e.g. (5, 7) is "H6".
func CellName(rowx, colx int) string {
	return Colname(colx) + strconv.Itoa(rowx+1)
}

// CellNameAbs returns the absolute name of a cell: "$H$6", or "R6C8" when
// r1c1 is set.
func CellNameAbs(rowx, colx int, r1c1 bool) string {
	if r1c1 {
		return fmt.Sprintf("R%dC%d", rowx+1, colx+1)
	}
	return fmt.Sprintf("$%s$%d", Colname(colx), rowx+1)
}

// RangeName2D names the box rows [rlo, rhi) by columns [clo, chi).
func RangeName2D(rlo, rhi, clo, chi int, r1c1 bool) string {
	if r1c1 {
		return fmt.Sprintf("R%dC%d:R%dC%d", rlo+1, clo+1, rhi, chi)
	}
	if rhi == rlo+1 && chi == clo+1 {
		return CellNameAbs(rlo, clo, false)
	}
	return CellNameAbs(rlo, clo, false) + ":" + CellNameAbs(rhi-1, chi-1, false)
}

var specialSheetNames = map[int]string{
	-1: "?internal; any sheet?",
	-2: "internal; deleted sheet",
	-3: "internal; macro sheet",
	-4: "<<external>>",
}

// QuotedSheetName returns the name of sheet shx as it appears in a
// formula, or a description for a negative index.
func QuotedSheetName(shnames []string, shx int) string {
	var name string
	switch {
	case shx >= 0 && shx < len(shnames):
		name = shnames[shx]
	case shx < 0:
		var ok bool
		if name, ok = specialSheetNames[shx]; !ok {
			name = fmt.Sprintf("?error %d?", shx)
		}
	default:
		name = fmt.Sprintf("?error %d?", shx)
	}
	if strings.Contains(name, "'") {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	if strings.Contains(name, " ") {
		return "'" + name + "'"
	}
	return name
}

func sheetRange(b *Book, slo, shi int) string {
	shdesc := QuotedSheetName(b.sheetNames, slo)
	if slo != shi-1 {
		shdesc += ":" + QuotedSheetName(b.sheetNames, shi-1)
	}
	return shdesc
}

// RangeName3D names an absolute 3D reference, e.g. "Sheet1!$A$1:$B$2".
func RangeName3D(b *Book, r *Ref3D) string {
	return sheetRange(b, r.ShtXLo, r.ShtXHi) + "!" +
		RangeName2D(r.RowXLo, r.RowXHi, r.ColXLo, r.ColXHi, false)
}

// rowNameRel and colNameRel write one coordinate in R1C1 notation, with
// relative coordinates as bracketed offsets.
func rowNameRel(rowx int, rel bool) string {
	switch {
	case !rel:
		return fmt.Sprintf("R%d", rowx+1)
	case rowx == 0:
		return "R"
	}
	return fmt.Sprintf("R[%d]", rowx)
}

func colNameRel(colx int, rel bool) string {
	switch {
	case !rel:
		return fmt.Sprintf("C%d", colx+1)
	case colx == 0:
		return "C"
	}
	return fmt.Sprintf("C[%d]", colx)
}

func rangeName2DRel(r *Ref3D) string {
	f := r.RelFlags
	lo := rowNameRel(r.RowXLo, f[2] != 0) + colNameRel(r.ColXLo, f[4] != 0)
	hi := rowNameRel(r.RowXHi-1, f[3] != 0) + colNameRel(r.ColXHi-1, f[5] != 0)
	if lo == hi {
		return lo
	}
	return lo + ":" + hi
}

func rangeName3DRel(b *Book, r *Ref3D) string {
	if r.RelFlags[0] != 0 || r.RelFlags[1] != 0 {
		return rangeName2DRel(r)
	}
	return sheetRange(b, r.ShtXLo, r.ShtXHi) + "!" + rangeName2DRel(r)
}
