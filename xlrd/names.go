package xlrd

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Name represents information relating to a named reference, formula, macro, etc.
//
// Note: Name information is not extracted from files older than Excel 5.0 (Book.BiffVersion < 50)
type Name struct {
	Book *Book

	// Hidden: 0 = Visible; 1 = Hidden
	Hidden int

	// Func: 0 = Command macro; 1 = Function macro. Relevant only if Macro == 1
	Func int

	// VBasic: 0 = Sheet macro; 1 = VisualBasic macro. Relevant only if Macro == 1
	VBasic int

	// Macro: 0 = Standard name; 1 = Macro name
	Macro int

	// Complex: 0 = Simple formula; 1 = Complex formula (array formula or user defined).
	Complex int

	// Builtin: 0 = User-defined name; 1 = Built-in name (Print_Area, Auto_Open, ...)
	Builtin int

	// FuncGroup is the function group, relevant only if Macro == 1.
	FuncGroup int

	// Binary: 0 = Formula definition; 1 = Binary data
	Binary int

	// NameIndex is the index of this object in Book.NameObjList.
	NameIndex int

	// Name is the name of the object. Built-in names are translated to
	// their English text, e.g. "Print_Area".
	Name string

	// RawFormula is the formula token array as stored in the NAME record.
	RawFormula []byte

	// BasicFormulaLen is the length of the token array proper; constants
	// of array tokens follow it in RawFormula.
	BasicFormulaLen int

	// Scope is -1 for a book-wide name and the sheet index for a local
	// name. -2 marks a macro sheet, VBA module or unknown BIFF5-7 sheet
	// name, -3 a bad sheet index and -4 an unresolved BIFF5-7 external
	// sheet number.
	Scope int

	// ExtnSheetNum and ExcelSheetIndex are the raw scope fields.
	ExtnSheetNum    int
	ExcelSheetIndex int

	OptionFlags int

	// Result is the evaluated formula, nil when it could not be evaluated.
	Result *Operand

	Evaluated   bool
	AnyRel      bool
	AnyErr      bool
	AnyExternal bool

	evaluating bool
}

// NameScope keys Book.NameAndScopeMap.
type NameScope struct {
	Name  string
	Scope int
}

type supbook struct {
	kind       int
	url        string
	sheetNames []string
}

var builtinNameFromCode = map[string]string{
	"\x00": "Consolidate_Area",
	"\x01": "Auto_Open",
	"\x02": "Auto_Close",
	"\x03": "Extract",
	"\x04": "Database",
	"\x05": "Criteria",
	"\x06": "Print_Area",
	"\x07": "Print_Titles",
	"\x08": "Recorder",
	"\x09": "Data_Form",
	"\x0A": "Auto_Activate",
	"\x0B": "Auto_Deactivate",
	"\x0C": "Sheet_Title",
	"\x0D": "_FilterDatabase",
}

func (n *Name) String() string {
	return fmt.Sprintf("Name(%d, %q, scope=%d)", n.NameIndex, n.Name, n.Scope)
}

// Cell returns the cell a name refers to when the name is a constant
// absolute reference to a single cell on a worksheet of this book.
func (n *Name) Cell() (*Cell, error) {
	ref, err := n.singleRef()
	if err != nil {
		return nil, err
	}
	if ref.RowXHi != ref.RowXLo+1 || ref.ColXHi != ref.ColXLo+1 {
		return nil, ErrNameNotReference.New(n.Name, "refers to more than one cell")
	}
	sh, err := n.Book.SheetByIndex(ref.ShtXLo)
	if err != nil {
		return nil, err
	}
	return sh.Cell(ref.RowXLo, ref.ColXLo)
}

// Area2D returns the sheet and box (rows [rlo, rhi), columns [clo, chi))
// a name refers to when it is a constant absolute reference to one box on
// one worksheet. With clipped set the box is limited to the cells the
// sheet actually holds.
func (n *Name) Area2D(clipped bool) (sh *Sheet, rlo, rhi, clo, chi int, err error) {
	ref, err := n.singleRef()
	if err != nil {
		return nil, 0, 0, 0, 0, err
	}
	sh, err = n.Book.SheetByIndex(ref.ShtXLo)
	if err != nil {
		return nil, 0, 0, 0, 0, err
	}
	rlo, rhi, clo, chi = ref.RowXLo, ref.RowXHi, ref.ColXLo, ref.ColXHi
	if clipped {
		rhi = minInt(rhi, sh.NRows)
		chi = minInt(chi, sh.NCols)
		rlo = minInt(rlo, rhi)
		clo = minInt(clo, chi)
	}
	return sh, rlo, rhi, clo, chi, nil
}

func (n *Name) singleRef() (*Ref3D, error) {
	res := n.Result
	if res == nil || res.Kind != oREF {
		return nil, ErrNameNotReference.New(n.Name, "is not a constant absolute reference")
	}
	refs := res.Refs()
	if len(refs) != 1 {
		return nil, ErrNameNotReference.New(n.Name, "does not refer to exactly one area")
	}
	ref := refs[0]
	if ref.ShtXLo < 0 || ref.ShtXHi != ref.ShtXLo+1 {
		return nil, ErrNameNotReference.New(n.Name, "does not refer to exactly one worksheet of this book")
	}
	return ref, nil
}

func (b *Book) handleName(data []byte) error {
	bv := b.BiffVersion
	if bv < 50 {
		return nil
	}
	if len(data) < 14 {
		return ErrCorrupt.New(fmt.Sprintf("NAME record of %d bytes", len(data)))
	}
	flags := int(binary.LittleEndian.Uint16(data[0:]))
	nameLen := int(data[3])
	fmlaLen := int(binary.LittleEndian.Uint16(data[4:]))
	n := &Name{
		Book:            b,
		NameIndex:       len(b.NameObjList),
		OptionFlags:     flags,
		Hidden:          flags & 0x0001,
		Func:            (flags & 0x0002) >> 1,
		VBasic:          (flags & 0x0004) >> 2,
		Macro:           (flags & 0x0008) >> 3,
		Complex:         (flags & 0x0010) >> 4,
		Builtin:         (flags & 0x0020) >> 5,
		FuncGroup:       (flags & 0x0FC0) >> 6,
		Binary:          (flags & 0x1000) >> 12,
		ExtnSheetNum:    int(binary.LittleEndian.Uint16(data[6:])),
		ExcelSheetIndex: int(binary.LittleEndian.Uint16(data[8:])),
		BasicFormulaLen: fmlaLen,
	}
	var internal string
	var pos int
	var err error
	if bv < 80 {
		internal, pos, err = UnpackStringUpdatePos(data, 14, b.Encoding, 1, &nameLen)
	} else {
		internal, pos, err = UnpackUnicodeUpdatePos(data, 14, 2, &nameLen)
	}
	if err != nil {
		return err
	}
	n.Name = internal
	if n.Builtin != 0 {
		if s, ok := builtinNameFromCode[internal]; ok {
			n.Name = s
		} else {
			n.Name = "??Unknown??"
		}
	}
	n.RawFormula = append([]byte(nil), data[pos:]...)
	b.NameObjList = append(b.NameObjList, n)
	b.log.WithFields(logrus.Fields{
		"namex": n.NameIndex,
		"name":  n.Name,
		"flags": fmt.Sprintf("0x%04x", flags),
	}).Debug("NAME")
	return nil
}

func (b *Book) handleExternsheet(data []byte) error {
	if b.BiffVersion >= 80 {
		if len(data) < 2 {
			return ErrCorrupt.New("EXTERNSHEET record too short")
		}
		numRefs := int(binary.LittleEndian.Uint16(data))
		buf := data
		for len(buf) < 2+numRefs*6 {
			more, ok, err := b.cursor.nextIf(XL_CONTINUE)
			if err != nil {
				return err
			}
			if !ok {
				return ErrCorrupt.New("Missing CONTINUE after EXTERNSHEET record")
			}
			buf = append(append([]byte(nil), buf...), more...)
		}
		pos := 2
		for k := 0; k < numRefs; k++ {
			b.externsheetInfo = append(b.externsheetInfo, [3]int{
				int(binary.LittleEndian.Uint16(buf[pos:])),
				int(binary.LittleEndian.Uint16(buf[pos+2:])),
				int(binary.LittleEndian.Uint16(buf[pos+4:])),
			})
			pos += 6
		}
		return nil
	}

	b.extnshtCount++
	if len(data) < 2 {
		b.externsheetTypeB57 = append(b.externsheetTypeB57, 0)
		return nil
	}
	nc, ty := int(data[0]), int(data[1])
	if ty == 3 && 2+nc <= len(data) {
		if b.extnshtNameFromNum == nil {
			b.extnshtNameFromNum = make(map[int]string)
		}
		b.extnshtNameFromNum[b.extnshtCount] = decodeText(data[2:2+nc], b.Encoding)
	}
	if ty < 1 || ty > 4 {
		ty = 0
	}
	b.externsheetTypeB57 = append(b.externsheetTypeB57, ty)
	return nil
}

func (b *Book) handleSupbook(data []byte) error {
	sb := &supbook{kind: supbookUnk}
	b.supbooks = append(b.supbooks, sb)
	sbx := len(b.supbooks) - 1
	if len(data) < 4 {
		b.log.WithField("size", len(data)).Warn("short SUPBOOK record")
		return nil
	}
	numSheets := int(binary.LittleEndian.Uint16(data))
	switch {
	case data[2] == 0x01 && data[3] == 0x04:
		sb.kind = supbookInternal
		b.supbookLocalsInx = sbx
		return nil
	case data[0] == 0x01 && data[1] == 0x00 && data[2] == 0x01 && data[3] == 0x3A:
		sb.kind = supbookAddin
		b.supbookAddinsInx = sbx
		return nil
	}
	url, pos, err := UnpackUnicodeUpdatePos(data, 2, 2, nil)
	if err != nil {
		b.log.WithField("cause", err.Error()).Warn("unreadable SUPBOOK URL")
		return nil
	}
	sb.url = url
	if numSheets == 0 {
		sb.kind = supbookDDEOLE
		return nil
	}
	sb.kind = supbookExternal
	for x := 0; x < numSheets; x++ {
		name, next, err := UnpackUnicodeUpdatePos(data, pos, 2, nil)
		if err != nil {
			b.log.WithFields(logrus.Fields{
				"sheet": x,
				"cause": err.Error(),
			}).Warn("SUPBOOK sheet names truncated")
			break
		}
		sb.sheetNames = append(sb.sheetNames, name)
		pos = next
	}
	return nil
}

func (b *Book) handleExternname(data []byte) error {
	if b.BiffVersion < 80 || len(b.supbooks) == 0 {
		return nil
	}
	if len(data) < 6 {
		return nil
	}
	name, _, err := UnpackUnicodeUpdatePos(data, 6, 1, nil)
	if err != nil {
		b.log.WithField("cause", err.Error()).Warn("unreadable EXTERNNAME record")
		return nil
	}
	if b.supbooks[len(b.supbooks)-1].kind == supbookAddin {
		b.addinFuncNames = append(b.addinFuncNames, name)
	}
	return nil
}

// namesEpilogue resolves the scope of every name, evaluates the formulas
// of the standard ones and builds the lookup maps.
func (b *Book) namesEpilogue() {
	b.nameMap = make(map[string][]*Name)
	b.nameAndScopeMap = make(map[NameScope]*Name)
	for _, n := range b.NameObjList {
		n.Scope = b.nameScope(n)
	}
	for _, n := range b.NameObjList {
		if n.Macro != 0 || n.Binary != 0 {
			continue
		}
		b.evaluateNameFormula(n, 0)
	}
	for _, n := range b.NameObjList {
		lower := strings.ToLower(n.Name)
		key := NameScope{Name: lower, Scope: n.Scope}
		if _, dup := b.nameAndScopeMap[key]; dup {
			b.log.WithFields(logrus.Fields{
				"name":  n.Name,
				"scope": n.Scope,
			}).Info("duplicate name and scope")
		}
		b.nameAndScopeMap[key] = n
		b.nameMap[lower] = append(b.nameMap[lower], n)
	}
	for _, list := range b.nameMap {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Scope != list[j].Scope {
				return list[i].Scope < list[j].Scope
			}
			return list[i].NameIndex < list[j].NameIndex
		})
	}
}

func (b *Book) nameScope(n *Name) int {
	if b.BiffVersion >= 80 {
		sheetx := n.ExcelSheetIndex
		switch {
		case sheetx == 0:
			return -1
		case sheetx <= len(b.allSheetsMap):
			if scope := b.allSheetsMap[sheetx-1]; scope >= 0 {
				return scope
			}
			return -2
		}
		return -3
	}
	if n.ExtnSheetNum == 0 {
		return -1
	}
	sheetName, ok := b.extnshtNameFromNum[n.ExtnSheetNum]
	if !ok {
		return -4
	}
	if sheetx := b.sheetIndex(sheetName); sheetx >= 0 {
		return sheetx
	}
	return -2
}
