package xlrd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Special sector ids found in allocation tables.
const (
	FREESID = -1 // unused sector
	EOCSID  = -2 // end of chain
	SATSID  = -3 // sector holds part of the SAT
	MSATSID = -4 // sector holds part of the MSAT
	EVILSID = -5 // MSAT slot dropped because it points outside the file
)

// Directory entry types.
const (
	DirEmpty   = 0
	DirStorage = 1
	DirStream  = 2
	DirRoot    = 5
)

const (
	compDocHeaderSize = 512
	dirEntrySize      = 128
	msatInlineEntries = 109
	defaultMinStdSize = 0x1000
)

// sector owners recorded in CompDoc.seen and CompDoc.shortSeen
const (
	ownerNone = iota
	ownerMSATX
	ownerSAT
	ownerDirectory
	ownerSSCS
	ownerSSAT
	ownerStreamBase
)

// DirNode is one 128-byte directory entry. Tree links are indices into
// CompDoc.Dirlist, never pointers.
type DirNode struct {
	DID      int
	Name     string
	EType    int
	Colour   int
	LeftDID  int
	RightDID int
	RootDID  int
	FirstSID int
	TotSize  int

	// Parent is -1 for the root and for entries unreachable from it.
	Parent   int
	Children []int
}

func newDirNode(did int, dent []byte, log logrus.FieldLogger) *DirNode {
	d := &DirNode{
		DID:      did,
		EType:    int(dent[66]),
		Colour:   int(dent[67]),
		LeftDID:  int(int32(binary.LittleEndian.Uint32(dent[68:]))),
		RightDID: int(int32(binary.LittleEndian.Uint32(dent[72:]))),
		RootDID:  int(int32(binary.LittleEndian.Uint32(dent[76:]))),
		FirstSID: int(int32(binary.LittleEndian.Uint32(dent[116:]))),
		TotSize:  int(binary.LittleEndian.Uint32(dent[120:])),
		Parent:   -1,
	}
	cbufsize := int(binary.LittleEndian.Uint16(dent[64:]))
	if cbufsize > 64 || cbufsize%2 != 0 {
		log.WithFields(logrus.Fields{"did": did, "size": cbufsize}).
			Warn("directory entry name size out of range; clamped")
		if cbufsize > 64 {
			cbufsize = 64
		}
		cbufsize &^= 1
	}
	if cbufsize >= 2 {
		// omit the trailing U+0000
		d.Name = utf16le(dent[:cbufsize-2])
	}
	return d
}

// CompDocOptions configures NewCompDoc.
type CompDocOptions struct {
	// Logger receives warnings about recoverable anomalies.
	Logger logrus.FieldLogger

	// IgnoreWorkbookCorruption allows a stream sector to be shared with
	// another stream. Structural tables (MSAT, SAT, SSAT, directory) are
	// always checked.
	IgnoreWorkbookCorruption bool

	// LenientMSAT drops MSAT entries and extension sectors that point
	// outside the file, with a warning, instead of failing.
	LenientMSAT bool
}

// CompDoc is a parsed OLE2 compound document.
type CompDoc struct {
	// Mem is the raw contents of the file.
	Mem []byte

	Revision         int
	Version          int
	SecSize          int
	ShortSecSize     int
	MinSizeStdStream int

	// SAT and SSAT map a sector id to the next sector of its chain.
	SAT  []int
	SSAT []int

	// SSCS is the short-sector container stream held by the root entry.
	SSCS []byte

	Dirlist []*DirNode

	log         logrus.FieldLogger
	opts        CompDocOptions
	memDataSecs int
	seen        []int
	shortSeen   []int
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

// NewCompDoc parses the header, allocation tables and directory of an OLE2
// compound document held in mem.
func NewCompDoc(mem []byte, opts *CompDocOptions) (*CompDoc, error) {
	if opts == nil {
		opts = &CompDocOptions{}
	}
	cd := &CompDoc{Mem: mem, opts: *opts, log: opts.Logger}
	if cd.log == nil {
		cd.log = discardLogger()
	}

	if len(mem) < len(XLS_SIGNATURE) || !bytes.Equal(mem[:len(XLS_SIGNATURE)], XLS_SIGNATURE) {
		return nil, ErrFormat.New("not an OLE2 compound document")
	}
	if len(mem) < compDocHeaderSize {
		return nil, ErrFormat.New("OLE2 header truncated")
	}
	if mem[28] != 0xFE || mem[29] != 0xFF {
		return nil, ErrFormat.New("expected little-endian byte order marker in OLE2 header")
	}
	cd.Revision = int(binary.LittleEndian.Uint16(mem[24:]))
	cd.Version = int(binary.LittleEndian.Uint16(mem[26:]))

	ssz := int(binary.LittleEndian.Uint16(mem[30:]))
	sssz := int(binary.LittleEndian.Uint16(mem[32:]))
	if ssz < 7 || ssz > 20 {
		cd.log.WithField("shift", ssz).Warn("OLE2 sector size shift out of range; assuming 9")
		ssz = 9
	}
	if sssz > ssz {
		cd.log.WithField("shift", sssz).Warn("OLE2 short sector size shift larger than sector shift; assuming 6")
		sssz = 6
	}
	cd.SecSize = 1 << uint(ssz)
	cd.ShortSecSize = 1 << uint(sssz)

	i32 := func(off int) int { return int(int32(binary.LittleEndian.Uint32(mem[off:]))) }
	satTotSecs := i32(44)
	dirFirstSecSID := i32(48)
	cd.MinSizeStdStream = i32(56)
	ssatFirstSecSID := i32(60)
	ssatTotSecs := i32(64)
	msatxFirstSecSID := i32(68)
	msatxTotSecs := i32(72)

	if cd.MinSizeStdStream <= 0 {
		cd.log.WithField("size", cd.MinSizeStdStream).Warn("OLE2 standard stream cutoff invalid; assuming 4096")
		cd.MinSizeStdStream = defaultMinStdSize
	}

	memDataLen := len(mem) - compDocHeaderSize
	cd.memDataSecs = memDataLen / cd.SecSize
	if memDataLen%cd.SecSize != 0 {
		cd.memDataSecs++
		cd.log.WithFields(logrus.Fields{
			"size":      len(mem),
			"remainder": memDataLen % cd.SecSize,
		}).Warn("file size is not a whole number of sectors")
	}
	cd.seen = make([]int, cd.memDataSecs)

	msat, err := cd.readMSAT(msatxFirstSecSID, msatxTotSecs)
	if err != nil {
		return nil, err
	}
	if err := cd.readSAT(msat, satTotSecs); err != nil {
		return nil, err
	}

	dmem, dbase, dsize, err := cd.getStream(mem, compDocHeaderSize, cd.SAT, cd.SecSize,
		dirFirstSecSID, -1, "directory", cd.seen, ownerDirectory)
	if err != nil {
		return nil, err
	}
	dbytes := dmem[dbase : dbase+dsize]
	for pos := 0; pos+dirEntrySize <= len(dbytes); pos += dirEntrySize {
		cd.Dirlist = append(cd.Dirlist, newDirNode(len(cd.Dirlist), dbytes[pos:pos+dirEntrySize], cd.log))
	}
	if len(cd.Dirlist) == 0 || cd.Dirlist[0].EType != DirRoot {
		return nil, ErrCorrupt.New("OLE2 directory has no root entry")
	}
	if err := cd.buildFamilyTree(); err != nil {
		return nil, err
	}

	if err := cd.readShortSectors(ssatFirstSecSID, ssatTotSecs); err != nil {
		return nil, err
	}
	return cd, nil
}

// sector returns the bytes of a standard sector, or false if the file ends
// before the sector does.
func (cd *CompDoc) sector(sid int) ([]byte, bool) {
	start := compDocHeaderSize + sid*cd.SecSize
	end := start + cd.SecSize
	if sid < 0 || end > len(cd.Mem) {
		return nil, false
	}
	return cd.Mem[start:end], true
}

// claim records owner for sector sid in seen. A stream may claim its own
// sectors again when it is read twice; loops inside one chain are caught
// by the callers.
func (cd *CompDoc) claim(seen []int, sid, owner int, strict bool) error {
	prev := seen[sid]
	if prev == ownerNone || prev == owner {
		seen[sid] = owner
		return nil
	}
	if !strict && cd.opts.IgnoreWorkbookCorruption {
		cd.log.WithFields(logrus.Fields{
			"sector": sid,
			"first":  ownerName(prev),
			"second": ownerName(owner),
		}).Warn("sector shared by two streams; corruption ignored")
		return nil
	}
	return ErrCorrupt.New(fmt.Sprintf("sector %d claimed by %s and %s", sid, ownerName(prev), ownerName(owner)))
}

func ownerName(owner int) string {
	switch owner {
	case ownerMSATX:
		return "MSAT"
	case ownerSAT:
		return "SAT"
	case ownerDirectory:
		return "directory"
	case ownerSSCS:
		return "short-sector container"
	case ownerSSAT:
		return "SSAT"
	}
	return fmt.Sprintf("stream #%d", owner-ownerStreamBase)
}

func unpackSIDs(sec []byte) []int {
	out := make([]int, len(sec)/4)
	for i := range out {
		out[i] = int(int32(binary.LittleEndian.Uint32(sec[4*i:])))
	}
	return out
}

func (cd *CompDoc) readMSAT(firstSID, totSecs int) ([]int, error) {
	msat := unpackSIDs(cd.Mem[76:compDocHeaderSize])

	sid := firstSID
	if totSecs == 0 && (sid == EOCSID || sid == FREESID || sid == 0) {
		// some producers leave zero here when there is no extension
		sid = EOCSID
	}
	found := 0
	visited := make(map[int]bool)
	for sid != EOCSID && sid != FREESID && sid != MSATSID {
		if sid < 0 {
			return nil, ErrCorrupt.New(fmt.Sprintf("MSAT extension: invalid sector id %d", sid))
		}
		if visited[sid] {
			return nil, ErrCorrupt.New(fmt.Sprintf("MSAT extension: chain revisits sector %d", sid))
		}
		visited[sid] = true
		sec, ok := cd.sector(sid)
		if !ok {
			if cd.opts.LenientMSAT {
				cd.log.WithFields(logrus.Fields{
					"sector":  sid,
					"sectors": cd.memDataSecs,
				}).Warn("MSAT extension points past end of file; remaining extension dropped")
				break
			}
			return nil, ErrCorrupt.New(fmt.Sprintf("MSAT extension: accessing sector %d but only %d in file", sid, cd.memDataSecs))
		}
		if err := cd.claim(cd.seen, sid, ownerMSATX, true); err != nil {
			return nil, err
		}
		found++
		ids := unpackSIDs(sec)
		msat = append(msat, ids[:len(ids)-1]...)
		// last slot links to the next extension sector
		sid = ids[len(ids)-1]
	}
	if found != totSecs {
		cd.log.WithFields(logrus.Fields{
			"expected": totSecs,
			"found":    found,
		}).Warn("MSAT extension sector count differs from header")
	}
	return msat, nil
}

func (cd *CompDoc) readSAT(msat []int, totSecs int) error {
	truncWarned := false
	found := 0
	listed := make(map[int]bool)
	for i, msid := range msat {
		if msid == FREESID || msid == EOCSID {
			// trailing padding, tolerated anywhere
			continue
		}
		if msid < EOCSID {
			return ErrCorrupt.New(fmt.Sprintf("MSAT: invalid sector id %d", msid))
		}
		sec, ok := cd.sector(msid)
		if !ok {
			if !cd.opts.LenientMSAT {
				return ErrCorrupt.New(fmt.Sprintf("MSAT entry %d: accessing sector %d but only %d in file", i, msid, cd.memDataSecs))
			}
			if !truncWarned {
				cd.log.WithFields(logrus.Fields{
					"sector":  msid,
					"sectors": cd.memDataSecs,
				}).Warn("file is truncated, or OLE2 MSAT is corrupt; dropping unreachable SAT sectors")
				truncWarned = true
			}
			msat[i] = EVILSID
			continue
		}
		if listed[msid] {
			return ErrCorrupt.New(fmt.Sprintf("MSAT entry %d: SAT sector %d listed twice", i, msid))
		}
		listed[msid] = true
		if err := cd.claim(cd.seen, msid, ownerSAT, true); err != nil {
			return err
		}
		found++
		cd.SAT = append(cd.SAT, unpackSIDs(sec)...)
	}
	if found != totSecs {
		cd.log.WithFields(logrus.Fields{
			"expected": totSecs,
			"found":    found,
		}).Warn("SAT sector count differs from header")
	}
	return nil
}

func (cd *CompDoc) readShortSectors(ssatFirstSID, ssatTotSecs int) error {
	root := cd.Dirlist[0]
	if root.FirstSID >= 0 && root.TotSize > 0 {
		mem, base, size, err := cd.getStream(cd.Mem, compDocHeaderSize, cd.SAT, cd.SecSize,
			root.FirstSID, root.TotSize, "SSCS", cd.seen, ownerSSCS)
		if err != nil {
			return err
		}
		cd.SSCS = mem[base : base+size]
		cd.shortSeen = make([]int, (size+cd.ShortSecSize-1)/cd.ShortSecSize)
	}
	if ssatTotSecs > 0 && root.TotSize == 0 {
		cd.log.Warn("OLE2 inconsistency: SSCS size is 0 but SSAT size is non-zero")
	}
	if root.TotSize == 0 {
		return nil
	}
	sid := ssatFirstSID
	nsecs := ssatTotSecs
	visited := make(map[int]bool)
	for sid >= 0 && nsecs > 0 {
		sec, ok := cd.sector(sid)
		if !ok || sid >= len(cd.SAT) {
			return ErrCorrupt.New(fmt.Sprintf("SSAT: accessing sector %d but only %d in file", sid, cd.memDataSecs))
		}
		if visited[sid] {
			return ErrCorrupt.New(fmt.Sprintf("SSAT: chain revisits sector %d", sid))
		}
		visited[sid] = true
		if err := cd.claim(cd.seen, sid, ownerSSAT, true); err != nil {
			return err
		}
		nsecs--
		cd.SSAT = append(cd.SSAT, unpackSIDs(sec)...)
		sid = cd.SAT[sid]
	}
	if nsecs != 0 || sid != EOCSID {
		return ErrCorrupt.New(fmt.Sprintf("SSAT chain inconsistent: %d sectors missing, ended at %d", nsecs, sid))
	}
	return nil
}

// buildFamilyTree links every directory entry to its parent storage. Each
// storage's children form a binary tree of siblings that is walked in order
// with an explicit stack.
func (cd *CompDoc) buildFamilyTree() error {
	dl := cd.Dirlist
	reached := make([]bool, len(dl))
	reached[0] = true
	storages := []int{0}
	for len(storages) > 0 {
		parent := storages[len(storages)-1]
		storages = storages[:len(storages)-1]

		var stack []int
		cur := dl[parent].RootDID
		for cur >= 0 || len(stack) > 0 {
			for cur >= 0 {
				if cur >= len(dl) {
					return ErrCorrupt.New(fmt.Sprintf("directory entry %d links to missing entry %d", parent, cur))
				}
				if reached[cur] {
					return ErrCorrupt.New(fmt.Sprintf("directory cycle at entry %d", cur))
				}
				reached[cur] = true
				stack = append(stack, cur)
				cur = dl[cur].LeftDID
			}
			cur = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			dl[parent].Children = append(dl[parent].Children, cur)
			dl[cur].Parent = parent
			if dl[cur].EType == DirStorage {
				storages = append(storages, cur)
			}
			cur = dl[cur].RightDID
		}
	}
	return nil
}

// getStream follows a chain through sat and returns (mem, base, size) such
// that mem[base:base+size] is the stream. When the chain is contiguous mem
// is the source buffer itself. size < 0 reads the whole chain. Every sector
// of the chain is claimed for owner in seen.
func (cd *CompDoc) getStream(mem []byte, base int, sat []int, secSize int,
	startSID, size int, name string, seen []int, owner int) ([]byte, int, int, error) {

	if startSID < 0 {
		if startSID == EOCSID && size <= 0 {
			return mem, 0, 0, nil
		}
		return nil, 0, 0, ErrCorrupt.New(fmt.Sprintf("%s: invalid start sector %d", name, startSID))
	}

	var (
		slices   [][2]int
		startPos = -1
		endPos   = -1
		prev     = -99
		total    = 0
		visited  = make(map[int]bool)
	)
	s := startSID
	for s >= 0 {
		if s >= len(sat) {
			return nil, 0, 0, ErrCorrupt.New(fmt.Sprintf("%s: sector %d is outside the allocation table (%d entries)", name, s, len(sat)))
		}
		pos := base + s*secSize
		if pos >= len(mem) {
			return nil, 0, 0, ErrCorrupt.New(fmt.Sprintf("%s: sector %d is past end of data", name, s))
		}
		if visited[s] {
			return nil, 0, 0, ErrCorrupt.New(fmt.Sprintf("%s: sector chain revisits sector %d", name, s))
		}
		visited[s] = true
		if s >= len(seen) {
			return nil, 0, 0, ErrCorrupt.New(fmt.Sprintf("%s: sector %d is past end of data", name, s))
		}
		if err := cd.claim(seen, s, owner, owner < ownerStreamBase); err != nil {
			return nil, 0, 0, err
		}
		end := pos + secSize
		if end > len(mem) {
			end = len(mem)
		}
		if s == prev+1 {
			endPos = end
		} else {
			if startPos >= 0 {
				slices = append(slices, [2]int{startPos, endPos})
			}
			startPos, endPos = pos, end
		}
		total += end - pos
		prev = s
		s = sat[s]
		if size >= 0 && total >= size && s >= 0 {
			cd.log.WithFields(logrus.Fields{"stream": name, "size": size}).
				Warn("sector chain longer than stream size; extra sectors ignored")
			break
		}
	}
	if s < 0 && s != EOCSID {
		return nil, 0, 0, ErrCorrupt.New(fmt.Sprintf("%s: sector chain ended with %d instead of end-of-chain", name, s))
	}
	if size < 0 {
		size = total
	}
	if total < size {
		return nil, 0, 0, ErrCorrupt.New(fmt.Sprintf("%s: sector chain holds %d bytes, expected %d", name, total, size))
	}
	if len(slices) == 0 {
		return mem, startPos, size, nil
	}
	slices = append(slices, [2]int{startPos, endPos})
	out := make([]byte, 0, total)
	for _, sl := range slices {
		out = append(out, mem[sl[0]:sl[1]]...)
	}
	return out, 0, size, nil
}

func splitStreamPath(qname string) []string {
	var path []string
	for _, seg := range strings.Split(qname, "/") {
		if seg != "" {
			path = append(path, seg)
		}
	}
	return path
}

// dirSearch finds the stream entry named by path. It returns nil when the
// path does not exist.
func (cd *CompDoc) dirSearch(path []string) (*DirNode, error) {
	dl := cd.Dirlist
	did := 0
	for i, head := range path {
		var found *DirNode
		for _, child := range dl[did].Children {
			if strings.EqualFold(dl[child].Name, head) {
				found = dl[child]
				break
			}
		}
		if found == nil {
			return nil, nil
		}
		last := i == len(path)-1
		switch found.EType {
		case DirStream:
			if !last {
				return nil, nil
			}
			return found, nil
		case DirStorage:
			if last {
				return nil, ErrCorrupt.New(fmt.Sprintf("requested component %q is a storage", found.Name))
			}
			did = found.DID
		default:
			return nil, ErrCorrupt.New(fmt.Sprintf("requested stream %q is not a user stream", found.Name))
		}
	}
	return nil, nil
}

// LocateNamedStream looks up a slash-separated, case-insensitive stream
// path and returns (mem, base, size) with the stream at mem[base:base+size].
// A contiguous stream is returned without copying. A missing stream yields
// a nil mem and no error.
func (cd *CompDoc) LocateNamedStream(qname string) ([]byte, int, int, error) {
	d, err := cd.dirSearch(splitStreamPath(qname))
	if err != nil || d == nil {
		return nil, 0, 0, err
	}
	if d.TotSize >= cd.MinSizeStdStream {
		return cd.getStream(cd.Mem, compDocHeaderSize, cd.SAT, cd.SecSize,
			d.FirstSID, d.TotSize, qname, cd.seen, ownerStreamBase+d.DID)
	}
	return cd.getStream(cd.SSCS, 0, cd.SSAT, cd.ShortSecSize,
		d.FirstSID, d.TotSize, qname+" (from SSCS)", cd.shortSeen, ownerStreamBase+d.DID)
}

// Stream returns the contents of the named stream, or nil if it does not
// exist. The result may alias the container buffer and must not be modified.
func (cd *CompDoc) Stream(qname string) ([]byte, error) {
	mem, base, size, err := cd.LocateNamedStream(qname)
	if err != nil || mem == nil {
		return nil, err
	}
	return mem[base : base+size], nil
}

// Walk calls fn for every entry reachable from the root, depth first, with
// its slash-separated path. Storages are visited before their children.
func (cd *CompDoc) Walk(fn func(path string, d *DirNode) error) error {
	type item struct {
		did  int
		path string
	}
	root := cd.Dirlist[0]
	stack := make([]item, 0, len(root.Children))
	for i := len(root.Children) - 1; i >= 0; i-- {
		c := root.Children[i]
		stack = append(stack, item{c, cd.Dirlist[c].Name})
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		d := cd.Dirlist[it.did]
		if err := fn(it.path, d); err != nil {
			return err
		}
		for i := len(d.Children) - 1; i >= 0; i-- {
			c := d.Children[i]
			stack = append(stack, item{c, it.path + "/" + cd.Dirlist[c].Name})
		}
	}
	return nil
}

// Entries returns the directory entries in DID order.
func (cd *CompDoc) Entries() []*DirNode { return cd.Dirlist }
