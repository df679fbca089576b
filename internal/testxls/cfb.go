// Package testxls builds small XLS files in memory for tests: an OLE2
// compound document writer and helpers that assemble BIFF record streams.
package testxls

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

// Sector id markers used in allocation tables.
const (
	FreeSID = -1
	EndSID  = -2
	SATSID  = -3
	MSATSID = -4
)

const (
	headerSize    = 512
	dirEntrySize  = 128
	shortSecSize  = 64
	inlineMSAT    = 109
	defaultCutoff = 4096
)

// Stream is a named stream to store in a compound document. Path may
// contain slashes, in which case the intermediate storages are created.
type Stream struct {
	Path string
	Data []byte
}

// Options tune the physical layout of a compound document.
type Options struct {
	// SectorShift is log2 of the sector size. Zero means 9.
	SectorShift int

	// MiniCutoff is the size below which streams live in short sectors.
	// Zero means 4096.
	MiniCutoff int

	// Fragment interleaves the sectors of standard streams and stores
	// each chain in descending order, so no chain is contiguous.
	Fragment bool

	// MinSATSectors forces at least this many SAT sectors. More than 109
	// requires MSAT extension sectors.
	MinSATSectors int
}

// Layout is a built compound document together with the sector
// assignments used, so tests can corrupt specific structures.
type Layout struct {
	Data    []byte
	SecSize int

	// Chains holds the standard sector chain of every stream stored in
	// standard sectors, keyed by path, plus "<directory>", "<ssat>" and
	// "<sscs>" for the internal streams.
	Chains map[string][]int

	// ShortChains holds the short sector chain of each short stream.
	ShortChains map[string][]int

	SATSectors  []int
	MSATSectors []int
}

type dirEntry struct {
	name     string
	etype    byte
	left     int
	right    int
	child    int
	firstSID int
	size     int
	children []int
}

// BuildCFB lays out streams in a version 3 compound document.
func BuildCFB(streams []Stream, opts Options) *Layout {
	shift := opts.SectorShift
	if shift == 0 {
		shift = 9
	}
	cutoff := opts.MiniCutoff
	if cutoff == 0 {
		cutoff = defaultCutoff
	}
	secSize := 1 << uint(shift)
	perSec := secSize / 4

	l := &Layout{
		SecSize:     secSize,
		Chains:      make(map[string][]int),
		ShortChains: make(map[string][]int),
	}

	// directory tree
	entries := []*dirEntry{{name: "Root Entry", etype: 5, left: FreeSID, right: FreeSID, child: FreeSID}}
	byPath := map[string]int{"": 0}
	streamDID := make([]int, len(streams))
	for i, st := range streams {
		parts := strings.Split(strings.Trim(st.Path, "/"), "/")
		parent := 0
		for j, part := range parts {
			key := strings.Join(parts[:j+1], "/")
			did, ok := byPath[key]
			if !ok {
				did = len(entries)
				etype := byte(1)
				if j == len(parts)-1 {
					etype = 2
				}
				entries = append(entries, &dirEntry{name: part, etype: etype,
					left: FreeSID, right: FreeSID, child: FreeSID, firstSID: EndSID})
				entries[parent].children = append(entries[parent].children, did)
				byPath[key] = did
			}
			parent = did
		}
		streamDID[i] = parent
	}
	for _, e := range entries {
		for k, c := range e.children {
			if k == 0 {
				e.child = c
			}
			if k+1 < len(e.children) {
				entries[c].right = e.children[k+1]
			}
		}
	}

	// short streams
	var sscs []byte
	var ssat []int
	var big []int
	for i, st := range streams {
		if len(st.Data) >= cutoff {
			big = append(big, i)
			continue
		}
		first := len(sscs) / shortSecSize
		n := (len(st.Data) + shortSecSize - 1) / shortSecSize
		chain := make([]int, n)
		for k := range chain {
			chain[k] = first + k
			if k+1 < n {
				ssat = append(ssat, first+k+1)
			} else {
				ssat = append(ssat, EndSID)
			}
		}
		l.ShortChains[st.Path] = chain
		sscs = append(sscs, st.Data...)
		if pad := len(sscs) % shortSecSize; pad != 0 {
			sscs = append(sscs, make([]byte, shortSecSize-pad)...)
		}
		d := entries[streamDID[i]]
		d.size = len(st.Data)
		if n > 0 {
			d.firstSID = first
		}
	}

	ceil := func(n, d int) int { return (n + d - 1) / d }
	dirSecs := ceil(len(entries)*dirEntrySize, secSize)
	ssatSecs := ceil(len(ssat)*4, secSize)
	sscsSecs := ceil(len(sscs), secSize)

	// sectors of the big streams
	next := 0
	if opts.Fragment && len(big) > 0 {
		remaining := make([]int, len(big))
		chains := make([][]int, len(big))
		for k, i := range big {
			remaining[k] = ceil(len(streams[i].Data), secSize)
		}
		for left := true; left; {
			left = false
			for k := range big {
				if remaining[k] > 0 {
					chains[k] = append(chains[k], next)
					next++
					remaining[k]--
					left = true
				}
			}
		}
		for k, i := range big {
			c := chains[k]
			for a, b := 0, len(c)-1; a < b; a, b = a+1, b-1 {
				c[a], c[b] = c[b], c[a]
			}
			l.Chains[streams[i].Path] = c
		}
	} else {
		for _, i := range big {
			l.Chains[streams[i].Path] = seq(&next, ceil(len(streams[i].Data), secSize))
		}
	}
	l.Chains["<sscs>"] = seq(&next, sscsSecs)
	l.Chains["<directory>"] = seq(&next, dirSecs)
	l.Chains["<ssat>"] = seq(&next, ssatSecs)

	dataSecs := next
	nSAT, nMSAT := 1, 0
	for {
		want := ceil(dataSecs+nSAT+nMSAT, perSec)
		if want < opts.MinSATSectors {
			want = opts.MinSATSectors
		}
		wantX := 0
		if want > inlineMSAT {
			wantX = ceil(want-inlineMSAT, perSec-1)
		}
		if want == nSAT && wantX == nMSAT {
			break
		}
		nSAT, nMSAT = want, wantX
	}
	l.SATSectors = seq(&next, nSAT)
	l.MSATSectors = seq(&next, nMSAT)
	total := next

	sat := make([]int, nSAT*perSec)
	for i := range sat {
		sat[i] = FreeSID
	}
	for _, c := range l.Chains {
		link(sat, c)
	}
	for _, s := range l.SATSectors {
		sat[s] = SATSID
	}
	for _, s := range l.MSATSectors {
		sat[s] = MSATSID
	}

	for _, i := range big {
		d := entries[streamDID[i]]
		d.firstSID = l.Chains[streams[i].Path][0]
		d.size = len(streams[i].Data)
	}
	root := entries[0]
	root.firstSID = EndSID
	if len(sscs) > 0 {
		root.firstSID = l.Chains["<sscs>"][0]
		root.size = len(sscs)
	}

	out := make([]byte, headerSize+total*secSize)
	le := binary.LittleEndian
	put32 := func(off, v int) { le.PutUint32(out[off:], uint32(int32(v))) }
	sector := func(sid int) []byte {
		start := headerSize + sid*secSize
		return out[start : start+secSize]
	}
	writeChain := func(chain []int, data []byte) {
		for k, sid := range chain {
			lo := k * secSize
			if lo >= len(data) {
				break
			}
			hi := lo + secSize
			if hi > len(data) {
				hi = len(data)
			}
			copy(sector(sid), data[lo:hi])
		}
	}

	copy(out, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	le.PutUint16(out[24:], 0x3E)
	le.PutUint16(out[26:], 3)
	out[28], out[29] = 0xFE, 0xFF
	le.PutUint16(out[30:], uint16(shift))
	le.PutUint16(out[32:], 6)
	put32(44, nSAT)
	put32(48, l.Chains["<directory>"][0])
	put32(56, cutoff)
	if ssatSecs > 0 {
		put32(60, l.Chains["<ssat>"][0])
	} else {
		put32(60, EndSID)
	}
	put32(64, ssatSecs)
	if nMSAT > 0 {
		put32(68, l.MSATSectors[0])
	} else {
		put32(68, EndSID)
	}
	put32(72, nMSAT)

	msat := make([]int, inlineMSAT+nMSAT*(perSec-1))
	for i := range msat {
		msat[i] = FreeSID
	}
	copy(msat, l.SATSectors)
	for i := 0; i < inlineMSAT; i++ {
		put32(76+4*i, msat[i])
	}
	for k, sid := range l.MSATSectors {
		sec := sector(sid)
		for j := 0; j < perSec-1; j++ {
			le.PutUint32(sec[4*j:], uint32(int32(msat[inlineMSAT+k*(perSec-1)+j])))
		}
		nextX := EndSID
		if k+1 < len(l.MSATSectors) {
			nextX = l.MSATSectors[k+1]
		}
		le.PutUint32(sec[4*(perSec-1):], uint32(int32(nextX)))
	}

	writeChain(l.SATSectors, sidBytes(sat))
	writeChain(l.Chains["<ssat>"], sidBytes(padSIDs(ssat, ssatSecs*perSec)))
	writeChain(l.Chains["<sscs>"], sscs)
	for _, i := range big {
		writeChain(l.Chains[streams[i].Path], streams[i].Data)
	}

	dir := make([]byte, dirSecs*secSize)
	for did := 0; did < dirSecs*secSize/dirEntrySize; did++ {
		ent := dir[did*dirEntrySize : (did+1)*dirEntrySize]
		if did >= len(entries) {
			for _, off := range []int{68, 72, 76} {
				le.PutUint32(ent[off:], 0xFFFFFFFF)
			}
			continue
		}
		e := entries[did]
		name := utf16.Encode([]rune(e.name))
		for k, u := range name {
			le.PutUint16(ent[2*k:], u)
		}
		le.PutUint16(ent[64:], uint16(2*(len(name)+1)))
		ent[66] = e.etype
		ent[67] = 1
		le.PutUint32(ent[68:], uint32(int32(e.left)))
		le.PutUint32(ent[72:], uint32(int32(e.right)))
		le.PutUint32(ent[76:], uint32(int32(e.child)))
		le.PutUint32(ent[116:], uint32(int32(e.firstSID)))
		le.PutUint32(ent[120:], uint32(e.size))
	}
	writeChain(l.Chains["<directory>"], dir)

	l.Data = out
	return l
}

// SetSAT overwrites the SAT entry for sid in the built file.
func (l *Layout) SetSAT(sid, value int) {
	perSec := l.SecSize / 4
	satSec := l.SATSectors[sid/perSec]
	off := headerSize + satSec*l.SecSize + 4*(sid%perSec)
	binary.LittleEndian.PutUint32(l.Data[off:], uint32(int32(value)))
}

// SetSSAT overwrites the short sector allocation entry for ssid.
func (l *Layout) SetSSAT(ssid, value int) {
	perSec := l.SecSize / 4
	sec := l.Chains["<ssat>"][ssid/perSec]
	off := headerSize + sec*l.SecSize + 4*(ssid%perSec)
	binary.LittleEndian.PutUint32(l.Data[off:], uint32(int32(value)))
}

// Sector returns the bytes of sector sid in the built file.
func (l *Layout) Sector(sid int) []byte {
	off := headerSize + sid*l.SecSize
	return l.Data[off : off+l.SecSize]
}

// SetMSAT overwrites MSAT slot i, which lives in the header for the first
// 109 slots and in an extension sector after that.
func (l *Layout) SetMSAT(i, value int) {
	off := 76 + 4*i
	if i >= inlineMSAT {
		perX := l.SecSize/4 - 1
		k := (i - inlineMSAT) / perX
		off = headerSize + l.MSATSectors[k]*l.SecSize + 4*((i-inlineMSAT)%perX)
	}
	binary.LittleEndian.PutUint32(l.Data[off:], uint32(int32(value)))
}

// SetHeader32 overwrites a 32-bit header field at off.
func (l *Layout) SetHeader32(off, value int) {
	binary.LittleEndian.PutUint32(l.Data[off:], uint32(int32(value)))
}

// Truncate drops the last n sectors of the file.
func (l *Layout) Truncate(n int) {
	l.Data = l.Data[:len(l.Data)-n*l.SecSize]
}

func seq(next *int, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = *next
		*next++
	}
	return out
}

func link(sat []int, chain []int) {
	for k, sid := range chain {
		if k+1 < len(chain) {
			sat[sid] = chain[k+1]
		} else {
			sat[sid] = EndSID
		}
	}
}

func padSIDs(ids []int, n int) []int {
	out := append([]int(nil), ids...)
	for len(out) < n {
		out = append(out, FreeSID)
	}
	return out
}

func sidBytes(ids []int) []byte {
	out := make([]byte, 4*len(ids))
	for i, v := range ids {
		binary.LittleEndian.PutUint32(out[4*i:], uint32(int32(v)))
	}
	return out
}
