// Package bptable implements the back-pointer lattice and its per-word
// right-context exit-score stack (spec.md §3/§4.6, component C5): an
// append-only struct-of-arrays pair, preallocated once per utterance and
// never resized (spec.md §5 Memory discipline).
package bptable

import (
	"encoding/binary"
	"io"

	"github.com/sarchlab/hmmsearch/internal/config"
	"github.com/sarchlab/hmmsearch/internal/dict"
)

// NoBP is the sentinel back-pointer/"no entry yet" value.
const NoBP int32 = -1

// Entry is one word-exit event (spec.md §3 "BPTable").
type Entry struct {
	WID          dict.WordID
	Frame        int32
	BP           int32 // predecessor BPTable index, or NoBP
	Score        int32
	SIdx         int32 // base offset into the BScoreStack
	RDiph        int32 // final-phone diphone index, or -1
	RealFwID     dict.FwID
	PrevRealFwID dict.FwID
	Ascr         int32
	Lscr         int32
}

// Table is the BPTable + BScoreStack pair plus the per-frame snapshot index
// and WordLatIdx merge-detection map.
type Table struct {
	entries    []Entry
	scoreStack []int32
	bpIdx      int32
	ssIdx      int32

	frameIdx []int32 // BPTableIdx[f]: first entry index emitted in frame f
	wordLat  []int32 // WordLatIdx[w]

	overflowWarned bool
	onOverflow     func()
}

// New preallocates a Table sized per spec.md §5: bpCapacity entries and
// ssCapacity score-stack slots, for a vocabulary of numWords words over up
// to maxFrames frames.
func New(bpCapacity, ssCapacity, numWords, maxFrames int) *Table {
	t := &Table{
		entries:    make([]Entry, bpCapacity),
		scoreStack: make([]int32, ssCapacity),
		frameIdx:   make([]int32, maxFrames+1),
		wordLat:    make([]int32, numWords),
	}
	for i := range t.wordLat {
		t.wordLat[i] = NoBP
	}
	return t
}

// OnOverflow registers a callback invoked exactly once, the first time the
// table fills, per spec.md §7 ("one-shot warning, further word-exits
// silently dropped").
func (t *Table) OnOverflow(fn func()) { t.onOverflow = fn }

// SnapshotFrame records BPTableIdx[f] = current BPIdx, taken before any new
// entry for frame f is written (spec.md §5 ordering guarantee).
func (t *Table) SnapshotFrame(frame int32) {
	if int(frame) < len(t.frameIdx) {
		t.frameIdx[frame] = t.bpIdx
	}
}

// FrameStart returns BPTableIdx[f].
func (t *Table) FrameStart(frame int32) int32 {
	if int(frame) >= len(t.frameIdx) {
		return t.bpIdx
	}
	return t.frameIdx[frame]
}

// Len returns the current BPIdx (number of live entries).
func (t *Table) Len() int32 { return t.bpIdx }

// Entry returns a pointer to entry idx.
func (t *Table) Entry(idx int32) *Entry { return &t.entries[idx] }

// ResetWordLat clears WordLatIdx[w] for every w named in wids, matching
// search.c's per-frame "WordLatIdx[bp->wid] = NO_BP" sweep at the start of
// word-transition processing.
func (t *Table) ResetWordLat(wids []dict.WordID) {
	for _, w := range wids {
		t.wordLat[w] = NoBP
	}
}

// WordLat returns WordLatIdx[w].
func (t *Table) WordLat(w dict.WordID) int32 { return t.wordLat[w] }

// Save implements save_bwd_ptr (spec.md §4.6): merges into the existing
// same-frame entry for w if WordLatIdx[w] is set, otherwise appends a new
// entry with a freshly allocated BScoreStack block of size rcFanout
// (initialized to WorstScore), writing rcScore into slot rcIndex. Returns
// the entry index and whether the write succeeded (false on overflow, after
// which the call is a no-op besides firing OnOverflow once).
func (t *Table) Save(w dict.WordID, frame int32, rcScore int32, bp int32, rcIndex int32, rcFanout int32, rDiph int32) (int32, bool) {
	if cur := t.wordLat[w]; cur != NoBP && t.entries[cur].Frame == frame {
		e := &t.entries[cur]
		if rcScore > e.Score {
			e.Score = rcScore
			e.BP = bp
		}
		if int(e.SIdx+rcIndex) < len(t.scoreStack) && rcScore > t.scoreStack[e.SIdx+rcIndex] {
			t.scoreStack[e.SIdx+rcIndex] = rcScore
		}
		return cur, true
	}

	if int(t.bpIdx) >= len(t.entries) || int(t.ssIdx)+int(rcFanout) > len(t.scoreStack) {
		if !t.overflowWarned {
			t.overflowWarned = true
			if t.onOverflow != nil {
				t.onOverflow()
			}
		}
		return NoBP, false
	}

	idx := t.bpIdx
	e := &t.entries[idx]
	*e = Entry{WID: w, Frame: frame, BP: bp, Score: rcScore, RDiph: rDiph, SIdx: t.ssIdx}
	for i := int32(0); i < rcFanout; i++ {
		t.scoreStack[t.ssIdx+i] = config.WorstScore
	}
	t.scoreStack[t.ssIdx+rcIndex] = rcScore
	t.ssIdx += rcFanout
	t.bpIdx++
	t.wordLat[w] = idx
	return idx, true
}

// RCScore returns the per-right-context exit score cached for entry idx at
// right-context index rc.
func (t *Table) RCScore(idx int32, rc int32) int32 {
	e := &t.entries[idx]
	off := e.SIdx + rc
	if off < 0 || int(off) >= len(t.scoreStack) {
		return config.WorstScore
	}
	return t.scoreStack[off]
}

// CachePaths implements cache_bptable_paths (spec.md §4.6): walks back
// through filler predecessors to compute RealFwID (nearest real-word fwid)
// and PrevRealFwID (one further back), cached on the entry so trigram
// scoring is O(1) at transition time.
func (t *Table) CachePaths(idx int32, isFiller func(dict.WordID) bool, fwidOf func(dict.WordID) dict.FwID) {
	e := &t.entries[idx]
	if !isFiller(e.WID) {
		e.RealFwID = fwidOf(e.WID)
		e.PrevRealFwID = t.realFwidBefore(e.BP, isFiller, fwidOf)
		return
	}
	e.RealFwID = t.realFwidBefore(idx, isFiller, fwidOf)
	e.PrevRealFwID = t.realFwidBefore(t.entries[t.firstNonFiller(idx, isFiller)].BP, isFiller, fwidOf)
}

func (t *Table) firstNonFiller(idx int32, isFiller func(dict.WordID) bool) int32 {
	for idx != NoBP && isFiller(t.entries[idx].WID) {
		idx = t.entries[idx].BP
	}
	return idx
}

func (t *Table) realFwidBefore(idx int32, isFiller func(dict.WordID) bool, fwidOf func(dict.WordID) dict.FwID) dict.FwID {
	idx = t.firstNonFiller(idx, isFiller)
	if idx == NoBP {
		return -1
	}
	return fwidOf(t.entries[idx].WID)
}

// DumpEntry is the fixed binary lattice record layout from spec.md §6.
type DumpEntry struct {
	SF, EF     uint16
	Score      int32
	Ascr, Lscr int32
	BP, WID    uint16
}

// Dump writes the binary lattice dump: one fixed-size record per BPTable
// entry (spec.md §6 "Lattice dump").
func (t *Table) Dump(w io.Writer, startFrameOf func(idx int32) int32) error {
	for i := int32(0); i < t.bpIdx; i++ {
		e := &t.entries[i]
		rec := DumpEntry{
			SF:    uint16(startFrameOf(i)),
			EF:    uint16(e.Frame),
			Score: e.Score,
			Ascr:  e.Ascr,
			Lscr:  e.Lscr,
			BP:    uint16(int32(e.BP) & 0xFFFF),
			WID:   uint16(e.WID),
		}
		if err := binary.Write(w, binary.LittleEndian, &rec); err != nil {
			return err
		}
	}
	return nil
}
