// Package fixture provides small in-memory implementations of the
// dict.Dictionary, lm.Model and acoustic.Scorer contracts, for use by tests
// and the CLI's demo mode. Real dictionary loading, LM estimation and
// acoustic scoring are explicitly out of scope (spec.md §1 Non-goals); this
// package exists only to give the engine something concrete to run against,
// the same role an ELF loader plays supplying a CPU emulator's memory image -
// except here the "program" is a handful of words and a senone-score matrix
// instead of an ELF binary.
package fixture

import (
	"context"
	"fmt"

	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/hmm"
)

// Phone is one CI-phone's name, used only to detect fillers by the '+'
// naming convention spec.md §4.8 documents.
type Phone struct {
	Name string
}

// WordSpec describes one dictionary word before diphone/right-context
// tables are derived.
type WordSpec struct {
	Word     string
	FwWord   string // LM-facing surface form; pronunciation variants share this
	Phones   []int32 // CI-phone indices
	IsFiller bool
}

// Dictionary is a small, fully in-memory dict.Dictionary: every word is
// single-ssid-per-phone (ssid == left*len(phones)*4 + phone index, where left
// is the previous phone's index + 1, or 0 for a word's first phone, so
// distinct diphones never alias) and every final phone's right-context
// fan-out is exactly the set of initial CI-phones across the whole
// vocabulary, enough to
// exercise the dict.Dictionary RightContextFwd contract without needing a
// real phonetic-context table builder.
type Dictionary struct {
	phones  []Phone
	entries []dict.Entry
	byWord  map[string]dict.WordID
	words   []string

	silence  dict.WordID
	start    dict.WordID
	finish   dict.WordID

	rcFwd     map[int32][]int32
	rcFwdPerm map[int32][]int32
	lcFwd     map[[2]int32]int32
}

// NewDictionary builds a Dictionary from phone names and word specs.
// "<sil>", "<s>" and "</s>" must be included as single-phone IsFiller (sil
// and noise) / non-transitionable (<s>) / IsFiller (</s>) entries per
// spec.md §4.2.
func NewDictionary(phones []string, words []WordSpec) (*Dictionary, error) {
	d := &Dictionary{byWord: make(map[string]dict.WordID)}
	for _, p := range phones {
		d.phones = append(d.phones, Phone{Name: p})
	}

	diphone := func(left, cur int32) int32 { return left*int32(len(phones))*4 + cur }

	for i, w := range words {
		wid := dict.WordID(i)
		d.byWord[w.Word] = wid
		d.words = append(d.words, w.Word)
		entry := dict.Entry{
			WID:      wid,
			FwID:     dict.FwID(fwIndex(words, w.FwWord)),
			IsFiller: w.IsFiller,
			FinalDiph: -1,
		}
		for pi, ci := range w.Phones {
			left := int32(0)
			if pi > 0 {
				left = w.Phones[pi-1] + 1
			}
			ssid := diphone(left, ci)
			entry.Ssids = append(entry.Ssids, ssid)
			entry.CIPhones = append(entry.CIPhones, ci)
		}
		if len(w.Phones) > 0 {
			entry.Diphone = diphone(0, w.Phones[0])
		}
		if len(w.Phones) > 1 {
			lastLeft := int32(0)
			if len(w.Phones) > 2 {
				lastLeft = w.Phones[len(w.Phones)-2] + 1
			}
			entry.FinalDiph = diphone(lastLeft, w.Phones[len(w.Phones)-1])
		}
		d.entries = append(d.entries, entry)

		switch w.Word {
		case "<sil>":
			d.silence = wid
		case "<s>":
			d.start = wid
		case "</s>":
			d.finish = wid
		}
	}

	d.buildRightContext(words)
	return d, nil
}

func fwIndex(words []WordSpec, fw string) int {
	n := 0
	seen := map[string]int{}
	for _, w := range words {
		if _, ok := seen[w.FwWord]; !ok {
			seen[w.FwWord] = n
			n++
		}
	}
	id, ok := seen[fw]
	if !ok {
		return -1
	}
	return id
}

// buildRightContext derives, for every final diphone in the vocabulary, the
// distinct right-context ssids and a CI-phone->index permutation, plus the
// left-context remap mpx roots consult on cross-word transition.
func (d *Dictionary) buildRightContext(words []WordSpec) {
	d.rcFwd = make(map[int32][]int32)
	d.rcFwdPerm = make(map[int32][]int32)
	d.lcFwd = make(map[[2]int32]int32)

	initialCI := map[int32]bool{}
	for _, w := range words {
		if len(w.Phones) > 0 {
			initialCI[w.Phones[0]] = true
		}
	}

	for _, e := range d.entries {
		if e.FinalDiph < 0 {
			continue
		}
		if _, ok := d.rcFwd[e.FinalDiph]; ok {
			continue
		}
		perm := make([]int32, len(d.phones))
		var fanout []int32
		idx := int32(0)
		for ci := range d.phones {
			if initialCI[int32(ci)] {
				perm[ci] = idx
				fanout = append(fanout, e.Ssids[len(e.Ssids)-1]+idx)
				idx++
			} else {
				perm[ci] = 0
			}
		}
		if len(fanout) == 0 {
			fanout = []int32{e.Ssids[len(e.Ssids)-1]}
		}
		d.rcFwd[e.FinalDiph] = fanout
		d.rcFwdPerm[e.FinalDiph] = perm
	}

	for _, e := range d.entries {
		if e.Len() == 0 {
			continue
		}
		for ci := range d.phones {
			d.lcFwd[[2]int32{e.Diphone, int32(ci)}] = e.Ssids[0]
		}
	}
}

// WordID looks up a word by its surface string.
func (d *Dictionary) WordID(w string) (dict.WordID, bool) {
	id, ok := d.byWord[w]
	return id, ok
}

// WordString returns the surface string a WordID was registered under.
func (d *Dictionary) WordString(wid dict.WordID) string {
	if int(wid) < 0 || int(wid) >= len(d.words) {
		return ""
	}
	return d.words[wid]
}

func (d *Dictionary) Entry(wid dict.WordID) (dict.Entry, bool) {
	if int(wid) < 0 || int(wid) >= len(d.entries) {
		return dict.Entry{}, false
	}
	return d.entries[wid], true
}

func (d *Dictionary) NumWords() int      { return len(d.entries) }
func (d *Dictionary) NumCIPhones() int   { return len(d.phones) }
func (d *Dictionary) SilencePhoneID() int32 {
	for i, p := range d.phones {
		if p.Name == "SIL" {
			return int32(i)
		}
	}
	return 0
}
func (d *Dictionary) SilenceWordID() dict.WordID { return d.silence }
func (d *Dictionary) StartWordID() dict.WordID   { return d.start }
func (d *Dictionary) FinishWordID() dict.WordID  { return d.finish }

func (d *Dictionary) RightContextFwd(diphone int32) []int32     { return d.rcFwd[diphone] }
func (d *Dictionary) RightContextFwdPerm(diphone int32) []int32 { return d.rcFwdPerm[diphone] }
func (d *Dictionary) RightContextFwdSize(diphone int32) int32   { return int32(len(d.rcFwd[diphone])) }

func (d *Dictionary) LeftContextFwd(diphone int32, leftCI int32) (int32, bool) {
	ssid, ok := d.lcFwd[[2]int32{diphone, leftCI}]
	return ssid, ok
}

func (d *Dictionary) CIPhoneName(ci int32) string {
	if int(ci) < 0 || int(ci) >= len(d.phones) {
		return ""
	}
	return d.phones[ci].Name
}

// AcousticModel is a flat map of ssid -> hmm.Topology: every ssid shares the
// same small left-to-right transition matrix (self -1*8, next 0, skip
// -2*8, in the engine's fixed log scale) but observes a distinct senone.
type AcousticModel struct {
	Topologies map[int32]*hmm.Topology
}

// NewAcousticModel builds one Topology per ssid present in d, each observing
// the senone with the same index as the ssid (so callers only need to craft
// a senone-score vector indexed by ssid, not track a separate senone space).
func NewAcousticModel(d *Dictionary) *AcousticModel {
	am := &AcousticModel{Topologies: make(map[int32]*hmm.Topology)}
	for _, e := range d.entries {
		for _, ssid := range e.Ssids {
			if _, ok := am.Topologies[ssid]; ok {
				continue
			}
			am.Topologies[ssid] = standardTopology(ssid)
		}
	}
	for _, fanout := range d.rcFwd {
		for _, ssid := range fanout {
			if _, ok := am.Topologies[ssid]; !ok {
				am.Topologies[ssid] = standardTopology(ssid)
			}
		}
	}
	return am
}

// standardTopology is a canonical 5-state left-to-right HMM: self-loop -8,
// forward transition 0, skip transition -16 (all in the engine's 8*log
// scale), observing senone `ssid` in every emitting state.
func standardTopology(ssid int32) *hmm.Topology {
	t := &hmm.Topology{
		SenoneDist: [5]int32{ssid, ssid, ssid, ssid, ssid},
		Trans:      make(map[[2]int]int32),
	}
	for s := 0; s < 4; s++ {
		t.Trans[[2]int{s, s}] = -8
		t.Trans[[2]int{s, s + 1}] = 0
		if s+2 < 5 {
			t.Trans[[2]int{s, s + 2}] = -16
		} else {
			t.Trans[[2]int{s, 5}] = -16
		}
	}
	t.Trans[[2]int{3, 5}] = -16
	t.Trans[[2]int{4, 4}] = -8
	t.Trans[[2]int{4, 5}] = 0
	return t
}

func (am *AcousticModel) Topology(ssid int32) *hmm.Topology {
	t, ok := am.Topologies[ssid]
	if !ok {
		return &hmm.Topology{SenoneDist: [5]int32{ssid, ssid, ssid, ssid, ssid}, Trans: map[[2]int]int32{
			{0, 0}: -8, {0, 1}: 0, {1, 1}: -8, {1, 2}: 0, {2, 2}: -8, {2, 3}: 0,
			{3, 3}: -8, {3, 4}: 0, {4, 4}: -8, {4, 5}: 0,
		}}
	}
	return t
}

// LM is a flat, table-driven lm.Model: bigram/trigram scores are looked up
// by surface word string, defaulting to a configurable floor for unseen
// n-grams. It exists so internal/search and internal/fwdflat can be
// exercised end-to-end without pulling in a real kho/fslm binary model
// (internal/lm.FSLMModel covers that integration separately).
type LM struct {
	fwids    map[dict.FwID]string
	bigram   map[[2]dict.FwID]int32
	trigram  map[[3]dict.FwID]int32
	floor    int32
	inLM     map[dict.FwID]bool
}

// NewLM builds an LM whose vocabulary is exactly fwids; scores default to
// floor (a negative constant) unless overridden with SetBigram/SetTrigram.
func NewLM(fwids map[dict.FwID]string, floor int32) *LM {
	return &LM{
		fwids:   fwids,
		bigram:  make(map[[2]dict.FwID]int32),
		trigram: make(map[[3]dict.FwID]int32),
		floor:   floor,
		inLM:    func() map[dict.FwID]bool {
			m := make(map[dict.FwID]bool, len(fwids))
			for k := range fwids {
				m[k] = true
			}
			return m
		}(),
	}
}

func (l *LM) SetBigram(w1, w2 dict.FwID, score int32)      { l.bigram[[2]dict.FwID{w1, w2}] = score }
func (l *LM) SetTrigram(w1, w2, w3 dict.FwID, score int32) { l.trigram[[3]dict.FwID{w1, w2, w3}] = score }

func (l *LM) Bigram(w1, w2 dict.FwID) int32 {
	if v, ok := l.bigram[[2]dict.FwID{w1, w2}]; ok {
		return v
	}
	return l.floor
}

func (l *LM) Trigram(w1, w2, w3 dict.FwID) int32 {
	if v, ok := l.trigram[[3]dict.FwID{w1, w2, w3}]; ok {
		return v
	}
	return l.Bigram(w2, w3)
}

func (l *LM) NextFrame() {}

func (l *LM) InLM(fwid dict.FwID) bool { return l.inLM[fwid] }

// Scorer replays a precomputed senone-score matrix, one row per frame,
// indexed by ssid (see AcousticModel's senone-equals-ssid convention).
type Scorer struct {
	Frames [][]int32

	// BestPScr and TopSenScr optionally supply the phone-lookahead inputs
	// (spec.md §4.8), one row per frame; frames at or beyond len(BestPScr)
	// report ok=false (no topsen input for that frame).
	BestPScr  [][]int32
	TopSenScr []int32
}

func (s *Scorer) Score(_ context.Context, frame int, _ []bool) ([]int32, error) {
	if frame < 0 || frame >= len(s.Frames) {
		return nil, fmt.Errorf("fixture: frame %d out of range [0,%d)", frame, len(s.Frames))
	}
	return s.Frames[frame], nil
}

func (s *Scorer) TopSenone(_ context.Context, frame int) ([]int32, int32, bool) {
	if frame < 0 || frame >= len(s.BestPScr) {
		return nil, 0, false
	}
	return s.BestPScr[frame], s.TopSenScr[frame], true
}
