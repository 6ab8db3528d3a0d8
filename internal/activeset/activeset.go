// Package activeset implements the two-frame ping-pong active lists and
// senone-activation bookkeeping (spec.md §3/§4.3, component C3). Lists are
// append-counter + fixed backing array, no per-entry allocation - the same
// shape a CPU pipeline uses for its next*/current register pairs,
// generalized here from "one register" to "one growable list" swapped on
// frame&1 instead of every tick.
package activeset

import (
	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/tree"
)

// ActiveSet holds the interior-instance and word-exit-instance active lists
// for both parities of frame&1, plus the per-word active flag (spec.md §3
// Invariant 3).
type ActiveSet struct {
	interior     [2][]tree.NodeID
	words        [2][]dict.WordID
	wordActive   []bool
	numWords     int
}

// New allocates an ActiveSet for a vocabulary of numWords and an interior
// capacity (sized the same way the tree's interior arena is, per spec.md
// §4.2 init_search_tree).
func New(numWords int, interiorCapacity int) *ActiveSet {
	a := &ActiveSet{
		wordActive: make([]bool, numWords),
		numWords:   numWords,
	}
	for p := 0; p < 2; p++ {
		a.interior[p] = make([]tree.NodeID, 0, interiorCapacity)
		a.words[p] = make([]dict.WordID, 0, numWords)
	}
	return a
}

// ResetFrame clears the list for the given frame parity so the next frame
// may be built fresh; called at the start of each frame's prune phase
// before writing f+1's lists.
func (a *ActiveSet) ResetFrame(frame int32) {
	p := frame & 1
	a.interior[p] = a.interior[p][:0]
	a.words[p] = a.words[p][:0]
}

// AddInterior appends id to frame's interior active list.
func (a *ActiveSet) AddInterior(frame int32, id tree.NodeID) {
	p := frame & 1
	a.interior[p] = append(a.interior[p], id)
}

// Interior returns frame's interior active list.
func (a *ActiveSet) Interior(frame int32) []tree.NodeID {
	return a.interior[frame&1]
}

// AddWord appends w to frame's word active list and sets its active flag,
// per spec.md §3 Invariant 3 (not idempotent: re-adding an already-active
// word appends it a second time; no duplicate check is made here, matching
// the reference's unchecked word_active[w] = 1).
func (a *ActiveSet) AddWord(frame int32, w dict.WordID) {
	p := frame & 1
	a.words[p] = append(a.words[p], w)
	a.wordActive[w] = true
}

// Words returns frame's active-word list.
func (a *ActiveSet) Words(frame int32) []dict.WordID {
	return a.words[frame&1]
}

// WordActive reports whether w has a live leaf chain.
func (a *ActiveSet) WordActive(w dict.WordID) bool {
	return a.wordActive[w]
}

// ClearWordActive drops w's active flag (called when its leaf chain is
// freed in prune_word_chan).
func (a *ActiveSet) ClearWordActive(w dict.WordID) {
	a.wordActive[w] = false
}

// ComputeSenoneActive walks every active root, interior and leaf instance
// in the current frame and marks senone flags, per spec.md §4.3
// compute_sen_active. rootSsids yields the ssids of the roots active in
// frame; interiorSsids and leafSsids resolve the ssids of the listed
// interior nodes and of each listed word's active leaves; distsOf maps an
// ssid to its five senones.
func ComputeSenoneActive(
	frame int32,
	numSenones int,
	rootSsids func(yield func(ssid int32)),
	interiorSsids func(id tree.NodeID) int32,
	interiorList []tree.NodeID,
	leafSsids func(w dict.WordID) []int32,
	wordList []dict.WordID,
	distsOf func(ssid int32) [5]int32,
) []bool {
	flags := make([]bool, numSenones)
	mark := func(ssid int32) {
		for _, d := range distsOf(ssid) {
			if int(d) < numSenones {
				flags[d] = true
			}
		}
	}
	rootSsids(mark)
	for _, id := range interiorList {
		mark(interiorSsids(id))
	}
	for _, w := range wordList {
		for _, ssid := range leafSsids(w) {
			mark(ssid)
		}
	}
	return flags
}
