// Package fwdflat implements the flat-lexicon second pass (spec.md §4.7,
// component C7): after the tree pass (internal/search) terminates, its
// BPTable is collapsed into a per-start-frame candidate list, a fresh
// no-prefix-sharing HMM chain is allocated per surviving word, and the
// frame loop is re-driven with Fwdflat* beams and a time-varying
// cross-word candidate set. It re-drives the same per-tick driver shape
// internal/search uses with an alternate configuration rather than a second
// driver written from scratch - here the "alternate configuration" is the
// flat topology and the restricted candidate set instead of different
// stage latencies.
package fwdflat

import (
	"github.com/sarchlab/hmmsearch/internal/bptable"
	"github.com/sarchlab/hmmsearch/internal/dict"
)

// MinEFWidth and MaxSFWin are the exact constants confirmed against
// search.c's build_fwdflat_wordlist/get_expand_wordlist (spec.md §4.7).
const (
	MinEFWidth = 4
	MaxSFWin   = 25
)

// wordListNode is one {wid, first_ef, last_ef} entry of a frame's
// candidate list, merged by (sf, wid) keeping the widest interval.
type wordListNode struct {
	WID     dict.WordID
	FirstEF int32
	LastEF  int32
}

// WordList is the collapsed per-start-frame candidate structure
// build_fwdflat_wordlist produces, plus the union of surviving wids.
type WordList struct {
	byStartFrame map[int32][]wordListNode
	union        []dict.WordID
	seenUnion    map[dict.WordID]bool
}

// Build implements build_fwdflat_wordlist (spec.md §4.7): collapses tree's
// BPTable into frm_wordlist[sf], merging duplicate (sf, wid) exits by
// keeping the widest [first_ef, last_ef] interval, dropping intervals
// narrower than MinEFWidth, and dropping </s> unless its last_ef is within
// one frame of the utterance end (lastFrame).
func Build(bp *bptable.Table, finish dict.WordID, lastFrame int32) *WordList {
	wl := &WordList{
		byStartFrame: make(map[int32][]wordListNode),
		seenUnion:    make(map[dict.WordID]bool),
	}

	type key struct {
		sf  int32
		wid dict.WordID
	}
	merged := make(map[key]*wordListNode)
	var order []key

	for idx := int32(0); idx < bp.Len(); idx++ {
		e := bp.Entry(idx)
		sf := int32(0)
		if e.BP != bptable.NoBP {
			sf = bp.Entry(e.BP).Frame + 1
		}
		k := key{sf, e.WID}
		if n, ok := merged[k]; ok {
			if e.Frame > n.LastEF {
				n.LastEF = e.Frame
			}
			if e.Frame < n.FirstEF {
				n.FirstEF = e.Frame
			}
			continue
		}
		merged[k] = &wordListNode{WID: e.WID, FirstEF: e.Frame, LastEF: e.Frame}
		order = append(order, k)
	}

	for _, k := range order {
		n := merged[k]
		if n.LastEF-n.FirstEF < MinEFWidth {
			continue
		}
		if n.WID == finish && lastFrame-n.LastEF > 1 {
			continue
		}
		wl.byStartFrame[k.sf] = append(wl.byStartFrame[k.sf], *n)
		if !wl.seenUnion[n.WID] {
			wl.seenUnion[n.WID] = true
			wl.union = append(wl.union, n.WID)
		}
	}

	return wl
}

// Union returns every word id surviving the merge/drop rules above
// (fwdflat_wordlist).
func (wl *WordList) Union() []dict.WordID { return wl.union }

// ExpandWordList implements get_expand_wordlist (spec.md §4.7): returns
// every wid whose original frm_wordlist entry starts within window frames
// of f. When treePassRan is false, the tree pass never ran (e.g. the flat
// pass is being exercised standalone, per spec.md §8's round-trip
// idempotence property) and the full candidate union is returned instead,
// matching search.c's short-circuit for a skipped fwdtree pass.
func (wl *WordList) ExpandWordList(f int32, window int32, treePassRan bool) []dict.WordID {
	if !treePassRan {
		return wl.union
	}
	seen := make(map[dict.WordID]bool)
	var out []dict.WordID
	for sf := f - window; sf <= f+window; sf++ {
		for _, n := range wl.byStartFrame[sf] {
			if !seen[n.WID] {
				seen[n.WID] = true
				out = append(out, n.WID)
			}
		}
	}
	return out
}
