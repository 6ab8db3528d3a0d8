package search

import (
	"github.com/sarchlab/hmmsearch/internal/bptable"
	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/hmm"
	"github.com/sarchlab/hmmsearch/internal/tree"
)

// pruneRoots implements prune_root_chan (spec.md §4.5): roots clearing the
// global beam survive into f+1; roots whose exit state also clears the
// new-phone beam propagate into their interior children (gated by the
// phone-lookahead predicate); roots additionally clearing the last-phone
// beam enqueue every word on their penultimate-word chain as a last-phone
// candidate.
func (e *Engine) pruneRoots(f int32, skip bool) {
	globalThresh := e.BestScore + e.Cfg.LogBeamWidth
	newPhoneThresh := e.BestScore + e.Cfg.NewPhoneLogBeamWidth
	lastPhoneThresh := e.BestScore + e.Cfg.LastPhoneLogBeamWidth
	pip := e.Cfg.PhoneInsertionPenalty

	for i := range e.Tree.Roots {
		r := &e.Tree.Roots[i]
		if r.State.Active != f {
			continue
		}
		if r.State.Best < globalThresh {
			continue
		}
		r.State.Active = f + 1

		if skip {
			continue
		}

		exit := r.State.Score[hmm.ExitState] + pip
		if exit < newPhoneThresh {
			continue
		}
		e.propagateToChildren(r.Next, exit, r.State.Back[hmm.ExitState], f)

		if exit < lastPhoneThresh {
			continue
		}
		e.enqueuePenultChain(r.PenultHed, exit-e.Cfg.WordInsertionPenalty, r.State.Back[hmm.ExitState])
	}
}

func (e *Engine) propagateToChildren(head tree.NodeID, score int32, bp int32, f int32) {
	for id := head; ; {
		n := e.Tree.Node(id)
		if n == nil {
			break
		}
		if e.Topsen.Allowed(n.CIPhone) && (n.State.Active != f+1 || score > n.State.Score[0]) {
			if n.State.Active != f+1 {
				e.Active.AddInterior(f+1, id)
			}
			n.State.Score[0] = score
			n.State.Back[0] = bp
			n.State.Active = f + 1
		}
		id = n.Alt
	}
}

func (e *Engine) enqueuePenultChain(head dict.WordID, score int32, bp int32) {
	for w := head; w != dict.NoWord; w = e.Tree.HomophoneNext[w] {
		entry, ok := e.Dict.Entry(w)
		if !ok {
			continue
		}
		ci := entry.CIPhones[entry.Len()-1]
		if !e.Topsen.Allowed(ci) {
			continue
		}
		e.lastPhoneCand = append(e.lastPhoneCand, lastPhoneCandidate{Word: w, Score: score, BP: bp})
	}
}

// pruneNonRoots implements prune_nonroot_chan: identical structure to
// pruneRoots for interior instances, propagating to hmm->next chained via
// alt. Instances below beam and not scheduled for f+1 have their state
// cleared, per spec.md Design Notes' "UGLY!" passes.
func (e *Engine) pruneNonRoots(f int32, skip bool) {
	globalThresh := e.BestScore + e.Cfg.LogBeamWidth
	newPhoneThresh := e.BestScore + e.Cfg.NewPhoneLogBeamWidth
	lastPhoneThresh := e.BestScore + e.Cfg.LastPhoneLogBeamWidth
	pip := e.Cfg.PhoneInsertionPenalty

	for _, id := range e.Active.Interior(f) {
		n := e.Tree.Node(id)
		if n == nil || n.State.Active != f {
			continue
		}
		if n.State.Best < globalThresh {
			n.State.Reset()
			continue
		}
		e.Active.AddInterior(f+1, id)
		n.State.Active = f + 1

		if skip {
			continue
		}

		exit := n.State.Score[hmm.ExitState] + pip
		if exit >= newPhoneThresh {
			e.propagateToChildren(n.Next, exit, n.State.Back[hmm.ExitState], f)
		}
		if exit >= lastPhoneThresh {
			e.enqueuePenultChain(n.PenultHed, exit-e.Cfg.WordInsertionPenalty, n.State.Back[hmm.ExitState])
		}
	}
}

// lastPhoneTransition implements last_phone_transition (spec.md §4.5): for
// each candidate, subtracts the predecessor's right-context-specific entry
// score for this candidate's first CI-phone (so the acoustic score shared
// across right contexts is not double-counted), caches the best
// LM-augmented score per word in lastLtrans (keyed by word alone;
// candidates are not grouped by predecessor end frame), and allocates
// right-context leaves for surviving candidates.
func (e *Engine) lastPhoneTransition(f int32) {
	defer func() { e.lastPhoneCand = e.lastPhoneCand[:0] }()
	if len(e.lastPhoneCand) == 0 {
		return
	}
	clear(e.lastLtrans)
	aloneThresh := e.LastPhoneBestScore + e.Cfg.LastPhoneAloneLogBeamWidth

	for _, cand := range e.lastPhoneCand {
		entry, ok := e.Dict.Entry(cand.Word)
		if !ok {
			continue
		}
		pred := e.BP.Entry(cand.BP)
		rc := e.Dict.RightContextFwdPerm(pred.RDiph)
		var rcScore int32
		if int(entry.CIPhones[0]) < len(rc) {
			rcScore = e.BP.RCScore(cand.BP, rc[entry.CIPhones[0]])
		}
		acoustic := cand.Score - rcScore

		lmScore := e.lastPhoneLMScore(pred, entry.FwID)
		total := acoustic + lmScore

		if best, ok := e.lastLtrans[cand.Word]; !ok || total > best {
			e.lastLtrans[cand.Word] = total
		}
		if total < aloneThresh {
			continue
		}
		e.allocLastPhoneLeaves(cand.Word, entry, total, cand.BP, f)
	}
}

func (e *Engine) lastPhoneLMScore(pred *bptable.Entry, fw dict.FwID) int32 {
	return lmTgScore(e.LM, e.Cfg.Use3gInFwdPass, pred.PrevRealFwID, pred.RealFwID, fw)
}

func (e *Engine) allocLastPhoneLeaves(w dict.WordID, entry dict.Entry, score int32, bp int32, f int32) {
	fanout := int(e.Dict.RightContextFwdSize(entry.FinalDiph))
	if fanout == 0 {
		fanout = 1
	}
	rcSsids := e.Dict.RightContextFwd(entry.FinalDiph)

	existing := e.Tree.LeafHead[w] != 0
	if !existing {
		for rc := 0; rc < fanout; rc++ {
			ssid := entry.Ssids[entry.Len()-1]
			if rc < len(rcSsids) {
				ssid = rcSsids[rc]
			}
			e.Tree.AllocLeaf(w, int32(rc), ssid)
		}
	}

	for id := e.Tree.LeafHead[w]; ; {
		l := e.Tree.Leaf(id)
		if l == nil {
			break
		}
		if l.State.Active != f+1 || score > l.State.Score[0] {
			l.State.Score[0] = score
			l.State.Back[0] = bp
			l.State.Active = f + 1
		}
		id = l.Next
	}
	if !e.Active.WordActive(w) {
		e.Active.AddWord(f+1, w)
	}
}

// pruneWords implements prune_word_chan (spec.md §4.5): leaves clearing the
// last-phone-alone beam survive; leaves whose exit score clears the
// new-word beam emit a word-exit via Save; a word's leaf chain is freed
// when none of its leaves survives and none is scheduled for f+1.
func (e *Engine) pruneWords(f int32) {
	aloneThresh := e.LastPhoneBestScore + e.Cfg.LastPhoneAloneLogBeamWidth
	newWordThresh := e.LastPhoneBestScore + e.Cfg.NewWordLogBeamWidth
	pip := e.Cfg.PhoneInsertionPenalty

	for _, w := range append([]dict.WordID{}, e.Active.Words(f)...) {
		entry, ok := e.Dict.Entry(w)
		if !ok {
			continue
		}
		anyAlive := false
		id := e.Tree.LeafHead[w]
		for id != 0 {
			l := e.Tree.Leaf(id)
			next := l.Next
			if l.State.Active == f {
				if l.State.Best >= aloneThresh {
					anyAlive = true
					l.State.Active = f + 1
					exit := l.State.Score[hmm.ExitState] + pip
					if exit >= newWordThresh {
						e.saveWordExit(w, entry, exit, l.State.Back[hmm.ExitState], l.RC, f)
					}
				}
			} else if l.State.Active == f+1 {
				anyAlive = true // entered this frame by lastPhoneTransition
			}
			id = next
		}
		if anyAlive {
			e.Active.AddWord(f+1, w)
		} else {
			e.Tree.FreeLeafChain(w)
			e.Active.ClearWordActive(w)
		}
	}

	e.pruneSinglePhoneWords(f, aloneThresh, newWordThresh, pip)
}

func (e *Engine) pruneSinglePhoneWords(f int32, aloneThresh, newWordThresh, pip int32) {
	for i := range e.singlePhones {
		sp := &e.singlePhones[i]
		if sp.State.Active != f {
			continue
		}
		if sp.State.Best < aloneThresh {
			continue
		}
		sp.State.Active = f + 1
		exit := sp.State.Score[hmm.ExitState] + pip
		if exit < newWordThresh {
			continue
		}
		entry := dict.Entry{WID: sp.Word, FwID: sp.FwID, IsFiller: sp.Filler, FinalDiph: -1}
		e.saveWordExit(sp.Word, entry, exit, sp.State.Back[hmm.ExitState], 0, f)
	}
}

func (e *Engine) saveWordExit(w dict.WordID, entry dict.Entry, score int32, bp int32, rc int32, f int32) {
	fanout := int32(e.Dict.RightContextFwdSize(entry.FinalDiph))
	if fanout <= 0 {
		fanout = 1
	}
	idx, ok := e.BP.Save(w, f, score, bp, rc, fanout, entry.FinalDiph)
	if !ok {
		return
	}
	e.BP.CachePaths(idx, e.isFiller, e.fwidOf)
	e.wordExitsFrame = append(e.wordExitsFrame, w)
}

func (e *Engine) isFiller(w dict.WordID) bool {
	entry, ok := e.Dict.Entry(w)
	return ok && entry.IsFiller
}

func (e *Engine) fwidOf(w dict.WordID) dict.FwID {
	entry, ok := e.Dict.Entry(w)
	if !ok {
		return -1
	}
	return entry.FwID
}

func (e *Engine) clearPrunedScores(f int32) {
	for i := range e.Tree.Roots {
		r := &e.Tree.Roots[i]
		if r.State.Active == f {
			r.State.Reset()
		}
	}
	for i := range e.singlePhones {
		sp := &e.singlePhones[i]
		if sp.State.Active == f {
			sp.State.Reset()
		}
	}
}
