package fwdflat

import (
	"github.com/sarchlab/hmmsearch/internal/config"
	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/lm"
)

// crossWordTransition implements spec.md §4.6's cross-word step restricted
// to the flat pass's time-varying candidate set (spec.md §4.7): only words
// named by ExpandWordList(f+1, ...) may receive a transition into frame f+1.
// LM scores are rescaled by Cfg.LMWeightFactor to account for
// FwdFlatLMWeight possibly differing from FwdTreeLMWeight.
func (e *Engine) crossWordTransition(f int32) {
	e.buildBestRC(f)
	candidates := e.WordList.ExpandWordList(f+1, MaxSFWin, e.TreePassRan)
	lwf := e.Cfg.LMWeightFactor()
	globalThresh := e.BestScore + e.Cfg.FwdflatLogBeamWidth
	pip := e.Cfg.PhoneInsertionPenalty

	for _, wid := range candidates {
		idx, ok := e.wordIdx[wid]
		if !ok {
			continue
		}
		w := e.words[idx]
		if len(w.Entry.CIPhones) == 0 {
			continue
		}
		firstCI := w.Entry.CIPhones[0]
		rc, ok := e.bestbpRC[firstCI]
		if !ok {
			continue
		}

		lmScore := int32(0)
		if !w.Entry.IsFiller {
			pred := e.BP.Entry(rc.BP)
			lmScore = int32(float64(lmTgScore(e.LM, e.Cfg.Use3gInFwdPass, pred.PrevRealFwID, pred.RealFwID, w.Entry.FwID)) * lwf)
		}
		newScore := rc.Score + e.Cfg.WordInsertionPenalty + pip + lmScore
		if newScore < globalThresh {
			continue
		}
		if w.RootState.Active == f+1 && newScore <= w.RootState.Score[0] {
			continue
		}
		w.RootState.Active = f + 1
		w.RootState.Score[0] = newScore
		w.RootState.Back[0] = rc.BP
		if w.Entry.Mpx {
			if ssid, ok := e.Dict.LeftContextFwd(w.Entry.Diphone, rc.LeftCI); ok {
				w.rootMulti.Ssids[0] = ssid
			}
		}
	}
}

func lmTgScore(m lm.Model, use3g bool, w1, w2, w3 dict.FwID) int32 {
	return lm.TgScore(m, use3g, w1, w2, w3)
}

// buildBestRC mirrors search.Engine.buildBestRC (spec.md §4.6 step 1) over
// this pass's own BPTable.
func (e *Engine) buildBestRC(f int32) {
	clear(e.bestbpRC)
	finish := e.Dict.FinishWordID()
	start := e.BP.FrameStart(f)
	end := e.BP.Len()

	for idx := start; idx < end; idx++ {
		entry := e.BP.Entry(idx)
		if entry.Frame != f || entry.WID == finish {
			continue
		}
		rcPerm := e.Dict.RightContextFwdPerm(entry.RDiph)
		rcSsids := e.Dict.RightContextFwd(entry.RDiph)
		de, ok := e.Dict.Entry(entry.WID)
		if !ok {
			continue
		}
		lastCI := de.CIPhones[de.Len()-1]

		for rc := 0; rc < len(rcSsids); rc++ {
			score := e.BP.RCScore(idx, int32(rc))
			if score <= config.WorstScore {
				continue
			}
			for ci, permIdx := range rcPerm {
				if int(permIdx) != rc {
					continue
				}
				cur := e.bestbpRC[int32(ci)]
				if !cur.HasValue || score > cur.Score {
					e.bestbpRC[int32(ci)] = rightContextBest{Score: score, BP: idx, LeftCI: lastCI, HasValue: true}
				}
			}
		}
	}
}
