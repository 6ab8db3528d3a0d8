package search

import (
	"github.com/sarchlab/hmmsearch/internal/config"
	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/lm"
)

// lmTgScore picks trigram-or-bigram scoring per spec.md §4.5/§4.6
// (lm_tg_score); the language weight itself is baked into the lm.Model
// implementation (see lm.Score), not reapplied here.
func lmTgScore(m lm.Model, use3g bool, w1, w2, w3 dict.FwID) int32 {
	return lm.TgScore(m, use3g, w1, w2, w3)
}

// crossWordTransition implements spec.md §4.6: once any word exited this
// frame, compute the best-right-context map and propagate transitions into
// tree roots, single-phone LM words, and silence/filler words.
func (e *Engine) crossWordTransition(f int32) {
	e.buildBestRC(f)
	e.transitionToRoots(f)
	e.transitionToSinglePhoneWords(f)
	e.transitionToSilenceAndFiller(f)
}

// buildBestRC implements the bestbp_rc[rc] construction (spec.md §4.6 step
// 1): for each CI-phone rc, the highest-scoring word-exit this frame whose
// right-context score at rc is maximal, excluding </s>.
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
			// rcPerm maps a following word's initial CI-phone to this
			// index; invert by scanning, since the table is small
			// (tens of CI-phones) and only built once per exit.
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

// transitionToRoots implements spec.md §4.6 step 2: propagate each
// bestbp_rc entry into the tree root matching its CI-phone, rewriting the
// mpx root's state-0 ssid via LeftContextFwd (dynamic left-context
// selection).
func (e *Engine) transitionToRoots(f int32) {
	globalThresh := e.BestScore + e.Cfg.LogBeamWidth
	pip := e.Cfg.PhoneInsertionPenalty

	for i := range e.Tree.Roots {
		r := &e.Tree.Roots[i]
		if !e.Topsen.Allowed(r.CIPhone) {
			continue
		}
		rc, ok := e.bestbpRC[r.CIPhone]
		if !ok {
			continue
		}
		newScore := rc.Score + e.Cfg.WordInsertionPenalty + pip
		if newScore < globalThresh {
			continue
		}
		if r.State.Active == f+1 && newScore <= r.State.Score[0] {
			continue
		}
		if r.State.Active != f+1 {
			r.State.Active = f + 1
		}
		r.State.Score[0] = newScore
		r.State.Back[0] = rc.BP
		if r.Mpx {
			if ssid, ok := e.Dict.LeftContextFwd(r.Diphone, rc.LeftCI); ok {
				r.Multiplex.Ssids[0] = ssid
			}
		}
	}
}

// transitionToSinglePhoneWords implements spec.md §4.6 step 3: for each
// single-phone LM word, the best LM-augmented score over this frame's
// word-exits (filler single-phone words skip the LM term).
func (e *Engine) transitionToSinglePhoneWords(f int32) {
	globalThresh := e.BestScore + e.Cfg.LogBeamWidth
	pip := e.Cfg.PhoneInsertionPenalty
	start := e.BP.FrameStart(f)
	end := e.BP.Len()

	for i := range e.singlePhones {
		sp := &e.singlePhones[i]
		if sp.Filler {
			continue
		}
		best := config.WorstScore
		var bestBP int32 = bpNone
		for idx := start; idx < end; idx++ {
			entry := e.BP.Entry(idx)
			if entry.Frame != f {
				continue
			}
			lmScore := lmTgScore(e.LM, e.Cfg.Use3gInFwdPass, entry.PrevRealFwID, entry.RealFwID, sp.FwID)
			cand := entry.Score + lmScore
			if cand > best {
				best = cand
				bestBP = idx
			}
		}
		if bestBP == bpNone {
			continue
		}
		newScore := best + e.Cfg.WordInsertionPenalty + pip
		if newScore < globalThresh {
			continue
		}
		if sp.State.Active == f+1 && newScore <= sp.State.Score[0] {
			continue
		}
		sp.State.Active = f + 1
		sp.State.Score[0] = newScore
		sp.State.Back[0] = bestBP
	}
}

const bpNone int32 = -1

// transitionToSilenceAndFiller implements spec.md §4.6 step 4: <sil> and
// noise words transition from bestbp_rc[SilencePhoneId] with a flat
// insertion penalty and no LM scoring.
func (e *Engine) transitionToSilenceAndFiller(f int32) {
	globalThresh := e.BestScore + e.Cfg.LogBeamWidth
	pip := e.Cfg.PhoneInsertionPenalty
	rc, ok := e.bestbpRC[e.Dict.SilencePhoneID()]
	if !ok {
		return
	}

	for i := range e.singlePhones {
		sp := &e.singlePhones[i]
		if !sp.Filler {
			continue
		}
		penalty := e.Cfg.FillerWordPenalty
		if sp.Word == e.Dict.SilenceWordID() {
			penalty = e.Cfg.SilenceWordPenalty
		}
		newScore := rc.Score + penalty + pip
		if newScore < globalThresh {
			continue
		}
		if sp.State.Active == f+1 && newScore <= sp.State.Score[0] {
			continue
		}
		sp.State.Active = f + 1
		sp.State.Score[0] = newScore
		sp.State.Back[0] = rc.BP
	}
}
