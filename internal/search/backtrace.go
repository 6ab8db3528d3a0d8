package search

import (
	"fmt"
	"math"

	"github.com/sarchlab/hmmsearch/internal/bptable"
	"github.com/sarchlab/hmmsearch/internal/config"
	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/hmm"
)

// minUtteranceFrames is the shortest utterance the back-trace will produce a
// hypothesis for (spec.md §4.9/§8: "utterance shorter than 10 frames,
// discarded with warning, empty hypothesis").
const minUtteranceFrames = 10

// Segment is one word of the final back-trace, carrying the per-word score
// split and diagnostic profile spec.md §4.9/§6 asks for.
type Segment struct {
	WID            dict.WordID
	StartFrame     int32
	EndFrame       int32
	Ascr           int32
	Lscr           int32
	LatticeDensity float64
	PhonePerplexity float64
}

// Hypothesis is the decoder's produced-to-collaborators result (spec.md §6).
type Hypothesis struct {
	UtteranceID string
	Segments    []Segment // full back-trace, fillers included
	Words       []dict.WordID
	TotalAscr   int32
	TotalLscr   int32
}

// Finish implements search_postprocess_bptable (spec.md §4.9): locates the
// terminal entry (</s> in the final frame, or a synthesized one from the
// best entry in the latest non-empty frame), assigns ascr/lscr to every
// entry via compute_seg_scores, and back-traces into a Hypothesis. lwf
// scales the language score of the synthetic terminal (when one is made)
// and every entry's lscr.
func (e *Engine) Finish(lwf float64) (Hypothesis, error) {
	if e.CurrentFrame < minUtteranceFrames {
		e.log.Warningf("utterance %s: %d frames < minimum %d, discarding", e.UtteranceID, e.CurrentFrame, minUtteranceFrames)
		return Hypothesis{UtteranceID: e.UtteranceID.String()}, nil
	}

	terminal, err := e.findOrSynthesizeTerminal(lwf)
	if err != nil {
		return Hypothesis{}, err
	}

	e.computeSegScores(lwf)

	path := e.backtracePath(terminal)
	hyp := Hypothesis{UtteranceID: e.UtteranceID.String()}
	for _, idx := range path {
		ent := e.BP.Entry(idx)
		seg := Segment{
			WID:        ent.WID,
			StartFrame: e.segmentStart(idx),
			EndFrame:   ent.Frame,
			Ascr:       ent.Ascr,
			Lscr:       ent.Lscr,
		}
		seg.LatticeDensity, seg.PhonePerplexity = e.segmentProfile(seg.StartFrame, seg.EndFrame)
		hyp.Segments = append(hyp.Segments, seg)
		hyp.TotalAscr += ent.Ascr
		hyp.TotalLscr += ent.Lscr
		if !e.isFiller(ent.WID) {
			hyp.Words = append(hyp.Words, ent.WID)
		}
	}
	return hyp, nil
}

// findOrSynthesizeTerminal finds the BPTable entry for </s> in the final
// frame; if absent, it picks the best-scoring entry in the latest
// non-empty frame and adjoins a synthetic </s> entry with an LM-scaled
// score, per spec.md §4.9/§7 ("</s> never reached" is Recoverable).
func (e *Engine) findOrSynthesizeTerminal(lwf float64) (int32, error) {
	finish := e.Dict.FinishWordID()
	lastFrame := e.CurrentFrame - 1

	start, end := e.BP.FrameStart(lastFrame), e.BP.Len()
	for idx := start; idx < end; idx++ {
		if e.BP.Entry(idx).WID == finish {
			return idx, nil
		}
	}

	bestIdx, bestFrame, ok := e.bestEntryInLatestNonEmptyFrame()
	if !ok {
		return 0, fmt.Errorf("hmmsearch: utterance %s: no back-pointer entries to terminate from", e.UtteranceID)
	}
	best := e.BP.Entry(bestIdx)
	e.log.Warningf("utterance %s: </s> never reached, synthesizing terminal from best entry at frame %d", e.UtteranceID, bestFrame)

	lm := lmTgScore(e.LM, e.Cfg.Use3gInFwdPass, best.PrevRealFwID, best.RealFwID, e.fwidOf(finish))
	score := best.Score + int32(float64(lm)*lwf)
	idx, ok := e.BP.Save(finish, bestFrame, score, bestIdx, 0, 1, -1)
	if !ok {
		return 0, fmt.Errorf("hmmsearch: utterance %s: BPTable overflow synthesizing terminal", e.UtteranceID)
	}
	e.BP.CachePaths(idx, e.isFiller, e.fwidOf)
	return idx, nil
}

func (e *Engine) bestEntryInLatestNonEmptyFrame() (int32, int32, bool) {
	for f := e.CurrentFrame - 1; f >= 0; f-- {
		start, end := e.BP.FrameStart(f), e.BP.FrameStart(f+1)
		if f == e.CurrentFrame-1 {
			end = e.BP.Len()
		}
		if end <= start {
			continue
		}
		best := start
		for idx := start + 1; idx < end; idx++ {
			if e.BP.Entry(idx).Score > e.BP.Entry(best).Score {
				best = idx
			}
		}
		return best, f, true
	}
	return 0, 0, false
}

// computeSegScores implements compute_seg_scores (spec.md §4.9): assigns
// every BPTable entry its acoustic and language score components.
func (e *Engine) computeSegScores(lwf float64) {
	sil := e.Dict.SilenceWordID()

	for idx := int32(0); idx < e.BP.Len(); idx++ {
		ent := e.BP.Entry(idx)
		switch {
		case ent.WID == sil:
			ent.Lscr = e.Cfg.SilenceWordPenalty
		case e.isFiller(ent.WID):
			ent.Lscr = e.Cfg.FillerWordPenalty
		default:
			lm := lmTgScore(e.LM, e.Cfg.Use3gInFwdPass, ent.PrevRealFwID, ent.RealFwID, e.fwidOf(ent.WID))
			ent.Lscr = int32(float64(lm) * lwf)
		}
		ent.Ascr = ent.Score - e.predecessorExitScore(idx) - ent.Lscr
	}
}

// predecessorExitScore returns the per-right-context exit score the
// predecessor entry supplied for this entry's first CI-phone, the quantity
// subtracted out of compute_seg_scores's ascr (and of last_phone_transition,
// see pruning.go) so the acoustic score shared across right contexts is not
// double-counted.
func (e *Engine) predecessorExitScore(idx int32) int32 {
	ent := e.BP.Entry(idx)
	if ent.BP == bptable.NoBP {
		return 0
	}
	pred := e.BP.Entry(ent.BP)
	de, ok := e.Dict.Entry(ent.WID)
	if !ok || de.Len() == 0 {
		return 0
	}
	rc := e.Dict.RightContextFwdPerm(pred.RDiph)
	firstCI := de.CIPhones[0]
	if int(firstCI) >= len(rc) {
		return 0
	}
	return e.BP.RCScore(ent.BP, rc[firstCI])
}

// backtracePath walks back from terminal through BP links, returning
// BPTable indices in chronological (oldest-first) order.
func (e *Engine) backtracePath(terminal int32) []int32 {
	var rev []int32
	for idx := terminal; idx != bptable.NoBP; idx = e.BP.Entry(idx).BP {
		rev = append(rev, idx)
	}
	path := make([]int32, len(rev))
	for i, idx := range rev {
		path[len(rev)-1-i] = idx
	}
	return path
}

// segmentStart returns the first frame of entry idx's time interval: one
// past its predecessor's end frame, or 0 if it has no predecessor.
func (e *Engine) segmentStart(idx int32) int32 {
	ent := e.BP.Entry(idx)
	if ent.BP == bptable.NoBP {
		return 0
	}
	return e.BP.Entry(ent.BP).Frame + 1
}

// segmentProfile computes lattice density (BPTable entries per frame) and
// phone perplexity (Glossary) averaged over [sf, ef], from the running
// per-frame diagnostics accumulated during Frame().
func (e *Engine) segmentProfile(sf, ef int32) (density float64, perplexity float64) {
	if ef < sf {
		return 0, 0
	}
	n := int64(ef-sf) + 1
	var sumDensity, sumPerp float64
	for f := sf; f <= ef; f++ {
		sumDensity += float64(e.latticeDensityAt(f))
		if int(f) < len(e.phonePerplexity) {
			sumPerp += e.phonePerplexity[f]
		}
	}
	return sumDensity / float64(n), sumPerp / float64(n)
}

// latticeDensityAt counts BPTable entries whose [start,end] interval covers
// frame f (Glossary: "Lattice density").
func (e *Engine) latticeDensityAt(f int32) int32 {
	var count int32
	for idx := int32(0); idx < e.BP.Len(); idx++ {
		ent := e.BP.Entry(idx)
		if ent.Frame < f {
			continue
		}
		if e.segmentStart(idx) > f {
			continue
		}
		count++
	}
	return count
}

// recordPhonePerplexity implements the Glossary's phone-perplexity formula
// over one frame's best-per-CI-phone scores, treated as unnormalized
// log-probabilities: exp(-Sum p(phi|f) * log p(phi|f)).
func recordPhonePerplexity(bestpscr []int32) float64 {
	if len(bestpscr) == 0 {
		return 0
	}
	max := bestpscr[0]
	for _, v := range bestpscr {
		if v > max {
			max = v
		}
	}
	var sum float64
	probs := make([]float64, len(bestpscr))
	for i, v := range bestpscr {
		p := math.Exp(float64(v-max) / 8)
		probs[i] = p
		sum += p
	}
	if sum == 0 {
		return 0
	}
	var entropy float64
	for _, p := range probs {
		q := p / sum
		if q > 0 {
			entropy -= q * math.Log(q)
		}
	}
	return math.Exp(entropy)
}

// PartialResult implements search_partial_result (spec.md §5): the back-trace
// from the exit-state back-pointer of the best live root or single-phone
// instance (interior nodes and leaves are not considered), without
// allocating BPTable entries or mutating engine state.
func (e *Engine) PartialResult() []dict.WordID {
	bestBP, bestScore := bptable.NoBP, config.WorstScore
	consider := func(active int32, back int32, score int32) {
		if active != e.CurrentFrame {
			return
		}
		if back == bptable.NoBP {
			return
		}
		if score > bestScore {
			bestScore = score
			bestBP = back
		}
	}
	for i := range e.Tree.Roots {
		r := &e.Tree.Roots[i]
		consider(r.State.Active, r.State.Back[hmm.ExitState], r.State.Best)
	}
	for i := range e.singlePhones {
		sp := &e.singlePhones[i]
		consider(sp.State.Active, sp.State.Back[hmm.ExitState], sp.State.Best)
	}
	if bestBP == bptable.NoBP {
		return nil
	}
	path := e.backtracePath(bestBP)
	words := make([]dict.WordID, 0, len(path))
	for _, idx := range path {
		wid := e.BP.Entry(idx).WID
		if !e.isFiller(wid) {
			words = append(words, wid)
		}
	}
	return words
}
