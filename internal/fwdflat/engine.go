package fwdflat

import (
	"context"
	"fmt"

	"github.com/sarchlab/hmmsearch/internal/acoustic"
	"github.com/sarchlab/hmmsearch/internal/bptable"
	"github.com/sarchlab/hmmsearch/internal/config"
	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/hmm"
	"github.com/sarchlab/hmmsearch/internal/lm"
	"github.com/sarchlab/hmmsearch/internal/topsen"
)

// wordChan is one word's freshly allocated, non-prefix-shared HMM chain
// (spec.md §4.7): a root phone, an optional linear mid chain covering
// phones 1..len-2, and a final phone fanned out by right context exactly as
// internal/tree's leaves are. Two-phone words skip the mid chain; one-phone
// words (including fillers reused from the tree pass's vocabulary) skip both
// and use the root's own exit state as their word-exit.
type wordChan struct {
	WID   dict.WordID
	Entry dict.Entry

	RootState hmm.State
	rootSingle hmm.SingleModel
	rootMulti  hmm.MultiplexModel

	Mid      []hmm.State
	midModel []hmm.SingleModel

	Leaves []leafChan
}

type leafChan struct {
	RC    int32
	State hmm.State
	Model hmm.SingleModel
}

func (w *wordChan) rootModel() hmm.Model {
	if w.Entry.Mpx {
		return &w.rootMulti
	}
	return &w.rootSingle
}

// buildWordChan allocates entry's flat HMM chain, per spec.md §4.2's model
// shapes but with every instance privately owned (no InsertChild sharing).
func buildWordChan(entry dict.Entry, am hmm.AcousticModel, dictn dict.Dictionary) *wordChan {
	w := &wordChan{WID: entry.WID, Entry: entry}
	w.RootState.Reset()

	if entry.Mpx {
		w.rootMulti.AM = am
		for i := range w.rootMulti.Ssids {
			w.rootMulti.Ssids[i] = entry.Ssids[0]
		}
	} else {
		w.rootSingle.AM = am
		w.rootSingle.Ssid = entry.Ssids[0]
	}

	if entry.Len() <= 1 {
		return w
	}

	midCount := entry.Len() - 2
	if midCount > 0 {
		w.Mid = make([]hmm.State, midCount)
		w.midModel = make([]hmm.SingleModel, midCount)
		for i := 0; i < midCount; i++ {
			w.Mid[i].Reset()
			w.midModel[i] = hmm.SingleModel{AM: am, Ssid: entry.Ssids[i+1]}
		}
	}

	fanout := int(dictn.RightContextFwdSize(entry.FinalDiph))
	if fanout == 0 {
		fanout = 1
	}
	rcSsids := dictn.RightContextFwd(entry.FinalDiph)
	w.Leaves = make([]leafChan, fanout)
	for rc := 0; rc < fanout; rc++ {
		ssid := entry.Ssids[entry.Len()-1]
		if rc < len(rcSsids) {
			ssid = rcSsids[rc]
		}
		w.Leaves[rc].RC = int32(rc)
		w.Leaves[rc].State.Reset()
		w.Leaves[rc].Model = hmm.SingleModel{AM: am, Ssid: ssid}
	}
	return w
}

// rightContextBest mirrors search.rightContextBest: the best word-exit this
// frame whose right-context score at a CI-phone is maximal.
type rightContextBest struct {
	Score    int32
	BP       int32
	LeftCI   int32
	HasValue bool
}

// Engine drives the flat-lexicon second pass over its own BPTable, reusing
// the candidate structure a prior tree-pass run produced (spec.md §4.7).
// Like search.Engine it owns all of its per-utterance mutable state so two
// independent second passes never share memory.
type Engine struct {
	Cfg    *config.Config
	Dict   dict.Dictionary
	LM     lm.Model
	AM     hmm.AcousticModel
	Topsen *topsen.Predictor // optional; nil disables phone-lookahead gating

	BP *bptable.Table

	WordList *WordList

	// TreePassRan mirrors search.Engine.TreePassRan: when false,
	// ExpandWordList falls back to the full candidate union instead of the
	// time-windowed subset, per spec.md §4.7.
	TreePassRan bool

	CurrentFrame int32
	BestScore    int32
	WordBestScore int32

	words          []*wordChan
	wordIdx        map[dict.WordID]int
	bestbpRC       map[int32]rightContextBest
	wordExitsFrame []dict.WordID

	log Logger
}

// Logger matches search.Logger so callers can share one sink.
type Logger interface {
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Infof(string, ...any)    {}
func (noopLogger) Warningf(string, ...any) {}

// NewEngine builds the flat lexicon from wl.Union() and an output BPTable,
// ready to re-run the frame loop from frame 0.
func NewEngine(cfg *config.Config, d dict.Dictionary, m lm.Model, am hmm.AcousticModel, ts *topsen.Predictor, bp *bptable.Table, wl *WordList, treePassRan bool, log Logger) (*Engine, error) {
	if log == nil {
		log = noopLogger{}
	}
	e := &Engine{
		Cfg: cfg, Dict: d, LM: m, AM: am, Topsen: ts,
		BP:          bp,
		WordList:    wl,
		TreePassRan: treePassRan,
		BestScore:   config.WorstScore,
		wordIdx:     make(map[dict.WordID]int),
		bestbpRC:    make(map[int32]rightContextBest),
		log:         log,
	}
	bp.OnOverflow(func() {
		log.Warningf("fwdflat: BPTable overflow, dropping further word-exits")
	})

	for _, wid := range wl.Union() {
		entry, ok := d.Entry(wid)
		if !ok {
			continue
		}
		e.wordIdx[wid] = len(e.words)
		e.words = append(e.words, buildWordChan(entry, am, d))
	}

	// The utterance-initial candidate set: every word whose start-frame
	// window covers frame 0 (or the full union, absent a tree pass).
	for _, wid := range wl.ExpandWordList(0, MaxSFWin, treePassRan) {
		if idx, ok := e.wordIdx[wid]; ok {
			e.words[idx].RootState.Score[0] = 0
			e.words[idx].RootState.Active = 0
		}
	}

	return e, nil
}

// Frame advances the flat pass by one frame: evaluate every active
// component, prune by the Fwdflat beams, save surviving word-exits, and
// transition next frame's candidate set restricted to ExpandWordList.
func (e *Engine) Frame(ctx context.Context, scorer acoustic.Scorer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f := e.CurrentFrame
	e.BP.SnapshotFrame(f)

	senoneScores, err := scorer.Score(ctx, int(f), nil)
	if err != nil {
		return fmt.Errorf("hmmsearch: fwdflat frame %d acoustic scoring: %w", f, err)
	}

	e.BestScore = config.WorstScore
	e.WordBestScore = config.WorstScore
	e.evaluate(senoneScores, f)

	e.wordExitsFrame = e.wordExitsFrame[:0]
	e.prune(f)

	if len(e.wordExitsFrame) > 0 {
		e.crossWordTransition(f)
	}

	e.CurrentFrame++
	e.LM.NextFrame()
	return nil
}

func (e *Engine) evaluate(senoneScores []int32, f int32) {
	for _, w := range e.words {
		if w.RootState.Active == f {
			hmm.Step(w.rootModel(), senoneScores, &w.RootState, f)
			e.trackBest(w.RootState.Best)
		}
		for i := range w.Mid {
			if w.Mid[i].Active == f {
				hmm.Step(&w.midModel[i], senoneScores, &w.Mid[i], f)
				e.trackBest(w.Mid[i].Best)
			}
		}
		for i := range w.Leaves {
			l := &w.Leaves[i]
			if l.State.Active == f {
				hmm.Step(&l.Model, senoneScores, &l.State, f)
				e.trackBest(l.State.Best)
				e.trackWordBest(l.State.Best)
			}
		}
		if len(w.Leaves) == 0 && w.Entry.Len() <= 1 && w.RootState.Active == f {
			e.trackWordBest(w.RootState.Best)
		}
	}
}

func (e *Engine) trackBest(score int32) {
	if score > e.BestScore {
		e.BestScore = score
	}
}

func (e *Engine) trackWordBest(score int32) {
	if score > e.WordBestScore {
		e.WordBestScore = score
	}
}

// prune implements the flat-pass analogue of prune_root_chan/prune_word_chan
// with a single Fwdflat beam pair in place of the tree pass's five beams
// (spec.md §4.7 names only FwdflatLogBeamWidth and FwdflatLogWordBeamWidth).
func (e *Engine) prune(f int32) {
	globalThresh := e.BestScore + e.Cfg.FwdflatLogBeamWidth
	wordThresh := e.WordBestScore + e.Cfg.FwdflatLogWordBeamWidth
	pip := e.Cfg.PhoneInsertionPenalty

	for _, w := range e.words {
		if w.RootState.Active == f {
			if w.RootState.Best < globalThresh {
				w.RootState.Reset()
			} else {
				w.RootState.Active = f + 1
				exit := w.RootState.Score[hmm.ExitState] + pip
				switch {
				case len(w.Mid) > 0:
					e.enter(&w.Mid[0], exit, w.RootState.Back[hmm.ExitState], f, w.Entry.CIPhones[1])
				case len(w.Leaves) > 0:
					e.enterLeaves(w, exit, w.RootState.Back[hmm.ExitState], f)
				case w.Entry.Len() <= 1:
					if exit >= wordThresh {
						e.saveWordExit(w, 0, exit, w.RootState.Back[hmm.ExitState], f)
					}
				}
			}
		}

		for i := range w.Mid {
			st := &w.Mid[i]
			if st.Active != f {
				continue
			}
			if st.Best < globalThresh {
				st.Reset()
				continue
			}
			st.Active = f + 1
			exit := st.Score[hmm.ExitState] + pip
			if i+1 < len(w.Mid) {
				e.enter(&w.Mid[i+1], exit, st.Back[hmm.ExitState], f, w.Entry.CIPhones[i+2])
			} else {
				e.enterLeaves(w, exit, st.Back[hmm.ExitState], f)
			}
		}

		for i := range w.Leaves {
			l := &w.Leaves[i]
			if l.State.Active != f {
				continue
			}
			if l.State.Best < globalThresh {
				l.State.Reset()
				continue
			}
			l.State.Active = f + 1
			exit := l.State.Score[hmm.ExitState] + pip
			if exit >= wordThresh {
				e.saveWordExit(w, l.RC, exit, l.State.Back[hmm.ExitState], f)
			}
		}
	}
}

func (e *Engine) enter(st *hmm.State, score int32, bp int32, f int32, ciPhone int32) {
	if e.Topsen != nil && !e.Topsen.Allowed(ciPhone) {
		return
	}
	if st.Active == f+1 && score <= st.Score[0] {
		return
	}
	st.Score[0] = score
	st.Back[0] = bp
	st.Active = f + 1
}

func (e *Engine) enterLeaves(w *wordChan, score int32, bp int32, f int32) {
	lastCI := w.Entry.CIPhones[w.Entry.Len()-1]
	if e.Topsen != nil && !e.Topsen.Allowed(lastCI) {
		return
	}
	for i := range w.Leaves {
		l := &w.Leaves[i]
		if l.State.Active == f+1 && score <= l.State.Score[0] {
			continue
		}
		l.State.Score[0] = score
		l.State.Back[0] = bp
		l.State.Active = f + 1
	}
}

func (e *Engine) saveWordExit(w *wordChan, rc int32, score int32, bp int32, f int32) {
	fanout := int32(len(w.Leaves))
	if fanout <= 0 {
		fanout = 1
	}
	idx, ok := e.BP.Save(w.WID, f, score, bp, rc, fanout, w.Entry.FinalDiph)
	if !ok {
		return
	}
	e.BP.CachePaths(idx, e.isFiller, e.fwidOf)
	e.wordExitsFrame = append(e.wordExitsFrame, w.WID)
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
