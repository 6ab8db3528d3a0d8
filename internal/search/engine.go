// Package search implements the beam-search driver, pruning, cross-word
// transition and back-trace (spec.md §4.4-§4.6, §4.9; components C4, C5,
// C6, C9): the tree-pass half of the two-pass decoder. The per-frame driver
// mirrors a CPU pipeline's per-tick shape - evaluate every active unit,
// then prune, then transition, then advance - generalized from a fixed
// five-stage CPU pipeline to a variable-width HMM instance population.
package search

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/sarchlab/hmmsearch/internal/acoustic"
	"github.com/sarchlab/hmmsearch/internal/activeset"
	"github.com/sarchlab/hmmsearch/internal/bptable"
	"github.com/sarchlab/hmmsearch/internal/config"
	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/hmm"
	"github.com/sarchlab/hmmsearch/internal/lm"
	"github.com/sarchlab/hmmsearch/internal/topsen"
	"github.com/sarchlab/hmmsearch/internal/tree"
)

// SinglePhoneChan is a permanently allocated HMM instance for a one-phone
// word (real or filler), per spec.md §4.2: never freed, only its scores are
// cleared when it drops out of the beam.
type SinglePhoneChan struct {
	Word   dict.WordID
	FwID   dict.FwID
	Filler bool
	State  hmm.State
	Model  hmm.SingleModel
}

// lastPhoneCandidate is one pending last-phone-transition candidate
// (spec.md §4.5 last_phone_transition).
type lastPhoneCandidate struct {
	Word  dict.WordID
	Score int32
	BP    int32
}

// rightContextBest is one entry of the per-frame bestbp_rc map (spec.md
// §4.6): the best word-exit whose right-context score at a given CI-phone
// is maximal.
type rightContextBest struct {
	Score    int32
	BP       int32
	LeftCI   int32
	HasValue bool
}

// Engine is the single Decoder context spec.md Design Notes calls for: it
// owns every piece of per-utterance mutable state (root array, active
// lists, BPTable, counters, penalties) so concurrent decoding of
// independent utterances is trivially possible at the call site - no
// process-wide globals, unlike the reference search.c module.
type Engine struct {
	Cfg  *config.Config
	Dict dict.Dictionary
	LM   lm.Model
	AM   hmm.AcousticModel

	Tree   *tree.Tree
	Active *activeset.ActiveSet
	BP     *bptable.Table
	Topsen *topsen.Predictor

	// NumSenones sizes the active-senone mask passed to the acoustic
	// scorer every frame (spec.md §4.3 compute_sen_active).
	NumSenones int

	UtteranceID xid.ID

	CurrentFrame       int32
	BestScore          int32
	LastPhoneBestScore int32
	Renormalized       bool
	TreePassRan        bool

	singlePhones    []SinglePhoneChan
	singlePhoneIdx  map[dict.WordID]int
	lastPhoneCand   []lastPhoneCandidate
	lastLtrans      map[dict.WordID]int32
	bestbpRC        map[int32]rightContextBest
	wordExitsFrame  []dict.WordID

	// phonePerplexity[f] caches the Glossary "Phone perplexity" value for
	// frame f, computed once per frame in Frame() from the acoustic
	// front end's bestpscr vector, and later averaged per-segment in
	// backtrace.go.
	phonePerplexity []float64

	log Logger
}

// Logger is the structured/leveled logging sink the engine reports
// informational events through (spec.md §7 Informational). Implementations
// typically wrap glog, per SPEC_FULL.md §7.
type Logger interface {
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Infof(string, ...any)    {}
func (noopLogger) Warningf(string, ...any) {}

// NewEngine constructs an Engine ready to decode one utterance. Callers
// build a fresh Tree/ActiveSet/Table per utterance (or reuse across
// utterances sharing the same LM, per spec.md §3 Lifecycle) and pass them
// in, matching NewCore's "caller owns the shared resources" shape.
func NewEngine(cfg *config.Config, d dict.Dictionary, m lm.Model, am hmm.AcousticModel, t *tree.Tree, as *activeset.ActiveSet, bp *bptable.Table, ts *topsen.Predictor, log Logger) *Engine {
	if log == nil {
		log = noopLogger{}
	}
	e := &Engine{
		Cfg: cfg, Dict: d, LM: m, AM: am,
		Tree: t, Active: as, BP: bp, Topsen: ts,
		UtteranceID:    xid.New(),
		BestScore:      config.WorstScore,
		singlePhoneIdx:  make(map[dict.WordID]int),
		lastLtrans:      make(map[dict.WordID]int32),
		bestbpRC:        make(map[int32]rightContextBest),
		phonePerplexity: make([]float64, cfg.MaxFrames+1),
		log:             log,
	}
	bp.OnOverflow(func() {
		log.Warningf("utterance %s: BPTable overflow, dropping further word-exits", e.UtteranceID)
	})
	return e
}

// RegisterSinglePhone installs a permanently allocated HMM for a one-phone
// word (spec.md §4.2).
func (e *Engine) RegisterSinglePhone(w dict.WordID, fw dict.FwID, ssid int32, filler bool) {
	e.singlePhoneIdx[w] = len(e.singlePhones)
	spc := SinglePhoneChan{Word: w, FwID: fw, Filler: filler}
	spc.Model.AM = e.AM
	spc.Model.Ssid = ssid
	spc.State.Reset()
	e.singlePhones = append(e.singlePhones, spc)
}

// FrameResult reports what happened during one Frame call, for callers
// that want per-frame diagnostics without re-deriving them.
type FrameResult struct {
	Frame            int32
	BestScore        int32
	WordExits        int
	Renormalized     bool
}

// Frame advances the decoder by exactly one frame, implementing spec.md
// §4.4 steps 1-8: snapshot, optional renormalization, evaluate, prune,
// cross-word transition, state-clear, advance.
func (e *Engine) Frame(ctx context.Context, scorer acoustic.Scorer) (FrameResult, error) {
	if err := ctx.Err(); err != nil {
		return FrameResult{}, err
	}

	f := e.CurrentFrame
	e.TreePassRan = true
	e.BP.SnapshotFrame(f)

	if e.BestScore+2*e.Cfg.LogBeamWidth < config.WorstScore {
		e.renormalize()
	}

	active := e.activeSenoneMask(f)
	senoneScores, err := scorer.Score(ctx, int(f), active)
	if err != nil {
		return FrameResult{}, fmt.Errorf("hmmsearch: frame %d acoustic scoring: %w", f, err)
	}

	if bestp, topscr, ok := scorer.TopSenone(ctx, int(f)); ok {
		e.Topsen.Update(bestp, topscr)
		if int(f) < len(e.phonePerplexity) {
			e.phonePerplexity[f] = recordPhonePerplexity(bestp)
		}
	} else {
		e.Topsen.Update(nil, 0)
	}

	e.BestScore = config.WorstScore
	e.LastPhoneBestScore = config.WorstScore
	e.evaluate(senoneScores, f)

	e.Active.ResetFrame(f + 1)
	e.wordExitsFrame = e.wordExitsFrame[:0]
	skip := e.Cfg.SkipAltFrm != 0 && f%e.Cfg.SkipAltFrm == 0
	e.pruneRoots(f, skip)
	e.pruneNonRoots(f, skip)
	e.lastPhoneTransition(f)
	e.pruneWords(f)

	if len(e.wordExitsFrame) > 0 && !skip {
		e.crossWordTransition(f)
	}

	e.clearPrunedScores(f)

	e.CurrentFrame++
	e.LM.NextFrame()

	return FrameResult{Frame: f, BestScore: e.BestScore, WordExits: len(e.wordExitsFrame), Renormalized: e.Renormalized}, nil
}

func (e *Engine) activeSenoneMask(frame int32) []bool {
	if e.Cfg.ComputeAllSenones || e.NumSenones == 0 {
		return nil
	}
	return activeset.ComputeSenoneActive(
		frame,
		e.NumSenones,
		func(yield func(ssid int32)) {
			for i := range e.Tree.Roots {
				r := &e.Tree.Roots[i]
				if r.State.Active != frame {
					continue
				}
				if r.Mpx {
					for _, s := range r.Multiplex.Ssids {
						yield(s)
					}
				} else {
					yield(r.Single.Ssid)
				}
			}
		},
		func(id tree.NodeID) int32 { return e.Tree.Node(id).Single.Ssid },
		e.Active.Interior(frame),
		func(w dict.WordID) []int32 {
			var ssids []int32
			for id := e.Tree.LeafHead[w]; ; {
				l := e.Tree.Leaf(id)
				if l == nil {
					break
				}
				if l.State.Active == frame {
					ssids = append(ssids, l.Single.Ssid)
				}
				id = l.Next
			}
			return ssids
		},
		e.Active.Words(frame),
		func(ssid int32) [5]int32 { return e.AM.Topology(ssid).SenoneDist },
	)
}

// renormalize implements renormalize_scores (spec.md §4.9): subtracts
// BestScore from every live state score across roots, interior nodes, leaf
// chains and single-phone words, matching search.c's renormalize_scores and
// fwdflat_renormalize_scores, both of which walk every active channel kind
// uniformly rather than singling any out.
func (e *Engine) renormalize() {
	norm := e.BestScore
	for i := range e.Tree.Roots {
		clearState(&e.Tree.Roots[i].State, norm)
	}
	for i := range e.singlePhones {
		clearState(&e.singlePhones[i].State, norm)
	}
	for _, id := range e.Active.Interior(e.CurrentFrame) {
		if n := e.Tree.Node(id); n != nil {
			clearState(&n.State, norm)
		}
	}
	for _, w := range e.Active.Words(e.CurrentFrame) {
		for id := e.Tree.LeafHead[w]; ; {
			l := e.Tree.Leaf(id)
			if l == nil {
				break
			}
			clearState(&l.State, norm)
			id = l.Next
		}
	}
	e.Renormalized = true
}

func clearState(st *hmm.State, norm int32) {
	for i := range st.Score {
		if st.Score[i] > config.WorstScore {
			st.Score[i] -= norm
		}
	}
	if st.Best > config.WorstScore {
		st.Best -= norm
	}
}
