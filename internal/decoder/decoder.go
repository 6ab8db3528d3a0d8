// Package decoder wires every other internal package into the single
// per-utterance context spec.md Design Notes §9 calls for ("Global module
// state... encapsulate in a single Decoder context passed by reference
// through the core"). It owns the lexical tree (rebuilt only when the LM
// changes, per spec.md §3 Lifecycle) and drives the tree pass, the optional
// flat-lexicon second pass, and the final back-trace, the same way
// cmd/m2sim/main.go's runEmulation/runTiming glue a loaded Program into
// emu.Emulator/pipeline.Pipeline.
package decoder

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/sarchlab/hmmsearch/internal/acoustic"
	"github.com/sarchlab/hmmsearch/internal/activeset"
	"github.com/sarchlab/hmmsearch/internal/bptable"
	"github.com/sarchlab/hmmsearch/internal/config"
	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/fwdflat"
	"github.com/sarchlab/hmmsearch/internal/hmm"
	"github.com/sarchlab/hmmsearch/internal/lm"
	"github.com/sarchlab/hmmsearch/internal/search"
	"github.com/sarchlab/hmmsearch/internal/topsen"
	"github.com/sarchlab/hmmsearch/internal/tree"
)

// GlogLogger adapts search.Logger/fwdflat.Logger to glog, the leveled
// logging library already pulled in transitively by kho/fslm's Builder
// (SPEC_FULL.md §7): every beam change, active-channel growth and overflow
// warning the engine reports becomes a glog.V(n)/glog.Warningf call instead
// of a bespoke logger type.
type GlogLogger struct{ V glog.Level }

func (g GlogLogger) Infof(format string, args ...any) {
	glog.V(g.V).Infof(format, args...)
}

func (g GlogLogger) Warningf(format string, args ...any) { glog.Warningf(format, args...) }

// NewGlogLogger returns a Logger backed by glog at verbosity level v.
func NewGlogLogger(v glog.Level) GlogLogger { return GlogLogger{V: v} }

// Decoder is the top-level context owning the lexical tree, its interior-node
// capacity, and the collaborators consumed per spec.md §6. One Decoder may
// decode many utterances; the tree is rebuilt only when the vocabulary/LM
// restriction changes (signalled by InvalidateTree), per spec.md §3 Lifecycle.
type Decoder struct {
	Cfg  *config.Config
	Dict dict.Dictionary
	LM   lm.Model
	AM   hmm.AcousticModel
	Log  search.Logger

	tree              *tree.Tree
	singlePhoneWords  []dict.WordID
	interiorCapacity  int
	built             bool
}

// New constructs a Decoder. log may be nil, in which case diagnostics are
// dropped (matches search.NewEngine/fwdflat.NewEngine's noopLogger default).
func New(cfg *config.Config, d dict.Dictionary, m lm.Model, am hmm.AcousticModel, log search.Logger) *Decoder {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Decoder{Cfg: cfg, Dict: d, LM: m, AM: am, Log: log}
}

// rebuild implements create_search_tree + init_search_tree (spec.md §4.2):
// discovers the interior-node capacity over the whole dictionary once, then
// builds the LM-restricted tree. Subsequent calls are no-ops unless
// InvalidateTree is called (the active LM changed).
func (d *Decoder) rebuild() {
	if d.built {
		return
	}
	d.interiorCapacity = tree.DiscoverInteriorCapacity(d.Dict)
	d.tree = tree.NewTree(d.Dict.NumWords(), d.interiorCapacity, d.AM)
	d.singlePhoneWords = tree.Build(d.tree, d.Dict, d.LM.InLM)
	d.built = true
}

// InvalidateTree implements delete_search_tree (spec.md §4.2/§3 Lifecycle):
// call after swapping in a different LM/vocabulary restriction so the next
// DecodeUtterance rebuilds the interior tree from scratch.
func (d *Decoder) InvalidateTree() {
	if d.tree != nil {
		d.tree.Delete()
	}
	d.built = false
}

// Result is everything DecodeUtterance produces: the tree-pass diagnostics,
// the (optional) flat-pass hypothesis, and whichever hypothesis is final.
type Result struct {
	TreePass  search.Hypothesis
	FlatPass  *search.Hypothesis // nil when RunFlatPass is false
	Final     search.Hypothesis
	NumFrames int32
}

// DecodeUtterance runs the tree pass (spec.md §4.4-§4.6,§4.9) over exactly
// numFrames frames of scorer, optionally re-runs the flat-lexicon second
// pass (spec.md §4.7) over the tree pass's lattice, and returns whichever
// hypothesis is final. This is the single forward-step driving loop spec.md
// §5 describes: the caller supplies frames one at a time through scorer and
// may cancel cooperatively via ctx between frames.
func (d *Decoder) DecodeUtterance(ctx context.Context, scorer acoustic.Scorer, numFrames int32, runFlatPass bool) (Result, error) {
	d.rebuild()

	as := activeset.New(d.Dict.NumWords(), d.interiorCapacity)
	bp := bptable.New(
		d.Cfg.BPTableCapacity(d.Dict.NumWords()),
		d.Cfg.BScoreStackCapacity(d.Dict.NumWords()),
		d.Dict.NumWords(), int(numFrames))
	ts := topsen.New(d.Dict.NumCIPhones(), d.Cfg.TopsenWindow, d.Cfg.TopsenThresh, d.isFillerPhone)

	treeEngine := search.NewEngine(d.Cfg, d.Dict, d.LM, d.AM, d.tree, as, bp, ts, d.Log)
	for _, wid := range d.singlePhoneWords {
		entry, ok := d.Dict.Entry(wid)
		if !ok {
			continue
		}
		treeEngine.RegisterSinglePhone(wid, entry.FwID, entry.Ssids[0], entry.IsFiller)
	}

	for f := int32(0); f < numFrames; f++ {
		if _, err := treeEngine.Frame(ctx, scorer); err != nil {
			return Result{}, fmt.Errorf("hmmsearch: tree pass: %w", err)
		}
	}

	treeHyp, err := treeEngine.Finish(d.Cfg.FwdTreeLMWeight)
	if err != nil {
		return Result{}, fmt.Errorf("hmmsearch: tree pass finish: %w", err)
	}

	result := Result{TreePass: treeHyp, Final: treeHyp, NumFrames: numFrames}
	if !runFlatPass {
		return result, nil
	}

	flatHyp, err := d.runFlatPass(ctx, scorer, bp, ts, numFrames, treeEngine.TreePassRan)
	if err != nil {
		return Result{}, err
	}
	result.FlatPass = &flatHyp
	result.Final = flatHyp
	return result, nil
}

// runFlatPass implements the flat-lexicon second pass driving loop (spec.md
// §4.7): collapse the tree pass's BPTable into a candidate word list, build
// a fresh flat lexicon over it, re-run the frame loop with Fwdflat* beams,
// and back-trace the flat pass's own BPTable.
func (d *Decoder) runFlatPass(ctx context.Context, scorer acoustic.Scorer, treeBP *bptable.Table, treeTS *topsen.Predictor, numFrames int32, treePassRan bool) (search.Hypothesis, error) {
	wl := fwdflat.Build(treeBP, d.Dict.FinishWordID(), numFrames-1)

	flatBP := bptable.New(
		d.Cfg.BPTableCapacity(d.Dict.NumWords()),
		d.Cfg.BScoreStackCapacity(d.Dict.NumWords()),
		d.Dict.NumWords(), int(numFrames))

	flatEngine, err := fwdflat.NewEngine(d.Cfg, d.Dict, d.LM, d.AM, treeTS, flatBP, wl, treePassRan, d.Log)
	if err != nil {
		return search.Hypothesis{}, fmt.Errorf("hmmsearch: flat pass init: %w", err)
	}

	for f := int32(0); f < numFrames; f++ {
		if err := flatEngine.Frame(ctx, scorer); err != nil {
			return search.Hypothesis{}, fmt.Errorf("hmmsearch: flat pass: %w", err)
		}
	}

	// Finish() only reads BP/Dict/LM/Cfg/CurrentFrame (see
	// internal/search/backtrace.go): an empty Tree/ActiveSet stand-in is
	// enough to reuse the tree pass's back-trace/compute_seg_scores logic
	// against the flat pass's own BPTable, per spec.md §4.7's "idempotence
	// of pass 2" testable property (§8).
	finishEngine := search.NewEngine(d.Cfg, d.Dict, d.LM, d.AM,
		tree.NewTree(d.Dict.NumWords(), 0, d.AM),
		activeset.New(d.Dict.NumWords(), 0),
		flatBP, treeTS, d.Log)
	finishEngine.CurrentFrame = numFrames

	return finishEngine.Finish(d.Cfg.BestPathLMWeight)
}

func (d *Decoder) isFillerPhone(ciPhone int32) bool {
	name := d.Dict.CIPhoneName(ciPhone)
	return len(name) > 0 && name[0] == '+'
}
