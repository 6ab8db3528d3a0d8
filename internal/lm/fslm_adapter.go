package lm

import (
	"github.com/kho/fslm"

	"github.com/sarchlab/hmmsearch/internal/dict"
)

// FSLMModel adapts github.com/kho/fslm's finite-state n-gram model (loaded
// from disk with fslm.FromBinary) to the lm.Model contract. fslm represents
// an n-gram LM as a weighted automaton: scoring a trigram means walking two
// transitions from the start state and reading off the accumulated weight,
// rather than a flat lookup table - the adapter below does exactly that
// walk, the same two-hop pattern fslm.Model.NextS itself uses for a single
// word.
type FSLMModel struct {
	model *fslm.Model
	lw    float64

	// fwidWord maps this decoder's fwids to the surface word string fslm's
	// vocabulary was trained on; fwids absent here are out-of-vocabulary
	// (InLM returns false) and looked up as fslm.WORD_NIL, which Vocab.IdOf
	// never returns for a real vocabulary entry.
	fwidWord map[dict.FwID]string
}

// NewFSLMModel wraps a loaded fslm.Model.
func NewFSLMModel(m *fslm.Model, languageWeight float64, fwidWord map[dict.FwID]string) *FSLMModel {
	return &FSLMModel{model: m, lw: languageWeight, fwidWord: fwidWord}
}

func (f *FSLMModel) wordID(fw dict.FwID) fslm.WordId {
	s, ok := f.fwidWord[fw]
	if !ok {
		return fslm.WORD_NIL
	}
	return f.model.Vocab.IdOf(s)
}

// Bigram walks one transition from the LM start state.
func (f *FSLMModel) Bigram(w1, w2 dict.FwID) int32 {
	p := f.model.Start()
	id1 := f.wordID(w1)
	if id1 == fslm.WORD_NIL {
		id1 = f.model.BOSId
	}
	q, weight := f.model.NextI(p, id1)
	id2 := f.wordID(w2)
	if id2 == fslm.WORD_NIL {
		return Score(float64(weight), f.lw)
	}
	_, w := f.model.NextI(q, id2)
	return Score(float64(weight)+float64(w), f.lw)
}

// Trigram walks two transitions from the LM start state, accumulating the
// backoff-aware weight fslm's automaton already encodes.
func (f *FSLMModel) Trigram(w1, w2, w3 dict.FwID) int32 {
	p := f.model.Start()
	if id1 := f.wordID(w1); id1 != fslm.WORD_NIL {
		p, _ = f.model.NextI(p, id1)
	}
	var acc fslm.Weight
	if id2 := f.wordID(w2); id2 != fslm.WORD_NIL {
		var w2w fslm.Weight
		p, w2w = f.model.NextI(p, id2)
		acc += w2w
	}
	id3 := f.wordID(w3)
	if id3 == fslm.WORD_NIL {
		return Score(float64(acc), f.lw)
	}
	_, w3w := f.model.NextI(p, id3)
	return Score(float64(acc+w3w), f.lw)
}

// NextFrame is a no-op: fslm's automaton carries no per-utterance cache that
// needs a tick, unlike the original Sphinx2 trigram-cache module this
// contract was written for (lm_next_frame).
func (f *FSLMModel) NextFrame() {}

// InLM reports vocabulary membership via the fwid->word map supplied at
// construction.
func (f *FSLMModel) InLM(fwid dict.FwID) bool {
	_, ok := f.fwidWord[fwid]
	return ok
}
