// Package lm defines the n-gram language-model contract consumed by the
// search engine (spec.md §6 "LM"): bigram/trigram scores over fwids, a
// frame-boundary cache tick, and vocabulary membership. The probability
// store itself is out of scope (spec.md §1 Non-goals); this package states
// the shape, and additionally ships a real adapter over the example pack's
// github.com/kho/fslm finite-state n-gram model so the decoder has a
// runnable LM to exercise instead of only a test double.
package lm

import "github.com/sarchlab/hmmsearch/internal/dict"

// Model is the LM contract the search core consumes.
type Model interface {
	// Bigram returns the fixed-scale log-probability of w2 following w1.
	Bigram(w1, w2 dict.FwID) int32
	// Trigram returns the fixed-scale log-probability of w3 following w1,w2.
	// Fallback behavior when the trigram (or bigram) is absent is delegated
	// entirely to the implementation - spec.md Design Notes leaves this an
	// open question resolved by "whatever the LM module does".
	Trigram(w1, w2, w3 dict.FwID) int32
	// NextFrame ticks the LM's internal history cache forward one frame.
	NextFrame()
	// InLM reports whether fwid is present in the active LM's vocabulary.
	InLM(fwid dict.FwID) bool
}

// Score scales a language-model log-probability (natural-log, LM-native
// scale) into the engine's fixed integer log scale and applies the language
// weight, matching spec.md §4.4's "expressed as 8*log(width)" convention.
func Score(logProb float64, languageWeight float64) int32 {
	return int32(logProb * languageWeight * 8)
}

// TgScore picks trigram-or-bigram scoring the way search.c's lm_tg_score
// does, honoring Use3gInFwdPass. The actual trigram/bigram backoff
// arbitration inside that call remains the LM's own business.
func TgScore(m Model, use3g bool, w1, w2, w3 dict.FwID) int32 {
	if use3g {
		return m.Trigram(w1, w2, w3)
	}
	return m.Bigram(w2, w3)
}
