// Package hmm implements the five-state left-to-right Viterbi state update
// (spec.md §4.1, component C1): the single per-instance-per-frame step every
// root, interior and leaf channel in the search tree executes. It is the
// decoder's analogue of a CPU pipeline's per-stage execute step - one call
// advances one active unit by exactly one tick.
package hmm

import "github.com/sarchlab/hmmsearch/internal/config"

// NumStates is the number of Viterbi state-score slots per instance: five
// emitting states (0..4) plus one non-emitting exit state (5).
const NumStates = 6

// ExitState is the non-emitting terminal state whose score is the
// instance's word-exit / next-phone-entry score.
const ExitState = NumStates - 1

// State holds the six Viterbi scores and back-pointers of one HMM instance.
// It carries no identity of its own - the owning root/interior/leaf record
// (internal/tree) pairs a State with a Model.
type State struct {
	Score [NumStates]int32
	Back  [NumStates]int32 // BPTable indices, or -1
	Best  int32
	Active int32 // frame watermark; instance is live iff Active == current frame
}

// Reset clears a state to all-inactive, per spec.md Design Notes' "UGLY!
// score-clear passes": inactive slots must read WorstScore so an incoming
// transition writes cleanly via max-update.
func (s *State) Reset() {
	for i := range s.Score {
		s.Score[i] = config.WorstScore
		s.Back[i] = -1
	}
	s.Best = config.WorstScore
	s.Active = -1
}

// Model is the generic "model accessor" the Design Notes call for: a single
// hmm.Step works over either a fixed-ssid (SingleModel) or per-state mpx
// (MultiplexModel) backing, so both specializations share one update loop.
type Model interface {
	// ObsScore returns the observation score of emitting state s (0..4)
	// given this frame's senone scores.
	ObsScore(s int, senoneScores []int32) int32
	// TransScore returns the transition score from state `from` to state
	// `to`, and whether that transition exists in this model's topology.
	TransScore(from, to int) (int32, bool)
	// SsidAt returns the ssid currently modeling state s.
	SsidAt(s int) int32
	// SetSsidAt rewrites the ssid modeling state s. Only meaningful (and
	// only ever called) when Multiplex() is true.
	SetSsidAt(s int, ssid int32)
	// Multiplex reports whether per-state ssid must be propagated down the
	// state chain on each update (true only for mpx roots).
	Multiplex() bool
}

// Step advances one HMM instance by one frame, per spec.md §4.1: states are
// updated in reverse order (5 down to 0) so later states never read
// already-updated earlier states within the same call. For each state i the
// winning predecessor among {self(i), next(i-1), skip(i-2)} is whichever
// clears config.WorstScore and maximizes score+transition; ties are broken
// in favor of the first-evaluated predecessor (self, then next, then skip),
// matching the strict `>` comparison order in the original CHAN_V_EVAL
// macro - a later-evaluated candidate never displaces an earlier tie.
func Step(m Model, senoneScores []int32, st *State, frame int32) {
	var newScore [NumStates]int32
	var newBack [NumStates]int32
	var newSsid [NumStates]int32
	mpx := m.Multiplex()

	for i := NumStates - 1; i >= 0; i-- {
		best := config.WorstScore
		bestFrom := -1
		for _, from := range [3]int{i, i - 1, i - 2} {
			if from < 0 || from >= NumStates {
				continue
			}
			if st.Score[from] <= config.WorstScore {
				continue
			}
			trans, ok := m.TransScore(from, i)
			if !ok {
				continue
			}
			cand := st.Score[from] + trans
			if cand > best {
				best = cand
				bestFrom = from
			}
		}

		if bestFrom < 0 {
			newScore[i] = config.WorstScore
			newBack[i] = st.Back[i]
			if mpx {
				newSsid[i] = m.SsidAt(i)
			}
			continue
		}

		if i != ExitState {
			best += m.ObsScore(i, senoneScores)
		}
		newScore[i] = best
		newBack[i] = st.Back[bestFrom]
		if mpx {
			newSsid[i] = m.SsidAt(bestFrom)
		}
	}

	st.Score = newScore
	st.Back = newBack
	st.Active = frame

	best := config.WorstScore
	for _, s := range newScore {
		if s > best {
			best = s
		}
	}
	st.Best = best

	if mpx {
		for i := 0; i < NumStates; i++ {
			m.SetSsidAt(i, newSsid[i])
		}
	}
}
