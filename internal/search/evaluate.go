package search

import (
	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/hmm"
)

// evaluate runs the C1 Viterbi step over every active root, interior, leaf
// and single-phone instance, tracking BestScore (max bestscore over all
// active instances) and LastPhoneBestScore (max over leaf + single-phone
// instances, excluding </s>), per spec.md §4.4 step 4.
func (e *Engine) evaluate(senoneScores []int32, frame int32) {
	for i := range e.Tree.Roots {
		r := &e.Tree.Roots[i]
		if r.State.Active != frame {
			continue
		}
		hmm.Step(r.Model(), senoneScores, &r.State, frame)
		e.trackBest(r.State.Best)
	}

	for _, id := range e.Active.Interior(frame) {
		n := e.Tree.Node(id)
		if n == nil || n.State.Active != frame {
			continue
		}
		hmm.Step(&n.Single, senoneScores, &n.State, frame)
		e.trackBest(n.State.Best)
	}

	for _, w := range e.Active.Words(frame) {
		for id := e.Tree.LeafHead[w]; ; {
			l := e.Tree.Leaf(id)
			if l == nil {
				break
			}
			if l.State.Active == frame {
				hmm.Step(&l.Single, senoneScores, &l.State, frame)
				e.trackBest(l.State.Best)
				e.trackLastPhone(w, l.State.Best)
			}
			id = l.Next
		}
	}

	for i := range e.singlePhones {
		sp := &e.singlePhones[i]
		if sp.State.Active != frame {
			continue
		}
		hmm.Step(&sp.Model, senoneScores, &sp.State, frame)
		e.trackBest(sp.State.Best)
		if sp.Word != e.Dict.FinishWordID() {
			e.trackLastPhone(sp.Word, sp.State.Best)
		}
	}
}

func (e *Engine) trackBest(score int32) {
	if score > e.BestScore {
		e.BestScore = score
	}
}

func (e *Engine) trackLastPhone(w dict.WordID, score int32) {
	if w == e.Dict.FinishWordID() {
		return
	}
	if score > e.LastPhoneBestScore {
		e.LastPhoneBestScore = score
	}
}
