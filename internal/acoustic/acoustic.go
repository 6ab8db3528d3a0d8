// Package acoustic defines the per-frame senone-scoring contract the search
// engine consumes. GMM/VQ scoring itself is out of scope (spec.md §1
// Non-goals); the engine only calls into this interface once per frame and
// only supplies an active-senone mask back so the scorer may skip unused
// computation, matching spec.md §4.3/§6.
package acoustic

import "context"

// Scorer produces per-frame senone scores.
type Scorer interface {
	// Score returns senone_scores[TotalDists] for the given frame. active,
	// when non-nil, marks which senones the engine actually needs this frame
	// (spec.md §4.3 compute_sen_active); a scorer unable to exploit this may
	// ignore it and score everything.
	Score(ctx context.Context, frame int, active []bool) (senoneScores []int32, err error)

	// TopSenone optionally returns the best-per-CI-phone score vector and
	// the frame's single best senone score, used by the phone-lookahead
	// predictor (spec.md §4.8). ok is false when the front end does not
	// supply this (topsen_window == 1 behavior).
	TopSenone(ctx context.Context, frame int) (bestpscr []int32, topsenscr int32, ok bool)
}
