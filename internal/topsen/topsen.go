// Package topsen implements the phone-lookahead ("top-senone gating")
// predictor (spec.md §4.8, component C8): a windowed counter over
// best-per-CI-phone acoustic scores that gates which phone transitions
// §4.5/§4.6 may take. It is grounded on the teacher's BranchPredictor
// (timing/pipeline/branch_predictor.go): both maintain a small rolling
// window of recent evidence and expose an allow/deny predicate plus a
// Stats() snapshot, though the underlying counter here sums a window of
// acoustic hits rather than a 2-bit saturating counter.
package topsen

// Predictor gates phone transitions by recent acoustic evidence.
type Predictor struct {
	window int32
	thresh int32

	npa     []int32   // cumulative count of frames predicting phone p, over the window
	npaFrm  [][]int32 // ring buffer: npaFrm[i] is frame (now-window+1+i)'s contribution
	filler  []bool
	frame   int32

	nPhnInTopsen int64 // diagnostic: Sigma over frames of phones predicted, excluding fillers
}

// New builds a Predictor for numPhones CI-phones. window <= 1 disables
// prediction entirely: Allowed always returns true (spec.md §4.8/§8
// "topsen_window = 1: npa[p] = 1 for all p always").
func New(numPhones int, window, thresh int32, isFiller func(ciPhone int32) bool) *Predictor {
	p := &Predictor{window: window, thresh: thresh}
	p.npa = make([]int32, numPhones)
	p.filler = make([]bool, numPhones)
	for i := 0; i < numPhones; i++ {
		p.filler[i] = isFiller(int32(i))
	}
	if window <= 1 {
		for i := range p.npa {
			p.npa[i] = 1
		}
		return p
	}
	p.npaFrm = make([][]int32, window)
	for i := range p.npaFrm {
		p.npaFrm[i] = make([]int32, numPhones)
	}
	return p
}

// Update advances the predictor by one frame given this frame's
// best-per-CI-phone scores and the frame's single best senone score, per
// spec.md §4.8 / search.c's compute_phone_active: retires the oldest
// frame's contribution, computes the new frame's contribution
// (bestpscr[p] > topsenscr+thresh), and folds it in.
func (p *Predictor) Update(bestpscr []int32, topsenscr int32) {
	p.frame++
	if p.window <= 1 {
		return
	}

	oldest := p.npaFrm[0]
	for i, v := range oldest {
		p.npa[i] -= v
	}
	copy(p.npaFrm, p.npaFrm[1:])
	newFrame := oldest
	p.npaFrm[len(p.npaFrm)-1] = newFrame

	thresh := topsenscr + p.thresh
	for i := range newFrame {
		if i < len(bestpscr) && bestpscr[i] > thresh {
			newFrame[i] = 1
		} else {
			newFrame[i] = 0
		}
	}
	for i, v := range newFrame {
		p.npa[i] += v
		if v > 0 && !p.filler[i] {
			p.nPhnInTopsen++
		}
	}
}

// Allowed reports whether ciPhone may be transitioned to this frame: filler
// phones are always allowed, per spec.md §4.8.
func (p *Predictor) Allowed(ciPhone int32) bool {
	if int(ciPhone) >= len(p.filler) {
		return true
	}
	if p.filler[ciPhone] {
		return true
	}
	return p.npa[ciPhone] > 0
}

// Stats is a Predictor diagnostic snapshot, mirroring the shape of
// BranchPredictor.Stats() in the teacher.
type Stats struct {
	Frame        int32
	Window       int32
	PhonesInTopsenWindow int64
}

// Stats returns a snapshot of the predictor's diagnostic counters.
func (p *Predictor) Stats() Stats {
	return Stats{Frame: p.frame, Window: p.window, PhonesInTopsenWindow: p.nPhnInTopsen}
}
