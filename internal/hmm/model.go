package hmm

// Topology describes the transition-probability vector of one ssid: a
// 5-state left-to-right HMM with self/next/skip transitions for states 0..3
// and a self + next-to-exit pair for state 4 (spec.md §3: "transition
// probability vector covering 14 transitions"). trans[from][to] holds the
// score, keyed by the two state indices actually involved.
type Topology struct {
	// SenoneDist[s] is the observation-distribution index for emitting
	// state s (0..4).
	SenoneDist [5]int32
	// Trans holds the 14 defined transition scores, indexed [from][to].
	// Undefined (from,to) pairs are simply absent from the map.
	Trans map[[2]int]int32
}

// ObsScore looks up state s's observation-distribution score in
// senoneScores, indexed by SenoneDist[s].
func (t *Topology) obsScore(s int, senoneScores []int32) int32 {
	d := t.SenoneDist[s]
	if int(d) >= len(senoneScores) {
		return 0
	}
	return senoneScores[d]
}

func (t *Topology) transScore(from, to int) (int32, bool) {
	v, ok := t.Trans[[2]int{from, to}]
	return v, ok
}

// AcousticModel resolves an ssid to its Topology. Supplied by the dictionary
// collaborator; the search engine only ever indexes into it.
type AcousticModel interface {
	Topology(ssid int32) *Topology
}

// SingleModel implements hmm.Model for a non-mpx instance: one fixed ssid
// for its whole lifetime.
type SingleModel struct {
	AM   AcousticModel
	Ssid int32
}

func (m *SingleModel) ObsScore(s int, senoneScores []int32) int32 {
	return m.AM.Topology(m.Ssid).obsScore(s, senoneScores)
}

func (m *SingleModel) TransScore(from, to int) (int32, bool) {
	return m.AM.Topology(m.Ssid).transScore(from, to)
}

func (m *SingleModel) SsidAt(int) int32      { return m.Ssid }
func (m *SingleModel) SetSsidAt(int, int32)  {}
func (m *SingleModel) Multiplex() bool        { return false }

// MultiplexModel implements hmm.Model for an mpx root: each state carries
// its own ssid, rewritten at every entry event to reflect the left-context
// CI-phone of whichever predecessor word transitioned in (spec.md §3 "Root
// channels").
type MultiplexModel struct {
	AM    AcousticModel
	Ssids [NumStates - 1]int32 // one per emitting state; exit state has none
}

func (m *MultiplexModel) ObsScore(s int, senoneScores []int32) int32 {
	return m.AM.Topology(m.Ssids[s]).obsScore(s, senoneScores)
}

func (m *MultiplexModel) TransScore(from, to int) (int32, bool) {
	// Transition scores for an mpx root are keyed by the *destination*
	// state's ssid, since the transition matrix is a per-phone property and
	// the destination state is what is being entered.
	ssid := m.ssidForTrans(to)
	return m.AM.Topology(ssid).transScore(from, to)
}

func (m *MultiplexModel) ssidForTrans(state int) int32 {
	if state >= len(m.Ssids) {
		return m.Ssids[len(m.Ssids)-1]
	}
	return m.Ssids[state]
}

func (m *MultiplexModel) SsidAt(s int) int32 {
	if s >= len(m.Ssids) {
		return m.Ssids[len(m.Ssids)-1]
	}
	return m.Ssids[s]
}

func (m *MultiplexModel) SetSsidAt(s int, ssid int32) {
	if s >= len(m.Ssids) {
		return
	}
	m.Ssids[s] = ssid
}

func (m *MultiplexModel) Multiplex() bool { return true }
