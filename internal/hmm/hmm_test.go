package hmm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/hmmsearch/internal/config"
	"github.com/sarchlab/hmmsearch/internal/hmm"
)

type stubAM struct {
	topologies map[int32]*hmm.Topology
}

func (s *stubAM) Topology(ssid int32) *hmm.Topology { return s.topologies[ssid] }

func standardTopology(senone int32) *hmm.Topology {
	return &hmm.Topology{
		SenoneDist: [5]int32{senone, senone, senone, senone, senone},
		Trans: map[[2]int]int32{
			{0, 0}: -8, {0, 1}: 0, {0, 2}: -16,
			{1, 1}: -8, {1, 2}: 0, {1, 3}: -16,
			{2, 2}: -8, {2, 3}: 0, {2, 4}: -16,
			{3, 3}: -8, {3, 4}: 0, {3, 5}: -16,
			{4, 4}: -8, {4, 5}: 0,
		},
	}
}

var _ = Describe("Step", func() {
	var (
		am    *stubAM
		model hmm.SingleModel
		st    hmm.State
	)

	BeforeEach(func() {
		am = &stubAM{topologies: map[int32]*hmm.Topology{7: standardTopology(7)}}
		model = hmm.SingleModel{AM: am, Ssid: 7}
		st.Reset()
	})

	It("resets to WorstScore/inactive", func() {
		for _, s := range st.Score {
			Expect(s).To(Equal(config.WorstScore))
		}
		Expect(st.Active).To(Equal(int32(-1)))
	})

	It("enters state 0 on the first frame from its own self-loop only", func() {
		st.Score[0] = 0
		senones := []int32{0, 0, 0, 0, 0, 0, 0, 0}
		hmm.Step(&model, senones, &st, 0)
		Expect(st.Score[0]).To(Equal(int32(-8))) // self-loop -8 + obs 0
		Expect(st.Active).To(Equal(int32(0)))
		Expect(st.Best).To(Equal(int32(0))) // state 1, entered via next(0 + 0), beats state 0's -8
	})

	It("advances state 0 to state 1 via the next transition", func() {
		st.Score[0] = 0
		senones := []int32{0, 0, 0, 0, 0, 0, 0, 0}
		hmm.Step(&model, senones, &st, 0)
		hmm.Step(&model, senones, &st, 1)
		// after frame 0, state 0 is -8 and state 1 is 0:
		// state1 = max(self(0 + -8), next(-8 + 0)) + obs 0 = -8
		Expect(st.Score[1]).To(Equal(int32(-8)))
	})

	It("prefers self over next over skip on an exact tie, per the strict > comparison", func() {
		// Craft scores so self(i), next(i-1) and skip(i-2) all produce the
		// same candidate value for state 2; the back-pointer must come from
		// state 2's own self transition (the first-evaluated predecessor),
		// matching CHAN_V_EVAL's strict `>` tie-break.
		st.Score[2] = 0  // self: 0 + (-8) = -8
		st.Score[1] = -8 // next: -8 + 0 = -8
		st.Score[0] = 8  // skip: 8 + (-16) = -8
		st.Back[2] = 100
		st.Back[1] = 200
		st.Back[0] = 300
		senones := []int32{0, 0, 0, 0, 0, 0, 0, 0}
		hmm.Step(&model, senones, &st, 5)
		Expect(st.Back[2]).To(Equal(int32(100)), "self-loop must win an exact tie")
	})

	It("leaves inactive states (below WorstScore) unreachable", func() {
		senones := []int32{0, 0, 0, 0, 0, 0, 0, 0}
		hmm.Step(&model, senones, &st, 0)
		for _, s := range st.Score {
			Expect(s).To(Equal(config.WorstScore))
		}
	})

	It("does not add an observation score to the exit state", func() {
		st.Score[4] = 0
		senones := []int32{1000, 1000, 1000, 1000, 1000, 1000, 1000, 1000}
		hmm.Step(&model, senones, &st, 0)
		// exit = next(state4 + 0) with no observation term added.
		Expect(st.Score[5]).To(Equal(int32(0)))
	})
})

var _ = Describe("MultiplexModel", func() {
	It("propagates the winning predecessor's per-state ssid down the chain", func() {
		am := &stubAM{topologies: map[int32]*hmm.Topology{
			10: standardTopology(10),
			20: standardTopology(20),
		}}
		var model hmm.MultiplexModel
		model.AM = am
		model.Ssids = [5]int32{10, 10, 10, 10, 10}

		var st hmm.State
		st.Reset()
		st.Score[0] = 0

		// Rewrite state 0's ssid to 20, simulating a cross-word transition
		// picking a different left-context diphone (spec.md §4.6).
		model.SetSsidAt(0, 20)
		Expect(model.SsidAt(0)).To(Equal(int32(20)))

		senones := make([]int32, 32)
		hmm.Step(&model, senones, &st, 0)
		Expect(model.SsidAt(0)).To(Equal(int32(20)), "state 0's own ssid survives a self-loop")
		Expect(model.SsidAt(1)).To(Equal(int32(20)), "state 1, entered from state 0, inherits state 0's ssid")
	})
})
