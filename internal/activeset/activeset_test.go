package activeset_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/hmmsearch/internal/activeset"
	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/tree"
)

var _ = Describe("ActiveSet", func() {
	var a *activeset.ActiveSet

	BeforeEach(func() {
		a = activeset.New(4, 8)
	})

	It("keeps frame 0 and frame 1's lists in separate ping-pong slots", func() {
		a.AddInterior(0, tree.NodeID(1))
		a.AddInterior(1, tree.NodeID(2))
		Expect(a.Interior(0)).To(Equal([]tree.NodeID{1}))
		Expect(a.Interior(1)).To(Equal([]tree.NodeID{2}))
	})

	It("reuses the same slot two frames apart after a reset", func() {
		a.AddInterior(0, tree.NodeID(1))
		a.ResetFrame(2) // frame 2 shares frame 0's parity
		Expect(a.Interior(2)).To(BeEmpty())
		a.AddInterior(2, tree.NodeID(9))
		Expect(a.Interior(0)).To(Equal([]tree.NodeID{9}), "frame 0 and frame 2 alias the same backing slot")
	})

	It("sets the word-active flag when a word is added, and clears it explicitly", func() {
		w := dict.WordID(2)
		Expect(a.WordActive(w)).To(BeFalse())
		a.AddWord(0, w)
		Expect(a.WordActive(w)).To(BeTrue())
		Expect(a.Words(0)).To(ContainElement(w))

		a.ClearWordActive(w)
		Expect(a.WordActive(w)).To(BeFalse())
	})
})

var _ = Describe("ComputeSenoneActive", func() {
	It("marks every senone reachable from roots, interior nodes and leaves", func() {
		dists := func(ssid int32) [5]int32 {
			return [5]int32{ssid, ssid + 1, ssid + 2, ssid + 3, ssid + 4}
		}
		flags := activeset.ComputeSenoneActive(
			0, 16,
			func(yield func(ssid int32)) { yield(0) },
			func(id tree.NodeID) int32 { return 5 },
			[]tree.NodeID{1},
			func(w dict.WordID) []int32 { return []int32{10} },
			[]dict.WordID{0},
			dists,
		)
		for _, ssid := range []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14} {
			Expect(flags[ssid]).To(BeTrue(), "senone %d should be marked", ssid)
		}
		Expect(flags[15]).To(BeFalse())
	})
})
