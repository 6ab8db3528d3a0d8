package fwdflat_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/hmmsearch/internal/bptable"
	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/fwdflat"
)

var _ = Describe("Build", func() {
	It("merges duplicate (start-frame, word) exits into the widest interval", func() {
		bp := bptable.New(16, 32, 4, 30)
		bp.Save(dict.WordID(1), 5, 10, bptable.NoBP, 0, 1, -1)
		bp.Save(dict.WordID(1), 9, 10, bptable.NoBP, 0, 1, -1)

		wl := fwdflat.Build(bp, dict.WordID(3), 29)
		Expect(wl.Union()).To(ConsistOf(dict.WordID(1)))

		// A zero-width window at the shared start frame 0 should surface it.
		cands := wl.ExpandWordList(0, 0, true)
		Expect(cands).To(ConsistOf(dict.WordID(1)))
	})

	It("drops exits narrower than MinEFWidth", func() {
		bp := bptable.New(16, 32, 4, 30)
		bp.Save(dict.WordID(1), 3, 10, bptable.NoBP, 0, 1, -1) // sf=0, single exit at ef=3: last_ef-first_ef = 0 < MinEFWidth(4)

		wl := fwdflat.Build(bp, dict.WordID(3), 29)
		Expect(wl.Union()).To(BeEmpty())
	})

	It("drops </s> unless its exit lands within one frame of the utterance end", func() {
		bp := bptable.New(16, 32, 4, 30)
		finish := dict.WordID(3)
		bp.Save(finish, 6, 10, bptable.NoBP, 0, 1, -1)
		farIdx, _ := bp.Save(finish, 10, 10, bptable.NoBP, 0, 1, -1) // sf=0, ef 6..10: wide enough, but 19 frames from the end
		bp.Save(dict.WordID(2), 14, 10, farIdx, 0, 1, -1)            // a successor of </s> (sf=11), irrelevant here

		lastFrame := int32(29)
		wl := fwdflat.Build(bp, finish, lastFrame)
		Expect(wl.Union()).ToNot(ContainElement(finish), "</s> exiting at frame 10 of a 29-frame utterance must be dropped")

		bp2 := bptable.New(16, 32, 4, 30)
		bp2.Save(finish, 24, 10, bptable.NoBP, 0, 1, -1)
		bp2.Save(finish, 28, 10, bptable.NoBP, 0, 1, -1) // sf=0, ef 24..28: width 4 >= MinEFWidth, 1 frame from the end
		wl2 := fwdflat.Build(bp2, finish, lastFrame)
		Expect(wl2.Union()).To(ContainElement(finish))
	})
})

var _ = Describe("ExpandWordList", func() {
	It("returns only candidates whose start frame falls within the window", func() {
		bp := bptable.New(16, 32, 4, 30)
		bp.Save(dict.WordID(1), 5, 10, bptable.NoBP, 0, 1, -1)
		bp.Save(dict.WordID(1), 9, 10, bptable.NoBP, 0, 1, -1) // sf=0, ef 5..9
		bp.Save(dict.WordID(2), 1, 10, bptable.NoBP, 0, 1, -1)
		mid, _ := bp.Save(dict.WordID(2), 5, 10, bptable.NoBP, 0, 1, -1) // sf=0, ef 1..5
		bp.Save(dict.WordID(0), 11, 10, mid, 0, 1, -1)
		bp.Save(dict.WordID(0), 15, 10, mid, 0, 1, -1) // sf = mid.Frame+1 = 6, ef 11..15

		wl := fwdflat.Build(bp, dict.WordID(3), 29)

		// Word 1 and word 2 both start at frame 0; word 0 starts at frame 6
		// (one past its predecessor, word 2's, exit frame). Every word spans
		// MinEFWidth exit frames so none is dropped.
		Expect(wl.ExpandWordList(0, 0, true)).To(ConsistOf(dict.WordID(1), dict.WordID(2)))
		Expect(wl.ExpandWordList(6, 0, true)).To(ConsistOf(dict.WordID(0)))
		Expect(wl.ExpandWordList(3, 3, true)).To(ConsistOf(dict.WordID(1), dict.WordID(2), dict.WordID(0)))
	})

	It("falls back to the full union when the tree pass never ran", func() {
		bp := bptable.New(16, 32, 4, 30)
		bp.Save(dict.WordID(1), 5, 10, bptable.NoBP, 0, 1, -1)
		bp.Save(dict.WordID(1), 9, 10, bptable.NoBP, 0, 1, -1)
		bp.Save(dict.WordID(0), 16, 10, bptable.NoBP, 0, 1, -1)
		bp.Save(dict.WordID(0), 20, 10, bptable.NoBP, 0, 1, -1)

		wl := fwdflat.Build(bp, dict.WordID(3), 29)
		Expect(wl.ExpandWordList(100, 0, false)).To(ConsistOf(dict.WordID(1), dict.WordID(0)))
	})
})
