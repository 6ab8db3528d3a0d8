package tree_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/fixture"
	"github.com/sarchlab/hmmsearch/internal/tree"
)

func buildVocab() (*fixture.Dictionary, *fixture.AcousticModel) {
	phones := []string{"SIL", "K", "AE", "T", "R", "D", "AO", "G"}
	idx := func(name string) int32 {
		for i, p := range phones {
			if p == name {
				return int32(i)
			}
		}
		return 0
	}
	words := []fixture.WordSpec{
		{Word: "<s>", FwWord: "<s>", Phones: []int32{idx("SIL")}},
		{Word: "</s>", FwWord: "</s>", Phones: []int32{idx("SIL")}, IsFiller: true},
		{Word: "<sil>", FwWord: "<sil>", Phones: []int32{idx("SIL")}, IsFiller: true},
		{Word: "CAT", FwWord: "CAT", Phones: []int32{idx("K"), idx("AE"), idx("T")}},
		{Word: "CAR", FwWord: "CAR", Phones: []int32{idx("K"), idx("AE"), idx("R")}},
		{Word: "CART", FwWord: "CART", Phones: []int32{idx("K"), idx("AE"), idx("R"), idx("T")}},
		{Word: "DOG", FwWord: "DOG", Phones: []int32{idx("D"), idx("AO"), idx("G")}},
	}
	d, err := fixture.NewDictionary(phones, words)
	Expect(err).ToNot(HaveOccurred())
	return d, fixture.NewAcousticModel(d)
}

var _ = Describe("Build", func() {
	It("shares a single root across every word starting with the same diphone", func() {
		d, am := buildVocab()
		capacity := tree.DiscoverInteriorCapacity(d)
		Expect(capacity).To(BeNumerically(">", 0))

		t := tree.NewTree(d.NumWords(), capacity, am)
		single := tree.Build(t, d, func(dict.FwID) bool { return true })

		// </s> and <sil> are single-phone and must come back as
		// permanently-allocated single-phone words; <s> is skipped because
		// it is never a transition target.
		Expect(single).To(HaveLen(2))

		catEntry, _ := d.Entry(mustWID(d, "CAT"))
		root := t.RootFor(catEntry.Diphone, catEntry.CIPhones[0], catEntry.Mpx, catEntry.Ssids[0])
		Expect(root.Next).ToNot(BeZero(), "CAT/CAR/CART share a K-AE root with interior children")
	})

	It("attaches a two-phone word directly to its root's penultimate chain", func() {
		phones := []string{"SIL", "K", "AE"}
		words := []fixture.WordSpec{
			{Word: "<s>", FwWord: "<s>", Phones: []int32{0}},
			{Word: "KA", FwWord: "KA", Phones: []int32{1, 2}},
		}
		d, err := fixture.NewDictionary(phones, words)
		Expect(err).ToNot(HaveOccurred())
		am := fixture.NewAcousticModel(d)
		t := tree.NewTree(d.NumWords(), 16, am)
		tree.Build(t, d, func(dict.FwID) bool { return true })

		kaEntry, _ := d.Entry(mustWID(d, "KA"))
		root := t.RootFor(kaEntry.Diphone, kaEntry.CIPhones[0], kaEntry.Mpx, kaEntry.Ssids[0])
		Expect(root.PenultHed).To(Equal(mustWID(d, "KA")))
	})

	It("excludes words whose fwid is outside the active LM", func() {
		d, am := buildVocab()
		t := tree.NewTree(d.NumWords(), 32, am)
		inLM := func(fw dict.FwID) bool {
			e, _ := d.Entry(mustWID(d, "DOG"))
			return fw != e.FwID
		}
		tree.Build(t, d, inLM)

		dogEntry, _ := d.Entry(mustWID(d, "DOG"))
		before := len(t.Roots)
		root := t.RootFor(dogEntry.Diphone, dogEntry.CIPhones[0], dogEntry.Mpx, dogEntry.Ssids[0])
		Expect(len(t.Roots)).To(Equal(before+1), "DOG's root was never created by Build, so RootFor allocates it here")
		Expect(root.Next).To(BeZero())
	})
})

var _ = Describe("Reset", func() {
	It("clears every word's leaf chain and every root's child and penultimate-word links", func() {
		d, am := buildVocab()
		capacity := tree.DiscoverInteriorCapacity(d)
		t := tree.NewTree(d.NumWords(), capacity, am)
		tree.Build(t, d, func(dict.FwID) bool { return true })

		catWID := mustWID(d, "CAT")
		t.AllocLeaf(catWID, 0, 1)
		Expect(t.LeafHead[catWID]).ToNot(BeZero())

		t.Delete()
		Expect(t.LeafHead[catWID]).To(BeZero())
		for _, r := range t.Roots {
			Expect(r.Next).To(BeZero())
			Expect(r.PenultHed).To(Equal(dict.NoWord))
		}
	})
})

func mustWID(d *fixture.Dictionary, w string) dict.WordID {
	wid, ok := d.WordID(w)
	Expect(ok).To(BeTrue())
	return wid
}
