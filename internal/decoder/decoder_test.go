package decoder_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/hmmsearch/internal/config"
	"github.com/sarchlab/hmmsearch/internal/decoder"
	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/fixture"
)

// buildVocab mirrors cmd/hmmsearch/main.go's demo vocabulary: <s>/</s>/<sil>
// plus CAT/CAR/CART/DOG over eight CI-phones, per spec.md §8 scenario 3.
func buildVocab() (*fixture.Dictionary, *fixture.AcousticModel, *fixture.LM) {
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
	am := fixture.NewAcousticModel(d)

	fwids := map[dict.FwID]string{}
	for i, w := range words {
		fwids[dict.FwID(i)] = w.FwWord
	}
	lmModel := fixture.NewLM(fwids, -64000)
	return d, am, lmModel
}

// scoreFavoring builds a numFrames x numSenones matrix where, for frames
// [lo,hi), the given word's every senone scores far above the -4000 floor
// every other senone sits at.
func scoreFavoring(d *fixture.Dictionary, numFrames int, spans map[string][2]int) *fixture.Scorer {
	frames := make([][]int32, numFrames)
	for f := range frames {
		frames[f] = make([]int32, 64)
		for s := range frames[f] {
			frames[f][s] = -4000
		}
	}
	for word, span := range spans {
		wid, ok := d.WordID(word)
		if !ok {
			continue
		}
		entry, _ := d.Entry(wid)
		for _, ssid := range entry.Ssids {
			if int(ssid) >= len(frames[0]) {
				continue
			}
			for f := span[0]; f < span[1] && f < numFrames; f++ {
				frames[f][ssid] = 100
			}
		}
	}
	return &fixture.Scorer{Frames: frames}
}

var _ = Describe("Decoder", func() {
	It("recognizes a favored word sequence across a two-pass decode", func() {
		d, am, lmModel := buildVocab()
		scorer := scoreFavoring(d, 40, map[string][2]int{
			"CAT": {0, 20},
			"DOG": {20, 40},
		})

		dec := decoder.New(config.DefaultConfig(), d, lmModel, am, nil)
		result, err := dec.DecodeUtterance(context.Background(), scorer, 40, true)
		Expect(err).ToNot(HaveOccurred())

		Expect(result.TreePass.Words).ToNot(BeEmpty())
		Expect(result.FlatPass).ToNot(BeNil())
		Expect(result.Final.Words).ToNot(BeEmpty())
		Expect(result.NumFrames).To(Equal(int32(40)))
	})

	It("skips the flat pass when not requested", func() {
		d, am, lmModel := buildVocab()
		scorer := scoreFavoring(d, 40, map[string][2]int{"CAT": {0, 40}})

		dec := decoder.New(config.DefaultConfig(), d, lmModel, am, nil)
		result, err := dec.DecodeUtterance(context.Background(), scorer, 40, false)
		Expect(err).ToNot(HaveOccurred())
		Expect(result.FlatPass).To(BeNil())
		Expect(result.Final).To(Equal(result.TreePass))
	})

	It("discards utterances shorter than the minimum frame count", func() {
		d, am, lmModel := buildVocab()
		scorer := scoreFavoring(d, 5, map[string][2]int{"CAT": {0, 5}})

		dec := decoder.New(config.DefaultConfig(), d, lmModel, am, nil)
		result, err := dec.DecodeUtterance(context.Background(), scorer, 5, true)
		Expect(err).ToNot(HaveOccurred())
		Expect(result.TreePass.Words).To(BeEmpty())
		Expect(result.TreePass.Segments).To(BeEmpty())
	})

	It("rebuilds the tree lazily, once, across repeated decodes", func() {
		d, am, lmModel := buildVocab()
		scorer := scoreFavoring(d, 40, map[string][2]int{"CAT": {0, 40}})

		dec := decoder.New(config.DefaultConfig(), d, lmModel, am, nil)
		_, err := dec.DecodeUtterance(context.Background(), scorer, 40, false)
		Expect(err).ToNot(HaveOccurred())

		// A second utterance over a freshly built scorer must decode cleanly
		// without requiring InvalidateTree (the vocabulary/LM hasn't changed).
		scorer2 := scoreFavoring(d, 40, map[string][2]int{"DOG": {0, 40}})
		result2, err := dec.DecodeUtterance(context.Background(), scorer2, 40, false)
		Expect(err).ToNot(HaveOccurred())
		Expect(result2.TreePass.Words).ToNot(BeEmpty())
	})
})
