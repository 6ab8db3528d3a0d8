// Package main provides the entry point for hmmsearch.
// hmmsearch is a time-synchronous, two-pass HMM beam-search decoder core.
//
// Dictionary loading, acoustic scoring and LM estimation are out of scope
// (spec.md §1 Non-goals); this CLI decodes a self-contained demo utterance
// built from internal/fixture so the wiring between internal/decoder and
// every other package can be exercised end to end without external model
// files, the same role cmd/m2sim/main.go's -v banner plays for a loaded ELF.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/golang/glog"

	"github.com/sarchlab/hmmsearch/internal/config"
	"github.com/sarchlab/hmmsearch/internal/decoder"
	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/fixture"
	"github.com/sarchlab/hmmsearch/internal/search"
)

var (
	verbose  = flag.Bool("v", false, "Verbose output")
	flatPass = flag.Bool("flat", true, "Run the flat-lexicon second pass over the tree pass's lattice")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	d, am, lmModel, favor := buildDemoVocabulary()
	scorer := demoScorer(d, favor)

	dec := decoder.New(config.DefaultConfig(), d, lmModel, am, decoder.NewGlogLogger(1))

	if *verbose {
		fmt.Printf("hmmsearch - two-pass HMM beam-search decoder core\n")
		fmt.Printf("Vocabulary: %d words, %d CI-phones\n", d.NumWords(), d.NumCIPhones())
		fmt.Printf("Frames: %d, flat pass: %v\n", len(scorer.Frames), *flatPass)
		fmt.Println()
	}

	result, err := dec.DecodeUtterance(context.Background(), scorer, int32(len(scorer.Frames)), *flatPass)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding utterance: %v\n", err)
		os.Exit(1)
	}

	printHypothesis(d, "tree pass", result.TreePass)
	if result.FlatPass != nil {
		printHypothesis(d, "flat pass", *result.FlatPass)
	}
}

// printHypothesis renders a Hypothesis the way the reference decoder's
// print_back_trace option does: the word string followed by the
// acoustic/LM score split.
func printHypothesis(d *fixture.Dictionary, label string, hyp search.Hypothesis) {
	words := make([]string, 0, len(hyp.Words))
	for _, w := range hyp.Words {
		words = append(words, wordString(d, w))
	}
	fmt.Printf("[%s] %s (ascr=%d lscr=%d)\n", label, strings.Join(words, " "), hyp.TotalAscr, hyp.TotalLscr)
}

func wordString(d *fixture.Dictionary, wid dict.WordID) string {
	if s := d.WordString(wid); s != "" {
		return s
	}
	return fmt.Sprintf("<wid:%d>", wid)
}

// buildDemoVocabulary builds a tiny 4-word vocabulary ({CAT, CAR, CART,
// DOG} plus <sil>/<s>/</s>) over a handful of CI-phones, matching the
// shape of spec.md §8 end-to-end scenario 3.
func buildDemoVocabulary() (*fixture.Dictionary, *fixture.AcousticModel, *fixture.LM, []string) {
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
	if err != nil {
		glog.Fatalf("hmmsearch: building demo vocabulary: %v", err)
	}
	am := fixture.NewAcousticModel(d)

	fwids := map[dict.FwID]string{}
	for i, w := range words {
		fwids[dict.FwID(i)] = w.FwWord
	}
	lmModel := fixture.NewLM(fwids, -64000)

	return d, am, lmModel, []string{"CAT", "DOG"}
}

// demoScorer builds a senone-score matrix favoring CAT for the first half
// of the utterance and DOG for the second half, per spec.md §8 scenario 3.
func demoScorer(d *fixture.Dictionary, favor []string) *fixture.Scorer {
	const numFrames = 40
	frames := make([][]int32, numFrames)
	for f := range frames {
		frames[f] = make([]int32, 64)
		for s := range frames[f] {
			frames[f][s] = -4000
		}
	}
	apply := func(wordID string, frameLo, frameHi int) {
		wid, ok := d.WordID(wordID)
		if !ok {
			return
		}
		entry, _ := d.Entry(wid)
		for _, ssid := range entry.Ssids {
			if int(ssid) >= len(frames[0]) {
				continue
			}
			for f := frameLo; f < frameHi && f < numFrames; f++ {
				frames[f][ssid] = 100
			}
		}
	}
	apply(favor[0], 0, numFrames/2)
	apply(favor[1], numFrames/2, numFrames)
	return &fixture.Scorer{Frames: frames}
}
