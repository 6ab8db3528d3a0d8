// Package config holds the CLI-adjacent knobs that parameterize the decoder:
// beam widths, language-model weights, insertion penalties, phone-lookahead
// settings and arena sizing. None of these values drive algorithmic branches
// outside of the documented beam/penalty formulas; they are pure configuration,
// the same role a TimingConfig plays for instruction latencies in a CPU
// simulator.
package config

// WorstScore is the large-magnitude negative sentinel used throughout the
// engine to mean "this state is not live". Scores only ever exceed it while a
// state is active.
const WorstScore int32 = -(1 << 30)

// Config bundles every beam width, penalty, LM weight and arena-sizing knob
// consumed by the decoder. Construct with DefaultConfig and override fields,
// mirroring latency.NewTableWithConfig's override-constructor pattern.
type Config struct {
	// Beam widths, all expressed as 8*log(width) per spec (negative, additive
	// to BestScore in log space).
	LogBeamWidth               int32
	NewPhoneLogBeamWidth       int32
	LastPhoneLogBeamWidth      int32
	NewWordLogBeamWidth        int32
	LastPhoneAloneLogBeamWidth int32
	FwdflatLogBeamWidth        int32
	FwdflatLogWordBeamWidth    int32

	// LM weights.
	FwdTreeLMWeight  float64
	FwdFlatLMWeight  float64
	BestPathLMWeight float64
	Use3gInFwdPass   bool

	// Insertion penalties (all additive, log-domain).
	PhoneInsertionPenalty int32
	WordInsertionPenalty  int32
	SilenceWordPenalty    int32
	FillerWordPenalty     int32

	// Phone lookahead.
	TopsenWindow int32
	TopsenThresh int32

	// Engineering knobs.
	ComputeAllSenones bool
	SkipAltFrm        int32
	MaxFrames         int32

	// Arena sizing (spec.md §5): BPTable/BScoreStack preallocated once per
	// utterance, never resized.
	BPTableSizeFactor int32 // max(25, NumWords/1000) * MaxFrames
	BScoreStackFactor int32 // 20x BPTable capacity

	// Accepted but unconsumed per spec.md Design Notes Open Questions -
	// reproduced as literal no-ops, not guessed at.
	HypAlternates          bool // TODO(n-best): not implemented, see spec.md DESIGN NOTES
	ChannelsPerFrameTarget int32
}

// DefaultConfig returns the beam/penalty values the reference decoder ships
// with. Callers needing different acoustics should copy and override fields
// rather than mutate the zero value, whose WorstScore-adjacent beams would
// prune everything.
func DefaultConfig() *Config {
	return &Config{
		LogBeamWidth:               -160000,
		NewPhoneLogBeamWidth:       -120000,
		LastPhoneLogBeamWidth:      -120000,
		NewWordLogBeamWidth:        -80000,
		LastPhoneAloneLogBeamWidth: -80000,
		FwdflatLogBeamWidth:        -160000,
		FwdflatLogWordBeamWidth:    -80000,

		FwdTreeLMWeight:  9.5,
		FwdFlatLMWeight:  9.5,
		BestPathLMWeight: 9.5,
		Use3gInFwdPass:   true,

		PhoneInsertionPenalty: -1 * 8,
		WordInsertionPenalty:  0,
		SilenceWordPenalty:    0,
		FillerWordPenalty:     0,

		TopsenWindow: 1,
		TopsenThresh: -64000,

		ComputeAllSenones: false,
		SkipAltFrm:        0,
		MaxFrames:         12000,

		BPTableSizeFactor: 25,
		BScoreStackFactor: 20,

		HypAlternates:          false,
		ChannelsPerFrameTarget: 0,
	}
}

// BPTableCapacity returns the preallocated BPTable size for a vocabulary of
// the given size, per spec.md §5: max(25, NumWords/1000) * MaxFrames.
func (c *Config) BPTableCapacity(numWords int) int {
	perFrame := int(c.BPTableSizeFactor)
	if v := numWords / 1000; v > perFrame {
		perFrame = v
	}
	return perFrame * int(c.MaxFrames)
}

// BScoreStackCapacity returns the preallocated BScoreStack size, 20x the
// BPTable capacity per spec.md §5.
func (c *Config) BScoreStackCapacity(numWords int) int {
	return c.BPTableCapacity(numWords) * int(c.BScoreStackFactor)
}

// LMWeightFactor returns the rescaling factor for LM scores accumulated
// during the flat pass relative to the tree pass, per spec.md §4.7.
func (c *Config) LMWeightFactor() float64 {
	if c.FwdTreeLMWeight == 0 {
		return 1
	}
	return c.FwdFlatLMWeight / c.FwdTreeLMWeight
}
