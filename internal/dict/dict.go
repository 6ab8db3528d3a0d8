// Package dict defines the read-only pronunciation-dictionary contract the
// search engine consumes. Loading dictionaries, building phonetic-context
// tables and fwid assignment are out of scope (spec.md §1 Non-goals); this
// package only states the shape the search core indexes against, the same
// way insts.Instruction states a shape that timing/latency.Table only reads.
package dict

// WordID identifies one pronunciation variant in the active vocabulary.
type WordID int32

// FwID is the LM-facing word identifier, shared across pronunciation variants
// of the same word (spec.md Glossary: fwid).
type FwID int32

// NoWord is the sentinel WordID meaning "no word" / "not found".
const NoWord WordID = -1

// Entry is one dictionary entry: a word id, its LM-facing fwid, its
// context-dependent phone (ssid) sequence, the parallel CI-phone sequence,
// and whether it requires dynamic left-context selection at the first phone.
type Entry struct {
	WID         WordID
	FwID        FwID
	Ssids       []int32 // context-dependent phone (ssid) ids, one per phone
	CIPhones    []int32 // parallel CI-phone ids
	Mpx         bool    // true iff first phone's ssid is chosen dynamically
	IsFiller    bool    // true for <sil>, noise words, </s>
	Diphone     int32   // initial diphone index, used to find/allocate a root
	FinalDiph   int32   // final-phone diphone index (-1 if len < 2)
}

// Len returns the number of phones in the pronunciation.
func (e Entry) Len() int { return len(e.Ssids) }

// Dictionary is the read-only contract the search engine indexes against.
// Implementations own the backing storage (flat slices, mmap, etc.); the
// search core never mutates anything reached through this interface.
type Dictionary interface {
	// Entry looks up a dictionary entry by word id.
	Entry(wid WordID) (Entry, bool)
	// NumWords returns the size of the active vocabulary.
	NumWords() int
	// NumCIPhones returns the number of context-independent phones.
	NumCIPhones() int
	// SilencePhoneID returns the CI-phone id used for silence.
	SilencePhoneID() int32
	// SilenceWordID / StartWordID / FinishWordID return the well-known word ids.
	SilenceWordID() WordID
	StartWordID() WordID
	FinishWordID() WordID

	// RightContextFwd returns, for a given final-phone diphone, the distinct
	// right-context ssids a word ending in that diphone may exit through.
	RightContextFwd(diphone int32) []int32
	// RightContextFwdPerm maps a following word's initial CI-phone to an
	// index into RightContextFwd(diphone)/the BScoreStack block for that
	// diphone.
	RightContextFwdPerm(diphone int32) []int32
	// RightContextFwdSize returns len(RightContextFwd(diphone)).
	RightContextFwdSize(diphone int32) int32
	// LeftContextFwd remaps a root's state-0 ssid given the CI-phone of the
	// predecessor word's final phone (dynamic left-context selection, mpx
	// roots only).
	LeftContextFwd(diphone int32, leftCIPhone int32) (ssid int32, ok bool)

	// CIPhoneName returns the textual name of a CI-phone, used only to
	// detect filler phones (those whose name begins with '+', matching
	// Sphinx2's naming convention) for the phone-lookahead predicate.
	CIPhoneName(ciPhone int32) string
}
