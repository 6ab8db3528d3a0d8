package tree

import "github.com/sarchlab/hmmsearch/internal/dict"

// Build implements create_search_tree (spec.md §4.2): walks every dictionary
// word whose fwid is present in the active LM (fillers and <s> are handled
// per the special cases below) and inserts it into t. Returns the words
// that must be permanently allocated as single-phone HMMs (spec.md §4.2:
// one-phone words, plus every filler word unconditionally).
func Build(t *Tree, d dict.Dictionary, inLM func(fwid dict.FwID) bool) []dict.WordID {
	var singlePhone []dict.WordID
	start := d.StartWordID()

	for i := 0; i < d.NumWords(); i++ {
		wid := dict.WordID(i)
		if wid == start {
			// <s> is never a transition target (spec.md §4.2).
			continue
		}
		entry, ok := d.Entry(wid)
		if !ok {
			continue
		}
		if entry.IsFiller {
			singlePhone = append(singlePhone, wid)
			continue
		}
		if !inLM(entry.FwID) {
			continue
		}
		if entry.Len() == 1 {
			singlePhone = append(singlePhone, wid)
			continue
		}

		root := t.RootFor(entry.Diphone, entry.CIPhones[0], entry.Mpx, entry.Ssids[0])

		if entry.Len() == 2 {
			t.AttachPenult(&root.PenultHed, wid)
			continue
		}

		headPtr := &root.Next
		var last NodeID
		for p := 1; p <= entry.Len()-2; p++ {
			last = t.InsertChild(headPtr, entry.CIPhones[p], entry.Ssids[p])
			headPtr = &t.nodes[last].Next
		}
		t.AttachPenult(&t.nodes[last].PenultHed, wid)
	}

	return singlePhone
}

// Delete implements delete_search_tree (spec.md §4.2): an alias for Reset,
// named to match the reference operation this realizes.
func (t *Tree) Delete() { t.Reset() }

// DiscoverInteriorCapacity implements init_search_tree's one-time sizing
// pass (spec.md §4.2): builds a scratch tree over the *entire* dictionary,
// ignoring any LM restriction, and returns the interior-node count reached,
// so the real per-utterance tree's arena can be preallocated to
// that-plus-128-slack up front.
func DiscoverInteriorCapacity(d dict.Dictionary) int {
	scratch := NewTree(d.NumWords(), 0, nil)
	Build(scratch, d, func(dict.FwID) bool { return true })
	return len(scratch.nodes) - 1
}
