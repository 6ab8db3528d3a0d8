// Package tree implements the lexical search tree (spec.md §3/§4.2,
// component C2): root channels, a prefix-sharing interior tree, and lazily
// allocated per-word leaf (last-phone) channels. Per spec.md Design Notes,
// the pointer-graph shape of the reference tree (root -> child `next`,
// sibling `alt`, leaf chains) is realized as arena-allocated node slices
// addressed by 32-bit handles, the same "backing slice + handle" shape
// gaissmai/bart uses for its ART prefix-trie nodes (the only other
// reference repo built around an arena-indexed prefix tree) - freeing the
// interior tree on LM switch becomes an arena Reset instead of a graph walk.
package tree

import (
	"github.com/sarchlab/hmmsearch/internal/dict"
	"github.com/sarchlab/hmmsearch/internal/hmm"
)

// NodeID addresses one interior-tree node. The zero value is the nil
// handle; real nodes are allocated starting at index 1.
type NodeID uint32

const nilNode NodeID = 0

// Root is one root channel: one per unique initial diphone across the
// active vocabulary. Roots may be mpx (spec.md §3 "Root channels").
type Root struct {
	CIPhone   int32
	Diphone   int32
	Mpx       bool
	State     hmm.State
	Single    hmm.SingleModel
	Multiplex hmm.MultiplexModel
	Next      NodeID       // first interior child
	PenultHed dict.WordID  // head of this root's penultimate-word (homophone) list
}

// Model returns the hmm.Model backing this root, dispatching on Mpx.
func (r *Root) Model() hmm.Model {
	if r.Mpx {
		return &r.Multiplex
	}
	return &r.Single
}

// Node is one interior-tree node: a single phone position shared by every
// word whose pronunciation passes through it.
type Node struct {
	CIPhone   int32
	State     hmm.State
	Single    hmm.SingleModel
	Next      NodeID      // child: next phone deeper
	Alt       NodeID      // sibling: alternative ssid at the same depth
	PenultHed dict.WordID // words whose penultimate node is this one
	inUse     bool
}

// Leaf is one last-phone (right-context) channel, allocated lazily per
// active word on the frame it first becomes eligible to enter its last
// phone (spec.md §3 "Leaf channels").
type Leaf struct {
	Word   dict.WordID
	RC     int32 // right-context index into the word's final-phone fan-out
	State  hmm.State
	Single hmm.SingleModel
	Next   NodeID // next leaf in this word's right-context chain
	inUse  bool
}

// Tree owns the arenas for interior nodes and leaves, plus the root array
// and the per-word homophone-set linkage, and the per-word leaf-chain heads.
type Tree struct {
	Roots []Root // indexed by an opaque root index, looked up by initial diphone through RootFor

	nodes    []Node // arena; index 0 reserved as nilNode
	nodeFree []NodeID

	leaves    []Leaf // arena; index 0 reserved as nilNode
	leafFree  []NodeID

	// HomophoneNext[w] threads words sharing the same penultimate-tree
	// node identity (spec.md §3 "single linear chain homophone_set").
	HomophoneNext []dict.WordID

	// LeafHead[w] is the head of w's right-context leaf chain, nilNode if
	// the word has none live.
	LeafHead []NodeID

	// AM resolves ssids to topologies for every model allocated through this
	// tree (roots, nodes, leaves); injected once so callers never have to
	// remember to wire it at each allocation site.
	AM hmm.AcousticModel

	diphoneRoot map[int32]int // initial diphone -> index into Roots
}

// NewTree allocates an empty tree sized for numWords and an interior-node
// capacity (spec.md §4.2 init_search_tree: discovered once over the whole
// dictionary, plus 128 slack).
func NewTree(numWords int, interiorCapacity int, am hmm.AcousticModel) *Tree {
	t := &Tree{
		nodes:         make([]Node, 1, interiorCapacity+129),
		leaves:        make([]Leaf, 1, 256),
		HomophoneNext: make([]dict.WordID, numWords),
		LeafHead:      make([]NodeID, numWords),
		AM:            am,
		diphoneRoot:   make(map[int32]int),
	}
	for i := range t.HomophoneNext {
		t.HomophoneNext[i] = dict.NoWord
	}
	return t
}

// RootFor returns the root for the given initial diphone, allocating it (and
// seeding its ssid from the first word to reach it) on first use. For mpx
// roots every state's ssid starts out equal to ssid; it is rewritten per
// spec.md §3/§4.6 at each entry event.
func (t *Tree) RootFor(diphone int32, ciPhone int32, mpx bool, ssid int32) *Root {
	if idx, ok := t.diphoneRoot[diphone]; ok {
		return &t.Roots[idx]
	}
	t.Roots = append(t.Roots, Root{CIPhone: ciPhone, Diphone: diphone, Mpx: mpx, PenultHed: dict.NoWord})
	idx := len(t.Roots) - 1
	t.diphoneRoot[diphone] = idx
	r := &t.Roots[idx]
	r.Single.AM = t.AM
	r.Single.Ssid = ssid
	r.Multiplex.AM = t.AM
	for i := range r.Multiplex.Ssids {
		r.Multiplex.Ssids[i] = ssid
	}
	r.State.Reset()
	return r
}

// AllocNode allocates (or reuses, from the free list) one interior node.
func (t *Tree) AllocNode(ciPhone int32, ssid int32) NodeID {
	var id NodeID
	if n := len(t.nodeFree); n > 0 {
		id = t.nodeFree[n-1]
		t.nodeFree = t.nodeFree[:n-1]
	} else {
		t.nodes = append(t.nodes, Node{})
		id = NodeID(len(t.nodes) - 1)
	}
	node := &t.nodes[id]
	*node = Node{CIPhone: ciPhone, PenultHed: dict.NoWord, inUse: true}
	node.Single.AM = t.AM
	node.Single.Ssid = ssid
	node.State.Reset()
	return id
}

// Node returns the node at id, or nil if id is the nil handle.
func (t *Tree) Node(id NodeID) *Node {
	if id == nilNode {
		return nil
	}
	return &t.nodes[id]
}

// InsertChild finds (by ssid) or allocates an alt-chained child in the
// sibling chain starting at *head (a parent's Next field), matching search.c's create_search_tree
// child/sibling insertion.
func (t *Tree) InsertChild(head *NodeID, ciPhone int32, ssid int32) NodeID {
	cur := *head
	for cur != nilNode {
		n := &t.nodes[cur]
		if n.Single.Ssid == ssid {
			return cur
		}
		if n.Alt == nilNode {
			break
		}
		cur = n.Alt
	}
	id := t.AllocNode(ciPhone, ssid)
	if *head == nilNode {
		*head = id
	} else {
		// cur is the last sibling in the alt chain.
		t.nodes[cur].Alt = id
	}
	return id
}

// AttachPenult links word w onto the penultimate-word (homophone) chain
// rooted at head, per spec.md §3/§4.2.
func (t *Tree) AttachPenult(head *dict.WordID, w dict.WordID) {
	t.HomophoneNext[w] = *head
	*head = w
}

// AllocLeaf allocates (or reuses) one leaf channel for word w pinned to
// right-context rc, pushing it onto the front of w's chain.
func (t *Tree) AllocLeaf(w dict.WordID, rc int32, ssid int32) NodeID {
	var id NodeID
	if n := len(t.leafFree); n > 0 {
		id = t.leafFree[n-1]
		t.leafFree = t.leafFree[:n-1]
	} else {
		t.leaves = append(t.leaves, Leaf{})
		id = NodeID(len(t.leaves) - 1)
	}
	l := &t.leaves[id]
	*l = Leaf{Word: w, RC: rc, Next: t.LeafHead[w], inUse: true}
	l.Single.AM = t.AM
	l.Single.Ssid = ssid
	l.State.Reset()
	t.LeafHead[w] = id
	return id
}

// Leaf returns the leaf at id, or nil if id is the nil handle.
func (t *Tree) Leaf(id NodeID) *Leaf {
	if id == nilNode {
		return nil
	}
	return &t.leaves[id]
}

// FreeLeafChain returns every leaf in w's chain to the free list and clears
// the chain head, per spec.md §4.5 prune_word_chan.
func (t *Tree) FreeLeafChain(w dict.WordID) {
	id := t.LeafHead[w]
	for id != nilNode {
		next := t.leaves[id].Next
		t.leaves[id].inUse = false
		t.leafFree = append(t.leafFree, id)
		id = next
	}
	t.LeafHead[w] = nilNode
}

// Reset frees the entire interior tree (arena reset) and clears root
// linkage, per spec.md §4.2 delete_search_tree: called whenever the active
// LM changes.
func (t *Tree) Reset() {
	t.nodes = t.nodes[:1]
	t.nodeFree = t.nodeFree[:0]
	t.leaves = t.leaves[:1]
	t.leafFree = t.leafFree[:0]
	for i := range t.Roots {
		t.Roots[i].Next = nilNode
		t.Roots[i].PenultHed = dict.NoWord
	}
	for i := range t.HomophoneNext {
		t.HomophoneNext[i] = dict.NoWord
	}
	for i := range t.LeafHead {
		t.LeafHead[i] = nilNode
	}
}
