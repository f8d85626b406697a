package sphinx

// LexNodeID indexes into a LexTree's node pool (§9: index-addressed pools
// instead of pointer graphs).
type LexNodeID int32

// NoLexNode marks an absent child/parent link.
const NoLexNode LexNodeID = -1

// SSIDFunc resolves the senone-sequence id for one phone position within
// a word's pronunciation, given its left and right phonetic context. The
// lexicon tree calls this once per node at build time; it does not know
// or care how context-dependent models are trained.
type SSIDFunc func(left, base, right PhoneID, wordPos int) SSID

// TmatFunc resolves which transition matrix a phone position uses.
type TmatFunc func(base PhoneID, wordPos int) TmatID

// NEmitFunc reports how many emitting states the phone model for base
// uses (3 for the common case, but not assumed fixed anywhere else).
type NEmitFunc func(base PhoneID) int

// LexNode is one node of the lexicon tree (§4.4.1): a single phone
// position shared by every word whose pronunciation agrees up to this
// point. A node with a non-empty WordEnds is a word-end; homophones
// share one leaf node and are all listed in its WordEnds.
type LexNode struct {
	ID       LexNodeID
	Parent   LexNodeID
	Children []LexNodeID

	Base PhoneID
	Pos  int // position within the word's pronunciation, 0-based

	HMM *HMM

	// WordEnds lists every WordID whose pronunciation ends exactly at
	// this node (plural because homophones with identical phone
	// sequences share one leaf).
	WordEnds []WordID
}

// LexTree is a per-left-context forest of LexNodes sharing pronunciation
// prefixes, built once per (left-context, search) combination. The
// static/FSG search reuses the same structure per §4.4.1/§4.6.2; a
// flat-network expansion (§4.5) may also construct one ad hoc from a
// restricted word list.
type LexTree struct {
	nodes []*LexNode
	// roots maps a left-context phone to the node ids of every phone-0
	// node beginning a word under that context, mirroring the
	// original's per-context root list (ssid computed for the phone's
	// left context at the word/silence boundary).
	roots map[PhoneID][]LexNodeID

	ssidFn  SSIDFunc
	tmatFn  TmatFunc
	nEmitFn NEmitFunc
}

// NewLexTree allocates an empty tree bound to the model functions that
// resolve per-node senone sequences, transition matrices, and emitting
// state counts.
func NewLexTree(ssidFn SSIDFunc, tmatFn TmatFunc, nEmitFn NEmitFunc) *LexTree {
	return &LexTree{
		roots:   make(map[PhoneID][]LexNodeID),
		ssidFn:  ssidFn,
		tmatFn:  tmatFn,
		nEmitFn: nEmitFn,
	}
}

func (t *LexTree) alloc(parent LexNodeID, base PhoneID, pos int) LexNodeID {
	id := LexNodeID(len(t.nodes))
	t.nodes = append(t.nodes, &LexNode{
		ID:     id,
		Parent: parent,
		Base:   base,
		Pos:    pos,
	})
	return id
}

// Node returns the node for id.
func (t *LexTree) Node(id LexNodeID) *LexNode { return t.nodes[id] }

// NNodes reports the pool size.
func (t *LexTree) NNodes() int { return len(t.nodes) }

// AddWord inserts one dictionary word's pronunciation into the tree
// under the given left-context phone, merging with any existing node
// whose (base phone, position, ancestry) already matches — the prefix
// sharing that makes the structure a tree rather than NNode separate
// per-word chains. leftCtx is CI_SILENCE (or whatever the caller uses
// to mean utterance-initial/after-silence) when the word can start an
// utterance.
func (t *LexTree) AddWord(dict *Dictionary, leftCtx PhoneID, wid WordID) {
	w := dict.Word(wid)
	if w == nil || len(w.Phones) == 0 {
		return
	}

	siblings := func(ids []LexNodeID, base PhoneID) LexNodeID {
		for _, id := range ids {
			if t.nodes[id].Base == base {
				return id
			}
		}
		return NoLexNode
	}

	parent := NoLexNode
	cur := siblings(t.roots[leftCtx], w.Phones[0])
	if cur == NoLexNode {
		cur = t.alloc(NoLexNode, w.Phones[0], 0)
		t.roots[leftCtx] = append(t.roots[leftCtx], cur)
	}

	for pos := 1; pos < len(w.Phones); pos++ {
		parent = cur
		cur = siblings(t.nodes[parent].Children, w.Phones[pos])
		if cur == NoLexNode {
			cur = t.alloc(parent, w.Phones[pos], pos)
			t.nodes[parent].Children = append(t.nodes[parent].Children, cur)
		}
	}

	t.nodes[cur].WordEnds = append(t.nodes[cur].WordEnds, wid)
}

// Build instantiates an HMM at every node, resolving context-dependent
// senone sequences via the tree's bound SSIDFunc. It must run after all
// AddWord calls for this tree are done, since a node's right context
// (needed for the last phone of a word, and any internal node with only
// one child) depends on the full shape of the tree below it.
func (t *LexTree) Build(leftCtxOf map[LexNodeID]PhoneID) {
	var rightContextOf func(id LexNodeID) PhoneID
	rightContextOf = func(id LexNodeID) PhoneID {
		n := t.nodes[id]
		if len(n.Children) == 1 {
			return t.nodes[n.Children[0]].Base
		}
		// Branching or leaf: the original treats the diphone case
		// (multiplex SSID) here; this tree stores one representative
		// right context and leaves genuine diphone fan-out to the
		// search layer's word-end handling (§4.4.4).
		if len(n.Children) > 0 {
			return t.nodes[n.Children[0]].Base
		}
		return CISilence
	}

	for _, n := range t.nodes {
		left := leftCtxOf[n.ID]
		if n.Parent != NoLexNode {
			left = t.nodes[n.Parent].Base
		}
		right := rightContextOf(n.ID)
		ssid := t.ssidFn(left, n.Base, right, n.Pos)
		tmatID := t.tmatFn(n.Base, n.Pos)
		nEmit := t.nEmitFn(n.Base)
		n.HMM = NewHMM(tmatID, ssid, nEmit)
	}
}

// CISilence is the context-independent silence phone id used as the
// implicit left context for utterance-initial words and as a stand-in
// right context at branching/leaf nodes when no stronger signal exists.
const CISilence PhoneID = 0

// Roots returns the root node ids for words beginning under leftCtx.
func (t *LexTree) Roots(leftCtx PhoneID) []LexNodeID { return t.roots[leftCtx] }

// ClearAll resets every node's HMM to its inactive state, done once at
// utterance start (§4.4.2 step 0).
func (t *LexTree) ClearAll() {
	for _, n := range t.nodes {
		if n.HMM != nil {
			n.HMM.Clear()
		}
	}
}

// ActiveSenones appends every active node's required senone ids into
// out, used by the search driver to build the per-frame active set
// before calling AcMod.Score (§4.4.2 step 1).
func (t *LexTree) ActiveSenones(active []LexNodeID, sseq *SseqTable, out []SenoneID) []SenoneID {
	for _, id := range active {
		n := t.nodes[id]
		for i := 0; i < n.HMM.NEmit; i++ {
			out = append(out, n.HMM.SSID.Senone(sseq, i))
		}
	}
	return out
}
