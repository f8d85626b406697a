package sphinx

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// LatNodeID indexes into a Lattice's node pool.
type LatNodeID int32

// LatLinkID indexes into a Lattice's link pool.
type LatLinkID int32

// LatNode is one DAG node (§4.8.2): a word hypothesised to have ended at
// a particular frame. Multiple backpointer entries for the same
// (word, frame) pair collapse onto one node.
type LatNode struct {
	Word  WordID
	Frame int32
	Out   []LatLinkID
	In    []LatLinkID
}

// LatLink is a DAG edge: a transition from one word-end node to the
// next, carrying the acoustic/LM score split needed for rescoring with
// different LM weights without redoing acoustic search.
type LatLink struct {
	From, To LatNodeID
	AcScore  int32
	LMScore  int32
}

// Lattice is the word-graph built from a backpointer table (§4.8.2): a
// compacted DAG over distinct (word, frame) pairs rather than the raw,
// possibly-redundant chain of BPEntry records.
type Lattice struct {
	Nodes []*LatNode
	Links []*LatLink

	Start LatNodeID
	End   LatNodeID

	// FillerBypass, when true, means filler words (silence/noise) were
	// elided during construction: a link's acoustic score already
	// includes any bypassed filler's contribution (§4.8.2's filler
	// bypass rule), so rescoring never needs to re-examine filler
	// identity.
	FillerBypass bool
}

// nodeKey identifies a (word, frame) pair for deduplication.
type nodeKey struct {
	word  WordID
	frame int32
}

// BuildLattice compacts a BPTable into a DAG, skipping filler words
// (bypassing them directly onto their non-filler predecessor, §4.8.2) and
// merging repeated (word, frame) pairs onto a single node. isFiller
// reports whether a word is a filler the way Dictionary.Word(...).Filler
// would.
func BuildLattice(bp *BPTable, finalIdx BPIndex, isFiller func(WordID) bool) *Lattice {
	lat := &Lattice{}
	nodeOf := make(map[nodeKey]LatNodeID)

	getNode := func(word WordID, frame int32) LatNodeID {
		k := nodeKey{word, frame}
		if id, ok := nodeOf[k]; ok {
			return id
		}
		id := LatNodeID(len(lat.Nodes))
		lat.Nodes = append(lat.Nodes, &LatNode{Word: word, Frame: frame})
		nodeOf[k] = id
		return id
	}

	// realPredecessor walks Prev links past any filler entries,
	// accumulating their acoustic+LM score into the bypass total.
	var realPredecessor func(idx BPIndex) (BPIndex, int32)
	realPredecessor = func(idx BPIndex) (BPIndex, int32) {
		var bypassed int32
		for idx != NoBP {
			e := bp.Entry(idx)
			if !isFiller(e.Word) {
				return idx, bypassed
			}
			bypassed += e.AcScore + e.LMScore
			idx = e.Prev
		}
		return NoBP, bypassed
	}

	addedLink := make(map[[2]LatNodeID]bool)

	for i := 0; i < bp.NEntries(); i++ {
		e := &bp.entries[i]
		if isFiller(e.Word) {
			continue
		}
		to := getNode(e.Word, e.Frame)

		predIdx, bypass := realPredecessor(e.Prev)
		var from LatNodeID
		if predIdx == NoBP {
			from = getNode(NoWord, -1) // synthetic utterance-start node
			lat.Start = from
		} else {
			pe := bp.Entry(predIdx)
			from = getNode(pe.Word, pe.Frame)
		}

		key := [2]LatNodeID{from, to}
		if addedLink[key] {
			continue
		}
		addedLink[key] = true

		link := &LatLink{From: from, To: to, AcScore: e.AcScore + bypass, LMScore: e.LMScore}
		linkID := LatLinkID(len(lat.Links))
		lat.Links = append(lat.Links, link)
		lat.Nodes[from].Out = append(lat.Nodes[from].Out, linkID)
		lat.Nodes[to].In = append(lat.Nodes[to].In, linkID)
	}

	if finalIdx != NoBP {
		fe := bp.Entry(finalIdx)
		lat.End = getNode(fe.Word, fe.Frame)
	}
	lat.FillerBypass = true
	return lat
}

// Link returns the link at id.
func (l *Lattice) Link(id LatLinkID) *LatLink { return l.Links[id] }

// Node returns the node at id.
func (l *Lattice) Node(id LatNodeID) *LatNode { return l.Nodes[id] }

// WriteText serialises the lattice to a simple line-oriented text format
// (§6.2's lattice persistence, this module's own rather than the
// original's DAG text format, since the DAG's wire shape isn't named by
// spec.md): node and link counts, one line per node and per link, then
// the start/end node ids. Scores are written in this module's internal
// int32 "higher is better" convention (§D.2) unchanged, since round-
// tripping through this format never crosses the model-file I/O boundary
// that convention governs.
func (l *Lattice) WriteText(w io.Writer, dict *Dictionary) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "LATTICE\nNODES %d\n", len(l.Nodes))
	for i, n := range l.Nodes {
		text := "<eps>"
		if n.Word != NoWord {
			if word := dict.Word(n.Word); word != nil {
				text = word.Text
			}
		}
		fmt.Fprintf(bw, "%d %s %d\n", i, text, n.Frame)
	}
	fmt.Fprintf(bw, "LINKS %d\n", len(l.Links))
	for _, link := range l.Links {
		fmt.Fprintf(bw, "%d %d %d %d\n", link.From, link.To, link.AcScore, link.LMScore)
	}
	fmt.Fprintf(bw, "START %d\nEND %d\nLATTICE_END\n", l.Start, l.End)
	return bw.Flush()
}

// ReadLatticeText parses the format WriteText produces, resolving word
// text back to WordID via dict.Lookup (first pronunciation only).
func ReadLatticeText(r io.Reader, dict *Dictionary) (*Lattice, error) {
	sc := bufio.NewScanner(r)
	lat := &Lattice{FillerBypass: true}

	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "LATTICE" {
		return nil, &FormatError{Msg: "lattice: missing LATTICE header"}
	}

	if !sc.Scan() {
		return nil, &FormatError{Msg: "lattice: missing NODES count"}
	}
	nFields := strings.Fields(sc.Text())
	if len(nFields) != 2 || nFields[0] != "NODES" {
		return nil, &FormatError{Msg: "lattice: malformed NODES line"}
	}
	nNodes, err := strconv.Atoi(nFields[1])
	if err != nil {
		return nil, &FormatError{Msg: "lattice: bad node count"}
	}
	lat.Nodes = make([]*LatNode, nNodes)
	for i := 0; i < nNodes; i++ {
		if !sc.Scan() {
			return nil, &FormatError{Msg: "lattice: truncated node list"}
		}
		f := strings.Fields(sc.Text())
		if len(f) != 3 {
			return nil, &FormatError{Msg: "lattice: malformed node line"}
		}
		frame, err := strconv.Atoi(f[2])
		if err != nil {
			return nil, &FormatError{Msg: "lattice: bad node frame"}
		}
		word := NoWord
		if f[1] != "<eps>" {
			ids := dict.Lookup(f[1])
			if len(ids) == 0 {
				return nil, &DomainError{Msg: "lattice: unknown word " + f[1]}
			}
			word = ids[0]
		}
		lat.Nodes[i] = &LatNode{Word: word, Frame: int32(frame)}
	}

	if !sc.Scan() {
		return nil, &FormatError{Msg: "lattice: missing LINKS count"}
	}
	lFields := strings.Fields(sc.Text())
	if len(lFields) != 2 || lFields[0] != "LINKS" {
		return nil, &FormatError{Msg: "lattice: malformed LINKS line"}
	}
	nLinks, err := strconv.Atoi(lFields[1])
	if err != nil {
		return nil, &FormatError{Msg: "lattice: bad link count"}
	}
	for i := 0; i < nLinks; i++ {
		if !sc.Scan() {
			return nil, &FormatError{Msg: "lattice: truncated link list"}
		}
		f := strings.Fields(sc.Text())
		if len(f) != 4 {
			return nil, &FormatError{Msg: "lattice: malformed link line"}
		}
		from, _ := strconv.Atoi(f[0])
		to, _ := strconv.Atoi(f[1])
		ac, _ := strconv.Atoi(f[2])
		lmsc, _ := strconv.Atoi(f[3])
		link := &LatLink{From: LatNodeID(from), To: LatNodeID(to), AcScore: int32(ac), LMScore: int32(lmsc)}
		linkID := LatLinkID(len(lat.Links))
		lat.Links = append(lat.Links, link)
		lat.Nodes[from].Out = append(lat.Nodes[from].Out, linkID)
		lat.Nodes[to].In = append(lat.Nodes[to].In, linkID)
	}

	if !sc.Scan() {
		return nil, &FormatError{Msg: "lattice: missing START line"}
	}
	sFields := strings.Fields(sc.Text())
	if len(sFields) != 2 || sFields[0] != "START" {
		return nil, &FormatError{Msg: "lattice: malformed START line"}
	}
	start, _ := strconv.Atoi(sFields[1])
	lat.Start = LatNodeID(start)

	if !sc.Scan() {
		return nil, &FormatError{Msg: "lattice: missing END line"}
	}
	eFields := strings.Fields(sc.Text())
	if len(eFields) != 2 || eFields[0] != "END" {
		return nil, &FormatError{Msg: "lattice: malformed END line"}
	}
	end, _ := strconv.Atoi(eFields[1])
	lat.End = LatNodeID(end)

	return lat, sc.Err()
}
