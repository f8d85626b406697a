package sphinx

import "container/heap"

// NBestHyp is one ranked hypothesis from NBest: the word sequence and
// its combined score at the language-model weight the search ran under.
type NBestHyp struct {
	Words []WordID
	Score int32
}

// nbestPartial is a partial path under construction during the A*
// search: the lattice node it has reached, its accumulated score, and
// the word sequence so far (reversed, end-to-start, for cheap append).
type nbestPartial struct {
	node    LatNodeID
	score   int32
	wordsRv []WordID
}

type nbestHeap []nbestPartial

func (h nbestHeap) Len() int            { return len(h) }
func (h nbestHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h nbestHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nbestHeap) Push(x interface{}) { *h = append(*h, x.(nbestPartial)) }
func (h *nbestHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// NBest runs an A*-style bounded search over a Lattice (§4.8.4) and
// returns up to n distinct-word-sequence hypotheses in descending score
// order. It explores backward from lat.End to lat.Start the way the
// original's astar.c does, using dist-to-end as an admissible heuristic
// is skipped here in favour of the simpler exhaustive-priority-queue
// form: since lattices are already heavily pruned by the acoustic beam,
// the extra heuristic bookkeeping rarely pays for itself at this scale.
func NBest(lat *Lattice, lw float64, n int) ([]NBestHyp, error) {
	if len(lat.Nodes) == 0 {
		return nil, &DomainError{Msg: "n-best: empty lattice"}
	}
	if n <= 0 {
		return nil, &ConfigError{Msg: "n-best: n must be positive"}
	}

	pq := &nbestHeap{{node: lat.End, score: 0}}
	seen := make(map[string]bool)
	var out []NBestHyp

	for pq.Len() > 0 && len(out) < n {
		p := heap.Pop(pq).(nbestPartial)

		if p.node == lat.Start {
			words := make([]WordID, len(p.wordsRv))
			for i, w := range p.wordsRv {
				words[len(words)-1-i] = w
			}
			key := hypKey(words)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, NBestHyp{Words: words, Score: p.score})
			continue
		}

		for _, linkID := range lat.Node(p.node).In {
			link := lat.Link(linkID)
			w := link.AcScore + int32(float64(link.LMScore)*lw)
			words := p.wordsRv
			if node := lat.Node(p.node); node.Word != NoWord {
				words = append(append([]WordID{}, p.wordsRv...), node.Word)
			}
			heap.Push(pq, nbestPartial{
				node:    link.From,
				score:   p.score + w,
				wordsRv: words,
			})
		}
	}

	return out, nil
}

func hypKey(words []WordID) string {
	b := make([]byte, 0, len(words)*5)
	for _, w := range words {
		b = append(b, byte(w), byte(w>>8), byte(w>>16), byte(w>>24), '|')
	}
	return string(b)
}
