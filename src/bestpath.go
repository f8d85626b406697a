package sphinx

import "container/heap"

// BestPath runs Dijkstra's algorithm over a Lattice (§4.8.3) to find the
// highest-scoring path from lat.Start to lat.End, combining acoustic and
// LM scores with the given language-model weight lw (applied to LMScore
// only, so a lattice can be rescored at a new LM weight without
// re-running acoustic search). Scores are "higher is better" throughout
// (§D.2), so this is a longest-path search; container/heap's min-heap
// shape is inverted by bpHeap.Less comparing scores with >, so the heap
// pops the highest score first (ties in directly with stdlib rather than
// copying the original's own heap implementation).
func BestPath(lat *Lattice, lw float64) ([]WordID, int32, error) {
	if len(lat.Nodes) == 0 {
		return nil, 0, &DomainError{Msg: "best-path: empty lattice"}
	}

	dist := make([]int32, len(lat.Nodes))
	pred := make([]LatLinkID, len(lat.Nodes))
	for i := range dist {
		dist[i] = WorstScore
		pred[i] = -1
	}
	dist[lat.Start] = 0

	pq := &bpHeap{{node: lat.Start, score: 0}}
	visited := make([]bool, len(lat.Nodes))

	for pq.Len() > 0 {
		item := heap.Pop(pq).(bpItem)
		if visited[item.node] {
			continue
		}
		visited[item.node] = true
		if item.node == lat.End {
			break
		}

		for _, linkID := range lat.Nodes[item.node].Out {
			link := lat.Link(linkID)
			w := link.AcScore + int32(float64(link.LMScore)*lw)
			nd := dist[item.node] + w
			if nd > dist[link.To] {
				dist[link.To] = nd
				pred[link.To] = linkID
				heap.Push(pq, bpItem{node: link.To, score: nd})
			}
		}
	}

	if dist[lat.End] == WorstScore {
		return nil, 0, &DomainError{Msg: "best-path: end node unreachable"}
	}

	var words []WordID
	node := lat.End
	for node != lat.Start {
		linkID := pred[node]
		if linkID < 0 {
			return nil, 0, &LogicError{Msg: "best-path: broken predecessor chain"}
		}
		link := lat.Link(linkID)
		n := lat.Node(node)
		if n.Word != NoWord {
			words = append(words, n.Word)
		}
		node = link.From
	}
	for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
		words[i], words[j] = words[j], words[i]
	}
	return words, dist[lat.End], nil
}

type bpItem struct {
	node  LatNodeID
	score int32
}

// bpHeap is a max-heap by score (since scores are "higher is better"),
// implementing container/heap.Interface directly over a plain slice.
type bpHeap []bpItem

func (h bpHeap) Len() int            { return len(h) }
func (h bpHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h bpHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *bpHeap) Push(x interface{}) { *h = append(*h, x.(bpItem)) }
func (h *bpHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
