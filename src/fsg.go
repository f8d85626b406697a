package sphinx

// FsgStateID identifies a finite-state-grammar state.
type FsgStateID int32

// FsgTransition is one arc of an FSG: consuming Word (or silent, if
// Word == NoWord, an epsilon arc) with an associated log-probability,
// moving from the owning state to To.
type FsgTransition struct {
	To     FsgStateID
	Word   WordID
	Weight int32
}

// Fsg is a finite-state grammar (§4.6.1): a set of states, one marked
// Start and any number marked Final, and weighted word/epsilon arcs
// between them. It plays the role an n-gram LM plays for the tree/flat
// searches, but constrains the word sequence exactly rather than just
// scoring it.
type Fsg struct {
	NStates int
	Start   FsgStateID
	Final   map[FsgStateID]bool
	Out     [][]FsgTransition // Out[s] = arcs leaving state s

	// closure[s] lists every state reachable from s via epsilon arcs
	// alone (including s itself), each paired with the accumulated
	// epsilon weight — computed once by ComputeClosure (§4.6.1).
	closure [][]epsReach
}

type epsReach struct {
	state  FsgStateID
	weight int32
}

// NewFsg allocates an empty grammar with n states.
func NewFsg(n int) *Fsg {
	return &Fsg{
		NStates: n,
		Final:   make(map[FsgStateID]bool),
		Out:     make([][]FsgTransition, n),
	}
}

// AddTransition appends an arc from `from`.
func (f *Fsg) AddTransition(from FsgStateID, t FsgTransition) {
	f.Out[from] = append(f.Out[from], t)
}

// ComputeClosure computes, for every state, the set of states reachable
// through epsilon (Word == NoWord) arcs alone, via a per-state
// bounded-relaxation search (Bellman-Ford style, since epsilon cycles
// with non-zero weight are malformed grammars and ones with zero weight
// terminate immediately once no state improves). This must run once
// after the grammar is fully built and before search (§4.6.1).
func (f *Fsg) ComputeClosure() {
	f.closure = make([][]epsReach, f.NStates)
	for s := 0; s < f.NStates; s++ {
		dist := make(map[FsgStateID]int32)
		dist[FsgStateID(s)] = 0
		changed := true
		for changed {
			changed = false
			for state, d := range dist {
				for _, t := range f.Out[state] {
					if t.Word != NoWord {
						continue
					}
					nd := d + t.Weight
					if cur, ok := dist[t.To]; !ok || nd > cur {
						dist[t.To] = nd
						changed = true
					}
				}
			}
		}
		for state, d := range dist {
			f.closure[s] = append(f.closure[s], epsReach{state: state, weight: d})
		}
	}
}

// EpsilonClosure returns every state reachable from s via epsilon arcs,
// each with the best (highest-log-prob) path weight to reach it.
func (f *Fsg) EpsilonClosure(s FsgStateID) []epsReach {
	if f.closure == nil {
		return []epsReach{{state: s, weight: 0}}
	}
	return f.closure[s]
}

// IsFinal reports whether s is an accepting state.
func (f *Fsg) IsFinal(s FsgStateID) bool { return f.Final[s] }
