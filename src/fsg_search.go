package sphinx

// FsgSearch runs Viterbi decoding constrained to a finite-state grammar
// (§4.6.3–4.6.4). Per SPEC_FULL.md §D.3, this implements fsg_search2's
// semantics: every partial hypothesis carries a real backtrace through
// the grammar's states rather than the older fsg_search's ad hoc
// single-best string (the stubbed "???" hypothesis path described by the
// original is not reproduced here).
type FsgSearch struct {
	fsg   *Fsg
	dict  *Dictionary
	sseq  *SseqTable
	tmats []*Tmat
	lex   *FsgLexTree
	bp    *BPTable
	cfg   FwdTreeConfig

	// active[s] is true while some word arc leaving FSG state s has
	// a live, frame-current HMM somewhere in lex.Tree(s).
	active map[FsgStateID]bool
	frame  int
	best   int32

	// stateHist[s] is the backpointer index representing "how we got to
	// state s", updated as word exits re-enter successor states.
	stateHist map[FsgStateID]BPIndex
	stateScr  map[FsgStateID]int32
}

// NewFsgSearch builds the per-state lexicon forest and prepares an empty
// search ready for StartUtterance.
func NewFsgSearch(fsg *Fsg, dict *Dictionary, sseq *SseqTable, tmats []*Tmat, cfg FwdTreeConfig, ssidFn SSIDFunc, tmatFn TmatFunc, nEmitFn NEmitFunc) *FsgSearch {
	fsg.ComputeClosure()
	return &FsgSearch{
		fsg:   fsg,
		dict:  dict,
		sseq:  sseq,
		tmats: tmats,
		lex:   NewFsgLexTree(fsg, dict, ssidFn, tmatFn, nEmitFn),
		bp:    NewBPTable(),
		cfg:   cfg,
	}
}

// StartUtterance resets all per-state trees and seeds the grammar's
// start state as reachable with zero cost.
func (s *FsgSearch) StartUtterance() {
	for _, tree := range s.lex.trees {
		tree.ClearAll()
	}
	s.bp.Reset()
	s.frame = 0
	s.best = WorstScore
	s.active = make(map[FsgStateID]bool)
	s.stateHist = make(map[FsgStateID]BPIndex)
	s.stateScr = make(map[FsgStateID]int32)

	s.enterState(s.fsg.Start, 0, NoBP, 0)
}

// enterState activates every word-arc root leaving fsgState with the
// given carried-in score/history, the grammar-search analogue of
// FwdTreeSearch.enterSuccessors.
func (s *FsgSearch) enterState(fsgState FsgStateID, score int32, hist BPIndex, frame int) {
	if cur, ok := s.stateScr[fsgState]; ok && cur >= score {
		return
	}
	s.stateScr[fsgState] = score
	s.stateHist[fsgState] = hist

	tree := s.lex.Tree(fsgState)
	if tree == nil {
		return
	}
	for _, rootID := range tree.Roots(CISilence) {
		root := tree.Node(rootID)
		if root.HMM.Frame != int32(frame) || score > root.HMM.Score[0] {
			root.HMM.Enter(score, int32(hist), frame)
		}
	}
	s.active[fsgState] = true
}

// ProcessFrame advances every active state's lexicon tree by one frame
// (§4.6.4): senone request, Viterbi evaluation, word-exit detection,
// pruning, and re-entry into destination states via the FSG's arcs.
func (s *FsgSearch) ProcessFrame(acmod *AcMod, feat [][]float32) error {
	var needed []SenoneID
	var activeNodeLists [][]LexNodeID
	var activeStates []FsgStateID
	for fsgState := range s.active {
		tree := s.lex.Tree(fsgState)
		var nodes []LexNodeID
		for id := 0; id < tree.NNodes(); id++ {
			n := tree.Node(LexNodeID(id))
			if n.HMM.Frame == int32(s.frame) {
				nodes = append(nodes, LexNodeID(id))
			}
		}
		needed = tree.ActiveSenones(nodes, s.sseq, needed)
		activeNodeLists = append(activeNodeLists, nodes)
		activeStates = append(activeStates, fsgState)
	}
	acmod.RequestSenones(needed)

	senscr, err := acmod.Score(feat)
	if err != nil {
		return err
	}
	if senscr == nil {
		s.frame++
		return nil
	}

	globalBest := WorstScore
	type pendingEntry struct {
		to    FsgStateID
		score int32
		hist  BPIndex
	}
	var pending []pendingEntry
	nextActive := make(map[FsgStateID]bool)

	for i, fsgState := range activeStates {
		tree := s.lex.Tree(fsgState)
		for _, id := range activeNodeLists[i] {
			n := tree.Node(id)
			tmat := s.tmats[n.HMM.TmatID]
			best := VitEval(n.HMM, tmat, s.sseq, senscr)
			if best > globalBest {
				globalBest = best
			}
			if best < s.best-s.cfg.BeamWidth {
				n.HMM.Clear()
				continue
			}
			nextActive[fsgState] = true

			if len(n.WordEnds) > 0 && n.HMM.ExitScore > WorstScore {
				for _, wid := range n.WordEnds {
					for _, dest := range s.lex.Destinations(fsgState, wid) {
						bpIdx := s.bp.Enter(BPEntry{
							Word:    wid,
							Frame:   int32(s.frame),
							Score:   n.HMM.ExitScore + dest.weight,
							AcScore: n.HMM.ExitScore,
							LMScore: dest.weight,
							Prev:    BPIndex(n.HMM.ExitHist),
						})
						pending = append(pending, pendingEntry{
							to:    dest.to,
							score: n.HMM.ExitScore + dest.weight,
							hist:  bpIdx,
						})
					}
				}
			}
			for _, childID := range n.Children {
				child := tree.Node(childID)
				if child.HMM.Frame != int32(s.frame+1) || n.HMM.ExitScore > child.HMM.Score[0] {
					child.HMM.Enter(n.HMM.ExitScore, n.HMM.ExitHist, s.frame+1)
				}
			}
		}
	}

	s.active = nextActive
	s.best = globalBest
	for _, p := range pending {
		s.enterState(p.to, p.score, p.hist, s.frame+1)
	}

	s.frame++
	return nil
}

// BestFinal returns the best backpointer index reaching any final state
// so far, or NoBP if none has been reached yet.
func (s *FsgSearch) BestFinal() BPIndex {
	best := NoBP
	var bestScore int32 = WorstScore
	for st := range s.fsg.Final {
		if hist, ok := s.stateHist[st]; ok {
			if scr := s.stateScr[st]; scr > bestScore {
				bestScore = scr
				best = hist
			}
		}
	}
	return best
}
