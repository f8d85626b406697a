package sphinx

import "sort"

// FwdTreeConfig bundles the pruning thresholds spec.md §4.4 describes as
// per-search parameters, kept as an explicit struct field rather than
// package-level globals per §5/§9.
type FwdTreeConfig struct {
	BeamWidth     int32 // main HMM pruning beam, a positive log-domain width below the best score
	WordBeamWidth int32 // word-end pruning beam
	MaxHMMActive  int   // absolute cap on active HMMs; carried here but not applied by the searches
}

// FwdTreeSearch implements the lexicon-tree first pass (§4.4): one
// LexTree instance per distinct left-context, word-end transitions that
// enter successor trees under the new left context, and backpointer
// logging on every word exit. It is the direct analogue of
// ngram_search_fwdtree.c's per-frame step, reshaped around the index
// pools of §9.
type FwdTreeSearch struct {
	dict  *Dictionary
	lm    *NgramModel
	sseq  *SseqTable
	tmats []*Tmat
	lmath *LogMath
	bp    *BPTable
	cfg   FwdTreeConfig

	trees map[PhoneID]*LexTree // one lexicon tree per left-context phone

	active  map[PhoneID][]LexNodeID // currently active node ids, per tree
	frame   int
	bestScr int32

	// lmState tracks the LM context independently per active root path;
	// since root selection is keyed by left-context phone, and most
	// utterances have exactly one active LM context per frame in this
	// simplified single-pass model, it is stored scalar and threaded
	// through word-entry rather than per node, matching the "ctx1/ctx2"
	// shape the original's root_hmm_entry carries.
	ctx1, ctx2 WordID
}

// NewFwdTreeSearch builds the per-left-context forest from dict and
// wires it to the supplied models. ssidFn/tmatFn/nEmitFn are the model
// accessors LexTree.Build needs.
func NewFwdTreeSearch(dict *Dictionary, lm *NgramModel, sseq *SseqTable, tmats []*Tmat, lmath *LogMath, cfg FwdTreeConfig, ssidFn SSIDFunc, tmatFn TmatFunc, nEmitFn NEmitFunc) *FwdTreeSearch {
	s := &FwdTreeSearch{
		dict:  dict,
		lm:    lm,
		sseq:  sseq,
		tmats: tmats,
		lmath: lmath,
		bp:    NewBPTable(),
		cfg:   cfg,
		trees: make(map[PhoneID]*LexTree),
		active: make(map[PhoneID][]LexNodeID),
	}

	// Every word's final phone becomes a left context some successor
	// tree must be built under, in addition to utterance-initial silence.
	contexts := map[PhoneID]bool{CISilence: true}
	for id := 0; id < dict.NWords(); id++ {
		w := dict.Word(WordID(id))
		if w == nil || w.Filler || len(w.Phones) == 0 {
			continue
		}
		contexts[w.Phones[len(w.Phones)-1]] = true
	}

	for ctx := range contexts {
		tree := NewLexTree(ssidFn, tmatFn, nEmitFn)
		for id := 0; id < dict.NWords(); id++ {
			w := dict.Word(WordID(id))
			if w == nil || w.Filler {
				continue
			}
			tree.AddWord(dict, ctx, WordID(id))
		}
		tree.Build(nil)
		s.trees[ctx] = tree
	}
	return s
}

// StartUtterance resets every tree and the backpointer table, ready for
// a fresh ProcessFrame sequence.
func (s *FwdTreeSearch) StartUtterance() {
	for _, tree := range s.trees {
		tree.ClearAll()
	}
	s.bp.Reset()
	s.frame = 0
	s.bestScr = WorstScore
	s.ctx1, s.ctx2 = NoWord, NoWord

	root := s.trees[CISilence]
	for _, rootID := range root.Roots(CISilence) {
		root.Node(rootID).HMM.Enter(0, int32(NoBP), 0)
	}
	s.active[CISilence] = append([]LexNodeID{}, root.Roots(CISilence)...)
}

// ProcessFrame runs one frame of the lexicon-tree search: senone scoring
// (delegated to acmod), per-node Viterbi evaluation, word-end
// backpointer logging, pruning, and cross-word transition (§4.4.2–4.4.4).
func (s *FwdTreeSearch) ProcessFrame(acmod *AcMod, feat [][]float32) error {
	for ctx, nodes := range s.active {
		tree := s.trees[ctx]
		var needed []SenoneID
		needed = tree.ActiveSenones(nodes, s.sseq, needed)
		acmod.RequestSenones(needed)
	}

	senscr, err := acmod.Score(feat)
	if err != nil {
		return err
	}
	if senscr == nil {
		s.frame++
		return nil
	}

	var newWordEnds []wordEndCandidate
	globalBest := WorstScore

	for ctx, nodes := range s.active {
		tree := s.trees[ctx]
		var survivors []LexNodeID
		for _, id := range nodes {
			n := tree.Node(id)
			if n.HMM.Frame != int32(s.frame) {
				continue
			}
			tmat := s.tmats[n.HMM.TmatID]
			best := VitEval(n.HMM, tmat, s.sseq, senscr)
			if best > globalBest {
				globalBest = best
			}
			if best < s.bestScr-s.cfg.BeamWidth {
				n.HMM.Clear()
				continue
			}
			survivors = append(survivors, id)

			if len(n.WordEnds) > 0 && n.HMM.ExitScore > WorstScore {
				for _, wid := range n.WordEnds {
					newWordEnds = append(newWordEnds, wordEndCandidate{
						wid:   wid,
						score: n.HMM.ExitScore,
						hist:  n.HMM.ExitHist,
					})
				}
			}

			for _, childID := range n.Children {
				child := tree.Node(childID)
				if child.HMM.Frame != int32(s.frame+1) && n.HMM.ExitScore > child.HMM.Score[0] {
					child.HMM.Enter(n.HMM.ExitScore, n.HMM.ExitHist, s.frame+1)
				}
			}
		}
		s.active[ctx] = survivors
	}

	s.bestScr = globalBest

	sort.Slice(newWordEnds, func(i, j int) bool { return newWordEnds[i].score > newWordEnds[j].score })
	wordBeamFloor := s.bestScr - s.cfg.WordBeamWidth
	for _, we := range newWordEnds {
		if we.score < wordBeamFloor {
			continue
		}
		lmScore := s.lm.AddTrigramPath(s.ctx1, s.ctx2, we.wid)
		bpIdx := s.bp.Enter(BPEntry{
			Word:      we.wid,
			Frame:     int32(s.frame),
			Score:     we.score + lmScore,
			AcScore:   we.score,
			LMScore:   lmScore,
			Prev:      BPIndex(we.hist),
		})
		s.enterSuccessors(we.wid, bpIdx, we.score+lmScore)
	}

	s.frame++
	return nil
}

type wordEndCandidate struct {
	wid   WordID
	score int32
	hist  int32
}

// enterSuccessors activates every tree rooted under the just-exited
// word's final phone as left context, carrying the new LM state forward
// (§4.4.4: cross-word transition).
func (s *FwdTreeSearch) enterSuccessors(wid WordID, bpIdx BPIndex, score int32) {
	w := s.dict.Word(wid)
	if w == nil || len(w.Phones) == 0 {
		return
	}
	leftCtx := w.Phones[len(w.Phones)-1]
	tree, ok := s.trees[leftCtx]
	if !ok {
		tree = s.trees[CISilence]
	}
	for _, rootID := range tree.Roots(leftCtx) {
		root := tree.Node(rootID)
		if score > root.HMM.Score[0] || root.HMM.Frame != int32(s.frame+1) {
			root.HMM.Enter(score, int32(bpIdx), s.frame+1)
		}
	}
	s.active[leftCtx] = tree.Roots(leftCtx)
	s.ctx2 = s.ctx1
	s.ctx1 = wid
}

// BestExitScore reports the best current score across all active trees,
// used by the search front-end for frame-rate beam reporting.
func (s *FwdTreeSearch) BestExitScore() int32 { return s.bestScr }
