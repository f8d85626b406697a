package sphinx

// FlatWordSpan is one word placed into the flat lexicon network (§4.5.1):
// a word hypothesised by the first pass within [StartFrame, EndFrame], an
// expansion window the second pass uses to decide which frames that
// word's HMM chain may legally be active in.
type FlatWordSpan struct {
	Word       WordID
	StartFrame int
	EndFrame   int
}

// fwdflatExpansionWindow is the number of frames a word's activity
// window is padded by on each side (§4.5.1's "expansion window"),
// grounded on ngram_search_fwdflat.c's FWDFLAT_FRAME_PAD.
const fwdflatExpansionWindow = 50

// BuildWordList collects the distinct words seen in the first pass's
// backpointer table, each with the frame range its occurrences spanned,
// padded by the expansion window and clamped to [0, nFrames). This list
// is the vocabulary the flat lexicon in the second pass restricts itself
// to, rather than every word in the dictionary.
func BuildWordList(bp *BPTable, nFrames int) []FlatWordSpan {
	spans := make(map[WordID]*FlatWordSpan)
	for f := 0; f < nFrames; f++ {
		for _, idx := range bp.FrameEntries(f) {
			e := bp.Entry(idx)
			if sp, ok := spans[e.Word]; ok {
				if f < sp.StartFrame {
					sp.StartFrame = f
				}
				if f > sp.EndFrame {
					sp.EndFrame = f
				}
			} else {
				spans[e.Word] = &FlatWordSpan{Word: e.Word, StartFrame: f, EndFrame: f}
			}
		}
	}

	out := make([]FlatWordSpan, 0, len(spans))
	for _, sp := range spans {
		start := sp.StartFrame - fwdflatExpansionWindow
		if start < 0 {
			start = 0
		}
		end := sp.EndFrame + fwdflatExpansionWindow
		if end >= nFrames {
			end = nFrames - 1
		}
		out = append(out, FlatWordSpan{Word: sp.Word, StartFrame: start, EndFrame: end})
	}
	return out
}

// FwdFlatSearch is the second pass (§4.5): a flat (non-branching, one
// HMM-chain-per-word) network restricted to the words BuildWordList
// selected, rescored against the same acoustic frames with the same
// FwdTreeConfig beams as the first pass, to recover word identities the tree search's
// first-phone-sharing can blur.
type FwdFlatSearch struct {
	dict  *Dictionary
	lm    *NgramModel
	sseq  *SseqTable
	tmats []*Tmat
	bp    *BPTable
	cfg   FwdTreeConfig

	chains map[WordID]*flatChain
	active []WordID
	frame  int
	best   int32

	ctx1, ctx2 WordID
}

type flatChain struct {
	span FlatWordSpan
	hmms []*HMM // one per phone in the word's pronunciation, chained
}

// NewFwdFlatSearch builds one linear HMM chain per word span, using the
// same per-phone model accessors the lexicon tree uses (no branching
// structure is needed since each word's chain is private).
func NewFwdFlatSearch(dict *Dictionary, lm *NgramModel, sseq *SseqTable, tmats []*Tmat, cfg FwdTreeConfig, spans []FlatWordSpan, ssidFn SSIDFunc, tmatFn TmatFunc, nEmitFn NEmitFunc) *FwdFlatSearch {
	s := &FwdFlatSearch{
		dict:   dict,
		lm:     lm,
		sseq:   sseq,
		tmats:  tmats,
		bp:     NewBPTable(),
		cfg:    cfg,
		chains: make(map[WordID]*flatChain),
	}

	for _, sp := range spans {
		w := dict.Word(sp.Word)
		if w == nil || len(w.Phones) == 0 {
			continue
		}
		chain := &flatChain{span: sp}
		for pos, ph := range w.Phones {
			var left, right PhoneID = CISilence, CISilence
			if pos > 0 {
				left = w.Phones[pos-1]
			}
			if pos+1 < len(w.Phones) {
				right = w.Phones[pos+1]
			}
			ssid := ssidFn(left, ph, right, pos)
			h := NewHMM(tmatFn(ph, pos), ssid, nEmitFn(ph))
			chain.hmms = append(chain.hmms, h)
		}
		s.chains[sp.Word] = chain
	}
	return s
}

// StartUtterance resets every chain and the second-pass backpointer
// table.
func (s *FwdFlatSearch) StartUtterance() {
	for _, c := range s.chains {
		for _, h := range c.hmms {
			h.Clear()
		}
	}
	s.bp.Reset()
	s.frame = 0
	s.best = WorstScore
	s.active = s.active[:0]
	for wid, c := range s.chains {
		if c.span.StartFrame == 0 {
			c.hmms[0].Enter(0, int32(NoBP), 0)
			s.active = append(s.active, wid)
		}
	}
}

// ProcessFrame advances every active word chain by one frame, the same
// three-step shape as FwdTreeSearch.ProcessFrame but without cross-word
// branching: a chain's word-end directly re-enters every OTHER active
// chain's first phone (since the flat network has no shared prefixes to
// exploit).
func (s *FwdFlatSearch) ProcessFrame(acmod *AcMod, feat [][]float32) error {
	var needed []SenoneID
	for _, wid := range s.active {
		c := s.chains[wid]
		for _, h := range c.hmms {
			if h.Frame != int32(s.frame) {
				continue
			}
			for i := 0; i < h.NEmit; i++ {
				needed = append(needed, h.SSID.Senone(s.sseq, i))
			}
		}
	}
	acmod.RequestSenones(needed)

	senscr, err := acmod.Rescore(feat)
	if err != nil {
		return err
	}
	if senscr == nil {
		s.frame++
		return nil
	}

	globalBest := WorstScore
	var wordEnds []wordEndCandidate
	var stillActive []WordID

	for _, wid := range s.active {
		c := s.chains[wid]
		if s.frame > c.span.EndFrame {
			continue
		}
		live := false
		for i, h := range c.hmms {
			if h.Frame != int32(s.frame) {
				continue
			}
			tmat := s.tmats[h.TmatID]
			best := VitEval(h, tmat, s.sseq, senscr)
			if best > globalBest {
				globalBest = best
			}
			if best < s.best-s.cfg.BeamWidth {
				continue
			}
			live = true
			if i+1 < len(c.hmms) {
				next := c.hmms[i+1]
				if next.Frame != int32(s.frame+1) || h.ExitScore > next.Score[0] {
					next.Enter(h.ExitScore, h.ExitHist, s.frame+1)
				}
			} else if h.ExitScore > WorstScore {
				wordEnds = append(wordEnds, wordEndCandidate{wid: wid, score: h.ExitScore, hist: h.ExitHist})
			}
		}
		if live || s.frame+1 <= c.span.EndFrame {
			stillActive = append(stillActive, wid)
		}
	}
	s.active = stillActive
	s.best = globalBest

	for _, we := range wordEnds {
		lmScore := s.lm.AddTrigramPath(s.ctx1, s.ctx2, we.wid)
		s.bp.Enter(BPEntry{
			Word:    we.wid,
			Frame:   int32(s.frame),
			Score:   we.score + lmScore,
			AcScore: we.score,
			LMScore: lmScore,
			Prev:    BPIndex(we.hist),
		})
		for otherWid, c := range s.chains {
			if c.span.StartFrame > s.frame+1 || c.span.EndFrame < s.frame+1 {
				continue
			}
			first := c.hmms[0]
			if first.Frame != int32(s.frame+1) || we.score+lmScore > first.Score[0] {
				first.Enter(we.score+lmScore, int32(s.bp.NEntries()-1), s.frame+1)
			}
			found := false
			for _, a := range s.active {
				if a == otherWid {
					found = true
					break
				}
			}
			if !found {
				s.active = append(s.active, otherWid)
			}
		}
	}

	s.frame++
	return nil
}

// BPTable exposes the second pass's own backpointer table for lattice
// construction (§4.8.2) and N-best rescoring.
func (s *FwdFlatSearch) BPTableOf() *BPTable { return s.bp }
