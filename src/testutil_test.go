package sphinx

// fakeScorer is a deterministic Scorer test double: FrameEval ignores the
// feature vectors entirely and returns whichever score vector it was
// constructed with, optionally one per call when len(perFrame) > 0. This
// lets search-layer tests drive a full Viterbi pass without any acoustic
// model files.
type fakeScorer struct {
	n         int
	perFrame  [][]int32 // perFrame[frameIdx] used if present
	fallback  []int32
	best      int32
	callCount int
}

func newFakeScorer(n int, fallback []int32) *fakeScorer {
	return &fakeScorer{n: n, fallback: fallback}
}

func (s *fakeScorer) NSenones() int { return s.n }

func (s *fakeScorer) FrameEval(frameIdx int, feat [][]float32, active *ActiveSet) ([]int32, error) {
	s.callCount++
	if frameIdx < len(s.perFrame) && s.perFrame[frameIdx] != nil {
		return s.perFrame[frameIdx], nil
	}
	return s.fallback, nil
}

func (s *fakeScorer) BestScore() int32 { return s.best }

// singleStatePhoneModel returns a one-emitting-state tmat/sseq/model-func
// triple shared by fsg/fwdtree/fwdflat search tests: every phone uses
// tmat id 0 (self-loop 0, exit -100) and senone = its own phone id, which
// keeps the fixture tiny while still exercising the real Viterbi path.
func singleStatePhoneModel() (*Tmat, *SseqTable, SSIDFunc, TmatFunc, NEmitFunc) {
	tmat, err := NewTmat([][]int32{{0, -100}})
	if err != nil {
		panic(err)
	}
	sseq := NewSseqTable([][]SenoneID{
		{0}, {1}, {2}, {3},
	})
	ssidFn := func(left, base, right PhoneID, pos int) SSID {
		return SSID{Scalar: SenoneSeqID(base)}
	}
	tmatFn := func(base PhoneID, pos int) TmatID { return 0 }
	nEmitFn := func(base PhoneID) int { return 1 }
	return tmat, sseq, ssidFn, tmatFn, nEmitFn
}

func newTestAcMod(scorer Scorer) *AcMod {
	return NewAcMod(scorer, nil, NewAGCState(false), false)
}
