package sphinx

import "math"

// Codebook holds one shared diagonal-covariance Gaussian codebook for one
// feature stream of the semi-continuous acoustic model (§4.2.1). Means,
// inverse-2*variance and log-determinants are precomputed at load time the
// way the original's readVarCBFile does: invVar2[c][d] = 1/(2*var[c][d])
// and logDet[c] = sum_d log(1/sqrt(2*pi*var[c][d])), both already
// expressed in the decoder's internal log base by the loader.
type Codebook struct {
	NumCodewords int
	VecLen       int
	Means        [][]float32 // [codeword][dim]
	InvVar2      [][]float32 // [codeword][dim], already 1/(2*var)
	LogDet       []int32     // [codeword], precomputed normaliser term
}

// mahalanobis returns the (unnormalised) Gaussian log-likelihood of x
// under codeword cw, in the decoder's internal log base.
func (cb *Codebook) mahalanobis(cw int, x []float32, lm *LogMath) int32 {
	sum := float64(0)
	means := cb.Means[cw]
	invVar2 := cb.InvVar2[cw]
	n := cb.VecLen
	if n > len(x) {
		n = len(x)
	}
	for d := 0; d < n; d++ {
		diff := float64(x[d] - means[d])
		sum += diff * diff * float64(invVar2[d])
	}
	return cb.LogDet[cw] - lm.FromLn(sum)
}

// topNEntry is one slot of the bounded ordered list of best-scoring
// codewords kept while scanning a codebook.
type topNEntry struct {
	codeword int
	score    int32
}

// topNList is a small insertion-sorted list capped at N entries, highest
// score first. Equivalent in effect to the original's hand-rolled
// insertion loop; written as a plain loop per §9's guidance to trust the
// compiler rather than hand-unroll.
type topNList struct {
	n       int
	entries []topNEntry
}

func newTopNList(n int) *topNList {
	return &topNList{n: n, entries: make([]topNEntry, 0, n)}
}

func (t *topNList) reset() { t.entries = t.entries[:0] }

func (t *topNList) insert(cw int, score int32) {
	if len(t.entries) < t.n {
		t.entries = append(t.entries, topNEntry{cw, score})
	} else if score <= t.entries[len(t.entries)-1].score {
		return
	} else {
		t.entries[len(t.entries)-1] = topNEntry{cw, score}
	}
	for i := len(t.entries) - 1; i > 0 && t.entries[i].score > t.entries[i-1].score; i-- {
		t.entries[i], t.entries[i-1] = t.entries[i-1], t.entries[i]
	}
}

// SCMixtureWeights holds the per-senone, per-stream, per-codeword
// quantised mixture weights of a semi-continuous model, already
// dequantised to int32 log-weights by the loader (§6.2 "quantised to 8
// bits"). A weight of LogZero means the codeword is not in this senone's
// mixture.
type SCMixtureWeights struct {
	NSenones  int
	NStreams  int
	Weights   [][][]int32 // [senone][stream][codeword]
}

// SemiContinuousScorer implements Scorer for the semi-continuous
// Gaussian-mixture back-end of §4.2.1: a shared codebook per feature
// stream, top-N codeword approximation, and 8-bit quantised per-senone
// mixture weights.
type SemiContinuousScorer struct {
	lm        *LogMath
	codebooks []*Codebook // one per stream
	mixw      *SCMixtureWeights

	topN       int
	downsample int

	scores    []int32
	best      int32
	lastFrame int

	// per-stream top-N lists, reused frame to frame.
	lists []*topNList
}

// NewSemiContinuousScorer builds a scorer over the given codebooks (one
// per feature stream) and mixture weights. topN defaults to 4 and
// downsample to 1 when given as <= 0, matching the original's defaults.
func NewSemiContinuousScorer(lm *LogMath, codebooks []*Codebook, mixw *SCMixtureWeights, topN, downsample int) (*SemiContinuousScorer, error) {
	if len(codebooks) == 0 {
		return nil, &ConfigError{Msg: "semi-continuous scorer requires at least one codebook"}
	}
	if mixw.NSenones <= 0 {
		return nil, &ConfigError{Msg: "semi-continuous scorer requires at least one senone"}
	}
	if topN <= 0 {
		topN = 4
	}
	if downsample <= 0 {
		downsample = 1
	}
	lists := make([]*topNList, len(codebooks))
	for i := range lists {
		lists[i] = newTopNList(topN)
	}
	return &SemiContinuousScorer{
		lm:         lm,
		codebooks:  codebooks,
		mixw:       mixw,
		topN:       topN,
		downsample: downsample,
		scores:     make([]int32, mixw.NSenones),
		lastFrame:  -1,
		lists:      lists,
	}, nil
}

func (s *SemiContinuousScorer) NSenones() int { return s.mixw.NSenones }
func (s *SemiContinuousScorer) BestScore() int32 { return s.best }

// FrameEval implements §4.2.1's four-step per-frame computation.
func (s *SemiContinuousScorer) FrameEval(frameIdx int, feat [][]float32, active *ActiveSet) ([]int32, error) {
	if len(feat) != len(s.codebooks) {
		return nil, &ConfigError{Msg: "feature stream count does not match codebook count"}
	}

	// Step 1: frame downsampling — reuse the previous frame's scores.
	if s.downsample > 1 && frameIdx%s.downsample != 0 && s.lastFrame >= 0 {
		return s.scores, nil
	}

	// Step 2: per-stream, per-codeword Mahalanobis, top-N selection.
	for si, cb := range s.codebooks {
		list := s.lists[si]
		list.reset()
		for cw := 0; cw < cb.NumCodewords; cw++ {
			sc := cb.mahalanobis(cw, feat[si], s.lm)
			list.insert(cw, sc)
		}
	}

	// Step 3: mix top-N codeword scores per active senone.
	senones := senoneRange(s.mixw.NSenones, active)
	s.best = WorstScore
	for _, sen := range senones {
		total := LogZero
		for si := range s.codebooks {
			streamTotal := LogZero
			mixw := s.mixw.Weights[sen][si]
			for _, e := range s.lists[si].entries {
				w := mixw[e.codeword]
				if w == LogZero {
					continue
				}
				contribution := e.score + w
				streamTotal = s.lm.Add(streamTotal, contribution)
			}
			if total == LogZero {
				total = streamTotal
			} else {
				total += streamTotal
			}
		}
		s.scores[sen] = total
		if total > s.best {
			s.best = total
		}
	}

	// Step 4: renormalise by subtracting the best score.
	if s.best != WorstScore && s.best != LogZero {
		for _, sen := range senones {
			if s.scores[sen] == LogZero {
				continue
			}
			s.scores[sen] -= s.best
		}
	}

	s.lastFrame = frameIdx
	return s.scores, nil
}

// senoneRange returns either every senone id in [0,n) (compute-all) or
// the caller-activated subset, per §4.2.3.
func senoneRange(n int, active *ActiveSet) []SenoneID {
	if active == nil {
		all := make([]SenoneID, n)
		for i := range all {
			all[i] = SenoneID(i)
		}
		return all
	}
	return active.List()
}

// varFloor clamps a variance to the configured floor, matching
// readVarCBFile's `if (fvar < vFloor) fvar = vFloor;`.
func varFloor(v, floor float64) float64 {
	if v < floor {
		return floor
	}
	return v
}

// BuildCodebook precomputes InvVar2 and LogDet from raw means/variances
// the way the model loader does at load time (§6.2 mean/var format).
// Variances below floor are clamped; floored counts the number of values
// that were clamped, for the load-time report §4.2.4 calls for.
func BuildCodebook(lm *LogMath, means, vars [][]float32, floor float64) (*Codebook, int) {
	n := len(means)
	cb := &Codebook{
		NumCodewords: n,
		Means:        means,
		InvVar2:      make([][]float32, n),
		LogDet:       make([]int32, n),
	}
	if n > 0 {
		cb.VecLen = len(means[0])
	}
	floored := 0
	for c := 0; c < n; c++ {
		invVar2 := make([]float32, cb.VecLen)
		logDet := 0.0
		for d := 0; d < cb.VecLen; d++ {
			v := float64(vars[c][d])
			if v < floor {
				floored++
			}
			v = varFloor(v, floor)
			logDet += math.Log(1.0 / math.Sqrt(v*2*math.Pi))
			invVar2[d] = float32(1.0 / (2.0 * v))
		}
		cb.InvVar2[c] = invVar2
		cb.LogDet[c] = lm.FromLn(logDet)
	}
	return cb, floored
}
