package sphinx

// ContinuousSenone holds a senone's own small Gaussian mixture (its own
// means, inverse-2*variance, and log-determinant per component) for the
// continuous acoustic model back-end of §4.2.2. A senone with no
// initialised components (a nil senone, or empty Means) always returns LogZero.
type ContinuousSenone struct {
	Means   [][]float32 // [component][dim]
	InvVar2 [][]float32 // [component][dim]
	LogDet  []int32     // [component]
	Weights []int32     // [component], log mixture weight
}

// ContinuousScorer implements Scorer for the continuous acoustic model
// back-end: every component of every active senone is evaluated per
// frame, with no top-N shortcut (§4.2.2).
type ContinuousScorer struct {
	lm      *LogMath
	senones []*ContinuousSenone
	scores  []int32
	best    int32
}

// NewContinuousScorer builds a scorer over per-senone Gaussian mixtures.
func NewContinuousScorer(lm *LogMath, senones []*ContinuousSenone) (*ContinuousScorer, error) {
	if len(senones) == 0 {
		return nil, &ConfigError{Msg: "continuous scorer requires at least one senone"}
	}
	return &ContinuousScorer{
		lm:      lm,
		senones: senones,
		scores:  make([]int32, len(senones)),
	}, nil
}

func (s *ContinuousScorer) NSenones() int    { return len(s.senones) }
func (s *ContinuousScorer) BestScore() int32 { return s.best }

// FrameEval scores every component of every active senone's mixture and
// combines them with log-add, matching §4.2.2.
func (s *ContinuousScorer) FrameEval(frameIdx int, feat [][]float32, active *ActiveSet) ([]int32, error) {
	if len(feat) == 0 {
		return nil, &ConfigError{Msg: "continuous scorer requires at least one feature stream"}
	}
	x := feat[0]

	senones := senoneRange(len(s.senones), active)
	s.best = WorstScore
	for _, sen := range senones {
		cs := s.senones[sen]
		if cs == nil || len(cs.Means) == 0 {
			s.scores[sen] = LogZero
			continue
		}
		total := LogZero
		for c := range cs.Means {
			comp := cs.LogDet[c] - s.lm.FromLn(sumSquaredDiff(x, cs.Means[c], cs.InvVar2[c])) + cs.Weights[c]
			total = s.lm.Add(total, comp)
		}
		s.scores[sen] = total
		if total > s.best {
			s.best = total
		}
	}
	return s.scores, nil
}

func sumSquaredDiff(x, mean, invVar2 []float32) float64 {
	n := len(mean)
	if len(x) < n {
		n = len(x)
	}
	sum := 0.0
	for d := 0; d < n; d++ {
		diff := float64(x[d] - mean[d])
		sum += diff * diff * float64(invVar2[d])
	}
	return sum
}
