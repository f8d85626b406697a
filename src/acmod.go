package sphinx

import "fmt"

// CMNMode selects between the two cepstral mean normalisation update
// strategies the original supports: "current" recomputes the running mean
// during the utterance, each time the accumulated frame count passes
// cmnWindowHWM (live_norm.c's mean_norm_acc_sub), while
// "prior" freezes the mean at the value learned from the previous
// utterance and only updates it at utterance end (mean_norm_update).
type CMNMode int

const (
	CMNCurrent CMNMode = iota
	CMNPrior
)

const (
	cmnWindow    = 500
	cmnWindowHWM = 800
)

// CMNState holds one feature stream's running cepstral mean, grounded on
// live_norm.c's cur_mean/sum/nframe triple. It is a field of AcMod, never
// a package-level global, per §5/§9.
type CMNState struct {
	mode    CMNMode
	veclen  int
	curMean []float32
	sum     []float32
	nframe  int
}

// NewCMNState creates CMN state for a feature vector of length veclen.
// The original seeds mean[0] (the C0 / energy coefficient) to 8.0 and
// leaves the rest at zero.
func NewCMNState(mode CMNMode, veclen int) *CMNState {
	c := &CMNState{
		mode:    mode,
		veclen:  veclen,
		curMean: make([]float32, veclen),
		sum:     make([]float32, veclen),
	}
	if veclen > 0 {
		c.curMean[0] = 8.0
	}
	return c
}

// AccumulateSubtract adds vec to the running sum and subtracts the
// current mean from vec in place, incrementing the frame count and
// sliding the accumulation window when it grows too large — the
// "current" mode update, applied per frame as frames arrive.
func (c *CMNState) AccumulateSubtract(vec []float32) {
	n := c.veclen
	if len(vec) < n {
		n = len(vec)
	}
	for i := 0; i < n; i++ {
		c.sum[i] += vec[i]
		vec[i] -= c.curMean[i]
	}
	c.nframe++
	if c.mode == CMNCurrent && c.nframe > cmnWindowHWM {
		c.shiftWindow()
	}
}

// Update recomputes curMean from the accumulated sum, the "prior" mode's
// end-of-utterance step (mean_norm_update). In "current" mode it also
// folds in the frames accumulated since the last window shift, which
// AccumulateSubtract only does once the count passes cmnWindowHWM.
func (c *CMNState) Update() {
	if c.nframe <= 0 {
		return
	}
	for i := 0; i < c.veclen; i++ {
		c.curMean[i] = c.sum[i] / float32(c.nframe)
	}
	if c.nframe > cmnWindowHWM {
		c.shiftWindow()
	}
}

func (c *CMNState) shiftWindow() {
	for i := 0; i < c.veclen; i++ {
		c.curMean[i] = c.sum[i] / float32(c.nframe)
	}
	scale := float32(cmnWindow) / float32(c.nframe)
	for i := 0; i < c.veclen; i++ {
		c.sum[i] *= scale
	}
	c.nframe = cmnWindow
}

// AGCState implements an energy-max automatic gain control, grounded on
// agc_emax.c: the C0 (energy) coefficient of every frame is scaled down
// by the running maximum energy observed in the utterance so far.
type AGCState struct {
	maxEnergy float32
	enabled   bool
}

// NewAGCState returns an enabled or disabled AGC state.
func NewAGCState(enabled bool) *AGCState {
	return &AGCState{enabled: enabled}
}

// Apply scales vec[0] (the energy coefficient) against the running max,
// and extends the running max if this frame's energy is higher.
func (a *AGCState) Apply(vec []float32) {
	if !a.enabled || len(vec) == 0 {
		return
	}
	if vec[0] > a.maxEnergy {
		a.maxEnergy = vec[0]
	}
	if a.maxEnergy > 0 {
		vec[0] -= a.maxEnergy
	}
}

// Reset clears the running maximum, done at utterance start.
func (a *AGCState) Reset() { a.maxEnergy = 0 }

// AcMod is the acoustic-model driver: it owns the feature ring, the CMN
// and AGC state per stream, the senone scorer, and the frame counter,
// and exposes the frame_eval operation the search layer calls once per
// frame. This corresponds to acmod.c in the original and to the feature
// ring-buffer idiom in the teacher's src/audio.go.
type AcMod struct {
	scorer   Scorer
	cmn      []*CMNState // one per feature stream that needs CMN (nil entries skip it)
	agc      *AGCState
	compAll  bool
	frameIdx int

	active *ActiveSet
}

// NewAcMod wires a scorer, per-stream CMN state (pass nil entries to skip
// CMN on a stream such as delta-delta features), and an AGC state.
func NewAcMod(scorer Scorer, cmn []*CMNState, agc *AGCState, computeAllSenones bool) *AcMod {
	return &AcMod{
		scorer:  scorer,
		cmn:     cmn,
		agc:     agc,
		compAll: computeAllSenones,
		active:  NewActiveSet(scorer.NSenones()),
	}
}

// StartUtterance resets the per-utterance frame counter and AGC state.
// CMN state is intentionally NOT reset here for CMNPrior mode — the
// whole point of "prior" normalisation is that it carries over from the
// previous utterance.
func (a *AcMod) StartUtterance() {
	a.frameIdx = 0
	if a.agc != nil {
		a.agc.Reset()
	}
}

// RequestSenones OR's additional required senones into this frame's
// active set; called by the search driver once per active HMM before
// Score is invoked (§4.4.2 step 1 / §4.6.4 step 1).
func (a *AcMod) RequestSenones(ids []SenoneID) {
	for _, id := range ids {
		a.active.Set(id)
	}
}

// Score applies CMN/AGC to feat in place and runs the senone scorer for
// the current frame, returning the per-senone score vector. The frame
// index is then advanced. If no senones were requested and compAll is
// false, scoring is skipped entirely and nil is returned (§8 boundary
// behaviour: "a frame with zero active HMMs ... produces no senone
// scores").
func (a *AcMod) Score(feat [][]float32) ([]int32, error) {
	if !a.compAll && isActiveSetEmpty(a.active) {
		a.frameIdx++
		return nil, nil
	}

	for i, vec := range feat {
		if i < len(a.cmn) && a.cmn[i] != nil {
			a.cmn[i].AccumulateSubtract(vec)
		}
		if i == 0 && a.agc != nil {
			a.agc.Apply(vec)
		}
	}

	var activeArg *ActiveSet
	if !a.compAll {
		activeArg = a.active
	}
	scores, err := a.scorer.FrameEval(a.frameIdx, feat, activeArg)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", a.frameIdx, err)
	}

	a.active.Reset()
	a.frameIdx++
	return scores, nil
}

// FrameIndex reports the index of the next frame to be scored.
func (a *AcMod) FrameIndex() int { return a.frameIdx }

// Rewind resets the frame counter to zero without touching CMN/AGC
// state, so that a previously-processed utterance's features can be
// rescored and reproduce the same per-frame best-senone sequence (§8
// scenario 4).
func (a *AcMod) Rewind() { a.frameIdx = 0 }

// Rescore runs the senone scorer directly over feat, skipping CMN/AGC
// (the caller is replaying features Score has already normalised once,
// as the flat-lexicon second pass does — §4.5). Active-senone pruning
// still applies exactly as in Score.
func (a *AcMod) Rescore(feat [][]float32) ([]int32, error) {
	if !a.compAll && isActiveSetEmpty(a.active) {
		a.frameIdx++
		return nil, nil
	}
	var activeArg *ActiveSet
	if !a.compAll {
		activeArg = a.active
	}
	scores, err := a.scorer.FrameEval(a.frameIdx, feat, activeArg)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", a.frameIdx, err)
	}
	a.active.Reset()
	a.frameIdx++
	return scores, nil
}

func isActiveSetEmpty(a *ActiveSet) bool {
	for _, w := range a.bits {
		if w != 0 {
			return false
		}
	}
	return true
}
