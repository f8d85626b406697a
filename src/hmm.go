package sphinx

// TmatID identifies a transition matrix shared by many HMM instances.
type TmatID int32

// SenoneSeqID identifies a tied-state sequence: a mapping from an HMM's
// emitting states to senone ids, shared among many phonetic contexts
// (§3 "Tied-state sequence (SSID)").
type SenoneSeqID int32

// Tmat is a transition matrix over N emitting states plus one
// non-emitting exit state, stored as log-probabilities in the decoder's
// internal "higher is better" convention (§D.2 of SPEC_FULL.md). All
// tmats share the 1-skip Bakis topology: Prob[i][j] must be WorstScore
// (i.e. log 0) for every j < i or j > i+2. This is checked once at load
// time by NewTmat, not re-checked on every access.
type Tmat struct {
	NEmit int
	// Prob[i][j], i in [0,NEmit), j in [0,NEmit] (NEmit is the exit
	// state column).
	Prob [][]int32
}

// NewTmat validates and wraps a transition-probability matrix, enforcing
// the 1-skip Bakis topology invariant (§3, tested by §8's first bullet
// under "Invariants"). prob must be NEmit rows of NEmit+1 columns.
func NewTmat(prob [][]int32) (*Tmat, error) {
	n := len(prob)
	if n == 0 {
		return nil, &FormatError{Msg: "transition matrix has no emitting states"}
	}
	for i, row := range prob {
		if len(row) != n+1 {
			return nil, &FormatError{Msg: "transition matrix row width does not match state count + 1"}
		}
		for j, p := range row {
			allowed := j >= i && j <= i+2
			if !allowed && p != WorstScore {
				return nil, &FormatError{Msg: "transition matrix violates 1-skip Bakis topology"}
			}
		}
	}
	return &Tmat{NEmit: n, Prob: prob}, nil
}

// SSID is the tagged variant from §9: a non-multiplex HMM carries one
// senone-sequence id for its whole lifetime; a multiplex HMM carries one
// per emitting state, so the left-context identity can change as the
// search enters the HMM from different predecessors.
type SSID struct {
	Multiplex bool
	Scalar    SenoneSeqID
	PerState  []SenoneSeqID
}

// Senone returns the senone id feeding emitting state i, looking it up
// in the sseq table.
func (s SSID) Senone(sseq *SseqTable, i int) SenoneID {
	if s.Multiplex {
		return sseq.Senone(s.PerState[i], 0)
	}
	return sseq.Senone(s.Scalar, i)
}

// SseqTable maps (SenoneSeqID, state-within-sequence) to a senone id; it
// is shared read-only state across every HMM instance that uses a given
// tied-state sequence (§3).
type SseqTable struct {
	rows [][]SenoneID
}

// NewSseqTable wraps a loaded table of senone-sequence rows.
func NewSseqTable(rows [][]SenoneID) *SseqTable { return &SseqTable{rows: rows} }

// Senone returns the senone id at position i of sequence id.
func (t *SseqTable) Senone(id SenoneSeqID, i int) SenoneID {
	return t.rows[id][i]
}

// HMM is the runtime Viterbi-decoded unit of §3 "HMM instance". Scores
// and histories are plain slices indexed by emitting state, with one
// extra non-emitting exit slot tracked separately.
type HMM struct {
	TmatID TmatID
	SSID   SSID

	NEmit int

	// Score[i] / Hist[i] for emitting states 0..NEmit-1.
	Score []int32
	Hist  []int32

	// Exit state: the non-emitting state every HMM ends in, whose score
	// is what successor HMMs see this frame.
	ExitScore int32
	ExitHist  int32

	Best  int32
	Frame int32 // frame index of last activation; -1 when inactive.
}

// NewHMM allocates an HMM instance with nEmit emitting states, sharing
// tmat id and SSID the caller supplies.
func NewHMM(tmatID TmatID, ssid SSID, nEmit int) *HMM {
	h := &HMM{
		TmatID: tmatID,
		SSID:   ssid,
		NEmit:  nEmit,
		Score:  make([]int32, nEmit),
		Hist:   make([]int32, nEmit),
	}
	h.Clear()
	return h
}

// ClearScores resets every state's score to WorstScore without touching
// history or the frame stamp (used mid-lifetime, e.g. before a fresh
// activation path overwrites them anyway).
func (h *HMM) ClearScores() {
	for i := range h.Score {
		h.Score[i] = WorstScore
	}
	h.ExitScore = WorstScore
	h.Best = WorstScore
}

// Clear fully resets the HMM: scores, histories, and the frame stamp —
// done once per utterance for every permanently-allocated HMM, or when a
// channel is first built.
func (h *HMM) Clear() {
	h.ClearScores()
	for i := range h.Hist {
		h.Hist[i] = NoBP
	}
	h.ExitHist = NoBP
	h.Frame = -1
}

// Enter activates state 0 of the HMM with the given entry score and
// backpointer history at the given frame, the step a predecessor HMM's
// word/phone transition performs (§4.3 "enter").
func (h *HMM) Enter(score int32, hist int32, frame int) {
	h.Score[0] = score
	h.Hist[0] = hist
	h.Frame = int32(frame)
}

// Normalize subtracts best from every finite score and from the exit
// score, used to keep scores from drifting toward int32 overflow on long
// utterances (§4.3 "normalise").
func (h *HMM) Normalize(best int32) {
	for i := range h.Score {
		if h.Score[i] > WorstScore {
			h.Score[i] -= best
		}
	}
	if h.ExitScore > WorstScore {
		h.ExitScore -= best
	}
}

// clampWorst returns WorstScore if s has fallen below it (the underflow
// check of §4.3 step 1), otherwise s unchanged.
func clampWorst(s int32) int32 {
	if s < WorstScore {
		return WorstScore
	}
	return s
}

// VitEval performs one frame's Viterbi update for hmm, consuming senone
// scores from senscr (indexed by SenoneID) and transition probabilities
// from tmat. It implements the generic recurrence of §4.3: destination
// states are updated in decreasing order so that an input score is never
// overwritten before it's read by a later (lower-index) transition, and
// the non-emitting exit state is updated last, after every emitting
// state, so its transitions consume this frame's freshly written scores.
//
// This module does not special-case 3- or 5-state topologies (§9: "write
// the generic routine first; add specialised implementations only if
// profiling requires it" — profiling is out of scope here, so only the
// generic path is implemented, and it is the one semantics-bearing
// implementation).
func VitEval(h *HMM, tmat *Tmat, sseq *SseqTable, senscr []int32) int32 {
	n := h.NEmit

	// Step 1: combine each state's carried-in score with this frame's
	// senone score, with underflow clamping. A state at WorstScore is
	// inactive and stays at WorstScore whatever its senone scores.
	stateSenScore := make([]int32, n)
	for i := 0; i < n; i++ {
		var score int32 = WorstScore
		if h.Score[i] > WorstScore {
			sen := h.SSID.Senone(sseq, i)
			score = clampWorst(h.Score[i] + senscr[sen])
		}
		stateSenScore[i] = score
	}

	best := WorstScore

	// Exit state (index n in the tmat) has no self-loop.
	exitBestFrom := -1
	exitScore := WorstScore
	for from := n - 1; from >= 0; from-- {
		tp := tmat.Prob[from][n]
		if tp <= WorstScore {
			continue
		}
		cand := stateSenScore[from] + tp
		if cand > exitScore {
			exitScore = cand
			exitBestFrom = from
		}
	}
	exitScore = clampWorst(exitScore)
	h.ExitScore = exitScore
	if exitBestFrom >= 0 {
		h.ExitHist = h.Hist[exitBestFrom]
	}
	if exitScore > best {
		best = exitScore
	}

	// Emitting states, highest index first, so state `to`'s computation
	// never depends on a value this same pass has already overwritten.
	newScore := make([]int32, n)
	newHist := make([]int32, n)
	newSSID := make([]SenoneSeqID, n)
	haveMpx := h.SSID.Multiplex

	for to := n - 1; to >= 0; to-- {
		var scr int32 = WorstScore
		bestFrom := -1
		if tp := tmat.Prob[to][to]; tp > WorstScore {
			scr = stateSenScore[to] + tp
		}
		for from := to - 1; from >= 0; from-- {
			tp := tmat.Prob[from][to]
			if tp <= WorstScore {
				continue
			}
			cand := stateSenScore[from] + tp
			if cand > scr {
				scr = cand
				bestFrom = from
			}
		}
		scr = clampWorst(scr)
		newScore[to] = scr
		if bestFrom >= 0 {
			newHist[to] = h.Hist[bestFrom]
			if haveMpx {
				newSSID[to] = h.SSID.PerState[bestFrom]
			}
		} else {
			newHist[to] = h.Hist[to]
			if haveMpx {
				newSSID[to] = h.SSID.PerState[to]
			}
		}
		if scr > best {
			best = scr
		}
	}

	copy(h.Score, newScore)
	copy(h.Hist, newHist)
	if haveMpx {
		copy(h.SSID.PerState, newSSID)
	}

	h.Best = best
	return best
}
