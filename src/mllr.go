package sphinx

import "math"

// MLLRTransform is a single speaker-adaptation transform for one feature
// stream: an affine transform of the means (m' = A*m + b) and a variance
// scale h, applied between utterances only (§4.2.4). It is
// regression-class-free, matching the scope spec.md sets for MLLR.
type MLLRTransform struct {
	A [][]float32 // [dim][dim]
	B []float32   // [dim]
	H []float32   // [dim], variance scale factor
}

// ApplyMLLR recomputes a codebook's means and inverse-variances in place
// for one feature stream's transform, then re-derives log-determinants,
// mirroring cont_mgau.c's mean/variance adaptation followed by a
// determinant recompute. It must only be called between utterances
// (never mid-decode), per §4.2.4's stated timing requirement.
func ApplyMLLR(lm *LogMath, cb *Codebook, t *MLLRTransform) error {
	if len(t.A) != cb.VecLen || len(t.B) != cb.VecLen || len(t.H) != cb.VecLen {
		return &ConfigError{Msg: "MLLR transform dimension does not match codebook vector length"}
	}

	for c := 0; c < cb.NumCodewords; c++ {
		origMean := make([]float32, cb.VecLen)
		copy(origMean, cb.Means[c])

		for i := 0; i < cb.VecLen; i++ {
			var acc float32
			for j := 0; j < cb.VecLen; j++ {
				acc += t.A[i][j] * origMean[j]
			}
			cb.Means[c][i] = acc + t.B[i]
		}

		total := 0.0
		for d := 0; d < cb.VecLen; d++ {
			h := float64(t.H[d])
			if h <= 0 {
				return &ConfigError{Msg: "MLLR variance scale must be positive"}
			}
			// invVar2 holds 1/(2*var); scaling variance by h scales
			// invVar2 by 1/h.
			cb.InvVar2[c][d] = float32(float64(cb.InvVar2[c][d]) / h)

			varD := 1.0 / (2.0 * float64(cb.InvVar2[c][d]))
			total += math.Log(1.0 / math.Sqrt(varD*2*math.Pi))
		}
		cb.LogDet[c] = lm.FromLn(total)
	}
	return nil
}
