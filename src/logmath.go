package sphinx

import (
	"fmt"
	"math"
)

// WorstScore is the sentinel used throughout the Viterbi evaluator and
// senone scorers to mark a score that should be treated as minus infinity.
// Any state whose score falls to this value is inactive.
const WorstScore int32 = math.MinInt32 / 2

// LogZero is the fixed-point representation of a zero probability,
// returned by senone back-ends that have no initialised components for a
// given senone.
const LogZero int32 = WorstScore

// SenscrShift is the default right-shift applied to senone scores so that
// they fit comfortably in a 16-bit range when serialised.
const SenscrShift = 10

// LogMath holds the state for one instance of the fixed-point log-base
// arithmetic described by the acoustic model's scoring convention: all
// probabilities are represented as int32 logarithms in a base B = 1+eps,
// close enough to 1 that int32 doesn't overflow for the dynamic range an
// acoustic model needs. It is a field of Config/Decoder rather than a
// package-level singleton, so that multiple decoders in one process never
// share mutable log-math state.
type LogMath struct {
	base       float64
	logBase    float64
	invLogBase float64
	invLog10Base float64

	addTable []uint16
}

// NewLogMath builds the log-add table for the given base. base must be
// strictly greater than 1.0, and the resulting table must fit in an
// unsigned 16-bit value per entry (mirroring the original module's
// "logbase too small" failure mode).
func NewLogMath(base float64) (*LogMath, error) {
	if base <= 1.0 {
		return nil, &ConfigError{Msg: fmt.Sprintf("illegal log base %g: must be > 1.0", base)}
	}

	lm := &LogMath{
		base:         base,
		logBase:      math.Log(base),
		invLogBase:   1.0 / math.Log(base),
		invLog10Base: 1.0 / math.Log10(base),
	}

	k := int32(math.Log(2.0)*lm.invLogBase + 0.5)
	if k > 65535 {
		return nil, &ConfigError{Msg: fmt.Sprintf("log base %g too small: add-table entry would overflow 16 bits", base)}
	}

	var table []uint16
	d := 1.0
	f := 1.0 / base
	for {
		t := math.Log(1.0+d) * lm.invLogBase
		v := int32(t + 0.5)
		table = append(table, uint16(v))
		if v == 0 {
			break
		}
		d *= f
	}
	lm.addTable = table

	return lm, nil
}

// Base returns the configured logarithm base.
func (lm *LogMath) Base() float64 { return lm.base }

// AddTableSize reports how many entries the log-add table holds; useful
// for diagnostics and for tests asserting the table terminates.
func (lm *LogMath) AddTableSize() int { return len(lm.addTable) }

// Add computes logB(B^x + B^y) using the precomputed difference table.
// When the absolute difference between x and y exceeds the table size,
// the smaller operand contributes nothing and the larger is returned
// unchanged (this is the intended lossy behaviour, not a bug).
func (lm *LogMath) Add(x, y int32) int32 {
	var d, r int32
	if x > y {
		d = x - y
		r = x
	} else {
		d = y - x
		r = y
	}
	if int(d) < len(lm.addTable) {
		r += int32(lm.addTable[d])
	}
	return r
}

// FromLn converts a natural-log probability to this log base.
func (lm *LogMath) FromLn(logp float64) int32 {
	return int32(logp * lm.invLogBase)
}

// FromLog10 converts a base-10 log probability to this log base.
func (lm *LogMath) FromLog10(log10p float64) int32 {
	return int32(log10p * lm.invLog10Base)
}

// FromProb converts a linear probability p in (0, 1] to this log base.
// p <= 0 maps to LogZero, mirroring the original's defensive clamp.
func (lm *LogMath) FromProb(p float64) int32 {
	if p <= 0.0 {
		return LogZero
	}
	return int32(math.Log(p) * lm.invLogBase)
}

// ToLn converts a value in this log base back to a natural logarithm.
func (lm *LogMath) ToLn(logp int32) float64 {
	return float64(logp) * lm.logBase
}

// ToProb converts a value in this log base back to a linear probability.
func (lm *LogMath) ToProb(logp int32) float64 {
	return math.Exp(float64(logp) * lm.logBase)
}
