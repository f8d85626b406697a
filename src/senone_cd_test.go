package sphinx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContinuousScorerRejectsNoSenones(t *testing.T) {
	lm, _ := NewLogMath(1.0001)
	_, err := NewContinuousScorer(lm, nil)
	assert.Error(t, err)
}

func TestContinuousScorerFrameEvalAtTheMeanIsLogDetPlusWeight(t *testing.T) {
	lm, err := NewLogMath(1.0001)
	require.NoError(t, err)

	cs := &ContinuousSenone{
		Means:   [][]float32{{0}},
		InvVar2: [][]float32{{1}},
		LogDet:  []int32{100},
		Weights: []int32{5},
	}
	s, err := NewContinuousScorer(lm, []*ContinuousSenone{cs})
	require.NoError(t, err)

	scores, err := s.FrameEval(0, [][]float32{{0}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(105), scores[0], "x equals the mean so the squared-distance term vanishes exactly")
	assert.Equal(t, int32(105), s.BestScore())
}

func TestContinuousScorerFrameEvalCombinesComponentsWithLogAdd(t *testing.T) {
	lm, err := NewLogMath(1.0001)
	require.NoError(t, err)

	cs := &ContinuousSenone{
		Means:   [][]float32{{0}, {0}},
		InvVar2: [][]float32{{1}, {1}},
		LogDet:  []int32{100, 100},
		Weights: []int32{0, 0},
	}
	s, err := NewContinuousScorer(lm, []*ContinuousSenone{cs})
	require.NoError(t, err)

	scores, err := s.FrameEval(0, [][]float32{{0}}, nil)
	require.NoError(t, err)
	assert.Greater(t, scores[0], int32(100), "two equal-likelihood components sum to more than either alone")
}

func TestContinuousScorerFrameEvalUninitialisedSenoneIsLogZero(t *testing.T) {
	lm, err := NewLogMath(1.0001)
	require.NoError(t, err)

	senones := []*ContinuousSenone{nil, {Means: [][]float32{{0}}, InvVar2: [][]float32{{1}}, LogDet: []int32{0}, Weights: []int32{0}}}
	s, err := NewContinuousScorer(lm, senones)
	require.NoError(t, err)

	scores, err := s.FrameEval(0, [][]float32{{0}}, nil)
	require.NoError(t, err)
	assert.Equal(t, LogZero, scores[0])
}

func TestContinuousScorerFrameEvalRejectsEmptyFeatureStreams(t *testing.T) {
	lm, err := NewLogMath(1.0001)
	require.NoError(t, err)
	cs := &ContinuousSenone{Means: [][]float32{{0}}, InvVar2: [][]float32{{1}}, LogDet: []int32{0}, Weights: []int32{0}}
	s, err := NewContinuousScorer(lm, []*ContinuousSenone{cs})
	require.NoError(t, err)

	_, err = s.FrameEval(0, nil, nil)
	assert.Error(t, err)
}

func TestContinuousScorerFrameEvalRestrictsToActiveSenones(t *testing.T) {
	lm, err := NewLogMath(1.0001)
	require.NoError(t, err)
	sen0 := &ContinuousSenone{Means: [][]float32{{0}}, InvVar2: [][]float32{{1}}, LogDet: []int32{50}, Weights: []int32{0}}
	sen1 := &ContinuousSenone{Means: [][]float32{{0}}, InvVar2: [][]float32{{1}}, LogDet: []int32{999}, Weights: []int32{0}}
	s, err := NewContinuousScorer(lm, []*ContinuousSenone{sen0, sen1})
	require.NoError(t, err)

	active := NewActiveSet(2)
	active.Set(0)
	scores, err := s.FrameEval(0, [][]float32{{0}}, active)
	require.NoError(t, err)

	assert.Equal(t, int32(50), scores[0])
	assert.Equal(t, int32(50), s.BestScore(), "senone 1 was never in the active set, so it was never scanned")
}
