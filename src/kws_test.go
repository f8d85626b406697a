package sphinx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kwsTestDict(t *testing.T) *Dictionary {
	t.Helper()
	d := NewDictionary(testPhoneSet())
	require.NoError(t, d.LoadText(strings.NewReader("ONE K\nTWO B\n"), false))
	return d
}

func TestLoadKWSListDefaultThreshold(t *testing.T) {
	d := kwsTestDict(t)
	phrases, err := LoadKWSList(strings.NewReader("ONE TWO\n"), d, -1000)
	require.NoError(t, err)
	require.Len(t, phrases, 1)
	assert.Equal(t, "ONE TWO", phrases[0].Text)
	assert.Equal(t, int32(-1000), phrases[0].Threshold)
	assert.Equal(t, []WordID{d.Lookup("ONE")[0], d.Lookup("TWO")[0]}, phrases[0].Words)
}

func TestLoadKWSListExplicitThreshold(t *testing.T) {
	d := kwsTestDict(t)
	phrases, err := LoadKWSList(strings.NewReader("ONE /42/\n"), d, -1000)
	require.NoError(t, err)
	require.Len(t, phrases, 1)
	assert.Equal(t, int32(42), phrases[0].Threshold)
}

func TestLoadKWSListSkipsCommentsAndBlanks(t *testing.T) {
	d := kwsTestDict(t)
	phrases, err := LoadKWSList(strings.NewReader("# comment\n\nONE\n"), d, 0)
	require.NoError(t, err)
	assert.Len(t, phrases, 1)
}

func TestLoadKWSListRejectsOOVWord(t *testing.T) {
	d := kwsTestDict(t)
	_, err := LoadKWSList(strings.NewReader("NOTAWORD\n"), d, 0)
	assert.Error(t, err)
}

func TestKWSSpotterDetectsPhraseAboveThreshold(t *testing.T) {
	d := kwsTestDict(t)
	one := d.Lookup("ONE")[0]

	tmat, sseq, ssidFn, tmatFn, nEmitFn := singleStatePhoneModel()
	cfg := FwdTreeConfig{BeamWidth: 1 << 20, WordBeamWidth: 1 << 20, MaxHMMActive: 1000}

	phrases := []KWSPhrase{{Words: []WordID{one}, Text: "ONE", Threshold: -1000}}
	sp := NewKWSSpotter(phrases, d, sseq, []*Tmat{tmat}, cfg, ssidFn, tmatFn, nEmitFn)

	scorer := newFakeScorer(4, []int32{0, 0, 50, 0})
	acmod := newTestAcMod(scorer)
	acmod.StartUtterance()

	sp.StartUtterance()
	hits, err := sp.ProcessFrame(acmod, [][]float32{{0}})
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, "ONE", hits[0].Phrase.Text)
	assert.Greater(t, hits[0].Score, phrases[0].Threshold)
}

func TestKWSSpotterNoDetectionBelowThreshold(t *testing.T) {
	d := kwsTestDict(t)
	one := d.Lookup("ONE")[0]

	tmat, sseq, ssidFn, tmatFn, nEmitFn := singleStatePhoneModel()
	cfg := FwdTreeConfig{BeamWidth: 1 << 20, WordBeamWidth: 1 << 20, MaxHMMActive: 1000}

	// A threshold higher than any achievable score should never fire.
	phrases := []KWSPhrase{{Words: []WordID{one}, Text: "ONE", Threshold: 1_000_000}}
	sp := NewKWSSpotter(phrases, d, sseq, []*Tmat{tmat}, cfg, ssidFn, tmatFn, nEmitFn)

	scorer := newFakeScorer(4, []int32{0, 0, 50, 0})
	acmod := newTestAcMod(scorer)
	acmod.StartUtterance()

	sp.StartUtterance()
	hits, err := sp.ProcessFrame(acmod, [][]float32{{0}})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestKWSSpotterRestartsAfterDetectionForReFiring(t *testing.T) {
	d := kwsTestDict(t)
	one := d.Lookup("ONE")[0]

	tmat, sseq, ssidFn, tmatFn, nEmitFn := singleStatePhoneModel()
	cfg := FwdTreeConfig{BeamWidth: 1 << 20, WordBeamWidth: 1 << 20, MaxHMMActive: 1000}

	phrases := []KWSPhrase{{Words: []WordID{one}, Text: "ONE", Threshold: -1000}}
	sp := NewKWSSpotter(phrases, d, sseq, []*Tmat{tmat}, cfg, ssidFn, tmatFn, nEmitFn)

	scorer := newFakeScorer(4, []int32{0, 0, 50, 0})
	acmod := newTestAcMod(scorer)
	acmod.StartUtterance()

	sp.StartUtterance()
	hits1, err := sp.ProcessFrame(acmod, [][]float32{{0}})
	require.NoError(t, err)
	require.Len(t, hits1, 1)
	assert.Equal(t, 0, hits1[0].StartFrame)

	hits2, err := sp.ProcessFrame(acmod, [][]float32{{0}})
	require.NoError(t, err)
	if len(hits2) > 0 {
		assert.Greater(t, hits2[0].StartFrame, hits1[0].EndFrame-1)
	}
}
