package sphinx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleWordFwdTreeFixture(t *testing.T) (*FwdTreeSearch, *AcMod, WordID) {
	t.Helper()
	d := NewDictionary(testPhoneSet())
	require.NoError(t, d.LoadText(strings.NewReader("ONE K\n"), false))
	one := d.Lookup("ONE")[0]

	lm, err := NewLogMath(1.0001)
	require.NoError(t, err)

	b := NewBuilder(lm)
	b.AddEntry(nil, "ONE", -0.5, 0, false)
	ngram := b.Finalize(NoWord, NoWord)
	require.Equal(t, one, ngram.vocab["ONE"], "LM and dictionary must assign ONE the same WordID for this fixture to be meaningful")

	tmat, sseq, ssidFn, tmatFn, nEmitFn := singleStatePhoneModel()
	cfg := FwdTreeConfig{BeamWidth: 1 << 20, WordBeamWidth: 1 << 20, MaxHMMActive: 1000}
	search := NewFwdTreeSearch(d, ngram, sseq, []*Tmat{tmat}, lm, cfg, ssidFn, tmatFn, nEmitFn)

	scorer := newFakeScorer(4, []int32{0, 0, 50, 0})
	acmod := newTestAcMod(scorer)
	acmod.StartUtterance()

	return search, acmod, one
}

func TestNewFwdTreeSearchBuildsOneTreePerLeftContext(t *testing.T) {
	search, _, _ := singleWordFwdTreeFixture(t)
	assert.Contains(t, search.trees, CISilence)
	assert.Contains(t, search.trees, PhoneID(2), "ONE's final phone K (id 2) is a left context for any successor word")
}

func TestFwdTreeSearchLogsWordEndAndEntersSuccessor(t *testing.T) {
	search, acmod, one := singleWordFwdTreeFixture(t)

	search.StartUtterance()
	require.NoError(t, search.ProcessFrame(acmod, [][]float32{{0}}))

	require.Equal(t, 1, search.bp.NEntries())
	e := search.bp.Entry(0)
	assert.Equal(t, one, e.Word)
	assert.Equal(t, int32(0), e.Frame)
	assert.Equal(t, NoBP, e.Prev)

	assert.Contains(t, search.active, PhoneID(2), "word exit should have re-entered the K-left-context tree")
	assert.NotEmpty(t, search.active[PhoneID(2)])
}

func TestFwdTreeSearchStartUtteranceResetsState(t *testing.T) {
	search, acmod, _ := singleWordFwdTreeFixture(t)

	search.StartUtterance()
	require.NoError(t, search.ProcessFrame(acmod, [][]float32{{0}}))
	require.Equal(t, 1, search.bp.NEntries())

	search.StartUtterance()
	assert.Equal(t, 0, search.bp.NEntries())
	assert.Equal(t, 0, search.frame)
}

func TestFwdTreeSearchPrunesLowScoringNodes(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	require.NoError(t, d.LoadText(strings.NewReader("ONE K\n"), false))

	lm, err := NewLogMath(1.0001)
	require.NoError(t, err)
	b := NewBuilder(lm)
	b.AddEntry(nil, "ONE", -0.5, 0, false)
	ngram := b.Finalize(NoWord, NoWord)

	tmat, sseq, ssidFn, tmatFn, nEmitFn := singleStatePhoneModel()
	// A beam width of zero means anything below the running best is
	// pruned immediately.
	cfg := FwdTreeConfig{BeamWidth: 0, WordBeamWidth: 0, MaxHMMActive: 1000}
	search := NewFwdTreeSearch(d, ngram, sseq, []*Tmat{tmat}, lm, cfg, ssidFn, tmatFn, nEmitFn)

	// Senone 2 ("K") scores very poorly this frame so the HMM's best
	// falls far enough below any reasonable running best to be clamped;
	// since bestScr starts at WorstScore, nothing prunes on frame 0, but
	// the resulting node must still carry a sane (not corrupted) score.
	scorer := newFakeScorer(4, []int32{0, 0, WorstScore, 0})
	acmod := newTestAcMod(scorer)
	acmod.StartUtterance()

	search.StartUtterance()
	require.NoError(t, search.ProcessFrame(acmod, [][]float32{{0}}))
	assert.Equal(t, WorstScore, search.bestScr, "an all-WorstScore senone frame keeps every node inactive")
}
