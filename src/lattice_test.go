package sphinx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func latticeTestDict(t *testing.T) *Dictionary {
	t.Helper()
	d := NewDictionary(testPhoneSet())
	require.NoError(t, d.LoadText(strings.NewReader("ONE K AH\nTWO B AH\n"), false))
	require.NoError(t, d.LoadText(strings.NewReader("<sil> SIL\n"), true))
	return d
}

func TestBuildLatticeSkipsFillerNodesAndBypassesScore(t *testing.T) {
	d := latticeTestDict(t)
	sil := d.Lookup("<sil>")[0]
	one := d.Lookup("ONE")[0]
	two := d.Lookup("TWO")[0]

	bp := NewBPTable()
	eSil := bp.Enter(BPEntry{Word: sil, Frame: 2, AcScore: 7, LMScore: 3, Prev: NoBP})
	eOne := bp.Enter(BPEntry{Word: one, Frame: 5, AcScore: 100, LMScore: 10, Prev: eSil})
	eTwo := bp.Enter(BPEntry{Word: two, Frame: 10, AcScore: 200, LMScore: 20, Prev: eOne})

	isFiller := func(w WordID) bool {
		word := d.Word(w)
		return word != nil && word.Filler
	}
	lat := BuildLattice(bp, eTwo, isFiller)

	for _, n := range lat.Nodes {
		assert.NotEqual(t, sil, n.Word, "filler words must never become lattice nodes")
	}

	// The link into ONE should have absorbed the bypassed filler's
	// acoustic+LM score (7+3=10) on top of its own (100).
	var found bool
	for _, link := range lat.Links {
		if lat.Node(link.To).Word == one {
			found = true
			assert.Equal(t, int32(110), link.AcScore)
		}
	}
	assert.True(t, found, "expected a link terminating at ONE")
}

func TestBuildLatticeMergesRepeatedWordFramePairs(t *testing.T) {
	d := latticeTestDict(t)
	one := d.Lookup("ONE")[0]

	isFiller := func(w WordID) bool { return false }

	bp := NewBPTable()
	e0 := bp.Enter(BPEntry{Word: one, Frame: 5, Prev: NoBP})
	e1 := bp.Enter(BPEntry{Word: one, Frame: 5, Prev: NoBP})

	lat := BuildLattice(bp, e1, isFiller)

	var nOneNodes int
	for _, n := range lat.Nodes {
		if n.Word == one && n.Frame == 5 {
			nOneNodes++
		}
	}
	assert.Equal(t, 1, nOneNodes, "two entries for the same (word, frame) must collapse onto one node")
	_ = e0
}

func TestLatticeTextRoundTrip(t *testing.T) {
	d := latticeTestDict(t)
	one := d.Lookup("ONE")[0]
	two := d.Lookup("TWO")[0]

	bp := NewBPTable()
	e0 := bp.Enter(BPEntry{Word: one, Frame: 5, AcScore: 100, LMScore: 10, Prev: NoBP})
	e1 := bp.Enter(BPEntry{Word: two, Frame: 10, AcScore: 200, LMScore: 20, Prev: e0})

	lat := BuildLattice(bp, e1, func(WordID) bool { return false })

	buf := &bytes.Buffer{}
	require.NoError(t, lat.WriteText(buf, d))

	lat2, err := ReadLatticeText(buf, d)
	require.NoError(t, err)

	assert.Equal(t, len(lat.Nodes), len(lat2.Nodes))
	assert.Equal(t, len(lat.Links), len(lat2.Links))
	for i := range lat.Nodes {
		assert.Equal(t, lat.Nodes[i].Word, lat2.Nodes[i].Word)
		assert.Equal(t, lat.Nodes[i].Frame, lat2.Nodes[i].Frame)
	}
	for i := range lat.Links {
		assert.Equal(t, lat.Links[i].From, lat2.Links[i].From)
		assert.Equal(t, lat.Links[i].To, lat2.Links[i].To)
		assert.Equal(t, lat.Links[i].AcScore, lat2.Links[i].AcScore)
		assert.Equal(t, lat.Links[i].LMScore, lat2.Links[i].LMScore)
	}

	words, _, err := BestPath(lat2, 1.0)
	require.NoError(t, err)
	assert.Equal(t, []WordID{one, two}, words)
}

func TestReadLatticeTextRejectsUnknownWord(t *testing.T) {
	d := latticeTestDict(t)
	text := "LATTICE\nNODES 1\n0 NOTAWORD -1\nLINKS 0\nSTART 0\nEND 0\nLATTICE_END\n"
	_, err := ReadLatticeText(strings.NewReader(text), d)
	assert.Error(t, err)
}

func TestReadLatticeTextRejectsMissingHeader(t *testing.T) {
	d := latticeTestDict(t)
	_, err := ReadLatticeText(strings.NewReader("NOT A LATTICE\n"), d)
	assert.Error(t, err)
}
