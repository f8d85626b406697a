package sphinx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFsgLexTreeBuildsOneTreePerStateWithOutgoingWords(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	require.NoError(t, d.LoadText(strings.NewReader("ONE K AH\nTWO B AH\n"), false))
	one := d.Lookup("ONE")[0]
	two := d.Lookup("TWO")[0]

	fsg := NewFsg(3)
	fsg.AddTransition(0, FsgTransition{To: 1, Word: one, Weight: -10})
	fsg.AddTransition(1, FsgTransition{To: 2, Word: two, Weight: -20})
	fsg.Start = 0
	fsg.Final[2] = true
	fsg.ComputeClosure()

	ssidFn, tmatFn, nEmitFn := testModelFuncs()
	flt := NewFsgLexTree(fsg, d, ssidFn, tmatFn, nEmitFn)

	assert.NotNil(t, flt.Tree(0), "state 0 has an outgoing word arc")
	assert.NotNil(t, flt.Tree(1))
	assert.Nil(t, flt.Tree(2), "state 2 is final with no outgoing arcs")

	dests := flt.Destinations(0, one)
	require.Len(t, dests, 1)
	assert.Equal(t, FsgStateID(1), dests[0].to)
	assert.Equal(t, int32(-10), dests[0].weight)
}

func TestFsgLexTreeFollowsEpsilonClosureForArcCollection(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	require.NoError(t, d.LoadText(strings.NewReader("ONE K AH\n"), false))
	one := d.Lookup("ONE")[0]

	fsg := NewFsg(3)
	fsg.AddTransition(0, FsgTransition{To: 1, Word: NoWord, Weight: -1}) // epsilon
	fsg.AddTransition(1, FsgTransition{To: 2, Word: one, Weight: -5})
	fsg.Start = 0
	fsg.Final[2] = true
	fsg.ComputeClosure()

	ssidFn, tmatFn, nEmitFn := testModelFuncs()
	flt := NewFsgLexTree(fsg, d, ssidFn, tmatFn, nEmitFn)

	// State 0 has no direct word arc, but via epsilon closure into state
	// 1 it should still get a tree for "ONE" with the accumulated weight.
	require.NotNil(t, flt.Tree(0))
	dests := flt.Destinations(0, one)
	require.Len(t, dests, 1)
	assert.Equal(t, int32(-6), dests[0].weight, "epsilon weight -1 plus arc weight -5")
}

func TestFsgLexTreeStatesListsOnlyNonEmptyTrees(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	require.NoError(t, d.LoadText(strings.NewReader("ONE K AH\n"), false))
	one := d.Lookup("ONE")[0]

	fsg := NewFsg(2)
	fsg.AddTransition(0, FsgTransition{To: 1, Word: one, Weight: 0})
	fsg.Start = 0
	fsg.Final[1] = true
	fsg.ComputeClosure()

	ssidFn, tmatFn, nEmitFn := testModelFuncs()
	flt := NewFsgLexTree(fsg, d, ssidFn, tmatFn, nEmitFn)

	states := flt.States()
	assert.ElementsMatch(t, []FsgStateID{0}, states)
}
