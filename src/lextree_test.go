package sphinx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModelFuncs() (SSIDFunc, TmatFunc, NEmitFunc) {
	ssidFn := func(left, base, right PhoneID, pos int) SSID {
		return SSID{Scalar: SenoneSeqID(int32(base)*100 + int32(pos))}
	}
	tmatFn := func(base PhoneID, pos int) TmatID { return TmatID(base) }
	nEmitFn := func(base PhoneID) int { return 3 }
	return ssidFn, tmatFn, nEmitFn
}

func TestLexTreeAddWordSharesPrefixes(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	require.NoError(t, d.LoadText(strings.NewReader("CAB K AH B\nCAT K AH K\n"), false))

	ssidFn, tmatFn, nEmitFn := testModelFuncs()
	tree := NewLexTree(ssidFn, tmatFn, nEmitFn)
	tree.AddWord(d, CISilence, d.Lookup("CAB")[0])
	tree.AddWord(d, CISilence, d.Lookup("CAT")[0])

	// Shared "K AH" prefix should produce exactly one branch point with
	// two children (B and K), not two disjoint three-node chains.
	assert.Equal(t, 4, tree.NNodes(), "K, AH, B, K(leaf) = 4 distinct nodes")

	roots := tree.Roots(CISilence)
	require.Len(t, roots, 1, "both words start with phone K under the same left context")
	kNode := tree.Node(roots[0])
	assert.Len(t, kNode.Children, 1, "only one AH child")

	ahNode := tree.Node(kNode.Children[0])
	assert.Len(t, ahNode.Children, 2, "AH branches into B and K leaves")
}

func TestLexTreeAddWordSkipsEmptyPronunciation(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	ssidFn, tmatFn, nEmitFn := testModelFuncs()
	tree := NewLexTree(ssidFn, tmatFn, nEmitFn)
	tree.AddWord(d, CISilence, WordID(99)) // unknown word id
	assert.Equal(t, 0, tree.NNodes())
}

func TestLexTreeBuildInstantiatesHMMPerNode(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	require.NoError(t, d.LoadText(strings.NewReader("CAB K AH B\n"), false))

	ssidFn, tmatFn, nEmitFn := testModelFuncs()
	tree := NewLexTree(ssidFn, tmatFn, nEmitFn)
	tree.AddWord(d, CISilence, d.Lookup("CAB")[0])
	tree.Build(nil)

	for i := 0; i < tree.NNodes(); i++ {
		n := tree.Node(LexNodeID(i))
		require.NotNil(t, n.HMM)
		assert.Equal(t, 3, n.HMM.NEmit)
	}
}

func TestLexTreeClearAllResetsHMMs(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	require.NoError(t, d.LoadText(strings.NewReader("CAB K AH B\n"), false))

	ssidFn, tmatFn, nEmitFn := testModelFuncs()
	tree := NewLexTree(ssidFn, tmatFn, nEmitFn)
	tree.AddWord(d, CISilence, d.Lookup("CAB")[0])
	tree.Build(nil)

	root := tree.Roots(CISilence)[0]
	tree.Node(root).HMM.Enter(0, 5, 0)
	tree.ClearAll()

	assert.Equal(t, WorstScore, tree.Node(root).HMM.Score[0])
}

func TestLexTreeWordEndsCollapseHomophones(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	require.NoError(t, d.LoadText(strings.NewReader("CAB K AH B\nKAB K AH B\n"), false))

	ssidFn, tmatFn, nEmitFn := testModelFuncs()
	tree := NewLexTree(ssidFn, tmatFn, nEmitFn)
	tree.AddWord(d, CISilence, d.Lookup("CAB")[0])
	tree.AddWord(d, CISilence, d.Lookup("KAB")[0])

	assert.Equal(t, 3, tree.NNodes(), "identical pronunciations collapse onto one chain")

	root := tree.Roots(CISilence)[0]
	leaf := tree.Node(root)
	for len(leaf.Children) > 0 {
		leaf = tree.Node(leaf.Children[0])
	}
	assert.Len(t, leaf.WordEnds, 2, "both homophones' word ids attach to the shared leaf")
}
