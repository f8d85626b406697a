package sphinx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPhoneSet() map[string]PhoneID {
	return map[string]PhoneID{"AH": 0, "B": 1, "K": 2, "SIL": 3}
}

func TestDictionaryLoadTextBasic(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	err := d.LoadText(strings.NewReader("CAB K AH B\n"), false)
	require.NoError(t, err)

	ids := d.Lookup("CAB")
	require.Len(t, ids, 1)

	w := d.Word(ids[0])
	require.NotNil(t, w)
	assert.Equal(t, []PhoneID{2, 0, 1}, w.Phones)
	assert.False(t, w.Filler)
	assert.Equal(t, w.ID, w.BaseID)
}

func TestDictionaryLoadTextSkipsCommentsAndBlanks(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	err := d.LoadText(strings.NewReader("# comment\n\n;; also a comment\nCAB K AH B\n"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, d.NWords())
}

func TestDictionaryLoadTextRejectsUnknownPhone(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	err := d.LoadText(strings.NewReader("CAB ZZ\n"), false)
	assert.Error(t, err)
}

func TestDictionaryLoadTextRejectsMissingPronunciation(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	err := d.LoadText(strings.NewReader("CAB\n"), false)
	assert.Error(t, err)
}

func TestDictionaryAlternatePronunciationsShareBase(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	err := d.LoadText(strings.NewReader("CAB K AH B\nCAB(2) K AH\n"), false)
	require.NoError(t, err)

	ids := d.Lookup("CAB")
	require.Len(t, ids, 2)

	base := d.Word(ids[0])
	alt := d.Word(ids[1])
	assert.Equal(t, base.ID, alt.BaseID)
	assert.Contains(t, base.Alternates, alt.ID)
}

func TestDictionaryLoadTextMarksFiller(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	err := d.LoadText(strings.NewReader("<sil> SIL\n"), true)
	require.NoError(t, err)

	ids := d.Lookup("<sil>")
	require.Len(t, ids, 1)
	assert.True(t, d.Word(ids[0]).Filler)
}

func TestDictionaryAddWord(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	id, err := d.AddWord("NEWWORD", []string{"K", "AH"})
	require.NoError(t, err)
	assert.Equal(t, []PhoneID{2, 0}, d.Word(id).Phones)

	_, err = d.AddWord("BADWORD", []string{"ZZ"})
	assert.Error(t, err)
}

func TestDictionaryWordOutOfRangeIsNil(t *testing.T) {
	d := NewDictionary(testPhoneSet())
	assert.Nil(t, d.Word(42))
	assert.Nil(t, d.Word(NoWord))
}
