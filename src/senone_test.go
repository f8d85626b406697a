package sphinx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActiveSetSetAndIsSet(t *testing.T) {
	a := NewActiveSet(40)
	a.Set(5)
	a.Set(33)

	assert.True(t, a.IsSet(5))
	assert.True(t, a.IsSet(33))
	assert.False(t, a.IsSet(6))
}

func TestActiveSetSetOutOfRangeIsIgnored(t *testing.T) {
	a := NewActiveSet(4)
	a.Set(100)
	assert.False(t, a.IsSet(100))
	assert.Empty(t, a.List())
}

func TestActiveSetReset(t *testing.T) {
	a := NewActiveSet(10)
	a.Set(1)
	a.Set(2)
	a.Reset()
	assert.Empty(t, a.List())
}

func TestActiveSetUnion(t *testing.T) {
	a := NewActiveSet(40)
	b := NewActiveSet(40)
	a.Set(1)
	b.Set(35)

	a.Union(b)
	assert.True(t, a.IsSet(1))
	assert.True(t, a.IsSet(35))
}

func TestActiveSetListIsSortedAcrossWords(t *testing.T) {
	a := NewActiveSet(70)
	a.Set(40)
	a.Set(3)
	a.Set(65)
	a.Set(0)

	assert.Equal(t, []SenoneID{0, 3, 40, 65}, a.List())
}
