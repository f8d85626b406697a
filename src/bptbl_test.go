package sphinx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBPTableEnterAssignsSequentialIndices(t *testing.T) {
	bp := NewBPTable()
	i0 := bp.Enter(BPEntry{Word: 1, Frame: 0, Prev: NoBP})
	i1 := bp.Enter(BPEntry{Word: 2, Frame: 0, Prev: i0})
	assert.Equal(t, BPIndex(0), i0)
	assert.Equal(t, BPIndex(1), i1)
	assert.Equal(t, 2, bp.NEntries())
}

func TestBPTableEntryOfNoBPIsNil(t *testing.T) {
	bp := NewBPTable()
	assert.Nil(t, bp.Entry(NoBP))
}

func TestBPTableFrameEntriesGroupsByFrame(t *testing.T) {
	bp := NewBPTable()
	a := bp.Enter(BPEntry{Word: 1, Frame: 0, Prev: NoBP})
	b := bp.Enter(BPEntry{Word: 2, Frame: 0, Prev: a})
	bp.Enter(BPEntry{Word: 3, Frame: 1, Prev: b})

	entries := bp.FrameEntries(0)
	require.Len(t, entries, 2)
	assert.Equal(t, a, entries[0])
	assert.Equal(t, b, entries[1])

	assert.Len(t, bp.FrameEntries(1), 1)
	assert.Nil(t, bp.FrameEntries(2))
	assert.Nil(t, bp.FrameEntries(-1))
}

func TestBPTableBacktraceOrdersOldestFirst(t *testing.T) {
	bp := NewBPTable()
	i0 := bp.Enter(BPEntry{Word: 10, Frame: 0, Prev: NoBP})
	i1 := bp.Enter(BPEntry{Word: 20, Frame: 5, Prev: i0})
	i2 := bp.Enter(BPEntry{Word: 30, Frame: 9, Prev: i1})

	words := bp.Backtrace(i2)
	assert.Equal(t, []WordID{10, 20, 30}, words)
}

func TestBPTableBacktraceEmptyAtNoBP(t *testing.T) {
	bp := NewBPTable()
	assert.Empty(t, bp.Backtrace(NoBP))
}

func TestBPTableResetClearsEntries(t *testing.T) {
	bp := NewBPTable()
	bp.Enter(BPEntry{Word: 1, Frame: 0, Prev: NoBP})
	bp.Reset()
	assert.Equal(t, 0, bp.NEntries())
	assert.Nil(t, bp.FrameEntries(0))
}
