package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUKReplacer_EvictsLargestBackwardKDistance(t *testing.T) {
	replacer := NewLRUKReplacer(4, 2)

	// 1,2,3,1,2,3,1,2 — frame 3's second-latest access is the oldest, so
	// it has the largest backward k-distance
	for _, f := range []FrameID{1, 2, 3, 1, 2, 3, 1, 2} {
		replacer.RecordAccess(f)
	}
	replacer.SetEvictable(1, true)
	replacer.SetEvictable(2, true)
	replacer.SetEvictable(3, true)
	assert.Equal(t, 3, replacer.Size())

	victim, ok := replacer.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(3), victim)
	assert.Equal(t, 2, replacer.Size())
}

func TestLRUKReplacer_InfiniteDistanceTieBreak(t *testing.T) {
	replacer := NewLRUKReplacer(4, 2)

	// frames 0, 1, 2 each accessed once: all at infinite distance; the
	// earliest access wins the tie
	replacer.RecordAccess(1)
	replacer.RecordAccess(0)
	replacer.RecordAccess(2)

	victim, ok := replacer.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(1), victim)

	victim, ok = replacer.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(0), victim)

	victim, ok = replacer.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(2), victim)

	_, ok = replacer.Evict()
	assert.False(t, ok)
}

func TestLRUKReplacer_InfinityBeatsFiniteDistance(t *testing.T) {
	replacer := NewLRUKReplacer(4, 2)

	replacer.RecordAccess(0)
	replacer.RecordAccess(0) // frame 0 has k accesses, finite distance
	replacer.RecordAccess(1) // frame 1 has one access, infinite distance

	victim, ok := replacer.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(1), victim)
}

func TestLRUKReplacer_PinnedFramesAreNotVictims(t *testing.T) {
	replacer := NewLRUKReplacer(4, 2)

	replacer.RecordAccess(0)
	replacer.RecordAccess(1)
	replacer.SetEvictable(0, false)

	victim, ok := replacer.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(1), victim)

	_, ok = replacer.Evict()
	assert.False(t, ok)

	// unpin and it becomes a candidate again
	replacer.SetEvictable(0, true)
	victim, ok = replacer.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(0), victim)
}

func TestLRUKReplacer_SetEvictableIsIdempotent(t *testing.T) {
	replacer := NewLRUKReplacer(4, 2)

	replacer.RecordAccess(0)
	replacer.SetEvictable(0, true)
	replacer.SetEvictable(0, true)
	replacer.SetEvictable(0, true)
	assert.Equal(t, 1, replacer.Size())

	replacer.SetEvictable(0, false)
	assert.Equal(t, 0, replacer.Size())
	replacer.SetEvictable(0, false)
	assert.Equal(t, 0, replacer.Size())

	// toggling an untracked frame does nothing
	replacer.SetEvictable(2, true)
	assert.Equal(t, 0, replacer.Size())
}

func TestLRUKReplacer_Remove(t *testing.T) {
	replacer := NewLRUKReplacer(4, 2)

	replacer.RecordAccess(0)
	replacer.RecordAccess(1)
	assert.Equal(t, 2, replacer.Size())

	replacer.Remove(0)
	assert.Equal(t, 1, replacer.Size())

	// removing an absent frame is a no-op
	replacer.Remove(0)
	assert.Equal(t, 1, replacer.Size())

	// a pinned frame cannot be removed
	replacer.SetEvictable(1, false)
	replacer.Remove(1)
	replacer.SetEvictable(1, true)
	victim, ok := replacer.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(1), victim)
}

func TestLRUKReplacer_OutOfRangeFramePanics(t *testing.T) {
	replacer := NewLRUKReplacer(4, 2)
	assert.Panics(t, func() {
		replacer.RecordAccess(4)
	})
	assert.Panics(t, func() {
		replacer.SetEvictable(-1, true)
	})
}

func TestLRUKReplacer_HistoryTrimsToK(t *testing.T) {
	replacer := NewLRUKReplacer(4, 2)

	// frame 0 accessed many times early, frame 1 twice late; frame 0's
	// k-th latest access is more recent than frame 1's, so frame 1 goes
	for i := 0; i < 10; i++ {
		replacer.RecordAccess(0)
	}
	replacer.RecordAccess(1)
	replacer.RecordAccess(1)
	replacer.RecordAccess(0)
	replacer.RecordAccess(0)

	victim, ok := replacer.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(1), victim)
}
