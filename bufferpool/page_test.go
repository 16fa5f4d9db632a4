package bufferpool

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The header layout is part of the on-disk format: fields live at fixed
// offsets, big endian.
func TestPage_HeaderLayoutIsByteExact(t *testing.T) {
	page := NewPage(INVALID_PAGE, 0)
	page.WritePageType(PAGE_TYPE_BTREE_LEAF)
	page.WriteLSN(9)
	page.WriteEntryCount(2)
	page.WriteMaxEntries(64)
	page.WriteParentPointer(PageID(17))
	page.WritePageNumber(PageID(23))
	page.WriteNextPointer(PageID(31))

	buf := page.Data()
	assert.Equal(t, uint32(PAGE_TYPE_BTREE_LEAF), binary.BigEndian.Uint32(buf[0:]))
	assert.Equal(t, uint32(9), binary.BigEndian.Uint32(buf[4:]))
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(buf[8:]))
	assert.Equal(t, uint32(64), binary.BigEndian.Uint32(buf[12:]))
	assert.Equal(t, uint32(17), binary.BigEndian.Uint32(buf[16:]))
	assert.Equal(t, uint32(23), binary.BigEndian.Uint32(buf[20:]))
	assert.Equal(t, uint32(31), binary.BigEndian.Uint32(buf[24:]))

	assert.Equal(t, PageID(23), page.ID(), "WritePageNumber keeps the in-memory id in sync")
	assert.True(t, page.IsDirty())
}

func TestPage_LeafEntriesAreFixedWidth(t *testing.T) {
	page := NewPage(PageID(1), 0)

	page.WriteLeafEntry(0, -5, RID{PageID: 2, SlotNum: 3})
	page.WriteLeafEntry(1, 1<<40, RID{PageID: 4, SlotNum: 5})

	key, rid := page.ReadLeafEntry(0)
	assert.Equal(t, int64(-5), key)
	assert.Equal(t, RID{PageID: 2, SlotNum: 3}, rid)

	key, rid = page.ReadLeafEntry(1)
	assert.Equal(t, int64(1<<40), key)
	assert.Equal(t, RID{PageID: 4, SlotNum: 5}, rid)

	// entry 1 begins exactly one entry length after entry 0
	buf := page.Data()
	assert.Equal(t, uint64(1<<40), binary.BigEndian.Uint64(buf[PAGE_LEAF_ENTRIES_OFFSET+LEAF_ENTRY_LENGTH:]))
}

func TestPage_MoveEntriesHandlesOverlap(t *testing.T) {
	page := NewPage(PageID(1), 0)
	for i := int32(0); i < 5; i++ {
		page.WriteLeafEntry(i, int64(i), RID{PageID: PageID(i)})
	}

	// shift entries 1..4 right by one, as an insert at slot 1 would
	page.MoveLeafEntries(2, 1, 4)
	page.WriteLeafEntry(1, 100, RID{})

	want := []int64{0, 100, 1, 2, 3, 4}
	for i, w := range want {
		key, _ := page.ReadLeafEntry(int32(i))
		assert.Equal(t, w, key, "slot %d", i)
	}
}

func TestPage_LatchStateTracksLatches(t *testing.T) {
	page := NewPage(PageID(1), 0)
	require.Equal(t, None, page.LatchState())

	page.TakeReadLatch()
	assert.Equal(t, Read, page.LatchState())
	page.ReleaseReadLatch()

	page.TakeWriteLatch()
	assert.Equal(t, Write, page.LatchState())
	page.ReleaseAnyLatch()
	assert.Equal(t, None, page.LatchState())
}
