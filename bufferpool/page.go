package bufferpool

import (
	"encoding/binary"
	"sync"
)

// PAGE_SIZE is the fixed size of every page handled by the pool.
const PAGE_SIZE = 4096

// INVALID_PAGE marks a page id that does not refer to any page.
const INVALID_PAGE = PageID(-1)

// FrameID is the type for frame id
type FrameID int32

// PageID is the type for page id
type PageID int32

// RID identifies a record as a (page, slot) pair. It is the fixed-width
// value type stored in index leaves.
type RID struct {
	PageID  PageID
	SlotNum int32
}

const PAGE_TYPE_FREE = 0
const PAGE_TYPE_BTREE_INTERNAL = 10
const PAGE_TYPE_BTREE_LEAF = 11

// PAGE
// page size 4096 bytes
// byte aligned, big endian

// |====================================================|
// | offset | length        |                           |
// |----------------------------------------------------|
// | header                                             |
// |====================================================|
// | 0      | 4             |  pageType (int32)         |
// | 4      | 4             |  lsn (int32)              |
// | 8      | 4             |  entryCount (int32)       |
// | 12     | 4             |  maxEntries (int32)       |
// | 16     | 4             |  parentPointer (int32)    |
// | 20     | 4             |  pageNumber (int32)       |
// | 24     | 4             |  nextPointer (int32)      | // leaf pages only
// |====================================================|
// | <entries>                                          |
// |----------------------------------------------------|
// | internal entries start at 24, 12 bytes each:       |
// |   key (int64) | childPointer (int32)               |
// | leaf entries start at 28, 16 bytes each:           |
// |   key (int64) | ridPageNumber (int32)              |
// |              | ridSlotNum (int32)                  |
// |====================================================|

const PAGE_TYPE_OFFSET = 0           // offset 0, length 4, end 4
const PAGE_LSN_OFFSET = 4            // offset 4, length 4, end 8
const PAGE_ENTRY_COUNT_OFFSET = 8    // offset 8, length 4, end 12
const PAGE_MAX_ENTRIES_OFFSET = 12   // offset 12, length 4, end 16
const PAGE_PARENT_POINTER_OFFSET = 16 // offset 16, length 4, end 20
const PAGE_NUMBER_OFFSET = 20        // offset 20, length 4, end 24
const PAGE_NEXT_POINTER_OFFSET = 24  // offset 24, length 4, end 28

const PAGE_INTERNAL_ENTRIES_OFFSET = 24
const PAGE_LEAF_ENTRIES_OFFSET = 28

const INTERNAL_ENTRY_LENGTH = 12
const LEAF_ENTRY_LENGTH = 16

type PageLatchState int

const (
	None PageLatchState = iota
	Read
	Write
)

// Page represents various types of data page on disk and in memory
type Page struct {
	mu         sync.RWMutex
	latchState PageLatchState
	id         PageID
	pinCount   int
	isDirty    bool
	data       [PAGE_SIZE]byte
}

func NewPage(pageID PageID, pinCount int) *Page {
	return &Page{
		id:         pageID,
		latchState: None,
		pinCount:   pinCount,
		isDirty:    false,
		data:       [PAGE_SIZE]byte{},
	}
}

func (p *Page) TakeReadLatch() {
	p.mu.RLock()
	p.latchState = Read
}

func (p *Page) ReleaseReadLatch() {
	p.latchState = None
	p.mu.RUnlock()
}

func (p *Page) TakeWriteLatch() {
	p.mu.Lock()
	p.latchState = Write
}

func (p *Page) ReleaseWriteLatch() {
	p.latchState = None
	p.mu.Unlock()
}

func (p *Page) ReleaseAnyLatch() {
	if p.latchState == Read {
		p.ReleaseReadLatch()
	} else if p.latchState == Write {
		p.ReleaseWriteLatch()
	}
}

func (p *Page) LatchState() PageLatchState {
	return p.latchState
}

// routines to read and write page header information

func (p *Page) WritePageType(pageType int32) {
	binary.BigEndian.PutUint32(p.data[PAGE_TYPE_OFFSET:], uint32(pageType))
	p.isDirty = true
}

func (p *Page) ReadPageType() int32 {
	return int32(binary.BigEndian.Uint32(p.data[PAGE_TYPE_OFFSET:]))
}

func (p *Page) WriteLSN(lsn int32) {
	binary.BigEndian.PutUint32(p.data[PAGE_LSN_OFFSET:], uint32(lsn))
	p.isDirty = true
}

func (p *Page) ReadLSN() int32 {
	return int32(binary.BigEndian.Uint32(p.data[PAGE_LSN_OFFSET:]))
}

func (p *Page) WriteEntryCount(count int32) {
	binary.BigEndian.PutUint32(p.data[PAGE_ENTRY_COUNT_OFFSET:], uint32(count))
	p.isDirty = true
}

func (p *Page) ReadEntryCount() int32 {
	return int32(binary.BigEndian.Uint32(p.data[PAGE_ENTRY_COUNT_OFFSET:]))
}

func (p *Page) WriteMaxEntries(max int32) {
	binary.BigEndian.PutUint32(p.data[PAGE_MAX_ENTRIES_OFFSET:], uint32(max))
	p.isDirty = true
}

func (p *Page) ReadMaxEntries() int32 {
	return int32(binary.BigEndian.Uint32(p.data[PAGE_MAX_ENTRIES_OFFSET:]))
}

func (p *Page) WriteParentPointer(parent PageID) {
	binary.BigEndian.PutUint32(p.data[PAGE_PARENT_POINTER_OFFSET:], uint32(parent))
	p.isDirty = true
}

func (p *Page) ReadParentPointer() PageID {
	return PageID(binary.BigEndian.Uint32(p.data[PAGE_PARENT_POINTER_OFFSET:]))
}

func (p *Page) WritePageNumber(pageNumber PageID) {
	p.id = pageNumber
	binary.BigEndian.PutUint32(p.data[PAGE_NUMBER_OFFSET:], uint32(pageNumber))
	p.isDirty = true
}

func (p *Page) ReadPageNumber() PageID {
	return PageID(binary.BigEndian.Uint32(p.data[PAGE_NUMBER_OFFSET:]))
}

func (p *Page) WriteNextPointer(next PageID) {
	binary.BigEndian.PutUint32(p.data[PAGE_NEXT_POINTER_OFFSET:], uint32(next))
	p.isDirty = true
}

func (p *Page) ReadNextPointer() PageID {
	return PageID(binary.BigEndian.Uint32(p.data[PAGE_NEXT_POINTER_OFFSET:]))
}

// routines to read and write fixed-width index entries

func leafEntryOffset(slot int32) int32 {
	return PAGE_LEAF_ENTRIES_OFFSET + LEAF_ENTRY_LENGTH*slot
}

func internalEntryOffset(slot int32) int32 {
	return PAGE_INTERNAL_ENTRIES_OFFSET + INTERNAL_ENTRY_LENGTH*slot
}

func (p *Page) ReadLeafEntry(slot int32) (int64, RID) {
	offset := leafEntryOffset(slot)
	key := int64(binary.BigEndian.Uint64(p.data[offset:]))
	rid := RID{
		PageID:  PageID(binary.BigEndian.Uint32(p.data[offset+8:])),
		SlotNum: int32(binary.BigEndian.Uint32(p.data[offset+12:])),
	}
	return key, rid
}

func (p *Page) WriteLeafEntry(slot int32, key int64, rid RID) {
	offset := leafEntryOffset(slot)
	binary.BigEndian.PutUint64(p.data[offset:], uint64(key))
	binary.BigEndian.PutUint32(p.data[offset+8:], uint32(rid.PageID))
	binary.BigEndian.PutUint32(p.data[offset+12:], uint32(rid.SlotNum))
	p.isDirty = true
}

func (p *Page) ReadInternalEntry(slot int32) (int64, PageID) {
	offset := internalEntryOffset(slot)
	key := int64(binary.BigEndian.Uint64(p.data[offset:]))
	child := PageID(binary.BigEndian.Uint32(p.data[offset+8:]))
	return key, child
}

func (p *Page) WriteInternalEntry(slot int32, key int64, child PageID) {
	offset := internalEntryOffset(slot)
	binary.BigEndian.PutUint64(p.data[offset:], uint64(key))
	binary.BigEndian.PutUint32(p.data[offset+8:], uint32(child))
	p.isDirty = true
}

// MoveLeafEntries shifts count leaf entries from srcSlot to dstSlot within
// the page. Ranges may overlap.
func (p *Page) MoveLeafEntries(dstSlot, srcSlot, count int32) {
	if count <= 0 {
		return
	}
	dst := leafEntryOffset(dstSlot)
	src := leafEntryOffset(srcSlot)
	copy(p.data[dst:dst+count*LEAF_ENTRY_LENGTH], p.data[src:src+count*LEAF_ENTRY_LENGTH])
	p.isDirty = true
}

// MoveInternalEntries shifts count internal entries from srcSlot to dstSlot
// within the page. Ranges may overlap.
func (p *Page) MoveInternalEntries(dstSlot, srcSlot, count int32) {
	if count <= 0 {
		return
	}
	dst := internalEntryOffset(dstSlot)
	src := internalEntryOffset(srcSlot)
	copy(p.data[dst:dst+count*INTERNAL_ENTRY_LENGTH], p.data[src:src+count*INTERNAL_ENTRY_LENGTH])
	p.isDirty = true
}

// CopyLeafEntries copies count leaf entries starting at srcSlot into dst
// starting at dstSlot.
func (p *Page) CopyLeafEntries(dst *Page, dstSlot, srcSlot, count int32) {
	if count <= 0 {
		return
	}
	d := leafEntryOffset(dstSlot)
	s := leafEntryOffset(srcSlot)
	copy(dst.data[d:d+count*LEAF_ENTRY_LENGTH], p.data[s:s+count*LEAF_ENTRY_LENGTH])
	dst.isDirty = true
}

// CopyInternalEntries copies count internal entries starting at srcSlot into
// dst starting at dstSlot.
func (p *Page) CopyInternalEntries(dst *Page, dstSlot, srcSlot, count int32) {
	if count <= 0 {
		return
	}
	d := internalEntryOffset(dstSlot)
	s := internalEntryOffset(srcSlot)
	copy(dst.data[d:d+count*INTERNAL_ENTRY_LENGTH], p.data[s:s+count*INTERNAL_ENTRY_LENGTH])
	dst.isDirty = true
}

// Reset clears the frame for reuse. Callers must hold no latch on the page
// and the page must be unpinned.
func (p *Page) Reset() {
	p.id = INVALID_PAGE
	p.pinCount = 0
	p.isDirty = false
	p.data = [PAGE_SIZE]byte{}
}

func (p *Page) ID() PageID {
	return p.id
}

func (p *Page) PinCount() int {
	return p.pinCount
}

func (p *Page) Pin() {
	p.pinCount++
}

func (p *Page) DecPinCount() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}

func (p *Page) IsDirty() bool {
	return p.isDirty
}

func (p *Page) SetDirty(dirty bool) {
	p.isDirty = dirty
}

// Data exposes the raw page buffer for disk managers.
func (p *Page) Data() *[PAGE_SIZE]byte {
	return &p.data
}
