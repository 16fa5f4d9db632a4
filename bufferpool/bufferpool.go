package bufferpool

import (
	"sync"

	"github.com/featurebasedb/stratum/errors"
	"github.com/featurebasedb/stratum/extendiblehash"
	"github.com/featurebasedb/stratum/logger"
	"github.com/featurebasedb/stratum/stats"
)

// ErrPageAllocationFailed is returned when no frame can be freed for a new
// or fetched page. Callers may retry after unpinning.
const ErrPageAllocationFailed errors.Code = "PageAllocationFailed"

// DEFAULT_REPLACER_K is the default history depth for the LRU-K replacer.
const DEFAULT_REPLACER_K = 2

// DEFAULT_BUCKET_SIZE is the default bucket size for the page table.
const DEFAULT_BUCKET_SIZE = 4

// BufferPool caches disk pages in a fixed set of frames. Frames are handed
// out from the free list first, then by evicting the replacer's victim;
// dirty pages are written back before their frame is reused.
type BufferPool struct {
	mu sync.Mutex

	// the underlying storage
	diskManager DiskManager
	// the actual pages in the buffer pool
	pages []*Page
	// the replacer that will elect replacements when buffer pool is full
	replacer *LRUKReplacer
	// the list of free frames
	freeList []FrameID
	// the map of page ids to frame ids
	// frame ids are the offset into pages
	// if you ask the pool for page 673, this will know at
	// what offset in pages page 673 will exist
	pageTable *extendiblehash.ExtendibleHashTable[PageID, FrameID]

	// monotonically increasing page id allocator
	nextPageID PageID

	logger logger.Logger
	stats  stats.StatsClient
}

// NewBufferPool returns a buffer pool of maxSize frames over the given disk
// manager, using an LRU-K replacer with history depth replacerK.
func NewBufferPool(maxSize int, replacerK int, diskManager DiskManager) *BufferPool {
	freeList := make([]FrameID, 0, maxSize)
	pages := make([]*Page, maxSize)
	for i := 0; i < maxSize; i++ {
		frameNumber := FrameID(i)
		pages[i] = NewPage(INVALID_PAGE, 0)
		freeList = append(freeList, frameNumber)
	}
	return &BufferPool{
		diskManager: diskManager,
		pages:       pages,
		replacer:    NewLRUKReplacer(maxSize, replacerK),
		freeList:    freeList,
		pageTable:   extendiblehash.NewExtendibleHashTable[PageID, FrameID](DEFAULT_BUCKET_SIZE, extendiblehash.IntHasher[PageID]()),
		logger:      logger.NopLogger,
		stats:       stats.NopStatsClient,
	}
}

// SetLogger sets the logger used by the pool.
func (b *BufferPool) SetLogger(l logger.Logger) {
	b.logger = l
}

// SetStatsClient sets the stats client used by the pool.
func (b *BufferPool) SetStatsClient(s stats.StatsClient) {
	b.stats = s
}

// NewPage allocates a fresh page id, claims a frame for it and returns the
// page pinned with count 1.
func (b *BufferPool) NewPage() (*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, err := b.getFrameID()
	if err != nil {
		return nil, err
	}

	pageID := b.allocatePageID()
	page := b.pages[frameID]
	page.Reset()
	page.id = pageID
	page.pinCount = 1

	b.pageTable.Insert(pageID, frameID)
	b.replacer.RecordAccess(frameID)
	b.replacer.SetEvictable(frameID, false)

	return page, nil
}

// FetchPage fetches the requested page from the buffer pool, reading it from
// disk on a miss. The returned page is pinned.
func (b *BufferPool) FetchPage(pageID PageID) (*Page, error) {
	if pageID == INVALID_PAGE {
		return nil, errors.Errorf("fetch of invalid page")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	// if it is in buffer pool already then just return it
	if frameID, ok := b.pageTable.Find(pageID); ok {
		page := b.pages[frameID]
		page.pinCount++
		b.replacer.RecordAccess(frameID)
		b.replacer.SetEvictable(frameID, false)
		b.stats.Count(stats.MetricPageHits, 1, 1.0)
		return page, nil
	}

	// not in the buffer pool so try the free list or
	// the replacer will vote a page off the island
	frameID, err := b.getFrameID()
	if err != nil {
		return nil, err
	}

	// if we got to here, sorry, have to do an I/O
	page := b.pages[frameID]
	page.Reset()
	if err := b.diskManager.ReadPage(pageID, page); err != nil {
		// the claimed frame goes back on the free list for the next caller
		b.freeList = append(b.freeList, frameID)
		return nil, err
	}
	page.id = pageID
	page.pinCount = 1
	page.isDirty = false

	b.pageTable.Insert(pageID, frameID)
	b.replacer.RecordAccess(frameID)
	b.replacer.SetEvictable(frameID, false)
	b.stats.Count(stats.MetricPageMisses, 1, 1.0)

	return page, nil
}

// UnpinPage unpins the target page from the buffer pool, ORing in the dirty
// bit. When the pin count reaches zero the frame becomes evictable. Returns
// false if the page is unknown or already unpinned.
func (b *BufferPool) UnpinPage(pageID PageID, isDirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable.Find(pageID)
	if !ok {
		return false
	}
	page := b.pages[frameID]
	if page.pinCount <= 0 {
		return false
	}
	page.pinCount--
	if page.pinCount == 0 {
		b.replacer.SetEvictable(frameID, true)
	}
	page.isDirty = page.isDirty || isDirty
	return true
}

// FlushPage flushes the target page to disk and clears its dirty bit.
func (b *BufferPool) FlushPage(pageID PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushPage(pageID)
}

func (b *BufferPool) flushPage(pageID PageID) bool {
	frameID, ok := b.pageTable.Find(pageID)
	if !ok {
		return false
	}
	page := b.pages[frameID]
	if err := b.diskManager.WritePage(page); err != nil {
		b.logger.Errorf("flush of page %d failed: %v", pageID, err)
		return false
	}
	page.isDirty = false
	b.stats.Count(stats.MetricPageWritebacks, 1, 1.0)
	return true
}

// FlushAllPages flushes all the pages in the buffer pool to disk. Frames
// holding no page are skipped.
func (b *BufferPool) FlushAllPages() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, page := range b.pages {
		if page.id == INVALID_PAGE {
			continue
		}
		b.flushPage(page.id)
	}
}

// DeletePage deletes a page from the buffer pool and returns its frame to
// the free list. Deleting an uncached page is idempotent success; deleting a
// pinned page fails.
func (b *BufferPool) DeletePage(pageID PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable.Find(pageID)
	if !ok {
		return true
	}
	page := b.pages[frameID]
	if page.pinCount > 0 {
		return false
	}
	b.pageTable.Remove(pageID)
	b.replacer.Remove(frameID)
	page.Reset()
	b.freeList = append(b.freeList, frameID)
	return true
}

// OnDiskSize exposes the on disk size of the backing store behind this
// buffer pool.
func (b *BufferPool) OnDiskSize() int64 {
	return b.diskManager.FileSize()
}

// Close closes the buffer pool
func (b *BufferPool) Close() {
	b.diskManager.Close()
}

// getFrameID claims a frame: free list first, otherwise the replacer's
// victim, writing the old page out if dirty. Must be called with b.mu held.
func (b *BufferPool) getFrameID() (FrameID, error) {
	if len(b.freeList) > 0 {
		frameID, newFreeList := b.freeList[0], b.freeList[1:]
		b.freeList = newFreeList
		return frameID, nil
	}

	frameID, ok := b.replacer.Evict()
	if !ok {
		return FrameID(-1), errors.New(ErrPageAllocationFailed, "no evictable frames in buffer pool")
	}
	page := b.pages[frameID]
	if page.id != INVALID_PAGE {
		if page.isDirty {
			if err := b.diskManager.WritePage(page); err != nil {
				// put the frame back so the page is not lost
				b.replacer.RecordAccess(frameID)
				b.pageTable.Insert(page.id, frameID)
				return FrameID(-1), errors.Wrapf(err, "writing victim page %d", page.id)
			}
			b.stats.Count(stats.MetricPageWritebacks, 1, 1.0)
		}
		b.logger.Debugf("evicting page %d from frame %d", page.id, frameID)
		b.pageTable.Remove(page.id)
		b.stats.Count(stats.MetricPageEvictions, 1, 1.0)
	}
	return frameID, nil
}

// allocatePageID hands out monotonically increasing page ids. Must be called
// with b.mu held.
func (b *BufferPool) allocatePageID() PageID {
	id := b.nextPageID
	b.nextPageID++
	return id
}
