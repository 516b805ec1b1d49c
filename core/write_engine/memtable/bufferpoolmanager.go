package memtable

import (
	"container/list"
	"fmt"
	"sync"

	flushmanager "github.com/yutadb/yutadb/core/write_engine/flush_manager"
	pagemanager "github.com/yutadb/yutadb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// DiskManager is the slice of the disk layer the buffer pool consumes. The
// file-backed implementation lives in flush_manager; anything satisfying
// these four calls will do.
type DiskManager interface {
	ReadPage(pageID pagemanager.PageID, pageData []byte) error
	WritePage(pageID pagemanager.PageID, pageData []byte) error
	AllocatePage() (pagemanager.PageID, error)
	DeallocatePage(pageID pagemanager.PageID) error
}

// LogSyncer makes buffered log records durable. The pool calls Sync before
// writing back any dirty page so a write-ahead log attached by higher layers
// is never behind the data it covers. A nil LogSyncer disables the hook.
type LogSyncer interface {
	Sync() error
}

// BufferPoolManager is a bounded cache of disk pages. It owns a fixed array
// of frames, maps page ids to frames, and gates eviction on pin counts via
// the LRU replacer. One mutex covers all pool state, including disk I/O done
// on behalf of an operation.
type BufferPoolManager struct {
	diskManager DiskManager
	logSyncer   LogSyncer
	poolSize    int
	pageSize    int
	pages       []*pagemanager.Page
	pageTable   map[pagemanager.PageID]FrameID
	freeList    *list.List
	replacer    *LRUReplacer
	metrics     *PoolMetrics
	logger      *zap.Logger
	mu          sync.Mutex
}

// NewBufferPoolManager creates a pool of poolSize frames. Initially every
// frame is invalid and on the free list; the page table and replacer are
// empty. logSyncer may be nil.
func NewBufferPoolManager(poolSize, pageSize int, diskManager DiskManager, logSyncer LogSyncer, logger *zap.Logger) *BufferPoolManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	bpm := &BufferPoolManager{
		diskManager: diskManager,
		logSyncer:   logSyncer,
		poolSize:    poolSize,
		pageSize:    pageSize,
		pages:       make([]*pagemanager.Page, poolSize),
		pageTable:   make(map[pagemanager.PageID]FrameID, poolSize),
		freeList:    list.New(),
		replacer:    NewLRUReplacer(poolSize),
		logger:      logger,
	}
	for i := 0; i < poolSize; i++ {
		bpm.pages[i] = pagemanager.NewPage(pagemanager.InvalidPageID, pageSize)
		bpm.freeList.PushBack(FrameID(i))
	}
	logger.Info("buffer pool initialized",
		zap.Int("pool_size", poolSize), zap.Int("page_size", pageSize))
	return bpm
}

// AttachMetrics wires a metric instrument bundle into the pool. Safe to skip;
// a nil bundle turns every metrics hook into a no-op.
func (bpm *BufferPoolManager) AttachMetrics(m *PoolMetrics) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	bpm.metrics = m
}

// PoolSize returns the number of frames the pool owns.
func (bpm *BufferPoolManager) PoolSize() int { return bpm.poolSize }

// GetPageSize returns the page size the pool was built for.
func (bpm *BufferPoolManager) GetPageSize() int { return bpm.pageSize }

// FetchPage returns the requested page pinned. A cached page just gains a
// pin; otherwise a frame is taken from the free list or, failing that, the
// replacer, the old occupant is written back if dirty, and the page is read
// in from disk. Returns ErrBufferPoolFull when every frame is pinned.
func (bpm *BufferPoolManager) FetchPage(pageID pagemanager.PageID) (*pagemanager.Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	bpm.metrics.fetched()
	if frameID, ok := bpm.pageTable[pageID]; ok {
		page := bpm.pages[frameID]
		page.Pin()
		bpm.replacer.Pin(frameID)
		bpm.metrics.hit()
		bpm.metrics.pinAcquired()
		bpm.logger.Debug("fetch hit",
			zap.Int32("page_id", int32(pageID)), zap.Int("frame_id", int(frameID)),
			zap.Uint32("pin_count", page.GetPinCount()))
		return page, nil
	}
	bpm.metrics.missed()

	frameID, err := bpm.takeFrameLocked()
	if err != nil {
		bpm.logger.Debug("fetch failed, no frame",
			zap.Int32("page_id", int32(pageID)), zap.Error(err))
		return nil, err
	}
	page := bpm.pages[frameID]
	if err := bpm.swapOutLocked(page); err != nil {
		bpm.reclaimFrameLocked(frameID)
		return nil, err
	}

	page.Reset()
	if err := bpm.diskManager.ReadPage(pageID, page.GetData()); err != nil {
		bpm.reclaimFrameLocked(frameID)
		return nil, fmt.Errorf("reading page %d: %w", pageID, err)
	}
	page.SetPageID(pageID)
	page.SetPinCount(1)
	page.SetDirty(false)
	bpm.pageTable[pageID] = frameID
	bpm.metrics.pinAcquired()
	bpm.logger.Debug("fetch loaded",
		zap.Int32("page_id", int32(pageID)), zap.Int("frame_id", int(frameID)))
	return page, nil
}

// UnpinPage releases one pin on the page and merges the dirty hint into the
// frame's dirty flag (a set flag is never cleared). Unpinning a page that is
// not cached is benign; unpinning a page with no outstanding pins is a caller
// bug reported as ErrPageNotPinned.
func (bpm *BufferPoolManager) UnpinPage(pageID pagemanager.PageID, isDirty bool) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		bpm.logger.Debug("unpin of uncached page", zap.Int32("page_id", int32(pageID)))
		return nil
	}
	page := bpm.pages[frameID]
	if page.GetPinCount() == 0 {
		return fmt.Errorf("%w: page %d", flushmanager.ErrPageNotPinned, pageID)
	}
	page.Unpin()
	if isDirty {
		page.SetDirty(true)
	}
	if page.GetPinCount() == 0 {
		bpm.replacer.Unpin(frameID)
	}
	bpm.metrics.pinReleased()
	bpm.logger.Debug("unpinned page",
		zap.Int32("page_id", int32(pageID)), zap.Int("frame_id", int(frameID)),
		zap.Uint32("pin_count", page.GetPinCount()), zap.Bool("dirty", page.IsDirty()))
	return nil
}

// NewPage allocates a fresh disk page and returns it pinned in a zeroed
// frame. The frame is acquired before AllocatePage so pool exhaustion never
// strands a disk page.
func (bpm *BufferPoolManager) NewPage() (*pagemanager.Page, pagemanager.PageID, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, err := bpm.takeFrameLocked()
	if err != nil {
		return nil, pagemanager.InvalidPageID, err
	}
	page := bpm.pages[frameID]
	if err := bpm.swapOutLocked(page); err != nil {
		bpm.reclaimFrameLocked(frameID)
		return nil, pagemanager.InvalidPageID, err
	}

	pageID, err := bpm.diskManager.AllocatePage()
	if err != nil {
		bpm.reclaimFrameLocked(frameID)
		return nil, pagemanager.InvalidPageID, fmt.Errorf("allocating page: %w", err)
	}
	// Zeroing happens after allocation so the returned frame is clean.
	page.Reset()
	page.SetPageID(pageID)
	page.SetPinCount(1)
	page.SetDirty(false)
	bpm.pageTable[pageID] = frameID
	bpm.metrics.pinAcquired()
	bpm.logger.Debug("new page",
		zap.Int32("page_id", int32(pageID)), zap.Int("frame_id", int(frameID)))
	return page, pageID, nil
}

// DeletePage drops the page from the pool and deallocates it on disk. A page
// that is not cached deletes trivially; a pinned page is in use and reported
// as ErrPagePinned.
func (bpm *BufferPoolManager) DeletePage(pageID pagemanager.PageID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		return nil
	}
	page := bpm.pages[frameID]
	if page.GetPinCount() > 0 {
		return fmt.Errorf("%w: page %d has %d pins", flushmanager.ErrPagePinned, pageID, page.GetPinCount())
	}
	bpm.replacer.Pin(frameID)
	// The page is about to be dropped on disk too, but write-back keeps the
	// on-disk bytes current for the window before deallocation takes effect.
	if page.IsDirty() {
		if err := bpm.writeBackLocked(page); err != nil {
			bpm.replacer.Unpin(frameID)
			return err
		}
	}
	page.Reset()
	delete(bpm.pageTable, pageID)
	bpm.freeList.PushBack(frameID)
	if err := bpm.diskManager.DeallocatePage(pageID); err != nil {
		return fmt.Errorf("deallocating page %d: %w", pageID, err)
	}
	bpm.logger.Debug("deleted page",
		zap.Int32("page_id", int32(pageID)), zap.Int("frame_id", int(frameID)))
	return nil
}

// FlushPage writes the page's current bytes to disk and clears its dirty
// flag. Returns ErrPageNotFound when the page is not cached.
func (bpm *BufferPoolManager) FlushPage(pageID pagemanager.PageID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		return fmt.Errorf("%w: page %d", flushmanager.ErrPageNotFound, pageID)
	}
	return bpm.flushFrameLocked(bpm.pages[frameID])
}

// FlushAllPages flushes every frame that holds a valid page. The first error
// is reported but later frames are still flushed.
func (bpm *BufferPoolManager) FlushAllPages() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	var firstErr error
	for _, page := range bpm.pages {
		if page.GetPageID() == pagemanager.InvalidPageID {
			continue
		}
		if err := bpm.flushFrameLocked(page); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// takeFrameLocked acquires a frame for a new occupant: the free list first
// (free frames cost no write-back and no page-table churn), the replacer only
// when the pool is full. Must be called with bpm.mu held.
func (bpm *BufferPoolManager) takeFrameLocked() (FrameID, error) {
	if front := bpm.freeList.Front(); front != nil {
		bpm.freeList.Remove(front)
		return front.Value.(FrameID), nil
	}
	frameID, ok := bpm.replacer.Victim()
	if !ok {
		return 0, flushmanager.ErrBufferPoolFull
	}
	bpm.metrics.evicted()
	return frameID, nil
}

// swapOutLocked evicts the frame's current occupant: dirty pages are written
// back, and the old page-table mapping is removed.
func (bpm *BufferPoolManager) swapOutLocked(page *pagemanager.Page) error {
	if page.GetPageID() == pagemanager.InvalidPageID {
		return nil
	}
	if page.IsDirty() {
		if err := bpm.writeBackLocked(page); err != nil {
			return err
		}
	}
	delete(bpm.pageTable, page.GetPageID())
	return nil
}

// reclaimFrameLocked re-establishes the frame partition after a failed
// operation by resetting the frame and returning it to the free list.
func (bpm *BufferPoolManager) reclaimFrameLocked(frameID FrameID) {
	page := bpm.pages[frameID]
	if page.GetPageID() != pagemanager.InvalidPageID {
		delete(bpm.pageTable, page.GetPageID())
	}
	page.Reset()
	bpm.freeList.PushBack(frameID)
}

// writeBackLocked writes the page's bytes to disk, syncing the attached log
// first so the WAL is never behind the data it covers. The data file itself
// is not synced.
func (bpm *BufferPoolManager) writeBackLocked(page *pagemanager.Page) error {
	if bpm.logSyncer != nil {
		if err := bpm.logSyncer.Sync(); err != nil {
			return fmt.Errorf("syncing log before write-back of page %d: %w", page.GetPageID(), err)
		}
	}
	if err := bpm.diskManager.WritePage(page.GetPageID(), page.GetData()); err != nil {
		return fmt.Errorf("writing back page %d: %w", page.GetPageID(), err)
	}
	page.SetDirty(false)
	bpm.metrics.wroteBack()
	return nil
}

// flushFrameLocked is the shared non-locking flush helper: FlushPage and
// FlushAllPages both land here because the pool mutex is not re-entrant.
func (bpm *BufferPoolManager) flushFrameLocked(page *pagemanager.Page) error {
	if err := bpm.writeBackLocked(page); err != nil {
		return err
	}
	bpm.metrics.flushed()
	bpm.logger.Debug("flushed page", zap.Int32("page_id", int32(page.GetPageID())))
	return nil
}
