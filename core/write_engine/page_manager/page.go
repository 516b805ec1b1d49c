package pagemanager

import (
	"sync"
)

// --- Page Management ---

const (
	// DefaultPageSize is the size in bytes of a single page frame.
	DefaultPageSize = 4096

	// InvalidPageID marks a frame that holds no logical page.
	InvalidPageID PageID = -1
)

// PageID is a unique identifier for a page on disk. IDs are assigned
// monotonically by the disk manager and never reused within a run.
type PageID int32

// LSN is the sequence number of the last log record that modified a page.
type LSN int32

const InvalidLSN LSN = -1

// RID locates a record in a heap page: the page holding it and the slot
// number within that page.
type RID struct {
	PageID  PageID
	SlotNum int32
}

// Page represents an in-memory copy of a disk page. The buffer pool owns the
// frame for its whole lifetime; callers only borrow it while pinned.
type Page struct {
	id       PageID
	data     []byte
	pinCount uint32
	isDirty  bool
	lsn      LSN

	// latch protects the in-memory contents of this specific page. It is a
	// lightweight lock for physical concurrency control, driven by the
	// layers above the buffer pool.
	latch sync.RWMutex
}

// NewPage creates an empty frame of the given size.
func NewPage(id PageID, size int) *Page {
	return &Page{
		id:       id,
		data:     make([]byte, size),
		pinCount: 0,
		isDirty:  false,
		lsn:      InvalidLSN,
	}
}

// Reset clears the frame's metadata and zeroes its buffer so stale bytes
// never leak into the next page loaded into this frame.
func (p *Page) Reset() {
	p.id = InvalidPageID
	p.pinCount = 0
	p.isDirty = false
	p.lsn = InvalidLSN
	for i := range p.data {
		p.data[i] = 0
	}
}

func (p *Page) GetData() []byte             { return p.data }
func (p *Page) SetData(newData []byte) bool { copy(p.data, newData); return true }
func (p *Page) GetPageID() PageID           { return p.id }
func (p *Page) SetPageID(id PageID)         { p.id = id }
func (p *Page) IsDirty() bool               { return p.isDirty }
func (p *Page) SetDirty(dirty bool)         { p.isDirty = dirty }
func (p *Page) Pin()                        { p.pinCount++ }

func (p *Page) Unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}

func (p *Page) GetPinCount() uint32         { return p.pinCount }
func (p *Page) SetPinCount(pinCount uint32) { p.pinCount = pinCount }
func (p *Page) GetLSN() LSN                 { return p.lsn }
func (p *Page) SetLSN(lsn LSN)              { p.lsn = lsn }

// RLock acquires a read (shared) latch on the page.
func (p *Page) RLock() { p.latch.RLock() }

// RUnlock releases a read (shared) latch on the page.
func (p *Page) RUnlock() { p.latch.RUnlock() }

// Lock acquires a write (exclusive) latch on the page.
func (p *Page) Lock() { p.latch.Lock() }

// TryLock attempts to acquire the write latch without blocking.
func (p *Page) TryLock() bool { return p.latch.TryLock() }

// Unlock releases a write (exclusive) latch on the page.
func (p *Page) Unlock() { p.latch.Unlock() }
