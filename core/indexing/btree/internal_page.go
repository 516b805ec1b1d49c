package btree

import (
	"encoding/binary"
	"fmt"

	pagemanager "github.com/yutadb/yutadb/core/write_engine/page_manager"
)

// PageFetcher is the slice of the buffer pool that internal-page operations
// consume to adopt moved children. Each call is a fresh, non-nested pool
// call: the pool's mutex is never held across an adoption.
type PageFetcher interface {
	FetchPage(pageID pagemanager.PageID) (*pagemanager.Page, error)
	UnpinPage(pageID pagemanager.PageID, isDirty bool) error
}

// InternalPage interprets a frame's bytes as a sorted separator array. Slot
// 0's key is a sentinel: only slots [1..size) carry real separator keys, and
// slot i's child covers keys k with key(i) <= k < key(i+1).
type InternalPage struct {
	BTreePage
	keySize int
}

// InternalPageFrom reinterprets a pinned frame as an internal page with the
// given key width.
func InternalPageFrom(page *pagemanager.Page, keySize int) *InternalPage {
	return &InternalPage{BTreePage: BTreePage{data: page.GetData()}, keySize: keySize}
}

// Init prepares a freshly allocated page as an empty internal node.
func (ip *InternalPage) Init(pageID, parentID pagemanager.PageID, maxSize int) {
	ip.SetPageType(PageTypeInternal)
	ip.SetSize(0)
	ip.SetMaxSize(maxSize)
	ip.SetParentPageID(parentID)
	ip.SetPageID(pageID)
}

func (ip *InternalPage) slotSize() int { return ip.keySize + childIDSize }

func (ip *InternalPage) slotOffset(index int) int {
	return internalSlotsOffset + index*ip.slotSize()
}

// KeyAt returns the separator key at index. Slot 0's key is a sentinel and
// carries no meaning. The slice aliases the page buffer.
func (ip *InternalPage) KeyAt(index int) []byte {
	off := ip.slotOffset(index)
	return ip.data[off : off+ip.keySize]
}

// SetKeyAt overwrites the separator key at index.
func (ip *InternalPage) SetKeyAt(index int, key []byte) {
	off := ip.slotOffset(index)
	copy(ip.data[off:off+ip.keySize], key)
}

// ValueAt returns the child page id at index.
func (ip *InternalPage) ValueAt(index int) pagemanager.PageID {
	off := ip.slotOffset(index) + ip.keySize
	return pagemanager.PageID(int32(binary.LittleEndian.Uint32(ip.data[off : off+4])))
}

// SetValueAt overwrites the child page id at index.
func (ip *InternalPage) SetValueAt(index int, value pagemanager.PageID) {
	off := ip.slotOffset(index) + ip.keySize
	binary.LittleEndian.PutUint32(ip.data[off:off+4], uint32(value))
}

// ValueIndex returns the slot whose child equals value, or -1.
func (ip *InternalPage) ValueIndex(value pagemanager.PageID) int {
	for i := 0; i < ip.Size(); i++ {
		if ip.ValueAt(i) == value {
			return i
		}
	}
	return -1
}

// Lookup returns the child that covers key: the child at the greatest index
// i >= 1 whose separator is <= key, or the leftmost child when key sorts
// before every separator.
func (ip *InternalPage) Lookup(key []byte, comparator KeyComparator) pagemanager.PageID {
	if ip.Size() == 1 || comparator(key, ip.KeyAt(1)) < 0 {
		return ip.ValueAt(0)
	}
	left, right := 1, ip.Size()-1
	for left < right {
		mid := left + (right-left+1)/2
		if comparator(ip.KeyAt(mid), key) <= 0 {
			left = mid
		} else {
			right = mid - 1
		}
	}
	return ip.ValueAt(left)
}

// PopulateNewRoot initializes a just-created root with exactly two children
// separated by newKey. Slot 0's key stays a sentinel.
func (ip *InternalPage) PopulateNewRoot(oldChild pagemanager.PageID, newKey []byte, newChild pagemanager.PageID) {
	ip.SetSize(2)
	ip.SetValueAt(0, oldChild)
	ip.SetKeyAt(1, newKey)
	ip.SetValueAt(1, newChild)
}

// InsertNodeAfter inserts (newKey, newChild) immediately after the slot
// holding oldChild and returns the new size.
func (ip *InternalPage) InsertNodeAfter(oldChild pagemanager.PageID, newKey []byte, newChild pagemanager.PageID) int {
	index := ip.ValueIndex(oldChild)
	ip.insertAt(index+1, newKey, newChild)
	return ip.Size()
}

// Remove deletes the slot at index, compacting the array.
func (ip *InternalPage) Remove(index int) {
	start := ip.slotOffset(index)
	end := ip.slotOffset(ip.Size())
	copy(ip.data[start:], ip.data[start+ip.slotSize():end])
	ip.IncreaseSize(-1)
}

// RemoveAndReturnOnlyChild collapses a single-child root: it removes the
// last remaining slot and returns its child. Any other size returns
// InvalidPageID untouched.
func (ip *InternalPage) RemoveAndReturnOnlyChild() pagemanager.PageID {
	if ip.Size() != 1 {
		return pagemanager.InvalidPageID
	}
	onlyChild := ip.ValueAt(0)
	ip.Remove(0)
	return onlyChild
}

func (ip *InternalPage) insertAt(index int, key []byte, value pagemanager.PageID) {
	start := ip.slotOffset(index)
	end := ip.slotOffset(ip.Size())
	copy(ip.data[start+ip.slotSize():end+ip.slotSize()], ip.data[start:end])
	ip.SetKeyAt(index, key)
	off := start + ip.keySize
	binary.LittleEndian.PutUint32(ip.data[off:off+4], uint32(value))
	ip.IncreaseSize(1)
}

// MoveHalfTo moves this page's trailing half to recipient. Moved children
// are adopted: their parent pointer is rewritten through the pool.
func (ip *InternalPage) MoveHalfTo(recipient *InternalPage, pool PageFetcher) error {
	half := ip.Size() / 2
	start := ip.Size() - half
	for i := start; i < ip.Size(); i++ {
		if err := recipient.CopyLastFrom(ip.KeyAt(i), ip.ValueAt(i), pool); err != nil {
			return err
		}
	}
	ip.IncreaseSize(-half)
	return nil
}

// MoveAllTo merges this page into recipient: middleKey (the separator taken
// from the parent) is appended paired with this page's leftmost child, then
// the remaining entries [1..size) follow. Every moved child is adopted.
func (ip *InternalPage) MoveAllTo(recipient *InternalPage, middleKey []byte, pool PageFetcher) error {
	if err := recipient.CopyLastFrom(middleKey, ip.ValueAt(0), pool); err != nil {
		return err
	}
	for i := 1; i < ip.Size(); i++ {
		if err := recipient.CopyLastFrom(ip.KeyAt(i), ip.ValueAt(i), pool); err != nil {
			return err
		}
	}
	ip.SetSize(0)
	return nil
}

// MoveFirstToEndOf redistributes this page's leftmost child to the tail of
// recipient. middleKey, the parent's separator between the two siblings,
// becomes the moved entry's key; the caller promotes this page's old KeyAt(1)
// into the parent in its place.
func (ip *InternalPage) MoveFirstToEndOf(recipient *InternalPage, middleKey []byte, pool PageFetcher) error {
	if err := recipient.CopyLastFrom(middleKey, ip.ValueAt(0), pool); err != nil {
		return err
	}
	ip.Remove(0)
	return nil
}

// MoveLastToFrontOf redistributes this page's rightmost child to the head of
// recipient. middleKey pairs with recipient's previously-leftmost child; the
// moved child slides into the sentinel slot.
func (ip *InternalPage) MoveLastToFrontOf(recipient *InternalPage, middleKey []byte, pool PageFetcher) error {
	last := ip.Size() - 1
	if err := recipient.CopyFirstFrom(middleKey, ip.ValueAt(last), pool); err != nil {
		return err
	}
	ip.Remove(last)
	return nil
}

// CopyLastFrom appends (key, child) and adopts the child.
func (ip *InternalPage) CopyLastFrom(key []byte, child pagemanager.PageID, pool PageFetcher) error {
	if err := ip.adopt(child, pool); err != nil {
		return err
	}
	ip.insertAt(ip.Size(), key, child)
	return nil
}

// CopyFirstFrom prepends a child. The incoming child takes the sentinel slot
// (its key stays zeroed) and middleKey becomes slot 1's key, separating the
// new child from the previously-leftmost one.
func (ip *InternalPage) CopyFirstFrom(middleKey []byte, child pagemanager.PageID, pool PageFetcher) error {
	if err := ip.adopt(child, pool); err != nil {
		return err
	}
	ip.insertAt(0, make([]byte, ip.keySize), child)
	ip.SetKeyAt(1, middleKey)
	return nil
}

// adopt rewrites the child's parent pointer to this page and unpins it
// dirty. The fetch is a fresh pool call, made while no pool lock is held by
// this operation.
func (ip *InternalPage) adopt(child pagemanager.PageID, pool PageFetcher) error {
	page, err := pool.FetchPage(child)
	if err != nil {
		return fmt.Errorf("fetching child %d for adoption: %w", child, err)
	}
	BTreePageFrom(page).SetParentPageID(ip.PageID())
	return pool.UnpinPage(child, true)
}
