package btree

import (
	"encoding/binary"

	pagemanager "github.com/yutadb/yutadb/core/write_engine/page_manager"
)

// LeafPage interprets a frame's bytes as a sorted run of (key, RID) pairs
// with a right-sibling pointer for range scans. Keys are strictly
// increasing; every mutation preserves sortedness. Splitting when size
// reaches MaxSize is the caller's policy.
type LeafPage struct {
	BTreePage
	keySize int
}

// LeafPageFrom reinterprets a pinned frame as a leaf page with the given key
// width.
func LeafPageFrom(page *pagemanager.Page, keySize int) *LeafPage {
	return &LeafPage{BTreePage: BTreePage{data: page.GetData()}, keySize: keySize}
}

// Init prepares a freshly allocated page as an empty leaf.
func (lp *LeafPage) Init(pageID, parentID pagemanager.PageID, maxSize int) {
	lp.SetPageType(PageTypeLeaf)
	lp.SetSize(0)
	lp.SetMaxSize(maxSize)
	lp.SetParentPageID(parentID)
	lp.SetPageID(pageID)
	lp.SetNextPageID(pagemanager.InvalidPageID)
}

// NextPageID returns the right sibling, or InvalidPageID at the end of the
// leaf chain.
func (lp *LeafPage) NextPageID() pagemanager.PageID {
	return pagemanager.PageID(lp.getInt32(offNextPageID))
}

func (lp *LeafPage) SetNextPageID(id pagemanager.PageID) {
	lp.putInt32(offNextPageID, int32(id))
}

func (lp *LeafPage) slotSize() int { return lp.keySize + ridSize }

func (lp *LeafPage) slotOffset(index int) int {
	return leafSlotsOffset + index*lp.slotSize()
}

// KeyAt returns the key stored at index. The slice aliases the page buffer.
func (lp *LeafPage) KeyAt(index int) []byte {
	off := lp.slotOffset(index)
	return lp.data[off : off+lp.keySize]
}

// RIDAt returns the record id stored at index.
func (lp *LeafPage) RIDAt(index int) pagemanager.RID {
	off := lp.slotOffset(index) + lp.keySize
	return pagemanager.RID{
		PageID:  pagemanager.PageID(int32(binary.LittleEndian.Uint32(lp.data[off : off+4]))),
		SlotNum: int32(binary.LittleEndian.Uint32(lp.data[off+4 : off+8])),
	}
}

func (lp *LeafPage) setSlot(index int, key []byte, rid pagemanager.RID) {
	off := lp.slotOffset(index)
	copy(lp.data[off:off+lp.keySize], key)
	binary.LittleEndian.PutUint32(lp.data[off+lp.keySize:], uint32(rid.PageID))
	binary.LittleEndian.PutUint32(lp.data[off+lp.keySize+4:], uint32(rid.SlotNum))
}

// Item returns the pair at index.
func (lp *LeafPage) Item(index int) ([]byte, pagemanager.RID) {
	return lp.KeyAt(index), lp.RIDAt(index)
}

// KeyIndex finds the first index whose key is >= key; Size() when every key
// is smaller.
func (lp *LeafPage) KeyIndex(key []byte, comparator KeyComparator) int {
	left, right := 0, lp.Size()
	for left < right {
		mid := left + (right-left)/2
		if comparator(lp.KeyAt(mid), key) < 0 {
			left = mid + 1
		} else {
			right = mid
		}
	}
	return left
}

// Lookup returns the record id stored under key.
func (lp *LeafPage) Lookup(key []byte, comparator KeyComparator) (pagemanager.RID, bool) {
	index := lp.KeyIndex(key, comparator)
	if index >= lp.Size() || comparator(lp.KeyAt(index), key) != 0 {
		return pagemanager.RID{}, false
	}
	return lp.RIDAt(index), true
}

// Insert adds the pair keeping the slot array sorted and returns the new
// size. Duplicate keys are rejected: the size comes back unchanged.
func (lp *LeafPage) Insert(key []byte, rid pagemanager.RID, comparator KeyComparator) int {
	index := lp.KeyIndex(key, comparator)
	if index < lp.Size() && comparator(lp.KeyAt(index), key) == 0 {
		return lp.Size()
	}
	lp.insertAt(index, key, rid)
	return lp.Size()
}

// Remove deletes key's pair if present, compacting the slot array, and
// returns the resulting size. Absent keys are a no-op.
func (lp *LeafPage) Remove(key []byte, comparator KeyComparator) int {
	index := lp.KeyIndex(key, comparator)
	if index >= lp.Size() || comparator(lp.KeyAt(index), key) != 0 {
		return lp.Size()
	}
	lp.removeAt(index)
	return lp.Size()
}

func (lp *LeafPage) insertAt(index int, key []byte, rid pagemanager.RID) {
	start := lp.slotOffset(index)
	end := lp.slotOffset(lp.Size())
	copy(lp.data[start+lp.slotSize():end+lp.slotSize()], lp.data[start:end])
	lp.setSlot(index, key, rid)
	lp.IncreaseSize(1)
}

func (lp *LeafPage) removeAt(index int) {
	start := lp.slotOffset(index)
	end := lp.slotOffset(lp.Size())
	copy(lp.data[start:], lp.data[start+lp.slotSize():end])
	lp.IncreaseSize(-1)
}

// copyNFrom appends n raw slots taken from another leaf's buffer.
func (lp *LeafPage) copyNFrom(src []byte, n int) {
	start := lp.slotOffset(lp.Size())
	copy(lp.data[start:start+n*lp.slotSize()], src)
	lp.IncreaseSize(n)
}

// MoveHalfTo appends this page's trailing half to recipient, as done when
// splitting an overflowing leaf.
func (lp *LeafPage) MoveHalfTo(recipient *LeafPage) {
	half := lp.Size() / 2
	from := lp.slotOffset(lp.Size() - half)
	to := lp.slotOffset(lp.Size())
	recipient.copyNFrom(lp.data[from:to], half)
	lp.IncreaseSize(-half)
}

// MoveAllTo appends every pair to recipient and hands over the right-sibling
// link, as done when merging into a left sibling.
func (lp *LeafPage) MoveAllTo(recipient *LeafPage) {
	recipient.copyNFrom(lp.data[lp.slotOffset(0):lp.slotOffset(lp.Size())], lp.Size())
	lp.SetSize(0)
	recipient.SetNextPageID(lp.NextPageID())
}

// MoveFirstToEndOf shifts this page's first pair onto the tail of recipient,
// redistributing toward the left sibling.
func (lp *LeafPage) MoveFirstToEndOf(recipient *LeafPage) {
	recipient.insertAt(recipient.Size(), lp.KeyAt(0), lp.RIDAt(0))
	lp.removeAt(0)
}

// MoveLastToFrontOf shifts this page's last pair onto the head of recipient,
// redistributing toward the right sibling.
func (lp *LeafPage) MoveLastToFrontOf(recipient *LeafPage) {
	last := lp.Size() - 1
	recipient.insertAt(0, lp.KeyAt(last), lp.RIDAt(last))
	lp.removeAt(last)
}
