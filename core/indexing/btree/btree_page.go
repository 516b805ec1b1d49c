package btree

import (
	"encoding/binary"

	pagemanager "github.com/yutadb/yutadb/core/write_engine/page_manager"
)

// PageType discriminates the on-page representation.
type PageType int32

const (
	PageTypeInvalid PageType = iota
	PageTypeLeaf
	PageTypeInternal
)

// Common header layout, little-endian i32 fields at fixed offsets.
const (
	offPageType     = 0
	offLSN          = 4
	offSize         = 8
	offMaxSize      = 12
	offParentPageID = 16
	offPageID       = 20
	headerSize      = 24

	offNextPageID = headerSize // leaf only

	leafSlotsOffset     = headerSize + 4
	internalSlotsOffset = headerSize

	ridSize     = 8 // page id + slot number
	childIDSize = 4
)

// BTreePage is a typed view over the raw bytes of a pinned frame. It borrows
// the frame's buffer; it owns nothing and stays valid only while the frame
// is pinned.
type BTreePage struct {
	data []byte
}

// BTreePageFrom reinterprets a pinned frame as a B+Tree page header.
func BTreePageFrom(page *pagemanager.Page) *BTreePage {
	return &BTreePage{data: page.GetData()}
}

func (p *BTreePage) getInt32(off int) int32 {
	return int32(binary.LittleEndian.Uint32(p.data[off : off+4]))
}

func (p *BTreePage) putInt32(off int, v int32) {
	binary.LittleEndian.PutUint32(p.data[off:off+4], uint32(v))
}

func (p *BTreePage) PageType() PageType         { return PageType(p.getInt32(offPageType)) }
func (p *BTreePage) SetPageType(t PageType)     { p.putInt32(offPageType, int32(t)) }
func (p *BTreePage) IsLeaf() bool               { return p.PageType() == PageTypeLeaf }
func (p *BTreePage) LSN() pagemanager.LSN       { return pagemanager.LSN(p.getInt32(offLSN)) }
func (p *BTreePage) SetLSN(lsn pagemanager.LSN) { p.putInt32(offLSN, int32(lsn)) }

// Size is the number of populated slots.
func (p *BTreePage) Size() int          { return int(p.getInt32(offSize)) }
func (p *BTreePage) SetSize(n int)      { p.putInt32(offSize, int32(n)) }
func (p *BTreePage) IncreaseSize(d int) { p.putInt32(offSize, p.getInt32(offSize)+int32(d)) }

func (p *BTreePage) MaxSize() int     { return int(p.getInt32(offMaxSize)) }
func (p *BTreePage) SetMaxSize(n int) { p.putInt32(offMaxSize, int32(n)) }

func (p *BTreePage) ParentPageID() pagemanager.PageID {
	return pagemanager.PageID(p.getInt32(offParentPageID))
}

func (p *BTreePage) SetParentPageID(id pagemanager.PageID) {
	p.putInt32(offParentPageID, int32(id))
}

func (p *BTreePage) PageID() pagemanager.PageID {
	return pagemanager.PageID(p.getInt32(offPageID))
}

func (p *BTreePage) SetPageID(id pagemanager.PageID) {
	p.putInt32(offPageID, int32(id))
}

// IsRoot reports whether the page has no parent.
func (p *BTreePage) IsRoot() bool {
	return p.ParentPageID() == pagemanager.InvalidPageID
}
