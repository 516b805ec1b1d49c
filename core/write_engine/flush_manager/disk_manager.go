package flushmanager

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	pagemanager "github.com/yutadb/yutadb/core/write_engine/page_manager"
	"go.uber.org/zap"
)

const (
	// DBMagic identifies a yutadb data file.
	DBMagic uint32 = 0x59DB0001

	dbFileVersion = 1
)

// dbFileHeader is the structure of the database file header, stored in the
// reserved region before the first data page. All fields are fixed-size so
// binary.Read/Write lay them out deterministically.
type dbFileHeader struct {
	Magic    uint32
	Version  uint32
	PageSize uint32
	NumPages uint32
}

const dbFileHeaderSize = 16

// DiskManager reads and writes fixed-size pages of a single database file.
// Page p lives at offset (1+p)*pageSize: the first pageSize bytes are
// reserved for the file header.
type DiskManager struct {
	filePath string
	file     *os.File
	pageSize int
	numPages int32
	// freed records deallocated page ids. IDs are never reused within a
	// run, so this is a ledger rather than a free list.
	freed  map[pagemanager.PageID]struct{}
	mu     sync.Mutex
	logger *zap.Logger
}

// NewDiskManager creates a DiskManager for the given file path. The file is
// not touched until Open is called.
func NewDiskManager(filePath string, pageSize int, logger *zap.Logger) (*DiskManager, error) {
	if pageSize < dbFileHeaderSize {
		return nil, fmt.Errorf("%w: page size %d too small", ErrInvalidPageData, pageSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiskManager{
		filePath: filePath,
		pageSize: pageSize,
		freed:    make(map[pagemanager.PageID]struct{}),
		logger:   logger,
	}, nil
}

// Open opens the database file. With create=true the file must not exist
// yet; with create=false it must. Opening an existing file validates its
// header against the configured page size.
func (dm *DiskManager) Open(create bool) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	_, statErr := os.Stat(dm.filePath)
	switch {
	case os.IsNotExist(statErr):
		if !create {
			return fmt.Errorf("%w: %s", ErrDBFileNotFound, dm.filePath)
		}
		file, err := os.OpenFile(dm.filePath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
		if err != nil {
			return fmt.Errorf("%w: creating file %s: %v", ErrIO, dm.filePath, err)
		}
		dm.file = file
		dm.numPages = 0
		if err := dm.writeHeader(); err != nil {
			dm.file = nil
			file.Close()
			_ = os.Remove(dm.filePath)
			return err
		}
		dm.logger.Info("created database file",
			zap.String("path", dm.filePath), zap.Int("page_size", dm.pageSize))
		return nil

	case statErr == nil:
		if create {
			return fmt.Errorf("%w: %s", ErrDBFileExists, dm.filePath)
		}
		file, err := os.OpenFile(dm.filePath, os.O_RDWR, 0o666)
		if err != nil {
			return fmt.Errorf("%w: opening file %s: %v", ErrIO, dm.filePath, err)
		}
		dm.file = file
		var header dbFileHeader
		if err := dm.readHeader(&header); err != nil {
			dm.file = nil
			file.Close()
			return err
		}
		if header.Magic != DBMagic {
			dm.file = nil
			file.Close()
			return fmt.Errorf("%w: bad magic 0x%x in %s", ErrInvalidPageData, header.Magic, dm.filePath)
		}
		if header.PageSize != uint32(dm.pageSize) {
			dm.file = nil
			file.Close()
			return fmt.Errorf("%w: file page size %d != configured %d",
				ErrInvalidPageData, header.PageSize, dm.pageSize)
		}
		dm.numPages = int32(header.NumPages)
		dm.logger.Info("opened database file",
			zap.String("path", dm.filePath), zap.Int32("num_pages", dm.numPages))
		return nil

	default:
		return fmt.Errorf("%w: stating file %s: %v", ErrIO, dm.filePath, statErr)
	}
}

func (dm *DiskManager) writeHeader() error {
	header := dbFileHeader{
		Magic:    DBMagic,
		Version:  dbFileVersion,
		PageSize: uint32(dm.pageSize),
		NumPages: uint32(dm.numPages),
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("%w: serializing header: %v", ErrSerialization, err)
	}
	// Pad the header out to a full reserved page.
	buf.Write(make([]byte, dm.pageSize-buf.Len()))
	if _, err := dm.file.WriteAt(buf.Bytes(), 0); err != nil {
		return fmt.Errorf("%w: writing header: %v", ErrIO, err)
	}
	return nil
}

func (dm *DiskManager) readHeader(header *dbFileHeader) error {
	data := make([]byte, dbFileHeaderSize)
	n, err := dm.file.ReadAt(data, 0)
	if err != nil {
		if err == io.EOF && n < dbFileHeaderSize {
			return fmt.Errorf("%w: file too short for header", ErrInvalidPageData)
		}
		return fmt.Errorf("%w: reading header: %v", ErrIO, err)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, header); err != nil {
		return fmt.Errorf("%w: deserializing header: %v", ErrDeserialization, err)
	}
	return nil
}

func (dm *DiskManager) pageOffset(pageID pagemanager.PageID) int64 {
	return int64(dm.pageSize) * int64(1+pageID)
}

// ReadPage reads a page's bytes from disk into pageData.
func (dm *DiskManager) ReadPage(pageID pagemanager.PageID, pageData []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return fmt.Errorf("%w: file not open", ErrIO)
	}
	if len(pageData) != dm.pageSize {
		return fmt.Errorf("%w: buffer size %d != page size %d", ErrInvalidPageData, len(pageData), dm.pageSize)
	}
	if pageID < 0 || int32(pageID) >= dm.numPages {
		return fmt.Errorf("%w: page %d out of bounds (%d pages)", ErrIO, pageID, dm.numPages)
	}
	n, err := dm.file.ReadAt(pageData, dm.pageOffset(pageID))
	if err != nil {
		return fmt.Errorf("%w: reading page %d: %v", ErrIO, pageID, err)
	}
	if n != dm.pageSize {
		return fmt.Errorf("%w: short read for page %d, expected %d got %d", ErrIO, pageID, dm.pageSize, n)
	}
	return nil
}

// WritePage writes pageData to the page's location on disk. The write is not
// synced here; Sync flushes written pages to stable storage.
func (dm *DiskManager) WritePage(pageID pagemanager.PageID, pageData []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return fmt.Errorf("%w: file not open", ErrIO)
	}
	if len(pageData) != dm.pageSize {
		return fmt.Errorf("%w: buffer size %d != page size %d", ErrInvalidPageData, len(pageData), dm.pageSize)
	}
	if pageID < 0 || int32(pageID) >= dm.numPages {
		return fmt.Errorf("%w: page %d out of bounds (%d pages)", ErrIO, pageID, dm.numPages)
	}
	if _, err := dm.file.WriteAt(pageData, dm.pageOffset(pageID)); err != nil {
		return fmt.Errorf("%w: writing page %d: %v", ErrIO, pageID, err)
	}
	return nil
}

// AllocatePage extends the file by one zeroed page and returns its id.
// Allocation is monotonic starting at page 0.
func (dm *DiskManager) AllocatePage() (pagemanager.PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return pagemanager.InvalidPageID, fmt.Errorf("%w: file not open", ErrIO)
	}
	newPageID := pagemanager.PageID(dm.numPages)
	empty := make([]byte, dm.pageSize)
	if _, err := dm.file.WriteAt(empty, dm.pageOffset(newPageID)); err != nil {
		return pagemanager.InvalidPageID, fmt.Errorf("%w: extending file for page %d: %v", ErrIO, newPageID, err)
	}
	dm.numPages++
	if err := dm.writeHeader(); err != nil {
		return pagemanager.InvalidPageID, err
	}
	dm.logger.Debug("allocated page", zap.Int32("page_id", int32(newPageID)))
	return newPageID, nil
}

// DeallocatePage records the page as freed. IDs are never reused within a
// run, so the page's bytes stay in place in the file.
func (dm *DiskManager) DeallocatePage(pageID pagemanager.PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if pageID < 0 || int32(pageID) >= dm.numPages {
		return fmt.Errorf("%w: page %d out of bounds (%d pages)", ErrIO, pageID, dm.numPages)
	}
	dm.freed[pageID] = struct{}{}
	dm.logger.Debug("deallocated page", zap.Int32("page_id", int32(pageID)))
	return nil
}

// NumPages reports how many pages have been allocated so far.
func (dm *DiskManager) NumPages() int32 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.numPages
}

// FreedPages reports how many pages have been deallocated.
func (dm *DiskManager) FreedPages() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.freed)
}

// GetPageSize returns the configured page size.
func (dm *DiskManager) GetPageSize() int {
	return dm.pageSize
}

// Sync flushes all buffered writes to stable storage.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return nil
	}
	return dm.file.Sync()
}

// Close syncs and closes the underlying file.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return nil
	}
	if err := dm.writeHeader(); err != nil {
		dm.logger.Warn("writing header on close", zap.Error(err))
	}
	if err := dm.file.Sync(); err != nil {
		dm.logger.Warn("syncing file on close", zap.Error(err))
	}
	closeErr := dm.file.Close()
	dm.file = nil
	return closeErr
}
