package flushmanager

import "errors"

// --- Error Definitions ---

var (
	ErrPageNotFound    = errors.New("page not found in buffer pool")
	ErrBufferPoolFull  = errors.New("buffer pool is full and no pages can be evicted")
	ErrPagePinned      = errors.New("page is pinned and cannot be evicted")
	ErrPageNotPinned   = errors.New("page has no outstanding pins")
	ErrSerialization   = errors.New("error during serialization")
	ErrDeserialization = errors.New("error during deserialization")
	ErrIO              = errors.New("i/o error")
	ErrInvalidPageData = errors.New("invalid page data")
	ErrDBFileExists    = errors.New("database file already exists")
	ErrDBFileNotFound  = errors.New("database file not found")
)
