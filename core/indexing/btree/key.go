package btree

import (
	"bytes"
	"cmp"
	"encoding/binary"
)

// Supported fixed key widths for the slot layout. The width is fixed per
// index and chosen when the page view is constructed.
const (
	KeySize4  = 4
	KeySize8  = 8
	KeySize16 = 16
	KeySize32 = 32
	KeySize64 = 64
)

// KeyComparator orders two fixed-width binary keys. Negative when a < b,
// zero when equal, positive when a > b.
type KeyComparator func(a, b []byte) int

// CompareBytes orders keys by raw byte comparison. Suitable for keys encoded
// in an order-preserving form.
func CompareBytes(a, b []byte) int {
	return bytes.Compare(a, b)
}

// EncodeInt64Key writes v into an 8-byte little-endian key.
func EncodeInt64Key(v int64) []byte {
	buf := make([]byte, KeySize8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return buf
}

// DecodeInt64Key reads an int64 back out of an 8-byte key.
func DecodeInt64Key(b []byte) int64 {
	return int64(binary.LittleEndian.Uint64(b))
}

// CompareInt64Keys orders 8-byte little-endian int64 keys numerically.
func CompareInt64Keys(a, b []byte) int {
	return cmp.Compare(DecodeInt64Key(a), DecodeInt64Key(b))
}
