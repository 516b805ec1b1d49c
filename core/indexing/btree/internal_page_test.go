package btree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	flushmanager "github.com/yutadb/yutadb/core/write_engine/flush_manager"
	"github.com/yutadb/yutadb/core/write_engine/memtable"
	pagemanager "github.com/yutadb/yutadb/core/write_engine/page_manager"
	"go.uber.org/zap/zaptest"
)

func newTestInternal(t *testing.T, pageID pagemanager.PageID, maxSize int) *InternalPage {
	t.Helper()
	frame := pagemanager.NewPage(pageID, pagemanager.DefaultPageSize)
	node := InternalPageFrom(frame, KeySize8)
	node.Init(pageID, pagemanager.InvalidPageID, maxSize)
	return node
}

func newTestBufferPool(t *testing.T, poolSize int) *memtable.BufferPoolManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "btree.db")
	logger := zaptest.NewLogger(t)
	dm, err := flushmanager.NewDiskManager(path, pagemanager.DefaultPageSize, logger)
	require.NoError(t, err)
	require.NoError(t, dm.Open(true))
	t.Cleanup(func() { _ = dm.Close() })
	return memtable.NewBufferPoolManager(poolSize, pagemanager.DefaultPageSize, dm, nil, logger)
}

// newPooledInternal allocates a page through the pool and views it as an
// internal node. The frame stays pinned for the duration of the test.
func newPooledInternal(t *testing.T, bpm *memtable.BufferPoolManager, maxSize int) *InternalPage {
	t.Helper()
	frame, pageID, err := bpm.NewPage()
	require.NoError(t, err)
	node := InternalPageFrom(frame, KeySize8)
	node.Init(pageID, pagemanager.InvalidPageID, maxSize)
	return node
}

// newPooledChild allocates a leaf child and unpins it so it can be refetched
// during adoption.
func newPooledChild(t *testing.T, bpm *memtable.BufferPoolManager, parent pagemanager.PageID) pagemanager.PageID {
	t.Helper()
	frame, pageID, err := bpm.NewPage()
	require.NoError(t, err)
	leaf := LeafPageFrom(frame, KeySize8)
	leaf.Init(pageID, parent, 16)
	require.NoError(t, bpm.UnpinPage(pageID, true))
	return pageID
}

func parentOf(t *testing.T, bpm *memtable.BufferPoolManager, child pagemanager.PageID) pagemanager.PageID {
	t.Helper()
	frame, err := bpm.FetchPage(child)
	require.NoError(t, err)
	parent := BTreePageFrom(frame).ParentPageID()
	require.NoError(t, bpm.UnpinPage(child, false))
	return parent
}

func internalKeys(ip *InternalPage) []int64 {
	// Slot 0's key is a sentinel; only slots [1..size) carry separators.
	keys := make([]int64, 0, ip.Size()-1)
	for i := 1; i < ip.Size(); i++ {
		keys = append(keys, DecodeInt64Key(ip.KeyAt(i)))
	}
	return keys
}

func internalValues(ip *InternalPage) []pagemanager.PageID {
	values := make([]pagemanager.PageID, 0, ip.Size())
	for i := 0; i < ip.Size(); i++ {
		values = append(values, ip.ValueAt(i))
	}
	return values
}

// buildInternal populates a node as [c0 | k1 c1 | k2 c2 | ...].
func buildInternal(node *InternalPage, firstChild pagemanager.PageID, seps []int64, children []pagemanager.PageID) {
	node.SetSize(1)
	node.SetValueAt(0, firstChild)
	for i := range seps {
		node.InsertNodeAfter(node.ValueAt(i), EncodeInt64Key(seps[i]), children[i])
	}
}

// TestInternalLookupBoundaries pins the "greatest separator <= key" rule,
// including the exact-match and before-first-separator cases.
func TestInternalLookupBoundaries(t *testing.T) {
	node := newTestInternal(t, 10, 8)
	buildInternal(node, 100, []int64{10, 20, 30}, []pagemanager.PageID{101, 102, 103})

	cases := []struct {
		key  int64
		want pagemanager.PageID
	}{
		{5, 100},
		{9, 100},
		{10, 101},
		{15, 101},
		{20, 102},
		{29, 102},
		{30, 103},
		{99, 103},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, node.Lookup(EncodeInt64Key(tc.key), CompareInt64Keys),
			"lookup(%d)", tc.key)
	}

	single := newTestInternal(t, 11, 8)
	single.SetSize(1)
	single.SetValueAt(0, 100)
	require.Equal(t, pagemanager.PageID(100), single.Lookup(EncodeInt64Key(77), CompareInt64Keys))
}

// TestInternalPopulateNewRootAndInsertAfter covers root construction and
// sibling insertion after a split.
func TestInternalPopulateNewRootAndInsertAfter(t *testing.T) {
	node := newTestInternal(t, 10, 8)
	node.PopulateNewRoot(100, EncodeInt64Key(20), 101)
	require.Equal(t, 2, node.Size())
	require.Equal(t, []pagemanager.PageID{100, 101}, internalValues(node))
	require.Equal(t, []int64{20}, internalKeys(node))

	size := node.InsertNodeAfter(100, EncodeInt64Key(10), 102)
	require.Equal(t, 3, size)
	require.Equal(t, []pagemanager.PageID{100, 102, 101}, internalValues(node))
	require.Equal(t, []int64{10, 20}, internalKeys(node))

	require.Equal(t, 1, node.ValueIndex(102))
	require.Equal(t, -1, node.ValueIndex(999))
}

// TestInternalRemoveAndCollapse covers slot removal and the single-child
// root collapse.
func TestInternalRemoveAndCollapse(t *testing.T) {
	node := newTestInternal(t, 10, 8)
	buildInternal(node, 100, []int64{10, 20}, []pagemanager.PageID{101, 102})

	require.Equal(t, pagemanager.InvalidPageID, node.RemoveAndReturnOnlyChild(),
		"collapse requires exactly one slot")

	node.Remove(1)
	require.Equal(t, []pagemanager.PageID{100, 102}, internalValues(node))
	require.Equal(t, []int64{20}, internalKeys(node))

	node.Remove(1)
	require.Equal(t, pagemanager.PageID(100), node.RemoveAndReturnOnlyChild())
	require.Equal(t, 0, node.Size())
}

// TestInternalMoveHalfToAdoptsChildren splits an internal node through a
// live pool and checks every moved child now points at the recipient.
func TestInternalMoveHalfToAdoptsChildren(t *testing.T) {
	bpm := newTestBufferPool(t, 10)

	node := newPooledInternal(t, bpm, 8)
	recipient := newPooledInternal(t, bpm, 8)

	children := make([]pagemanager.PageID, 4)
	for i := range children {
		children[i] = newPooledChild(t, bpm, node.PageID())
	}
	buildInternal(node, children[0], []int64{10, 20, 30}, children[1:])

	require.NoError(t, node.MoveHalfTo(recipient, bpm))
	require.Equal(t, 2, node.Size())
	require.Equal(t, 2, recipient.Size())
	require.Equal(t, children[:2], internalValues(node))
	require.Equal(t, children[2:], internalValues(recipient))

	for _, child := range children[:2] {
		require.Equal(t, node.PageID(), parentOf(t, bpm, child))
	}
	for _, child := range children[2:] {
		require.Equal(t, recipient.PageID(), parentOf(t, bpm, child))
	}
}

// TestInternalMoveAllToPrependsMiddleKey merges through a live pool: the
// parent separator must join the recipient ahead of the moved entries, and
// every moved child must be adopted.
func TestInternalMoveAllToPrependsMiddleKey(t *testing.T) {
	bpm := newTestBufferPool(t, 10)

	left := newPooledInternal(t, bpm, 8)
	right := newPooledInternal(t, bpm, 8)

	lc := []pagemanager.PageID{
		newPooledChild(t, bpm, left.PageID()),
		newPooledChild(t, bpm, left.PageID()),
	}
	rc := []pagemanager.PageID{
		newPooledChild(t, bpm, right.PageID()),
		newPooledChild(t, bpm, right.PageID()),
	}
	buildInternal(left, lc[0], []int64{10}, lc[1:])
	buildInternal(right, rc[0], []int64{30}, rc[1:])

	require.NoError(t, right.MoveAllTo(left, EncodeInt64Key(20), bpm))
	require.Equal(t, 0, right.Size())
	require.Equal(t, append(lc, rc...), internalValues(left))
	require.Equal(t, []int64{10, 20, 30}, internalKeys(left),
		"middle key separates the two merged halves")

	for _, child := range rc {
		require.Equal(t, left.PageID(), parentOf(t, bpm, child))
	}
}

// TestInternalRedistributeThroughPool moves single children across siblings
// in both directions, checking separator placement and adoption.
func TestInternalRedistributeThroughPool(t *testing.T) {
	bpm := newTestBufferPool(t, 10)

	left := newPooledInternal(t, bpm, 8)
	right := newPooledInternal(t, bpm, 8)

	lc := []pagemanager.PageID{
		newPooledChild(t, bpm, left.PageID()),
		newPooledChild(t, bpm, left.PageID()),
	}
	rc := []pagemanager.PageID{
		newPooledChild(t, bpm, right.PageID()),
		newPooledChild(t, bpm, right.PageID()),
	}
	buildInternal(left, lc[0], []int64{10}, lc[1:])
	buildInternal(right, rc[0], []int64{40}, rc[1:])

	// Borrow right's first child into left's tail: separator 20 comes down.
	require.NoError(t, right.MoveFirstToEndOf(left, EncodeInt64Key(20), bpm))
	require.Equal(t, []pagemanager.PageID{lc[0], lc[1], rc[0]}, internalValues(left))
	require.Equal(t, []int64{10, 20}, internalKeys(left))
	require.Equal(t, []pagemanager.PageID{rc[1]}, internalValues(right))
	require.Equal(t, left.PageID(), parentOf(t, bpm, rc[0]))

	// Push left's last child back to the front of right: separator 30 pairs
	// with right's old leftmost child, the moved child takes the sentinel
	// slot.
	require.NoError(t, left.MoveLastToFrontOf(right, EncodeInt64Key(30), bpm))
	require.Equal(t, []pagemanager.PageID{lc[0], lc[1]}, internalValues(left))
	require.Equal(t, []pagemanager.PageID{rc[0], rc[1]}, internalValues(right))
	require.Equal(t, []int64{30}, internalKeys(right))
	require.Equal(t, right.PageID(), parentOf(t, bpm, rc[0]))
}
