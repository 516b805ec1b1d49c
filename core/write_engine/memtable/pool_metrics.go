package memtable

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// PoolMetrics holds the metric instruments for a buffer pool. A nil
// *PoolMetrics is valid and records nothing.
type PoolMetrics struct {
	fetchesTotal    metric.Int64Counter
	hitsTotal       metric.Int64Counter
	missesTotal     metric.Int64Counter
	evictionsTotal  metric.Int64Counter
	writeBacksTotal metric.Int64Counter
	flushesTotal    metric.Int64Counter
	pinnedPages     metric.Int64UpDownCounter
}

// NewPoolMetrics creates and registers the buffer pool instruments.
func NewPoolMetrics(meter metric.Meter) (*PoolMetrics, error) {
	fetchesTotal, err := meter.Int64Counter(
		"yutadb.bufferpool.fetches_total",
		metric.WithDescription("Total number of page fetch requests."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	hitsTotal, err := meter.Int64Counter(
		"yutadb.bufferpool.hits_total",
		metric.WithDescription("Fetch requests served from a cached frame."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	missesTotal, err := meter.Int64Counter(
		"yutadb.bufferpool.misses_total",
		metric.WithDescription("Fetch requests that had to load the page from disk."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	evictionsTotal, err := meter.Int64Counter(
		"yutadb.bufferpool.evictions_total",
		metric.WithDescription("Frames reclaimed through the replacer."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	writeBacksTotal, err := meter.Int64Counter(
		"yutadb.bufferpool.write_backs_total",
		metric.WithDescription("Dirty page images written to disk."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	flushesTotal, err := meter.Int64Counter(
		"yutadb.bufferpool.flushes_total",
		metric.WithDescription("Explicit page flushes requested by callers."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pinnedPages, err := meter.Int64UpDownCounter(
		"yutadb.bufferpool.pinned_pages",
		metric.WithDescription("Outstanding page pins."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &PoolMetrics{
		fetchesTotal:    fetchesTotal,
		hitsTotal:       hitsTotal,
		missesTotal:     missesTotal,
		evictionsTotal:  evictionsTotal,
		writeBacksTotal: writeBacksTotal,
		flushesTotal:    flushesTotal,
		pinnedPages:     pinnedPages,
	}, nil
}

func (m *PoolMetrics) fetched() {
	if m == nil {
		return
	}
	m.fetchesTotal.Add(context.Background(), 1)
}

func (m *PoolMetrics) hit() {
	if m == nil {
		return
	}
	m.hitsTotal.Add(context.Background(), 1)
}

func (m *PoolMetrics) missed() {
	if m == nil {
		return
	}
	m.missesTotal.Add(context.Background(), 1)
}

func (m *PoolMetrics) evicted() {
	if m == nil {
		return
	}
	m.evictionsTotal.Add(context.Background(), 1)
}

func (m *PoolMetrics) wroteBack() {
	if m == nil {
		return
	}
	m.writeBacksTotal.Add(context.Background(), 1)
}

func (m *PoolMetrics) flushed() {
	if m == nil {
		return
	}
	m.flushesTotal.Add(context.Background(), 1)
}

func (m *PoolMetrics) pinAcquired() {
	if m == nil {
		return
	}
	m.pinnedPages.Add(context.Background(), 1)
}

func (m *PoolMetrics) pinReleased() {
	if m == nil {
		return
	}
	m.pinnedPages.Add(context.Background(), -1)
}
