package memtable

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

// TestNewPoolMetrics constructs the instrument bundle against a noop meter
// and drives the pool with it attached.
func TestNewPoolMetrics(t *testing.T) {
	metrics, err := NewPoolMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	require.NotNil(t, metrics)

	bpm, _ := newTestPool(t, 2, nil)
	bpm.AttachMetrics(metrics)

	_, p0, err := bpm.NewPage()
	require.NoError(t, err)
	require.NoError(t, bpm.UnpinPage(p0, true))
	_, err = bpm.FetchPage(p0)
	require.NoError(t, err)
	require.NoError(t, bpm.UnpinPage(p0, false))
	require.NoError(t, bpm.FlushAllPages())
}

// TestNilPoolMetricsIsSafe drives every hook through a nil bundle.
func TestNilPoolMetricsIsSafe(t *testing.T) {
	var m *PoolMetrics
	m.fetched()
	m.hit()
	m.missed()
	m.evicted()
	m.wroteBack()
	m.flushed()
	m.pinAcquired()
	m.pinReleased()
}
