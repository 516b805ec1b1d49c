package memtable

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Flusher periodically drains dirty pages to disk through FlushAllPages. It
// is a checkpointing aid, not a durability guarantee: callers that need a
// page written out at a specific point still call FlushPage themselves.
type Flusher struct {
	bpm     *BufferPoolManager
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewFlusher creates a flusher that runs one flush pass per interval.
func NewFlusher(bpm *BufferPoolManager, interval time.Duration, logger *zap.Logger) *Flusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flusher{
		bpm:     bpm,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
	}
}

// Run flushes until ctx is cancelled, then returns ctx.Err(). Flush failures
// are logged and retried on the next pass.
func (f *Flusher) Run(ctx context.Context) error {
	f.logger.Info("background flusher started")
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			f.logger.Info("background flusher stopped")
			return ctx.Err()
		}
		if err := f.bpm.FlushAllPages(); err != nil {
			f.logger.Warn("checkpoint flush failed", zap.Error(err))
		}
	}
}
