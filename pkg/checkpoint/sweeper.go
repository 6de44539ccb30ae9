package checkpoint

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs Store.Sweep on a ticker, grounded on the teacher's
// escalation engine's ticker/select loop shape.
type Sweeper struct {
	store         *Store
	logger        *slog.Logger
	interval      time.Duration
	retentionDays int
	maxPerThread  int
}

// NewSweeper creates a periodic checkpoint sweeper.
func NewSweeper(store *Store, logger *slog.Logger, retentionDays, maxPerThread int) *Sweeper {
	return &Sweeper{
		store:         store,
		logger:        logger,
		interval:      time.Hour,
		retentionDays: retentionDays,
		maxPerThread:  maxPerThread,
	}
}

// Run blocks until ctx is cancelled, sweeping at each tick.
func (sw *Sweeper) Run(ctx context.Context) error {
	sw.logger.Info("checkpoint sweeper started", "interval", sw.interval)
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("checkpoint sweeper stopped")
			return nil
		case <-ticker.C:
			deleted, err := sw.store.Sweep(ctx, sw.retentionDays, sw.maxPerThread)
			if err != nil {
				sw.logger.Error("checkpoint sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				sw.logger.Info("checkpoint sweep completed", "rows_deleted", deleted)
			}
		}
	}
}
