package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type rateWindowStore interface {
	Admit(ctx context.Context, origin string, now time.Time) (bool, error)
}

type rateWindowSweeper interface {
	Sweep(now time.Time) int
}

// RateLimiter bounds how many ingestion batches one origin may start inside a
// trailing window.
type RateLimiter struct {
	store   rateWindowStore
	logger  *zap.Logger
	metrics *MetricsService
	now     func() time.Time
}

// NewRateLimiter constructs a limiter over a window backend.
func NewRateLimiter(store rateWindowStore, logger *zap.Logger, metrics *MetricsService) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: logger, metrics: metrics, now: time.Now}
}

// Admit checks and records one attempt for origin as a single atomic step.
func (r *RateLimiter) Admit(ctx context.Context, origin string) (bool, error) {
	ok, err := r.store.Admit(ctx, origin, r.now())
	if err != nil {
		return false, storeUnavailable(err)
	}
	if !ok {
		r.metrics.RecordRateLimited()
		r.logger.Info("upload rate limited", zap.String("origin", origin))
	}
	return ok, nil
}

// RunSweeper prunes idle origins every interval until ctx is cancelled.
// Backends that expire entries on their own are left alone.
func (r *RateLimiter) RunSweeper(ctx context.Context, interval time.Duration) {
	sweeper, ok := r.store.(rateWindowSweeper)
	if !ok || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := sweeper.Sweep(r.now()); removed > 0 {
				r.logger.Debug("rate windows swept", zap.Int("removed", removed))
			}
		}
	}
}
