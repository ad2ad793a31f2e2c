package outbound

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"fimbiz-sync/internal/erp"
	"fimbiz-sync/internal/store"
)

// Sweeper periodically re-drives the pusher for orders that never made it to
// the ERP, compensating for transient failures during the synchronous push
// at checkout.
type Sweeper struct {
	store     store.Store
	pusher    *Pusher
	interval  time.Duration
	batchSize int
	log       *zap.Logger
}

func NewSweeper(st store.Store, pusher *Pusher, interval time.Duration, batchSize int, log *zap.Logger) *Sweeper {
	return &Sweeper{
		store:     st,
		pusher:    pusher,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

// Run loops until the context is cancelled. The first sweep happens
// immediately so orders left unsynced across a restart are re-driven without
// waiting out the interval. Shutdown lands between sweeps, never mid-push.
func (s *Sweeper) Run(ctx context.Context) {
	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep pushes one batch of unsynced orders. A failure for one order never
// blocks the rest of the batch.
func (s *Sweeper) Sweep(ctx context.Context) {
	orders, err := s.store.UnsyncedOrders(ctx, s.batchSize)
	if err != nil {
		s.log.Error("sweep: listing unsynced orders failed", zap.Error(err))
		return
	}

	for _, order := range orders {
		if ctx.Err() != nil {
			return
		}
		err := s.pusher.Push(ctx, order.ID)
		switch {
		case err == nil:
			s.log.Info("sweep: order pushed", zap.String("order_id", order.ID.String()))
		case errors.Is(err, ErrAlreadySynced):
			// Raced with a concurrent push between the select and now.
		case errors.Is(err, erp.ErrUnauthorized):
			s.log.Error("sweep: erp credentials rejected, aborting batch", zap.Error(err))
			return
		case !erp.Retryable(err):
			s.log.Error("sweep: permanent push failure",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
		default:
			s.log.Warn("sweep: push failed, will retry next pass",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
		}
	}
}
