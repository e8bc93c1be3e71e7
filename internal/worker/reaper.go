package worker

import (
	"context"
	"time"

	"unibuy/internal/models"
	"unibuy/internal/service"
	"unibuy/internal/util"

	"go.uber.org/zap"
)

const (
	reaperLockKey  = "order-reaper"
	reaperLockTTL  = 50 * time.Second
	reaperInterval = time.Minute
	reaperBatch    = 100
)

// reaperLocker serializes reaper ticks across replicas.
type reaperLocker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// Reaper cancels PENDING orders whose payment never arrived within the
// configured timeout, freeing them from limbo without ever touching stock
// (unconfirmed orders hold none).
type Reaper struct {
	ledger  service.LedgerStore
	orders  *service.OrderService
	locker  reaperLocker
	timeout time.Duration
	logger  *zap.Logger
}

// NewReaper creates a new pending-order reaper. locker may be nil when
// running a single instance.
func NewReaper(ledger service.LedgerStore, orders *service.OrderService, locker reaperLocker, timeout time.Duration) *Reaper {
	return &Reaper{
		ledger:  ledger,
		orders:  orders,
		locker:  locker,
		timeout: timeout,
		logger:  util.GetLogger(),
	}
}

// Start ticks until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	if r.locker != nil {
		ok, err := r.locker.AcquireLock(ctx, reaperLockKey, reaperLockTTL)
		if err != nil {
			r.logger.Warn("Reaper lock unavailable, proceeding unguarded", zap.Error(err))
		} else if !ok {
			return
		} else {
			defer func() {
				if err := r.locker.ReleaseLock(ctx, reaperLockKey); err != nil {
					r.logger.Warn("Failed to release reaper lock", zap.Error(err))
				}
			}()
		}
	}

	cutoff := time.Now().Add(-r.timeout)
	ids, err := r.ledger.GetStalePendingOrderIDs(ctx, cutoff, reaperBatch)
	if err != nil {
		r.logger.Error("Failed to list stale pending orders", zap.Error(err))
		return
	}

	for _, id := range ids {
		if _, err := r.orders.UpdateStatus(ctx, id, models.OrderStatusCancelled); err != nil {
			r.logger.Error("Failed to cancel stale order",
				zap.Int64("order_id", id), zap.Error(err))
			continue
		}
		r.logger.Info("Cancelled stale pending order", zap.Int64("order_id", id))
	}
}
