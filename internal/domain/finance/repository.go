package finance

import (
	"context"
	"time"
)

// RechargeOrderRepository persists recharge orders
type RechargeOrderRepository interface {
	Create(ctx context.Context, order *RechargeOrder) error
	// Save writes the order if its stored version equals order.Version and
	// bumps the version; returns shared.ErrConcurrencyConflict otherwise.
	Save(ctx context.Context, order *RechargeOrder) error
	FindByOrderNo(ctx context.Context, orderNo string) (*RechargeOrder, error)
	// FindByOrderNoForUpdate locks the order row until the transaction ends
	FindByOrderNoForUpdate(ctx context.Context, orderNo string) (*RechargeOrder, error)
	// FindReconcilable returns PENDING/PROCESSING orders created before cutoff, oldest first
	FindReconcilable(ctx context.Context, createdBefore time.Time, limit int) ([]*RechargeOrder, error)
}
