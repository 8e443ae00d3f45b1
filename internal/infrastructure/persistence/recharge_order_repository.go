package persistence

import (
	"context"
	"time"

	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormRechargeOrderRepository implements finance.RechargeOrderRepository using GORM
type GormRechargeOrderRepository struct {
	db *gorm.DB
}

// NewGormRechargeOrderRepository creates a new GormRechargeOrderRepository
func NewGormRechargeOrderRepository(db *gorm.DB) *GormRechargeOrderRepository {
	return &GormRechargeOrderRepository{db: db}
}

// Create inserts a new order
func (r *GormRechargeOrderRepository) Create(ctx context.Context, order *finance.RechargeOrder) error {
	err := r.db.WithContext(ctx).Create(models.RechargeOrderModelFromDomain(order)).Error
	if IsUniqueViolation(err) {
		return shared.ErrConcurrencyConflict
	}
	return TranslateError("create recharge order", err)
}

// Save writes every mutable column guarded by the version column
func (r *GormRechargeOrderRepository) Save(ctx context.Context, order *finance.RechargeOrder) error {
	err := UpdateWithVersion(ctx, r.db, &models.RechargeOrderModel{}, "order_no", order.OrderNo, order.Version, map[string]any{
		"status":                 order.Status,
		"gateway_order_id":       order.GatewayOrderID,
		"gateway_transaction_id": order.GatewayTransactionID,
		"paid_at":                order.PaidAt,
		"unresolved_polls":       order.UnresolvedPolls,
		"last_error":             order.LastError,
		"updated_at":             order.UpdatedAt,
	})
	if err != nil {
		return err
	}
	order.Version = order.NextVersion()
	return nil
}

// FindByOrderNo finds an order without locking it
func (r *GormRechargeOrderRepository) FindByOrderNo(ctx context.Context, orderNo string) (*finance.RechargeOrder, error) {
	var m models.RechargeOrderModel
	if err := r.db.WithContext(ctx).Where("order_no = ?", orderNo).First(&m).Error; err != nil {
		return nil, TranslateError("find recharge order", err)
	}
	return m.ToDomain(), nil
}

// FindByOrderNoForUpdate finds an order and locks its row until the transaction ends
func (r *GormRechargeOrderRepository) FindByOrderNoForUpdate(ctx context.Context, orderNo string) (*finance.RechargeOrder, error) {
	var m models.RechargeOrderModel
	if err := LockForUpdate(ctx, r.db, &m, "order_no = ?", orderNo); err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindReconcilable returns non-terminal orders created before cutoff, oldest first
func (r *GormRechargeOrderRepository) FindReconcilable(ctx context.Context, createdBefore time.Time, limit int) ([]*finance.RechargeOrder, error) {
	var rows []models.RechargeOrderModel
	q := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", finance.ReconcilableStatuses, createdBefore).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, TranslateError("find reconcilable orders", err)
	}
	out := make([]*finance.RechargeOrder, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var _ finance.RechargeOrderRepository = (*GormRechargeOrderRepository)(nil)
