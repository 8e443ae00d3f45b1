package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// GormOpenOrdersProvider implements OpenOrdersProvider using GORM.
// It queries the recharge_orders table directly.
type GormOpenOrdersProvider struct {
	db *gorm.DB
}

// NewGormOpenOrdersProvider creates a new GormOpenOrdersProvider.
func NewGormOpenOrdersProvider(db *gorm.DB) *GormOpenOrdersProvider {
	return &GormOpenOrdersProvider{db: db}
}

// CountOpenOrdersByStatus returns the number of PENDING and PROCESSING orders.
// Statuses with no orders are reported as zero so gauges drop back down.
func (p *GormOpenOrdersProvider) CountOpenOrdersByStatus(ctx context.Context) (map[string]int64, error) {
	type result struct {
		Status string `gorm:"column:status"`
		Count  int64  `gorm:"column:count"`
	}

	var results []result
	err := p.db.WithContext(ctx).
		Table("recharge_orders").
		Select("status, COUNT(*) as count").
		Where("status IN ?", []string{"PENDING", "PROCESSING"}).
		Group("status").
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	m := map[string]int64{"PENDING": 0, "PROCESSING": 0}
	for _, r := range results {
		m[r.Status] = r.Count
	}
	return m, nil
}
