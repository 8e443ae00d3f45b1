package models

import (
	"time"

	"github.com/arcade/backend/internal/domain/finance"
	"github.com/shopspring/decimal"
)

// RechargeOrderModel is the persistence model for the RechargeOrder aggregate.
type RechargeOrderModel struct {
	BaseModel
	OrderNo              string                      `gorm:"type:varchar(40);not null;uniqueIndex"`
	OperatorID           string                      `gorm:"type:varchar(64);not null;index"`
	Amount               decimal.Decimal             `gorm:"type:decimal(18,2);not null"`
	GatewayType          finance.PaymentGatewayType  `gorm:"type:varchar(20);not null"`
	GatewayOrderID       string                      `gorm:"type:varchar(100)"`
	GatewayTransactionID string                      `gorm:"type:varchar(100)"`
	Status               finance.RechargeOrderStatus `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_recharge_orders_status_created,priority:1"`
	ExpiresAt            time.Time                   `gorm:"not null"`
	PaidAt               *time.Time
	UnresolvedPolls      int    `gorm:"not null;default:0"`
	LastError            string `gorm:"type:varchar(500)"`
	VersionedModel
}

// TableName returns the table name for GORM
func (RechargeOrderModel) TableName() string {
	return "recharge_orders"
}

// ToDomain converts the persistence model to a domain RechargeOrder
func (m *RechargeOrderModel) ToDomain() *finance.RechargeOrder {
	return &finance.RechargeOrder{
		BaseEntity:           m.BaseModel.ToDomain(),
		OrderNo:              m.OrderNo,
		OperatorID:           m.OperatorID,
		Amount:               m.Amount,
		GatewayType:          m.GatewayType,
		GatewayOrderID:       m.GatewayOrderID,
		GatewayTransactionID: m.GatewayTransactionID,
		Status:               m.Status,
		ExpiresAt:            m.ExpiresAt,
		PaidAt:               m.PaidAt,
		UnresolvedPolls:      m.UnresolvedPolls,
		LastError:            m.LastError,
		Versioned:            m.VersionedModel.ToDomain(),
	}
}

// FromDomain populates the persistence model from a domain RechargeOrder
func (m *RechargeOrderModel) FromDomain(o *finance.RechargeOrder) {
	m.FromDomainBaseEntity(o.BaseEntity)
	m.OrderNo = o.OrderNo
	m.OperatorID = o.OperatorID
	m.Amount = o.Amount
	m.GatewayType = o.GatewayType
	m.GatewayOrderID = o.GatewayOrderID
	m.GatewayTransactionID = o.GatewayTransactionID
	m.Status = o.Status
	m.ExpiresAt = o.ExpiresAt
	m.PaidAt = o.PaidAt
	m.UnresolvedPolls = o.UnresolvedPolls
	m.LastError = o.LastError
	m.Version = o.Version
}

// RechargeOrderModelFromDomain creates a new persistence model from a domain RechargeOrder
func RechargeOrderModelFromDomain(o *finance.RechargeOrder) *RechargeOrderModel {
	m := &RechargeOrderModel{}
	m.FromDomain(o)
	return m
}
