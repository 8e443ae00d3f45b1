package models

import (
	"time"

	"github.com/arcade/backend/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageSessionModel is the persistence model for a billed session.
// The unique index on session_id is what makes billing at-most-once.
type UsageSessionModel struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key"`
	SessionID       string          `gorm:"type:varchar(128);not null;uniqueIndex:uq_usage_sessions_session_id"`
	OperatorID      string          `gorm:"type:varchar(64);not null;index"`
	SiteID          string          `gorm:"type:varchar(64);not null"`
	ApplicationID   uuid.UUID       `gorm:"type:uuid;not null"`
	ApplicationCode string          `gorm:"type:varchar(64);not null"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PlayerCount     int             `gorm:"not null"`
	TotalCost       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	BalanceAfter    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	ClientIP        string          `gorm:"type:varchar(64)"`
	UserAgent       string          `gorm:"type:varchar(255)"`
	AuthorizedAt    time.Time       `gorm:"not null"`
	CreatedAt       time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (UsageSessionModel) TableName() string {
	return "usage_sessions"
}

// ToDomain converts the persistence model to a domain UsageSession
func (m *UsageSessionModel) ToDomain() *billing.UsageSession {
	return &billing.UsageSession{
		ID:              m.ID,
		SessionID:       m.SessionID,
		OperatorID:      m.OperatorID,
		SiteID:          m.SiteID,
		ApplicationID:   m.ApplicationID,
		ApplicationCode: m.ApplicationCode,
		UnitPrice:       m.UnitPrice,
		PlayerCount:     m.PlayerCount,
		TotalCost:       m.TotalCost,
		BalanceAfter:    m.BalanceAfter,
		ClientIP:        m.ClientIP,
		UserAgent:       m.UserAgent,
		AuthorizedAt:    m.AuthorizedAt,
		CreatedAt:       m.CreatedAt,
	}
}

// UsageSessionModelFromDomain creates a new persistence model from a domain UsageSession
func UsageSessionModelFromDomain(s *billing.UsageSession) *UsageSessionModel {
	return &UsageSessionModel{
		ID:              s.ID,
		SessionID:       s.SessionID,
		OperatorID:      s.OperatorID,
		SiteID:          s.SiteID,
		ApplicationID:   s.ApplicationID,
		ApplicationCode: s.ApplicationCode,
		UnitPrice:       s.UnitPrice,
		PlayerCount:     s.PlayerCount,
		TotalCost:       s.TotalCost,
		BalanceAfter:    s.BalanceAfter,
		ClientIP:        s.ClientIP,
		UserAgent:       s.UserAgent,
		AuthorizedAt:    s.AuthorizedAt,
		CreatedAt:       s.CreatedAt,
	}
}

// LedgerEntryModel is the persistence model for an immutable ledger entry.
type LedgerEntryModel struct {
	ID            uuid.UUID               `gorm:"type:uuid;primary_key"`
	OperatorID    string                  `gorm:"type:varchar(64);not null;index:idx_ledger_operator_created,priority:1"`
	Type          billing.LedgerEntryType `gorm:"type:varchar(20);not null"`
	Amount        decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	BalanceBefore decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	BalanceAfter  decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	ReferenceType string                  `gorm:"type:varchar(30);not null;index:idx_ledger_reference,priority:1"`
	ReferenceID   string                  `gorm:"type:varchar(128);not null;index:idx_ledger_reference,priority:2"`
	Description   string                  `gorm:"type:varchar(255)"`
	CreatedAt     time.Time               `gorm:"not null;index:idx_ledger_operator_created,priority:2"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

// ToDomain converts the persistence model to a domain LedgerEntry
func (m *LedgerEntryModel) ToDomain() *billing.LedgerEntry {
	return &billing.LedgerEntry{
		ID:            m.ID,
		OperatorID:    m.OperatorID,
		Type:          m.Type,
		Amount:        m.Amount,
		BalanceBefore: m.BalanceBefore,
		BalanceAfter:  m.BalanceAfter,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		Description:   m.Description,
		CreatedAt:     m.CreatedAt,
	}
}

// LedgerEntryModelFromDomain creates a new persistence model from a domain LedgerEntry
func LedgerEntryModelFromDomain(e *billing.LedgerEntry) *LedgerEntryModel {
	return &LedgerEntryModel{
		ID:            e.ID,
		OperatorID:    e.OperatorID,
		Type:          e.Type,
		Amount:        e.Amount,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		ReferenceType: e.ReferenceType,
		ReferenceID:   e.ReferenceID,
		Description:   e.Description,
		CreatedAt:     e.CreatedAt,
	}
}
