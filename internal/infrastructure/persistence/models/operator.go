package models

import (
	"time"

	"github.com/arcade/backend/internal/domain/operator"
	"github.com/shopspring/decimal"
)

// OperatorAccountModel is the persistence model for the operator Account aggregate.
type OperatorAccountModel struct {
	ID                  string               `gorm:"type:varchar(64);primary_key"`
	Name                string               `gorm:"type:varchar(200);not null"`
	Balance             decimal.Decimal      `gorm:"type:decimal(18,2);not null;default:0"`
	IsLocked            bool                 `gorm:"not null;default:false"`
	IsActive            bool                 `gorm:"not null;default:true"`
	Tier                operator.AccountTier `gorm:"type:varchar(20);not null;default:'STANDARD'"`
	APIKeyHash          string               `gorm:"type:varchar(100)"`
	LowBalanceThreshold *decimal.Decimal     `gorm:"type:decimal(18,2)"`
	VersionedModel
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OperatorAccountModel) TableName() string {
	return "operator_accounts"
}

// ToDomain converts the persistence model to a domain Account
func (m *OperatorAccountModel) ToDomain() *operator.Account {
	return &operator.Account{
		ID:                  m.ID,
		Name:                m.Name,
		Balance:             m.Balance,
		IsLocked:            m.IsLocked,
		IsActive:            m.IsActive,
		Tier:                m.Tier,
		APIKeyHash:          m.APIKeyHash,
		LowBalanceThreshold: m.LowBalanceThreshold,
		Versioned:           m.VersionedModel.ToDomain(),
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Account
func (m *OperatorAccountModel) FromDomain(a *operator.Account) {
	m.ID = a.ID
	m.Name = a.Name
	m.Balance = a.Balance
	m.IsLocked = a.IsLocked
	m.IsActive = a.IsActive
	m.Tier = a.Tier
	m.APIKeyHash = a.APIKeyHash
	m.LowBalanceThreshold = a.LowBalanceThreshold
	m.Version = a.Version
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
}

// OperatorAccountModelFromDomain creates a new persistence model from a domain Account
func OperatorAccountModelFromDomain(a *operator.Account) *OperatorAccountModel {
	m := &OperatorAccountModel{}
	m.FromDomain(a)
	return m
}

// SiteModel is the persistence model for Site.
type SiteModel struct {
	ID         string    `gorm:"type:varchar(64);primary_key"`
	OperatorID string    `gorm:"type:varchar(64);not null;index"`
	Name       string    `gorm:"type:varchar(200);not null"`
	Address    string    `gorm:"type:varchar(500)"`
	IsActive   bool      `gorm:"not null;default:true"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SiteModel) TableName() string {
	return "sites"
}

// ToDomain converts the persistence model to a domain Site
func (m *SiteModel) ToDomain() *operator.Site {
	return &operator.Site{
		ID:         m.ID,
		OperatorID: m.OperatorID,
		Name:       m.Name,
		Address:    m.Address,
		IsActive:   m.IsActive,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// SiteModelFromDomain creates a new persistence model from a domain Site
func SiteModelFromDomain(s *operator.Site) *SiteModel {
	return &SiteModel{
		ID:         s.ID,
		OperatorID: s.OperatorID,
		Name:       s.Name,
		Address:    s.Address,
		IsActive:   s.IsActive,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}
