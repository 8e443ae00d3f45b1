package models

import (
	"time"

	"github.com/arcade/backend/internal/domain/license"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApplicationModel is the persistence model for a licensable title.
type ApplicationModel struct {
	BaseModel
	Code       string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	Name       string          `gorm:"type:varchar(200);not null"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	MinPlayers int             `gorm:"not null;default:1"`
	MaxPlayers int             `gorm:"not null"`
	IsActive   bool            `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (ApplicationModel) TableName() string {
	return "applications"
}

// ToDomain converts the persistence model to a domain Application
func (m *ApplicationModel) ToDomain() *license.Application {
	return &license.Application{
		BaseEntity: m.BaseModel.ToDomain(),
		Code:       m.Code,
		Name:       m.Name,
		UnitPrice:  m.UnitPrice,
		MinPlayers: m.MinPlayers,
		MaxPlayers: m.MaxPlayers,
		IsActive:   m.IsActive,
	}
}

// ApplicationModelFromDomain creates a new persistence model from a domain Application
func ApplicationModelFromDomain(a *license.Application) *ApplicationModel {
	m := &ApplicationModel{
		Code:       a.Code,
		Name:       a.Name,
		UnitPrice:  a.UnitPrice,
		MinPlayers: a.MinPlayers,
		MaxPlayers: a.MaxPlayers,
		IsActive:   a.IsActive,
	}
	m.FromDomainBaseEntity(a.BaseEntity)
	return m
}

// ApplicationAuthorizationModel is the persistence model for an operator's entitlement.
type ApplicationAuthorizationModel struct {
	BaseModel
	OperatorID    string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_authorization_operator_app,priority:1"`
	ApplicationID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_authorization_operator_app,priority:2"`
	IsActive      bool       `gorm:"not null;default:true"`
	GrantedAt     time.Time  `gorm:"not null"`
	ExpiresAt     *time.Time `gorm:"index"`
}

// TableName returns the table name for GORM
func (ApplicationAuthorizationModel) TableName() string {
	return "application_authorizations"
}

// ToDomain converts the persistence model to a domain Authorization
func (m *ApplicationAuthorizationModel) ToDomain() *license.Authorization {
	return &license.Authorization{
		BaseEntity:    m.BaseModel.ToDomain(),
		OperatorID:    m.OperatorID,
		ApplicationID: m.ApplicationID,
		IsActive:      m.IsActive,
		GrantedAt:     m.GrantedAt,
		ExpiresAt:     m.ExpiresAt,
	}
}

// ApplicationAuthorizationModelFromDomain creates a new persistence model from a domain Authorization
func ApplicationAuthorizationModelFromDomain(a *license.Authorization) *ApplicationAuthorizationModel {
	m := &ApplicationAuthorizationModel{
		OperatorID:    a.OperatorID,
		ApplicationID: a.ApplicationID,
		IsActive:      a.IsActive,
		GrantedAt:     a.GrantedAt,
		ExpiresAt:     a.ExpiresAt,
	}
	m.FromDomainBaseEntity(a.BaseEntity)
	return m
}
