package models

import (
	"time"

	"github.com/arcade/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel provides common persistence fields for uuid-keyed records.
// It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ToDomain converts BaseModel to domain BaseEntity
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// FromDomainBaseEntity populates BaseModel from domain BaseEntity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// VersionedModel carries the optimistic-lock column compared by UpdateWithVersion
type VersionedModel struct {
	Version int `gorm:"not null;default:1"`
}

// ToDomain converts VersionedModel to domain Versioned
func (m VersionedModel) ToDomain() shared.Versioned {
	return shared.Versioned{Version: m.Version}
}

// AllModels lists every model, in dependency order, for AutoMigrate in tests
func AllModels() []any {
	return []any{
		&OperatorAccountModel{},
		&SiteModel{},
		&ApplicationModel{},
		&ApplicationAuthorizationModel{},
		&UsageSessionModel{},
		&LedgerEntryModel{},
		&RechargeOrderModel{},
	}
}
