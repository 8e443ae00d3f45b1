package persistence

import (
	"context"

	"github.com/arcade/backend/internal/domain/license"
	"github.com/arcade/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormApplicationRepository implements license.ApplicationRepository using GORM
type GormApplicationRepository struct {
	db *gorm.DB
}

// NewGormApplicationRepository creates a new GormApplicationRepository
func NewGormApplicationRepository(db *gorm.DB) *GormApplicationRepository {
	return &GormApplicationRepository{db: db}
}

// Create inserts a new application
func (r *GormApplicationRepository) Create(ctx context.Context, app *license.Application) error {
	return TranslateError("create application", r.db.WithContext(ctx).Create(models.ApplicationModelFromDomain(app)).Error)
}

// FindByCode finds an application by its code
func (r *GormApplicationRepository) FindByCode(ctx context.Context, code string) (*license.Application, error) {
	var m models.ApplicationModel
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&m).Error; err != nil {
		return nil, TranslateError("find application", err)
	}
	return m.ToDomain(), nil
}

// GormAuthorizationRepository implements license.AuthorizationRepository using GORM
type GormAuthorizationRepository struct {
	db *gorm.DB
}

// NewGormAuthorizationRepository creates a new GormAuthorizationRepository
func NewGormAuthorizationRepository(db *gorm.DB) *GormAuthorizationRepository {
	return &GormAuthorizationRepository{db: db}
}

// Create inserts a new grant
func (r *GormAuthorizationRepository) Create(ctx context.Context, auth *license.Authorization) error {
	return TranslateError("create authorization", r.db.WithContext(ctx).Create(models.ApplicationAuthorizationModelFromDomain(auth)).Error)
}

// FindByOperatorAndApplication finds the grant of operatorID for applicationID
func (r *GormAuthorizationRepository) FindByOperatorAndApplication(ctx context.Context, operatorID string, applicationID uuid.UUID) (*license.Authorization, error) {
	var m models.ApplicationAuthorizationModel
	if err := r.db.WithContext(ctx).
		Where("operator_id = ? AND application_id = ?", operatorID, applicationID).
		First(&m).Error; err != nil {
		return nil, TranslateError("find authorization", err)
	}
	return m.ToDomain(), nil
}

var (
	_ license.ApplicationRepository   = (*GormApplicationRepository)(nil)
	_ license.AuthorizationRepository = (*GormAuthorizationRepository)(nil)
)
