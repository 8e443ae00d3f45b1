package persistence

import (
	"context"
	"errors"

	"github.com/arcade/backend/internal/domain/operator"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormAccountRepository implements operator.AccountRepository using GORM
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GormAccountRepository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// Create inserts a new account
func (r *GormAccountRepository) Create(ctx context.Context, account *operator.Account) error {
	m := models.OperatorAccountModelFromDomain(account)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrConcurrencyConflict
		}
		return TranslateError("create account", err)
	}
	return nil
}

// FindByID finds an account without locking it
func (r *GormAccountRepository) FindByID(ctx context.Context, id string) (*operator.Account, error) {
	var m models.OperatorAccountModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, TranslateError("find account", err)
	}
	return m.ToDomain(), nil
}

// FindByIDForUpdate finds an account and locks its row until the transaction ends
func (r *GormAccountRepository) FindByIDForUpdate(ctx context.Context, id string) (*operator.Account, error) {
	var m models.OperatorAccountModel
	if err := LockForUpdate(ctx, r.db, &m, "id = ?", id); err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindByIDsForUpdate locks several accounts in ascending id order
func (r *GormAccountRepository) FindByIDsForUpdate(ctx context.Context, ids []string) ([]*operator.Account, error) {
	var rows []models.OperatorAccountModel
	if err := LockOrdered(ctx, r.db, &rows, "id", ids); err != nil {
		return nil, err
	}
	out := make([]*operator.Account, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// UpdateBalance compare-and-swaps the balance on the version column
func (r *GormAccountRepository) UpdateBalance(ctx context.Context, account *operator.Account) error {
	err := UpdateWithVersion(ctx, r.db, &models.OperatorAccountModel{}, "id", account.ID, account.Version, map[string]any{
		"balance":    account.Balance,
		"updated_at": account.UpdatedAt,
	})
	if err != nil {
		return err
	}
	account.Version = account.NextVersion()
	return nil
}

// UpdateAPIKeyHash replaces the stored credential hash
func (r *GormAccountRepository) UpdateAPIKeyHash(ctx context.Context, id, hash string) error {
	result := r.db.WithContext(ctx).Model(&models.OperatorAccountModel{}).
		Where("id = ?", id).
		Update("api_key_hash", hash)
	if result.Error != nil {
		return TranslateError("update api key", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GormSiteRepository implements operator.SiteRepository using GORM
type GormSiteRepository struct {
	db *gorm.DB
}

// NewGormSiteRepository creates a new GormSiteRepository
func NewGormSiteRepository(db *gorm.DB) *GormSiteRepository {
	return &GormSiteRepository{db: db}
}

// Create inserts a new site
func (r *GormSiteRepository) Create(ctx context.Context, site *operator.Site) error {
	return TranslateError("create site", r.db.WithContext(ctx).Create(models.SiteModelFromDomain(site)).Error)
}

// FindByID finds a site by its ID
func (r *GormSiteRepository) FindByID(ctx context.Context, id string) (*operator.Site, error) {
	var m models.SiteModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, TranslateError("find site", err)
	}
	return m.ToDomain(), nil
}

var (
	_ operator.AccountRepository = (*GormAccountRepository)(nil)
	_ operator.SiteRepository    = (*GormSiteRepository)(nil)
)
