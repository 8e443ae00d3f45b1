package persistence

import (
	"context"
	"fmt"

	"github.com/arcade/backend/internal/domain/billing"
	"github.com/arcade/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSessionRepository implements billing.SessionRepository using GORM
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new GormSessionRepository
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// Create inserts the session. A unique-index hit on session_id is reported as
// billing.ErrSessionConflict; the caller rolls back and replays.
func (r *GormSessionRepository) Create(ctx context.Context, session *billing.UsageSession) error {
	err := r.db.WithContext(ctx).Create(models.UsageSessionModelFromDomain(session)).Error
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", billing.ErrSessionConflict, session.SessionID)
	}
	return TranslateError("create session", err)
}

// FindBySessionID finds a committed session
func (r *GormSessionRepository) FindBySessionID(ctx context.Context, sessionID string) (*billing.UsageSession, error) {
	var m models.UsageSessionModel
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&m).Error; err != nil {
		return nil, TranslateError("find session", err)
	}
	return m.ToDomain(), nil
}

// CountBySessionID counts rows carrying sessionID (0 or 1)
func (r *GormSessionRepository) CountBySessionID(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UsageSessionModel{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, TranslateError("count sessions", err)
}

// GormLedgerRepository implements billing.LedgerRepository using GORM
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GormLedgerRepository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// Create appends an entry
func (r *GormLedgerRepository) Create(ctx context.Context, entry *billing.LedgerEntry) error {
	return TranslateError("create ledger entry", r.db.WithContext(ctx).Create(models.LedgerEntryModelFromDomain(entry)).Error)
}

// FindByReference lists entries caused by one session or order
func (r *GormLedgerRepository) FindByReference(ctx context.Context, referenceType, referenceID string) ([]*billing.LedgerEntry, error) {
	var rows []models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, TranslateError("find ledger entries", err)
	}
	return ledgerToDomain(rows), nil
}

// ListByOperator lists the newest entries of an operator
func (r *GormLedgerRepository) ListByOperator(ctx context.Context, operatorID string, limit int) ([]*billing.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Where("operator_id = ?", operatorID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, TranslateError("list ledger entries", err)
	}
	return ledgerToDomain(rows), nil
}

func ledgerToDomain(rows []models.LedgerEntryModel) []*billing.LedgerEntry {
	out := make([]*billing.LedgerEntry, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

var (
	_ billing.SessionRepository = (*GormSessionRepository)(nil)
	_ billing.LedgerRepository  = (*GormLedgerRepository)(nil)
)
