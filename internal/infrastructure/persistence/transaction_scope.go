package persistence

import (
	"context"

	"github.com/arcade/backend/internal/application/uow"
	"github.com/arcade/backend/internal/domain/billing"
	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/domain/operator"
	"gorm.io/gorm"
)

// GormTransactionScope implements uow.TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed. A failed begin or
// commit is translated so retryable failures surface as *shared.TransientError.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos uow.TransactionalRepositories) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&gormTransactionalRepositories{tx: tx})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return TranslateError("commit", err)
	}
	return err
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// Accounts returns the account repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Accounts() operator.AccountRepository {
	return NewGormAccountRepository(r.tx)
}

// Sessions returns the session repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Sessions() billing.SessionRepository {
	return NewGormSessionRepository(r.tx)
}

// Ledger returns the ledger repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Ledger() billing.LedgerRepository {
	return NewGormLedgerRepository(r.tx)
}

// RechargeOrders returns the recharge order repository scoped to the current transaction.
func (r *gormTransactionalRepositories) RechargeOrders() finance.RechargeOrderRepository {
	return NewGormRechargeOrderRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ uow.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ uow.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
