// Package uow defines the unit-of-work boundary shared by the billing and
// settlement paths.
package uow

import (
	"context"

	"github.com/arcade/backend/internal/domain/billing"
	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/domain/operator"
)

// TransactionScope runs a function inside one database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories exposes the repositories that may be written
// while an operator balance is locked. All of them share the same transaction.
//
// Lock order inside one transaction is fixed: recharge order row first, then
// account rows in ascending id order.
type TransactionalRepositories interface {
	Accounts() operator.AccountRepository
	Sessions() billing.SessionRepository
	Ledger() billing.LedgerRepository
	RechargeOrders() finance.RechargeOrderRepository
}

// NoOpTransactionScope runs the function against plain repositories without a transaction.
// Useful for unit tests with in-memory fakes.
type NoOpTransactionScope struct {
	accounts operator.AccountRepository
	sessions billing.SessionRepository
	ledger   billing.LedgerRepository
	orders   finance.RechargeOrderRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	accounts operator.AccountRepository,
	sessions billing.SessionRepository,
	ledger billing.LedgerRepository,
	orders finance.RechargeOrderRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		accounts: accounts,
		sessions: sessions,
		ledger:   ledger,
		orders:   orders,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Accounts returns the account repository.
func (s *NoOpTransactionScope) Accounts() operator.AccountRepository { return s.accounts }

// Sessions returns the session repository.
func (s *NoOpTransactionScope) Sessions() billing.SessionRepository { return s.sessions }

// Ledger returns the ledger repository.
func (s *NoOpTransactionScope) Ledger() billing.LedgerRepository { return s.ledger }

// RechargeOrders returns the recharge order repository.
func (s *NoOpTransactionScope) RechargeOrders() finance.RechargeOrderRepository { return s.orders }

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
