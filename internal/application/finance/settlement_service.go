// Package finance settles recharge orders from gateway callbacks and from
// the reconciliation sweep, and creates new orders.
package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arcade/backend/internal/application/uow"
	"github.com/arcade/backend/internal/domain/billing"
	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SettlementOutcome describes what a settlement attempt did
type SettlementOutcome string

const (
	// SettlementCredited means the order became SUCCESS and the balance was credited
	SettlementCredited SettlementOutcome = "credited"
	// SettlementFailed means the order became FAILED
	SettlementFailed SettlementOutcome = "failed"
	// SettlementAlreadyTerminal means nothing changed because the order was already settled
	SettlementAlreadyTerminal SettlementOutcome = "already_terminal"
	// SettlementRejected means the request was refused and nothing changed
	SettlementRejected SettlementOutcome = "rejected"
)

// SettleRequest is a definitive payment outcome for one order
type SettleRequest struct {
	OrderNo              string
	Paid                 bool
	PaidAmount           decimal.Decimal
	GatewayTransactionID string
	PaidAt               time.Time
	FailureReason        string
	// Source is telemetry.SettlementSourceCallback or telemetry.SettlementSourceReconciliation
	Source string
}

// SettlementResult reports the order as it stands after settlement
type SettlementResult struct {
	Order         *finance.RechargeOrder
	Outcome       SettlementOutcome
	LedgerEntryID string
	BalanceAfter  decimal.Decimal
}

// SettlementService applies a payment outcome to an order exactly once.
// Callbacks and reconciliation both go through it, so an order that is
// settled by one path is a no-op for the other.
type SettlementService struct {
	scope   uow.TransactionScope
	metrics *telemetry.BillingMetrics
	clock   shared.Clock
	logger  *zap.Logger
}

// NewSettlementService creates a SettlementService
func NewSettlementService(scope uow.TransactionScope, metrics *telemetry.BillingMetrics, clock shared.Clock, logger *zap.Logger) *SettlementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementService{
		scope:   scope,
		metrics: metrics,
		clock:   clock,
		logger:  logger,
	}
}

// Settle locks the order row, then (for a payment) the account row, and in one
// transaction marks the order and credits the balance with a RECHARGE ledger entry.
//
// A terminal order is left untouched and reported as SettlementAlreadyTerminal.
// A paid amount that differs from the order amount returns finance.ErrAmountMismatch
// with the order unchanged.
func (s *SettlementService) Settle(ctx context.Context, req SettleRequest) (*SettlementResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "finance", "settle",
		telemetry.SpanAttrOrderNumber.String(req.OrderNo),
		attribute.String("settlement.source", req.Source),
		attribute.Bool("settlement.paid", req.Paid),
	)
	defer span.End()

	var result *SettlementResult
	err := s.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		order, err := repos.RechargeOrders().FindByOrderNoForUpdate(ctx, req.OrderNo)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return finance.ErrOrderNotFound.WithDetails(map[string]any{"order_no": req.OrderNo})
			}
			return fmt.Errorf("lock order %s: %w", req.OrderNo, err)
		}

		if order.IsTerminal() {
			result = &SettlementResult{Order: order, Outcome: SettlementAlreadyTerminal}
			return nil
		}

		now := s.clock.Now().UTC().Truncate(time.Microsecond)
		if !req.Paid {
			if err := order.MarkFailed(req.FailureReason, now); err != nil {
				return err
			}
			if err := repos.RechargeOrders().Save(ctx, order); err != nil {
				return fmt.Errorf("save order %s: %w", order.OrderNo, err)
			}
			result = &SettlementResult{Order: order, Outcome: SettlementFailed}
			return nil
		}

		if !order.MatchesAmount(req.PaidAmount) {
			return finance.ErrAmountMismatch.WithDetails(map[string]any{
				"order_no":     order.OrderNo,
				"order_amount": order.Amount.StringFixed(billing.MoneyScale),
				"paid_amount":  req.PaidAmount.StringFixed(billing.MoneyScale),
			})
		}

		account, err := repos.Accounts().FindByIDForUpdate(ctx, order.OperatorID)
		if err != nil {
			return fmt.Errorf("lock account %s: %w", order.OperatorID, err)
		}

		paidAt := req.PaidAt
		if paidAt.IsZero() {
			paidAt = now
		}
		if err := order.MarkSuccess(req.GatewayTransactionID, paidAt.UTC(), now); err != nil {
			return err
		}

		before, after, err := account.Credit(order.Amount, now)
		if err != nil {
			return err
		}
		entry, err := billing.NewLedgerEntry(account.ID, billing.LedgerEntryTypeRecharge, order.Amount, before, after,
			billing.ReferenceTypeRechargeOrder, order.OrderNo,
			fmt.Sprintf("recharge via %s", order.GatewayType), now)
		if err != nil {
			return err
		}
		if err := repos.Ledger().Create(ctx, entry); err != nil {
			return fmt.Errorf("create ledger entry: %w", err)
		}
		if err := repos.Accounts().UpdateBalance(ctx, account); err != nil {
			return err
		}
		if err := repos.RechargeOrders().Save(ctx, order); err != nil {
			return fmt.Errorf("save order %s: %w", order.OrderNo, err)
		}

		result = &SettlementResult{
			Order:         order,
			Outcome:       SettlementCredited,
			LedgerEntryID: entry.ID.String(),
			BalanceAfter:  after,
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if errors.Is(err, finance.ErrAmountMismatch) {
			s.metrics.RecordSettlement(ctx, req.Source, string(SettlementRejected))
		}
		return nil, err
	}

	s.metrics.RecordSettlement(ctx, req.Source, string(result.Outcome))
	telemetry.SetAttributes(span, telemetry.SpanAttrOrderStatus.String(result.Order.Status.String()))

	switch result.Outcome {
	case SettlementCredited:
		s.logger.Info("Recharge order settled",
			zap.String("order_no", result.Order.OrderNo),
			zap.String("operator_id", result.Order.OperatorID),
			zap.String("amount", result.Order.Amount.StringFixed(billing.MoneyScale)),
			zap.String("balance_after", result.BalanceAfter.StringFixed(billing.MoneyScale)),
			zap.String("source", req.Source))
	case SettlementFailed:
		s.logger.Info("Recharge order failed",
			zap.String("order_no", result.Order.OrderNo),
			zap.String("reason", req.FailureReason),
			zap.String("source", req.Source))
	case SettlementAlreadyTerminal:
		s.logger.Debug("Recharge order already settled",
			zap.String("order_no", result.Order.OrderNo),
			zap.String("status", result.Order.Status.String()),
			zap.String("source", req.Source))
	}
	return result, nil
}
