package finance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arcade/backend/internal/application/uow"
	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReconcileOutcome is what one poll did to an order
type ReconcileOutcome string

const (
	ReconcileSettled    ReconcileOutcome = "settled"
	ReconcileFailed     ReconcileOutcome = "failed"
	ReconcileExpired    ReconcileOutcome = "expired"
	ReconcilePending    ReconcileOutcome = "pending"
	ReconcileUnresolved ReconcileOutcome = "unresolved"
	ReconcileAnomaly    ReconcileOutcome = "anomaly"
	ReconcileSkipped    ReconcileOutcome = "skipped"
	ReconcileError      ReconcileOutcome = "error"
)

// ReconciliationConfig configures the sweep
type ReconciliationConfig struct {
	// MinAge leaves young orders to their callbacks
	MinAge time.Duration
	// BatchSize caps the orders examined per sweep
	BatchSize int
	// Workers bounds concurrent gateway queries
	Workers int
	// QueryTimeout bounds one gateway query
	QueryTimeout time.Duration
	// AnomalyThreshold is the number of unresolved polls before ANOMALY
	AnomalyThreshold int
}

// DefaultReconciliationConfig returns the production defaults
func DefaultReconciliationConfig() ReconciliationConfig {
	return ReconciliationConfig{
		MinAge:           5 * time.Minute,
		BatchSize:        100,
		Workers:          4,
		QueryTimeout:     10 * time.Second,
		AnomalyThreshold: finance.DefaultAnomalyThreshold,
	}
}

// ReconciliationSummary counts the outcomes of one sweep
type ReconciliationSummary struct {
	Examined int
	Outcomes map[ReconcileOutcome]int
	Panics   int
	Duration time.Duration
}

// Count returns the number of orders with outcome o
func (s *ReconciliationSummary) Count(o ReconcileOutcome) int {
	return s.Outcomes[o]
}

// ReconciliationService polls gateways for orders whose callback never arrived
type ReconciliationService struct {
	scope      uow.TransactionScope
	orders     finance.RechargeOrderRepository
	gateways   finance.PaymentGatewayRegistry
	settlement *SettlementService
	alerter    *AnomalyAlerter
	metrics    *telemetry.BillingMetrics
	cfg        ReconciliationConfig
	clock      shared.Clock
	logger     *zap.Logger
}

// ReconciliationServiceConfig wires the service
type ReconciliationServiceConfig struct {
	Scope uow.TransactionScope
	// Orders is used outside any transaction to list candidates
	Orders     finance.RechargeOrderRepository
	Gateways   finance.PaymentGatewayRegistry
	Settlement *SettlementService
	Alerter    *AnomalyAlerter
	Metrics    *telemetry.BillingMetrics
	Config     ReconciliationConfig
	Clock      shared.Clock
	Logger     *zap.Logger
}

// NewReconciliationService creates a ReconciliationService. Zero config values take defaults.
func NewReconciliationService(c ReconciliationServiceConfig) *ReconciliationService {
	def := DefaultReconciliationConfig()
	cfg := c.Config
	if cfg.MinAge <= 0 {
		cfg.MinAge = def.MinAge
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}
	if cfg.AnomalyThreshold <= 0 {
		cfg.AnomalyThreshold = def.AnomalyThreshold
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return &ReconciliationService{
		scope:      c.Scope,
		orders:     c.Orders,
		gateways:   c.Gateways,
		settlement: c.Settlement,
		alerter:    c.Alerter,
		metrics:    c.Metrics,
		cfg:        cfg,
		clock:      c.Clock,
		logger:     c.Logger,
	}
}

// FindReconcilable lists PENDING/PROCESSING orders older than MinAge, oldest first
func (s *ReconciliationService) FindReconcilable(ctx context.Context) ([]*finance.RechargeOrder, error) {
	cutoff := s.clock.Now().UTC().Add(-s.cfg.MinAge)
	orders, err := s.orders.FindReconcilable(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("find reconcilable orders: %w", err)
	}
	return orders, nil
}

// RunOnce reconciles one batch. A failing or panicking order is logged and
// counted; it never stops the rest of the batch. Only the initial query can fail the sweep.
func (s *ReconciliationService) RunOnce(ctx context.Context) (*ReconciliationSummary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "finance", "reconcile_batch")
	defer span.End()

	start := time.Now()
	orders, err := s.FindReconcilable(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	summary := &ReconciliationSummary{
		Examined: len(orders),
		Outcomes: make(map[ReconcileOutcome]int),
	}
	var mu sync.Mutex
	record := func(o ReconcileOutcome, panicked bool) {
		mu.Lock()
		defer mu.Unlock()
		summary.Outcomes[o]++
		if panicked {
			summary.Panics++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, order := range orders {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Reconciliation of order panicked",
						zap.String("order_no", order.OrderNo),
						zap.Any("panic", r))
					s.metrics.RecordReconciledOrder(ctx, string(ReconcileError))
					record(ReconcileError, true)
				}
			}()

			var outcome ReconcileOutcome
			telemetry.WithProfilingLabels(gctx, telemetry.OperationLabels("reconcile_order",
				map[string]string{"gateway": order.GatewayType.String()}), func(c context.Context) {
				var err error
				outcome, err = s.ReconcileOrder(c, order)
				if err != nil {
					s.logger.Warn("Order reconciliation failed",
						zap.String("order_no", order.OrderNo),
						zap.String("outcome", string(outcome)),
						zap.Error(err))
				}
			})
			s.metrics.RecordReconciledOrder(ctx, string(outcome))
			record(outcome, false)
			// Per-order errors are absorbed so siblings keep running.
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = time.Since(start)
	s.metrics.RecordReconciliationBatch(ctx, summary.Duration)
	telemetry.SetAttributes(span,
		attribute.Int("reconciliation.examined", summary.Examined),
		attribute.Int("reconciliation.panics", summary.Panics),
	)
	if summary.Examined > 0 {
		fields := []zap.Field{
			zap.Int("examined", summary.Examined),
			zap.Int("panics", summary.Panics),
			zap.Duration("duration", summary.Duration),
		}
		for o, n := range summary.Outcomes {
			fields = append(fields, zap.Int(string(o), n))
		}
		s.logger.Info("Reconciliation sweep finished", fields...)
	}
	return summary, nil
}

// ReconcileOrder asks the order's gateway for its status and applies the answer
func (s *ReconciliationService) ReconcileOrder(ctx context.Context, order *finance.RechargeOrder) (ReconcileOutcome, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "finance", "reconcile_order",
		telemetry.SpanAttrOrderNumber.String(order.OrderNo),
		telemetry.SpanAttrPaymentGateway.String(order.GatewayType.String()),
	)
	defer span.End()

	resp, err := s.query(ctx, order)
	if err != nil {
		telemetry.RecordError(span, err)
		return s.recordUnresolved(ctx, order.OrderNo, err.Error())
	}

	switch resp.Status {
	case finance.GatewayPaymentStatusSuccess:
		if !order.MatchesAmount(resp.PaidAmount) {
			reason := fmt.Sprintf("gateway reports paid amount %s for order amount %s",
				resp.PaidAmount.StringFixed(2), order.Amount.StringFixed(2))
			return s.markAnomaly(ctx, order.OrderNo, reason)
		}
		paidAt := time.Time{}
		if resp.PaidAt != nil {
			paidAt = *resp.PaidAt
		}
		result, err := s.settlement.Settle(ctx, SettleRequest{
			OrderNo:              order.OrderNo,
			Paid:                 true,
			PaidAmount:           resp.PaidAmount,
			GatewayTransactionID: resp.GatewayTransactionID,
			PaidAt:               paidAt,
			Source:               telemetry.SettlementSourceReconciliation,
		})
		if errors.Is(err, finance.ErrAmountMismatch) {
			return s.markAnomaly(ctx, order.OrderNo, err.Error())
		}
		if err != nil {
			return ReconcileError, err
		}
		if result.Outcome == SettlementAlreadyTerminal {
			return ReconcileSkipped, nil
		}
		return ReconcileSettled, nil

	case finance.GatewayPaymentStatusFailed, finance.GatewayPaymentStatusClosed:
		reason := "gateway status " + string(resp.Status)
		if resp.ErrorCode != "" || resp.ErrorMessage != "" {
			reason = (&finance.PaymentCallback{ErrorCode: resp.ErrorCode, ErrorMessage: resp.ErrorMessage}).FailureReason()
		}
		result, err := s.settlement.Settle(ctx, SettleRequest{
			OrderNo:       order.OrderNo,
			Paid:          false,
			FailureReason: reason,
			Source:        telemetry.SettlementSourceReconciliation,
		})
		if err != nil {
			return ReconcileError, err
		}
		if result.Outcome == SettlementAlreadyTerminal {
			return ReconcileSkipped, nil
		}
		return ReconcileFailed, nil

	case finance.GatewayPaymentStatusNotPaid:
		return s.applyNotPaid(ctx, order.OrderNo)

	default:
		return s.recordUnresolved(ctx, order.OrderNo, "gateway status "+string(resp.Status))
	}
}

func (s *ReconciliationService) query(ctx context.Context, order *finance.RechargeOrder) (*finance.QueryPaymentResponse, error) {
	gateway, err := s.gateways.GetGateway(order.GatewayType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", finance.ErrGatewayQueryFailed, err)
	}

	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	resp, err := gateway.QueryPayment(qctx, &finance.QueryPaymentRequest{
		OrderNumber:    order.OrderNo,
		GatewayOrderID: order.GatewayOrderID,
	})
	if err != nil {
		if errors.Is(err, finance.ErrGatewayQueryFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", finance.ErrGatewayQueryFailed, err)
	}
	if resp == nil || !resp.Status.IsValid() {
		return nil, fmt.Errorf("%w: %v", finance.ErrGatewayQueryFailed, finance.ErrGatewayInvalidResponse)
	}
	return resp, nil
}

// mutateOrder locks the order and applies fn unless the order turned terminal meanwhile
func (s *ReconciliationService) mutateOrder(ctx context.Context, orderNo string, fn func(order *finance.RechargeOrder, now time.Time) (bool, error)) (*finance.RechargeOrder, bool, error) {
	var (
		locked  *finance.RechargeOrder
		changed bool
	)
	err := s.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		order, err := repos.RechargeOrders().FindByOrderNoForUpdate(ctx, orderNo)
		if err != nil {
			return fmt.Errorf("lock order %s: %w", orderNo, err)
		}
		locked = order
		if order.IsTerminal() {
			return nil
		}
		changed, err = fn(order, s.clock.Now().UTC().Truncate(time.Microsecond))
		if err != nil || !changed {
			return err
		}
		if err := repos.RechargeOrders().Save(ctx, order); err != nil {
			return fmt.Errorf("save order %s: %w", orderNo, err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return locked, changed, nil
}

func (s *ReconciliationService) recordUnresolved(ctx context.Context, orderNo, reason string) (ReconcileOutcome, error) {
	var escalated bool
	order, changed, err := s.mutateOrder(ctx, orderNo, func(o *finance.RechargeOrder, now time.Time) (bool, error) {
		var err error
		escalated, err = o.RecordUnresolvedPoll(reason, s.cfg.AnomalyThreshold, now)
		return err == nil, err
	})
	if err != nil {
		return ReconcileError, err
	}
	if !changed {
		return ReconcileSkipped, nil
	}
	if escalated {
		s.alerter.Alert(ctx, order, reason)
		return ReconcileAnomaly, nil
	}
	s.logger.Info("Order still unresolved",
		zap.String("order_no", orderNo),
		zap.Int("unresolved_polls", order.UnresolvedPolls),
		zap.String("reason", reason))
	return ReconcileUnresolved, nil
}

func (s *ReconciliationService) markAnomaly(ctx context.Context, orderNo, reason string) (ReconcileOutcome, error) {
	order, changed, err := s.mutateOrder(ctx, orderNo, func(o *finance.RechargeOrder, now time.Time) (bool, error) {
		return true, o.MarkAnomaly(reason, now)
	})
	if err != nil {
		return ReconcileError, err
	}
	if !changed {
		return ReconcileSkipped, nil
	}
	s.alerter.Alert(ctx, order, reason)
	return ReconcileAnomaly, nil
}

func (s *ReconciliationService) applyNotPaid(ctx context.Context, orderNo string) (ReconcileOutcome, error) {
	outcome := ReconcilePending
	order, changed, err := s.mutateOrder(ctx, orderNo, func(o *finance.RechargeOrder, now time.Time) (bool, error) {
		if o.IsExpired(now) {
			outcome = ReconcileExpired
			return true, o.MarkExpired(now)
		}
		// A definitive "not paid yet" is not an unresolved poll.
		dirty := o.UnresolvedPolls != 0 || o.LastError != ""
		o.ResetUnresolvedPolls(now)
		return dirty, nil
	})
	if err != nil {
		return ReconcileError, err
	}
	if order != nil && order.IsTerminal() && !changed {
		return ReconcileSkipped, nil
	}
	if outcome == ReconcileExpired {
		s.logger.Info("Recharge order expired unpaid", zap.String("order_no", orderNo))
	}
	return outcome, nil
}
