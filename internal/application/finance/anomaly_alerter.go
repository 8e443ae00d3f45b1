package finance

import (
	"context"
	"time"

	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/domain/notification"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// AnomalyAlerter raises a critical alert for a recharge order that needs human review.
// Delivery failures are logged, never returned: the order state is already committed.
type AnomalyAlerter struct {
	notifier notification.Notifier
	metrics  *telemetry.BillingMetrics
	timeout  time.Duration
	clock    shared.Clock
	logger   *zap.Logger
}

// NewAnomalyAlerter creates an AnomalyAlerter. notifier may be nil, in which
// case anomalies are only logged.
func NewAnomalyAlerter(n notification.Notifier, metrics *telemetry.BillingMetrics, clock shared.Clock, logger *zap.Logger) *AnomalyAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnomalyAlerter{
		notifier: n,
		metrics:  metrics,
		timeout:  5 * time.Second,
		clock:    clock,
		logger:   logger,
	}
}

// Alert reports order as anomalous
func (a *AnomalyAlerter) Alert(ctx context.Context, order *finance.RechargeOrder, reason string) {
	if a == nil {
		return
	}
	a.metrics.RecordAnomaly(ctx, order.GatewayType.String())
	a.logger.Error("Recharge order needs manual review",
		zap.String("order_no", order.OrderNo),
		zap.String("operator_id", order.OperatorID),
		zap.String("gateway", order.GatewayType.String()),
		zap.String("amount", order.Amount.StringFixed(2)),
		zap.Int("unresolved_polls", order.UnresolvedPolls),
		zap.String("reason", reason))

	if a.notifier == nil {
		return
	}

	// The caller's context may be about to end with its batch or request.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	err := a.notifier.Notify(sendCtx, notification.Notification{
		Kind:       notification.KindPaymentAnomaly,
		Severity:   notification.SeverityCritical,
		OperatorID: order.OperatorID,
		Subject:    "Recharge order " + order.OrderNo + " needs manual review",
		Attributes: map[string]string{
			"order_no":         order.OrderNo,
			"gateway":          order.GatewayType.String(),
			"amount":           order.Amount.StringFixed(2),
			"status":           order.Status.String(),
			"reason":           reason,
			"gateway_order_id": order.GatewayOrderID,
		},
		OccurredAt: a.clock.Now().UTC(),
	})
	if err != nil {
		a.logger.Warn("Anomaly notification failed",
			zap.String("order_no", order.OrderNo),
			zap.Error(err))
	}
}
