package finance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultOrderTTL is how long an operator has to pay a recharge order
const DefaultOrderTTL = 30 * time.Minute

// RechargeServiceConfig configures order creation
type RechargeServiceConfig struct {
	OrderTTL time.Duration
	// NotifyURLBase is joined with the lower-case gateway name to build the callback URL
	NotifyURLBase string
}

// CreateRechargeRequest asks for a new recharge order
type CreateRechargeRequest struct {
	OperatorID  string
	Amount      decimal.Decimal
	GatewayType finance.PaymentGatewayType
}

// CreateRechargeResult is returned to the operator so they can pay
type CreateRechargeResult struct {
	OrderNo    string
	Amount     decimal.Decimal
	Status     finance.RechargeOrderStatus
	PaymentURL string
	QRCodeData string
	ExpiresAt  time.Time
}

// RechargeService creates recharge orders and registers them with the gateway
type RechargeService struct {
	orders   finance.RechargeOrderRepository
	gateways finance.PaymentGatewayRegistry
	cfg      RechargeServiceConfig
	clock    shared.Clock
	logger   *zap.Logger
}

// NewRechargeService creates a RechargeService
func NewRechargeService(orders finance.RechargeOrderRepository, gateways finance.PaymentGatewayRegistry, cfg RechargeServiceConfig, clock shared.Clock, logger *zap.Logger) *RechargeService {
	if cfg.OrderTTL <= 0 {
		cfg.OrderTTL = DefaultOrderTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RechargeService{
		orders:   orders,
		gateways: gateways,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
	}
}

// CreateOrder stores a PENDING order, then asks the gateway for a payment.
// The order moves to PROCESSING once the gateway accepts. If the gateway call
// fails the order stays PENDING and reconciliation will expire it.
func (s *RechargeService) CreateOrder(ctx context.Context, req CreateRechargeRequest) (*CreateRechargeResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "finance", "create_recharge_order",
		telemetry.SpanAttrOperatorID.String(req.OperatorID),
		telemetry.SpanAttrAmount.String(req.Amount.String()),
		telemetry.SpanAttrPaymentGateway.String(req.GatewayType.String()),
	)
	defer span.End()

	gateway, err := s.gateways.GetGateway(req.GatewayType)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	order, err := finance.NewRechargeOrder(req.OperatorID, req.Amount, req.GatewayType, s.cfg.OrderTTL, now)
	if err != nil {
		return nil, err
	}
	if err := s.orders.Create(ctx, order); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("create recharge order: %w", err)
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrOrderNumber.String(order.OrderNo))

	resp, err := gateway.CreatePayment(ctx, &finance.CreatePaymentRequest{
		OrderNumber: order.OrderNo,
		OperatorID:  order.OperatorID,
		Amount:      order.Amount,
		Subject:     "Arcade balance recharge " + order.OrderNo,
		NotifyURL:   s.notifyURL(req.GatewayType),
		ExpireTime:  order.ExpiresAt,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Warn("Gateway rejected payment creation",
			zap.String("order_no", order.OrderNo),
			zap.String("gateway", req.GatewayType.String()),
			zap.Error(err))
		return nil, fmt.Errorf("create payment for %s: %w", order.OrderNo, err)
	}

	if err := order.MarkProcessing(resp.GatewayOrderID, s.clock.Now().UTC().Truncate(time.Microsecond)); err != nil {
		return nil, err
	}
	if err := s.orders.Save(ctx, order); err != nil {
		// A callback may already have settled the order; reconciliation picks up the rest.
		s.logger.Warn("Failed to record gateway acceptance",
			zap.String("order_no", order.OrderNo),
			zap.Error(err))
	}

	s.logger.Info("Recharge order created",
		zap.String("order_no", order.OrderNo),
		zap.String("operator_id", order.OperatorID),
		zap.String("amount", order.Amount.StringFixed(2)),
		zap.String("gateway", req.GatewayType.String()))

	return &CreateRechargeResult{
		OrderNo:    order.OrderNo,
		Amount:     order.Amount,
		Status:     order.Status,
		PaymentURL: resp.PaymentURL,
		QRCodeData: resp.QRCodeData,
		ExpiresAt:  order.ExpiresAt,
	}, nil
}

// GetOrder returns an order owned by operatorID
func (s *RechargeService) GetOrder(ctx context.Context, operatorID, orderNo string) (*finance.RechargeOrder, error) {
	order, err := s.orders.FindByOrderNo(ctx, orderNo)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, finance.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if order.OperatorID != operatorID {
		return nil, finance.ErrOrderNotFound
	}
	return order, nil
}

func (s *RechargeService) notifyURL(gatewayType finance.PaymentGatewayType) string {
	if s.cfg.NotifyURLBase == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/v1/payment/callback/%s", s.cfg.NotifyURLBase, strings.ToLower(gatewayType.String()))
}
