package finance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Callback errors
var (
	// ErrCallbackVerificationFailed is returned when the signature does not match the body
	ErrCallbackVerificationFailed = shared.NewAuthorizationError("INVALID_SIGNATURE", "Payment callback signature verification failed")
	// ErrCallbackInvalidPayload is returned when the body cannot be decoded
	ErrCallbackInvalidPayload = shared.NewValidationError("INVALID_CALLBACK_PAYLOAD", "Payment callback payload could not be parsed")
)

// DefaultCallbackDedupTTL is how long a processed gateway transaction id is remembered
const DefaultCallbackDedupTTL = 24 * time.Hour

// PaymentCallbackResult represents the result of processing a payment callback
type PaymentCallbackResult struct {
	Success          bool
	AlreadyProcessed bool
	Message          string
	OrderNo          string
	OrderStatus      finance.RechargeOrderStatus
}

// PaymentCallbackServiceConfig wires the callback service
type PaymentCallbackServiceConfig struct {
	Verifier   finance.CallbackVerifier
	Settlement *SettlementService
	// Store de-duplicates gateway transaction ids. Optional: settlement is
	// terminal-state guarded on its own.
	Store    shared.IdempotencyStore
	DedupTTL time.Duration
	Alerter  *AnomalyAlerter
	Logger   *zap.Logger
}

// PaymentCallbackService handles asynchronous payment notifications
type PaymentCallbackService struct {
	verifier   finance.CallbackVerifier
	settlement *SettlementService
	store      shared.IdempotencyStore
	dedupTTL   time.Duration
	alerter    *AnomalyAlerter
	logger     *zap.Logger
}

// NewPaymentCallbackService creates a new PaymentCallbackService
func NewPaymentCallbackService(cfg PaymentCallbackServiceConfig) *PaymentCallbackService {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = DefaultCallbackDedupTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &PaymentCallbackService{
		verifier:   cfg.Verifier,
		settlement: cfg.Settlement,
		store:      cfg.Store,
		dedupTTL:   cfg.DedupTTL,
		alerter:    cfg.Alerter,
		logger:     cfg.Logger,
	}
}

// callbackPayload is the JSON body gateways post to us
type callbackPayload struct {
	OrderID              string `json:"order_id"`
	Status               string `json:"status"`
	PaidAmount           string `json:"paid_amount"`
	GatewayTransactionID string `json:"gateway_transaction_id"`
	PaidAt               string `json:"paid_at"`
	ErrorCode            string `json:"error_code,omitempty"`
	ErrorMessage         string `json:"error_message,omitempty"`
}

// ParseCallback decodes a raw callback body. paid_at accepts RFC 3339 or unix seconds.
func ParseCallback(gatewayType finance.PaymentGatewayType, payload []byte) (*finance.PaymentCallback, error) {
	var p callbackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, ErrCallbackInvalidPayload.WithDetails(map[string]any{"reason": err.Error()})
	}

	cb := &finance.PaymentCallback{
		GatewayType:          gatewayType,
		OrderNumber:          strings.TrimSpace(p.OrderID),
		Status:               finance.CallbackStatus(strings.ToLower(p.Status)),
		GatewayTransactionID: strings.TrimSpace(p.GatewayTransactionID),
		ErrorCode:            p.ErrorCode,
		ErrorMessage:         p.ErrorMessage,
	}
	if p.PaidAmount != "" {
		amount, err := decimal.NewFromString(p.PaidAmount)
		if err != nil {
			return nil, ErrCallbackInvalidPayload.WithDetails(map[string]any{"field": "paid_amount"})
		}
		cb.PaidAmount = amount
	}
	if p.PaidAt != "" {
		paidAt, err := parsePaidAt(p.PaidAt)
		if err != nil {
			return nil, ErrCallbackInvalidPayload.WithDetails(map[string]any{"field": "paid_at"})
		}
		cb.PaidAt = paidAt
	}
	if err := cb.Validate(); err != nil {
		return nil, err
	}
	return cb, nil
}

func parsePaidAt(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	secs, err := decimal.NewFromString(s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs.IntPart(), 0).UTC(), nil
}

// ProcessPaymentCallback verifies, decodes and handles a raw callback
func (s *PaymentCallbackService) ProcessPaymentCallback(
	ctx context.Context,
	gatewayType finance.PaymentGatewayType,
	payload []byte,
	signature string,
) (*PaymentCallbackResult, error) {
	if !gatewayType.IsValid() {
		return nil, shared.NewValidationError("INVALID_GATEWAY", "Unknown payment gateway").
			WithDetails(map[string]any{"gateway": string(gatewayType)})
	}
	if err := s.verifier.Verify(gatewayType, payload, signature); err != nil {
		s.logger.Warn("Payment callback signature rejected",
			zap.String("gateway", gatewayType.String()),
			zap.Error(err))
		return nil, ErrCallbackVerificationFailed
	}

	cb, err := ParseCallback(gatewayType, payload)
	if err != nil {
		return nil, err
	}
	return s.HandlePaymentCallback(ctx, cb)
}

// CallbackDedupKey is the idempotency key for one gateway transaction
func CallbackDedupKey(gatewayType finance.PaymentGatewayType, gatewayTransactionID string) string {
	return fmt.Sprintf("payment_callback:%s:%s", gatewayType, gatewayTransactionID)
}

// HandlePaymentCallback applies a verified callback.
//
// A repeated gateway transaction id or an order that is already terminal is
// acknowledged as success without changes, so gateways stop redelivering.
// When handling fails the dedup key is released so a redelivery is processed.
func (s *PaymentCallbackService) HandlePaymentCallback(ctx context.Context, cb *finance.PaymentCallback) (*PaymentCallbackResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "finance", "payment_callback",
		telemetry.SpanAttrOrderNumber.String(cb.OrderNumber),
		telemetry.SpanAttrPaymentGateway.String(cb.GatewayType.String()),
		attribute.String("callback.status", string(cb.Status)),
	)
	defer span.End()

	if err := cb.Validate(); err != nil {
		return nil, err
	}

	key := CallbackDedupKey(cb.GatewayType, cb.GatewayTransactionID)
	if s.store != nil {
		fresh, err := s.store.MarkProcessed(ctx, key, s.dedupTTL)
		switch {
		case err != nil:
			// Settlement is still guarded by the order state.
			s.logger.Warn("Callback de-duplication unavailable",
				zap.String("key", key),
				zap.Error(err))
		case !fresh:
			s.logger.Info("Duplicate payment callback ignored",
				zap.String("order_no", cb.OrderNumber),
				zap.String("gateway_transaction_id", cb.GatewayTransactionID))
			return &PaymentCallbackResult{
				Success:          true,
				AlreadyProcessed: true,
				Message:          "already processed",
				OrderNo:          cb.OrderNumber,
			}, nil
		}
	}

	result, err := s.settlement.Settle(ctx, SettleRequest{
		OrderNo:              cb.OrderNumber,
		Paid:                 cb.Status == finance.CallbackStatusSuccess,
		PaidAmount:           cb.PaidAmount,
		GatewayTransactionID: cb.GatewayTransactionID,
		PaidAt:               cb.PaidAt,
		FailureReason:        cb.FailureReason(),
		Source:               telemetry.SettlementSourceCallback,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.forget(ctx, key)
		if errors.Is(err, finance.ErrAmountMismatch) {
			s.logger.Error("Payment callback amount mismatch",
				zap.String("order_no", cb.OrderNumber),
				zap.String("paid_amount", cb.PaidAmount.String()),
				zap.String("gateway_transaction_id", cb.GatewayTransactionID))
		}
		return nil, err
	}

	order := result.Order
	out := &PaymentCallbackResult{
		Success:     true,
		OrderNo:     order.OrderNo,
		OrderStatus: order.Status,
	}
	switch result.Outcome {
	case SettlementCredited:
		out.Message = "recharge credited"
	case SettlementFailed:
		out.Message = "payment failure recorded"
	case SettlementAlreadyTerminal:
		out.AlreadyProcessed = true
		out.Message = "already processed"
		if order.Status == finance.RechargeOrderStatusAnomaly && cb.Status == finance.CallbackStatusSuccess {
			// Money arrived for an order parked for review; a human must credit it.
			s.alerter.Alert(ctx, order, fmt.Sprintf("success callback %s received for order in ANOMALY", cb.GatewayTransactionID))
		}
	}
	return out, nil
}

func (s *PaymentCallbackService) forget(ctx context.Context, key string) {
	if s.store == nil {
		return
	}
	if err := s.store.Forget(ctx, key); err != nil {
		s.logger.Warn("Failed to release callback de-duplication key",
			zap.String("key", key),
			zap.Error(err))
	}
}
