package finance

import (
	"fmt"
	"strings"
	"time"

	"github.com/arcade/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RechargeOrderStatus represents the lifecycle of a recharge order
type RechargeOrderStatus string

const (
	// RechargeOrderStatusPending indicates the order was created but not yet accepted by the gateway
	RechargeOrderStatusPending RechargeOrderStatus = "PENDING"
	// RechargeOrderStatusProcessing indicates the gateway accepted the order and payment is awaited
	RechargeOrderStatusProcessing RechargeOrderStatus = "PROCESSING"
	// RechargeOrderStatusSuccess indicates the balance was credited
	RechargeOrderStatusSuccess RechargeOrderStatus = "SUCCESS"
	// RechargeOrderStatusFailed indicates the payment failed
	RechargeOrderStatusFailed RechargeOrderStatus = "FAILED"
	// RechargeOrderStatusExpired indicates the order was never paid
	RechargeOrderStatusExpired RechargeOrderStatus = "EXPIRED"
	// RechargeOrderStatusAnomaly indicates the outcome could not be determined and needs review
	RechargeOrderStatusAnomaly RechargeOrderStatus = "ANOMALY"
)

// IsValid checks if the status is a valid RechargeOrderStatus
func (s RechargeOrderStatus) IsValid() bool {
	switch s {
	case RechargeOrderStatusPending, RechargeOrderStatusProcessing, RechargeOrderStatusSuccess,
		RechargeOrderStatusFailed, RechargeOrderStatusExpired, RechargeOrderStatusAnomaly:
		return true
	}
	return false
}

// String returns the string representation of RechargeOrderStatus
func (s RechargeOrderStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no automated path may change the order any more.
// ANOMALY is terminal for automation; only a human resolves it.
func (s RechargeOrderStatus) IsTerminal() bool {
	switch s {
	case RechargeOrderStatusSuccess, RechargeOrderStatusFailed,
		RechargeOrderStatusExpired, RechargeOrderStatusAnomaly:
		return true
	}
	return false
}

// ReconcilableStatuses are the statuses the reconciliation sweep polls
var ReconcilableStatuses = []RechargeOrderStatus{RechargeOrderStatusPending, RechargeOrderStatusProcessing}

// DefaultAnomalyThreshold is the number of consecutive unresolved polls before ANOMALY
const DefaultAnomalyThreshold = 3

var (
	ErrOrderNotFound     = shared.NewNotFoundError("ORDER_NOT_FOUND", "Recharge order not found")
	ErrOrderTerminal     = shared.NewDomainError("ORDER_ALREADY_TERMINAL", "Recharge order is already in a terminal state")
	ErrAmountMismatch    = shared.NewValidationError("AMOUNT_MISMATCH", "Paid amount does not match the order amount")
	ErrInvalidRecharge   = shared.NewValidationError("INVALID_RECHARGE_AMOUNT", "Recharge amount must be positive with at most 2 decimal places")
	ErrInvalidTransition = shared.NewDomainError("INVALID_ORDER_TRANSITION", "Recharge order cannot move to the requested state")
)

// RechargeOrder is a pending payment intent that credits an operator's balance once paid
type RechargeOrder struct {
	shared.BaseEntity
	OrderNo              string
	OperatorID           string
	Amount               decimal.Decimal
	GatewayType          PaymentGatewayType
	GatewayOrderID       string
	GatewayTransactionID string
	Status               RechargeOrderStatus
	ExpiresAt            time.Time
	PaidAt               *time.Time
	UnresolvedPolls      int
	LastError            string
	shared.Versioned
}

// NewRechargeOrder creates a PENDING order that expires after ttl
func NewRechargeOrder(operatorID string, amount decimal.Decimal, gatewayType PaymentGatewayType, ttl time.Duration, now time.Time) (*RechargeOrder, error) {
	if operatorID == "" {
		return nil, shared.ErrInvalidInput
	}
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return nil, ErrInvalidRecharge
	}
	if !gatewayType.IsValid() {
		return nil, ErrPaymentInvalidGatewayType
	}
	base := shared.NewBaseEntity(now)
	return &RechargeOrder{
		BaseEntity:  base,
		OrderNo:     GenerateOrderNo(base.ID, now),
		OperatorID:  operatorID,
		Amount:      amount,
		GatewayType: gatewayType,
		Status:      RechargeOrderStatusPending,
		ExpiresAt:   now.Add(ttl),
		Versioned:   shared.Versioned{Version: 1},
	}, nil
}

// GenerateOrderNo returns "RC" + UTC timestamp + 8 hex chars of id
func GenerateOrderNo(id uuid.UUID, now time.Time) string {
	return fmt.Sprintf("RC%s%s", now.UTC().Format("20060102150405"),
		strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8]))
}

// IsTerminal returns true if the order can no longer change
func (o *RechargeOrder) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// IsExpired returns true if the payment window has closed
func (o *RechargeOrder) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// MatchesAmount reports whether paid equals the order amount exactly
func (o *RechargeOrder) MatchesAmount(paid decimal.Decimal) bool {
	return o.Amount.Equal(paid)
}

// MarkProcessing records the gateway's acceptance of the order
func (o *RechargeOrder) MarkProcessing(gatewayOrderID string, now time.Time) error {
	if o.Status != RechargeOrderStatusPending {
		return o.transitionError(RechargeOrderStatusProcessing)
	}
	o.Status = RechargeOrderStatusProcessing
	o.GatewayOrderID = gatewayOrderID
	o.UpdatedAt = now
	return nil
}

// MarkSuccess settles the order as paid. The caller credits the balance in the same transaction.
func (o *RechargeOrder) MarkSuccess(gatewayTransactionID string, paidAt, now time.Time) error {
	if o.IsTerminal() {
		return ErrOrderTerminal
	}
	o.Status = RechargeOrderStatusSuccess
	o.GatewayTransactionID = gatewayTransactionID
	paid := paidAt
	o.PaidAt = &paid
	o.LastError = ""
	o.UpdatedAt = now
	return nil
}

// MarkFailed settles the order as failed
func (o *RechargeOrder) MarkFailed(reason string, now time.Time) error {
	if o.IsTerminal() {
		return ErrOrderTerminal
	}
	o.Status = RechargeOrderStatusFailed
	o.LastError = reason
	o.UpdatedAt = now
	return nil
}

// MarkExpired closes an unpaid order whose window has passed
func (o *RechargeOrder) MarkExpired(now time.Time) error {
	if o.IsTerminal() {
		return ErrOrderTerminal
	}
	if !o.IsExpired(now) {
		return o.transitionError(RechargeOrderStatusExpired)
	}
	o.Status = RechargeOrderStatusExpired
	o.UpdatedAt = now
	return nil
}

// MarkAnomaly parks the order for human review
func (o *RechargeOrder) MarkAnomaly(reason string, now time.Time) error {
	if o.IsTerminal() {
		return ErrOrderTerminal
	}
	o.Status = RechargeOrderStatusAnomaly
	o.LastError = reason
	o.UpdatedAt = now
	return nil
}

// RecordUnresolvedPoll counts one poll that did not settle the order and
// escalates to ANOMALY once threshold consecutive polls are reached.
// Returns true when this call escalated.
func (o *RechargeOrder) RecordUnresolvedPoll(reason string, threshold int, now time.Time) (bool, error) {
	if o.IsTerminal() {
		return false, ErrOrderTerminal
	}
	if threshold <= 0 {
		threshold = DefaultAnomalyThreshold
	}
	o.UnresolvedPolls++
	o.LastError = reason
	o.UpdatedAt = now
	if o.UnresolvedPolls >= threshold {
		o.Status = RechargeOrderStatusAnomaly
		return true, nil
	}
	return false, nil
}

// ResetUnresolvedPolls clears the counter after a definitive "not paid yet" answer
func (o *RechargeOrder) ResetUnresolvedPolls(now time.Time) {
	if o.UnresolvedPolls == 0 && o.LastError == "" {
		return
	}
	o.UnresolvedPolls = 0
	o.LastError = ""
	o.UpdatedAt = now
}

func (o *RechargeOrder) transitionError(to RechargeOrderStatus) error {
	return ErrInvalidTransition.WithDetails(map[string]any{
		"order_no": o.OrderNo,
		"from":     string(o.Status),
		"to":       string(to),
	})
}
