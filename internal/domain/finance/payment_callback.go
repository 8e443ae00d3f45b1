package finance

import (
	"time"

	"github.com/arcade/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// CallbackStatus is the outcome a gateway pushes to us
type CallbackStatus string

const (
	CallbackStatusSuccess CallbackStatus = "success"
	CallbackStatusFailed  CallbackStatus = "failed"
)

// ErrInvalidCallback is returned for callbacks missing required fields
var ErrInvalidCallback = shared.NewValidationError("INVALID_CALLBACK", "Callback payload is incomplete")

// PaymentCallback is a verified payment notification
type PaymentCallback struct {
	GatewayType          PaymentGatewayType
	OrderNumber          string
	Status               CallbackStatus
	PaidAmount           decimal.Decimal
	GatewayTransactionID string
	PaidAt               time.Time
	ErrorCode            string
	ErrorMessage         string
}

// Validate checks the callback carries what settlement needs
func (c *PaymentCallback) Validate() error {
	if c.OrderNumber == "" || c.GatewayTransactionID == "" {
		return ErrInvalidCallback
	}
	switch c.Status {
	case CallbackStatusSuccess:
		if !c.PaidAmount.IsPositive() {
			return ErrInvalidCallback
		}
	case CallbackStatusFailed:
	default:
		return ErrInvalidCallback
	}
	return nil
}

// FailureReason summarises a failed callback for the order's last_error
func (c *PaymentCallback) FailureReason() string {
	switch {
	case c.ErrorCode != "" && c.ErrorMessage != "":
		return c.ErrorCode + ": " + c.ErrorMessage
	case c.ErrorCode != "":
		return c.ErrorCode
	case c.ErrorMessage != "":
		return c.ErrorMessage
	}
	return "payment failed"
}
