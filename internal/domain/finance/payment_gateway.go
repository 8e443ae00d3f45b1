package finance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Payment Gateway Errors
// ---------------------------------------------------------------------------

var (
	ErrPaymentInvalidOrderNumber = errors.New("payment: invalid order number")
	ErrPaymentInvalidAmount      = errors.New("payment: invalid payment amount")
	ErrPaymentInvalidGatewayType = errors.New("payment: invalid gateway type")
	ErrPaymentInvalidQueryParams = errors.New("payment: invalid query parameters, need gateway order ID or order number")

	ErrGatewayNotConfigured   = errors.New("payment: gateway not configured")
	ErrGatewayUnavailable     = errors.New("payment: gateway temporarily unavailable")
	ErrGatewayInvalidResponse = errors.New("payment: invalid gateway response")
	ErrGatewayInvalidCallback = errors.New("payment: invalid callback signature")
	// ErrGatewayQueryFailed wraps any failure to learn an order's status.
	// Reconciliation counts it toward the anomaly threshold.
	ErrGatewayQueryFailed = errors.New("payment: gateway query failed")
)

// PaymentGatewayType identifies a payment provider
type PaymentGatewayType string

const (
	// PaymentGatewayTypeWechat represents WeChat Pay gateway
	PaymentGatewayTypeWechat PaymentGatewayType = "WECHAT"
	// PaymentGatewayTypeAlipay represents Alipay gateway
	PaymentGatewayTypeAlipay PaymentGatewayType = "ALIPAY"
)

// ParsePaymentGatewayType accepts the lower-case route form ("wechat") as well
func ParsePaymentGatewayType(s string) (PaymentGatewayType, error) {
	switch PaymentGatewayType(strings.ToUpper(s)) {
	case PaymentGatewayTypeWechat:
		return PaymentGatewayTypeWechat, nil
	case PaymentGatewayTypeAlipay:
		return PaymentGatewayTypeAlipay, nil
	}
	return "", ErrPaymentInvalidGatewayType
}

// IsValid returns true if the gateway type is valid
func (t PaymentGatewayType) IsValid() bool {
	switch t {
	case PaymentGatewayTypeWechat, PaymentGatewayTypeAlipay:
		return true
	default:
		return false
	}
}

// String returns the string representation of PaymentGatewayType
func (t PaymentGatewayType) String() string {
	return string(t)
}

// GatewayPaymentStatus is the status a gateway reports for one of our orders
type GatewayPaymentStatus string

const (
	// GatewayPaymentStatusNotPaid means the payer has not paid yet
	GatewayPaymentStatusNotPaid GatewayPaymentStatus = "NOT_PAID"
	// GatewayPaymentStatusProcessing means the gateway has not decided
	GatewayPaymentStatusProcessing GatewayPaymentStatus = "PROCESSING"
	// GatewayPaymentStatusSuccess means funds were captured
	GatewayPaymentStatusSuccess GatewayPaymentStatus = "SUCCESS"
	// GatewayPaymentStatusFailed means the payment was declined
	GatewayPaymentStatusFailed GatewayPaymentStatus = "FAILED"
	// GatewayPaymentStatusClosed means the gateway closed the order unpaid
	GatewayPaymentStatusClosed GatewayPaymentStatus = "CLOSED"
)

// IsValid returns true if the status is valid
func (s GatewayPaymentStatus) IsValid() bool {
	switch s {
	case GatewayPaymentStatusNotPaid, GatewayPaymentStatusProcessing, GatewayPaymentStatusSuccess,
		GatewayPaymentStatusFailed, GatewayPaymentStatusClosed:
		return true
	default:
		return false
	}
}

// IsFinal returns true if the gateway will not change its answer
func (s GatewayPaymentStatus) IsFinal() bool {
	switch s {
	case GatewayPaymentStatusSuccess, GatewayPaymentStatusFailed, GatewayPaymentStatusClosed:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// Payment Request/Response DTOs
// ---------------------------------------------------------------------------

// CreatePaymentRequest represents a request to create a payment order
type CreatePaymentRequest struct {
	// OrderNumber is our recharge order number
	OrderNumber string
	// OperatorID is the payer
	OperatorID string
	// Amount is the payment amount
	Amount decimal.Decimal
	// Subject is the payment subject/title (shown to user)
	Subject string
	// NotifyURL is the callback URL for payment notifications
	NotifyURL string
	// ExpireTime is when the payment order should expire
	ExpireTime time.Time
}

// Validate validates the create payment request
func (r *CreatePaymentRequest) Validate() error {
	if r.OrderNumber == "" {
		return ErrPaymentInvalidOrderNumber
	}
	if !r.Amount.IsPositive() {
		return ErrPaymentInvalidAmount
	}
	return nil
}

// CreatePaymentResponse represents the response from creating a payment order
type CreatePaymentResponse struct {
	// GatewayOrderID is the payment order ID in the gateway
	GatewayOrderID string
	// PaymentURL is the URL to redirect user for payment
	PaymentURL string
	// QRCodeData is the raw QR code data
	QRCodeData string
	// ExpireTime is when this payment order expires
	ExpireTime time.Time
}

// QueryPaymentRequest represents a request to query payment status
type QueryPaymentRequest struct {
	OrderNumber    string
	GatewayOrderID string
}

// Validate validates the query payment request
func (r *QueryPaymentRequest) Validate() error {
	if r.GatewayOrderID == "" && r.OrderNumber == "" {
		return ErrPaymentInvalidQueryParams
	}
	return nil
}

// QueryPaymentResponse represents the response from querying payment status
type QueryPaymentResponse struct {
	OrderNumber          string
	Status               GatewayPaymentStatus
	PaidAmount           decimal.Decimal
	GatewayTransactionID string
	PaidAt               *time.Time
	ErrorCode            string
	ErrorMessage         string
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// PaymentGateway is the port for an external payment provider.
// Implementations live in the infrastructure layer.
type PaymentGateway interface {
	// GatewayType returns the type of this payment gateway
	GatewayType() PaymentGatewayType

	// CreatePayment creates a payment order the operator can pay
	CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*CreatePaymentResponse, error)

	// QueryPayment asks the gateway for the current status of an order.
	// Errors should wrap ErrGatewayQueryFailed.
	QueryPayment(ctx context.Context, req *QueryPaymentRequest) (*QueryPaymentResponse, error)
}

// PaymentGatewayRegistry provides access to configured payment gateways
type PaymentGatewayRegistry interface {
	// GetGateway returns the gateway for the specified type
	GetGateway(gatewayType PaymentGatewayType) (PaymentGateway, error)
}

// CallbackVerifier authenticates a raw callback body
type CallbackVerifier interface {
	Verify(gatewayType PaymentGatewayType, payload []byte, signature string) error
}
