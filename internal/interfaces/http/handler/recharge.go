package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	financeapp "github.com/arcade/backend/internal/application/finance"
	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/internal/interfaces/http/dto"
	"github.com/arcade/backend/internal/interfaces/http/middleware"
)

// ErrInvalidGateway is returned for an unknown gateway name in a request
var ErrInvalidGateway = shared.NewValidationError("INVALID_GATEWAY", "Unknown payment gateway")

// RechargeOrders is the recharge surface used by RechargeHandler
type RechargeOrders interface {
	CreateOrder(ctx context.Context, req financeapp.CreateRechargeRequest) (*financeapp.CreateRechargeResult, error)
	GetOrder(ctx context.Context, operatorID, orderNo string) (*finance.RechargeOrder, error)
}

// RechargeHandler serves operator balance recharges. Routes sit behind
// middleware.RequireOperator.
type RechargeHandler struct {
	BaseHandler
	orders RechargeOrders
}

// NewRechargeHandler creates a new RechargeHandler
func NewRechargeHandler(orders RechargeOrders) *RechargeHandler {
	return &RechargeHandler{orders: orders}
}

// CreateOrder handles POST /api/v1/recharge-orders
func (h *RechargeHandler) CreateOrder(c *gin.Context) {
	var req dto.CreateRechargeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.HandleError(c, finance.ErrInvalidRecharge)
		return
	}
	gateway, err := finance.ParsePaymentGatewayType(req.Gateway)
	if err != nil {
		h.HandleError(c, ErrInvalidGateway)
		return
	}

	result, err := h.orders.CreateOrder(c.Request.Context(), financeapp.CreateRechargeRequest{
		OperatorID:  middleware.GetOperatorID(c),
		Amount:      amount,
		GatewayType: gateway,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, dto.RechargeOrderResponse{
		OrderNo:    result.OrderNo,
		Amount:     result.Amount.StringFixed(2),
		Status:     string(result.Status),
		Gateway:    gateway.String(),
		PaymentURL: result.PaymentURL,
		QRCodeData: result.QRCodeData,
		ExpiresAt:  result.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// GetOrder handles GET /api/v1/recharge-orders/:order_no. Orders of other
// operators are reported as not found.
func (h *RechargeHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), middleware.GetOperatorID(c), c.Param("order_no"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toRechargeOrderResponse(order))
}

func toRechargeOrderResponse(o *finance.RechargeOrder) dto.RechargeOrderResponse {
	resp := dto.RechargeOrderResponse{
		OrderNo:   o.OrderNo,
		Amount:    o.Amount.StringFixed(2),
		Status:    o.Status.String(),
		Gateway:   o.GatewayType.String(),
		ExpiresAt: o.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if o.PaidAt != nil {
		resp.PaidAt = o.PaidAt.UTC().Format(time.RFC3339)
	}
	return resp
}
