package finance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/arcade/backend/internal/domain/finance"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (h *financeHarness) rechargeService() *RechargeService {
	return NewRechargeService(h.store.RechargeOrders(), h.registry, RechargeServiceConfig{
		NotifyURLBase: "https://arcade.example.com",
	}, h.sharedClock(), nil)
}

func TestRechargeService_CreateOrder(t *testing.T) {
	h := newFinanceHarness(t, "0.00")
	h.wechat.On("CreatePayment", mock.Anything, mock.MatchedBy(func(r *finance.CreatePaymentRequest) bool {
		return r.OperatorID == "op1" &&
			r.Amount.Equal(decimal.RequireFromString("88.80")) &&
			r.NotifyURL == "https://arcade.example.com/api/v1/payment/callback/wechat" &&
			r.ExpireTime.Equal(baseTime.Add(DefaultOrderTTL))
	})).Return(&finance.CreatePaymentResponse{
		GatewayOrderID: "wx-order-1",
		QRCodeData:     "weixin://wxpay/bizpayurl?pr=abc",
	}, nil)

	result, err := h.rechargeService().CreateOrder(context.Background(), CreateRechargeRequest{
		OperatorID:  "op1",
		Amount:      decimal.RequireFromString("88.80"),
		GatewayType: finance.PaymentGatewayTypeWechat,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.OrderNo, "RC20240301090000"))
	assert.Equal(t, finance.RechargeOrderStatusProcessing, result.Status)
	assert.Equal(t, "weixin://wxpay/bizpayurl?pr=abc", result.QRCodeData)

	stored := h.stored(t, result.OrderNo)
	assert.Equal(t, finance.RechargeOrderStatusProcessing, stored.Status)
	assert.Equal(t, "wx-order-1", stored.GatewayOrderID)
	assert.Equal(t, "0.00", h.store.Balance("op1"))
	h.wechat.AssertExpectations(t)
}

func TestRechargeService_CreateOrder_GatewayFailureLeavesPending(t *testing.T) {
	h := newFinanceHarness(t, "0.00")
	h.wechat.On("CreatePayment", mock.Anything, mock.Anything).Return(nil, finance.ErrGatewayUnavailable)

	_, err := h.rechargeService().CreateOrder(context.Background(), CreateRechargeRequest{
		OperatorID:  "op1",
		Amount:      decimal.RequireFromString("10.00"),
		GatewayType: finance.PaymentGatewayTypeWechat,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, finance.ErrGatewayUnavailable))

	h.clock.Advance(10 * time.Minute)
	orders, err := h.store.RechargeOrders().FindReconcilable(context.Background(), h.clock.Now(), 10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, finance.RechargeOrderStatusPending, orders[0].Status)
}

func TestRechargeService_CreateOrder_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateRechargeRequest
		wantErr error
	}{
		{"unconfigured gateway", CreateRechargeRequest{OperatorID: "op1", Amount: decimal.NewFromInt(10), GatewayType: finance.PaymentGatewayTypeAlipay}, finance.ErrGatewayNotConfigured},
		{"zero amount", CreateRechargeRequest{OperatorID: "op1", Amount: decimal.Zero, GatewayType: finance.PaymentGatewayTypeWechat}, finance.ErrInvalidRecharge},
		{"sub-cent amount", CreateRechargeRequest{OperatorID: "op1", Amount: decimal.RequireFromString("1.005"), GatewayType: finance.PaymentGatewayTypeWechat}, finance.ErrInvalidRecharge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newFinanceHarness(t, "0.00")
			_, err := h.rechargeService().CreateOrder(context.Background(), tt.req)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			h.wechat.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
		})
	}
}

func TestRechargeService_GetOrder(t *testing.T) {
	h := newFinanceHarness(t, "0.00")
	o := h.order(t, "10.00")
	svc := h.rechargeService()

	got, err := svc.GetOrder(context.Background(), "op1", o.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNo, got.OrderNo)

	_, err = svc.GetOrder(context.Background(), "op2", o.OrderNo)
	assert.True(t, errors.Is(err, finance.ErrOrderNotFound))

	_, err = svc.GetOrder(context.Background(), "op1", "RC-missing")
	assert.True(t, errors.Is(err, finance.ErrOrderNotFound))
}
