package finance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(t *testing.T, now time.Time) *RechargeOrder {
	t.Helper()
	order, err := NewRechargeOrder("op1", decimal.RequireFromString("100.00"), PaymentGatewayTypeAlipay, 30*time.Minute, now)
	require.NoError(t, err)
	return order
}

func TestRechargeOrderStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   RechargeOrderStatus
		terminal bool
	}{
		{RechargeOrderStatusPending, false},
		{RechargeOrderStatusProcessing, false},
		{RechargeOrderStatusSuccess, true},
		{RechargeOrderStatusFailed, true},
		{RechargeOrderStatusExpired, true},
		{RechargeOrderStatusAnomaly, true},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.True(t, tt.status.IsValid())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
	assert.False(t, RechargeOrderStatus("REFUNDED").IsValid())
}

func TestNewRechargeOrder(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	order := newTestOrder(t, now)

	assert.Equal(t, RechargeOrderStatusPending, order.Status)
	assert.Equal(t, now.Add(30*time.Minute), order.ExpiresAt)
	assert.Regexp(t, `^RC20240501083000[0-9A-F]{8}$`, order.OrderNo)
	assert.Equal(t, 1, order.Version)

	_, err := NewRechargeOrder("op1", decimal.RequireFromString("0.001"), PaymentGatewayTypeAlipay, time.Minute, now)
	assert.ErrorIs(t, err, ErrInvalidRecharge)
	_, err = NewRechargeOrder("op1", decimal.NewFromInt(1), "PAYPAL", time.Minute, now)
	assert.ErrorIs(t, err, ErrPaymentInvalidGatewayType)
}

func TestRechargeOrder_Transitions(t *testing.T) {
	now := time.Now()

	t.Run("processing only from pending", func(t *testing.T) {
		order := newTestOrder(t, now)
		require.NoError(t, order.MarkProcessing("gw-1", now))
		assert.Equal(t, "gw-1", order.GatewayOrderID)
		assert.ErrorIs(t, order.MarkProcessing("gw-2", now), ErrInvalidTransition)
	})

	t.Run("success is terminal", func(t *testing.T) {
		order := newTestOrder(t, now)
		require.NoError(t, order.MarkSuccess("tx-1", now, now))
		require.NotNil(t, order.PaidAt)
		assert.Equal(t, "tx-1", order.GatewayTransactionID)

		assert.ErrorIs(t, order.MarkSuccess("tx-2", now, now), ErrOrderTerminal)
		assert.ErrorIs(t, order.MarkFailed("late", now), ErrOrderTerminal)
		assert.ErrorIs(t, order.MarkAnomaly("late", now), ErrOrderTerminal)
		assert.Equal(t, "tx-1", order.GatewayTransactionID)
	})

	t.Run("expire requires passed window", func(t *testing.T) {
		order := newTestOrder(t, now)
		assert.ErrorIs(t, order.MarkExpired(now), ErrInvalidTransition)
		require.NoError(t, order.MarkExpired(order.ExpiresAt))
		assert.Equal(t, RechargeOrderStatusExpired, order.Status)
	})

	t.Run("failed records reason", func(t *testing.T) {
		order := newTestOrder(t, now)
		require.NoError(t, order.MarkFailed("CARD_DECLINED", now))
		assert.Equal(t, "CARD_DECLINED", order.LastError)
	})
}

func TestRechargeOrder_RecordUnresolvedPoll(t *testing.T) {
	now := time.Now()
	order := newTestOrder(t, now)
	require.NoError(t, order.MarkProcessing("gw-1", now))

	for i := 1; i <= 2; i++ {
		escalated, err := order.RecordUnresolvedPoll("still processing", 3, now.Add(time.Duration(i)*5*time.Minute))
		require.NoError(t, err)
		assert.False(t, escalated)
		assert.Equal(t, i, order.UnresolvedPolls)
	}

	escalated, err := order.RecordUnresolvedPoll("still processing", 3, now.Add(15*time.Minute))
	require.NoError(t, err)
	assert.True(t, escalated)
	assert.Equal(t, RechargeOrderStatusAnomaly, order.Status)

	_, err = order.RecordUnresolvedPoll("again", 3, now)
	assert.ErrorIs(t, err, ErrOrderTerminal)
}

func TestRechargeOrder_ResetUnresolvedPolls(t *testing.T) {
	now := time.Now()
	order := newTestOrder(t, now)
	_, err := order.RecordUnresolvedPoll("timeout", 3, now)
	require.NoError(t, err)

	later := now.Add(time.Minute)
	order.ResetUnresolvedPolls(later)
	assert.Zero(t, order.UnresolvedPolls)
	assert.Empty(t, order.LastError)
	assert.Equal(t, later, order.UpdatedAt)
}

func TestPaymentCallback_Validate(t *testing.T) {
	ok := PaymentCallback{OrderNumber: "RC1", GatewayTransactionID: "tx", Status: CallbackStatusSuccess, PaidAmount: decimal.NewFromInt(1)}
	assert.NoError(t, ok.Validate())

	failed := PaymentCallback{OrderNumber: "RC1", GatewayTransactionID: "tx", Status: CallbackStatusFailed, ErrorCode: "E1"}
	assert.NoError(t, failed.Validate())
	assert.Equal(t, "E1", failed.FailureReason())

	bad := []PaymentCallback{
		{GatewayTransactionID: "tx", Status: CallbackStatusSuccess, PaidAmount: decimal.NewFromInt(1)},
		{OrderNumber: "RC1", Status: CallbackStatusSuccess, PaidAmount: decimal.NewFromInt(1)},
		{OrderNumber: "RC1", GatewayTransactionID: "tx", Status: CallbackStatusSuccess},
		{OrderNumber: "RC1", GatewayTransactionID: "tx", Status: "refunded"},
	}
	for _, cb := range bad {
		assert.ErrorIs(t, cb.Validate(), ErrInvalidCallback)
	}
}

func TestParsePaymentGatewayType(t *testing.T) {
	gw, err := ParsePaymentGatewayType("alipay")
	require.NoError(t, err)
	assert.Equal(t, PaymentGatewayTypeAlipay, gw)

	_, err = ParsePaymentGatewayType("stripe")
	assert.ErrorIs(t, err, ErrPaymentInvalidGatewayType)
}
