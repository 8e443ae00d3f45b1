package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arcade/backend/internal/domain/finance"
)

func TestHMACCallbackVerifier_Verify(t *testing.T) {
	payload := []byte(`{"order_id":"RC1","status":"success","paid_amount":"100.00","gateway_transaction_id":"tx-1"}`)
	v := NewHMACCallbackVerifier(map[finance.PaymentGatewayType]string{
		finance.PaymentGatewayTypeWechat: testSecret,
	})

	tests := []struct {
		name      string
		gateway   finance.PaymentGatewayType
		payload   []byte
		signature string
		wantErr   error
	}{
		{"valid", finance.PaymentGatewayTypeWechat, payload, Sign(testSecret, payload), nil},
		{"valid with prefix", finance.PaymentGatewayTypeWechat, payload, "sha256=" + Sign(testSecret, payload), nil},
		{"tampered body", finance.PaymentGatewayTypeWechat, append([]byte(" "), payload...), Sign(testSecret, payload), finance.ErrGatewayInvalidCallback},
		{"wrong secret", finance.PaymentGatewayTypeWechat, payload, Sign("another-secret-value", payload), finance.ErrGatewayInvalidCallback},
		{"not hex", finance.PaymentGatewayTypeWechat, payload, "zzzz", finance.ErrGatewayInvalidCallback},
		{"empty", finance.PaymentGatewayTypeWechat, payload, "", finance.ErrGatewayInvalidCallback},
		{"unconfigured gateway", finance.PaymentGatewayTypeAlipay, payload, Sign(testSecret, payload), finance.ErrGatewayNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.gateway, tt.payload, tt.signature)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewHMACCallbackVerifierFromConfigs(t *testing.T) {
	payload := []byte(`{}`)
	v := NewHMACCallbackVerifierFromConfigs(
		&GatewayConfig{Type: finance.PaymentGatewayTypeWechat, Secret: testSecret},
		&GatewayConfig{Type: finance.PaymentGatewayTypeAlipay, Secret: testSecret, CallbackSecret: "alipay-callback-secret"},
	)

	assert.NoError(t, v.Verify(finance.PaymentGatewayTypeWechat, payload, Sign(testSecret, payload)))
	assert.NoError(t, v.Verify(finance.PaymentGatewayTypeAlipay, payload, Sign("alipay-callback-secret", payload)))
	assert.ErrorIs(t, v.Verify(finance.PaymentGatewayTypeAlipay, payload, Sign(testSecret, payload)), finance.ErrGatewayInvalidCallback)
}
