package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/infrastructure/config"
	"github.com/arcade/backend/internal/infrastructure/payment"
)

func TestBuildGatewayConfigs(t *testing.T) {
	gc := config.GatewayConfig{
		Timeout: 3 * time.Second,
		Wechat: config.GatewayEndpoint{
			Enabled:    true,
			BaseURL:    "https://pay.example.com",
			MerchantID: "m-1",
			Secret:     "0123456789abcdef",
		},
		Alipay: config.GatewayEndpoint{Enabled: false},
	}

	configs, err := buildGatewayConfigs(gc)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, finance.PaymentGatewayTypeWechat, configs[0].Type)
	assert.Equal(t, 3*time.Second, configs[0].Timeout)
	assert.Equal(t, "0123456789abcdef", configs[0].CallbackSecret)
}

func TestBuildGatewayConfigs_Invalid(t *testing.T) {
	_, err := buildGatewayConfigs(config.GatewayConfig{
		Alipay: config.GatewayEndpoint{Enabled: true, BaseURL: "https://pay.example.com", MerchantID: "m", Secret: "short"},
	})
	assert.ErrorIs(t, err, payment.ErrGatewaySecretTooShort)
}

func TestDBSystem(t *testing.T) {
	assert.Equal(t, "sqlite", dbSystem(config.DriverSQLite))
	assert.Equal(t, "postgresql", dbSystem(config.DriverPostgres))
}
