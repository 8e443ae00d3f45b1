// Package payment talks to external payment gateways over HTTP and verifies
// the callbacks they send back.
package payment

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/arcade/backend/internal/domain/finance"
)

// GatewayConfig contains the settings for one gateway endpoint
type GatewayConfig struct {
	// Type is the gateway this endpoint serves
	Type finance.PaymentGatewayType
	// BaseURL is the gateway API root, e.g. https://pay.example.com
	BaseURL string
	// MerchantID identifies us to the gateway
	MerchantID string
	// Secret signs outgoing API requests
	Secret string
	// CallbackSecret verifies incoming callbacks. Defaults to Secret.
	CallbackSecret string
	// Timeout bounds one HTTP round trip
	Timeout time.Duration
}

// Errors for configuration validation
var (
	ErrGatewayMissingType       = errors.New("payment: missing gateway type")
	ErrGatewayMissingBaseURL    = errors.New("payment: missing base URL")
	ErrGatewayInvalidBaseURL    = errors.New("payment: invalid base URL")
	ErrGatewayMissingMerchantID = errors.New("payment: missing merchant ID")
	ErrGatewayMissingSecret     = errors.New("payment: missing secret")
	ErrGatewaySecretTooShort    = errors.New("payment: secret must be at least 16 bytes")
)

const (
	defaultGatewayTimeout = 10 * time.Second
	minSecretLength       = 16
)

// Validate validates the configuration
func (c *GatewayConfig) Validate() error {
	if !c.Type.IsValid() {
		return ErrGatewayMissingType
	}
	if c.BaseURL == "" {
		return ErrGatewayMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrGatewayInvalidBaseURL, c.BaseURL)
	}
	if c.MerchantID == "" {
		return ErrGatewayMissingMerchantID
	}
	if c.Secret == "" {
		return ErrGatewayMissingSecret
	}
	if len(c.Secret) < minSecretLength {
		return ErrGatewaySecretTooShort
	}
	return nil
}

func (c *GatewayConfig) applyDefaults() {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.CallbackSecret == "" {
		c.CallbackSecret = c.Secret
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultGatewayTimeout
	}
}

// GatewayConfigBuilder helps build GatewayConfig
type GatewayConfigBuilder struct {
	config GatewayConfig
	err    error
}

// NewGatewayConfigBuilder creates a new config builder
func NewGatewayConfigBuilder() *GatewayConfigBuilder {
	return &GatewayConfigBuilder{}
}

// SetType sets the gateway type from its name ("wechat", "ALIPAY")
func (b *GatewayConfigBuilder) SetType(name string) *GatewayConfigBuilder {
	if b.err != nil {
		return b
	}
	t, err := finance.ParsePaymentGatewayType(name)
	if err != nil {
		b.err = fmt.Errorf("%w: %q", ErrGatewayMissingType, name)
		return b
	}
	b.config.Type = t
	return b
}

// SetBaseURL sets the API root
func (b *GatewayConfigBuilder) SetBaseURL(baseURL string) *GatewayConfigBuilder {
	b.config.BaseURL = baseURL
	return b
}

// SetMerchantID sets the merchant ID
func (b *GatewayConfigBuilder) SetMerchantID(id string) *GatewayConfigBuilder {
	b.config.MerchantID = id
	return b
}

// SetSecret sets the request signing secret
func (b *GatewayConfigBuilder) SetSecret(secret string) *GatewayConfigBuilder {
	b.config.Secret = secret
	return b
}

// SetCallbackSecret sets the callback verification secret
func (b *GatewayConfigBuilder) SetCallbackSecret(secret string) *GatewayConfigBuilder {
	b.config.CallbackSecret = secret
	return b
}

// SetTimeout sets the per-request timeout
func (b *GatewayConfigBuilder) SetTimeout(d time.Duration) *GatewayConfigBuilder {
	b.config.Timeout = d
	return b
}

// Build builds the config and validates it
func (b *GatewayConfigBuilder) Build() (*GatewayConfig, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	cfg := b.config
	cfg.applyDefaults()
	return &cfg, nil
}
