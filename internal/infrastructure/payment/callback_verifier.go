package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/arcade/backend/internal/domain/finance"
)

// SignatureHeader carries the callback signature
const SignatureHeader = "X-Signature"

// Sign returns the hex HMAC-SHA256 of payload under secret
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACCallbackVerifier implements finance.CallbackVerifier with one shared
// secret per gateway. The signature is the hex HMAC-SHA256 of the raw body,
// optionally prefixed with "sha256=".
type HMACCallbackVerifier struct {
	secrets map[finance.PaymentGatewayType][]byte
}

// NewHMACCallbackVerifier creates a verifier from per-gateway secrets
func NewHMACCallbackVerifier(secrets map[finance.PaymentGatewayType]string) *HMACCallbackVerifier {
	v := &HMACCallbackVerifier{secrets: make(map[finance.PaymentGatewayType][]byte, len(secrets))}
	for t, s := range secrets {
		if s != "" {
			v.secrets[t] = []byte(s)
		}
	}
	return v
}

// NewHMACCallbackVerifierFromConfigs takes each gateway's callback secret
func NewHMACCallbackVerifierFromConfigs(configs ...*GatewayConfig) *HMACCallbackVerifier {
	secrets := make(map[finance.PaymentGatewayType]string, len(configs))
	for _, c := range configs {
		cfg := *c
		cfg.applyDefaults()
		secrets[cfg.Type] = cfg.CallbackSecret
	}
	return NewHMACCallbackVerifier(secrets)
}

// Verify authenticates a raw callback body
func (v *HMACCallbackVerifier) Verify(gatewayType finance.PaymentGatewayType, payload []byte, signature string) error {
	secret, ok := v.secrets[gatewayType]
	if !ok {
		return fmt.Errorf("%w: %s", finance.ErrGatewayNotConfigured, gatewayType)
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) != sha256.Size {
		return finance.ErrGatewayInvalidCallback
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return finance.ErrGatewayInvalidCallback
	}
	return nil
}

var _ finance.CallbackVerifier = (*HMACCallbackVerifier)(nil)
