package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/arcade/backend/internal/application/billing"
	"github.com/arcade/backend/internal/domain/operator"
)

// Authentication methods reported on billing.Identity
const (
	MethodAPIKey = "api_key"
	MethodJWT    = "jwt"
)

// CompositeVerifier accepts either a bearer JWT or an API key with a
// timestamp. A bearer token wins when both are present.
type CompositeVerifier struct {
	apiKeys   *APIKeyVerifier
	jwt       *JWTService
	revoked   RevocationStore
	logger    *zap.Logger
}

// NewCompositeVerifier creates a verifier. jwtService and revoked may be nil.
func NewCompositeVerifier(apiKeys *APIKeyVerifier, jwtService *JWTService, revoked RevocationStore, logger *zap.Logger) *CompositeVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompositeVerifier{
		apiKeys:   apiKeys,
		jwt:       jwtService,
		revoked:   revoked,
		logger:    logger,
	}
}

// Verify implements billing.CredentialVerifier
func (v *CompositeVerifier) Verify(ctx context.Context, creds billing.Credentials) (*billing.Identity, error) {
	if token := strings.TrimSpace(strings.TrimPrefix(creds.BearerToken, "Bearer ")); token != "" {
		operatorID, err := v.verifyJWT(ctx, token)
		if err != nil {
			return nil, v.reject(MethodJWT, err)
		}
		return &billing.Identity{OperatorID: operatorID, Method: MethodJWT}, nil
	}

	if creds.APIKey == "" || v.apiKeys == nil {
		return nil, operator.ErrInvalidAPIKey
	}
	operatorID, err := v.apiKeys.VerifyAPIKey(ctx, creds.APIKey, creds.Timestamp)
	if err != nil {
		return nil, v.reject(MethodAPIKey, err)
	}
	return &billing.Identity{OperatorID: operatorID, Method: MethodAPIKey}, nil
}

func (v *CompositeVerifier) verifyJWT(ctx context.Context, token string) (string, error) {
	if v.jwt == nil || !v.jwt.Enabled() {
		return "", ErrMissingSecret
	}
	claims, err := v.jwt.ValidateToken(token)
	if err != nil {
		return "", err
	}
	if v.revoked == nil {
		return claims.OperatorID, nil
	}
	revoked, err := v.revoked.IsRevoked(ctx, claims.ID, claims.OperatorID, claims.GetIssuedAtTime())
	if err != nil {
		return "", err
	}
	if revoked {
		return "", ErrTokenRevoked
	}
	return claims.OperatorID, nil
}

// reject maps credential failures to INVALID_API_KEY and lets storage
// failures through so the caller can treat them as transient.
func (v *CompositeVerifier) reject(method string, err error) error {
	if isCredentialError(err) {
		v.logger.Debug("Credential rejected", zap.String("method", method), zap.Error(err))
		return operator.ErrInvalidAPIKey
	}
	v.logger.Warn("Credential check failed", zap.String("method", method), zap.Error(err))
	return err
}

func isCredentialError(err error) bool {
	for _, target := range []error{
		ErrMalformedAPIKey, ErrMissingTimestamp, ErrInvalidTimestamp, ErrTimestampSkew,
		ErrAPIKeyMismatch, ErrNoAPIKeyOnAccount,
		ErrInvalidToken, ErrExpiredToken, ErrInvalidTokenType, ErrInvalidClaims,
		ErrTokenNotYetValid, ErrMissingOperatorID, ErrTokenRevoked, ErrMissingSecret,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var _ billing.CredentialVerifier = (*CompositeVerifier)(nil)
