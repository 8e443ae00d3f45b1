package auth

import (
	"context"

	"go.uber.org/zap"

	"github.com/arcade/backend/internal/domain/shared"
)

// TokenService issues operator JWTs and revokes them ahead of expiry.
type TokenService struct {
	jwt     *JWTService
	revoked RevocationStore
	clock   shared.Clock
	logger  *zap.Logger
}

func NewTokenService(jwtService *JWTService, revoked RevocationStore, clock shared.Clock, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{jwt: jwtService, revoked: revoked, clock: clock, logger: logger}
}

// Issue signs a token for an operator that already proved its API key.
func (s *TokenService) Issue(operatorID string) (*IssuedToken, error) {
	issued, err := s.jwt.GenerateToken(operatorID, "")
	if err != nil {
		return nil, err
	}
	s.logger.Info("Operator token issued", zap.String("operator_id", operatorID), zap.Time("expires_at", issued.ExpiresAt))
	return issued, nil
}

// RevokeToken revokes one token. Only the operator it was issued to may
// revoke it; expired or foreign tokens fail with a credential error.
func (s *TokenService) RevokeToken(ctx context.Context, operatorID, token string) error {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return err
	}
	if claims.OperatorID != operatorID {
		return ErrInvalidClaims
	}
	if err := s.revoked.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}
	s.logger.Info("Operator token revoked", zap.String("operator_id", operatorID), zap.String("jti", claims.ID))
	return nil
}

// RevokeAll revokes every token issued to operatorID up to now. The cutoff
// is kept for one token lifetime, after which those tokens expire anyway.
func (s *TokenService) RevokeAll(ctx context.Context, operatorID string) error {
	if err := s.revoked.RevokeOperator(ctx, operatorID, s.clock.Now(), s.jwt.GetExpiration()); err != nil {
		return err
	}
	s.logger.Warn("All operator tokens revoked", zap.String("operator_id", operatorID))
	return nil
}
