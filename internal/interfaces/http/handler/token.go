package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/internal/infrastructure/auth"
	"github.com/arcade/backend/internal/interfaces/http/dto"
	"github.com/arcade/backend/internal/interfaces/http/middleware"
)

// ErrInvalidToken is returned when a token named for revocation does not
// verify or belongs to another operator.
var ErrInvalidToken = shared.NewValidationError("INVALID_TOKEN", "Token is not valid for this operator")

// OperatorTokens is the token surface used by TokenHandler
type OperatorTokens interface {
	Issue(operatorID string) (*auth.IssuedToken, error)
	RevokeToken(ctx context.Context, operatorID, token string) error
	RevokeAll(ctx context.Context, operatorID string) error
}

// TokenHandler lets an authenticated operator trade its API key for a
// short-lived bearer token and revoke tokens it no longer trusts.
type TokenHandler struct {
	BaseHandler
	tokens OperatorTokens
}

func NewTokenHandler(tokens OperatorTokens) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// Issue handles POST /api/v1/auth/token
func (h *TokenHandler) Issue(c *gin.Context) {
	issued, err := h.tokens.Issue(middleware.GetOperatorID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.TokenResponse{
		Token:     issued.Token,
		TokenType: issued.TokenType,
		ExpiresAt: issued.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Revoke handles POST /api/v1/auth/revoke
func (h *TokenHandler) Revoke(c *gin.Context) {
	var req dto.RevokeTokenRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.ValidationError(c, err)
			return
		}
	}

	operatorID := middleware.GetOperatorID(c)
	var err error
	if req.Token != "" {
		err = h.tokens.RevokeToken(c.Request.Context(), operatorID, req.Token)
	} else {
		err = h.tokens.RevokeAll(c.Request.Context(), operatorID)
	}
	if isTokenError(err) {
		err = ErrInvalidToken
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func isTokenError(err error) bool {
	for _, target := range []error{
		auth.ErrInvalidToken, auth.ErrExpiredToken, auth.ErrInvalidTokenType,
		auth.ErrInvalidClaims, auth.ErrTokenNotYetValid, auth.ErrMissingOperatorID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
