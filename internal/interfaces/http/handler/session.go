package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	billingapp "github.com/arcade/backend/internal/application/billing"
	"github.com/arcade/backend/internal/infrastructure/logger"
	"github.com/arcade/backend/internal/interfaces/http/dto"
	"github.com/arcade/backend/internal/interfaces/http/middleware"
)

// SessionAuthorizer is the billing surface used by SessionHandler
type SessionAuthorizer interface {
	Authorize(ctx context.Context, creds billingapp.Credentials, req billingapp.AuthorizeRequest) (*billingapp.AuthorizationResult, error)
	GetSession(ctx context.Context, operatorID, sessionID string) (*billingapp.AuthorizationResult, error)
}

// SessionHandler serves game session authorization
type SessionHandler struct {
	BaseHandler
	sessions SessionAuthorizer
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions SessionAuthorizer) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Authorize handles POST /api/v1/sessions/authorize.
// Credentials are verified inside the service so that the rejection order
// is the same for every caller. A replayed session id returns the stored
// result unchanged.
func (h *SessionHandler) Authorize(c *gin.Context) {
	var req dto.AuthorizeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	ctx, _ := logger.WithSessionID(c.Request.Context(), logger.FromContext(c.Request.Context()), req.SessionID)
	result, err := h.sessions.Authorize(ctx, middleware.CredentialsFromRequest(c), billingapp.AuthorizeRequest{
		SessionID:   req.SessionID,
		AppCode:     req.AppCode,
		SiteID:      req.SiteID,
		PlayerCount: req.PlayerCount,
		ClientIP:    c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	middleware.SetOperator(c, result.OperatorID)
	h.Success(c, toSessionResponse(result))
}

// GetSession handles GET /api/v1/sessions/:session_id
func (h *SessionHandler) GetSession(c *gin.Context) {
	result, err := h.sessions.GetSession(c.Request.Context(), middleware.GetOperatorID(c), c.Param("session_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSessionResponse(result))
}

func toSessionResponse(r *billingapp.AuthorizationResult) dto.SessionResponse {
	return dto.SessionResponse{
		SessionID:    r.SessionID,
		UnitPrice:    r.UnitPrice.StringFixed(2),
		PlayerCount:  r.PlayerCount,
		TotalCost:    r.TotalCost.StringFixed(2),
		BalanceAfter: r.BalanceAfter.StringFixed(2),
		AuthorizedAt: r.AuthorizedAt.UTC().Format(time.RFC3339Nano),
	}
}
