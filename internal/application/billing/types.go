package billing

import (
	"context"
	"time"

	"github.com/arcade/backend/internal/domain/billing"
	"github.com/arcade/backend/internal/domain/license"
	"github.com/arcade/backend/internal/domain/operator"
	"github.com/shopspring/decimal"
)

// Credentials are the raw caller credentials taken from the request
type Credentials struct {
	APIKey      string
	Timestamp   string
	BearerToken string
}

// Identity is a verified caller
type Identity struct {
	OperatorID string
	Method     string
}

// CredentialVerifier checks credentials and returns the caller identity.
// It returns operator.ErrInvalidAPIKey for any credential failure.
type CredentialVerifier interface {
	Verify(ctx context.Context, creds Credentials) (*Identity, error)
}

// AuthorizeRequest asks to start a paid session
type AuthorizeRequest struct {
	SessionID   string
	AppCode     string
	SiteID      string
	PlayerCount int
	ClientIP    string
	UserAgent   string
}

// AuthorizationResult is returned for both a first-time charge and a replay.
// Replayed is internal only and never serialized, so both look the same to the caller.
type AuthorizationResult struct {
	SessionID    string          `json:"session_id"`
	OperatorID   string          `json:"-"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	PlayerCount  int             `json:"player_count"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	AuthorizedAt time.Time       `json:"authorized_at"`
	Replayed     bool            `json:"-"`
}

func resultFromSession(s *billing.UsageSession, replayed bool) *AuthorizationResult {
	return &AuthorizationResult{
		SessionID:    s.SessionID,
		OperatorID:   s.OperatorID,
		UnitPrice:    s.UnitPrice,
		PlayerCount:  s.PlayerCount,
		TotalCost:    s.TotalCost,
		BalanceAfter: s.BalanceAfter,
		AuthorizedAt: s.AuthorizedAt,
		Replayed:     replayed,
	}
}

// ValidatedRequest is the output of the validation chain, ready to bill
type ValidatedRequest struct {
	Account     *operator.Account
	Site        *operator.Site
	Application *license.Application
	Session     billing.SessionID
	Request     AuthorizeRequest
}
