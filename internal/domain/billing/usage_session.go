package billing

import (
	"time"

	"github.com/arcade/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionIDDuplicateCode tags a request that replayed an already committed session
const SessionIDDuplicateCode = "SESSION_ID_DUPLICATE"

// UsageSession is the immutable record of one billed session
type UsageSession struct {
	ID              uuid.UUID
	SessionID       string
	OperatorID      string
	SiteID          string
	ApplicationID   uuid.UUID
	ApplicationCode string
	UnitPrice       decimal.Decimal
	PlayerCount     int
	TotalCost       decimal.Decimal
	BalanceAfter    decimal.Decimal
	ClientIP        string
	UserAgent       string
	AuthorizedAt    time.Time
	CreatedAt       time.Time
}

// NewUsageSessionParams holds everything needed to record a billed session
type NewUsageSessionParams struct {
	SessionID       string
	OperatorID      string
	SiteID          string
	ApplicationID   uuid.UUID
	ApplicationCode string
	UnitPrice       decimal.Decimal
	PlayerCount     int
	TotalCost       decimal.Decimal
	BalanceAfter    decimal.Decimal
	ClientIP        string
	UserAgent       string
	AuthorizedAt    time.Time
}

// NewUsageSession validates params and builds the record
func NewUsageSession(p NewUsageSessionParams) (*UsageSession, error) {
	if p.SessionID == "" || p.OperatorID == "" || p.SiteID == "" {
		return nil, shared.ErrInvalidInput
	}
	if p.PlayerCount <= 0 || p.TotalCost.IsNegative() || p.BalanceAfter.IsNegative() {
		return nil, shared.ErrInvalidInput
	}
	return &UsageSession{
		ID:              uuid.New(),
		SessionID:       p.SessionID,
		OperatorID:      p.OperatorID,
		SiteID:          p.SiteID,
		ApplicationID:   p.ApplicationID,
		ApplicationCode: p.ApplicationCode,
		UnitPrice:       p.UnitPrice,
		PlayerCount:     p.PlayerCount,
		TotalCost:       p.TotalCost,
		BalanceAfter:    p.BalanceAfter,
		ClientIP:        truncate(p.ClientIP, 64),
		UserAgent:       truncate(p.UserAgent, 255),
		AuthorizedAt:    p.AuthorizedAt,
		CreatedAt:       p.AuthorizedAt,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
