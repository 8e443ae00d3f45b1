package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arcade/backend/internal/domain/billing"
	"github.com/arcade/backend/internal/domain/shared"
)

// IdempotencyGuard validates session identifiers and finds committed results.
// It never decides uniqueness on its own: the unique index on the session
// table does, and the engine turns a collision into a replay.
type IdempotencyGuard struct {
	sessions billing.SessionRepository
	skew     time.Duration
}

// NewIdempotencyGuard creates an IdempotencyGuard
func NewIdempotencyGuard(sessions billing.SessionRepository, skew time.Duration) *IdempotencyGuard {
	if skew <= 0 {
		skew = billing.DefaultSessionSkew
	}
	return &IdempotencyGuard{sessions: sessions, skew: skew}
}

// Validate checks format, ownership and freshness of raw for callerID
func (g *IdempotencyGuard) Validate(raw, callerID string, now time.Time) (billing.SessionID, error) {
	return billing.ValidateSessionID(raw, callerID, now, g.skew)
}

// Lookup returns the committed result for sessionID, or nil if there is none
func (g *IdempotencyGuard) Lookup(ctx context.Context, sessionID string) (*AuthorizationResult, error) {
	session, err := g.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup session %s: %w", sessionID, err)
	}
	return resultFromSession(session, true), nil
}
