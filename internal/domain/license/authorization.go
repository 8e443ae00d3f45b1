package license

import (
	"time"

	"github.com/arcade/backend/internal/domain/shared"
	"github.com/google/uuid"
)

var (
	ErrAppNotAuthorized     = shared.NewAuthorizationError("APP_NOT_AUTHORIZED", "Operator is not authorized to run this application")
	ErrAuthorizationExpired = shared.NewAuthorizationError("AUTHORIZATION_EXPIRED", "Application authorization has expired")
)

// Authorization grants an operator the right to launch an application.
// Billing only reads it.
type Authorization struct {
	shared.BaseEntity
	OperatorID    string
	ApplicationID uuid.UUID
	IsActive      bool
	GrantedAt     time.Time
	ExpiresAt     *time.Time
}

// NewAuthorization creates an active grant; expiresAt nil means perpetual
func NewAuthorization(operatorID string, applicationID uuid.UUID, expiresAt *time.Time, now time.Time) *Authorization {
	return &Authorization{
		BaseEntity:    shared.NewBaseEntity(now),
		OperatorID:    operatorID,
		ApplicationID: applicationID,
		IsActive:      true,
		GrantedAt:     now,
		ExpiresAt:     expiresAt,
	}
}

// Check returns nil if the grant is usable at now
func (a *Authorization) Check(now time.Time) error {
	if !a.IsActive {
		return ErrAppNotAuthorized
	}
	if a.ExpiresAt != nil && !now.Before(*a.ExpiresAt) {
		return ErrAuthorizationExpired.WithDetails(map[string]any{
			"expired_at": a.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
	return nil
}
