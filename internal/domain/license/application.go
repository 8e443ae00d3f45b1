// Package license holds the catalog of licensable applications and the
// per-operator entitlements that allow them to be launched.
package license

import (
	"time"

	"github.com/arcade/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrAppNotFound            = shared.NewNotFoundError("APP_NOT_FOUND", "Application not found")
	ErrPlayerCountOutOfRange  = shared.NewValidationError("PLAYER_COUNT_OUT_OF_RANGE", "Player count is outside the range allowed by the application")
	ErrInvalidApplicationSpec = shared.NewValidationError("INVALID_APPLICATION", "Application requires a code, a non-negative unit price and 1 <= min_players <= max_players")
)

// Application is a licensable VR/MR title billed per player per session
type Application struct {
	shared.BaseEntity
	Code       string
	Name       string
	UnitPrice  decimal.Decimal
	MinPlayers int
	MaxPlayers int
	IsActive   bool
}

// NewApplication creates an active application
func NewApplication(code, name string, unitPrice decimal.Decimal, minPlayers, maxPlayers int, now time.Time) (*Application, error) {
	if code == "" || unitPrice.IsNegative() || minPlayers < 1 || maxPlayers < minPlayers {
		return nil, ErrInvalidApplicationSpec
	}
	return &Application{
		BaseEntity: shared.NewBaseEntity(now),
		Code:       code,
		Name:       name,
		UnitPrice:  unitPrice.Round(2),
		MinPlayers: minPlayers,
		MaxPlayers: maxPlayers,
		IsActive:   true,
	}, nil
}

// ValidatePlayerCount checks count against the application's bounds
func (a *Application) ValidatePlayerCount(count int) error {
	if count < a.MinPlayers || count > a.MaxPlayers {
		return ErrPlayerCountOutOfRange.WithDetails(map[string]any{
			"player_count": count,
			"min_players":  a.MinPlayers,
			"max_players":  a.MaxPlayers,
		})
	}
	return nil
}

// ApplicationID returns the application's identifier
func (a *Application) ApplicationID() uuid.UUID {
	return a.ID
}
