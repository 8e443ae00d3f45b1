package license

import (
	"context"

	"github.com/google/uuid"
)

// ApplicationRepository reads the application catalog
type ApplicationRepository interface {
	Create(ctx context.Context, app *Application) error
	FindByCode(ctx context.Context, code string) (*Application, error)
}

// AuthorizationRepository reads operator entitlements
type AuthorizationRepository interface {
	Create(ctx context.Context, auth *Authorization) error
	// FindByOperatorAndApplication returns shared.ErrNotFound when no grant exists
	FindByOperatorAndApplication(ctx context.Context, operatorID string, applicationID uuid.UUID) (*Authorization, error)
}
