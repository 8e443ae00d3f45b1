package operator

import (
	"time"

	"github.com/arcade/backend/internal/domain/shared"
)

var (
	ErrSiteNotFound = shared.NewNotFoundError("SITE_NOT_FOUND", "Site not found")
	ErrSiteNotOwned = shared.NewAuthorizationError("SITE_NOT_OWNED", "Site does not belong to the operator")
)

// Site is a physical venue registered by an operator
type Site struct {
	ID         string
	OperatorID string
	Name       string
	Address    string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewSite creates an active site owned by operatorID
func NewSite(id, operatorID, name string, now time.Time) *Site {
	return &Site{
		ID:         id,
		OperatorID: operatorID,
		Name:       name,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// CheckOwnedBy returns ErrSiteNotOwned unless the site is active and belongs to operatorID.
// An inactive site is reported as not owned so callers cannot discover deactivated venues.
func (s *Site) CheckOwnedBy(operatorID string) error {
	if s.OperatorID != operatorID || !s.IsActive {
		return ErrSiteNotOwned
	}
	return nil
}
