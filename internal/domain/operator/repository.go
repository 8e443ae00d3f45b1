package operator

import "context"

// AccountRepository persists operator accounts.
//
// The *ForUpdate variants must be called inside a transaction; they take an
// exclusive row lock that is held until commit or rollback.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByIDForUpdate(ctx context.Context, id string) (*Account, error)
	// FindByIDsForUpdate locks several accounts in ascending id order
	FindByIDsForUpdate(ctx context.Context, ids []string) ([]*Account, error)
	// UpdateBalance writes the balance if the stored version still equals
	// account.Version, then bumps the version. Returns
	// shared.ErrConcurrencyConflict when another writer got there first.
	UpdateBalance(ctx context.Context, account *Account) error
	// UpdateAPIKeyHash replaces the stored credential hash
	UpdateAPIKeyHash(ctx context.Context, id, hash string) error
}

// SiteRepository persists sites
type SiteRepository interface {
	Create(ctx context.Context, site *Site) error
	FindByID(ctx context.Context, id string) (*Site, error)
}
