package testutil

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/arcade/backend/internal/domain/license"
	"github.com/arcade/backend/internal/domain/operator"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Seed repositories used by Fixture.Apply
type Seed struct {
	Accounts       operator.AccountRepository
	Sites          operator.SiteRepository
	Applications   license.ApplicationRepository
	Authorizations license.AuthorizationRepository
}

// Seed returns the store's repositories for seeding
func (s *MemoryStore) Seed() Seed {
	return Seed{
		Accounts:       s.Accounts(),
		Sites:          s.Sites(),
		Applications:   s.Applications(),
		Authorizations: s.Authorizations(),
	}
}

// Fixture describes the standard operator/site/application/grant set-up
type Fixture struct {
	OperatorID  string
	SiteID      string
	AppCode     string
	Balance     string
	UnitPrice   string
	MinPlayers  int
	MaxPlayers  int
	GrantExpiry *time.Time
	APIKeyHash  string
	Now         time.Time

	Account     *operator.Account
	Site        *operator.Site
	Application *license.Application
	Grant       *license.Authorization
}

// DefaultFixture returns op1 with 450.00, site-1 and a 10.00/player title for 1-6 players
func DefaultFixture(now time.Time) *Fixture {
	return &Fixture{
		OperatorID: "op1",
		SiteID:     "site-1",
		AppCode:    "space-raiders",
		Balance:    "450.00",
		UnitPrice:  "10.00",
		MinPlayers: 1,
		MaxPlayers: 6,
		Now:        now,
	}
}

// Apply creates the fixture rows through seed
func (f *Fixture) Apply(t *testing.T, seed Seed) *Fixture {
	t.Helper()
	ctx := context.Background()

	acc, err := operator.NewAccount(f.OperatorID, "Operator "+f.OperatorID, operator.AccountTierStandard, f.Now)
	require.NoError(t, err)
	acc.Balance = decimal.RequireFromString(f.Balance)
	acc.APIKeyHash = f.APIKeyHash
	require.NoError(t, seed.Accounts.Create(ctx, acc))

	site := operator.NewSite(f.SiteID, f.OperatorID, "Site "+f.SiteID, f.Now)
	require.NoError(t, seed.Sites.Create(ctx, site))

	app, err := license.NewApplication(f.AppCode, "Title "+f.AppCode, decimal.RequireFromString(f.UnitPrice), f.MinPlayers, f.MaxPlayers, f.Now)
	require.NoError(t, err)
	require.NoError(t, seed.Applications.Create(ctx, app))

	grant := license.NewAuthorization(f.OperatorID, app.ID, f.GrantExpiry, f.Now)
	require.NoError(t, seed.Authorizations.Create(ctx, grant))

	f.Account, f.Site, f.Application, f.Grant = acc, site, app, grant
	return f
}

// SessionID builds a well-formed session id for the fixture operator at f.Now
func (f *Fixture) SessionID(suffix string) string {
	return f.OperatorID + "_" + strconv.FormatInt(f.Now.UnixMilli(), 10) + "_" + suffix
}
