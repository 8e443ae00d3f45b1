package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arcade/backend/internal/application/uow"
	"github.com/arcade/backend/internal/domain/billing"
	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/domain/license"
	"github.com/arcade/backend/internal/domain/operator"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/internal/infrastructure/config"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDatabase(&config.DatabaseConfig{
		Driver:       config.DriverSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "arcade.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.AutoMigrate())
	return db.DB
}

func seedAccount(t *testing.T, db *gorm.DB, id string, balance string) *operator.Account {
	t.Helper()
	a, err := operator.NewAccount(id, "Arcade "+id, operator.AccountTierStandard, testNow)
	require.NoError(t, err)
	a.Balance = decimal.RequireFromString(balance)
	require.NoError(t, NewGormAccountRepository(db).Create(context.Background(), a))
	return a
}

func TestGormAccountRepository(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	repo := NewGormAccountRepository(db)
	seedAccount(t, db, "op1", "500.00")

	t.Run("find by id", func(t *testing.T) {
		got, err := repo.FindByID(ctx, "op1")
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("500").Equal(got.Balance))
		assert.Equal(t, 1, got.Version)
		assert.True(t, got.IsActive)
	})

	t.Run("missing account", func(t *testing.T) {
		_, err := repo.FindByID(ctx, "nobody")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("duplicate create conflicts", func(t *testing.T) {
		dup, err := operator.NewAccount("op1", "again", operator.AccountTierTrial, testNow)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrConcurrencyConflict)
	})

	t.Run("versioned balance update", func(t *testing.T) {
		first, err := repo.FindByID(ctx, "op1")
		require.NoError(t, err)
		stale, err := repo.FindByID(ctx, "op1")
		require.NoError(t, err)

		_, _, err = first.Deduct(decimal.RequireFromString("20.00"), testNow)
		require.NoError(t, err)
		require.NoError(t, repo.UpdateBalance(ctx, first))
		assert.Equal(t, 2, first.Version)

		_, _, err = stale.Deduct(decimal.RequireFromString("30.00"), testNow)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.UpdateBalance(ctx, stale), shared.ErrConcurrencyConflict)

		got, err := repo.FindByID(ctx, "op1")
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("480").Equal(got.Balance))
	})

	t.Run("api key hash", func(t *testing.T) {
		require.NoError(t, repo.UpdateAPIKeyHash(ctx, "op1", "$2a$10$hash"))
		got, err := repo.FindByID(ctx, "op1")
		require.NoError(t, err)
		assert.Equal(t, "$2a$10$hash", got.APIKeyHash)

		assert.ErrorIs(t, repo.UpdateAPIKeyHash(ctx, "nobody", "x"), shared.ErrNotFound)
	})
}

func TestGormAccountRepository_FindByIDsForUpdate(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	seedAccount(t, db, "opc", "1.00")
	seedAccount(t, db, "opa", "2.00")
	seedAccount(t, db, "opb", "3.00")

	scope := NewGormTransactionScope(db)
	err := scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		got, err := repos.Accounts().FindByIDsForUpdate(ctx, []string{"opc", "opa", "opb", "opa"})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "opa", got[0].ID)
		assert.Equal(t, "opb", got[1].ID)
		assert.Equal(t, "opc", got[2].ID)

		_, err = repos.Accounts().FindByIDsForUpdate(ctx, []string{"opa", "ghost"})
		assert.ErrorIs(t, err, shared.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestGormSiteAndLicenseRepositories(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	seedAccount(t, db, "op1", "0")

	sites := NewGormSiteRepository(db)
	require.NoError(t, sites.Create(ctx, operator.NewSite("site-1", "op1", "Downtown", testNow)))
	site, err := sites.FindByID(ctx, "site-1")
	require.NoError(t, err)
	assert.Equal(t, "op1", site.OperatorID)
	_, err = sites.FindByID(ctx, "site-x")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	apps := NewGormApplicationRepository(db)
	app, err := license.NewApplication("space-race", "Space Race", decimal.RequireFromString("10.00"), 1, 4, testNow)
	require.NoError(t, err)
	require.NoError(t, apps.Create(ctx, app))

	gotApp, err := apps.FindByCode(ctx, "space-race")
	require.NoError(t, err)
	assert.Equal(t, app.ID, gotApp.ID)
	assert.True(t, decimal.RequireFromString("10").Equal(gotApp.UnitPrice))

	grants := NewGormAuthorizationRepository(db)
	require.NoError(t, grants.Create(ctx, license.NewAuthorization("op1", app.ID, nil, testNow)))
	grant, err := grants.FindByOperatorAndApplication(ctx, "op1", app.ID)
	require.NoError(t, err)
	assert.Nil(t, grant.ExpiresAt)

	_, err = grants.FindByOperatorAndApplication(ctx, "op2", app.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func newTestSession(t *testing.T, sessionID string) *billing.UsageSession {
	t.Helper()
	s, err := billing.NewUsageSession(billing.NewUsageSessionParams{
		SessionID:       sessionID,
		OperatorID:      "op1",
		SiteID:          "site-1",
		ApplicationCode: "space-race",
		UnitPrice:       decimal.RequireFromString("10.00"),
		PlayerCount:     2,
		TotalCost:       decimal.RequireFromString("20.00"),
		BalanceAfter:    decimal.RequireFromString("80.00"),
		AuthorizedAt:    testNow,
	})
	require.NoError(t, err)
	return s
}

func TestGormSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSessionRepository(newSQLiteDB(t))
	sid := "op1_1709283600000_abcdef123456"

	require.NoError(t, repo.Create(ctx, newTestSession(t, sid)))

	err := repo.Create(ctx, newTestSession(t, sid))
	assert.ErrorIs(t, err, billing.ErrSessionConflict)

	got, err := repo.FindBySessionID(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 2, got.PlayerCount)
	assert.True(t, decimal.RequireFromString("20").Equal(got.TotalCost))

	n, err := repo.CountBySessionID(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.FindBySessionID(ctx, "op1_0_missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormLedgerRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormLedgerRepository(newSQLiteDB(t))

	balance := decimal.RequireFromString("100.00")
	for i := 0; i < 3; i++ {
		amount := decimal.RequireFromString("10.00")
		e, err := billing.NewLedgerEntry("op1", billing.LedgerEntryTypeConsumption, amount, balance, balance.Sub(amount),
			billing.ReferenceTypeUsageSession, "sess-"+string(rune('a'+i)), "", testNow.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, e))
		balance = balance.Sub(amount)
	}

	entries, err := repo.ListByOperator(ctx, "op1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "sess-c", entries[0].ReferenceID)
	assert.Equal(t, "sess-b", entries[1].ReferenceID)

	byRef, err := repo.FindByReference(ctx, billing.ReferenceTypeUsageSession, "sess-a")
	require.NoError(t, err)
	require.Len(t, byRef, 1)
	assert.True(t, decimal.RequireFromString("90").Equal(byRef[0].BalanceAfter))

	none, err := repo.ListByOperator(ctx, "op2", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormRechargeOrderRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormRechargeOrderRepository(newSQLiteDB(t))

	newOrder := func(createdAt time.Time) *finance.RechargeOrder {
		o, err := finance.NewRechargeOrder("op1", decimal.RequireFromString("100.00"), finance.PaymentGatewayTypeWechat, 30*time.Minute, createdAt)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, o))
		return o
	}

	old := newOrder(testNow.Add(-time.Hour))
	older := newOrder(testNow.Add(-2 * time.Hour))
	fresh := newOrder(testNow)
	done := newOrder(testNow.Add(-3 * time.Hour))

	require.NoError(t, done.MarkSuccess("tx-1", testNow, testNow))
	require.NoError(t, repo.Save(ctx, done))
	assert.Equal(t, 2, done.Version)

	t.Run("reconcilable oldest first", func(t *testing.T) {
		got, err := repo.FindReconcilable(ctx, testNow.Add(-5*time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, older.OrderNo, got[0].OrderNo)
		assert.Equal(t, old.OrderNo, got[1].OrderNo)

		limited, err := repo.FindReconcilable(ctx, testNow.Add(-5*time.Minute), 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("stale save conflicts", func(t *testing.T) {
		a, err := repo.FindByOrderNo(ctx, fresh.OrderNo)
		require.NoError(t, err)
		b, err := repo.FindByOrderNo(ctx, fresh.OrderNo)
		require.NoError(t, err)

		require.NoError(t, a.MarkProcessing("gw-1", testNow))
		require.NoError(t, repo.Save(ctx, a))

		require.NoError(t, b.MarkProcessing("gw-2", testNow))
		assert.ErrorIs(t, repo.Save(ctx, b), shared.ErrConcurrencyConflict)

		got, err := repo.FindByOrderNo(ctx, fresh.OrderNo)
		require.NoError(t, err)
		assert.Equal(t, "gw-1", got.GatewayOrderID)
		assert.Equal(t, finance.RechargeOrderStatusProcessing, got.Status)
	})

	t.Run("missing order", func(t *testing.T) {
		_, err := repo.FindByOrderNo(ctx, "RC-missing")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormTransactionScope(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	seedAccount(t, db, "op1", "100.00")
	scope := NewGormTransactionScope(db)
	boom := errors.New("boom")

	t.Run("rolls back on error", func(t *testing.T) {
		err := scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
			a, err := repos.Accounts().FindByIDForUpdate(ctx, "op1")
			if err != nil {
				return err
			}
			if _, _, err := a.Deduct(decimal.RequireFromString("40.00"), testNow); err != nil {
				return err
			}
			if err := repos.Accounts().UpdateBalance(ctx, a); err != nil {
				return err
			}
			if err := repos.Sessions().Create(ctx, newTestSession(t, "op1_1_rollback")); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := NewGormAccountRepository(db).FindByID(ctx, "op1")
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("100").Equal(got.Balance))
		n, err := NewGormSessionRepository(db).CountBySessionID(ctx, "op1_1_rollback")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("commits on success", func(t *testing.T) {
		err := scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
			a, err := repos.Accounts().FindByIDForUpdate(ctx, "op1")
			if err != nil {
				return err
			}
			before, after, err := a.Deduct(decimal.RequireFromString("40.00"), testNow)
			if err != nil {
				return err
			}
			if err := repos.Accounts().UpdateBalance(ctx, a); err != nil {
				return err
			}
			entry, err := billing.NewLedgerEntry("op1", billing.LedgerEntryTypeConsumption, decimal.RequireFromString("40.00"),
				before, after, billing.ReferenceTypeUsageSession, "op1_1_commit", "", testNow)
			if err != nil {
				return err
			}
			return repos.Ledger().Create(ctx, entry)
		})
		require.NoError(t, err)

		got, err := NewGormAccountRepository(db).FindByID(ctx, "op1")
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("60").Equal(got.Balance))
		entries, err := NewGormLedgerRepository(db).FindByReference(ctx, billing.ReferenceTypeUsageSession, "op1_1_commit")
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}
