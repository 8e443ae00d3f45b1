package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/arcade/backend/internal/domain/billing"
	"github.com/arcade/backend/internal/domain/notification"
	"github.com/arcade/backend/internal/domain/operator"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillingEngine_Charge_DebitsBalance(t *testing.T) {
	h := newHarness(t, "450.00")
	engine := h.engine(EngineConfig{})

	result, err := engine.Charge(context.Background(), h.validated(t, scenarioSessionSuffix, 5))

	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, "op1_1700000000000_abcd1234efgh5678", result.SessionID)
	assert.Equal(t, "50.00", result.TotalCost.StringFixed(2))
	assert.Equal(t, "400.00", result.BalanceAfter.StringFixed(2))
	assert.Equal(t, "10.00", result.UnitPrice.StringFixed(2))
	assert.Equal(t, 5, result.PlayerCount)
	assert.Equal(t, scenarioNow, result.AuthorizedAt)

	assert.Equal(t, "400.00", h.store.Balance("op1"))
	assert.Equal(t, 1, h.store.SessionCount())

	entries := h.store.LedgerEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, billing.LedgerEntryTypeConsumption, entries[0].Type)
	assert.Equal(t, "50.00", entries[0].Amount.StringFixed(2))
	assert.Equal(t, "450.00", entries[0].BalanceBefore.StringFixed(2))
	assert.Equal(t, "400.00", entries[0].BalanceAfter.StringFixed(2))
	assert.Equal(t, billing.ReferenceTypeUsageSession, entries[0].ReferenceType)
	assert.Equal(t, result.SessionID, entries[0].ReferenceID)
}

func TestBillingEngine_Charge_InsufficientBalanceLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, "30.00")
	engine := h.engine(EngineConfig{})

	result, err := engine.Charge(context.Background(), h.validated(t, scenarioSessionSuffix, 5))

	assert.Nil(t, result)
	require.ErrorIs(t, err, shared.ErrInsufficientBalance)
	var de *shared.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "30.00", de.Details["balance"])
	assert.Equal(t, "50.00", de.Details["required"])

	assert.Equal(t, "30.00", h.store.Balance("op1"))
	assert.Equal(t, 0, h.store.SessionCount())
	assert.Empty(t, h.store.LedgerEntries())
}

func TestBillingEngine_Charge_ExactBalanceReachesZero(t *testing.T) {
	h := newHarness(t, "50.00")
	engine := h.engine(EngineConfig{})

	result, err := engine.Charge(context.Background(), h.validated(t, scenarioSessionSuffix, 5))

	require.NoError(t, err)
	assert.True(t, result.BalanceAfter.IsZero())
	assert.Equal(t, "0.00", h.store.Balance("op1"))
}

func TestBillingEngine_Charge_SequentialDuplicateIsReplayed(t *testing.T) {
	h := newHarness(t, "450.00")
	engine := h.engine(EngineConfig{})
	req := h.validated(t, scenarioSessionSuffix, 5)

	first, err := engine.Charge(context.Background(), req)
	require.NoError(t, err)

	second, err := engine.Charge(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.True(t, first.TotalCost.Equal(second.TotalCost))
	assert.True(t, first.BalanceAfter.Equal(second.BalanceAfter))
	assert.Equal(t, first.AuthorizedAt, second.AuthorizedAt)

	assert.Equal(t, "400.00", h.store.Balance("op1"))
	assert.Equal(t, 1, h.store.SessionCount())
	assert.Len(t, h.store.LedgerEntries(), 1)
}

func TestBillingEngine_Charge_ConcurrentDuplicateChargesOnce(t *testing.T) {
	for _, mode := range []LockMode{LockModePessimistic, LockModeOptimistic} {
		t.Run(string(mode), func(t *testing.T) {
			h := newHarness(t, "450.00")
			engine := h.engine(EngineConfig{LockMode: mode})

			const callers = 20
			req := h.validated(t, scenarioSessionSuffix, 5)
			results := make([]*AuthorizationResult, callers)
			errs := make([]error, callers)

			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					results[i], errs[i] = engine.Charge(context.Background(), req)
				}(i)
			}
			close(start)
			wg.Wait()

			fresh := 0
			for i := 0; i < callers; i++ {
				require.NoError(t, errs[i])
				if !results[i].Replayed {
					fresh++
				}
				assert.Equal(t, "400.00", results[i].BalanceAfter.StringFixed(2))
				assert.Equal(t, results[0].AuthorizedAt, results[i].AuthorizedAt)
			}
			assert.Equal(t, 1, fresh, "exactly one caller should perform the charge")
			assert.Equal(t, "400.00", h.store.Balance("op1"))
			assert.Equal(t, 1, h.store.SessionCount())
			assert.Len(t, h.store.LedgerEntries(), 1)
		})
	}
}

func TestBillingEngine_Charge_ConcurrentDistinctSessionsNeverOverdraw(t *testing.T) {
	h := newHarness(t, "450.00")
	engine := h.engine(EngineConfig{})

	const callers = 12 // 9 x 50.00 fit into 450.00
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		charged      int
		insufficient int
	)
	reqs := make([]*ValidatedRequest, callers)
	for i := range reqs {
		reqs[i] = h.validated(t, fmt.Sprintf("abcd1234efgh%04d", i), 5)
	}
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.Charge(context.Background(), reqs[i])
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				charged++
			case errors.Is(err, shared.ErrInsufficientBalance):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 9, charged)
	assert.Equal(t, 3, insufficient)
	assert.Equal(t, "0.00", h.store.Balance("op1"))
	assert.Equal(t, 9, h.store.SessionCount())

	// Every ledger entry chains: before - amount = after
	for _, e := range h.store.LedgerEntries() {
		assert.True(t, e.BalanceBefore.Sub(e.Amount).Equal(e.BalanceAfter), e.String())
	}
}

func TestBillingEngine_Charge_UniqueIndexConflictReplays(t *testing.T) {
	h := newHarness(t, "450.00")
	req := h.validated(t, scenarioSessionSuffix, 5)

	first, err := h.engine(EngineConfig{}).Charge(context.Background(), req)
	require.NoError(t, err)

	// The in-transaction lookup misses, so only the insert can detect the duplicate.
	blind := NewBillingEngine(blindScope{inner: h.store}, h.store.Sessions(), EngineConfig{},
		WithEngineClock(testutil.FixedClock(h.now.Add(time.Second))))

	second, err := blind.Charge(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.AuthorizedAt, second.AuthorizedAt)
	assert.Equal(t, "400.00", second.BalanceAfter.StringFixed(2))
	assert.Equal(t, "400.00", h.store.Balance("op1"), "conflicting transaction must roll back")
	assert.Len(t, h.store.LedgerEntries(), 1)
}

func TestBillingEngine_Charge_TransientFailureRollsBack(t *testing.T) {
	h := newHarness(t, "450.00")
	engine := h.engine(EngineConfig{})
	h.store.FailNext(testutil.OpLedgerCreate, shared.NewTransientError("insert ledger entry", errors.New("deadlock detected")))

	result, err := engine.Charge(context.Background(), h.validated(t, scenarioSessionSuffix, 5))

	assert.Nil(t, result)
	assert.True(t, shared.IsTransient(err))
	assert.Equal(t, "450.00", h.store.Balance("op1"))
	assert.Equal(t, 0, h.store.SessionCount())
	assert.Empty(t, h.store.LedgerEntries())
}

func TestBillingEngine_Charge_OptimisticRetriesVersionConflict(t *testing.T) {
	h := newHarness(t, "450.00")
	engine := h.engine(EngineConfig{LockMode: LockModeOptimistic, OptimisticRetries: 3})
	h.store.FailNext(testutil.OpAccountUpdateBalance, shared.ErrConcurrencyConflict, shared.ErrConcurrencyConflict)

	result, err := engine.Charge(context.Background(), h.validated(t, scenarioSessionSuffix, 5))

	require.NoError(t, err)
	assert.Equal(t, "400.00", result.BalanceAfter.StringFixed(2))
	assert.Equal(t, 3, h.store.Calls(testutil.OpAccountUpdateBalance))
	assert.Zero(t, h.store.Calls(testutil.OpAccountFindForUpdate), "optimistic mode must not take the row lock")
	assert.Equal(t, 1, h.store.SessionCount())
}

func TestBillingEngine_Charge_OptimisticRetriesExhausted(t *testing.T) {
	h := newHarness(t, "450.00")
	engine := h.engine(EngineConfig{LockMode: LockModeOptimistic, OptimisticRetries: 2})
	h.store.FailNext(testutil.OpAccountUpdateBalance, shared.ErrConcurrencyConflict, shared.ErrConcurrencyConflict)

	_, err := engine.Charge(context.Background(), h.validated(t, scenarioSessionSuffix, 5))

	assert.True(t, shared.IsTransient(err))
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.Equal(t, "450.00", h.store.Balance("op1"))
	assert.Equal(t, 0, h.store.SessionCount())
}

func TestBillingEngine_Charge_AccountLockedSinceValidation(t *testing.T) {
	h := newHarness(t, "450.00")
	h.addAccount(t, "op2", func(a *operator.Account) {
		a.Balance = decimal.RequireFromString("100.00")
		a.IsLocked = true
	})
	req := h.validated(t, scenarioSessionSuffix, 1)
	stale := *h.fx.Account
	stale.ID = "op2"
	req.Account = &stale

	_, err := h.engine(EngineConfig{}).Charge(context.Background(), req)

	assert.ErrorIs(t, err, operator.ErrAccountLocked)
	assert.Equal(t, "100.00", h.store.Balance("op2"))
}

func TestBillingEngine_Charge_TriggersLowBalanceNotifier(t *testing.T) {
	h := newHarness(t, "450.00")
	recorder := testutil.NewRecordingNotifier()
	notifier := NewLowBalanceNotifier(recorder, nil, LowBalanceNotifierConfig{
		Threshold: decimal.RequireFromString("420.00"),
	}, nil)
	engine := h.engine(EngineConfig{}, WithLowBalanceNotifier(notifier))

	_, err := engine.Charge(context.Background(), h.validated(t, scenarioSessionSuffix, 5))
	require.NoError(t, err)
	notifier.Wait()

	sent := recorder.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notification.KindLowBalance, sent[0].Kind)
	assert.Equal(t, "op1", sent[0].OperatorID)
	assert.Equal(t, "450.00", sent[0].Attributes["balance_before"])
	assert.Equal(t, "400.00", sent[0].Attributes["balance_after"])

	// A replay never alerts again
	_, err = engine.Charge(context.Background(), h.validated(t, scenarioSessionSuffix, 5))
	require.NoError(t, err)
	notifier.Wait()
	assert.Len(t, recorder.Sent(), 1)
}
