package billing

import (
	"context"
	"testing"
	"time"

	"github.com/arcade/backend/internal/application/uow"
	"github.com/arcade/backend/internal/domain/billing"
	"github.com/arcade/backend/internal/domain/operator"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/tests/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Mocks
// ============================================================================

// MockCredentialVerifier is a mock implementation of CredentialVerifier
type MockCredentialVerifier struct {
	mock.Mock
}

func (m *MockCredentialVerifier) Verify(ctx context.Context, creds Credentials) (*Identity, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Identity), args.Error(1)
}

// verifierFor accepts any credentials as operatorID
func verifierFor(operatorID string) *MockCredentialVerifier {
	v := new(MockCredentialVerifier)
	v.On("Verify", mock.Anything, mock.Anything).Return(&Identity{OperatorID: operatorID, Method: "api_key"}, nil)
	return v
}

// ============================================================================
// Fixtures
// ============================================================================

// scenarioNow matches the timestamp embedded in op1_1700000000000_abcd1234efgh5678
var scenarioNow = time.UnixMilli(1700000000000).UTC()

const scenarioSessionSuffix = "abcd1234efgh5678"

type harness struct {
	store *testutil.MemoryStore
	fx    *testutil.Fixture
	now   time.Time
}

func newHarness(t *testing.T, balance string, tweaks ...func(*testutil.Fixture)) *harness {
	t.Helper()
	store := testutil.NewMemoryStore()
	fx := testutil.DefaultFixture(scenarioNow)
	fx.Balance = balance
	for _, tweak := range tweaks {
		tweak(fx)
	}
	fx.Apply(t, store.Seed())
	return &harness{store: store, fx: fx, now: scenarioNow}
}

func (h *harness) validated(t *testing.T, suffix string, players int) *ValidatedRequest {
	t.Helper()
	sid, err := billing.ParseSessionID(h.fx.SessionID(suffix))
	require.NoError(t, err)
	return &ValidatedRequest{
		Account:     h.fx.Account,
		Site:        h.fx.Site,
		Application: h.fx.Application,
		Session:     sid,
		Request: AuthorizeRequest{
			SessionID:   sid.Raw,
			AppCode:     h.fx.AppCode,
			SiteID:      h.fx.SiteID,
			PlayerCount: players,
			ClientIP:    "10.0.0.7",
			UserAgent:   "headset/2.1",
		},
	}
}

func (h *harness) engine(cfg EngineConfig, opts ...BillingEngineOption) *BillingEngine {
	opts = append([]BillingEngineOption{WithEngineClock(testutil.FixedClock(h.now))}, opts...)
	return NewBillingEngine(h.store, h.store.Sessions(), cfg, opts...)
}

func (h *harness) validator(verifier CredentialVerifier) *AuthorizationValidator {
	return NewAuthorizationValidator(AuthorizationValidatorConfig{
		Credentials:    verifier,
		Accounts:       h.store.Accounts(),
		Sites:          h.store.Sites(),
		Applications:   h.store.Applications(),
		Authorizations: h.store.Authorizations(),
		Guard:          NewIdempotencyGuard(h.store.Sessions(), billing.DefaultSessionSkew),
		Clock:          testutil.FixedClock(h.now),
	})
}

func (h *harness) addAccount(t *testing.T, id string, mutate func(*operator.Account)) {
	t.Helper()
	acc, err := operator.NewAccount(id, "Operator "+id, operator.AccountTierStandard, h.now)
	require.NoError(t, err)
	if mutate != nil {
		mutate(acc)
	}
	require.NoError(t, h.store.Accounts().Create(context.Background(), acc))
}

// blindScope hides committed sessions from the in-transaction lookup so the
// unique index is the only thing that can detect a duplicate.
type blindScope struct {
	inner uow.TransactionScope
}

func (b blindScope) Execute(ctx context.Context, fn func(uow.TransactionalRepositories) error) error {
	return b.inner.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		return fn(blindRepos{repos})
	})
}

type blindRepos struct {
	uow.TransactionalRepositories
}

func (r blindRepos) Sessions() billing.SessionRepository {
	return blindSessions{r.TransactionalRepositories.Sessions()}
}

type blindSessions struct {
	billing.SessionRepository
}

func (blindSessions) FindBySessionID(context.Context, string) (*billing.UsageSession, error) {
	return nil, shared.ErrNotFound
}
