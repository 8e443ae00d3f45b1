package finance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/domain/operator"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Mocks
// ============================================================================

// MockPaymentGateway is a mock implementation of finance.PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
	gatewayType finance.PaymentGatewayType
}

func newMockGateway(t finance.PaymentGatewayType) *MockPaymentGateway {
	return &MockPaymentGateway{gatewayType: t}
}

func (m *MockPaymentGateway) GatewayType() finance.PaymentGatewayType {
	return m.gatewayType
}

func (m *MockPaymentGateway) CreatePayment(ctx context.Context, req *finance.CreatePaymentRequest) (*finance.CreatePaymentResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*finance.CreatePaymentResponse), args.Error(1)
}

func (m *MockPaymentGateway) QueryPayment(ctx context.Context, req *finance.QueryPaymentRequest) (*finance.QueryPaymentResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*finance.QueryPaymentResponse), args.Error(1)
}

type stubRegistry map[finance.PaymentGatewayType]finance.PaymentGateway

func (r stubRegistry) GetGateway(t finance.PaymentGatewayType) (finance.PaymentGateway, error) {
	g, ok := r[t]
	if !ok {
		return nil, finance.ErrGatewayNotConfigured
	}
	return g, nil
}

// MockCallbackVerifier is a mock implementation of finance.CallbackVerifier
type MockCallbackVerifier struct {
	mock.Mock
}

func (m *MockCallbackVerifier) Verify(gatewayType finance.PaymentGatewayType, payload []byte, signature string) error {
	return m.Called(gatewayType, payload, signature).Error(0)
}

// ============================================================================
// Fixtures
// ============================================================================

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type financeHarness struct {
	store    *testutil.MemoryStore
	clock    *testClock
	notifier *testutil.RecordingNotifier
	wechat   *MockPaymentGateway
	registry stubRegistry
}

func newFinanceHarness(t *testing.T, balance string) *financeHarness {
	t.Helper()
	h := &financeHarness{
		store:    testutil.NewMemoryStore(),
		clock:    &testClock{now: baseTime},
		notifier: testutil.NewRecordingNotifier(),
		wechat:   newMockGateway(finance.PaymentGatewayTypeWechat),
	}
	h.registry = stubRegistry{finance.PaymentGatewayTypeWechat: h.wechat}

	acc, err := operator.NewAccount("op1", "Operator op1", operator.AccountTierStandard, baseTime)
	require.NoError(t, err)
	acc.Balance = decimal.RequireFromString(balance)
	require.NoError(t, h.store.Accounts().Create(context.Background(), acc))
	return h
}

func (h *financeHarness) sharedClock() shared.Clock {
	return h.clock.Now
}

// order stores a PROCESSING order for op1 created at the current clock time
func (h *financeHarness) order(t *testing.T, amount string) *finance.RechargeOrder {
	t.Helper()
	o, err := finance.NewRechargeOrder("op1", decimal.RequireFromString(amount), finance.PaymentGatewayTypeWechat, 30*time.Minute, h.clock.Now())
	require.NoError(t, err)
	require.NoError(t, o.MarkProcessing("wx-"+o.OrderNo, h.clock.Now()))
	require.NoError(t, h.store.RechargeOrders().Create(context.Background(), o))
	return o
}

func (h *financeHarness) stored(t *testing.T, orderNo string) finance.RechargeOrder {
	t.Helper()
	o, ok := h.store.Order(orderNo)
	require.True(t, ok, "order %s not stored", orderNo)
	return o
}

func (h *financeHarness) settlement() *SettlementService {
	return NewSettlementService(h.store, nil, h.sharedClock(), nil)
}

func (h *financeHarness) alerter() *AnomalyAlerter {
	return NewAnomalyAlerter(h.notifier, nil, h.sharedClock(), nil)
}
