package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billingapp "github.com/arcade/backend/internal/application/billing"
	financeapp "github.com/arcade/backend/internal/application/finance"
	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/domain/operator"
	"github.com/arcade/backend/internal/infrastructure/auth"
	"github.com/arcade/backend/internal/infrastructure/config"
	"github.com/arcade/backend/internal/interfaces/http/handler"
	"github.com/arcade/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r := NewRouter(engine, WithAPIVersion("v1")).Register(group)
	assert.Len(t, r.registrars, 1)
	r.Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("sessions", "/sessions")
		assert.Equal(t, "sessions", g.Name())
		assert.Equal(t, "/sessions", g.Prefix())
	})

	t.Run("subgroup inherits middleware", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("payment", "/payment").Use(func(c *gin.Context) {
			c.Header("X-Group", "payment")
			c.Next()
		})
		g.Group("callback", "/callback").POST("/:gateway", func(c *gin.Context) {
			c.String(http.StatusOK, c.Param("gateway"))
		})
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/payment/callback/alipay", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "alipay", w.Body.String())
		assert.Equal(t, "payment", w.Header().Get("X-Group"))
	})

	t.Run("method mismatch is not routed", func(t *testing.T) {
		engine := gin.New()
		NewDomainGroup("system", "/system").
			GET("/info", func(c *gin.Context) { c.Status(http.StatusOK) }).
			RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/system/info", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

// ============================================================================
// NewEngine
// ============================================================================

type keyVerifier struct{}

func (keyVerifier) Verify(_ context.Context, creds billingapp.Credentials) (*billingapp.Identity, error) {
	if creds.APIKey != "op1.secret" {
		return nil, operator.ErrInvalidAPIKey
	}
	return &billingapp.Identity{OperatorID: "op1"}, nil
}

type fakeSessions struct{}

func (fakeSessions) Authorize(_ context.Context, _ billingapp.Credentials, req billingapp.AuthorizeRequest) (*billingapp.AuthorizationResult, error) {
	return &billingapp.AuthorizationResult{
		SessionID:    req.SessionID,
		OperatorID:   "op1",
		UnitPrice:    decimal.NewFromInt(10),
		PlayerCount:  req.PlayerCount,
		TotalCost:    decimal.NewFromInt(int64(10 * req.PlayerCount)),
		BalanceAfter: decimal.NewFromInt(90),
		AuthorizedAt: time.Unix(1700000000, 0).UTC(),
	}, nil
}

func (fakeSessions) GetSession(_ context.Context, _, _ string) (*billingapp.AuthorizationResult, error) {
	return nil, billingapp.ErrSessionNotFound
}

type fakeOrders struct{}

func (fakeOrders) CreateOrder(_ context.Context, req financeapp.CreateRechargeRequest) (*financeapp.CreateRechargeResult, error) {
	return &financeapp.CreateRechargeResult{
		OrderNo:   "RC1",
		Amount:    req.Amount,
		Status:    finance.RechargeOrderStatusProcessing,
		ExpiresAt: time.Unix(1700001800, 0).UTC(),
	}, nil
}

func (fakeOrders) GetOrder(_ context.Context, operatorID, orderNo string) (*finance.RechargeOrder, error) {
	return &finance.RechargeOrder{
		OrderNo:     orderNo,
		OperatorID:  operatorID,
		Amount:      decimal.NewFromInt(100),
		GatewayType: finance.PaymentGatewayTypeWechat,
		Status:      finance.RechargeOrderStatusPending,
		ExpiresAt:   time.Unix(1700001800, 0).UTC(),
	}, nil
}

type fakeCallbacks struct{ calls int }

func (f *fakeCallbacks) ProcessPaymentCallback(_ context.Context, _ finance.PaymentGatewayType, _ []byte, _ string) (*financeapp.PaymentCallbackResult, error) {
	f.calls++
	return &financeapp.PaymentCallbackResult{Success: true, Message: "ok", OrderNo: "RC1", OrderStatus: finance.RechargeOrderStatusSuccess}, nil
}

func newTestEngine(t *testing.T, cfg EngineConfig) (*gin.Engine, *fakeCallbacks) {
	t.Helper()
	callbacks := &fakeCallbacks{}
	cfg.Verifier = keyVerifier{}
	engine, err := NewEngine(cfg, Handlers{
		Sessions:  handler.NewSessionHandler(fakeSessions{}),
		Recharge:  handler.NewRechargeHandler(fakeOrders{}),
		Callbacks: handler.NewPaymentCallbackHandler(callbacks),
		System:    handler.NewSystemHandler(nil, "test"),
	})
	require.NoError(t, err)
	return engine, callbacks
}

func serve(engine *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewEngine_Health(t *testing.T) {
	engine, _ := newTestEngine(t, EngineConfig{})

	w := serve(engine, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestNewEngine_OperatorRoutesRequireCredentials(t *testing.T) {
	engine, _ := newTestEngine(t, EngineConfig{})

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/v1/recharge-orders/RC1", ""},
		{http.MethodPost, "/api/v1/recharge-orders", `{"amount":"100.00","gateway":"WECHAT"}`},
		{http.MethodGet, "/api/v1/sessions/op1_1700000000000_abcd1234efgh5678", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := serve(engine, tt.method, tt.path, tt.body, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "INVALID_API_KEY")

			w = serve(engine, tt.method, tt.path, tt.body, map[string]string{middleware.APIKeyHeader: "op1.secret"})
			assert.NotEqual(t, http.StatusUnauthorized, w.Code, w.Body.String())
		})
	}
}

func TestNewEngine_RechargeOrderScopedToCaller(t *testing.T) {
	engine, _ := newTestEngine(t, EngineConfig{})

	w := serve(engine, http.MethodPost, "/api/v1/recharge-orders", `{"amount":"100.00","gateway":"WECHAT"}`,
		map[string]string{middleware.APIKeyHeader: "op1.secret"})

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"order_no":"RC1"`)
}

func TestNewEngine_PaymentCallbackIsUnauthenticated(t *testing.T) {
	engine, callbacks := newTestEngine(t, EngineConfig{})

	w := serve(engine, http.MethodPost, "/api/v1/payment/callback/wechat", `{"order_id":"RC1"}`, nil)

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, callbacks.calls)
}

func TestNewEngine_AuthorizeIsRateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(1, time.Minute)
	t.Cleanup(limiter.Stop)
	engine, _ := newTestEngine(t, EngineConfig{RateLimiter: limiter})

	body := `{"session_id":"op1_1700000000000_abcd1234efgh5678","app_code":"BEAT_SABER","site_id":"site-1","player_count":2}`
	headers := map[string]string{middleware.APIKeyHeader: "op1.secret"}

	first := serve(engine, http.MethodPost, "/api/v1/sessions/authorize", body, headers)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	second := serve(engine, http.MethodPost, "/api/v1/sessions/authorize", body, headers)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	// the limiter only guards the sessions group
	w := serve(engine, http.MethodGet, "/api/v1/system/info", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewEngine_BodyLimit(t *testing.T) {
	engine, _ := newTestEngine(t, EngineConfig{MaxBodySize: 16})

	w := serve(engine, http.MethodPost, "/api/v1/recharge-orders", `{"amount":"100.00","gateway":"WECHAT"}`,
		map[string]string{middleware.APIKeyHeader: "op1.secret"})

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestNewEngine_UnknownRoute(t *testing.T) {
	engine, _ := newTestEngine(t, EngineConfig{})

	w := serve(engine, http.MethodGet, "/api/v1/operators", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewEngine_TokenRoutes(t *testing.T) {
	plain, _ := newTestEngine(t, EngineConfig{})
	w := serve(plain, http.MethodPost, "/api/v1/auth/token", "", map[string]string{middleware.APIKeyHeader: "op1.secret"})
	assert.Equal(t, http.StatusNotFound, w.Code, "no routes without a signing secret")

	jwtSvc := auth.NewJWTService(config.AuthConfig{JWTSecret: "router-test-secret", JWTIssuer: "arcade", TokenExpiration: time.Minute})
	engine, err := NewEngine(EngineConfig{Verifier: keyVerifier{}}, Handlers{
		Sessions:  handler.NewSessionHandler(fakeSessions{}),
		Recharge:  handler.NewRechargeHandler(fakeOrders{}),
		Callbacks: handler.NewPaymentCallbackHandler(&fakeCallbacks{}),
		System:    handler.NewSystemHandler(nil, "test"),
		Tokens:    handler.NewTokenHandler(auth.NewTokenService(jwtSvc, auth.NewMemoryRevocationStore(nil), nil, nil)),
	})
	require.NoError(t, err)

	w = serve(engine, http.MethodPost, "/api/v1/auth/token", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(engine, http.MethodPost, "/api/v1/auth/token", "", map[string]string{middleware.APIKeyHeader: "op1.secret"})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"token_type":"Bearer"`)

	w = serve(engine, http.MethodPost, "/api/v1/auth/revoke", "", map[string]string{middleware.APIKeyHeader: "op1.secret"})
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
}

func TestNewEngine_Swagger(t *testing.T) {
	off, _ := newTestEngine(t, EngineConfig{})
	assert.Equal(t, http.StatusNotFound, serve(off, http.MethodGet, "/swagger/doc.json", "", nil).Code)

	on, _ := newTestEngine(t, EngineConfig{Swagger: true, Security: middleware.DefaultSecurityConfig()})
	w := serve(on, http.MethodGet, "/swagger/doc.json", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Security-Policy"))

	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "3.1.0", doc.OpenAPI)
	for path, method := range map[string]string{
		"/sessions/authorize":         "post",
		"/sessions/{session_id}":      "get",
		"/recharge-orders":            "post",
		"/recharge-orders/{order_no}": "get",
		"/payment/callback/{gateway}": "post",
		"/auth/token":                 "post",
		"/auth/revoke":                "post",
	} {
		assert.Contains(t, doc.Paths[path], method, path)
	}

	// API routes keep the deny-all policy
	api := serve(on, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, api.Header().Get("Content-Security-Policy"))
}
