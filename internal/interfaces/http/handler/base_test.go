package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	billingapp "github.com/arcade/backend/internal/application/billing"
	financeapp "github.com/arcade/backend/internal/application/finance"
	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/domain/operator"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ============================================================================
// Mocks
// ============================================================================

// MockSessionAuthorizer is a mock implementation of SessionAuthorizer
type MockSessionAuthorizer struct {
	mock.Mock
}

func (m *MockSessionAuthorizer) Authorize(ctx context.Context, creds billingapp.Credentials, req billingapp.AuthorizeRequest) (*billingapp.AuthorizationResult, error) {
	args := m.Called(ctx, creds, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.AuthorizationResult), args.Error(1)
}

func (m *MockSessionAuthorizer) GetSession(ctx context.Context, operatorID, sessionID string) (*billingapp.AuthorizationResult, error) {
	args := m.Called(ctx, operatorID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingapp.AuthorizationResult), args.Error(1)
}

// MockRechargeOrders is a mock implementation of RechargeOrders
type MockRechargeOrders struct {
	mock.Mock
}

func (m *MockRechargeOrders) CreateOrder(ctx context.Context, req financeapp.CreateRechargeRequest) (*financeapp.CreateRechargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*financeapp.CreateRechargeResult), args.Error(1)
}

func (m *MockRechargeOrders) GetOrder(ctx context.Context, operatorID, orderNo string) (*finance.RechargeOrder, error) {
	args := m.Called(ctx, operatorID, orderNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*finance.RechargeOrder), args.Error(1)
}

// MockCallbackProcessor is a mock implementation of PaymentCallbackProcessor
type MockCallbackProcessor struct {
	mock.Mock
}

func (m *MockCallbackProcessor) ProcessPaymentCallback(ctx context.Context, gatewayType finance.PaymentGatewayType, payload []byte, signature string) (*financeapp.PaymentCallbackResult, error) {
	args := m.Called(ctx, gatewayType, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*financeapp.PaymentCallbackResult), args.Error(1)
}

// ============================================================================
// Helpers
// ============================================================================

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code      string         `json:"code"`
		Message   string         `json:"message"`
		Details   map[string]any `json:"details"`
		RequestID string         `json:"request_id"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

// withOperator stands in for RequireOperator
func withOperator(operatorID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetOperator(c, operatorID)
		c.Next()
	}
}

func doRequest(router *gin.Engine, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ============================================================================
// BaseHandler
// ============================================================================

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"domain error", operator.ErrSiteNotOwned, http.StatusForbidden, "SITE_NOT_OWNED"},
		{"wrapped domain error", fmt.Errorf("validate: %w", shared.ErrInsufficientBalance), http.StatusPaymentRequired, "INSUFFICIENT_BALANCE"},
		{"transient", shared.NewTransientError("charge", errors.New("40001")), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"unknown", errors.New("dial tcp 10.0.0.3:5432: connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			router := gin.New()
			router.Use(middleware.RequestID(nil))
			router.GET("/x", func(c *gin.Context) { h.HandleError(c, tt.err) })

			w := doRequest(router, http.MethodGet, "/x", nil, map[string]string{middleware.RequestIDHeader: "rid-1"})

			assert.Equal(t, tt.status, w.Code)
			env := decodeEnvelope(t, w)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Equal(t, "rid-1", env.Error.RequestID)
			assert.NotContains(t, w.Body.String(), "10.0.0.3")
		})
	}
}

func TestBaseHandler_HandleErrorNil(t *testing.T) {
	h := &BaseHandler{}
	router := gin.New()
	router.GET("/x", func(c *gin.Context) {
		h.HandleError(c, nil)
		c.Status(http.StatusNoContent)
	})

	w := doRequest(router, http.MethodGet, "/x", nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestBaseHandler_SuccessAndCreated(t *testing.T) {
	h := &BaseHandler{}
	router := gin.New()
	router.GET("/ok", func(c *gin.Context) { h.Success(c, gin.H{"k": "v"}) })
	router.POST("/new", func(c *gin.Context) { h.Created(c, gin.H{"k": "v"}) })
	router.GET("/err", func(c *gin.Context) { h.Error(c, http.StatusTeapot, "TEAPOT", "short and stout") })

	w := doRequest(router, http.MethodGet, "/ok", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"k":"v"}}`, w.Body.String())

	w = doRequest(router, http.MethodPost, "/new", strings.NewReader(`{}`), nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(router, http.MethodGet, "/err", nil, nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "TEAPOT", decodeEnvelope(t, w).Error.Code)
}
