package dto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcade/backend/internal/domain/billing"
	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/domain/license"
	"github.com/arcade/backend/internal/domain/operator"
	"github.com/arcade/backend/internal/domain/shared"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{"INVALID_API_KEY", http.StatusUnauthorized},
		{"ACCOUNT_LOCKED", http.StatusForbidden},
		{"SITE_NOT_FOUND", http.StatusNotFound},
		{"PLAYER_COUNT_OUT_OF_RANGE", http.StatusBadRequest},
		{"INSUFFICIENT_BALANCE", http.StatusPaymentRequired},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodeUnavailable, http.StatusServiceUnavailable},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestErrorFrom_DomainErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{operator.ErrInvalidAPIKey, http.StatusUnauthorized},
		{operator.ErrAccountLocked, http.StatusForbidden},
		{operator.ErrAccountInactive, http.StatusForbidden},
		{operator.ErrSiteNotFound, http.StatusNotFound},
		{operator.ErrSiteNotOwned, http.StatusForbidden},
		{license.ErrAppNotFound, http.StatusNotFound},
		{license.ErrAppNotAuthorized, http.StatusForbidden},
		{license.ErrAuthorizationExpired, http.StatusForbidden},
		{license.ErrPlayerCountOutOfRange, http.StatusBadRequest},
		{billing.ErrInvalidSessionIDFormat, http.StatusBadRequest},
		{billing.ErrSessionIDExpired, http.StatusBadRequest},
		{billing.ErrSessionIDOwnerMismatch, http.StatusForbidden},
		{shared.ErrInsufficientBalance, http.StatusPaymentRequired},
		{finance.ErrAmountMismatch, http.StatusBadRequest},
		{finance.ErrOrderNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		de := tt.err.(*shared.DomainError)
		t.Run(de.Code, func(t *testing.T) {
			status, info := ErrorFrom(fmt.Errorf("wrapped: %w", tt.err))
			assert.Equal(t, tt.status, status)
			assert.Equal(t, de.Code, info.Code)
			assert.Equal(t, de.Message, info.Message)
		})
	}
}

func TestErrorFrom_KindFallback(t *testing.T) {
	tests := []struct {
		err    *shared.DomainError
		status int
	}{
		{shared.NewValidationError("SOMETHING_NEW", "x"), http.StatusBadRequest},
		{shared.NewAuthorizationError("SOMETHING_NEW", "x"), http.StatusForbidden},
		{shared.NewNotFoundError("SOMETHING_NEW", "x"), http.StatusNotFound},
		{shared.NewDomainError("SOMETHING_NEW", "x"), http.StatusUnprocessableEntity},
		{&shared.DomainError{Code: "SOMETHING_NEW", Kind: shared.KindConflict}, http.StatusConflict},
		{&shared.DomainError{Code: "SOMETHING_NEW"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := ErrorFrom(tt.err)
		assert.Equal(t, tt.status, status, string(tt.err.Kind))
	}
}

func TestErrorFrom_DetailsSurvive(t *testing.T) {
	err := license.ErrPlayerCountOutOfRange.WithDetails(map[string]any{"min": 1, "max": 6})
	_, info := ErrorFrom(err)

	body, jerr := json.Marshal(NewErrorResponseWithRequestID(info, "req-1"))
	require.NoError(t, jerr)
	assert.JSONEq(t, `{
		"success": false,
		"error": {
			"code": "PLAYER_COUNT_OUT_OF_RANGE",
			"message": "Player count is outside the range allowed by the application",
			"details": {"min": 1, "max": 6},
			"request_id": "req-1"
		}
	}`, string(body))
}

func TestErrorFrom_TransientAndUnknown(t *testing.T) {
	status, info := ErrorFrom(shared.NewTransientError("charge", errors.New("deadlock detected")))
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, ErrCodeUnavailable, info.Code)

	status, info = ErrorFrom(fmt.Errorf("lock account: %w", context.DeadlineExceeded))
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, "REQUEST_TIMEOUT", info.Code)

	status, info = ErrorFrom(errors.New("pq: connection reset with secret dsn"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, ErrCodeInternal, info.Code)
	assert.NotContains(t, info.Message, "secret")
}

func TestResponses(t *testing.T) {
	body, err := json.Marshal(NewSuccessResponse(map[string]string{"k": "v"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":{"k":"v"}}`, string(body))

	body, err = json.Marshal(NewErrorResponse(ErrCodeInvalidRequest, "bad json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":{"code":"INVALID_REQUEST","message":"bad json"}}`, string(body))

	resp := NewValidationErrorResponse("Request validation failed", "req-2", []ValidationDetail{{Field: "session_id", Message: "This field is required"}})
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-2", resp.Error.RequestID)
	assert.Len(t, resp.Error.Details["fields"], 1)
}
