package dto

import (
	"context"
	"errors"
	"net/http"

	"github.com/arcade/backend/internal/domain/shared"
)

// Transport-level error codes. Domain codes (INVALID_API_KEY, SITE_NOT_OWNED, ...)
// are passed through unchanged.
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeUnavailable is used when storage stayed busy after retries
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
	// ErrCodeInvalidRequest is used when the body cannot be decoded or bound
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	// ErrCodeValidation is used when binding tags reject a field
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "RATE_LIMITED"
	// ErrCodeRequestTooLarge is used when the body exceeds the limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	// ErrCodeTimeout is used when a request exceeded its deadline
	ErrCodeTimeout = "REQUEST_TIMEOUT"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// Credentials -> 401
	"INVALID_API_KEY":   http.StatusUnauthorized,
	"INVALID_SIGNATURE": http.StatusUnauthorized,

	// Account state, ownership and entitlement -> 403
	"ACCOUNT_LOCKED":            http.StatusForbidden,
	"ACCOUNT_INACTIVE":          http.StatusForbidden,
	"SITE_NOT_OWNED":            http.StatusForbidden,
	"APP_NOT_AUTHORIZED":        http.StatusForbidden,
	"AUTHORIZATION_EXPIRED":     http.StatusForbidden,
	"SESSION_ID_OWNER_MISMATCH": http.StatusForbidden,

	// Missing resources -> 404
	"NOT_FOUND":         http.StatusNotFound,
	"ACCOUNT_NOT_FOUND": http.StatusNotFound,
	"SITE_NOT_FOUND":    http.StatusNotFound,
	"APP_NOT_FOUND":     http.StatusNotFound,
	"SESSION_NOT_FOUND": http.StatusNotFound,
	"ORDER_NOT_FOUND":   http.StatusNotFound,

	// Malformed input -> 400
	"INVALID_SESSION_ID_FORMAT": http.StatusBadRequest,
	"SESSION_ID_EXPIRED":        http.StatusBadRequest,
	"PLAYER_COUNT_OUT_OF_RANGE": http.StatusBadRequest,
	"INVALID_INPUT":             http.StatusBadRequest,
	"INVALID_CALLBACK":          http.StatusBadRequest,
	"INVALID_CALLBACK_PAYLOAD":  http.StatusBadRequest,
	"INVALID_GATEWAY":           http.StatusBadRequest,
	"INVALID_RECHARGE_AMOUNT":   http.StatusBadRequest,
	"AMOUNT_MISMATCH":           http.StatusBadRequest,
	ErrCodeInvalidRequest:       http.StatusBadRequest,
	ErrCodeValidation:           http.StatusBadRequest,

	// Balance -> 402
	"INSUFFICIENT_BALANCE": http.StatusPaymentRequired,

	// Conflicts -> 409
	"CONCURRENCY_CONFLICT":   http.StatusConflict,
	"ORDER_ALREADY_TERMINAL": http.StatusConflict,

	// Transport
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeTimeout:         http.StatusGatewayTimeout,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,
	ErrCodeInternal:        http.StatusInternalServerError,
}

// kindHTTPStatus is the fallback for domain codes missing from ErrorCodeHTTPStatus
var kindHTTPStatus = map[shared.ErrorKind]int{
	shared.KindValidation:    http.StatusBadRequest,
	shared.KindAuthorization: http.StatusForbidden,
	shared.KindNotFound:      http.StatusNotFound,
	shared.KindConflict:      http.StatusConflict,
	shared.KindBusinessRule:  http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorFrom converts any error into a status and error body. Domain errors
// keep their code, message and details. Exhausted transient failures become
// 503 so clients retry with the same session id. Expired request deadlines
// become 504 REQUEST_TIMEOUT. Anything else is a 500 with a generic message.
func ErrorFrom(err error) (int, *ErrorInfo) {
	var de *shared.DomainError
	if errors.As(err, &de) {
		status, ok := ErrorCodeHTTPStatus[de.Code]
		if !ok {
			status, ok = kindHTTPStatus[de.Kind]
		}
		if !ok {
			status = http.StatusInternalServerError
		}
		return status, &ErrorInfo{Code: de.Code, Message: de.Message, Details: de.Details}
	}
	if shared.IsTransient(err) {
		return http.StatusServiceUnavailable, &ErrorInfo{
			Code:    ErrCodeUnavailable,
			Message: "Storage is busy, retry with the same session id",
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, &ErrorInfo{
			Code:    ErrCodeTimeout,
			Message: "The request did not complete in time",
		}
	}
	return http.StatusInternalServerError, &ErrorInfo{
		Code:    ErrCodeInternal,
		Message: "An unexpected error occurred",
	}
}
