package dto

// Response represents a standard API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// ValidationDetail describes one rejected field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// NewErrorResponseWithRequestID creates an error response carrying the request ID
func NewErrorResponseWithRequestID(info *ErrorInfo, requestID string) Response {
	cp := *info
	cp.RequestID = requestID
	return Response{Success: false, Error: &cp}
}

// NewValidationErrorResponse creates a 400 body listing the rejected fields
func NewValidationErrorResponse(message, requestID string, details []ValidationDetail) Response {
	info := &ErrorInfo{
		Code:      ErrCodeValidation,
		Message:   message,
		RequestID: requestID,
	}
	if len(details) > 0 {
		info.Details = map[string]any{"fields": details}
	}
	return Response{Success: false, Error: info}
}

// AuthorizeSessionRequest starts a paid session
type AuthorizeSessionRequest struct {
	SessionID   string `json:"session_id" binding:"required,max=128"`
	AppCode     string `json:"app_code" binding:"required,max=64"`
	SiteID      string `json:"site_id" binding:"required,max=64"`
	PlayerCount int    `json:"player_count"`
}

// SessionResponse is the committed result of an authorized session. A replay
// serializes identically to the first success.
type SessionResponse struct {
	SessionID    string `json:"session_id"`
	UnitPrice    string `json:"unit_price"`
	PlayerCount  int    `json:"player_count"`
	TotalCost    string `json:"total_cost"`
	BalanceAfter string `json:"balance_after"`
	AuthorizedAt string `json:"authorized_at"`
}

// CreateRechargeOrderRequest asks for a new recharge order
type CreateRechargeOrderRequest struct {
	Amount  string `json:"amount" binding:"required"`
	Gateway string `json:"gateway" binding:"required,oneof=WECHAT ALIPAY"`
}

// RechargeOrderResponse describes a recharge order
type RechargeOrderResponse struct {
	OrderNo    string `json:"order_no"`
	Amount     string `json:"amount"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	PaymentURL string `json:"payment_url,omitempty"`
	QRCodeData string `json:"qr_code_data,omitempty"`
	ExpiresAt  string `json:"expires_at"`
	PaidAt     string `json:"paid_at,omitempty"`
}

// PaymentCallbackResponse acknowledges a gateway callback
type PaymentCallbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// HealthResponse reports liveness
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Version  string `json:"version,omitempty"`
}

// TokenResponse carries a freshly issued operator token
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresAt string `json:"expires_at"`
}

// RevokeTokenRequest names a single token to revoke. Without one every
// token of the calling operator is revoked.
type RevokeTokenRequest struct {
	Token string `json:"token" binding:"omitempty,max=4096"`
}
