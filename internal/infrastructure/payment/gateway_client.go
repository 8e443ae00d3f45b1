package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arcade/backend/internal/domain/finance"
)

const (
	createPaymentPath = "/v1/payments"
	queryPaymentPath  = "/v1/payments/%s"

	authScheme      = "ARCADE-HMAC-SHA256"
	defaultCurrency = "CNY"
	maxResponseSize = 1 << 20
)

// HTTPGateway implements finance.PaymentGateway against a gateway's REST API.
// Requests are signed with HMAC-SHA256 over method, path, timestamp, nonce
// and body.
type HTTPGateway struct {
	config     *GatewayConfig
	httpClient *http.Client
	now        func() time.Time
	logger     *zap.Logger
}

// HTTPGatewayOption configures an HTTPGateway
type HTTPGatewayOption func(*HTTPGateway)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) HTTPGatewayOption {
	return func(g *HTTPGateway) { g.httpClient = c }
}

// WithGatewayLogger sets the logger
func WithGatewayLogger(l *zap.Logger) HTTPGatewayOption {
	return func(g *HTTPGateway) { g.logger = l }
}

// NewHTTPGateway creates a new gateway client
func NewHTTPGateway(config *GatewayConfig, opts ...HTTPGatewayOption) (*HTTPGateway, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cfg := *config
	cfg.applyDefaults()

	g := &HTTPGateway{
		config:     &cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(zap.String("gateway", cfg.Type.String()))
	return g, nil
}

// GatewayType returns the gateway type
func (g *HTTPGateway) GatewayType() finance.PaymentGatewayType {
	return g.config.Type
}

// CreatePayment opens a payment for a recharge order
func (g *HTTPGateway) CreatePayment(ctx context.Context, req *finance.CreatePaymentRequest) (*finance.CreatePaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body := gatewayCreateRequest{
		MerchantID: g.config.MerchantID,
		OutTradeNo: req.OrderNumber,
		Subject:    req.Subject,
		NotifyURL:  req.NotifyURL,
		Amount: gatewayTotal{
			Total:    toCents(req.Amount),
			Currency: defaultCurrency,
		},
	}
	if !req.ExpireTime.IsZero() {
		body.ExpireTime = req.ExpireTime.UTC().Format(time.RFC3339)
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("payment: failed to marshal request: %w", err)
	}

	respBody, err := g.doRequest(ctx, http.MethodPost, createPaymentPath, bodyBytes)
	if err != nil {
		return nil, err
	}

	var respData gatewayCreateResponse
	if err := json.Unmarshal(respBody, &respData); err != nil {
		return nil, fmt.Errorf("%w: %v", finance.ErrGatewayInvalidResponse, err)
	}
	if respData.PaymentID == "" {
		return nil, fmt.Errorf("%w: missing payment_id", finance.ErrGatewayInvalidResponse)
	}

	response := &finance.CreatePaymentResponse{
		GatewayOrderID: respData.PaymentID,
		PaymentURL:     respData.PayURL,
		QRCodeData:     respData.CodeURL,
		ExpireTime:     req.ExpireTime,
	}
	if t, err := time.Parse(time.RFC3339, respData.ExpireTime); err == nil {
		response.ExpireTime = t
	}
	return response, nil
}

// QueryPayment asks the gateway for the status of an order. Every failure
// wraps finance.ErrGatewayQueryFailed.
func (g *HTTPGateway) QueryPayment(ctx context.Context, req *finance.QueryPaymentRequest) (*finance.QueryPaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// The gateway indexes payments by our order number
	orderNo := req.OrderNumber
	if orderNo == "" {
		orderNo = req.GatewayOrderID
	}

	path := fmt.Sprintf(queryPaymentPath, url.PathEscape(orderNo)) + "?merchant_id=" + url.QueryEscape(g.config.MerchantID)
	respBody, err := g.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", finance.ErrGatewayQueryFailed, err)
	}

	var respData gatewayQueryResponse
	if err := json.Unmarshal(respBody, &respData); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", finance.ErrGatewayQueryFailed, finance.ErrGatewayInvalidResponse, err)
	}
	if respData.TradeState == "" {
		return nil, fmt.Errorf("%w: %w: missing trade_state", finance.ErrGatewayQueryFailed, finance.ErrGatewayInvalidResponse)
	}

	response := &finance.QueryPaymentResponse{
		OrderNumber:          respData.OutTradeNo,
		Status:               mapTradeState(respData.TradeState),
		GatewayTransactionID: respData.TransactionID,
		ErrorCode:            respData.ErrorCode,
		ErrorMessage:         respData.TradeStateDesc,
	}
	if respData.Amount != nil {
		response.PaidAmount = fromCents(respData.Amount.PayerTotal)
	}
	if respData.SuccessTime != "" {
		if t, err := time.Parse(time.RFC3339, respData.SuccessTime); err == nil {
			response.PaidAt = &t
		}
	}
	return response, nil
}

// doRequest performs a signed HTTP request to the gateway API
func (g *HTTPGateway) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.config.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("payment: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", g.authHeader(method, path, body))

	start := g.now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", finance.ErrGatewayUnavailable, ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", finance.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", finance.ErrGatewayUnavailable, err)
	}

	g.logger.Debug("gateway request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", g.now().Sub(start)),
	)

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", finance.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var errResp gatewayErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Code != "" {
			return nil, fmt.Errorf("%w: %s - %s", finance.ErrGatewayInvalidResponse, errResp.Code, errResp.Message)
		}
		return nil, fmt.Errorf("%w: HTTP %d", finance.ErrGatewayInvalidResponse, resp.StatusCode)
	}
	return respBody, nil
}

// authHeader builds the Authorization header for one request
func (g *HTTPGateway) authHeader(method, path string, body []byte) string {
	timestamp := strconv.FormatInt(g.now().Unix(), 10)
	nonce := uuid.NewString()
	message := method + "\n" + path + "\n" + timestamp + "\n" + nonce + "\n" + string(body) + "\n"
	return fmt.Sprintf(`%s merchant_id="%s",nonce="%s",timestamp="%s",signature="%s"`,
		authScheme, g.config.MerchantID, nonce, timestamp, Sign(g.config.Secret, []byte(message)))
}

// mapTradeState maps a gateway trade state to our status. Anything the
// gateway has not finished deciding is PROCESSING.
func mapTradeState(state string) finance.GatewayPaymentStatus {
	switch state {
	case tradeStateSuccess:
		return finance.GatewayPaymentStatusSuccess
	case tradeStateNotPay:
		return finance.GatewayPaymentStatusNotPaid
	case tradeStatePayError:
		return finance.GatewayPaymentStatusFailed
	case tradeStateClosed, tradeStateRevoked:
		return finance.GatewayPaymentStatusClosed
	case tradeStateUserPaying:
		return finance.GatewayPaymentStatusProcessing
	default:
		return finance.GatewayPaymentStatusProcessing
	}
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// IsRetryable reports whether a gateway error is worth retrying later
func IsRetryable(err error) bool {
	return errors.Is(err, finance.ErrGatewayUnavailable)
}

// Ensure HTTPGateway implements PaymentGateway interface
var _ finance.PaymentGateway = (*HTTPGateway)(nil)
