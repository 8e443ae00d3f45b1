package payment

// gatewayErrorResponse is the body of a non-2xx gateway answer
type gatewayErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// gatewayCreateRequest asks the gateway to open a payment
type gatewayCreateRequest struct {
	MerchantID string       `json:"merchant_id"`
	OutTradeNo string       `json:"out_trade_no"`
	Subject    string       `json:"subject"`
	NotifyURL  string       `json:"notify_url"`
	ExpireTime string       `json:"expire_time,omitempty"`
	Amount     gatewayTotal `json:"amount"`
}

// gatewayTotal is an amount in cents
type gatewayTotal struct {
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

// gatewayCreateResponse is the gateway's answer to gatewayCreateRequest
type gatewayCreateResponse struct {
	PaymentID  string `json:"payment_id"`
	CodeURL    string `json:"code_url,omitempty"`
	PayURL     string `json:"pay_url,omitempty"`
	ExpireTime string `json:"expire_time,omitempty"`
}

// gatewayQueryResponse represents the response from querying a payment
type gatewayQueryResponse struct {
	OutTradeNo     string         `json:"out_trade_no"`
	TransactionID  string         `json:"transaction_id,omitempty"`
	TradeState     string         `json:"trade_state"`
	TradeStateDesc string         `json:"trade_state_desc,omitempty"`
	SuccessTime    string         `json:"success_time,omitempty"`
	ErrorCode      string         `json:"error_code,omitempty"`
	Amount         *gatewayAmount `json:"amount,omitempty"`
}

// gatewayAmount represents amount information in responses, in cents
type gatewayAmount struct {
	Total      int64  `json:"total"`
	PayerTotal int64  `json:"payer_total"`
	Currency   string `json:"currency"`
}

// Trade states reported by the gateway
const (
	tradeStateSuccess    = "SUCCESS"
	tradeStateNotPay     = "NOTPAY"
	tradeStateUserPaying = "USERPAYING"
	tradeStatePayError   = "PAYERROR"
	tradeStateClosed     = "CLOSED"
	tradeStateRevoked    = "REVOKED"
)
