package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	financeapp "github.com/arcade/backend/internal/application/finance"
	"github.com/arcade/backend/internal/domain/finance"
	"github.com/arcade/backend/internal/infrastructure/logger"
	"github.com/arcade/backend/internal/interfaces/http/dto"
	"github.com/arcade/backend/internal/interfaces/http/middleware"
)

// SignatureHeader carries the gateway's HMAC of the raw body
const SignatureHeader = "X-Signature"

// PaymentCallbackProcessor is the callback surface used by PaymentCallbackHandler
type PaymentCallbackProcessor interface {
	ProcessPaymentCallback(ctx context.Context, gatewayType finance.PaymentGatewayType, payload []byte, signature string) (*financeapp.PaymentCallbackResult, error)
}

// PaymentCallbackHandler receives payment gateway notifications. The route
// is unauthenticated; the body signature is the credential.
type PaymentCallbackHandler struct {
	BaseHandler
	callbacks PaymentCallbackProcessor
}

// NewPaymentCallbackHandler creates a new PaymentCallbackHandler
func NewPaymentCallbackHandler(callbacks PaymentCallbackProcessor) *PaymentCallbackHandler {
	return &PaymentCallbackHandler{callbacks: callbacks}
}

// HandlePaymentCallback handles POST /api/v1/payment/callback/:gateway.
// Any 2xx tells the gateway to stop redelivering, so only processed or
// already-processed callbacks get one.
func (h *PaymentCallbackHandler) HandlePaymentCallback(c *gin.Context) {
	gatewayType, err := finance.ParsePaymentGatewayType(c.Param("gateway"))
	if err != nil {
		h.respond(c, ErrInvalidGateway)
		return
	}

	// Signatures cover the exact bytes received
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		status, code := http.StatusBadRequest, dto.ErrCodeInvalidRequest
		if middleware.IsBodyTooLarge(err) {
			status, code = http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge
		}
		c.JSON(status, dto.PaymentCallbackResponse{
			Success: false,
			Message: "Failed to read request body",
			Code:    code,
		})
		return
	}

	result, err := h.callbacks.ProcessPaymentCallback(c.Request.Context(), gatewayType, payload, c.GetHeader(SignatureHeader))
	if err != nil {
		h.respond(c, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info("Payment callback handled",
		zap.String("gateway", gatewayType.String()),
		zap.String("order_no", result.OrderNo),
		zap.String("order_status", result.OrderStatus.String()),
		zap.Bool("already_processed", result.AlreadyProcessed))
	c.JSON(http.StatusOK, dto.PaymentCallbackResponse{
		Success: true,
		Message: result.Message,
	})
}

func (h *PaymentCallbackHandler) respond(c *gin.Context, err error) {
	status, info := dto.ErrorFrom(err)
	log := logger.FromContext(c.Request.Context())
	if status >= http.StatusInternalServerError {
		log.Error("Payment callback failed", zap.Error(err))
	} else {
		log.Warn("Payment callback rejected", zap.String("code", info.Code), zap.Error(err))
	}
	c.JSON(status, dto.PaymentCallbackResponse{
		Success: false,
		Message: info.Message,
		Code:    info.Code,
	})
}
