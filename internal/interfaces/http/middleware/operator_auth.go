package middleware

import (
	"github.com/gin-gonic/gin"

	billingapp "github.com/arcade/backend/internal/application/billing"
	"github.com/arcade/backend/internal/infrastructure/logger"
	"github.com/arcade/backend/internal/interfaces/http/dto"
)

// Credential headers sent by arcade terminals
const (
	APIKeyHeader        = "X-API-Key"
	TimestampHeader     = "X-Timestamp"
	AuthorizationHeader = "Authorization"
)

// CredentialsFromRequest collects the raw caller credentials. Nothing is
// verified here.
func CredentialsFromRequest(c *gin.Context) billingapp.Credentials {
	return billingapp.Credentials{
		APIKey:      c.GetHeader(APIKeyHeader),
		Timestamp:   c.GetHeader(TimestampHeader),
		BearerToken: c.GetHeader(AuthorizationHeader),
	}
}

// RequireOperator authenticates the caller and stores the operator ID on the
// gin context and the request context logger. Failures abort with the
// standard error envelope.
func RequireOperator(verifier billingapp.CredentialVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := verifier.Verify(c.Request.Context(), CredentialsFromRequest(c))
		if err != nil {
			status, info := dto.ErrorFrom(err)
			if status >= 500 {
				logger.FromContext(c.Request.Context()).Error("Credential verification failed")
			}
			c.AbortWithStatusJSON(status, dto.NewErrorResponseWithRequestID(info, GetRequestID(c)))
			return
		}
		SetOperator(c, identity.OperatorID)
		c.Next()
	}
}

// SetOperator records an authenticated operator for downstream logging,
// metrics and tracing.
func SetOperator(c *gin.Context, operatorID string) {
	c.Set(logger.GinOperatorIDKey, operatorID)
	ctx, _ := logger.WithOperatorID(c.Request.Context(), logger.FromContext(c.Request.Context()), operatorID)
	c.Request = c.Request.WithContext(ctx)
}

// GetOperatorID returns the operator set by RequireOperator
func GetOperatorID(c *gin.Context) string {
	return c.GetString(logger.GinOperatorIDKey)
}
