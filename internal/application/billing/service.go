package billing

import (
	"context"
	"errors"
	"time"

	"github.com/arcade/backend/internal/domain/billing"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned by GetSession for unknown or foreign sessions
var ErrSessionNotFound = shared.NewNotFoundError("SESSION_NOT_FOUND", "Session not found")

// AuthorizationServiceConfig configures retries around the engine
type AuthorizationServiceConfig struct {
	// MaxTransientRetries is the number of retries after the first attempt
	MaxTransientRetries int
	// InitialBackoff is the first retry delay
	InitialBackoff time.Duration
	// MaxBackoff caps a single retry delay
	MaxBackoff time.Duration
}

// AuthorizationService is the entry point for session authorization
type AuthorizationService struct {
	validator *AuthorizationValidator
	engine    *BillingEngine
	guard     *IdempotencyGuard
	cfg       AuthorizationServiceConfig
	logger    *zap.Logger
}

// NewAuthorizationService creates an AuthorizationService
func NewAuthorizationService(validator *AuthorizationValidator, engine *BillingEngine, guard *IdempotencyGuard, cfg AuthorizationServiceConfig, logger *zap.Logger) *AuthorizationService {
	if cfg.MaxTransientRetries < 0 {
		cfg.MaxTransientRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 50 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorizationService{
		validator: validator,
		engine:    engine,
		guard:     guard,
		cfg:       cfg,
		logger:    logger,
	}
}

// Authorize validates the request and bills it. Transient storage failures
// are retried with exponential backoff; the transaction is all-or-nothing so
// a retry can never double-charge.
func (s *AuthorizationService) Authorize(ctx context.Context, creds Credentials, req AuthorizeRequest) (*AuthorizationResult, error) {
	validated, replay, err := s.validator.Validate(ctx, creds, req)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return replay, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialBackoff
	b.MaxInterval = s.cfg.MaxBackoff

	attempt := 0
	op := func() (*AuthorizationResult, error) {
		attempt++
		result, err := s.engine.Charge(ctx, validated)
		if err != nil && !shared.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return result, err
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.cfg.MaxTransientRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("Transient billing failure, retrying",
				zap.String("session_id", req.SessionID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		return nil, err
	}
	return result, nil
}

// GetSession returns the committed result of one of the caller's sessions
func (s *AuthorizationService) GetSession(ctx context.Context, operatorID, sessionID string) (*AuthorizationResult, error) {
	sid, err := billing.ParseSessionID(sessionID)
	if err != nil || sid.OperatorID != operatorID {
		return nil, ErrSessionNotFound
	}
	result, err := s.guard.Lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if result == nil || result.OperatorID != operatorID {
		return nil, ErrSessionNotFound
	}
	return result, nil
}
