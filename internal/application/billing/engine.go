package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arcade/backend/internal/application/uow"
	"github.com/arcade/backend/internal/domain/billing"
	"github.com/arcade/backend/internal/domain/operator"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/arcade/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// LockMode selects how the engine serializes writers on one account
type LockMode string

const (
	// LockModePessimistic takes SELECT ... FOR UPDATE on the account row
	LockModePessimistic LockMode = "pessimistic"
	// LockModeOptimistic reads without a lock and compare-and-swaps the version column
	LockModeOptimistic LockMode = "optimistic"
)

// errAlreadyCommitted aborts the transaction when the session is found under the account lock
var errAlreadyCommitted = errors.New("billing: session committed by an earlier request")

// EngineConfig configures the BillingEngine
type EngineConfig struct {
	LockMode          LockMode
	OptimisticRetries int
}

// BillingEngine charges a validated request inside one transaction
type BillingEngine struct {
	scope    uow.TransactionScope
	sessions billing.SessionRepository
	notifier *LowBalanceNotifier
	metrics  *telemetry.BillingMetrics
	cfg      EngineConfig
	clock    shared.Clock
	logger   *zap.Logger
}

// BillingEngineOption configures optional collaborators
type BillingEngineOption func(*BillingEngine)

// WithLowBalanceNotifier enables the post-commit low balance check
func WithLowBalanceNotifier(n *LowBalanceNotifier) BillingEngineOption {
	return func(e *BillingEngine) { e.notifier = n }
}

// WithBillingMetrics records charge outcomes
func WithBillingMetrics(m *telemetry.BillingMetrics) BillingEngineOption {
	return func(e *BillingEngine) { e.metrics = m }
}

// WithEngineClock overrides the clock
func WithEngineClock(c shared.Clock) BillingEngineOption {
	return func(e *BillingEngine) { e.clock = c }
}

// WithEngineLogger sets the logger
func WithEngineLogger(l *zap.Logger) BillingEngineOption {
	return func(e *BillingEngine) { e.logger = l }
}

// NewBillingEngine creates a BillingEngine. sessions must be a repository
// outside any transaction; it is used to re-read a committed session after a conflict.
func NewBillingEngine(scope uow.TransactionScope, sessions billing.SessionRepository, cfg EngineConfig, opts ...BillingEngineOption) *BillingEngine {
	if cfg.LockMode == "" {
		cfg.LockMode = LockModePessimistic
	}
	if cfg.OptimisticRetries <= 0 {
		cfg.OptimisticRetries = 5
	}
	e := &BillingEngine{
		scope:    scope,
		sessions: sessions,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Charge debits the operator for the validated session and records it.
//
// A duplicate session id is a success: the committed session is re-read and
// returned with Replayed set. INSUFFICIENT_BALANCE leaves every row untouched.
// Storage failures that are safe to retry come back as *shared.TransientError.
func (e *BillingEngine) Charge(ctx context.Context, req *ValidatedRequest) (*AuthorizationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "charge",
		telemetry.SpanAttrOperatorID.String(req.Account.ID),
		telemetry.SpanAttrSessionID.String(req.Session.Raw),
		telemetry.SpanAttrAppCode.String(req.Application.Code),
		telemetry.SpanAttrPlayerCount.Int(req.Request.PlayerCount),
	)
	defer span.End()

	start := time.Now()
	var (
		session   *billing.UsageSession
		threshold *thresholdSnapshot
		err       error
	)

	switch e.cfg.LockMode {
	case LockModeOptimistic:
		for attempt := 1; attempt <= e.cfg.OptimisticRetries; attempt++ {
			session, threshold, err = e.chargeOnce(ctx, req, false)
			if !errors.Is(err, shared.ErrConcurrencyConflict) {
				break
			}
			e.logger.Debug("Balance version conflict, retrying",
				zap.String("operator_id", req.Account.ID),
				zap.Int("attempt", attempt))
		}
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			err = shared.NewTransientError("charge", err)
		}
	default:
		session, threshold, err = e.chargeOnce(ctx, req, true)
	}

	if errors.Is(err, billing.ErrSessionConflict) || errors.Is(err, errAlreadyCommitted) {
		result, replayErr := e.replay(ctx, req.Session.Raw)
		e.metrics.RecordCharge(ctx, outcomeReplayed, time.Since(start))
		if replayErr != nil {
			telemetry.RecordError(span, replayErr)
			return nil, replayErr
		}
		telemetry.SetAttributes(span, telemetry.SpanAttrReplayed.Bool(true))
		return result, nil
	}
	if err != nil {
		telemetry.RecordError(span, err)
		e.metrics.RecordCharge(ctx, outcomeFor(err), time.Since(start))
		return nil, err
	}

	e.metrics.RecordCharge(ctx, outcomeCharged, time.Since(start))
	e.metrics.RecordChargedAmount(ctx, session.ApplicationCode, session.TotalCost.Shift(billing.MoneyScale).IntPart())
	e.logger.Info("Session billed",
		zap.String("operator_id", session.OperatorID),
		zap.String("session_id", session.SessionID),
		zap.String("total_cost", session.TotalCost.StringFixed(billing.MoneyScale)),
		zap.String("balance_after", session.BalanceAfter.StringFixed(billing.MoneyScale)))

	if e.notifier != nil && threshold != nil {
		e.notifier.CheckAsync(threshold.operatorID, threshold.balanceBefore, session.BalanceAfter, threshold.override)
	}

	return resultFromSession(session, false), nil
}

func (e *BillingEngine) chargeOnce(ctx context.Context, req *ValidatedRequest, lock bool) (*billing.UsageSession, *thresholdSnapshot, error) {
	var (
		session  *billing.UsageSession
		snapshot *thresholdSnapshot
	)

	err := e.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		var (
			account *operator.Account
			err     error
		)
		if lock {
			account, err = repos.Accounts().FindByIDForUpdate(ctx, req.Account.ID)
		} else {
			account, err = repos.Accounts().FindByID(ctx, req.Account.ID)
		}
		if err != nil {
			return fmt.Errorf("load account %s: %w", req.Account.ID, err)
		}

		// Re-check under the lock: the account may have been locked since validation.
		if err := account.CheckCanTransact(); err != nil {
			return err
		}

		// All charges for this operator are serialized from here on, and the
		// session id embeds the operator, so this read cannot race a writer.
		if _, err := repos.Sessions().FindBySessionID(ctx, req.Session.Raw); err == nil {
			return errAlreadyCommitted
		} else if !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("check session: %w", err)
		}

		total, err := billing.ComputeTotalCost(req.Application.UnitPrice, req.Request.PlayerCount)
		if err != nil {
			return err
		}

		now := e.clock.Now().UTC().Truncate(time.Microsecond)
		before, after, err := account.Deduct(total, now)
		if err != nil {
			return err
		}

		session, err = billing.NewUsageSession(billing.NewUsageSessionParams{
			SessionID:       req.Session.Raw,
			OperatorID:      account.ID,
			SiteID:          req.Site.ID,
			ApplicationID:   req.Application.ID,
			ApplicationCode: req.Application.Code,
			UnitPrice:       req.Application.UnitPrice,
			PlayerCount:     req.Request.PlayerCount,
			TotalCost:       total,
			BalanceAfter:    after,
			ClientIP:        req.Request.ClientIP,
			UserAgent:       req.Request.UserAgent,
			AuthorizedAt:    now,
		})
		if err != nil {
			return err
		}
		if err := repos.Sessions().Create(ctx, session); err != nil {
			return err
		}

		entry, err := billing.NewLedgerEntry(account.ID, billing.LedgerEntryTypeConsumption, total, before, after,
			billing.ReferenceTypeUsageSession, session.SessionID,
			fmt.Sprintf("%s x%d", req.Application.Code, req.Request.PlayerCount), now)
		if err != nil {
			return err
		}
		if err := repos.Ledger().Create(ctx, entry); err != nil {
			return fmt.Errorf("create ledger entry: %w", err)
		}

		if err := repos.Accounts().UpdateBalance(ctx, account); err != nil {
			return err
		}

		snapshot = &thresholdSnapshot{
			operatorID:    account.ID,
			balanceBefore: before,
			override:      account.LowBalanceThreshold,
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return session, snapshot, nil
}

func (e *BillingEngine) replay(ctx context.Context, sessionID string) (*AuthorizationResult, error) {
	session, err := e.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("re-read committed session %s: %w", sessionID, err)
	}
	e.logger.Info("Duplicate session id, replaying committed result",
		zap.String("code", billing.SessionIDDuplicateCode),
		zap.String("operator_id", session.OperatorID),
		zap.String("session_id", sessionID))
	return resultFromSession(session, true), nil
}

const (
	outcomeCharged      = "charged"
	outcomeReplayed     = "replayed"
	outcomeInsufficient = "insufficient_balance"
	outcomeRejected     = "rejected"
	outcomeTransient    = "transient_error"
	outcomeError        = "error"
)

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, shared.ErrInsufficientBalance):
		return outcomeInsufficient
	case shared.IsTransient(err):
		return outcomeTransient
	case shared.KindOf(err) != "":
		return outcomeRejected
	default:
		return outcomeError
	}
}
