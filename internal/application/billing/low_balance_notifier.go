package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arcade/backend/internal/domain/billing"
	"github.com/arcade/backend/internal/domain/notification"
	"github.com/arcade/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type thresholdSnapshot struct {
	operatorID    string
	balanceBefore decimal.Decimal
	override      *decimal.Decimal
}

// LowBalanceNotifierConfig configures the notifier
type LowBalanceNotifierConfig struct {
	// Threshold applies to operators without their own override
	Threshold decimal.Decimal
	// Cooldown suppresses repeated alerts for the same operator
	Cooldown time.Duration
	// Timeout bounds one check including delivery
	Timeout time.Duration
}

// LowBalanceNotifier raises a best-effort alert after a charge takes an
// operator below its threshold. It runs after commit and never reports
// failure to the billing path.
type LowBalanceNotifier struct {
	notifier notification.Notifier
	store    shared.IdempotencyStore
	cfg      LowBalanceNotifierConfig
	clock    shared.Clock
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewLowBalanceNotifier creates a LowBalanceNotifier. store may be nil, in
// which case every qualifying charge alerts.
func NewLowBalanceNotifier(n notification.Notifier, store shared.IdempotencyStore, cfg LowBalanceNotifierConfig, logger *zap.Logger) *LowBalanceNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LowBalanceNotifier{
		notifier: n,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// CheckAsync schedules Check on its own goroutine
func (n *LowBalanceNotifier) CheckAsync(operatorID string, before, after decimal.Decimal, override *decimal.Decimal) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				n.logger.Error("Low balance check panicked",
					zap.String("operator_id", operatorID),
					zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
		defer cancel()
		if _, err := n.Check(ctx, operatorID, before, after, override); err != nil {
			n.logger.Warn("Low balance notification failed",
				zap.String("operator_id", operatorID),
				zap.Error(err))
		}
	}()
}

// Check alerts when the charge crossed the threshold (before at or above it,
// after below it) and no alert was sent for the operator within the
// cooldown. Returns true when an alert was delivered.
func (n *LowBalanceNotifier) Check(ctx context.Context, operatorID string, before, after decimal.Decimal, override *decimal.Decimal) (bool, error) {
	threshold := n.cfg.Threshold
	if override != nil {
		threshold = *override
	}
	if before.LessThan(threshold) || !after.LessThan(threshold) {
		return false, nil
	}

	key := "low_balance:" + operatorID
	if n.store != nil && n.cfg.Cooldown > 0 {
		fresh, err := n.store.MarkProcessed(ctx, key, n.cfg.Cooldown)
		if err != nil {
			// Deliver anyway; a duplicate alert beats a missing one.
			n.logger.Warn("Low balance cooldown store unavailable", zap.Error(err))
		} else if !fresh {
			return false, nil
		}
	}

	err := n.notifier.Notify(ctx, notification.Notification{
		Kind:       notification.KindLowBalance,
		Severity:   notification.SeverityWarning,
		OperatorID: operatorID,
		Subject:    fmt.Sprintf("Balance %s is below %s", after.StringFixed(billing.MoneyScale), threshold.StringFixed(billing.MoneyScale)),
		Attributes: map[string]string{
			"balance_before": before.StringFixed(billing.MoneyScale),
			"balance_after":  after.StringFixed(billing.MoneyScale),
			"threshold":      threshold.StringFixed(billing.MoneyScale),
		},
		OccurredAt: n.clock.Now().UTC(),
	})
	if err != nil {
		if n.store != nil && n.cfg.Cooldown > 0 {
			_ = n.store.Forget(ctx, key)
		}
		return false, fmt.Errorf("notify low balance: %w", err)
	}
	return true, nil
}

// Wait blocks until every scheduled check has finished
func (n *LowBalanceNotifier) Wait() {
	n.wg.Wait()
}
