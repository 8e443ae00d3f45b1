package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// BillingMetrics tracks session charges, recharge settlement and
// reconciliation health. All record methods are safe on a nil receiver so
// services can run without metrics.
type BillingMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	chargeTotal         *Counter
	chargeAmountTotal   *Counter
	settlementTotal     *Counter
	reconcileOrderTotal *Counter
	anomalyTotal        *Counter

	// Histogram metrics
	chargeDuration    *Histogram
	reconcileDuration *Histogram

	// Gauge metrics (point-in-time values)
	openOrders *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	orderProvider OpenOrdersProvider
}

// OpenOrdersProvider reports recharge orders still awaiting an outcome.
// This interface keeps the telemetry layer free of domain imports.
type OpenOrdersProvider interface {
	CountOpenOrdersByStatus(ctx context.Context) (map[string]int64, error)
}

// BillingMetricsConfig holds configuration for billing metrics.
type BillingMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 1 minute
	OrderProvider   OpenOrdersProvider
}

// NewBillingMetrics creates a new BillingMetrics instance.
func NewBillingMetrics(cfg BillingMetricsConfig) (*BillingMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BillingMetrics{
		meter:         cfg.Meter,
		logger:        logger,
		stopChan:      make(chan struct{}),
		orderProvider: cfg.OrderProvider,
	}

	var err error

	bm.chargeTotal, err = NewCounter(cfg.Meter,
		"arcade_billing_charge_total",
		"Session charge attempts by outcome",
		"{charges}")
	if err != nil {
		return nil, err
	}

	bm.chargeAmountTotal, err = NewCounter(cfg.Meter,
		"arcade_billing_charge_amount_total",
		"Total amount charged in cents",
		"{cents}")
	if err != nil {
		return nil, err
	}

	bm.settlementTotal, err = NewCounter(cfg.Meter,
		"arcade_recharge_settlement_total",
		"Recharge order settlements by source and outcome",
		"{orders}")
	if err != nil {
		return nil, err
	}

	bm.reconcileOrderTotal, err = NewCounter(cfg.Meter,
		"arcade_reconciliation_order_total",
		"Orders examined by reconciliation by outcome",
		"{orders}")
	if err != nil {
		return nil, err
	}

	bm.anomalyTotal, err = NewCounter(cfg.Meter,
		"arcade_recharge_anomaly_total",
		"Recharge orders escalated to ANOMALY",
		"{orders}")
	if err != nil {
		return nil, err
	}

	bm.chargeDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "arcade_billing_charge_duration_seconds",
		Description: "Duration of the billing transaction",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	bm.reconcileDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "arcade_reconciliation_batch_duration_seconds",
		Description: "Duration of one reconciliation sweep",
		Unit:        "s",
		Boundaries:  HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	bm.openOrders, err = NewGauge(cfg.Meter,
		"arcade_recharge_open_orders",
		"Recharge orders awaiting an outcome",
		"{orders}")
	if err != nil {
		return nil, err
	}

	return bm, nil
}

// =============================================================================
// Billing Metrics
// =============================================================================

// RecordCharge records one charge attempt with its outcome and duration
func (bm *BillingMetrics) RecordCharge(ctx context.Context, outcome string, d time.Duration) {
	if bm == nil {
		return
	}
	bm.chargeTotal.Inc(ctx, AttrOutcome.String(outcome))
	bm.chargeDuration.RecordDuration(ctx, d, AttrOutcome.String(outcome))
}

// RecordChargedAmount adds a committed charge in cents
func (bm *BillingMetrics) RecordChargedAmount(ctx context.Context, appCode string, cents int64) {
	if bm == nil {
		return
	}
	bm.chargeAmountTotal.Add(ctx, cents, AttrAppCode.String(appCode))
}

// =============================================================================
// Payment Metrics
// =============================================================================

// Settlement sources
const (
	SettlementSourceCallback       = "callback"
	SettlementSourceReconciliation = "reconciliation"
)

// RecordSettlement records a settlement attempt
func (bm *BillingMetrics) RecordSettlement(ctx context.Context, source, outcome string) {
	if bm == nil {
		return
	}
	bm.settlementTotal.Inc(ctx, AttrSource.String(source), AttrOutcome.String(outcome))
}

// RecordReconciledOrder records the outcome for one order in a sweep
func (bm *BillingMetrics) RecordReconciledOrder(ctx context.Context, outcome string) {
	if bm == nil {
		return
	}
	bm.reconcileOrderTotal.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordAnomaly records an escalation to ANOMALY
func (bm *BillingMetrics) RecordAnomaly(ctx context.Context, gateway string) {
	if bm == nil {
		return
	}
	bm.anomalyTotal.Inc(ctx, AttrPaymentGateway.String(gateway))
}

// RecordReconciliationBatch records the duration of a sweep
func (bm *BillingMetrics) RecordReconciliationBatch(ctx context.Context, d time.Duration) {
	if bm == nil {
		return
	}
	bm.reconcileDuration.RecordDuration(ctx, d)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of the open order gauge.
// This is non-blocking - use Stop() to stop collection.
func (bm *BillingMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	if bm == nil || bm.orderProvider == nil {
		return
	}
	bm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}
		go bm.runPeriodicCollection(ctx, interval)
	})
}

func (bm *BillingMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	bm.collectOpenOrders(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-bm.stopChan:
			return
		case <-ticker.C:
			bm.collectOpenOrders(ctx)
		}
	}
}

func (bm *BillingMetrics) collectOpenOrders(ctx context.Context) {
	counts, err := bm.orderProvider.CountOpenOrdersByStatus(ctx)
	if err != nil {
		bm.logger.Warn("Failed to collect open order metrics", zap.Error(err))
		return
	}
	for status, n := range counts {
		bm.openOrders.Record(ctx, n, AttrOrderStatus.String(status))
	}
}

// Stop stops the periodic collection.
func (bm *BillingMetrics) Stop() {
	if bm == nil {
		return
	}
	bm.stopOnce.Do(func() {
		close(bm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewBillingMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
